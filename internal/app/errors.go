package app

import (
	"fmt"
	"net/http"
)

// DomainError is a failure surfaced to the browser with an HTTP status and a
// machine code. Field names the form control it belongs to, if any.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Field   string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Code, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// FieldErrors is the inline error map a form view renders for e.
func (e *DomainError) FieldErrors() map[string]string {
	if e == nil || e.Field == "" {
		return nil
	}
	return map[string]string{e.Field: e.Message}
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func fieldError(status int, code, field, message string) *DomainError {
	err := domainError(status, code, message, nil)
	err.Field = field
	return err
}

func errCategoriesDisabled() *DomainError {
	return fieldError(http.StatusConflict, "CATEGORIES_DISABLED", "category", "Categories are not configured")
}
