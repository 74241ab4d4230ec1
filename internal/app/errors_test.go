package app

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
)

func TestDomainErrorMessage(t *testing.T) {
	if got := errCategoriesDisabled().Error(); got != "CATEGORIES_DISABLED: category: Categories are not configured" {
		t.Errorf("unexpected message %q", got)
	}
	if got := domainError(http.StatusConflict, "BUSY", "Busy", nil).Error(); got != "BUSY: Busy" {
		t.Errorf("unexpected message %q", got)
	}
	var nilErr *DomainError
	if nilErr.Error() != "" || nilErr.FieldErrors() != nil {
		t.Error("expected nil error to be empty")
	}
}

func TestMapErrorCarriesFieldDetails(t *testing.T) {
	status, code, _, details := mapError(fmt.Errorf("select: %w", errCategoriesDisabled()))
	if status != http.StatusConflict || code != "CATEGORIES_DISABLED" {
		t.Fatalf("unexpected mapping %d %s", status, code)
	}
	fields, _ := details.(map[string]any)["fields"].(map[string]string)
	if fields["category"] == "" {
		t.Errorf("expected category field in details, got %v", details)
	}

	_, _, _, details = mapError(domainError(http.StatusBadRequest, "BAD", "Bad", []string{"x"}))
	if _, ok := details.([]string); !ok {
		t.Errorf("expected explicit details to win, got %v", details)
	}
}

func TestSubmissionErrorRendersFieldError(t *testing.T) {
	s := &HTTPServer{logger: zap.NewNop()}
	req := httptest.NewRequest(http.MethodPost, "/upload", nil)

	status, fields := s.submissionError(req, errCategoriesDisabled())
	if status != http.StatusConflict || fields["category"] != "Categories are not configured" {
		t.Errorf("unexpected result %d %v", status, fields)
	}

	status, fields = s.submissionError(req, domainError(http.StatusTeapot, "TEAPOT", "Teapot", nil))
	if status != http.StatusTeapot || fields != nil {
		t.Errorf("unexpected result %d %v", status, fields)
	}
}
