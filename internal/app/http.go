package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Bradawan/sqtracker/internal/auth"
	"github.com/Bradawan/sqtracker/internal/forms"
	"github.com/Bradawan/sqtracker/internal/gate"
	"github.com/Bradawan/sqtracker/internal/ingest"
)

// formOverhead is the multipart allowance on top of the torrent size cap.
const formOverhead = 1 << 20

// SignInPath is where callers without a session are sent.
const SignInPath = "/login"

type HTTPServer struct {
	service    *Service
	corsOrigin string
	logger     *zap.Logger
	limiter    *RateLimiter
}

func NewHTTPServer(service *Service, corsOrigin string, logger *zap.Logger, limiter *RateLimiter) *HTTPServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPServer{service: service, corsOrigin: corsOrigin, logger: logger, limiter: limiter}
}

func (s *HTTPServer) Handler() http.Handler {
	return s.withMiddleware(s.withRateLimit(http.HandlerFunc(s.handle)))
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodOptions {
		writeJSON(w, http.StatusNoContent, map[string]any{})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		status := "ready"
		statusCode := http.StatusOK
		checks := map[string]any{
			"notifications": map[string]any{"status": "ok"},
		}

		if err := s.service.Ping(ctx); err != nil {
			status = "not_ready"
			statusCode = http.StatusServiceUnavailable
			checks["notifications"] = map[string]any{
				"status": "error",
				"error":  err.Error(),
			}
		}

		writeJSON(w, statusCode, map[string]any{
			"ok":     status == "ready",
			"status": status,
			"checks": checks,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/session" {
		claims, ok := s.service.SessionFromRequest(r)
		if !ok {
			writeJSON(w, http.StatusOK, map[string]any{"authenticated": false, "userId": nil, "username": nil, "role": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"authenticated": true,
			"userId":        claims.SubjectID(),
			"username":      claims.Username,
			"role":          claims.Role,
		})
		return
	}

	if r.Method == http.MethodGet && r.URL.Path == "/api/notifications" {
		claims, ok := s.service.SessionFromRequest(r)
		if !ok {
			writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
			return
		}
		notifications, err := s.service.DrainNotifications(r.Context(), claims.SubjectID())
		if err != nil {
			s.log(r).Error("drain notifications failed", zap.Error(err))
			writeError(w, http.StatusServiceUnavailable, "NOTIFICATIONS_UNAVAILABLE", "Notifications unavailable", nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"notifications": notifications})
		return
	}

	parts := splitPath(r.URL.Path)
	if len(parts) == 3 && parts[0] == "announcements" && parts[2] == "edit" {
		s.handleEditAnnouncement(w, r, parts[1])
		return
	}

	if len(parts) == 1 && parts[0] == "upload" {
		s.handleUpload(w, r)
		return
	}

	if len(parts) == 2 && parts[0] == "upload" && parts[1] == "category" {
		s.handleUploadCategory(w, r)
		return
	}

	if len(parts) == 2 && parts[0] == "upload" && parts[1] == "file" {
		s.handleUploadFile(w, r)
		return
	}

	writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
}

func (s *HTTPServer) handleEditAnnouncement(w http.ResponseWriter, r *http.Request, slug string) {
	credential := auth.Credential(r)

	switch r.Method {
	case http.MethodGet:
		outcome := s.service.OpenEditForm(r.Context(), credential, slug)
		if !s.admitPage(w, r, outcome.Decision) {
			return
		}
		status := http.StatusOK
		if !outcome.Found {
			status = fetchStatus(outcome.FetchErr)
		}
		s.renderEdit(w, r, status, outcome.Claims, slug, outcome.Resource, nil, nil)

	case http.MethodPost:
		outcome := s.service.EditFormForSubmit(r.Context(), credential, slug)
		if !s.admitPage(w, r, outcome.Decision) {
			return
		}
		if !outcome.Found {
			s.renderEdit(w, r, fetchStatus(outcome.FetchErr), outcome.Claims, slug, nil, nil, nil)
			return
		}
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_FORM", "Invalid form body", nil)
			return
		}

		form := outcome.Resource
		submitted, err := s.service.SubmitEdit(r.Context(), outcome.Claims, outcome.Credential, slug, form, r.PostForm)
		if err != nil {
			status, fields := s.submissionError(r, err)
			s.renderEdit(w, r, status, outcome.Claims, slug, form, fields, nil)
			return
		}
		if submitted.Outcome.Succeeded() {
			redirect(w, r, submitted.Location)
			return
		}
		s.renderEdit(w, r, http.StatusUnprocessableEntity, outcome.Claims, slug, form, nil, submitted.Undelivered)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleUpload(w http.ResponseWriter, r *http.Request) {
	credential := auth.Credential(r)

	switch r.Method {
	case http.MethodGet:
		outcome := s.service.UploadForm(r.Context(), credential, true)
		if !s.admitPage(w, r, outcome.Decision) {
			return
		}
		s.renderUpload(w, r, http.StatusOK, outcome.Claims, outcome.Resource, nil, nil)

	case http.MethodPost:
		outcome := s.service.UploadForm(r.Context(), credential, false)
		if !s.admitPage(w, r, outcome.Decision) {
			return
		}
		form := outcome.Resource
		if err := s.parseUploadBody(w, r); err != nil {
			s.renderUpload(w, r, http.StatusRequestEntityTooLarge, outcome.Claims, form, map[string]string{"torrent": err.Error()}, nil)
			return
		}
		if files := multipartFiles(r, "torrent"); len(files) > 0 {
			if _, err := s.service.DropFiles(r.Context(), form, files); err != nil {
				s.log(r).Warn("file read did not settle", zap.Error(err))
			}
		}

		submitted, err := s.service.SubmitUpload(r.Context(), outcome.Claims, outcome.Credential, form, r.PostForm)
		if err != nil {
			status, fields := s.submissionError(r, err)
			s.renderUpload(w, r, status, outcome.Claims, form, fields, nil)
			return
		}
		if submitted.Outcome.Succeeded() {
			redirect(w, r, submitted.Location)
			return
		}
		s.renderUpload(w, r, http.StatusUnprocessableEntity, outcome.Claims, form, nil, submitted.Undelivered)

	default:
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
	}
}

func (s *HTTPServer) handleUploadCategory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	outcome := s.service.UploadForm(r.Context(), auth.Credential(r), false)
	if !admitJSON(w, outcome.Decision) {
		return
	}

	var input struct {
		Category string `json:"category"`
	}
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	form := outcome.Resource
	sources, err := s.service.SelectCategory(form, input.Category)
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"category": input.Category,
		"source":   form.Draft().SourceSlug,
		"sources":  sources,
	})
}

func (s *HTTPServer) handleUploadFile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		return
	}
	outcome := s.service.UploadForm(r.Context(), auth.Credential(r), false)
	if !admitJSON(w, outcome.Decision) {
		return
	}
	form := outcome.Resource

	if r.Method == http.MethodGet {
		writeJSON(w, http.StatusOK, form.Pipeline().Snapshot())
		return
	}

	if err := s.parseUploadBody(w, r); err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", err.Error(), nil)
		return
	}
	snap, err := s.service.DropFiles(r.Context(), form, multipartFiles(r, "torrent"))
	if err != nil {
		s.log(r).Warn("file read did not settle", zap.Error(err))
		writeJSON(w, http.StatusAccepted, snap)
		return
	}
	status := http.StatusOK
	if snap.State == ingest.StateFailed {
		status = http.StatusUnprocessableEntity
	}
	writeJSON(w, status, snap)
}

// admitPage applies a gate decision to an HTML view. It returns true when the
// view may render.
func (s *HTTPServer) admitPage(w http.ResponseWriter, r *http.Request, decision gate.Decision) bool {
	switch decision {
	case gate.DecisionAllow:
		return true
	case gate.DecisionSignIn:
		redirect(w, r, SignInPath)
	default:
		s.renderDenied(w, r)
	}
	return false
}

func admitJSON(w http.ResponseWriter, decision gate.Decision) bool {
	switch decision {
	case gate.DecisionAllow:
		return true
	case gate.DecisionSignIn:
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil)
	default:
		writeError(w, http.StatusForbidden, "FORBIDDEN", DeniedMessage, nil)
	}
	return false
}

// submissionError maps an error returned before any network call to the
// status of the re-rendered form and its inline field errors.
func (s *HTTPServer) submissionError(r *http.Request, err error) (int, map[string]string) {
	var validation *forms.ValidationError
	var domainErr *DomainError
	switch {
	case errors.As(err, &validation):
		return http.StatusUnprocessableEntity, validation.Fields
	case errors.As(err, &domainErr) && domainErr.Field != "":
		return domainErr.Status, domainErr.FieldErrors()
	case errors.Is(err, forms.ErrBusy):
		return http.StatusConflict, nil
	default:
		status, code, message, _ := mapError(err)
		s.log(r).Error("submission failed", zap.String("code", code), zap.String("message", message), zap.Error(err))
		return status, nil
	}
}

func (s *HTTPServer) renderEdit(w http.ResponseWriter, r *http.Request, status int, claims auth.Claims, slug string, form *forms.EditForm, fields map[string]string, extra []forms.Notification) {
	s.renderPage(w, r, status, "edit", pageData{
		Title:         "Edit announcement",
		Notifications: s.pageNotifications(r, claims, extra),
		Edit:          newEditView(slug, form, fields),
	})
}

func (s *HTTPServer) renderUpload(w http.ResponseWriter, r *http.Request, status int, claims auth.Claims, form *forms.UploadForm, fields map[string]string, extra []forms.Notification) {
	s.renderPage(w, r, status, "upload", pageData{
		Title:         "Upload",
		Notifications: s.pageNotifications(r, claims, extra),
		Upload:        newUploadView(s.service.AnnounceURL(claims.SubjectID()), form, fields),
	})
}

// pageNotifications drains the caller's queued notifications for display.
func (s *HTTPServer) pageNotifications(r *http.Request, claims auth.Claims, extra []forms.Notification) []forms.Notification {
	notifications, err := s.service.DrainNotifications(r.Context(), claims.SubjectID())
	if err != nil {
		s.log(r).Warn("drain notifications failed", zap.Error(err))
	}
	return append(notifications, extra...)
}

func (s *HTTPServer) parseUploadBody(w http.ResponseWriter, r *http.Request) error {
	maxBytes := s.service.cfg.MaxTorrentSize
	if maxBytes <= 0 {
		maxBytes = ingest.DefaultMaxBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes+formOverhead)

	if !strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		if err := r.ParseForm(); err != nil {
			return fmt.Errorf("invalid form body: %w", err)
		}
		return nil
	}
	if err := r.ParseMultipartForm(maxBytes + formOverhead); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("file exceeds the maximum size of %d bytes", maxBytes)
		}
		return fmt.Errorf("invalid form body: %w", err)
	}
	return nil
}

func multipartFiles(r *http.Request, field string) []ingest.File {
	if r.MultipartForm == nil {
		return nil
	}
	headers := r.MultipartForm.File[field]
	files := make([]ingest.File, 0, len(headers))
	for _, header := range headers {
		files = append(files, ingest.FromMultipart(header))
	}
	return files
}

func redirect(w http.ResponseWriter, r *http.Request, location string) {
	w.Header().Del("Content-Type")
	http.Redirect(w, r, location, http.StatusSeeOther)
}

func (s *HTTPServer) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, requestID)
		r = r.WithContext(ctx)

		started := time.Now()
		writer := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		setCORSHeaders(writer.Header(), s.corsOrigin)
		writer.Header().Set("X-Request-ID", requestID)

		next.ServeHTTP(writer, r)

		s.logger.Info("request",
			zap.String("request_id", requestID),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", writer.status),
			zap.Int64("duration_ms", time.Since(started).Milliseconds()),
		)
	})
}

// withRateLimit throttles form submissions per subject, falling back to the
// client IP for callers without a session.
func (s *HTTPServer) withRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter == nil || !isSubmission(r) {
			next.ServeHTTP(w, r)
			return
		}
		key := "ip:" + clientIP(r)
		if claims, ok := s.service.SessionFromRequest(r); ok {
			key = "subject:" + claims.SubjectID()
		}
		if !s.limiter.Allow(key) {
			writeError(w, http.StatusTooManyRequests, "RATE_LIMITED", "Too many submissions, slow down", nil)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isSubmission(r *http.Request) bool {
	if r.Method != http.MethodPost {
		return false
	}
	parts := splitPath(r.URL.Path)
	switch {
	case len(parts) == 1 && parts[0] == "upload":
		return true
	case len(parts) == 3 && parts[0] == "announcements" && parts[2] == "edit":
		return true
	}
	return false
}

func (s *HTTPServer) log(r *http.Request) *zap.Logger {
	if requestID, ok := r.Context().Value(requestIDKey{}).(string); ok {
		return s.logger.With(zap.String("request_id", requestID))
	}
	return s.logger
}

type requestIDKey struct{}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func setCORSHeaders(header http.Header, corsOrigin string) {
	header.Set("Access-Control-Allow-Origin", corsOrigin)
	header.Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
	header.Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
	header.Set("Access-Control-Allow-Credentials", "true")
	header.Set("Cache-Control", "no-store")
	header.Set("Content-Type", "application/json")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	decoder := json.NewDecoder(r.Body)
	if err := decoder.Decode(target); err != nil {
		if errors.Is(err, http.ErrBodyReadAfterClose) {
			return nil
		}
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func mapError(err error) (status int, code, message string, details any) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		details = domainErr.Details
		if details == nil && domainErr.Field != "" {
			details = map[string]any{"fields": domainErr.FieldErrors()}
		}
		return domainErr.Status, domainErr.Code, domainErr.Message, details
	}
	if errors.Is(err, auth.ErrInvalidToken) || errors.Is(err, auth.ErrExpiredToken) {
		return http.StatusUnauthorized, "UNAUTHORIZED", "Unauthorized", nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout, "UPSTREAM_TIMEOUT", "Upstream timed out", nil
	}
	return http.StatusInternalServerError, "SERVER_ERROR", "Server error", nil
}
