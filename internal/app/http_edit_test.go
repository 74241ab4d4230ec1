package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/Bradawan/sqtracker/internal/backend"
)

func editRequest(slug string, values url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/announcements/"+slug+"/edit", strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestEditViewDeniedWithoutAdmin(t *testing.T) {
	cases := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{name: "no session", token: func(*testing.T) string { return "" }},
		{name: "malformed token", token: func(*testing.T) string { return "garbage" }},
		{name: "user role", token: func(t *testing.T) string { return issueToken(t, "u1", "user") }},
		{name: "moderator role", token: func(t *testing.T) string { return issueToken(t, "u1", "moderator") }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t, testConfig(), nil)
			rr := env.do(httptest.NewRequest(http.MethodGet, "/announcements/welcome/edit", nil), tc.token(t))

			if rr.Code != http.StatusForbidden {
				t.Fatalf("expected status 403, got %d", rr.Code)
			}
			body := rr.Body.String()
			if !strings.Contains(body, DeniedMessage) {
				t.Errorf("expected denied message, got %s", body)
			}
			if strings.Contains(body, "Secret body") {
				t.Error("announcement content leaked to a denied caller")
			}
			if env.api.gets.Load() != 0 {
				t.Errorf("expected no fetch, got %d", env.api.gets.Load())
			}
		})
	}
}

func TestEditViewRendersForAdmin(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	var gotCredential, gotSlug string
	env.api.getFn = func(_ context.Context, credential, slug string) (backend.Announcement, error) {
		gotCredential, gotSlug = credential, slug
		return backend.Announcement{ID: "a1", Slug: slug, Title: "Welcome", Body: "Secret body", Pinned: true}, nil
	}
	token := issueToken(t, "admin-1", "admin")

	rr := env.do(httptest.NewRequest(http.MethodGet, "/announcements/welcome/edit", nil), token)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("expected html, got %q", ct)
	}
	body := rr.Body.String()
	for _, want := range []string{`value="Welcome"`, "Secret body", "checked"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in body", want)
		}
	}
	if env.api.gets.Load() != 1 {
		t.Errorf("expected exactly one fetch, got %d", env.api.gets.Load())
	}
	if gotCredential != token || gotSlug != "welcome" {
		t.Errorf("fetch got credential=%q slug=%q", gotCredential, gotSlug)
	}
}

func TestEditViewEmptyWhenFetchFails(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	env.api.getFn = func(context.Context, string, string) (backend.Announcement, error) {
		return backend.Announcement{}, &backend.StatusError{Status: http.StatusNotFound, Body: "not found"}
	}

	rr := env.do(httptest.NewRequest(http.MethodGet, "/announcements/missing/edit", nil), issueToken(t, "admin-1", "admin"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "could not be loaded") {
		t.Errorf("expected empty view, got %s", rr.Body.String())
	}
}

func TestEditSubmitSuccessRedirects(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	var gotID string
	var gotPayload backend.EditAnnouncementRequest
	env.api.editFn = func(_ context.Context, _ string, id string, payload backend.EditAnnouncementRequest) (backend.Response, error) {
		gotID, gotPayload = id, payload
		return backend.Response{Status: http.StatusOK, Body: "abc123"}, nil
	}
	token := issueToken(t, "admin-1", "admin")

	rr := env.do(editRequest("welcome", url.Values{"title": {"Updated"}, "body": {"New body"}}), token)
	if rr.Code != http.StatusSeeOther {
		t.Fatalf("expected status 303, got %d body=%s", rr.Code, rr.Body.String())
	}
	if loc := rr.Header().Get("Location"); loc != "/announcements/abc123" {
		t.Errorf("expected redirect to /announcements/abc123, got %q", loc)
	}
	if gotID != "a1" || gotPayload.Title != "Updated" || gotPayload.Pinned {
		t.Errorf("unexpected edit call id=%q payload=%+v", gotID, gotPayload)
	}

	items := drainNotifications(t, env, token)
	if len(items) != 1 {
		t.Fatalf("expected one notification, got %d", len(items))
	}
	first, _ := items[0].(map[string]any)
	if first["kind"] != "success" || first["message"] != "Announcement updated successfully" {
		t.Errorf("unexpected notification %v", first)
	}
	if env.service.edits.Len() != 0 {
		t.Errorf("expected edit form to be discarded, got %d", env.service.edits.Len())
	}
}

func TestEditSubmitFailureKeepsValues(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	env.api.editFn = func(context.Context, string, string, backend.EditAnnouncementRequest) (backend.Response, error) {
		return backend.Response{Status: http.StatusInternalServerError, Body: "boom"}, nil
	}
	token := issueToken(t, "admin-1", "admin")

	rr := env.do(editRequest("welcome", url.Values{"title": {"Draft title"}, "body": {"Draft body"}, "pinned": {"on"}}), token)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Could not update announcement: boom", `value="Draft title"`, "Draft body"} {
		if !strings.Contains(body, want) {
			t.Errorf("expected %q in body", want)
		}
	}
	if got := drainNotifications(t, env, token); len(got) != 0 {
		t.Errorf("expected the rendered page to consume the notification, got %v", got)
	}
}

func TestEditSubmitValidationSkipsNetwork(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	token := issueToken(t, "admin-1", "admin")

	rr := env.do(editRequest("welcome", url.Values{"title": {"  "}, "body": {"Body"}}), token)
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected status 422, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), "Title is required") {
		t.Errorf("expected inline error, got %s", rr.Body.String())
	}
	if env.api.edits.Load() != 0 {
		t.Errorf("expected no edit call, got %d", env.api.edits.Load())
	}
}

func TestEditSubmitReusesLoadedForm(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	token := issueToken(t, "admin-1", "admin")

	env.do(httptest.NewRequest(http.MethodGet, "/announcements/welcome/edit", nil), token)
	env.do(editRequest("welcome", url.Values{"title": {"T"}, "body": {"B"}}), token)

	if env.api.gets.Load() != 1 {
		t.Errorf("expected the submit to reuse the loaded announcement, got %d fetches", env.api.gets.Load())
	}
	if env.api.edits.Load() != 1 {
		t.Errorf("expected one edit call, got %d", env.api.edits.Load())
	}
}

func TestEditSubmitDeniedForUser(t *testing.T) {
	env := newTestEnv(t, testConfig(), nil)
	rr := env.do(editRequest("welcome", url.Values{"title": {"T"}, "body": {"B"}}), issueToken(t, "u1", "user"))
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", rr.Code)
	}
	if env.api.edits.Load() != 0 || env.api.gets.Load() != 0 {
		t.Errorf("expected no API calls, got gets=%d edits=%d", env.api.gets.Load(), env.api.edits.Load())
	}
}
