package forms

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/Bradawan/sqtracker/internal/backend"
)

type AnnouncementDraft struct {
	ID     string
	Slug   string
	Title  string
	Body   string
	Pinned bool
}

type EditAPI interface {
	EditAnnouncement(ctx context.Context, credential, id string, payload backend.EditAnnouncementRequest) (backend.Response, error)
}

// EditForm is one administrator's edit session for one announcement.
type EditForm struct {
	api        EditAPI
	controller *Controller

	mu    sync.Mutex
	draft AnnouncementDraft
}

func NewEditForm(announcement backend.Announcement, api EditAPI, logger *zap.Logger) *EditForm {
	return &EditForm{
		api:        api,
		controller: NewController(logger),
		draft: AnnouncementDraft{
			ID:     announcement.ID,
			Slug:   announcement.Slug,
			Title:  announcement.Title,
			Body:   announcement.Body,
			Pinned: announcement.Pinned,
		},
	}
}

func (f *EditForm) Draft() AnnouncementDraft {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.draft
}

func (f *EditForm) Busy() bool {
	return f.controller.Busy()
}

// Apply copies the submitted field values into the draft. An unchecked
// checkbox is absent from the form, so pinned is presence-based.
func (f *EditForm) Apply(values url.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.draft.Title = values.Get("title")
	f.draft.Body = values.Get("body")
	f.draft.Pinned = values.Get("pinned") != ""
}

func (f *EditForm) validateLocked() error {
	v := validator{}
	if f.draft.ID == "" {
		v["announcement"] = "could not be loaded"
	}
	v.required("title", f.draft.Title)
	v.required("body", f.draft.Body)
	return v.err()
}

// Submit applies values and sends the update. Validation failures are
// returned as *ValidationError without any network call or notification.
func (f *EditForm) Submit(ctx context.Context, credential string, values url.Values, notifier Notifier, navigator Navigator) (Outcome, error) {
	if f.controller.Busy() {
		return Outcome{}, ErrBusy
	}

	f.Apply(values)

	f.mu.Lock()
	if err := f.validateLocked(); err != nil {
		f.mu.Unlock()
		return Outcome{}, err
	}
	id := f.draft.ID
	payload := backend.EditAnnouncementRequest{
		Title:  f.draft.Title,
		Body:   f.draft.Body,
		Pinned: f.draft.Pinned,
	}
	f.mu.Unlock()

	return f.controller.Submit(ctx, Submission{
		Send: func(ctx context.Context) (backend.Response, error) {
			return f.api.EditAnnouncement(ctx, credential, id, payload)
		},
		SuccessMessage: "Announcement updated successfully",
		FailurePrefix:  "Could not update announcement",
		Destination: func(slug string) string {
			return "/announcements/" + url.PathEscape(slug)
		},
	}, notifier, navigator)
}
