package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/Bradawan/sqtracker/internal/auth"
	"github.com/Bradawan/sqtracker/internal/backend"
	"github.com/Bradawan/sqtracker/internal/catalog"
	"github.com/Bradawan/sqtracker/internal/config"
	"github.com/Bradawan/sqtracker/internal/forms"
	"github.com/Bradawan/sqtracker/internal/gate"
	"github.com/Bradawan/sqtracker/internal/ingest"
	"github.com/Bradawan/sqtracker/internal/rbac"
	"github.com/Bradawan/sqtracker/internal/session"
)

// API is the part of the tracker API the web front uses.
type API interface {
	GetAnnouncement(ctx context.Context, credential, slug string) (backend.Announcement, error)
	forms.EditAPI
	forms.UploadAPI
}

type Service struct {
	cfg     config.Config
	logger  *zap.Logger
	gate    *gate.Gate
	api     API
	flashes session.Store
	catalog catalog.Catalog
	edits   *forms.Registry[*forms.EditForm]
	uploads *forms.Registry[*forms.UploadForm]
}

func NewService(cfg config.Config, api API, flashes session.Store, cat catalog.Catalog, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if flashes == nil {
		flashes = session.NewMemoryStore()
	}
	return &Service{
		cfg:     cfg,
		logger:  logger,
		gate:    gate.New([]byte(cfg.JWTSecret), logger),
		api:     api,
		flashes: flashes,
		catalog: cat,
		edits:   forms.NewRegistry[*forms.EditForm](cfg.FormIdleTTL),
		uploads: forms.NewRegistry[*forms.UploadForm](cfg.FormIdleTTL),
	}
}

func (s *Service) Ping(ctx context.Context) error {
	return s.flashes.Ping(ctx)
}

// RunJanitor prunes idle form instances every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	go s.uploads.Run(ctx, interval)
	s.edits.Run(ctx, interval)
}

// SessionFromRequest resolves the caller's session from the bearer header or
// the token cookie.
func (s *Service) SessionFromRequest(r *http.Request) (auth.Claims, bool) {
	return s.gate.Resolve(auth.Credential(r))
}

// AnnounceURL is the tracker announce URL the user embeds in new torrents.
func (s *Service) AnnounceURL(userID string) string {
	return fmt.Sprintf("%s/sq/%s/announce", s.cfg.BaseURL, url.PathEscape(userID))
}

func editKey(subject, slug string) string {
	return "edit:" + subject + ":" + slug
}

func uploadKey(subject string) string {
	return "upload:" + subject
}

// OpenEditForm runs the admin gate and starts a fresh edit form from the
// announcement as currently stored.
func (s *Service) OpenEditForm(ctx context.Context, credential, slug string) gate.Outcome[*forms.EditForm] {
	return s.editForm(ctx, credential, slug, false)
}

// EditFormForSubmit runs the admin gate and returns the caller's live edit
// form, loading it if the instance was pruned.
func (s *Service) EditFormForSubmit(ctx context.Context, credential, slug string) gate.Outcome[*forms.EditForm] {
	return s.editForm(ctx, credential, slug, true)
}

func (s *Service) editForm(ctx context.Context, credential, slug string, reuse bool) gate.Outcome[*forms.EditForm] {
	claims, _ := s.gate.Resolve(credential)
	key := editKey(claims.SubjectID(), slug)
	return gate.Protect(ctx, s.gate, credential, rbac.RoleAdmin, func(ctx context.Context, credential string) (*forms.EditForm, error) {
		if reuse {
			if form, ok := s.edits.Get(key); ok {
				return form, nil
			}
		}
		announcement, err := s.api.GetAnnouncement(ctx, credential, slug)
		if err != nil {
			return nil, err
		}
		form := forms.NewEditForm(announcement, s.api, s.logger)
		s.edits.Put(key, form)
		return form, nil
	})
}

// UploadForm runs the signed-in gate and returns the caller's upload form.
// fresh discards any previous draft.
func (s *Service) UploadForm(ctx context.Context, credential string, fresh bool) gate.Outcome[*forms.UploadForm] {
	claims, _ := s.gate.Resolve(credential)
	key := uploadKey(claims.SubjectID())
	return gate.Protect(ctx, s.gate, credential, rbac.RoleAuthenticated, func(context.Context, string) (*forms.UploadForm, error) {
		create := func() *forms.UploadForm {
			return forms.NewUploadForm(forms.UploadOptions{
				Catalog:        s.catalog,
				AllowAnonymous: s.cfg.AllowAnonymous,
				MaxBytes:       s.cfg.MaxTorrentSize,
			}, s.api, s.logger)
		}
		if fresh {
			form := create()
			s.uploads.Put(key, form)
			return form, nil
		}
		return s.uploads.GetOrCreate(key, create), nil
	})
}

// SelectCategory switches the form's category and returns the sources now
// on offer. An unknown category yields no sources.
func (s *Service) SelectCategory(form *forms.UploadForm, categorySlug string) ([]catalog.Option, error) {
	if !form.CatalogEnabled() {
		return nil, errCategoriesDisabled()
	}
	sources := form.SelectCategory(categorySlug)
	if sources == nil {
		sources = []catalog.Option{}
	}
	return sources, nil
}

// Submitted is the result of one form submission as the HTTP layer sees it.
type Submitted struct {
	Outcome forms.Outcome
	// Location is set when the browser should be redirected.
	Location string
	// Undelivered holds notifications the flash store did not accept.
	Undelivered []forms.Notification
}

// SubmitEdit sends the edit. The form is forgotten on success.
func (s *Service) SubmitEdit(ctx context.Context, claims auth.Claims, credential, slug string, form *forms.EditForm, values url.Values) (Submitted, error) {
	nav := &redirectNavigator{}
	notifier := s.notifier(claims.SubjectID())
	outcome, err := form.Submit(ctx, credential, values, notifier, nav)
	if err != nil {
		return Submitted{}, err
	}
	if outcome.Succeeded() {
		s.edits.Delete(editKey(claims.SubjectID(), slug))
	}
	return Submitted{Outcome: outcome, Location: nav.location, Undelivered: notifier.undelivered}, nil
}

// SubmitUpload sends the upload. The form is forgotten on success.
func (s *Service) SubmitUpload(ctx context.Context, claims auth.Claims, credential string, form *forms.UploadForm, values url.Values) (Submitted, error) {
	nav := &redirectNavigator{}
	notifier := s.notifier(claims.SubjectID())
	outcome, err := form.Submit(ctx, credential, values, notifier, nav)
	if err != nil {
		return Submitted{}, err
	}
	if outcome.Succeeded() {
		s.uploads.Delete(uploadKey(claims.SubjectID()))
	}
	return Submitted{Outcome: outcome, Location: nav.location, Undelivered: notifier.undelivered}, nil
}

// DropFiles hands files to the form's pipeline and waits for the read to
// settle. Multipart temp files do not outlive the request.
func (s *Service) DropFiles(ctx context.Context, form *forms.UploadForm, files []ingest.File) (ingest.Snapshot, error) {
	form.Drop(files)
	timeout := s.cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	snap, err := form.Pipeline().Wait(ctx)
	if err != nil {
		return snap, fmt.Errorf("wait for file read: %w", err)
	}
	return snap, nil
}

// DrainNotifications returns and clears the subject's pending notifications.
func (s *Service) DrainNotifications(ctx context.Context, subject string) ([]forms.Notification, error) {
	flashes, err := s.flashes.Drain(ctx, subject)
	if err != nil {
		return nil, err
	}
	out := make([]forms.Notification, 0, len(flashes))
	for _, flash := range flashes {
		out = append(out, forms.Notification{Kind: forms.NotificationKind(flash.Kind), Message: flash.Message})
	}
	return out, nil
}

func (s *Service) notifier(subject string) *flashNotifier {
	return &flashNotifier{store: s.flashes, key: subject, logger: s.logger}
}

// flashNotifier queues notifications for the subject's next page view.
type flashNotifier struct {
	store       session.Store
	key         string
	logger      *zap.Logger
	undelivered []forms.Notification
}

func (n *flashNotifier) Notify(ctx context.Context, notification forms.Notification) {
	err := n.store.Push(ctx, n.key, session.Flash{Kind: string(notification.Kind), Message: notification.Message})
	if err != nil {
		n.logger.Warn("could not queue notification", zap.String("subject", n.key), zap.Error(err))
		n.undelivered = append(n.undelivered, notification)
	}
}

type redirectNavigator struct {
	location string
}

func (n *redirectNavigator) Navigate(path string) {
	n.location = path
}

// fetchStatus maps a failed resource fetch to the status of the empty view.
func fetchStatus(err error) int {
	var statusErr *backend.StatusError
	if errors.As(err, &statusErr) && statusErr.Status == http.StatusNotFound {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}
