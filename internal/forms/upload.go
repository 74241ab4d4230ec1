package forms

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/Bradawan/sqtracker/internal/backend"
	"github.com/Bradawan/sqtracker/internal/catalog"
	"github.com/Bradawan/sqtracker/internal/ingest"
)

type UploadDraft struct {
	Name         string
	Description  string
	CategorySlug string
	SourceSlug   string
	Anonymous    bool
	Tags         string
	File         *ingest.EncodedFile
}

type UploadAPI interface {
	UploadTorrent(ctx context.Context, credential string, payload backend.UploadRequest) (backend.Response, error)
}

type UploadOptions struct {
	Catalog        catalog.Catalog
	AllowAnonymous bool
	MaxBytes       int64
	Accept         ingest.Accept
}

// UploadForm is one user's upload form: the cascading selector, the file
// pipeline and the text fields.
type UploadForm struct {
	opts       UploadOptions
	api        UploadAPI
	controller *Controller
	pipeline   *ingest.Pipeline

	mu          sync.Mutex
	selector    *catalog.Selector
	draft       UploadDraft
	sourceError string
}

func NewUploadForm(opts UploadOptions, api UploadAPI, logger *zap.Logger) *UploadForm {
	if opts.Accept.MIMETypes == nil && opts.Accept.Extensions == nil {
		opts.Accept = ingest.TorrentAccept
	}
	selector := catalog.NewSelector(opts.Catalog)
	return &UploadForm{
		opts:       opts,
		api:        api,
		controller: NewController(logger),
		pipeline:   ingest.NewPipeline(opts.Accept, opts.MaxBytes, logger),
		selector:   selector,
		draft: UploadDraft{
			CategorySlug: selector.Category(),
			SourceSlug:   selector.DefaultSource(),
		},
	}
}

func (f *UploadForm) Busy() bool {
	return f.controller.Busy()
}

func (f *UploadForm) Pipeline() *ingest.Pipeline {
	return f.pipeline
}

// SelectCategory switches category and resets the source to the category's
// first entry. It returns the new source options.
func (f *UploadForm) SelectCategory(categorySlug string) []catalog.Option {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.selectCategoryLocked(categorySlug)
	return f.selector.SourceOptions()
}

func (f *UploadForm) selectCategoryLocked(categorySlug string) {
	f.selector.OnCategoryChange(categorySlug)
	f.draft.CategorySlug = categorySlug
	f.draft.SourceSlug = f.selector.DefaultSource()
	f.sourceError = ""
}

// Drop hands files to the ingestion pipeline.
func (f *UploadForm) Drop(files []ingest.File) uint64 {
	return f.pipeline.OnFilesDropped(files)
}

// Apply copies submitted values into the draft. A source that does not
// belong to the selected category is not stored; it is reported on validation.
func (f *UploadForm) Apply(values url.Values) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.applyLocked(values)
}

func (f *UploadForm) applyLocked(values url.Values) {
	f.draft.Name = values.Get("name")
	f.draft.Description = values.Get("description")
	f.draft.Tags = values.Get("tags")
	f.draft.Anonymous = f.opts.AllowAnonymous && values.Get("anonymous") != ""

	if !f.selector.Enabled() {
		return
	}
	if category := values.Get("category"); values.Has("category") && category != f.draft.CategorySlug {
		f.selectCategoryLocked(category)
	}
	if !values.Has("source") {
		return
	}
	source := values.Get("source")
	if f.selector.HasSource(source) {
		f.draft.SourceSlug = source
		f.sourceError = ""
		return
	}
	f.sourceError = "is not available for the selected category"
}

// Draft returns the current values, including the file once it is fully read.
func (f *UploadForm) Draft() UploadDraft {
	f.mu.Lock()
	draft := f.draft
	f.mu.Unlock()
	if file, err := f.pipeline.File(); err == nil {
		draft.File = &file
	}
	return draft
}

func (f *UploadForm) CategoryOptions() []catalog.Option {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selector.CategoryOptions()
}

func (f *UploadForm) SourceOptions() []catalog.Option {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selector.SourceOptions()
}

func (f *UploadForm) CatalogEnabled() bool {
	return !f.opts.Catalog.Empty()
}

func (f *UploadForm) AllowAnonymous() bool {
	return f.opts.AllowAnonymous
}

func (f *UploadForm) validateLocked(file ingest.Snapshot) error {
	v := validator{}
	v.required("name", f.draft.Name)
	v.required("description", f.draft.Description)

	switch file.State {
	case ingest.StateEmpty:
		v["torrent"] = "a .torrent file is required"
	case ingest.StateReading:
		v["torrent"] = "the file is still being read"
	case ingest.StateFailed:
		v["torrent"] = file.Err
	}

	if f.selector.Enabled() {
		if _, ok := f.opts.Catalog.Lookup(f.draft.CategorySlug); !ok {
			v["category"] = "is not a known category"
		} else if f.sourceError != "" {
			v["source"] = f.sourceError
		} else if !f.opts.Catalog.Allows(f.draft.CategorySlug, f.draft.SourceSlug) {
			v["source"] = "is not available for the selected category"
		}
	}
	return v.err()
}

// Submit applies values, validates the draft and sends the upload.
func (f *UploadForm) Submit(ctx context.Context, credential string, values url.Values, notifier Notifier, navigator Navigator) (Outcome, error) {
	if f.controller.Busy() {
		return Outcome{}, ErrBusy
	}

	f.mu.Lock()
	f.applyLocked(values)
	snap := f.pipeline.Snapshot()
	if err := f.validateLocked(snap); err != nil {
		f.mu.Unlock()
		return Outcome{}, err
	}
	payload := backend.UploadRequest{
		Name:        f.draft.Name,
		Description: f.draft.Description,
		Anonymous:   f.draft.Anonymous,
		Tags:        f.draft.Tags,
	}
	if f.selector.Enabled() {
		payload.Type = f.draft.CategorySlug
		payload.Source = f.draft.SourceSlug
	}
	f.mu.Unlock()

	file, err := f.pipeline.File()
	if err != nil {
		// A drop landed between validation and here.
		return Outcome{}, &ValidationError{Fields: map[string]string{"torrent": err.Error()}}
	}
	payload.Torrent = file.Payload

	return f.controller.Submit(ctx, Submission{
		Send: func(ctx context.Context) (backend.Response, error) {
			return f.api.UploadTorrent(ctx, credential, payload)
		},
		SuccessMessage: "Torrent uploaded successfully",
		FailurePrefix:  "Could not upload file",
		Destination: func(infoHash string) string {
			return "/torrent/" + url.PathEscape(infoHash)
		},
	}, notifier, navigator)
}
