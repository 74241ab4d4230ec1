package app

import (
	"bytes"
	"embed"
	"html/template"
	"net/http"

	"go.uber.org/zap"

	"github.com/Bradawan/sqtracker/internal/catalog"
	"github.com/Bradawan/sqtracker/internal/forms"
	"github.com/Bradawan/sqtracker/internal/ingest"
)

// DeniedMessage is the whole body of the permission-denied view.
const DeniedMessage = "You do not have permission to do that."

//go:embed templates/*.html
var templateFS embed.FS

var pageTemplates = map[string]*template.Template{
	"edit":   parsePage("edit.html"),
	"upload": parsePage("upload.html"),
	"denied": parsePage("denied.html"),
}

func parsePage(name string) *template.Template {
	return template.Must(template.New(name).ParseFS(templateFS, "templates/layout.html", "templates/"+name))
}

type pageData struct {
	Title         string
	Notifications []forms.Notification
	Message       string
	Edit          *editView
	Upload        *uploadView
}

type editView struct {
	Found  bool
	Slug   string
	Draft  forms.AnnouncementDraft
	Errors map[string]string
	Busy   bool
}

type uploadView struct {
	AnnounceURL    string
	Draft          forms.UploadDraft
	CatalogEnabled bool
	Categories     []catalog.Option
	Sources        []catalog.Option
	AllowAnonymous bool
	File           ingest.Snapshot
	Errors         map[string]string
	Busy           bool
}

func newEditView(slug string, form *forms.EditForm, errs map[string]string) *editView {
	if form == nil {
		return &editView{Slug: slug}
	}
	return &editView{
		Found:  true,
		Slug:   slug,
		Draft:  form.Draft(),
		Errors: errs,
		Busy:   form.Busy(),
	}
}

func newUploadView(announceURL string, form *forms.UploadForm, errs map[string]string) *uploadView {
	return &uploadView{
		AnnounceURL:    announceURL,
		Draft:          form.Draft(),
		CatalogEnabled: form.CatalogEnabled(),
		Categories:     form.CategoryOptions(),
		Sources:        form.SourceOptions(),
		AllowAnonymous: form.AllowAnonymous(),
		File:           form.Pipeline().Snapshot(),
		Errors:         errs,
		Busy:           form.Busy(),
	}
}

// renderPage writes a full HTML page. The page is rendered to a buffer first
// so a template failure never leaves a half-written response.
func (s *HTTPServer) renderPage(w http.ResponseWriter, r *http.Request, status int, page string, data pageData) {
	tmpl, ok := pageTemplates[page]
	if !ok {
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Unknown page", nil)
		return
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", data); err != nil {
		s.log(r).Error("render page failed", zap.String("page", page), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "SERVER_ERROR", "Render failed", nil)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func (s *HTTPServer) renderDenied(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, http.StatusForbidden, "denied", pageData{Title: "Access denied", Message: DeniedMessage})
}
