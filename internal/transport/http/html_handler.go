package http

import (
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"

	"citypulse/pkg/contracts"
)

// pageData is passed to the index template
type pageData struct {
	AppName     string
	Version     string
	MaxUploadMB int64
	FormField   string
}

// IndexPage serves the upload page from the embedded frontend
type IndexPage struct {
	frontend fs.FS
	data     pageData
	logger   *slog.Logger

	once sync.Once
	tmpl *template.Template
	err  error
}

// NewIndexPage creates the index page handler. The template is parsed on
// first use so a missing frontend only fails the page, not the server.
func NewIndexPage(frontend fs.FS, appName string, maxUploadBytes int64, formField string, logger *slog.Logger) *IndexPage {
	return &IndexPage{
		frontend: frontend,
		data: pageData{
			AppName:     appName,
			Version:     contracts.Version,
			MaxUploadMB: maxUploadBytes >> 20,
			FormField:   formField,
		},
		logger: logger.With(slog.String("handler", "index")),
	}
}

// ServeHTTP serves GET /
func (p *IndexPage) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.once.Do(func() {
		if p.frontend == nil {
			p.err = fs.ErrNotExist
			return
		}
		p.tmpl, p.err = template.ParseFS(p.frontend, "index.html")
	})
	if p.err != nil {
		p.logger.ErrorContext(r.Context(), "Index page unavailable", slog.String("error", p.err.Error()))
		http.Error(w, "Main application page not found", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	if err := p.tmpl.Execute(w, p.data); err != nil {
		p.logger.ErrorContext(r.Context(), "Failed to render index page", slog.String("error", err.Error()))
	}
}
