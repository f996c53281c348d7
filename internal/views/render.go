package views

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/rs/zerolog/log"

	"github.com/ziadkadry99/opsdash/internal/apiclient"
	"github.com/ziadkadry99/opsdash/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

// LayoutData is what the base layout renders around a page.
type LayoutData struct {
	Title           string
	ViewName        string
	Nav             []NavItem
	User            *apiclient.Profile
	Initials        string
	Flash           *session.Flash
	Error           *ErrorPanel
	GrafanaOverride string
	Page            any
}

// ErrorPanel is a visible, view-scoped error.
type ErrorPanel struct {
	Title   string
	Message string
}

// NewErrorPanel describes err for display. Backend failures get a
// title per error kind.
func NewErrorPanel(err error) *ErrorPanel {
	if err == nil {
		return nil
	}
	p := &ErrorPanel{Title: "Something went wrong", Message: err.Error()}
	var apiErr *apiclient.Error
	if errors.As(err, &apiErr) {
		switch apiErr.Kind {
		case apiclient.KindNetwork:
			p.Title = "Backend unreachable"
		case apiclient.KindAuth:
			p.Title = "Not authorized"
		case apiclient.KindServer:
			p.Title = "Backend error"
		case apiclient.KindClient:
			p.Title = "Request rejected"
		case apiclient.KindDecode:
			p.Title = "Unexpected response"
		}
		if apiErr.Message != "" {
			p.Message = apiErr.Message
		}
	}
	return p
}

// Renderer executes the embedded templates.
type Renderer struct {
	pages map[string]*template.Template
	login *template.Template
}

// NewRenderer parses the layout and every page template.
func NewRenderer() (*Renderer, error) {
	return newRenderer(templatesFS)
}

func newRenderer(fsys fs.FS) (*Renderer, error) {
	base, err := template.New("").Funcs(templateFuncs()).ParseFS(fsys, "templates/layout.html", "templates/partials.html")
	if err != nil {
		return nil, fmt.Errorf("parsing layout: %w", err)
	}

	names, err := fs.Glob(fsys, "templates/page_*.html")
	if err != nil {
		return nil, err
	}
	r := &Renderer{pages: make(map[string]*template.Template, len(names))}
	for _, path := range names {
		// Each page gets its own clone so "content" blocks don't collide.
		tmpl, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("clone layout: %w", err)
		}
		if _, err := tmpl.ParseFS(fsys, path); err != nil {
			return nil, fmt.Errorf("parse page template %s: %w", path, err)
		}
		name := strings.TrimSuffix(strings.TrimPrefix(path, "templates/page_"), ".html")
		r.pages[name] = tmpl
	}

	r.login, err = template.New("").Funcs(templateFuncs()).ParseFS(fsys, "templates/login.html")
	if err != nil {
		return nil, fmt.Errorf("parsing login template: %w", err)
	}
	return r, nil
}

// Render writes a full page. page names a page_<page>.html template.
func (r *Renderer) Render(w http.ResponseWriter, status int, page string, data LayoutData) {
	tmpl, ok := r.pages[page]
	if !ok {
		log.Error().Str("template", page).Msg("unknown page template")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	r.execute(w, status, tmpl, "base", data)
}

// ConfirmDelete is the model of the uninstall confirmation page.
type ConfirmDelete struct {
	Version string
}

// LoginData is the model of the login page.
type LoginData struct {
	Email string
	Error string
}

// RenderLogin writes the standalone login page.
func (r *Renderer) RenderLogin(w http.ResponseWriter, status int, data LoginData) {
	r.execute(w, status, r.login, "login", data)
}

func (r *Renderer) execute(w http.ResponseWriter, status int, tmpl *template.Template, name string, data any) {
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		log.Error().Err(err).Str("template", name).Msg("rendering template")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// Initials is the badge text for a user: the first letter of the name,
// else of the email, else "U".
func Initials(p *apiclient.Profile) string {
	if p != nil {
		for _, s := range []string{p.Name, p.Email} {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			r, _ := utf8.DecodeRuneInString(s)
			return string(unicode.ToUpper(r))
		}
	}
	return "U"
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatTime": formatTime,
		"viewURL":    ViewURL,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
