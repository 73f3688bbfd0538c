package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/starford/biddge/internal/community"
	"github.com/starford/biddge/internal/session"
)

//go:embed templates/*.html
var templatesFS embed.FS

//go:embed static
var staticFS embed.FS

// Page templates; each is parsed together with the shared partials.
var pageNames = []string{
	"home", "communities", "detail", "content", "login",
	"create", "dashboard", "error",
}

var sharedFiles = []string{"templates/layout.html", "templates/nav.html", "templates/card.html", "templates/gated.html"}

// GatedAction is a call-to-action that needs a capability. When the viewer
// lacks it the link sends them to log in and come back to Target.
type GatedAction struct {
	Href    string
	Label   string
	Class   string
	Allowed bool
}

// gated builds a GatedAction. fallbackLabel is shown when the viewer lacks cap;
// an empty fallbackLabel reuses label.
func gated(s *session.Session, capability, target, label, fallbackLabel, class string) GatedAction {
	a := GatedAction{Href: target, Label: label, Class: class, Allowed: s.Has(session.Capability(capability))}
	if !a.Allowed {
		a.Href = community.LoginRedirect(target)
		if fallbackLabel != "" {
			a.Label = fallbackLabel
		}
	}
	return a
}

var funcs = template.FuncMap{
	"gated":      gated,
	"detailPath": community.DetailPath,
	"loginPath":  community.LoginRedirect,
}

// renderer holds one parsed template set per page.
type renderer struct {
	pages map[string]*template.Template
}

func newRenderer() (*renderer, error) {
	r := &renderer{pages: make(map[string]*template.Template, len(pageNames))}
	for _, name := range pageNames {
		files := append([]string{"templates/" + name + ".html"}, sharedFiles...)
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS, files...)
		if err != nil {
			return nil, fmt.Errorf("web: parse %s: %w", name, err)
		}
		r.pages[name] = t
	}
	return r, nil
}

// render executes page into a buffer first so template errors become a clean 500.
func (rd *renderer) render(w http.ResponseWriter, status int, page string, data *pageData) {
	t, ok := rd.pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		slog.Error("render failed", slog.String("page", page), slog.String("error", err.Error()))
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func staticHandler() http.Handler {
	sub, _ := fs.Sub(staticFS, "static")
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}
