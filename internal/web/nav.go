package web

import (
	"net/http"
	"net/url"

	"github.com/starford/biddge/internal/session"
)

type navItem struct {
	Name   string
	Path   string
	Active bool
}

var navItems = []navItem{
	{Name: "Home", Path: "/"},
	{Name: "About", Path: "/about"},
	{Name: "Communities", Path: "/communities"},
	{Name: "Membership", Path: "/membership"},
	{Name: "Events", Path: "/events"},
	{Name: "Careers", Path: "/careers"},
}

// navData drives the navigation bar. IsOpen is the mobile menu state, kept
// in the menu=open query parameter so the toggle works without scripts.
type navData struct {
	Items     []navItem
	IsOpen    bool
	ToggleURL string
	Session   *session.Session
}

func buildNav(r *http.Request, s *session.Session) navData {
	items := make([]navItem, len(navItems))
	copy(items, navItems)
	for i := range items {
		items[i].Active = items[i].Path == r.URL.Path
	}

	q := r.URL.Query()
	open := q.Get("menu") == "open"
	if open {
		q.Del("menu")
	} else {
		q.Set("menu", "open")
	}
	toggle := url.URL{Path: r.URL.Path, RawQuery: q.Encode()}

	return navData{
		Items:     items,
		IsOpen:    open,
		ToggleURL: toggle.String(),
		Session:   s,
	}
}

// pageData is the root value every template receives.
type pageData struct {
	Title   string
	Nav     navData
	Session *session.Session
	// Self is the current path, used as the return target of login links.
	Self string
	Data any
}

func newPageData(r *http.Request, title string, data any) *pageData {
	s := session.FromContext(r.Context())
	return &pageData{
		Title:   title,
		Nav:     buildNav(r, s),
		Session: s,
		Self:    r.URL.Path,
		Data:    data,
	}
}
