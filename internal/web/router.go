package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Content page slugs mounted at /<slug>.
var contentSlugs = []string{"about", "membership", "events", "careers"}

// NewRouter creates a chi router with every page route mounted.
// stream, if non-nil, is mounted at /events/stream for GET and CORS preflight.
func NewRouter(h *Handler, stream http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(h.sessions.Middleware)
	r.NotFound(h.NotFound)

	r.Get("/", h.Home)
	r.Get("/login", h.Login)
	r.Get("/login/callback", h.LoginCallback)
	r.Get("/logout", h.Logout)
	r.Post("/logout", h.Logout)
	for _, slug := range contentSlugs {
		r.Get("/"+slug, h.ContentPage(slug))
	}

	r.Get("/communities", h.Communities)
	r.Get("/communities/{id}", h.CommunityDetail)
	r.Post("/communities/{id}/join", h.Join)

	r.Group(func(r chi.Router) {
		r.Use(RequireSession)
		r.Get("/create-community", h.CreateCommunityForm)
		r.Post("/create-community", h.CreateCommunity)
	})
	r.With(h.RequireCreator).Get("/creator-dashboard", h.CreatorDashboard)

	if stream != nil {
		r.Get("/events/stream", stream.ServeHTTP)
		r.Options("/events/stream", stream.ServeHTTP)
	}
	r.Handle("/static/*", staticHandler())

	return r
}
