// Package web renders the Biddge pages using chi and html/template.
package web

import (
	"net/http"

	"github.com/starford/biddge/internal/community"
	"github.com/starford/biddge/internal/session"
)

// RequireSession redirects signed-out visitors to the login page, which
// brings them back to the requested path afterwards.
func RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.FromContext(r.Context()).Has(session.CapabilityAuthenticated) {
			http.Redirect(w, r, community.LoginRedirect(r.URL.Path), http.StatusSeeOther)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireCreator is RequireSession plus a 403 page for signed-in members
// without the creator flag.
func (h *Handler) RequireCreator(next http.Handler) http.Handler {
	return RequireSession(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !session.FromContext(r.Context()).Has(session.CapabilityCreator) {
			h.renderError(w, r, http.StatusForbidden, "Creator account required",
				"Only creators can open this page.")
			return
		}
		next.ServeHTTP(w, r)
	}))
}
