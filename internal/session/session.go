// Package session reads and clears the cookie-held login session.
//
// The session is a proof of login handed over by the external auth flow: an
// opaque token plus a cached user profile. Its presence alone means
// "logged in" for rendering purposes; nothing here validates the token.
package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/starford/biddge/internal/models"
)

// Cookie names.
const (
	TokenCookie = "token"
	UserCookie  = "user"
)

// Capability is a permission a gated action requires.
type Capability string

// Capabilities.
const (
	CapabilityAuthenticated Capability = "authenticated"
	CapabilityCreator       Capability = "creator"
)

// Session is the token and cached user profile.
type Session struct {
	Token string
	User  models.User
}

// Has reports whether the session grants cap. A nil session grants nothing.
func (s *Session) Has(cap Capability) bool {
	if s == nil {
		return false
	}
	switch cap {
	case CapabilityAuthenticated:
		return true
	case CapabilityCreator:
		return s.User.IsCreator
	}
	return false
}

// Store reads and writes the session cookies.
type Store struct {
	secure bool
	maxAge time.Duration
	logger *slog.Logger
}

// NewStore creates a Store. maxAge <= 0 writes browser-session cookies.
func NewStore(secure bool, maxAge time.Duration, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{secure: secure, maxAge: maxAge, logger: logger}
}

// Read returns the session carried by r, or nil when either cookie is missing
// or the user value cannot be parsed.
func (st *Store) Read(r *http.Request) *Session {
	tok, err := r.Cookie(TokenCookie)
	if err != nil || tok.Value == "" {
		return nil
	}
	uc, err := r.Cookie(UserCookie)
	if err != nil || uc.Value == "" {
		return nil
	}
	raw, err := url.QueryUnescape(uc.Value)
	if err != nil {
		st.logger.Warn("session: user cookie unescape failed", slog.String("error", err.Error()))
		return nil
	}
	var u models.User
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		st.logger.Warn("session: user cookie parse failed", slog.String("error", err.Error()))
		return nil
	}
	return &Session{Token: tok.Value, User: u}
}

// Save writes both cookies.
func (st *Store) Save(w http.ResponseWriter, s Session) error {
	data, err := json.Marshal(s.User)
	if err != nil {
		return err
	}
	http.SetCookie(w, st.cookie(TokenCookie, s.Token))
	http.SetCookie(w, st.cookie(UserCookie, url.QueryEscape(string(data))))
	return nil
}

// Clear expires both cookies.
func (st *Store) Clear(w http.ResponseWriter) {
	for _, name := range []string{TokenCookie, UserCookie} {
		c := st.cookie(name, "")
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (st *Store) cookie(name, value string) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
	}
	if st.maxAge > 0 {
		c.MaxAge = int(st.maxAge.Seconds())
	}
	return c
}

type ctxKey struct{}

// Middleware reads the session once per request and stores it in the context.
func (st *Store) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s := st.Read(r); s != nil {
			r = r.WithContext(WithSession(r.Context(), s))
		}
		next.ServeHTTP(w, r)
	})
}

// WithSession returns a context carrying s.
func WithSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxKey{}, s)
}

// FromContext returns the request session, or nil when signed out.
func FromContext(ctx context.Context) *Session {
	s, _ := ctx.Value(ctxKey{}).(*Session)
	return s
}
