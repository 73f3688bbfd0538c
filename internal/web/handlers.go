package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/biddge/internal/apperr"
	"github.com/starford/biddge/internal/checksum"
	"github.com/starford/biddge/internal/community"
	"github.com/starford/biddge/internal/content"
	"github.com/starford/biddge/internal/models"
	"github.com/starford/biddge/internal/session"
)

// JoinPublisher is notified after a successful join.
type JoinPublisher interface {
	PublishJoin(id string)
}

// Handler holds page handlers.
type Handler struct {
	svc      *community.Service
	pages    *content.Pages
	sessions *session.Store
	events   JoinPublisher
	loginURL string
	rd       *renderer
}

// Options configures NewHandler.
type Options struct {
	Service  *community.Service
	Pages    *content.Pages
	Sessions *session.Store
	// Events may be nil.
	Events JoinPublisher
	// LoginURL is the external sign-in page; empty hides the sign-in button.
	LoginURL string
}

// NewHandler creates a new Handler and parses the templates.
func NewHandler(opts Options) (*Handler, error) {
	rd, err := newRenderer()
	if err != nil {
		return nil, err
	}
	return &Handler{
		svc:      opts.Service,
		pages:    opts.Pages,
		sessions: opts.Sessions,
		events:   opts.Events,
		loginURL: opts.LoginURL,
		rd:       rd,
	}, nil
}

type homeView struct {
	Featured community.FeaturedResult
}

// Home handles GET /.
func (h *Handler) Home(w http.ResponseWriter, r *http.Request) {
	res := h.svc.Featured(r.Context())
	status := http.StatusOK
	if res.Failed() {
		status = http.StatusBadGateway
	}
	h.rd.render(w, status, "home", newPageData(r, "A better you every day", homeView{Featured: res}))
}

type listView struct {
	Query    string
	All      []models.Community
	Filtered []models.Community
	Error    string
}

// Communities handles GET /communities?q=.
func (h *Handler) Communities(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("q")
	res := h.svc.List(r.Context())
	view := listView{Query: query}
	status := http.StatusOK
	if res.Err != nil {
		view.Error = res.Message
		status = http.StatusBadGateway
	} else {
		view.All = res.Communities
		view.Filtered = community.Filter(res.Communities, query)
	}
	h.rd.render(w, status, "communities", newPageData(r, "Communities", view))
}

type detailView struct {
	Community *models.Community
	Error     string
	NotFound  bool
	Notice    string
	NoticeErr bool
}

// Join outcome query values.
const (
	joinOK      = "ok"
	joinFailed  = "failed"
	joinExpired = "expired"
)

// CommunityDetail handles GET /communities/{id}.
func (h *Handler) CommunityDetail(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	res := h.svc.Get(r.Context(), id)

	view := detailView{Community: res.Community}
	switch r.URL.Query().Get("join") {
	case joinOK:
		view.Notice = "You joined this community."
	case joinFailed:
		view.Notice, view.NoticeErr = community.MsgJoinFailed, true
	case joinExpired:
		view.Notice, view.NoticeErr = community.MsgJoinSignedOut, true
	}

	status := http.StatusOK
	title := "Community"
	switch {
	case errors.Is(res.Err, apperr.ErrNotFound):
		status, view.Error, view.NotFound = http.StatusNotFound, res.Message, true
	case res.Err != nil:
		status, view.Error = http.StatusBadGateway, res.Message
	default:
		title = res.Community.Name
	}
	h.rd.render(w, status, "detail", newPageData(r, title, view))
}

// Join handles POST /communities/{id}/join. Signed-out visitors get a full
// redirect to the login page; everyone else comes back to the detail page,
// which fetches the community again whatever the outcome.
func (h *Handler) Join(w http.ResponseWriter, r *http.Request) {
	id := idParam(r)
	res := h.svc.Join(r.Context(), session.FromContext(r.Context()), id)
	if res.RedirectTo != "" {
		http.Redirect(w, r, res.RedirectTo, http.StatusSeeOther)
		return
	}

	outcome := joinOK
	switch {
	case errors.Is(res.Err, apperr.ErrUnauthorized):
		outcome = joinExpired
	case res.Err != nil:
		outcome = joinFailed
	case h.events != nil:
		h.events.PublishJoin(id)
	}
	http.Redirect(w, r, community.DetailPath(id)+"?join="+outcome, http.StatusSeeOther)
}

// idParam returns the decoded {id} segment, matching the ids the API returns.
func idParam(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	id, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return id
}

// Logout handles GET and POST /logout.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	h.sessions.Clear(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

type contentView struct {
	Page *content.Page
}

// ContentPage serves one of the Markdown pages.
func (h *Handler) ContentPage(slug string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		page, err := h.pages.Get(slug)
		if err != nil {
			slog.Error("content page failed", slog.String("slug", slug), slog.String("error", err.Error()))
			h.renderError(w, r, http.StatusNotFound, "Page not found", "")
			return
		}
		// The navigation depends on the viewer and the menu state, so the tag covers them too.
		etag := checksum.ETag(page.Checksum, viewerKey(r), r.URL.RawQuery)
		w.Header().Set("ETag", etag)
		if checksum.Match(r.Header.Get("If-None-Match"), etag) {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		h.rd.render(w, http.StatusOK, "content", newPageData(r, page.Title, contentView{Page: page}))
	}
}

func viewerKey(r *http.Request) string {
	s := session.FromContext(r.Context())
	if s == nil {
		return "anonymous"
	}
	return fmt.Sprintf("%s:%t", s.User.Name, s.User.IsCreator)
}

type loginView struct {
	Page      *content.Page
	From      string
	SignInURL string
}

// Login handles GET /login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	from := safeReturnPath(r.URL.Query().Get("from"))
	page, err := h.pages.Get("login")
	if err != nil {
		slog.Error("login copy failed", slog.String("error", err.Error()))
	}
	view := loginView{Page: page, From: from}
	if h.loginURL != "" {
		if u, err := url.Parse(h.loginURL); err != nil {
			slog.Error("login url invalid", slog.String("error", err.Error()))
		} else {
			q := u.Query()
			q.Set("redirect_uri", "/login/callback?from="+url.QueryEscape(from))
			u.RawQuery = q.Encode()
			view.SignInURL = u.String()
		}
	}
	h.rd.render(w, http.StatusOK, "login", newPageData(r, "Log in", view))
}

type callbackInput struct {
	Token string
	User  string
}

func (in *callbackInput) Validate() error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Token, validation.Required),
		validation.Field(&in.User, validation.Required, validation.By(func(v any) error {
			var obj map[string]json.RawMessage
			if err := json.Unmarshal([]byte(v.(string)), &obj); err != nil || obj == nil {
				return errors.New("must be a JSON object")
			}
			return nil
		})),
	)
}

// LoginCallback handles GET /login/callback, the hand-off from the external
// sign-in flow. It stores the session and returns to the original page.
func (h *Handler) LoginCallback(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	in := callbackInput{Token: q.Get("token"), User: q.Get("user")}
	if err := in.Validate(); err != nil {
		slog.Warn("login callback rejected", slog.String("error", err.Error()))
		h.renderError(w, r, http.StatusBadRequest, "Login failed", "The sign-in response was incomplete. Please try again.")
		return
	}
	var u models.User
	if err := json.Unmarshal([]byte(in.User), &u); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Login failed", "The sign-in response was incomplete. Please try again.")
		return
	}
	if err := h.sessions.Save(w, session.Session{Token: in.Token, User: u}); err != nil {
		slog.Error("save session failed", slog.String("error", err.Error()))
		h.renderError(w, r, http.StatusInternalServerError, "Login failed", "")
		return
	}
	http.Redirect(w, r, safeReturnPath(q.Get("from")), http.StatusSeeOther)
}

// safeReturnPath keeps redirects inside the app.
func safeReturnPath(from string) string {
	if !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.HasPrefix(from, "/\\") {
		return "/"
	}
	return from
}

type createView struct {
	Input  community.CreateInput
	Errors map[string]string
	Error  string
}

// CreateCommunityForm handles GET /create-community.
func (h *Handler) CreateCommunityForm(w http.ResponseWriter, r *http.Request) {
	h.rd.render(w, http.StatusOK, "create", newPageData(r, "Create a community", createView{}))
}

// CreateCommunity handles POST /create-community.
func (h *Handler) CreateCommunity(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := r.ParseForm(); err != nil {
		h.renderError(w, r, http.StatusBadRequest, "Invalid form", "")
		return
	}
	in := community.CreateInput{
		Name:        strings.TrimSpace(r.PostFormValue("name")),
		Description: strings.TrimSpace(r.PostFormValue("description")),
		Category:    strings.TrimSpace(r.PostFormValue("category")),
		ImageURL:    strings.TrimSpace(r.PostFormValue("image_url")),
	}

	created, err := h.svc.Create(r.Context(), session.FromContext(r.Context()), in)
	if err != nil {
		view := createView{Input: in}
		status := http.StatusBadGateway
		var verrs validation.Errors
		switch {
		case errors.As(err, &verrs):
			status = http.StatusUnprocessableEntity
			view.Errors = make(map[string]string, len(verrs))
			for field, e := range verrs {
				view.Errors[field] = e.Error()
			}
		case errors.Is(err, apperr.ErrUnauthorized):
			status = http.StatusForbidden
			view.Error = "Only creators can create communities."
		default:
			view.Error = "Could not create the community. Please try again."
		}
		h.rd.render(w, status, "create", newPageData(r, "Create a community", view))
		return
	}
	http.Redirect(w, r, community.DetailPath(created.ID), http.StatusSeeOther)
}

type dashboardView struct {
	Communities []models.Community
	Error       string
}

// CreatorDashboard handles GET /creator-dashboard.
func (h *Handler) CreatorDashboard(w http.ResponseWriter, r *http.Request) {
	s := session.FromContext(r.Context())
	res := h.svc.ListByCreator(r.Context(), s.User.Name)
	view := dashboardView{Communities: res.Communities, Error: res.Message}
	status := http.StatusOK
	if res.Err != nil {
		status = http.StatusBadGateway
	}
	h.rd.render(w, status, "dashboard", newPageData(r, "Creator dashboard", view))
}

type errorView struct {
	Heading string
	Detail  string
}

// NotFound renders the 404 page.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	h.renderError(w, r, http.StatusNotFound, "Page not found", "")
}

func (h *Handler) renderError(w http.ResponseWriter, r *http.Request, status int, heading, detail string) {
	h.rd.render(w, status, "error", newPageData(r, heading, errorView{Heading: heading, Detail: detail}))
}
