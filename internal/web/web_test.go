package web

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/biddge/internal/apiclient"
	"github.com/starford/biddge/internal/community"
	"github.com/starford/biddge/internal/content"
	"github.com/starford/biddge/internal/models"
	"github.com/starford/biddge/internal/session"
	"github.com/starford/biddge/internal/testutil"
)

type recordingPublisher struct {
	mu  sync.Mutex
	ids []string
}

func (p *recordingPublisher) PublishJoin(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ids = append(p.ids, id)
}

func (p *recordingPublisher) joined() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.ids...)
}

type testEnv struct {
	api    *testutil.FakeAPI
	router http.Handler
	events *recordingPublisher
}

func newTestEnv(t *testing.T, communities ...models.Community) *testEnv {
	t.Helper()
	return newTestEnvWithLogin(t, "https://auth.example.com/signin", communities...)
}

func newTestEnvWithLogin(t *testing.T, loginURL string, communities ...models.Community) *testEnv {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	api := testutil.NewFakeAPI(t, communities...)
	svc := community.NewService(apiclient.New(api.URL(), time.Second), logger)
	events := &recordingPublisher{}

	h, err := NewHandler(Options{
		Service:  svc,
		Pages:    content.NewPages(nil, logger),
		Sessions: session.NewStore(false, 0, logger),
		Events:   events,
		LoginURL: loginURL,
	})
	if err != nil {
		t.Fatalf("NewHandler: %v", err)
	}
	return &testEnv{api: api, router: NewRouter(h, nil), events: events}
}

func (e *testEnv) do(t *testing.T, method, target string, s *session.Session, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}
	req := httptest.NewRequest(method, target, body)
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	if s != nil {
		data, _ := json.Marshal(s.User)
		req.AddCookie(&http.Cookie{Name: session.TokenCookie, Value: s.Token})
		req.AddCookie(&http.Cookie{Name: session.UserCookie, Value: url.QueryEscape(string(data))})
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

var (
	member  = &session.Session{Token: "tok-m", User: models.User{Name: "Mia"}}
	creator = &session.Session{Token: "tok-c", User: models.User{Name: "Ana", IsCreator: true}}
)

func seed() []models.Community {
	return []models.Community{
		{ID: "1", Name: "Yoga", Category: "Wellness", CreatorName: "Ana"},
		{ID: "2", Name: "Coding", Category: "Tech"},
	}
}

func TestHome_FeaturedGrid(t *testing.T) {
	env := newTestEnv(t, seed()...)
	env.api.Featured = seed()[:1]

	w := env.do(t, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Yoga") || strings.Contains(body, "Coding") {
		t.Errorf("featured grid wrong: %s", body)
	}
	if !strings.Contains(body, `href="/login?from=/create-community"`) {
		t.Error("anonymous create CTA should point at login")
	}
	if !strings.Contains(body, "Register as Creator") {
		t.Error("anonymous viewers should see Register as Creator")
	}
}

func TestHome_CreatorSeesCreateLink(t *testing.T) {
	env := newTestEnv(t, seed()...)
	w := env.do(t, http.MethodGet, "/", creator, nil)
	body := w.Body.String()
	if !strings.Contains(body, `href="/create-community"`) {
		t.Error("creator should get a direct create link")
	}
	if strings.Contains(body, "Register as Creator") {
		t.Error("creator should not be asked to register")
	}
	if !strings.Contains(body, "Ana") || !strings.Contains(body, "Logout") {
		t.Error("nav should show the user name and logout")
	}
}

func TestHome_FallbackTruncates(t *testing.T) {
	var many []models.Community
	for i := 0; i < 9; i++ {
		many = append(many, models.Community{ID: string(rune('a' + i)), Name: "Community-" + string(rune('a'+i))})
	}
	env := newTestEnv(t, many...)
	env.api.FeaturedStatus = http.StatusInternalServerError

	w := env.do(t, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if got := strings.Count(w.Body.String(), `class="card"`); got != community.FeaturedFallbackLimit {
		t.Errorf("cards = %d, want %d", got, community.FeaturedFallbackLimit)
	}
	if env.api.Count(http.MethodGet, "/communities") != 1 {
		t.Error("fallback list should have been fetched once")
	}
}

func TestHome_FallbackFailureShowsTryAgain(t *testing.T) {
	env := newTestEnv(t, seed()...)
	env.api.FeaturedStatus = http.StatusInternalServerError
	env.api.ListStatus = http.StatusInternalServerError

	w := env.do(t, http.MethodGet, "/", nil, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, community.MsgListFailed) || !strings.Contains(body, "Try Again") {
		t.Errorf("body = %s", body)
	}
}

func TestCommunities_Filter(t *testing.T) {
	env := newTestEnv(t, seed()...)
	w := env.do(t, http.MethodGet, "/communities?q=yo", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `href="/communities/1"`) || strings.Contains(body, `href="/communities/2"`) {
		t.Errorf("filter result wrong: %s", body)
	}
	if !strings.Contains(body, `value="yo"`) {
		t.Error("query should be echoed into the search box")
	}
}

func TestCommunities_EmptyState(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/communities", creator, nil)
	body := w.Body.String()
	if !strings.Contains(body, "No communities yet") {
		t.Errorf("expected empty state: %s", body)
	}
	if !strings.Contains(body, "Create the first community") {
		t.Error("creator should get the create call-to-action")
	}
	if strings.Contains(body, `class="grid"`) {
		t.Error("empty list must not render a grid")
	}
}

func TestCommunities_Error(t *testing.T) {
	env := newTestEnv(t, seed()...)
	env.api.ListStatus = http.StatusInternalServerError
	w := env.do(t, http.MethodGet, "/communities", nil, nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), community.MsgListFailed) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestDetail_NotFound(t *testing.T) {
	env := newTestEnv(t, seed()...)
	w := env.do(t, http.MethodGet, "/communities/999", nil, nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "Community not found") {
		t.Errorf("body = %s", w.Body.String())
	}
	if n := len(env.api.Requests()); n != 1 {
		t.Errorf("requests = %d, want 1", n)
	}
}

func TestDetail_AnonymousSeesLoginToJoin(t *testing.T) {
	env := newTestEnv(t, seed()...)
	w := env.do(t, http.MethodGet, "/communities/1", nil, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Login to Join") || !strings.Contains(body, `href="/login?from=/communities/1"`) {
		t.Errorf("body = %s", body)
	}
	if !strings.Contains(body, "Biddge Team") && !strings.Contains(body, "Ana") {
		t.Error("creator attribution missing")
	}
}

func TestJoin_AnonymousRedirectsWithoutRequest(t *testing.T) {
	env := newTestEnv(t, seed()...)
	w := env.do(t, http.MethodPost, "/communities/1/join", nil, nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", w.Code)
	}
	if loc := w.Header().Get("Location"); loc != "/login?from=/communities/1" {
		t.Errorf("Location = %q", loc)
	}
	if len(env.api.Requests()) != 0 {
		t.Errorf("no API request expected: %+v", env.api.Requests())
	}
}

func TestJoin_WithSessionRefetches(t *testing.T) {
	env := newTestEnv(t, seed()...)
	w := env.do(t, http.MethodPost, "/communities/1/join", member, nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d", w.Code)
	}
	loc := w.Header().Get("Location")
	if loc != "/communities/1?join=ok" {
		t.Fatalf("Location = %q", loc)
	}
	reqs := env.api.Requests()
	if len(reqs) != 1 || reqs[0].Authorization != "Bearer tok-m" {
		t.Fatalf("requests = %+v", reqs)
	}
	if got := env.events.joined(); len(got) != 1 || got[0] != "1" {
		t.Errorf("published = %v", got)
	}

	w = env.do(t, http.MethodGet, loc, member, nil)
	body := w.Body.String()
	if !strings.Contains(body, "You joined this community.") {
		t.Error("join notice missing")
	}
	if !strings.Contains(body, `data-members>1<`) {
		t.Errorf("member count should come from the re-fetch: %s", body)
	}
}

func TestJoin_AnonymousEscapesReturnPath(t *testing.T) {
	env := newTestEnv(t, models.Community{ID: "a&b", Name: "Ampersand"})
	w := env.do(t, http.MethodPost, "/communities/a&b/join", nil, nil)
	loc := w.Header().Get("Location")
	if loc != "/login?from=/communities/a%26b" {
		t.Fatalf("Location = %q", loc)
	}
	u, err := url.Parse(loc)
	if err != nil {
		t.Fatal(err)
	}
	if got := u.Query().Get("from"); got != "/communities/a&b" {
		t.Errorf("from = %q", got)
	}
}

func TestJoin_EscapedIDPublishesDecodedID(t *testing.T) {
	env := newTestEnv(t, models.Community{ID: "a/b", Name: "Slash"})
	w := env.do(t, http.MethodPost, "/communities/a%2Fb/join", member, nil)
	if loc := w.Header().Get("Location"); loc != "/communities/a%2Fb?join=ok" {
		t.Fatalf("Location = %q", loc)
	}
	if got := env.events.joined(); len(got) != 1 || got[0] != "a/b" {
		t.Errorf("published = %v, want the id the detail page renders", got)
	}

	w = env.do(t, http.MethodGet, "/communities/a%2Fb", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "Slash") {
		t.Errorf("detail status = %d", w.Code)
	}
}

func TestJoin_FailureIsShown(t *testing.T) {
	env := newTestEnv(t, seed()...)
	env.api.JoinStatus = http.StatusInternalServerError

	w := env.do(t, http.MethodPost, "/communities/1/join", member, nil)
	loc := w.Header().Get("Location")
	if loc != "/communities/1?join=failed" {
		t.Fatalf("Location = %q", loc)
	}
	if len(env.events.joined()) != 0 {
		t.Error("failed join must not be published")
	}
	w = env.do(t, http.MethodGet, loc, member, nil)
	if !strings.Contains(w.Body.String(), community.MsgJoinFailed) {
		t.Errorf("body = %s", w.Body.String())
	}
}

func TestLogout_ClearsCookies(t *testing.T) {
	env := newTestEnv(t)
	for _, method := range []string{http.MethodPost, http.MethodGet} {
		w := env.do(t, method, "/logout", member, nil)
		if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/" {
			t.Fatalf("%s: status = %d, Location = %q", method, w.Code, w.Header().Get("Location"))
		}
		cleared := 0
		for _, c := range w.Result().Cookies() {
			if (c.Name == session.TokenCookie || c.Name == session.UserCookie) && c.MaxAge < 0 {
				cleared++
			}
		}
		if cleared != 2 {
			t.Errorf("%s: cleared cookies = %d", method, cleared)
		}
	}
}

func TestNav_MobileMenuToggle(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/about", nil, nil)
	body := w.Body.String()
	if strings.Contains(body, "nav-mobile") {
		t.Error("menu should start closed")
	}
	if !strings.Contains(body, `href="/about?menu=open"`) {
		t.Error("toggle should open the menu")
	}

	w = env.do(t, http.MethodGet, "/about?menu=open", nil, nil)
	body = w.Body.String()
	if !strings.Contains(body, "nav-mobile") {
		t.Error("menu should be open")
	}
	if !strings.Contains(body, `href="/about"`) {
		t.Error("toggle should close the menu")
	}
}

func TestContentPages(t *testing.T) {
	env := newTestEnv(t)
	for _, p := range []string{"/about", "/membership", "/events", "/careers"} {
		w := env.do(t, http.MethodGet, p, nil, nil)
		if w.Code != http.StatusOK {
			t.Errorf("%s status = %d", p, w.Code)
		}
		etag := w.Header().Get("ETag")
		if etag == "" {
			t.Errorf("%s missing ETag", p)
			continue
		}
		req := httptest.NewRequest(http.MethodGet, p, nil)
		req.Header.Set("If-None-Match", etag)
		rec := httptest.NewRecorder()
		env.router.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotModified {
			t.Errorf("%s conditional status = %d", p, rec.Code)
		}
	}
}

func TestLogin_PreservesFrom(t *testing.T) {
	env := newTestEnv(t)
	w := env.do(t, http.MethodGet, "/login?from=/communities/1", nil, nil)
	body := w.Body.String()
	want := "https://auth.example.com/signin?redirect_uri=" + url.QueryEscape("/login/callback?from="+url.QueryEscape("/communities/1"))
	if !strings.Contains(body, strings.ReplaceAll(want, "&", "&amp;")) {
		t.Errorf("sign-in link missing, body = %s", body)
	}
}

func TestLogin_KeepsLoginURLQuery(t *testing.T) {
	env := newTestEnvWithLogin(t, "https://auth.example.com/signin?client=web")
	w := env.do(t, http.MethodGet, "/login?from=/communities/1", nil, nil)
	callback := "/login/callback?from=" + url.QueryEscape("/communities/1")
	want := "https://auth.example.com/signin?client=web&amp;redirect_uri=" + url.QueryEscape(callback)
	if !strings.Contains(w.Body.String(), want) {
		t.Errorf("sign-in link missing %q, body = %s", want, w.Body.String())
	}
}

func TestLoginCallback(t *testing.T) {
	env := newTestEnv(t)
	q := url.Values{
		"token": {"tok"},
		"user":  {`{"name":"Ana","is_creator":true}`},
		"from":  {"/communities/1"},
	}
	w := env.do(t, http.MethodGet, "/login/callback?"+q.Encode(), nil, nil)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/communities/1" {
		t.Fatalf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
	names := map[string]bool{}
	for _, c := range w.Result().Cookies() {
		names[c.Name] = c.Value != ""
	}
	if !names[session.TokenCookie] || !names[session.UserCookie] {
		t.Errorf("cookies = %v", names)
	}

	q.Set("from", "//evil.example.com")
	w = env.do(t, http.MethodGet, "/login/callback?"+q.Encode(), nil, nil)
	if w.Header().Get("Location") != "/" {
		t.Errorf("open redirect: Location = %q", w.Header().Get("Location"))
	}

	q.Set("user", "null")
	w = env.do(t, http.MethodGet, "/login/callback?"+q.Encode(), nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("null user status = %d", w.Code)
	}
	for _, c := range w.Result().Cookies() {
		if c.Name == session.TokenCookie && c.Value != "" {
			t.Error("null user must not store a session")
		}
	}

	q.Set("user", `{"name":"Ana"}`)
	q.Del("token")
	w = env.do(t, http.MethodGet, "/login/callback?"+q.Encode(), nil, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing token status = %d", w.Code)
	}
}

func TestCreateCommunity_Guards(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/create-community", nil, nil)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/login?from=/create-community" {
		t.Fatalf("anonymous: status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}

	w = env.do(t, http.MethodGet, "/create-community", member, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("member: status = %d", w.Code)
	}

	form := url.Values{"name": {"Chess"}, "description": {"Openings and endgames"}}
	w = env.do(t, http.MethodPost, "/create-community", member, form)
	if w.Code != http.StatusForbidden {
		t.Errorf("member post status = %d", w.Code)
	}
}

func TestCreateCommunity_CreatorFlow(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/create-community", creator, url.Values{"name": {"x"}})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("invalid status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "field-error") {
		t.Error("validation errors should be rendered")
	}

	form := url.Values{"name": {"Chess"}, "description": {"Openings and endgames"}, "category": {"Games"}}
	w = env.do(t, http.MethodPost, "/create-community", creator, form)
	if w.Code != http.StatusSeeOther || w.Header().Get("Location") != "/communities/new-Chess" {
		t.Fatalf("status = %d, Location = %q", w.Code, w.Header().Get("Location"))
	}
}

func TestCreatorDashboard(t *testing.T) {
	env := newTestEnv(t, seed()...)

	w := env.do(t, http.MethodGet, "/creator-dashboard", nil, nil)
	if w.Code != http.StatusSeeOther {
		t.Fatalf("anonymous status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/creator-dashboard", member, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("member status = %d", w.Code)
	}
	w = env.do(t, http.MethodGet, "/creator-dashboard", creator, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("creator status = %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, "Yoga") || strings.Contains(body, "Coding") {
		t.Errorf("dashboard should list only Ana's communities: %s", body)
	}
}

func TestNotFoundAndStatic(t *testing.T) {
	env := newTestEnv(t)
	if w := env.do(t, http.MethodGet, "/nope", nil, nil); w.Code != http.StatusNotFound {
		t.Errorf("404 status = %d", w.Code)
	}
	w := env.do(t, http.MethodGet, "/static/app.css", nil, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "--primary") {
		t.Errorf("static status = %d", w.Code)
	}
}

func TestGated(t *testing.T) {
	a := gated(nil, "creator", "/create-community", "Create", "Register", "btn")
	if a.Allowed || a.Href != "/login?from=/create-community" || a.Label != "Register" {
		t.Errorf("anonymous = %+v", a)
	}
	a = gated(member, "authenticated", "/create-community", "Create", "", "btn")
	if !a.Allowed || a.Href != "/create-community" || a.Label != "Create" {
		t.Errorf("member authenticated = %+v", a)
	}
	a = gated(member, "creator", "/create-community", "Create", "", "btn")
	if a.Allowed || a.Label != "Create" {
		t.Errorf("member creator = %+v", a)
	}
}
