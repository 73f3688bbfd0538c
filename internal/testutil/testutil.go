// Package testutil provides a fake remote communities API for tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/starford/biddge/internal/models"
)

// Request is one call recorded by FakeAPI.
type Request struct {
	Method        string
	Path          string
	Authorization string
	Body          string
}

// FakeAPI is an in-memory stand-in for the remote API.
// Status fields override the response code of the matching endpoint when non-zero.
type FakeAPI struct {
	mu sync.Mutex

	Communities    []models.Community
	Featured       []models.Community
	ListStatus     int
	FeaturedStatus int
	DetailStatus   int
	JoinStatus     int
	CreateStatus   int

	requests []Request
	server   *httptest.Server
}

// NewFakeAPI starts a FakeAPI that is shut down when the test ends.
func NewFakeAPI(t *testing.T, communities ...models.Community) *FakeAPI {
	t.Helper()
	f := &FakeAPI{Communities: communities}

	r := chi.NewRouter()
	r.Get("/communities", f.list)
	r.Post("/communities", f.create)
	r.Get("/communities/featured", f.featured)
	r.Get("/communities/{id}", f.detail)
	r.Post("/communities/{id}/join", f.join)

	f.server = httptest.NewServer(f.record(r))
	t.Cleanup(f.server.Close)
	return f
}

// URL returns the base URL to configure the client with.
func (f *FakeAPI) URL() string {
	return f.server.URL
}

// Requests returns a copy of every call received so far.
func (f *FakeAPI) Requests() []Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]Request, len(f.requests))
	copy(out, f.requests)
	return out
}

// Count returns how many calls matched method and path.
func (f *FakeAPI) Count(method, path string) int {
	n := 0
	for _, r := range f.Requests() {
		if r.Method == method && r.Path == path {
			n++
		}
	}
	return n
}

// Set replaces a field under the lock; use it once handlers may be running.
func (f *FakeAPI) Set(fn func(f *FakeAPI)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	fn(f)
}

func (f *FakeAPI) record(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
		f.mu.Lock()
		f.requests = append(f.requests, Request{
			Method:        r.Method,
			Path:          r.URL.Path,
			Authorization: r.Header.Get("Authorization"),
			Body:          string(body),
		})
		f.mu.Unlock()
		next.ServeHTTP(w, r)
	})
}

func (f *FakeAPI) list(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	status, data := f.ListStatus, f.Communities
	f.mu.Unlock()
	respond(w, status, data)
}

func (f *FakeAPI) featured(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	status, data := f.FeaturedStatus, f.Featured
	f.mu.Unlock()
	respond(w, status, data)
}

func (f *FakeAPI) detail(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DetailStatus != 0 {
		respond(w, f.DetailStatus, nil)
		return
	}
	for _, c := range f.Communities {
		if c.ID == id {
			respond(w, 0, c)
			return
		}
	}
	respond(w, http.StatusNotFound, map[string]string{"detail": "Community not found"})
}

func (f *FakeAPI) join(w http.ResponseWriter, r *http.Request) {
	id := pathID(r)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.JoinStatus != 0 {
		respond(w, f.JoinStatus, nil)
		return
	}
	for i := range f.Communities {
		if f.Communities[i].ID == id {
			f.Communities[i].MemberCount++
			respond(w, 0, map[string]string{"status": "joined"})
			return
		}
	}
	respond(w, http.StatusNotFound, nil)
}

func (f *FakeAPI) create(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	status := f.CreateStatus
	f.mu.Unlock()
	if status != 0 {
		respond(w, status, nil)
		return
	}
	var c models.Community
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respond(w, http.StatusBadRequest, nil)
		return
	}
	f.mu.Lock()
	c.ID = "new-" + c.Name
	f.Communities = append(f.Communities, c)
	f.mu.Unlock()
	respond(w, http.StatusCreated, c)
}

// pathID decodes {id} so escaped ids compare equal to the stored ones.
func pathID(r *http.Request) string {
	raw := chi.URLParam(r, "id")
	if id, err := url.PathUnescape(raw); err == nil {
		return id
	}
	return raw
}

func respond(w http.ResponseWriter, status int, v any) {
	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
