// Package apiclient consumes the remote Biddge communities API.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/starford/biddge/internal/apperr"
	"github.com/starford/biddge/internal/models"
)

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("apiclient: %s %s: status %d", e.Method, e.Path, e.Code)
}

// Is maps HTTP status classes onto the shared sentinel errors.
func (e *StatusError) Is(target error) bool {
	switch target {
	case apperr.ErrUnauthorized:
		return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
	case apperr.ErrNotFound:
		return e.Code >= 400 && e.Code < 500 &&
			e.Code != http.StatusUnauthorized && e.Code != http.StatusForbidden
	case apperr.ErrUnavailable:
		return e.Code >= 500
	}
	return false
}

// CreateCommunityRequest is the body sent to POST /communities.
type CreateCommunityRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Client talks to a single API base URL.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client. timeout <= 0 means no client-side timeout.
func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the configured API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// ListCommunities handles GET /communities.
func (c *Client) ListCommunities(ctx context.Context) ([]models.Community, error) {
	var out []models.Community
	if err := c.do(ctx, http.MethodGet, "/communities", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FeaturedCommunities handles GET /communities/featured.
func (c *Client) FeaturedCommunities(ctx context.Context) ([]models.Community, error) {
	var out []models.Community
	if err := c.do(ctx, http.MethodGet, "/communities/featured", "", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCommunity handles GET /communities/{id}.
func (c *Client) GetCommunity(ctx context.Context, id string) (*models.Community, error) {
	var out models.Community
	if err := c.do(ctx, http.MethodGet, "/communities/"+url.PathEscape(id), "", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// JoinCommunity handles POST /communities/{id}/join. The response body is ignored.
func (c *Client) JoinCommunity(ctx context.Context, token, id string) error {
	return c.do(ctx, http.MethodPost, "/communities/"+url.PathEscape(id)+"/join", token, struct{}{}, nil)
}

// CreateCommunity handles POST /communities.
func (c *Client) CreateCommunity(ctx context.Context, token string, req CreateCommunityRequest) (*models.Community, error) {
	var out models.Community
	if err := c.do(ctx, http.MethodPost, "/communities", token, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) do(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("apiclient: encode %s: %w", path, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("apiclient: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w: %w", method, path, apperr.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{Method: method, Path: path, Code: resp.StatusCode}
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		if errors.Is(err, io.EOF) {
			// Empty body decodes to the zero value.
			return nil
		}
		return fmt.Errorf("apiclient: decode %s: %w: %w", path, apperr.ErrUnavailable, err)
	}
	return nil
}
