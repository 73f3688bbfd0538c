// Package community implements the fetch-and-render lifecycle of the
// community pages on top of the remote API.
//
// Every method performs a fresh fetch; nothing is cached between calls, so a
// rendered page always reflects the last successful response.
package community

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/biddge/internal/apiclient"
	"github.com/starford/biddge/internal/apperr"
	"github.com/starford/biddge/internal/models"
	"github.com/starford/biddge/internal/session"
)

// FeaturedFallbackLimit caps the general list when it stands in for featured communities.
const FeaturedFallbackLimit = 6

// User-facing messages.
const (
	MsgListFailed    = "Failed to load communities"
	MsgNotFound      = "Community not found"
	MsgUnavailable   = "Community is temporarily unavailable"
	MsgJoinFailed    = "Could not join this community. Please try again."
	MsgJoinSignedOut = "Your session has expired. Please log in again."
)

// API is the subset of the remote API the service consumes.
type API interface {
	ListCommunities(ctx context.Context) ([]models.Community, error)
	FeaturedCommunities(ctx context.Context) ([]models.Community, error)
	GetCommunity(ctx context.Context, id string) (*models.Community, error)
	JoinCommunity(ctx context.Context, token, id string) error
	CreateCommunity(ctx context.Context, token string, req apiclient.CreateCommunityRequest) (*models.Community, error)
}

// Verify *apiclient.Client satisfies API at compile time.
var _ API = (*apiclient.Client)(nil)

// ListResult is the outcome of a collection fetch.
type ListResult struct {
	Communities []models.Community
	Err         error
	Message     string
}

// FeaturedResult is the outcome of the featured fetch and its fallback.
type FeaturedResult struct {
	Communities  []models.Community
	Err          error
	FallbackErr  error
	UsedFallback bool
	Message      string
}

// Failed reports whether nothing could be shown.
func (r FeaturedResult) Failed() bool {
	return r.Err != nil && r.FallbackErr != nil
}

// DetailResult is the outcome of a single-community fetch.
type DetailResult struct {
	Community *models.Community
	Err       error
	Message   string
}

// JoinResult is the outcome of a join attempt.
type JoinResult struct {
	// RedirectTo is set when the caller must send the browser to log in.
	RedirectTo string
	Joined     bool
	Err        error
	Message    string
}

// Service coordinates API calls for the community pages.
type Service struct {
	api    API
	logger *slog.Logger
}

// NewService creates a new community service.
func NewService(api API, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{api: api, logger: logger}
}

// List fetches the full collection once.
func (s *Service) List(ctx context.Context) ListResult {
	list, err := s.api.ListCommunities(ctx)
	if err != nil {
		s.logger.Error("fetch communities failed", slog.String("error", err.Error()))
		return ListResult{Err: err, Message: MsgListFailed}
	}
	return ListResult{Communities: nonNil(list)}
}

// Featured fetches the featured subset, falling back to the first
// FeaturedFallbackLimit entries of the general collection.
func (s *Service) Featured(ctx context.Context) FeaturedResult {
	list, err := s.api.FeaturedCommunities(ctx)
	if err == nil {
		return FeaturedResult{Communities: nonNil(list)}
	}
	s.logger.Warn("fetch featured communities failed", slog.String("error", err.Error()))

	res := FeaturedResult{Err: err, Message: MsgListFailed, UsedFallback: true}
	all, fbErr := s.api.ListCommunities(ctx)
	if fbErr != nil {
		s.logger.Error("featured fallback failed", slog.String("error", fbErr.Error()))
		res.FallbackErr = fbErr
		res.Communities = []models.Community{}
		return res
	}
	if len(all) > FeaturedFallbackLimit {
		all = all[:FeaturedFallbackLimit]
	}
	res.Communities = nonNil(all)
	return res
}

// Get fetches one community. 4xx responses become ErrNotFound, everything
// else that fails becomes ErrUnavailable.
func (s *Service) Get(ctx context.Context, id string) DetailResult {
	if id == "" {
		return DetailResult{Err: apperr.ErrNotFound, Message: MsgNotFound}
	}
	c, err := s.api.GetCommunity(ctx, id)
	if err != nil {
		s.logger.Error("fetch community failed", slog.String("id", id), slog.String("error", err.Error()))
		if errors.Is(err, apperr.ErrNotFound) || errors.Is(err, apperr.ErrUnauthorized) {
			return DetailResult{Err: fmt.Errorf("community %s: %w", id, apperr.ErrNotFound), Message: MsgNotFound}
		}
		return DetailResult{Err: fmt.Errorf("community %s: %w", id, apperr.ErrUnavailable), Message: MsgUnavailable}
	}
	return DetailResult{Community: c}
}

// Join joins sess to community id. Without a session no request is sent and
// the caller is told where to send the browser.
func (s *Service) Join(ctx context.Context, sess *session.Session, id string) JoinResult {
	if !sess.Has(session.CapabilityAuthenticated) {
		return JoinResult{RedirectTo: LoginRedirect(DetailPath(id))}
	}
	if err := s.api.JoinCommunity(ctx, sess.Token, id); err != nil {
		s.logger.Error("join community failed", slog.String("id", id), slog.String("error", err.Error()))
		msg := MsgJoinFailed
		if errors.Is(err, apperr.ErrUnauthorized) {
			msg = MsgJoinSignedOut
		}
		return JoinResult{Err: err, Message: msg}
	}
	s.logger.Info("joined community", slog.String("id", id), slog.String("user", sess.User.Name))
	return JoinResult{Joined: true}
}

// ListByCreator returns the communities attributed to creatorName.
func (s *Service) ListByCreator(ctx context.Context, creatorName string) ListResult {
	res := s.List(ctx)
	if res.Err != nil {
		return res
	}
	mine := make([]models.Community, 0)
	for _, c := range res.Communities {
		if c.CreatorName != "" && c.CreatorName == creatorName {
			mine = append(mine, c)
		}
	}
	res.Communities = mine
	return res
}

// CreateInput is the create-community form.
type CreateInput struct {
	Name        string
	Description string
	Category    string
	ImageURL    string
}

// Validate validates the form.
func (in *CreateInput) Validate() error {
	return validation.ValidateStruct(in,
		validation.Field(&in.Name, validation.Required, validation.Length(3, 80)),
		validation.Field(&in.Description, validation.Required, validation.Length(10, 2000)),
		validation.Field(&in.Category, validation.Length(0, 40)),
		validation.Field(&in.ImageURL, is.URL),
	)
}

// Create validates in and creates a community on behalf of a creator session.
func (s *Service) Create(ctx context.Context, sess *session.Session, in CreateInput) (*models.Community, error) {
	if !sess.Has(session.CapabilityCreator) {
		return nil, apperr.ErrUnauthorized
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", apperr.ErrInvalid, err)
	}
	c, err := s.api.CreateCommunity(ctx, sess.Token, apiclient.CreateCommunityRequest{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		ImageURL:    in.ImageURL,
	})
	if err != nil {
		s.logger.Error("create community failed", slog.String("name", in.Name), slog.String("error", err.Error()))
		return nil, err
	}
	return c, nil
}

// DetailPath returns the in-app path of a community.
func DetailPath(id string) string {
	return "/communities/" + url.PathEscape(id)
}

// fromEscaper escapes the characters that would end or alter the from value.
// Plain paths keep their literal form.
var fromEscaper = strings.NewReplacer("%", "%25", "&", "%26", "+", "%2B", "#", "%23")

// LoginRedirect returns the login URL that returns to from afterwards.
func LoginRedirect(from string) string {
	return "/login?from=" + fromEscaper.Replace(from)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
