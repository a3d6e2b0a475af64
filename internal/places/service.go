// Package places resolves third-party place details through three tiers: a local SQLite
// copy, the backend's shared places_cache table and the places provider.
package places

import (
	"context"
	"log/slog"
	"time"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
)

// DefaultLifetime is how long cached details count as fresh.
const DefaultLifetime = 30 * 24 * time.Hour

// SharedCache is the backend table every client reads and writes.
type SharedCache interface {
	PlaceCacheRow(ctx context.Context, placeID string) (*domain.PlaceDetails, error)
	UpsertPlaceCache(ctx context.Context, p domain.PlaceDetails) error
}

// Provider fetches fresh details from the places API.
type Provider interface {
	Details(ctx context.Context, placeID string) (*domain.PlaceDetails, error)
}

// LocalStore is the process-wide copy.
type LocalStore interface {
	Get(ctx context.Context, placeID string) (*domain.PlaceDetails, error)
	Put(ctx context.Context, p domain.PlaceDetails) error
}

// Service resolves place details for one backend identity.
type Service struct {
	local    LocalStore
	shared   SharedCache
	provider Provider
	lifetime time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

// NewService creates a Service. A zero lifetime means DefaultLifetime.
func NewService(local LocalStore, shared SharedCache, provider Provider, lifetime time.Duration, logger *slog.Logger) *Service {
	if lifetime <= 0 {
		lifetime = DefaultLifetime
	}
	return &Service{
		local:    local,
		shared:   shared,
		provider: provider,
		lifetime: lifetime,
		logger:   logger,
		now:      time.Now,
	}
}

// Details returns the details of placeID. A fresh local or shared row wins; otherwise
// the provider is asked and both tiers are refreshed. When the provider cannot answer
// the newest stale row is returned, and NotFound when there is none.
func (s *Service) Details(ctx context.Context, placeID string) (*domain.PlaceDetails, error) {
	if placeID == "" {
		return nil, errors.Validation("place id is required")
	}
	now := s.now()

	local, err := s.local.Get(ctx, placeID)
	if err != nil {
		s.logger.Warn("local place lookup failed", "place_id", placeID, "error", err)
		local = nil
	}
	if local.FreshAt(now, s.lifetime) {
		return local, nil
	}

	shared, err := s.shared.PlaceCacheRow(ctx, placeID)
	if err != nil {
		s.logger.Warn("shared place lookup failed", "place_id", placeID, "error", err)
		shared = nil
	}
	if shared.FreshAt(now, s.lifetime) {
		s.storeLocal(ctx, *shared)
		return shared, nil
	}

	fresh, err := s.provider.Details(ctx, placeID)
	if err != nil {
		if stale := newest(local, shared); stale != nil {
			s.logger.Debug("serving stale place details", "place_id", placeID, "error", err)
			return stale, nil
		}
		if errors.Is(err, errors.ErrNotFound) {
			return nil, errors.NotFoundf("place %s not found", placeID)
		}
		return nil, err
	}

	if err := s.shared.UpsertPlaceCache(ctx, *fresh); err != nil {
		s.logger.Warn("shared place upsert failed", "place_id", placeID, "error", err)
	}
	s.storeLocal(ctx, *fresh)
	return fresh, nil
}

// Warm resolves placeID and discards the result. Errors are logged.
func (s *Service) Warm(ctx context.Context, placeID string) {
	if _, err := s.Details(ctx, placeID); err != nil {
		s.logger.Debug("warming place details failed", "place_id", placeID, "error", err)
	}
}

func (s *Service) storeLocal(ctx context.Context, p domain.PlaceDetails) {
	if err := s.local.Put(ctx, p); err != nil {
		s.logger.Warn("local place store failed", "place_id", p.PlaceID, "error", err)
	}
}

func newest(a, b *domain.PlaceDetails) *domain.PlaceDetails {
	switch {
	case a == nil:
		return b
	case b == nil:
		return a
	case b.CachedAt.After(a.CachedAt):
		return b
	default:
		return a
	}
}
