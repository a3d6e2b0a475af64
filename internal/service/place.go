package service

import (
	"context"
	"log/slog"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/querycache"
	"github.com/mymapsapp/mymaps-server/internal/querykey"
)

// PlaceDetailer resolves place details through the local, shared and provider tiers.
type PlaceDetailer interface {
	Details(ctx context.Context, placeID string) (*domain.PlaceDetails, error)
}

// PlaceService serves the place-cache family.
type PlaceService struct {
	cache   *querycache.Cache
	details PlaceDetailer
	logger  *slog.Logger
}

// NewPlaceService creates a place service.
func NewPlaceService(cache *querycache.Cache, details PlaceDetailer, logger *slog.Logger) *PlaceService {
	return &PlaceService{
		cache:   cache,
		details: details,
		logger:  logger,
	}
}

// Place returns the details of placeID.
func (s *PlaceService) Place(ctx context.Context, placeID string) (domain.PlaceDetails, error) {
	if placeID == "" {
		return domain.PlaceDetails{}, errors.Validation("place id is required")
	}
	return fetch(ctx, s.cache, querykey.PlaceCache(placeID), func(ctx context.Context) (domain.PlaceDetails, error) {
		return deref(func() (*domain.PlaceDetails, error) { return s.details.Details(ctx, placeID) })
	})
}
