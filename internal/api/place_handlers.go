package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/mymapsapp/mymaps-server/internal/domain"
)

func (s *Server) registerPlaceRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "getPlace",
		Method:      http.MethodGet,
		Path:        "/api/v1/places/{placeId}",
		Summary:     "Get place details",
		Description: "Returns cached place details, refreshed from the places provider after 30 days",
		Tags:        []string{"Places"},
	}, s.handleGetPlace)
}

// PlaceOutput wraps place details for Huma.
type PlaceOutput struct {
	Body domain.PlaceDetails
}

func (s *Server) handleGetPlace(ctx context.Context, input *PlaceIDInput) (*PlaceOutput, error) {
	place, err := s.appFor(ctx).Places.Place(ctx, input.PlaceID)
	if err != nil {
		return nil, err
	}
	return &PlaceOutput{Body: place}, nil
}
