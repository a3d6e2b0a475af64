package gateway

import (
	"context"
	"net/http"
	"net/url"

	"github.com/mymapsapp/mymaps-server/internal/domain"
)

const tablePlacesCache = "places_cache"

// PlaceCacheRow returns the shared cached details of placeID, or nil when no row exists.
func (c *Client) PlaceCacheRow(ctx context.Context, placeID string) (*domain.PlaceDetails, error) {
	q := url.Values{}
	q.Set("select", "*")
	q.Set("place_id", eq(placeID))
	q.Set("limit", "1")

	var rows []domain.PlaceDetails
	if err := c.do(ctx, request{op: "place cache", method: http.MethodGet, path: tablePath(tablePlacesCache), query: q}, &rows); err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

// UpsertPlaceCache writes p to the shared places cache.
func (c *Client) UpsertPlaceCache(ctx context.Context, p domain.PlaceDetails) error {
	q := url.Values{}
	q.Set("on_conflict", "place_id")
	return c.do(ctx, request{
		op:     "upsert place cache",
		method: http.MethodPost,
		path:   tablePath(tablePlacesCache),
		query:  q,
		body:   p,
		prefer: []string{"resolution=merge-duplicates", "return=minimal"},
	}, nil)
}
