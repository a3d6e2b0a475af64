package domain

import "time"

// MaxPlacePhotos caps the provider photo URLs kept per place.
const MaxPlacePhotos = 6

// PriceLevelUnknown marks a place the provider has no price level for.
const PriceLevelUnknown = -1

// PlaceDetails is cached third-party metadata for one place.
type PlaceDetails struct {
	PlaceID          string    `json:"place_id"`
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	Phone            string    `json:"phone"`
	Website          string    `json:"website"`
	Rating           float64   `json:"rating"`
	UserRatingsTotal int       `json:"user_ratings_total"`
	PriceLevel       int       `json:"price_level"`
	Hours            []string  `json:"hours"`
	Types            []string  `json:"types"`
	Lat              float64   `json:"lat"`
	Lng              float64   `json:"lng"`
	GoogleMapsURL    string    `json:"google_maps_url"`
	Photos           []string  `json:"photos"`
	CachedAt         time.Time `json:"cached_at"`
}

// FreshAt reports whether the row is younger than lifetime at now.
func (p *PlaceDetails) FreshAt(now time.Time, lifetime time.Duration) bool {
	return p != nil && now.Sub(p.CachedAt) < lifetime
}
