package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/mymapsapp/mymaps-server/internal/domain"
	"github.com/mymapsapp/mymaps-server/internal/errors"
	"github.com/mymapsapp/mymaps-server/internal/ratelimit"
)

const (
	// DefaultBaseURL is the Google Places web service root.
	DefaultBaseURL = "https://maps.googleapis.com/maps/api/place"

	defaultRPS     = 10.0
	defaultBurst   = 20
	defaultTimeout = 15 * time.Second

	photoMaxWidth = 800

	detailFields = "name,formatted_address,formatted_phone_number,website,rating," +
		"user_ratings_total,price_level,opening_hours,photos,types,geometry,url"
)

// ErrNoProvider is returned when no places API key is configured.
var ErrNoProvider = errors.NotFound("places provider not configured")

// GoogleProvider is a rate-limited client for the Places Details API.
type GoogleProvider struct {
	http    *http.Client
	baseURL string
	apiKey  string
	limiter *ratelimit.KeyedRateLimiter
	flights singleflight.Group
	logger  *slog.Logger
	now     func() time.Time
}

// NewGoogleProvider creates a provider. An empty apiKey yields a provider whose every
// call fails with ErrNoProvider.
func NewGoogleProvider(baseURL, apiKey string, logger *slog.Logger) *GoogleProvider {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &GoogleProvider{
		http:    &http.Client{Timeout: defaultTimeout},
		baseURL: strings.TrimSuffix(baseURL, "/"),
		apiKey:  apiKey,
		limiter: ratelimit.New(defaultRPS, defaultBurst),
		logger:  logger,
		now:     time.Now,
	}
}

// Close releases resources held by the provider.
func (g *GoogleProvider) Close() {
	g.limiter.Stop()
}

// Details fetches fresh details for placeID. Concurrent calls for the same place share
// one request, which is bounded by the client timeout rather than any one caller.
func (g *GoogleProvider) Details(ctx context.Context, placeID string) (*domain.PlaceDetails, error) {
	if g.apiKey == "" {
		return nil, ErrNoProvider
	}
	shared := context.WithoutCancel(ctx)
	v, err, _ := g.flights.Do(placeID, func() (any, error) {
		return g.fetch(shared, placeID)
	})
	if err != nil {
		return nil, err
	}
	p := *v.(*domain.PlaceDetails)
	return &p, nil
}

func (g *GoogleProvider) fetch(ctx context.Context, placeID string) (*domain.PlaceDetails, error) {
	if err := g.limiter.Wait(ctx, "details"); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	q := url.Values{}
	q.Set("place_id", placeID)
	q.Set("fields", detailFields)
	q.Set("key", g.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/details/json?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	g.logger.Debug("places request", "place_id", placeID)

	resp, err := g.http.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetwork, "places provider unreachable")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeNetwork, "read places response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Network(fmt.Sprintf("places provider status %d", resp.StatusCode))
	}

	var raw rawDetailsResponse
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "decode places response")
	}

	switch raw.Status {
	case "OK":
		return g.toPlace(placeID, raw.Result), nil
	case "NOT_FOUND", "ZERO_RESULTS", "INVALID_REQUEST":
		return nil, errors.NotFoundf("place %s: %s", placeID, raw.Status)
	case "REQUEST_DENIED":
		return nil, errors.Permission("places provider denied request: " + raw.ErrorMessage)
	default:
		return nil, errors.Network("places provider: " + raw.Status)
	}
}

func (g *GoogleProvider) toPlace(placeID string, r rawPlace) *domain.PlaceDetails {
	p := &domain.PlaceDetails{
		PlaceID:          placeID,
		Name:             r.Name,
		Address:          r.FormattedAddress,
		Phone:            r.FormattedPhoneNumber,
		Website:          r.Website,
		Rating:           r.Rating,
		UserRatingsTotal: r.UserRatingsTotal,
		PriceLevel:       domain.PriceLevelUnknown,
		Hours:            []string{},
		Types:            r.Types,
		Lat:              r.Geometry.Location.Lat,
		Lng:              r.Geometry.Location.Lng,
		GoogleMapsURL:    r.URL,
		Photos:           make([]string, 0, domain.MaxPlacePhotos),
		CachedAt:         g.now().UTC(),
	}
	if r.PriceLevel != nil {
		p.PriceLevel = *r.PriceLevel
	}
	if r.OpeningHours != nil && r.OpeningHours.WeekdayText != nil {
		p.Hours = r.OpeningHours.WeekdayText
	}
	if p.Types == nil {
		p.Types = []string{}
	}
	for _, ph := range r.Photos {
		if len(p.Photos) == domain.MaxPlacePhotos {
			break
		}
		p.Photos = append(p.Photos, g.photoURL(ph.PhotoReference))
	}
	return p
}

func (g *GoogleProvider) photoURL(ref string) string {
	q := url.Values{}
	q.Set("maxwidth", fmt.Sprint(photoMaxWidth))
	q.Set("photo_reference", ref)
	q.Set("key", g.apiKey)
	return g.baseURL + "/photo?" + q.Encode()
}

// Raw API response types (internal)

type rawDetailsResponse struct {
	Status       string   `json:"status"`
	ErrorMessage string   `json:"error_message"`
	Result       rawPlace `json:"result"`
}

type rawPlace struct {
	Name                 string   `json:"name"`
	FormattedAddress     string   `json:"formatted_address"`
	FormattedPhoneNumber string   `json:"formatted_phone_number"`
	Website              string   `json:"website"`
	Rating               float64  `json:"rating"`
	UserRatingsTotal     int      `json:"user_ratings_total"`
	PriceLevel           *int     `json:"price_level"`
	Types                []string `json:"types"`
	URL                  string   `json:"url"`
	OpeningHours         *struct {
		WeekdayText []string `json:"weekday_text"`
	} `json:"opening_hours"`
	Geometry struct {
		Location struct {
			Lat float64 `json:"lat"`
			Lng float64 `json:"lng"`
		} `json:"location"`
	} `json:"geometry"`
	Photos []struct {
		PhotoReference string `json:"photo_reference"`
	} `json:"photos"`
}
