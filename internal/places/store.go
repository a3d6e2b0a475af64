package places

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/mymapsapp/mymaps-server/internal/domain"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

// placeColumns is the ordered list of columns selected in places queries.
const placeColumns = `place_id, name, address, phone, website, rating, user_ratings_total,
	price_level, hours, types, lat, lng, google_maps_url, photos, cached_at`

// Store is the process-wide SQLite copy of place details.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// OpenStore creates a SQLite store at path. Use ":memory:" in tests.
func OpenStore(path string, logger *slog.Logger) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(time.Hour)
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("exec pragma %q: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("exec schema: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the stored details of placeID, or nil when there are none.
func (s *Store) Get(ctx context.Context, placeID string) (*domain.PlaceDetails, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+placeColumns+` FROM places WHERE place_id = ?`, placeID)

	p, err := scanPlace(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get place %s: %w", placeID, err)
	}
	return p, nil
}

// Put inserts or replaces the details of p.PlaceID.
func (s *Store) Put(ctx context.Context, p domain.PlaceDetails) error {
	hours, err := encodeList(p.Hours)
	if err != nil {
		return err
	}
	types, err := encodeList(p.Types)
	if err != nil {
		return err
	}
	photos, err := encodeList(p.Photos)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO places (`+placeColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(place_id) DO UPDATE SET
			name = excluded.name,
			address = excluded.address,
			phone = excluded.phone,
			website = excluded.website,
			rating = excluded.rating,
			user_ratings_total = excluded.user_ratings_total,
			price_level = excluded.price_level,
			hours = excluded.hours,
			types = excluded.types,
			lat = excluded.lat,
			lng = excluded.lng,
			google_maps_url = excluded.google_maps_url,
			photos = excluded.photos,
			cached_at = excluded.cached_at`,
		p.PlaceID,
		p.Name,
		p.Address,
		p.Phone,
		p.Website,
		p.Rating,
		p.UserRatingsTotal,
		p.PriceLevel,
		hours,
		types,
		p.Lat,
		p.Lng,
		p.GoogleMapsURL,
		photos,
		formatTime(p.CachedAt),
	)
	if err != nil {
		return fmt.Errorf("put place %s: %w", p.PlaceID, err)
	}
	return nil
}

// Prune deletes rows cached before cutoff and returns how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM places WHERE cached_at < ?`, formatTime(cutoff))
	if err != nil {
		return 0, fmt.Errorf("prune places: %w", err)
	}
	return res.RowsAffected()
}

// scanPlace scans a sql.Row (or sql.Rows via its Scan method) into a domain.PlaceDetails.
func scanPlace(scanner interface{ Scan(dest ...any) error }) (*domain.PlaceDetails, error) {
	var (
		p                    domain.PlaceDetails
		hours, types, photos string
		cachedAt             string
	)
	err := scanner.Scan(
		&p.PlaceID,
		&p.Name,
		&p.Address,
		&p.Phone,
		&p.Website,
		&p.Rating,
		&p.UserRatingsTotal,
		&p.PriceLevel,
		&hours,
		&types,
		&p.Lat,
		&p.Lng,
		&p.GoogleMapsURL,
		&photos,
		&cachedAt,
	)
	if err != nil {
		return nil, err
	}

	if p.Hours, err = decodeList(hours); err != nil {
		return nil, err
	}
	if p.Types, err = decodeList(types); err != nil {
		return nil, err
	}
	if p.Photos, err = decodeList(photos); err != nil {
		return nil, err
	}
	if p.CachedAt, err = parseTime(cachedAt); err != nil {
		return nil, err
	}
	return &p, nil
}

func encodeList(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode list: %w", err)
	}
	return string(data), nil
}

func decodeList(s string) ([]string, error) {
	var v []string
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decode list: %w", err)
	}
	return v, nil
}

// timeFormat is RFC3339 with a fixed-width fraction so stored values sort as text.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

// parseTime parses a RFC3339Nano string back to time.Time.
func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
