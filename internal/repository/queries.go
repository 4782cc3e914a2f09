package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"virtual-tourist-backend/internal/models"

	"github.com/jackc/pgx/v5"
)

// row is satisfied by both pgx.Row and *sql.Row
type row interface {
	Scan(dest ...any) error
}

type rowIterator interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// executor hides the driver so both backends share one set of queries.
// Statements use $n placeholders.
type executor interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	queryRow(ctx context.Context, query string, args ...any) row
	query(ctx context.Context, query string, args ...any) (rowIterator, error)
}

// queries implements Queries on top of an executor
type queries struct {
	x executor
}

var _ Queries = (*queries)(nil)

func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows) || errors.Is(err, sql.ErrNoRows)
}

// CreateTraveler creates a new traveler
func (q *queries) CreateTraveler(ctx context.Context, traveler *models.Traveler) error {
	query := `
		INSERT INTO travelers (id, push_token, created_at)
		VALUES ($1, $2, $3)
	`
	if _, err := q.x.exec(ctx, query, traveler.ID, traveler.PushToken, traveler.CreatedAt); err != nil {
		return fmt.Errorf("failed to create traveler: %w", err)
	}
	return nil
}

// GetTraveler retrieves a traveler by ID
func (q *queries) GetTraveler(ctx context.Context, id string) (*models.Traveler, error) {
	query := `SELECT id, push_token, created_at FROM travelers WHERE id = $1`
	var t models.Traveler
	err := q.x.queryRow(ctx, query, id).Scan(&t.ID, &t.PushToken, &t.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("traveler %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get traveler: %w", err)
	}
	return &t, nil
}

// UpdatePushToken updates the push token for a traveler
func (q *queries) UpdatePushToken(ctx context.Context, travelerID string, pushToken *string) error {
	n, err := q.x.exec(ctx, `UPDATE travelers SET push_token = $1 WHERE id = $2`, pushToken, travelerID)
	if err != nil {
		return fmt.Errorf("failed to update push token: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("traveler %s: %w", travelerID, ErrNotFound)
	}
	return nil
}

const locationColumns = `id, traveler_id, latitude, longitude, pages_known, created_at, updated_at`

func scanLocation(r row) (*models.Location, error) {
	var l models.Location
	err := r.Scan(&l.ID, &l.TravelerID, &l.Latitude, &l.Longitude, &l.PagesKnown, &l.CreatedAt, &l.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// CreateLocation creates a new pin
func (q *queries) CreateLocation(ctx context.Context, l *models.Location) error {
	query := `
		INSERT INTO locations (` + locationColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := q.x.exec(ctx, query,
		l.ID, l.TravelerID, l.Latitude, l.Longitude, l.PagesKnown, l.CreatedAt, l.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create location: %w", err)
	}
	return nil
}

// GetLocation retrieves a pin by ID
func (q *queries) GetLocation(ctx context.Context, id string) (*models.Location, error) {
	query := `SELECT ` + locationColumns + ` FROM locations WHERE id = $1`
	l, err := scanLocation(q.x.queryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("location %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get location: %w", err)
	}
	return l, nil
}

// FindLocationNear looks up an existing pin before one is inserted or moved
func (q *queries) FindLocationNear(ctx context.Context, travelerID string, coord models.Coordinate, tolerance float64, excludeID string) (*models.Location, error) {
	query := `
		SELECT ` + locationColumns + `
		FROM locations
		WHERE traveler_id = $1
		  AND abs(latitude - $2) <= $4
		  AND abs(longitude - $3) <= $4
		  AND id <> $5
		ORDER BY created_at ASC
		LIMIT 1
	`
	l, err := scanLocation(q.x.queryRow(ctx, query, travelerID, coord.Latitude, coord.Longitude, tolerance, excludeID))
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find location: %w", err)
	}
	return l, nil
}

// ListLocations retrieves every pin of a traveler, oldest first
func (q *queries) ListLocations(ctx context.Context, travelerID string) ([]*models.Location, error) {
	query := `
		SELECT ` + locationColumns + `
		FROM locations
		WHERE traveler_id = $1
		ORDER BY created_at ASC
	`
	rows, err := q.x.query(ctx, query, travelerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list locations: %w", err)
	}
	defer rows.Close()

	locations := []*models.Location{}
	for rows.Next() {
		l, err := scanLocation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan location: %w", err)
		}
		locations = append(locations, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating locations: %w", err)
	}
	return locations, nil
}

// UpdateLocation stores the coordinate and page count of a pin
func (q *queries) UpdateLocation(ctx context.Context, l *models.Location) error {
	query := `
		UPDATE locations
		SET latitude = $1, longitude = $2, pages_known = $3, updated_at = $4
		WHERE id = $5
	`
	n, err := q.x.exec(ctx, query, l.Latitude, l.Longitude, l.PagesKnown, l.UpdatedAt, l.ID)
	if err != nil {
		return fmt.Errorf("failed to update location: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("location %s: %w", l.ID, ErrNotFound)
	}
	return nil
}

// DeleteLocation deletes a pin and its photo records
func (q *queries) DeleteLocation(ctx context.Context, id string) error {
	if _, err := q.x.exec(ctx, `DELETE FROM photos WHERE location_id = $1`, id); err != nil {
		return fmt.Errorf("failed to delete location photos: %w", err)
	}
	n, err := q.x.exec(ctx, `DELETE FROM locations WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete location: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("location %s: %w", id, ErrNotFound)
	}
	return nil
}

const photoColumns = `id, location_id, remote_id, remote_url, local_cache_path, created_at`

func scanPhoto(r row) (*models.Photo, error) {
	var p models.Photo
	err := r.Scan(&p.ID, &p.LocationID, &p.RemoteID, &p.RemoteURL, &p.LocalCachePath, &p.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// CreatePhoto creates a new photo record
func (q *queries) CreatePhoto(ctx context.Context, p *models.Photo) error {
	query := `
		INSERT INTO photos (` + photoColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err := q.x.exec(ctx, query,
		p.ID, p.LocationID, p.RemoteID, p.RemoteURL, p.LocalCachePath, p.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create photo: %w", err)
	}
	return nil
}

// GetPhoto retrieves a photo by ID
func (q *queries) GetPhoto(ctx context.Context, id string) (*models.Photo, error) {
	query := `SELECT ` + photoColumns + ` FROM photos WHERE id = $1`
	p, err := scanPhoto(q.x.queryRow(ctx, query, id))
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("photo %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get photo: %w", err)
	}
	return p, nil
}

// ListPhotos retrieves the photos of a pin ordered by remote id
func (q *queries) ListPhotos(ctx context.Context, locationID string) ([]*models.Photo, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM photos
		WHERE location_id = $1
		ORDER BY remote_id ASC, id ASC
	`
	rows, err := q.x.query(ctx, query, locationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list photos: %w", err)
	}
	defer rows.Close()

	photos := []*models.Photo{}
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan photo: %w", err)
		}
		photos = append(photos, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating photos: %w", err)
	}
	return photos, nil
}

// CountPhotos counts the photo records of a pin
func (q *queries) CountPhotos(ctx context.Context, locationID string) (int, error) {
	var total int
	err := q.x.queryRow(ctx, `SELECT COUNT(*) FROM photos WHERE location_id = $1`, locationID).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("failed to count photos: %w", err)
	}
	return total, nil
}

// SetPhotoCachePath records where the image bytes were cached
func (q *queries) SetPhotoCachePath(ctx context.Context, photoID string, path *string) error {
	n, err := q.x.exec(ctx, `UPDATE photos SET local_cache_path = $1 WHERE id = $2`, path, photoID)
	if err != nil {
		return fmt.Errorf("failed to update photo cache path: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("photo %s: %w", photoID, ErrNotFound)
	}
	return nil
}

// DeletePhoto deletes a photo record
func (q *queries) DeletePhoto(ctx context.Context, id string) error {
	n, err := q.x.exec(ctx, `DELETE FROM photos WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete photo: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("photo %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetMapRegion retrieves the saved viewport of a traveler
func (q *queries) GetMapRegion(ctx context.Context, travelerID string) (*models.MapRegion, error) {
	query := `
		SELECT traveler_id, latitude, longitude, latitude_delta, longitude_delta, updated_at
		FROM map_regions
		WHERE traveler_id = $1
	`
	var m models.MapRegion
	err := q.x.queryRow(ctx, query, travelerID).Scan(
		&m.TravelerID, &m.Latitude, &m.Longitude, &m.LatitudeDelta, &m.LongitudeDelta, &m.UpdatedAt,
	)
	if err != nil {
		if isNoRows(err) {
			return nil, fmt.Errorf("map region: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get map region: %w", err)
	}
	return &m, nil
}

// SaveMapRegion inserts or replaces the saved viewport of a traveler
func (q *queries) SaveMapRegion(ctx context.Context, m *models.MapRegion) error {
	query := `
		INSERT INTO map_regions (traveler_id, latitude, longitude, latitude_delta, longitude_delta, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (traveler_id) DO UPDATE SET
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			latitude_delta = excluded.latitude_delta,
			longitude_delta = excluded.longitude_delta,
			updated_at = excluded.updated_at
	`
	_, err := q.x.exec(ctx, query,
		m.TravelerID, m.Latitude, m.Longitude, m.LatitudeDelta, m.LongitudeDelta, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save map region: %w", err)
	}
	return nil
}
