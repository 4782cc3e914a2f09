// Package repository persists travelers, pins, photo records and map regions.
package repository

import (
	"context"
	"errors"
	"fmt"

	"virtual-tourist-backend/internal/config"
	"virtual-tourist-backend/internal/models"
)

// ErrNotFound indicates that the requested record does not exist
var ErrNotFound = errors.New("record not found")

// Queries is the read/write surface shared by the store and its transactions
type Queries interface {
	CreateTraveler(ctx context.Context, traveler *models.Traveler) error
	GetTraveler(ctx context.Context, id string) (*models.Traveler, error)
	UpdatePushToken(ctx context.Context, travelerID string, pushToken *string) error

	CreateLocation(ctx context.Context, location *models.Location) error
	GetLocation(ctx context.Context, id string) (*models.Location, error)
	// FindLocationNear returns the oldest pin of the traveler, other than
	// excludeID, whose coordinate is within tolerance degrees of coord on both axes.
	FindLocationNear(ctx context.Context, travelerID string, coord models.Coordinate, tolerance float64, excludeID string) (*models.Location, error)
	ListLocations(ctx context.Context, travelerID string) ([]*models.Location, error)
	UpdateLocation(ctx context.Context, location *models.Location) error
	// DeleteLocation removes the pin and every photo record it owns
	DeleteLocation(ctx context.Context, id string) error

	CreatePhoto(ctx context.Context, photo *models.Photo) error
	GetPhoto(ctx context.Context, id string) (*models.Photo, error)
	ListPhotos(ctx context.Context, locationID string) ([]*models.Photo, error)
	CountPhotos(ctx context.Context, locationID string) (int, error)
	SetPhotoCachePath(ctx context.Context, photoID string, path *string) error
	DeletePhoto(ctx context.Context, id string) error

	GetMapRegion(ctx context.Context, travelerID string) (*models.MapRegion, error)
	SaveMapRegion(ctx context.Context, region *models.MapRegion) error
}

// RecordStore is the persisted record store. InTx commits everything fn did
// when fn returns nil and rolls back otherwise.
type RecordStore interface {
	Queries
	InTx(ctx context.Context, fn func(q Queries) error) error
	DatabaseType() string
	Ping(ctx context.Context) error
	Close()
}

// Open connects to the backend selected by cfg.Driver and migrates its schema
func Open(ctx context.Context, cfg config.DatabaseConfig) (RecordStore, error) {
	switch cfg.Driver {
	case "postgres":
		return NewPostgres(ctx, cfg.DSN())
	case "sqlite":
		return NewSQLite(cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}
