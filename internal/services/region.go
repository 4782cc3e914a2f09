package services

import (
	"context"
	"errors"
	"time"

	"virtual-tourist-backend/internal/models"
	"virtual-tourist-backend/internal/repository"
)

// ErrInvalidRegion is returned for a viewport with a bad center or span
var ErrInvalidRegion = errors.New("invalid map region")

// RegionService remembers where each traveler left the map
type RegionService struct {
	store repository.Queries
}

// NewRegionService creates a new region service
func NewRegionService(store repository.Queries) *RegionService {
	return &RegionService{store: store}
}

// Get returns the saved viewport or repository.ErrNotFound
func (s *RegionService) Get(ctx context.Context, travelerID string) (*models.MapRegion, error) {
	return s.store.GetMapRegion(ctx, travelerID)
}

// Save stores the viewport
func (s *RegionService) Save(ctx context.Context, region *models.MapRegion) error {
	center := models.Coordinate{Latitude: region.Latitude, Longitude: region.Longitude}
	if !center.Valid() ||
		region.LatitudeDelta <= 0 || region.LatitudeDelta > 180 ||
		region.LongitudeDelta <= 0 || region.LongitudeDelta > 360 {
		return ErrInvalidRegion
	}
	region.UpdatedAt = time.Now()
	return s.store.SaveMapRegion(ctx, region)
}
