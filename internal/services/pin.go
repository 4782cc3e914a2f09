package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"virtual-tourist-backend/internal/models"
	"virtual-tourist-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// ErrPinExists is returned when a pin is moved onto another pin
var ErrPinExists = errors.New("another pin is already at this coordinate")

// PinService manages the pins of a traveler. Album side effects of moving and
// deleting pins go through the AlbumService.
type PinService struct {
	store     repository.RecordStore
	albums    *AlbumService
	tolerance float64
	locks     *keyedMutex
}

// NewPinService creates a new pin service. Pins closer than tolerance degrees
// on both axes are treated as the same pin.
func NewPinService(store repository.RecordStore, albums *AlbumService, tolerance float64) *PinService {
	return &PinService{
		store:     store,
		albums:    albums,
		tolerance: tolerance,
		locks:     newKeyedMutex(),
	}
}

// Create drops a pin, returning the existing pin when one is already at coord
func (s *PinService) Create(ctx context.Context, travelerID string, coord models.Coordinate) (*models.Location, bool, error) {
	if !coord.Valid() {
		return nil, false, models.ErrInvalidCoordinate
	}

	unlock := s.locks.Lock(travelerID)
	defer unlock()

	existing, err := s.store.FindLocationNear(ctx, travelerID, coord, s.tolerance, "")
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, false, err
	}

	now := time.Now()
	loc := &models.Location{
		ID:         uuid.New().String(),
		TravelerID: travelerID,
		Latitude:   coord.Latitude,
		Longitude:  coord.Longitude,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateLocation(ctx, loc); err != nil {
		return nil, false, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	log.Info().
		Str("traveler_id", travelerID).
		Str("location_id", loc.ID).
		Msg("Pin created")

	return loc, true, nil
}

// List returns the pins of a traveler
func (s *PinService) List(ctx context.Context, travelerID string) ([]*models.Location, error) {
	return s.store.ListLocations(ctx, travelerID)
}

// Get returns a pin owned by travelerID. Pins of other travelers are reported
// as not found.
func (s *PinService) Get(ctx context.Context, travelerID, locationID string) (*models.Location, error) {
	loc, err := s.store.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if loc.TravelerID != travelerID {
		return nil, fmt.Errorf("location %s: %w", locationID, repository.ErrNotFound)
	}
	return loc, nil
}

// GetPhoto returns a photo whose pin is owned by travelerID
func (s *PinService) GetPhoto(ctx context.Context, travelerID, photoID string) (*models.Photo, error) {
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Get(ctx, travelerID, photo.LocationID); err != nil {
		return nil, fmt.Errorf("photo %s: %w", photoID, repository.ErrNotFound)
	}
	return photo, nil
}

// Move relocates a pin and drops its stale photos. Moving onto another pin
// of the same traveler fails with ErrPinExists and leaves both untouched.
func (s *PinService) Move(ctx context.Context, travelerID, locationID string, coord models.Coordinate) (*models.Location, error) {
	if !coord.Valid() {
		return nil, models.ErrInvalidCoordinate
	}

	unlock := s.locks.Lock(travelerID)
	defer unlock()

	if _, err := s.Get(ctx, travelerID, locationID); err != nil {
		return nil, err
	}

	other, err := s.store.FindLocationNear(ctx, travelerID, coord, s.tolerance, locationID)
	if err == nil {
		return nil, fmt.Errorf("%w: pin %s", ErrPinExists, other.ID)
	}
	if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}

	return s.albums.Relocate(ctx, locationID, coord)
}

// Delete removes a pin together with its photos and cached images
func (s *PinService) Delete(ctx context.Context, travelerID, locationID string) error {
	if _, err := s.Get(ctx, travelerID, locationID); err != nil {
		return err
	}
	return s.albums.Discard(ctx, locationID)
}
