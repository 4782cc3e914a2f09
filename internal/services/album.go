package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"virtual-tourist-backend/internal/flickr"
	"virtual-tourist-backend/internal/imagecache"
	"virtual-tourist-backend/internal/models"
	"virtual-tourist-backend/internal/objectstore"
	"virtual-tourist-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// AlbumState is the lifecycle of a pin's photo album
type AlbumState string

const (
	AlbumEmpty     AlbumState = "empty"
	AlbumLoading   AlbumState = "loading"
	AlbumPopulated AlbumState = "populated"
)

var (
	// ErrSearchFailed means the remote search did not produce a usable page.
	// It is the search client's sentinel, so either package can be tested.
	ErrSearchFailed = flickr.ErrSearchFailed
	// ErrPersistence means a record store commit failed
	ErrPersistence = errors.New("failed to save changes")
)

const evictConcurrency = 8

// PhotoSearcher finds photo descriptors near a coordinate
type PhotoSearcher interface {
	FindPhotos(ctx context.Context, coord models.Coordinate, knownPages int) (*flickr.SearchResult, error)
}

// PhotoCache stores image bytes keyed by remote URL
type PhotoCache interface {
	PathFor(remoteURL string) (string, error)
	Read(remoteURL string) ([]byte, bool, error)
	Write(remoteURL string, data []byte) (string, error)
	Delete(remoteURL string) error
}

// Album is a pin together with its photo records
type Album struct {
	Location *models.Location `json:"location"`
	State    AlbumState       `json:"state"`
	Photos   []*models.Photo  `json:"photos"`
}

// AlbumService acquires, caches and evicts the photos of each pin.
// Operations on one pin are serialized; image materialization runs in parallel.
type AlbumService struct {
	store    repository.RecordStore
	search   PhotoSearcher
	fetcher  ImageFetcher
	cache    PhotoCache
	mirror   objectstore.Store
	notifier AlbumNotifier

	locks    *keyedMutex
	urlLocks *keyedMutex

	stateMu sync.RWMutex
	states  map[string]AlbumState

	fetchMu sync.Mutex
	fetches map[string]*sharedFetch
}

// AlbumOption customizes an AlbumService
type AlbumOption func(*AlbumService)

// WithObjectStore mirrors cached images into a bucket
func WithObjectStore(store objectstore.Store) AlbumOption {
	return func(s *AlbumService) { s.mirror = store }
}

// WithNotifier publishes album state changes
func WithNotifier(n AlbumNotifier) AlbumOption {
	return func(s *AlbumService) { s.notifier = n }
}

// NewAlbumService creates a new album service
func NewAlbumService(
	store repository.RecordStore,
	search PhotoSearcher,
	fetcher ImageFetcher,
	cache PhotoCache,
	opts ...AlbumOption,
) *AlbumService {
	s := &AlbumService{
		store:    store,
		search:   search,
		fetcher:  fetcher,
		cache:    cache,
		notifier: nopNotifier{},
		locks:    newKeyedMutex(),
		urlLocks: newKeyedMutex(),
		states:   make(map[string]AlbumState),
		fetches:  make(map[string]*sharedFetch),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the album state of a pin. Pins not touched since start-up
// are reported from the record store.
func (s *AlbumService) State(ctx context.Context, locationID string) (AlbumState, error) {
	s.stateMu.RLock()
	st, ok := s.states[locationID]
	s.stateMu.RUnlock()
	if ok {
		return st, nil
	}

	n, err := s.store.CountPhotos(ctx, locationID)
	if err != nil {
		return "", err
	}
	if n > 0 {
		return AlbumPopulated, nil
	}
	return AlbumEmpty, nil
}

// PhotoCount returns the number of photo records of a pin
func (s *AlbumService) PhotoCount(ctx context.Context, locationID string) (int, error) {
	return s.store.CountPhotos(ctx, locationID)
}

func (s *AlbumService) setState(locationID string, st AlbumState) {
	s.stateMu.Lock()
	s.states[locationID] = st
	s.stateMu.Unlock()
}

func (s *AlbumService) forgetState(locationID string) {
	s.stateMu.Lock()
	delete(s.states, locationID)
	s.stateMu.Unlock()
}

func (s *AlbumService) notify(ctx context.Context, loc *models.Location, event AlbumEvent) {
	event.LocationID = loc.ID
	s.notifier.NotifyAlbum(ctx, loc.TravelerID, event)
}

// EnsureLoaded returns the album of a pin, searching for photos first when
// the pin has none. A failed search leaves the album populated but empty and
// is not retried.
func (s *AlbumService) EnsureLoaded(ctx context.Context, locationID string) (*Album, error) {
	unlock := s.locks.Lock(locationID)
	defer unlock()

	loc, err := s.store.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	return s.ensureLoadedLocked(ctx, loc)
}

func (s *AlbumService) ensureLoadedLocked(ctx context.Context, loc *models.Location) (*Album, error) {
	photos, err := s.store.ListPhotos(ctx, loc.ID)
	if err != nil {
		return nil, err
	}
	if len(photos) > 0 {
		s.setState(loc.ID, AlbumPopulated)
		return &Album{Location: loc, State: AlbumPopulated, Photos: photos}, nil
	}

	s.setState(loc.ID, AlbumLoading)
	s.notify(ctx, loc, AlbumEvent{Type: EventAlbumLoading})

	result, err := s.search.FindPhotos(ctx, loc.Coordinate(), loc.PagesKnown)
	if err != nil {
		log.Warn().
			Err(err).
			Str("location_id", loc.ID).
			Msg("Photo search failed")

		s.setState(loc.ID, AlbumPopulated)
		s.notify(ctx, loc, AlbumEvent{Type: EventAlbumError, Message: "Failed to load photos"})
		if !errors.Is(err, ErrSearchFailed) {
			err = fmt.Errorf("%w: %w", ErrSearchFailed, err)
		}
		return &Album{Location: loc, State: AlbumPopulated, Photos: []*models.Photo{}}, err
	}

	now := time.Now()
	records := make([]*models.Photo, 0, len(result.Photos))
	for _, d := range result.Photos {
		records = append(records, newPhotoRecord(loc.ID, d, now))
	}

	updated := *loc
	updated.PagesKnown = result.Pages
	updated.UpdatedAt = now

	err = s.store.InTx(ctx, func(q repository.Queries) error {
		for _, p := range records {
			if err := q.CreatePhoto(ctx, p); err != nil {
				return err
			}
		}
		return q.UpdateLocation(ctx, &updated)
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("location_id", loc.ID).
			Int("photos", len(records)).
			Msg("Failed to persist photo records")

		s.setState(loc.ID, AlbumPopulated)
		s.notify(ctx, loc, AlbumEvent{Type: EventAlbumError, Message: "Failed to save photos"})
		return &Album{Location: loc, State: AlbumPopulated, Photos: []*models.Photo{}},
			fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	*loc = updated

	log.Info().
		Str("location_id", loc.ID).
		Int("photos", len(records)).
		Int("pages_known", loc.PagesKnown).
		Int("page", result.Window.Page).
		Msg("Album loaded")

	s.setState(loc.ID, AlbumPopulated)
	s.notify(ctx, loc, AlbumEvent{Type: EventAlbumPopulated, PhotoCount: len(records)})

	return &Album{Location: loc, State: AlbumPopulated, Photos: records}, nil
}

// newPhotoRecord normalizes a search descriptor. Bad ids become
// models.InvalidRemoteID instead of failing the page.
func newPhotoRecord(locationID string, d flickr.Descriptor, now time.Time) *models.Photo {
	remoteID, err := strconv.ParseInt(d.ID, 10, 64)
	if err != nil {
		remoteID = models.InvalidRemoteID
	}
	return &models.Photo{
		ID:         uuid.New().String(),
		LocationID: locationID,
		RemoteID:   remoteID,
		RemoteURL:  d.URL,
		CreatedAt:  now,
	}
}

// Refresh replaces the album with a new search. The page count is kept so
// the next random page can come from anywhere in the known range.
func (s *AlbumService) Refresh(ctx context.Context, locationID string) (*Album, error) {
	unlock := s.locks.Lock(locationID)
	defer unlock()

	loc, err := s.store.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if err := s.purgeLocked(ctx, loc); err != nil {
		return nil, err
	}
	return s.ensureLoadedLocked(ctx, loc)
}

// Relocate moves a pin. Its photos belong to the old position, so they are
// purged before the coordinate changes.
func (s *AlbumService) Relocate(ctx context.Context, locationID string, coord models.Coordinate) (*models.Location, error) {
	if !coord.Valid() {
		return nil, models.ErrInvalidCoordinate
	}

	unlock := s.locks.Lock(locationID)
	defer unlock()

	loc, err := s.store.GetLocation(ctx, locationID)
	if err != nil {
		return nil, err
	}
	if err := s.purgeLocked(ctx, loc); err != nil {
		return nil, err
	}

	moved := *loc
	moved.Latitude = coord.Latitude
	moved.Longitude = coord.Longitude
	moved.PagesKnown = 0
	moved.UpdatedAt = time.Now()

	err = s.store.InTx(ctx, func(q repository.Queries) error {
		return q.UpdateLocation(ctx, &moved)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	log.Info().
		Str("location_id", loc.ID).
		Float64("lat", coord.Latitude).
		Float64("lon", coord.Longitude).
		Msg("Pin moved")

	return &moved, nil
}

// RemoveOne deletes a single photo and its cached image. Removing the last
// photo leaves an empty populated album.
func (s *AlbumService) RemoveOne(ctx context.Context, photoID string) error {
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return err
	}

	unlock := s.locks.Lock(photo.LocationID)
	defer unlock()

	// re-read under the pin lock; a purge may have won the race
	photo, err = s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return err
	}
	loc, err := s.store.GetLocation(ctx, photo.LocationID)
	if err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(q repository.Queries) error {
		return q.DeletePhoto(ctx, photo.ID)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.evictImage(ctx, photo.RemoteURL)

	s.notify(ctx, loc, AlbumEvent{Type: EventPhotoRemoved, PhotoID: photo.ID})
	return nil
}

// Discard purges the album and deletes the pin
func (s *AlbumService) Discard(ctx context.Context, locationID string) error {
	unlock := s.locks.Lock(locationID)
	defer unlock()

	loc, err := s.store.GetLocation(ctx, locationID)
	if err != nil {
		return err
	}
	if err := s.purgeLocked(ctx, loc); err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(q repository.Queries) error {
		return q.DeleteLocation(ctx, loc.ID)
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.forgetState(loc.ID)
	log.Info().Str("location_id", loc.ID).Msg("Pin deleted")
	return nil
}

// purgeLocked deletes every photo record of loc and then its cached images.
// Records go first so no new download can start for them; cache failures
// are only logged.
func (s *AlbumService) purgeLocked(ctx context.Context, loc *models.Location) error {
	photos, err := s.store.ListPhotos(ctx, loc.ID)
	if err != nil {
		return err
	}

	err = s.store.InTx(ctx, func(q repository.Queries) error {
		for _, p := range photos {
			if err := q.DeletePhoto(ctx, p.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	s.evictImages(ctx, photos)

	s.setState(loc.ID, AlbumEmpty)
	s.notify(ctx, loc, AlbumEvent{Type: EventAlbumPurged, PhotoCount: len(photos)})

	log.Debug().
		Str("location_id", loc.ID).
		Int("photos", len(photos)).
		Msg("Album purged")

	return nil
}

func (s *AlbumService) evictImages(ctx context.Context, photos []*models.Photo) {
	seen := make(map[string]struct{}, len(photos))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(evictConcurrency)

	for _, p := range photos {
		if _, dup := seen[p.RemoteURL]; dup {
			continue
		}
		seen[p.RemoteURL] = struct{}{}

		remoteURL := p.RemoteURL
		g.Go(func() error {
			s.evictImage(gctx, remoteURL)
			return nil
		})
	}
	_ = g.Wait()
}

// evictImage removes the cached bytes of remoteURL from disk and the mirror.
// A download still running for remoteURL is abandoned first so it cannot
// bring the file back.
func (s *AlbumService) evictImage(ctx context.Context, remoteURL string) {
	if remoteURL == "" {
		return
	}

	unlock := s.urlLocks.Lock(remoteURL)
	defer unlock()
	s.abandonFetch(remoteURL)

	if err := s.cache.Delete(remoteURL); err != nil {
		log.Warn().Err(err).Str("url", remoteURL).Msg("Failed to delete cached image")
	}

	if s.mirror == nil {
		return
	}
	key, err := imagecache.Key(remoteURL)
	if err != nil {
		return
	}
	if err := s.mirror.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("url", remoteURL).Msg("Failed to delete mirrored image")
	}
}
