package repository

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"virtual-tourist-backend/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func seedTraveler(t *testing.T, q Queries) *models.Traveler {
	t.Helper()
	tr := &models.Traveler{ID: uuid.New().String(), CreatedAt: time.Now().UTC()}
	require.NoError(t, q.CreateTraveler(context.Background(), tr))
	return tr
}

func seedLocation(t *testing.T, q Queries, travelerID string, lat, lon float64, created time.Time) *models.Location {
	t.Helper()
	loc := &models.Location{
		ID:         uuid.New().String(),
		TravelerID: travelerID,
		Latitude:   lat,
		Longitude:  lon,
		CreatedAt:  created,
		UpdatedAt:  created,
	}
	require.NoError(t, q.CreateLocation(context.Background(), loc))
	return loc
}

func seedPhoto(t *testing.T, q Queries, locationID string, remoteID int64, url string) *models.Photo {
	t.Helper()
	p := &models.Photo{
		ID:         uuid.New().String(),
		LocationID: locationID,
		RemoteID:   remoteID,
		RemoteURL:  url,
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, q.CreatePhoto(context.Background(), p))
	return p
}

func TestTravelerPushToken(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tr := seedTraveler(t, store)

	got, err := store.GetTraveler(ctx, tr.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PushToken)

	token := "a1b2c3"
	require.NoError(t, store.UpdatePushToken(ctx, tr.ID, &token))
	got, err = store.GetTraveler(ctx, tr.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PushToken)
	assert.Equal(t, token, *got.PushToken)

	require.NoError(t, store.UpdatePushToken(ctx, tr.ID, nil))
	got, err = store.GetTraveler(ctx, tr.ID)
	require.NoError(t, err)
	assert.Nil(t, got.PushToken)

	err = store.UpdatePushToken(ctx, "missing", &token)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.GetTraveler(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLocationLifecycle(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tr := seedTraveler(t, store)
	now := time.Now().UTC().Truncate(time.Second)

	loc := seedLocation(t, store, tr.ID, 35.6762, 139.6503, now)

	got, err := store.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, loc.TravelerID, got.TravelerID)
	assert.InDelta(t, 35.6762, got.Latitude, 1e-12)
	assert.InDelta(t, 139.6503, got.Longitude, 1e-12)
	assert.Zero(t, got.PagesKnown)
	assert.True(t, now.Equal(got.CreatedAt))

	got.PagesKnown = 17
	got.Latitude = 34.6937
	got.UpdatedAt = now.Add(time.Minute)
	require.NoError(t, store.UpdateLocation(ctx, got))

	got, err = store.GetLocation(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 17, got.PagesKnown)
	assert.InDelta(t, 34.6937, got.Latitude, 1e-12)

	seedPhoto(t, store, loc.ID, 1, "https://example.com/a.jpg")
	require.NoError(t, store.DeleteLocation(ctx, loc.ID))

	_, err = store.GetLocation(ctx, loc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	n, err := store.CountPhotos(ctx, loc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, store.DeleteLocation(ctx, loc.ID), ErrNotFound)
	assert.ErrorIs(t, store.UpdateLocation(ctx, loc), ErrNotFound)
}

func TestFindLocationNear(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	alice := seedTraveler(t, store)
	bob := seedTraveler(t, store)
	now := time.Now().UTC()

	older := seedLocation(t, store, alice.ID, 10.0, 20.0, now.Add(-time.Hour))
	seedLocation(t, store, alice.ID, 10.0000005, 20.0, now)

	got, err := store.FindLocationNear(ctx, alice.ID, models.Coordinate{Latitude: 10.0000002, Longitude: 19.9999999}, 1e-6, "")
	require.NoError(t, err)
	assert.Equal(t, older.ID, got.ID)

	_, err = store.FindLocationNear(ctx, alice.ID, models.Coordinate{Latitude: 10.001, Longitude: 20.0}, 1e-6, "")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = store.FindLocationNear(ctx, bob.ID, models.Coordinate{Latitude: 10.0, Longitude: 20.0}, 1e-6, "")
	assert.ErrorIs(t, err, ErrNotFound, "pins are scoped per traveler")

	_, err = store.FindLocationNear(ctx, alice.ID, models.Coordinate{Latitude: 10.0000002, Longitude: 20.0}, 0, "")
	assert.ErrorIs(t, err, ErrNotFound, "zero tolerance needs an exact match")

	got, err = store.FindLocationNear(ctx, alice.ID, models.Coordinate{Latitude: 10.0, Longitude: 20.0}, 1e-6, older.ID)
	require.NoError(t, err)
	assert.NotEqual(t, older.ID, got.ID, "the excluded pin is skipped")

	list, err := store.ListLocations(ctx, alice.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, older.ID, list[0].ID)

	list, err = store.ListLocations(ctx, bob.ID)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestPhotos(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tr := seedTraveler(t, store)
	loc := seedLocation(t, store, tr.ID, 1, 2, time.Now().UTC())

	b := seedPhoto(t, store, loc.ID, 200, "https://example.com/b.jpg")
	a := seedPhoto(t, store, loc.ID, 100, "https://example.com/a.jpg")
	seedPhoto(t, store, loc.ID, models.InvalidRemoteID, "")

	photos, err := store.ListPhotos(ctx, loc.ID)
	require.NoError(t, err)
	require.Len(t, photos, 3)
	assert.Equal(t, models.InvalidRemoteID, photos[0].RemoteID)
	assert.Equal(t, a.ID, photos[1].ID)
	assert.Equal(t, b.ID, photos[2].ID)

	n, err := store.CountPhotos(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	path := "/var/cache/a.jpg"
	require.NoError(t, store.SetPhotoCachePath(ctx, a.ID, &path))
	got, err := store.GetPhoto(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LocalCachePath)
	assert.Equal(t, path, *got.LocalCachePath)

	require.NoError(t, store.SetPhotoCachePath(ctx, a.ID, nil))
	got, err = store.GetPhoto(ctx, a.ID)
	require.NoError(t, err)
	assert.Nil(t, got.LocalCachePath)

	require.NoError(t, store.DeletePhoto(ctx, a.ID))
	assert.ErrorIs(t, store.DeletePhoto(ctx, a.ID), ErrNotFound)
	_, err = store.GetPhoto(ctx, a.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, store.SetPhotoCachePath(ctx, a.ID, &path), ErrNotFound)
}

func TestInTxRollsBack(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tr := seedTraveler(t, store)
	loc := seedLocation(t, store, tr.ID, 1, 2, time.Now().UTC())

	boom := errors.New("boom")
	err := store.InTx(ctx, func(q Queries) error {
		seedPhoto(t, q, loc.ID, 1, "https://example.com/1.jpg")
		seedPhoto(t, q, loc.ID, 2, "https://example.com/2.jpg")
		return boom
	})
	assert.ErrorIs(t, err, boom)

	n, err := store.CountPhotos(ctx, loc.ID)
	require.NoError(t, err)
	assert.Zero(t, n)

	err = store.InTx(ctx, func(q Queries) error {
		seedPhoto(t, q, loc.ID, 1, "https://example.com/1.jpg")
		return nil
	})
	require.NoError(t, err)

	n, err = store.CountPhotos(ctx, loc.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestMapRegionUpsert(t *testing.T) {
	ctx := context.Background()
	store := newTestStore(t)
	tr := seedTraveler(t, store)

	_, err := store.GetMapRegion(ctx, tr.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	region := &models.MapRegion{
		TravelerID:     tr.ID,
		Latitude:       40.7128,
		Longitude:      -74.006,
		LatitudeDelta:  0.5,
		LongitudeDelta: 0.5,
		UpdatedAt:      time.Now().UTC(),
	}
	require.NoError(t, store.SaveMapRegion(ctx, region))

	region.Latitude = 51.5074
	region.LongitudeDelta = 2
	require.NoError(t, store.SaveMapRegion(ctx, region))

	got, err := store.GetMapRegion(ctx, tr.ID)
	require.NoError(t, err)
	assert.InDelta(t, 51.5074, got.Latitude, 1e-12)
	assert.InDelta(t, 2.0, got.LongitudeDelta, 1e-12)
	assert.InDelta(t, 0.5, got.LatitudeDelta, 1e-12)
}

func TestSQLiteFileStore(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "tourist.db")

	store, err := NewSQLite(path)
	require.NoError(t, err)
	tr := seedTraveler(t, store)
	assert.Equal(t, "SQLite", store.DatabaseType())
	require.NoError(t, store.Ping(ctx))
	store.Close()

	reopened, err := NewSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	_, err = reopened.GetTraveler(ctx, tr.ID)
	assert.NoError(t, err)
}
