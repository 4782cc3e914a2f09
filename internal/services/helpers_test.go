package services

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"testing"
	"time"

	"virtual-tourist-backend/internal/flickr"
	"virtual-tourist-backend/internal/imagecache"
	"virtual-tourist-backend/internal/models"
	"virtual-tourist-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

// fakeSearcher replays scripted search outcomes
type fakeSearcher struct {
	mu      sync.Mutex
	results []*flickr.SearchResult
	errs    []error
	known   []int
}

func (f *fakeSearcher) push(res *flickr.SearchResult, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	f.errs = append(f.errs, err)
}

func (f *fakeSearcher) FindPhotos(ctx context.Context, coord models.Coordinate, knownPages int) (*flickr.SearchResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.known = append(f.known, knownPages)
	if len(f.results) == 0 {
		return nil, errors.New("unexpected search")
	}
	res, err := f.results[0], f.errs[0]
	f.results, f.errs = f.results[1:], f.errs[1:]
	return res, err
}

func (f *fakeSearcher) calls() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.known...)
}

func page(pages int, descriptors ...flickr.Descriptor) *flickr.SearchResult {
	return &flickr.SearchResult{Photos: descriptors, Pages: pages, Window: flickr.PageWindow{Page: 1}}
}

// fakeFetcher serves downloads through respond and counts them per URL
type fakeFetcher struct {
	mu      sync.Mutex
	count   map[string]int
	respond func(ctx context.Context, url string) ([]byte, error)
}

func newFakeFetcher(respond func(ctx context.Context, url string) ([]byte, error)) *fakeFetcher {
	return &fakeFetcher{count: make(map[string]int), respond: respond}
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) *FetchTask {
	f.mu.Lock()
	f.count[url]++
	f.mu.Unlock()
	return RunFetchTask(ctx, func(ctx context.Context) ([]byte, error) {
		return f.respond(ctx, url)
	})
}

func (f *fakeFetcher) calls(url string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count[url]
}

func (f *fakeFetcher) total() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.count {
		n += c
	}
	return n
}

// recordingNotifier keeps every album event
type recordingNotifier struct {
	mu     sync.Mutex
	events []AlbumEvent
}

func (n *recordingNotifier) NotifyAlbum(_ context.Context, _ string, event AlbumEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func (n *recordingNotifier) types() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, 0, len(n.events))
	for _, e := range n.events {
		out = append(out, e.Type)
	}
	return out
}

// memoryObjectStore is an in-memory bucket
type memoryObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjectStore() *memoryObjectStore {
	return &memoryObjectStore{objects: make(map[string][]byte)}
}

func (m *memoryObjectStore) Put(_ context.Context, key string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = append([]byte(nil), data...)
	return nil
}

func (m *memoryObjectStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[key]
	return data, ok, nil
}

func (m *memoryObjectStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryObjectStore) has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.objects[key]
	return ok
}

type albumFixture struct {
	store    *repository.SQLiteStore
	searcher *fakeSearcher
	fetcher  *fakeFetcher
	cache    *imagecache.Store
	notifier *recordingNotifier
	albums   *AlbumService
	traveler *models.Traveler
}

func newAlbumFixture(t *testing.T, fetch func(ctx context.Context, url string) ([]byte, error), opts ...AlbumOption) *albumFixture {
	t.Helper()

	store, err := repository.NewSQLite(":memory:")
	require.NoError(t, err)
	t.Cleanup(store.Close)

	cache, err := imagecache.New(t.TempDir())
	require.NoError(t, err)

	if fetch == nil {
		fetch = func(context.Context, string) ([]byte, error) {
			return nil, errors.New("unexpected fetch")
		}
	}

	f := &albumFixture{
		store:    store,
		searcher: &fakeSearcher{},
		fetcher:  newFakeFetcher(fetch),
		cache:    cache,
		notifier: &recordingNotifier{},
	}
	opts = append([]AlbumOption{WithNotifier(f.notifier)}, opts...)
	f.albums = NewAlbumService(store, f.searcher, f.fetcher, cache, opts...)

	f.traveler = &models.Traveler{ID: uuid.New().String(), CreatedAt: time.Now()}
	require.NoError(t, store.CreateTraveler(context.Background(), f.traveler))
	return f
}

func (f *albumFixture) location(t *testing.T, lat, lon float64) *models.Location {
	t.Helper()
	now := time.Now()
	loc := &models.Location{
		ID:         uuid.New().String(),
		TravelerID: f.traveler.ID,
		Latitude:   lat,
		Longitude:  lon,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, f.store.CreateLocation(context.Background(), loc))
	return loc
}

func (f *albumFixture) photo(t *testing.T, locationID, url string) *models.Photo {
	t.Helper()
	p := &models.Photo{
		ID:         uuid.New().String(),
		LocationID: locationID,
		RemoteID:   1,
		RemoteURL:  url,
		CreatedAt:  time.Now(),
	}
	require.NoError(t, f.store.CreatePhoto(context.Background(), p))
	return p
}

func (f *albumFixture) cached(t *testing.T, url string) bool {
	t.Helper()
	_, ok, err := f.cache.Read(url)
	require.NoError(t, err)
	return ok
}
