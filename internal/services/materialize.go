package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"sync"

	"virtual-tourist-backend/internal/imagecache"
	"virtual-tourist-backend/internal/models"
	"virtual-tourist-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

// ImageSource tells where materialized bytes came from
type ImageSource string

const (
	SourcePlaceholder ImageSource = "placeholder"
	SourceCache       ImageSource = "cache"
	SourceObjectStore ImageSource = "object_store"
	SourceNetwork     ImageSource = "network"
)

// ImageResult is a displayable image or the no-image placeholder
type ImageResult struct {
	PhotoID     string
	Data        []byte
	ContentType string
	Placeholder bool
	Source      ImageSource
}

func placeholderResult(photoID string) ImageResult {
	return ImageResult{PhotoID: photoID, Placeholder: true, Source: SourcePlaceholder}
}

// MaterializeHandle tracks one materialize request. Cancel is for callers
// that no longer need the image, e.g. a grid cell reused for another photo.
type MaterializeHandle struct {
	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	result   ImageResult
	err      error
}

func newMaterializeHandle() *MaterializeHandle {
	return &MaterializeHandle{stop: make(chan struct{}), done: make(chan struct{})}
}

func completedHandle(res ImageResult, err error) *MaterializeHandle {
	h := newMaterializeHandle()
	h.result, h.err = res, err
	close(h.done)
	return h
}

// Cancel abandons the request. The completion callback will not run.
func (h *MaterializeHandle) Cancel() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Done is closed once the request has finished or been canceled
func (h *MaterializeHandle) Done() <-chan struct{} {
	return h.done
}

// Result blocks until the request is done. A canceled request returns ErrCanceled.
func (h *MaterializeHandle) Result() (ImageResult, error) {
	<-h.done
	return h.result, h.err
}

func (h *MaterializeHandle) canceled() bool {
	select {
	case <-h.stop:
		return true
	default:
		return false
	}
}

// sharedFetch is one network download shared by every request for the same URL.
// It is canceled when its last waiter leaves.
type sharedFetch struct {
	task      *FetchTask
	waiters   int
	abandoned bool
	done      chan struct{}

	data        []byte
	contentType string
	path        string
	err         error
}

// Materialize resolves a photo record to image bytes: placeholder for records
// without a URL, then the disk cache, the object store and finally the network.
// onDone, if set, is called once with the outcome unless the request is canceled.
func (s *AlbumService) Materialize(ctx context.Context, photoID string, onDone func(ImageResult)) (*MaterializeHandle, error) {
	photo, err := s.store.GetPhoto(ctx, photoID)
	if err != nil {
		return nil, err
	}
	if onDone == nil {
		onDone = func(ImageResult) {}
	}

	if photo.RemoteURL == "" {
		res := placeholderResult(photo.ID)
		onDone(res)
		return completedHandle(res, nil), nil
	}

	if res, ok := s.fromDisk(ctx, photo); ok {
		onDone(res)
		return completedHandle(res, nil), nil
	}

	h := newMaterializeHandle()
	go s.materializeRemote(ctx, photo, h, onDone)
	return h, nil
}

// MaterializeNow is Materialize for callers that want to block
func (s *AlbumService) MaterializeNow(ctx context.Context, photoID string) (ImageResult, error) {
	h, err := s.Materialize(ctx, photoID, nil)
	if err != nil {
		return ImageResult{}, err
	}
	return h.Result()
}

func (s *AlbumService) fromDisk(ctx context.Context, photo *models.Photo) (ImageResult, bool) {
	data, ok, err := s.cache.Read(photo.RemoteURL)
	if err != nil {
		log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Failed to read cached image")
		return ImageResult{}, false
	}
	if !ok {
		return ImageResult{}, false
	}

	contentType, err := sniffImage(data)
	if err != nil {
		log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Discarding undecodable cached image")
		if err := s.cache.Delete(photo.RemoteURL); err != nil {
			log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Failed to delete cached image")
		}
		return ImageResult{}, false
	}

	if path, err := s.cache.PathFor(photo.RemoteURL); err == nil {
		s.recordCachePath(ctx, photo, path)
	}
	return ImageResult{PhotoID: photo.ID, Data: data, ContentType: contentType, Source: SourceCache}, true
}

func (s *AlbumService) fromMirror(ctx context.Context, photo *models.Photo) (ImageResult, bool) {
	if s.mirror == nil {
		return ImageResult{}, false
	}
	key, err := imagecache.Key(photo.RemoteURL)
	if err != nil {
		return ImageResult{}, false
	}

	// held across the read and the disk write so an eviction cannot interleave
	unlock := s.urlLocks.Lock(photo.RemoteURL)
	defer unlock()
	if !s.photoExists(ctx, photo) {
		return ImageResult{}, false
	}

	data, ok, err := s.mirror.Get(ctx, key)
	if err != nil {
		log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Failed to read mirrored image")
		return ImageResult{}, false
	}
	if !ok {
		return ImageResult{}, false
	}
	contentType, err := sniffImage(data)
	if err != nil {
		return ImageResult{}, false
	}

	path, err := s.cache.Write(photo.RemoteURL, data)
	if err != nil {
		log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Failed to cache mirrored image")
	} else {
		s.recordCachePath(ctx, photo, path)
	}
	return ImageResult{PhotoID: photo.ID, Data: data, ContentType: contentType, Source: SourceObjectStore}, true
}

func (s *AlbumService) materializeRemote(ctx context.Context, photo *models.Photo, h *MaterializeHandle, onDone func(ImageResult)) {
	defer close(h.done)

	if res, ok := s.fromMirror(ctx, photo); ok {
		if h.canceled() || ctx.Err() != nil {
			h.err = ErrCanceled
			return
		}
		h.result = res
		onDone(res)
		return
	}

	sf, err := s.joinLiveFetch(ctx, photo)
	if err != nil {
		h.err = err
		return
	}
	select {
	case <-sf.done:
	case <-h.stop:
		s.leaveFetch(photo.RemoteURL, sf)
		h.err = ErrCanceled
		return
	case <-ctx.Done():
		s.leaveFetch(photo.RemoteURL, sf)
		h.err = ErrCanceled
		return
	}

	if h.canceled() || errors.Is(sf.err, ErrCanceled) {
		h.err = ErrCanceled
		return
	}

	if sf.err != nil {
		log.Warn().
			Err(sf.err).
			Str("photo_id", photo.ID).
			Str("url", photo.RemoteURL).
			Msg("Image download failed")

		h.result = placeholderResult(photo.ID)
		h.err = sf.err
		onDone(h.result)
		return
	}

	s.recordCachePath(ctx, photo, sf.path)

	h.result = ImageResult{
		PhotoID:     photo.ID,
		Data:        sf.data,
		ContentType: sf.contentType,
		Source:      SourceNetwork,
	}
	onDone(h.result)
}

// joinLiveFetch joins the download for photo; a record deleted in the
// meantime reports ErrCanceled. Evictions delete records before they take the
// URL lock, so a fetch joined here is either abandoned by the eviction or
// never started.
func (s *AlbumService) joinLiveFetch(ctx context.Context, photo *models.Photo) (*sharedFetch, error) {
	unlock := s.urlLocks.Lock(photo.RemoteURL)
	defer unlock()

	if _, err := s.store.GetPhoto(ctx, photo.ID); err != nil {
		if errors.Is(err, repository.ErrNotFound) || ctx.Err() != nil {
			return nil, ErrCanceled
		}
		return nil, err
	}
	return s.joinFetch(ctx, photo.RemoteURL), nil
}

func (s *AlbumService) photoExists(ctx context.Context, photo *models.Photo) bool {
	_, err := s.store.GetPhoto(ctx, photo.ID)
	return err == nil
}

func (s *AlbumService) joinFetch(ctx context.Context, remoteURL string) *sharedFetch {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	if sf, ok := s.fetches[remoteURL]; ok {
		sf.waiters++
		return sf
	}

	// the download outlives whichever request started it
	detached := context.WithoutCancel(ctx)
	sf := &sharedFetch{
		task:    s.fetcher.Fetch(detached, remoteURL),
		waiters: 1,
		done:    make(chan struct{}),
	}
	s.fetches[remoteURL] = sf
	go s.fill(detached, remoteURL, sf)
	return sf
}

func (s *AlbumService) leaveFetch(remoteURL string, sf *sharedFetch) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	sf.waiters--
	if sf.waiters > 0 {
		return
	}
	sf.abandoned = true
	sf.task.Cancel()
	if s.fetches[remoteURL] == sf {
		delete(s.fetches, remoteURL)
	}
}

// abandonFetch detaches the in-flight download of remoteURL, if any, so it
// finishes as canceled and writes nothing. Callers hold the URL lock.
func (s *AlbumService) abandonFetch(remoteURL string) {
	s.fetchMu.Lock()
	defer s.fetchMu.Unlock()

	sf, ok := s.fetches[remoteURL]
	if !ok {
		return
	}
	sf.abandoned = true
	sf.task.Cancel()
	delete(s.fetches, remoteURL)
}

// fill waits for the download and caches it. Undecodable bytes are never cached.
func (s *AlbumService) fill(ctx context.Context, remoteURL string, sf *sharedFetch) {
	data, err := sf.task.Result()

	// an eviction of remoteURL either runs before this check and abandons sf,
	// or waits until the write below is done and then removes it
	unlock := s.urlLocks.Lock(remoteURL)
	s.fetchMu.Lock()
	if sf.abandoned {
		err = ErrCanceled
	}
	s.fetchMu.Unlock()

	if err == nil {
		contentType, decodeErr := sniffImage(data)
		if decodeErr != nil {
			err = fmt.Errorf("%w: %w", ErrFetchFailed, decodeErr)
		} else {
			sf.data = data
			sf.contentType = contentType
			sf.path = s.storeImage(ctx, remoteURL, data, contentType)
		}
	}
	unlock()
	sf.err = err

	s.fetchMu.Lock()
	if s.fetches[remoteURL] == sf {
		delete(s.fetches, remoteURL)
	}
	s.fetchMu.Unlock()

	close(sf.done)
}

// storeImage writes to disk and the mirror, returning the disk path or ""
func (s *AlbumService) storeImage(ctx context.Context, remoteURL string, data []byte, contentType string) string {
	path, err := s.cache.Write(remoteURL, data)
	if err != nil {
		log.Warn().Err(err).Str("url", remoteURL).Msg("Failed to cache image")
		path = ""
	}

	if s.mirror != nil {
		if key, err := imagecache.Key(remoteURL); err == nil {
			if err := s.mirror.Put(ctx, key, data, contentType); err != nil {
				log.Warn().Err(err).Str("url", remoteURL).Msg("Failed to mirror image")
			}
		}
	}
	return path
}

func (s *AlbumService) recordCachePath(ctx context.Context, photo *models.Photo, path string) {
	if path == "" {
		return
	}
	if photo.LocalCachePath != nil && *photo.LocalCachePath == path {
		return
	}
	if err := s.store.SetPhotoCachePath(context.WithoutCancel(ctx), photo.ID, &path); err != nil {
		log.Warn().Err(err).Str("photo_id", photo.ID).Msg("Failed to record cache path")
		return
	}
	photo.LocalCachePath = &path
}

// sniffImage checks that data decodes as an image and returns its content type
func sniffImage(data []byte) (string, error) {
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("undecodable image: %w", err)
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return "", fmt.Errorf("image has no pixels")
	}
	return "image/" + format, nil
}
