package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"sync/atomic"

	"virtual-tourist-backend/internal/config"
)

var (
	// ErrFetchFailed is a network failure or non-2xx response while downloading an image
	ErrFetchFailed = errors.New("image fetch failed")
	// ErrCanceled reports a download abandoned by its caller. It is not a failure.
	ErrCanceled = errors.New("image fetch canceled")
)

// ImageFetcher downloads raw image bytes
type ImageFetcher interface {
	Fetch(ctx context.Context, rawURL string) *FetchTask
}

// FetchTask is an in-flight download. Cancel never blocks.
type FetchTask struct {
	cancel   context.CancelFunc
	canceled atomic.Bool
	done     chan struct{}
	data     []byte
	err      error
}

// Cancel abandons the download. Result then reports ErrCanceled.
func (t *FetchTask) Cancel() {
	t.canceled.Store(true)
	t.cancel()
}

// Done is closed when the download has finished or been canceled
func (t *FetchTask) Done() <-chan struct{} {
	return t.done
}

// Result blocks until the task is done
func (t *FetchTask) Result() ([]byte, error) {
	<-t.done
	return t.data, t.err
}

// RunFetchTask runs fn in its own goroutine and returns a handle to it.
// A task canceled before fn returns never exposes fn's bytes.
func RunFetchTask(ctx context.Context, fn func(ctx context.Context) ([]byte, error)) *FetchTask {
	ctx, cancel := context.WithCancel(ctx)
	t := &FetchTask{cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(t.done)
		defer cancel()

		data, err := fn(ctx)
		switch {
		case t.canceled.Load() || errors.Is(ctx.Err(), context.Canceled):
			t.err = ErrCanceled
		case err != nil:
			t.err = err
		default:
			t.data = data
		}
	}()

	return t
}

// HTTPImageFetcher downloads images over HTTP with a per-host concurrency cap
type HTTPImageFetcher struct {
	client   *http.Client
	maxBytes int64
	limiter  *hostLimiter
}

var _ ImageFetcher = (*HTTPImageFetcher)(nil)

// NewHTTPImageFetcher creates a new image fetcher
func NewHTTPImageFetcher(cfg config.CacheConfig) *HTTPImageFetcher {
	return &HTTPImageFetcher{
		client:   &http.Client{Timeout: cfg.FetchTimeout},
		maxBytes: cfg.MaxImageBytes,
		limiter:  newHostLimiter(cfg.PerHostConcurrency),
	}
}

// Fetch starts downloading rawURL and returns immediately
func (f *HTTPImageFetcher) Fetch(ctx context.Context, rawURL string) *FetchTask {
	return RunFetchTask(ctx, func(ctx context.Context) ([]byte, error) {
		return f.get(ctx, rawURL)
	})
}

func (f *HTTPImageFetcher) get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	if err := f.limiter.acquire(ctx, u.Host); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer f.limiter.release(u.Host)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrFetchFailed, resp.StatusCode)
	}

	body := io.Reader(resp.Body)
	if f.maxBytes > 0 {
		body = io.LimitReader(resp.Body, f.maxBytes+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	if f.maxBytes > 0 && int64(len(data)) > f.maxBytes {
		return nil, fmt.Errorf("%w: image larger than %d bytes", ErrFetchFailed, f.maxBytes)
	}
	return data, nil
}

// hostLimiter bounds parallel downloads from any single host
type hostLimiter struct {
	mu         sync.Mutex
	perHost    int
	semaphores map[string]chan struct{}
}

func newHostLimiter(perHost int) *hostLimiter {
	if perHost <= 0 {
		perHost = 1
	}
	return &hostLimiter{
		perHost:    perHost,
		semaphores: make(map[string]chan struct{}),
	}
}

// acquire gets a slot for the host, blocking if necessary
func (l *hostLimiter) acquire(ctx context.Context, host string) error {
	l.mu.Lock()
	sem, ok := l.semaphores[host]
	if !ok {
		sem = make(chan struct{}, l.perHost)
		l.semaphores[host] = sem
	}
	l.mu.Unlock()

	select {
	case sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// release returns a slot for the host
func (l *hostLimiter) release(host string) {
	l.mu.Lock()
	sem := l.semaphores[host]
	l.mu.Unlock()
	<-sem
}
