// Package flickr searches the Flickr REST API for geotagged photos.
package flickr

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"virtual-tourist-backend/internal/config"
	"virtual-tourist-backend/internal/models"

	"github.com/rs/zerolog/log"
)

const (
	searchMethod = "flickr.photos.search"
	safeSearch   = "1"
	dataFormat   = "json"
	noCallback   = "1"
	mediaPhotos  = "photos"

	// UnknownPages asks the client to fall back to the last page count it saw
	UnknownPages = -1

	maxResponseBytes = 8 << 20
)

var (
	// ErrSearchFailed is wrapped by every search failure
	ErrSearchFailed = errors.New("photo search failed")
	// ErrTransport is a network level failure
	ErrTransport = fmt.Errorf("%w: transport", ErrSearchFailed)
	// ErrProtocol is a bad status, body or schema
	ErrProtocol = fmt.Errorf("%w: protocol", ErrSearchFailed)
)

// Descriptor is one entry of the photo array in a search response
type Descriptor struct {
	ID  string
	URL string
}

// SearchResult is a decoded search page
type SearchResult struct {
	Photos []Descriptor
	Pages  int
	Window PageWindow
}

// Client issues photo searches. It is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	extras     string
	perPage    int

	now  func() time.Time
	intn func(n int) int

	mu        sync.Mutex
	lastPages int
}

// Option customizes a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithClock replaces time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// WithRand replaces the page number source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option {
	return func(c *Client) { c.intn = intn }
}

// NewClient creates a new search client
func NewClient(cfg config.FlickrConfig, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		extras:     cfg.Extras,
		perPage:    cfg.PerPage,
		now:        time.Now,
		intn:       rand.IntN,
	}
	if c.perPage <= 0 {
		c.perPage = 100
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// LastPages returns the page count of the most recent successful search
func (c *Client) LastPages() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastPages
}

// FindPhotos requests one randomly chosen page of photos around coord.
// knownPages is the page count observed by an earlier search for the same
// place; 0 always requests page 1.
func (c *Client) FindPhotos(ctx context.Context, coord models.Coordinate, knownPages int) (*SearchResult, error) {
	if !coord.Valid() {
		return nil, fmt.Errorf("%w: %w", ErrSearchFailed, models.ErrInvalidCoordinate)
	}
	if knownPages == UnknownPages {
		knownPages = c.LastPages()
	}

	window := NewPageWindow(c.now(), knownPages, c.intn)
	reqURL, err := c.searchURL(coord, window)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrProtocol, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrTransport, err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, fmt.Errorf("%w: empty body", ErrProtocol)
	}

	page, err := decodeSearchResponse(body, c.extras)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProtocol, err)
	}

	c.mu.Lock()
	c.lastPages = page.Pages
	c.mu.Unlock()

	log.Debug().
		Float64("lat", coord.Latitude).
		Float64("lon", coord.Longitude).
		Int("page", window.Page).
		Int("pages", page.Pages).
		Int("photos", len(page.Photos)).
		Msg("Photo search completed")

	return &SearchResult{
		Photos: page.Photos,
		Pages:  page.Pages,
		Window: window,
	}, nil
}

func (c *Client) searchURL(coord models.Coordinate, window PageWindow) (string, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("invalid base url: %w", err)
	}

	q := url.Values{}
	q.Set("method", searchMethod)
	q.Set("api_key", c.apiKey)
	q.Set("safe_search", safeSearch)
	q.Set("extras", c.extras)
	q.Set("format", dataFormat)
	q.Set("nojsoncallback", noCallback)
	q.Set("media", mediaPhotos)
	q.Set("per_page", strconv.Itoa(c.perPage))
	q.Set("page", strconv.Itoa(window.Page))
	q.Set("min_upload_date", strconv.FormatInt(window.MinUploadDate.Unix(), 10))
	q.Set("max_upload_date", strconv.FormatInt(window.MaxUploadDate.Unix(), 10))
	q.Set("lat", strconv.FormatFloat(coord.Latitude, 'f', -1, 64))
	q.Set("lon", strconv.FormatFloat(coord.Longitude, 'f', -1, 64))
	u.RawQuery = q.Encode()

	return u.String(), nil
}
