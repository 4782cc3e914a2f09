package models

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// InvalidRemoteID is stored when a search descriptor carries a missing or
// non-numeric id.
const InvalidRemoteID int64 = 0

// ErrInvalidCoordinate is returned for coordinates outside the valid range
var ErrInvalidCoordinate = errors.New("invalid coordinate")

// Coordinate is a point in degrees
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Valid reports whether the coordinate is finite and within range
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Latitude) || math.IsNaN(c.Longitude) ||
		math.IsInf(c.Latitude, 0) || math.IsInf(c.Longitude, 0) {
		return false
	}
	return c.Latitude >= -90 && c.Latitude <= 90 &&
		c.Longitude >= -180 && c.Longitude <= 180
}

// MapAnnotatable is what the map layer needs to draw a pin
type MapAnnotatable interface {
	Coordinate() Coordinate
	Title() string
	Subtitle() string
}

// Traveler is an anonymous account owning pins
type Traveler struct {
	ID        string    `json:"id"`
	Token     string    `json:"token,omitempty"`
	PushToken *string   `json:"push_token,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Location is a pin dropped by a traveler. It owns its photos.
type Location struct {
	ID         string    `json:"id"`
	TravelerID string    `json:"traveler_id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	PagesKnown int       `json:"pages_known"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

var _ MapAnnotatable = (*Location)(nil)

// Coordinate returns the pin position
func (l *Location) Coordinate() Coordinate {
	return Coordinate{Latitude: l.Latitude, Longitude: l.Longitude}
}

// Title renders the coordinate for the pin callout
func (l *Location) Title() string {
	return fmt.Sprintf("%.4f, %.4f", l.Latitude, l.Longitude)
}

// Subtitle renders when the pin was placed
func (l *Location) Subtitle() string {
	return "Dropped " + l.CreatedAt.Format("Jan 2, 2006")
}

// Photo is one search result persisted for a location
type Photo struct {
	ID             string    `json:"id"`
	LocationID     string    `json:"location_id"`
	RemoteID       int64     `json:"remote_id"`
	RemoteURL      string    `json:"remote_url"`
	LocalCachePath *string   `json:"local_cache_path,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// MapRegion is the last map viewport a traveler looked at
type MapRegion struct {
	TravelerID     string    `json:"-"`
	Latitude       float64   `json:"latitude"`
	Longitude      float64   `json:"longitude"`
	LatitudeDelta  float64   `json:"latitude_delta"`
	LongitudeDelta float64   `json:"longitude_delta"`
	UpdatedAt      time.Time `json:"updated_at"`
}
