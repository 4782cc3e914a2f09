package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Album event types
const (
	EventAlbumLoading   = "album_loading"
	EventAlbumPopulated = "album_populated"
	EventAlbumError     = "album_error"
	EventAlbumPurged    = "album_purged"
	EventPhotoRemoved   = "photo_removed"
)

const (
	writeWait   = 10 * time.Second
	pushTimeout = 15 * time.Second
)

// AlbumEvent is a state change of one pin's album
type AlbumEvent struct {
	Type       string
	LocationID string
	PhotoID    string
	PhotoCount int
	Message    string
}

// AlbumNotifier receives album state changes for a traveler
type AlbumNotifier interface {
	NotifyAlbum(ctx context.Context, travelerID string, event AlbumEvent)
}

type nopNotifier struct{}

func (nopNotifier) NotifyAlbum(context.Context, string, AlbumEvent) {}

// WSMessage represents a WebSocket message
type WSMessage struct {
	Type       string `json:"type"`
	Timestamp  int64  `json:"timestamp,omitempty"`
	LocationID string `json:"location_id,omitempty"`
	PhotoID    string `json:"photo_id,omitempty"`
	PhotoCount *int   `json:"photo_count,omitempty"`
	Message    string `json:"message,omitempty"`
}

type wsClient struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections, one per traveler
type WSHub struct {
	mu          sync.RWMutex
	connections map[string]*wsClient
	pusher      Pusher
}

var _ AlbumNotifier = (*WSHub)(nil)

// NewWSHub creates a new WebSocket hub. pusher may be nil.
func NewWSHub(pusher Pusher) *WSHub {
	return &WSHub{
		connections: make(map[string]*wsClient),
		pusher:      pusher,
	}
}

// Register registers a new WebSocket connection for a traveler
func (h *WSHub) Register(travelerID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	// Close existing connection if any
	if existing, exists := h.connections[travelerID]; exists {
		existing.conn.Close()
	}

	h.connections[travelerID] = &wsClient{conn: conn}

	log.Info().Str("traveler_id", travelerID).Msg("WebSocket connection registered")
}

// Unregister removes conn if it is still the traveler's current connection
func (h *WSHub) Unregister(travelerID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if c, exists := h.connections[travelerID]; exists && c.conn == conn {
		c.conn.Close()
		delete(h.connections, travelerID)
		log.Info().Str("traveler_id", travelerID).Msg("WebSocket connection unregistered")
	}
}

// SendToTraveler sends a message to a specific traveler
func (h *WSHub) SendToTraveler(travelerID string, message WSMessage) error {
	h.mu.RLock()
	c, exists := h.connections[travelerID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("traveler %s is not connected", travelerID)
	}

	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := c.write(data); err != nil {
		h.Unregister(travelerID, c.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// IsOnline checks if a traveler is connected
func (h *WSHub) IsOnline(travelerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[travelerID]
	return exists
}

// NotifyAlbum forwards an album event over the traveler's socket. Travelers
// that are offline get a push for finished albums instead.
func (h *WSHub) NotifyAlbum(ctx context.Context, travelerID string, event AlbumEvent) {
	if h.IsOnline(travelerID) {
		count := event.PhotoCount
		msg := WSMessage{
			Type:       event.Type,
			Timestamp:  time.Now().UnixMilli(),
			LocationID: event.LocationID,
			PhotoID:    event.PhotoID,
			PhotoCount: &count,
			Message:    event.Message,
		}
		if err := h.SendToTraveler(travelerID, msg); err != nil {
			log.Error().
				Err(err).
				Str("traveler_id", travelerID).
				Str("type", event.Type).
				Msg("Failed to send album event")
		}
		return
	}

	if h.pusher == nil || event.Type != EventAlbumPopulated {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), pushTimeout)
		defer cancel()
		if err := h.pusher.Push(ctx, travelerID, event); err != nil {
			log.Warn().
				Err(err).
				Str("traveler_id", travelerID).
				Msg("Failed to push album event")
		}
	}()
}

// Close closes every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for id, c := range h.connections {
		c.conn.Close()
		delete(h.connections, id)
	}
}
