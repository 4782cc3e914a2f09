package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"virtual-tourist-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins
	},
}

// Client message types
const (
	msgPing       = "ping"
	msgPong       = "pong"
	msgAlbumState = "album_state"
	msgError      = "error"
)

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub             *services.WSHub
	travelerService *services.TravelerService
	pinService      *services.PinService
	albumService    *services.AlbumService
}

// NewWebSocketHandler creates a new WebSocket handler
func NewWebSocketHandler(
	hub *services.WSHub,
	travelerService *services.TravelerService,
	pinService *services.PinService,
	albumService *services.AlbumService,
) *WebSocketHandler {
	return &WebSocketHandler{
		hub:             hub,
		travelerService: travelerService,
		pinService:      pinService,
		albumService:    albumService,
	}
}

// HandleWebSocket handles WebSocket connections
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	// Get token from query parameter
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	travelerID, err := h.travelerService.Authenticate(r.Context(), token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}

	h.hub.Register(travelerID, conn)
	defer h.hub.Unregister(travelerID, conn)

	log.Info().Str("traveler_id", travelerID).Msg("WebSocket connection established")

	ctx := r.Context()
	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Error().Err(err).Str("traveler_id", travelerID).Msg("WebSocket error")
			}
			break
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			log.Warn().Err(err).Str("traveler_id", travelerID).Msg("Failed to parse WebSocket message")
			h.sendError(travelerID, "Invalid message format")
			continue
		}

		h.handleMessage(ctx, travelerID, msg)
	}
}

// handleMessage processes incoming WebSocket messages
func (h *WebSocketHandler) handleMessage(ctx context.Context, travelerID string, msg services.WSMessage) {
	switch msg.Type {
	case msgPing:
		h.send(travelerID, services.WSMessage{Type: msgPong, Timestamp: time.Now().UnixMilli()})
	case msgAlbumState:
		h.handleAlbumState(ctx, travelerID, msg)
	default:
		h.sendError(travelerID, "Unknown message type")
	}
}

// handleAlbumState answers with the current state and photo count of a pin
func (h *WebSocketHandler) handleAlbumState(ctx context.Context, travelerID string, msg services.WSMessage) {
	if msg.LocationID == "" {
		h.sendError(travelerID, "location_id is required")
		return
	}
	if _, err := h.pinService.Get(ctx, travelerID, msg.LocationID); err != nil {
		_, text := statusFor(err)
		h.sendError(travelerID, text)
		return
	}

	state, err := h.albumService.State(ctx, msg.LocationID)
	if err != nil {
		log.Error().Err(err).Str("location_id", msg.LocationID).Msg("Failed to read album state")
		h.sendError(travelerID, "Failed to read album state")
		return
	}

	reply := services.WSMessage{
		Type:       msgAlbumState,
		Timestamp:  time.Now().UnixMilli(),
		LocationID: msg.LocationID,
		Message:    string(state),
	}
	if state == services.AlbumPopulated {
		if n, err := h.albumService.PhotoCount(ctx, msg.LocationID); err == nil {
			reply.PhotoCount = &n
		}
	}
	h.send(travelerID, reply)
}

func (h *WebSocketHandler) send(travelerID string, msg services.WSMessage) {
	if err := h.hub.SendToTraveler(travelerID, msg); err != nil {
		log.Error().
			Err(err).
			Str("traveler_id", travelerID).
			Str("type", msg.Type).
			Msg("Failed to send WebSocket message")
	}
}

// sendError sends an error message to a traveler
func (h *WebSocketHandler) sendError(travelerID, message string) {
	h.send(travelerID, services.WSMessage{
		Type:    msgError,
		Message: message,
	})
}
