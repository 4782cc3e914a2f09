package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"virtual-tourist-backend/internal/middleware"
	"virtual-tourist-backend/internal/models"
	"virtual-tourist-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// PinHandler handles pin-related HTTP requests
type PinHandler struct {
	pinService *services.PinService
}

// NewPinHandler creates a new pin handler
func NewPinHandler(pinService *services.PinService) *PinHandler {
	return &PinHandler{
		pinService: pinService,
	}
}

// PinResponse is a pin with its map annotation
type PinResponse struct {
	ID         string    `json:"id"`
	Latitude   float64   `json:"latitude"`
	Longitude  float64   `json:"longitude"`
	Title      string    `json:"title"`
	Subtitle   string    `json:"subtitle"`
	PagesKnown int       `json:"pages_known"`
	CreatedAt  time.Time `json:"created_at"`
}

func newPinResponse(loc *models.Location) PinResponse {
	return PinResponse{
		ID:         loc.ID,
		Latitude:   loc.Latitude,
		Longitude:  loc.Longitude,
		Title:      loc.Title(),
		Subtitle:   loc.Subtitle(),
		PagesKnown: loc.PagesKnown,
		CreatedAt:  loc.CreatedAt,
	}
}

// ListPins handles GET /api/v1/pins
func (h *PinHandler) ListPins(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)

	pins, err := h.pinService.List(ctx, travelerID)
	if err != nil {
		log.Error().Err(err).Str("traveler_id", travelerID).Msg("Failed to list pins")
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	resp := make([]PinResponse, 0, len(pins))
	for _, p := range pins {
		resp = append(resp, newPinResponse(p))
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"pins": resp,
	})
}

// CreatePin handles POST /api/v1/pins
func (h *PinHandler) CreatePin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)

	var req models.Coordinate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pin, created, err := h.pinService.Create(ctx, travelerID, req)
	if err != nil {
		log.Error().
			Err(err).
			Str("traveler_id", travelerID).
			Msg("Failed to create pin")
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	respondJSON(w, status, newPinResponse(pin))
}

// GetPin handles GET /api/v1/pins/{pin_id}
func (h *PinHandler) GetPin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)
	pinID := chi.URLParam(r, "pin_id")

	pin, err := h.pinService.Get(ctx, travelerID, pinID)
	if err != nil {
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	respondJSON(w, http.StatusOK, newPinResponse(pin))
}

// MovePin handles PATCH /api/v1/pins/{pin_id}
func (h *PinHandler) MovePin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)
	pinID := chi.URLParam(r, "pin_id")

	var req models.Coordinate
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	pin, err := h.pinService.Move(ctx, travelerID, pinID, req)
	if err != nil {
		log.Error().
			Err(err).
			Str("traveler_id", travelerID).
			Str("pin_id", pinID).
			Msg("Failed to move pin")
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	respondJSON(w, http.StatusOK, newPinResponse(pin))
}

// DeletePin handles DELETE /api/v1/pins/{pin_id}
func (h *PinHandler) DeletePin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)
	pinID := chi.URLParam(r, "pin_id")

	if err := h.pinService.Delete(ctx, travelerID, pinID); err != nil {
		log.Error().
			Err(err).
			Str("traveler_id", travelerID).
			Str("pin_id", pinID).
			Msg("Failed to delete pin")
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
