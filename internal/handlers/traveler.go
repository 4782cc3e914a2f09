package handlers

import (
	"encoding/json"
	"net/http"

	"virtual-tourist-backend/internal/middleware"
	"virtual-tourist-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// TravelerHandler handles traveler-related HTTP requests
type TravelerHandler struct {
	travelerService *services.TravelerService
}

// NewTravelerHandler creates a new traveler handler
func NewTravelerHandler(travelerService *services.TravelerService) *TravelerHandler {
	return &TravelerHandler{
		travelerService: travelerService,
	}
}

// CreateTraveler handles POST /api/v1/travelers
func (h *TravelerHandler) CreateTraveler(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	traveler, err := h.travelerService.CreateTraveler(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to create traveler")
		respondError(w, "Failed to create traveler", http.StatusInternalServerError)
		return
	}

	log.Info().
		Str("traveler_id", traveler.ID).
		Msg("Traveler created")

	respondJSON(w, http.StatusCreated, traveler)
}

// UpdatePushTokenRequest represents the request body for registering a device
type UpdatePushTokenRequest struct {
	PushToken string `json:"push_token"`
}

// UpdatePushToken handles PUT /api/v1/travelers/push-token
func (h *TravelerHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)

	var req UpdatePushTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.travelerService.UpdatePushToken(ctx, travelerID, req.PushToken); err != nil {
		log.Error().
			Err(err).
			Str("traveler_id", travelerID).
			Msg("Failed to update push token")
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
