package handlers

import (
	"encoding/json"
	"net/http"

	"virtual-tourist-backend/internal/middleware"
	"virtual-tourist-backend/internal/models"
	"virtual-tourist-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// RegionHandler handles the saved map viewport
type RegionHandler struct {
	regionService *services.RegionService
}

// NewRegionHandler creates a new region handler
func NewRegionHandler(regionService *services.RegionService) *RegionHandler {
	return &RegionHandler{
		regionService: regionService,
	}
}

// GetRegion handles GET /api/v1/map-region
func (h *RegionHandler) GetRegion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)

	region, err := h.regionService.Get(ctx, travelerID)
	if err != nil {
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	respondJSON(w, http.StatusOK, region)
}

// SaveRegion handles PUT /api/v1/map-region
func (h *RegionHandler) SaveRegion(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	travelerID := middleware.GetTravelerID(ctx)

	var region models.MapRegion
	if err := json.NewDecoder(r.Body).Decode(&region); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	region.TravelerID = travelerID

	if err := h.regionService.Save(ctx, &region); err != nil {
		log.Error().Err(err).Str("traveler_id", travelerID).Msg("Failed to save map region")
		status, msg := statusFor(err)
		respondError(w, msg, status)
		return
	}

	respondJSON(w, http.StatusOK, region)
}
