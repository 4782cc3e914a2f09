package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"virtual-tourist-backend/internal/models"
	"virtual-tourist-backend/internal/repository"
	"virtual-tourist-backend/internal/services"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// respondJSON sends a JSON response
func respondJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// statusFor maps service errors to an HTTP status and a message safe to show
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, models.ErrInvalidCoordinate):
		return http.StatusBadRequest, "Invalid coordinate"
	case errors.Is(err, services.ErrInvalidRegion):
		return http.StatusBadRequest, "Invalid map region"
	case errors.Is(err, services.ErrPinExists):
		return http.StatusConflict, "Another pin is already there"
	case errors.Is(err, services.ErrSearchFailed):
		return http.StatusBadGateway, "Failed to load photos"
	default:
		return http.StatusInternalServerError, "Something went wrong, please try again"
	}
}
