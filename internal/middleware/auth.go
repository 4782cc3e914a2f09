package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"virtual-tourist-backend/internal/services"
)

type contextKey string

const travelerIDKey contextKey = "traveler_id"

// AuthMiddleware creates a middleware for JWT authentication
func AuthMiddleware(travelerService *services.TravelerService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				respondError(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				respondError(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			travelerID, err := travelerService.Authenticate(r.Context(), parts[1])
			if err != nil {
				respondError(w, "Invalid token", http.StatusUnauthorized)
				return
			}

			ctx := WithTravelerID(r.Context(), travelerID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithTravelerID stores the authenticated traveler in ctx
func WithTravelerID(ctx context.Context, travelerID string) context.Context {
	return context.WithValue(ctx, travelerIDKey, travelerID)
}

// GetTravelerID extracts traveler ID from context
func GetTravelerID(ctx context.Context) string {
	travelerID, ok := ctx.Value(travelerIDKey).(string)
	if !ok {
		return ""
	}
	return travelerID
}

// respondError sends an error response
func respondError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
