package services

import (
	"context"
	"fmt"
	"time"

	"virtual-tourist-backend/internal/models"
	"virtual-tourist-backend/internal/repository"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const jwtExpDays = 365

// TravelerService handles traveler accounts and their tokens
type TravelerService struct {
	store     repository.Queries
	jwtSecret string
}

// NewTravelerService creates a new traveler service
func NewTravelerService(store repository.Queries, jwtSecret string) *TravelerService {
	return &TravelerService{
		store:     store,
		jwtSecret: jwtSecret,
	}
}

// GenerateJWT generates a JWT token for a traveler
func (s *TravelerService) GenerateJWT(travelerID string) (string, error) {
	claims := jwt.MapClaims{
		"traveler_id": travelerID,
		"exp":         time.Now().AddDate(0, 0, jwtExpDays).Unix(),
		"iat":         time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return tokenString, nil
}

// ValidateJWT validates a JWT token and returns the traveler ID
func (s *TravelerService) ValidateJWT(tokenString string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.jwtSecret), nil
	})

	if err != nil {
		return "", fmt.Errorf("failed to parse token: %w", err)
	}

	if !token.Valid {
		return "", fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", fmt.Errorf("invalid token claims")
	}

	travelerID, ok := claims["traveler_id"].(string)
	if !ok {
		return "", fmt.Errorf("traveler_id not found in token")
	}

	return travelerID, nil
}

// Authenticate validates the token and checks that the traveler still exists
func (s *TravelerService) Authenticate(ctx context.Context, tokenString string) (string, error) {
	travelerID, err := s.ValidateJWT(tokenString)
	if err != nil {
		return "", err
	}
	if _, err := s.store.GetTraveler(ctx, travelerID); err != nil {
		return "", fmt.Errorf("unknown traveler: %w", err)
	}
	return travelerID, nil
}

// CreateTraveler creates a new anonymous traveler
func (s *TravelerService) CreateTraveler(ctx context.Context) (*models.Traveler, error) {
	travelerID := uuid.New().String()

	token, err := s.GenerateJWT(travelerID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	traveler := &models.Traveler{
		ID:        travelerID,
		Token:     token,
		CreatedAt: time.Now(),
	}

	if err := s.store.CreateTraveler(ctx, traveler); err != nil {
		return nil, fmt.Errorf("failed to create traveler: %w", err)
	}

	return traveler, nil
}

// UpdatePushToken stores the APNs device token of a traveler. An empty token
// clears it.
func (s *TravelerService) UpdatePushToken(ctx context.Context, travelerID, pushToken string) error {
	var tok *string
	if pushToken != "" {
		tok = &pushToken
	}
	return s.store.UpdatePushToken(ctx, travelerID, tok)
}
