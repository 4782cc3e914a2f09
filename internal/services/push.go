package services

import (
	"context"
	"errors"
	"fmt"

	"virtual-tourist-backend/internal/config"
	"virtual-tourist-backend/internal/repository"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// ErrNoPushToken means the traveler never registered a device token
var ErrNoPushToken = errors.New("traveler has no push token")

// Pusher delivers album events to travelers that are not connected
type Pusher interface {
	Push(ctx context.Context, travelerID string, event AlbumEvent) error
}

// APNSPusher sends album events as Apple push notifications
type APNSPusher struct {
	client    *apns2.Client
	topic     string
	travelers repository.Queries
}

var _ Pusher = (*APNSPusher)(nil)

// NewAPNSPusher creates a token-based APNs client. It returns nil when push is
// not configured.
func NewAPNSPusher(cfg config.APNSConfig, travelers repository.Queries) (*APNSPusher, error) {
	if cfg.KeyFile == "" {
		return nil, nil
	}

	authKey, err := token.AuthKeyFromFile(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load APNs key: %w", err)
	}

	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}

	return &APNSPusher{
		client:    client,
		topic:     cfg.Topic,
		travelers: travelers,
	}, nil
}

// Push notifies the traveler's device that an album finished loading
func (p *APNSPusher) Push(ctx context.Context, travelerID string, event AlbumEvent) error {
	traveler, err := p.travelers.GetTraveler(ctx, travelerID)
	if err != nil {
		return err
	}
	if traveler.PushToken == nil || *traveler.PushToken == "" {
		return ErrNoPushToken
	}

	n := &apns2.Notification{
		DeviceToken: *traveler.PushToken,
		Topic:       p.topic,
		PushType:    apns2.PushTypeAlert,
		Payload:     albumPayload(event),
	}

	res, err := p.client.PushWithContext(ctx, n)
	if err != nil {
		return fmt.Errorf("failed to push notification: %w", err)
	}
	if !res.Sent() {
		return fmt.Errorf("push rejected: %d %s", res.StatusCode, res.Reason)
	}
	return nil
}

func albumPayload(event AlbumEvent) *payload.Payload {
	var body string
	switch event.PhotoCount {
	case 0:
		body = "No photos were found at this pin"
	case 1:
		body = "1 photo is ready to view"
	default:
		body = fmt.Sprintf("%d photos are ready to view", event.PhotoCount)
	}

	return payload.NewPayload().
		AlertTitle("Photo album loaded").
		AlertBody(body).
		Custom("location_id", event.LocationID).
		Custom("type", event.Type)
}
