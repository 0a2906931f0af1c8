package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-platform/internal/domain"
)

const (
	defaultPushTitle = "Notification"
	pushIcon         = "/icon.png"
	pushBadge        = "/badge.png"
)

// PushPayload is what the browser service worker receives.
type PushPayload struct {
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Icon      string         `json:"icon"`
	Badge     string         `json:"badge"`
	Data      map[string]any `json:"data"`
	Timestamp int64          `json:"timestamp"`
}

type pushRequest struct {
	Subscription domain.PushSubscription `json:"subscription"`
	Payload      PushPayload             `json:"payload"`
	RequestID    string                  `json:"request_id"`
}

// PushRelay hands web push payloads to an HTTP push relay that owns the VAPID
// keys.
type PushRelay struct {
	relay *relay
	now   func() time.Time
}

func NewPushRelay(endpoint string, client *resty.Client) (*PushRelay, error) {
	r, err := newRelay(endpoint, client)
	if err != nil {
		return nil, err
	}
	return &PushRelay{relay: r, now: time.Now}, nil
}

func (p *PushRelay) Send(ctx context.Context, delivery Delivery) (*Response, error) {
	if p == nil || p.relay == nil {
		return nil, fmt.Errorf("push relay is not initialized")
	}

	subscription, err := domain.ParsePushSubscription(delivery.Recipient)
	if err != nil {
		return nil, err
	}

	return p.relay.post(ctx, delivery.RequestID, pushRequest{
		Subscription: subscription,
		Payload:      NewPushPayload(delivery, p.now()),
		RequestID:    delivery.RequestID,
	})
}

func NewPushPayload(delivery Delivery, now time.Time) PushPayload {
	title := delivery.Subject
	if title == "" {
		title = defaultPushTitle
	}
	return PushPayload{
		Title:     title,
		Body:      delivery.Body,
		Icon:      pushIcon,
		Badge:     pushBadge,
		Data:      delivery.Data,
		Timestamp: now.UnixMilli(),
	}
}
