package provider

import (
	"context"
)

// Delivery is one rendered message handed to a channel transport.
type Delivery struct {
	RequestID string
	// Recipient is the email address or the stored push subscription token.
	Recipient string
	Subject   string
	Body      string
	Data      map[string]any
}

// Transport is the outbound delivery port of a channel.
type Transport interface {
	Send(ctx context.Context, delivery Delivery) (*Response, error)
}

// Response stores relay call metadata for the attempt audit.
type Response struct {
	StatusCode int
	Body       string
	MessageID  string
}

// Disabled rejects every delivery permanently.
type Disabled struct {
	Channel string
}

func (d Disabled) Send(context.Context, Delivery) (*Response, error) {
	return nil, &ProviderError{Message: d.Channel + " relay", Cause: ErrTransportDisabled}
}
