package provider

import (
	"context"
	"fmt"
	"net/mail"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-platform/internal/domain"
)

type emailRequest struct {
	From      string `json:"from"`
	To        string `json:"to"`
	Subject   string `json:"subject"`
	HTML      string `json:"html"`
	RequestID string `json:"request_id"`
}

// EmailRelay hands rendered emails to an HTTP mail relay.
type EmailRelay struct {
	relay *relay
	from  string
}

func NewEmailRelay(endpoint string, from string, client *resty.Client) (*EmailRelay, error) {
	r, err := newRelay(endpoint, client)
	if err != nil {
		return nil, err
	}
	return &EmailRelay{relay: r, from: from}, nil
}

func (e *EmailRelay) Send(ctx context.Context, delivery Delivery) (*Response, error) {
	if e == nil || e.relay == nil {
		return nil, fmt.Errorf("email relay is not initialized")
	}

	to, err := mail.ParseAddress(strings.TrimSpace(delivery.Recipient))
	if err != nil {
		return nil, fmt.Errorf("%w: recipient %q: %v", domain.ErrInvalidTarget, delivery.Recipient, err)
	}

	return e.relay.post(ctx, delivery.RequestID, emailRequest{
		From:      e.from,
		To:        to.Address,
		Subject:   delivery.Subject,
		HTML:      delivery.Body,
		RequestID: delivery.RequestID,
	})
}
