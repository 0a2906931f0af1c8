package domain

import (
	"fmt"
	"strings"
	"time"
)

// Channel represents the delivery channel.
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelPush  Channel = "push"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelPush:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToLower(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// Channels lists every supported delivery channel.
func Channels() []Channel {
	return []Channel{ChannelEmail, ChannelPush}
}

// DeliveryStatus is the lifecycle state of a delivery log entry.
type DeliveryStatus string

const (
	StatusPending DeliveryStatus = "pending"
	StatusSent    DeliveryStatus = "sent"
	StatusFailed  DeliveryStatus = "failed"
)

// statusDelivered is accepted from status callbacks and stored as sent.
const statusDelivered = "delivered"

func (s DeliveryStatus) String() string { return string(s) }

func (s DeliveryStatus) IsValid() bool {
	switch s {
	case StatusPending, StatusSent, StatusFailed:
		return true
	}
	return false
}

func (s DeliveryStatus) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed
}

func ParseDeliveryStatusFromString(s string) (DeliveryStatus, error) {
	normalized := strings.ToLower(strings.TrimSpace(s))
	if normalized == statusDelivered {
		return StatusSent, nil
	}

	st := DeliveryStatus(normalized)
	if !st.IsValid() {
		return "", fmt.Errorf("%w: invalid status %q", ErrValidation, s)
	}
	return st, nil
}

const (
	// MaxPriority matches the x-max-priority of the delivery queues.
	MaxPriority = 10
)

// UserData is the caller-supplied variable bag for a notification.
type UserData struct {
	Name string         `json:"name"`
	Link string         `json:"link"`
	Meta map[string]any `json:"meta,omitempty"`
}

// Flatten merges name and link with every meta key. Meta keys win on collision.
func (d UserData) Flatten() map[string]any {
	vars := make(map[string]any, len(d.Meta)+2)
	vars["name"] = d.Name
	vars["link"] = d.Link
	for k, v := range d.Meta {
		vars[k] = v
	}
	return vars
}

// SendRequest is a validated request to notify one user through one channel.
type SendRequest struct {
	Channel      Channel
	UserID       string
	TemplateName string
	Language     string
	Variables    UserData
	RequestID    string
	Priority     int
	Metadata     map[string]any
}

func (r *SendRequest) Validate() error {
	if !r.Channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", ErrValidation, r.Channel)
	}
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: user_id is required", ErrValidation)
	}
	if strings.TrimSpace(r.TemplateName) == "" {
		return fmt.Errorf("%w: template_code is required", ErrValidation)
	}
	if r.Priority < 0 || r.Priority > MaxPriority {
		return fmt.Errorf("%w: priority must be between 0 and %d", ErrValidation, MaxPriority)
	}
	return nil
}

// Notification is the event handed to a delivery worker.
type Notification struct {
	RequestID string         `json:"request_id"`
	Channel   Channel        `json:"channel,omitempty"`
	User      User           `json:"user"`
	Template  Template       `json:"template"`
	Variables map[string]any `json:"variables"`
	Priority  int            `json:"priority"`
	Metadata  map[string]any `json:"metadata"`
	Attempt   int            `json:"attempt,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// DeliveryLogEntry is the per-request delivery record owned by a worker.
type DeliveryLogEntry struct {
	ID           string
	RequestID    string
	Channel      Channel
	UserID       string
	Recipient    string
	Subject      string
	Body         string
	Data         map[string]any
	Status       DeliveryStatus
	ErrorMessage *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DeliveryAttempt records one transport call made for a request.
type DeliveryAttempt struct {
	ID            string
	RequestID     string
	Channel       Channel
	AttemptNumber int
	StatusCode    *int
	Error         *string
	CreatedAt     time.Time
}

// StatusUpdate is a delivery status callback for one request.
type StatusUpdate struct {
	RequestID string     `json:"request_id"`
	Status    string     `json:"status"`
	Timestamp *time.Time `json:"timestamp,omitempty"`
	Error     *string    `json:"error,omitempty"`
}

// NotificationSummary is the user-facing view of a delivery log entry.
// Email entries carry a subject, push entries a title.
type NotificationSummary struct {
	RequestID    string         `json:"request_id"`
	Status       DeliveryStatus `json:"status"`
	Subject      string         `json:"subject,omitempty"`
	Title        string         `json:"title,omitempty"`
	ErrorMessage *string        `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
}

func (e DeliveryLogEntry) Summary() NotificationSummary {
	s := NotificationSummary{
		RequestID:    e.RequestID,
		Status:       e.Status,
		ErrorMessage: e.ErrorMessage,
		CreatedAt:    e.CreatedAt,
	}
	if e.Channel == ChannelPush {
		s.Title = e.Subject
	} else {
		s.Subject = e.Subject
	}
	return s
}
