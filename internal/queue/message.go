package queue

import (
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
)

// DeliveryMessage is the broker payload for notification.email and notification.push events.
type DeliveryMessage struct {
	Pattern string              `json:"pattern"`
	Data    domain.Notification `json:"data"`
}

// NewDeliveryMessage wraps a notification in its channel event.
func NewDeliveryMessage(n domain.Notification) DeliveryMessage {
	return DeliveryMessage{
		Pattern: EventPattern(n.Channel),
		Data:    n,
	}
}

// Channel resolves the delivery channel from the event pattern.
func (m DeliveryMessage) Channel() (domain.Channel, error) {
	name, ok := strings.CutPrefix(m.Pattern, "notification.")
	if !ok {
		return "", fmt.Errorf("unknown event pattern %q", m.Pattern)
	}
	return domain.ParseChannelFromString(name)
}

func (m DeliveryMessage) Validate() error {
	channel, err := m.Channel()
	if err != nil {
		return err
	}
	if m.Data.Channel != "" && m.Data.Channel != channel {
		return fmt.Errorf("channel %q does not match pattern %q", m.Data.Channel, m.Pattern)
	}
	if strings.TrimSpace(m.Data.RequestID) == "" {
		return fmt.Errorf("request_id is required")
	}
	if strings.TrimSpace(m.Data.User.ID) == "" {
		return fmt.Errorf("user.id is required")
	}
	if m.Data.Template.Body == "" && m.Data.Template.Subject == "" {
		return fmt.Errorf("template content is required")
	}
	if m.Data.Attempt < 0 {
		return fmt.Errorf("attempt must not be negative")
	}
	return nil
}

// FailureRecord is published to the failed queue when a delivery exhausts its retries.
type FailureRecord struct {
	Pattern string      `json:"pattern"`
	Data    FailureData `json:"data"`
}

type FailureData struct {
	Channel  domain.Channel      `json:"channel"`
	Request  domain.Notification `json:"request"`
	Error    string              `json:"error"`
	Attempts int                 `json:"attempts"`
	FailedAt time.Time           `json:"failed_at"`
}

const failurePattern = "notification.failed"

func NewFailureRecord(n domain.Notification, cause error, attempts int, failedAt time.Time) FailureRecord {
	msg := ""
	if cause != nil {
		msg = cause.Error()
	}
	return FailureRecord{
		Pattern: failurePattern,
		Data: FailureData{
			Channel:  n.Channel,
			Request:  n,
			Error:    msg,
			Attempts: attempts,
			FailedAt: failedAt.UTC(),
		},
	}
}
