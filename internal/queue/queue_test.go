package queue

import (
	"errors"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
)

func TestQueueNames(t *testing.T) {
	work := WorkQueueNames()
	if len(work) != 2 {
		t.Fatalf("WorkQueueNames len = %d, want 2", len(work))
	}

	expected := map[string]struct{}{
		"email.queue": {},
		"push.queue":  {},
	}
	for _, name := range work {
		if _, ok := expected[name]; !ok {
			t.Fatalf("unexpected queue name: %s", name)
		}
	}

	dlq := DLQNames()
	expectedDLQ := map[string]struct{}{
		"dlq.email": {},
		"dlq.push":  {},
	}
	for _, name := range dlq {
		if _, ok := expectedDLQ[name]; !ok {
			t.Fatalf("unexpected dlq name: %s", name)
		}
	}
}

func TestChannelNames(t *testing.T) {
	if got := RetryQueueName(domain.ChannelPush); got != "push.retry" {
		t.Fatalf("RetryQueueName = %s, want push.retry", got)
	}
	if got := EventPattern(domain.ChannelEmail); got != "notification.email" {
		t.Fatalf("EventPattern = %s, want notification.email", got)
	}
	if got := channelFromQueue(QueueName(domain.ChannelPush)); got != domain.ChannelPush {
		t.Fatalf("channelFromQueue = %s, want push", got)
	}
}

func TestPriorityValue(t *testing.T) {
	tests := []struct {
		name     string
		priority int
		want     uint8
	}{
		{name: "negative", priority: -3, want: 0},
		{name: "zero", priority: 0, want: 0},
		{name: "mid", priority: 5, want: 5},
		{name: "above max", priority: 42, want: uint8(domain.MaxPriority)},
	}

	for _, tt := range tests {

		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := PriorityValue(tt.priority)
			if got != tt.want {
				t.Fatalf("PriorityValue(%d) = %d, want %d", tt.priority, got, tt.want)
			}
		})
	}
}

func validMessage() DeliveryMessage {
	return NewDeliveryMessage(domain.Notification{
		RequestID: "req-1",
		Channel:   domain.ChannelEmail,
		User:      domain.User{ID: "u-1", Email: "ada@example.com"},
		Template:  domain.Template{Name: "welcome-email", Subject: "Hi {{name}}", Body: "Welcome"},
	})
}

func TestDeliveryMessageValidate(t *testing.T) {
	msg := validMessage()
	if err := msg.Validate(); err != nil {
		t.Fatalf("Validate() unexpected error: %v", err)
	}

	msg.Data.RequestID = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for empty request id")
	}

	msg = validMessage()
	msg.Pattern = "notification.sms"
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for unknown channel pattern")
	}

	msg = validMessage()
	msg.Data.Channel = domain.ChannelPush
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for mismatched channel")
	}

	msg = validMessage()
	msg.Data.User.ID = ""
	if err := msg.Validate(); err == nil {
		t.Fatal("expected error for missing user id")
	}
}

func TestDecodeDeliveryFillsChannel(t *testing.T) {
	body := []byte(`{"pattern":"notification.push","data":{"request_id":"r-9","user":{"id":"u-9","email":"x@example.com"},"template":{"name":"welcome-push","subject":"Hey","body":"Hello {{name}}"},"variables":{"name":"Ada"},"priority":2,"metadata":{},"attempt":1}}`)

	msg, err := decodeDelivery(body)
	if err != nil {
		t.Fatalf("decodeDelivery() error = %v", err)
	}
	if msg.Data.Channel != domain.ChannelPush {
		t.Fatalf("channel = %s, want push", msg.Data.Channel)
	}
	if msg.Data.Attempt != 1 {
		t.Fatalf("attempt = %d, want 1", msg.Data.Attempt)
	}

	if _, err := decodeDelivery([]byte(`{not json`)); err == nil {
		t.Fatal("expected error for invalid JSON")
	}
	if _, err := decodeDelivery([]byte(`{"pattern":"notification.email","data":{}}`)); err == nil {
		t.Fatal("expected validation error for empty data")
	}
}

func TestNewFailureRecord(t *testing.T) {
	msg := validMessage()
	failedAt := time.Date(2026, 1, 2, 3, 4, 5, 0, time.FixedZone("x", 3600))

	record := NewFailureRecord(msg.Data, errors.New("smtp timeout"), 4, failedAt)
	if record.Pattern != "notification.failed" {
		t.Fatalf("pattern = %s, want notification.failed", record.Pattern)
	}
	if record.Data.Error != "smtp timeout" || record.Data.Attempts != 4 {
		t.Fatalf("data = %+v", record.Data)
	}
	if record.Data.FailedAt.Location() != time.UTC {
		t.Fatal("failed_at should be UTC")
	}
}
