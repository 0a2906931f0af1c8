package queue

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
)

// Publisher publishes delivery messages to a queue.
type Publisher interface {
	Publish(ctx context.Context, queue string, msg DeliveryMessage) error
	Close() error
}

// DelayedPublisher parks a message until delay elapses, then returns it to its work queue.
type DelayedPublisher interface {
	PublishDelayed(ctx context.Context, msg DeliveryMessage, delay time.Duration) error
}

// MessageHandler handles a consumed queue message.
type MessageHandler func(ctx context.Context, msg DeliveryMessage) error

// Consumer consumes delivery messages from a queue.
type Consumer interface {
	Consume(ctx context.Context, queue string, handler MessageHandler) error
	Close() error
}

const (
	// FailedQueue receives annotated records of deliveries that exhausted retries.
	FailedQueue = "failed.queue"

	// queueMaxPriority is the RabbitMQ x-max-priority value for work queues.
	queueMaxPriority int32 = domain.MaxPriority
)

// QueueName returns the channel work queue name, e.g. email.queue.
func QueueName(channel domain.Channel) string {
	return fmt.Sprintf("%s.queue", channel.String())
}

// DLQName returns the dead-letter queue name for a channel, e.g. dlq.email.
func DLQName(channel domain.Channel) string {
	return fmt.Sprintf("dlq.%s", channel.String())
}

// RetryQueueName returns the delay queue used for requeued retries, e.g. email.retry.
func RetryQueueName(channel domain.Channel) string {
	return fmt.Sprintf("%s.retry", channel.String())
}

// EventPattern returns the event name carried by channel messages, e.g. notification.email.
func EventPattern(channel domain.Channel) string {
	return fmt.Sprintf("notification.%s", channel.String())
}

// WorkQueueNames returns all channel work queues.
func WorkQueueNames() []string {
	channels := domain.Channels()
	queues := make([]string, 0, len(channels))
	for _, channel := range channels {
		queues = append(queues, QueueName(channel))
	}
	return queues
}

// DLQNames returns all dead-letter queues.
func DLQNames() []string {
	channels := domain.Channels()
	queues := make([]string, 0, len(channels))
	for _, channel := range channels {
		queues = append(queues, DLQName(channel))
	}
	return queues
}

// PriorityValue clamps a request priority to the broker's priority range.
func PriorityValue(priority int) uint8 {
	switch {
	case priority <= 0:
		return 0
	case priority >= int(queueMaxPriority):
		return uint8(queueMaxPriority)
	default:
		return uint8(priority)
	}
}
