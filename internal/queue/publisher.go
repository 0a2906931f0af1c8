package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	amqp "github.com/rabbitmq/amqp091-go"
)

type RabbitMQPublisher struct {
	client *RabbitMQ
	now    func() time.Time
}

var (
	_ Publisher        = (*RabbitMQPublisher)(nil)
	_ DelayedPublisher = (*RabbitMQPublisher)(nil)
)

func NewRabbitMQPublisher(client *RabbitMQ) *RabbitMQPublisher {
	return &RabbitMQPublisher{client: client, now: time.Now}
}

func (p *RabbitMQPublisher) Publish(ctx context.Context, queue string, msg DeliveryMessage) error {
	if queue == "" {
		return fmt.Errorf("queue name is required")
	}
	publishing, err := p.deliveryPublishing(msg)
	if err != nil {
		return err
	}
	return p.publish(ctx, queue, publishing)
}

// PublishDelayed parks msg in its channel retry queue with a per-message TTL.
func (p *RabbitMQPublisher) PublishDelayed(ctx context.Context, msg DeliveryMessage, delay time.Duration) error {
	channel, err := msg.Channel()
	if err != nil {
		return fmt.Errorf("invalid delivery message: %w", err)
	}

	publishing, err := p.deliveryPublishing(msg)
	if err != nil {
		return err
	}
	if delay < time.Millisecond {
		delay = time.Millisecond
	}
	publishing.Expiration = strconv.FormatInt(delay.Milliseconds(), 10)

	return p.publish(ctx, RetryQueueName(channel), publishing)
}

// PublishFailure records an exhausted delivery on the failed queue.
func (p *RabbitMQPublisher) PublishFailure(ctx context.Context, record FailureRecord) error {
	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal failure record: %w", err)
	}

	return p.publish(ctx, FailedQueue, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    p.now().UTC(),
		MessageId:    record.Data.Request.RequestID,
		Type:         record.Pattern,
		Body:         payload,
	})
}

func (p *RabbitMQPublisher) deliveryPublishing(msg DeliveryMessage) (amqp.Publishing, error) {
	if err := msg.Validate(); err != nil {
		return amqp.Publishing{}, fmt.Errorf("invalid delivery message: %w", err)
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("failed to marshal delivery message: %w", err)
	}

	return amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		Timestamp:     p.now().UTC(),
		MessageId:     msg.Data.RequestID,
		CorrelationId: msg.Data.RequestID,
		Type:          msg.Pattern,
		Priority:      PriorityValue(msg.Data.Priority),
		Body:          payload,
	}, nil
}

func (p *RabbitMQPublisher) publish(ctx context.Context, queue string, publishing amqp.Publishing) error {
	if p == nil || p.client == nil {
		return fmt.Errorf("publisher is not initialized")
	}

	ch, err := p.client.channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if err := ch.PublishWithContext(ctx, "", queue, false, false, publishing); err != nil {
		return fmt.Errorf("failed to publish message to queue %q: %w", queue, err)
	}

	return nil
}

func (p *RabbitMQPublisher) Close() error {
	if p == nil || p.client == nil {
		return nil
	}
	return p.client.Close()
}
