package rpc

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/observability"
	"github.com/kursadbilgin/notification-platform/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

// directReplyTo is RabbitMQ's pseudo-queue for request/reply without a reply queue.
const directReplyTo = "amq.rabbitmq.reply-to"

// Caller sends a request to a service queue and waits for its reply.
// Transport failures and timeouts wrap domain.ErrServiceUnavailable.
type Caller interface {
	Call(ctx context.Context, queueName string, pattern string, payload any) (*Response, error)
}

// Client is a RabbitMQ request/reply client. One channel consumes direct
// replies and routes them to waiting callers by correlation id.
type Client struct {
	broker  *queue.RabbitMQ
	logger  *zap.Logger
	metrics *observability.Metrics

	mu      sync.Mutex
	ch      *amqp.Channel
	pending map[string]pendingCall

	publishMu sync.Mutex
	newID     func() string
	now       func() time.Time
}

var _ Caller = (*Client)(nil)

// pendingCall is a caller waiting for a reply on the channel that owns it.
type pendingCall struct {
	ch      *amqp.Channel
	replies chan amqp.Delivery
}

func NewClient(broker *queue.RabbitMQ, logger *zap.Logger) (*Client, error) {
	if broker == nil {
		return nil, fmt.Errorf("rabbitmq client is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		broker:  broker,
		logger:  logger,
		pending: make(map[string]pendingCall),
		newID:   uuid.NewString,
		now:     time.Now,
	}, nil
}

func (c *Client) SetMetrics(metrics *observability.Metrics) {
	if c == nil {
		return
	}
	c.metrics = metrics
}

func (c *Client) Call(ctx context.Context, queueName string, pattern string, payload any) (*Response, error) {
	start := c.now()
	resp, err := c.call(ctx, queueName, pattern, payload)
	c.metrics.ObserveRPCCall(pattern, rpcOutcome(resp, err), c.now().Sub(start))
	return resp, err
}

func (c *Client) call(ctx context.Context, queueName string, pattern string, payload any) (*Response, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", pattern, err)
	}
	body, err := json.Marshal(Request{Pattern: pattern, Data: data})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s request: %w", pattern, err)
	}

	ch, err := c.replyChannel(ctx)
	if err != nil {
		return nil, unavailable(pattern, err)
	}

	correlationID := c.newID()
	replies := c.register(ch, correlationID)
	defer c.forget(correlationID)

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		ReplyTo:       directReplyTo,
		Type:          pattern,
		Timestamp:     c.now().UTC(),
		Body:          body,
	}
	// Requests nobody picks up before the caller gives up expire in the broker.
	if deadline, ok := ctx.Deadline(); ok {
		if ttl := deadline.Sub(c.now()); ttl > 0 {
			publishing.Expiration = strconv.FormatInt(ttl.Milliseconds()+1, 10)
		}
	}

	c.publishMu.Lock()
	err = ch.PublishWithContext(ctx, "", queueName, false, false, publishing)
	c.publishMu.Unlock()
	if err != nil {
		c.reset(ch)
		return nil, unavailable(pattern, err)
	}

	select {
	case <-ctx.Done():
		return nil, unavailable(pattern, ctx.Err())
	case d, ok := <-replies:
		if !ok {
			return nil, unavailable(pattern, errors.New("reply channel closed"))
		}

		var resp Response
		if err := json.Unmarshal(d.Body, &resp); err != nil {
			return nil, fmt.Errorf("failed to decode %s reply: %w", pattern, err)
		}
		return &resp, nil
	}
}

func (c *Client) replyChannel(ctx context.Context) (*amqp.Channel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.ch != nil && !c.ch.IsClosed() {
		return c.ch, nil
	}

	ch, err := c.broker.Channel(ctx)
	if err != nil {
		return nil, err
	}

	// Direct reply-to requires auto-ack and must be consumed before publishing.
	deliveries, err := ch.Consume(directReplyTo, "", true, false, false, false, nil)
	if err != nil {
		_ = ch.Close()
		return nil, fmt.Errorf("failed to consume direct replies: %w", err)
	}

	c.ch = ch
	go c.dispatch(ch, deliveries)
	return ch, nil
}

func (c *Client) dispatch(ch *amqp.Channel, deliveries <-chan amqp.Delivery) {
	for d := range deliveries {
		if !c.deliver(d) {
			// Caller already timed out.
			c.logger.Debug("dropping late rpc reply", zap.String("correlationId", d.CorrelationId))
		}
	}

	c.mu.Lock()
	if c.ch == ch {
		c.ch = nil
	}
	// Callers already waiting on a newer channel keep their slot.
	for id, pending := range c.pending {
		if pending.ch != ch {
			continue
		}
		close(pending.replies)
		delete(c.pending, id)
	}
	c.mu.Unlock()
}

// deliver hands d to its waiting caller. The send happens under the lock so a
// closing channel cannot close the reply slot in between.
func (c *Client) deliver(d amqp.Delivery) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	pending, ok := c.pending[d.CorrelationId]
	if !ok {
		return false
	}
	select {
	case pending.replies <- d:
	default:
	}
	return true
}

func (c *Client) register(ch *amqp.Channel, correlationID string) <-chan amqp.Delivery {
	replies := make(chan amqp.Delivery, 1)
	c.mu.Lock()
	c.pending[correlationID] = pendingCall{ch: ch, replies: replies}
	c.mu.Unlock()
	return replies
}

func (c *Client) forget(correlationID string) {
	c.mu.Lock()
	delete(c.pending, correlationID)
	c.mu.Unlock()
}

func (c *Client) reset(ch *amqp.Channel) {
	c.mu.Lock()
	if c.ch == ch {
		c.ch = nil
	}
	c.mu.Unlock()
	_ = ch.Close()
}

func (c *Client) Close() error {
	c.mu.Lock()
	ch := c.ch
	c.ch = nil
	c.mu.Unlock()

	if ch == nil || ch.IsClosed() {
		return nil
	}
	return ch.Close()
}

func unavailable(pattern string, cause error) error {
	return fmt.Errorf("%w: %s: %w", domain.ErrServiceUnavailable, pattern, cause)
}

func rpcOutcome(resp *Response, err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, domain.ErrServiceUnavailable):
		return "unavailable"
	case err != nil:
		return "error"
	case resp != nil && !resp.Success:
		return "rejected"
	default:
		return "ok"
	}
}
