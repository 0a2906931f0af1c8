package rpc

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/kursadbilgin/notification-platform/internal/queue"
	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"
)

const (
	serverReconnectBackoff = time.Second
	serverMaxBackoff       = 30 * time.Second
	handlerTimeout         = 10 * time.Second
)

// HandlerFunc answers one request pattern.
type HandlerFunc func(ctx context.Context, data json.RawMessage) (*Response, error)

// Server consumes a request queue and replies to each request's reply-to address.
type Server struct {
	broker   *queue.RabbitMQ
	queue    string
	handlers map[string]HandlerFunc
	logger   *zap.Logger
}

func NewServer(broker *queue.RabbitMQ, queueName string, logger *zap.Logger) (*Server, error) {
	if broker == nil {
		return nil, fmt.Errorf("rabbitmq client is required")
	}
	if queueName == "" {
		return nil, fmt.Errorf("queue name is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Server{
		broker:   broker,
		queue:    queueName,
		handlers: make(map[string]HandlerFunc),
		logger:   logger,
	}, nil
}

func (s *Server) Handle(pattern string, handler HandlerFunc) {
	s.handlers[pattern] = handler
}

// Serve consumes requests until ctx is canceled, reconnecting on channel loss.
func (s *Server) Serve(ctx context.Context) error {
	backoff := serverReconnectBackoff
	for {
		err := s.serveOnce(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if err == nil {
			backoff = serverReconnectBackoff
			continue
		}

		s.logger.Warn("rpc server interrupted, reconnecting",
			zap.String("queue", s.queue),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > serverMaxBackoff {
			backoff = serverMaxBackoff
		}
	}
}

func (s *Server) serveOnce(ctx context.Context) error {
	ch, err := s.broker.Channel(ctx)
	if err != nil {
		return err
	}
	defer ch.Close() //nolint:errcheck // best-effort channel close

	if _, err := ch.QueueDeclare(s.queue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare rpc queue %q: %w", s.queue, err)
	}

	deliveries, err := ch.Consume(s.queue, "", true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume rpc queue %q: %w", s.queue, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("rpc delivery channel closed")
			}
			s.reply(ctx, ch, d)
		}
	}
}

func (s *Server) reply(ctx context.Context, ch *amqp.Channel, d amqp.Delivery) {
	resp := s.dispatch(ctx, d.Body)
	if d.ReplyTo == "" {
		return
	}

	body, err := json.Marshal(resp)
	if err != nil {
		s.logger.Error("failed to marshal rpc reply", zap.Error(err))
		return
	}

	if err := ch.PublishWithContext(ctx, "", d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: d.CorrelationId,
		Body:          body,
	}); err != nil {
		s.logger.Error("failed to publish rpc reply",
			zap.String("correlationId", d.CorrelationId),
			zap.Error(err),
		)
	}
}

func (s *Server) dispatch(ctx context.Context, body []byte) *Response {
	var req Request
	if err := json.Unmarshal(body, &req); err != nil {
		return &Response{Success: false, Message: "invalid request", Error: CodeValidation, Code: CodeValidation}
	}

	handler, ok := s.handlers[req.Pattern]
	if !ok {
		return &Response{
			Success: false,
			Message: fmt.Sprintf("no handler for pattern %q", req.Pattern),
			Error:   CodeNotFound,
			Code:    CodeNotFound,
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	resp, err := handler(callCtx, req.Data)
	if err != nil {
		s.logger.Warn("rpc handler failed",
			zap.String("pattern", req.Pattern),
			zap.Error(err),
		)
		return ErrorResponse(err)
	}
	if resp == nil {
		return &Response{Success: true, Message: "ok"}
	}
	return resp
}
