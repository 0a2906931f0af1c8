package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/queue"
	"go.uber.org/zap"
)

// DeadLetterSink receives deliveries that will never be attempted again.
type DeadLetterSink interface {
	DeadLetter(ctx context.Context, n domain.Notification, cause error, attempts int) error
}

// FailurePublisher publishes failure records to the failed queue.
type FailurePublisher interface {
	PublishFailure(ctx context.Context, record queue.FailureRecord) error
}

// QueueDeadLetterSink publishes {request, error} records to failed.queue.
type QueueDeadLetterSink struct {
	publisher FailurePublisher
	now       func() time.Time
}

var _ DeadLetterSink = (*QueueDeadLetterSink)(nil)

func NewQueueDeadLetterSink(publisher FailurePublisher) (*QueueDeadLetterSink, error) {
	if publisher == nil {
		return nil, fmt.Errorf("failure publisher is required")
	}
	return &QueueDeadLetterSink{publisher: publisher, now: time.Now}, nil
}

func (s *QueueDeadLetterSink) DeadLetter(ctx context.Context, n domain.Notification, cause error, attempts int) error {
	record := queue.NewFailureRecord(n, cause, attempts, s.now())
	if err := s.publisher.PublishFailure(ctx, record); err != nil {
		return fmt.Errorf("failed to publish failure record: %w", err)
	}
	return nil
}

// LogDeadLetterSink only logs. Used when no broker is wired.
type LogDeadLetterSink struct {
	logger *zap.Logger
}

var _ DeadLetterSink = (*LogDeadLetterSink)(nil)

func NewLogDeadLetterSink(logger *zap.Logger) *LogDeadLetterSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogDeadLetterSink{logger: logger}
}

func (s *LogDeadLetterSink) DeadLetter(_ context.Context, n domain.Notification, cause error, attempts int) error {
	s.logger.Error("delivery dead-lettered",
		zap.String("requestId", n.RequestID),
		zap.String("channel", n.Channel.String()),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	return nil
}
