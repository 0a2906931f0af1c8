package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/observability"
	"github.com/kursadbilgin/notification-platform/internal/repository"
	"go.uber.org/zap"
)

const (
	defaultSweepInterval  = time.Minute
	defaultPendingTimeout = 15 * time.Minute
	defaultSweepLimit     = 100
)

var errDeliveryAbandoned = errors.New("delivery abandoned while pending")

// PendingSweeper fails entries stuck in pending, e.g. after a worker crashed
// between insert and send, and dead-letters them.
type PendingSweeper struct {
	logs        repository.DeliveryLogRepository
	deadLetters DeadLetterSink
	logger      *zap.Logger
	metrics     *observability.Metrics
	channel     domain.Channel
	interval    time.Duration
	timeout     time.Duration
	limit       int
	now         func() time.Time
}

func NewPendingSweeper(
	channel domain.Channel,
	logs repository.DeliveryLogRepository,
	deadLetters DeadLetterSink,
	interval time.Duration,
	timeout time.Duration,
	logger *zap.Logger,
) (*PendingSweeper, error) {
	if logs == nil {
		return nil, fmt.Errorf("delivery log repository is required")
	}
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if timeout <= 0 {
		timeout = defaultPendingTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deadLetters == nil {
		deadLetters = NewLogDeadLetterSink(logger)
	}

	return &PendingSweeper{
		logs:        logs,
		deadLetters: deadLetters,
		logger:      logger,
		channel:     channel,
		interval:    interval,
		timeout:     timeout,
		limit:       defaultSweepLimit,
		now:         time.Now,
	}, nil
}

func (s *PendingSweeper) SetMetrics(metrics *observability.Metrics) {
	if s == nil {
		return
	}
	s.metrics = metrics
}

func (s *PendingSweeper) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Sweep(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				s.logger.Error("pending sweep failed", zap.Error(err))
			}
		}
	}
}

// Sweep fails every entry pending longer than the timeout and reports how many
// it moved to failed.
func (s *PendingSweeper) Sweep(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.timeout)
	stale, err := s.logs.ListStalePending(ctx, cutoff, s.limit)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch stale pending entries: %w", err)
	}

	swept := 0
	for i := range stale {
		entry := stale[i]
		cause := fmt.Errorf("%w since %s", errDeliveryAbandoned, entry.CreatedAt.UTC().Format(time.RFC3339))
		message := cause.Error()

		applied, err := s.logs.MarkTerminal(ctx, entry.RequestID, domain.StatusFailed, &message)
		if err != nil {
			s.logger.Error("failed to fail stale delivery",
				zap.String("requestId", entry.RequestID),
				zap.Error(err),
			)
			continue
		}
		// A worker finished it between the list and the update.
		if !applied {
			continue
		}
		swept++

		if err := s.deadLetters.DeadLetter(ctx, notificationFromEntry(entry), cause, 0); err != nil {
			s.logger.Error("failed to dead-letter stale delivery",
				zap.String("requestId", entry.RequestID),
				zap.Error(err),
			)
			continue
		}
		s.metrics.IncDeadLettered(s.channel.String())
	}

	if swept > 0 {
		s.logger.Warn("stale pending deliveries failed",
			zap.String("channel", s.channel.String()),
			zap.Int("count", swept),
		)
	}
	return swept, nil
}

func notificationFromEntry(entry domain.DeliveryLogEntry) domain.Notification {
	return domain.Notification{
		RequestID: entry.RequestID,
		Channel:   entry.Channel,
		User:      domain.User{ID: entry.UserID},
		Template:  domain.Template{Subject: entry.Subject, Body: entry.Body},
		Variables: entry.Data,
		CreatedAt: entry.CreatedAt,
	}
}
