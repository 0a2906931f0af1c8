package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/queue"
)

const (
	DefaultMaxRetries = 3
	baseRetryDelay    = time.Second
)

// RetryDelay returns the wait before retry number attempt+1: 1s, 2s, 4s, ...
func RetryDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	return baseRetryDelay << uint(attempt)
}

// RetryScheduler decides how a transient failure waits for its next attempt.
type RetryScheduler interface {
	// Schedule arranges attempt n.Attempt+1 after delay. handedOff reports that
	// the message now lives elsewhere and the current delivery must be acked.
	Schedule(ctx context.Context, n domain.Notification, delay time.Duration) (handedOff bool, err error)
	Name() string
}

// InProcessRetry sleeps in the consumer goroutine and lets the worker loop
// try again. The broker slot stays occupied while waiting.
type InProcessRetry struct {
	sleep func(ctx context.Context, d time.Duration) error
}

var _ RetryScheduler = (*InProcessRetry)(nil)

func NewInProcessRetry() *InProcessRetry {
	return &InProcessRetry{sleep: sleepContext}
}

func (r *InProcessRetry) Schedule(ctx context.Context, _ domain.Notification, delay time.Duration) (bool, error) {
	sleep := r.sleep
	if sleep == nil {
		sleep = sleepContext
	}
	if err := sleep(ctx, delay); err != nil {
		return false, err
	}
	return false, nil
}

func (r *InProcessRetry) Name() string { return "inprocess" }

// RequeueRetry parks the message in the channel delay queue with the attempt
// counter incremented. The broker returns it to the work queue after delay.
type RequeueRetry struct {
	publisher queue.DelayedPublisher
}

var _ RetryScheduler = (*RequeueRetry)(nil)

func NewRequeueRetry(publisher queue.DelayedPublisher) (*RequeueRetry, error) {
	if publisher == nil {
		return nil, fmt.Errorf("delayed publisher is required")
	}
	return &RequeueRetry{publisher: publisher}, nil
}

func (r *RequeueRetry) Schedule(ctx context.Context, n domain.Notification, delay time.Duration) (bool, error) {
	n.Attempt++
	if err := r.publisher.PublishDelayed(ctx, queue.NewDeliveryMessage(n), delay); err != nil {
		return false, fmt.Errorf("failed to schedule retry %d: %w", n.Attempt, err)
	}
	return true, nil
}

func (r *RequeueRetry) Name() string { return "requeue" }

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
