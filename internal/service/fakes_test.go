package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/provider"
	"github.com/kursadbilgin/notification-platform/internal/queue"
)

// memLogRepo is an in-memory delivery log with the store's conditional semantics.
type memLogRepo struct {
	mu      sync.Mutex
	entries map[string]*domain.DeliveryLogEntry
	seq     int
	now     func() time.Time

	getErr    error
	createErr error
	pingErr   error
}

func newMemLogRepo() *memLogRepo {
	return &memLogRepo{
		entries: make(map[string]*domain.DeliveryLogEntry),
		now:     time.Now,
	}
}

func (r *memLogRepo) Get(_ context.Context, requestID string) (*domain.DeliveryLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.getErr != nil {
		return nil, r.getErr
	}
	entry, ok := r.entries[requestID]
	if !ok {
		return nil, fmt.Errorf("%w: log entry %s", domain.ErrNotFound, requestID)
	}
	cp := *entry
	return &cp, nil
}

func (r *memLogRepo) CreatePending(_ context.Context, entry *domain.DeliveryLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.createErr != nil {
		return r.createErr
	}
	if _, ok := r.entries[entry.RequestID]; ok {
		return fmt.Errorf("%w: log entry %s already exists", domain.ErrConflict, entry.RequestID)
	}

	r.seq++
	entry.ID = fmt.Sprintf("log-%d", r.seq)
	entry.Status = domain.StatusPending
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = r.now().UTC()
	}
	entry.UpdatedAt = entry.CreatedAt
	cp := *entry
	r.entries[entry.RequestID] = &cp
	return nil
}

func (r *memLogRepo) MarkTerminal(_ context.Context, requestID string, status domain.DeliveryStatus, errorMessage *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[requestID]
	if !ok || entry.Status != domain.StatusPending {
		return false, nil
	}
	entry.Status = status
	entry.ErrorMessage = errorMessage
	entry.UpdatedAt = r.now().UTC()
	return true, nil
}

func (r *memLogRepo) UpdateStatus(_ context.Context, requestID string, status domain.DeliveryStatus, errorMessage *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[requestID]
	if !ok {
		return fmt.Errorf("%w: log entry %s", domain.ErrNotFound, requestID)
	}
	entry.Status = status
	if errorMessage != nil {
		entry.ErrorMessage = errorMessage
	}
	return nil
}

func (r *memLogRepo) ListByUser(_ context.Context, userID string) ([]domain.DeliveryLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DeliveryLogEntry, 0)
	for _, entry := range r.entries {
		if entry.UserID == userID {
			out = append(out, *entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r *memLogRepo) ListStalePending(_ context.Context, olderThan time.Time, limit int) ([]domain.DeliveryLogEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.DeliveryLogEntry, 0)
	for _, entry := range r.entries {
		if entry.Status == domain.StatusPending && entry.UpdatedAt.Before(olderThan) {
			out = append(out, *entry)
		}
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memLogRepo) Ping(context.Context) error {
	return r.pingErr
}

func (r *memLogRepo) put(entry domain.DeliveryLogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := entry
	r.entries[entry.RequestID] = &cp
}

func (r *memLogRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

type fakeAttemptRepo struct {
	mu       sync.Mutex
	attempts []domain.DeliveryAttempt
	createFn func(ctx context.Context, a *domain.DeliveryAttempt) error
}

func (f *fakeAttemptRepo) Create(ctx context.Context, a *domain.DeliveryAttempt) error {
	if f.createFn != nil {
		if err := f.createFn(ctx, a); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts = append(f.attempts, *a)
	return nil
}

func (f *fakeAttemptRepo) GetByRequestID(_ context.Context, _ domain.Channel, requestID string) ([]domain.DeliveryAttempt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]domain.DeliveryAttempt, 0)
	for _, a := range f.attempts {
		if a.RequestID == requestID {
			out = append(out, a)
		}
	}
	return out, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	calls  []provider.Delivery
	sendFn func(ctx context.Context, d provider.Delivery) (*provider.Response, error)
}

func (f *fakeTransport) Send(ctx context.Context, d provider.Delivery) (*provider.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, d)
	f.mu.Unlock()

	if f.sendFn != nil {
		return f.sendFn(ctx, d)
	}
	return &provider.Response{StatusCode: 202}, nil
}

func (f *fakeTransport) sent() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

type fakeRateLimiter struct {
	waitFn func(ctx context.Context, channel domain.Channel) error
}

func (f *fakeRateLimiter) Allow(context.Context, domain.Channel) (bool, error) {
	return true, nil
}

func (f *fakeRateLimiter) Wait(ctx context.Context, channel domain.Channel) error {
	if f.waitFn != nil {
		return f.waitFn(ctx, channel)
	}
	return nil
}

type fakeConsumer struct {
	consumeFn func(ctx context.Context, queueName string, handler queue.MessageHandler) error
}

func (f *fakeConsumer) Consume(ctx context.Context, queueName string, handler queue.MessageHandler) error {
	if f.consumeFn != nil {
		return f.consumeFn(ctx, queueName, handler)
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	return nil
}

type fakeDelayedPublisher struct {
	publishDelayedFn func(ctx context.Context, msg queue.DeliveryMessage, delay time.Duration) error
}

func (f *fakeDelayedPublisher) PublishDelayed(ctx context.Context, msg queue.DeliveryMessage, delay time.Duration) error {
	if f.publishDelayedFn != nil {
		return f.publishDelayedFn(ctx, msg, delay)
	}
	return nil
}

type fakeFailurePublisher struct {
	publishFailureFn func(ctx context.Context, record queue.FailureRecord) error
}

func (f *fakeFailurePublisher) PublishFailure(ctx context.Context, record queue.FailureRecord) error {
	if f.publishFailureFn != nil {
		return f.publishFailureFn(ctx, record)
	}
	return nil
}

type deadLetter struct {
	notification domain.Notification
	cause        error
	attempts     int
}

type recordingSink struct {
	mu      sync.Mutex
	letters []deadLetter
	err     error
}

func (s *recordingSink) DeadLetter(_ context.Context, n domain.Notification, cause error, attempts int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.letters = append(s.letters, deadLetter{notification: n, cause: cause, attempts: attempts})
	return s.err
}

func (s *recordingSink) all() []deadLetter {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]deadLetter(nil), s.letters...)
}

// recordedSleeps returns an InProcessRetry that records delays instead of sleeping.
func recordedSleeps() (*InProcessRetry, *[]time.Duration) {
	var mu sync.Mutex
	delays := make([]time.Duration, 0)
	retry := &InProcessRetry{sleep: func(ctx context.Context, d time.Duration) error {
		mu.Lock()
		defer mu.Unlock()
		delays = append(delays, d)
		return ctx.Err()
	}}
	return retry, &delays
}
