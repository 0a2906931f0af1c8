package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/observability"
	"github.com/kursadbilgin/notification-platform/internal/provider"
	"github.com/kursadbilgin/notification-platform/internal/queue"
	"github.com/kursadbilgin/notification-platform/internal/ratelimit"
	"github.com/kursadbilgin/notification-platform/internal/repository"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const minWorkerConcurrency = 1

// WorkerDeps wires a DeliveryWorker. Logs and Transport are required.
type WorkerDeps struct {
	Logs        repository.DeliveryLogRepository
	Attempts    repository.AttemptRepository
	Consumer    queue.Consumer
	Transport   provider.Transport
	RateLimiter ratelimit.RateLimiter
	Retry       RetryScheduler
	DeadLetters DeadLetterSink
	// MaxRetries is the number of attempts after the first one. Zero disables retries.
	MaxRetries  int
	Concurrency int
}

// DeliveryWorker consumes one channel's work queue and drives each request
// to a single terminal state.
type DeliveryWorker struct {
	channel     domain.Channel
	logs        repository.DeliveryLogRepository
	attempts    repository.AttemptRepository
	consumer    queue.Consumer
	transport   provider.Transport
	rateLimiter ratelimit.RateLimiter
	retry       RetryScheduler
	deadLetters DeadLetterSink
	maxRetries  int
	concurrency int
	validate    *validator.Validate
	logger      *zap.Logger
	metrics     *observability.Metrics
	now         func() time.Time
}

func NewDeliveryWorker(channel domain.Channel, deps WorkerDeps, logger *zap.Logger) (*DeliveryWorker, error) {
	if !channel.IsValid() {
		return nil, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}
	if deps.Logs == nil {
		return nil, fmt.Errorf("delivery log repository is required")
	}
	if deps.Transport == nil {
		return nil, fmt.Errorf("%s transport is required", channel)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.RateLimiter == nil {
		deps.RateLimiter = ratelimit.Unlimited{}
	}
	if deps.Retry == nil {
		deps.Retry = NewInProcessRetry()
	}
	if deps.DeadLetters == nil {
		deps.DeadLetters = NewLogDeadLetterSink(logger)
	}
	if deps.MaxRetries < 0 {
		deps.MaxRetries = DefaultMaxRetries
	}
	if deps.Concurrency < minWorkerConcurrency {
		deps.Concurrency = minWorkerConcurrency
	}

	return &DeliveryWorker{
		channel:     channel,
		logs:        deps.Logs,
		attempts:    deps.Attempts,
		consumer:    deps.Consumer,
		transport:   deps.Transport,
		rateLimiter: deps.RateLimiter,
		retry:       deps.Retry,
		deadLetters: deps.DeadLetters,
		maxRetries:  deps.MaxRetries,
		concurrency: deps.Concurrency,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With(zap.String("channel", channel.String())),
		now:         time.Now,
	}, nil
}

func (w *DeliveryWorker) SetMetrics(metrics *observability.Metrics) {
	if w == nil {
		return
	}
	w.metrics = metrics
}

func (w *DeliveryWorker) Channel() domain.Channel { return w.channel }

// Start runs concurrency consumers on the channel work queue until ctx is canceled.
func (w *DeliveryWorker) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if w.consumer == nil {
		return fmt.Errorf("consumer is required to start the %s worker", w.channel)
	}

	queueName := queue.QueueName(w.channel)
	g, groupCtx := errgroup.WithContext(ctx)
	for i := 0; i < w.concurrency; i++ {
		workerID := i + 1

		g.Go(func() error {
			w.logger.Info("worker started",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)

			err := w.consumer.Consume(groupCtx, queueName, w.Handle)
			if err != nil {
				w.logger.Error("worker stopped with error",
					zap.Int("workerId", workerID),
					zap.String("queue", queueName),
					zap.Error(err),
				)
				return err
			}

			w.logger.Info("worker stopped",
				zap.Int("workerId", workerID),
				zap.String("queue", queueName),
			)
			return nil
		})
	}

	return g.Wait()
}

// Handle processes one delivery event. A nil return acks the message; an error
// nacks it so the broker applies its requeue or dead-letter policy.
func (w *DeliveryWorker) Handle(ctx context.Context, msg queue.DeliveryMessage) error {
	n := msg.Data
	if n.Channel == "" {
		n.Channel = w.channel
	}
	if n.Channel != w.channel {
		return fmt.Errorf("%w: %s worker received a %s message", domain.ErrValidation, w.channel, n.Channel)
	}

	entry, proceed, err := w.admit(ctx, n)
	if err != nil || !proceed {
		return err
	}

	channelName := w.channel.String()
	w.metrics.IncWorkerInFlight(channelName)
	defer w.metrics.DecWorkerInFlight(channelName)

	if err := w.checkTarget(entry.Recipient); err != nil {
		return w.fail(ctx, n, err, "invalid_target")
	}

	return w.deliver(ctx, n, entry)
}

// admit applies the idempotency gate and inserts the pending entry on first sight.
// A redelivered retry whose entry is still pending resumes.
func (w *DeliveryWorker) admit(ctx context.Context, n domain.Notification) (*domain.DeliveryLogEntry, bool, error) {
	existing, err := w.logs.Get(ctx, n.RequestID)
	switch {
	case err == nil:
		if n.Attempt > 0 && existing.Status == domain.StatusPending {
			return existing, true, nil
		}
		w.skipDuplicate(n, existing.Status)
		return nil, false, nil
	case !errors.Is(err, domain.ErrNotFound):
		return nil, false, fmt.Errorf("failed to look up delivery log: %w", err)
	}

	entry := &domain.DeliveryLogEntry{
		RequestID: n.RequestID,
		Channel:   w.channel,
		UserID:    n.User.ID,
		Recipient: recipientOf(w.channel, n.User),
		Subject:   Render(n.Template.Subject, n.Variables),
		Body:      Render(n.Template.Body, n.Variables),
		Data:      n.Variables,
	}
	if err := w.logs.CreatePending(ctx, entry); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			w.skipDuplicate(n, domain.StatusPending)
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to create delivery log: %w", err)
	}
	return entry, true, nil
}

func (w *DeliveryWorker) deliver(ctx context.Context, n domain.Notification, entry *domain.DeliveryLogEntry) error {
	delivery := provider.Delivery{
		RequestID: n.RequestID,
		Recipient: entry.Recipient,
		Subject:   entry.Subject,
		Body:      entry.Body,
		Data:      n.Variables,
	}

	for {
		sendErr := w.send(ctx, n, delivery)
		if sendErr == nil {
			if _, err := w.markTerminal(ctx, n.RequestID, domain.StatusSent, nil); err != nil {
				return err
			}
			w.metrics.IncNotificationSent(w.channel.String())
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("delivery interrupted: %w", sendErr)
		}
		if !provider.IsTransient(sendErr) {
			return w.fail(ctx, n, sendErr, "permanent_error")
		}
		if n.Attempt >= w.maxRetries {
			return w.exhaust(ctx, n, sendErr)
		}

		delay := RetryDelay(n.Attempt)
		handedOff, err := w.retry.Schedule(ctx, n, delay)
		if err != nil {
			return fmt.Errorf("retry of %s not scheduled: %w", n.RequestID, err)
		}
		w.metrics.IncRetryScheduled(w.channel.String(), w.retry.Name())
		w.logger.Warn("delivery failed, retry scheduled",
			zap.String("requestId", n.RequestID),
			zap.Int("attempt", n.Attempt+1),
			zap.Duration("delay", delay),
			zap.String("scheduler", w.retry.Name()),
			zap.Error(sendErr),
		)
		if handedOff {
			return nil
		}
		n.Attempt++
	}
}

func (w *DeliveryWorker) send(ctx context.Context, n domain.Notification, delivery provider.Delivery) error {
	if err := w.rateLimiter.Wait(ctx, w.channel); err != nil {
		return fmt.Errorf("rate limiter wait failed: %w", err)
	}

	start := w.now()
	resp, err := w.transport.Send(ctx, delivery)
	w.metrics.ObserveNotificationSendDuration(w.channel.String(), w.now().Sub(start))

	w.recordAttempt(ctx, n.RequestID, n.Attempt+1, resp, err)
	return err
}

// fail records a permanent failure. The message is acked.
func (w *DeliveryWorker) fail(ctx context.Context, n domain.Notification, cause error, reason string) error {
	w.logger.Warn("delivery failed permanently",
		zap.String("requestId", n.RequestID),
		zap.String("reason", reason),
		zap.Error(cause),
	)

	message := cause.Error()
	if _, err := w.markTerminal(ctx, n.RequestID, domain.StatusFailed, &message); err != nil {
		return err
	}
	w.metrics.IncNotificationFailed(w.channel.String(), reason)
	return nil
}

// exhaust marks the entry failed, hands the request to the dead-letter sink and
// returns the final error so the consumer nacks.
func (w *DeliveryWorker) exhaust(ctx context.Context, n domain.Notification, cause error) error {
	attempts := n.Attempt + 1
	message := cause.Error()
	if _, err := w.markTerminal(ctx, n.RequestID, domain.StatusFailed, &message); err != nil {
		w.logger.Error("failed to record exhausted delivery",
			zap.String("requestId", n.RequestID),
			zap.Error(err),
		)
	}
	w.metrics.IncNotificationFailed(w.channel.String(), "retry_exhausted")

	if err := w.deadLetters.DeadLetter(ctx, n, cause, attempts); err != nil {
		w.logger.Error("failed to dead-letter delivery",
			zap.String("requestId", n.RequestID),
			zap.Error(err),
		)
	} else {
		w.metrics.IncDeadLettered(w.channel.String())
	}

	w.logger.Error("delivery retries exhausted",
		zap.String("requestId", n.RequestID),
		zap.Int("attempts", attempts),
		zap.Error(cause),
	)
	return fmt.Errorf("delivery of %s failed after %d attempts: %w", n.RequestID, attempts, cause)
}

func (w *DeliveryWorker) markTerminal(ctx context.Context, requestID string, status domain.DeliveryStatus, errorMessage *string) (bool, error) {
	applied, err := w.logs.MarkTerminal(ctx, requestID, status, errorMessage)
	if err != nil {
		return false, fmt.Errorf("failed to mark delivery %s: %w", status, err)
	}
	if !applied {
		w.logger.Debug("delivery already terminal",
			zap.String("requestId", requestID),
			zap.String("status", status.String()),
		)
	}
	return applied, nil
}

func (w *DeliveryWorker) checkTarget(recipient string) error {
	switch w.channel {
	case domain.ChannelPush:
		_, err := domain.ParsePushSubscription(recipient)
		return err
	case domain.ChannelEmail:
		if err := w.validate.Var(recipient, "required,email"); err != nil {
			return fmt.Errorf("%w: invalid recipient address %q", domain.ErrInvalidTarget, recipient)
		}
	}
	return nil
}

func (w *DeliveryWorker) skipDuplicate(n domain.Notification, status domain.DeliveryStatus) {
	w.metrics.IncDuplicateSkipped(w.channel.String())
	w.logger.Info("duplicate delivery skipped",
		zap.String("requestId", n.RequestID),
		zap.String("status", status.String()),
		zap.Int("attempt", n.Attempt),
	)
}

// recordAttempt writes the audit row. Audit failures never change the outcome.
func (w *DeliveryWorker) recordAttempt(
	ctx context.Context,
	requestID string,
	attemptNumber int,
	resp *provider.Response,
	sendErr error,
) {
	if w.attempts == nil {
		return
	}

	var statusCode *int
	var attemptErr *string

	if resp != nil && resp.StatusCode > 0 {
		value := resp.StatusCode
		statusCode = &value
	}

	if sendErr != nil {
		value := sendErr.Error()
		attemptErr = &value

		var providerErr *provider.ProviderError
		if errors.As(sendErr, &providerErr) && providerErr.StatusCode > 0 && statusCode == nil {
			value := providerErr.StatusCode
			statusCode = &value
		}
	}

	attempt := &domain.DeliveryAttempt{
		ID:            uuid.NewString(),
		RequestID:     requestID,
		Channel:       w.channel,
		AttemptNumber: attemptNumber,
		StatusCode:    statusCode,
		Error:         attemptErr,
		CreatedAt:     w.now().UTC(),
	}

	if err := w.attempts.Create(ctx, attempt); err != nil {
		w.logger.Warn("failed to record delivery attempt",
			zap.String("requestId", requestID),
			zap.Int("attempt", attemptNumber),
			zap.Error(err),
		)
	}
}

func recipientOf(channel domain.Channel, user domain.User) string {
	if channel == domain.ChannelPush {
		if user.PushToken == nil {
			return ""
		}
		return strings.TrimSpace(*user.PushToken)
	}
	return strings.TrimSpace(user.Email)
}
