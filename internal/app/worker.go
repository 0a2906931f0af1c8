package app

import (
	"context"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/kursadbilgin/notification-platform/internal/config"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/handler"
	"github.com/kursadbilgin/notification-platform/internal/infra/postgresql"
	infraredis "github.com/kursadbilgin/notification-platform/internal/infra/redis"
	"github.com/kursadbilgin/notification-platform/internal/observability"
	"github.com/kursadbilgin/notification-platform/internal/provider"
	"github.com/kursadbilgin/notification-platform/internal/queue"
	"github.com/kursadbilgin/notification-platform/internal/ratelimit"
	"github.com/kursadbilgin/notification-platform/internal/repository"
	"github.com/kursadbilgin/notification-platform/internal/rpc"
	"github.com/kursadbilgin/notification-platform/internal/service"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// consumerPrefetch keeps one unacknowledged message per consumer, so an
// in-process retry occupies its slot.
const consumerPrefetch = 1

// RunWorker runs the delivery worker of one channel with its status RPC
// server and pending sweeper until ctx is canceled.
func RunWorker(ctx context.Context, cfg *config.Config, channel domain.Channel) error {
	if !channel.IsValid() {
		return fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}
	if err := cfg.RequireDatabase(); err != nil {
		return err
	}

	logger, err := observability.NewLogger(cfg.LogLevel, channel.String()+"-service")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	db, err := postgresql.NewPostgres(ctx, cfg.DatabaseDSN, 0)
	if err != nil {
		return fmt.Errorf("postgres initialization failed: %w", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close() //nolint:errcheck
	}

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer broker.Close() //nolint:errcheck

	limiter, closeLimiter, err := newRateLimiter(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	transport, err := newTransport(cfg, channel, logger)
	if err != nil {
		return err
	}

	publisher := queue.NewRabbitMQPublisher(broker)
	retry, err := newRetryScheduler(cfg, publisher)
	if err != nil {
		return err
	}
	deadLetters, err := service.NewQueueDeadLetterSink(publisher)
	if err != nil {
		return err
	}

	logs := repository.NewGormDeliveryLogRepo(db, channel)
	worker, err := service.NewDeliveryWorker(channel, service.WorkerDeps{
		Logs:        logs,
		Attempts:    repository.NewGormAttemptRepo(db),
		Consumer:    queue.NewRabbitMQConsumer(broker, consumerPrefetch, cfg.ConsumerRequeue, logger),
		Transport:   transport,
		RateLimiter: limiter,
		Retry:       retry,
		DeadLetters: deadLetters,
		MaxRetries:  cfg.MaxRetries,
		Concurrency: cfg.WorkerConcurrency,
	}, logger)
	if err != nil {
		return err
	}
	worker.SetMetrics(metrics)

	statusRPC, err := service.NewStatusRPC(channel, logs, logger)
	if err != nil {
		return err
	}
	server, err := rpc.NewServer(broker, rpcQueue(cfg, channel), logger)
	if err != nil {
		return err
	}
	statusRPC.Register(server)

	sweeper, err := service.NewPendingSweeper(channel, logs, deadLetters, cfg.SweepInterval, cfg.PendingTimeout, logger)
	if err != nil {
		return err
	}
	sweeper.SetMetrics(metrics)

	app := handler.NewApp(logger, metrics)
	app.Get("/livez", handler.LivezHandler())

	logger.Info("delivery worker started",
		zap.String("channel", channel.String()),
		zap.String("retryMode", cfg.RetryMode),
		zap.Int("maxRetries", cfg.MaxRetries),
		zap.Int("concurrency", cfg.WorkerConcurrency),
	)

	g, groupCtx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Start(groupCtx) })
	g.Go(func() error { return server.Serve(groupCtx) })
	g.Go(func() error { return sweeper.Start(groupCtx) })
	g.Go(func() error { return serveHTTP(groupCtx, app, cfg.MetricsPort, logger) })
	return g.Wait()
}

// newRateLimiter prefers the shared redis window and falls back to a
// process-local limiter when REDIS_URL is unset.
func newRateLimiter(ctx context.Context, cfg *config.Config) (ratelimit.RateLimiter, func(), error) {
	noop := func() {}

	client, err := infraredis.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, noop, fmt.Errorf("redis initialization failed: %w", err)
	}
	if client == nil {
		return ratelimit.NewLocal(cfg.RateLimitPerSec), noop, nil
	}

	limiter, err := infraredis.NewRedisRateLimiter(client, cfg.RateLimitPerSec)
	if err != nil {
		_ = client.Close()
		return nil, noop, err
	}
	return limiter, func() { _ = client.Close() }, nil
}

// newTransport builds the relay of a channel behind its own breaker. Without
// a relay URL every delivery fails permanently.
func newTransport(cfg *config.Config, channel domain.Channel, logger *zap.Logger) (provider.Transport, error) {
	var (
		relay provider.Transport
		err   error
	)

	switch channel {
	case domain.ChannelEmail:
		if cfg.EmailRelayURL == "" {
			logger.Warn("EMAIL_RELAY_URL is not set, email delivery is disabled")
			return provider.Disabled{Channel: channel.String()}, nil
		}
		relay, err = provider.NewEmailRelay(cfg.EmailRelayURL, cfg.EmailFrom, resty.New())
	case domain.ChannelPush:
		if cfg.PushRelayURL == "" {
			logger.Warn("PUSH_RELAY_URL is not set, push delivery is disabled")
			return provider.Disabled{Channel: channel.String()}, nil
		}
		relay, err = provider.NewPushRelay(cfg.PushRelayURL, resty.New())
	}
	if err != nil {
		return nil, fmt.Errorf("failed to build %s relay: %w", channel, err)
	}

	return provider.NewBreaking(channel.String()+"-relay", relay, provider.DefaultBreakerConfig(), logger), nil
}

func newRetryScheduler(cfg *config.Config, publisher queue.DelayedPublisher) (service.RetryScheduler, error) {
	if cfg.RetryMode == config.RetryModeRequeue {
		return service.NewRequeueRetry(publisher)
	}
	return service.NewInProcessRetry(), nil
}
