package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-platform/internal/config"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

// rpcQueue is the status side channel queue of a channel worker.
func rpcQueue(cfg *config.Config, channel domain.Channel) string {
	if channel == domain.ChannelPush {
		return cfg.PushRPCQueue
	}
	return cfg.EmailRPCQueue
}

// serveHTTP runs app until ctx is done, then shuts it down gracefully.
func serveHTTP(ctx context.Context, app *fiber.App, port int, logger *zap.Logger) error {
	addr := fmt.Sprintf(":%d", port)
	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(addr)
	}()
	logger.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.Canceled) {
		logger.Warn("http server shutdown", zap.Error(err))
	}
	return nil
}
