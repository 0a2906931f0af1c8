package handler

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/kursadbilgin/notification-platform/internal/observability"
	"github.com/kursadbilgin/notification-platform/internal/transport"
	"go.uber.org/zap"
)

const (
	APIPrefix = "/api/v1"

	readTimeout  = 10 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second
)

// NewApp builds the gateway fiber app with the shared middleware chain.
// A nil metrics disables the /metrics route.
func NewApp(logger *zap.Logger, metrics *observability.Metrics) *fiber.App {
	if logger == nil {
		logger = zap.NewNop()
	}

	app := fiber.New(fiber.Config{
		AppName:               "notification-gateway",
		DisableStartupMessage: true,
		ReadTimeout:           readTimeout,
		WriteTimeout:          writeTimeout,
		IdleTimeout:           idleTimeout,
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ErrorHandler:          transport.ErrorHandler(logger),
	})

	app.Use(recover.New())
	app.Use(observability.CorrelationMiddleware())
	if metrics != nil {
		app.Use(metrics.HTTPMiddleware())
		app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))
	}

	return app
}
