package app

import (
	"context"
	"fmt"

	"github.com/kursadbilgin/notification-platform/internal/circuitbreaker"
	"github.com/kursadbilgin/notification-platform/internal/clients"
	"github.com/kursadbilgin/notification-platform/internal/config"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/handler"
	"github.com/kursadbilgin/notification-platform/internal/observability"
	"github.com/kursadbilgin/notification-platform/internal/queue"
	"github.com/kursadbilgin/notification-platform/internal/rpc"
	"github.com/kursadbilgin/notification-platform/internal/service"
	"go.uber.org/zap"
)

// GatewayName is the self-check name reported by the health routes.
const GatewayName = "api_gateway"

// RunGateway serves the public HTTP API until ctx is canceled.
func RunGateway(ctx context.Context, cfg *config.Config) error {
	logger, err := observability.NewLogger(cfg.LogLevel, "api-gateway")
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	metrics := observability.NewMetrics()

	broker, err := queue.NewRabbitMQ(cfg.RabbitMQURL)
	if err != nil {
		return fmt.Errorf("rabbitmq initialization failed: %w", err)
	}
	defer broker.Close() //nolint:errcheck

	caller, err := rpc.NewClient(broker, logger)
	if err != nil {
		return err
	}
	defer caller.Close() //nolint:errcheck
	caller.SetMetrics(metrics)

	breaker := circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: cfg.CircuitFailureThreshold,
		Cooldown:         cfg.CircuitCooldown,
	})
	breaker.RegisterStateChangeListener(circuitbreaker.LogStateChanges(logger))
	breaker.RegisterStateChangeListener(func(dependency string, _ circuitbreaker.State, to circuitbreaker.State) {
		metrics.SetCircuitState(dependency, string(to))
	})

	gateway, err := service.NewGatewayService(service.GatewayDeps{
		Users:     clients.NewUserClient(caller, cfg.UserQueue),
		Templates: clients.NewTemplateClient(caller, cfg.TemplateQueue),
		Auth:      clients.NewAuthClient(caller, cfg.AuthQueue),
		Deliveries: clients.NewDeliveryClient(caller, map[domain.Channel]string{
			domain.ChannelEmail: cfg.EmailRPCQueue,
			domain.ChannelPush:  cfg.PushRPCQueue,
		}),
		Publisher:       queue.NewRabbitMQPublisher(broker),
		Breaker:         breaker,
		DefaultLanguage: cfg.DefaultLanguage,
	}, logger)
	if err != nil {
		return err
	}
	gateway.SetMetrics(metrics)

	health, err := service.NewHealthAggregator(GatewayName, service.ProbeFunc(broker.Ping), []service.NamedProbe{
		{Name: "user_service", Probe: clients.NewHealthClient(caller, cfg.UserQueue)},
		{Name: "template_service", Probe: clients.NewHealthClient(caller, cfg.TemplateQueue)},
		{Name: "auth_service", Probe: clients.NewHealthClient(caller, cfg.AuthQueue)},
		{Name: "email_service", Probe: clients.NewHealthClient(caller, cfg.EmailRPCQueue)},
		{Name: "push_service", Probe: clients.NewHealthClient(caller, cfg.PushRPCQueue)},
	}, logger)
	if err != nil {
		return err
	}
	health.SetCircuits(breaker)

	app := handler.NewApp(logger, metrics)
	handler.RegisterHealthRoutes(app, health)
	if err := handler.RegisterGatewayRoutes(app, gateway); err != nil {
		return err
	}

	logger.Info("api gateway started",
		zap.Int("port", cfg.APIPort),
		zap.Uint("circuitThreshold", cfg.CircuitFailureThreshold),
		zap.Duration("circuitCooldown", cfg.CircuitCooldown),
	)
	return serveHTTP(ctx, app, cfg.APIPort, logger)
}
