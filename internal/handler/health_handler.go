package handler

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/service"
)

type HealthChecker interface {
	Check(ctx context.Context) service.AggregateHealth
	Probe(ctx context.Context, name string) (domain.HealthReport, error)
}

type healthReport struct {
	Status    domain.HealthStatus `json:"status"`
	Timestamp time.Time           `json:"timestamp"`
	Error     string              `json:"error,omitempty"`
}

type aggregateHealthResponse struct {
	Status    domain.HealthStatus     `json:"status"`
	Gateway   healthReport            `json:"api_gateway"`
	Services  map[string]healthReport `json:"services"`
	Circuits  []circuitResponse       `json:"open_circuits"`
	Timestamp time.Time               `json:"timestamp"`
}

func RegisterHealthRoutes(app fiber.Router, checker HealthChecker) {
	app.Get("/livez", LivezHandler())
	app.Get(APIPrefix+"/health", HealthHandler(checker))
	app.Get(APIPrefix+"/health/:dependency", DependencyHealthHandler(checker))
}

func LivezHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status": "ok",
		})
	}
}

// HealthHandler answers 200 only when the gateway and every dependency are healthy.
func HealthHandler(checker HealthChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		agg := checker.Check(c.UserContext())

		services := make(map[string]healthReport, len(agg.Dependencies))
		for _, r := range agg.Dependencies {
			services[r.Dependency] = toHealthReport(r)
		}

		statusCode := fiber.StatusOK
		message := "All services are healthy"
		if !agg.Healthy() {
			statusCode = fiber.StatusServiceUnavailable
			message = "One or more services are unhealthy"
		}

		return c.Status(statusCode).JSON(envelope{
			Success: agg.Healthy(),
			Message: message,
			Data: aggregateHealthResponse{
				Status:    agg.Status,
				Gateway:   toHealthReport(agg.Self),
				Services:  services,
				Circuits:  toCircuitResponses(agg.OpenCircuits),
				Timestamp: agg.Timestamp,
			},
		})
	}
}

// DependencyHealthHandler probes one dependency. Path names may use dashes,
// so /health/user-service reaches the user_service probe.
func DependencyHealthHandler(checker HealthChecker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		name := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(c.Params("dependency"))), "-", "_")

		report, err := checker.Probe(c.UserContext(), name)
		if err != nil {
			return toHTTPError(err)
		}

		statusCode := fiber.StatusOK
		message := name + " is healthy"
		if !report.Healthy() {
			statusCode = fiber.StatusServiceUnavailable
			message = name + " is unhealthy"
		}

		return c.Status(statusCode).JSON(envelope{
			Success: report.Healthy(),
			Message: message,
			Data:    toHealthReport(report),
		})
	}
}

func toHealthReport(r domain.HealthReport) healthReport {
	return healthReport{
		Status:    r.Status,
		Timestamp: r.Timestamp,
		Error:     r.Error,
	}
}
