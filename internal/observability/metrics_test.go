package observability

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsWorkerCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncNotificationSent("EMAIL")
	metrics.IncNotificationFailed("push", "invalid_target")
	metrics.ObserveNotificationSendDuration("email", 120*time.Millisecond)
	metrics.IncWorkerInFlight("push")
	metrics.DecWorkerInFlight("push")
	metrics.IncRetryScheduled("email", "InProcess")
	metrics.IncDeadLettered("push")
	metrics.IncDuplicateSkipped("email")
	metrics.IncDuplicateSkipped("email")

	if got := testutil.ToFloat64(metrics.notificationsSentTotal.WithLabelValues("email")); got != 1 {
		t.Fatalf("notifications_sent_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.notificationsFailedTotal.WithLabelValues("push", "invalid_target")); got != 1 {
		t.Fatalf("notifications_failed_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.retryScheduledTotal.WithLabelValues("email", "inprocess")); got != 1 {
		t.Fatalf("retry_scheduled_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.workerInflight.WithLabelValues("push")); got != 0 {
		t.Fatalf("worker_inflight = %v, want 0", got)
	}
	if got := testutil.ToFloat64(metrics.deadLetteredTotal.WithLabelValues("push")); got != 1 {
		t.Fatalf("dead_lettered_total = %v, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.duplicatesSkippedTotal.WithLabelValues("email")); got != 2 {
		t.Fatalf("duplicates_skipped_total = %v, want 2", got)
	}
}

func TestMetricsGatewayCollectors(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()

	metrics.IncNotificationQueued("email", "published")
	metrics.ObserveRPCCall("user.get_by_id", "ok", 15*time.Millisecond)
	metrics.SetCircuitState("user_service", "open")
	metrics.SetCircuitState("template_service", "half_open")
	metrics.SetCircuitState("template_service", "closed")

	if got := testutil.ToFloat64(metrics.notificationsQueuedTotal.WithLabelValues("email", "published")); got != 1 {
		t.Fatalf("notifications_queued_total = %v, want 1", got)
	}
	if got := testutil.CollectAndCount(metrics.rpcCallDuration); got != 1 {
		t.Fatalf("rpc_call_duration series = %d, want 1", got)
	}
	if got := testutil.ToFloat64(metrics.circuitState.WithLabelValues("user_service")); got != 2 {
		t.Fatalf("circuit_state{user_service} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.circuitState.WithLabelValues("template_service")); got != 0 {
		t.Fatalf("circuit_state{template_service} = %v, want 0", got)
	}
}

func TestMetricsNilReceiverIsNoop(t *testing.T) {
	t.Parallel()

	var metrics *Metrics
	metrics.IncNotificationSent("email")
	metrics.IncDeadLettered("push")
	metrics.ObserveRPCCall("auth.login", "timeout", time.Second)
	metrics.SetCircuitState("user_service", "open")
}

func TestMetricsHTTPMiddlewareRecordsRequest(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/livez", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	req := httptest.NewRequest("GET", "/livez", nil)
	resp, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/livez", "200")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}

func TestMetricsHTTPMiddlewareRecordsErrorStatus(t *testing.T) {
	t.Parallel()

	metrics := NewMetrics()
	app := fiber.New()
	app.Use(metrics.HTTPMiddleware())
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("boom")
	})

	req := httptest.NewRequest("GET", "/boom", nil)
	_, err := app.Test(req)
	if err != nil {
		t.Fatalf("app.Test() error = %v", err)
	}

	if got := testutil.ToFloat64(metrics.httpRequestsTotal.WithLabelValues("GET", "/boom", "500")); got != 1 {
		t.Fatalf("http_requests_total = %v, want 1", got)
	}
}
