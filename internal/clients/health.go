package clients

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"github.com/kursadbilgin/notification-platform/internal/rpc"
)

const healthTimeout = 3 * time.Second

type healthReply struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Error     string `json:"error"`
}

// HealthClient sends the uniform health.check pattern to a service queue.
type HealthClient struct {
	caller rpc.Caller
	queue  string
}

func NewHealthClient(caller rpc.Caller, queue string) *HealthClient {
	return &HealthClient{caller: caller, queue: queue}
}

// Check fails when the service rejects the call or reports itself anything
// but healthy.
func (c *HealthClient) Check(ctx context.Context) error {
	_, err := c.Report(ctx)
	return err
}

// Report returns the status the service reports about itself. A reply
// without a status falls back to the envelope's success flag. The timestamp
// is the service's own when it sends a parseable one.
func (c *HealthClient) Report(ctx context.Context) (domain.HealthReport, error) {
	resp, err := call(ctx, c.caller, c.queue, PatternHealthCheck, healthTimeout, struct{}{})

	var reply healthReply
	if resp != nil {
		if decodeErr := resp.Decode(&reply); decodeErr != nil && !errors.Is(decodeErr, domain.ErrNotFound) && err == nil {
			return domain.HealthReport{Status: domain.HealthUnhealthy}, decodeErr
		}
	}

	report := domain.HealthReport{
		Status:    domain.HealthHealthy,
		Timestamp: parseTimestamp(reply.Timestamp),
		Error:     reply.Error,
	}
	if err != nil {
		report.Status = domain.HealthUnhealthy
		if report.Error != "" {
			err = fmt.Errorf("%w: %s", err, report.Error)
		}
		report.Error = err.Error()
		return report, err
	}

	status := strings.ToLower(strings.TrimSpace(reply.Status))
	if status != "" && status != string(domain.HealthHealthy) {
		report.Status = domain.HealthUnhealthy
		detail := reply.Error
		if detail == "" {
			detail = "no detail"
		}
		err := fmt.Errorf("%w: %s reports status %q: %s", domain.ErrServiceUnavailable, c.queue, reply.Status, detail)
		report.Error = err.Error()
		return report, err
	}
	return report, nil
}

func parseTimestamp(raw string) time.Time {
	if raw == "" {
		return time.Time{}
	}
	ts, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}
	}
	return ts.UTC()
}
