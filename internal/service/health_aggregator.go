package service

import (
	"context"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/circuitbreaker"
	"github.com/kursadbilgin/notification-platform/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const selfCheckTimeout = 2 * time.Second

// Probe checks one dependency. clients.HealthClient and the broker ping satisfy it.
type Probe interface {
	Check(ctx context.Context) error
}

type ProbeFunc func(ctx context.Context) error

func (f ProbeFunc) Check(ctx context.Context) error { return f(ctx) }

// Reporter is a Probe that also carries the dependency's own view of its
// health. clients.HealthClient implements it.
type Reporter interface {
	Report(ctx context.Context) (domain.HealthReport, error)
}

// CircuitSource exposes per-dependency circuit state. *circuitbreaker.Breaker
// implements it.
type CircuitSource interface {
	Snapshots() []circuitbreaker.Snapshot
}

type NamedProbe struct {
	Name  string
	Probe Probe
}

// AggregateHealth is the combined view of the self-check and every dependency.
type AggregateHealth struct {
	Status       domain.HealthStatus
	Timestamp    time.Time
	Self         domain.HealthReport
	Dependencies []domain.HealthReport
	// OpenCircuits lists dependencies whose breaker is not closed. It does
	// not change Status.
	OpenCircuits []circuitbreaker.Snapshot
}

func (h AggregateHealth) Healthy() bool { return h.Status == domain.HealthHealthy }

// HealthAggregator runs every probe concurrently and waits for all of them.
type HealthAggregator struct {
	selfName string
	self     Probe
	deps     []NamedProbe
	circuits CircuitSource
	logger   *zap.Logger
	now      func() time.Time
}

func NewHealthAggregator(selfName string, self Probe, deps []NamedProbe, logger *zap.Logger) (*HealthAggregator, error) {
	if self == nil {
		return nil, fmt.Errorf("self probe is required")
	}
	for _, dep := range deps {
		if dep.Name == "" || dep.Probe == nil {
			return nil, fmt.Errorf("dependency probes need a name and a probe")
		}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HealthAggregator{
		selfName: selfName,
		self:     self,
		deps:     deps,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// SetCircuits makes Check report the breakers that are open or half open.
func (a *HealthAggregator) SetCircuits(circuits CircuitSource) {
	if a == nil {
		return
	}
	a.circuits = circuits
}

// Check is healthy only when the self-check and every dependency are healthy.
func (a *HealthAggregator) Check(ctx context.Context) AggregateHealth {
	reports := make([]domain.HealthReport, len(a.deps))
	var self domain.HealthReport

	var g errgroup.Group
	g.Go(func() error {
		self = a.checkSelf(ctx)
		return nil
	})
	for i, dep := range a.deps {
		i, dep := i, dep
		g.Go(func() error {
			reports[i] = a.run(ctx, dep.Name, dep.Probe)
			return nil
		})
	}
	_ = g.Wait()

	status := domain.HealthHealthy
	if !self.Healthy() {
		status = domain.HealthUnhealthy
	}
	for _, r := range reports {
		if !r.Healthy() {
			status = domain.HealthUnhealthy
			a.logger.Warn("dependency unhealthy",
				zap.String("dependency", r.Dependency),
				zap.String("reason", r.Error),
			)
		}
	}

	return AggregateHealth{
		Status:       status,
		Timestamp:    a.now().UTC(),
		Self:         self,
		Dependencies: reports,
		OpenCircuits: a.openCircuits(),
	}
}

func (a *HealthAggregator) openCircuits() []circuitbreaker.Snapshot {
	if a.circuits == nil {
		return nil
	}
	var open []circuitbreaker.Snapshot
	for _, snap := range a.circuits.Snapshots() {
		if snap.State != circuitbreaker.StateClosed {
			open = append(open, snap)
		}
	}
	return open
}

// Probe checks a single dependency by name. The gateway's own name runs the self-check.
func (a *HealthAggregator) Probe(ctx context.Context, name string) (domain.HealthReport, error) {
	if name == a.selfName {
		return a.checkSelf(ctx), nil
	}
	for _, dep := range a.deps {
		if dep.Name == name {
			return a.run(ctx, dep.Name, dep.Probe), nil
		}
	}
	return domain.HealthReport{}, fmt.Errorf("%w: unknown dependency %q", domain.ErrNotFound, name)
}

// Dependencies lists the probe names, self first.
func (a *HealthAggregator) Dependencies() []string {
	names := make([]string, 0, len(a.deps)+1)
	names = append(names, a.selfName)
	for _, dep := range a.deps {
		names = append(names, dep.Name)
	}
	return names
}

func (a *HealthAggregator) checkSelf(ctx context.Context) domain.HealthReport {
	selfCtx, cancel := context.WithTimeout(ctx, selfCheckTimeout)
	defer cancel()
	return a.run(selfCtx, a.selfName, a.self)
}

// run never fails: a probe error or panic becomes an unhealthy report.
func (a *HealthAggregator) run(ctx context.Context, name string, probe Probe) (report domain.HealthReport) {
	report = domain.HealthReport{Dependency: name, Status: domain.HealthHealthy}
	defer func() {
		if r := recover(); r != nil {
			report.Status = domain.HealthUnhealthy
			report.Error = fmt.Sprintf("probe panicked: %v", r)
		}
		if report.Timestamp.IsZero() {
			report.Timestamp = a.now().UTC()
		}
	}()

	if reporter, ok := probe.(Reporter); ok {
		reported, err := reporter.Report(ctx)
		report.Timestamp = reported.Timestamp
		if err != nil || reported.Status == domain.HealthUnhealthy {
			report.Status = domain.HealthUnhealthy
			report.Error = reported.Error
			if err != nil {
				report.Error = err.Error()
			}
		}
		return report
	}

	if err := probe.Check(ctx); err != nil {
		report.Status = domain.HealthUnhealthy
		report.Error = err.Error()
	}
	return report
}
