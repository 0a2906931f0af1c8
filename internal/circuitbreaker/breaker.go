package circuitbreaker

import (
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// State represents circuit breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	DefaultFailureThreshold uint = 5
	DefaultCooldown              = 60 * time.Second
)

// Config holds circuit breaker configuration.
type Config struct {
	FailureThreshold uint          // Failures that open the circuit
	Cooldown         time.Duration // Time an open circuit rejects calls before a trial
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		Cooldown:         DefaultCooldown,
	}
}

// Snapshot is a point-in-time copy of one dependency's record.
type Snapshot struct {
	Dependency      string
	State           State
	FailureCount    uint
	LastFailureTime time.Time
}

// StateChangeListener is notified after a dependency changes state.
type StateChangeListener func(dependency string, from State, to State)

type record struct {
	failureCount    uint
	lastFailureTime time.Time
	state           State
}

type transition struct {
	dependency string
	from       State
	to         State
}

// Breaker tracks consecutive failures per named dependency. Records are
// created on the first failure and live for the process lifetime.
type Breaker struct {
	cfg Config

	mu        sync.Mutex
	records   map[string]*record
	listeners []StateChangeListener

	now func() time.Time
}

func New(cfg Config) *Breaker {
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = DefaultFailureThreshold
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = DefaultCooldown
	}

	return &Breaker{
		cfg:     cfg,
		records: make(map[string]*record),
		now:     time.Now,
	}
}

// IsOpen reports whether calls to dependency must be rejected. An open
// circuit whose cooldown has elapsed moves to half-open and admits the call.
func (b *Breaker) IsOpen(dependency string) bool {
	b.mu.Lock()

	rec, ok := b.records[dependency]
	if !ok {
		b.mu.Unlock()
		return false
	}

	var changed *transition
	open := false
	switch rec.state {
	case StateOpen:
		if b.now().Sub(rec.lastFailureTime) > b.cfg.Cooldown {
			rec.state = StateHalfOpen
			rec.failureCount = 0
			changed = &transition{dependency: dependency, from: StateOpen, to: StateHalfOpen}
		} else {
			open = true
		}
	}
	b.mu.Unlock()

	if changed != nil {
		b.notify(*changed)
	}
	return open
}

// RecordSuccess closes the circuit and clears the failure count.
func (b *Breaker) RecordSuccess(dependency string) {
	b.mu.Lock()

	rec, ok := b.records[dependency]
	if !ok {
		b.mu.Unlock()
		return
	}

	from := rec.state
	rec.state = StateClosed
	rec.failureCount = 0
	b.mu.Unlock()

	if from != StateClosed {
		b.notify(transition{dependency: dependency, from: from, to: StateClosed})
	}
}

// RecordFailure counts a connectivity failure. Reaching the threshold, or
// failing a half-open trial, opens the circuit.
func (b *Breaker) RecordFailure(dependency string) {
	b.mu.Lock()

	rec, ok := b.records[dependency]
	if !ok {
		rec = &record{state: StateClosed}
		b.records[dependency] = rec
	}

	from := rec.state
	rec.failureCount++
	rec.lastFailureTime = b.now()

	if from == StateHalfOpen || rec.failureCount >= b.cfg.FailureThreshold {
		rec.state = StateOpen
	}
	to := rec.state
	b.mu.Unlock()

	if from != to {
		b.notify(transition{dependency: dependency, from: from, to: to})
	}
}

// State returns the stored state without applying the cooldown transition.
func (b *Breaker) State(dependency string) State {
	b.mu.Lock()
	defer b.mu.Unlock()

	if rec, ok := b.records[dependency]; ok {
		return rec.state
	}
	return StateClosed
}

func (b *Breaker) Snapshot(dependency string) (Snapshot, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	rec, ok := b.records[dependency]
	if !ok {
		return Snapshot{Dependency: dependency, State: StateClosed}, false
	}
	return snapshotOf(dependency, rec), true
}

// Snapshots returns every known record ordered by dependency name.
func (b *Breaker) Snapshots() []Snapshot {
	b.mu.Lock()
	out := make([]Snapshot, 0, len(b.records))
	for dep, rec := range b.records {
		out = append(out, snapshotOf(dep, rec))
	}
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Dependency < out[j].Dependency })
	return out
}

func (b *Breaker) RegisterStateChangeListener(listener StateChangeListener) {
	if listener == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, listener)
}

func (b *Breaker) notify(t transition) {
	b.mu.Lock()
	listeners := make([]StateChangeListener, len(b.listeners))
	copy(listeners, b.listeners)
	b.mu.Unlock()

	for _, l := range listeners {
		l(t.dependency, t.from, t.to)
	}
}

func snapshotOf(dependency string, rec *record) Snapshot {
	return Snapshot{
		Dependency:      dependency,
		State:           rec.state,
		FailureCount:    rec.failureCount,
		LastFailureTime: rec.lastFailureTime,
	}
}

// LogStateChanges returns a listener that logs every transition.
func LogStateChanges(logger *zap.Logger) StateChangeListener {
	if logger == nil {
		logger = zap.NewNop()
	}

	return func(dependency string, from State, to State) {
		fields := []zap.Field{
			zap.String("dependency", dependency),
			zap.String("from", string(from)),
			zap.String("to", string(to)),
		}
		if to == StateOpen {
			logger.Warn("circuit opened", fields...)
			return
		}
		logger.Info("circuit state changed", fields...)
	}
}
