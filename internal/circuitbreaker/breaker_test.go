package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func newTestBreaker(now *time.Time) *Breaker {
	b := New(DefaultConfig())
	b.now = func() time.Time { return *now }
	return b
}

func TestBreakerUnknownDependencyIsClosed(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := newTestBreaker(&now)

	if b.IsOpen("user_service") {
		t.Fatal("IsOpen() = true for unknown dependency, want false")
	}

	b.RecordSuccess("user_service")
	if _, ok := b.Snapshot("user_service"); ok {
		t.Fatal("RecordSuccess() should not create a record")
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := newTestBreaker(&now)

	for i := 0; i < 4; i++ {
		b.RecordFailure("user_service")
		if b.IsOpen("user_service") {
			t.Fatalf("IsOpen() = true after %d failures, want false", i+1)
		}
	}

	b.RecordFailure("user_service")
	if !b.IsOpen("user_service") {
		t.Fatal("IsOpen() = false after 5 failures, want true")
	}

	snap, ok := b.Snapshot("user_service")
	if !ok {
		t.Fatal("Snapshot() missing record")
	}
	if snap.State != StateOpen || snap.FailureCount != 5 {
		t.Fatalf("snapshot = %+v, want open with 5 failures", snap)
	}
}

func TestBreakerSuccessResetsAndCloses(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := newTestBreaker(&now)

	for i := 0; i < 5; i++ {
		b.RecordFailure("template_service")
	}
	b.RecordSuccess("template_service")

	if b.IsOpen("template_service") {
		t.Fatal("IsOpen() = true after success, want false")
	}
	snap, _ := b.Snapshot("template_service")
	if snap.State != StateClosed || snap.FailureCount != 0 {
		t.Fatalf("snapshot = %+v, want closed with 0 failures", snap)
	}
}

func TestBreakerCooldownMovesToHalfOpen(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := newTestBreaker(&now)

	for i := 0; i < 5; i++ {
		b.RecordFailure("user_service")
	}

	now = now.Add(DefaultCooldown)
	if !b.IsOpen("user_service") {
		t.Fatal("IsOpen() = false at exactly the cooldown, want true")
	}

	now = now.Add(time.Millisecond)
	if b.IsOpen("user_service") {
		t.Fatal("IsOpen() = true after cooldown, want false (half-open trial)")
	}

	snap, _ := b.Snapshot("user_service")
	if snap.State != StateHalfOpen || snap.FailureCount != 0 {
		t.Fatalf("snapshot = %+v, want half_open with 0 failures", snap)
	}

	// Half-open admits every call until an outcome is recorded.
	if b.IsOpen("user_service") {
		t.Fatal("IsOpen() = true in half-open, want false")
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := newTestBreaker(&now)

	for i := 0; i < 5; i++ {
		b.RecordFailure("auth_service")
	}
	now = now.Add(DefaultCooldown + time.Second)
	if b.IsOpen("auth_service") {
		t.Fatal("expected half-open trial to be admitted")
	}

	b.RecordFailure("auth_service")
	if !b.IsOpen("auth_service") {
		t.Fatal("IsOpen() = false after half-open failure, want true")
	}
	snap, _ := b.Snapshot("auth_service")
	if snap.FailureCount != 1 {
		t.Fatalf("FailureCount = %d, want 1", snap.FailureCount)
	}
}

func TestBreakerDependenciesAreIndependent(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := newTestBreaker(&now)

	for i := 0; i < 5; i++ {
		b.RecordFailure("user_service")
	}

	if b.IsOpen("template_service") {
		t.Fatal("template_service should not be affected by user_service failures")
	}

	snaps := b.Snapshots()
	if len(snaps) != 1 || snaps[0].Dependency != "user_service" {
		t.Fatalf("Snapshots() = %+v, want only user_service", snaps)
	}
}

func TestBreakerNotifiesListeners(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	b := newTestBreaker(&now)

	var mu sync.Mutex
	var got []string
	b.RegisterStateChangeListener(func(dependency string, from State, to State) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(from)+"->"+string(to))
	})

	for i := 0; i < 5; i++ {
		b.RecordFailure("user_service")
	}
	now = now.Add(2 * DefaultCooldown)
	_ = b.IsOpen("user_service")
	b.RecordSuccess("user_service")

	want := []string{"closed->open", "open->half_open", "half_open->closed"}
	mu.Lock()
	defer mu.Unlock()
	if len(got) != len(want) {
		t.Fatalf("transitions = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("transition[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestLogStateChanges(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.InfoLevel)
	listener := LogStateChanges(zap.New(core))

	listener("user_service", StateClosed, StateOpen)
	listener("user_service", StateOpen, StateHalfOpen)

	entries := logs.AllUntimed()
	if len(entries) != 2 {
		t.Fatalf("log entries = %d, want 2", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel || entries[0].Message != "circuit opened" {
		t.Fatalf("first entry = %s %q, want warn circuit opened", entries[0].Level, entries[0].Message)
	}
	if entries[1].ContextMap()["to"] != "half_open" {
		t.Fatalf("to = %v, want half_open", entries[1].ContextMap()["to"])
	}
}

func TestBreakerConcurrentUse(t *testing.T) {
	t.Parallel()

	b := New(Config{FailureThreshold: 1000, Cooldown: time.Minute})

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.RecordFailure("user_service")
				_ = b.IsOpen("user_service")
			}
		}()
	}
	wg.Wait()

	snap, _ := b.Snapshot("user_service")
	if snap.FailureCount != 500 {
		t.Fatalf("FailureCount = %d, want 500", snap.FailureCount)
	}
}
