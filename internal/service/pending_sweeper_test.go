package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"go.uber.org/zap"
)

func TestPendingSweeperSweep(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := newMemLogRepo()
	store.put(domain.DeliveryLogEntry{
		RequestID: "stale",
		Channel:   domain.ChannelEmail,
		UserID:    "user-1",
		Status:    domain.StatusPending,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	})
	store.put(domain.DeliveryLogEntry{
		RequestID: "fresh",
		Channel:   domain.ChannelEmail,
		UserID:    "user-1",
		Status:    domain.StatusPending,
		CreatedAt: now.Add(-time.Minute),
		UpdatedAt: now.Add(-time.Minute),
	})
	store.put(domain.DeliveryLogEntry{
		RequestID: "done",
		Channel:   domain.ChannelEmail,
		UserID:    "user-1",
		Status:    domain.StatusSent,
		CreatedAt: now.Add(-time.Hour),
		UpdatedAt: now.Add(-time.Hour),
	})

	sink := &recordingSink{}
	sweeper, err := NewPendingSweeper(domain.ChannelEmail, store, sink, time.Minute, 15*time.Minute, zap.NewNop())
	if err != nil {
		t.Fatalf("NewPendingSweeper() error = %v", err)
	}
	sweeper.now = func() time.Time { return now }

	swept, err := sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("Sweep() error = %v", err)
	}
	if swept != 1 {
		t.Fatalf("swept = %d, want 1", swept)
	}

	stale, _ := store.Get(context.Background(), "stale")
	if stale.Status != domain.StatusFailed {
		t.Fatalf("stale status = %s, want failed", stale.Status)
	}
	if stale.ErrorMessage == nil || !strings.Contains(*stale.ErrorMessage, "abandoned") {
		t.Fatalf("stale error = %v", stale.ErrorMessage)
	}
	fresh, _ := store.Get(context.Background(), "fresh")
	if fresh.Status != domain.StatusPending {
		t.Fatalf("fresh status = %s, want pending", fresh.Status)
	}

	letters := sink.all()
	if len(letters) != 1 || letters[0].notification.RequestID != "stale" {
		t.Fatalf("dead letters = %+v", letters)
	}
	if !errors.Is(letters[0].cause, errDeliveryAbandoned) {
		t.Fatalf("cause = %v", letters[0].cause)
	}

	swept, err = sweeper.Sweep(context.Background())
	if err != nil {
		t.Fatalf("second Sweep() error = %v", err)
	}
	if swept != 0 {
		t.Fatalf("second sweep = %d, want 0", swept)
	}
}

func TestPendingSweeperStartStopsOnCancel(t *testing.T) {
	t.Parallel()

	sweeper, err := NewPendingSweeper(domain.ChannelPush, newMemLogRepo(), nil, 10*time.Millisecond, time.Minute, nil)
	if err != nil {
		t.Fatalf("NewPendingSweeper() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if err := sweeper.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestNewPendingSweeperRequiresRepository(t *testing.T) {
	t.Parallel()

	if _, err := NewPendingSweeper(domain.ChannelEmail, nil, nil, 0, 0, nil); err == nil {
		t.Fatal("expected error without repository")
	}
}
