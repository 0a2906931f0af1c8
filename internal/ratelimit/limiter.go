package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"github.com/kursadbilgin/notification-platform/internal/domain"
	"golang.org/x/time/rate"
)

// RateLimiter paces outbound sends per delivery channel.
type RateLimiter interface {
	Allow(ctx context.Context, channel domain.Channel) (bool, error)
	Wait(ctx context.Context, channel domain.Channel) error
}

// Local is an in-process token bucket per channel. Workers fall back to it
// when no redis is configured.
type Local struct {
	limit rate.Limit
	burst int

	mu       sync.Mutex
	limiters map[domain.Channel]*rate.Limiter
}

var _ RateLimiter = (*Local)(nil)

func NewLocal(limitPerSec int) *Local {
	if limitPerSec <= 0 {
		limitPerSec = 100
	}
	return &Local{
		limit:    rate.Limit(limitPerSec),
		burst:    limitPerSec,
		limiters: make(map[domain.Channel]*rate.Limiter),
	}
}

func (l *Local) limiter(channel domain.Channel) (*rate.Limiter, error) {
	if !channel.IsValid() {
		return nil, fmt.Errorf("%w: invalid channel %q", domain.ErrValidation, channel)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[channel]
	if !ok {
		lim = rate.NewLimiter(l.limit, l.burst)
		l.limiters[channel] = lim
	}
	return lim, nil
}

func (l *Local) Allow(_ context.Context, channel domain.Channel) (bool, error) {
	lim, err := l.limiter(channel)
	if err != nil {
		return false, err
	}
	return lim.Allow(), nil
}

func (l *Local) Wait(ctx context.Context, channel domain.Channel) error {
	lim, err := l.limiter(channel)
	if err != nil {
		return err
	}
	return lim.Wait(ctx)
}

// Unlimited never throttles.
type Unlimited struct{}

func (Unlimited) Allow(context.Context, domain.Channel) (bool, error) { return true, nil }
func (Unlimited) Wait(context.Context, domain.Channel) error          { return nil }
