package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

type BreakerConfig struct {
	ConsecutiveFailures uint32
	Timeout             time.Duration
	MaxRequests         uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		ConsecutiveFailures: 5,
		Timeout:             30 * time.Second,
		MaxRequests:         1,
	}
}

// Breaking guards a relay endpoint. While open, sends fail fast with
// gobreaker.ErrOpenState, which the worker treats as transient.
type Breaking struct {
	next    Transport
	breaker *gobreaker.CircuitBreaker
}

func NewBreaking(name string, next Transport, cfg BreakerConfig, logger *zap.Logger) *Breaking {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ConsecutiveFailures == 0 {
		cfg = DefaultBreakerConfig()
	}

	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.ConsecutiveFailures
		},
		// Permanent target errors say nothing about relay health.
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("relay breaker state changed",
				zap.String("relay", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()),
			)
		},
	}

	return &Breaking{next: next, breaker: gobreaker.NewCircuitBreaker(settings)}
}

func (b *Breaking) Send(ctx context.Context, delivery Delivery) (*Response, error) {
	result, err := b.breaker.Execute(func() (interface{}, error) {
		return b.next.Send(ctx, delivery)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return nil, &ProviderError{
				Message:   fmt.Sprintf("relay %s unavailable", b.breaker.Name()),
				Transient: true,
				Cause:     err,
			}
		}
		return nil, err
	}

	resp, _ := result.(*Response)
	return resp, nil
}

func (b *Breaking) State() string {
	return b.breaker.State().String()
}
