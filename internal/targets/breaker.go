package targets

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

type BreakerConfig struct {
	Name             string
	MaxRequests      uint32
	Interval         time.Duration
	Timeout          time.Duration
	FailureThreshold uint32
}

func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Name:             "view-counter",
		MaxRequests:      1,
		Interval:         time.Minute,
		Timeout:          30 * time.Second,
		FailureThreshold: 5,
	}
}

// BreakerCounter stops calling a failing backend until it recovers. A
// missing target is an answer, not a failure, and never trips it.
type BreakerCounter struct {
	next Counter
	cb   *gobreaker.CircuitBreaker[interface{}]
}

func NewBreakerCounter(next Counter, cfg BreakerConfig, logger *slog.Logger) *BreakerCounter {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrTargetNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("View counter circuit breaker changed state",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}

	return &BreakerCounter{
		next: next,
		cb:   gobreaker.NewCircuitBreaker[interface{}](settings),
	}
}

func (b *BreakerCounter) Backend() string { return b.next.Backend() }

// State reports the breaker state for health output.
func (b *BreakerCounter) State() string {
	return b.cb.State().String()
}

func (b *BreakerCounter) IncrementViews(ctx context.Context, targetID string, n int64) error {
	_, err := b.cb.Execute(func() (interface{}, error) {
		return nil, b.next.IncrementViews(ctx, targetID, n)
	})
	return err
}

func (b *BreakerCounter) ViewCount(ctx context.Context, targetID string) (int64, error) {
	count, err := b.cb.Execute(func() (interface{}, error) {
		return b.next.ViewCount(ctx, targetID)
	})
	if err != nil {
		return 0, err
	}
	return count.(int64), nil
}
