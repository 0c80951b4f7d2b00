package transfers

import (
	"context"
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/angelmondragon/escrowledger/pkg/config"
	"github.com/angelmondragon/escrowledger/pkg/metrics"
)

// ErrBreakerOpen is returned while the provider breaker rejects calls.
var ErrBreakerOpen = errors.New("transfer provider circuit open")

// BreakerCreator guards a Creator with a circuit breaker. Permanent failures
// are answers from a healthy provider and do not count towards tripping.
type BreakerCreator struct {
	next     Creator
	cb       *gobreaker.CircuitBreaker
	provider string
	metrics  *metrics.TransferMetrics
}

func NewBreakerCreator(next Creator, provider string, cfg config.TransfersConfig, m *metrics.TransferMetrics) (*BreakerCreator, error) {
	if next == nil {
		return nil, fmt.Errorf("transfer creator required")
	}
	maxFailures := cfg.BreakerMaxFailures
	if maxFailures == 0 {
		maxFailures = 5
	}
	settings := gobreaker.Settings{
		Name:     "transfers-" + provider,
		Interval: cfg.BreakerInterval,
		Timeout:  cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || IsPermanent(err)
		},
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			m.SetBreakerState(provider, stateValue(to))
		},
	}
	m.SetBreakerState(provider, stateValue(gobreaker.StateClosed))
	return &BreakerCreator{
		next:     next,
		cb:       gobreaker.NewCircuitBreaker(settings),
		provider: provider,
		metrics:  m,
	}, nil
}

func (b *BreakerCreator) CreateTransfer(ctx context.Context, req Request) (string, error) {
	out, err := b.cb.Execute(func() (any, error) {
		return b.next.CreateTransfer(ctx, req)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		b.metrics.IncCall(b.provider, "rejected")
		return "", fmt.Errorf("%w: %v", ErrBreakerOpen, err)
	case IsPermanent(err):
		b.metrics.IncCall(b.provider, "permanent_failure")
		return "", err
	case err != nil:
		b.metrics.IncCall(b.provider, "transient_failure")
		return "", err
	}
	b.metrics.IncCall(b.provider, "success")
	return out.(string), nil
}

// State exposes the breaker state for readiness reporting.
func (b *BreakerCreator) State() gobreaker.State {
	return b.cb.State()
}

func stateValue(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	}
	return 0
}
