package llm

import (
	"context"
	"errors"
	"time"

	"github.com/sony/gobreaker"
)

var _ Client = (*Breaker)(nil)

// BreakerSettings configures when a Breaker opens.
type BreakerSettings struct {
	Name string
	// ConsecutiveFailures opens the breaker, default 5.
	ConsecutiveFailures uint32
	// OpenTimeout is how long the breaker stays open, default 30s.
	OpenTimeout time.Duration
}

// Breaker fails fast while the wrapped client keeps failing. It never
// retries. Cancelled or expired contexts do not count as failures.
type Breaker struct {
	client Client
	cb     *gobreaker.CircuitBreaker
}

func NewBreaker(client Client, settings BreakerSettings) *Breaker {
	if settings.ConsecutiveFailures == 0 {
		settings.ConsecutiveFailures = 5
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = 30 * time.Second
	}

	failures := settings.ConsecutiveFailures
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        settings.Name,
		MaxRequests: 1,
		Timeout:     settings.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
		},
	})

	return &Breaker{client: client, cb: cb}
}

func (b *Breaker) Model() string {
	return b.client.Model()
}

func (b *Breaker) Complete(ctx context.Context, req Request) (*Response, error) {
	result, err := b.cb.Execute(func() (interface{}, error) {
		return b.client.Complete(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*Response), nil
}

// State reports the breaker state, e.g. "closed" or "open".
func (b *Breaker) State() string {
	return b.cb.State().String()
}
