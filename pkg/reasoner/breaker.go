package reasoner

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"
)

// BreakerConfig tunes the circuit breaker in front of the collaborator.
type BreakerConfig struct {
	// MaxRequests allowed through while half-open.
	MaxRequests uint32 `mapstructure:"max_requests"`
	// Interval resets the failure counts while closed.
	Interval time.Duration `mapstructure:"interval"`
	// Timeout is how long the breaker stays open before probing.
	Timeout time.Duration `mapstructure:"timeout"`
	// TripRatio is the failure ratio that opens the breaker.
	TripRatio float64 `mapstructure:"trip_ratio"`
}

func (c BreakerConfig) withDefaults() BreakerConfig {
	if c.MaxRequests == 0 {
		c.MaxRequests = 1
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.TripRatio <= 0 {
		c.TripRatio = 0.6
	}
	return c
}

// CircuitBreakerClient stops calling a collaborator that keeps failing,
// letting callers degrade fast instead of waiting out timeouts.
type CircuitBreakerClient struct {
	client Client
	cb     *gobreaker.CircuitBreaker
}

// NewCircuitBreakerClient wraps client with a circuit breaker named for
// logging.
func NewCircuitBreakerClient(client Client, cfg BreakerConfig, name string, logger *slog.Logger) *CircuitBreakerClient {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	cfg = cfg.withDefaults()
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && ratio >= cfg.TripRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				slog.String("breaker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	}
	return &CircuitBreakerClient{client: client, cb: gobreaker.NewCircuitBreaker(settings)}
}

// Run implements Client.
func (c *CircuitBreakerClient) Run(ctx context.Context, task Task) (Result, error) {
	result, err := c.cb.Execute(func() (any, error) {
		return c.client.Run(ctx, task)
	})
	if err != nil {
		return nil, err
	}
	return result.(Result), nil
}

// Close implements Client.
func (c *CircuitBreakerClient) Close() error { return c.client.Close() }
