package sessionapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/ratelimit"
	"github.com/felixgeelhaar/fortify/retry"
)

// outcome carries a call's result through the breaker. Only transport
// failures travel as the error; server answers (including refusals) are
// successes as far as the breaker is concerned.
type outcome struct {
	value interface{}
	err   error
}

// ResilientConfig holds configuration for the resilient client wrapper.
type ResilientConfig struct {
	// MaxConcurrent caps in-flight calls (default: 4)
	MaxConcurrent int

	// RatePerSecond limits outgoing calls (default: 5)
	RatePerSecond int

	// LimitsAttempts is the retry budget for quota lookups (default: 3)
	LimitsAttempts int

	Logger *slog.Logger
}

// DefaultResilientConfig returns the defaults used by the CLI.
func DefaultResilientConfig() ResilientConfig {
	return ResilientConfig{
		MaxConcurrent:  4,
		RatePerSecond:  5,
		LimitsAttempts: 3,
	}
}

// Resilient wraps a Client with a circuit breaker, rate limit and
// concurrency cap. Quota lookups are also retried; session calls are not,
// since a repeated Reply would be answered twice.
type Resilient struct {
	client         Client
	circuitBreaker circuitbreaker.CircuitBreaker[outcome]
	retrier        retry.Retry[outcome]
	bulkhead       bulkhead.Bulkhead[outcome]
	rateLimit      ratelimit.RateLimiter
	logger         *slog.Logger
}

// NewResilient wraps client.
func NewResilient(client Client, cfg ResilientConfig) *Resilient {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 4
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 5
	}
	if cfg.LimitsAttempts <= 0 {
		cfg.LimitsAttempts = 3
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := &Resilient{client: client, logger: logger}

	r.circuitBreaker = circuitbreaker.New[outcome](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     15 * time.Second,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("session api circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	})

	r.retrier = retry.New[outcome](retry.Config{
		MaxAttempts:   cfg.LimitsAttempts,
		InitialDelay:  500 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   IsTransient,
	})

	r.bulkhead = bulkhead.New[outcome](bulkhead.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		MaxQueue:      cfg.MaxConcurrent * 2,
		QueueTimeout:  30 * time.Second,
	})

	r.rateLimit = ratelimit.New(&ratelimit.Config{
		Rate:     cfg.RatePerSecond,
		Burst:    cfg.RatePerSecond * 2,
		Interval: time.Second,
	})

	return r
}

// Close releases the rate limiter.
func (r *Resilient) Close() error {
	return r.rateLimit.Close()
}

func (r *Resilient) Start(ctx context.Context, req StartRequest) (*StartResponse, error) {
	v, err := r.call(ctx, "start", false, func(ctx context.Context) (interface{}, error) {
		return r.client.Start(ctx, req)
	})
	if err != nil {
		return nil, err
	}
	return v.(*StartResponse), nil
}

func (r *Resilient) Reply(ctx context.Context, sessionID, text string) (*ReplyResponse, error) {
	v, err := r.call(ctx, "reply", false, func(ctx context.Context) (interface{}, error) {
		return r.client.Reply(ctx, sessionID, text)
	})
	if err != nil {
		return nil, err
	}
	return v.(*ReplyResponse), nil
}

func (r *Resilient) End(ctx context.Context, sessionID string) error {
	_, err := r.call(ctx, "end", false, func(ctx context.Context) (interface{}, error) {
		return nil, r.client.End(ctx, sessionID)
	})
	return err
}

func (r *Resilient) Limits(ctx context.Context) (*Limits, error) {
	v, err := r.call(ctx, "limits", true, func(ctx context.Context) (interface{}, error) {
		return r.client.Limits(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Limits), nil
}

func (r *Resilient) ResetQuota(ctx context.Context) (*Limits, error) {
	v, err := r.call(ctx, "reset_quota", false, func(ctx context.Context) (interface{}, error) {
		return r.client.ResetQuota(ctx)
	})
	if err != nil {
		return nil, err
	}
	return v.(*Limits), nil
}

func (r *Resilient) call(ctx context.Context, op string, retryable bool, fn func(context.Context) (interface{}, error)) (interface{}, error) {
	if !r.rateLimit.Allow(ctx, op) {
		return nil, fmt.Errorf("%w: too many requests", ErrUnavailable)
	}

	operation := func(ctx context.Context) (outcome, error) {
		return r.bulkhead.Execute(ctx, func(ctx context.Context) (outcome, error) {
			v, err := fn(ctx)
			if IsTransient(err) {
				return outcome{}, err
			}
			return outcome{value: v, err: err}, nil
		})
	}

	res, err := r.circuitBreaker.Execute(ctx, func(ctx context.Context) (outcome, error) {
		if retryable {
			return r.retrier.Do(ctx, operation)
		}
		return operation(ctx)
	})
	if err != nil {
		if errors.Is(err, ErrUnavailable) || ctx.Err() != nil {
			return nil, err
		}
		r.logger.Debug("session api call rejected", "op", op, "error", err)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res.value, res.err
}
