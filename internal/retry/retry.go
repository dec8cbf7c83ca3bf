package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"
)

// Policy is the single reusable retry abstraction applied to every outbound
// LLM and retrieval call. Only errors the predicate classifies as transient
// are retried; everything else fails on the first attempt.
type Policy struct {
	MaxAttempts    int
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Multiplier     float64
	JitterFraction float64
	IsTransient    func(error) bool
	Logger         *zap.Logger
}

// Result reports how an operation concluded. Succeeded is an explicit flag:
// a false value is never replaced with fabricated output.
type Result struct {
	Succeeded bool
	Attempts  int
	// Recovered is true when the operation failed at least once before
	// succeeding.
	Recovered bool
}

func DefaultPolicy(logger *zap.Logger) Policy {
	if logger == nil {
		logger = zap.NewNop()
	}
	return Policy{
		MaxAttempts:    3,
		BaseDelay:      time.Second,
		MaxDelay:       30 * time.Second,
		Multiplier:     2.0,
		JitterFraction: 0.1,
		Logger:         logger,
	}
}

// Do runs fn up to MaxAttempts times with exponential backoff between
// transient failures. The returned Result always reflects what actually
// happened; the last error is returned on exhaustion.
func (p Policy) Do(ctx context.Context, operation string, fn func() error) (Result, error) {
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = 3
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = time.Second
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 30 * time.Second
	}
	if p.Multiplier <= 0 {
		p.Multiplier = 2.0
	}
	if p.Logger == nil {
		p.Logger = zap.NewNop()
	}

	var lastErr error
	delay := p.BaseDelay

	for attempt := 1; attempt <= p.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{Succeeded: false, Attempts: attempt - 1}, err
		}

		err := fn()
		if err == nil {
			if attempt > 1 {
				p.Logger.Info("operation succeeded after retry",
					zap.String("operation", operation),
					zap.Int("attempt", attempt),
				)
			}
			return Result{Succeeded: true, Attempts: attempt, Recovered: attempt > 1}, nil
		}
		lastErr = err

		if p.IsTransient != nil && !p.IsTransient(err) {
			p.Logger.Debug("error not transient, failing immediately",
				zap.String("operation", operation),
				zap.Error(err),
			)
			return Result{Succeeded: false, Attempts: attempt}, err
		}

		if attempt == p.MaxAttempts {
			break
		}

		p.Logger.Warn("transient failure, retrying",
			zap.String("operation", operation),
			zap.Error(err),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", delay),
		)

		select {
		case <-ctx.Done():
			return Result{Succeeded: false, Attempts: attempt}, ctx.Err()
		case <-time.After(addJitter(delay, p.JitterFraction)):
		}

		delay = time.Duration(math.Min(float64(p.MaxDelay), float64(delay)*p.Multiplier))
	}

	p.Logger.Warn("retries exhausted",
		zap.String("operation", operation),
		zap.Int("attempts", p.MaxAttempts),
		zap.Error(lastErr),
	)
	return Result{Succeeded: false, Attempts: p.MaxAttempts}, lastErr
}

// DoWithResult is Do for operations that return a value.
func DoWithResult[T any](ctx context.Context, p Policy, operation string, fn func() (T, error)) (T, Result, error) {
	var value T
	res, err := p.Do(ctx, operation, func() error {
		var err error
		value, err = fn()
		return err
	})
	return value, res, err
}

func addJitter(d time.Duration, fraction float64) time.Duration {
	if fraction <= 0 {
		return d
	}
	jitter := time.Duration(rand.Float64() * float64(d) * fraction)
	if rand.Intn(2) == 0 {
		return d - jitter
	}
	return d + jitter
}
