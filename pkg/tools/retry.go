package tools

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"time"

	"github.com/arcflow-run/toolrun/internal/timeconfig"
)

// RetryPolicy wraps a single attempt function with retry semantics. attempt
// is called at least once; it should return the ToolResult and an error
// that satisfies errors.As for *ToolError so ShouldRetry can inspect the
// error code and the Retryable flag.
type RetryPolicy interface {
	Execute(ctx context.Context, attempt func() (*ToolResult, error)) (*ToolResult, int, error)
}

// NoRetryPolicy runs the attempt exactly once.
type NoRetryPolicy struct{}

func (NoRetryPolicy) Execute(_ context.Context, attempt func() (*ToolResult, error)) (*ToolResult, int, error) {
	result, err := attempt()
	return result, 1, err
}

// FixedRetryPolicy retries up to MaxAttempts times with a constant delay
// between attempts.
type FixedRetryPolicy struct {
	MaxAttempts int
	Delay       time.Duration
}

func (p FixedRetryPolicy) Execute(ctx context.Context, attempt func() (*ToolResult, error)) (*ToolResult, int, error) {
	return runWithRetry(ctx, p.MaxAttempts, func(int) time.Duration { return p.Delay }, attempt)
}

// ExponentialRetryPolicy retries with delay = min(BaseDelay *
// Multiplier^attempt, MaxDelay), jittered by +/- JitterFrac of the
// computed delay.
type ExponentialRetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
	JitterFrac  float64
}

func (p ExponentialRetryPolicy) Execute(ctx context.Context, attempt func() (*ToolResult, error)) (*ToolResult, int, error) {
	return runWithRetry(ctx, p.MaxAttempts, func(attemptIndex int) time.Duration {
		mult := p.Multiplier
		if mult <= 0 {
			mult = 2
		}
		delay := float64(p.BaseDelay) * math.Pow(mult, float64(attemptIndex))
		if p.MaxDelay > 0 && delay > float64(p.MaxDelay) {
			delay = float64(p.MaxDelay)
		}
		if p.JitterFrac > 0 {
			jitter := delay * p.JitterFrac
			delay = delay - jitter + rand.Float64()*2*jitter
		}
		if delay < 0 {
			delay = 0
		}
		return time.Duration(delay)
	}, attempt)
}

func runWithRetry(ctx context.Context, maxAttempts int, delayFor func(attemptIndex int) time.Duration, attempt func() (*ToolResult, error)) (*ToolResult, int, error) {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for i := 0; i < maxAttempts; i++ {
		result, err := attempt()
		if err == nil {
			return result, i + 1, nil
		}
		lastErr = err
		isLast := i == maxAttempts-1
		if isLast || !shouldRetry(err, i) {
			return nil, i + 1, err
		}
		select {
		case <-ctx.Done():
			return nil, i + 1, ctx.Err()
		case <-time.After(delayFor(i)):
		}
	}
	return nil, maxAttempts, lastErr
}

func shouldRetry(err error, _ int) bool {
	var te *ToolError
	if errors.As(err, &te) {
		return te.Retryable
	}
	// Plain errors are retried only for the transient categories:
	// deadline expiry and network/connection failures.
	var netErr net.Error
	return errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr)
}

func RetryPolicyFor(cfg RetryConfig) RetryPolicy {
	switch cfg.Strategy {
	case RetryFixed:
		return FixedRetryPolicy{MaxAttempts: maxAttemptsOrDefault(cfg.MaxAttempts), Delay: baseDelayOrDefault(cfg.BaseDelay)}
	case RetryExponential:
		return ExponentialRetryPolicy{
			MaxAttempts: maxAttemptsOrDefault(cfg.MaxAttempts),
			BaseDelay:   baseDelayOrDefault(cfg.BaseDelay),
			MaxDelay:    cfg.MaxDelay,
			Multiplier:  cfg.Multiplier,
			JitterFrac:  cfg.JitterFrac,
		}
	default:
		return NoRetryPolicy{}
	}
}

func baseDelayOrDefault(d time.Duration) time.Duration {
	if d <= 0 {
		return timeconfig.RetryBaseDelay()
	}
	return d
}

func maxAttemptsOrDefault(n int) int {
	if n < 1 {
		return 1
	}
	return n
}
