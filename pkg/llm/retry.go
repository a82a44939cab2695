package llm

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// RetryPolicy retries transient generation failures with exponential backoff
// and jitter. Fatal failures return immediately.
type RetryPolicy struct {
	MaxRetries int           // Retries after the first attempt (default: 3)
	BaseDelay  time.Duration // Delay before the first retry (default: 1s)
	Factor     float64       // Backoff multiplier (default: 2)
	JitterMin  float64       // Lower jitter bound as a fraction of the delay (default: 0.5)
	JitterMax  float64       // Upper jitter bound as a fraction of the delay (default: 1.5)
	Timeout    time.Duration // Per-attempt timeout; 0 means none

	// OnRetry, when set, is called before each backoff sleep.
	OnRetry func(attempt int, err error, delay time.Duration)

	// sleep is replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy returns the policy used when none is configured.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		Factor:     2.0,
		JitterMin:  0.5,
		JitterMax:  1.5,
		Timeout:    30 * time.Second,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 1 * time.Second
	}
	if p.Factor < 1 {
		p.Factor = 2.0
	}
	if p.JitterMin <= 0 || p.JitterMax < p.JitterMin {
		p.JitterMin, p.JitterMax = 0.5, 1.5
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// Backoff returns the jittered delay before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	p = p.withDefaults()
	delay := float64(p.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= p.Factor
	}
	jitter := p.JitterMin + rand.Float64()*(p.JitterMax-p.JitterMin)
	return time.Duration(delay * jitter)
}

// Generate calls g until it succeeds, fails fatally, or retries run out.
// The returned error is the last attempt's error; IsTransient on it tells
// exhaustion apart from a fatal failure.
func (p RetryPolicy) Generate(ctx context.Context, g Generator, req Request) (string, error) {
	p = p.withDefaults()

	var lastErr error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := p.Backoff(attempt)
			if p.OnRetry != nil {
				p.OnRetry(attempt, lastErr, delay)
			}
			if err := p.sleep(ctx, delay); err != nil {
				return "", lastErr
			}
		}

		text, err := p.attempt(ctx, g, req)
		if err == nil {
			return text, nil
		}
		lastErr = err

		if !IsTransient(err) || ctx.Err() != nil {
			return "", err
		}
	}

	return "", fmt.Errorf("failed after %d retries: %w", p.MaxRetries, lastErr)
}

func (p RetryPolicy) attempt(ctx context.Context, g Generator, req Request) (string, error) {
	if p.Timeout <= 0 {
		return g.Generate(ctx, req)
	}
	attemptCtx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()
	return g.Generate(attemptCtx, req)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
