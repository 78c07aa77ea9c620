package core

import (
	"context"
	"time"

	"github.com/benbjohnson/clock"
)

// BackoffPolicy is an exponential backoff schedule shared by adapters and
// the Bitcoin RPC adapter: base delay, doubling factor, a cap, and a maximum
// attempt count (§4.1: base 500ms, factor 2, cap 30s, 5 attempts).
type BackoffPolicy struct {
	Base       time.Duration
	Factor     float64
	Cap        time.Duration
	MaxAttempt int
	Clock      clock.Clock
}

// DefaultBackoff returns the adapter-wide retry policy named in the spec.
func DefaultBackoff() BackoffPolicy {
	return BackoffPolicy{
		Base:       500 * time.Millisecond,
		Factor:     2,
		Cap:        30 * time.Second,
		MaxAttempt: 5,
		Clock:      clock.New(),
	}
}

// Delay returns the backoff delay before attempt n (1-indexed).
func (p BackoffPolicy) Delay(attempt int) time.Duration {
	if attempt <= 1 {
		return p.Base
	}
	d := float64(p.Base)
	for i := 1; i < attempt; i++ {
		d *= p.Factor
		if time.Duration(d) >= p.Cap {
			return p.Cap
		}
	}
	return time.Duration(d)
}

// Retry invokes fn up to p.MaxAttempt times, sleeping the backoff delay
// between attempts, stopping early on ctx cancellation or on success.
func (p BackoffPolicy) Retry(ctx context.Context, fn func(attempt int) error) error {
	if p.Clock == nil {
		p.Clock = clock.New()
	}
	var lastErr error
	for attempt := 1; attempt <= p.MaxAttempt; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = fn(attempt)
		if lastErr == nil {
			return nil
		}
		if attempt == p.MaxAttempt {
			break
		}
		timer := p.Clock.Timer(p.Delay(attempt + 1))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return lastErr
}
