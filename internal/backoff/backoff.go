// Package backoff provides capped exponential backoff with jitter for the
// reconnect loops in the Home Assistant client and other transports.
package backoff

import (
	"context"
	"math"
	"math/rand"
	"time"
)

// Policy defines the parameters for exponential backoff calculation.
type Policy struct {
	// Initial is the delay before the first retry.
	Initial time.Duration
	// Max caps the computed delay.
	Max time.Duration
	// Factor is the exponential growth factor per attempt.
	Factor float64
	// Jitter is the randomization fraction (0.0 to 1.0) added to each delay.
	Jitter float64
}

// DefaultPolicy suits transport reconnects: 500ms initial, 30s cap,
// doubling, 20% jitter.
func DefaultPolicy() Policy {
	return Policy{
		Initial: 500 * time.Millisecond,
		Max:     30 * time.Second,
		Factor:  2,
		Jitter:  0.2,
	}
}

// Delay computes the backoff duration for an attempt. Attempts start at 1.
func (p Policy) Delay(attempt int) time.Duration {
	return p.delayWithRand(attempt, rand.Float64()) // #nosec G404 -- jitter does not need crypto randomness
}

func (p Policy) delayWithRand(attempt int, random float64) time.Duration {
	exp := math.Max(float64(attempt-1), 0)
	base := float64(p.Initial) * math.Pow(p.Factor, exp)
	jitter := base * p.Jitter * random
	total := math.Min(float64(p.Max), base+jitter)
	return time.Duration(total)
}

// Sleep blocks for the attempt's backoff delay, honoring cancellation.
// Returns ctx.Err() if the context ended before the delay elapsed.
func (p Policy) Sleep(ctx context.Context, attempt int) error {
	delay := p.Delay(attempt)
	if delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
