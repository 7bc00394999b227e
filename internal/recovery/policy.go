package recovery

import (
	"context"
	"time"
)

// Policy bounds how long recovery looks for the order the gateway redirect
// should have produced.
type Policy struct {
	Base        time.Duration
	MaxAttempts int
	// Freshness is how recent the latest order must be to count as the one
	// being recovered.
	Freshness time.Duration
}

func DefaultPolicy() Policy {
	return Policy{Base: time.Second, MaxAttempts: 5, Freshness: 5 * time.Minute}
}

// Delay is the pause after attempt (zero based): Base × 2^attempt.
func (p Policy) Delay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt > 30 {
		attempt = 30
	}
	return p.Base << uint(attempt)
}

// TotalWait is the longest a full recovery sleeps.
func (p Policy) TotalWait() time.Duration {
	var total time.Duration
	for i := 0; i < p.MaxAttempts-1; i++ {
		total += p.Delay(i)
	}
	return total
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.Base <= 0 {
		p.Base = d.Base
	}
	if p.MaxAttempts <= 0 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.Freshness <= 0 {
		p.Freshness = d.Freshness
	}
	return p
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
