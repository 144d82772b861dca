package transport

import "time"

// Backoff is the reconnection schedule: Initial, then multiplied by
// Multiplier per attempt, never above Max. MaxAttempts of 0 retries forever.
type Backoff struct {
	Initial     time.Duration
	Max         time.Duration
	Multiplier  float64
	MaxAttempts int
}

func DefaultBackoff() Backoff {
	return Backoff{
		Initial:    500 * time.Millisecond,
		Max:        15 * time.Second,
		Multiplier: 2,
	}
}

// Delay returns the wait before attempt n (starting at 0).
func (b Backoff) Delay(n int) time.Duration {
	d := b.Initial
	if d <= 0 {
		d = 500 * time.Millisecond
	}
	mult := b.Multiplier
	if mult < 1 {
		mult = 1
	}
	for i := 0; i < n; i++ {
		next := time.Duration(float64(d) * mult)
		if b.Max > 0 && next >= b.Max {
			return b.Max
		}
		d = next
	}
	if b.Max > 0 && d > b.Max {
		return b.Max
	}
	return d
}

// Exhausted reports whether attempt n is beyond the limit.
func (b Backoff) Exhausted(n int) bool {
	return b.MaxAttempts > 0 && n >= b.MaxAttempts
}
