package feed

import (
	"math/rand"
	"time"
)

// BackoffConfig bounds a retry loop: exponential growth from Base to
// Cap with full jitter, at most MaxAttempts tries (0 = unbounded).
type BackoffConfig struct {
	Base        time.Duration
	Cap         time.Duration
	MaxAttempts int
}

func DefaultBackoff() BackoffConfig {
	return BackoffConfig{
		Base:        1 * time.Second,
		Cap:         30 * time.Second,
		MaxAttempts: 5,
	}
}

// delay returns the sleep before retry number attempt (0-based):
// a uniform draw from [0, min(Cap, Base*2^attempt)]. Full jitter keeps
// a fleet of sessions from reconnecting in lockstep.
func (b BackoffConfig) delay(attempt int) time.Duration {
	ceil := b.Cap
	if attempt < 30 { // avoid shift overflow
		if d := b.Base << uint(attempt); d < ceil {
			ceil = d
		}
	}
	if ceil <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(ceil) + 1))
}
