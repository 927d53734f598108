package usecase

import (
	"math"
	"math/rand"
	"time"
)

// maxShift bounds the exponent so the multiplication cannot overflow.
const maxShift = 32

// exponentialDelay calculates base * 2^attempt with overflow protection,
// capped at maxDelay. Negative attempts are treated as 0.
func exponentialDelay(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	if base <= 0 {
		return 0
	}

	if attempt < 0 {
		attempt = 0
	} else if attempt > maxShift {
		attempt = maxShift
	}

	multiplier := int64(1) << attempt

	baseInt := int64(base)
	if baseInt > math.MaxInt64/multiplier {
		return maxDelay
	}

	delay := time.Duration(baseInt * multiplier)
	if maxDelay > 0 && delay > maxDelay {
		return maxDelay
	}

	return delay
}

// retryDelay computes the jittered delay before the next delivery attempt.
// Full jitter over the exponential window keeps simultaneous failures (e.g.,
// a broker outage across many records) from retrying in lockstep. The result
// is always at least one second so a retry never becomes immediately due
// within the same poll cycle.
func retryDelay(base time.Duration, attempt int, maxDelay time.Duration) time.Duration {
	delay := exponentialDelay(base, attempt, maxDelay)
	if delay <= time.Second {
		return time.Second
	}

	jittered := time.Duration(rand.Int63n(int64(delay))) // #nosec G404 -- jitter, not security
	if jittered < time.Second {
		return time.Second
	}

	return jittered
}
