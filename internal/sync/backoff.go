package sync

import (
	"math"
	"math/rand"
	"time"

	"github.com/edgetill/possync/internal/store"
)

// Decision is the outcome of the backoff policy for one failed attempt.
type Decision struct {
	// Permanent means no retry: the item dead-letters immediately.
	Permanent bool
	// Delay until the next attempt. Meaningless when Permanent.
	Delay time.Duration
}

// BackoffPolicy maps (attempt, error category) to a retry decision. Pure:
// no I/O, no clock. Exponential growth with a cap and bounded jitter so a
// flapping connection does not wake every queued item at the same instant.
type BackoffPolicy struct {
	BaseDelay time.Duration
	MaxDelay  time.Duration
	// JitterFrac is the ± fraction applied to the computed delay. Kept
	// below 0.5x the growth factor so delays stay strictly increasing
	// until the cap.
	JitterFrac float64

	rand *rand.Rand
}

// DefaultBackoffPolicy returns the production policy: 5s base, 10m cap,
// 20% jitter.
func DefaultBackoffPolicy() *BackoffPolicy {
	return &BackoffPolicy{
		BaseDelay:  5 * time.Second,
		MaxDelay:   10 * time.Minute,
		JitterFrac: 0.2,
		rand:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// NextRetry returns the decision for the given 1-based attempt count and
// error category. Validation/auth/not-found failures never retry; transient
// categories back off exponentially.
func (p *BackoffPolicy) NextRetry(attempt int, category string) Decision {
	if category == store.CategoryPermanent {
		return Decision{Permanent: true}
	}
	if attempt < 1 {
		attempt = 1
	}

	delay := time.Duration(float64(p.BaseDelay) * math.Pow(2, float64(attempt-1)))
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}

	if p.JitterFrac > 0 && p.rand != nil {
		// Uniform in [-JitterFrac, +JitterFrac].
		frac := (p.rand.Float64()*2 - 1) * p.JitterFrac
		delay += time.Duration(float64(delay) * frac)
	}
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < p.BaseDelay/2 {
		delay = p.BaseDelay / 2
	}
	return Decision{Delay: delay}
}
