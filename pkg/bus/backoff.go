package bus

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	DefaultBackoffMin = time.Second
	DefaultBackoffMax = 30 * time.Second
)

// ErrRetriesExhausted is returned by Supervisor.Run if the backoff policy
// gives up (backoff.Stop).
var ErrRetriesExhausted = errors.New("bus: reconnect attempts exhausted")

// NewBackoff returns a jitter-free policy doubling from minDelay up to
// maxDelay which never gives up.
func NewBackoff(minDelay, maxDelay time.Duration) *backoff.ExponentialBackOff {
	if minDelay <= 0 {
		minDelay = DefaultBackoffMin
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = minDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxInterval = maxDelay
	b.MaxElapsedTime = 0
	b.Reset()
	return b
}
