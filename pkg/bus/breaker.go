package bus

import (
	"errors"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

const DefaultMaxAuthViolations = 3

var ErrAuthorizationFailFast = errors.New("bus: too many authorization violations")

// IsAuthViolation reports whether err denotes an authorization failure.
func IsAuthViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, nats.ErrAuthorization) ||
		errors.Is(err, nats.ErrAuthExpired) ||
		errors.Is(err, nats.ErrAuthRevoked) {
		return true
	}
	return strings.Contains(strings.ToLower(err.Error()), "authorization violation")
}

// AuthBreaker counts consecutive authorization violations.
type AuthBreaker struct {
	mu        sync.Mutex
	enabled   bool
	threshold int
	count     int
}

// NewAuthBreaker creates a breaker that trips once threshold violations are
// recorded. A disabled breaker counts but never trips.
func NewAuthBreaker(enabled bool, threshold int) *AuthBreaker {
	if threshold < 1 {
		threshold = DefaultMaxAuthViolations
	}
	return &AuthBreaker{enabled: enabled, threshold: threshold}
}

// Record inspects err and returns true if the breaker is tripped.
// Errors other than authorization violations are ignored.
func (b *AuthBreaker) Record(err error) bool {
	if !IsAuthViolation(err) {
		return false
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count++
	return b.enabled && b.count >= b.threshold
}

func (b *AuthBreaker) Tripped() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.enabled && b.count >= b.threshold
}

func (b *AuthBreaker) Count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

func (b *AuthBreaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.count = 0
}
