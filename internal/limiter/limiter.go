// Package limiter locks out repeated failed sign-ins for an email.
package limiter

import (
	"context"
	"crypto/sha256"
	"strings"
	"time"
)

// Defaults for the sign-in lockout.
const (
	DefaultWindow   = 15 * time.Minute
	DefaultMaxFails = 5
	DefaultBlockFor = 15 * time.Minute
)

// Limiter controls sign-in attempts and temporary lockouts.
type Limiter interface {
	// Allow reports whether a sign-in may be attempted and, if not, for how long it stays blocked.
	Allow(ctx context.Context, email string) (bool, time.Duration, error)
	// Success resets the counters of email.
	Success(ctx context.Context, email string) error
	// Failure records a failed attempt and reports whether email is now blocked.
	Failure(ctx context.Context, email string) (bool, time.Duration, error)
}

// HashEmail returns a stable digest of the normalized address so raw emails
// are never stored.
func HashEmail(email string) []byte {
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(email))))
	return h[:]
}
