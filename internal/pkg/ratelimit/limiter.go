package ratelimit

import (
	"context"
	"time"

	"github.com/okasha/maarif/internal/pkg/logger"
)

// Class describes one rate-limit bucket: a fixed window and the number
// of requests allowed inside it. Keys are namespaced by the class name
// so the same client IP counts separately per endpoint class.
type Class struct {
	Name   string
	Window time.Duration
	Limit  int64
}

var (
	ClassLogin             = Class{Name: "login", Window: 15 * time.Minute, Limit: 10}
	ClassRegistration      = Class{Name: "registration", Window: time.Hour, Limit: 5}
	ClassForgotPassword    = Class{Name: "forgot_password", Window: time.Hour, Limit: 3}
	ClassResetPassword     = Class{Name: "reset_password", Window: 15 * time.Minute, Limit: 5}
	ClassEmailConfirmation = Class{Name: "email_confirmation", Window: time.Hour, Limit: 10}
	ClassProfileUpdate     = Class{Name: "profile_update", Window: time.Hour, Limit: 10}
	ClassSearch            = Class{Name: "search", Window: time.Minute, Limit: 30}
	ClassAdminOperations   = Class{Name: "admin_operations", Window: time.Hour, Limit: 100}
	ClassGeneral           = Class{Name: "general", Window: 15 * time.Minute, Limit: 1000}
)

// Store counts requests per key within a fixed window. Implementations
// reset the count when a key's window has elapsed.
type Store interface {
	// Increment bumps the counter for key and returns the new count
	// within the current window.
	Increment(ctx context.Context, key string, window time.Duration) (int64, error)
}

// Limiter applies classed fixed-window rate limits on top of a Store
type Limiter struct {
	store Store
}

// NewLimiter creates a new Limiter
func NewLimiter(store Store) *Limiter {
	return &Limiter{store: store}
}

// Allow records one request for the given key under the given class and
// reports whether it is within the class ceiling. A store failure fails
// open: limiting is protection, not a correctness gate, and an
// unavailable store must not take authentication down with it.
func (l *Limiter) Allow(ctx context.Context, key string, class Class) bool {
	count, err := l.store.Increment(ctx, class.Name+":"+key, class.Window)
	if err != nil {
		logger.Warn().Err(err).Str("class", class.Name).Msg("Rate limit store unavailable, allowing request")
		return true
	}
	return count <= class.Limit
}
