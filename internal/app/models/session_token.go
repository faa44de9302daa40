package models

import (
	"time"
)

// SessionToken defines the session token model based on the
// 'session_tokens' table. One row exists per issued token; a user may
// hold many concurrent rows (multi-device sessions).
type SessionToken struct {
	ID         int64      `json:"id" db:"id"`
	Token      string     `json:"-" db:"token"`               // Signed token string (unique, never serialized)
	UserID     int64      `json:"userId" db:"user_id"`        // Owning user
	Kind       TokenKind  `json:"kind" db:"kind"`             // ACCESS, REFRESH or RESET
	Agent      string     `json:"agent" db:"agent"`           // User-agent string of the issuing device
	IPAddress  string     `json:"ipAddress" db:"ip_address"`  // Client IP at issuance
	IsValid    bool       `json:"isValid" db:"is_valid"`      // Cleared on logout / password reset
	ExpiresAt  time.Time  `json:"expiresAt" db:"expires_at"`  // Hard expiry
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" db:"last_used_at"`
	CreatedAt  time.Time  `json:"createdAt" db:"created_at"`
}

// DefaultTTL returns the default validity window for a token kind.
func (k TokenKind) DefaultTTL() time.Duration {
	switch k {
	case TokenKindRefresh:
		return 30 * 24 * time.Hour
	case TokenKindReset:
		return time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}

// Usable reports whether the token may still authenticate requests.
// Expiry is strict: a token whose expiry equals now is already expired.
func (t *SessionToken) Usable(now time.Time) bool {
	return t.IsValid && now.Before(t.ExpiresAt)
}
