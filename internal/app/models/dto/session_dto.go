package dto

import (
	"time"

	"github.com/okasha/maarif/internal/app/models"
)

// SessionInfo describes one active session for the session audit list
type SessionInfo struct {
	ID         int64      `json:"id" example:"3"`
	Agent      string     `json:"agent" example:"Mozilla/5.0"`
	IPAddress  string     `json:"ipAddress" example:"203.0.113.7"`
	Current    bool       `json:"current" example:"true"`
	CreatedAt  time.Time  `json:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
}

// NewSessionInfo projects a session token row onto the audit view.
// currentToken marks the session the caller presented.
func NewSessionInfo(token *models.SessionToken, currentToken string) SessionInfo {
	return SessionInfo{
		ID:         token.ID,
		Agent:      token.Agent,
		IPAddress:  token.IPAddress,
		Current:    token.Token == currentToken,
		CreatedAt:  token.CreatedAt,
		ExpiresAt:  token.ExpiresAt,
		LastUsedAt: token.LastUsedAt,
	}
}

// SessionListResponse lists a user's active sessions
type SessionListResponse struct {
	Sessions []SessionInfo `json:"sessions"`
}
