// internal/pkg/session/types.go
package session

import (
	"time"

	"objettrouve-service/internal/domain/auth"
)

// SessionData is the server-side record behind a session cookie.
// It holds identity facts only, never provider tokens.
type SessionData struct {
	ID             string    `json:"id"`
	Subject        string    `json:"sub"`
	Email          string    `json:"email"`
	GivenName      string    `json:"given_name,omitempty"`
	FamilyName     string    `json:"family_name,omitempty"`
	EmailVerified  bool      `json:"email_verified"`
	Roles          []string  `json:"roles"`
	IPAddress      string    `json:"ip_address"`
	UserAgent      string    `json:"user_agent"`
	LoginAt        time.Time `json:"login_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// NewSessionData builds a session record for identity valid for ttl
func NewSessionData(id string, identity *auth.Identity, ipAddress, userAgent string, ttl time.Duration) *SessionData {
	now := time.Now()
	return &SessionData{
		ID:             id,
		Subject:        identity.Subject,
		Email:          identity.Email,
		GivenName:      identity.GivenName,
		FamilyName:     identity.FamilyName,
		EmailVerified:  identity.EmailVerified,
		Roles:          identity.Roles,
		IPAddress:      ipAddress,
		UserAgent:      userAgent,
		LoginAt:        now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(ttl),
	}
}

// Identity returns the identity snapshot stored in the session
func (s *SessionData) Identity() *auth.Identity {
	return &auth.Identity{
		Subject:       s.Subject,
		Email:         s.Email,
		GivenName:     s.GivenName,
		FamilyName:    s.FamilyName,
		EmailVerified: s.EmailVerified,
		Roles:         s.Roles,
	}
}
