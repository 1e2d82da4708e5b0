package auth

// Package auth contains domain-level types for authentication, sessions and role resolution.
// It is pure and free of framework/adapter concerns.

import (
	"strings"
	"time"
)

// Role represents an application's authorization role.
// Keep string form for easy persistence and cookies.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
	// RoleUnresolved is the transient value held until resolution settles.
	RoleUnresolved Role = "unresolved"
)

// IsResolved reports whether the role settled to admin or user.
func (r Role) IsResolved() bool { return r == RoleAdmin || r == RoleUser }

// Principal is an authenticated identity. It is owned by the identity provider;
// the rest of the system only holds read-only copies.
type Principal struct {
	ID          string `json:"id"`
	Email       string `json:"email,omitempty"`
	DisplayName string `json:"display_name,omitempty"`
}

// NormalizedEmail returns the lower-cased, trimmed email.
func (p Principal) NormalizedEmail() string {
	return strings.ToLower(strings.TrimSpace(p.Email))
}

// Identity represents the authenticated principal returned by an IdP.
// Adapters map provider-specific claims into this shape.
type Identity struct {
	UserID      string // stable user identifier (e.g., sub)
	Email       string
	DisplayName string
	ExpiresAt   time.Time // absolute expiry from IdP token
}

// Principal converts the identity into the principal view used by the rest of the app.
func (i Identity) Principal() Principal {
	return Principal{ID: i.UserID, Email: i.Email, DisplayName: i.DisplayName}
}

// Session is the server-side record we persist for a signed-in browser.
// ID is an opaque session identifier carried in the session cookie.
type Session struct {
	ID          string    `json:"id"`
	UserID      string    `json:"user_id"`
	Email       string    `json:"email"`
	DisplayName string    `json:"display_name"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Principal returns the principal carried by the session.
func (s Session) Principal() Principal {
	return Principal{ID: s.UserID, Email: s.Email, DisplayName: s.DisplayName}
}

// IsExpired reports whether the session expired at the given instant.
func (s Session) IsExpired(now time.Time) bool { return !now.Before(s.ExpiresAt) }

// SessionEvent is emitted by the identity provider whenever the principal bound to a
// browser session changes. A nil Principal means sign-out or expiry.
type SessionEvent struct {
	SessionID string     `json:"session_id"`
	Principal *Principal `json:"principal,omitempty"`
	ExpiresAt time.Time  `json:"expires_at,omitzero"`
}
