package ports

// Package ports defines interfaces (hexagonal ports) for auth-related behavior.
// Implementations live in internal/adapters; orchestration in internal/service.

import (
	"context"
	"errors"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
)

// BeginInput carries inputs for initiating a federated sign-in.
type BeginInput struct {
	RedirectURL string
}

// AuthProvider initiates and completes a federated sign-in against an IdP.
type AuthProvider interface {
	// Begin starts the login flow and returns the provider auth URL, an opaque state, and a nonce.
	Begin(ctx context.Context, in BeginInput) (authURL, state, nonce string, err error)

	// Exchange completes the login flow, verifying state and nonce, and returns the authenticated identity.
	Exchange(ctx context.Context, in ExchangeInput) (domainauth.Identity, error)
}

// ExchangeInput groups parameters for the code/token exchange.
// ProviderError carries the IdP's error parameter (e.g. access_denied) when the user backed out.
type ExchangeInput struct {
	Code          string
	State         string
	Nonce         string
	ProviderError string
}

// CredentialInput groups an email/password pair.
type CredentialInput struct {
	Email       string
	Password    string
	DisplayName string
}

// PasswordAuthenticator verifies and enrolls email/password credentials.
type PasswordAuthenticator interface {
	// Authenticate returns the identity for a matching pair or an invalid-credentials error.
	Authenticate(ctx context.Context, in CredentialInput) (domainauth.Identity, error)
	// Enroll stores a new credential and returns the identity it created.
	Enroll(ctx context.Context, in CredentialInput) (domainauth.Identity, error)
}

// ErrSessionNotFound is returned by SessionStore.Get for unknown, blank or expired IDs.
var ErrSessionNotFound = errors.New("session not found")

// SessionStore persists and retrieves user sessions.
type SessionStore interface {
	Save(ctx context.Context, sess domainauth.Session) error
	// Get returns ErrSessionNotFound when there is no live session for id.
	Get(ctx context.Context, id string) (domainauth.Session, error)
	Delete(ctx context.Context, id string) error
}

// SessionEventBus fans session change events out to every running instance.
type SessionEventBus interface {
	Publish(ctx context.Context, evt domainauth.SessionEvent) error
	// Listen delivers events to fn until ctx is canceled.
	Listen(ctx context.Context, fn func(domainauth.SessionEvent)) error
}

// SessionSource is the identity provider's session-changed signal for one browser session.
type SessionSource interface {
	// OnSessionChanged invokes fn with the current principal (nil when signed out) soon after
	// subscribing and again on every sign-in, sign-out, refresh or expiry, in emission order.
	// The returned func releases the subscription.
	OnSessionChanged(sessionID string, fn func(*domainauth.Principal)) (unsubscribe func())
}

// SuperAdminPolicy is the static admin override consulted before any lookup.
type SuperAdminPolicy interface {
	IsSuperAdmin(p domainauth.Principal) bool
}

// RoleResolver maps a principal to a role, reporting provisional and final results.
type RoleResolver interface {
	Resolve(ctx context.Context, p domainauth.Principal, report func(domainauth.RoleUpdate)) domainauth.Role
}

// SessionHintStore persists the "a session was seen before" flag.
type SessionHintStore interface {
	SaveHint(seen bool)
	// LoadHint returns the last saved value; ok is false when nothing was saved yet.
	LoadHint() (seen, ok bool)
}
