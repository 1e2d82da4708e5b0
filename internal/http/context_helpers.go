package httpx

import (
	"context"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
)

// authStateKey is an unexported context key type to avoid collisions across packages.
type authStateKey struct{}

type authInfo struct {
	sessionID string
	state     domainauth.SessionState
}

// SetAuthStateInContext returns a child context carrying the guard's view of the session.
func SetAuthStateInContext(ctx context.Context, sessionID string, state domainauth.SessionState) context.Context {
	return context.WithValue(ctx, authStateKey{}, authInfo{sessionID: sessionID, state: state})
}

// GetAuthStateFromContext returns the session state attached by RouteGuard.
func GetAuthStateFromContext(ctx context.Context) (domainauth.SessionState, bool) {
	info, ok := ctx.Value(authStateKey{}).(authInfo)
	if !ok {
		return domainauth.SessionState{}, false
	}
	return info.state, true
}

// GetPrincipalFromContext returns the signed-in principal, if any.
func GetPrincipalFromContext(ctx context.Context) (domainauth.Principal, bool) {
	s, ok := GetAuthStateFromContext(ctx)
	if !ok || s.Principal == nil {
		return domainauth.Principal{}, false
	}
	return *s.Principal, true
}

// GetSessionIDFromContext returns the browser session id the guard evaluated.
func GetSessionIDFromContext(ctx context.Context) string {
	info, _ := ctx.Value(authStateKey{}).(authInfo)
	return info.sessionID
}
