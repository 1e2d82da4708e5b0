package auth

// Phase is the coarse lifecycle of a browser session's auth state.
type Phase string

const (
	PhaseNoSession        Phase = "no_session"
	PhaseSessionResolving Phase = "session_resolving"
	PhaseSessionResolved  Phase = "session_resolved"
)

// SessionState is the observable auth state of one application instance.
// It is always replaced as a whole value so observers never see a partial update.
type SessionState struct {
	Principal      *Principal `json:"principal,omitempty"`
	Role           Role       `json:"role"`
	SessionLoading bool       `json:"session_loading"`
	RoleLoading    bool       `json:"role_loading"`
}

// InitialSessionState is the state before the identity provider has reported anything.
func InitialSessionState() SessionState {
	return SessionState{Role: RoleUnresolved, SessionLoading: true, RoleLoading: true}
}

// SignedOutState is the state once the provider reported that no principal is signed in.
func SignedOutState() SessionState {
	return SessionState{Role: RoleUnresolved}
}

// Phase derives the lifecycle phase from the state.
func (s SessionState) Phase() Phase {
	switch {
	case s.Principal == nil:
		return PhaseNoSession
	case s.Role.IsResolved():
		return PhaseSessionResolved
	default:
		return PhaseSessionResolving
	}
}

// IsAdmin reports whether a principal is present with a settled admin role.
func (s SessionState) IsAdmin() bool {
	return s.Principal != nil && s.Role == RoleAdmin
}

// PrincipalID returns the principal's id or "" when no principal is present.
func (s SessionState) PrincipalID() string {
	if s.Principal == nil {
		return ""
	}
	return s.Principal.ID
}
