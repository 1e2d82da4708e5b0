package auth

// GuardDecision is the outcome of evaluating a protected view against the auth state.
type GuardDecision string

const (
	// DecisionRender renders the protected view.
	DecisionRender GuardDecision = "render"
	// DecisionAwaitSession renders a placeholder until the session is known.
	DecisionAwaitSession GuardDecision = "await_session"
	// DecisionAwaitRole renders a placeholder until the role is known (admin-only views).
	DecisionAwaitRole GuardDecision = "await_role"
	// DecisionRedirectSignIn sends an unauthenticated visitor to the sign-in view.
	DecisionRedirectSignIn GuardDecision = "redirect_sign_in"
	// DecisionRedirectHome sends a signed-in non-admin away from an admin-only view.
	DecisionRedirectHome GuardDecision = "redirect_home"
)

// IsPending reports whether the decision is a placeholder that must be re-evaluated later.
func (d GuardDecision) IsPending() bool {
	return d == DecisionAwaitSession || d == DecisionAwaitRole
}

// GuardInput groups the values the guard policy depends on.
type GuardInput struct {
	State     SessionState
	AdminOnly bool
	// HintSeen is the persisted "a session was seen before" flag read when the view mounts.
	HintSeen bool
}

// EvaluateGuard applies the redirect policy for protected views.
//
// Non-admin views only need to know whether a principal exists; admin-only views also wait
// for the role so an admin whose role is still loading is not bounced. The session hint lets
// non-admin views render optimistically while the session is still loading; the redirect
// policy applies as soon as the real state arrives.
func EvaluateGuard(in GuardInput) GuardDecision {
	s := in.State
	if s.SessionLoading {
		if !in.AdminOnly && in.HintSeen {
			return DecisionRender
		}
		return DecisionAwaitSession
	}

	if s.Principal == nil {
		return DecisionRedirectSignIn
	}

	if !in.AdminOnly {
		return DecisionRender
	}

	if s.RoleLoading || !s.Role.IsResolved() {
		return DecisionAwaitRole
	}
	if s.Role != RoleAdmin {
		return DecisionRedirectHome
	}
	return DecisionRender
}
