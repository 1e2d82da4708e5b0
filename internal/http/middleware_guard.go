package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/service"
)

// AuthContexts hands out the auth context of a browser session.
type AuthContexts interface {
	Acquire(sessionID string) *service.AuthContext
}

// GuardConfig configures RouteGuard.
type GuardConfig struct {
	Contexts  AuthContexts
	AdminOnly bool
	// WaitBudget bounds how long a request blocks on a pending decision.
	// DefaultGuardWaitBudget when zero.
	WaitBudget   time.Duration
	CookieDomain string
	Renderer     *TemplateRenderer // placeholder page for browsers; optional
	Metrics      *GuardMetrics     // optional
	Logger       *slog.Logger
}

// RouteGuard protects a view with the session's auth state. Browsers are redirected or
// shown a self-refreshing placeholder; API clients get 401, 403 or 503 with Retry-After.
// The handler sees the evaluated state through GetAuthStateFromContext.
func RouteGuard(cfg GuardConfig) func(http.Handler) http.Handler {
	if cfg.WaitBudget <= 0 {
		cfg.WaitBudget = DefaultGuardWaitBudget
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	g := &routeGuard{cfg: cfg, cookies: cookieWriter{domain: cfg.CookieDomain}}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := cookieValue(r, SessionCookieName)
			state, decision := g.evaluate(w, r, sessionID)
			g.cfg.Metrics.observe(decision, cfg.AdminOnly)

			switch decision {
			case domainauth.DecisionRender:
				ctx := SetAuthStateInContext(r.Context(), sessionID, state)
				next.ServeHTTP(w, r.WithContext(ctx))
			case domainauth.DecisionAwaitSession, domainauth.DecisionAwaitRole:
				g.pending(w, r, decision)
			case domainauth.DecisionRedirectSignIn:
				g.redirectSignIn(w, r)
			case domainauth.DecisionRedirectHome:
				g.redirectHome(w, r)
			}
		})
	}
}

type routeGuard struct {
	cfg     GuardConfig
	cookies cookieWriter
}

// evaluate returns the state the decision was made on. Pending decisions, and optimistic
// renders made before the session loaded, are waited on for up to the budget.
func (g *routeGuard) evaluate(w http.ResponseWriter, r *http.Request, sessionID string) (domainauth.SessionState, domainauth.GuardDecision) {
	cookieSeen, hasCookie := readHint(r)

	if sessionID == "" || g.cfg.Contexts == nil {
		state := domainauth.SignedOutState()
		if cookieSeen || !hasCookie {
			g.cookies.hint(w, r, false)
		}
		return state, domainauth.EvaluateGuard(domainauth.GuardInput{State: state, AdminOnly: g.cfg.AdminOnly})
	}

	ac := g.cfg.Contexts.Acquire(sessionID)
	hints := ac.Hints()
	if seeder, ok := hints.(interface{ Seed(bool) }); ok && hasCookie {
		seeder.Seed(cookieSeen)
	}
	hintSeen, _ := hints.LoadHint()

	decide := func(s domainauth.SessionState) domainauth.GuardDecision {
		return domainauth.EvaluateGuard(domainauth.GuardInput{State: s, AdminOnly: g.cfg.AdminOnly, HintSeen: hintSeen})
	}
	settled := func(s domainauth.SessionState) bool {
		return !s.SessionLoading && !decide(s).IsPending()
	}

	ctx, cancel := context.WithTimeout(r.Context(), g.cfg.WaitBudget)
	defer cancel()
	state, err := ac.Wait(ctx, settled)
	if err != nil && !errors.Is(err, context.DeadlineExceeded) {
		g.cfg.Logger.DebugContext(r.Context(), "guard wait ended early", "error", err)
	}

	if seen, ok := hints.LoadHint(); ok && (!hasCookie || seen != cookieSeen) {
		g.cookies.hint(w, r, seen)
	}
	return state, decide(state)
}

func (g *routeGuard) pending(w http.ResponseWriter, r *http.Request, decision domainauth.GuardDecision) {
	retry := strconv.Itoa(pendingRetryAfter)
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("Retry-After", retry)

	if !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{
			Code:    http.StatusServiceUnavailable,
			ErrCode: string(decision),
			Err:     errors.New("session is still loading; retry shortly"),
		})
		return
	}

	if !IsHTMX(r) {
		w.Header().Set("Refresh", retry)
	}
	if g.cfg.Renderer == nil {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("Loading…"))
		return
	}
	data := NewTemplateData(r, PageMeta{Title: "Loading", CurrentPage: PagePending}).
		With("RetryURL", r.URL.RequestURI()).
		With("Decision", string(decision)).
		Build()
	if err := g.cfg.Renderer.Render(w, r, http.StatusOK, data); err != nil {
		g.cfg.Logger.ErrorContext(r.Context(), "render placeholder", "error", err)
	}
}

func (g *routeGuard) redirectSignIn(w http.ResponseWriter, r *http.Request) {
	if !IsBrowserRequest(r) {
		WriteError(w, ErrorParams{
			Code:    http.StatusUnauthorized,
			ErrCode: "authentication_required",
			Err:     errors.New("authentication required"),
		})
		return
	}
	// Never redirect a page to itself.
	if r.URL.Path == PathLogin {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	u := url.URL{Path: PathLogin}
	q := url.Values{}
	q.Set("redirect_uri", redirectPathForRequest(r))
	u.RawQuery = q.Encode()
	redirect(w, r, u.String())
}

func (g *routeGuard) redirectHome(w http.ResponseWriter, r *http.Request) {
	if !IsBrowserRequest(r) || r.URL.Path == PathHome {
		WriteError(w, ErrorParams{
			Code:    http.StatusForbidden,
			ErrCode: "insufficient_permissions",
			Err:     errors.New("insufficient permissions"),
		})
		return
	}
	redirect(w, r, PathHome)
}
