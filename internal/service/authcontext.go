package service

import (
	"context"
	"log/slog"
	"sync"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

// AuthContextOptions groups dependencies for an AuthContext.
type AuthContextOptions struct {
	SessionID string
	Resolver  ports.RoleResolver
	Hints     ports.SessionHintStore // a HintRecorder when nil
	Logger    *slog.Logger
}

// AuthContext owns the auth state of one browser session. It follows the identity
// provider's session-changed signal and runs role resolution for each new principal.
// Observers read snapshots; there is no way to mutate the state from outside.
type AuthContext struct {
	sessionID string
	resolver  ports.RoleResolver
	hints     ports.SessionHintStore
	logger    *slog.Logger

	// notifyMu serializes transitions so subscribers see them in order.
	notifyMu sync.Mutex

	mu            sync.Mutex
	state         domainauth.SessionState
	epoch         uint64
	cancelResolve context.CancelFunc
	changed       chan struct{}
	subs          map[uint64]func(domainauth.SessionState)
	nextSub       uint64
	unsubscribe   func()
	started       bool
	closed        bool
}

// NewAuthContext creates a context in the initial loading state. Call Start to attach it
// to a session source.
func NewAuthContext(opts AuthContextOptions) *AuthContext {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	hints := opts.Hints
	if hints == nil {
		hints = NewHintRecorder()
	}
	return &AuthContext{
		sessionID: opts.SessionID,
		resolver:  opts.Resolver,
		hints:     hints,
		logger:    logger.With("component", "auth_context"),
		state:     domainauth.InitialSessionState(),
		changed:   make(chan struct{}),
		subs:      make(map[uint64]func(domainauth.SessionState)),
	}
}

// SessionID returns the browser session this context tracks.
func (c *AuthContext) SessionID() string { return c.sessionID }

// Hints returns the hint store the context writes to.
func (c *AuthContext) Hints() ports.SessionHintStore { return c.hints }

// Start subscribes to source. Calling it more than once, or after Close, does nothing.
func (c *AuthContext) Start(source ports.SessionSource) {
	c.mu.Lock()
	if c.started || c.closed {
		c.mu.Unlock()
		return
	}
	c.started = true
	c.mu.Unlock()

	unsubscribe := source.OnSessionChanged(c.sessionID, c.onSession)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		unsubscribe()
		return
	}
	c.unsubscribe = unsubscribe
	c.mu.Unlock()
}

// State returns the current snapshot.
func (c *AuthContext) State() domainauth.SessionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers fn for every later transition. The returned func removes it.
func (c *AuthContext) Subscribe(fn func(domainauth.SessionState)) (cancel func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextSub++
	id := c.nextSub
	c.subs[id] = fn
	return func() {
		c.mu.Lock()
		defer c.mu.Unlock()
		delete(c.subs, id)
	}
}

// Wait blocks until cond holds for the current state or ctx ends. It returns the last
// observed state either way.
func (c *AuthContext) Wait(ctx context.Context, cond func(domainauth.SessionState) bool) (domainauth.SessionState, error) {
	for {
		c.mu.Lock()
		s, changed := c.state, c.changed
		c.mu.Unlock()

		if cond(s) {
			return s, nil
		}
		select {
		case <-changed:
		case <-ctx.Done():
			return s, ctx.Err()
		}
	}
}

// Close detaches from the session source and abandons any in-flight resolution.
func (c *AuthContext) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.epoch++
	if c.cancelResolve != nil {
		c.cancelResolve()
		c.cancelResolve = nil
	}
	unsubscribe := c.unsubscribe
	c.unsubscribe = nil
	c.subs = map[uint64]func(domainauth.SessionState){}
	c.mu.Unlock()

	if unsubscribe != nil {
		unsubscribe()
	}
}

// onSession handles one emission of the session-changed signal.
func (c *AuthContext) onSession(p *domainauth.Principal) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	if p == nil {
		c.epoch++
		c.stopResolveLocked()
		c.hints.SaveHint(false)
		c.publishLocked(domainauth.SignedOutState())
		return
	}

	principal := *p
	if cur := c.state.Principal; cur != nil && cur.ID == principal.ID {
		next := c.state
		next.Principal = &principal
		c.publishLocked(next)
		return
	}

	c.epoch++
	epoch := c.epoch
	c.stopResolveLocked()
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelResolve = cancel
	c.hints.SaveHint(true)
	c.publishLocked(domainauth.SessionState{
		Principal:   &principal,
		Role:        domainauth.RoleUnresolved,
		RoleLoading: true,
	})

	go c.resolve(ctx, epoch, principal)
}

func (c *AuthContext) resolve(ctx context.Context, epoch uint64, p domainauth.Principal) {
	role := c.resolver.Resolve(ctx, p, func(upd domainauth.RoleUpdate) {
		c.applyRole(epoch, upd)
	})
	if ctx.Err() == nil {
		c.logger.Debug("role resolved", "session_id", c.sessionID, "user_id", p.ID, "role", role)
	}
}

// applyRole drops updates from attempts that are no longer current.
func (c *AuthContext) applyRole(epoch uint64, upd domainauth.RoleUpdate) {
	c.notifyMu.Lock()
	defer c.notifyMu.Unlock()

	c.mu.Lock()
	if c.closed || epoch != c.epoch || c.state.Principal == nil {
		c.mu.Unlock()
		return
	}
	next := c.state
	next.Role = upd.Role
	next.RoleLoading = false
	c.publishLocked(next)
}

func (c *AuthContext) stopResolveLocked() {
	if c.cancelResolve != nil {
		c.cancelResolve()
		c.cancelResolve = nil
	}
}

// publishLocked swaps in next, wakes waiters and notifies subscribers. It releases c.mu;
// callers must hold c.notifyMu.
func (c *AuthContext) publishLocked(next domainauth.SessionState) {
	c.state = next
	close(c.changed)
	c.changed = make(chan struct{})
	fns := make([]func(domainauth.SessionState), 0, len(c.subs))
	for _, fn := range c.subs {
		fns = append(fns, fn)
	}
	c.mu.Unlock()

	for _, fn := range fns {
		fn(next)
	}
}
