package service

import (
	"container/list"
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

const (
	defaultAuthContextCapacity = 10000
	defaultAuthContextIdleTTL  = 30 * time.Minute
)

// AuthContextRegistryConfig groups constructor options.
type AuthContextRegistryConfig struct {
	Source   ports.SessionSource
	Resolver ports.RoleResolver
	Capacity int
	IdleTTL  time.Duration // 30m when zero; negative means contexts never go idle
	Logger   *slog.Logger
	Now      func() time.Time
}

// AuthContextRegistry keeps one AuthContext per browser session in a bounded LRU.
// Contexts that fall out through capacity, idleness or Remove are closed.
// Concurrency: methods are safe for concurrent use.
type AuthContextRegistry struct {
	source   ports.SessionSource
	resolver ports.RoleResolver
	logger   *slog.Logger

	mu      sync.Mutex
	cap     int
	idleTTL time.Duration
	ll      *list.List // front = most-recently used
	items   map[string]*list.Element
	now     func() time.Time
	closed  bool

	created atomic.Uint64
	evicts  atomic.Uint64
}

type registryEntry struct {
	sessionID string
	ctx       *AuthContext
	lastUsed  time.Time
}

// NewAuthContextRegistry creates an empty registry.
func NewAuthContextRegistry(cfg AuthContextRegistryConfig) *AuthContextRegistry {
	capacity := cfg.Capacity
	if capacity <= 0 {
		capacity = defaultAuthContextCapacity
	}
	nowFn := cfg.Now
	if nowFn == nil {
		nowFn = time.Now
	}
	idleTTL := cfg.IdleTTL
	if idleTTL == 0 {
		idleTTL = defaultAuthContextIdleTTL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthContextRegistry{
		source:   cfg.Source,
		resolver: cfg.Resolver,
		logger:   logger.With("component", "auth_context_registry"),
		cap:      capacity,
		idleTTL:  idleTTL,
		ll:       list.New(),
		items:    make(map[string]*list.Element),
		now:      nowFn,
	}
}

// Acquire returns the context for sessionID, creating and starting it on first use.
func (r *AuthContextRegistry) Acquire(sessionID string) *AuthContext {
	r.mu.Lock()
	if el, ok := r.items[sessionID]; ok {
		ent := el.Value.(*registryEntry)
		if !r.isIdle(ent) {
			ent.lastUsed = r.now()
			r.ll.MoveToFront(el)
			r.mu.Unlock()
			return ent.ctx
		}
		r.removeElement(el)
		r.evicts.Add(1)
		defer ent.ctx.Close()
	}

	ac := NewAuthContext(AuthContextOptions{
		SessionID: sessionID,
		Resolver:  r.resolver,
		Logger:    r.logger,
	})
	if r.closed {
		r.mu.Unlock()
		ac.Close()
		return ac
	}
	r.items[sessionID] = r.ll.PushFront(&registryEntry{sessionID: sessionID, ctx: ac, lastUsed: r.now()})
	r.created.Add(1)
	evicted := r.evictOverCapacity()
	r.mu.Unlock()

	ac.Start(r.source)
	closeAll(evicted)
	return ac
}

// Peek returns the context for sessionID without creating or touching it.
func (r *AuthContextRegistry) Peek(sessionID string) (*AuthContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	el, ok := r.items[sessionID]
	if !ok {
		return nil, false
	}
	return el.Value.(*registryEntry).ctx, true
}

// Remove closes and forgets the context for sessionID.
func (r *AuthContextRegistry) Remove(sessionID string) bool {
	r.mu.Lock()
	el, ok := r.items[sessionID]
	if !ok {
		r.mu.Unlock()
		return false
	}
	ent := el.Value.(*registryEntry)
	r.removeElement(el)
	r.mu.Unlock()

	ent.ctx.Close()
	return true
}

// Sweep closes contexts idle longer than the configured TTL and returns how many it closed.
func (r *AuthContextRegistry) Sweep() int {
	r.mu.Lock()
	var idle []*AuthContext
	for el := r.ll.Back(); el != nil; {
		prev := el.Prev()
		ent := el.Value.(*registryEntry)
		if !r.isIdle(ent) {
			break
		}
		r.removeElement(el)
		r.evicts.Add(1)
		idle = append(idle, ent.ctx)
		el = prev
	}
	r.mu.Unlock()

	closeAll(idle)
	return len(idle)
}

// Run sweeps idle contexts every interval until ctx is canceled, then closes the registry.
func (r *AuthContextRegistry) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			r.Close()
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				r.logger.Debug("closed idle auth contexts", "count", n)
			}
		}
	}
}

// Close closes every context and rejects new ones.
func (r *AuthContextRegistry) Close() {
	r.mu.Lock()
	r.closed = true
	all := make([]*AuthContext, 0, r.ll.Len())
	for el := r.ll.Front(); el != nil; el = el.Next() {
		all = append(all, el.Value.(*registryEntry).ctx)
	}
	r.ll.Init()
	r.items = make(map[string]*list.Element)
	r.mu.Unlock()

	closeAll(all)
}

// Len returns the number of live contexts.
func (r *AuthContextRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.ll.Len()
}

// AuthContextRegistryStats are simple counters for observability.
type AuthContextRegistryStats struct {
	Created, Evictions uint64
	Size, Capacity     int
}

// Stats returns a snapshot of counters and sizes.
func (r *AuthContextRegistry) Stats() AuthContextRegistryStats {
	return AuthContextRegistryStats{
		Created:   r.created.Load(),
		Evictions: r.evicts.Load(),
		Size:      r.Len(),
		Capacity:  r.cap,
	}
}

// Helpers (caller must hold r.mu).
func (r *AuthContextRegistry) isIdle(e *registryEntry) bool {
	if r.idleTTL <= 0 {
		return false
	}
	return r.now().Sub(e.lastUsed) > r.idleTTL
}

func (r *AuthContextRegistry) removeElement(el *list.Element) {
	r.ll.Remove(el)
	delete(r.items, el.Value.(*registryEntry).sessionID)
}

func (r *AuthContextRegistry) evictOverCapacity() []*AuthContext {
	var out []*AuthContext
	for r.ll.Len() > r.cap {
		el := r.ll.Back()
		if el == nil {
			break
		}
		out = append(out, el.Value.(*registryEntry).ctx)
		r.removeElement(el)
		r.evicts.Add(1)
	}
	return out
}

func closeAll(contexts []*AuthContext) {
	for _, c := range contexts {
		c.Close()
	}
}
