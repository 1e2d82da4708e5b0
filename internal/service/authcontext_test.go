package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	mocks "github.com/dhanmatrix/dhanmatrix/internal/mocks/auth"
)

const testSession = "sess-1"

// scriptedResolver hands each attempt to the test through attempts.
type scriptedResolver struct {
	attempts chan *attempt
}

type attempt struct {
	ctx       context.Context
	principal domainauth.Principal
	report    func(domainauth.RoleUpdate)
	settled   chan domainauth.Role
}

func newScriptedResolver() *scriptedResolver {
	return &scriptedResolver{attempts: make(chan *attempt, 8)}
}

func (s *scriptedResolver) Resolve(ctx context.Context, p domainauth.Principal, report func(domainauth.RoleUpdate)) domainauth.Role {
	a := &attempt{ctx: ctx, principal: p, report: report, settled: make(chan domainauth.Role, 1)}
	s.attempts <- a
	select {
	case role := <-a.settled:
		return role
	case <-ctx.Done():
		return domainauth.RoleUnresolved
	}
}

func (s *scriptedResolver) next(t *testing.T) *attempt {
	t.Helper()
	select {
	case a := <-s.attempts:
		return a
	case <-time.After(time.Second):
		t.Fatal("no resolution attempt started")
		return nil
	}
}

func (a *attempt) settle(role domainauth.Role, source domainauth.ResolutionSource) {
	a.report(domainauth.RoleUpdate{Role: role, Final: true, Source: source})
	a.settled <- role
}

type contextFixture struct {
	source   *mocks.ManualSessionSource
	resolver *scriptedResolver
	hints    *mocks.MemoryHintStore
	ac       *AuthContext
}

func newContextFixture(t *testing.T) *contextFixture {
	t.Helper()
	f := &contextFixture{
		source:   mocks.NewManualSessionSource(),
		resolver: newScriptedResolver(),
		hints:    &mocks.MemoryHintStore{},
	}
	f.ac = NewAuthContext(AuthContextOptions{SessionID: testSession, Resolver: f.resolver, Hints: f.hints})
	f.ac.Start(f.source)
	t.Cleanup(f.ac.Close)
	return f
}

func waitFor(t *testing.T, ac *AuthContext, cond func(domainauth.SessionState) bool) domainauth.SessionState {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := ac.Wait(ctx, cond)
	require.NoError(t, err, "state never matched; last state %+v", s)
	return s
}

func TestAuthContext_InitialState(t *testing.T) {
	f := newContextFixture(t)
	assert.Equal(t, domainauth.InitialSessionState(), f.ac.State())
	assert.Equal(t, 1, f.source.Subscribers(testSession))
	_, ok := f.hints.LoadHint()
	assert.False(t, ok)
}

func TestAuthContext_SignedOut(t *testing.T) {
	f := newContextFixture(t)
	f.source.Emit(testSession, nil)

	s := f.ac.State()
	assert.Equal(t, domainauth.SignedOutState(), s)
	assert.Equal(t, domainauth.PhaseNoSession, s.Phase())
	assert.Equal(t, []bool{false}, f.hints.History())
}

func TestAuthContext_SignInResolvesRole(t *testing.T) {
	f := newContextFixture(t)
	f.source.Emit(testSession, &alice)

	s := f.ac.State()
	require.NotNil(t, s.Principal)
	assert.Equal(t, alice.ID, s.Principal.ID)
	assert.False(t, s.SessionLoading)
	assert.True(t, s.RoleLoading)
	assert.Equal(t, domainauth.RoleUnresolved, s.Role)
	assert.Equal(t, domainauth.PhaseSessionResolving, s.Phase())
	assert.Equal(t, []bool{true}, f.hints.History())

	a := f.resolver.next(t)
	assert.Equal(t, alice, a.principal)
	a.settle(domainauth.RoleUser, domainauth.SourceServer)

	s = waitFor(t, f.ac, func(s domainauth.SessionState) bool { return !s.RoleLoading })
	assert.Equal(t, domainauth.RoleUser, s.Role)
	assert.Equal(t, domainauth.PhaseSessionResolved, s.Phase())
}

func TestAuthContext_ProvisionalAdminClearsRoleLoading(t *testing.T) {
	f := newContextFixture(t)
	f.source.Emit(testSession, &alice)
	a := f.resolver.next(t)

	a.report(domainauth.RoleUpdate{Role: domainauth.RoleAdmin, Source: domainauth.SourceCache})
	s := f.ac.State()
	assert.True(t, s.IsAdmin())
	assert.False(t, s.RoleLoading)

	a.settle(domainauth.RoleAdmin, domainauth.SourceServer)
	assert.True(t, f.ac.State().IsAdmin())
}

func TestAuthContext_SamePrincipalDoesNotRestartResolution(t *testing.T) {
	f := newContextFixture(t)
	f.source.Emit(testSession, &alice)
	a := f.resolver.next(t)
	a.settle(domainauth.RoleAdmin, domainauth.SourceServer)
	waitFor(t, f.ac, domainauth.SessionState.IsAdmin)

	refreshed := alice
	refreshed.DisplayName = "Alice A."
	f.source.Emit(testSession, &refreshed)

	s := f.ac.State()
	assert.Equal(t, "Alice A.", s.Principal.DisplayName)
	assert.Equal(t, domainauth.RoleAdmin, s.Role)
	assert.False(t, s.RoleLoading)
	select {
	case <-f.resolver.attempts:
		t.Fatal("refresh started a new resolution")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestAuthContext_StaleResolutionIsDropped(t *testing.T) {
	f := newContextFixture(t)
	bob := domainauth.Principal{ID: "u-bob", Email: "bob@example.com"}

	f.source.Emit(testSession, &alice)
	first := f.resolver.next(t)

	f.source.Emit(testSession, &bob)
	second := f.resolver.next(t)

	assert.Error(t, first.ctx.Err(), "previous attempt is canceled")
	first.report(domainauth.RoleUpdate{Role: domainauth.RoleAdmin, Final: true, Source: domainauth.SourceServer})

	s := f.ac.State()
	assert.Equal(t, bob.ID, s.PrincipalID())
	assert.Equal(t, domainauth.RoleUnresolved, s.Role)
	assert.True(t, s.RoleLoading)

	second.settle(domainauth.RoleUser, domainauth.SourceServer)
	s = waitFor(t, f.ac, func(s domainauth.SessionState) bool { return !s.RoleLoading })
	assert.Equal(t, domainauth.RoleUser, s.Role)
}

func TestAuthContext_SignOutDuringResolution(t *testing.T) {
	f := newContextFixture(t)
	f.source.Emit(testSession, &alice)
	a := f.resolver.next(t)

	f.source.Emit(testSession, nil)
	a.report(domainauth.RoleUpdate{Role: domainauth.RoleAdmin, Final: true, Source: domainauth.SourceServer})

	assert.Equal(t, domainauth.SignedOutState(), f.ac.State())
	assert.Equal(t, []bool{true, false}, f.hints.History())
}

func TestAuthContext_AdminSignsOutThenUserSignsIn(t *testing.T) {
	f := newContextFixture(t)
	f.source.Emit(testSession, &alice)
	f.resolver.next(t).settle(domainauth.RoleAdmin, domainauth.SourceServer)
	waitFor(t, f.ac, domainauth.SessionState.IsAdmin)

	f.source.Emit(testSession, nil)
	assert.Equal(t, domainauth.RoleUnresolved, f.ac.State().Role)

	bob := domainauth.Principal{ID: "u-bob"}
	f.source.Emit(testSession, &bob)
	s := f.ac.State()
	assert.False(t, s.IsAdmin(), "previous admin role never leaks to the next principal")
	assert.True(t, s.RoleLoading)
}

func TestAuthContext_SubscribersSeeWholeTransitionsInOrder(t *testing.T) {
	f := newContextFixture(t)
	var mu sync.Mutex
	var seen []domainauth.SessionState
	cancel := f.ac.Subscribe(func(s domainauth.SessionState) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, s)
	})

	f.source.Emit(testSession, &alice)
	f.resolver.next(t).settle(domainauth.RoleUser, domainauth.SourceServer)
	waitFor(t, f.ac, func(s domainauth.SessionState) bool { return !s.RoleLoading })
	f.source.Emit(testSession, nil)
	cancel()
	f.source.Emit(testSession, &alice)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	assert.Equal(t, domainauth.PhaseSessionResolving, seen[0].Phase())
	assert.Equal(t, domainauth.PhaseSessionResolved, seen[1].Phase())
	assert.Equal(t, domainauth.PhaseNoSession, seen[2].Phase())
}

func TestAuthContext_WaitHonorsContext(t *testing.T) {
	f := newContextFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	s, err := f.ac.Wait(ctx, func(s domainauth.SessionState) bool { return !s.SessionLoading })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, s.SessionLoading)
}

func TestAuthContext_CloseUnsubscribesAndCancels(t *testing.T) {
	f := newContextFixture(t)
	f.source.Emit(testSession, &alice)
	a := f.resolver.next(t)

	f.ac.Close()
	assert.Error(t, a.ctx.Err())
	assert.Zero(t, f.source.Subscribers(testSession))

	before := f.ac.State()
	a.report(domainauth.RoleUpdate{Role: domainauth.RoleAdmin, Final: true, Source: domainauth.SourceServer})
	assert.Equal(t, before, f.ac.State())
}

func TestAuthContext_WithRoleResolver(t *testing.T) {
	docs := mocks.NewMemoryDocumentStore()
	docs.PutServer(model.CollectionAdmins, alice.ID, membership(alice))
	source := mocks.NewManualSessionSource()
	ac := NewAuthContext(AuthContextOptions{
		SessionID: testSession,
		Resolver:  NewRoleResolver(RoleResolverOptions{Documents: docs, Timeout: time.Second}),
	})
	ac.Start(source)
	defer ac.Close()

	source.Emit(testSession, &alice)
	s := waitFor(t, ac, func(s domainauth.SessionState) bool { return s.Phase() == domainauth.PhaseSessionResolved })
	assert.True(t, s.IsAdmin())

	seen, ok := ac.Hints().LoadHint()
	assert.True(t, ok)
	assert.True(t, seen)
}
