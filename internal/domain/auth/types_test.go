package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRole_IsResolved(t *testing.T) {
	assert.True(t, RoleAdmin.IsResolved())
	assert.True(t, RoleUser.IsResolved())
	assert.False(t, RoleUnresolved.IsResolved())
	assert.False(t, Role("").IsResolved())
}

func TestPrincipal_NormalizedEmail(t *testing.T) {
	p := Principal{ID: "u1", Email: "  Owner@Example.COM "}
	assert.Equal(t, "owner@example.com", p.NormalizedEmail())
}

func TestSession_PrincipalAndExpiry(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	s := Session{ID: "s1", UserID: "u1", Email: "a@b.c", DisplayName: "A", ExpiresAt: now.Add(time.Minute)}

	assert.Equal(t, Principal{ID: "u1", Email: "a@b.c", DisplayName: "A"}, s.Principal())
	assert.False(t, s.IsExpired(now))
	assert.True(t, s.IsExpired(now.Add(time.Minute)))
}

func TestIdentity_Principal(t *testing.T) {
	id := Identity{UserID: "sub-1", Email: "x@y.z", DisplayName: "X"}
	assert.Equal(t, Principal{ID: "sub-1", Email: "x@y.z", DisplayName: "X"}, id.Principal())
}

func TestSessionState_Phase(t *testing.T) {
	p := &Principal{ID: "u1"}

	t.Run("initial has no session", func(t *testing.T) {
		s := InitialSessionState()
		assert.Equal(t, PhaseNoSession, s.Phase())
		assert.True(t, s.SessionLoading)
		assert.True(t, s.RoleLoading)
		assert.Equal(t, RoleUnresolved, s.Role)
	})

	t.Run("signed out", func(t *testing.T) {
		s := SignedOutState()
		assert.Equal(t, PhaseNoSession, s.Phase())
		assert.False(t, s.SessionLoading)
		assert.False(t, s.RoleLoading)
		assert.Empty(t, s.PrincipalID())
	})

	t.Run("resolving", func(t *testing.T) {
		s := SessionState{Principal: p, Role: RoleUnresolved, RoleLoading: true}
		assert.Equal(t, PhaseSessionResolving, s.Phase())
		assert.False(t, s.IsAdmin())
	})

	t.Run("resolved admin", func(t *testing.T) {
		s := SessionState{Principal: p, Role: RoleAdmin}
		assert.Equal(t, PhaseSessionResolved, s.Phase())
		assert.True(t, s.IsAdmin())
		assert.Equal(t, "u1", s.PrincipalID())
	})
}
