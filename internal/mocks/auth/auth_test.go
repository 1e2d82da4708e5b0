package auth

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

func TestMockAuthProvider_BeginNumbersEachFlow(t *testing.T) {
	ctx := context.Background()
	in := ports.BeginInput{RedirectURL: "/dashboard"}

	p := NewMockAuthProvider()
	for i := 1; i <= 2; i++ {
		authURL, state, nonce, err := p.Begin(ctx, in)
		require.NoError(t, err)
		assert.Equal(t, mockIdPURL, authURL)
		assert.Equal(t, fmt.Sprintf("state-%d", i), state)
		assert.Equal(t, fmt.Sprintf("nonce-%d", i), nonce)
	}

	custom := &MockAuthProvider{AuthURL: "https://idp.test/authorize", StatePrefix: "st", NoncePrefix: "nc"}
	authURL, state, nonce, err := custom.Begin(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, []string{"https://idp.test/authorize", "st-1", "nc-1"}, []string{authURL, state, nonce})
}

func TestMockAuthProvider_Exchange(t *testing.T) {
	ctx := context.Background()
	p := &MockAuthProvider{DefaultUser: domainauth.Identity{UserID: "inv-9", Email: "nine@example.com"}}
	_, state, nonce, err := p.Begin(ctx, ports.BeginInput{RedirectURL: "/"})
	require.NoError(t, err)

	tests := []struct {
		name    string
		in      ports.ExchangeInput
		wantErr string
	}{
		{name: "issued nonce", in: ports.ExchangeInput{Code: "c", State: state, Nonce: nonce}},
		{name: "unknown nonce", in: ports.ExchangeInput{Code: "c", State: state, Nonce: "forged"}, wantErr: "was not issued"},
		{name: "provider error", in: ports.ExchangeInput{ProviderError: "access_denied"}, wantErr: "access_denied"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := p.Exchange(ctx, tt.in)
			if tt.wantErr != "" {
				require.ErrorContains(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "inv-9", id.UserID)
			assert.True(t, id.ExpiresAt.After(time.Now()))
		})
	}
	assert.Len(t, p.Exchanges(), len(tests))
}

func TestMockAuthProvider_FuncOverrides(t *testing.T) {
	p := &MockAuthProvider{
		BeginFunc: func(context.Context, ports.BeginInput) (string, string, string, error) {
			return "", "", "", errors.New("idp offline")
		},
		ExchangeFunc: func(_ context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
			return domainauth.Identity{UserID: "from-" + in.Code}, nil
		},
	}
	_, _, _, err := p.Begin(context.Background(), ports.BeginInput{})
	require.EqualError(t, err, "idp offline")

	id, err := p.Exchange(context.Background(), ports.ExchangeInput{Code: "xyz"})
	require.NoError(t, err)
	assert.Equal(t, "from-xyz", id.UserID)
	assert.Equal(t, []ports.ExchangeInput{{Code: "xyz"}}, p.Exchanges())
}

func TestStaticSuperAdmins(t *testing.T) {
	admins := StaticSuperAdmins{Emails: []string{" Owner@Example.com "}}

	assert.True(t, admins.IsSuperAdmin(domainauth.Principal{ID: "u2", Email: "owner@example.com"}))
	assert.True(t, admins.IsSuperAdmin(domainauth.Principal{ID: "u2", Email: "OWNER@example.COM"}))
	assert.False(t, admins.IsSuperAdmin(domainauth.Principal{ID: "u3", Email: "someone@example.com"}))
	assert.False(t, admins.IsSuperAdmin(domainauth.Principal{ID: "u4"}))
	assert.False(t, StaticSuperAdmins{}.IsSuperAdmin(domainauth.Principal{ID: "u2", Email: "owner@example.com"}))
}

func TestMemoryDocumentStore_Tiers(t *testing.T) {
	store := NewMemoryDocumentStore()
	ctx := context.Background()
	store.PutCache(model.CollectionAdmins, "u1", model.AdminMembership{UserID: "u1"})

	_, err := store.GetFromCache(ctx, model.CollectionAdmins, "u1")
	require.NoError(t, err)
	_, err = store.GetFromServer(ctx, model.CollectionAdmins, "u1")
	assert.ErrorIs(t, err, ports.ErrDocumentNotFound)

	store.PutServer(model.CollectionAdmins, "u1", model.AdminMembership{UserID: "u1", PromotedBy: "cli"})
	doc, err := store.GetFromServer(ctx, model.CollectionAdmins, "u1")
	require.NoError(t, err)
	var m model.AdminMembership
	require.NoError(t, doc.Decode(&m))
	assert.Equal(t, "cli", m.PromotedBy)
	assert.Equal(t, 1, store.CacheCalls())
	assert.Equal(t, 2, store.ServerCalls())
}

func TestMemoryDocumentStore_ServerBlockHonorsContext(t *testing.T) {
	store := NewMemoryDocumentStore()
	store.ServerBlock = make(chan struct{})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := store.GetFromServer(ctx, model.CollectionAdmins, "u1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestManualSessionSource_EmitAndUnsubscribe(t *testing.T) {
	src := NewManualSessionSource()
	var got []*domainauth.Principal
	unsub := src.OnSessionChanged("s1", func(p *domainauth.Principal) { got = append(got, p) })
	assert.Equal(t, 1, src.Subscribers("s1"))

	src.Emit("s1", &domainauth.Principal{ID: "u1"})
	src.Emit("s2", &domainauth.Principal{ID: "other"})
	src.Emit("s1", nil)
	require.Len(t, got, 2)
	assert.Equal(t, "u1", got[0].ID)
	assert.Nil(t, got[1])

	unsub()
	assert.Equal(t, 0, src.Subscribers("s1"))
	src.Emit("s1", &domainauth.Principal{ID: "u1"})
	assert.Len(t, got, 2)
}

func TestMemoryHintStore(t *testing.T) {
	var hints MemoryHintStore
	_, ok := hints.LoadHint()
	assert.False(t, ok)

	hints.SaveHint(true)
	hints.SaveHint(false)
	seen, ok := hints.LoadHint()
	assert.True(t, ok)
	assert.False(t, seen)
	assert.Equal(t, []bool{true, false}, hints.History())
}

func TestMemorySessionStore(t *testing.T) {
	store := NewMemorySessionStore()
	ctx := context.Background()
	sess := domainauth.Session{ID: "s-1", UserID: "u-1", Email: "u1@example.com", ExpiresAt: time.Now().Add(time.Hour)}

	require.ErrorContains(t, store.Save(ctx, domainauth.Session{UserID: "u-1"}), "session ID cannot be empty")
	require.NoError(t, store.Save(ctx, sess))

	got, err := store.Get(ctx, "s-1")
	require.NoError(t, err)
	assert.Equal(t, sess, got)

	for _, id := range []string{"", "missing"} {
		_, err := store.Get(ctx, id)
		assert.ErrorIs(t, err, ports.ErrSessionNotFound, "id %q", id)
	}

	require.NoError(t, store.Delete(ctx, ""))
	require.NoError(t, store.Delete(ctx, "s-1"))
	_, err = store.Get(ctx, "s-1")
	assert.ErrorIs(t, err, ports.ErrSessionNotFound)
}
