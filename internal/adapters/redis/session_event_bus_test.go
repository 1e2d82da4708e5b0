package redis

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	"github.com/dhanmatrix/dhanmatrix/internal/testutil"
)

func TestSessionEventBus_PublishAndListen(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewSessionEventBus(client, SessionEventBusOptions{Channel: "test:session-events"})
	got := make(chan domainauth.SessionEvent, 4)
	require.NoError(t, bus.Listen(ctx, func(evt domainauth.SessionEvent) { got <- evt }))

	p := &domainauth.Principal{ID: "u1", Email: "u1@example.com"}
	require.NoError(t, bus.Publish(ctx, domainauth.SessionEvent{SessionID: "s1", Principal: p}))
	require.NoError(t, bus.Publish(ctx, domainauth.SessionEvent{SessionID: "s1"}))

	select {
	case evt := <-got:
		assert.Equal(t, "s1", evt.SessionID)
		require.NotNil(t, evt.Principal)
		assert.Equal(t, "u1", evt.Principal.ID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sign-in event")
	}

	select {
	case evt := <-got:
		assert.Nil(t, evt.Principal, "sign-out events carry no principal")
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for sign-out event")
	}
}

func TestSessionEventBus_SkipsMalformedPayloads(t *testing.T) {
	client := testutil.SetupTestRedis(t)
	defer client.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	bus := NewSessionEventBus(client, SessionEventBusOptions{Channel: "test:session-events-bad"})
	got := make(chan domainauth.SessionEvent, 1)
	require.NoError(t, bus.Listen(ctx, func(evt domainauth.SessionEvent) { got <- evt }))

	require.NoError(t, client.Publish(ctx, "test:session-events-bad", "{not json").Err())
	require.NoError(t, bus.Publish(ctx, domainauth.SessionEvent{SessionID: "s2"}))

	select {
	case evt := <-got:
		assert.Equal(t, "s2", evt.SessionID)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestSessionEventBus_PublishRequiresSessionID(t *testing.T) {
	bus := NewSessionEventBus(nil, SessionEventBusOptions{})
	err := bus.Publish(context.Background(), domainauth.SessionEvent{})
	require.Error(t, err)
}
