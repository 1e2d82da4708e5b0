package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
)

// DefaultSessionEventChannel is the Pub/Sub channel carrying session change events.
const DefaultSessionEventChannel = "dhanmatrix:session-events"

// SessionEventBus publishes session change events over Redis Pub/Sub so every instance
// can notify the auth contexts bound to a browser session.
type SessionEventBus struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

// SessionEventBusOptions configures NewSessionEventBus.
type SessionEventBusOptions struct {
	Channel string
	Logger  *slog.Logger
}

// NewSessionEventBus constructs a bus on the given client.
func NewSessionEventBus(client redis.UniversalClient, opts SessionEventBusOptions) *SessionEventBus {
	channel := opts.Channel
	if channel == "" {
		channel = DefaultSessionEventChannel
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionEventBus{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "session_event_bus", "channel", channel),
	}
}

// Publish broadcasts evt to all listeners.
func (b *SessionEventBus) Publish(ctx context.Context, evt domainauth.SessionEvent) error {
	if evt.SessionID == "" {
		return errors.New("session event requires a session id")
	}
	payload, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal session event: %w", err)
	}
	if pubErr := b.client.Publish(ctx, b.channel, payload).Err(); pubErr != nil {
		return apperrors.Network(pubErr, "session event bus unavailable")
	}
	return nil
}

// Listen subscribes to the channel and invokes fn for each decoded event until ctx is
// canceled. It returns once the subscription is confirmed or fails; delivery continues in
// a goroutine owned by the bus.
func (b *SessionEventBus) Listen(ctx context.Context, fn func(domainauth.SessionEvent)) error {
	if fn == nil {
		return errors.New("session event handler is required")
	}
	pubsub := b.client.Subscribe(ctx, b.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return apperrors.Network(err, "subscribe to session events")
	}

	go func() {
		defer func() {
			if err := pubsub.Close(); err != nil {
				b.logger.Debug("pubsub close failed", "error", err)
			}
		}()
		ch := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var evt domainauth.SessionEvent
				if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
					b.logger.Warn("dropping malformed session event", "error", err)
					continue
				}
				fn(evt)
			}
		}
	}()
	return nil
}
