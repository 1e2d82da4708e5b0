// Package redis provides Redis-based adapters: sessions and session change events.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

// DefaultSessionPrefix namespaces session keys.
const DefaultSessionPrefix = "dhanmatrix:session:"

var (
	errEmptySessionID = errors.New("session ID cannot be empty")
	errSessionExpired = errors.New("session is expired")
)

// SessionStore keeps sessions as JSON values whose key TTL tracks Session.ExpiresAt.
type SessionStore struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

var _ ports.SessionStore = (*SessionStore)(nil)

// SessionStoreOption configures a SessionStore.
type SessionStoreOption func(*SessionStore)

// WithKeyPrefix replaces DefaultSessionPrefix.
func WithKeyPrefix(prefix string) SessionStoreOption {
	return func(s *SessionStore) {
		if prefix != "" {
			s.prefix = prefix
		}
	}
}

// WithClock sets the clock used for TTLs and expiry checks.
func WithClock(now func() time.Time) SessionStoreOption {
	return func(s *SessionStore) {
		if now != nil {
			s.now = now
		}
	}
}

// NewSessionStore returns a store backed by client.
func NewSessionStore(client redis.UniversalClient, opts ...SessionStoreOption) *SessionStore {
	s := &SessionStore{client: client, prefix: DefaultSessionPrefix, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *SessionStore) sessionKey(id string) string { return s.prefix + id }

// Save writes sess with a TTL of its remaining lifetime. Expired sessions are refused.
func (s *SessionStore) Save(ctx context.Context, sess domainauth.Session) error {
	if sess.ID == "" {
		return errEmptySessionID
	}
	ttl := sess.ExpiresAt.Sub(s.now())
	if ttl <= 0 {
		return errSessionExpired
	}

	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}
	if err := s.client.Set(ctx, s.sessionKey(sess.ID), payload, ttl).Err(); err != nil {
		return apperrors.Network(err, "session store unavailable")
	}
	return nil
}

// Get returns ports.ErrSessionNotFound for blank, unknown and expired IDs.
func (s *SessionStore) Get(ctx context.Context, id string) (domainauth.Session, error) {
	if id == "" {
		return domainauth.Session{}, ports.ErrSessionNotFound
	}

	raw, err := s.client.Get(ctx, s.sessionKey(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return domainauth.Session{}, ports.ErrSessionNotFound
	case err != nil:
		return domainauth.Session{}, apperrors.Network(err, "session store unavailable")
	}

	var sess domainauth.Session
	if err := json.Unmarshal(raw, &sess); err != nil {
		return domainauth.Session{}, fmt.Errorf("decode session %s: %w", id, err)
	}

	// The key TTL usually evicts first; a read on the boundary evicts by hand.
	if sess.IsExpired(s.now()) {
		if err := s.Delete(ctx, id); err != nil {
			return domainauth.Session{}, fmt.Errorf("evict expired session: %w", err)
		}
		return domainauth.Session{}, ports.ErrSessionNotFound
	}
	return sess, nil
}

// Delete is a no-op for blank or unknown IDs.
func (s *SessionStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	if err := s.client.Del(ctx, s.sessionKey(id)).Err(); err != nil {
		return apperrors.Network(err, "session store unavailable")
	}
	return nil
}
