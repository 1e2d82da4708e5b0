// Package devauth is a local stand-in for an identity provider. Begin points the browser
// straight back at the app's own callback and Exchange signs in one configured person.
package devauth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

const (
	defaultSessionDuration = 8 * time.Hour
	callbackPath           = "/auth/callback"
	devCode                = "dev"
	// maxPending bounds flows begun but never completed.
	maxPending = 256
)

// Config is the identity every dev sign-in returns. UserID and Email are required.
type Config struct {
	UserID          string
	Email           string
	DisplayName     string
	SessionDuration time.Duration
	// Now defaults to time.Now.
	Now func() time.Time
}

// Provider implements ports.AuthProvider without leaving the app.
type Provider struct {
	identity domainauth.Identity
	lifetime time.Duration
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]struct{} // issued nonces, consumed by Exchange
}

var _ ports.AuthProvider = (*Provider)(nil)

// NewProvider validates cfg and returns a ready provider.
func NewProvider(cfg Config) (*Provider, error) {
	switch {
	case cfg.UserID == "":
		return nil, errors.New("dev auth: UserID is required")
	case cfg.Email == "":
		return nil, errors.New("dev auth: Email is required")
	}
	p := &Provider{
		identity: domainauth.Identity{UserID: cfg.UserID, Email: cfg.Email, DisplayName: cfg.DisplayName},
		lifetime: cfg.SessionDuration,
		now:      cfg.Now,
		pending:  make(map[string]struct{}),
	}
	if p.lifetime <= 0 {
		p.lifetime = defaultSessionDuration
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p, nil
}

// Begin issues a state and nonce and returns the app's own callback URL.
func (p *Provider) Begin(_ context.Context, _ ports.BeginInput) (string, string, string, error) {
	state, nonce := rand.Text(), rand.Text()

	p.mu.Lock()
	if len(p.pending) >= maxPending {
		clear(p.pending)
	}
	p.pending[nonce] = struct{}{}
	p.mu.Unlock()

	q := url.Values{"code": {devCode}, "state": {state}}
	return callbackPath + "?" + q.Encode(), state, nonce, nil
}

// Exchange returns the configured identity for a nonce Begin issued. Each nonce works once.
func (p *Provider) Exchange(_ context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.ProviderError != "" {
		return domainauth.Identity{}, apperrors.ProviderCancelled("Sign-in was cancelled.")
	}

	p.mu.Lock()
	_, issued := p.pending[in.Nonce]
	delete(p.pending, in.Nonce)
	p.mu.Unlock()
	if !issued {
		return domainauth.Identity{}, apperrors.InvalidCredentials(fmt.Sprintf("dev sign-in %q was not started here", in.State))
	}

	id := p.identity
	id.ExpiresAt = p.now().Add(p.lifetime)
	return id, nil
}
