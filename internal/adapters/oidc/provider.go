// Package oidc is the federated sign-in adapter: an OAuth2 authorization code flow
// against an OpenID Connect provider.
package oidc

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

const (
	discoveryTimeout = 10 * time.Second
	wellKnownSuffix  = "/.well-known/openid-configuration"
	// fallbackTokenLife applies when the token response carries no expiry.
	fallbackTokenLife = time.Hour
)

// ProviderConfig holds the client registration and discovery location.
type ProviderConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	Scope        string
	// DiscoveryURL is the issuer URL, with or without the well-known suffix.
	DiscoveryURL string
	Prompt       string
	HTTPClient   *http.Client
}

func (c ProviderConfig) validate() error {
	for _, f := range []struct{ value, name string }{
		{c.ClientID, "client ID"},
		{c.ClientSecret, "client secret"},
		{c.RedirectURL, "redirect URL"},
		{c.DiscoveryURL, "discovery URL"},
	} {
		if strings.TrimSpace(f.value) == "" {
			return fmt.Errorf("%s is required", f.name)
		}
	}
	return nil
}

// Provider implements ports.AuthProvider.
type Provider struct {
	oauth    *oauth2.Config
	client   *http.Client
	op       *gooidc.Provider
	verifier *gooidc.IDTokenVerifier
	prompt   string
	// idToken is set when the openid scope is requested, so an id_token is expected.
	idToken bool
}

var _ ports.AuthProvider = (*Provider)(nil)

// NewProvider fetches the discovery document once and builds the client from it.
func NewProvider(cfg ProviderConfig) (*Provider, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}

	ctx, cancel := context.WithTimeout(gooidc.ClientContext(context.Background(), client), discoveryTimeout)
	defer cancel()
	issuer := strings.TrimSuffix(strings.TrimSuffix(cfg.DiscoveryURL, "/"), wellKnownSuffix)
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("discover %s: %w", issuer, err)
	}

	scopes := strings.Fields(cfg.Scope)
	return &Provider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       scopes,
			Endpoint:     op.Endpoint(),
		},
		client:   client,
		op:       op,
		verifier: op.Verifier(&gooidc.Config{ClientID: cfg.ClientID}),
		prompt:   cfg.Prompt,
		idToken:  slices.Contains(scopes, gooidc.ScopeOpenID),
	}, nil
}

// Begin returns the authorization URL with a fresh state and nonce. The callback
// address is always the registered RedirectURL.
func (p *Provider) Begin(_ context.Context, in ports.BeginInput) (string, string, string, error) {
	if in.RedirectURL == "" {
		return "", "", "", errors.New("redirect URL is required")
	}
	state, nonce := rand.Text(), rand.Text()
	opts := []oauth2.AuthCodeOption{gooidc.Nonce(nonce)}
	if p.prompt != "" {
		opts = append(opts, oauth2.SetAuthURLParam("prompt", p.prompt))
	}
	return p.oauth.AuthCodeURL(state, opts...), state, nonce, nil
}

// Exchange trades the code for tokens and reads the identity from the verified
// id_token, topped up from the userinfo endpoint when a claim is missing.
func (p *Provider) Exchange(ctx context.Context, in ports.ExchangeInput) (domainauth.Identity, error) {
	if in.ProviderError != "" {
		return domainauth.Identity{}, mapProviderError(in.ProviderError)
	}
	switch {
	case in.Code == "":
		return domainauth.Identity{}, errors.New("authorization code is required")
	case in.State == "":
		return domainauth.Identity{}, errors.New("state is required")
	case in.Nonce == "":
		return domainauth.Identity{}, errors.New("nonce is required")
	}

	ctx = gooidc.ClientContext(ctx, p.client)
	token, err := p.oauth.Exchange(ctx, in.Code)
	if err != nil {
		return domainauth.Identity{}, classifyExchangeError(fmt.Errorf("exchange code for token: %w", err))
	}

	var claims profileClaims
	if p.idToken {
		if claims, err = p.verifyIDToken(ctx, token, in.Nonce); err != nil {
			return domainauth.Identity{}, apperrors.Wrap(err, apperrors.ErrCodeInvalidCredentials, "Sign-in could not be verified.")
		}
	}
	if !claims.complete() {
		info, err := p.userInfo(ctx, token)
		if err != nil {
			return domainauth.Identity{}, classifyExchangeError(err)
		}
		claims = claims.merge(info)
	}
	if claims.Subject == "" {
		return domainauth.Identity{}, apperrors.InvalidCredentials("The sign-in provider returned no subject.")
	}

	expiresAt := token.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(fallbackTokenLife)
	}
	return claims.identity(expiresAt), nil
}

func (p *Provider) verifyIDToken(ctx context.Context, token *oauth2.Token, nonce string) (profileClaims, error) {
	raw, err := rawIDToken(token)
	if err != nil {
		return profileClaims{}, err
	}
	idTok, err := p.verifier.Verify(ctx, raw)
	if err != nil {
		return profileClaims{}, fmt.Errorf("verify id_token: %w", err)
	}
	if idTok.Nonce != nonce {
		return profileClaims{}, errors.New("id_token nonce mismatch")
	}
	var c profileClaims
	if err := idTok.Claims(&c); err != nil {
		return profileClaims{}, fmt.Errorf("decode id_token claims: %w", err)
	}
	return c.trusted(), nil
}

func (p *Provider) userInfo(ctx context.Context, token *oauth2.Token) (profileClaims, error) {
	info, err := p.op.UserInfo(ctx, oauth2.StaticTokenSource(token))
	if err != nil {
		return profileClaims{}, fmt.Errorf("fetch userinfo: %w", err)
	}
	var c profileClaims
	if err := info.Claims(&c); err != nil {
		return profileClaims{}, fmt.Errorf("decode userinfo: %w", err)
	}
	return c.trusted(), nil
}

func rawIDToken(token *oauth2.Token) (string, error) {
	if token == nil {
		return "", errors.New("nil token")
	}
	raw, _ := token.Extra("id_token").(string)
	if raw == "" {
		return "", errors.New("missing id_token in token response")
	}
	return raw, nil
}

// profileClaims is the standard claim subset shared by id_tokens and userinfo.
type profileClaims struct {
	Subject       string    `json:"sub"`
	Email         string    `json:"email"`
	EmailVerified claimBool `json:"email_verified"`
	Name          string    `json:"name"`
	GivenName     string    `json:"given_name"`
	FamilyName    string    `json:"family_name"`
}

// claimBool accepts both true and "true"; some providers send email_verified as a string.
type claimBool bool

func (b *claimBool) UnmarshalJSON(data []byte) error {
	var v bool
	if err := json.Unmarshal(data, &v); err == nil {
		*b = claimBool(v)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("email_verified: %w", err)
	}
	v, err := strconv.ParseBool(str)
	if err != nil {
		return fmt.Errorf("email_verified: %w", err)
	}
	*b = claimBool(v)
	return nil
}

// trusted drops an email the provider has not verified; principals only carry verified addresses.
func (c profileClaims) trusted() profileClaims {
	if !c.EmailVerified {
		c.Email = ""
	}
	return c
}

func (c profileClaims) displayName() string {
	if c.Name != "" {
		return c.Name
	}
	return strings.TrimSpace(c.GivenName + " " + c.FamilyName)
}

func (c profileClaims) complete() bool {
	return c.Subject != "" && c.Email != ""
}

// merge fills blank claims in c from other.
func (c profileClaims) merge(other profileClaims) profileClaims {
	fill := func(dst *string, src string) {
		if *dst == "" {
			*dst = src
		}
	}
	fill(&c.Subject, other.Subject)
	if c.Email == "" {
		c.Email, c.EmailVerified = other.Email, other.EmailVerified
	}
	if c.displayName() == "" {
		c.Name = other.displayName()
	}
	return c
}

func (c profileClaims) identity(expiresAt time.Time) domainauth.Identity {
	return domainauth.Identity{
		UserID:      c.Subject,
		Email:       c.Email,
		DisplayName: c.displayName(),
		ExpiresAt:   expiresAt,
	}
}

// mapProviderError turns the error parameter of the callback into an AppError.
func mapProviderError(code string) error {
	switch code {
	case "access_denied", "interaction_required", "login_required", "consent_required":
		return apperrors.ProviderCancelled("Sign-in was cancelled.")
	case "temporarily_unavailable", "server_error":
		return apperrors.Network(errors.New(code), "The sign-in provider is unavailable. Please try again.")
	default:
		return apperrors.InvalidCredentials("Sign-in failed: " + code)
	}
}

// classifyExchangeError tags transport failures and spent codes; other errors pass through.
func classifyExchangeError(err error) error {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperrors.Network(err, "The sign-in provider is unreachable. Please try again.")
	}
	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) && retrieveErr.ErrorCode == "invalid_grant" {
		return apperrors.Wrap(err, apperrors.ErrCodeInvalidCredentials, "Sign-in code expired. Please try again.")
	}
	return err
}
