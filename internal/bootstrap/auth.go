package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/dhanmatrix/dhanmatrix/config"
	"github.com/dhanmatrix/dhanmatrix/internal/adapters/devauth"
	"github.com/dhanmatrix/dhanmatrix/internal/adapters/oidc"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
)

// ErrFederatedMisconfigured means AUTH_MODE=oauth was chosen without the OAUTH_* values it needs.
var ErrFederatedMisconfigured = errors.New("federated sign-in misconfigured")

// BuildAuthProvider picks the federated sign-in provider for cfg.Mode. AuthModeNone yields
// a nil provider and the app offers email/password only.
//
//nolint:ireturn // chosen at runtime
func BuildAuthProvider(cfg config.AuthConfig, logger *slog.Logger) (ports.AuthProvider, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var (
		p   ports.AuthProvider
		err error
	)
	switch cfg.Mode {
	case config.AuthModeMock:
		p, err = buildDevProvider(cfg, logger)
	case config.AuthModeOAuth:
		p, err = buildOIDCProvider(cfg.OAuth)
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func buildDevProvider(cfg config.AuthConfig, logger *slog.Logger) (*devauth.Provider, error) {
	p, err := devauth.NewProvider(devauth.Config{
		UserID:          cfg.DevAuth.UserID,
		Email:           cfg.DevAuth.Email,
		DisplayName:     cfg.DevAuth.DisplayName,
		SessionDuration: cfg.SessionTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("dev sign-in: %w", err)
	}
	logger.Warn("mock sign-in enabled, every visitor becomes "+cfg.DevAuth.Email, "user_id", cfg.DevAuth.UserID)
	return p, nil
}

func buildOIDCProvider(oc config.OAuthConfig) (*oidc.Provider, error) {
	var missing []string
	for name, v := range map[string]string{
		"OAUTH_DISCOVERY_URL": oc.DiscoveryURL,
		"OAUTH_CLIENT_ID":     oc.ClientID,
		"OAUTH_CLIENT_SECRET": oc.ClientSecret,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return nil, fmt.Errorf("%w: missing %s", ErrFederatedMisconfigured, strings.Join(missing, ", "))
	}

	p, err := oidc.NewProvider(oidc.ProviderConfig{
		ClientID:     oc.ClientID,
		ClientSecret: oc.ClientSecret,
		RedirectURL:  oc.RedirectURL,
		Scope:        oc.Scope,
		DiscoveryURL: oc.DiscoveryURL,
		Prompt:       oc.Prompt,
	})
	if err != nil {
		return nil, fmt.Errorf("oidc sign-in: %w", err)
	}
	return p, nil
}
