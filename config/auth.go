package config

import (
	"fmt"
	"strings"
	"time"
)

// AuthMode represents the federated sign-in mode for the application.
type AuthMode string

const (
	// AuthModeOAuth uses OAuth/OIDC for federated sign-in.
	AuthModeOAuth AuthMode = "oauth"
	// AuthModeMock uses mock/dev authentication (for development only).
	AuthModeMock AuthMode = "mock"
	// AuthModeNone disables federated sign-in; only email/password accounts exist.
	AuthModeNone AuthMode = "none"
)

// UnmarshalText implements encoding.TextUnmarshaler for AuthMode.
func (a *AuthMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(strings.TrimSpace(string(text)))
	switch v {
	case "oauth", "mock", "none":
		*a = AuthMode(v)
		return nil
	default:
		return fmt.Errorf("invalid AuthMode: %q (valid options: oauth, mock, none)", v)
	}
}

// OAuthConfig contains OAuth/OIDC configuration.
type OAuthConfig struct {
	ClientID     string `env:"CLIENT_ID"     envDefault:"dhanmatrix"`
	ClientSecret string `env:"CLIENT_SECRET" envDefault:"dhanmatrix"`
	RedirectURL  string `env:"REDIRECT_URL"  envDefault:"http://localhost:8080/auth/callback"`
	Scope        string `env:"SCOPE"         envDefault:"openid profile email"`
	DiscoveryURL string `env:"DISCOVERY_URL"`
	// Prompt is sent as the prompt parameter; empty omits it.
	Prompt       string `env:"PROMPT"        envDefault:"select_account"`
}

// DevAuthConfig controls mock/dev authentication identity.
// Used when AUTH_MODE=mock for development and testing.
type DevAuthConfig struct {
	UserID      string `env:"USER_ID"      envDefault:"dev-user"`
	Email       string `env:"EMAIL"        envDefault:"dev@example.com"`
	DisplayName string `env:"DISPLAY_NAME" envDefault:"Dev User"`
}

// AuthConfig groups all authentication-related configuration.
type AuthConfig struct {
	// Mode determines which federated provider to use, if any.
	Mode AuthMode `env:"AUTH_MODE" envDefault:"none"`

	// OAuth configuration (used when Mode=oauth).
	OAuth OAuthConfig `envPrefix:"OAUTH_"`

	// DevAuth configuration (used when Mode=mock).
	DevAuth DevAuthConfig `envPrefix:"DEV_AUTH_"`

	// SessionTTL is how long a signed-in browser session lives.
	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"8h"`

	// PasswordCost is the bcrypt cost for stored credentials; 0 uses the library default.
	PasswordCost int `env:"PASSWORD_COST" envDefault:"0"`

	// SuperAdminEmails always resolve to admin. Entries prefixed with "id:" match a user id.
	SuperAdminEmails []string `env:"SUPER_ADMIN_EMAILS" envSeparator:","`

	// RoleLookupTimeout bounds the authoritative admins read.
	RoleLookupTimeout time.Duration `env:"ROLE_LOOKUP_TIMEOUT" envDefault:"10s"`

	// RevokeProvisionalAdmin downgrades a cache-granted admin when the server has no record.
	RevokeProvisionalAdmin bool `env:"ROLE_REVOKE_PROVISIONAL_ADMIN" envDefault:"false"`

	// AdminSetupKey enables self-service promotion at /admin/setup. Empty disables it.
	AdminSetupKey string `env:"ADMIN_SETUP_KEY"`

	// AdminRegistrationKey promotes a user who supplies it at registration. Empty disables it.
	AdminRegistrationKey string `env:"ADMIN_REGISTRATION_KEY"`
}

// Sanitize trims key material and clamps durations.
func (c *AuthConfig) Sanitize() {
	c.AdminSetupKey = strings.TrimSpace(c.AdminSetupKey)
	c.AdminRegistrationKey = strings.TrimSpace(c.AdminRegistrationKey)
	if c.SessionTTL <= 0 {
		c.SessionTTL = 8 * time.Hour
	}
	if c.RoleLookupTimeout <= 0 {
		c.RoleLookupTimeout = 10 * time.Second
	}
	if c.PasswordCost < 0 {
		c.PasswordCost = 0
	}

	admins := c.SuperAdminEmails[:0]
	for _, e := range c.SuperAdminEmails {
		if e = strings.TrimSpace(e); e != "" {
			admins = append(admins, e)
		}
	}
	c.SuperAdminEmails = admins
}

// FederatedEnabled reports whether a federated provider is configured.
func (c *AuthConfig) FederatedEnabled() bool {
	return c.Mode == AuthModeOAuth || c.Mode == AuthModeMock
}
