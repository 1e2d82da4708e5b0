// Package config declares every environment variable the service and admin CLI read.
// Values are bound with caarlos0/env; Sanitize clamps them and Validate rejects
// combinations that cannot run.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Environment names the deployment the process runs in.
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// UnmarshalText accepts the usual short forms.
func (e *Environment) UnmarshalText(text []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(text))) {
	case "dev", "development", "local":
		*e = EnvDevelopment
	case "", "prod", "production":
		*e = EnvProduction
	default:
		return fmt.Errorf("invalid APP_ENV %q (valid options: development, production)", text)
	}
	return nil
}

// AppConfig composes the per-concern configs in this package.
type AppConfig struct {
	Env Environment `env:"APP_ENV" envDefault:"production"`

	Auth AuthConfig

	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`
	Cache    CacheConfig

	HTTP HTTPConfig

	Observability ObservabilityConfig
}

// IsDev reports whether development conveniences such as mock sign-in are allowed.
func (c *AppConfig) IsDev() bool { return c.Env == EnvDevelopment }

// Sanitize clamps out-of-range values to their defaults. Call it after parsing.
func (c *AppConfig) Sanitize() {
	c.Auth.Sanitize()
	c.Cache.Sanitize()
	c.HTTP.Sanitize()
	c.Observability.Sanitize()
}

// Validate reports every setting combination the service refuses to start with.
func (c *AppConfig) Validate() error {
	var errs []error
	if c.Auth.Mode == AuthModeMock && !c.IsDev() {
		errs = append(errs, errors.New("AUTH_MODE=mock requires APP_ENV=development"))
	}
	if c.Auth.Mode == AuthModeOAuth {
		if c.Auth.OAuth.DiscoveryURL == "" {
			errs = append(errs, errors.New("AUTH_MODE=oauth requires OAUTH_DISCOVERY_URL"))
		}
		if err := absoluteHTTPURL(c.Auth.OAuth.RedirectURL); err != nil {
			errs = append(errs, fmt.Errorf("OAUTH_REDIRECT_URL: %w", err))
		}
	}
	if c.Postgres.MaxOpenConns > 0 && c.Postgres.MaxIdleConns > c.Postgres.MaxOpenConns {
		errs = append(errs, fmt.Errorf("DB_MAX_IDLE_CONNS (%d) exceeds DB_MAX_OPEN_CONNS (%d)",
			c.Postgres.MaxIdleConns, c.Postgres.MaxOpenConns))
	}
	if c.Redis.UseCluster && c.Redis.UseSentinel {
		errs = append(errs, errors.New("REDIS_USE_CLUSTER and REDIS_USE_SENTINEL are mutually exclusive"))
	}
	return errors.Join(errs...)
}

func absoluteHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("%q is not an absolute http(s) URL", raw)
	}
	return nil
}

// LogLevel returns the slog level for the configured LOG_LEVEL.
func (c *AppConfig) LogLevel() slog.Level {
	return c.Observability.Logging.SlogLevel()
}
