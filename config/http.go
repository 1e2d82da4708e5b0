package config

import (
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// GuardWaitBudget is how long a guarded request waits for the session or role to settle.
	GuardWaitBudget time.Duration `env:"GUARD_WAIT_BUDGET" envDefault:"1.5s"`

	// AuthContextCapacity caps how many browser sessions keep a live auth context.
	AuthContextCapacity int `env:"AUTH_CONTEXT_CAPACITY" envDefault:"10000"`

	// AuthContextIdleTTL closes auth contexts unused for this long.
	AuthContextIdleTTL time.Duration `env:"AUTH_CONTEXT_IDLE_TTL" envDefault:"30m"`

	// ShutdownTimeout bounds graceful shutdown of in-flight requests.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	h.CookieDomain = sanitizeCookieDomain(h.CookieDomain)
	if h.GuardWaitBudget < 0 {
		h.GuardWaitBudget = 0
	}
	if h.AuthContextCapacity <= 0 {
		h.AuthContextCapacity = 10000
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
}

// sanitizeCookieDomain drops domains browsers would reject: public suffixes such as
// "co.in" and bare hosts without a registrable part.
func sanitizeCookieDomain(domain string) string {
	d := strings.ToLower(strings.TrimSpace(domain))
	d = strings.TrimPrefix(d, ".")
	if d == "" || d == "localhost" {
		return ""
	}
	if _, err := publicsuffix.EffectiveTLDPlusOne(d); err != nil {
		return ""
	}
	return d
}
