package config

import (
	"net"
	"net/url"
	"strconv"
	"time"
)

// DBConfig is read from DB_*.
type DBConfig struct {
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"dhanmatrix"`
	Password string `env:"PASSWORD" envDefault:"dhanmatrix"`
	Name     string `env:"NAME"     envDefault:"dhanmatrix"`
	// SSLMode is passed through as sslmode; production deployments set "require".
	SSLMode string `env:"SSL_MODE" envDefault:"disable"`

	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`

	MaxOpenConns    int           `env:"MAX_OPEN_CONNS"    envDefault:"25"`
	MaxIdleConns    int           `env:"MAX_IDLE_CONNS"    envDefault:"5"`
	ConnMaxLifetime time.Duration `env:"CONN_MAX_LIFETIME" envDefault:"5m"`
}

// DSN renders a postgres:// URL with the credentials escaped.
func (c DBConfig) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	if c.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {c.SSLMode}}.Encode()
	}
	return u.String()
}

// Target is host:port/name, safe for logs.
func (c DBConfig) Target() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port)) + "/" + c.Name
}
