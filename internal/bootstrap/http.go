package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/dhanmatrix/dhanmatrix/config"
	httpx "github.com/dhanmatrix/dhanmatrix/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	// Registry defaults to prometheus.DefaultRegisterer; its gatherer backs /metrics.
	Registry *prometheus.Registry
	Logger   *slog.Logger
}

// BuildHTTPHandler assembles the router with guard metrics and readiness checks.
func BuildHTTPHandler(cfg *HTTPServerConfig) (http.Handler, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	metricsCfg := httpx.GuardMetricsConfig{}
	var gatherer prometheus.Gatherer
	if cfg.Registry != nil {
		metricsCfg.Registry = cfg.Registry
		gatherer = cfg.Registry
	}
	if cfg.Services.Contexts != nil {
		metricsCfg.Contexts = cfg.Services.Contexts.Len
	}

	return httpx.NewRouter(httpx.RouterServices{
		Auth:            cfg.Services.Auth,
		Contexts:        cfg.Services.Contexts,
		Roles:           cfg.Services.Roles,
		Investments:     cfg.Services.Investments,
		Admin:           cfg.Services.Admin,
		Federated:       cfg.Services.Federated,
		CookieDomain:    appCfg.HTTP.CookieDomain,
		GuardWaitBudget: appCfg.HTTP.GuardWaitBudget,
		Metrics:         httpx.NewGuardMetrics(metricsCfg),
		Gatherer:        gatherer,
		Readiness:       readinessChecks(cfg.DB, cfg.RedisClient),
		Logger:          logger,
	})
}

func readinessChecks(db *sql.DB, rdb redis.UniversalClient) map[string]httpx.ReadinessCheck {
	checks := map[string]httpx.ReadinessCheck{}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	if rdb != nil {
		checks["redis"] = func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	}
	return checks
}

// newHTTPServer applies the timeouts every listener gets.
func newHTTPServer(handler http.Handler) *http.Server {
	return &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}
