package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/dhanmatrix/dhanmatrix/config"
	"github.com/dhanmatrix/dhanmatrix/internal/adapters/authroles"
	"github.com/dhanmatrix/dhanmatrix/internal/adapters/passwordauth"
	redisadapter "github.com/dhanmatrix/dhanmatrix/internal/adapters/redis"
	"github.com/dhanmatrix/dhanmatrix/internal/core"
	"github.com/dhanmatrix/dhanmatrix/internal/data"
	"github.com/dhanmatrix/dhanmatrix/internal/observability/statsd"
	"github.com/dhanmatrix/dhanmatrix/internal/ports"
	"github.com/dhanmatrix/dhanmatrix/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Auth        *service.AuthService
	Contexts    *service.AuthContextRegistry
	Roles       *service.RoleResolver
	Investments *service.InvestmentService
	Admin       *service.AdminService
	// Federated is true when a federated provider is wired into Auth.
	Federated     bool
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	MetricsSink   *statsd.Client
	MetricsConfig config.ObservabilityMetricsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB
	RedisClient redis.UniversalClient
	// Provider overrides BuildAuthProvider; tests use it to skip discovery.
	Provider ports.AuthProvider
	Logger   *slog.Logger
}

// serviceRepositories groups data adapters backing service ports; no business rules here.
type serviceRepositories struct {
	Admins      *data.AdminRepo
	Users       *data.UserRepo
	Credentials *data.CredentialRepo
	Investments *data.InvestmentRepo
	Cache       *data.RedisCacheRepo
	Documents   *data.DocumentStore
	Sessions    *redisadapter.SessionStore
	Bus         *redisadapter.SessionEventBus
}

// buildObservability configures the statsd sink.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obs := ObservabilityContainer{MetricsConfig: cfg.Metrics}
	if !cfg.Metrics.IsEnabled() {
		return obs
	}
	client, err := statsd.NewClient(statsd.Config{
		Enabled: true,
		Address: cfg.Metrics.StatsdAddress,
		Prefix:  cfg.Metrics.Prefix,
		Logger:  logger,
	})
	if err != nil {
		logger.Error("failed to initialise statsd client", "error", err)
		return obs
	}
	obs.MetricsSink = client
	return obs
}

func buildRepositories(deps *ServiceDeps, logger *slog.Logger) *serviceRepositories {
	cfg := deps.Config
	repos := &serviceRepositories{
		Admins:      data.NewAdminRepo(deps.DB),
		Users:       data.NewUserRepo(deps.DB),
		Credentials: data.NewCredentialRepo(deps.DB),
		Investments: data.NewInvestmentRepo(deps.DB),
	}

	var cache core.CacheRepository
	if deps.RedisClient != nil {
		repos.Cache = data.NewRedisCacheRepo(deps.RedisClient)
		repos.Sessions = redisadapter.NewSessionStore(deps.RedisClient)
		repos.Bus = redisadapter.NewSessionEventBus(deps.RedisClient, redisadapter.SessionEventBusOptions{
			Channel: cfg.Redis.SessionEventChannel,
			Logger:  logger,
		})
		cache = repos.Cache
	}

	repos.Documents = data.NewDocumentStore(data.DocumentStoreOptions{
		Admins:        repos.Admins,
		Users:         repos.Users,
		Cache:         cache,
		Config:        core.DocumentCacheConfig{TTL: cfg.Cache.DocumentTTL},
		ServerTimeout: cfg.Cache.ServerReadTimeout,
		Logger:        logger,
	})
	return repos
}

// NewServices wires repositories, providers and services. Redis is required: it backs browser
// sessions and the cross-instance session event bus.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.DB == nil {
		return ServiceContainer{}, errors.New("database is required")
	}
	if deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("redis client is required for sessions")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	obs := buildObservability(logger, cfg.Observability)
	repos := buildRepositories(deps, logger)

	provider := deps.Provider
	if provider == nil {
		var err error
		if provider, err = BuildAuthProvider(cfg.Auth, logger); err != nil {
			return ServiceContainer{}, fmt.Errorf("build auth provider: %w", err)
		}
	}

	password := passwordauth.NewAuthenticator(repos.Credentials, repos.Users, passwordauth.Config{
		Cost:            cfg.Auth.PasswordCost,
		SessionDuration: cfg.Auth.SessionTTL,
	})

	auth := service.NewAuthService(service.AuthServiceOptions{
		Provider:  provider,
		Password:  password,
		Sessions:  repos.Sessions,
		Documents: repos.Documents,
		Bus:       repos.Bus,
		Logger:    logger,
		AdminKey:  cfg.Auth.AdminRegistrationKey,
	})

	roleOpts := service.RoleResolverOptions{
		SuperAdmins:            authroles.NewStaticSuperAdmins(cfg.Auth.SuperAdminEmails),
		Documents:              repos.Documents,
		Timeout:                cfg.Auth.RoleLookupTimeout,
		RevokeProvisionalAdmin: cfg.Auth.RevokeProvisionalAdmin,
		Logger:                 logger,
	}
	if obs.MetricsSink != nil {
		roleOpts.Metrics = obs.MetricsSink
	}
	roles := service.NewRoleResolver(roleOpts)

	contexts := service.NewAuthContextRegistry(service.AuthContextRegistryConfig{
		Source:   auth,
		Resolver: roles,
		Capacity: cfg.HTTP.AuthContextCapacity,
		IdleTTL:  cfg.HTTP.AuthContextIdleTTL,
		Logger:   logger,
	})

	investments := service.NewInvestmentService(service.InvestmentServiceOptions{Repo: repos.Investments})
	admin := service.NewAdminService(service.AdminServiceOptions{
		Admins:      repos.Admins,
		Users:       repos.Users,
		Documents:   repos.Documents,
		Investments: investments,
		Locks:       repos.Cache,
		SetupKey:    cfg.Auth.AdminSetupKey,
		Logger:      logger,
	})

	return ServiceContainer{
		Auth:          auth,
		Contexts:      contexts,
		Roles:         roles,
		Investments:   investments,
		Admin:         admin,
		Federated:     provider != nil,
		Observability: obs,
	}, nil
}
