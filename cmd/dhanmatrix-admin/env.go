package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/dhanmatrix/dhanmatrix/config"
	"github.com/dhanmatrix/dhanmatrix/internal/adapters/passwordauth"
	"github.com/dhanmatrix/dhanmatrix/internal/bootstrap"
	"github.com/dhanmatrix/dhanmatrix/internal/core"
	"github.com/dhanmatrix/dhanmatrix/internal/data"
	"github.com/dhanmatrix/dhanmatrix/internal/devseed"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	"github.com/dhanmatrix/dhanmatrix/internal/service"
)

// adminOps is the membership surface the CLI drives.
type adminOps interface {
	PromoteByEmail(ctx context.Context, email, promotedBy string) (*model.AdminMembership, error)
	Demote(ctx context.Context, userID string) (bool, error)
	ListAdmins(ctx context.Context) ([]*model.AdminMembership, error)
}

type passwordSetter interface {
	SetPassword(ctx context.Context, email, password string) error
}

type userLookup interface {
	GetByEmail(ctx context.Context, email string) (*model.UserProfile, error)
}

// cliEnv holds the services a command needs, plus a cleanup func.
type cliEnv struct {
	Admin     adminOps
	Passwords passwordSetter
	Users     userLookup
	Migrate   func(ctx context.Context) error
	Seed      func(ctx context.Context) error
	// DBHost is the configured Postgres host, checked before destructive or demo writes.
	DBHost string
	Close  func() error
}

type envOpener func(ctx context.Context) (*cliEnv, error)

// openEnv loads config, connects Postgres and, when reachable, Redis so that membership
// changes also refresh the cached admin documents the web servers read.
func openEnv(ctx context.Context) (*cliEnv, error) {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := bootstrap.NewLogger(os.Stderr, config.LoggingConfig{Level: "warn", Format: "text"})

	dbCfg := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}
	db, err := bootstrap.ConnectDB(ctx, dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}

	var (
		rdb   redis.UniversalClient
		cache core.CacheRepository
	)
	if rdb, err = bootstrap.ConnectRedis(ctx, dbCfg); err != nil {
		logger.WarnContext(ctx, "redis unavailable; cached admin documents expire on their own", "error", err)
	} else {
		cache = data.NewRedisCacheRepo(rdb)
	}

	return newCLIEnv(&cfg, db, rdb, cache, logger), nil
}

func newCLIEnv(cfg *config.AppConfig, db *sql.DB, rdb redis.UniversalClient, cache core.CacheRepository, logger *slog.Logger) *cliEnv {
	admins := data.NewAdminRepo(db)
	users := data.NewUserRepo(db)
	docs := data.NewDocumentStore(data.DocumentStoreOptions{
		Admins: admins,
		Users:  users,
		Cache:  cache,
		Config: core.DocumentCacheConfig{TTL: cfg.Cache.DocumentTTL},
		Logger: logger,
	})

	return &cliEnv{
		Admin: service.NewAdminService(service.AdminServiceOptions{
			Admins:    admins,
			Users:     users,
			Documents: docs,
			Logger:    logger,
		}),
		Passwords: passwordauth.NewAuthenticator(data.NewCredentialRepo(db), users, passwordauth.Config{
			Cost: cfg.Auth.PasswordCost,
		}),
		Users: users,
		Migrate: func(ctx context.Context) error {
			return bootstrap.RunMigrations(ctx, db, logger)
		},
		Seed: func(ctx context.Context) error {
			if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
				return err
			}
			return devseed.Run(ctx, devseed.NewServices(db), logger)
		},
		DBHost: cfg.Postgres.Host,
		Close: func() error {
			var errs []error
			if rdb != nil {
				if err := rdb.Close(); err != nil {
					errs = append(errs, fmt.Errorf("close redis: %w", err))
				}
			}
			if err := db.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close database: %w", err))
			}
			return errors.Join(errs...)
		},
	}
}
