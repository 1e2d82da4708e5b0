// Command dhanmatrix serves the investment tracker web app.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dhanmatrix/dhanmatrix/config"
	"github.com/dhanmatrix/dhanmatrix/internal/bootstrap"
)

func main() {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		slog.Error("load config", "error", err)
		os.Exit(1) //nolint:forbidigo // entrypoint
	}
	logger := bootstrap.InitLogger(cfg.Observability.Logging)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err = run(ctx, logger, &cfg)
	stop()
	if err != nil {
		logger.Error("dhanmatrix stopped", "error", err)
		os.Exit(1) //nolint:forbidigo // entrypoint
	}
}

func run(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) error {
	logger.InfoContext(ctx, "starting dhanmatrix",
		"env", cfg.Env,
		"addr", cfg.HTTP.Addr,
		"auth_mode", cfg.Auth.Mode,
		"db", cfg.Postgres.Target(),
		"super_admins", len(cfg.Auth.SuperAdminEmails),
		"admin_setup_enabled", cfg.Auth.AdminSetupKey != "",
	)

	conns := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}
	db, err := bootstrap.ConnectDB(ctx, conns)
	if err != nil {
		return fmt.Errorf("connect db: %w", err)
	}
	defer closeLogged(ctx, logger, "postgres", db.Close)

	rdb, err := bootstrap.ConnectRedis(ctx, conns)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer closeLogged(ctx, logger, "redis", rdb.Close)

	if cfg.Postgres.RunMigrationsOnStart {
		if err := bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else {
		logger.InfoContext(ctx, "migrations on start disabled")
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      cfg,
		DB:          db,
		RedisClient: rdb,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	return bootstrap.Serve(ctx, &bootstrap.ServiceOrchestrationConfig{
		Config:      cfg,
		Services:    services,
		DB:          db,
		RedisClient: rdb,
		Logger:      logger,
	})
}

func closeLogged(ctx context.Context, logger *slog.Logger, name string, closeFn func() error) {
	if err := closeFn(); err != nil {
		logger.ErrorContext(ctx, "close "+name, "error", err)
	}
}
