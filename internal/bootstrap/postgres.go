package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	// Registers the "pgx" database/sql driver.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dhanmatrix/dhanmatrix/config"
	"github.com/dhanmatrix/dhanmatrix/internal/migrate"
)

const connectTimeout = 5 * time.Second

// DatabaseConfig contains configuration for database connections.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

func (c DatabaseConfig) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// ConnectDB opens the pool and pings Postgres before returning it.
func ConnectDB(ctx context.Context, cfg DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("pgx", cfg.DBConfig.DSN())
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	applyPoolLimits(db, cfg.DBConfig)

	pingCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, closeAfter(fmt.Errorf("ping database: %w", err), db.Close)
	}

	cfg.logger().InfoContext(ctx, "database connected", "target", cfg.DBConfig.Target())
	return db, nil
}

func applyPoolLimits(db *sql.DB, cfg config.DBConfig) {
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}

// RunMigrations applies the embedded users, admins, user_credentials and investments schema.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	applied, err := migrate.Apply(ctx, db, logger)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.InfoContext(ctx, "database migrations completed", "applied", applied)
	return nil
}

// closeAfter joins a close failure onto err.
func closeAfter(err error, closeFn func() error) error {
	if cerr := closeFn(); cerr != nil {
		return errors.Join(err, fmt.Errorf("close: %w", cerr))
	}
	return err
}
