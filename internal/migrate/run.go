// Package migrate applies the embedded SQL schema in version order.
package migrate

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path"
	"slices"
	"strings"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// lockKey serialises concurrent migrators (web replicas and the admin CLI).
const lockKey int64 = 0x64686e6d // "dhnm"

// Versions lists the embedded migration versions in the order they apply.
func Versions() ([]string, error) {
	files, err := fs.Glob(migrationsFS, "migrations/*.sql")
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}
	versions := make([]string, 0, len(files))
	for _, f := range files {
		versions = append(versions, strings.TrimSuffix(path.Base(f), ".sql"))
	}
	slices.Sort(versions)
	return versions, nil
}

// Run applies pending migrations. It is safe to call repeatedly.
func Run(ctx context.Context, db *sql.DB) error {
	_, err := Apply(ctx, db, slog.Default())
	return err
}

// Apply runs every pending migration in its own transaction and returns the versions it applied.
func Apply(ctx context.Context, db *sql.DB, logger *slog.Logger) ([]string, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "migrations")

	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`); err != nil {
		return nil, fmt.Errorf("create schema_migrations table: %w", err)
	}

	versions, err := Versions()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, v := range versions {
		ran, err := applyOne(ctx, db, v, logger)
		if err != nil {
			return applied, err
		}
		if ran {
			applied = append(applied, v)
		}
	}
	return applied, nil
}

// applyOne takes a transaction-scoped advisory lock, then re-checks the version under it
// so two migrators never apply the same file.
func applyOne(ctx context.Context, db *sql.DB, version string, logger *slog.Logger) (ran bool, err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", version, err)
	}
	defer func() {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			logger.ErrorContext(ctx, "rollback migration", "version", version, "error", rbErr)
		}
	}()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, lockKey); err != nil {
		return false, fmt.Errorf("lock migrations: %w", err)
	}

	var done bool
	if err := tx.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, version,
	).Scan(&done); err != nil {
		return false, fmt.Errorf("check migration %s: %w", version, err)
	}
	if done {
		return false, nil
	}

	body, err := migrationsFS.ReadFile("migrations/" + version + ".sql")
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", version, err)
	}

	logger.InfoContext(ctx, "applying migration", "version", version)
	if _, err := tx.ExecContext(ctx, string(body)); err != nil {
		return false, fmt.Errorf("exec migration %s: %w", version, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return false, fmt.Errorf("record migration %s: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", version, err)
	}
	return true, nil
}
