// Package testutil provides Postgres and Redis fixtures for dhanmatrix integration tests.
// Tests that need infrastructure skip themselves when it is unreachable unless
// TEST_REQUIRE_DB, TEST_REQUIRE_REDIS or TEST_REQUIRE_INFRA is set.
package testutil

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"net"
	"net/url"
	"os"
	"strings"
	"time"

	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dhanmatrix/dhanmatrix/internal/migrate"
)

// TestingTB is an interface that covers both *testing.T and *testing.B.
type TestingTB interface {
	Helper()
	Skip(args ...any)
	Skipf(format string, args ...any)
	Fatal(args ...any)
	Fatalf(format string, args ...any)
	Logf(format string, args ...any)
	Cleanup(func())
}

// TestDBConfig holds configuration for test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig reads TEST_DB_* and falls back to the docker-compose test profile
// on port 55432. CI sets TEST_DB_PORT=5432.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "dhanmatrix"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "dhanmatrix"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "dhanmatrix"),
	}
}

// DSN renders the config as a pgx connection URL. searchPath is optional.
func (c TestDBConfig) DSN(searchPath string) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, c.Port),
		Path:   "/" + c.DBName,
	}
	q := url.Values{}
	q.Set("sslmode", getEnvOrDefault("DB_SSL_MODE", "disable"))
	if searchPath != "" {
		q.Set("search_path", searchPath)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// TestTime returns a fixed time for testing.
func TestTime() time.Time {
	return time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
}

// WithTestDB runs fn against the shared test database after migrating and wiping it.
func WithTestDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	db := openTestDB(t, "")
	wipe(t, db)
	t.Cleanup(func() {
		wipe(t, db)
		closeAndLog(t, "test DB", db)
	})
	fn(db)
}

// WithAutoDB runs fn in a throwaway schema when TEST_DB_EPHEMERAL is truthy and in the
// shared database otherwise.
func WithAutoDB(t TestingTB, fn func(*sql.DB)) {
	t.Helper()
	if !envBool("TEST_DB_EPHEMERAL") {
		WithTestDB(t, fn)
		return
	}

	admin := openTestDB(t, "")
	schema := schemaName()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := admin.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+schema); err != nil {
		closeAndLog(t, "admin DB", admin)
		t.Fatalf("create schema %s: %v", schema, err)
	}
	t.Logf("Using ephemeral schema: %s", schema)

	db := openTestDB(t, schema+",public")
	t.Cleanup(func() {
		closeAndLog(t, "schema DB", db)
		dropCtx, dropCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer dropCancel()
		if _, err := admin.ExecContext(dropCtx, "DROP SCHEMA IF EXISTS "+schema+" CASCADE"); err != nil {
			t.Logf("warning: drop schema %s: %v", schema, err)
		}
		closeAndLog(t, "admin DB", admin)
	})
	fn(db)
}

// openTestDB connects, pings and migrates. It skips the test when Postgres is unreachable.
func openTestDB(t TestingTB, searchPath string) *sql.DB {
	t.Helper()
	db, err := sql.Open("pgx", DefaultTestDBConfig().DSN(searchPath))
	if err != nil {
		skipOrFail(t, requireDB(), "Test database not available:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		closeAndLog(t, "test DB", db)
		skipOrFail(t, requireDB(), "Test database not available:", err)
	}
	if err := migrate.Run(ctx, db); err != nil {
		closeAndLog(t, "test DB", db)
		t.Fatal("Failed to run migrations:", err)
	}
	return db
}

// wipe deletes rows children first: investments and credentials reference users.
func wipe(t TestingTB, db *sql.DB) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for _, table := range []string{"investments", "user_credentials", "admins", "users"} {
		if _, err := db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			t.Fatalf("Failed to clean up table %s: %v", table, err)
		}
	}
}

func schemaName() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("t_%d", time.Now().UnixNano())
	}
	return "t_" + hex.EncodeToString(b)
}

func skipOrFail(t TestingTB, required bool, args ...any) {
	t.Helper()
	if required {
		t.Fatal(args...)
	}
	t.Skip(args...)
}

func closeAndLog(t TestingTB, name string, closer interface{ Close() error }) {
	if err := closer.Close(); err != nil {
		t.Logf("warning: failed to close %s: %v", name, err)
	}
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func envBool(key string) bool {
	switch strings.ToLower(os.Getenv(key)) {
	case "1", "true", "yes", "y":
		return true
	}
	return false
}

func requireDB() bool    { return envBool("TEST_REQUIRE_DB") || envBool("TEST_REQUIRE_INFRA") }
func requireRedis() bool { return envBool("TEST_REQUIRE_REDIS") || envBool("TEST_REQUIRE_INFRA") }
