// Package pgxutil lets repositories built on the shared *sql.DB pool drop down to a native
// pgx connection for row collection and transactions.
package pgxutil

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/stdlib"
)

var errNotPgx = errors.New("pool connection is not backed by pgx stdlib")

// WithConn pins one pooled connection for the duration of fn.
func WithConn(ctx context.Context, db *sql.DB, fn func(*pgx.Conn) error) error {
	sc, err := db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer func() { _ = sc.Close() }()

	return sc.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return errNotPgx
		}
		return fn(c.Conn())
	})
}

// WithTx runs fn inside a transaction that commits only when fn returns nil.
func WithTx(ctx context.Context, db *sql.DB, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	return WithConn(ctx, db, func(c *pgx.Conn) error {
		return pgx.BeginTxFunc(ctx, c, opts, fn)
	})
}

// IsUniqueViolation reports whether err came from a unique constraint, and if constraint
// is non-empty, from that one.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != pgerrcode.UniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
