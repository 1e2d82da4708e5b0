package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dhanmatrix/dhanmatrix/internal/core"
	"github.com/dhanmatrix/dhanmatrix/internal/data/pgxutil"
)

// CredentialRepo stores password hashes for email sign-in.
type CredentialRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewCredentialRepo creates a new CredentialRepo with real time provider.
func NewCredentialRepo(db *sql.DB) *CredentialRepo {
	return &CredentialRepo{DB: db, timeProvider: RealTimeProvider{}}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// GetByEmail returns the credential for email or ErrCredentialNotFound.
func (r *CredentialRepo) GetByEmail(ctx context.Context, email string) (*core.CredentialRecord, error) {
	var out core.CredentialRecord
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx,
			`SELECT user_id, email, password_hash FROM user_credentials WHERE email = $1`,
			normalizeEmail(email),
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[core.CredentialRecord])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCredentialNotFound
		}
		return nil, fmt.Errorf("failed to get credential: %w", err)
	}
	return &out, nil
}

// Create enrolls a credential together with its user row in one transaction.
// A duplicate email returns ErrEmailTaken.
func (r *CredentialRepo) Create(ctx context.Context, rec core.CredentialRecord) error {
	if rec.UserID == "" || len(rec.PasswordHash) == 0 {
		return errors.New("credential requires a user id and hash")
	}
	email := normalizeEmail(rec.Email)
	now := r.timeProvider.Now().UTC()

	err := pgxutil.WithTx(ctx, r.DB, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO users (user_id, email, display_name, created_at, updated_at)
			VALUES ($1, $2, '', $3, $3)
			ON CONFLICT (user_id) DO NOTHING`, rec.UserID, email, now); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO user_credentials (user_id, email, password_hash, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $4)`, rec.UserID, email, rec.PasswordHash, now)
		return err
	})
	if err != nil {
		if pgxutil.IsUniqueViolation(err, "") {
			return ErrEmailTaken
		}
		return fmt.Errorf("failed to create credential: %w", err)
	}
	return nil
}

// UpdateHash replaces the stored hash for userID.
func (r *CredentialRepo) UpdateHash(ctx context.Context, userID string, hash []byte) error {
	var affected int64
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx,
			`UPDATE user_credentials SET password_hash = $1, updated_at = $2 WHERE user_id = $3`,
			hash, r.timeProvider.Now().UTC(), userID,
		)
		if err != nil {
			return err
		}
		affected = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to update credential: %w", err)
	}
	if affected == 0 {
		return ErrCredentialNotFound
	}
	return nil
}
