package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/dhanmatrix/dhanmatrix/internal/data/pgxutil"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
)

// UserRepo stores user profiles keyed by the identity provider's user ID.
type UserRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewUserRepo creates a new UserRepo with real time provider.
func NewUserRepo(db *sql.DB) *UserRepo {
	return &UserRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewUserRepoWithTimeProvider creates a new UserRepo with a custom time provider (useful for tests).
func NewUserRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *UserRepo {
	return &UserRepo{DB: db, timeProvider: tp}
}

const (
	userColumns = `user_id, email, display_name, created_at`

	userGetQuery = `SELECT ` + userColumns + ` FROM users WHERE user_id = $1`

	userGetByEmailQuery = `
		SELECT ` + userColumns + `
		FROM users
		WHERE lower(email) = lower($1)
		ORDER BY created_at ASC
		LIMIT 1`

	// An empty display name never overwrites a stored one.
	userUpsertQuery = `
		INSERT INTO users (user_id, email, display_name, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		ON CONFLICT (user_id) DO UPDATE SET
			email = EXCLUDED.email,
			display_name = COALESCE(NULLIF(EXCLUDED.display_name, ''), users.display_name),
			updated_at = EXCLUDED.updated_at
		RETURNING ` + userColumns
)

// Get returns the profile for userID or ErrUserNotFound.
func (r *UserRepo) Get(ctx context.Context, userID string) (*model.UserProfile, error) {
	return r.getOne(ctx, userGetQuery, userID)
}

// GetByEmail looks a profile up case-insensitively.
func (r *UserRepo) GetByEmail(ctx context.Context, email string) (*model.UserProfile, error) {
	return r.getOne(ctx, userGetByEmailQuery, strings.TrimSpace(email))
}

// Upsert writes the profile, keeping created_at from the first write.
func (r *UserRepo) Upsert(ctx context.Context, p *model.UserProfile) (*model.UserProfile, error) {
	if p == nil || strings.TrimSpace(p.UserID) == "" {
		return nil, errors.New("user profile requires a user id")
	}
	now := r.timeProvider.Now().UTC()

	var out model.UserProfile
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, userUpsertQuery,
			p.UserID,
			strings.ToLower(strings.TrimSpace(p.Email)),
			strings.TrimSpace(p.DisplayName),
			now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.UserProfile])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return &out, nil
}

func (r *UserRepo) getOne(ctx context.Context, q string, args ...any) (*model.UserProfile, error) {
	var out model.UserProfile
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, q, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.UserProfile])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return &out, nil
}
