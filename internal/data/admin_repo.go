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

// AdminRepo stores admin memberships. A row's existence is the grant.
type AdminRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewAdminRepo creates a new AdminRepo with real time provider.
func NewAdminRepo(db *sql.DB) *AdminRepo {
	return &AdminRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewAdminRepoWithTimeProvider creates a new AdminRepo with a custom time provider (useful for tests).
func NewAdminRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *AdminRepo {
	return &AdminRepo{DB: db, timeProvider: tp}
}

const (
	adminColumns = `user_id, email, promoted_at, promoted_by`

	adminGetQuery = `SELECT ` + adminColumns + ` FROM admins WHERE user_id = $1`

	adminListQuery = `SELECT ` + adminColumns + ` FROM admins ORDER BY promoted_at ASC, user_id ASC`

	// Re-promoting keeps the original promotion stamp; only the email is refreshed.
	adminUpsertQuery = `
		INSERT INTO admins (user_id, email, promoted_at, promoted_by)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (user_id) DO UPDATE SET email = EXCLUDED.email
		RETURNING ` + adminColumns
)

// Get returns the membership for userID or ErrAdminNotFound.
func (r *AdminRepo) Get(ctx context.Context, userID string) (*model.AdminMembership, error) {
	var out model.AdminMembership
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, adminGetQuery, userID)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.AdminMembership])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAdminNotFound
		}
		return nil, fmt.Errorf("failed to get admin: %w", err)
	}
	return &out, nil
}

// Upsert grants the admin role. PromotedAt defaults to now.
func (r *AdminRepo) Upsert(ctx context.Context, m *model.AdminMembership) (*model.AdminMembership, error) {
	if m == nil || strings.TrimSpace(m.UserID) == "" {
		return nil, errors.New("admin membership requires a user id")
	}
	promotedAt := m.PromotedAt
	if promotedAt.IsZero() {
		promotedAt = r.timeProvider.Now()
	}

	var out model.AdminMembership
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, adminUpsertQuery,
			m.UserID,
			strings.ToLower(strings.TrimSpace(m.Email)),
			promotedAt.UTC(),
			m.PromotedBy,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.AdminMembership])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upsert admin: %w", err)
	}
	return &out, nil
}

// Delete revokes the admin role, reporting whether a membership existed.
func (r *AdminRepo) Delete(ctx context.Context, userID string) (bool, error) {
	var affected int64
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM admins WHERE user_id = $1`, userID)
		if err != nil {
			return err
		}
		affected = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete admin: %w", err)
	}
	return affected > 0, nil
}

// List returns every membership, oldest promotion first.
func (r *AdminRepo) List(ctx context.Context) ([]*model.AdminMembership, error) {
	var rowsOut []model.AdminMembership
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, adminListQuery)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.AdminMembership])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list admins: %w", err)
	}
	res := make([]*model.AdminMembership, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}
