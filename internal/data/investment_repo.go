package data

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dhanmatrix/dhanmatrix/internal/core"
	"github.com/dhanmatrix/dhanmatrix/internal/data/database"
	"github.com/dhanmatrix/dhanmatrix/internal/data/pgxutil"
	"github.com/dhanmatrix/dhanmatrix/internal/domain/model"
	apperrors "github.com/dhanmatrix/dhanmatrix/internal/errors"
)

const (
	defaultInvestmentLimit = 50
	maxInvestmentLimit     = 500
)

// InvestmentRepo provides database operations for investments.
type InvestmentRepo struct {
	DB           *sql.DB
	timeProvider TimeProvider
}

// NewInvestmentRepo creates a new InvestmentRepo with real time provider.
func NewInvestmentRepo(db *sql.DB) *InvestmentRepo {
	return &InvestmentRepo{DB: db, timeProvider: RealTimeProvider{}}
}

// NewInvestmentRepoWithTimeProvider creates a new InvestmentRepo with a custom time provider (useful for tests).
func NewInvestmentRepoWithTimeProvider(db *sql.DB, tp TimeProvider) *InvestmentRepo {
	return &InvestmentRepo{DB: db, timeProvider: tp}
}

const (
	investmentReturning = ` RETURNING id, user_id, user_email, deposit_amount, withdrawal_date, status,
		projected_return, created_at, updated_at`

	investmentGetByIDQuery = `
		SELECT id, user_id, user_email, deposit_amount, withdrawal_date, status,
		       projected_return, created_at, updated_at
		FROM investments
		WHERE id = $1`
)

func investmentColumns() []string {
	return []string{
		"id",
		"user_id",
		"user_email",
		"deposit_amount",
		"withdrawal_date",
		"status",
		"projected_return",
		"created_at",
		"updated_at",
	}
}

// Create validates and inserts a new investment, computing its projected return.
func (r *InvestmentRepo) Create(
	ctx context.Context,
	req *model.CreateInvestmentRequest,
) (*model.Investment, error) {
	if req == nil {
		return nil, errors.New("create investment request is required")
	}
	now := r.timeProvider.Now().UTC()
	if err := req.Validate(now); err != nil {
		return nil, err
	}

	var out model.Investment
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, `
			INSERT INTO investments (
				id, user_id, user_email, deposit_amount, withdrawal_date, status, projected_return, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)`+investmentReturning,
			uuid.NewString(),
			req.UserID,
			strings.ToLower(strings.TrimSpace(req.UserEmail)),
			req.DepositAmount,
			req.WithdrawalDate.UTC(),
			req.Status,
			model.ProjectedReturnFor(req.DepositAmount),
			now,
		)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Investment])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create investment: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

// GetByID returns the investment or ErrInvestmentNotFound. Malformed IDs are treated as missing.
func (r *InvestmentRepo) GetByID(ctx context.Context, id string) (*model.Investment, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvestmentNotFound
	}
	var out model.Investment
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, investmentGetByIDQuery, id)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Investment])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvestmentNotFound
		}
		return nil, fmt.Errorf("failed to get investment: %w", err)
	}
	return &out, nil
}

// List returns investments newest first, optionally scoped to one user and status.
func (r *InvestmentRepo) List(
	ctx context.Context,
	opts core.InvestmentListOptions,
) ([]*model.Investment, error) {
	query, args := investmentListQuery(opts).SQL()

	var rowsOut []model.Investment
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		rowsOut, err = pgx.CollectRows(rows, pgx.RowToStructByName[model.Investment])
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list investments: %w", err)
	}
	res := make([]*model.Investment, len(rowsOut))
	for i := range rowsOut {
		res[i] = &rowsOut[i]
	}
	return res, nil
}

// investmentListQuery is newest first, clamped to maxInvestmentLimit rows.
func investmentListQuery(opts core.InvestmentListOptions) *database.Query {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultInvestmentLimit
	}
	q := database.From("investments").
		Columns(investmentColumns()...).
		OrderBy("created_at", true).
		Page(min(limit, maxInvestmentLimit), max(opts.Offset, 0))
	if uid := strings.TrimSpace(opts.UserID); uid != "" {
		q.Where("user_id", database.Eq, uid)
	}
	if opts.Status != nil {
		q.Where("status", database.Eq, string(*opts.Status))
	}
	return q
}

// Update applies an admin edit. A changed deposit recomputes the projected return.
func (r *InvestmentRepo) Update(
	ctx context.Context,
	id string,
	req model.UpdateInvestmentRequest,
) (*model.Investment, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrInvestmentNotFound
	}

	setClause, args := r.buildUpdateClause(req)
	args = append(args, id)
	query := "UPDATE investments SET " + setClause +
		" WHERE id = $" + strconv.Itoa(len(args)) + investmentReturning

	var out model.Investment
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		rows, err := conn.Query(ctx, query, args...)
		if err != nil {
			return err
		}
		defer rows.Close()
		out, err = pgx.CollectOneRow(rows, pgx.RowToStructByName[model.Investment])
		return err
	})
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrInvestmentNotFound
		}
		return nil, fmt.Errorf("failed to update investment: %w", apperrors.MapDBError(err))
	}
	return &out, nil
}

func (r *InvestmentRepo) buildUpdateClause(req model.UpdateInvestmentRequest) (string, []any) {
	setParts := make([]string, 0, 5)
	args := make([]any, 0, 6)
	nextIdx := func() int { return len(args) + 1 }

	if req.DepositAmount != nil {
		setParts = append(setParts, fmt.Sprintf("deposit_amount = $%d", nextIdx()))
		args = append(args, *req.DepositAmount)
		setParts = append(setParts, fmt.Sprintf("projected_return = $%d", nextIdx()))
		args = append(args, model.ProjectedReturnFor(*req.DepositAmount))
	}
	if req.WithdrawalDate != nil {
		setParts = append(setParts, fmt.Sprintf("withdrawal_date = $%d", nextIdx()))
		args = append(args, req.WithdrawalDate.UTC())
	}
	if req.Status != nil {
		setParts = append(setParts, fmt.Sprintf("status = $%d", nextIdx()))
		args = append(args, string(*req.Status))
	}
	setParts = append(setParts, fmt.Sprintf("updated_at = $%d", nextIdx()))
	args = append(args, r.timeProvider.Now().UTC())

	return strings.Join(setParts, ", "), args
}

// Delete removes an investment, reporting whether it existed.
func (r *InvestmentRepo) Delete(ctx context.Context, id string) (bool, error) {
	if _, err := uuid.Parse(id); err != nil {
		return false, nil
	}
	var affected int64
	err := pgxutil.WithConn(ctx, r.DB, func(conn *pgx.Conn) error {
		ct, err := conn.Exec(ctx, `DELETE FROM investments WHERE id = $1`, id)
		if err != nil {
			return err
		}
		affected = ct.RowsAffected()
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete investment: %w", err)
	}
	return affected > 0, nil
}
