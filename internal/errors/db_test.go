package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapDBError_NonPostgres(t *testing.T) {
	plain := errors.New("boom")
	tests := []struct {
		name     string
		err      error
		wantCode ErrorCode
	}{
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), wantCode: ErrCodeTimeout},
		{name: "canceled", err: context.Canceled, wantCode: ErrCodeCanceled},
		{name: "no rows", err: pgx.ErrNoRows, wantCode: ErrCodeNotFound},
		{name: "connect", err: &pgconn.ConnectError{Config: &pgconn.Config{}}, wantCode: ErrCodeNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapDBError(tt.err)
			assert.Equal(t, tt.wantCode, GetCode(mapped))
			assert.ErrorIs(t, mapped, tt.err)
		})
	}

	require.NoError(t, MapDBError(nil))
	assert.Same(t, plain, MapDBError(plain))
}

func TestMapDBError_Postgres(t *testing.T) {
	tests := []struct {
		name      string
		pgErr     *pgconn.PgError
		wantCode  ErrorCode
		wantField string
		wantMsg   string
	}{
		{
			name: "unique on credential email from detail",
			pgErr: &pgconn.PgError{
				Code:           pgerrcode.UniqueViolation,
				TableName:      "user_credentials",
				ConstraintName: "user_credentials_email_key",
				Detail:         "Key (email)=(priya@example.com) already exists.",
			},
			wantCode:  ErrCodeConflict,
			wantField: "email",
		},
		{
			name:      "unique from constraint name",
			pgErr:     &pgconn.PgError{Code: pgerrcode.UniqueViolation, TableName: "user_credentials", ConstraintName: "user_credentials_email_key"},
			wantCode:  ErrCodeConflict,
			wantField: "email",
		},
		{
			name:     "multi-column unique leaves field blank",
			pgErr:    &pgconn.PgError{Code: pgerrcode.UniqueViolation, Detail: "Key (user_id, email)=(u1, a@b.c) already exists."},
			wantCode: ErrCodeConflict,
		},
		{
			name:      "deposit check",
			pgErr:     &pgconn.PgError{Code: pgerrcode.CheckViolation, TableName: "investments", ConstraintName: "investments_deposit_amount_check"},
			wantCode:  ErrCodeValidation,
			wantField: "deposit_amount",
			wantMsg:   "This field has an invalid value.",
		},
		{
			name:     "anonymous check",
			pgErr:    &pgconn.PgError{Code: pgerrcode.CheckViolation, ConstraintName: "positive"},
			wantCode: ErrCodeValidation,
			wantMsg:  "Invalid data. Please check your input.",
		},
		{
			name:      "not null with column",
			pgErr:     &pgconn.PgError{Code: pgerrcode.NotNullViolation, ColumnName: "user_email"},
			wantCode:  ErrCodeValidation,
			wantField: "user_email",
			wantMsg:   "This field is required.",
		},
		{
			name:     "credential without user",
			pgErr:    &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Detail: `Key (user_id)=(u9) is not present in table "users".`},
			wantCode: ErrCodeForeignKey,
			wantMsg:  "Cannot complete operation because the referenced user does not exist.",
		},
		{
			name:     "user still referenced",
			pgErr:    &pgconn.PgError{Code: pgerrcode.ForeignKeyViolation, Detail: `Key (user_id)=(u1) is still referenced from table "user_credentials".`},
			wantCode: ErrCodeForeignKey,
			wantMsg:  "Cannot delete because sign-in credential records still reference it.",
		},
		{
			name:     "insufficient privilege",
			pgErr:    &pgconn.PgError{Code: pgerrcode.InsufficientPrivilege},
			wantCode: ErrCodePermissionDenied,
		},
		{
			name:     "anything else is internal",
			pgErr:    &pgconn.PgError{Code: pgerrcode.DeadlockDetected, ColumnName: "status"},
			wantCode: ErrCodeInternal,
			wantMsg:  "A database error occurred. Please try again.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mapped := MapDBError(fmt.Errorf("exec: %w", tt.pgErr))
			assert.Equal(t, tt.wantCode, GetCode(mapped))
			assert.Equal(t, tt.wantField, GetField(mapped))
			if tt.wantMsg != "" {
				var appErr *AppError
				require.ErrorAs(t, mapped, &appErr)
				assert.Equal(t, tt.wantMsg, appErr.Message)
			}
			var pgErr *pgconn.PgError
			assert.ErrorAs(t, mapped, &pgErr, "the driver error stays reachable")
		})
	}
}

func TestTableNoun(t *testing.T) {
	assert.Equal(t, "admin membership", tableNoun(" ADMINS "))
	assert.Equal(t, "audit log", tableNoun("audit_log"))
}
