package errors

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// "Key (email)=(a@b.c) already exists."
	reKeyField = regexp.MustCompile(`Key \(([^)]+)\)=`)
	// "... is still referenced from table "investments"." or "... is not present in table "users"."
	reFKTable = regexp.MustCompile(`is (still referenced from|not present in) table "?([^"]+)"?`)
)

// tableNouns names each table the way messages refer to it.
var tableNouns = map[string]string{
	"users":            "user",
	"admins":           "admin membership",
	"user_credentials": "sign-in credential",
	"investments":      "investment",
}

// MapDBError converts context, connectivity, no-rows and constraint failures into
// AppErrors. Anything else is returned unchanged.
func MapDBError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "Request timed out. Please try again.")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "Request was canceled.")
	case errors.Is(err, pgx.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "Resource not found")
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return Network(err, "Database is unreachable. Please try again.")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return mapPgError(pgErr)
	}
	return err
}

func mapPgError(pgErr *pgconn.PgError) *AppError {
	out := &AppError{Cause: pgErr, Field: pgErr.ColumnName}
	switch pgErr.Code {
	case pgerrcode.UniqueViolation:
		out.Code = ErrCodeConflict
		out.Message = "This value already exists. Please choose a different one."
		if out.Field == "" {
			out.Field = uniqueField(pgErr)
		}
	case pgerrcode.ForeignKeyViolation:
		out.Code = ErrCodeForeignKey
		out.Message = foreignKeyMessage(pgErr)
	case pgerrcode.CheckViolation:
		out.Code = ErrCodeValidation
		out.Message = "Invalid data. Please check your input."
		if out.Field == "" {
			out.Field = checkField(pgErr.ConstraintName)
		}
		if out.Field != "" {
			out.Message = "This field has an invalid value."
		}
	case pgerrcode.NotNullViolation:
		out.Code = ErrCodeValidation
		out.Message = "Required field is missing. Please check your input."
		if out.Field != "" {
			out.Message = "This field is required."
		}
	case pgerrcode.InsufficientPrivilege:
		out.Code = ErrCodePermissionDenied
		out.Message = "Missing or insufficient permissions."
	default:
		out.Code = ErrCodeInternal
		out.Message = "A database error occurred. Please try again."
		out.Field = ""
	}
	return out
}

// uniqueField reads the column from the violation detail, then from a
// "<table>_<column>_key" constraint name.
func uniqueField(pgErr *pgconn.PgError) string {
	if m := reKeyField.FindStringSubmatch(pgErr.Detail); m != nil && !strings.Contains(m[1], ",") {
		return m[1]
	}
	return columnFromConstraint(pgErr.TableName, pgErr.ConstraintName, "_key")
}

// checkField reads the column from a Postgres-generated "<table>_<column>_check" name.
func checkField(constraint string) string {
	for table := range tableNouns {
		if col := columnFromConstraint(table, constraint, "_check"); col != "" {
			return col
		}
	}
	return ""
}

func columnFromConstraint(table, constraint, suffix string) string {
	if table == "" || !strings.HasPrefix(constraint, table+"_") || !strings.HasSuffix(constraint, suffix) {
		return ""
	}
	return strings.TrimSuffix(strings.TrimPrefix(constraint, table+"_"), suffix)
}

func foreignKeyMessage(pgErr *pgconn.PgError) string {
	if m := reFKTable.FindStringSubmatch(pgErr.Detail); m != nil {
		noun := tableNoun(m[2])
		if m[1] == "still referenced from" {
			return "Cannot delete because " + noun + " records still reference it."
		}
		return "Cannot complete operation because the referenced " + noun + " does not exist."
	}
	if pgErr.TableName != "" {
		return "Cannot complete operation because the referenced " + tableNoun(pgErr.TableName) + " is missing."
	}
	return "Cannot complete operation because this item is in use."
}

func tableNoun(table string) string {
	table = strings.ToLower(strings.TrimSpace(table))
	if noun, ok := tableNouns[table]; ok {
		return noun
	}
	return strings.ReplaceAll(table, "_", " ")
}
