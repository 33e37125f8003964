// Package repositories holds the SQL for each table. Every repository is bound
// to the transaction of one unit of work; tenant scoping comes from the
// session's row level security context, not from WHERE clauses here.
package repositories

import (
	"context"
	"database/sql"
	"errors"

	apperrors "clubdesk/internal/pkg/errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

const (
	uniqueViolation     = "23505"
	foreignKeyViolation = "23503"
	checkViolation      = "23514"
)

// mapErr turns driver errors the caller can act on into typed errors.
func mapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return apperrors.NotFound(op)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case uniqueViolation:
			return apperrors.Conflict(op, err)
		case foreignKeyViolation:
			return apperrors.NotFound(op)
		case checkViolation:
			return apperrors.InvalidInput(op, err)
		}
	}
	return err
}

func expectOne(op string, res sql.Result, err error) error {
	if err != nil {
		return mapErr(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return apperrors.NotFound(op)
	}
	return nil
}

func get(ctx context.Context, q sqlx.QueryerContext, op string, dest interface{}, query string, args ...interface{}) error {
	return mapErr(op, sqlx.GetContext(ctx, q, dest, query, args...))
}

func isNotFound(err error) bool {
	return errors.Is(err, apperrors.ErrNotFound)
}
