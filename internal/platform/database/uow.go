package database

import (
	"context"
	"database/sql"
	"errors"
	"sync/atomic"

	apperrors "clubdesk/internal/pkg/errors"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TxFunc is the body of a unit of work.
type TxFunc func(ctx context.Context, tx *sqlx.Tx) error

// Session is a connection exclusively owned by one scoped unit of work.
type Session struct {
	conn   *sqlx.Conn
	tenant TenantContext
	inTx   atomic.Bool
}

// Tenant returns the context the session was scoped with.
func (s *Session) Tenant() TenantContext {
	return s.tenant
}

func (s *Session) Conn() *sqlx.Conn {
	return s.conn
}

// Executor wraps operations in a single transaction.
type Executor struct {
	log zerolog.Logger
}

func NewExecutor() *Executor {
	return &Executor{log: log.With().Str("component", "unit_of_work").Logger()}
}

// Execute commits when op returns nil and rolls back on error or panic. The
// connection is back in auto-commit mode when Execute returns. Calling Execute
// again on a session whose unit of work is still open panics.
func (e *Executor) Execute(ctx context.Context, s *Session, op TxFunc) (err error) {
	if !s.inTx.CompareAndSwap(false, true) {
		panic("database: nested unit of work on the same session")
	}
	defer s.inTx.Store(false)

	tx, err := s.conn.BeginTxx(ctx, nil)
	if err != nil {
		return apperrors.New(apperrors.ErrTransaction, "begin", err)
	}

	committed := false
	defer func() {
		if committed {
			return
		}
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			e.log.Error().Err(rbErr).Msg("rollback failed")
		}
	}()

	if err := op(ctx, tx); err != nil {
		return apperrors.New(apperrors.ErrTransaction, "execute", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.New(apperrors.ErrTransaction, "commit", err)
	}
	committed = true
	return nil
}
