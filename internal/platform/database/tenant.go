package database

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"path/filepath"
	"runtime"
	"time"

	"clubdesk/internal/platform/audit"
	apperrors "clubdesk/internal/pkg/errors"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Session variables read by the row-level-security policies.
const (
	VarTenantID  = "app.tenant_id"
	VarUserID    = "app.user_id"
	VarBypassRLS = "app.bypass_rls"
)

const setContextQuery = `SELECT set_config('app.tenant_id', $1, false), set_config('app.user_id', $2, false), set_config('app.bypass_rls', $3, false)`

// TenantContext scopes one unit of work to a school and the user acting in it.
type TenantContext struct {
	TenantID     uuid.UUID
	ActingUserID uuid.UUID
	BypassRLS    bool
}

func (tc TenantContext) Validate() error {
	if tc.BypassRLS {
		if tc.TenantID != uuid.Nil {
			return apperrors.TenantContext("validate", errors.New("bypass cannot be combined with a tenant id"))
		}
		return nil
	}
	if tc.TenantID == uuid.Nil {
		return apperrors.TenantContext("validate", errors.New("tenant id is required"))
	}
	if tc.ActingUserID == uuid.Nil {
		return apperrors.TenantContext("validate", errors.New("acting user id is required"))
	}
	return nil
}

func (tc TenantContext) values() (tenant, user, bypass string) {
	bypass = "off"
	if tc.BypassRLS {
		bypass = "on"
	}
	if tc.TenantID != uuid.Nil {
		tenant = tc.TenantID.String()
	}
	if tc.ActingUserID != uuid.Nil {
		user = tc.ActingUserID.String()
	}
	return tenant, user, bypass
}

// BypassPurpose names the only flows allowed to run without a tenant.
type BypassPurpose string

const (
	PurposePasswordReset BypassPurpose = "password_reset"
	PurposeRegistration  BypassPurpose = "registration"
)

func (p BypassPurpose) valid() bool {
	return p == PurposePasswordReset || p == PurposeRegistration
}

type Auditor interface {
	Log(ctx context.Context, e audit.Entry)
}

// Manager attaches a TenantContext to a connection for the duration of one unit of work.
type Manager struct {
	connector Connector
	auditor   Auditor
	executor  *Executor
	log       zerolog.Logger
}

func NewManager(connector Connector, auditor Auditor) *Manager {
	return &Manager{
		connector: connector,
		auditor:   auditor,
		executor:  NewExecutor(),
		log:       log.With().Str("component", "tenant_context").Logger(),
	}
}

// WithTenant runs fn on a connection scoped to tenantID and actingUserID and
// clears the scope before the connection goes back to the pool. A nil id fails
// before any connection is acquired.
func (m *Manager) WithTenant(ctx context.Context, tenantID, actingUserID uuid.UUID, fn func(*Session) error) error {
	tc := TenantContext{TenantID: tenantID, ActingUserID: actingUserID}
	if err := tc.Validate(); err != nil {
		return err
	}
	return m.run(ctx, tc, fn)
}

// WithBypass runs fn with row-level security disabled. Only credential
// recovery and initial registration may use it; every call is audited with
// its call site.
func (m *Manager) WithBypass(ctx context.Context, purpose BypassPurpose, fn func(*Session) error) error {
	return m.bypass(ctx, purpose, 2, fn)
}

// InTenant is WithTenant with a single unit of work inside it.
func (m *Manager) InTenant(ctx context.Context, tenantID, actingUserID uuid.UUID, op TxFunc) error {
	return m.WithTenant(ctx, tenantID, actingUserID, func(s *Session) error {
		return m.executor.Execute(ctx, s, op)
	})
}

// InBypass is WithBypass with a single unit of work inside it.
func (m *Manager) InBypass(ctx context.Context, purpose BypassPurpose, op TxFunc) error {
	return m.bypass(ctx, purpose, 2, func(s *Session) error {
		return m.executor.Execute(ctx, s, op)
	})
}

func (m *Manager) bypass(ctx context.Context, purpose BypassPurpose, skip int, fn func(*Session) error) error {
	if !purpose.valid() {
		return apperrors.TenantContext("bypass", fmt.Errorf("purpose %q is not allowed to bypass row-level security", purpose))
	}

	callSite := "unknown"
	if _, file, line, ok := runtime.Caller(skip); ok {
		callSite = fmt.Sprintf("%s/%s:%d", filepath.Base(filepath.Dir(file)), filepath.Base(file), line)
	}

	if m.auditor != nil {
		m.auditor.Log(ctx, audit.Entry{
			Action:       audit.ActionBypass,
			ResourceType: "session",
			ResourceID:   string(purpose),
			Metadata:     map[string]interface{}{"call_site": callSite},
			CreatedAt:    time.Now().UTC(),
		})
	}
	m.log.Warn().Str("purpose", string(purpose)).Str("call_site", callSite).Msg("row-level security bypass")

	return m.run(ctx, TenantContext{BypassRLS: true}, fn)
}

func (m *Manager) run(ctx context.Context, tc TenantContext, fn func(*Session) error) (err error) {
	conn, err := m.connector.Connx(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}

	if err := applyContext(ctx, conn, tc); err != nil {
		discard(conn)
		return apperrors.TenantContext("set session context", err)
	}

	defer func() {
		// The reset must run even if ctx was cancelled by fn's caller.
		if cerr := applyContext(context.WithoutCancel(ctx), conn, TenantContext{}); cerr != nil {
			m.log.Error().Err(cerr).Msg("failed to clear session context, discarding connection")
			discard(conn)
			if err == nil {
				err = apperrors.TenantContext("clear session context", cerr)
			}
			return
		}
		conn.Close()
	}()

	return fn(&Session{conn: conn, tenant: tc})
}

func applyContext(ctx context.Context, conn *sqlx.Conn, tc TenantContext) error {
	tenant, user, bypass := tc.values()
	_, err := conn.ExecContext(ctx, setContextQuery, tenant, user, bypass)
	return err
}

// discard closes the physical connection instead of returning it to the pool.
func discard(conn *sqlx.Conn) {
	_ = conn.Raw(func(any) error { return driver.ErrBadConn })
	_ = conn.Close()
}
