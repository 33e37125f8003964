package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	ActionBypass          = "rls.bypass"
	ActionWebhookRejected = "webhook.rejected"
	ActionConfigSaved     = "webhook.config_saved"
	ActionAPIKeyRotated   = "webhook.api_key_rotated"
	ActionPasswordReset   = "account.password_reset"
	ActionRegistered      = "account.registered"
)

type Entry struct {
	ID           string                 `json:"id" db:"id"`
	TenantID     string                 `json:"tenant_id,omitempty" db:"tenant_id"`
	UserID       string                 `json:"user_id,omitempty" db:"user_id"`
	Action       string                 `json:"action" db:"action"`
	ResourceType string                 `json:"resource_type,omitempty" db:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty" db:"resource_id"`
	Metadata     map[string]interface{} `json:"metadata,omitempty" db:"-"`
	CreatedAt    time.Time              `json:"created_at" db:"created_at"`
}

// Logger writes audit entries to the structured log and, when a database is
// attached, persists them to audit_logs off the caller's goroutine.
type Logger struct {
	db  *sqlx.DB
	log zerolog.Logger
	wg  sync.WaitGroup
}

func NewLogger(db *sqlx.DB) *Logger {
	return &Logger{
		db:  db,
		log: log.With().Str("component", "audit").Bool("audit", true).Logger(),
	}
}

func (l *Logger) Log(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = "audit_" + uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}

	ev := l.log.Info().
		Str("audit_id", e.ID).
		Str("action", e.Action).
		Str("tenant_id", e.TenantID).
		Str("user_id", e.UserID).
		Str("resource_type", e.ResourceType).
		Str("resource_id", e.ResourceID)
	if len(e.Metadata) > 0 {
		ev = ev.Fields(e.Metadata)
	}
	ev.Time("at", e.CreatedAt).Msg("audit")

	if l.db == nil {
		return
	}

	metaJSON, _ := json.Marshal(e.Metadata)

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()

		// Detached from the request: the entry must land even if the caller's context ends.
		insertCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		query := `
			INSERT INTO audit_logs (id, tenant_id, user_id, action, resource_type, resource_id, metadata, created_at)
			VALUES ($1, NULLIF($2, ''), NULLIF($3, ''), $4, $5, $6, $7, $8)
		`
		if _, err := l.db.ExecContext(insertCtx, query, e.ID, e.TenantID, e.UserID, e.Action, e.ResourceType, e.ResourceID, string(metaJSON), e.CreatedAt); err != nil {
			l.log.Error().Err(err).Str("audit_id", e.ID).Msg("failed to persist audit entry")
		}
	}()
}

// Wait blocks until pending inserts finish.
func (l *Logger) Wait() {
	l.wg.Wait()
}
