package repositories

import (
	"context"
	"encoding/json"
	"time"

	"clubdesk/internal/platform/audit"

	"github.com/jmoiron/sqlx"
)

type AuditRepository struct {
	tx sqlx.ExtContext
}

func NewAuditRepository(tx sqlx.ExtContext) *AuditRepository {
	return &AuditRepository{tx: tx}
}

type auditRow struct {
	ID           string    `db:"id"`
	TenantID     string    `db:"tenant_id"`
	UserID       string    `db:"user_id"`
	Action       string    `db:"action"`
	ResourceType string    `db:"resource_type"`
	ResourceID   string    `db:"resource_id"`
	Metadata     []byte    `db:"metadata"`
	CreatedAt    time.Time `db:"created_at"`
}

// ListForTenant returns the newest entries of the session's school.
// audit_logs has no row policy of its own, so the tenant filter is explicit.
func (r *AuditRepository) ListForTenant(ctx context.Context, limit int) ([]audit.Entry, error) {
	var rows []auditRow
	err := sqlx.SelectContext(ctx, r.tx, &rows, `
		SELECT id, coalesce(tenant_id::text, '') AS tenant_id, coalesce(user_id::text, '') AS user_id,
		       action, resource_type, resource_id, metadata, created_at
		FROM audit_logs
		WHERE tenant_id = app_tenant()
		ORDER BY created_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, mapErr("audit_logs.list", err)
	}

	entries := make([]audit.Entry, 0, len(rows))
	for _, row := range rows {
		e := audit.Entry{
			ID:           row.ID,
			TenantID:     row.TenantID,
			UserID:       row.UserID,
			Action:       row.Action,
			ResourceType: row.ResourceType,
			ResourceID:   row.ResourceID,
			CreatedAt:    row.CreatedAt,
		}
		if len(row.Metadata) > 0 {
			_ = json.Unmarshal(row.Metadata, &e.Metadata)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
