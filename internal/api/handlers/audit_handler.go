package handlers

import (
	"context"
	"net/http"
	"strconv"

	"clubdesk/internal/platform/audit"
	"clubdesk/internal/platform/database"
	"clubdesk/internal/platform/repositories"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const (
	defaultAuditLimit = 100
	maxAuditLimit     = 500
)

type TenantStore interface {
	InTenant(ctx context.Context, tenantID, actingUserID uuid.UUID, op database.TxFunc) error
}

type AuditHandler struct {
	store TenantStore
}

func NewAuditHandler(store TenantStore) *AuditHandler {
	return &AuditHandler{store: store}
}

func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	p, ok := principal(w, r)
	if !ok {
		return
	}

	limit := defaultAuditLimit
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 {
		limit = min(v, maxAuditLimit)
	}

	var entries []audit.Entry
	err := h.store.InTenant(r.Context(), p.TenantID, p.UserID, func(ctx context.Context, tx *sqlx.Tx) error {
		var err error
		entries, err = repositories.NewAuditRepository(tx).ListForTenant(ctx, limit)
		return err
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
