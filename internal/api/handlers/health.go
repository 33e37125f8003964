package handlers

import (
	"context"
	"net/http"
	"time"

	"clubdesk/internal/engine/webhooks"
)

type Pinger interface {
	PingContext(ctx context.Context) error
}

type ListenerState interface {
	State() webhooks.State
}

type HealthHandler struct {
	db       Pinger
	listener ListenerState
}

func NewHealthHandler(db Pinger, listener ListenerState) *HealthHandler {
	return &HealthHandler{db: db, listener: listener}
}

func (h *HealthHandler) Check(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string)

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := "healthy"
	if err := h.db.PingContext(ctx); err != nil {
		checks["database"] = "unhealthy: " + err.Error()
		status = "degraded"
	} else {
		checks["database"] = "healthy"
	}

	// A stopped listener is an operator choice, not a failure.
	checks["webhook_listener"] = h.listener.State().String()

	response := struct {
		Status    string            `json:"status"`
		Timestamp int64             `json:"timestamp"`
		Checks    map[string]string `json:"checks"`
	}{
		Status:    status,
		Timestamp: time.Now().Unix(),
		Checks:    checks,
	}

	statusCode := http.StatusOK
	if status == "degraded" {
		statusCode = http.StatusServiceUnavailable
	}
	writeJSON(w, statusCode, response)
}
