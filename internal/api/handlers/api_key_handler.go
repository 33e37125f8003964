package handlers

import (
	"net/http"

	"clubdesk/internal/engine/webhooks"
	"clubdesk/internal/platform/audit"
	"clubdesk/internal/platform/settings"
)

type rotateKeyRequest struct {
	RotateHMACSecret bool `json:"rotateHmacSecret"`
}

type rotateKeyResponse struct {
	APIKey     string `json:"apiKey"`
	HMACSecret string `json:"hmacSecret,omitempty"`
}

// RotateAPIKey replaces the API key, and optionally the HMAC secret, in one
// save. A secret is also issued when none is stored yet. The new values are
// returned once and never shown again.
func (h *WebhookHandler) RotateAPIKey(w http.ResponseWriter, r *http.Request) {
	var req rotateKeyRequest
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}

	var resp rotateKeyResponse
	var err error
	if resp.APIKey, err = webhooks.GenerateAPIKey(); err != nil {
		fail(w, r, err)
		return
	}
	rotateSecret := req.RotateHMACSecret || h.settings.WebhookConfig().HMACSecret == ""
	if rotateSecret {
		if resp.HMACSecret, err = webhooks.GenerateAPIKey(); err != nil {
			fail(w, r, err)
			return
		}
	}

	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	prev := h.settings.WebhookConfig()
	err = h.settings.Update(r.Context(), func(cfg *settings.WebhookConfig) {
		cfg.APIKey = resp.APIKey
		if resp.HMACSecret != "" {
			cfg.HMACSecret = resp.HMACSecret
		}
	})
	if err != nil {
		fail(w, r, err)
		return
	}
	h.audit(r, audit.ActionAPIKeyRotated, map[string]interface{}{"hmac_rotated": rotateSecret})

	if rotateSecret {
		if err := h.restartIfRunning(r.Context(), prev); err != nil {
			fail(w, r, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
