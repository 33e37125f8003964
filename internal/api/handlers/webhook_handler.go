package handlers

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"clubdesk/internal/api/middleware"
	"clubdesk/internal/engine/webhooks"
	apperrors "clubdesk/internal/pkg/errors"
	"clubdesk/internal/platform/audit"
	"clubdesk/internal/platform/settings"

	"github.com/rs/zerolog/log"
)

const listenerStopTimeout = 5 * time.Second

// WebhookSettings is implemented by *settings.Service.
type WebhookSettings interface {
	WebhookConfig() settings.WebhookConfig
	Update(ctx context.Context, fn func(*settings.WebhookConfig)) error
}

// WebhookListener is implemented by *webhooks.Listener.
type WebhookListener interface {
	Start(cfg settings.WebhookConfig) error
	Stop(ctx context.Context) error
	State() webhooks.State
	Status() webhooks.Status
	Events() []webhooks.Event
}

type WebhookRegistrar interface {
	Register(ctx context.Context, targetURL, callbackURL string) (*webhooks.Registration, error)
}

type Auditor interface {
	Log(ctx context.Context, e audit.Entry)
}

// WebhookHandler is the operator surface for the webhook listener and its
// persisted configuration.
type WebhookHandler struct {
	settings        WebhookSettings
	listener        WebhookListener
	registrar       WebhookRegistrar
	registrationURL string
	auditor         Auditor

	// lifecycle serialises start, stop and restart across admin requests.
	lifecycle sync.Mutex
}

func NewWebhookHandler(s WebhookSettings, l WebhookListener, r WebhookRegistrar, registrationURL string, a Auditor) *WebhookHandler {
	return &WebhookHandler{
		settings:        s,
		listener:        l,
		registrar:       r,
		registrationURL: registrationURL,
		auditor:         a,
	}
}

type webhookConfigView struct {
	ListenPort      int    `json:"listenPort"`
	WebhookPath     string `json:"webhookPath"`
	CallbackURL     string `json:"callbackUrl"`
	WebhooksEnabled bool   `json:"webhooksEnabled"`
	HMACEnabled     bool   `json:"hmacEnabled"`
	APIKeyPrefix    string `json:"apiKeyPrefix,omitempty"`
	HMACSecretSet   bool   `json:"hmacSecretSet"`
	RegistrationURL string `json:"registrationUrl,omitempty"`
}

func (h *WebhookHandler) view(cfg settings.WebhookConfig) webhookConfigView {
	v := webhookConfigView{
		ListenPort:      cfg.ListenPort,
		WebhookPath:     cfg.WebhookPath,
		CallbackURL:     cfg.CallbackURL,
		WebhooksEnabled: cfg.WebhooksEnabled,
		HMACEnabled:     cfg.HMACEnabled,
		HMACSecretSet:   cfg.HMACSecret != "",
		RegistrationURL: h.registrationURL,
	}
	if len(cfg.APIKey) > 6 {
		v.APIKeyPrefix = cfg.APIKey[:6] + "..."
	}
	return v
}

func (h *WebhookHandler) GetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.view(h.settings.WebhookConfig()))
}

type updateConfigRequest struct {
	ListenPort      *int    `json:"listenPort"`
	WebhookPath     *string `json:"webhookPath"`
	CallbackURL     *string `json:"callbackUrl"`
	HMACSecret      *string `json:"hmacSecret"`
	WebhooksEnabled *bool   `json:"webhooksEnabled"`
	HMACEnabled     *bool   `json:"hmacEnabled"`
}

func (req updateConfigRequest) apply(cfg *settings.WebhookConfig) {
	if req.ListenPort != nil {
		cfg.ListenPort = *req.ListenPort
	}
	if req.WebhookPath != nil {
		cfg.WebhookPath = *req.WebhookPath
	}
	if req.CallbackURL != nil {
		cfg.CallbackURL = *req.CallbackURL
	}
	if req.HMACSecret != nil {
		cfg.HMACSecret = *req.HMACSecret
	}
	if req.WebhooksEnabled != nil {
		cfg.WebhooksEnabled = *req.WebhooksEnabled
	}
	if req.HMACEnabled != nil {
		cfg.HMACEnabled = *req.HMACEnabled
	}
}

// UpdateConfig saves the fields present in the body. A running listener is
// restarted so the new values take effect. A failed save or restart leaves
// the previous config in place.
func (h *WebhookHandler) UpdateConfig(w http.ResponseWriter, r *http.Request) {
	var req updateConfigRequest
	if !decode(w, r, &req) {
		return
	}

	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	prev := h.settings.WebhookConfig()
	if err := h.settings.Update(r.Context(), req.apply); err != nil {
		fail(w, r, err)
		return
	}
	h.audit(r, audit.ActionConfigSaved, nil)

	if err := h.restartIfRunning(r.Context(), prev); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.view(h.settings.WebhookConfig()))
}

func (h *WebhookHandler) StartListener(w http.ResponseWriter, r *http.Request) {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	if err := h.listener.Start(h.settings.WebhookConfig()); err != nil {
		if errors.Is(err, webhooks.ErrAlreadyRunning) {
			err = apperrors.Conflict("start listener", err)
		}
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.listener.Status())
}

func (h *WebhookHandler) StopListener(w http.ResponseWriter, r *http.Request) {
	h.lifecycle.Lock()
	defer h.lifecycle.Unlock()

	ctx, cancel := context.WithTimeout(r.Context(), listenerStopTimeout)
	defer cancel()
	if err := h.listener.Stop(ctx); err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.listener.Status())
}

func (h *WebhookHandler) ListenerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.listener.Status())
}

func (h *WebhookHandler) Events(w http.ResponseWriter, r *http.Request) {
	events := h.listener.Events()
	if events == nil {
		events = []webhooks.Event{}
	}
	writeJSON(w, http.StatusOK, events)
}

type registerResponse struct {
	CallbackURL  string    `json:"callbackUrl"`
	RegisteredAt time.Time `json:"registeredAt"`
	SecretIssued bool      `json:"secretIssued"`
}

// Register announces the configured callback URL to the event source. A
// signing secret returned by the source replaces the stored one.
func (h *WebhookHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TargetURL string `json:"targetUrl"`
	}
	if r.ContentLength != 0 && !decode(w, r, &req) {
		return
	}
	target := req.TargetURL
	if target == "" {
		target = h.registrationURL
	}

	cfg := h.settings.WebhookConfig()
	if cfg.CallbackURL == "" {
		fail(w, r, apperrors.Configuration("register webhook", errors.New("callback url is not configured")))
		return
	}

	reg, err := h.registrar.Register(r.Context(), target, cfg.CallbackURL)
	if err != nil {
		fail(w, r, err)
		return
	}

	if reg.Secret != "" {
		h.lifecycle.Lock()
		defer h.lifecycle.Unlock()

		prev := h.settings.WebhookConfig()
		err := h.settings.Update(r.Context(), func(c *settings.WebhookConfig) { c.HMACSecret = reg.Secret })
		if err != nil {
			fail(w, r, err)
			return
		}
		h.audit(r, audit.ActionConfigSaved, map[string]interface{}{"source": "registration"})
		if err := h.restartIfRunning(r.Context(), prev); err != nil {
			fail(w, r, err)
			return
		}
	}

	writeJSON(w, http.StatusOK, registerResponse{
		CallbackURL:  reg.CallbackURL,
		RegisteredAt: reg.RegisteredAt,
		SecretIssued: reg.Secret != "",
	})
}

// restartIfRunning applies the saved config to a listening listener. If the
// new config disables webhooks the listener stays stopped. If the listener
// cannot start with it, prev is saved again and the listener is brought back
// up on prev before the start error is returned. Callers hold lifecycle.
func (h *WebhookHandler) restartIfRunning(ctx context.Context, prev settings.WebhookConfig) error {
	if h.listener.State() != webhooks.StateListening {
		return nil
	}

	stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), listenerStopTimeout)
	defer cancel()
	if err := h.listener.Stop(stopCtx); err != nil {
		return err
	}

	cfg := h.settings.WebhookConfig()
	if !cfg.WebhooksEnabled {
		return nil
	}
	startErr := h.listener.Start(cfg)
	if startErr == nil {
		return nil
	}

	logger := log.With().Str("component", "webhook_handler").Logger()
	logger.Warn().Err(startErr).Msg("listener failed to start with new config, reverting")
	restore := context.WithoutCancel(ctx)
	if err := h.settings.Update(restore, func(c *settings.WebhookConfig) { *c = prev }); err != nil {
		logger.Error().Err(err).Msg("failed to restore previous webhook config")
		return startErr
	}
	if err := h.listener.Start(prev); err != nil {
		logger.Error().Err(err).Msg("listener failed to start with previous config")
	}
	return startErr
}

func (h *WebhookHandler) audit(r *http.Request, action string, meta map[string]interface{}) {
	if h.auditor == nil {
		return
	}
	e := audit.Entry{Action: action, ResourceType: "webhook_config", Metadata: meta}
	if p, ok := middleware.PrincipalFrom(r.Context()); ok {
		e.TenantID = p.TenantID.String()
		e.UserID = p.UserID.String()
	}
	h.auditor.Log(r.Context(), e)
}
