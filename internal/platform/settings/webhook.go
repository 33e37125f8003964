package settings

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"unicode"

	apperrors "clubdesk/internal/pkg/errors"
)

const (
	DefaultListenPort  = 9001
	DefaultWebhookPath = "/webhook"
)

const (
	keyListenPort      = "webhook.listen_port"
	keyWebhookPath     = "webhook.path"
	keyCallbackURL     = "webhook.callback_url"
	keyAPIKey          = "webhook.api_key"
	keyHMACSecret      = "webhook.hmac_secret"
	keyWebhooksEnabled = "webhook.enabled"
	keyHMACEnabled     = "webhook.hmac_enabled"
)

// WebhookConfig is the persisted listener and registration configuration.
type WebhookConfig struct {
	ListenPort      int    `json:"listenPort"`
	WebhookPath     string `json:"webhookPath"`
	CallbackURL     string `json:"callbackUrl"`
	APIKey          string `json:"apiKey"`
	HMACSecret      string `json:"hmacSecret"`
	WebhooksEnabled bool   `json:"webhooksEnabled"`
	HMACEnabled     bool   `json:"hmacEnabled"`
}

func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		ListenPort:  DefaultListenPort,
		WebhookPath: DefaultWebhookPath,
		HMACEnabled: true,
	}
}

// Validate reports a configuration error for values the listener could not run with.
func (c WebhookConfig) Validate() error {
	if c.ListenPort < 1 || c.ListenPort > 65535 {
		return apperrors.Configuration("webhook config", fmt.Errorf("listen port %d out of range", c.ListenPort))
	}
	if !strings.HasPrefix(c.WebhookPath, "/") {
		return apperrors.Configuration("webhook config", fmt.Errorf("webhook path %q must start with /", c.WebhookPath))
	}
	if c.CallbackURL != "" {
		u, err := url.Parse(c.CallbackURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return apperrors.Configuration("webhook config", fmt.Errorf("callback url %q is not an http(s) url", c.CallbackURL))
		}
	}
	if c.HMACEnabled {
		if c.HMACSecret == "" {
			return apperrors.Configuration("webhook config", errors.New("hmac is enabled but no secret is set"))
		}
		if strings.IndexFunc(c.HMACSecret, func(r rune) bool { return unicode.IsSpace(r) || unicode.IsControl(r) }) >= 0 {
			return apperrors.Configuration("webhook config", errors.New("hmac secret contains whitespace or control characters"))
		}
	}
	return nil
}

func (c WebhookConfig) entries() []Entry {
	return []Entry{
		{Key: keyListenPort, Value: strconv.Itoa(c.ListenPort)},
		{Key: keyWebhookPath, Value: c.WebhookPath},
		{Key: keyCallbackURL, Value: c.CallbackURL},
		{Key: keyAPIKey, Value: c.APIKey, Secret: true},
		{Key: keyHMACSecret, Value: c.HMACSecret, Secret: true},
		{Key: keyWebhooksEnabled, Value: strconv.FormatBool(c.WebhooksEnabled)},
		{Key: keyHMACEnabled, Value: strconv.FormatBool(c.HMACEnabled)},
	}
}

func webhookConfigFrom(values map[string]string) (WebhookConfig, error) {
	cfg := DefaultWebhookConfig()

	if v, ok := values[keyListenPort]; ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return cfg, apperrors.Configuration("load webhook config", fmt.Errorf("listen port %q: %w", v, err))
		}
		cfg.ListenPort = port
	}
	if v, ok := values[keyWebhookPath]; ok && v != "" {
		cfg.WebhookPath = v
	}
	cfg.CallbackURL = values[keyCallbackURL]
	cfg.APIKey = values[keyAPIKey]
	cfg.HMACSecret = values[keyHMACSecret]
	if v, ok := values[keyWebhooksEnabled]; ok {
		cfg.WebhooksEnabled, _ = strconv.ParseBool(v)
	}
	if v, ok := values[keyHMACEnabled]; ok {
		cfg.HMACEnabled, _ = strconv.ParseBool(v)
	}
	return cfg, nil
}

// Service holds the process-wide webhook configuration. Reads are concurrent;
// writes go through Save, which persists every field in one transaction before
// the in-memory copy changes.
type Service struct {
	store *Store

	saveMu sync.Mutex
	mu     sync.RWMutex
	cfg    WebhookConfig
}

func NewService(ctx context.Context, store *Store) (*Service, error) {
	values, err := store.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("load preferences: %w", err)
	}
	cfg, err := webhookConfigFrom(values)
	if err != nil {
		return nil, err
	}
	return &Service{store: store, cfg: cfg}, nil
}

func (s *Service) WebhookConfig() WebhookConfig {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cfg
}

func (s *Service) APIKey() string {
	return s.WebhookConfig().APIKey
}

func (s *Service) HMACSecret() string {
	return s.WebhookConfig().HMACSecret
}

// Save validates and persists cfg. On any failure the previous values stand.
func (s *Service) Save(ctx context.Context, cfg WebhookConfig) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	return s.save(ctx, cfg)
}

func (s *Service) SetAPIKey(ctx context.Context, key string) error {
	return s.Update(ctx, func(cfg *WebhookConfig) { cfg.APIKey = key })
}

func (s *Service) SetHMACSecret(ctx context.Context, secret string) error {
	return s.Update(ctx, func(cfg *WebhookConfig) { cfg.HMACSecret = secret })
}

// Update applies fn to a copy of the current config and saves the result.
func (s *Service) Update(ctx context.Context, fn func(*WebhookConfig)) error {
	s.saveMu.Lock()
	defer s.saveMu.Unlock()

	cfg := s.WebhookConfig()
	fn(&cfg)
	return s.save(ctx, cfg)
}

func (s *Service) save(ctx context.Context, cfg WebhookConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := s.store.SetAll(ctx, cfg.entries()); err != nil {
		return fmt.Errorf("save webhook config: %w", err)
	}

	s.mu.Lock()
	s.cfg = cfg
	s.mu.Unlock()
	return nil
}
