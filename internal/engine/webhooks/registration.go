package webhooks

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	apperrors "clubdesk/internal/pkg/errors"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const apiKeyBytes = 32

// GenerateAPIKey returns 256 random bits, base64url encoded without padding.
func GenerateAPIKey() (string, error) {
	b := make([]byte, apiKeyBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate api key: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// KeySource supplies the API key sent with a registration.
type KeySource interface {
	APIKey() string
}

// RegistrationError reports a failed handshake. Nothing is retried; the caller decides.
type RegistrationError struct {
	StatusCode int
	Body       string
	Err        error
}

func (e *RegistrationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("registration failed: %v", e.Err)
	}
	return fmt.Sprintf("registration failed: HTTP %d: %s", e.StatusCode, e.Body)
}

func (e *RegistrationError) Unwrap() []error {
	if e.Err == nil {
		return []error{apperrors.ErrRegistration}
	}
	return []error{apperrors.ErrRegistration, e.Err}
}

type Registration struct {
	CallbackURL  string    `json:"callbackUrl"`
	RegisteredAt time.Time `json:"registeredAt"`
	// Secret is set when the server confirmed or issued a shared secret.
	Secret string `json:"-"`
}

type registrationRequest struct {
	CallbackURL string `json:"callbackUrl"`
	APIKey      string `json:"apiKey"`
}

type registrationResponse struct {
	Secret string `json:"secret"`
}

type Registrar struct {
	client *http.Client
	keys   KeySource
	log    zerolog.Logger
}

func NewRegistrar(keys KeySource, timeout time.Duration) *Registrar {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Registrar{
		client: &http.Client{Timeout: timeout},
		keys:   keys,
		log:    log.With().Str("component", "webhook_registrar").Logger(),
	}
}

// Register announces callbackURL to targetURL. It never touches local configuration.
func (r *Registrar) Register(ctx context.Context, targetURL, callbackURL string) (*Registration, error) {
	if err := checkURL(targetURL); err != nil {
		return nil, apperrors.InvalidInput("register webhook", fmt.Errorf("target url: %w", err))
	}
	if err := checkURL(callbackURL); err != nil {
		return nil, apperrors.InvalidInput("register webhook", fmt.Errorf("callback url: %w", err))
	}
	apiKey := r.keys.APIKey()
	if apiKey == "" {
		return nil, apperrors.Configuration("register webhook", errors.New("no api key configured"))
	}

	payload, err := json.Marshal(registrationRequest{CallbackURL: callbackURL, APIKey: apiKey})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, targetURL, bytes.NewReader(payload))
	if err != nil {
		return nil, &RegistrationError{Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		registrationsTotal.WithLabelValues("error").Inc()
		r.log.Warn().Err(err).Str("target", targetURL).Msg("registration request failed")
		return nil, &RegistrationError{Err: err}
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		registrationsTotal.WithLabelValues("rejected").Inc()
		r.log.Warn().Int("status", resp.StatusCode).Str("target", targetURL).Msg("registration rejected")
		return nil, &RegistrationError{StatusCode: resp.StatusCode, Body: excerpt(body)}
	}

	reg := &Registration{CallbackURL: callbackURL, RegisteredAt: time.Now().UTC()}
	var out registrationResponse
	if len(bytes.TrimSpace(body)) > 0 && json.Unmarshal(body, &out) == nil {
		reg.Secret = out.Secret
	}

	registrationsTotal.WithLabelValues("ok").Inc()
	r.log.Info().Str("target", targetURL).Str("callback", callbackURL).Bool("secret_issued", reg.Secret != "").Msg("webhook registered")
	return reg, nil
}

func checkURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return errors.New("missing host")
	}
	return nil
}

func excerpt(b []byte) string {
	const limit = 256
	s := string(bytes.TrimSpace(b))
	if len(s) > limit {
		return s[:limit] + "..."
	}
	return s
}
