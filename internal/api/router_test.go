package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"clubdesk/internal/api/handlers"
	"clubdesk/internal/api/middleware"
	"clubdesk/internal/engine/accounts"
	"clubdesk/internal/engine/clubs"
	"clubdesk/internal/engine/webhooks"
	apperrors "clubdesk/internal/pkg/errors"
	"clubdesk/internal/platform/auth"
	"clubdesk/internal/platform/config"
	"clubdesk/internal/platform/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAccounts struct{}

func (stubAccounts) Login(context.Context, string, string) (*accounts.Session, error) {
	return nil, apperrors.New(apperrors.ErrAuthentication, "login", nil)
}
func (stubAccounts) RequestPasswordReset(context.Context, string) error { return nil }
func (stubAccounts) ResetPassword(context.Context, string, string) error {
	return nil
}
func (stubAccounts) Register(context.Context, accounts.RegisterInput) (*accounts.Registration, error) {
	return nil, apperrors.Conflict("register", nil)
}

// stubClubs implements handlers.ClubService, gating mutations like the real service.
type stubClubs struct {
	handlers.ClubService
	created []auth.Principal
}

func (s *stubClubs) CreateClub(_ context.Context, p auth.Principal, in clubs.ClubInput) (*models.Club, error) {
	if err := (auth.Gate{}).Check("create club", p.Status); err != nil {
		return nil, err
	}
	s.created = append(s.created, p)
	return &models.Club{ID: uuid.New(), SchoolID: p.TenantID, Name: in.Name}, nil
}

func (s *stubClubs) DeleteClub(context.Context, auth.Principal, uuid.UUID) error { return nil }

type okPinger struct{}

func (okPinger) PingContext(context.Context) error { return nil }

type stoppedListener struct{}

func (stoppedListener) State() webhooks.State { return webhooks.StateStopped }

func newTestRouter(t *testing.T) (http.Handler, *auth.TokenService, *stubClubs) {
	t.Helper()
	tokens := auth.NewTokenService(config.JWTConfig{Secret: "router-secret", AccessTokenTTL: time.Hour})
	clubSvc := &stubClubs{}

	router := NewRouter(&Dependencies{
		AuthHandler:      handlers.NewAuthHandler(stubAccounts{}),
		ClubHandler:      handlers.NewClubHandler(clubSvc),
		WebhookHandler:   handlers.NewWebhookHandler(nil, nil, nil, "", nil),
		AuditHandler:     handlers.NewAuditHandler(nil),
		HealthHandler:    handlers.NewHealthHandler(okPinger{}, stoppedListener{}),
		MetricsHandler:   handlers.NewMetricsHandler(),
		AuthMiddleware:   middleware.NewAuthMiddleware(tokens),
		TenantMiddleware: middleware.NewTenantMiddleware(),
		RateLimiter:      middleware.NewRateLimiter(0),
	})
	return router, tokens, clubSvc
}

func bearer(t *testing.T, tokens *auth.TokenService, tenant uuid.UUID, status auth.CoordinatorStatus) string {
	t.Helper()
	tok, err := tokens.GenerateAccessToken(uuid.New(), tenant, "coord@school.example", status)
	require.NoError(t, err)
	return "Bearer " + tok
}

func serve(h http.Handler, method, path, authz, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if authz != "" {
		req.Header.Set("Authorization", authz)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func errorCode(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var resp apperrors.ErrorResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	return resp.Code
}

func TestRouter_TenantRoutesRequireToken(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := serve(router, http.MethodGet, "/api/v1/clubs", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.Equal(t, apperrors.ErrCodeUnauthorized, errorCode(t, rr))
}

func TestRouter_CreateClubUsesTokenTenant(t *testing.T) {
	router, tokens, clubSvc := newTestRouter(t)
	school := uuid.New()

	rr := serve(router, http.MethodPost, "/api/v1/clubs", bearer(t, tokens, school, auth.ActiveCoordinator), `{"name":"Chess"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	require.Len(t, clubSvc.created, 1)
	assert.Equal(t, school, clubSvc.created[0].TenantID)
}

func TestRouter_InactiveCoordinatorIsForbidden(t *testing.T) {
	router, tokens, clubSvc := newTestRouter(t)
	authz := bearer(t, tokens, uuid.New(), auth.InactiveCoordinator)

	rr := serve(router, http.MethodPost, "/api/v1/clubs", authz, `{"name":"Chess"}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.Equal(t, apperrors.ErrCodeForbidden, errorCode(t, rr))
	assert.Empty(t, clubSvc.created)

	rr = serve(router, http.MethodPut, "/api/v1/webhooks/config", authz, `{"listenPort":9002}`)
	assert.Equal(t, http.StatusForbidden, rr.Code)

	rr = serve(router, http.MethodGet, "/api/v1/audit", bearer(t, tokens, uuid.New(), auth.NoAccess), "")
	assert.Equal(t, http.StatusForbidden, rr.Code)
}

func TestRouter_MalformedPathID(t *testing.T) {
	router, tokens, _ := newTestRouter(t)

	rr := serve(router, http.MethodDelete, "/api/v1/clubs/chess", bearer(t, tokens, uuid.New(), auth.ActiveCoordinator), "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(router, http.MethodDelete, "/api/v1/clubs/"+uuid.NewString(), bearer(t, tokens, uuid.New(), auth.ActiveCoordinator), "")
	assert.Equal(t, http.StatusNoContent, rr.Code)
}

func TestRouter_PublicAuthRoutes(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := serve(router, http.MethodPost, "/api/v1/auth/login", "", `{"email":"a@b.example","password":"nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = serve(router, http.MethodPost, "/api/v1/auth/register", "", `{"school_name":"X","email":"a@b.example","password":"correct horse"}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = serve(router, http.MethodPost, "/api/v1/auth/password-reset", "", `{"email":"nobody@b.example"}`)
	assert.Equal(t, http.StatusAccepted, rr.Code)
}

func TestRouter_HealthAndUnknownRoutes(t *testing.T) {
	router, _, _ := newTestRouter(t)

	rr := serve(router, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"webhook_listener":"stopped"`)

	rr = serve(router, http.MethodGet, "/nope", "", "")
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, apperrors.ErrCodeNotFound, errorCode(t, rr))
}
