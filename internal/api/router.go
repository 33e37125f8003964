package api

import (
	"context"
	"net/http"

	apiContext "clubdesk/internal/api/context"
	"clubdesk/internal/api/handlers"
	"clubdesk/internal/api/middleware"
	"clubdesk/internal/pkg/errors"
	"clubdesk/internal/platform/auth"

	"github.com/julienschmidt/httprouter"
)

type Dependencies struct {
	AuthHandler      *handlers.AuthHandler
	ClubHandler      *handlers.ClubHandler
	WebhookHandler   *handlers.WebhookHandler
	AuditHandler     *handlers.AuditHandler
	HealthHandler    *handlers.HealthHandler
	MetricsHandler   *handlers.MetricsHandler
	AuthMiddleware   *middleware.AuthMiddleware
	TenantMiddleware *middleware.TenantMiddleware
	RateLimiter      *middleware.RateLimiter
}

func NewRouter(deps *Dependencies) *httprouter.Router {
	router := httprouter.New()
	router.NotFound = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		errors.WriteError(w, http.StatusNotFound, errors.ErrCodeNotFound, "Route not found", nil)
	})

	router.GET("/healthz", wrap(deps.HealthHandler.Check))
	router.GET("/metrics", wrap(deps.MetricsHandler.Export))

	limit := deps.RateLimiter.Handle
	authMid := deps.AuthMiddleware.Handle
	tenantMid := deps.TenantMiddleware.Handle

	// Credential flows run before a tenant is known; they are limited per client address.
	router.POST("/api/v1/auth/login", chain(deps.AuthHandler.Login, limit))
	router.POST("/api/v1/auth/register", chain(deps.AuthHandler.Register, limit))
	router.POST("/api/v1/auth/password-reset", chain(deps.AuthHandler.RequestPasswordReset, limit))
	router.POST("/api/v1/auth/password-reset/confirm", chain(deps.AuthHandler.ConfirmPasswordReset, limit))

	// Tenant routes. Reads are open to any coordinator of the school; the
	// clubs service gates every mutation itself.
	tenant := func(h http.HandlerFunc, extra ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
		return chain(h, append([]func(http.HandlerFunc) http.HandlerFunc{authMid, tenantMid, limit}, extra...)...)
	}

	router.GET("/api/v1/clubs", tenant(deps.ClubHandler.List))
	router.POST("/api/v1/clubs", tenant(deps.ClubHandler.Create))
	router.PATCH("/api/v1/clubs/:club_id", tenant(deps.ClubHandler.Update))
	router.DELETE("/api/v1/clubs/:club_id", tenant(deps.ClubHandler.Delete))
	router.POST("/api/v1/clubs/:club_id/schedules", tenant(deps.ClubHandler.AddSchedule))
	router.DELETE("/api/v1/schedules/:schedule_id", tenant(deps.ClubHandler.DeleteSchedule))

	router.GET("/api/v1/classes", tenant(deps.ClubHandler.ListClasses))
	router.POST("/api/v1/classes", tenant(deps.ClubHandler.CreateClass))
	router.DELETE("/api/v1/classes/:class_id", tenant(deps.ClubHandler.DeleteClass))

	router.GET("/api/v1/grades", tenant(deps.ClubHandler.ListGrades))
	router.POST("/api/v1/grades", tenant(deps.ClubHandler.CreateGrade))
	router.DELETE("/api/v1/grades/:grade_id", tenant(deps.ClubHandler.DeleteGrade))

	router.GET("/api/v1/audit", tenant(deps.AuditHandler.List, requireActive))

	// Webhook administration
	wh := deps.WebhookHandler
	router.GET("/api/v1/webhooks/config", tenant(wh.GetConfig, requireActive))
	router.PUT("/api/v1/webhooks/config", tenant(wh.UpdateConfig, requireActive))
	router.GET("/api/v1/webhooks/listener", tenant(wh.ListenerStatus, requireActive))
	router.POST("/api/v1/webhooks/listener/start", tenant(wh.StartListener, requireActive))
	router.POST("/api/v1/webhooks/listener/stop", tenant(wh.StopListener, requireActive))
	router.GET("/api/v1/webhooks/events", tenant(wh.Events, requireActive))
	router.POST("/api/v1/webhooks/register", tenant(wh.Register, requireActive))
	router.POST("/api/v1/webhooks/api-key", tenant(wh.RotateAPIKey, requireActive))

	return router
}

// chain applies middlewares so the first one listed runs first.
func chain(handler http.HandlerFunc, middlewares ...func(http.HandlerFunc) http.HandlerFunc) httprouter.Handle {
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	return wrap(handler)
}

func wrap(handler http.HandlerFunc) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		ctx := context.WithValue(r.Context(), apiContext.Params, ps)
		handler(w, r.WithContext(ctx))
	}
}

// requireActive admits only active coordinators. It must run after the tenant middleware.
func requireActive(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p, ok := middleware.PrincipalFrom(r.Context())
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No principal in request", nil)
			return
		}
		if err := (auth.Gate{}).Check("administer", p.Status); err != nil {
			errors.WriteError(w, http.StatusForbidden, errors.ErrCodeForbidden, "Insufficient permissions", nil)
			return
		}
		next(w, r)
	}
}
