package middleware

import (
	"context"
	"net/http"

	apiContext "clubdesk/internal/api/context"
	"clubdesk/internal/pkg/errors"
	"clubdesk/internal/platform/auth"

	"github.com/rs/zerolog/log"
)

// TenantMiddleware turns validated claims into the Principal handlers act as.
// The school and coordinator status come from the token; nothing is re-read here.
type TenantMiddleware struct{}

func NewTenantMiddleware() *TenantMiddleware {
	return &TenantMiddleware{}
}

func (m *TenantMiddleware) Handle(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := r.Context().Value(apiContext.Claims).(*auth.Claims)
		if !ok {
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "No authentication claims found", nil)
			return
		}

		p, err := auth.PrincipalFromClaims(claims)
		if err != nil {
			log.Warn().Err(err).Str("subject", claims.Subject).Msg("token carries an unusable tenant")
			errors.WriteError(w, http.StatusUnauthorized, errors.ErrCodeUnauthorized, "Invalid tenant in token", nil)
			return
		}

		ctx := context.WithValue(r.Context(), apiContext.Principal, p)
		next(w, r.WithContext(ctx))
	}
}

// PrincipalFrom returns the principal set by TenantMiddleware.
func PrincipalFrom(ctx context.Context) (auth.Principal, bool) {
	p, ok := ctx.Value(apiContext.Principal).(auth.Principal)
	return p, ok
}
