package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/edvin/domains/internal/api/response"
	"github.com/edvin/domains/internal/core"
	"github.com/edvin/domains/internal/model"
)

type contextKey string

const TenantKey contextKey = "tenant"

// Authenticator maps a raw API key to the tenant that owns it.
type Authenticator interface {
	Authenticate(ctx context.Context, rawKey string) (*model.Tenant, error)
}

// Auth returns a middleware that resolves the X-API-Key header (or a Bearer
// token) to a tenant and stores it in the request context. Unknown keys get
// 401; a failing key store gets 503.
func Auth(keys Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractAPIKey(r)
			if key == "" {
				response.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			tenant, err := keys.Authenticate(r.Context(), key)
			if errors.Is(err, core.ErrNotFound) {
				response.WriteError(w, http.StatusUnauthorized, "invalid API key")
				return
			}
			if err != nil {
				zerolog.Ctx(r.Context()).Error().Err(err).Msg("authenticate api key")
				response.WriteError(w, http.StatusServiceUnavailable, "authentication unavailable")
				return
			}

			ctx := context.WithValue(r.Context(), TenantKey, tenant)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetTenant returns the authenticated tenant, or nil outside Auth.
func GetTenant(ctx context.Context) *model.Tenant {
	t, _ := ctx.Value(TenantKey).(*model.Tenant)
	return t
}

// WithTenant is used by tests and internal callers that bypass Auth.
func WithTenant(ctx context.Context, t *model.Tenant) context.Context {
	return context.WithValue(ctx, TenantKey, t)
}

func extractAPIKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	auth := r.Header.Get("Authorization")
	if token, ok := strings.CutPrefix(auth, "Bearer "); ok {
		return strings.TrimSpace(token)
	}
	return ""
}
