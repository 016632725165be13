package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ayesh156/roxeleye-crud/internal/http/response"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
	"github.com/ayesh156/roxeleye-crud/internal/security"
)

type contextKey string

const (
	ClaimsContextKey contextKey = "claims"
)

const (
	msgNoToken      = "Access denied. No token provided."
	msgTokenExpired = "Token expired. Please login again."
	msgInvalidToken = "Invalid token."
)

// AuthMiddleware admits requests carrying a valid bearer token and attaches
// its claims to the request context. It never reads the user store, so a
// role change or deactivation takes effect when the token is reissued.
func AuthMiddleware(jwtMgr *security.JWTManager) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := bearerToken(r)
			if raw == "" {
				observability.RecordTokenValidation(r.Context(), "missing")
				response.Error(w, r, http.StatusUnauthorized, msgNoToken)
				return
			}
			claims, err := jwtMgr.Verify(raw)
			if err != nil {
				if errors.Is(err, security.ErrExpiredToken) {
					observability.RecordTokenValidation(r.Context(), "expired")
					response.Error(w, r, http.StatusUnauthorized, msgTokenExpired)
					return
				}
				observability.RecordTokenValidation(r.Context(), "invalid")
				response.Error(w, r, http.StatusUnauthorized, msgInvalidToken)
				return
			}
			observability.RecordTokenValidation(r.Context(), "valid")
			ctx := context.WithValue(r.Context(), ClaimsContextKey, claims)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if len(auth) < 7 || !strings.EqualFold(auth[:7], "bearer ") {
		return ""
	}
	return strings.TrimSpace(auth[7:])
}

func ClaimsFromContext(ctx context.Context) (*security.Claims, bool) {
	c, ok := ctx.Value(ClaimsContextKey).(*security.Claims)
	return c, ok && c != nil
}

// IdentityFromContext returns the caller attached by AuthMiddleware.
func IdentityFromContext(ctx context.Context) (security.Identity, bool) {
	c, ok := ClaimsFromContext(ctx)
	if !ok {
		return security.Identity{}, false
	}
	return c.Identity, true
}

// WithIdentity returns a context carrying id as if it had been authenticated.
func WithIdentity(ctx context.Context, id security.Identity) context.Context {
	return context.WithValue(ctx, ClaimsContextKey, &security.Claims{Identity: id})
}
