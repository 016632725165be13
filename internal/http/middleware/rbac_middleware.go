package middleware

import (
	"net/http"
	"slices"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ayesh156/roxeleye-crud/internal/domain"
	"github.com/ayesh156/roxeleye-crud/internal/http/response"
	"github.com/ayesh156/roxeleye-crud/internal/observability"
)

const (
	msgNotAuthenticated = "Not authenticated"
	msgInsufficientRole = "Access denied. Insufficient permissions."
	msgNotOwner         = "Access denied. You can only access your own resources."
)

// RequireRole admits callers whose role is one of roles. It must run after
// AuthMiddleware.
func RequireRole(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				observability.RecordAuthzDecision(r.Context(), "role", "unauthenticated")
				response.Error(w, r, http.StatusUnauthorized, msgNotAuthenticated)
				return
			}
			if !slices.Contains(roles, id.Role) {
				observability.RecordAuthzDecision(r.Context(), "role", "denied")
				response.Error(w, r, http.StatusForbidden, msgInsufficientRole)
				return
			}
			observability.RecordAuthzDecision(r.Context(), "role", "allowed")
			next.ServeHTTP(w, r)
		})
	}
}

// RequireSelfOrRole admits callers whose id equals the URL parameter param,
// or whose role is one of roles.
func RequireSelfOrRole(param string, roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFromContext(r.Context())
			if !ok {
				observability.RecordAuthzDecision(r.Context(), "self_or_role", "unauthenticated")
				response.Error(w, r, http.StatusUnauthorized, msgNotAuthenticated)
				return
			}
			if slices.Contains(roles, id.Role) {
				observability.RecordAuthzDecision(r.Context(), "self_or_role", "allowed_role")
				next.ServeHTTP(w, r)
				return
			}
			target, err := strconv.ParseUint(chi.URLParam(r, param), 10, 64)
			if err == nil && uint(target) == id.UserID {
				observability.RecordAuthzDecision(r.Context(), "self_or_role", "allowed_self")
				next.ServeHTTP(w, r)
				return
			}
			observability.RecordAuthzDecision(r.Context(), "self_or_role", "denied")
			response.Error(w, r, http.StatusForbidden, msgNotOwner)
		})
	}
}
