package middleware

import (
	"net/http"

	"github.com/ragmesh/ragmesh/internal/domain/scope"
)

// RequireScope rejects API-key credentials that do not carry the named
// capability scope. Session credentials pass through; their permissions are
// checked against project membership in the service layer.
func RequireScope(required string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authCtx := AuthFromContext(r.Context())
			if authCtx == nil {
				http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
				return
			}
			if authCtx.Kind == scope.AuthAPIKey && !authCtx.HasScope(required) {
				http.Error(w, `{"error":"insufficient key scope"}`, http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
