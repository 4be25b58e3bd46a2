package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/service"
)

type authCtxKey struct{}

// publicPaths are exempt from authentication.
var publicPaths = map[string]bool{
	"/health":               true,
	"/health/ready":         true,
	"/api/v1/auth/register": true,
	"/api/v1/auth/login":    true,
	"/api/v1/auth/refresh":  true,
}

// Auth returns middleware that resolves the bearer credential (session token
// or API key) into an AuthContext and stores it on the request context.
func Auth(authSvc *service.AuthService) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			// API keys may travel in X-API-Key; both credential classes may
			// travel in Authorization: Bearer. The resolver tells them apart
			// by the key's structural prefix.
			bearer := r.Header.Get("X-API-Key")
			if bearer == "" {
				authHeader := r.Header.Get("Authorization")
				if authHeader == "" {
					http.Error(w, `{"error":"authorization required"}`, http.StatusUnauthorized)
					return
				}
				bearer = strings.TrimPrefix(authHeader, "Bearer ")
				if bearer == authHeader {
					http.Error(w, `{"error":"invalid authorization header"}`, http.StatusUnauthorized)
					return
				}
			}

			authCtx, err := authSvc.ResolveCredential(r.Context(), bearer)
			if err != nil {
				http.Error(w, `{"error":"invalid credentials"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), authCtxKey{}, authCtx)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// AuthFromContext returns the resolved AuthContext, or nil on unauthenticated
// requests (public paths).
func AuthFromContext(ctx context.Context) *scope.AuthContext {
	authCtx, _ := ctx.Value(authCtxKey{}).(*scope.AuthContext)
	return authCtx
}
