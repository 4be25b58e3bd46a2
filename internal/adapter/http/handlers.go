// Package http exposes the REST API. Handlers translate between the wire
// format and the service layer; all authorization decisions live in the
// services.
package http

import (
	"context"
	"net/http"

	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/middleware"
	"github.com/ragmesh/ragmesh/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Auth      *service.AuthService
	Access    *service.AccessService
	Tenants   *service.TenantService
	Providers *service.ProviderService
	RAG       *service.RAGService

	// ReadyCheck reports whether backing stores are reachable. Optional;
	// when nil the readiness endpoint always reports ready.
	ReadyCheck func(ctx context.Context) error
}

// authContext pulls the resolved credential from the request context, writing
// a 401 when the request is unauthenticated.
func authContext(w http.ResponseWriter, r *http.Request) (*scope.AuthContext, bool) {
	authCtx := middleware.AuthFromContext(r.Context())
	if authCtx == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return nil, false
	}
	return authCtx, true
}

// sessionContext is authContext restricted to session credentials. Account
// and membership administration is never available to API keys.
func sessionContext(w http.ResponseWriter, r *http.Request) (*scope.AuthContext, bool) {
	authCtx, ok := authContext(w, r)
	if !ok {
		return nil, false
	}
	if authCtx.Kind != scope.AuthSession {
		writeError(w, http.StatusForbidden, "session authentication required")
		return nil, false
	}
	return authCtx, true
}

// Health handles GET /health
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready handles GET /health/ready
func (h *Handlers) Ready(w http.ResponseWriter, r *http.Request) {
	if h.ReadyCheck != nil {
		if err := h.ReadyCheck(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable",
				"error":  err.Error(),
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// PoolStats handles GET /api/v1/admin/pool
func (h *Handlers) PoolStats(w http.ResponseWriter, r *http.Request) {
	if _, ok := sessionContext(w, r); !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.RAG.PoolStats())
}
