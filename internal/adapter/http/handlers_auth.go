package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ragmesh/ragmesh/internal/domain/project"
	"github.com/ragmesh/ragmesh/internal/domain/user"
)

const refreshCookieName = "ragmesh_refresh"

func setRefreshCookie(w http.ResponseWriter, value string, maxAge int) {
	http.SetCookie(w, &http.Cookie{
		Name:     refreshCookieName,
		Value:    value,
		Path:     "/api/v1/auth",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteStrictMode,
		MaxAge:   maxAge,
	})
}

// Register handles POST /api/v1/auth/register
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.CreateRequest](w, r)
	if !ok {
		return
	}

	u, err := h.Auth.Register(r.Context(), &req)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// Login handles POST /api/v1/auth/login
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[user.LoginRequest](w, r)
	if !ok {
		return
	}

	resp, rawRefresh, err := h.Auth.Login(r.Context(), req)
	if err != nil {
		slog.Debug("login failed", "email", req.Email, "error", err)
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	setRefreshCookie(w, rawRefresh, int(7*24*time.Hour/time.Second))
	writeJSON(w, http.StatusOK, resp)
}

// Refresh handles POST /api/v1/auth/refresh
func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(refreshCookieName)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "no refresh token")
		return
	}

	resp, newRawRefresh, err := h.Auth.RefreshTokens(r.Context(), cookie.Value)
	if err != nil {
		slog.Debug("token refresh failed", "error", err)
		setRefreshCookie(w, "", -1)
		writeError(w, http.StatusUnauthorized, "invalid or expired refresh token")
		return
	}

	setRefreshCookie(w, newRawRefresh, int(7*24*time.Hour/time.Second))
	writeJSON(w, http.StatusOK, resp)
}

// Logout handles POST /api/v1/auth/logout
func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	if err := h.Auth.Logout(r.Context(), authCtx.UserID); err != nil {
		writeDomainError(w, err, "user not found")
		return
	}

	setRefreshCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "logged_out"})
}

// ChangePassword handles POST /api/v1/auth/change-password
func (h *Handlers) ChangePassword(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[user.ChangePasswordRequest](w, r)
	if !ok {
		return
	}

	if err := h.Auth.ChangePassword(r.Context(), authCtx.UserID, req); err != nil {
		writeDomainError(w, err, "user not found")
		return
	}

	// Sessions and refresh tokens are invalidated; force a fresh login.
	setRefreshCookie(w, "", -1)
	writeJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}

// GetCurrentUser handles GET /api/v1/auth/me
func (h *Handlers) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	u, err := h.Auth.GetUser(r.Context(), authCtx.UserID)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// CreateAPIKeyHandler handles POST /api/v1/auth/api-keys
func (h *Handlers) CreateAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[user.CreateAPIKeyRequest](w, r)
	if !ok {
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	// Minting a key requires at least member role on the target project; the
	// key is bound to that project's tenant.
	m, err := h.Access.RequireRole(r.Context(), authCtx, req.ProjectID, project.RoleMember)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}

	resp, err := h.Auth.CreateAPIKey(r.Context(), authCtx.UserID, m.TenantID, req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

// ListAPIKeysHandler handles GET /api/v1/auth/api-keys
func (h *Handlers) ListAPIKeysHandler(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	keys, err := h.Auth.ListAPIKeys(r.Context(), authCtx.UserID)
	if err != nil {
		writeDomainError(w, err, "keys not found")
		return
	}
	if keys == nil {
		keys = []user.APIKey{}
	}
	writeJSON(w, http.StatusOK, keys)
}

// RevokeAPIKeyHandler handles POST /api/v1/auth/api-keys/{id}/revoke
func (h *Handlers) RevokeAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	if err := h.Auth.RevokeAPIKey(r.Context(), urlParam(r, "id"), authCtx.UserID); err != nil {
		writeDomainError(w, err, "api key not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

// DeleteAPIKeyHandler handles DELETE /api/v1/auth/api-keys/{id}
func (h *Handlers) DeleteAPIKeyHandler(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	if err := h.Auth.DeleteAPIKey(r.Context(), urlParam(r, "id"), authCtx.UserID); err != nil {
		writeDomainError(w, err, "api key not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
