package http

import (
	"net/http"

	"github.com/ragmesh/ragmesh/internal/domain/project"
	"github.com/ragmesh/ragmesh/internal/domain/tenant"
)

// CreateTenant handles POST /api/v1/tenants
func (h *Handlers) CreateTenant(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[tenant.CreateRequest](w, r)
	if !ok {
		return
	}

	t, err := h.Tenants.CreateTenant(r.Context(), authCtx.UserID, req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusCreated, t)
}

// GetTenant handles GET /api/v1/tenants/{id}
func (h *Handlers) GetTenant(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	t, err := h.Tenants.GetTenant(r.Context(), urlParam(r, "id"), authCtx.UserID)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// ListTenants handles GET /api/v1/tenants
func (h *Handlers) ListTenants(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	tenants, err := h.Tenants.ListTenants(r.Context(), authCtx.UserID)
	if err != nil {
		writeDomainError(w, err, "tenants not found")
		return
	}
	if tenants == nil {
		tenants = []tenant.Tenant{}
	}
	writeJSON(w, http.StatusOK, tenants)
}

// UpdateTenant handles PUT /api/v1/tenants/{id}
func (h *Handlers) UpdateTenant(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[tenant.UpdateRequest](w, r)
	if !ok {
		return
	}

	t, err := h.Tenants.UpdateTenant(r.Context(), urlParam(r, "id"), authCtx.UserID, req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// CreateProject handles POST /api/v1/projects
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[project.CreateRequest](w, r)
	if !ok {
		return
	}

	p, err := h.Tenants.CreateProject(r.Context(), authCtx.UserID, req)
	if err != nil {
		writeDomainError(w, err, "tenant not found")
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

// GetProject handles GET /api/v1/projects/{id}
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	p, err := h.Tenants.GetProject(r.Context(), urlParam(r, "id"), authCtx.UserID)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// ListProjects handles GET /api/v1/projects
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	projects, err := h.Tenants.ListProjects(r.Context(), authCtx.UserID)
	if err != nil {
		writeDomainError(w, err, "projects not found")
		return
	}
	writeJSON(w, http.StatusOK, projects)
}
