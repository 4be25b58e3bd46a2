package http

import (
	"net/http"

	"github.com/ragmesh/ragmesh/internal/domain/provider"
)

// CreateProvider handles POST /api/v1/projects/{id}/providers
func (h *Handlers) CreateProvider(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[provider.CreateRequest](w, r)
	if !ok {
		return
	}
	req.ProjectID = urlParam(r, "id")

	cfg, err := h.Providers.Create(r.Context(), authCtx, req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, cfg)
}

// ListProviders handles GET /api/v1/projects/{id}/providers
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authContext(w, r)
	if !ok {
		return
	}

	cfgs, err := h.Providers.List(r.Context(), authCtx, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	if cfgs == nil {
		cfgs = []provider.Config{}
	}
	writeJSON(w, http.StatusOK, cfgs)
}

// GetProvider handles GET /api/v1/providers/{id}
func (h *Handlers) GetProvider(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authContext(w, r)
	if !ok {
		return
	}

	cfg, err := h.Providers.Get(r.Context(), authCtx, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "provider config not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// UpdateProvider handles PUT /api/v1/providers/{id}
func (h *Handlers) UpdateProvider(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[provider.UpdateRequest](w, r)
	if !ok {
		return
	}

	cfg, err := h.Providers.Update(r.Context(), authCtx, urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "provider config not found")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

// DeleteProvider handles DELETE /api/v1/providers/{id}
func (h *Handlers) DeleteProvider(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authContext(w, r)
	if !ok {
		return
	}

	if err := h.Providers.Delete(r.Context(), authCtx, urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "provider config not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
