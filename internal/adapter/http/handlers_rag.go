package http

import (
	"net/http"

	"github.com/ragmesh/ragmesh/internal/domain/document"
)

// InsertDocuments handles POST /api/v1/tenants/{tenantId}/projects/{projectId}/documents
func (h *Handlers) InsertDocuments(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[document.InsertRequest](w, r)
	if !ok {
		return
	}

	chunks, err := h.RAG.Insert(r.Context(), authCtx, urlParam(r, "tenantId"), urlParam(r, "projectId"), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]int{"chunks": chunks})
}

// QueryDocuments handles POST /api/v1/tenants/{tenantId}/projects/{projectId}/query
func (h *Handlers) QueryDocuments(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[document.QueryRequest](w, r)
	if !ok {
		return
	}

	result, err := h.RAG.Query(r.Context(), authCtx, urlParam(r, "tenantId"), urlParam(r, "projectId"), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// DropDocuments handles DELETE /api/v1/tenants/{tenantId}/projects/{projectId}/documents
func (h *Handlers) DropDocuments(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authContext(w, r)
	if !ok {
		return
	}

	err := h.RAG.Drop(r.Context(), authCtx, urlParam(r, "tenantId"), urlParam(r, "projectId"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// FlushDocuments handles POST /api/v1/tenants/{tenantId}/projects/{projectId}/flush
func (h *Handlers) FlushDocuments(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := authContext(w, r)
	if !ok {
		return
	}

	err := h.RAG.Flush(r.Context(), authCtx, urlParam(r, "tenantId"), urlParam(r, "projectId"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}
