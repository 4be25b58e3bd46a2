package http

import (
	"net/http"

	"github.com/ragmesh/ragmesh/internal/domain/project"
)

// ListMembers handles GET /api/v1/projects/{id}/members
func (h *Handlers) ListMembers(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	members, err := h.Access.ListMembers(r.Context(), authCtx, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	if members == nil {
		members = []project.Membership{}
	}
	writeJSON(w, http.StatusOK, members)
}

// UpdateMemberRole handles PUT /api/v1/projects/{id}/members/{userId}
func (h *Handlers) UpdateMemberRole(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[project.UpdateMemberRoleRequest](w, r)
	if !ok {
		return
	}

	err := h.Access.UpdateMemberRole(r.Context(), authCtx, urlParam(r, "id"), urlParam(r, "userId"), req)
	if err != nil {
		writeDomainError(w, err, "member not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

// RemoveMember handles DELETE /api/v1/projects/{id}/members/{userId}
func (h *Handlers) RemoveMember(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	err := h.Access.RemoveMember(r.Context(), authCtx, urlParam(r, "id"), urlParam(r, "userId"))
	if err != nil {
		writeDomainError(w, err, "member not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// InviteMember handles POST /api/v1/projects/{id}/invitations
func (h *Handlers) InviteMember(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[project.InviteRequest](w, r)
	if !ok {
		return
	}

	inv, err := h.Access.InviteMember(r.Context(), authCtx, urlParam(r, "id"), req)
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	writeJSON(w, http.StatusCreated, inv)
}

// ListInvitations handles GET /api/v1/projects/{id}/invitations
func (h *Handlers) ListInvitations(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	invs, err := h.Access.ListInvitations(r.Context(), authCtx, urlParam(r, "id"))
	if err != nil {
		writeDomainError(w, err, "project not found")
		return
	}
	if invs == nil {
		invs = []project.Invitation{}
	}
	writeJSON(w, http.StatusOK, invs)
}

// CancelInvitation handles DELETE /api/v1/invitations/{id}
func (h *Handlers) CancelInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	if err := h.Access.CancelInvitation(r.Context(), authCtx, urlParam(r, "id")); err != nil {
		writeDomainError(w, err, "invitation not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type acceptInvitationRequest struct {
	Token string `json:"token"`
}

// AcceptInvitation handles POST /api/v1/invitations/accept. The caller must
// be logged in as the invited email address.
func (h *Handlers) AcceptInvitation(w http.ResponseWriter, r *http.Request) {
	authCtx, ok := sessionContext(w, r)
	if !ok {
		return
	}

	req, ok := readJSON[acceptInvitationRequest](w, r)
	if !ok {
		return
	}
	if req.Token == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	u, err := h.Auth.GetUser(r.Context(), authCtx.UserID)
	if err != nil {
		writeDomainError(w, err, "user not found")
		return
	}

	m, err := h.Access.AcceptInvitation(r.Context(), req.Token, u.ID, u.Email)
	if err != nil {
		writeDomainError(w, err, "invitation not found")
		return
	}
	writeJSON(w, http.StatusOK, m)
}
