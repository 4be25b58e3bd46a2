package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ragmesh/ragmesh/internal/config"
	"github.com/ragmesh/ragmesh/internal/domain"
	"github.com/ragmesh/ragmesh/internal/domain/project"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/port/database"
	"github.com/ragmesh/ragmesh/internal/port/messagequeue"
)

// AccessService decides who may do what inside a project, and manages the
// membership lifecycle: invitations, role changes, removal.
type AccessService struct {
	store database.Store
	queue messagequeue.Queue // may be nil
	cfg   *config.Auth
}

// NewAccessService creates an access control service. queue may be nil to
// disable event publishing.
func NewAccessService(store database.Store, queue messagequeue.Queue, cfg *config.Auth) *AccessService {
	return &AccessService{store: store, queue: queue, cfg: cfg}
}

// Authorize checks that the auth context may act on the given tenant+project
// with at least minRole and, for API keys, the required capability scope.
//
// API keys are bound at creation: tenant and project must match exactly, the
// role ladder does not apply, and the scope list decides. Session callers are
// checked against their membership role; scope is ignored for them.
func (s *AccessService) Authorize(ctx context.Context, authCtx *scope.AuthContext, tenantID, projectID string, minRole project.Role, requiredScope string) error {
	if authCtx == nil {
		return domain.ErrUnauthenticated
	}

	if authCtx.Kind == scope.AuthAPIKey {
		if authCtx.TenantID != tenantID || authCtx.ProjectID != projectID {
			return fmt.Errorf("api key is bound to a different project: %w", domain.ErrForbidden)
		}
		if !authCtx.HasScope(requiredScope) {
			return fmt.Errorf("api key lacks scope %q: %w", requiredScope, domain.ErrForbidden)
		}
		return nil
	}

	m, err := s.store.GetMembership(ctx, projectID, authCtx.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("not a member of project %s: %w", projectID, domain.ErrForbidden)
		}
		return fmt.Errorf("get membership: %w", err)
	}
	if m.TenantID != tenantID {
		return fmt.Errorf("project %s is not in tenant %s: %w", projectID, tenantID, domain.ErrForbidden)
	}
	if !m.Role.AtLeast(minRole) {
		return fmt.Errorf("role %s is below required %s: %w", m.Role, minRole, domain.ErrForbidden)
	}
	return nil
}

// RequireRole returns the caller's membership if it meets the role floor.
// API key contexts are rejected: membership administration is session-only.
func (s *AccessService) RequireRole(ctx context.Context, authCtx *scope.AuthContext, projectID string, minRole project.Role) (*project.Membership, error) {
	if authCtx == nil {
		return nil, domain.ErrUnauthenticated
	}
	if authCtx.Kind != scope.AuthSession {
		return nil, fmt.Errorf("membership administration requires a session: %w", domain.ErrForbidden)
	}
	m, err := s.store.GetMembership(ctx, projectID, authCtx.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("not a member of project %s: %w", projectID, domain.ErrForbidden)
		}
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if !m.Role.AtLeast(minRole) {
		return nil, fmt.Errorf("role %s is below required %s: %w", m.Role, minRole, domain.ErrForbidden)
	}
	return m, nil
}

// --- Invitations ---

// InviteMember creates a pending invitation. The actor needs admin or above.
// Existing members and already-invited addresses are rejected.
func (s *AccessService) InviteMember(ctx context.Context, authCtx *scope.AuthContext, projectID string, req project.InviteRequest) (*project.Invitation, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	actor, err := s.RequireRole(ctx, authCtx, projectID, project.RoleAdmin)
	if err != nil {
		return nil, err
	}

	email := strings.ToLower(req.Email)
	isMember, err := s.store.IsMemberByEmail(ctx, projectID, email)
	if err != nil {
		return nil, fmt.Errorf("check membership: %w", err)
	}
	if isMember {
		return nil, fmt.Errorf("%s is already a member: %w", email, domain.ErrConflict)
	}
	pending, err := s.store.HasPendingInvitation(ctx, projectID, email)
	if err != nil {
		return nil, fmt.Errorf("check pending invitation: %w", err)
	}
	if pending {
		return nil, fmt.Errorf("%s already has a pending invitation: %w", email, domain.ErrConflict)
	}

	token, err := generateRandomToken(32)
	if err != nil {
		return nil, fmt.Errorf("generate token: %w", err)
	}

	inv := &project.Invitation{
		ID:        uuid.NewString(),
		ProjectID: projectID,
		TenantID:  actor.TenantID,
		Email:     email,
		Role:      req.Role,
		InvitedBy: authCtx.UserID,
		Token:     token,
		Status:    project.InvitationPending,
		ExpiresAt: time.Now().Add(s.cfg.InviteExpiry).UTC(),
	}
	if err := s.store.CreateInvitation(ctx, inv); err != nil {
		return nil, fmt.Errorf("create invitation: %w", err)
	}

	s.publishMemberEvent(ctx, messagequeue.SubjectMemberInvited, messagequeue.MemberEvent{
		TenantID:  inv.TenantID,
		ProjectID: inv.ProjectID,
		Email:     inv.Email,
		Role:      string(inv.Role),
		At:        time.Now().UTC(),
	})
	return inv, nil
}

// AcceptInvitation redeems an invitation token for the calling user. The
// invitation email must match the caller's. Acceptance is first-wins: a
// second accept returns ErrAlreadyAccepted and changes nothing.
func (s *AccessService) AcceptInvitation(ctx context.Context, token, userID, userEmail string) (*project.Membership, error) {
	inv, err := s.store.GetInvitationByToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("invitation: %w", err)
	}

	switch inv.Status {
	case project.InvitationPending:
		// proceed
	case project.InvitationAccepted:
		return nil, domain.ErrAlreadyAccepted
	default:
		return nil, fmt.Errorf("invitation is %s: %w", inv.Status, domain.ErrNotFound)
	}

	if time.Now().After(inv.ExpiresAt) {
		if err := s.store.UpdateInvitationStatus(ctx, inv.ID, project.InvitationExpired); err != nil {
			slog.Warn("failed to mark invitation expired", "invitation_id", inv.ID, "error", err)
		}
		return nil, domain.ErrInvitationExpired
	}

	if !strings.EqualFold(inv.Email, userEmail) {
		return nil, fmt.Errorf("invitation was issued to a different address: %w", domain.ErrForbidden)
	}

	now := time.Now().UTC()
	if err := s.store.AcceptInvitation(ctx, inv, userID, now); err != nil {
		return nil, fmt.Errorf("accept invitation: %w", err)
	}

	s.publishMemberEvent(ctx, messagequeue.SubjectMemberAccepted, messagequeue.MemberEvent{
		TenantID:  inv.TenantID,
		ProjectID: inv.ProjectID,
		UserID:    userID,
		Role:      string(inv.Role),
		At:        now,
	})

	return &project.Membership{
		ProjectID: inv.ProjectID,
		TenantID:  inv.TenantID,
		UserID:    userID,
		Role:      inv.Role,
		JoinedAt:  now,
	}, nil
}

// CancelInvitation withdraws a pending invitation. The actor needs admin or
// above on the invitation's project.
func (s *AccessService) CancelInvitation(ctx context.Context, authCtx *scope.AuthContext, invitationID string) error {
	inv, err := s.store.GetInvitation(ctx, invitationID)
	if err != nil {
		return fmt.Errorf("invitation: %w", err)
	}
	if _, err := s.RequireRole(ctx, authCtx, inv.ProjectID, project.RoleAdmin); err != nil {
		return err
	}
	if inv.Status != project.InvitationPending {
		return fmt.Errorf("invitation is %s: %w", inv.Status, domain.ErrConflict)
	}
	return s.store.UpdateInvitationStatus(ctx, inv.ID, project.InvitationCancelled)
}

// ListInvitations returns a project's invitations. Tokens are cleared: they
// are redemption credentials, not list data.
func (s *AccessService) ListInvitations(ctx context.Context, authCtx *scope.AuthContext, projectID string) ([]project.Invitation, error) {
	if _, err := s.RequireRole(ctx, authCtx, projectID, project.RoleAdmin); err != nil {
		return nil, err
	}
	invs, err := s.store.ListInvitations(ctx, projectID)
	if err != nil {
		return nil, err
	}
	for i := range invs {
		invs[i].Token = ""
	}
	return invs, nil
}

// --- Memberships ---

// ListMembers returns a project's members. Any member may look.
func (s *AccessService) ListMembers(ctx context.Context, authCtx *scope.AuthContext, projectID string) ([]project.Membership, error) {
	if _, err := s.RequireRole(ctx, authCtx, projectID, project.RoleViewer); err != nil {
		return nil, err
	}
	return s.store.ListMembers(ctx, projectID)
}

// UpdateMemberRole changes a member's role. The actor needs admin or above;
// granting or revoking ownership requires an owner. Demoting the sole owner
// is refused.
func (s *AccessService) UpdateMemberRole(ctx context.Context, authCtx *scope.AuthContext, projectID, userID string, req project.UpdateMemberRoleRequest) error {
	if !project.ValidRoles[req.Role] {
		return fmt.Errorf("invalid role %q: %w", req.Role, domain.ErrValidation)
	}
	actor, err := s.RequireRole(ctx, authCtx, projectID, project.RoleAdmin)
	if err != nil {
		return err
	}

	target, err := s.store.GetMembership(ctx, projectID, userID)
	if err != nil {
		return fmt.Errorf("target membership: %w", err)
	}
	if target.Role == req.Role {
		return nil
	}

	ownershipChange := target.Role == project.RoleOwner || req.Role == project.RoleOwner
	if ownershipChange && actor.Role != project.RoleOwner {
		return fmt.Errorf("ownership changes require an owner: %w", domain.ErrForbidden)
	}

	if target.Role == project.RoleOwner {
		if err := s.ensureNotLastOwner(ctx, projectID); err != nil {
			return err
		}
	}

	return s.store.UpdateMemberRole(ctx, projectID, userID, req.Role)
}

// RemoveMember removes a member. Members may remove themselves; removing
// others needs admin or above and a target below the actor's own role. The
// sole owner can never be removed.
func (s *AccessService) RemoveMember(ctx context.Context, authCtx *scope.AuthContext, projectID, userID string) error {
	self := authCtx != nil && authCtx.UserID == userID

	var actor *project.Membership
	var err error
	if self {
		actor, err = s.RequireRole(ctx, authCtx, projectID, project.RoleViewer)
	} else {
		actor, err = s.RequireRole(ctx, authCtx, projectID, project.RoleAdmin)
	}
	if err != nil {
		return err
	}

	target, err := s.store.GetMembership(ctx, projectID, userID)
	if err != nil {
		return fmt.Errorf("target membership: %w", err)
	}

	if !self && target.Role.Level() >= actor.Role.Level() {
		return fmt.Errorf("cannot remove a member of equal or higher role: %w", domain.ErrForbidden)
	}

	if target.Role == project.RoleOwner {
		if err := s.ensureNotLastOwner(ctx, projectID); err != nil {
			return err
		}
	}

	return s.store.RemoveMember(ctx, projectID, userID)
}

// ensureNotLastOwner refuses operations that would leave a project ownerless.
func (s *AccessService) ensureNotLastOwner(ctx context.Context, projectID string) error {
	n, err := s.store.CountOwners(ctx, projectID)
	if err != nil {
		return fmt.Errorf("count owners: %w", err)
	}
	if n <= 1 {
		return domain.ErrLastOwnerProtected
	}
	return nil
}

func (s *AccessService) publishMemberEvent(ctx context.Context, subject string, ev messagequeue.MemberEvent) {
	if s.queue == nil {
		return
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	if err := s.queue.Publish(ctx, subject, data); err != nil {
		slog.Warn("failed to publish member event", "subject", subject, "error", err)
	}
}
