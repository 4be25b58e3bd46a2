// Package project defines projects, memberships, and invitations.
// A project is the isolation boundary nested under a tenant; the pair
// (tenant_id, project_id) keys every engine instance and storage namespace.
package project

import (
	"errors"
	"time"

	"github.com/ragmesh/ragmesh/internal/domain/scope"
)

// Project is scoped under exactly one tenant. The ID is also globally unique
// so child resources can reference it alone.
type Project struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	CreatedBy   string    `json:"created_by"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// MemberCount and CallerRole are populated on reads that join memberships.
	MemberCount int    `json:"member_count,omitempty"`
	CallerRole  Role   `json:"caller_role,omitempty"`
}

// CreateRequest holds the fields required to create a project.
// The ID is a caller-supplied slug used as a scope component.
type CreateRequest struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenant_id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Validate checks the CreateRequest.
func (r *CreateRequest) Validate() error {
	if err := scope.ValidateComponent(r.ID); err != nil {
		return err
	}
	if err := scope.ValidateComponent(r.TenantID); err != nil {
		return errors.New("tenant_id: " + err.Error())
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	return nil
}

// Role is a membership role within a project.
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
)

// Level orders roles for comparison: owner > admin > member > viewer.
// Unknown roles rank below viewer.
func (r Role) Level() int {
	switch r {
	case RoleOwner:
		return 4
	case RoleAdmin:
		return 3
	case RoleMember:
		return 2
	case RoleViewer:
		return 1
	}
	return 0
}

// AtLeast reports whether r grants the capability floor min.
func (r Role) AtLeast(min Role) bool {
	return r.Level() >= min.Level()
}

// ValidRoles is the closed set of membership roles.
var ValidRoles = map[Role]bool{
	RoleOwner:  true,
	RoleAdmin:  true,
	RoleMember: true,
	RoleViewer: true,
}

// Membership is the ternary relation (user, project, role).
// Exactly one row exists per (user, project) pair.
type Membership struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	TenantID  string    `json:"tenant_id"`
	UserID    string    `json:"user_id"`
	Role      Role      `json:"role"`
	JoinedAt  time.Time `json:"joined_at"`

	// UserEmail and UserName are populated on member listings.
	UserEmail string `json:"user_email,omitempty"`
	UserName  string `json:"user_name,omitempty"`
}

// InvitationStatus is the invitation state machine:
// pending -> accepted | expired | cancelled.
type InvitationStatus string

const (
	InvitationPending   InvitationStatus = "pending"
	InvitationAccepted  InvitationStatus = "accepted"
	InvitationExpired   InvitationStatus = "expired"
	InvitationCancelled InvitationStatus = "cancelled"
)

// Invitation is a pending offer of membership, redeemed by token.
type Invitation struct {
	ID         string           `json:"id"`
	ProjectID  string           `json:"project_id"`
	TenantID   string           `json:"tenant_id"`
	Email      string           `json:"email"`
	Role       Role             `json:"role"`
	InvitedBy  string           `json:"invited_by"`
	Token      string           `json:"token,omitempty"`
	Status     InvitationStatus `json:"status"`
	ExpiresAt  time.Time        `json:"expires_at"`
	CreatedAt  time.Time        `json:"created_at"`
	AcceptedAt time.Time        `json:"accepted_at,omitzero"`
	AcceptedBy string           `json:"accepted_by,omitempty"`
}

// InviteRequest is the input for inviting a member.
type InviteRequest struct {
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// Validate checks the InviteRequest. Owners are never created by invitation.
func (r *InviteRequest) Validate() error {
	if r.Email == "" {
		return errors.New("email is required")
	}
	if r.Role == "" {
		r.Role = RoleMember
	}
	if !ValidRoles[r.Role] {
		return errors.New("invalid role")
	}
	if r.Role == RoleOwner {
		return errors.New("ownership is not granted by invitation")
	}
	return nil
}

// UpdateMemberRoleRequest changes a member's role.
type UpdateMemberRoleRequest struct {
	Role Role `json:"role"`
}
