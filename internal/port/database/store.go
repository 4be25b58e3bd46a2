// Package database defines the database store port (interface).
package database

import (
	"context"
	"time"

	"github.com/ragmesh/ragmesh/internal/domain/project"
	"github.com/ragmesh/ragmesh/internal/domain/provider"
	"github.com/ragmesh/ragmesh/internal/domain/tenant"
	"github.com/ragmesh/ragmesh/internal/domain/user"
)

// Store is the port interface for relational persistence. Implementations use
// ordinary transactional semantics; read committed is sufficient. No method
// holds long-lived locks.
type Store interface {
	// Users
	CreateUser(ctx context.Context, u *user.User) error
	GetUser(ctx context.Context, id string) (*user.User, error)
	GetUserByEmail(ctx context.Context, email string) (*user.User, error)
	UpdateUser(ctx context.Context, u *user.User) error

	// Refresh tokens
	CreateRefreshToken(ctx context.Context, rt *user.RefreshToken) error
	GetRefreshTokenByHash(ctx context.Context, tokenHash string) (*user.RefreshToken, error)
	RotateRefreshToken(ctx context.Context, oldID string, next *user.RefreshToken) error
	DeleteRefreshToken(ctx context.Context, id string) error
	DeleteRefreshTokensByUser(ctx context.Context, userID string) error
	PurgeExpiredRefreshTokens(ctx context.Context) (int64, error)

	// Tenants
	CreateTenant(ctx context.Context, t *tenant.Tenant) error
	GetTenant(ctx context.Context, id string) (*tenant.Tenant, error)
	ListTenantsForUser(ctx context.Context, userID string) ([]tenant.Tenant, error)
	UpdateTenant(ctx context.Context, t *tenant.Tenant) error

	// Projects. CreateProject also inserts the creator's owner membership in
	// the same transaction.
	CreateProject(ctx context.Context, p *project.Project, owner *project.Membership) error
	GetProject(ctx context.Context, id string) (*project.Project, error)
	GetProjectForUser(ctx context.Context, id, userID string) (*project.Project, error)
	ListProjectsForUser(ctx context.Context, userID string) ([]project.Project, error)

	// Memberships
	GetMembership(ctx context.Context, projectID, userID string) (*project.Membership, error)
	ListMembers(ctx context.Context, projectID string) ([]project.Membership, error)
	CountOwners(ctx context.Context, projectID string) (int, error)
	UpdateMemberRole(ctx context.Context, projectID, userID string, role project.Role) error
	RemoveMember(ctx context.Context, projectID, userID string) error

	// Invitations. AcceptInvitation inserts the membership and marks the
	// invitation accepted in one transaction.
	CreateInvitation(ctx context.Context, inv *project.Invitation) error
	GetInvitation(ctx context.Context, id string) (*project.Invitation, error)
	GetInvitationByToken(ctx context.Context, token string) (*project.Invitation, error)
	ListInvitations(ctx context.Context, projectID string) ([]project.Invitation, error)
	HasPendingInvitation(ctx context.Context, projectID, email string) (bool, error)
	IsMemberByEmail(ctx context.Context, projectID, email string) (bool, error)
	AcceptInvitation(ctx context.Context, inv *project.Invitation, userID string, at time.Time) error
	UpdateInvitationStatus(ctx context.Context, id string, status project.InvitationStatus) error

	// API keys. GetAPIKeysByPrefix is served by an index on the prefix column
	// so validation never scans the table.
	CreateAPIKey(ctx context.Context, key *user.APIKey) error
	GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]user.APIKey, error)
	ListAPIKeysByUser(ctx context.Context, userID string) ([]user.APIKey, error)
	RevokeAPIKey(ctx context.Context, id, userID string, at time.Time) error
	DeleteAPIKey(ctx context.Context, id, userID string) error
	TouchAPIKey(ctx context.Context, id string, at time.Time) error

	// Provider configs. Creating or updating a config with Default set clears
	// the previous default for the project in the same transaction.
	CreateProviderConfig(ctx context.Context, cfg *provider.Config) error
	GetProviderConfig(ctx context.Context, id string) (*provider.Config, error)
	GetDefaultProviderConfig(ctx context.Context, projectID string) (*provider.Config, error)
	ListProviderConfigs(ctx context.Context, projectID string) ([]provider.Config, error)
	UpdateProviderConfig(ctx context.Context, cfg *provider.Config) error
	DeleteProviderConfig(ctx context.Context, id string) error
}
