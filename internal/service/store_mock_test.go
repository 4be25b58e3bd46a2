package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/ragmesh/ragmesh/internal/domain"
	"github.com/ragmesh/ragmesh/internal/domain/project"
	"github.com/ragmesh/ragmesh/internal/domain/provider"
	"github.com/ragmesh/ragmesh/internal/domain/tenant"
	"github.com/ragmesh/ragmesh/internal/domain/user"
	"github.com/ragmesh/ragmesh/internal/port/database"
)

// Ensure mockStore implements database.Store at compile time.
var _ database.Store = (*mockStore)(nil)

// mockStore is a minimal in-memory implementation of database.Store for
// testing. The mutex matters: credential resolution touches keys from a
// background goroutine.
type mockStore struct {
	mu sync.Mutex

	users         []user.User
	refreshTokens []user.RefreshToken
	tenants       []tenant.Tenant
	projects      []project.Project
	memberships   []project.Membership
	invitations   []project.Invitation
	apiKeys       []user.APIKey
	providers     []provider.Config

	// Error hooks — set these to inject failures.
	createUserErr     error
	getMembershipErr  error
	createProjectErr  error
	acceptInviteErr   error
	touchedKeyIDs     []string
}

// --- Users ---

func (m *mockStore) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createUserErr != nil {
		return m.createUserErr
	}
	for i := range m.users {
		if m.users[i].Email == u.Email {
			return domain.ErrConflict
		}
	}
	u.CreatedAt = time.Now()
	m.users = append(m.users, *u)
	return nil
}

func (m *mockStore) GetUser(_ context.Context, id string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == id {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Email == email {
			u := m.users[i]
			return &u, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) UpdateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].ID == u.ID {
			m.users[i] = *u
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Refresh tokens ---

func (m *mockStore) CreateRefreshToken(_ context.Context, rt *user.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshTokens = append(m.refreshTokens, *rt)
	return nil
}

func (m *mockStore) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*user.RefreshToken, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.refreshTokens {
		if m.refreshTokens[i].TokenHash == tokenHash {
			rt := m.refreshTokens[i]
			return &rt, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) RotateRefreshToken(_ context.Context, oldID string, next *user.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.refreshTokens {
		if m.refreshTokens[i].ID == oldID {
			m.refreshTokens[i] = *next
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteRefreshToken(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.refreshTokens {
		if m.refreshTokens[i].ID == id {
			m.refreshTokens = append(m.refreshTokens[:i], m.refreshTokens[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteRefreshTokensByUser(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.refreshTokens[:0]
	for _, rt := range m.refreshTokens {
		if rt.UserID != userID {
			kept = append(kept, rt)
		}
	}
	m.refreshTokens = kept
	return nil
}

func (m *mockStore) PurgeExpiredRefreshTokens(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var purged int64
	kept := m.refreshTokens[:0]
	for _, rt := range m.refreshTokens {
		if time.Now().After(rt.ExpiresAt) {
			purged++
			continue
		}
		kept = append(kept, rt)
	}
	m.refreshTokens = kept
	return purged, nil
}

// --- Tenants ---

func (m *mockStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].ID == t.ID {
			return domain.ErrConflict
		}
	}
	m.tenants = append(m.tenants, *t)
	return nil
}

func (m *mockStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].ID == id {
			t := m.tenants[i]
			return &t, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListTenantsForUser(_ context.Context, userID string) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tenant.Tenant
	for _, t := range m.tenants {
		if t.OwnerID == userID {
			out = append(out, t)
			continue
		}
		for _, mb := range m.memberships {
			if mb.UserID == userID && mb.TenantID == t.ID {
				out = append(out, t)
				break
			}
		}
	}
	return out, nil
}

func (m *mockStore) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.tenants {
		if m.tenants[i].ID == t.ID {
			m.tenants[i] = *t
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Projects ---

func (m *mockStore) CreateProject(_ context.Context, p *project.Project, owner *project.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createProjectErr != nil {
		return m.createProjectErr
	}
	for i := range m.projects {
		if m.projects[i].ID == p.ID {
			return domain.ErrConflict
		}
	}
	m.projects = append(m.projects, *p)
	m.memberships = append(m.memberships, *owner)
	return nil
}

func (m *mockStore) GetProject(_ context.Context, id string) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.projects {
		if m.projects[i].ID == id {
			p := m.projects[i]
			return &p, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetProjectForUser(_ context.Context, id, userID string) (*project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var p *project.Project
	for i := range m.projects {
		if m.projects[i].ID == id {
			cp := m.projects[i]
			p = &cp
			break
		}
	}
	if p == nil {
		return nil, domain.ErrNotFound
	}
	for _, mb := range m.memberships {
		if mb.ProjectID == id {
			p.MemberCount++
			if mb.UserID == userID {
				p.CallerRole = mb.Role
			}
		}
	}
	return p, nil
}

func (m *mockStore) ListProjectsForUser(_ context.Context, userID string) ([]project.Project, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []project.Project
	for _, p := range m.projects {
		for _, mb := range m.memberships {
			if mb.ProjectID == p.ID && mb.UserID == userID {
				p.CallerRole = mb.Role
				out = append(out, p)
				break
			}
		}
	}
	return out, nil
}

// --- Memberships ---

func (m *mockStore) GetMembership(_ context.Context, projectID, userID string) (*project.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getMembershipErr != nil {
		return nil, m.getMembershipErr
	}
	for i := range m.memberships {
		if m.memberships[i].ProjectID == projectID && m.memberships[i].UserID == userID {
			mb := m.memberships[i]
			return &mb, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListMembers(_ context.Context, projectID string) ([]project.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []project.Membership
	for _, mb := range m.memberships {
		if mb.ProjectID == projectID {
			out = append(out, mb)
		}
	}
	return out, nil
}

func (m *mockStore) CountOwners(_ context.Context, projectID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, mb := range m.memberships {
		if mb.ProjectID == projectID && mb.Role == project.RoleOwner {
			n++
		}
	}
	return n, nil
}

func (m *mockStore) UpdateMemberRole(_ context.Context, projectID, userID string, role project.Role) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.memberships {
		if m.memberships[i].ProjectID == projectID && m.memberships[i].UserID == userID {
			m.memberships[i].Role = role
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) RemoveMember(_ context.Context, projectID, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.memberships {
		if m.memberships[i].ProjectID == projectID && m.memberships[i].UserID == userID {
			m.memberships = append(m.memberships[:i], m.memberships[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- Invitations ---

func (m *mockStore) CreateInvitation(_ context.Context, inv *project.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invitations = append(m.invitations, *inv)
	return nil
}

func (m *mockStore) GetInvitation(_ context.Context, id string) (*project.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.invitations {
		if m.invitations[i].ID == id {
			inv := m.invitations[i]
			return &inv, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetInvitationByToken(_ context.Context, token string) (*project.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.invitations {
		if m.invitations[i].Token == token {
			inv := m.invitations[i]
			return &inv, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListInvitations(_ context.Context, projectID string) ([]project.Invitation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []project.Invitation
	for _, inv := range m.invitations {
		if inv.ProjectID == projectID {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (m *mockStore) HasPendingInvitation(_ context.Context, projectID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.ProjectID == projectID && strings.EqualFold(inv.Email, email) && inv.Status == project.InvitationPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *mockStore) IsMemberByEmail(_ context.Context, projectID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mb := range m.memberships {
		for _, u := range m.users {
			if u.ID == mb.UserID && mb.ProjectID == projectID && strings.EqualFold(u.Email, email) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (m *mockStore) AcceptInvitation(_ context.Context, inv *project.Invitation, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.acceptInviteErr != nil {
		return m.acceptInviteErr
	}
	for i := range m.invitations {
		if m.invitations[i].ID == inv.ID {
			if m.invitations[i].Status != project.InvitationPending {
				return domain.ErrAlreadyAccepted
			}
			m.invitations[i].Status = project.InvitationAccepted
			m.invitations[i].AcceptedAt = at
			m.invitations[i].AcceptedBy = userID
			m.memberships = append(m.memberships, project.Membership{
				ID:        "mb-" + inv.ID,
				ProjectID: inv.ProjectID,
				TenantID:  inv.TenantID,
				UserID:    userID,
				Role:      inv.Role,
				JoinedAt:  at,
			})
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) UpdateInvitationStatus(_ context.Context, id string, status project.InvitationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.invitations {
		if m.invitations[i].ID == id {
			m.invitations[i].Status = status
			return nil
		}
	}
	return domain.ErrNotFound
}

// --- API keys ---

func (m *mockStore) CreateAPIKey(_ context.Context, key *user.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key.CreatedAt = time.Now()
	m.apiKeys = append(m.apiKeys, *key)
	return nil
}

func (m *mockStore) GetAPIKeysByPrefix(_ context.Context, prefix string) ([]user.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []user.APIKey
	for _, k := range m.apiKeys {
		if k.Prefix == prefix {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockStore) ListAPIKeysByUser(_ context.Context, userID string) ([]user.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []user.APIKey
	for _, k := range m.apiKeys {
		if k.UserID == userID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (m *mockStore) RevokeAPIKey(_ context.Context, id, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.apiKeys {
		if m.apiKeys[i].ID == id && m.apiKeys[i].UserID == userID {
			m.apiKeys[i].Active = false
			m.apiKeys[i].RevokedAt = at
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteAPIKey(_ context.Context, id, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.apiKeys {
		if m.apiKeys[i].ID == id && m.apiKeys[i].UserID == userID {
			m.apiKeys = append(m.apiKeys[:i], m.apiKeys[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.touchedKeyIDs = append(m.touchedKeyIDs, id)
	for i := range m.apiKeys {
		if m.apiKeys[i].ID == id {
			m.apiKeys[i].LastUsedAt = at
			return nil
		}
	}
	return nil
}

// --- Provider configs ---

func (m *mockStore) CreateProviderConfig(_ context.Context, cfg *provider.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.Default {
		m.clearDefault(cfg.ProjectID)
	}
	m.providers = append(m.providers, *cfg)
	return nil
}

func (m *mockStore) GetProviderConfig(_ context.Context, id string) (*provider.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.providers {
		if m.providers[i].ID == id {
			cfg := m.providers[i]
			return &cfg, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) GetDefaultProviderConfig(_ context.Context, projectID string) (*provider.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.providers {
		if m.providers[i].ProjectID == projectID && m.providers[i].Default {
			cfg := m.providers[i]
			return &cfg, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *mockStore) ListProviderConfigs(_ context.Context, projectID string) ([]provider.Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []provider.Config
	for _, cfg := range m.providers {
		if cfg.ProjectID == projectID {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (m *mockStore) UpdateProviderConfig(_ context.Context, cfg *provider.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.providers {
		if m.providers[i].ID == cfg.ID {
			if cfg.Default {
				m.clearDefault(cfg.ProjectID)
			}
			m.providers[i] = *cfg
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) DeleteProviderConfig(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.providers {
		if m.providers[i].ID == id {
			m.providers = append(m.providers[:i], m.providers[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *mockStore) clearDefault(projectID string) {
	for i := range m.providers {
		if m.providers[i].ProjectID == projectID {
			m.providers[i].Default = false
		}
	}
}
