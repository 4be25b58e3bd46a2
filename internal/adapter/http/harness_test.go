package http_test

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	rmhttp "github.com/ragmesh/ragmesh/internal/adapter/http"
	"github.com/ragmesh/ragmesh/internal/config"
	"github.com/ragmesh/ragmesh/internal/domain"
	"github.com/ragmesh/ragmesh/internal/domain/document"
	"github.com/ragmesh/ragmesh/internal/domain/project"
	"github.com/ragmesh/ragmesh/internal/domain/provider"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/domain/tenant"
	"github.com/ragmesh/ragmesh/internal/domain/user"
	"github.com/ragmesh/ragmesh/internal/middleware"
	"github.com/ragmesh/ragmesh/internal/port/database"
	"github.com/ragmesh/ragmesh/internal/port/engine"
	"github.com/ragmesh/ragmesh/internal/service"
)

// newTestServer wires real services over an in-memory store and a stub
// engine, mounted exactly as the binary mounts them.
func newTestServer(t *testing.T) (*httptest.Server, *testStore) {
	t.Helper()

	store := &testStore{}
	authCfg := &config.Auth{
		JWTSecret:          "handler-test-secret-key-0123456789abcdef",
		AccessTokenExpiry:  15 * time.Minute,
		RefreshTokenExpiry: 7 * 24 * time.Hour,
		BcryptCost:         4,
		InviteExpiry:       7 * 24 * time.Hour,
		KeyCacheTTL:        30 * time.Second,
	}

	log := slog.New(slog.DiscardHandler)
	authSvc := service.NewAuthService(store, authCfg, nil, nil)
	accessSvc := service.NewAccessService(store, nil, authCfg)
	tenantSvc := service.NewTenantService(store)
	providerSvc := service.NewProviderService(store, accessSvc, nil)
	poolSvc := service.NewPoolService(&stubFactory{}, config.Pool{
		MaxInstances:  4,
		TTL:           time.Hour,
		SweepInterval: time.Hour,
	}, nil, nil, log)
	ragSvc := service.NewRAGService(poolSvc, accessSvc, providerSvc, nil)

	h := &rmhttp.Handlers{
		Auth:      authSvc,
		Access:    accessSvc,
		Tenants:   tenantSvc,
		Providers: providerSvc,
		RAG:       ragSvc,
	}

	r := chi.NewRouter()
	r.Use(middleware.Auth(authSvc))
	rmhttp.MountRoutes(r, h)

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, store
}

// stubInstance satisfies the engine port without touching storage.
type stubInstance struct {
	key scope.Key
}

func (s *stubInstance) Insert(_ context.Context, req document.InsertRequest) (int, error) {
	return len(strings.Fields(req.Content)), nil
}

func (s *stubInstance) Query(_ context.Context, req document.QueryRequest) (*document.QueryResult, error) {
	return &document.QueryResult{Answer: "stub answer", Mode: req.Mode}, nil
}

func (s *stubInstance) Drop(context.Context) error  { return nil }
func (s *stubInstance) Flush(context.Context) error { return nil }
func (s *stubInstance) Close(context.Context) error { return nil }
func (s *stubInstance) Scope() scope.Key            { return s.key }

type stubFactory struct{}

func (f *stubFactory) Build(_ context.Context, key scope.Key, _ *provider.Config) (engine.Instance, error) {
	return &stubInstance{key: key}, nil
}

// testStore is an in-memory database.Store. The mutex matters: credential
// resolution touches API keys from a background goroutine.
type testStore struct {
	mu sync.Mutex

	users         []user.User
	refreshTokens []user.RefreshToken
	tenants       []tenant.Tenant
	projects      []project.Project
	memberships   []project.Membership
	invitations   []project.Invitation
	apiKeys       []user.APIKey
	providers     []provider.Config
}

var _ database.Store = (*testStore)(nil)

func (m *testStore) CreateUser(_ context.Context, u *user.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.users {
		if m.users[i].Email == u.Email {
			return domain.ErrConflict
		}
	}
	m.users = append(m.users, *u)
	return nil
}

func (m *testStore) GetUser(_ context.Context, id string) (*user.User, error) {
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

func (m *testStore) GetUserByEmail(_ context.Context, email string) (*user.User, error) {
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

func (m *testStore) UpdateUser(_ context.Context, u *user.User) error {
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

func (m *testStore) CreateRefreshToken(_ context.Context, rt *user.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.refreshTokens = append(m.refreshTokens, *rt)
	return nil
}

func (m *testStore) GetRefreshTokenByHash(_ context.Context, tokenHash string) (*user.RefreshToken, error) {
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

func (m *testStore) RotateRefreshToken(_ context.Context, oldID string, next *user.RefreshToken) error {
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

func (m *testStore) DeleteRefreshToken(_ context.Context, id string) error {
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

func (m *testStore) DeleteRefreshTokensByUser(_ context.Context, userID string) error {
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

func (m *testStore) PurgeExpiredRefreshTokens(_ context.Context) (int64, error) {
	return 0, nil
}

func (m *testStore) CreateTenant(_ context.Context, t *tenant.Tenant) error {
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

func (m *testStore) GetTenant(_ context.Context, id string) (*tenant.Tenant, error) {
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

func (m *testStore) ListTenantsForUser(_ context.Context, userID string) ([]tenant.Tenant, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []tenant.Tenant
	for _, t := range m.tenants {
		if t.OwnerID == userID {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *testStore) UpdateTenant(_ context.Context, t *tenant.Tenant) error {
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

func (m *testStore) CreateProject(_ context.Context, p *project.Project, owner *project.Membership) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.projects {
		if m.projects[i].ID == p.ID {
			return domain.ErrConflict
		}
	}
	m.projects = append(m.projects, *p)
	m.memberships = append(m.memberships, *owner)
	return nil
}

func (m *testStore) GetProject(_ context.Context, id string) (*project.Project, error) {
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

func (m *testStore) GetProjectForUser(_ context.Context, id, userID string) (*project.Project, error) {
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

func (m *testStore) ListProjectsForUser(_ context.Context, userID string) ([]project.Project, error) {
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

func (m *testStore) GetMembership(_ context.Context, projectID, userID string) (*project.Membership, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.memberships {
		if m.memberships[i].ProjectID == projectID && m.memberships[i].UserID == userID {
			mb := m.memberships[i]
			return &mb, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (m *testStore) ListMembers(_ context.Context, projectID string) ([]project.Membership, error) {
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

func (m *testStore) CountOwners(_ context.Context, projectID string) (int, error) {
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

func (m *testStore) UpdateMemberRole(_ context.Context, projectID, userID string, role project.Role) error {
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

func (m *testStore) RemoveMember(_ context.Context, projectID, userID string) error {
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

func (m *testStore) CreateInvitation(_ context.Context, inv *project.Invitation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invitations = append(m.invitations, *inv)
	return nil
}

func (m *testStore) GetInvitation(_ context.Context, id string) (*project.Invitation, error) {
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

func (m *testStore) GetInvitationByToken(_ context.Context, token string) (*project.Invitation, error) {
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

func (m *testStore) ListInvitations(_ context.Context, projectID string) ([]project.Invitation, error) {
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

func (m *testStore) HasPendingInvitation(_ context.Context, projectID, email string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, inv := range m.invitations {
		if inv.ProjectID == projectID && strings.EqualFold(inv.Email, email) && inv.Status == project.InvitationPending {
			return true, nil
		}
	}
	return false, nil
}

func (m *testStore) IsMemberByEmail(_ context.Context, projectID, email string) (bool, error) {
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

func (m *testStore) AcceptInvitation(_ context.Context, inv *project.Invitation, userID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
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

func (m *testStore) UpdateInvitationStatus(_ context.Context, id string, status project.InvitationStatus) error {
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

func (m *testStore) CreateAPIKey(_ context.Context, key *user.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.apiKeys = append(m.apiKeys, *key)
	return nil
}

func (m *testStore) GetAPIKeysByPrefix(_ context.Context, prefix string) ([]user.APIKey, error) {
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

func (m *testStore) ListAPIKeysByUser(_ context.Context, userID string) ([]user.APIKey, error) {
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

func (m *testStore) RevokeAPIKey(_ context.Context, id, userID string, at time.Time) error {
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

func (m *testStore) DeleteAPIKey(_ context.Context, id, userID string) error {
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

func (m *testStore) TouchAPIKey(_ context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.apiKeys {
		if m.apiKeys[i].ID == id {
			m.apiKeys[i].LastUsedAt = at
		}
	}
	return nil
}

func (m *testStore) CreateProviderConfig(_ context.Context, cfg *provider.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg.Default {
		for i := range m.providers {
			if m.providers[i].ProjectID == cfg.ProjectID {
				m.providers[i].Default = false
			}
		}
	}
	m.providers = append(m.providers, *cfg)
	return nil
}

func (m *testStore) GetProviderConfig(_ context.Context, id string) (*provider.Config, error) {
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

func (m *testStore) GetDefaultProviderConfig(_ context.Context, projectID string) (*provider.Config, error) {
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

func (m *testStore) ListProviderConfigs(_ context.Context, projectID string) ([]provider.Config, error) {
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

func (m *testStore) UpdateProviderConfig(_ context.Context, cfg *provider.Config) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.providers {
		if m.providers[i].ID == cfg.ID {
			m.providers[i] = *cfg
			return nil
		}
	}
	return domain.ErrNotFound
}

func (m *testStore) DeleteProviderConfig(_ context.Context, id string) error {
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
