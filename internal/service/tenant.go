package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/ragmesh/ragmesh/internal/domain"
	"github.com/ragmesh/ragmesh/internal/domain/project"
	"github.com/ragmesh/ragmesh/internal/domain/tenant"
	"github.com/ragmesh/ragmesh/internal/port/database"
)

// TenantService manages tenants and the projects nested under them. Tenant
// and project IDs are caller-supplied slugs because they double as scope
// components in storage namespaces.
type TenantService struct {
	store database.Store
}

// NewTenantService creates a tenant service.
func NewTenantService(store database.Store) *TenantService {
	return &TenantService{store: store}
}

// CreateTenant registers a tenant owned by the caller.
func (s *TenantService) CreateTenant(ctx context.Context, ownerID string, req tenant.CreateRequest) (*tenant.Tenant, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	t := &tenant.Tenant{
		ID:          req.ID,
		Name:        req.Name,
		Description: req.Description,
		OwnerID:     ownerID,
		Active:      true,
	}
	if err := s.store.CreateTenant(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTenant returns a tenant visible to the caller: its owner or any member
// of a project under it.
func (s *TenantService) GetTenant(ctx context.Context, id, userID string) (*tenant.Tenant, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID == userID {
		return t, nil
	}
	visible, err := s.store.ListTenantsForUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	for i := range visible {
		if visible[i].ID == id {
			return t, nil
		}
	}
	return nil, fmt.Errorf("tenant %s: %w", id, domain.ErrNotFound)
}

// ListTenants returns every tenant the user owns or belongs to.
func (s *TenantService) ListTenants(ctx context.Context, userID string) ([]tenant.Tenant, error) {
	return s.store.ListTenantsForUser(ctx, userID)
}

// UpdateTenant applies mutable fields. Only the tenant owner may update.
func (s *TenantService) UpdateTenant(ctx context.Context, id, userID string, req tenant.UpdateRequest) (*tenant.Tenant, error) {
	t, err := s.store.GetTenant(ctx, id)
	if err != nil {
		return nil, err
	}
	if t.OwnerID != userID {
		return nil, fmt.Errorf("only the tenant owner may update it: %w", domain.ErrForbidden)
	}
	if req.Name != "" {
		t.Name = req.Name
	}
	if req.Active != nil {
		t.Active = *req.Active
	}
	if err := s.store.UpdateTenant(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// --- Projects ---

// CreateProject creates a project under a tenant and makes the caller its
// owner in the same transaction. The caller must own the tenant or already
// belong to it.
func (s *TenantService) CreateProject(ctx context.Context, userID string, req project.CreateRequest) (*project.Project, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}

	t, err := s.store.GetTenant(ctx, req.TenantID)
	if err != nil {
		return nil, fmt.Errorf("tenant: %w", err)
	}
	if !t.Active {
		return nil, fmt.Errorf("tenant %s is disabled: %w", t.ID, domain.ErrConflict)
	}
	if t.OwnerID != userID {
		visible, err := s.store.ListTenantsForUser(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("list tenants: %w", err)
		}
		member := false
		for i := range visible {
			if visible[i].ID == t.ID {
				member = true
				break
			}
		}
		if !member {
			return nil, fmt.Errorf("no access to tenant %s: %w", t.ID, domain.ErrForbidden)
		}
	}

	p := &project.Project{
		ID:          req.ID,
		TenantID:    req.TenantID,
		Name:        req.Name,
		Description: req.Description,
		CreatedBy:   userID,
		Active:      true,
	}
	owner := &project.Membership{
		ID:        uuid.NewString(),
		ProjectID: p.ID,
		TenantID:  p.TenantID,
		UserID:    userID,
		Role:      project.RoleOwner,
	}
	if err := s.store.CreateProject(ctx, p, owner); err != nil {
		return nil, err
	}
	p.MemberCount = 1
	p.CallerRole = project.RoleOwner
	return p, nil
}

// GetProject returns a project with the caller's role and member count. A
// caller with no membership sees nothing, not even the project's existence.
func (s *TenantService) GetProject(ctx context.Context, id, userID string) (*project.Project, error) {
	p, err := s.store.GetProjectForUser(ctx, id, userID)
	if err != nil {
		return nil, err
	}
	if p.CallerRole == "" {
		return nil, fmt.Errorf("project %s: %w", id, domain.ErrNotFound)
	}
	return p, nil
}

// ListProjects returns every project the user belongs to, across tenants.
func (s *TenantService) ListProjects(ctx context.Context, userID string) ([]project.Project, error) {
	projects, err := s.store.ListProjectsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if projects == nil {
		projects = []project.Project{}
	}
	return projects, nil
}
