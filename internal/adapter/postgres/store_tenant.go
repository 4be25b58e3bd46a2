package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/ragmesh/ragmesh/internal/domain/tenant"
)

func (s *Store) CreateTenant(ctx context.Context, t *tenant.Tenant) error {
	now := time.Now().UTC()
	t.CreatedAt, t.UpdatedAt = now, now
	_, err := s.pool.Exec(ctx, `
		INSERT INTO tenants (id, name, description, owner_id, active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		t.ID, t.Name, t.Description, t.OwnerID, t.Active, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		return conflictWrap(err, "create tenant %s", t.ID)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id string) (*tenant.Tenant, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, name, description, owner_id, active, created_at, updated_at
		FROM tenants WHERE id = $1`, id)

	var t tenant.Tenant
	err := row.Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.Active, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get tenant %s", id)
	}
	return &t, nil
}

// ListTenantsForUser returns tenants the user owns or belongs to through a
// project membership.
func (s *Store) ListTenantsForUser(ctx context.Context, userID string) ([]tenant.Tenant, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, description, owner_id, active, created_at, updated_at
		FROM tenants
		WHERE owner_id = $1 OR id IN (
			SELECT DISTINCT tenant_id FROM project_members WHERE user_id = $1
		)
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list tenants: %w", err)
	}
	defer rows.Close()

	var tenants []tenant.Tenant
	for rows.Next() {
		var t tenant.Tenant
		if err := rows.Scan(&t.ID, &t.Name, &t.Description, &t.OwnerID, &t.Active, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan tenant: %w", err)
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (s *Store) UpdateTenant(ctx context.Context, t *tenant.Tenant) error {
	t.UpdatedAt = time.Now().UTC()
	tag, err := s.pool.Exec(ctx, `
		UPDATE tenants SET name = $2, description = $3, active = $4, updated_at = $5
		WHERE id = $1`,
		t.ID, t.Name, t.Description, t.Active, t.UpdatedAt,
	)
	return execExpectOne(tag, err, "update tenant %s", t.ID)
}
