package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ragmesh/ragmesh/internal/domain"
	"github.com/ragmesh/ragmesh/internal/domain/project"
)

// --- Projects ---

// CreateProject inserts the project and the creator's owner membership in one
// transaction, so a project can never exist without an owner.
func (s *Store) CreateProject(ctx context.Context, p *project.Project, owner *project.Membership) error {
	now := time.Now().UTC()
	p.CreatedAt, p.UpdatedAt = now, now
	owner.JoinedAt = now
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO projects (id, tenant_id, name, description, created_by, active, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			p.ID, p.TenantID, p.Name, p.Description, p.CreatedBy, p.Active, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return conflictWrap(err, "create project %s", p.ID)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO project_members (id, project_id, tenant_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			owner.ID, owner.ProjectID, owner.TenantID, owner.UserID, owner.Role, owner.JoinedAt,
		)
		if err != nil {
			return fmt.Errorf("create owner membership: %w", err)
		}
		return nil
	})
	return err
}

func (s *Store) GetProject(ctx context.Context, id string) (*project.Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, tenant_id, name, description, created_by, active, created_at, updated_at
		FROM projects WHERE id = $1`, id)

	var p project.Project
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.CreatedBy, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get project %s", id)
	}
	return &p, nil
}

// GetProjectForUser returns the project together with the caller's role and
// the member count.
func (s *Store) GetProjectForUser(ctx context.Context, id, userID string) (*project.Project, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT p.id, p.tenant_id, p.name, p.description, p.created_by, p.active, p.created_at, p.updated_at,
		       COALESCE(pm.role, ''),
		       (SELECT COUNT(*) FROM project_members WHERE project_id = p.id)
		FROM projects p
		LEFT JOIN project_members pm ON pm.project_id = p.id AND pm.user_id = $2
		WHERE p.id = $1`, id, userID)

	var p project.Project
	err := row.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.CreatedBy, &p.Active,
		&p.CreatedAt, &p.UpdatedAt, &p.CallerRole, &p.MemberCount)
	if err != nil {
		return nil, notFoundWrap(err, "get project %s", id)
	}
	return &p, nil
}

func (s *Store) ListProjectsForUser(ctx context.Context, userID string) ([]project.Project, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.tenant_id, p.name, p.description, p.created_by, p.active, p.created_at, p.updated_at,
		       pm.role,
		       (SELECT COUNT(*) FROM project_members WHERE project_id = p.id)
		FROM projects p
		JOIN project_members pm ON pm.project_id = p.id
		WHERE pm.user_id = $1
		ORDER BY p.created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()

	var projects []project.Project
	for rows.Next() {
		var p project.Project
		if err := rows.Scan(&p.ID, &p.TenantID, &p.Name, &p.Description, &p.CreatedBy, &p.Active,
			&p.CreatedAt, &p.UpdatedAt, &p.CallerRole, &p.MemberCount); err != nil {
			return nil, fmt.Errorf("scan project: %w", err)
		}
		projects = append(projects, p)
	}
	return projects, rows.Err()
}

// --- Memberships ---

func (s *Store) GetMembership(ctx context.Context, projectID, userID string) (*project.Membership, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, tenant_id, user_id, role, joined_at
		FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)

	var m project.Membership
	err := row.Scan(&m.ID, &m.ProjectID, &m.TenantID, &m.UserID, &m.Role, &m.JoinedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get membership")
	}
	return &m, nil
}

func (s *Store) ListMembers(ctx context.Context, projectID string) ([]project.Membership, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pm.id, pm.project_id, pm.tenant_id, pm.user_id, pm.role, pm.joined_at, u.email, u.name
		FROM project_members pm
		JOIN users u ON u.id = pm.user_id
		WHERE pm.project_id = $1
		ORDER BY pm.joined_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list members: %w", err)
	}
	defer rows.Close()

	var members []project.Membership
	for rows.Next() {
		var m project.Membership
		if err := rows.Scan(&m.ID, &m.ProjectID, &m.TenantID, &m.UserID, &m.Role, &m.JoinedAt,
			&m.UserEmail, &m.UserName); err != nil {
			return nil, fmt.Errorf("scan member: %w", err)
		}
		members = append(members, m)
	}
	return members, rows.Err()
}

func (s *Store) CountOwners(ctx context.Context, projectID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM project_members WHERE project_id = $1 AND role = $2`,
		projectID, project.RoleOwner,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count owners: %w", err)
	}
	return n, nil
}

func (s *Store) UpdateMemberRole(ctx context.Context, projectID, userID string, role project.Role) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE project_members SET role = $3 WHERE project_id = $1 AND user_id = $2`,
		projectID, userID, role,
	)
	return execExpectOne(tag, err, "update member role")
}

func (s *Store) RemoveMember(ctx context.Context, projectID, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`,
		projectID, userID,
	)
	return execExpectOne(tag, err, "remove member")
}

// --- Invitations ---

func (s *Store) CreateInvitation(ctx context.Context, inv *project.Invitation) error {
	inv.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO invitations (id, project_id, tenant_id, email, role, invited_by, token, status, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		inv.ID, inv.ProjectID, inv.TenantID, inv.Email, inv.Role, inv.InvitedBy,
		inv.Token, inv.Status, inv.ExpiresAt, inv.CreatedAt,
	)
	if err != nil {
		return conflictWrap(err, "create invitation")
	}
	return nil
}

func (s *Store) GetInvitation(ctx context.Context, id string) (*project.Invitation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, tenant_id, email, role, invited_by, status, expires_at, created_at, accepted_at, accepted_by
		FROM invitations WHERE id = $1`, id)
	return scanInvitation(row)
}

func (s *Store) GetInvitationByToken(ctx context.Context, token string) (*project.Invitation, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT id, project_id, tenant_id, email, role, invited_by, status, expires_at, created_at, accepted_at, accepted_by
		FROM invitations WHERE token = $1`, token)
	return scanInvitation(row)
}

func scanInvitation(row scannable) (*project.Invitation, error) {
	var inv project.Invitation
	var acceptedAt *time.Time
	var acceptedBy *string
	err := row.Scan(&inv.ID, &inv.ProjectID, &inv.TenantID, &inv.Email, &inv.Role, &inv.InvitedBy,
		&inv.Status, &inv.ExpiresAt, &inv.CreatedAt, &acceptedAt, &acceptedBy)
	if err != nil {
		return nil, notFoundWrap(err, "get invitation")
	}
	inv.AcceptedAt = timeOrZero(acceptedAt)
	if acceptedBy != nil {
		inv.AcceptedBy = *acceptedBy
	}
	return &inv, nil
}

func (s *Store) ListInvitations(ctx context.Context, projectID string) ([]project.Invitation, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, project_id, tenant_id, email, role, invited_by, status, expires_at, created_at, accepted_at, accepted_by
		FROM invitations WHERE project_id = $1
		ORDER BY created_at DESC`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list invitations: %w", err)
	}
	defer rows.Close()

	var invs []project.Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, fmt.Errorf("scan invitation: %w", err)
		}
		invs = append(invs, *inv)
	}
	return invs, rows.Err()
}

func (s *Store) HasPendingInvitation(ctx context.Context, projectID, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM invitations
			WHERE project_id = $1 AND email = $2 AND status = $3
		)`, projectID, email, project.InvitationPending,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check pending invitation: %w", err)
	}
	return exists, nil
}

func (s *Store) IsMemberByEmail(ctx context.Context, projectID, email string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM project_members pm
			JOIN users u ON u.id = pm.user_id
			WHERE pm.project_id = $1 AND u.email = $2
		)`, projectID, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check member by email: %w", err)
	}
	return exists, nil
}

// AcceptInvitation inserts the membership and marks the invitation accepted in
// one transaction. The status guard in the UPDATE makes double-acceptance lose
// the race cleanly: the second transaction updates zero rows and aborts.
func (s *Store) AcceptInvitation(ctx context.Context, inv *project.Invitation, userID string, at time.Time) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE invitations SET status = $2, accepted_at = $3, accepted_by = $4
			WHERE id = $1 AND status = $5`,
			inv.ID, project.InvitationAccepted, at, userID, project.InvitationPending,
		)
		if err != nil {
			return fmt.Errorf("mark invitation accepted: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("accept invitation: %w", domain.ErrAlreadyAccepted)
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO project_members (id, project_id, tenant_id, user_id, role, joined_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			uuid.NewString(), inv.ProjectID, inv.TenantID, userID, inv.Role, at,
		)
		if err != nil {
			return conflictWrap(err, "insert membership")
		}
		return nil
	})
}

func (s *Store) UpdateInvitationStatus(ctx context.Context, id string, status project.InvitationStatus) error {
	tag, err := s.pool.Exec(ctx, `UPDATE invitations SET status = $2 WHERE id = $1`, id, status)
	return execExpectOne(tag, err, "update invitation %s", id)
}

