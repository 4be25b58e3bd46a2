package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ragmesh/ragmesh/internal/domain/user"
)

func (s *Store) CreateAPIKey(ctx context.Context, k *user.APIKey) error {
	k.CreatedAt = time.Now().UTC()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_keys (id, user_id, tenant_id, project_id, name, key_prefix, key_hash,
		                      scopes, active, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		k.ID, k.UserID, k.TenantID, k.ProjectID, k.Name, k.Prefix, k.KeyHash,
		pgTextArray(k.Scopes), k.Active, nullTime(k.ExpiresAt), k.CreatedAt,
	)
	if err != nil {
		return conflictWrap(err, "create api key")
	}
	return nil
}

// GetAPIKeysByPrefix returns every key sharing the given display prefix. The
// prefix narrows candidates to a handful; the caller matches the hash.
func (s *Store) GetAPIKeysByPrefix(ctx context.Context, prefix string) ([]user.APIKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, tenant_id, project_id, name, key_prefix, key_hash,
		       scopes, active, last_used_at, expires_at, revoked_at, created_at
		FROM api_keys WHERE key_prefix = $1`, prefix)
	if err != nil {
		return nil, fmt.Errorf("get api keys by prefix: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func (s *Store) ListAPIKeysByUser(ctx context.Context, userID string) ([]user.APIKey, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, tenant_id, project_id, name, key_prefix, key_hash,
		       scopes, active, last_used_at, expires_at, revoked_at, created_at
		FROM api_keys WHERE user_id = $1
		ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	defer rows.Close()
	return scanAPIKeys(rows)
}

func scanAPIKeys(rows pgx.Rows) ([]user.APIKey, error) {
	var keys []user.APIKey
	for rows.Next() {
		var k user.APIKey
		var lastUsed, expires, revoked *time.Time
		if err := rows.Scan(&k.ID, &k.UserID, &k.TenantID, &k.ProjectID, &k.Name, &k.Prefix,
			&k.KeyHash, &k.Scopes, &k.Active, &lastUsed, &expires, &revoked, &k.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan api key: %w", err)
		}
		k.LastUsedAt = timeOrZero(lastUsed)
		k.ExpiresAt = timeOrZero(expires)
		k.RevokedAt = timeOrZero(revoked)
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

// RevokeAPIKey deactivates a key. The user_id guard keeps one user from
// revoking another's key.
func (s *Store) RevokeAPIKey(ctx context.Context, id, userID string, at time.Time) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE api_keys SET active = false, revoked_at = $3
		WHERE id = $1 AND user_id = $2 AND revoked_at IS NULL`,
		id, userID, at,
	)
	return execExpectOne(tag, err, "revoke api key %s", id)
}

func (s *Store) DeleteAPIKey(ctx context.Context, id, userID string) error {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM api_keys WHERE id = $1 AND user_id = $2`, id, userID)
	return execExpectOne(tag, err, "delete api key %s", id)
}

// TouchAPIKey records usage. Best-effort: callers fire it asynchronously and
// only log failures.
func (s *Store) TouchAPIKey(ctx context.Context, id string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch api key %s: %w", id, err)
	}
	return nil
}
