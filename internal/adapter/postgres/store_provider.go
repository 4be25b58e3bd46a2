package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ragmesh/ragmesh/internal/domain/provider"
)

// CreateProviderConfig inserts a config. When Default is set the previous
// default for the project is cleared in the same transaction, so at most one
// default exists per project at any time.
func (s *Store) CreateProviderConfig(ctx context.Context, cfg *provider.Config) error {
	now := time.Now().UTC()
	cfg.CreatedAt, cfg.UpdatedAt = now, now
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if cfg.Default {
			if err := clearDefaultProvider(ctx, tx, cfg.ProjectID); err != nil {
				return err
			}
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO provider_configs (id, tenant_id, project_id, name, kind, model, base_url,
			                              embed_model, temperature, max_tokens, secret_enc, is_default,
			                              created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
			cfg.ID, cfg.TenantID, cfg.ProjectID, cfg.Name, cfg.Kind, cfg.Model, cfg.BaseURL,
			cfg.EmbedModel, cfg.Temperature, cfg.MaxTokens, cfg.SecretEnc, cfg.Default,
			cfg.CreatedBy, cfg.CreatedAt, cfg.UpdatedAt,
		)
		if err != nil {
			return conflictWrap(err, "create provider config %s", cfg.Name)
		}
		return nil
	})
}

func clearDefaultProvider(ctx context.Context, tx pgx.Tx, projectID string) error {
	_, err := tx.Exec(ctx, `
		UPDATE provider_configs SET is_default = false, updated_at = now()
		WHERE project_id = $1 AND is_default`, projectID)
	if err != nil {
		return fmt.Errorf("clear default provider: %w", err)
	}
	return nil
}

const providerColumns = `id, tenant_id, project_id, name, kind, model, base_url,
	embed_model, temperature, max_tokens, secret_enc, is_default, created_by, created_at, updated_at`

func scanProviderConfig(row scannable) (*provider.Config, error) {
	var cfg provider.Config
	err := row.Scan(&cfg.ID, &cfg.TenantID, &cfg.ProjectID, &cfg.Name, &cfg.Kind, &cfg.Model,
		&cfg.BaseURL, &cfg.EmbedModel, &cfg.Temperature, &cfg.MaxTokens, &cfg.SecretEnc,
		&cfg.Default, &cfg.CreatedBy, &cfg.CreatedAt, &cfg.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (s *Store) GetProviderConfig(ctx context.Context, id string) (*provider.Config, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM provider_configs WHERE id = $1`, id)
	cfg, err := scanProviderConfig(row)
	if err != nil {
		return nil, notFoundWrap(err, "get provider config %s", id)
	}
	return cfg, nil
}

func (s *Store) GetDefaultProviderConfig(ctx context.Context, projectID string) (*provider.Config, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+providerColumns+` FROM provider_configs WHERE project_id = $1 AND is_default`, projectID)
	cfg, err := scanProviderConfig(row)
	if err != nil {
		return nil, notFoundWrap(err, "get default provider config for %s", projectID)
	}
	return cfg, nil
}

func (s *Store) ListProviderConfigs(ctx context.Context, projectID string) ([]provider.Config, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+providerColumns+` FROM provider_configs WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, fmt.Errorf("list provider configs: %w", err)
	}
	defer rows.Close()

	var configs []provider.Config
	for rows.Next() {
		cfg, err := scanProviderConfig(rows)
		if err != nil {
			return nil, fmt.Errorf("scan provider config: %w", err)
		}
		configs = append(configs, *cfg)
	}
	return configs, rows.Err()
}

func (s *Store) UpdateProviderConfig(ctx context.Context, cfg *provider.Config) error {
	cfg.UpdatedAt = time.Now().UTC()
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if cfg.Default {
			if err := clearDefaultProvider(ctx, tx, cfg.ProjectID); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
			UPDATE provider_configs
			SET name = $2, model = $3, base_url = $4, embed_model = $5, temperature = $6,
			    max_tokens = $7, secret_enc = $8, is_default = $9, updated_at = $10
			WHERE id = $1`,
			cfg.ID, cfg.Name, cfg.Model, cfg.BaseURL, cfg.EmbedModel, cfg.Temperature,
			cfg.MaxTokens, cfg.SecretEnc, cfg.Default, cfg.UpdatedAt,
		)
		return execExpectOne(tag, err, "update provider config %s", cfg.ID)
	})
}

func (s *Store) DeleteProviderConfig(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM provider_configs WHERE id = $1`, id)
	return execExpectOne(tag, err, "delete provider config %s", id)
}
