package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/ragmesh/ragmesh/internal/domain"
	"github.com/ragmesh/ragmesh/internal/domain/project"
	"github.com/ragmesh/ragmesh/internal/domain/provider"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/port/database"
	"github.com/ragmesh/ragmesh/internal/secrets"
)

// ProviderService manages per-project LLM provider configurations. Secrets
// are sealed before they touch the database and are decrypted only inside the
// engine factory; no read path returns them.
type ProviderService struct {
	store  database.Store
	access *AccessService
	box    *secrets.Box // may be nil when no encryption key is configured
}

// NewProviderService creates a provider config service.
func NewProviderService(store database.Store, access *AccessService, box *secrets.Box) *ProviderService {
	return &ProviderService{store: store, access: access, box: box}
}

// Create adds a provider config to a project. The actor needs admin or above.
func (s *ProviderService) Create(ctx context.Context, authCtx *scope.AuthContext, req provider.CreateRequest) (*provider.Config, error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", domain.ErrValidation, err)
	}
	actor, err := s.access.RequireRole(ctx, authCtx, req.ProjectID, project.RoleAdmin)
	if err != nil {
		return nil, err
	}

	sealed, err := s.seal(req.Secret)
	if err != nil {
		return nil, err
	}

	cfg := &provider.Config{
		ID:          uuid.NewString(),
		TenantID:    actor.TenantID,
		ProjectID:   req.ProjectID,
		Name:        req.Name,
		Kind:        req.Kind,
		Model:       req.Model,
		BaseURL:     req.BaseURL,
		EmbedModel:  req.EmbedModel,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		SecretEnc:   sealed,
		Default:     req.Default,
		CreatedBy:   authCtx.UserID,
	}
	if err := s.store.CreateProviderConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Get returns one config. Any member of the project may read it; the sealed
// secret stays server-side in either case because it is never serialized.
func (s *ProviderService) Get(ctx context.Context, authCtx *scope.AuthContext, id string) (*provider.Config, error) {
	cfg, err := s.store.GetProviderConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.RequireRole(ctx, authCtx, cfg.ProjectID, project.RoleViewer); err != nil {
		return nil, err
	}
	return cfg, nil
}

// List returns a project's configs.
func (s *ProviderService) List(ctx context.Context, authCtx *scope.AuthContext, projectID string) ([]provider.Config, error) {
	if _, err := s.access.RequireRole(ctx, authCtx, projectID, project.RoleViewer); err != nil {
		return nil, err
	}
	configs, err := s.store.ListProviderConfigs(ctx, projectID)
	if err != nil {
		return nil, err
	}
	if configs == nil {
		configs = []provider.Config{}
	}
	return configs, nil
}

// Update applies mutable fields. Setting Default displaces the previous
// default in the same transaction; there is never more than one.
func (s *ProviderService) Update(ctx context.Context, authCtx *scope.AuthContext, id string, req provider.UpdateRequest) (*provider.Config, error) {
	cfg, err := s.store.GetProviderConfig(ctx, id)
	if err != nil {
		return nil, err
	}
	if _, err := s.access.RequireRole(ctx, authCtx, cfg.ProjectID, project.RoleAdmin); err != nil {
		return nil, err
	}

	if req.Name != "" {
		cfg.Name = req.Name
	}
	if req.Model != "" {
		cfg.Model = req.Model
	}
	if req.BaseURL != "" {
		cfg.BaseURL = req.BaseURL
	}
	if req.EmbedModel != "" {
		cfg.EmbedModel = req.EmbedModel
	}
	if req.Temperature != nil {
		cfg.Temperature = *req.Temperature
	}
	if req.MaxTokens != nil {
		cfg.MaxTokens = *req.MaxTokens
	}
	if req.Secret != "" {
		sealed, err := s.seal(req.Secret)
		if err != nil {
			return nil, err
		}
		cfg.SecretEnc = sealed
	}
	if req.Default != nil {
		cfg.Default = *req.Default
	}

	if err := s.store.UpdateProviderConfig(ctx, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Delete removes a config.
func (s *ProviderService) Delete(ctx context.Context, authCtx *scope.AuthContext, id string) error {
	cfg, err := s.store.GetProviderConfig(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.access.RequireRole(ctx, authCtx, cfg.ProjectID, project.RoleAdmin); err != nil {
		return err
	}
	return s.store.DeleteProviderConfig(ctx, id)
}

// DefaultForProject returns the project's default config, or nil when the
// project has none. Instances without a config run keyword-only.
func (s *ProviderService) DefaultForProject(ctx context.Context, projectID string) (*provider.Config, error) {
	cfg, err := s.store.GetDefaultProviderConfig(ctx, projectID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return cfg, nil
}

func (s *ProviderService) seal(secret string) ([]byte, error) {
	if secret == "" {
		return nil, nil
	}
	if s.box == nil {
		return nil, fmt.Errorf("no encryption key configured: %w", domain.ErrValidation)
	}
	sealed, err := s.box.Seal([]byte(secret))
	if err != nil {
		return nil, fmt.Errorf("seal secret: %w", err)
	}
	return sealed, nil
}
