package service

import (
	"context"
	"fmt"
	"time"

	"github.com/ragmesh/ragmesh/internal/adapter/otel"
	"github.com/ragmesh/ragmesh/internal/domain/document"
	"github.com/ragmesh/ragmesh/internal/domain/project"
	"github.com/ragmesh/ragmesh/internal/domain/provider"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/domain/user"
)

// RAGService is the authorized front door to engine instances. Every call
// authorizes the caller against the target tenant+project, leases an instance
// from the pool, runs the operation, and releases the lease.
type RAGService struct {
	pool      *PoolService
	access    *AccessService
	providers *ProviderService
	metrics   *otel.Metrics // may be nil
}

// NewRAGService creates the engine facade.
func NewRAGService(pool *PoolService, access *AccessService, providers *ProviderService, metrics *otel.Metrics) *RAGService {
	return &RAGService{pool: pool, access: access, providers: providers, metrics: metrics}
}

// Insert adds content to the scope's engine instance. Requires the insert
// scope (API keys) or member role (sessions). Returns the chunk count.
func (s *RAGService) Insert(ctx context.Context, authCtx *scope.AuthContext, tenantID, projectID string, req document.InsertRequest) (int, error) {
	if err := s.access.Authorize(ctx, authCtx, tenantID, projectID, project.RoleMember, user.ScopeInsert); err != nil {
		return 0, err
	}

	lease, err := s.acquire(ctx, tenantID, projectID)
	if err != nil {
		return 0, err
	}
	defer lease.Release(ctx)

	return lease.Instance().Insert(ctx, req)
}

// Query answers a question from the scope's content. Requires the query scope
// or viewer role.
func (s *RAGService) Query(ctx context.Context, authCtx *scope.AuthContext, tenantID, projectID string, req document.QueryRequest) (*document.QueryResult, error) {
	if err := s.access.Authorize(ctx, authCtx, tenantID, projectID, project.RoleViewer, user.ScopeQuery); err != nil {
		return nil, err
	}

	ctx, span := otel.StartQuerySpan(ctx, tenantID, projectID, string(req.Mode))
	defer span.End()
	start := time.Now()

	lease, err := s.acquire(ctx, tenantID, projectID)
	if err != nil {
		return nil, err
	}
	defer lease.Release(ctx)

	result, err := lease.Instance().Query(ctx, req)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.QueryDuration.Record(ctx, time.Since(start).Seconds())
	}
	return result, nil
}

// Drop removes all content in the scope and evicts its instance. Requires the
// delete scope or admin role. Sibling scopes are untouched.
func (s *RAGService) Drop(ctx context.Context, authCtx *scope.AuthContext, tenantID, projectID string) error {
	if err := s.access.Authorize(ctx, authCtx, tenantID, projectID, project.RoleAdmin, user.ScopeDelete); err != nil {
		return err
	}

	key := scope.New(tenantID, projectID, "")
	lease, err := s.acquire(ctx, tenantID, projectID)
	if err != nil {
		return err
	}
	if err := lease.Instance().Drop(ctx); err != nil {
		lease.Release(ctx)
		return err
	}
	lease.Release(ctx)
	// The instance's in-memory state (buffers, caches) died with the data.
	s.pool.Evict(ctx, key)
	return nil
}

// Flush persists buffered writes for the scope. Requires insert scope or
// member role.
func (s *RAGService) Flush(ctx context.Context, authCtx *scope.AuthContext, tenantID, projectID string) error {
	if err := s.access.Authorize(ctx, authCtx, tenantID, projectID, project.RoleMember, user.ScopeInsert); err != nil {
		return err
	}

	lease, err := s.acquire(ctx, tenantID, projectID)
	if err != nil {
		return err
	}
	defer lease.Release(ctx)

	return lease.Instance().Flush(ctx)
}

// PoolStats exposes pool occupancy for the admin surface.
func (s *RAGService) PoolStats() Stats {
	return s.pool.Stats()
}

func (s *RAGService) acquire(ctx context.Context, tenantID, projectID string) (*Lease, error) {
	key := scope.New(tenantID, projectID, "")
	lease, err := s.pool.Acquire(ctx, key, func(ctx context.Context) (*provider.Config, error) {
		return s.providers.DefaultForProject(ctx, projectID)
	})
	if err != nil {
		return nil, fmt.Errorf("acquire instance: %w", err)
	}
	return lease, nil
}
