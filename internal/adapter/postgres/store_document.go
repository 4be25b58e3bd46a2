package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ragmesh/ragmesh/internal/domain/document"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/port/docstore"
)

// DocStore is the postgres-backed scoped document store. Every row carries the
// full (tenant_id, project_id, workspace) triple and every statement filters on
// it; there is no code path that touches a row outside the caller's scope.
type DocStore struct {
	pool *pgxpool.Pool
}

var _ docstore.Store = (*DocStore)(nil)

// NewDocStore returns a DocStore backed by the given connection pool.
func NewDocStore(pool *pgxpool.Pool) *DocStore {
	return &DocStore{pool: pool}
}

func (d *DocStore) Upsert(ctx context.Context, key scope.Key, docs []document.Document) error {
	key.MustValid()
	if len(docs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, d.pool, func(tx pgx.Tx) error {
		for i := range docs {
			doc := &docs[i]
			if doc.CreatedAt.IsZero() {
				doc.CreatedAt = time.Now().UTC()
			}
			_, err := tx.Exec(ctx, `
				INSERT INTO documents (tenant_id, project_id, workspace, id, source, content, embedding, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				ON CONFLICT (tenant_id, project_id, workspace, id)
				DO UPDATE SET source = EXCLUDED.source, content = EXCLUDED.content, embedding = EXCLUDED.embedding`,
				key.TenantID, key.ProjectID, key.Workspace,
				doc.ID, doc.Source, doc.Content, doc.Embedding, doc.CreatedAt,
			)
			if err != nil {
				return fmt.Errorf("upsert document %s: %w", doc.ID, err)
			}
		}
		return nil
	})
}

func (d *DocStore) Get(ctx context.Context, key scope.Key, id string) (*document.Document, error) {
	key.MustValid()
	row := d.pool.QueryRow(ctx, `
		SELECT id, source, content, embedding, created_at
		FROM documents
		WHERE tenant_id = $1 AND project_id = $2 AND workspace = $3 AND id = $4`,
		key.TenantID, key.ProjectID, key.Workspace, id)

	var doc document.Document
	err := row.Scan(&doc.ID, &doc.Source, &doc.Content, &doc.Embedding, &doc.CreatedAt)
	if err != nil {
		return nil, notFoundWrap(err, "get document %s", id)
	}
	return &doc, nil
}

func (d *DocStore) Search(ctx context.Context, key scope.Key, terms []string, limit int) ([]document.Document, error) {
	key.MustValid()
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	patterns := make([]string, len(terms))
	for i, t := range terms {
		patterns[i] = "%" + t + "%"
	}
	rows, err := d.pool.Query(ctx, `
		SELECT id, source, content, embedding, created_at
		FROM documents
		WHERE tenant_id = $1 AND project_id = $2 AND workspace = $3
		  AND content ILIKE ANY($4)
		ORDER BY created_at DESC
		LIMIT $5`,
		key.TenantID, key.ProjectID, key.Workspace, patterns, limit)
	if err != nil {
		return nil, fmt.Errorf("search documents: %w", err)
	}
	defer rows.Close()

	var docs []document.Document
	for rows.Next() {
		var doc document.Document
		if err := rows.Scan(&doc.ID, &doc.Source, &doc.Content, &doc.Embedding, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

func (d *DocStore) Count(ctx context.Context, key scope.Key) (int, error) {
	key.MustValid()
	var n int
	err := d.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM documents
		WHERE tenant_id = $1 AND project_id = $2 AND workspace = $3`,
		key.TenantID, key.ProjectID, key.Workspace,
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count documents: %w", err)
	}
	return n, nil
}

func (d *DocStore) Delete(ctx context.Context, key scope.Key, id string) error {
	key.MustValid()
	tag, err := d.pool.Exec(ctx, `
		DELETE FROM documents
		WHERE tenant_id = $1 AND project_id = $2 AND workspace = $3 AND id = $4`,
		key.TenantID, key.ProjectID, key.Workspace, id)
	return execExpectOne(tag, err, "delete document %s", id)
}

func (d *DocStore) DropScope(ctx context.Context, key scope.Key) error {
	key.MustValid()
	_, err := d.pool.Exec(ctx, `
		DELETE FROM documents
		WHERE tenant_id = $1 AND project_id = $2 AND workspace = $3`,
		key.TenantID, key.ProjectID, key.Workspace)
	if err != nil {
		return fmt.Errorf("drop scope %s: %w", key.String(), err)
	}
	return nil
}
