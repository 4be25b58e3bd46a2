// Package docstore defines the scoped document storage port.
//
// Every operation takes a scope.Key binding tenant, project, and workspace.
// Implementations must reject (by panic) any call with an incomplete key: a
// missing scope component is a programming error, and defaulting silently to a
// shared scope would be a data leak.
package docstore

import (
	"context"

	"github.com/ragmesh/ragmesh/internal/domain/document"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
)

// Store is the port interface for scoped document persistence.
type Store interface {
	// Upsert writes documents under the given scope. Document IDs are unique
	// per scope, never globally.
	Upsert(ctx context.Context, key scope.Key, docs []document.Document) error

	// Get returns one document by its scope-local ID.
	Get(ctx context.Context, key scope.Key, id string) (*document.Document, error)

	// Search returns up to limit documents in the scope containing any of the
	// given terms. Terms are matched case-insensitively against content.
	Search(ctx context.Context, key scope.Key, terms []string, limit int) ([]document.Document, error)

	// Count returns the number of documents in the scope.
	Count(ctx context.Context, key scope.Key) (int, error)

	// Delete removes one document by its scope-local ID.
	Delete(ctx context.Context, key scope.Key, id string) error

	// DropScope removes every document in the scope. It never cascades to any
	// other scope, including other workspaces of the same project.
	DropScope(ctx context.Context, key scope.Key) error
}
