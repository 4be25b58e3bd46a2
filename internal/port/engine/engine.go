// Package engine defines the port to the retrieval engine. The pool hands
// callers an opaque Instance bound to one scope key; the engine's internals
// (chunking, embedding, retrieval) live behind it.
package engine

import (
	"context"

	"github.com/ragmesh/ragmesh/internal/domain/document"
	"github.com/ragmesh/ragmesh/internal/domain/provider"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
)

// Instance is a live engine handle bound to one scope key.
type Instance interface {
	// Insert chunks, embeds, and stores content inside the instance's scope.
	Insert(ctx context.Context, req document.InsertRequest) (int, error)

	// Query retrieves scoped context and synthesizes an answer.
	Query(ctx context.Context, req document.QueryRequest) (*document.QueryResult, error)

	// Drop removes all data in the instance's scope.
	Drop(ctx context.Context) error

	// Flush persists any buffered writes.
	Flush(ctx context.Context) error

	// Close flushes buffered writes and releases storage handles. After Close
	// the instance must not be used.
	Close(ctx context.Context) error

	// Scope returns the key the instance is bound to.
	Scope() scope.Key
}

// Factory constructs instances. Construction may block on storage or network
// initialization; the pool guarantees at most one construction per scope key
// at a time.
type Factory interface {
	Build(ctx context.Context, key scope.Key, cfg *provider.Config) (Instance, error)
}
