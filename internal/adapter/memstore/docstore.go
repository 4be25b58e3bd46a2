// Package memstore implements the document store port in process memory.
// It backs tests and single-node development; data does not survive restarts.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ragmesh/ragmesh/internal/domain"
	"github.com/ragmesh/ragmesh/internal/domain/document"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/port/docstore"
)

// DocStore is a map of scope namespace to documents. All methods panic on an
// incomplete scope key, the same contract the postgres store enforces.
type DocStore struct {
	mu     sync.RWMutex
	scopes map[string]map[string]document.Document
}

var _ docstore.Store = (*DocStore)(nil)

// New creates an empty in-memory document store.
func New() *DocStore {
	return &DocStore{scopes: make(map[string]map[string]document.Document)}
}

func nsKey(key scope.Key) string {
	key.MustValid()
	return key.Namespace("docs")
}

func (d *DocStore) Upsert(_ context.Context, key scope.Key, docs []document.Document) error {
	ns := nsKey(key)
	d.mu.Lock()
	defer d.mu.Unlock()
	bucket := d.scopes[ns]
	if bucket == nil {
		bucket = make(map[string]document.Document)
		d.scopes[ns] = bucket
	}
	for _, doc := range docs {
		bucket[doc.ID] = doc
	}
	return nil
}

func (d *DocStore) Get(_ context.Context, key scope.Key, id string) (*document.Document, error) {
	ns := nsKey(key)
	d.mu.RLock()
	defer d.mu.RUnlock()
	doc, ok := d.scopes[ns][id]
	if !ok {
		return nil, fmt.Errorf("get document %s: %w", id, domain.ErrNotFound)
	}
	return &doc, nil
}

func (d *DocStore) Search(_ context.Context, key scope.Key, terms []string, limit int) ([]document.Document, error) {
	ns := nsKey(key)
	if len(terms) == 0 || limit <= 0 {
		return nil, nil
	}
	d.mu.RLock()
	defer d.mu.RUnlock()

	var hits []document.Document
	for _, doc := range d.scopes[ns] {
		lower := strings.ToLower(doc.Content)
		for _, t := range terms {
			if strings.Contains(lower, strings.ToLower(t)) {
				hits = append(hits, doc)
				break
			}
		}
	}
	// Newest first, matching the SQL store's ordering.
	sort.Slice(hits, func(i, j int) bool {
		return hits[i].CreatedAt.After(hits[j].CreatedAt)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (d *DocStore) Count(_ context.Context, key scope.Key) (int, error) {
	ns := nsKey(key)
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.scopes[ns]), nil
}

func (d *DocStore) Delete(_ context.Context, key scope.Key, id string) error {
	ns := nsKey(key)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.scopes[ns][id]; !ok {
		return fmt.Errorf("delete document %s: %w", id, domain.ErrNotFound)
	}
	delete(d.scopes[ns], id)
	return nil
}

func (d *DocStore) DropScope(_ context.Context, key scope.Key) error {
	ns := nsKey(key)
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.scopes, ns)
	return nil
}
