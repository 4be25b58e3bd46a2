// Package document defines the stored record and query types handled by
// engine instances. Every document lives inside exactly one scope.
package document

import (
	"errors"
	"time"
)

// Document is one retrievable chunk of content. Its full identity in storage
// is (tenant_id, project_id, workspace, ID); the ID alone is only unique
// within its scope.
type Document struct {
	ID        string    `json:"id"`
	Source    string    `json:"source,omitempty"`
	Content   string    `json:"content"`
	Embedding []float32 `json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

// InsertRequest is the input for inserting content into an engine instance.
type InsertRequest struct {
	Content string `json:"content"`
	Source  string `json:"source,omitempty"`
}

// Validate checks the InsertRequest.
func (r *InsertRequest) Validate() error {
	if r.Content == "" {
		return errors.New("content is required")
	}
	return nil
}

// Mode selects the retrieval strategy for a query.
type Mode string

const (
	ModeNaive  Mode = "naive"
	ModeLocal  Mode = "local"
	ModeGlobal Mode = "global"
	ModeHybrid Mode = "hybrid"
)

// ValidModes is the closed set of query modes.
var ValidModes = map[Mode]bool{
	ModeNaive:  true,
	ModeLocal:  true,
	ModeGlobal: true,
	ModeHybrid: true,
}

// QueryRequest is the input for querying an engine instance.
type QueryRequest struct {
	Query string `json:"query"`
	Mode  Mode   `json:"mode,omitempty"`
	TopK  int    `json:"top_k,omitempty"`
}

// Validate checks the QueryRequest and applies defaults.
func (r *QueryRequest) Validate() error {
	if r.Query == "" {
		return errors.New("query is required")
	}
	if r.Mode == "" {
		r.Mode = ModeHybrid
	}
	if !ValidModes[r.Mode] {
		return errors.New("invalid mode: must be naive, local, global, or hybrid")
	}
	if r.TopK <= 0 {
		r.TopK = 5
	}
	return nil
}

// QueryResult is the answer plus the documents that supported it.
type QueryResult struct {
	Answer  string     `json:"answer"`
	Sources []Document `json:"sources,omitempty"`
	Mode    Mode       `json:"mode"`
}
