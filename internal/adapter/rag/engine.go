// Package rag implements the engine port with a document store and an
// optional LLM capability. Each Engine is bound to one scope key for its
// whole lifetime; every storage call it makes carries that key.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"golang.org/x/sync/semaphore"

	"github.com/ragmesh/ragmesh/internal/domain/document"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/port/docstore"
	"github.com/ragmesh/ragmesh/internal/port/engine"
	"github.com/ragmesh/ragmesh/internal/port/llm"
)

const (
	chunkSize    = 1200
	chunkOverlap = 100

	// embedConcurrency bounds parallel embedding calls per flush.
	embedConcurrency = 4

	answerSystemPrompt = "You answer questions using only the provided context. " +
		"If the context does not contain the answer, say so."
)

// Engine is one live engine instance. Inserts are buffered and written out on
// Flush or Close; queries flush first so they always see their own writes.
type Engine struct {
	key   scope.Key
	store docstore.Store
	llm   llm.Client // nil disables embedding and answer synthesis
	log   *slog.Logger

	mu      sync.Mutex
	pending []document.Document
	closed  bool
}

var _ engine.Instance = (*Engine)(nil)

// New creates an engine bound to the given scope key. client may be nil, in
// which case retrieval is keyword-only and answers are extractive.
func New(key scope.Key, store docstore.Store, client llm.Client, log *slog.Logger) *Engine {
	key.MustValid()
	return &Engine{
		key:   key,
		store: store,
		llm:   client,
		log:   log.With("scope", key.Namespace("engine")),
	}
}

// Scope returns the key the engine is bound to.
func (e *Engine) Scope() scope.Key {
	return e.key
}

// Insert chunks the content and buffers the chunks. Returns the number of
// chunks produced. Chunks are persisted on the next Flush, Query, or Close.
func (e *Engine) Insert(ctx context.Context, req document.InsertRequest) (int, error) {
	if err := req.Validate(); err != nil {
		return 0, err
	}

	chunks := splitChunks(req.Content, chunkSize, chunkOverlap)
	now := time.Now().UTC()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, fmt.Errorf("engine %s is closed", e.key.Namespace("engine"))
	}
	for _, c := range chunks {
		e.pending = append(e.pending, document.Document{
			ID:        chunkID(c),
			Source:    req.Source,
			Content:   c,
			CreatedAt: now,
		})
	}
	return len(chunks), nil
}

// Flush embeds and persists all buffered chunks.
func (e *Engine) Flush(ctx context.Context) error {
	e.mu.Lock()
	batch := e.pending
	e.pending = nil
	e.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	if e.llm != nil {
		if err := e.embedBatch(ctx, batch); err != nil {
			// Put the batch back so a later flush can retry.
			e.mu.Lock()
			e.pending = append(batch, e.pending...)
			e.mu.Unlock()
			return fmt.Errorf("embed batch: %w", err)
		}
	}

	if err := e.store.Upsert(ctx, e.key, batch); err != nil {
		e.mu.Lock()
		e.pending = append(batch, e.pending...)
		e.mu.Unlock()
		return fmt.Errorf("persist batch: %w", err)
	}

	e.log.Debug("flushed chunks", "count", len(batch))
	return nil
}

// embedBatch fills in embeddings for the batch, at most embedConcurrency
// provider calls in flight.
func (e *Engine) embedBatch(ctx context.Context, batch []document.Document) error {
	sem := semaphore.NewWeighted(embedConcurrency)
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		firstErr error
	)
	for i := range batch {
		if err := sem.Acquire(ctx, 1); err != nil {
			return err
		}
		wg.Add(1)
		go func(doc *document.Document) {
			defer wg.Done()
			defer sem.Release(1)
			vecs, err := e.llm.Embed(ctx, []string{doc.Content})
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			if len(vecs) == 1 {
				doc.Embedding = vecs[0]
			}
		}(&batch[i])
	}
	wg.Wait()
	return firstErr
}

// Query flushes pending writes, retrieves the best-matching chunks by the
// requested mode, and synthesizes an answer. Without an LLM the answer is the
// top chunks joined verbatim.
func (e *Engine) Query(ctx context.Context, req document.QueryRequest) (*document.QueryResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if err := e.Flush(ctx); err != nil {
		return nil, err
	}

	docs, err := e.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}

	result := &document.QueryResult{Sources: docs, Mode: req.Mode}
	if len(docs) == 0 {
		result.Answer = "No relevant context found."
		return result, nil
	}

	if e.llm == nil {
		parts := make([]string, len(docs))
		for i, d := range docs {
			parts[i] = d.Content
		}
		result.Answer = strings.Join(parts, "\n\n")
		return result, nil
	}

	var ctxText strings.Builder
	for i, d := range docs {
		fmt.Fprintf(&ctxText, "[%d] %s\n\n", i+1, d.Content)
	}
	answer, err := e.llm.Generate(ctx, answerSystemPrompt,
		fmt.Sprintf("Context:\n%s\nQuestion: %s", ctxText.String(), req.Query))
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}
	result.Answer = answer
	return result, nil
}

// retrieve fetches candidates by keyword and, for non-naive modes with an LLM
// available, re-ranks them by cosine similarity to the query embedding.
func (e *Engine) retrieve(ctx context.Context, req document.QueryRequest) ([]document.Document, error) {
	terms := keywords(req.Query)
	// Over-fetch so re-ranking has candidates to work with.
	candidates, err := e.store.Search(ctx, e.key, terms, req.TopK*4)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	if req.Mode == document.ModeNaive || e.llm == nil {
		return rank(candidates, keywordScorer(terms), req.TopK), nil
	}

	qvecs, err := e.llm.Embed(ctx, []string{req.Query})
	if err != nil || len(qvecs) != 1 {
		// Embedding failure degrades to keyword ranking rather than failing
		// the whole query.
		e.log.Warn("query embedding failed, falling back to keyword ranking", "error", err)
		return rank(candidates, keywordScorer(terms), req.TopK), nil
	}

	return rank(candidates, blendScorer(qvecs[0], terms, req.Mode), req.TopK), nil
}

// Drop removes every document in the engine's scope and discards buffered
// writes. Other scopes, including sibling workspaces, are untouched.
func (e *Engine) Drop(ctx context.Context) error {
	e.mu.Lock()
	e.pending = nil
	e.mu.Unlock()
	if err := e.store.DropScope(ctx, e.key); err != nil {
		return fmt.Errorf("drop scope: %w", err)
	}
	e.log.Info("dropped scope data")
	return nil
}

// Close flushes buffered writes and marks the engine unusable.
func (e *Engine) Close(ctx context.Context) error {
	if err := e.Flush(ctx); err != nil {
		return err
	}
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
	return nil
}

// --- ranking helpers ---

// rank sorts candidates by the scorer, descending, and returns the top n.
func rank(docs []document.Document, score func(*document.Document) float64, n int) []document.Document {
	scores := make([]float64, len(docs))
	for i := range docs {
		scores[i] = score(&docs[i])
	}
	idx := make([]int, len(docs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return scores[idx[a]] > scores[idx[b]]
	})
	if n > len(docs) {
		n = len(docs)
	}
	out := make([]document.Document, n)
	for i := 0; i < n; i++ {
		out[i] = docs[idx[i]]
	}
	return out
}

// keywordScorer counts term occurrences.
func keywordScorer(terms []string) func(*document.Document) float64 {
	return func(d *document.Document) float64 {
		lower := strings.ToLower(d.Content)
		var hits float64
		for _, t := range terms {
			hits += float64(strings.Count(lower, t))
		}
		return hits
	}
}

// blendScorer mixes keyword coverage with cosine similarity. local leans on
// keywords, global on vectors, hybrid blends evenly.
func blendScorer(qvec []float32, terms []string, mode document.Mode) func(*document.Document) float64 {
	return func(d *document.Document) float64 {
		cos := cosine(d.Embedding, qvec)
		var kw float64
		lower := strings.ToLower(d.Content)
		for _, t := range terms {
			if strings.Contains(lower, t) {
				kw++
			}
		}
		if len(terms) > 0 {
			kw /= float64(len(terms))
		}
		switch mode {
		case document.ModeLocal:
			return 0.7*kw + 0.3*cos
		case document.ModeGlobal:
			return 0.3*kw + 0.7*cos
		default:
			return 0.5*kw + 0.5*cos
		}
	}
}

func cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// keywords lower-cases the query and keeps terms of three or more letters.
func keywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var terms []string
	for _, f := range fields {
		if len(f) >= 3 {
			terms = append(terms, f)
		}
	}
	return terms
}

// splitChunks cuts text into overlapping windows, preferring to break at
// whitespace near the window boundary.
func splitChunks(text string, size, overlap int) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= size {
		return []string{text}
	}
	var chunks []string
	for start := 0; start < len(text); {
		end := start + size
		if end >= len(text) {
			chunks = append(chunks, strings.TrimSpace(text[start:]))
			break
		}
		// Back up to the nearest whitespace so words stay intact.
		cut := end
		for cut > start+size/2 && !unicode.IsSpace(rune(text[cut])) {
			cut--
		}
		if cut == start+size/2 {
			cut = end
		}
		chunks = append(chunks, strings.TrimSpace(text[start:cut]))
		start = cut - overlap
		if start < 0 {
			start = 0
		}
	}
	return chunks
}

// chunkID derives a stable ID from the chunk content, so re-inserting the
// same content is idempotent.
func chunkID(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:16])
}
