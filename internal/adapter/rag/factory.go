package rag

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/ragmesh/ragmesh/internal/adapter/llmproxy"
	"github.com/ragmesh/ragmesh/internal/config"
	"github.com/ragmesh/ragmesh/internal/domain/provider"
	"github.com/ragmesh/ragmesh/internal/domain/scope"
	"github.com/ragmesh/ragmesh/internal/port/docstore"
	"github.com/ragmesh/ragmesh/internal/port/engine"
	"github.com/ragmesh/ragmesh/internal/resilience"
	"github.com/ragmesh/ragmesh/internal/secrets"
)

// Factory builds engine instances over a shared document store. Each instance
// gets its own LLM client (configs differ per project) and its own breaker.
type Factory struct {
	store   docstore.Store
	box     *secrets.Box
	breaker config.Breaker
	log     *slog.Logger
}

var _ engine.Factory = (*Factory)(nil)

// NewFactory creates an engine factory. box may be nil when no encryption key
// is configured; provider secrets are then unavailable and instances run
// without an LLM.
func NewFactory(store docstore.Store, box *secrets.Box, breaker config.Breaker, log *slog.Logger) *Factory {
	return &Factory{store: store, box: box, breaker: breaker, log: log}
}

// Build creates an instance bound to the key. cfg may be nil, which yields a
// keyword-only instance with extractive answers.
func (f *Factory) Build(_ context.Context, key scope.Key, cfg *provider.Config) (engine.Instance, error) {
	key.MustValid()

	var client *llmproxy.Client
	if cfg != nil {
		secret, err := f.decryptSecret(cfg)
		if err != nil {
			return nil, fmt.Errorf("provider secret for %s: %w", cfg.Name, err)
		}
		client = llmproxy.NewClient(cfg, secret)
		client.SetBreaker(resilience.NewBreaker(f.breaker.MaxFailures, f.breaker.Timeout))
	}

	if client == nil {
		return New(key, f.store, nil, f.log), nil
	}
	return New(key, f.store, client, f.log), nil
}

func (f *Factory) decryptSecret(cfg *provider.Config) (string, error) {
	if len(cfg.SecretEnc) == 0 {
		return "", nil
	}
	if f.box == nil {
		return "", fmt.Errorf("no encryption key configured")
	}
	plain, err := f.box.Open(cfg.SecretEnc)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
