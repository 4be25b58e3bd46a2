package service

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/ragmesh/ragmesh/internal/domain"
	"github.com/ragmesh/ragmesh/internal/domain/project"
	"github.com/ragmesh/ragmesh/internal/domain/provider"
	"github.com/ragmesh/ragmesh/internal/secrets"
)

func newTestProviderService(t *testing.T, store *mockStore) *ProviderService {
	t.Helper()
	box, err := secrets.NewBox("test-passphrase-for-provider-secrets-32b")
	if err != nil {
		t.Fatalf("secrets box: %v", err)
	}
	access := newTestAccessService(store)
	return NewProviderService(store, access, box)
}

func TestProviderService_CreateSealsSecret(t *testing.T) {
	store := &mockStore{}
	seedProject(store, "acme", "sales", project.RoleOwner)
	svc := newTestProviderService(t, store)
	ctx := context.Background()

	cfg, err := svc.Create(ctx, sessionCtx("u-owner"), provider.CreateRequest{
		ProjectID: "sales",
		Name:      "primary",
		Kind:      provider.KindOpenAI,
		Model:     "gpt-4o-mini",
		Secret:    "sk-plaintext-credential",
		Default:   true,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if len(cfg.SecretEnc) == 0 {
		t.Fatal("secret was not sealed")
	}
	if bytes.Contains(cfg.SecretEnc, []byte("sk-plaintext-credential")) {
		t.Error("secret stored in plaintext")
	}
	if cfg.TenantID != "acme" {
		t.Errorf("tenant = %q, want acme", cfg.TenantID)
	}
}

func TestProviderService_CreateRequiresAdmin(t *testing.T) {
	store := &mockStore{}
	seedProject(store, "acme", "sales", project.RoleOwner, project.RoleMember)
	svc := newTestProviderService(t, store)

	_, err := svc.Create(context.Background(), sessionCtx("u-member"), provider.CreateRequest{
		ProjectID: "sales", Name: "x", Kind: provider.KindOpenAI, Model: "gpt-4o-mini",
	})
	if !errors.Is(err, domain.ErrForbidden) {
		t.Errorf("member create: err = %v, want ErrForbidden", err)
	}
}

func TestProviderService_SingleDefault(t *testing.T) {
	store := &mockStore{}
	seedProject(store, "acme", "sales", project.RoleOwner)
	svc := newTestProviderService(t, store)
	ctx := context.Background()
	actor := sessionCtx("u-owner")

	first, err := svc.Create(ctx, actor, provider.CreateRequest{
		ProjectID: "sales", Name: "first", Kind: provider.KindOpenAI, Model: "gpt-4o-mini", Default: true,
	})
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := svc.Create(ctx, actor, provider.CreateRequest{
		ProjectID: "sales", Name: "second", Kind: provider.KindOllama, Model: "llama3",
		BaseURL: "http://localhost:11434", Default: true,
	})
	if err != nil {
		t.Fatalf("create second: %v", err)
	}

	def, err := svc.DefaultForProject(ctx, "sales")
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	if def.ID != second.ID {
		t.Errorf("default = %q, want the newest default %q", def.Name, second.Name)
	}

	got, _ := svc.Get(ctx, actor, first.ID)
	if got.Default {
		t.Error("previous default was not displaced")
	}
}

func TestProviderService_DefaultForProjectMissing(t *testing.T) {
	store := &mockStore{}
	svc := newTestProviderService(t, store)

	cfg, err := svc.DefaultForProject(context.Background(), "nothing-here")
	if err != nil {
		t.Fatalf("err = %v, want nil", err)
	}
	if cfg != nil {
		t.Errorf("cfg = %+v, want nil (keyword-only fallback)", cfg)
	}
}

func TestProviderService_UpdateMergesFields(t *testing.T) {
	store := &mockStore{}
	seedProject(store, "acme", "sales", project.RoleOwner)
	svc := newTestProviderService(t, store)
	ctx := context.Background()
	actor := sessionCtx("u-owner")

	cfg, err := svc.Create(ctx, actor, provider.CreateRequest{
		ProjectID: "sales", Name: "primary", Kind: provider.KindOpenAI, Model: "gpt-4o-mini",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	temp := 0.2
	updated, err := svc.Update(ctx, actor, cfg.ID, provider.UpdateRequest{
		Model:       "gpt-4o",
		Temperature: &temp,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Model != "gpt-4o" {
		t.Errorf("model = %q, want gpt-4o", updated.Model)
	}
	if updated.Temperature != 0.2 {
		t.Errorf("temperature = %v, want 0.2", updated.Temperature)
	}
	if updated.Name != "primary" {
		t.Errorf("untouched field changed: name = %q", updated.Name)
	}
}

func TestProviderService_NoBoxRejectsSecrets(t *testing.T) {
	store := &mockStore{}
	seedProject(store, "acme", "sales", project.RoleOwner)
	access := newTestAccessService(store)
	svc := NewProviderService(store, access, nil)

	_, err := svc.Create(context.Background(), sessionCtx("u-owner"), provider.CreateRequest{
		ProjectID: "sales", Name: "x", Kind: provider.KindOpenAI, Model: "gpt-4o-mini",
		Secret: "sk-something",
	})
	if !errors.Is(err, domain.ErrValidation) {
		t.Errorf("secret without box: err = %v, want ErrValidation", err)
	}
}
