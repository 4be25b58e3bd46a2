package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.Server.Port != "9600" {
		t.Errorf("expected port 9600, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("expected max_conns 15, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Pool.MaxInstances != 100 {
		t.Errorf("expected pool max_instances 100, got %d", cfg.Pool.MaxInstances)
	}
	if cfg.Auth.KeyCacheTTL != 30*time.Second {
		t.Errorf("expected key cache TTL 30s, got %v", cfg.Auth.KeyCacheTTL)
	}
	if cfg.Breaker.Timeout != 30*time.Second {
		t.Errorf("expected breaker timeout 30s, got %v", cfg.Breaker.Timeout)
	}
}

func TestLoadYAMLOverride(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "test.yaml")

	content := `
server:
  port: "9090"
  cors_origin: "http://example.com"
postgres:
  max_conns: 20
pool:
  max_instances: 8
logging:
  level: "debug"
  async: true
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err != nil {
		t.Fatal(err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.CORSOrigin != "http://example.com" {
		t.Errorf("expected cors http://example.com, got %s", cfg.Server.CORSOrigin)
	}
	if cfg.Postgres.MaxConns != 20 {
		t.Errorf("expected max_conns 20, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Pool.MaxInstances != 8 {
		t.Errorf("expected pool max_instances 8, got %d", cfg.Pool.MaxInstances)
	}
	if !cfg.Logging.Async {
		t.Error("expected async logging enabled")
	}
	// Unchanged fields keep defaults
	if cfg.Auth.BcryptCost != 12 {
		t.Errorf("expected default bcrypt cost, got %d", cfg.Auth.BcryptCost)
	}
}

func TestLoadYAMLMissing(t *testing.T) {
	cfg := Defaults()
	err := loadYAML(&cfg, "/nonexistent/path.yaml")
	if err != nil {
		t.Errorf("missing YAML should not error, got %v", err)
	}
}

func TestLoadYAMLMalformed(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "bad.yaml")
	if err := os.WriteFile(yamlPath, []byte("server: [not a map"), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg := Defaults()
	if err := loadYAML(&cfg, yamlPath); err == nil {
		t.Error("malformed YAML should error")
	}
}

func TestEnvOverride(t *testing.T) {
	cfg := Defaults()

	t.Setenv("RAGMESH_PORT", "7070")
	t.Setenv("DATABASE_URL", "postgres://test:test@db:5432/test")
	t.Setenv("RAGMESH_PG_MAX_CONNS", "25")
	t.Setenv("RAGMESH_POOL_TTL", "90s")
	t.Setenv("RAGMESH_RATE_RPS", "2.5")
	t.Setenv("RAGMESH_LOG_ASYNC", "true")

	loadEnv(&cfg)

	if cfg.Server.Port != "7070" {
		t.Errorf("expected port 7070, got %s", cfg.Server.Port)
	}
	if cfg.Postgres.DSN != "postgres://test:test@db:5432/test" {
		t.Errorf("unexpected DSN %s", cfg.Postgres.DSN)
	}
	if cfg.Postgres.MaxConns != 25 {
		t.Errorf("expected max_conns 25, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Pool.TTL != 90*time.Second {
		t.Errorf("expected pool TTL 90s, got %v", cfg.Pool.TTL)
	}
	if cfg.Rate.RequestsPerSecond != 2.5 {
		t.Errorf("expected rate 2.5, got %v", cfg.Rate.RequestsPerSecond)
	}
	if !cfg.Logging.Async {
		t.Error("expected async logging enabled")
	}
}

func TestEnvInvalidValuesIgnored(t *testing.T) {
	cfg := Defaults()

	t.Setenv("RAGMESH_PG_MAX_CONNS", "not-a-number")
	t.Setenv("RAGMESH_POOL_TTL", "eventually")
	t.Setenv("RAGMESH_LOG_ASYNC", "perhaps")

	loadEnv(&cfg)

	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("invalid int should keep default, got %d", cfg.Postgres.MaxConns)
	}
	if cfg.Pool.TTL != time.Hour {
		t.Errorf("invalid duration should keep default, got %v", cfg.Pool.TTL)
	}
	if cfg.Logging.Async {
		t.Error("invalid bool should keep default")
	}
}

func TestValidate(t *testing.T) {
	base := func() Config {
		cfg := Defaults()
		cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"
		return cfg
	}

	if err := validate(&Config{}); err == nil {
		t.Error("empty config should fail validation")
	}

	cfg := base()
	if err := validate(&cfg); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}

	cfg = base()
	cfg.Auth.JWTSecret = "short"
	if err := validate(&cfg); err == nil {
		t.Error("short JWT secret should fail")
	}

	cfg = base()
	cfg.Secrets.EncryptionKey = "too-short"
	if err := validate(&cfg); err == nil {
		t.Error("short encryption key should fail")
	}

	cfg = base()
	cfg.Pool.MaxInstances = 0
	if err := validate(&cfg); err == nil {
		t.Error("zero pool capacity should fail")
	}
}

func TestLoadFromHierarchy(t *testing.T) {
	dir := t.TempDir()
	yamlPath := filepath.Join(dir, "ragmesh.yaml")

	content := `
server:
  port: "9100"
auth:
  jwt_secret: "yaml-secret-0123456789abcdef-yaml-secret"
`
	if err := os.WriteFile(yamlPath, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	// ENV beats YAML beats defaults.
	t.Setenv("RAGMESH_PORT", "9200")

	cfg, err := LoadFrom(yamlPath)
	if err != nil {
		t.Fatalf("LoadFrom: %v", err)
	}
	if cfg.Server.Port != "9200" {
		t.Errorf("expected env port 9200, got %s", cfg.Server.Port)
	}
	if cfg.Auth.JWTSecret != "yaml-secret-0123456789abcdef-yaml-secret" {
		t.Errorf("expected YAML jwt secret, got %q", cfg.Auth.JWTSecret)
	}
	if cfg.Postgres.MaxConns != 15 {
		t.Errorf("expected default max_conns, got %d", cfg.Postgres.MaxConns)
	}
}
