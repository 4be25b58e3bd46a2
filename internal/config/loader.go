package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultConfigFile is the path checked for YAML configuration.
const DefaultConfigFile = "ragmesh.yaml"

// Load returns a Config using the hierarchy: defaults < YAML < ENV.
// YAML file is optional; missing file is not an error.
func Load() (*Config, error) {
	return LoadFrom(DefaultConfigFile)
}

// LoadFrom returns a Config loaded from the given YAML path using the
// hierarchy: defaults < YAML < ENV. The YAML file is optional.
func LoadFrom(yamlPath string) (*Config, error) {
	cfg := Defaults()

	if err := loadYAML(&cfg, yamlPath); err != nil {
		return nil, fmt.Errorf("config yaml: %w", err)
	}

	loadEnv(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validate: %w", err)
	}

	return &cfg, nil
}

// loadYAML reads the YAML file and unmarshals it over cfg.
// Returns nil if the file does not exist.
func loadYAML(cfg *Config, path string) error {
	data, err := os.ReadFile(path) //nolint:gosec // G304: path is validated by caller
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}

	return nil
}

// loadEnv overlays environment variables onto cfg.
// Only non-empty env values override the current config.
func loadEnv(cfg *Config) {
	setString(&cfg.Server.Port, "RAGMESH_PORT")
	setString(&cfg.Server.CORSOrigin, "RAGMESH_CORS_ORIGIN")
	setString(&cfg.Postgres.DSN, "DATABASE_URL")
	setInt32(&cfg.Postgres.MaxConns, "RAGMESH_PG_MAX_CONNS")
	setInt32(&cfg.Postgres.MinConns, "RAGMESH_PG_MIN_CONNS")
	setDuration(&cfg.Postgres.MaxConnLifetime, "RAGMESH_PG_MAX_CONN_LIFETIME")
	setDuration(&cfg.Postgres.MaxConnIdleTime, "RAGMESH_PG_MAX_CONN_IDLE_TIME")
	setDuration(&cfg.Postgres.HealthCheck, "RAGMESH_PG_HEALTH_CHECK")
	setString(&cfg.NATS.URL, "NATS_URL")
	setString(&cfg.Auth.JWTSecret, "RAGMESH_JWT_SECRET")
	setDuration(&cfg.Auth.AccessTokenExpiry, "RAGMESH_ACCESS_TOKEN_EXPIRY")
	setDuration(&cfg.Auth.RefreshTokenExpiry, "RAGMESH_REFRESH_TOKEN_EXPIRY")
	setInt(&cfg.Auth.BcryptCost, "RAGMESH_BCRYPT_COST")
	setDuration(&cfg.Auth.InviteExpiry, "RAGMESH_INVITE_EXPIRY")
	setDuration(&cfg.Auth.KeyCacheTTL, "RAGMESH_KEY_CACHE_TTL")
	setInt(&cfg.Pool.MaxInstances, "RAGMESH_POOL_MAX_INSTANCES")
	setDuration(&cfg.Pool.TTL, "RAGMESH_POOL_TTL")
	setDuration(&cfg.Pool.SweepInterval, "RAGMESH_POOL_SWEEP_INTERVAL")
	setInt64(&cfg.Cache.MaxSizeMB, "RAGMESH_CACHE_SIZE_MB")
	setFloat64(&cfg.Rate.RequestsPerSecond, "RAGMESH_RATE_RPS")
	setInt(&cfg.Rate.Burst, "RAGMESH_RATE_BURST")
	setDuration(&cfg.Rate.CleanupInterval, "RAGMESH_RATE_CLEANUP_INTERVAL")
	setDuration(&cfg.Rate.MaxIdleTime, "RAGMESH_RATE_MAX_IDLE_TIME")
	setInt(&cfg.Breaker.MaxFailures, "RAGMESH_BREAKER_MAX_FAILURES")
	setDuration(&cfg.Breaker.Timeout, "RAGMESH_BREAKER_TIMEOUT")
	setString(&cfg.Logging.Level, "RAGMESH_LOG_LEVEL")
	setString(&cfg.Logging.Service, "RAGMESH_LOG_SERVICE")
	setBool(&cfg.Logging.Async, "RAGMESH_LOG_ASYNC")
	setString(&cfg.Secrets.EncryptionKey, "RAGMESH_ENCRYPTION_KEY")
	setString(&cfg.Telemetry.OTLPEndpoint, "OTEL_EXPORTER_OTLP_ENDPOINT")
}

// validate checks that required fields are set.
func validate(cfg *Config) error {
	if cfg.Server.Port == "" {
		return errors.New("server.port is required")
	}
	if cfg.Postgres.DSN == "" {
		return errors.New("postgres.dsn is required")
	}
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		return errors.New("auth.jwt_secret must be at least 32 characters")
	}
	if cfg.Secrets.EncryptionKey != "" && len(cfg.Secrets.EncryptionKey) < 32 {
		return errors.New("secrets.encryption_key must be at least 32 characters")
	}
	if cfg.Postgres.MaxConns < 1 {
		return errors.New("postgres.max_conns must be >= 1")
	}
	if cfg.Pool.MaxInstances < 1 {
		return errors.New("pool.max_instances must be >= 1")
	}
	if cfg.Pool.TTL <= 0 {
		return errors.New("pool.ttl must be positive")
	}
	if cfg.Breaker.MaxFailures < 1 {
		return errors.New("breaker.max_failures must be >= 1")
	}
	if cfg.Rate.Burst < 1 {
		return errors.New("rate.burst must be >= 1")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt32(dst *int32, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 32); err == nil {
			*dst = int32(n)
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
