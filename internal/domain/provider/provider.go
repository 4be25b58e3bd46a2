// Package provider defines the pluggable LLM/embedding capability configuration.
// Providers form a closed set of variants behind one client interface; the
// variant is selected by the Kind tag stored with the config.
package provider

import (
	"errors"
	"fmt"
	"time"
)

// Kind tags a provider variant.
type Kind string

const (
	KindOpenAI      Kind = "openai"
	KindAzureOpenAI Kind = "azure_openai"
	KindOllama      Kind = "ollama"
	KindAnthropic   Kind = "anthropic"
)

// ValidKinds is the closed set of provider variants.
var ValidKinds = map[Kind]bool{
	KindOpenAI:      true,
	KindAzureOpenAI: true,
	KindOllama:      true,
	KindAnthropic:   true,
}

// Config holds connection parameters for one provider, scoped to a project.
// The API secret is encrypted at rest and never serialized.
type Config struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenant_id"`
	ProjectID   string    `json:"project_id"`
	Name        string    `json:"name"`
	Kind        Kind      `json:"kind"`
	Model       string    `json:"model"`
	BaseURL     string    `json:"base_url,omitempty"`
	EmbedModel  string    `json:"embed_model,omitempty"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	SecretEnc   []byte    `json:"-"`
	Default     bool      `json:"default"`
	CreatedBy   string    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest is the input for creating a provider config.
// Secret is the plaintext credential; it is encrypted before storage and
// never returned by any read.
type CreateRequest struct {
	ProjectID   string  `json:"project_id"`
	Name        string  `json:"name"`
	Kind        Kind    `json:"kind"`
	Model       string  `json:"model"`
	BaseURL     string  `json:"base_url,omitempty"`
	EmbedModel  string  `json:"embed_model,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Secret      string  `json:"secret,omitempty"`
	Default     bool    `json:"default"`
}

// Validate checks the CreateRequest and applies defaults.
func (r *CreateRequest) Validate() error {
	if r.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if !ValidKinds[r.Kind] {
		return fmt.Errorf("invalid provider kind: %s", r.Kind)
	}
	if r.Model == "" {
		return errors.New("model is required")
	}
	if r.Kind == KindOllama && r.BaseURL == "" {
		return errors.New("base_url is required for ollama")
	}
	if r.Temperature == 0 {
		r.Temperature = 0.7
	}
	if r.MaxTokens == 0 {
		r.MaxTokens = 4000
	}
	return nil
}

// UpdateRequest holds the mutable provider config fields.
type UpdateRequest struct {
	Name        string   `json:"name,omitempty"`
	Model       string   `json:"model,omitempty"`
	BaseURL     string   `json:"base_url,omitempty"`
	EmbedModel  string   `json:"embed_model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Secret      string   `json:"secret,omitempty"`
	Default     *bool    `json:"default,omitempty"`
}
