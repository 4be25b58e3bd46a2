package user

import (
	"errors"
	"fmt"
	"time"
)

// KeyPrefix is the structural marker of API keys. Any bearer credential that
// does not start with it is treated as a session token.
const KeyPrefix = "rmk_"

// KeyDisplayLen is how many leading characters of the plaintext key are stored
// for display and indexed for lookup.
const KeyDisplayLen = 12

// API key capability scopes.
const (
	ScopeQuery  = "query"
	ScopeInsert = "insert"
	ScopeDelete = "delete"
	ScopeAdmin  = "admin"
)

// ValidScopes is the closed set of API key scopes.
var ValidScopes = map[string]bool{
	ScopeQuery:  true,
	ScopeInsert: true,
	ScopeDelete: true,
	ScopeAdmin:  true,
}

// APIKey is a persistent credential bound to one user and one tenant+project.
// Only the SHA-256 hash of the plaintext is stored.
type APIKey struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	TenantID   string    `json:"tenant_id"`
	ProjectID  string    `json:"project_id"`
	Name       string    `json:"name"`
	Prefix     string    `json:"key_prefix"`
	KeyHash    string    `json:"-"`
	Scopes     []string  `json:"scopes"`
	Active     bool      `json:"active"`
	LastUsedAt time.Time `json:"last_used_at,omitzero"`
	ExpiresAt  time.Time `json:"expires_at,omitzero"`
	RevokedAt  time.Time `json:"revoked_at,omitzero"`
	CreatedAt  time.Time `json:"created_at"`
}

// Revoked reports whether the key has been administratively revoked.
// A revoked key is rejected even before its expiry timestamp.
func (k *APIKey) Revoked() bool {
	return !k.Active || !k.RevokedAt.IsZero()
}

// Expired reports whether the key is past its expiry. Zero ExpiresAt means no expiry.
func (k *APIKey) Expired(now time.Time) bool {
	return !k.ExpiresAt.IsZero() && now.After(k.ExpiresAt)
}

// CreateAPIKeyRequest is the input for creating a new API key.
type CreateAPIKeyRequest struct {
	Name      string   `json:"name"`
	ProjectID string   `json:"project_id"`
	Scopes    []string `json:"scopes,omitempty"`
	ExpiresIn int      `json:"expires_in,omitempty"` // seconds; 0 = no expiry
}

// Validate checks the CreateAPIKeyRequest. Keys default to query-only.
func (r *CreateAPIKeyRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if r.ProjectID == "" {
		return errors.New("project_id is required")
	}
	if len(r.Scopes) == 0 {
		r.Scopes = []string{ScopeQuery}
	}
	for _, s := range r.Scopes {
		if !ValidScopes[s] {
			return fmt.Errorf("invalid scope: %s", s)
		}
	}
	return nil
}

// CreateAPIKeyResponse is returned once at creation time. PlainKey is the only
// place the full key ever appears; it cannot be reconstructed afterwards.
type CreateAPIKeyResponse struct {
	APIKey   APIKey `json:"api_key"`
	PlainKey string `json:"plain_key"`
}
