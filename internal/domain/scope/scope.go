// Package scope defines the isolation scope key that partitions all persisted
// state, and the auth context produced by credential resolution.
package scope

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// DefaultComponent is the value used for any scope component that is not
// explicitly set. A fully-default key preserves single-tenant behavior.
const DefaultComponent = "default"

// componentRe constrains scope components to slug-safe characters so that
// derived storage namespaces are unambiguous (":" never appears in a component).
var componentRe = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]{0,63}$`)

// Key identifies one isolation scope. Every persisted row carries all three
// components as part of its composite identity.
type Key struct {
	TenantID  string `json:"tenant_id"`
	ProjectID string `json:"project_id"`
	Workspace string `json:"workspace"`
}

// Default returns the single-tenant scope key.
func Default() Key {
	return Key{TenantID: DefaultComponent, ProjectID: DefaultComponent, Workspace: DefaultComponent}
}

// New builds a Key, substituting DefaultComponent for empty components.
func New(tenantID, projectID, workspace string) Key {
	if tenantID == "" {
		tenantID = DefaultComponent
	}
	if projectID == "" {
		projectID = DefaultComponent
	}
	if workspace == "" {
		workspace = DefaultComponent
	}
	return Key{TenantID: tenantID, ProjectID: projectID, Workspace: workspace}
}

// Validate checks that all three components are present and slug-safe.
func (k Key) Validate() error {
	for _, c := range []struct{ name, val string }{
		{"tenant_id", k.TenantID},
		{"project_id", k.ProjectID},
		{"workspace", k.Workspace},
	} {
		if c.val == "" {
			return fmt.Errorf("scope %s is empty", c.name)
		}
		if !componentRe.MatchString(c.val) {
			return fmt.Errorf("scope %s %q is not a valid slug", c.name, c.val)
		}
	}
	return nil
}

// MustValid panics if the key is incomplete. Storage adapters call this before
// every operation: executing a query with a missing scope component is a
// programming error, not a recoverable condition.
func (k Key) MustValid() {
	if err := k.Validate(); err != nil {
		panic("scope: " + err.Error())
	}
}

// Namespace derives the storage namespace for a logical collection name.
// The derivation is deterministic and injective: components are slug-validated
// so the separator cannot occur inside them.
func (k Key) Namespace(logical string) string {
	k.MustValid()
	if logical == "" || !componentRe.MatchString(logical) {
		panic("scope: invalid logical name " + fmt.Sprintf("%q", logical))
	}
	return strings.Join([]string{k.TenantID, k.ProjectID, k.Workspace, logical}, ":")
}

func (k Key) String() string {
	return k.TenantID + "/" + k.ProjectID + "/" + k.Workspace
}

// ValidateComponent reports whether a single caller-supplied identifier is
// usable as a scope component (tenant or project slug).
func ValidateComponent(s string) error {
	if s == "" {
		return errors.New("identifier is empty")
	}
	if !componentRe.MatchString(s) {
		return fmt.Errorf("identifier %q must be lowercase alphanumeric with '-' or '_', max 64 chars", s)
	}
	return nil
}

// AuthKind distinguishes the two credential classes.
type AuthKind string

const (
	AuthSession AuthKind = "session"
	AuthAPIKey  AuthKind = "api_key"
)

// AuthContext is the result of resolving a bearer credential. For API keys the
// tenant/project are fixed by the key; for session tokens they come from
// request headers and are verified by the access control service.
type AuthContext struct {
	UserID    string   `json:"user_id"`
	TenantID  string   `json:"tenant_id"`
	ProjectID string   `json:"project_id"`
	Scopes    []string `json:"scopes,omitempty"`
	Kind      AuthKind `json:"kind"`
	KeyID     string   `json:"key_id,omitempty"`
}

// HasScope reports whether the context grants the named capability scope.
// Session contexts carry no scope list and pass: their access is decided by
// project role. API keys with an empty scope list grant nothing.
func (a *AuthContext) HasScope(required string) bool {
	if a.Kind == AuthSession {
		return true
	}
	for _, s := range a.Scopes {
		if s == required || s == "admin" {
			return true
		}
	}
	return false
}

// EngineKey returns the pool scope key (tenant, project) for this context,
// using the default workspace.
func (a *AuthContext) EngineKey() Key {
	return New(a.TenantID, a.ProjectID, "")
}
