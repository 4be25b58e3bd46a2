// Package tenant defines the top-level isolation boundary.
package tenant

import (
	"errors"
	"time"

	"github.com/ragmesh/ragmesh/internal/domain/scope"
)

// Tenant represents an organization. Tenants are soft-disabled, never hard
// deleted while projects exist under them.
type Tenant struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	Active      bool      `json:"active"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// CreateRequest holds the fields required to create a tenant. The ID is a
// caller-supplied slug; it becomes a scope component and is validated as one.
type CreateRequest struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Validate checks the CreateRequest.
func (r *CreateRequest) Validate() error {
	if err := scope.ValidateComponent(r.ID); err != nil {
		return err
	}
	if r.Name == "" {
		return errors.New("name is required")
	}
	if len(r.Name) > 255 {
		return errors.New("name too long (max 255 chars)")
	}
	return nil
}

// UpdateRequest holds the mutable tenant fields.
type UpdateRequest struct {
	Name   string `json:"name,omitempty"`
	Active *bool  `json:"active,omitempty"`
}
