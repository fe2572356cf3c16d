package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Repository defines persistence operations for tenants
type Repository interface {
	// Save persists a new tenant
	Save(ctx context.Context, t *Tenant) error

	// Update updates an existing tenant
	Update(ctx context.Context, t *Tenant) error

	// FindByID retrieves a tenant by its ID
	// Returns shared.ErrNotFound if the tenant does not exist
	FindByID(ctx context.Context, id uuid.UUID) (*Tenant, error)

	// FindAll retrieves all tenants regardless of status
	FindAll(ctx context.Context) ([]*Tenant, error)

	// FindByStatus retrieves all tenants with the given status
	FindByStatus(ctx context.Context, status Status) ([]*Tenant, error)
}
