package persistence

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meterd/backend/internal/domain/shared"
	"github.com/meterd/backend/internal/domain/tenant"
)

// GormTenantRepository implements tenant.Repository using GORM
type GormTenantRepository struct {
	db *gorm.DB
}

// NewGormTenantRepository creates a new GormTenantRepository
func NewGormTenantRepository(db *gorm.DB) *GormTenantRepository {
	return &GormTenantRepository{db: db}
}

// Save persists a new tenant
func (r *GormTenantRepository) Save(ctx context.Context, t *tenant.Tenant) error {
	if err := r.db.WithContext(ctx).Create(t).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update updates an existing tenant
func (r *GormTenantRepository) Update(ctx context.Context, t *tenant.Tenant) error {
	result := r.db.WithContext(ctx).Save(t)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByID retrieves a tenant by its ID
func (r *GormTenantRepository) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	var t tenant.Tenant
	if err := r.db.WithContext(ctx).First(&t, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &t, nil
}

// FindAll retrieves all tenants regardless of status
func (r *GormTenantRepository) FindAll(ctx context.Context) ([]*tenant.Tenant, error) {
	var tenants []*tenant.Tenant
	if err := r.db.WithContext(ctx).Order("created_at").Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

// FindByStatus retrieves all tenants with the given status
func (r *GormTenantRepository) FindByStatus(ctx context.Context, status tenant.Status) ([]*tenant.Tenant, error) {
	var tenants []*tenant.Tenant
	if err := r.db.WithContext(ctx).
		Where("status = ?", status).
		Order("created_at").
		Find(&tenants).Error; err != nil {
		return nil, err
	}
	return tenants, nil
}

var _ tenant.Repository = (*GormTenantRepository)(nil)
