package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
)

// GormQuotaRepository implements billing.QuotaRepository using GORM
type GormQuotaRepository struct {
	db *gorm.DB
}

// NewGormQuotaRepository creates a new GormQuotaRepository
func NewGormQuotaRepository(db *gorm.DB) *GormQuotaRepository {
	return &GormQuotaRepository{db: db}
}

// Save persists a new quota row
func (r *GormQuotaRepository) Save(ctx context.Context, quota *billing.ResourceQuota) error {
	if err := r.db.WithContext(ctx).Create(quota).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// Update updates an existing quota row
func (r *GormQuotaRepository) Update(ctx context.Context, quota *billing.ResourceQuota) error {
	result := r.db.WithContext(ctx).Save(quota)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByTenantAndType retrieves the quota for one (tenant, resource) key
func (r *GormQuotaRepository) FindByTenantAndType(ctx context.Context, tenantID uuid.UUID, resourceType billing.ResourceType) (*billing.ResourceQuota, error) {
	var quota billing.ResourceQuota
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ? AND resource_type = ?", tenantID, resourceType).
		First(&quota).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &quota, nil
}

// FindByTenant retrieves all quotas for a tenant
func (r *GormQuotaRepository) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*billing.ResourceQuota, error) {
	var quotas []*billing.ResourceQuota
	if err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("resource_type").
		Find(&quotas).Error; err != nil {
		return nil, err
	}
	return quotas, nil
}

// ConsumeIfWithinLimit atomically increments usage by amount if the result
// stays within the limit. The check and the increment are one guarded
// UPDATE, so concurrent callers serialize on the row and the limit can
// never be oversubscribed.
func (r *GormQuotaRepository) ConsumeIfWithinLimit(ctx context.Context, tenantID uuid.UUID, resourceType billing.ResourceType, amount int64) (bool, int64, error) {
	result := r.db.WithContext(ctx).
		Model(&billing.ResourceQuota{}).
		Where("tenant_id = ? AND resource_type = ? AND current_usage + ? <= quota_limit", tenantID, resourceType, amount).
		UpdateColumn("current_usage", gorm.Expr("current_usage + ?", amount))
	if result.Error != nil {
		return false, 0, result.Error
	}

	quota, err := r.FindByTenantAndType(ctx, tenantID, resourceType)
	if err != nil {
		return false, 0, err
	}
	return result.RowsAffected > 0, quota.Remaining(), nil
}

// ReplaceLimits replaces the limit values for a tenant, creating missing
// rows and preserving current usage on existing ones
func (r *GormQuotaRepository) ReplaceLimits(ctx context.Context, tenantID uuid.UUID, limits map[billing.ResourceType]int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for resourceType, limit := range limits {
			result := tx.Model(&billing.ResourceQuota{}).
				Where("tenant_id = ? AND resource_type = ?", tenantID, resourceType).
				UpdateColumn("quota_limit", limit)
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected > 0 {
				continue
			}

			quota, err := billing.NewResourceQuota(tenantID, resourceType, limit)
			if err != nil {
				return err
			}
			if err := tx.Create(quota).Error; err != nil {
				if isDuplicateKey(err) {
					// Created concurrently; retry the limit update
					if err := tx.Model(&billing.ResourceQuota{}).
						Where("tenant_id = ? AND resource_type = ?", tenantID, resourceType).
						UpdateColumn("quota_limit", limit).Error; err != nil {
						return err
					}
					continue
				}
				return err
			}
		}
		return nil
	})
}

// ResetUsage zeroes usage for all of a tenant's quotas and advances the
// reset date
func (r *GormQuotaRepository) ResetUsage(ctx context.Context, tenantID uuid.UUID, nextReset time.Time) error {
	return r.db.WithContext(ctx).
		Model(&billing.ResourceQuota{}).
		Where("tenant_id = ?", tenantID).
		UpdateColumns(map[string]interface{}{
			"current_usage": 0,
			"reset_date":    nextReset,
		}).Error
}

// SetUsage overwrites the cached usage counter for one key
func (r *GormQuotaRepository) SetUsage(ctx context.Context, tenantID uuid.UUID, resourceType billing.ResourceType, usage int64) error {
	result := r.db.WithContext(ctx).
		Model(&billing.ResourceQuota{}).
		Where("tenant_id = ? AND resource_type = ?", tenantID, resourceType).
		UpdateColumn("current_usage", usage)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindDueForReset retrieves quotas whose reset date has passed
func (r *GormQuotaRepository) FindDueForReset(ctx context.Context, now time.Time) ([]*billing.ResourceQuota, error) {
	var quotas []*billing.ResourceQuota
	if err := r.db.WithContext(ctx).
		Where("reset_date <= ?", now).
		Find(&quotas).Error; err != nil {
		return nil, err
	}
	return quotas, nil
}

var _ billing.QuotaRepository = (*GormQuotaRepository)(nil)
