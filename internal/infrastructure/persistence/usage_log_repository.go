package persistence

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
)

// GormUsageLogRepository implements billing.UsageLogRepository using GORM.
// The table is append-only; there is deliberately no update or delete path.
type GormUsageLogRepository struct {
	db *gorm.DB
}

// NewGormUsageLogRepository creates a new GormUsageLogRepository
func NewGormUsageLogRepository(db *gorm.DB) *GormUsageLogRepository {
	return &GormUsageLogRepository{db: db}
}

// Append persists a new ledger entry. A duplicate idempotency key reports
// shared.ErrAlreadyExists.
func (r *GormUsageLogRepository) Append(ctx context.Context, entry *billing.UsageLogEntry) error {
	if err := r.db.WithContext(ctx).Create(entry).Error; err != nil {
		if isDuplicateKey(err) {
			return shared.ErrAlreadyExists
		}
		return err
	}
	return nil
}

// SumSince returns the total amount recorded on or after the given time
func (r *GormUsageLogRepository) SumSince(ctx context.Context, tenantID uuid.UUID, resourceType billing.ResourceType, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&billing.UsageLogEntry{}).
		Where("tenant_id = ? AND resource_type = ? AND occurred_on >= ?", tenantID, resourceType, since).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

// SumInRange returns the total amount recorded in [from, to)
func (r *GormUsageLogRepository) SumInRange(ctx context.Context, tenantID uuid.UUID, resourceType billing.ResourceType, from, to time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&billing.UsageLogEntry{}).
		Where("tenant_id = ? AND resource_type = ? AND occurred_on >= ? AND occurred_on < ?", tenantID, resourceType, from, to).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error
	return total, err
}

var _ billing.UsageLogRepository = (*GormUsageLogRepository)(nil)
