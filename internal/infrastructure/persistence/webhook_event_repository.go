package persistence

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
)

// GormWebhookEventRepository implements billing.WebhookEventRepository using
// GORM. Events are write-once: the unique index on external_event_id plus
// an ON CONFLICT DO NOTHING insert make replays visible without errors.
type GormWebhookEventRepository struct {
	db *gorm.DB
}

// NewGormWebhookEventRepository creates a new GormWebhookEventRepository
func NewGormWebhookEventRepository(db *gorm.DB) *GormWebhookEventRepository {
	return &GormWebhookEventRepository{db: db}
}

// InsertIfAbsent persists the event if its external event ID has not been
// seen before. Returns false when the ID already exists.
func (r *GormWebhookEventRepository) InsertIfAbsent(ctx context.Context, event *billing.WebhookEvent) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_event_id"}},
			DoNothing: true,
		}).
		Create(event)
	if result.Error != nil {
		if isDuplicateKey(result.Error) {
			return false, nil
		}
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

// MarkProcessed stamps the event's processed time
func (r *GormWebhookEventRepository) MarkProcessed(ctx context.Context, externalEventID string, at time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&billing.WebhookEvent{}).
		Where("external_event_id = ?", externalEventID).
		UpdateColumn("processed_at", at)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// FindByExternalID retrieves an event by its external ID
func (r *GormWebhookEventRepository) FindByExternalID(ctx context.Context, externalEventID string) (*billing.WebhookEvent, error) {
	var event billing.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("external_event_id = ?", externalEventID).
		First(&event).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, shared.ErrNotFound
		}
		return nil, err
	}
	return &event, nil
}

var _ billing.WebhookEventRepository = (*GormWebhookEventRepository)(nil)
