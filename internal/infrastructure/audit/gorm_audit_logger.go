package audit

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/meterd/backend/internal/domain/shared"
)

// GormAuditLogger persists audit records to the database and mirrors each
// one to the structured log. A write failure is returned to the caller but
// callers treat the audit trail as best-effort: the state change stands.
type GormAuditLogger struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormAuditLogger creates a new database-backed audit logger
func NewGormAuditLogger(db *gorm.DB, logger *zap.Logger) *GormAuditLogger {
	return &GormAuditLogger{db: db, logger: logger}
}

// LogEvent implements shared.AuditLogger
func (l *GormAuditLogger) LogEvent(ctx context.Context, tenantID uuid.UUID, actor, action, oldState, newState string) error {
	record := &Record{
		BaseEntity: shared.NewBaseEntity(),
		TenantID:   tenantID,
		Actor:      actor,
		Action:     action,
		OldState:   oldState,
		NewState:   newState,
	}

	l.logger.Info("Audit event",
		zap.String("tenant_id", tenantID.String()),
		zap.String("actor", actor),
		zap.String("action", action),
		zap.String("old_state", oldState),
		zap.String("new_state", newState))

	if err := l.db.WithContext(ctx).Create(record).Error; err != nil {
		l.logger.Error("Failed to persist audit record",
			zap.String("tenant_id", tenantID.String()),
			zap.String("action", action),
			zap.Error(err))
		return err
	}
	return nil
}

// FindByTenant retrieves the audit trail for a tenant, newest first
func (l *GormAuditLogger) FindByTenant(ctx context.Context, tenantID uuid.UUID, limit int) ([]*Record, error) {
	if limit <= 0 {
		limit = 100
	}
	var records []*Record
	if err := l.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("created_at DESC").
		Limit(limit).
		Find(&records).Error; err != nil {
		return nil, err
	}
	return records, nil
}

var _ shared.AuditLogger = (*GormAuditLogger)(nil)
