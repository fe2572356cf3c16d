package audit

import (
	"github.com/google/uuid"

	"github.com/meterd/backend/internal/domain/shared"
)

// Record is one persisted audit trail entry. Records are append-only and
// never updated or deleted.
type Record struct {
	shared.BaseEntity
	TenantID uuid.UUID `gorm:"type:uuid;not null;index"`
	Actor    string    `gorm:"type:varchar(200);not null"`
	Action   string    `gorm:"type:varchar(100);not null;index"`
	OldState string    `gorm:"type:varchar(100)"`
	NewState string    `gorm:"type:varchar(100)"`
}

// TableName returns the table name for GORM
func (Record) TableName() string {
	return "audit_records"
}
