package billing

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/meterd/backend/internal/domain/shared"
)

// UsageLogEntry is an immutable record of a single consumption event.
// Entries are append-only: corrections are made with new entries, never by
// mutating existing ones. The ledger is the source of truth the cached
// quota counters are reconciled against.
type UsageLogEntry struct {
	shared.BaseEntity
	TenantID       uuid.UUID    `gorm:"type:uuid;not null;index:idx_usage_tenant_resource"`
	ResourceType   ResourceType `gorm:"type:varchar(32);not null;index:idx_usage_tenant_resource"`
	Amount         int64        `gorm:"not null"`
	OccurredOn     time.Time    `gorm:"not null;index"`
	Description    string       `gorm:"type:text"`
	IdempotencyKey string       `gorm:"type:varchar(128);uniqueIndex"`
}

// TableName returns the table name for GORM
func (UsageLogEntry) TableName() string {
	return "usage_log_entries"
}

// NewUsageLogEntry creates a new usage log entry with validation
func NewUsageLogEntry(tenantID uuid.UUID, resourceType ResourceType, amount int64, description string) (*UsageLogEntry, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !resourceType.IsValid() {
		return nil, shared.NewDomainError("INVALID_RESOURCE_TYPE", "Invalid resource type")
	}
	if amount <= 0 {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Usage amount must be positive")
	}

	now := time.Now()
	entry := &UsageLogEntry{
		BaseEntity:   shared.NewBaseEntity(),
		TenantID:     tenantID,
		ResourceType: resourceType,
		Amount:       amount,
		OccurredOn:   now,
		Description:  description,
	}
	entry.IdempotencyKey = UsageIdempotencyKey(tenantID, resourceType, now)

	return entry, nil
}

// WithOccurredOn overrides the occurrence time (used for retried calls that
// carry the original timestamp so the idempotency key stays stable)
func (e *UsageLogEntry) WithOccurredOn(t time.Time) *UsageLogEntry {
	e.OccurredOn = t
	e.IdempotencyKey = UsageIdempotencyKey(e.TenantID, e.ResourceType, t)
	return e
}

// WithIdempotencyKey overrides the generated idempotency key
func (e *UsageLogEntry) WithIdempotencyKey(key string) *UsageLogEntry {
	if key != "" {
		e.IdempotencyKey = key
	}
	return e
}

// UsageIdempotencyKey derives the dedup key for a usage event from
// tenant, resource type, and occurrence timestamp. Callers that retry a
// failed RecordUsage call re-issue the same key, making the retry safe.
func UsageIdempotencyKey(tenantID uuid.UUID, resourceType ResourceType, occurredOn time.Time) string {
	return fmt.Sprintf("%s:%s:%d", tenantID, resourceType, occurredOn.UnixNano())
}
