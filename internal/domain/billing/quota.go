package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterd/backend/internal/domain/shared"
)

// ResourceQuota holds the per-tenant ceiling and cached usage for one
// resource type in the current billing period. CurrentUsage is the
// authoritative counter on the request path; the usage ledger is the
// source it is periodically reconciled against.
//
// Invariant: CurrentUsage >= 0 at all times.
type ResourceQuota struct {
	shared.BaseEntity
	TenantID     uuid.UUID    `gorm:"type:uuid;not null;uniqueIndex:idx_quota_tenant_resource"`
	ResourceType ResourceType `gorm:"type:varchar(32);not null;uniqueIndex:idx_quota_tenant_resource"`
	Limit        int64        `gorm:"column:quota_limit;not null"`
	CurrentUsage int64        `gorm:"not null;default:0"`
	ResetDate    time.Time    `gorm:"not null"`
}

// TableName returns the table name for GORM
func (ResourceQuota) TableName() string {
	return "resource_quotas"
}

// NewResourceQuota creates a quota for a tenant and resource type
func NewResourceQuota(tenantID uuid.UUID, resourceType ResourceType, limit int64) (*ResourceQuota, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if !resourceType.IsValid() {
		return nil, shared.NewDomainError("INVALID_RESOURCE_TYPE", "Invalid resource type")
	}
	if limit < 0 {
		return nil, shared.NewDomainError("INVALID_LIMIT", "Quota limit cannot be negative")
	}

	return &ResourceQuota{
		BaseEntity:   shared.NewBaseEntity(),
		TenantID:     tenantID,
		ResourceType: resourceType,
		Limit:        limit,
		CurrentUsage: 0,
		ResetDate:    NextPeriodStart(time.Now()),
	}, nil
}

// Remaining returns the unconsumed portion of the quota, never negative
func (q *ResourceQuota) Remaining() int64 {
	remaining := q.Limit - q.CurrentUsage
	if remaining < 0 {
		return 0
	}
	return remaining
}

// WouldExceed returns true if consuming amount would push usage past the limit
func (q *ResourceQuota) WouldExceed(amount int64) bool {
	return q.CurrentUsage+amount > q.Limit
}

// UsagePercent returns the percentage of the quota consumed (0-100+)
func (q *ResourceQuota) UsagePercent() float64 {
	if q.Limit <= 0 {
		return 0
	}
	return float64(q.CurrentUsage) / float64(q.Limit) * 100
}

// ResetForNewPeriod zeroes usage and advances the reset date to the next
// period boundary. Limits are untouched.
func (q *ResourceQuota) ResetForNewPeriod(now time.Time) {
	q.CurrentUsage = 0
	q.ResetDate = NextPeriodStart(now)
	q.UpdatedAt = now
}

// PeriodStart returns the first instant of the calendar month containing t
func PeriodStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
}

// NextPeriodStart returns the first instant of the calendar month after t
func NextPeriodStart(t time.Time) time.Time {
	return PeriodStart(t).AddDate(0, 1, 0)
}
