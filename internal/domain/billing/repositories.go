package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// QuotaRepository defines persistence operations for resource quotas.
// ConsumeIfWithinLimit is the single atomic operation on the request path.
type QuotaRepository interface {
	// Save persists a new quota row
	Save(ctx context.Context, quota *ResourceQuota) error

	// Update updates an existing quota row
	Update(ctx context.Context, quota *ResourceQuota) error

	// FindByTenantAndType retrieves the quota for one (tenant, resource) key.
	// Returns shared.ErrNotFound if no quota is configured.
	FindByTenantAndType(ctx context.Context, tenantID uuid.UUID, resourceType ResourceType) (*ResourceQuota, error)

	// FindByTenant retrieves all quotas for a tenant
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*ResourceQuota, error)

	// ConsumeIfWithinLimit atomically increments current usage by amount if
	// and only if the result stays within the limit. No caller can observe a
	// state where the check passed but the increment has not happened.
	// Returns the post-operation remaining quota alongside the decision.
	ConsumeIfWithinLimit(ctx context.Context, tenantID uuid.UUID, resourceType ResourceType, amount int64) (allowed bool, remaining int64, err error)

	// ReplaceLimits replaces the limit values for a tenant, creating missing
	// rows and preserving current usage on existing ones.
	ReplaceLimits(ctx context.Context, tenantID uuid.UUID, limits map[ResourceType]int64) error

	// ResetUsage zeroes usage for all of a tenant's quotas and advances the
	// reset date to the next period boundary.
	ResetUsage(ctx context.Context, tenantID uuid.UUID, nextReset time.Time) error

	// SetUsage overwrites the cached usage counter for one key. Used only by
	// the reconciliation pass when repairing drift against the ledger.
	SetUsage(ctx context.Context, tenantID uuid.UUID, resourceType ResourceType, usage int64) error

	// FindDueForReset retrieves quotas whose reset date has passed
	FindDueForReset(ctx context.Context, now time.Time) ([]*ResourceQuota, error)
}

// UsageLogRepository defines persistence operations for the append-only
// usage ledger
type UsageLogRepository interface {
	// Append persists a new ledger entry. An entry whose idempotency key has
	// already been recorded is dropped and reported via shared.ErrAlreadyExists.
	Append(ctx context.Context, entry *UsageLogEntry) error

	// SumSince returns the total amount recorded for a (tenant, resource)
	// key on or after the given time. The sum reflects every entry appended
	// before the call started.
	SumSince(ctx context.Context, tenantID uuid.UUID, resourceType ResourceType, since time.Time) (int64, error)

	// SumInRange returns the total amount recorded in [from, to)
	SumInRange(ctx context.Context, tenantID uuid.UUID, resourceType ResourceType, from, to time.Time) (int64, error)
}

// SubscriptionRepository defines persistence operations for subscriptions
type SubscriptionRepository interface {
	// Save persists a new subscription
	Save(ctx context.Context, sub *Subscription) error

	// Update updates an existing subscription
	Update(ctx context.Context, sub *Subscription) error

	// FindByTenant retrieves the subscription for a tenant.
	// Returns shared.ErrNotFound if none exists.
	FindByTenant(ctx context.Context, tenantID uuid.UUID) (*Subscription, error)

	// FindByExternalID retrieves a subscription by its external processor ID
	FindByExternalID(ctx context.Context, externalID string) (*Subscription, error)
}

// InvoiceRepository defines persistence operations for invoices
type InvoiceRepository interface {
	// Save persists a new invoice. For overage invoices, a uniqueness
	// constraint on (tenant, month, usage_overage) causes a duplicate insert
	// to fail with shared.ErrAlreadyExists.
	Save(ctx context.Context, invoice *Invoice) error

	// Update updates an existing invoice
	Update(ctx context.Context, invoice *Invoice) error

	// FindOverageInvoice retrieves the overage invoice for a tenant-month.
	// Returns shared.ErrNotFound if none exists.
	FindOverageInvoice(ctx context.Context, tenantID uuid.UUID, month string) (*Invoice, error)

	// FindByTenant retrieves all invoices for a tenant, newest first
	FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*Invoice, error)
}

// WebhookEventRepository defines persistence operations for inbound webhook
// events
type WebhookEventRepository interface {
	// InsertIfAbsent persists the event if its external event ID has not been
	// seen before. Returns false (and no error) when the ID already exists.
	InsertIfAbsent(ctx context.Context, event *WebhookEvent) (inserted bool, err error)

	// MarkProcessed stamps the event's processed time
	MarkProcessed(ctx context.Context, externalEventID string, at time.Time) error

	// FindByExternalID retrieves an event by its external ID
	FindByExternalID(ctx context.Context, externalEventID string) (*WebhookEvent, error)
}
