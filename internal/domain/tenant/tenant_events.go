package tenant

import (
	"github.com/meterd/backend/internal/domain/shared"
)

// Aggregate type constant
const AggregateTypeTenant = "Tenant"

// Event type constants
const (
	EventTypeTenantCreated       = "TenantCreated"
	EventTypeTenantStatusChanged = "TenantStatusChanged"
	EventTypeTenantTierChanged   = "TenantTierChanged"
)

// CreatedEvent is published when a new tenant is created
type CreatedEvent struct {
	shared.BaseDomainEvent
	Name   string `json:"name"`
	Status Status `json:"status"`
	Tier   Tier   `json:"tier"`
}

// NewCreatedEvent creates a new CreatedEvent
func NewCreatedEvent(t *Tenant) *CreatedEvent {
	return &CreatedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantCreated, AggregateTypeTenant, t.ID, t.ID),
		Name:            t.Name,
		Status:          t.Status,
		Tier:            t.Tier,
	}
}

// StatusChangedEvent is published when a tenant's status changes
type StatusChangedEvent struct {
	shared.BaseDomainEvent
	OldStatus Status `json:"old_status"`
	NewStatus Status `json:"new_status"`
}

// NewStatusChangedEvent creates a new StatusChangedEvent
func NewStatusChangedEvent(t *Tenant, oldStatus, newStatus Status) *StatusChangedEvent {
	return &StatusChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantStatusChanged, AggregateTypeTenant, t.ID, t.ID),
		OldStatus:       oldStatus,
		NewStatus:       newStatus,
	}
}

// TierChangedEvent is published when a tenant's tier changes
type TierChangedEvent struct {
	shared.BaseDomainEvent
	OldTier Tier `json:"old_tier"`
	NewTier Tier `json:"new_tier"`
}

// NewTierChangedEvent creates a new TierChangedEvent
func NewTierChangedEvent(t *Tenant, oldTier, newTier Tier) *TierChangedEvent {
	return &TierChangedEvent{
		BaseDomainEvent: shared.NewBaseDomainEvent(EventTypeTenantTierChanged, AggregateTypeTenant, t.ID, t.ID),
		OldTier:         oldTier,
		NewTier:         newTier,
	}
}
