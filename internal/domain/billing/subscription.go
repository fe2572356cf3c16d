package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterd/backend/internal/domain/shared"
)

// SubscriptionStatus represents the billing status of a subscription
type SubscriptionStatus string

const (
	SubscriptionTrialing   SubscriptionStatus = "trialing"
	SubscriptionActive     SubscriptionStatus = "active"
	SubscriptionPastDue    SubscriptionStatus = "past_due"
	SubscriptionCanceled   SubscriptionStatus = "canceled"
	SubscriptionUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionIncomplete SubscriptionStatus = "incomplete"
)

// String returns the string representation of SubscriptionStatus
func (s SubscriptionStatus) String() string {
	return string(s)
}

// IsValid returns true if the status is a known value
func (s SubscriptionStatus) IsValid() bool {
	switch s {
	case SubscriptionTrialing, SubscriptionActive, SubscriptionPastDue,
		SubscriptionCanceled, SubscriptionUnpaid, SubscriptionIncomplete:
		return true
	}
	return false
}

// IsHealthy returns true for statuses that keep the tenant in good standing
func (s SubscriptionStatus) IsHealthy() bool {
	return s == SubscriptionTrialing || s == SubscriptionActive
}

// BillingCycle represents the recurrence of a subscription
type BillingCycle string

const (
	BillingCycleMonthly BillingCycle = "monthly"
	BillingCycleYearly  BillingCycle = "yearly"
)

// IsValid returns true if the billing cycle is a known value
func (c BillingCycle) IsValid() bool {
	return c == BillingCycleMonthly || c == BillingCycleYearly
}

// Subscription mirrors the externally-owned subscription record for one
// tenant. It is mutated only by the synchronizer (authoritative responses
// from the processor) and the webhook processor (inbound events applied in
// event-time order).
type Subscription struct {
	shared.BaseAggregateRoot
	TenantID       uuid.UUID          `gorm:"type:uuid;not null;uniqueIndex"`
	ExternalID     string             `gorm:"type:varchar(128);index"`
	PlanID         string             `gorm:"type:varchar(64);not null"`
	BillingCycle   BillingCycle       `gorm:"type:varchar(16);not null;default:'monthly'"`
	PeriodStart    time.Time          ``
	PeriodEnd      time.Time          ``
	Status         SubscriptionStatus `gorm:"type:varchar(20);not null;default:'incomplete'"`
	AmountCents    int64              `gorm:"not null;default:0"`
	LastEventAt    time.Time          `gorm:"index"` // event-time watermark for inbound webhook ordering
	StaleSince     *time.Time         ``             // set when outbound sync is degraded
	TrialEndsAt    *time.Time         ``
	CancelAtPeriodEnd bool            `gorm:"not null;default:false"`
}

// TableName returns the table name for GORM
func (Subscription) TableName() string {
	return "subscriptions"
}

// NewSubscription creates a local subscription record in incomplete status.
// The authoritative fields are filled in once the external processor responds.
func NewSubscription(tenantID uuid.UUID, planID string, cycle BillingCycle) (*Subscription, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if planID == "" {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan ID cannot be empty")
	}
	if !cycle.IsValid() {
		return nil, shared.NewDomainError("INVALID_BILLING_CYCLE", "Invalid billing cycle")
	}

	return &Subscription{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		TenantID:          tenantID,
		PlanID:            planID,
		BillingCycle:      cycle,
		Status:            SubscriptionIncomplete,
	}, nil
}

// ApplyEventAt records the event-time watermark and applies a status change
// if the event is not older than the currently-applied one. Returns false
// when the event is stale (accepted for bookkeeping, state untouched).
func (s *Subscription) ApplyEventAt(occurredAt time.Time, status SubscriptionStatus) bool {
	if occurredAt.Before(s.LastEventAt) {
		return false
	}
	if status.IsValid() && status != s.Status {
		s.Status = status
	}
	s.LastEventAt = occurredAt
	s.UpdatedAt = time.Now()
	s.IncrementVersion()
	return true
}

// MarkStale flags the subscription as out of sync with the external processor
func (s *Subscription) MarkStale(now time.Time) {
	if s.StaleSince == nil {
		t := now
		s.StaleSince = &t
		s.UpdatedAt = now
	}
}

// ClearStale removes the degraded-sync flag after a successful sync
func (s *Subscription) ClearStale() {
	s.StaleSince = nil
	s.UpdatedAt = time.Now()
}

// IsStale returns true if the last outbound sync attempt failed
func (s *Subscription) IsStale() bool {
	return s.StaleSince != nil
}
