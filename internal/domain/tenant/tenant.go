package tenant

import (
	"strings"
	"time"

	"github.com/meterd/backend/internal/domain/shared"
)

// Status represents the lifecycle status of a tenant
type Status string

const (
	StatusPending   Status = "pending"   // Created, awaiting first payment or trial start
	StatusActive    Status = "active"    // In good standing
	StatusSuspended Status = "suspended" // Suspended due to payment or administrative issues
	StatusCanceled  Status = "canceled"  // Terminal state
)

// String returns the string representation of Status
func (s Status) String() string {
	return string(s)
}

// IsValid returns true if the status is a known value
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusActive, StatusSuspended, StatusCanceled:
		return true
	}
	return false
}

// CanTransitionTo returns true if the transition from s to next is allowed.
// Canceled is terminal and reachable from every other state.
func (s Status) CanTransitionTo(next Status) bool {
	if !next.IsValid() || s == next {
		return false
	}
	if next == StatusCanceled {
		return s != StatusCanceled
	}
	switch s {
	case StatusPending:
		return next == StatusActive
	case StatusActive:
		return next == StatusSuspended
	case StatusSuspended:
		return next == StatusActive
	case StatusCanceled:
		return false
	}
	return false
}

// Tier represents the subscription tier of a tenant
type Tier string

const (
	TierFree         Tier = "free"
	TierStarter      Tier = "starter"
	TierProfessional Tier = "professional"
	TierBusiness     Tier = "business"
	TierEnterprise   Tier = "enterprise"
	TierMSP          Tier = "msp"
)

// String returns the string representation of Tier
func (t Tier) String() string {
	return string(t)
}

// IsValid returns true if the tier is a known value
func (t Tier) IsValid() bool {
	switch t {
	case TierFree, TierStarter, TierProfessional, TierBusiness, TierEnterprise, TierMSP:
		return true
	}
	return false
}

// Tenant represents a billed organization in the multi-tenant platform.
// It is the aggregate root for tenant lifecycle operations. Tenants are
// never deleted, only transitioned to canceled.
type Tenant struct {
	shared.BaseAggregateRoot
	Name         string `gorm:"type:varchar(200);not null"`
	Status       Status `gorm:"type:varchar(20);not null;default:'pending'"`
	Tier         Tier   `gorm:"type:varchar(20);not null;default:'free'"`
	BillingEmail string `gorm:"type:varchar(200)"`
	Timezone     string `gorm:"type:varchar(64)"`
	Locale       string `gorm:"type:varchar(16)"`
}

// TableName returns the table name for GORM
func (Tenant) TableName() string {
	return "tenants"
}

// New creates a new tenant in pending status
func New(name string, tier Tier, billingEmail string) (*Tenant, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if !tier.IsValid() {
		return nil, shared.NewDomainError("INVALID_TIER", "Invalid tenant tier")
	}
	if billingEmail != "" && !strings.Contains(billingEmail, "@") {
		return nil, shared.NewDomainError("INVALID_EMAIL", "Billing email is not valid")
	}

	t := &Tenant{
		BaseAggregateRoot: shared.NewBaseAggregateRoot(),
		Name:              name,
		Status:            StatusPending,
		Tier:              tier,
		BillingEmail:      billingEmail,
		Timezone:          "UTC",
		Locale:            "en-US",
	}

	t.AddDomainEvent(NewCreatedEvent(t))

	return t, nil
}

// TransitionTo moves the tenant to the given status, enforcing the state machine
func (t *Tenant) TransitionTo(next Status) error {
	if !t.Status.CanTransitionTo(next) {
		return shared.NewDomainError("INVALID_TRANSITION",
			"Cannot transition tenant from "+t.Status.String()+" to "+next.String())
	}

	old := t.Status
	t.Status = next
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	t.AddDomainEvent(NewStatusChangedEvent(t, old, next))

	return nil
}

// Activate transitions the tenant to active (first payment or trial start,
// or reinstatement after suspension)
func (t *Tenant) Activate() error {
	return t.TransitionTo(StatusActive)
}

// Suspend suspends the tenant (payment failure or administrative action)
func (t *Tenant) Suspend() error {
	return t.TransitionTo(StatusSuspended)
}

// Cancel transitions the tenant to the terminal canceled state
func (t *Tenant) Cancel() error {
	return t.TransitionTo(StatusCanceled)
}

// ChangeTier replaces the tenant's tier. Quota limits are re-derived by the
// registry service; usage is carried over.
func (t *Tenant) ChangeTier(tier Tier) error {
	if !tier.IsValid() {
		return shared.NewDomainError("INVALID_TIER", "Invalid tenant tier")
	}
	if t.Status == StatusCanceled {
		return shared.NewDomainError("INVALID_STATE", "Cannot change tier of a canceled tenant")
	}
	if t.Tier == tier {
		return nil
	}

	old := t.Tier
	t.Tier = tier
	t.UpdatedAt = time.Now()
	t.IncrementVersion()

	t.AddDomainEvent(NewTierChangedEvent(t, old, tier))

	return nil
}

// SetLocale sets the tenant's timezone and locale
func (t *Tenant) SetLocale(timezone, locale string) {
	if timezone != "" {
		t.Timezone = timezone
	}
	if locale != "" {
		t.Locale = locale
	}
	t.UpdatedAt = time.Now()
	t.IncrementVersion()
}

// IsActive returns true if the tenant is active
func (t *Tenant) IsActive() bool {
	return t.Status == StatusActive
}

// IsSuspended returns true if the tenant is suspended
func (t *Tenant) IsSuspended() bool {
	return t.Status == StatusSuspended
}

// IsCanceled returns true if the tenant has been canceled
func (t *Tenant) IsCanceled() bool {
	return t.Status == StatusCanceled
}

func validateName(name string) error {
	if name == "" {
		return shared.NewDomainError("INVALID_NAME", "Tenant name cannot be empty")
	}
	if len(name) > 200 {
		return shared.NewDomainError("INVALID_NAME", "Tenant name cannot exceed 200 characters")
	}
	return nil
}
