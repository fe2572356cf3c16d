package billing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/meterd/backend/internal/domain/billing"
)

// PaymentProcessor is the outbound port to the external payment processor.
// Every call carries an idempotency key so the external side can deduplicate
// retried requests. Implementations perform network I/O and must honor the
// context deadline.
type PaymentProcessor interface {
	// CreateSubscription creates a subscription with the external processor
	CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*ProcessorSubscription, error)

	// UpdateSubscription changes the plan or cycle of an existing subscription
	UpdateSubscription(ctx context.Context, input UpdateSubscriptionInput) (*ProcessorSubscription, error)

	// CancelSubscription cancels an existing subscription
	CancelSubscription(ctx context.Context, input CancelSubscriptionInput) (*ProcessorSubscription, error)

	// CreateInvoice creates an invoice with the external processor
	CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*ProcessorInvoice, error)
}

// CreateSubscriptionInput contains the request for a new external subscription
type CreateSubscriptionInput struct {
	TenantID       uuid.UUID
	PlanID         string
	BillingCycle   billing.BillingCycle
	TrialDays      int
	IdempotencyKey string
}

// UpdateSubscriptionInput contains the request to change an external subscription
type UpdateSubscriptionInput struct {
	TenantID       uuid.UUID
	ExternalID     string
	NewPlanID      string
	BillingCycle   billing.BillingCycle
	IdempotencyKey string
}

// CancelSubscriptionInput contains the request to cancel an external subscription
type CancelSubscriptionInput struct {
	TenantID       uuid.UUID
	ExternalID     string
	AtPeriodEnd    bool
	IdempotencyKey string
}

// ProcessorSubscription is the authoritative subscription state returned by
// the external processor. It always wins over locally-guessed values.
type ProcessorSubscription struct {
	ExternalID        string
	PlanID            string
	Status            billing.SubscriptionStatus
	BillingCycle      billing.BillingCycle
	PeriodStart       time.Time
	PeriodEnd         time.Time
	AmountCents       int64
	TrialEndsAt       *time.Time
	CancelAtPeriodEnd bool
}

// CreateInvoiceInput contains the request for a new external invoice
type CreateInvoiceInput struct {
	TenantID       uuid.UUID
	AmountCents    int64
	Currency       string
	Description    string
	IdempotencyKey string
}

// ProcessorInvoice is the authoritative invoice state returned by the
// external processor
type ProcessorInvoice struct {
	ExternalID string
	Status     string
}

// InboundEvent is a verified, parsed webhook event from the external
// processor. Subscription is populated for subscription.* event types.
type InboundEvent struct {
	ExternalEventID string
	Type            string
	SubscriptionID  string
	OccurredAt      time.Time
	Payload         []byte
	Subscription    *ProcessorSubscription
}

// SignatureVerifier authenticates and parses a raw webhook delivery.
// Verification happens before any persistence: a bad signature or malformed
// payload is rejected fail-closed.
type SignatureVerifier interface {
	VerifyAndParse(payload []byte, signature string) (*InboundEvent, error)
}

// TenantStatusUpdater is the narrow port the webhook processor uses to
// cascade subscription state changes onto the tenant lifecycle. Implemented
// by the tenant registry service.
type TenantStatusUpdater interface {
	// ActivateTenant moves a tenant to active if its state machine allows it
	ActivateTenant(ctx context.Context, tenantID uuid.UUID, actor string) error

	// SuspendTenant moves a tenant to suspended if its state machine allows it
	SuspendTenant(ctx context.Context, tenantID uuid.UUID, actor string) error
}
