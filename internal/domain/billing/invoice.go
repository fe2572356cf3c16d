package billing

import (
	"time"

	"github.com/google/uuid"
	"github.com/meterd/backend/internal/domain/shared"
)

// InvoiceStatus represents the payment status of an invoice
type InvoiceStatus string

const (
	InvoiceDraft  InvoiceStatus = "draft"
	InvoiceOpen   InvoiceStatus = "open"
	InvoicePaid   InvoiceStatus = "paid"
	InvoiceFailed InvoiceStatus = "failed"
)

// IsValid returns true if the status is a known value
func (s InvoiceStatus) IsValid() bool {
	switch s {
	case InvoiceDraft, InvoiceOpen, InvoicePaid, InvoiceFailed:
		return true
	}
	return false
}

// BillingReason identifies why an invoice was created
type BillingReason string

const (
	ReasonSubscriptionCycle BillingReason = "subscription_cycle"
	ReasonUsageOverage      BillingReason = "usage_overage"
)

// IsValid returns true if the billing reason is a known value
func (r BillingReason) IsValid() bool {
	return r == ReasonSubscriptionCycle || r == ReasonUsageOverage
}

// Invoice represents a charge issued to a tenant. At most one invoice with
// ReasonUsageOverage may exist per (tenant, calendar month); the persistence
// layer enforces this with a uniqueness constraint so a re-run of the
// billing job is a safe no-op.
type Invoice struct {
	shared.BaseEntity
	TenantID          uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_invoice_overage_month,where:billing_reason = 'usage_overage'"`
	AmountCents       int64         `gorm:"not null"`
	Currency          string        `gorm:"type:varchar(8);not null;default:'usd'"`
	Status            InvoiceStatus `gorm:"type:varchar(16);not null;default:'draft'"`
	BillingReason     BillingReason `gorm:"type:varchar(32);not null"`
	PeriodMonth       string        `gorm:"type:varchar(7);not null;uniqueIndex:idx_invoice_overage_month,where:billing_reason = 'usage_overage'"` // "2006-01"
	DueDate           *time.Time    ``
	PaidAt            *time.Time    ``
	ExternalInvoiceID string        `gorm:"type:varchar(128)"`
}

// TableName returns the table name for GORM
func (Invoice) TableName() string {
	return "invoices"
}

// NewOverageInvoice creates a draft overage invoice for a tenant-month
func NewOverageInvoice(tenantID uuid.UUID, month string, amountCents int64, currency string) (*Invoice, error) {
	if tenantID == uuid.Nil {
		return nil, shared.NewDomainError("INVALID_TENANT", "Tenant ID cannot be empty")
	}
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, shared.NewDomainError("INVALID_MONTH", "Month must be in YYYY-MM format")
	}
	if amountCents <= 0 {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Invoice amount must be positive")
	}
	if currency == "" {
		currency = "usd"
	}

	due := time.Now().AddDate(0, 0, 14)
	return &Invoice{
		BaseEntity:    shared.NewBaseEntity(),
		TenantID:      tenantID,
		AmountCents:   amountCents,
		Currency:      currency,
		Status:        InvoiceOpen,
		BillingReason: ReasonUsageOverage,
		PeriodMonth:   month,
		DueDate:       &due,
	}, nil
}

// MarkPaid records successful payment of the invoice
func (i *Invoice) MarkPaid(at time.Time) error {
	if i.Status == InvoicePaid {
		return shared.NewDomainError("ALREADY_PAID", "Invoice is already paid")
	}
	i.Status = InvoicePaid
	i.PaidAt = &at
	i.UpdatedAt = time.Now()
	return nil
}

// MarkFailed records a failed payment attempt
func (i *Invoice) MarkFailed() {
	i.Status = InvoiceFailed
	i.UpdatedAt = time.Now()
}
