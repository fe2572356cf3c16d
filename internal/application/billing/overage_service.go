package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
	"github.com/meterd/backend/internal/domain/tenant"
)

// OverageService computes end-of-period overage charges from the usage
// ledger and issues at most one overage invoice per tenant per month. The
// run is idempotent: the partial unique index on overage invoices makes a
// concurrent or repeated run converge on the single existing invoice.
type OverageService struct {
	quotaRepo   billing.QuotaRepository
	usageRepo   billing.UsageLogRepository
	invoiceRepo billing.InvoiceRepository
	tenantRepo  tenant.Repository
	processor   PaymentProcessor
	rates       *billing.OverageRateTable
	audit       shared.AuditLogger
	logger      *zap.Logger
	currency    string
}

// NewOverageService creates a new overage billing service
func NewOverageService(
	quotaRepo billing.QuotaRepository,
	usageRepo billing.UsageLogRepository,
	invoiceRepo billing.InvoiceRepository,
	tenantRepo tenant.Repository,
	processor PaymentProcessor,
	rates *billing.OverageRateTable,
	audit shared.AuditLogger,
	logger *zap.Logger,
) *OverageService {
	if rates == nil {
		rates = billing.DefaultOverageRates()
	}
	return &OverageService{
		quotaRepo:   quotaRepo,
		usageRepo:   usageRepo,
		invoiceRepo: invoiceRepo,
		tenantRepo:  tenantRepo,
		processor:   processor,
		rates:       rates,
		audit:       audit,
		logger:      logger,
		currency:    "usd",
	}
}

// OverageLine is one resource's contribution to an overage charge
type OverageLine struct {
	ResourceType billing.ResourceType `json:"resource_type"`
	Usage        int64                `json:"usage"`
	Limit        int64                `json:"limit"`
	Overage      int64                `json:"overage"`
	ChargeCents  int64                `json:"charge_cents"`
}

// RunForPeriod bills one tenant's overage for one calendar month given as
// YYYY-MM. Returns nil when the tenant stayed within all limits. Running
// twice for the same tenant-month returns the same invoice.
func (s *OverageService) RunForPeriod(ctx context.Context, tenantID uuid.UUID, month string) (*billing.Invoice, error) {
	from, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Period month must be formatted as YYYY-MM")
	}
	to := from.AddDate(0, 1, 0)

	if existing, err := s.invoiceRepo.FindOverageInvoice(ctx, tenantID, month); err == nil {
		return existing, nil
	} else if !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	lines, totalCents, err := s.computeOverage(ctx, tenantID, from, to)
	if err != nil {
		return nil, err
	}
	if totalCents == 0 {
		s.logger.Debug("No overage for period",
			zap.String("tenant_id", tenantID.String()),
			zap.String("month", month))
		return nil, nil
	}

	invoice, err := billing.NewOverageInvoice(tenantID, month, totalCents, s.currency)
	if err != nil {
		return nil, err
	}
	if err := s.invoiceRepo.Save(ctx, invoice); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			// Lost the race against a concurrent run; the winner's invoice stands
			return s.invoiceRepo.FindOverageInvoice(ctx, tenantID, month)
		}
		return nil, err
	}

	s.logger.Info("Overage invoice issued",
		zap.String("tenant_id", tenantID.String()),
		zap.String("month", month),
		zap.Int64("amount_cents", totalCents),
		zap.Int("lines", len(lines)))
	if err := s.audit.LogEvent(ctx, tenantID, "overage_run", "invoice.created", "", string(invoice.Status)); err != nil {
		s.logger.Warn("Audit write failed", zap.Error(err))
	}

	s.pushToProcessor(ctx, invoice, month)
	return invoice, nil
}

// computeOverage sums the ledger per resource over [from, to) and prices
// usage beyond each limit
func (s *OverageService) computeOverage(ctx context.Context, tenantID uuid.UUID, from, to time.Time) ([]OverageLine, int64, error) {
	quotas, err := s.quotaRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, 0, err
	}

	var lines []OverageLine
	var totalCents int64
	for _, quota := range quotas {
		usage, err := s.usageRepo.SumInRange(ctx, tenantID, quota.ResourceType, from, to)
		if err != nil {
			return nil, 0, err
		}
		overage := usage - quota.Limit
		if overage <= 0 {
			continue
		}
		charge := s.rates.ChargeFor(quota.ResourceType, overage)
		if charge == 0 {
			continue
		}
		lines = append(lines, OverageLine{
			ResourceType: quota.ResourceType,
			Usage:        usage,
			Limit:        quota.Limit,
			Overage:      overage,
			ChargeCents:  charge,
		})
		totalCents += charge
	}
	return lines, totalCents, nil
}

// pushToProcessor mirrors the invoice to the external processor. Failure is
// logged and left for a later retry; the local invoice is the record of
// truth for what is owed.
func (s *OverageService) pushToProcessor(ctx context.Context, invoice *billing.Invoice, month string) {
	if s.processor == nil {
		return
	}
	remote, err := s.processor.CreateInvoice(ctx, CreateInvoiceInput{
		TenantID:       invoice.TenantID,
		AmountCents:    invoice.AmountCents,
		Currency:       invoice.Currency,
		Description:    fmt.Sprintf("Usage overage for %s", month),
		IdempotencyKey: fmt.Sprintf("overage:%s:%s", invoice.TenantID, month),
	})
	if err != nil {
		s.logger.Warn("Failed to mirror overage invoice to processor",
			zap.String("tenant_id", invoice.TenantID.String()),
			zap.String("month", month),
			zap.Error(err))
		return
	}
	invoice.ExternalInvoiceID = remote.ExternalID
	if err := s.invoiceRepo.Update(ctx, invoice); err != nil {
		s.logger.Warn("Failed to store external invoice ID",
			zap.String("tenant_id", invoice.TenantID.String()),
			zap.Error(err))
	}
}

// ListInvoices returns all invoices issued to a tenant, newest first
func (s *OverageService) ListInvoices(ctx context.Context, tenantID uuid.UUID) ([]*billing.Invoice, error) {
	return s.invoiceRepo.FindByTenant(ctx, tenantID)
}

// RunSummary reports the outcome of a full overage run
type RunSummary struct {
	Month    string `json:"month"`
	Tenants  int    `json:"tenants"`
	Invoiced int    `json:"invoiced"`
	Failed   int    `json:"failed"`
}

// RunForAllTenants bills overage for every active tenant for the given
// month. Per-tenant failures are logged and counted, never abort the run.
func (s *OverageService) RunForAllTenants(ctx context.Context, month string) (*RunSummary, error) {
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Period month must be formatted as YYYY-MM")
	}

	tenants, err := s.tenantRepo.FindByStatus(ctx, tenant.StatusActive)
	if err != nil {
		return nil, err
	}

	summary := &RunSummary{Month: month, Tenants: len(tenants)}
	for _, t := range tenants {
		invoice, err := s.RunForPeriod(ctx, t.ID, month)
		if err != nil {
			summary.Failed++
			s.logger.Error("Overage run failed for tenant",
				zap.String("tenant_id", t.ID.String()),
				zap.String("month", month),
				zap.Error(err))
			continue
		}
		if invoice != nil {
			summary.Invoiced++
		}
	}

	s.logger.Info("Overage run complete",
		zap.String("month", month),
		zap.Int("tenants", summary.Tenants),
		zap.Int("invoiced", summary.Invoiced),
		zap.Int("failed", summary.Failed))
	return summary, nil
}

// PreviousMonth returns the YYYY-MM label of the calendar month before now
func PreviousMonth(now time.Time) string {
	return billing.PeriodStart(now).AddDate(0, -1, 0).Format("2006-01")
}
