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
)

// DefaultSoftLimitPercent is the usage percentage at which a check result
// starts carrying an approaching-limit warning
const DefaultSoftLimitPercent = 80.0

// QuotaExceededError is returned when a consumption attempt would push usage
// past the configured limit. Nothing is consumed and nothing is logged to
// the ledger when this is returned.
type QuotaExceededError struct {
	TenantID     uuid.UUID
	ResourceType billing.ResourceType
	Requested    int64
	Remaining    int64
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for %s: requested %d, remaining %d", e.ResourceType, e.Requested, e.Remaining)
}

// QuotaWarning signals that usage has crossed the soft-limit threshold
type QuotaWarning struct {
	ResourceType billing.ResourceType `json:"resource_type"`
	UsagePercent float64              `json:"usage_percent"`
	Remaining    int64                `json:"remaining"`
}

// CheckResult is the outcome of a consumption attempt
type CheckResult struct {
	Allowed   bool          `json:"allowed"`
	Remaining int64         `json:"remaining"`
	Warning   *QuotaWarning `json:"warning,omitempty"`
}

// QuotaService enforces per-tenant resource limits. The cached counter in
// resource_quotas is authoritative on the request path; the usage ledger
// records history and is used to repair counter drift.
type QuotaService struct {
	quotaRepo        billing.QuotaRepository
	meter            *MeterService
	logger           *zap.Logger
	softLimitPercent float64
}

// NewQuotaService creates a new quota service
func NewQuotaService(quotaRepo billing.QuotaRepository, meter *MeterService, logger *zap.Logger) *QuotaService {
	return &QuotaService{
		quotaRepo:        quotaRepo,
		meter:            meter,
		logger:           logger,
		softLimitPercent: DefaultSoftLimitPercent,
	}
}

// WithSoftLimitPercent overrides the warning threshold
func (s *QuotaService) WithSoftLimitPercent(percent float64) *QuotaService {
	if percent > 0 {
		s.softLimitPercent = percent
	}
	return s
}

// CheckAndIncrement atomically consumes amount units of a resource if the
// tenant's limit allows it. The check and the increment are a single
// operation; two concurrent calls can never both succeed against the last
// unit of quota. On success the event is also appended to the usage ledger;
// a ledger write failure does not roll back the consumption, the periodic
// reconciliation pass repairs the counter instead.
func (s *QuotaService) CheckAndIncrement(ctx context.Context, tenantID uuid.UUID, resourceType billing.ResourceType, amount int64) (*CheckResult, error) {
	if amount <= 0 {
		return nil, shared.NewDomainError("INVALID_AMOUNT", "Consumption amount must be positive")
	}
	if !resourceType.IsValid() {
		return nil, shared.NewDomainError("INVALID_RESOURCE_TYPE", "Invalid resource type")
	}

	allowed, remaining, err := s.quotaRepo.ConsumeIfWithinLimit(ctx, tenantID, resourceType, amount)
	if err != nil {
		return nil, err
	}
	if !allowed {
		s.logger.Info("Quota check denied",
			zap.String("tenant_id", tenantID.String()),
			zap.String("resource_type", string(resourceType)),
			zap.Int64("requested", amount),
			zap.Int64("remaining", remaining))
		return &CheckResult{Allowed: false, Remaining: remaining}, &QuotaExceededError{
			TenantID:     tenantID,
			ResourceType: resourceType,
			Requested:    amount,
			Remaining:    remaining,
		}
	}

	if _, err := s.meter.RecordUsage(ctx, RecordUsageInput{
		TenantID:     tenantID,
		ResourceType: resourceType,
		Amount:       amount,
	}); err != nil {
		// Counter already moved; reconciliation will square the ledger
		s.logger.Warn("Usage ledger append failed after consumption",
			zap.String("tenant_id", tenantID.String()),
			zap.String("resource_type", string(resourceType)),
			zap.Int64("amount", amount),
			zap.Error(err))
	}

	result := &CheckResult{Allowed: true, Remaining: remaining}
	if warning := s.warningFor(ctx, tenantID, resourceType, remaining); warning != nil {
		result.Warning = warning
	}
	return result, nil
}

func (s *QuotaService) warningFor(ctx context.Context, tenantID uuid.UUID, resourceType billing.ResourceType, remaining int64) *QuotaWarning {
	quota, err := s.quotaRepo.FindByTenantAndType(ctx, tenantID, resourceType)
	if err != nil {
		return nil
	}
	percent := quota.UsagePercent()
	if percent < s.softLimitPercent {
		return nil
	}
	s.logger.Info("Quota approaching limit",
		zap.String("tenant_id", tenantID.String()),
		zap.String("resource_type", string(resourceType)),
		zap.Float64("usage_percent", percent))
	return &QuotaWarning{
		ResourceType: resourceType,
		UsagePercent: percent,
		Remaining:    remaining,
	}
}

// GetQuotas returns all quotas configured for a tenant
func (s *QuotaService) GetQuotas(ctx context.Context, tenantID uuid.UUID) ([]*billing.ResourceQuota, error) {
	return s.quotaRepo.FindByTenant(ctx, tenantID)
}

// SetLimits replaces a tenant's limits with the given values. Current usage
// is preserved: a tenant downgraded below its usage simply cannot consume
// more until the next reset.
func (s *QuotaService) SetLimits(ctx context.Context, tenantID uuid.UUID, limits map[billing.ResourceType]int64) error {
	if len(limits) == 0 {
		return shared.NewDomainError("INVALID_LIMITS", "At least one limit is required")
	}
	for rt, limit := range limits {
		if !rt.IsValid() {
			return shared.NewDomainError("INVALID_RESOURCE_TYPE", "Invalid resource type")
		}
		if limit < 0 {
			return shared.NewDomainError("INVALID_LIMIT", "Quota limit cannot be negative")
		}
	}

	if err := s.quotaRepo.ReplaceLimits(ctx, tenantID, limits); err != nil {
		return err
	}
	s.logger.Info("Quota limits replaced",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("resource_types", len(limits)))
	return nil
}

// ResetForNewPeriod zeroes a tenant's usage counters and advances their
// reset date to the next period boundary. Limits are untouched.
func (s *QuotaService) ResetForNewPeriod(ctx context.Context, tenantID uuid.UUID, now time.Time) error {
	if err := s.quotaRepo.ResetUsage(ctx, tenantID, billing.NextPeriodStart(now)); err != nil {
		return err
	}
	s.logger.Info("Quota usage reset for new period",
		zap.String("tenant_id", tenantID.String()),
		zap.Time("next_reset", billing.NextPeriodStart(now)))
	return nil
}

// ResetDueQuotas resets every tenant whose reset date has passed. Called by
// the period scheduler shortly after each month boundary.
func (s *QuotaService) ResetDueQuotas(ctx context.Context, now time.Time) (int, error) {
	due, err := s.quotaRepo.FindDueForReset(ctx, now)
	if err != nil {
		return 0, err
	}

	seen := make(map[uuid.UUID]bool)
	for _, quota := range due {
		if seen[quota.TenantID] {
			continue
		}
		seen[quota.TenantID] = true
		if err := s.ResetForNewPeriod(ctx, quota.TenantID, now); err != nil {
			s.logger.Error("Failed to reset quota period",
				zap.String("tenant_id", quota.TenantID.String()),
				zap.Error(err))
		}
	}
	return len(seen), nil
}

// Reconcile compares each cached counter for a tenant against the ledger
// total for the current period and repairs any drift. Returns the number of
// counters corrected.
func (s *QuotaService) Reconcile(ctx context.Context, tenantID uuid.UUID, now time.Time) (int, error) {
	quotas, err := s.quotaRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}

	corrected := 0
	periodStart := billing.PeriodStart(now)
	for _, quota := range quotas {
		ledgerTotal, err := s.meter.UsageSince(ctx, tenantID, quota.ResourceType, periodStart)
		if err != nil {
			s.logger.Error("Reconciliation ledger query failed",
				zap.String("tenant_id", tenantID.String()),
				zap.String("resource_type", string(quota.ResourceType)),
				zap.Error(err))
			continue
		}
		if ledgerTotal == quota.CurrentUsage {
			continue
		}

		s.logger.Warn("Quota counter drift detected",
			zap.String("tenant_id", tenantID.String()),
			zap.String("resource_type", string(quota.ResourceType)),
			zap.Int64("counter", quota.CurrentUsage),
			zap.Int64("ledger", ledgerTotal))
		if err := s.quotaRepo.SetUsage(ctx, tenantID, quota.ResourceType, ledgerTotal); err != nil {
			s.logger.Error("Failed to repair quota counter",
				zap.String("tenant_id", tenantID.String()),
				zap.String("resource_type", string(quota.ResourceType)),
				zap.Error(err))
			continue
		}
		corrected++
	}
	return corrected, nil
}

// ReconcileAll runs Reconcile for each given tenant
func (s *QuotaService) ReconcileAll(ctx context.Context, tenantIDs []uuid.UUID, now time.Time) (int, error) {
	total := 0
	for _, id := range tenantIDs {
		corrected, err := s.Reconcile(ctx, id, now)
		if err != nil {
			s.logger.Error("Reconciliation failed for tenant",
				zap.String("tenant_id", id.String()),
				zap.Error(err))
			continue
		}
		total += corrected
	}
	return total, nil
}
