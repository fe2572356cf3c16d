package billing

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
)

// MeterService appends consumption events to the usage ledger and answers
// aggregation queries over it. The ledger is append-only; a retried event
// carrying an idempotency key that was already recorded is dropped silently.
type MeterService struct {
	usageRepo billing.UsageLogRepository
	logger    *zap.Logger
}

// NewMeterService creates a new meter service
func NewMeterService(usageRepo billing.UsageLogRepository, logger *zap.Logger) *MeterService {
	return &MeterService{
		usageRepo: usageRepo,
		logger:    logger,
	}
}

// RecordUsageInput carries an externally reported usage event. OccurredAt
// and IdempotencyKey are optional; retried calls must resend the original
// values so the retry deduplicates.
type RecordUsageInput struct {
	TenantID       uuid.UUID
	ResourceType   billing.ResourceType
	Amount         int64
	Description    string
	OccurredAt     time.Time
	IdempotencyKey string
}

// RecordUsage appends a usage event to the ledger. A duplicate idempotency
// key is a successful no-op.
func (s *MeterService) RecordUsage(ctx context.Context, input RecordUsageInput) (*billing.UsageLogEntry, error) {
	entry, err := billing.NewUsageLogEntry(input.TenantID, input.ResourceType, input.Amount, input.Description)
	if err != nil {
		return nil, err
	}
	if !input.OccurredAt.IsZero() {
		entry.WithOccurredOn(input.OccurredAt)
	}
	entry.WithIdempotencyKey(input.IdempotencyKey)

	if err := s.usageRepo.Append(ctx, entry); err != nil {
		if errors.Is(err, shared.ErrAlreadyExists) {
			s.logger.Debug("Duplicate usage event dropped",
				zap.String("tenant_id", input.TenantID.String()),
				zap.String("resource_type", string(input.ResourceType)),
				zap.String("idempotency_key", entry.IdempotencyKey))
			return entry, nil
		}
		s.logger.Error("Failed to append usage entry",
			zap.String("tenant_id", input.TenantID.String()),
			zap.String("resource_type", string(input.ResourceType)),
			zap.Error(err))
		return nil, err
	}

	return entry, nil
}

// UsageSince returns the ledger total for a (tenant, resource) key on or
// after the given time
func (s *MeterService) UsageSince(ctx context.Context, tenantID uuid.UUID, resourceType billing.ResourceType, since time.Time) (int64, error) {
	if !resourceType.IsValid() {
		return 0, shared.NewDomainError("INVALID_RESOURCE_TYPE", "Invalid resource type")
	}
	return s.usageRepo.SumSince(ctx, tenantID, resourceType, since)
}

// UsageSummary reports ledger totals per resource type for one calendar
// month
type UsageSummary struct {
	TenantID uuid.UUID                      `json:"tenant_id"`
	Month    string                         `json:"month"`
	Totals   map[billing.ResourceType]int64 `json:"totals"`
}

// MonthlySummary aggregates the ledger for a tenant over one calendar month
// given as YYYY-MM
func (s *MeterService) MonthlySummary(ctx context.Context, tenantID uuid.UUID, month string) (*UsageSummary, error) {
	from, err := time.Parse("2006-01", month)
	if err != nil {
		return nil, shared.NewDomainError("INVALID_PERIOD", "Period month must be formatted as YYYY-MM")
	}
	to := from.AddDate(0, 1, 0)

	summary := &UsageSummary{
		TenantID: tenantID,
		Month:    month,
		Totals:   make(map[billing.ResourceType]int64),
	}
	for _, rt := range billing.AllResourceTypes() {
		total, err := s.usageRepo.SumInRange(ctx, tenantID, rt, from, to)
		if err != nil {
			return nil, err
		}
		summary.Totals[rt] = total
	}

	return summary, nil
}
