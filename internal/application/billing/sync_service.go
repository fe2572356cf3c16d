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

// SyncConfig bounds the retry behavior of outbound processor calls
type SyncConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	BackoffFactor  float64
	CallTimeout    time.Duration
}

// DefaultSyncConfig returns the default outbound retry policy
func DefaultSyncConfig() SyncConfig {
	return SyncConfig{
		MaxAttempts:    3,
		InitialBackoff: 500 * time.Millisecond,
		BackoffFactor:  2.0,
		CallTimeout:    10 * time.Second,
	}
}

// SyncService owns the outbound side of subscription state: every local
// mutation is pushed to the external processor, and the processor's response
// is authoritative for what is stored. When the processor stays unreachable
// past the retry budget the operation fails with shared.ErrSyncDegraded and
// the subscription is flagged stale instead of being partially applied.
type SyncService struct {
	processor PaymentProcessor
	subRepo   billing.SubscriptionRepository
	audit     shared.AuditLogger
	logger    *zap.Logger
	config    SyncConfig
}

// NewSyncService creates a new subscription synchronizer
func NewSyncService(processor PaymentProcessor, subRepo billing.SubscriptionRepository, audit shared.AuditLogger, logger *zap.Logger) *SyncService {
	return &SyncService{
		processor: processor,
		subRepo:   subRepo,
		audit:     audit,
		logger:    logger,
		config:    DefaultSyncConfig(),
	}
}

// WithConfig overrides the retry policy
func (s *SyncService) WithConfig(config SyncConfig) *SyncService {
	if config.MaxAttempts > 0 {
		s.config = config
	}
	return s
}

// CreateSubscription provisions a subscription with the external processor
// and stores the authoritative result locally
func (s *SyncService) CreateSubscription(ctx context.Context, tenantID uuid.UUID, planID string, cycle billing.BillingCycle, trialDays int) (*billing.Subscription, error) {
	if existing, err := s.subRepo.FindByTenant(ctx, tenantID); err == nil && existing != nil {
		return nil, shared.NewDomainError("SUBSCRIPTION_EXISTS", "Tenant already has a subscription")
	} else if err != nil && !errors.Is(err, shared.ErrNotFound) {
		return nil, err
	}

	sub, err := billing.NewSubscription(tenantID, planID, cycle)
	if err != nil {
		return nil, err
	}

	input := CreateSubscriptionInput{
		TenantID:       tenantID,
		PlanID:         planID,
		BillingCycle:   cycle,
		TrialDays:      trialDays,
		IdempotencyKey: uuid.NewString(),
	}
	remote, err := s.callWithRetry(ctx, "create_subscription", tenantID, func(ctx context.Context) (*ProcessorSubscription, error) {
		return s.processor.CreateSubscription(ctx, input)
	})
	if err != nil {
		return nil, err
	}

	s.applyAuthoritative(sub, remote)
	if err := s.subRepo.Save(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("Subscription created",
		zap.String("tenant_id", tenantID.String()),
		zap.String("external_id", sub.ExternalID),
		zap.String("status", sub.Status.String()))
	if err := s.audit.LogEvent(ctx, tenantID, "sync", "subscription.created", "", sub.Status.String()); err != nil {
		s.logger.Warn("Audit write failed", zap.Error(err))
	}
	return sub, nil
}

// ChangePlan moves a tenant's subscription to a new plan or cycle. On retry
// exhaustion the local record is flagged stale and otherwise untouched.
func (s *SyncService) ChangePlan(ctx context.Context, tenantID uuid.UUID, newPlanID string, cycle billing.BillingCycle) (*billing.Subscription, error) {
	if newPlanID == "" {
		return nil, shared.NewDomainError("INVALID_PLAN", "Plan ID cannot be empty")
	}
	if !cycle.IsValid() {
		return nil, shared.NewDomainError("INVALID_BILLING_CYCLE", "Invalid billing cycle")
	}

	sub, err := s.subRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	input := UpdateSubscriptionInput{
		TenantID:       tenantID,
		ExternalID:     sub.ExternalID,
		NewPlanID:      newPlanID,
		BillingCycle:   cycle,
		IdempotencyKey: uuid.NewString(),
	}
	remote, err := s.callWithRetry(ctx, "change_plan", tenantID, func(ctx context.Context) (*ProcessorSubscription, error) {
		return s.processor.UpdateSubscription(ctx, input)
	})
	if err != nil {
		s.markDegraded(ctx, sub, err)
		return nil, err
	}

	oldStatus := sub.Status
	s.applyAuthoritative(sub, remote)
	sub.ClearStale()
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	if err := s.audit.LogEvent(ctx, tenantID, "sync", "subscription.plan_changed", oldStatus.String(), sub.Status.String()); err != nil {
		s.logger.Warn("Audit write failed", zap.Error(err))
	}
	return sub, nil
}

// CancelSubscription cancels a tenant's subscription, immediately or at
// period end per the flag
func (s *SyncService) CancelSubscription(ctx context.Context, tenantID uuid.UUID, atPeriodEnd bool) (*billing.Subscription, error) {
	sub, err := s.subRepo.FindByTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	input := CancelSubscriptionInput{
		TenantID:       tenantID,
		ExternalID:     sub.ExternalID,
		AtPeriodEnd:    atPeriodEnd,
		IdempotencyKey: uuid.NewString(),
	}
	remote, err := s.callWithRetry(ctx, "cancel_subscription", tenantID, func(ctx context.Context) (*ProcessorSubscription, error) {
		return s.processor.CancelSubscription(ctx, input)
	})
	if err != nil {
		s.markDegraded(ctx, sub, err)
		return nil, err
	}

	oldStatus := sub.Status
	s.applyAuthoritative(sub, remote)
	sub.ClearStale()
	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, err
	}

	s.logger.Info("Subscription canceled",
		zap.String("tenant_id", tenantID.String()),
		zap.Bool("at_period_end", atPeriodEnd))
	if err := s.audit.LogEvent(ctx, tenantID, "sync", "subscription.canceled", oldStatus.String(), sub.Status.String()); err != nil {
		s.logger.Warn("Audit write failed", zap.Error(err))
	}
	return sub, nil
}

// GetSubscription returns the local subscription record for a tenant
func (s *SyncService) GetSubscription(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	return s.subRepo.FindByTenant(ctx, tenantID)
}

// callWithRetry runs one outbound processor call under the retry policy:
// bounded attempts with exponential backoff, each attempt under its own
// timeout. The idempotency key inside op is fixed per logical operation, so
// a retry of a call that succeeded server-side deduplicates remotely.
func (s *SyncService) callWithRetry(ctx context.Context, operation string, tenantID uuid.UUID, op func(ctx context.Context) (*ProcessorSubscription, error)) (*ProcessorSubscription, error) {
	backoff := s.config.InitialBackoff
	var lastErr error

	for attempt := 1; attempt <= s.config.MaxAttempts; attempt++ {
		attemptCtx, cancel := context.WithTimeout(ctx, s.config.CallTimeout)
		remote, err := op(attemptCtx)
		cancel()
		if err == nil {
			return remote, nil
		}
		lastErr = err

		s.logger.Warn("Processor call failed",
			zap.String("operation", operation),
			zap.String("tenant_id", tenantID.String()),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", s.config.MaxAttempts),
			zap.Error(err))

		if attempt == s.config.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
		backoff = time.Duration(float64(backoff) * s.config.BackoffFactor)
	}

	return nil, fmt.Errorf("%w: %s failed after %d attempts: %v",
		shared.ErrSyncDegraded, operation, s.config.MaxAttempts, lastErr)
}

// markDegraded flags the subscription stale after retry exhaustion. Only the
// flag changes; the rest of the record keeps its last-synced state.
func (s *SyncService) markDegraded(ctx context.Context, sub *billing.Subscription, cause error) {
	if !errors.Is(cause, shared.ErrSyncDegraded) {
		return
	}
	sub.MarkStale(time.Now())
	if err := s.subRepo.Update(ctx, sub); err != nil {
		s.logger.Error("Failed to flag subscription stale",
			zap.String("tenant_id", sub.TenantID.String()),
			zap.Error(err))
		return
	}
	s.logger.Error("Subscription sync degraded",
		zap.String("tenant_id", sub.TenantID.String()),
		zap.Timep("stale_since", sub.StaleSince))
}

func (s *SyncService) applyAuthoritative(sub *billing.Subscription, remote *ProcessorSubscription) {
	sub.ExternalID = remote.ExternalID
	sub.PlanID = remote.PlanID
	sub.Status = remote.Status
	sub.BillingCycle = remote.BillingCycle
	sub.PeriodStart = remote.PeriodStart
	sub.PeriodEnd = remote.PeriodEnd
	sub.AmountCents = remote.AmountCents
	sub.TrialEndsAt = remote.TrialEndsAt
	sub.CancelAtPeriodEnd = remote.CancelAtPeriodEnd
	sub.UpdatedAt = time.Now()
	sub.IncrementVersion()
}
