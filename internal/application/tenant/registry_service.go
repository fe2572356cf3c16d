package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
	"github.com/meterd/backend/internal/domain/tenant"
)

// QuotaConfigurator installs per-tier resource limits for a tenant.
// Implemented by the quota service.
type QuotaConfigurator interface {
	SetLimits(ctx context.Context, tenantID uuid.UUID, limits map[billing.ResourceType]int64) error
}

// SubscriptionStarter provisions a subscription with the external payment
// processor. Implemented by the subscription synchronizer.
type SubscriptionStarter interface {
	CreateSubscription(ctx context.Context, tenantID uuid.UUID, planID string, cycle billing.BillingCycle, trialDays int) (*billing.Subscription, error)
}

// DefaultTrialDays is the trial length granted to new tenants
const DefaultTrialDays = 14

// RegistryService owns the tenant lifecycle: onboarding, status
// transitions, and tier changes with their quota cascades. Every transition
// is audit logged; an audit failure never blocks the transition.
type RegistryService struct {
	tenantRepo    tenant.Repository
	quotas        QuotaConfigurator
	subscriptions SubscriptionStarter
	audit         shared.AuditLogger
	logger        *zap.Logger
}

// NewRegistryService creates a new tenant registry service
func NewRegistryService(
	tenantRepo tenant.Repository,
	quotas QuotaConfigurator,
	subscriptions SubscriptionStarter,
	audit shared.AuditLogger,
	logger *zap.Logger,
) *RegistryService {
	return &RegistryService{
		tenantRepo:    tenantRepo,
		quotas:        quotas,
		subscriptions: subscriptions,
		audit:         audit,
		logger:        logger,
	}
}

// CreateTenantInput carries the onboarding request
type CreateTenantInput struct {
	Name         string
	Tier         tenant.Tier
	BillingEmail string
	Timezone     string
	Locale       string
}

// CreateTenant onboards a new tenant: persists it in pending status,
// installs the tier's quota limits, and provisions the external
// subscription. Subscription provisioning is best-effort at onboarding; a
// degraded processor leaves the tenant pending until sync succeeds.
func (s *RegistryService) CreateTenant(ctx context.Context, input CreateTenantInput) (*tenant.Tenant, error) {
	t, err := tenant.New(input.Name, input.Tier, input.BillingEmail)
	if err != nil {
		return nil, err
	}
	t.SetLocale(input.Timezone, input.Locale)

	if err := s.tenantRepo.Save(ctx, t); err != nil {
		return nil, err
	}

	if err := s.quotas.SetLimits(ctx, t.ID, tenant.TierLimits(t.Tier)); err != nil {
		s.logger.Error("Failed to install tier limits for new tenant",
			zap.String("tenant_id", t.ID.String()),
			zap.String("tier", t.Tier.String()),
			zap.Error(err))
		return nil, err
	}

	if s.subscriptions != nil {
		if _, err := s.subscriptions.CreateSubscription(ctx, t.ID, t.Tier.String(), billing.BillingCycleMonthly, DefaultTrialDays); err != nil {
			s.logger.Warn("Subscription provisioning deferred",
				zap.String("tenant_id", t.ID.String()),
				zap.Error(err))
		}
	}

	s.logger.Info("Tenant created",
		zap.String("tenant_id", t.ID.String()),
		zap.String("name", t.Name),
		zap.String("tier", t.Tier.String()))
	s.auditTransition(ctx, t.ID, "registry", "tenant.created", "", t.Status.String())
	return t, nil
}

// GetTenant returns a tenant by ID
func (s *RegistryService) GetTenant(ctx context.Context, tenantID uuid.UUID) (*tenant.Tenant, error) {
	return s.tenantRepo.FindByID(ctx, tenantID)
}

// ListTenants returns all tenants, optionally filtered by status
func (s *RegistryService) ListTenants(ctx context.Context, status *tenant.Status) ([]*tenant.Tenant, error) {
	if status == nil {
		return s.tenantRepo.FindAll(ctx)
	}
	if !status.IsValid() {
		return nil, shared.NewDomainError("INVALID_STATUS", "Invalid tenant status")
	}
	return s.tenantRepo.FindByStatus(ctx, *status)
}

// UpdateStatus transitions a tenant to a new lifecycle status
func (s *RegistryService) UpdateStatus(ctx context.Context, tenantID uuid.UUID, status tenant.Status, actor string) (*tenant.Tenant, error) {
	t, err := s.tenantRepo.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	oldStatus := t.Status
	if err := t.TransitionTo(status); err != nil {
		return nil, err
	}
	if err := s.tenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	s.logger.Info("Tenant status changed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("actor", actor),
		zap.String("old_status", oldStatus.String()),
		zap.String("new_status", status.String()))
	s.auditTransition(ctx, tenantID, actor, "tenant.status_changed", oldStatus.String(), status.String())
	return t, nil
}

// ActivateTenant moves a tenant to active. Used directly and as the
// webhook cascade target.
func (s *RegistryService) ActivateTenant(ctx context.Context, tenantID uuid.UUID, actor string) error {
	t, err := s.tenantRepo.FindByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.IsActive() {
		return nil
	}
	_, err = s.UpdateStatus(ctx, tenantID, tenant.StatusActive, actor)
	return err
}

// SuspendTenant moves a tenant to suspended. A tenant whose state machine
// does not allow suspension (pending, canceled) is left alone.
func (s *RegistryService) SuspendTenant(ctx context.Context, tenantID uuid.UUID, actor string) error {
	t, err := s.tenantRepo.FindByID(ctx, tenantID)
	if err != nil {
		return err
	}
	if t.IsSuspended() {
		return nil
	}
	if !t.Status.CanTransitionTo(tenant.StatusSuspended) {
		s.logger.Warn("Suspension skipped, transition not allowed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("status", t.Status.String()))
		return nil
	}
	_, err = s.UpdateStatus(ctx, tenantID, tenant.StatusSuspended, actor)
	return err
}

// UpdateTier changes a tenant's plan tier and cascades the new limits onto
// its quotas. Current usage is preserved across the change.
func (s *RegistryService) UpdateTier(ctx context.Context, tenantID uuid.UUID, tier tenant.Tier, actor string) (*tenant.Tenant, error) {
	t, err := s.tenantRepo.FindByID(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	oldTier := t.Tier
	if err := t.ChangeTier(tier); err != nil {
		return nil, err
	}
	if oldTier == t.Tier {
		return t, nil
	}
	if err := s.tenantRepo.Update(ctx, t); err != nil {
		return nil, err
	}

	if err := s.quotas.SetLimits(ctx, tenantID, tenant.TierLimits(tier)); err != nil {
		s.logger.Error("Failed to cascade tier limits",
			zap.String("tenant_id", tenantID.String()),
			zap.String("tier", tier.String()),
			zap.Error(err))
		return nil, err
	}

	s.logger.Info("Tenant tier changed",
		zap.String("tenant_id", tenantID.String()),
		zap.String("actor", actor),
		zap.String("old_tier", oldTier.String()),
		zap.String("new_tier", tier.String()))
	s.auditTransition(ctx, tenantID, actor, "tenant.tier_changed", oldTier.String(), tier.String())
	return t, nil
}

func (s *RegistryService) auditTransition(ctx context.Context, tenantID uuid.UUID, actor, action, oldState, newState string) {
	if err := s.audit.LogEvent(ctx, tenantID, actor, action, oldState, newState); err != nil {
		s.logger.Warn("Audit write failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("action", action),
			zap.Error(err))
	}
}

// IsNotFound reports whether an error is the repository's missing-tenant error
func IsNotFound(err error) bool {
	return errors.Is(err, shared.ErrNotFound)
}
