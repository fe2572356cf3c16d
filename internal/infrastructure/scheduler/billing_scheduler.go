package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	appbilling "github.com/meterd/backend/internal/application/billing"
	"github.com/meterd/backend/internal/domain/tenant"
)

// QuotaMaintainer is the slice of the quota service the scheduler drives
type QuotaMaintainer interface {
	// ResetDueQuotas zeroes counters whose billing period has rolled over
	ResetDueQuotas(ctx context.Context, now time.Time) (int, error)

	// ReconcileAll repairs counter drift against the usage ledger
	ReconcileAll(ctx context.Context, tenantIDs []uuid.UUID, now time.Time) (int, error)
}

// OverageRunner is the slice of the overage service the scheduler drives
type OverageRunner interface {
	// RunForAllTenants issues overage invoices for a closed month
	RunForAllTenants(ctx context.Context, month string) (*appbilling.RunSummary, error)
}

// TenantLister provides the set of tenants the reconciliation loop covers
type TenantLister interface {
	FindByStatus(ctx context.Context, status tenant.Status) ([]*tenant.Tenant, error)
}

// BillingSchedulerConfig holds configuration for the billing scheduler
type BillingSchedulerConfig struct {
	// Enabled determines if the scheduler is active
	Enabled bool

	// PeriodResetInterval is how often overdue quota resets are checked
	PeriodResetInterval time.Duration

	// ReconcileInterval is how often counters are reconciled with the ledger
	ReconcileInterval time.Duration

	// OverageRunInterval is how often unbilled previous months are checked.
	// Each run is exactly-once per tenant-month, so re-running is safe.
	OverageRunInterval time.Duration

	// JobTimeout is the maximum duration of a single run
	JobTimeout time.Duration
}

// DefaultBillingSchedulerConfig returns default configuration
func DefaultBillingSchedulerConfig() BillingSchedulerConfig {
	return BillingSchedulerConfig{
		Enabled:             true,
		PeriodResetInterval: time.Hour,
		ReconcileInterval:   15 * time.Minute,
		OverageRunInterval:  6 * time.Hour,
		JobTimeout:          10 * time.Minute,
	}
}

// BillingScheduler runs the three periodic billing jobs: quota period resets,
// ledger reconciliation, and overage invoicing for closed months.
type BillingScheduler struct {
	quotas  QuotaMaintainer
	overage OverageRunner
	tenants TenantLister
	logger  *zap.Logger
	config  BillingSchedulerConfig

	cancel    context.CancelFunc
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
}

// NewBillingScheduler creates a new billing scheduler
func NewBillingScheduler(
	quotas QuotaMaintainer,
	overage OverageRunner,
	tenants TenantLister,
	logger *zap.Logger,
	config BillingSchedulerConfig,
) *BillingScheduler {
	return &BillingScheduler{
		quotas:  quotas,
		overage: overage,
		tenants: tenants,
		logger:  logger,
		config:  config,
	}
}

// Start starts the scheduler loops
func (s *BillingScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if !s.config.Enabled {
		s.mu.Unlock()
		s.logger.Info("Billing scheduler is disabled")
		return nil
	}
	s.isRunning = true
	s.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	s.wg.Add(3)
	go s.loop(ctx, "period_reset", s.config.PeriodResetInterval, s.executePeriodReset)
	go s.loop(ctx, "reconcile", s.config.ReconcileInterval, s.executeReconcile)
	go s.loop(ctx, "overage_run", s.config.OverageRunInterval, s.executeOverageRun)

	s.logger.Info("Billing scheduler started",
		zap.Duration("period_reset_interval", s.config.PeriodResetInterval),
		zap.Duration("reconcile_interval", s.config.ReconcileInterval),
		zap.Duration("overage_run_interval", s.config.OverageRunInterval),
	)

	return nil
}

// Stop gracefully stops the scheduler
func (s *BillingScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return nil
	}
	s.isRunning = false
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("Billing scheduler stopped gracefully")
		return nil
	case <-ctx.Done():
		s.logger.Warn("Billing scheduler stop timed out")
		return ctx.Err()
	}
}

// IsRunning returns whether the scheduler is running
func (s *BillingScheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isRunning
}

// TriggerOverageRun runs overage invoicing for the given month immediately
func (s *BillingScheduler) TriggerOverageRun(ctx context.Context, month string) error {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return ErrSchedulerNotRunning
	}
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Triggering immediate overage run", zap.String("month", month))

	go func() {
		defer s.wg.Done()
		s.runOverage(ctx, month)
	}()

	return nil
}

// loop runs one job on a fixed interval until the context is canceled
func (s *BillingScheduler) loop(ctx context.Context, name string, interval time.Duration, execute func(context.Context)) {
	defer s.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Debug("Scheduler loop stopping", zap.String("job", name))
			return
		case <-ticker.C:
			execute(ctx)
		}
	}
}

func (s *BillingScheduler) executePeriodReset(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	start := time.Now()
	reset, err := s.quotas.ResetDueQuotas(jobCtx, start)
	if err != nil {
		s.logger.Error("Quota period reset run failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	if reset > 0 {
		s.logger.Info("Quota period reset run completed",
			zap.Int("tenants_reset", reset),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *BillingScheduler) executeReconcile(ctx context.Context) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	start := time.Now()
	active, err := s.tenants.FindByStatus(jobCtx, tenant.StatusActive)
	if err != nil {
		s.logger.Error("Reconciliation run failed to list tenants", zap.Error(err))
		return
	}

	tenantIDs := make([]uuid.UUID, 0, len(active))
	for _, t := range active {
		tenantIDs = append(tenantIDs, t.ID)
	}

	corrected, err := s.quotas.ReconcileAll(jobCtx, tenantIDs, start)
	if err != nil {
		s.logger.Error("Reconciliation run failed",
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}
	if corrected > 0 {
		s.logger.Warn("Reconciliation corrected drifted counters",
			zap.Int("corrected", corrected),
			zap.Int("tenants", len(tenantIDs)),
			zap.Duration("duration", time.Since(start)))
	}
}

func (s *BillingScheduler) executeOverageRun(ctx context.Context) {
	s.runOverage(ctx, appbilling.PreviousMonth(time.Now()))
}

func (s *BillingScheduler) runOverage(ctx context.Context, month string) {
	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeout)
	defer cancel()

	start := time.Now()
	summary, err := s.overage.RunForAllTenants(jobCtx, month)
	if err != nil {
		s.logger.Error("Overage billing run failed",
			zap.String("month", month),
			zap.Duration("duration", time.Since(start)),
			zap.Error(err))
		return
	}

	s.logger.Info("Overage billing run completed",
		zap.String("month", summary.Month),
		zap.Int("tenants", summary.Tenants),
		zap.Int("invoiced", summary.Invoiced),
		zap.Int("failed", summary.Failed),
		zap.Duration("duration", time.Since(start)))
}
