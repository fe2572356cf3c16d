package tenant

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
	"github.com/meterd/backend/internal/domain/tenant"
)

type memTenantRepo struct {
	mu      sync.Mutex
	tenants map[uuid.UUID]*tenant.Tenant
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{tenants: make(map[uuid.UUID]*tenant.Tenant)}
}

func (r *memTenantRepo) Save(ctx context.Context, t *tenant.Tenant) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants[t.ID] = t
	return nil
}

func (r *memTenantRepo) Update(ctx context.Context, t *tenant.Tenant) error {
	return r.Save(ctx, t)
}

func (r *memTenantRepo) FindByID(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tenants[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return t, nil
}

func (r *memTenantRepo) FindAll(ctx context.Context) ([]*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tenant.Tenant
	for _, t := range r.tenants {
		out = append(out, t)
	}
	return out, nil
}

func (r *memTenantRepo) FindByStatus(ctx context.Context, status tenant.Status) ([]*tenant.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*tenant.Tenant
	for _, t := range r.tenants {
		if t.Status == status {
			out = append(out, t)
		}
	}
	return out, nil
}

type fakeQuotas struct {
	mu       sync.Mutex
	limits   map[uuid.UUID]map[billing.ResourceType]int64
	failNext bool
}

func newFakeQuotas() *fakeQuotas {
	return &fakeQuotas{limits: make(map[uuid.UUID]map[billing.ResourceType]int64)}
}

func (q *fakeQuotas) SetLimits(ctx context.Context, tenantID uuid.UUID, limits map[billing.ResourceType]int64) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.failNext {
		q.failNext = false
		return shared.NewDomainError("STORE_DOWN", "quota store unavailable")
	}
	q.limits[tenantID] = limits
	return nil
}

type fakeSubscriptions struct {
	mu      sync.Mutex
	created []uuid.UUID
	err     error
}

func (s *fakeSubscriptions) CreateSubscription(ctx context.Context, tenantID uuid.UUID, planID string, cycle billing.BillingCycle, trialDays int) (*billing.Subscription, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	s.created = append(s.created, tenantID)
	sub, err := billing.NewSubscription(tenantID, planID, cycle)
	if err != nil {
		return nil, err
	}
	sub.Status = billing.SubscriptionTrialing
	return sub, nil
}

type recordingAudit struct {
	mu      sync.Mutex
	actions []string
}

func (a *recordingAudit) LogEvent(ctx context.Context, tenantID uuid.UUID, actor, action, oldState, newState string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.actions = append(a.actions, action+":"+oldState+">"+newState)
	return nil
}

type registryFixture struct {
	svc    *RegistryService
	repo   *memTenantRepo
	quotas *fakeQuotas
	subs   *fakeSubscriptions
	audit  *recordingAudit
}

func newRegistryFixture() *registryFixture {
	f := &registryFixture{
		repo:   newMemTenantRepo(),
		quotas: newFakeQuotas(),
		subs:   &fakeSubscriptions{},
		audit:  &recordingAudit{},
	}
	f.svc = NewRegistryService(f.repo, f.quotas, f.subs, f.audit, zap.NewNop())
	return f
}

func TestRegistryService_CreateTenant(t *testing.T) {
	ctx := context.Background()

	t.Run("onboards with tier limits and subscription", func(t *testing.T) {
		f := newRegistryFixture()

		created, err := f.svc.CreateTenant(ctx, CreateTenantInput{
			Name:         "Acme Corp",
			Tier:         tenant.TierProfessional,
			BillingEmail: "billing@acme.example",
		})

		require.NoError(t, err)
		assert.Equal(t, tenant.StatusPending, created.Status)
		assert.Equal(t, tenant.TierLimits(tenant.TierProfessional), f.quotas.limits[created.ID])
		assert.Contains(t, f.subs.created, created.ID)
		assert.Contains(t, f.audit.actions, "tenant.created:>pending")
	})

	t.Run("subscription failure leaves tenant pending", func(t *testing.T) {
		f := newRegistryFixture()
		f.subs.err = shared.ErrSyncDegraded

		created, err := f.svc.CreateTenant(ctx, CreateTenantInput{
			Name: "Acme Corp",
			Tier: tenant.TierStarter,
		})

		require.NoError(t, err, "tenant creation succeeds without the processor")
		assert.Equal(t, tenant.StatusPending, created.Status)
	})

	t.Run("quota failure aborts onboarding", func(t *testing.T) {
		f := newRegistryFixture()
		f.quotas.failNext = true

		_, err := f.svc.CreateTenant(ctx, CreateTenantInput{
			Name: "Acme Corp",
			Tier: tenant.TierStarter,
		})
		assert.Error(t, err)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		f := newRegistryFixture()

		_, err := f.svc.CreateTenant(ctx, CreateTenantInput{Name: "", Tier: tenant.TierFree})
		assert.Error(t, err)
		_, err = f.svc.CreateTenant(ctx, CreateTenantInput{Name: "Acme", Tier: tenant.Tier("platinum")})
		assert.Error(t, err)
	})
}

func TestRegistryService_UpdateStatus(t *testing.T) {
	ctx := context.Background()

	t.Run("performs allowed transition and audits it", func(t *testing.T) {
		f := newRegistryFixture()
		created, err := f.svc.CreateTenant(ctx, CreateTenantInput{Name: "Acme", Tier: tenant.TierFree})
		require.NoError(t, err)

		updated, err := f.svc.UpdateStatus(ctx, created.ID, tenant.StatusActive, "admin")

		require.NoError(t, err)
		assert.True(t, updated.IsActive())
		assert.Contains(t, f.audit.actions, "tenant.status_changed:pending>active")
	})

	t.Run("rejects disallowed transition", func(t *testing.T) {
		f := newRegistryFixture()
		created, err := f.svc.CreateTenant(ctx, CreateTenantInput{Name: "Acme", Tier: tenant.TierFree})
		require.NoError(t, err)

		_, err = f.svc.UpdateStatus(ctx, created.ID, tenant.StatusSuspended, "admin")
		assert.Error(t, err, "pending cannot be suspended")
	})

	t.Run("unknown tenant is reported", func(t *testing.T) {
		f := newRegistryFixture()
		_, err := f.svc.UpdateStatus(ctx, uuid.New(), tenant.StatusActive, "admin")
		assert.ErrorIs(t, err, shared.ErrNotFound)
	})
}

func TestRegistryService_CascadeTargets(t *testing.T) {
	ctx := context.Background()

	t.Run("suspend cascade skips tenants that cannot be suspended", func(t *testing.T) {
		f := newRegistryFixture()
		created, err := f.svc.CreateTenant(ctx, CreateTenantInput{Name: "Acme", Tier: tenant.TierFree})
		require.NoError(t, err)

		// Still pending; the cascade must not fail the webhook
		require.NoError(t, f.svc.SuspendTenant(ctx, created.ID, "webhook:evt_1"))
		got, _ := f.svc.GetTenant(ctx, created.ID)
		assert.Equal(t, tenant.StatusPending, got.Status)
	})

	t.Run("suspend and reactivate active tenant", func(t *testing.T) {
		f := newRegistryFixture()
		created, err := f.svc.CreateTenant(ctx, CreateTenantInput{Name: "Acme", Tier: tenant.TierFree})
		require.NoError(t, err)
		require.NoError(t, f.svc.ActivateTenant(ctx, created.ID, "admin"))

		require.NoError(t, f.svc.SuspendTenant(ctx, created.ID, "webhook:evt_1"))
		got, _ := f.svc.GetTenant(ctx, created.ID)
		assert.True(t, got.IsSuspended())

		require.NoError(t, f.svc.ActivateTenant(ctx, created.ID, "webhook:evt_2"))
		got, _ = f.svc.GetTenant(ctx, created.ID)
		assert.True(t, got.IsActive())
	})

	t.Run("already-active tenant is a no-op", func(t *testing.T) {
		f := newRegistryFixture()
		created, err := f.svc.CreateTenant(ctx, CreateTenantInput{Name: "Acme", Tier: tenant.TierFree})
		require.NoError(t, err)
		require.NoError(t, f.svc.ActivateTenant(ctx, created.ID, "admin"))
		audits := len(f.audit.actions)

		require.NoError(t, f.svc.ActivateTenant(ctx, created.ID, "webhook:evt_1"))
		assert.Len(t, f.audit.actions, audits, "no duplicate audit entry")
	})
}

func TestRegistryService_UpdateTier(t *testing.T) {
	ctx := context.Background()

	t.Run("changes tier and cascades limits", func(t *testing.T) {
		f := newRegistryFixture()
		created, err := f.svc.CreateTenant(ctx, CreateTenantInput{Name: "Acme", Tier: tenant.TierStarter})
		require.NoError(t, err)

		updated, err := f.svc.UpdateTier(ctx, created.ID, tenant.TierBusiness, "admin")

		require.NoError(t, err)
		assert.Equal(t, tenant.TierBusiness, updated.Tier)
		assert.Equal(t, tenant.TierLimits(tenant.TierBusiness), f.quotas.limits[created.ID])
		assert.Contains(t, f.audit.actions, "tenant.tier_changed:starter>business")
	})

	t.Run("same tier is a no-op", func(t *testing.T) {
		f := newRegistryFixture()
		created, err := f.svc.CreateTenant(ctx, CreateTenantInput{Name: "Acme", Tier: tenant.TierStarter})
		require.NoError(t, err)
		audits := len(f.audit.actions)

		_, err = f.svc.UpdateTier(ctx, created.ID, tenant.TierStarter, "admin")

		require.NoError(t, err)
		assert.Len(t, f.audit.actions, audits)
	})

	t.Run("rejects tier change on canceled tenant", func(t *testing.T) {
		f := newRegistryFixture()
		created, err := f.svc.CreateTenant(ctx, CreateTenantInput{Name: "Acme", Tier: tenant.TierStarter})
		require.NoError(t, err)
		_, err = f.svc.UpdateStatus(ctx, created.ID, tenant.StatusCanceled, "admin")
		require.NoError(t, err)

		_, err = f.svc.UpdateTier(ctx, created.ID, tenant.TierBusiness, "admin")
		assert.Error(t, err)
	})
}

var _ tenant.Repository = (*memTenantRepo)(nil)
var _ QuotaConfigurator = (*fakeQuotas)(nil)
var _ SubscriptionStarter = (*fakeSubscriptions)(nil)
var _ shared.AuditLogger = (*recordingAudit)(nil)
