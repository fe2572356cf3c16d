package billing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
	"github.com/meterd/backend/internal/domain/tenant"
)

// In-memory repository fakes. The quota fake mirrors the guarded-update
// semantics of the real store: check and increment happen under one lock.

type memQuotaRepo struct {
	mu     sync.Mutex
	quotas map[string]*billing.ResourceQuota
}

func newMemQuotaRepo() *memQuotaRepo {
	return &memQuotaRepo{quotas: make(map[string]*billing.ResourceQuota)}
}

func quotaKey(tenantID uuid.UUID, rt billing.ResourceType) string {
	return tenantID.String() + ":" + string(rt)
}

func (r *memQuotaRepo) Save(ctx context.Context, q *billing.ResourceQuota) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.quotas[quotaKey(q.TenantID, q.ResourceType)] = q
	return nil
}

func (r *memQuotaRepo) Update(ctx context.Context, q *billing.ResourceQuota) error {
	return r.Save(ctx, q)
}

func (r *memQuotaRepo) FindByTenantAndType(ctx context.Context, tenantID uuid.UUID, rt billing.ResourceType) (*billing.ResourceQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotas[quotaKey(tenantID, rt)]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *q
	return &copied, nil
}

func (r *memQuotaRepo) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*billing.ResourceQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*billing.ResourceQuota
	for _, q := range r.quotas {
		if q.TenantID == tenantID {
			copied := *q
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResourceType < out[j].ResourceType })
	return out, nil
}

func (r *memQuotaRepo) ConsumeIfWithinLimit(ctx context.Context, tenantID uuid.UUID, rt billing.ResourceType, amount int64) (bool, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotas[quotaKey(tenantID, rt)]
	if !ok {
		return false, 0, shared.ErrNotFound
	}
	if q.CurrentUsage+amount > q.Limit {
		return false, q.Remaining(), nil
	}
	q.CurrentUsage += amount
	return true, q.Remaining(), nil
}

func (r *memQuotaRepo) ReplaceLimits(ctx context.Context, tenantID uuid.UUID, limits map[billing.ResourceType]int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for rt, limit := range limits {
		key := quotaKey(tenantID, rt)
		if q, ok := r.quotas[key]; ok {
			q.Limit = limit
			continue
		}
		q, err := billing.NewResourceQuota(tenantID, rt, limit)
		if err != nil {
			return err
		}
		r.quotas[key] = q
	}
	return nil
}

func (r *memQuotaRepo) ResetUsage(ctx context.Context, tenantID uuid.UUID, nextReset time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.quotas {
		if q.TenantID == tenantID {
			q.CurrentUsage = 0
			q.ResetDate = nextReset
		}
	}
	return nil
}

func (r *memQuotaRepo) SetUsage(ctx context.Context, tenantID uuid.UUID, rt billing.ResourceType, usage int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	q, ok := r.quotas[quotaKey(tenantID, rt)]
	if !ok {
		return shared.ErrNotFound
	}
	q.CurrentUsage = usage
	return nil
}

func (r *memQuotaRepo) FindDueForReset(ctx context.Context, now time.Time) ([]*billing.ResourceQuota, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*billing.ResourceQuota
	for _, q := range r.quotas {
		if !q.ResetDate.After(now) {
			copied := *q
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memUsageRepo struct {
	mu      sync.Mutex
	entries []*billing.UsageLogEntry
	keys    map[string]bool
	failing bool
}

func newMemUsageRepo() *memUsageRepo {
	return &memUsageRepo{keys: make(map[string]bool)}
}

func (r *memUsageRepo) Append(ctx context.Context, e *billing.UsageLogEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failing {
		return shared.NewDomainError("STORE_DOWN", "ledger unavailable")
	}
	if e.IdempotencyKey != "" && r.keys[e.IdempotencyKey] {
		return shared.ErrAlreadyExists
	}
	r.keys[e.IdempotencyKey] = true
	copied := *e
	r.entries = append(r.entries, &copied)
	return nil
}

func (r *memUsageRepo) SumSince(ctx context.Context, tenantID uuid.UUID, rt billing.ResourceType, since time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.ResourceType == rt && !e.OccurredOn.Before(since) {
			total += e.Amount
		}
	}
	return total, nil
}

func (r *memUsageRepo) SumInRange(ctx context.Context, tenantID uuid.UUID, rt billing.ResourceType, from, to time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var total int64
	for _, e := range r.entries {
		if e.TenantID == tenantID && e.ResourceType == rt && !e.OccurredOn.Before(from) && e.OccurredOn.Before(to) {
			total += e.Amount
		}
	}
	return total, nil
}

type memSubRepo struct {
	mu   sync.Mutex
	subs map[uuid.UUID]*billing.Subscription
}

func newMemSubRepo() *memSubRepo {
	return &memSubRepo{subs: make(map[uuid.UUID]*billing.Subscription)}
}

func (r *memSubRepo) Save(ctx context.Context, s *billing.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.subs[s.TenantID] = &copied
	return nil
}

func (r *memSubRepo) Update(ctx context.Context, s *billing.Subscription) error {
	return r.Save(ctx, s)
}

func (r *memSubRepo) FindByTenant(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subs[tenantID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *s
	return &copied, nil
}

func (r *memSubRepo) FindByExternalID(ctx context.Context, externalID string) (*billing.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.ExternalID == externalID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

type memInvoiceRepo struct {
	mu       sync.Mutex
	invoices map[uuid.UUID]*billing.Invoice
}

func newMemInvoiceRepo() *memInvoiceRepo {
	return &memInvoiceRepo{invoices: make(map[uuid.UUID]*billing.Invoice)}
}

func (r *memInvoiceRepo) Save(ctx context.Context, inv *billing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if inv.BillingReason == billing.ReasonUsageOverage {
		for _, existing := range r.invoices {
			if existing.TenantID == inv.TenantID &&
				existing.PeriodMonth == inv.PeriodMonth &&
				existing.BillingReason == billing.ReasonUsageOverage {
				return shared.ErrAlreadyExists
			}
		}
	}
	copied := *inv
	r.invoices[inv.ID] = &copied
	return nil
}

func (r *memInvoiceRepo) Update(ctx context.Context, inv *billing.Invoice) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *inv
	r.invoices[inv.ID] = &copied
	return nil
}

func (r *memInvoiceRepo) FindOverageInvoice(ctx context.Context, tenantID uuid.UUID, month string) (*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, inv := range r.invoices {
		if inv.TenantID == tenantID && inv.PeriodMonth == month && inv.BillingReason == billing.ReasonUsageOverage {
			copied := *inv
			return &copied, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (r *memInvoiceRepo) FindByTenant(ctx context.Context, tenantID uuid.UUID) ([]*billing.Invoice, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*billing.Invoice
	for _, inv := range r.invoices {
		if inv.TenantID == tenantID {
			copied := *inv
			out = append(out, &copied)
		}
	}
	return out, nil
}

type memEventRepo struct {
	mu     sync.Mutex
	events map[string]*billing.WebhookEvent
}

func newMemEventRepo() *memEventRepo {
	return &memEventRepo{events: make(map[string]*billing.WebhookEvent)}
}

func (r *memEventRepo) InsertIfAbsent(ctx context.Context, e *billing.WebhookEvent) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[e.ExternalEventID]; ok {
		return false, nil
	}
	copied := *e
	r.events[e.ExternalEventID] = &copied
	return true, nil
}

func (r *memEventRepo) MarkProcessed(ctx context.Context, externalEventID string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[externalEventID]
	if !ok {
		return shared.ErrNotFound
	}
	e.MarkProcessed(at)
	return nil
}

func (r *memEventRepo) FindByExternalID(ctx context.Context, externalEventID string) (*billing.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[externalEventID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *e
	return &copied, nil
}

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

// fakeProcessor scripts outbound processor behavior per call
type fakeProcessor struct {
	mu          sync.Mutex
	failures    int // number of calls to fail before succeeding
	calls       int
	lastInput   interface{}
	subResponse *ProcessorSubscription
	invResponse *ProcessorInvoice
}

func (p *fakeProcessor) respond() (*ProcessorSubscription, error) {
	p.calls++
	if p.failures > 0 {
		p.failures--
		return nil, shared.NewDomainError("PROCESSOR_DOWN", "connection refused")
	}
	if p.subResponse != nil {
		resp := *p.subResponse
		return &resp, nil
	}
	return &ProcessorSubscription{
		ExternalID:   "sub_ext_1",
		PlanID:       "professional",
		Status:       billing.SubscriptionActive,
		BillingCycle: billing.BillingCycleMonthly,
		PeriodStart:  time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
		PeriodEnd:    time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
		AmountCents:  9900,
	}, nil
}

func (p *fakeProcessor) CreateSubscription(ctx context.Context, input CreateSubscriptionInput) (*ProcessorSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastInput = input
	return p.respond()
}

func (p *fakeProcessor) UpdateSubscription(ctx context.Context, input UpdateSubscriptionInput) (*ProcessorSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastInput = input
	return p.respond()
}

func (p *fakeProcessor) CancelSubscription(ctx context.Context, input CancelSubscriptionInput) (*ProcessorSubscription, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastInput = input
	return p.respond()
}

func (p *fakeProcessor) CreateInvoice(ctx context.Context, input CreateInvoiceInput) (*ProcessorInvoice, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastInput = input
	p.calls++
	if p.failures > 0 {
		p.failures--
		return nil, shared.NewDomainError("PROCESSOR_DOWN", "connection refused")
	}
	if p.invResponse != nil {
		resp := *p.invResponse
		return &resp, nil
	}
	return &ProcessorInvoice{ExternalID: "in_ext_1", Status: "open"}, nil
}

// fakeVerifier accepts any payload signed with "valid" and parses events
// pre-registered by external event ID (the payload is used as the lookup key)
type fakeVerifier struct {
	events map[string]*InboundEvent
}

func (v *fakeVerifier) VerifyAndParse(payload []byte, signature string) (*InboundEvent, error) {
	if signature != "valid" {
		return nil, shared.ErrInvalidSignature
	}
	event, ok := v.events[string(payload)]
	if !ok {
		return nil, shared.NewDomainError("MALFORMED_PAYLOAD", "cannot parse event")
	}
	return event, nil
}

// fakeTenantUpdater records cascade calls
type fakeTenantUpdater struct {
	mu        sync.Mutex
	activated []uuid.UUID
	suspended []uuid.UUID
}

func (u *fakeTenantUpdater) ActivateTenant(ctx context.Context, tenantID uuid.UUID, actor string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.activated = append(u.activated, tenantID)
	return nil
}

func (u *fakeTenantUpdater) SuspendTenant(ctx context.Context, tenantID uuid.UUID, actor string) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.suspended = append(u.suspended, tenantID)
	return nil
}

var _ billing.QuotaRepository = (*memQuotaRepo)(nil)
var _ billing.UsageLogRepository = (*memUsageRepo)(nil)
var _ billing.SubscriptionRepository = (*memSubRepo)(nil)
var _ billing.InvoiceRepository = (*memInvoiceRepo)(nil)
var _ billing.WebhookEventRepository = (*memEventRepo)(nil)
var _ tenant.Repository = (*memTenantRepo)(nil)
var _ PaymentProcessor = (*fakeProcessor)(nil)
var _ SignatureVerifier = (*fakeVerifier)(nil)
var _ TenantStatusUpdater = (*fakeTenantUpdater)(nil)
