package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
)

// ProcessingOutcome classifies how an inbound webhook delivery was handled
type ProcessingOutcome string

const (
	// OutcomeProcessed means the event changed local state
	OutcomeProcessed ProcessingOutcome = "processed"
	// OutcomeDuplicate means the event ID was seen before; nothing changed
	OutcomeDuplicate ProcessingOutcome = "duplicate"
	// OutcomeStale means the event arrived after a newer one and was recorded
	// without being applied
	OutcomeStale ProcessingOutcome = "stale"
	// OutcomeIgnored means the event referenced no known subscription or its
	// type does not drive local state
	OutcomeIgnored ProcessingOutcome = "ignored"
)

// ProcessingResult reports the disposition of one webhook delivery. Any
// non-error result means the delivery was accepted and must not be retried
// by the sender.
type ProcessingResult struct {
	ExternalEventID string            `json:"external_event_id"`
	Type            string            `json:"type"`
	Outcome         ProcessingOutcome `json:"outcome"`
}

// subscriptionLocks serializes event processing per external subscription ID
// so concurrent deliveries for the same subscription apply one at a time
type subscriptionLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newSubscriptionLocks() *subscriptionLocks {
	return &subscriptionLocks{locks: make(map[string]*sync.Mutex)}
}

func (l *subscriptionLocks) forKey(key string) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	if m, ok := l.locks[key]; ok {
		return m
	}
	m := &sync.Mutex{}
	l.locks[key] = m
	return m
}

// WebhookService ingests subscription lifecycle events from the external
// payment processor. Processing order per delivery: verify the signature,
// persist the event write-once, then apply it to the subscription under a
// per-subscription lock using event-time ordering.
type WebhookService struct {
	verifier    SignatureVerifier
	eventRepo   billing.WebhookEventRepository
	subRepo     billing.SubscriptionRepository
	tenants     TenantStatusUpdater
	idempotency shared.IdempotencyStore
	idemConfig  shared.IdempotencyConfig
	audit       shared.AuditLogger
	logger      *zap.Logger
	locks       *subscriptionLocks
}

// NewWebhookService creates a new webhook service
func NewWebhookService(
	verifier SignatureVerifier,
	eventRepo billing.WebhookEventRepository,
	subRepo billing.SubscriptionRepository,
	tenants TenantStatusUpdater,
	idempotency shared.IdempotencyStore,
	audit shared.AuditLogger,
	logger *zap.Logger,
) *WebhookService {
	return &WebhookService{
		verifier:    verifier,
		eventRepo:   eventRepo,
		subRepo:     subRepo,
		tenants:     tenants,
		idempotency: idempotency,
		idemConfig:  shared.DefaultIdempotencyConfig(),
		audit:       audit,
		logger:      logger,
		locks:       newSubscriptionLocks(),
	}
}

// ProcessDelivery verifies and applies one raw webhook delivery. A signature
// failure returns shared.ErrInvalidSignature and persists nothing.
func (s *WebhookService) ProcessDelivery(ctx context.Context, payload []byte, signature string) (*ProcessingResult, error) {
	event, err := s.verifier.VerifyAndParse(payload, signature)
	if err != nil {
		s.logger.Warn("Webhook signature verification failed",
			zap.Int("payload_bytes", len(payload)),
			zap.Error(err))
		return nil, shared.ErrInvalidSignature
	}
	return s.Process(ctx, event)
}

// Process applies a verified inbound event
func (s *WebhookService) Process(ctx context.Context, event *InboundEvent) (*ProcessingResult, error) {
	result := &ProcessingResult{ExternalEventID: event.ExternalEventID, Type: event.Type}

	// Events that reference no subscription have nothing to apply. Accepting
	// them stops the sender from retrying.
	if event.SubscriptionID == "" {
		s.logger.Debug("Webhook event references no subscription",
			zap.String("external_event_id", event.ExternalEventID),
			zap.String("type", event.Type))
		result.Outcome = OutcomeIgnored
		return result, nil
	}

	// Fast-path dedup; the write-once insert below is the authoritative check
	if s.idempotency != nil && s.idemConfig.Enabled {
		if seen, err := s.idempotency.IsProcessed(ctx, event.ExternalEventID); err == nil && seen {
			result.Outcome = OutcomeDuplicate
			return result, nil
		}
	}

	record, err := billing.NewWebhookEvent(event.ExternalEventID, event.Type, event.SubscriptionID, event.OccurredAt, event.Payload)
	if err != nil {
		return nil, err
	}

	lock := s.locks.forKey(event.SubscriptionID)
	lock.Lock()
	defer lock.Unlock()

	inserted, err := s.eventRepo.InsertIfAbsent(ctx, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		s.logger.Debug("Duplicate webhook event dropped",
			zap.String("external_event_id", event.ExternalEventID))
		result.Outcome = OutcomeDuplicate
		return result, nil
	}

	outcome, err := s.apply(ctx, event)
	if err != nil {
		return nil, err
	}
	result.Outcome = outcome

	now := time.Now()
	if err := s.eventRepo.MarkProcessed(ctx, event.ExternalEventID, now); err != nil {
		s.logger.Warn("Failed to stamp webhook event processed",
			zap.String("external_event_id", event.ExternalEventID),
			zap.Error(err))
	}
	if s.idempotency != nil && s.idemConfig.Enabled {
		if _, err := s.idempotency.MarkProcessed(ctx, event.ExternalEventID, s.idemConfig.TTL); err != nil {
			s.logger.Warn("Failed to cache processed event ID",
				zap.String("external_event_id", event.ExternalEventID),
				zap.Error(err))
		}
	}
	return result, nil
}

func (s *WebhookService) apply(ctx context.Context, event *InboundEvent) (ProcessingOutcome, error) {
	sub, err := s.subRepo.FindByExternalID(ctx, event.SubscriptionID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			s.logger.Warn("Webhook references unknown subscription",
				zap.String("external_event_id", event.ExternalEventID),
				zap.String("subscription_id", event.SubscriptionID))
			return OutcomeIgnored, nil
		}
		return "", err
	}

	eventType := billing.WebhookEventType(event.Type)
	target, recognized := s.targetStatus(eventType, sub.Status)
	if eventType == billing.EventSubscriptionCreated || eventType == billing.EventSubscriptionUpdated {
		target = applyStatusFromPayload(event, target)
	}
	if !recognized {
		s.logger.Debug("Webhook event type does not drive local state",
			zap.String("external_event_id", event.ExternalEventID),
			zap.String("type", event.Type))
		return OutcomeIgnored, nil
	}

	oldStatus := sub.Status
	if !sub.ApplyEventAt(event.OccurredAt, target) {
		s.logger.Info("Out-of-order webhook event recorded but not applied",
			zap.String("external_event_id", event.ExternalEventID),
			zap.Time("event_occurred_at", event.OccurredAt),
			zap.Time("watermark", sub.LastEventAt))
		return OutcomeStale, nil
	}

	if event.Subscription != nil {
		sub.PlanID = event.Subscription.PlanID
		sub.BillingCycle = event.Subscription.BillingCycle
		sub.PeriodStart = event.Subscription.PeriodStart
		sub.PeriodEnd = event.Subscription.PeriodEnd
		sub.AmountCents = event.Subscription.AmountCents
		sub.TrialEndsAt = event.Subscription.TrialEndsAt
		sub.CancelAtPeriodEnd = event.Subscription.CancelAtPeriodEnd
	}

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return "", err
	}

	if oldStatus != sub.Status {
		s.logger.Info("Subscription status changed by webhook",
			zap.String("tenant_id", sub.TenantID.String()),
			zap.String("external_event_id", event.ExternalEventID),
			zap.String("old_status", oldStatus.String()),
			zap.String("new_status", sub.Status.String()))
		if err := s.audit.LogEvent(ctx, sub.TenantID, "webhook:"+event.ExternalEventID, "subscription.status_changed", oldStatus.String(), sub.Status.String()); err != nil {
			s.logger.Warn("Audit write failed", zap.Error(err))
		}
		s.cascadeTenantStatus(ctx, sub, event)
	}

	return OutcomeProcessed, nil
}

// targetStatus maps an event type and the subscription's current status to
// the status the event drives it toward. The second return is false when the
// event does not change state from the current status.
func (s *WebhookService) targetStatus(eventType billing.WebhookEventType, current billing.SubscriptionStatus) (billing.SubscriptionStatus, bool) {
	switch eventType {
	case billing.EventSubscriptionCreated, billing.EventSubscriptionUpdated:
		// Status comes from the event payload; keep current as fallback
		return current, true
	case billing.EventSubscriptionDeleted:
		return billing.SubscriptionCanceled, true
	case billing.EventPaymentSucceeded:
		if current == billing.SubscriptionPastDue || current == billing.SubscriptionIncomplete || current == billing.SubscriptionTrialing {
			return billing.SubscriptionActive, true
		}
		return current, true
	case billing.EventPaymentFailed:
		if current == billing.SubscriptionActive || current == billing.SubscriptionTrialing {
			return billing.SubscriptionPastDue, true
		}
		return current, true
	}
	return current, false
}

// cascadeTenantStatus propagates subscription health onto the tenant
// lifecycle. Cascade failures are logged, never returned: the subscription
// change already stands.
func (s *WebhookService) cascadeTenantStatus(ctx context.Context, sub *billing.Subscription, event *InboundEvent) {
	if s.tenants == nil {
		return
	}
	actor := "webhook:" + event.ExternalEventID

	var err error
	switch sub.Status {
	case billing.SubscriptionCanceled:
		err = s.tenants.SuspendTenant(ctx, sub.TenantID, actor)
	case billing.SubscriptionActive:
		err = s.tenants.ActivateTenant(ctx, sub.TenantID, actor)
	default:
		return
	}
	if err != nil {
		s.logger.Warn("Tenant status cascade skipped",
			zap.String("tenant_id", sub.TenantID.String()),
			zap.String("subscription_status", sub.Status.String()),
			zap.Error(err))
	}
}

// applyStatusFromPayload resolves the status for subscription.* events whose
// payload carries the authoritative status
func applyStatusFromPayload(event *InboundEvent, fallback billing.SubscriptionStatus) billing.SubscriptionStatus {
	if event.Subscription != nil && event.Subscription.Status.IsValid() {
		return event.Subscription.Status
	}
	return fallback
}
