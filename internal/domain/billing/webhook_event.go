package billing

import (
	"time"

	"github.com/meterd/backend/internal/domain/shared"
)

// WebhookEventType identifies an inbound event from the payment processor
type WebhookEventType string

const (
	EventSubscriptionCreated WebhookEventType = "subscription.created"
	EventSubscriptionUpdated WebhookEventType = "subscription.updated"
	EventSubscriptionDeleted WebhookEventType = "subscription.deleted"
	EventPaymentSucceeded    WebhookEventType = "payment.succeeded"
	EventPaymentFailed       WebhookEventType = "payment.failed"
)

// IsValid returns true if the event type is one this system handles
func (t WebhookEventType) IsValid() bool {
	switch t {
	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted,
		EventPaymentSucceeded, EventPaymentFailed:
		return true
	}
	return false
}

// WebhookEvent is an inbound billing event from the external payment
// processor. Events are write-once keyed by ExternalEventID: a second
// arrival of the same ID is a no-op.
type WebhookEvent struct {
	shared.BaseEntity
	ExternalEventID string     `gorm:"type:varchar(128);not null;uniqueIndex"`
	Type            string     `gorm:"type:varchar(64);not null"`
	SubscriptionID  string     `gorm:"type:varchar(128);not null;index"`
	Payload         []byte     `gorm:"type:jsonb"`
	EventOccurredAt time.Time  `gorm:"not null"`
	ReceivedAt      time.Time  `gorm:"not null"`
	ProcessedAt     *time.Time ``
}

// TableName returns the table name for GORM
func (WebhookEvent) TableName() string {
	return "webhook_events"
}

// NewWebhookEvent creates a webhook event record from a verified inbound event
func NewWebhookEvent(externalEventID, eventType, subscriptionID string, occurredAt time.Time, payload []byte) (*WebhookEvent, error) {
	if externalEventID == "" {
		return nil, shared.NewDomainError("INVALID_EVENT", "External event ID cannot be empty")
	}
	if eventType == "" {
		return nil, shared.NewDomainError("INVALID_EVENT", "Event type cannot be empty")
	}
	if subscriptionID == "" {
		return nil, shared.NewDomainError("INVALID_EVENT", "Subscription ID cannot be empty")
	}

	return &WebhookEvent{
		BaseEntity:      shared.NewBaseEntity(),
		ExternalEventID: externalEventID,
		Type:            eventType,
		SubscriptionID:  subscriptionID,
		Payload:         payload,
		EventOccurredAt: occurredAt,
		ReceivedAt:      time.Now(),
	}, nil
}

// MarkProcessed records when the event was applied (or accepted as stale)
func (e *WebhookEvent) MarkProcessed(at time.Time) {
	e.ProcessedAt = &at
	e.UpdatedAt = at
}
