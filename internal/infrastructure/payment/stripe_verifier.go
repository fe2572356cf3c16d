package payment

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/webhook"
	"go.uber.org/zap"

	appbilling "github.com/meterd/backend/internal/application/billing"
	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
)

// StripeVerifier authenticates Stripe webhook deliveries and translates them
// into the processor-neutral inbound event shape. Verification is fail-closed:
// a bad signature or malformed payload rejects the delivery before anything
// is persisted.
type StripeVerifier struct {
	secret string
	logger *zap.Logger
}

// NewStripeVerifier creates a new webhook signature verifier
func NewStripeVerifier(webhookSecret string, logger *zap.Logger) *StripeVerifier {
	return &StripeVerifier{secret: webhookSecret, logger: logger}
}

// VerifyAndParse checks the Stripe-Signature header against the payload and
// parses the event. Events that do not map to a subscription lifecycle type
// are returned with their raw type and no subscription reference; the caller
// acknowledges them without applying anything.
func (v *StripeVerifier) VerifyAndParse(payload []byte, signature string) (*appbilling.InboundEvent, error) {
	event, err := webhook.ConstructEvent(payload, signature, v.secret)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrInvalidSignature, err)
	}

	inbound := &appbilling.InboundEvent{
		ExternalEventID: event.ID,
		Type:            string(event.Type),
		OccurredAt:      time.Unix(event.Created, 0).UTC(),
		Payload:         payload,
	}

	switch event.Type {
	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("stripe: failed to unmarshal subscription from %s: %w", event.ID, err)
		}
		inbound.Type = mapSubscriptionEventType(event.Type)
		inbound.SubscriptionID = sub.ID
		inbound.Subscription = toProcessorSubscription(&sub, planFromMetadata(&sub))

	case "invoice.paid", "invoice.payment_succeeded":
		subscriptionID, err := subscriptionIDFromInvoice(event)
		if err != nil {
			return nil, err
		}
		inbound.Type = string(billing.EventPaymentSucceeded)
		inbound.SubscriptionID = subscriptionID

	case "invoice.payment_failed":
		subscriptionID, err := subscriptionIDFromInvoice(event)
		if err != nil {
			return nil, err
		}
		inbound.Type = string(billing.EventPaymentFailed)
		inbound.SubscriptionID = subscriptionID

	default:
		v.logger.Debug("Unhandled Stripe event type",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)))
	}

	return inbound, nil
}

// mapSubscriptionEventType maps Stripe's customer.subscription.* type names
// onto the local event vocabulary
func mapSubscriptionEventType(eventType stripe.EventType) string {
	switch eventType {
	case "customer.subscription.created":
		return string(billing.EventSubscriptionCreated)
	case "customer.subscription.updated":
		return string(billing.EventSubscriptionUpdated)
	case "customer.subscription.deleted":
		return string(billing.EventSubscriptionDeleted)
	}
	return string(eventType)
}

// subscriptionIDFromInvoice extracts the subscription reference from an
// invoice event. One-off invoices carry no subscription; the empty ID makes
// the processor acknowledge and skip them.
func subscriptionIDFromInvoice(event stripe.Event) (string, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return "", fmt.Errorf("stripe: failed to unmarshal invoice from %s: %w", event.ID, err)
	}
	if inv.Subscription == nil {
		return "", nil
	}
	return inv.Subscription.ID, nil
}

var _ appbilling.SignatureVerifier = (*StripeVerifier)(nil)
