package payment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/customer"
	"github.com/stripe/stripe-go/v81/invoice"
	"github.com/stripe/stripe-go/v81/invoiceitem"
	"github.com/stripe/stripe-go/v81/subscription"
	"go.uber.org/zap"

	appbilling "github.com/meterd/backend/internal/application/billing"
	"github.com/meterd/backend/internal/domain/billing"
)

// StripeProcessor implements the outbound payment processor port against the
// Stripe API. Every mutating call forwards the caller's idempotency key so
// Stripe deduplicates retried requests.
type StripeProcessor struct {
	config *Config
	logger *zap.Logger
}

// NewStripeProcessor creates a new Stripe processor
func NewStripeProcessor(config *Config, logger *zap.Logger) (*StripeProcessor, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config.InitClient()
	return &StripeProcessor{config: config, logger: logger}, nil
}

// CreateSubscription creates a subscription in Stripe. The tenant's Stripe
// customer is created on first use and found by metadata afterwards.
func (p *StripeProcessor) CreateSubscription(ctx context.Context, input appbilling.CreateSubscriptionInput) (*appbilling.ProcessorSubscription, error) {
	p.logger.Debug("Creating Stripe subscription",
		zap.String("tenant_id", input.TenantID.String()),
		zap.String("plan_id", input.PlanID))

	priceID, err := p.config.PriceIDFor(input.PlanID, input.BillingCycle)
	if err != nil {
		return nil, err
	}

	customerID, err := p.ensureCustomer(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}

	params := &stripe.SubscriptionParams{
		Customer: stripe.String(customerID),
		Items: []*stripe.SubscriptionItemsParams{
			{Price: stripe.String(priceID)},
		},
		PaymentBehavior: stripe.String("default_incomplete"),
	}
	if input.TrialDays > 0 {
		params.TrialPeriodDays = stripe.Int64(int64(input.TrialDays))
	}
	params.Metadata = map[string]string{
		"tenant_id": input.TenantID.String(),
		"plan_id":   input.PlanID,
	}
	params.Context = ctx
	if input.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(input.IdempotencyKey)
	}

	sub, err := subscription.New(params)
	if err != nil {
		p.logger.Error("Failed to create Stripe subscription",
			zap.String("tenant_id", input.TenantID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create subscription: %w", err)
	}

	p.logger.Info("Created Stripe subscription",
		zap.String("tenant_id", input.TenantID.String()),
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(sub.Status)))

	return toProcessorSubscription(sub, input.PlanID), nil
}

// UpdateSubscription changes the plan of an existing Stripe subscription
func (p *StripeProcessor) UpdateSubscription(ctx context.Context, input appbilling.UpdateSubscriptionInput) (*appbilling.ProcessorSubscription, error) {
	p.logger.Debug("Updating Stripe subscription",
		zap.String("subscription_id", input.ExternalID),
		zap.String("new_plan_id", input.NewPlanID))

	priceID, err := p.config.PriceIDFor(input.NewPlanID, input.BillingCycle)
	if err != nil {
		return nil, err
	}

	getParams := &stripe.SubscriptionParams{}
	getParams.Context = ctx
	current, err := subscription.Get(input.ExternalID, getParams)
	if err != nil {
		return nil, fmt.Errorf("stripe: failed to get subscription: %w", err)
	}
	if len(current.Items.Data) == 0 {
		return nil, fmt.Errorf("stripe: subscription %s has no items", input.ExternalID)
	}

	params := &stripe.SubscriptionParams{
		Items: []*stripe.SubscriptionItemsParams{
			{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(priceID),
			},
		},
		ProrationBehavior: stripe.String("create_prorations"),
	}
	params.Metadata = map[string]string{"plan_id": input.NewPlanID}
	params.Context = ctx
	if input.IdempotencyKey != "" {
		params.IdempotencyKey = stripe.String(input.IdempotencyKey)
	}

	sub, err := subscription.Update(input.ExternalID, params)
	if err != nil {
		p.logger.Error("Failed to update Stripe subscription",
			zap.String("subscription_id", input.ExternalID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to update subscription: %w", err)
	}

	p.logger.Info("Updated Stripe subscription",
		zap.String("subscription_id", sub.ID),
		zap.String("new_plan_id", input.NewPlanID))

	return toProcessorSubscription(sub, input.NewPlanID), nil
}

// CancelSubscription cancels a Stripe subscription, either at period end or
// immediately
func (p *StripeProcessor) CancelSubscription(ctx context.Context, input appbilling.CancelSubscriptionInput) (*appbilling.ProcessorSubscription, error) {
	p.logger.Debug("Canceling Stripe subscription",
		zap.String("subscription_id", input.ExternalID),
		zap.Bool("at_period_end", input.AtPeriodEnd))

	var sub *stripe.Subscription
	var err error

	if input.AtPeriodEnd {
		params := &stripe.SubscriptionParams{
			CancelAtPeriodEnd: stripe.Bool(true),
		}
		params.Context = ctx
		if input.IdempotencyKey != "" {
			params.IdempotencyKey = stripe.String(input.IdempotencyKey)
		}
		sub, err = subscription.Update(input.ExternalID, params)
	} else {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		if input.IdempotencyKey != "" {
			params.IdempotencyKey = stripe.String(input.IdempotencyKey)
		}
		sub, err = subscription.Cancel(input.ExternalID, params)
	}
	if err != nil {
		p.logger.Error("Failed to cancel Stripe subscription",
			zap.String("subscription_id", input.ExternalID),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to cancel subscription: %w", err)
	}

	p.logger.Info("Canceled Stripe subscription",
		zap.String("subscription_id", sub.ID),
		zap.String("status", string(sub.Status)),
		zap.Bool("cancel_at_period_end", sub.CancelAtPeriodEnd))

	return toProcessorSubscription(sub, planFromMetadata(sub)), nil
}

// CreateInvoice creates and finalizes a one-off invoice in Stripe
func (p *StripeProcessor) CreateInvoice(ctx context.Context, input appbilling.CreateInvoiceInput) (*appbilling.ProcessorInvoice, error) {
	p.logger.Debug("Creating Stripe invoice",
		zap.String("tenant_id", input.TenantID.String()),
		zap.Int64("amount_cents", input.AmountCents))

	customerID, err := p.ensureCustomer(ctx, input.TenantID)
	if err != nil {
		return nil, err
	}

	currency := input.Currency
	if currency == "" {
		currency = p.config.DefaultCurrency
	}

	itemParams := &stripe.InvoiceItemParams{
		Customer:    stripe.String(customerID),
		Amount:      stripe.Int64(input.AmountCents),
		Currency:    stripe.String(currency),
		Description: stripe.String(input.Description),
	}
	itemParams.Context = ctx
	if input.IdempotencyKey != "" {
		itemParams.IdempotencyKey = stripe.String(input.IdempotencyKey + ":item")
	}
	if _, err := invoiceitem.New(itemParams); err != nil {
		return nil, fmt.Errorf("stripe: failed to create invoice item: %w", err)
	}

	invParams := &stripe.InvoiceParams{
		Customer:                    stripe.String(customerID),
		AutoAdvance:                 stripe.Bool(true),
		CollectionMethod:            stripe.String("charge_automatically"),
		PendingInvoiceItemsBehavior: stripe.String("include"),
		Description:                 stripe.String(input.Description),
	}
	invParams.Context = ctx
	if input.IdempotencyKey != "" {
		invParams.IdempotencyKey = stripe.String(input.IdempotencyKey)
	}

	inv, err := invoice.New(invParams)
	if err != nil {
		p.logger.Error("Failed to create Stripe invoice",
			zap.String("tenant_id", input.TenantID.String()),
			zap.Error(err))
		return nil, fmt.Errorf("stripe: failed to create invoice: %w", err)
	}

	p.logger.Info("Created Stripe invoice",
		zap.String("tenant_id", input.TenantID.String()),
		zap.String("invoice_id", inv.ID),
		zap.String("status", string(inv.Status)))

	return &appbilling.ProcessorInvoice{
		ExternalID: inv.ID,
		Status:     string(inv.Status),
	}, nil
}

// ensureCustomer finds the Stripe customer for a tenant by metadata, creating
// one if none exists. Creation is idempotent per tenant.
func (p *StripeProcessor) ensureCustomer(ctx context.Context, tenantID uuid.UUID) (string, error) {
	searchParams := &stripe.CustomerSearchParams{
		SearchParams: stripe.SearchParams{
			Query:   fmt.Sprintf("metadata['tenant_id']:'%s'", tenantID),
			Context: ctx,
		},
	}
	iter := customer.Search(searchParams)
	if iter.Next() {
		return iter.Customer().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("stripe: customer search failed: %w", err)
	}

	params := &stripe.CustomerParams{
		Description: stripe.String("tenant " + tenantID.String()),
		Metadata:    map[string]string{"tenant_id": tenantID.String()},
	}
	params.Context = ctx
	params.IdempotencyKey = stripe.String("customer:" + tenantID.String())

	cust, err := customer.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: failed to create customer: %w", err)
	}

	p.logger.Info("Created Stripe customer",
		zap.String("tenant_id", tenantID.String()),
		zap.String("customer_id", cust.ID))

	return cust.ID, nil
}

// toProcessorSubscription maps a Stripe subscription to the authoritative
// state the synchronizer persists
func toProcessorSubscription(sub *stripe.Subscription, planID string) *appbilling.ProcessorSubscription {
	if metaPlan := planFromMetadata(sub); metaPlan != "" {
		planID = metaPlan
	}

	out := &appbilling.ProcessorSubscription{
		ExternalID:        sub.ID,
		PlanID:            planID,
		Status:            mapSubscriptionStatus(sub.Status),
		BillingCycle:      billing.BillingCycleMonthly,
		PeriodStart:       time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:         time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
	if len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		price := sub.Items.Data[0].Price
		out.AmountCents = price.UnitAmount
		if price.Recurring != nil {
			out.BillingCycle = mapBillingCycle(price.Recurring.Interval)
		}
	}
	if sub.TrialEnd > 0 {
		t := time.Unix(sub.TrialEnd, 0).UTC()
		out.TrialEndsAt = &t
	}
	return out
}

func planFromMetadata(sub *stripe.Subscription) string {
	if sub.Metadata == nil {
		return ""
	}
	return sub.Metadata["plan_id"]
}

// mapSubscriptionStatus maps Stripe subscription status to the local status
func mapSubscriptionStatus(status stripe.SubscriptionStatus) billing.SubscriptionStatus {
	switch status {
	case stripe.SubscriptionStatusActive:
		return billing.SubscriptionActive
	case stripe.SubscriptionStatusTrialing:
		return billing.SubscriptionTrialing
	case stripe.SubscriptionStatusPastDue:
		return billing.SubscriptionPastDue
	case stripe.SubscriptionStatusCanceled:
		return billing.SubscriptionCanceled
	case stripe.SubscriptionStatusUnpaid:
		return billing.SubscriptionUnpaid
	case stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusIncompleteExpired:
		return billing.SubscriptionIncomplete
	default:
		return billing.SubscriptionIncomplete
	}
}

// mapBillingCycle maps a Stripe price interval to the local billing cycle
func mapBillingCycle(interval stripe.PriceRecurringInterval) billing.BillingCycle {
	if interval == stripe.PriceRecurringIntervalYear {
		return billing.BillingCycleYearly
	}
	return billing.BillingCycleMonthly
}

var _ appbilling.PaymentProcessor = (*StripeProcessor)(nil)
