package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meterd/backend/internal/domain/billing"
)

// SubscriptionManager is the slice of the sync service the handler uses
type SubscriptionManager interface {
	CreateSubscription(ctx context.Context, tenantID uuid.UUID, planID string, cycle billing.BillingCycle, trialDays int) (*billing.Subscription, error)
	ChangePlan(ctx context.Context, tenantID uuid.UUID, newPlanID string, cycle billing.BillingCycle) (*billing.Subscription, error)
	CancelSubscription(ctx context.Context, tenantID uuid.UUID, atPeriodEnd bool) (*billing.Subscription, error)
	GetSubscription(ctx context.Context, tenantID uuid.UUID) (*billing.Subscription, error)
}

// SubscriptionHandler handles subscription HTTP requests
type SubscriptionHandler struct {
	BaseHandler
	subscriptions SubscriptionManager
}

// NewSubscriptionHandler creates a new subscription handler
func NewSubscriptionHandler(subscriptions SubscriptionManager) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptions: subscriptions}
}

// RegisterRoutes registers subscription routes
func (h *SubscriptionHandler) RegisterRoutes(rg *gin.RouterGroup) {
	sub := rg.Group("/tenants/:id/subscription")
	{
		sub.POST("", h.Create)
		sub.GET("", h.Get)
		sub.PATCH("/plan", h.ChangePlan)
		sub.DELETE("", h.Cancel)
	}
}

// CreateSubscriptionRequest provisions a subscription for a tenant
type CreateSubscriptionRequest struct {
	PlanID       string `json:"plan_id" binding:"required"`
	BillingCycle string `json:"billing_cycle" binding:"required,oneof=monthly yearly"`
	TrialDays    int    `json:"trial_days" binding:"min=0,max=90"`
}

// ChangePlanRequest moves a subscription to a new plan or cycle
type ChangePlanRequest struct {
	PlanID       string `json:"plan_id" binding:"required"`
	BillingCycle string `json:"billing_cycle" binding:"required,oneof=monthly yearly"`
}

// CancelSubscriptionRequest controls cancellation timing
type CancelSubscriptionRequest struct {
	AtPeriodEnd bool `json:"at_period_end"`
}

// SubscriptionResponse is the HTTP representation of a subscription
type SubscriptionResponse struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	ExternalID        string     `json:"external_id,omitempty"`
	PlanID            string     `json:"plan_id"`
	Status            string     `json:"status"`
	BillingCycle      string     `json:"billing_cycle"`
	AmountCents       int64      `json:"amount_cents"`
	PeriodStart       time.Time  `json:"period_start"`
	PeriodEnd         time.Time  `json:"period_end"`
	TrialEndsAt       *time.Time `json:"trial_ends_at,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	Stale             bool       `json:"stale"`
	StaleSince        *time.Time `json:"stale_since,omitempty"`
}

func toSubscriptionResponse(sub *billing.Subscription) SubscriptionResponse {
	return SubscriptionResponse{
		ID:                sub.ID.String(),
		TenantID:          sub.TenantID.String(),
		ExternalID:        sub.ExternalID,
		PlanID:            sub.PlanID,
		Status:            sub.Status.String(),
		BillingCycle:      string(sub.BillingCycle),
		AmountCents:       sub.AmountCents,
		PeriodStart:       sub.PeriodStart,
		PeriodEnd:         sub.PeriodEnd,
		TrialEndsAt:       sub.TrialEndsAt,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Stale:             sub.IsStale(),
		StaleSince:        sub.StaleSince,
	}
}

// Create provisions a subscription with the external processor
func (h *SubscriptionHandler) Create(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	var req CreateSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	sub, err := h.subscriptions.CreateSubscription(c.Request.Context(), tenantID, req.PlanID, billing.BillingCycle(req.BillingCycle), req.TrialDays)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toSubscriptionResponse(sub))
}

// Get returns the tenant's subscription
func (h *SubscriptionHandler) Get(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	sub, err := h.subscriptions.GetSubscription(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSubscriptionResponse(sub))
}

// ChangePlan moves the subscription to a new plan or billing cycle
func (h *SubscriptionHandler) ChangePlan(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	var req ChangePlanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	sub, err := h.subscriptions.ChangePlan(c.Request.Context(), tenantID, req.PlanID, billing.BillingCycle(req.BillingCycle))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSubscriptionResponse(sub))
}

// Cancel cancels the subscription, immediately or at period end
func (h *SubscriptionHandler) Cancel(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	var req CancelSubscriptionRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			h.BadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	sub, err := h.subscriptions.CancelSubscription(c.Request.Context(), tenantID, req.AtPeriodEnd)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toSubscriptionResponse(sub))
}
