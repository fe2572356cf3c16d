package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/meterd/backend/internal/domain/billing"
)

// OverageBiller is the slice of the overage service the handler uses
type OverageBiller interface {
	ListInvoices(ctx context.Context, tenantID uuid.UUID) ([]*billing.Invoice, error)
	RunForPeriod(ctx context.Context, tenantID uuid.UUID, month string) (*billing.Invoice, error)
}

// InvoiceHandler handles invoice HTTP requests
type InvoiceHandler struct {
	BaseHandler
	overage OverageBiller
}

// NewInvoiceHandler creates a new invoice handler
func NewInvoiceHandler(overage OverageBiller) *InvoiceHandler {
	return &InvoiceHandler{overage: overage}
}

// RegisterRoutes registers invoice routes
func (h *InvoiceHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/tenants/:id/invoices", h.List)
	rg.POST("/tenants/:id/overage-runs", h.RunOverage)
}

// RunOverageRequest asks to bill one tenant's overage for one month
type RunOverageRequest struct {
	Month string `json:"month" binding:"required"`
}

// InvoiceResponse is the HTTP representation of an invoice
type InvoiceResponse struct {
	ID                string     `json:"id"`
	TenantID          string     `json:"tenant_id"`
	AmountCents       int64      `json:"amount_cents"`
	Currency          string     `json:"currency"`
	Status            string     `json:"status"`
	BillingReason     string     `json:"billing_reason"`
	PeriodMonth       string     `json:"period_month"`
	DueDate           *time.Time `json:"due_date,omitempty"`
	PaidAt            *time.Time `json:"paid_at,omitempty"`
	ExternalInvoiceID string     `json:"external_invoice_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

func toInvoiceResponse(inv *billing.Invoice) InvoiceResponse {
	return InvoiceResponse{
		ID:                inv.ID.String(),
		TenantID:          inv.TenantID.String(),
		AmountCents:       inv.AmountCents,
		Currency:          inv.Currency,
		Status:            string(inv.Status),
		BillingReason:     string(inv.BillingReason),
		PeriodMonth:       inv.PeriodMonth,
		DueDate:           inv.DueDate,
		PaidAt:            inv.PaidAt,
		ExternalInvoiceID: inv.ExternalInvoiceID,
		CreatedAt:         inv.CreatedAt,
	}
}

// List returns all invoices for a tenant
func (h *InvoiceHandler) List(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	invoices, err := h.overage.ListInvoices(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]InvoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		responses = append(responses, toInvoiceResponse(inv))
	}
	h.Success(c, responses)
}

// RunOverage bills a tenant's overage for one closed month. Re-running the
// same tenant-month returns the existing invoice; 204 means no overage.
func (h *InvoiceHandler) RunOverage(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	var req RunOverageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	invoice, err := h.overage.RunForPeriod(c.Request.Context(), tenantID, req.Month)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	if invoice == nil {
		h.NoContent(c)
		return
	}

	h.Success(c, toInvoiceResponse(invoice))
}
