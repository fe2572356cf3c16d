package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appbilling "github.com/meterd/backend/internal/application/billing"
	"github.com/meterd/backend/internal/domain/billing"
)

// UsageMeter is the slice of the meter service the handler uses
type UsageMeter interface {
	RecordUsage(ctx context.Context, input appbilling.RecordUsageInput) (*billing.UsageLogEntry, error)
	MonthlySummary(ctx context.Context, tenantID uuid.UUID, month string) (*appbilling.UsageSummary, error)
}

// UsageHandler handles usage metering HTTP requests
type UsageHandler struct {
	BaseHandler
	meter UsageMeter
}

// NewUsageHandler creates a new usage handler
func NewUsageHandler(meter UsageMeter) *UsageHandler {
	return &UsageHandler{meter: meter}
}

// RegisterRoutes registers usage routes
func (h *UsageHandler) RegisterRoutes(rg *gin.RouterGroup) {
	usage := rg.Group("/tenants/:id/usage")
	{
		usage.POST("", h.Record)
		usage.GET("/summary", h.MonthlySummary)
	}
}

// RecordUsageRequest reports one externally metered consumption event.
// Retries must resend the original occurred_at and idempotency_key so the
// event deduplicates.
type RecordUsageRequest struct {
	ResourceType   string     `json:"resource_type" binding:"required"`
	Amount         int64      `json:"amount" binding:"required,gt=0"`
	Description    string     `json:"description"`
	OccurredAt     *time.Time `json:"occurred_at"`
	IdempotencyKey string     `json:"idempotency_key"`
}

// UsageEntryResponse is the HTTP representation of a ledger entry
type UsageEntryResponse struct {
	ID             string    `json:"id"`
	ResourceType   string    `json:"resource_type"`
	Amount         int64     `json:"amount"`
	OccurredOn     time.Time `json:"occurred_on"`
	IdempotencyKey string    `json:"idempotency_key"`
}

// Record appends a usage event to the ledger
func (h *UsageHandler) Record(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	var req RecordUsageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	input := appbilling.RecordUsageInput{
		TenantID:       tenantID,
		ResourceType:   billing.ResourceType(req.ResourceType),
		Amount:         req.Amount,
		Description:    req.Description,
		IdempotencyKey: req.IdempotencyKey,
	}
	if req.OccurredAt != nil {
		input.OccurredAt = *req.OccurredAt
	}

	entry, err := h.meter.RecordUsage(c.Request.Context(), input)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, UsageEntryResponse{
		ID:             entry.ID.String(),
		ResourceType:   entry.ResourceType.String(),
		Amount:         entry.Amount,
		OccurredOn:     entry.OccurredOn,
		IdempotencyKey: entry.IdempotencyKey,
	})
}

// MonthlySummary returns ledger totals per resource for ?month=YYYY-MM,
// defaulting to the current month
func (h *UsageHandler) MonthlySummary(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	month := c.Query("month")
	if month == "" {
		month = time.Now().UTC().Format("2006-01")
	}

	summary, err := h.meter.MonthlySummary(c.Request.Context(), tenantID, month)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, summary)
}
