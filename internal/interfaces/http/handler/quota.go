package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	appbilling "github.com/meterd/backend/internal/application/billing"
	"github.com/meterd/backend/internal/domain/billing"
)

// QuotaManager is the slice of the quota service the handler uses
type QuotaManager interface {
	CheckAndIncrement(ctx context.Context, tenantID uuid.UUID, resourceType billing.ResourceType, amount int64) (*appbilling.CheckResult, error)
	GetQuotas(ctx context.Context, tenantID uuid.UUID) ([]*billing.ResourceQuota, error)
	SetLimits(ctx context.Context, tenantID uuid.UUID, limits map[billing.ResourceType]int64) error
}

// QuotaHandler handles quota enforcement HTTP requests
type QuotaHandler struct {
	BaseHandler
	quotas QuotaManager
}

// NewQuotaHandler creates a new quota handler
func NewQuotaHandler(quotas QuotaManager) *QuotaHandler {
	return &QuotaHandler{quotas: quotas}
}

// RegisterRoutes registers quota routes
func (h *QuotaHandler) RegisterRoutes(rg *gin.RouterGroup) {
	quotas := rg.Group("/tenants/:id/quotas")
	{
		quotas.POST("/check", h.Check)
		quotas.GET("", h.List)
		quotas.PUT("", h.SetLimits)
	}
}

// QuotaCheckRequest asks to consume amount units of a resource
type QuotaCheckRequest struct {
	ResourceType string `json:"resource_type" binding:"required"`
	Amount       int64  `json:"amount" binding:"required,gt=0"`
}

// SetLimitsRequest replaces a tenant's quota limits
type SetLimitsRequest struct {
	Limits map[string]int64 `json:"limits" binding:"required"`
}

// QuotaResponse is the HTTP representation of one quota row
type QuotaResponse struct {
	ResourceType string    `json:"resource_type"`
	Limit        int64     `json:"limit"`
	CurrentUsage int64     `json:"current_usage"`
	Remaining    int64     `json:"remaining"`
	UsagePercent float64   `json:"usage_percent"`
	ResetDate    time.Time `json:"reset_date"`
}

// Check atomically consumes quota for a resource. A denied check returns
// 429 with nothing consumed.
func (h *QuotaHandler) Check(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	var req QuotaCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	result, err := h.quotas.CheckAndIncrement(c.Request.Context(), tenantID, billing.ResourceType(req.ResourceType), req.Amount)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, result)
}

// List returns all quotas configured for a tenant
func (h *QuotaHandler) List(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	quotas, err := h.quotas.GetQuotas(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]QuotaResponse, 0, len(quotas))
	for _, q := range quotas {
		responses = append(responses, QuotaResponse{
			ResourceType: q.ResourceType.String(),
			Limit:        q.Limit,
			CurrentUsage: q.CurrentUsage,
			Remaining:    q.Remaining(),
			UsagePercent: q.UsagePercent(),
			ResetDate:    q.ResetDate,
		})
	}
	h.Success(c, responses)
}

// SetLimits replaces a tenant's quota limits. Current usage is preserved.
func (h *QuotaHandler) SetLimits(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	var req SetLimitsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	limits := make(map[billing.ResourceType]int64, len(req.Limits))
	for rt, limit := range req.Limits {
		limits[billing.ResourceType(rt)] = limit
	}

	if err := h.quotas.SetLimits(c.Request.Context(), tenantID, limits); err != nil {
		h.HandleError(c, err)
		return
	}

	h.NoContent(c)
}
