package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apptenant "github.com/meterd/backend/internal/application/tenant"
	"github.com/meterd/backend/internal/domain/tenant"
)

// TenantRegistry is the slice of the registry service the handler uses
type TenantRegistry interface {
	CreateTenant(ctx context.Context, input apptenant.CreateTenantInput) (*tenant.Tenant, error)
	GetTenant(ctx context.Context, tenantID uuid.UUID) (*tenant.Tenant, error)
	ListTenants(ctx context.Context, status *tenant.Status) ([]*tenant.Tenant, error)
	UpdateStatus(ctx context.Context, tenantID uuid.UUID, status tenant.Status, actor string) (*tenant.Tenant, error)
	UpdateTier(ctx context.Context, tenantID uuid.UUID, tier tenant.Tier, actor string) (*tenant.Tenant, error)
}

// TenantHandler handles tenant lifecycle HTTP requests
type TenantHandler struct {
	BaseHandler
	registry TenantRegistry
}

// NewTenantHandler creates a new tenant handler
func NewTenantHandler(registry TenantRegistry) *TenantHandler {
	return &TenantHandler{registry: registry}
}

// RegisterRoutes registers tenant routes
func (h *TenantHandler) RegisterRoutes(rg *gin.RouterGroup) {
	tenants := rg.Group("/tenants")
	{
		tenants.POST("", h.Create)
		tenants.GET("", h.List)
		tenants.GET("/:id", h.Get)
		tenants.PATCH("/:id/status", h.UpdateStatus)
		tenants.PATCH("/:id/tier", h.UpdateTier)
	}
}

// CreateTenantRequest is the onboarding request body
type CreateTenantRequest struct {
	Name         string `json:"name" binding:"required,min=2,max=200"`
	Tier         string `json:"tier" binding:"required"`
	BillingEmail string `json:"billing_email" binding:"omitempty,email"`
	Timezone     string `json:"timezone"`
	Locale       string `json:"locale"`
}

// UpdateTenantStatusRequest carries a lifecycle transition
type UpdateTenantStatusRequest struct {
	Status string `json:"status" binding:"required"`
	Actor  string `json:"actor"`
}

// UpdateTenantTierRequest carries a plan tier change
type UpdateTenantTierRequest struct {
	Tier  string `json:"tier" binding:"required"`
	Actor string `json:"actor"`
}

// TenantResponse is the HTTP representation of a tenant
type TenantResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	Tier         string    `json:"tier"`
	BillingEmail string    `json:"billing_email,omitempty"`
	Timezone     string    `json:"timezone"`
	Locale       string    `json:"locale"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toTenantResponse(t *tenant.Tenant) TenantResponse {
	return TenantResponse{
		ID:           t.ID.String(),
		Name:         t.Name,
		Status:       t.Status.String(),
		Tier:         t.Tier.String(),
		BillingEmail: t.BillingEmail,
		Timezone:     t.Timezone,
		Locale:       t.Locale,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// Create onboards a new tenant
func (h *TenantHandler) Create(c *gin.Context) {
	var req CreateTenantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	t, err := h.registry.CreateTenant(c.Request.Context(), apptenant.CreateTenantInput{
		Name:         req.Name,
		Tier:         tenant.Tier(req.Tier),
		BillingEmail: req.BillingEmail,
		Timezone:     req.Timezone,
		Locale:       req.Locale,
	})
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Created(c, toTenantResponse(t))
}

// Get returns one tenant by ID
func (h *TenantHandler) Get(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	t, err := h.registry.GetTenant(c.Request.Context(), tenantID)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(t))
}

// List returns all tenants, optionally filtered by ?status=
func (h *TenantHandler) List(c *gin.Context) {
	var statusFilter *tenant.Status
	if raw := c.Query("status"); raw != "" {
		status := tenant.Status(raw)
		statusFilter = &status
	}

	tenants, err := h.registry.ListTenants(c.Request.Context(), statusFilter)
	if err != nil {
		h.HandleError(c, err)
		return
	}

	responses := make([]TenantResponse, 0, len(tenants))
	for _, t := range tenants {
		responses = append(responses, toTenantResponse(t))
	}
	h.Success(c, responses)
}

// UpdateStatus transitions a tenant's lifecycle status
func (h *TenantHandler) UpdateStatus(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	var req UpdateTenantStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	t, err := h.registry.UpdateStatus(c.Request.Context(), tenantID, tenant.Status(req.Status), actorOrDefault(req.Actor))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(t))
}

// UpdateTier changes a tenant's plan tier
func (h *TenantHandler) UpdateTier(c *gin.Context) {
	tenantID, err := tenantIDParam(c)
	if err != nil {
		h.BadRequest(c, "Invalid tenant ID format")
		return
	}

	var req UpdateTenantTierRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	t, err := h.registry.UpdateTier(c.Request.Context(), tenantID, tenant.Tier(req.Tier), actorOrDefault(req.Actor))
	if err != nil {
		h.HandleError(c, err)
		return
	}

	h.Success(c, toTenantResponse(t))
}

func actorOrDefault(actor string) string {
	if actor == "" {
		return "api"
	}
	return actor
}
