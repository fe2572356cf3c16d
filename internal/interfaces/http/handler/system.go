package handler

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
)

// SchedulerControl is the slice of the billing scheduler the handler uses
type SchedulerControl interface {
	IsRunning() bool
	TriggerOverageRun(ctx context.Context, month string) error
}

// SystemHandler handles health and operational endpoints
type SystemHandler struct {
	BaseHandler
	appName   string
	env       string
	scheduler SchedulerControl
	startedAt time.Time
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(appName, env string, scheduler SchedulerControl) *SystemHandler {
	return &SystemHandler{
		appName:   appName,
		env:       env,
		scheduler: scheduler,
		startedAt: time.Now(),
	}
}

// RegisterRoutes registers system routes
func (h *SystemHandler) RegisterRoutes(rg *gin.RouterGroup) {
	system := rg.Group("/system")
	{
		system.GET("/health", h.Health)
		system.GET("/scheduler", h.SchedulerStatus)
		system.POST("/scheduler/overage-runs", h.TriggerOverageRun)
	}
}

// HealthResponse reports service liveness
type HealthResponse struct {
	Status  string `json:"status"`
	App     string `json:"app"`
	Env     string `json:"env"`
	Uptime  string `json:"uptime"`
	Started string `json:"started"`
}

// SchedulerStatusResponse reports background job state
type SchedulerStatusResponse struct {
	Running bool `json:"running"`
}

// TriggerOverageRunRequest asks for an immediate overage billing run
type TriggerOverageRunRequest struct {
	Month string `json:"month" binding:"required"`
}

// Health returns service liveness
func (h *SystemHandler) Health(c *gin.Context) {
	h.Success(c, HealthResponse{
		Status:  "ok",
		App:     h.appName,
		Env:     h.env,
		Uptime:  time.Since(h.startedAt).Round(time.Second).String(),
		Started: h.startedAt.Format(time.RFC3339),
	})
}

// SchedulerStatus reports whether the billing scheduler is running
func (h *SystemHandler) SchedulerStatus(c *gin.Context) {
	h.Success(c, SchedulerStatusResponse{Running: h.scheduler.IsRunning()})
}

// TriggerOverageRun starts an immediate overage billing run for the given
// month across all active tenants
func (h *SystemHandler) TriggerOverageRun(c *gin.Context) {
	var req TriggerOverageRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if _, err := time.Parse("2006-01", req.Month); err != nil {
		h.BadRequest(c, "Month must be formatted as YYYY-MM")
		return
	}

	if err := h.scheduler.TriggerOverageRun(c.Request.Context(), req.Month); err != nil {
		h.Error(c, 409, "ERR_SCHEDULER_NOT_RUNNING", "Billing scheduler is not running")
		return
	}

	c.JSON(202, gin.H{"success": true, "data": gin.H{"month": req.Month, "triggered": true}})
}
