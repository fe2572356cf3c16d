package handler

import (
	"context"
	"errors"
	"io"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appbilling "github.com/meterd/backend/internal/application/billing"
	"github.com/meterd/backend/internal/domain/shared"
	"github.com/meterd/backend/internal/interfaces/http/dto"
)

// maxWebhookPayloadSize bounds inbound webhook bodies (64KB)
const maxWebhookPayloadSize = 65536

// WebhookProcessor is the slice of the webhook service the handler uses
type WebhookProcessor interface {
	ProcessDelivery(ctx context.Context, payload []byte, signature string) (*appbilling.ProcessingResult, error)
}

// WebhookHandler ingests payment processor webhook deliveries
type WebhookHandler struct {
	BaseHandler
	processor WebhookProcessor
	logger    *zap.Logger
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(processor WebhookProcessor, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{processor: processor, logger: logger}
}

// RegisterRoutes registers webhook routes
func (h *WebhookHandler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/webhooks/payment", h.Receive)
}

// Receive verifies and applies one webhook delivery. Any 2xx tells the
// sender to stop retrying; a 5xx asks for redelivery.
func (h *WebhookHandler) Receive(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookPayloadSize))
	if err != nil {
		h.logger.Error("Failed to read webhook payload", zap.Error(err))
		h.BadRequest(c, "Failed to read request body")
		return
	}

	signature := c.GetHeader("Stripe-Signature")
	if signature == "" {
		h.Error(c, 401, dto.ErrCodeInvalidSignature, "Missing signature header")
		return
	}

	result, err := h.processor.ProcessDelivery(c.Request.Context(), payload, signature)
	if err != nil {
		if errors.Is(err, shared.ErrInvalidSignature) {
			h.Error(c, 401, dto.ErrCodeInvalidSignature, "Webhook signature verification failed")
			return
		}
		h.logger.Error("Webhook processing failed", zap.Error(err))
		h.InternalError(c, "Failed to process webhook event")
		return
	}

	h.Success(c, result)
}
