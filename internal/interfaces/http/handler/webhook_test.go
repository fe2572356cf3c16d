package handler

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	appbilling "github.com/meterd/backend/internal/application/billing"
	"github.com/meterd/backend/internal/domain/shared"
	"github.com/meterd/backend/internal/interfaces/http/dto"
)

type fakeWebhookProcessor struct {
	result        *appbilling.ProcessingResult
	err           error
	lastSignature string
	lastPayload   []byte
}

func (f *fakeWebhookProcessor) ProcessDelivery(ctx context.Context, payload []byte, signature string) (*appbilling.ProcessingResult, error) {
	f.lastPayload = payload
	f.lastSignature = signature
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func setupWebhookRouter(processor WebhookProcessor) *gin.Engine {
	engine := gin.New()
	NewWebhookHandler(processor, zap.NewNop()).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func postWebhook(engine *gin.Engine, payload, signature string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader([]byte(payload)))
	if signature != "" {
		req.Header.Set("Stripe-Signature", signature)
	}
	engine.ServeHTTP(w, req)
	return w
}

func TestWebhookHandler_Receive(t *testing.T) {
	t.Run("processed delivery", func(t *testing.T) {
		processor := &fakeWebhookProcessor{result: &appbilling.ProcessingResult{
			ExternalEventID: "evt_1",
			Type:            "subscription.updated",
			Outcome:         appbilling.OutcomeProcessed,
		}}
		engine := setupWebhookRouter(processor)

		w := postWebhook(engine, `{"id":"evt_1"}`, "t=1,v1=abc")

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]interface{})
		assert.Equal(t, "evt_1", data["external_event_id"])
		assert.Equal(t, "processed", data["outcome"])
		assert.Equal(t, "t=1,v1=abc", processor.lastSignature)
		assert.Equal(t, `{"id":"evt_1"}`, string(processor.lastPayload))
	})

	t.Run("duplicate delivery still 200", func(t *testing.T) {
		processor := &fakeWebhookProcessor{result: &appbilling.ProcessingResult{
			ExternalEventID: "evt_1",
			Outcome:         appbilling.OutcomeDuplicate,
		}}
		engine := setupWebhookRouter(processor)

		w := postWebhook(engine, `{"id":"evt_1"}`, "t=1,v1=abc")

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]interface{})
		assert.Equal(t, "duplicate", data["outcome"])
	})

	t.Run("missing signature header is 401", func(t *testing.T) {
		processor := &fakeWebhookProcessor{}
		engine := setupWebhookRouter(processor)

		w := postWebhook(engine, `{"id":"evt_1"}`, "")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Nil(t, processor.lastPayload, "processor must not be called without a signature")
	})

	t.Run("signature verification failure is 401", func(t *testing.T) {
		processor := &fakeWebhookProcessor{err: shared.ErrInvalidSignature}
		engine := setupWebhookRouter(processor)

		w := postWebhook(engine, `{"id":"evt_1"}`, "t=1,v1=bad")

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeInvalidSignature, resp.Error.Code)
	})

	t.Run("processing failure is 500 so the sender redelivers", func(t *testing.T) {
		processor := &fakeWebhookProcessor{err: errors.New("db down")}
		engine := setupWebhookRouter(processor)

		w := postWebhook(engine, `{"id":"evt_1"}`, "t=1,v1=abc")

		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})
}
