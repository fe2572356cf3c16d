package handler

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSchedulerControl struct {
	running   bool
	lastMonth string
	err       error
}

func (f *fakeSchedulerControl) IsRunning() bool {
	return f.running
}

func (f *fakeSchedulerControl) TriggerOverageRun(ctx context.Context, month string) error {
	if f.err != nil {
		return f.err
	}
	f.lastMonth = month
	return nil
}

func setupSystemRouter(scheduler SchedulerControl) *gin.Engine {
	engine := gin.New()
	NewSystemHandler("meterd-backend", "test", scheduler).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func TestSystemHandler_Health(t *testing.T) {
	engine := setupSystemRouter(&fakeSchedulerControl{running: true})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/health", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]interface{})
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, "meterd-backend", data["app"])
	assert.Equal(t, "test", data["env"])
}

func TestSystemHandler_SchedulerStatus(t *testing.T) {
	engine := setupSystemRouter(&fakeSchedulerControl{running: false})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/system/scheduler", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeResponse(t, w).Data.(map[string]interface{})
	assert.Equal(t, false, data["running"])
}

func TestSystemHandler_TriggerOverageRun(t *testing.T) {
	t.Run("accepted", func(t *testing.T) {
		scheduler := &fakeSchedulerControl{running: true}
		engine := setupSystemRouter(scheduler)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/system/scheduler/overage-runs", bytes.NewReader([]byte(`{"month":"2026-07"}`)))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusAccepted, w.Code)
		assert.Equal(t, "2026-07", scheduler.lastMonth)
	})

	t.Run("malformed month is 400", func(t *testing.T) {
		engine := setupSystemRouter(&fakeSchedulerControl{running: true})

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/system/scheduler/overage-runs", bytes.NewReader([]byte(`{"month":"July 2026"}`)))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("stopped scheduler is 409", func(t *testing.T) {
		scheduler := &fakeSchedulerControl{err: context.Canceled}
		engine := setupSystemRouter(scheduler)

		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/system/scheduler/overage-runs", bytes.NewReader([]byte(`{"month":"2026-07"}`)))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusConflict, w.Code)
	})
}
