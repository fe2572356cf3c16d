package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appbilling "github.com/meterd/backend/internal/application/billing"
	"github.com/meterd/backend/internal/domain/billing"
	"github.com/meterd/backend/internal/domain/shared"
	"github.com/meterd/backend/internal/interfaces/http/dto"
)

type fakeQuotaManager struct {
	limits map[billing.ResourceType]int64
	usage  map[billing.ResourceType]int64
}

func newFakeQuotaManager() *fakeQuotaManager {
	return &fakeQuotaManager{
		limits: make(map[billing.ResourceType]int64),
		usage:  make(map[billing.ResourceType]int64),
	}
}

func (f *fakeQuotaManager) CheckAndIncrement(ctx context.Context, tenantID uuid.UUID, resourceType billing.ResourceType, amount int64) (*appbilling.CheckResult, error) {
	if !resourceType.IsValid() {
		return nil, shared.NewDomainError("INVALID_RESOURCE_TYPE", "Invalid resource type")
	}
	limit, ok := f.limits[resourceType]
	if !ok {
		return nil, shared.ErrNotFound
	}
	if f.usage[resourceType]+amount > limit {
		remaining := limit - f.usage[resourceType]
		return nil, &appbilling.QuotaExceededError{
			TenantID:     tenantID,
			ResourceType: resourceType,
			Requested:    amount,
			Remaining:    remaining,
		}
	}
	f.usage[resourceType] += amount
	return &appbilling.CheckResult{Allowed: true, Remaining: limit - f.usage[resourceType]}, nil
}

func (f *fakeQuotaManager) GetQuotas(ctx context.Context, tenantID uuid.UUID) ([]*billing.ResourceQuota, error) {
	var out []*billing.ResourceQuota
	for rt, limit := range f.limits {
		q, err := billing.NewResourceQuota(tenantID, rt, limit)
		if err != nil {
			return nil, err
		}
		q.CurrentUsage = f.usage[rt]
		out = append(out, q)
	}
	return out, nil
}

func (f *fakeQuotaManager) SetLimits(ctx context.Context, tenantID uuid.UUID, limits map[billing.ResourceType]int64) error {
	for rt, limit := range limits {
		if !rt.IsValid() {
			return shared.NewDomainError("INVALID_RESOURCE_TYPE", "Invalid resource type")
		}
		f.limits[rt] = limit
	}
	return nil
}

func setupQuotaRouter(quotas QuotaManager) *gin.Engine {
	engine := gin.New()
	NewQuotaHandler(quotas).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func TestQuotaHandler_Check(t *testing.T) {
	quotas := newFakeQuotaManager()
	quotas.limits[billing.ResourceAPICalls] = 10
	engine := setupQuotaRouter(quotas)
	tenantID := uuid.New()

	checkURL := "/api/v1/tenants/" + tenantID.String() + "/quotas/check"

	t.Run("allowed consumption", func(t *testing.T) {
		body, _ := json.Marshal(QuotaCheckRequest{ResourceType: "api_calls", Amount: 7})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, checkURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]interface{})
		assert.Equal(t, true, data["allowed"])
		assert.Equal(t, float64(3), data["remaining"])
	})

	t.Run("denied consumption is 429 and consumes nothing", func(t *testing.T) {
		body, _ := json.Marshal(QuotaCheckRequest{ResourceType: "api_calls", Amount: 5})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, checkURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusTooManyRequests, w.Code)
		resp := decodeResponse(t, w)
		assert.Equal(t, dto.ErrCodeQuotaExceeded, resp.Error.Code)
		assert.Equal(t, int64(7), quotas.usage[billing.ResourceAPICalls])
	})

	t.Run("exact remaining succeeds after denial", func(t *testing.T) {
		body, _ := json.Marshal(QuotaCheckRequest{ResourceType: "api_calls", Amount: 3})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, checkURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]interface{})
		assert.Equal(t, float64(0), data["remaining"])
	})

	t.Run("unknown resource type is 400", func(t *testing.T) {
		body, _ := json.Marshal(QuotaCheckRequest{ResourceType: "widgets", Amount: 1})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, checkURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("zero amount rejected by binding", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, checkURL, bytes.NewReader([]byte(`{"resource_type":"api_calls","amount":0}`)))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestQuotaHandler_ListAndSetLimits(t *testing.T) {
	quotas := newFakeQuotaManager()
	engine := setupQuotaRouter(quotas)
	tenantID := uuid.New()
	quotasURL := "/api/v1/tenants/" + tenantID.String() + "/quotas"

	t.Run("set limits", func(t *testing.T) {
		body, _ := json.Marshal(SetLimitsRequest{Limits: map[string]int64{
			"users":      25,
			"storage_gb": 100,
		}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, quotasURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("list reflects limits", func(t *testing.T) {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, quotasURL, nil)
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		items := decodeResponse(t, w).Data.([]interface{})
		assert.Len(t, items, 2)
	})

	t.Run("invalid resource type in limits is 400", func(t *testing.T) {
		body, _ := json.Marshal(SetLimitsRequest{Limits: map[string]int64{"widgets": 5}})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, quotasURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}
