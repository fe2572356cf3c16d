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

	"github.com/meterd/backend/internal/domain/billing"
)

type fakeOverageBiller struct {
	invoices map[uuid.UUID][]*billing.Invoice
	// overageCents drives what a run produces; zero means within limits
	overageCents int64
}

func newFakeOverageBiller() *fakeOverageBiller {
	return &fakeOverageBiller{invoices: make(map[uuid.UUID][]*billing.Invoice)}
}

func (f *fakeOverageBiller) ListInvoices(ctx context.Context, tenantID uuid.UUID) ([]*billing.Invoice, error) {
	return f.invoices[tenantID], nil
}

func (f *fakeOverageBiller) RunForPeriod(ctx context.Context, tenantID uuid.UUID, month string) (*billing.Invoice, error) {
	for _, inv := range f.invoices[tenantID] {
		if inv.PeriodMonth == month && inv.BillingReason == billing.ReasonUsageOverage {
			return inv, nil
		}
	}
	if f.overageCents == 0 {
		return nil, nil
	}
	invoice, err := billing.NewOverageInvoice(tenantID, month, f.overageCents, "usd")
	if err != nil {
		return nil, err
	}
	f.invoices[tenantID] = append(f.invoices[tenantID], invoice)
	return invoice, nil
}

func setupInvoiceRouter(overage OverageBiller) *gin.Engine {
	engine := gin.New()
	NewInvoiceHandler(overage).RegisterRoutes(engine.Group("/api/v1"))
	return engine
}

func TestInvoiceHandler_RunOverage(t *testing.T) {
	overage := newFakeOverageBiller()
	overage.overageCents = 2500
	engine := setupInvoiceRouter(overage)
	tenantID := uuid.New()
	runURL := "/api/v1/tenants/" + tenantID.String() + "/overage-runs"

	t.Run("issues invoice", func(t *testing.T) {
		body, _ := json.Marshal(RunOverageRequest{Month: "2026-07"})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, runURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		data := decodeResponse(t, w).Data.(map[string]interface{})
		assert.Equal(t, float64(2500), data["amount_cents"])
		assert.Equal(t, "usage_overage", data["billing_reason"])
		assert.Equal(t, "2026-07", data["period_month"])
	})

	t.Run("re-run returns the same invoice", func(t *testing.T) {
		body, _ := json.Marshal(RunOverageRequest{Month: "2026-07"})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, runURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, overage.invoices[tenantID], 1)
	})

	t.Run("no overage is 204", func(t *testing.T) {
		overage.overageCents = 0
		body, _ := json.Marshal(RunOverageRequest{Month: "2026-08"})
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, runURL, bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		engine.ServeHTTP(w, req)

		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestInvoiceHandler_List(t *testing.T) {
	overage := newFakeOverageBiller()
	overage.overageCents = 1000
	engine := setupInvoiceRouter(overage)
	tenantID := uuid.New()

	_, err := overage.RunForPeriod(context.Background(), tenantID, "2026-06")
	require.NoError(t, err)
	_, err = overage.RunForPeriod(context.Background(), tenantID, "2026-07")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/tenants/"+tenantID.String()+"/invoices", nil)
	engine.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	items := decodeResponse(t, w).Data.([]interface{})
	assert.Len(t, items, 2)
}
