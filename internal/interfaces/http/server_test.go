package http_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/your-org/ops-ledger/internal/domain/order"
	apphttp "github.com/your-org/ops-ledger/internal/interfaces/http"
	"github.com/your-org/ops-ledger/internal/interfaces/http/routes"
	"github.com/your-org/ops-ledger/internal/pkg/auth"
	"github.com/your-org/ops-ledger/internal/pkg/lock"
	"github.com/your-org/ops-ledger/internal/pkg/logger"
	"github.com/your-org/ops-ledger/internal/testutil"
	"gorm.io/gorm"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type apiClient struct {
	t       *testing.T
	handler http.Handler
	token   string
}

func newAPI(t *testing.T) (*apiClient, *gorm.DB) {
	t.Helper()
	db := testutil.NewDB(t)
	cfg := testutil.Config()
	services := routes.NewServices(db, lock.NewLocal(), cfg, logger.Discard())
	server := apphttp.NewServer(cfg, db, nil, services, logger.Discard())

	token, err := auth.NewJWTManager(cfg).GenerateAccessToken(testutil.Actor, "ops@example.com", "dispatcher")
	require.NoError(t, err)

	return &apiClient{t: t, handler: server.Handler(), token: token}, db
}

func (a *apiClient) do(method, path string, body any) *httptest.ResponseRecorder {
	a.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

// data decodes the envelope and returns its data member
func (a *apiClient) data(w *httptest.ResponseRecorder, status int) map[string]any {
	a.t.Helper()
	require.Equal(a.t, status, w.Code, w.Body.String())
	var body map[string]any
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &body))
	data, _ := body["data"].(map[string]any)
	return data
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func id(v any) uint {
	return uint(v.(float64))
}

func TestHealthAndReadiness(t *testing.T) {
	api, _ := newAPI(t)
	api.token = ""

	w := api.do(http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", errorBody(t, w)["status"])
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	w = api.do(http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAPIRequiresToken(t *testing.T) {
	api, db := newAPI(t)
	v := testutil.Variant(t, db, 1)
	api.token = ""

	w := api.do(http.MethodGet, fmt.Sprintf("/api/v1/variants/%d/stock", v.ID), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, "UNAUTHORIZED", errorBody(t, w)["code"])
}

func TestErrorEnvelope(t *testing.T) {
	api, _ := newAPI(t)

	w := api.do(http.MethodGet, "/api/v1/variants/999/stock", nil)
	require.Equal(t, http.StatusNotFound, w.Code)
	body := errorBody(t, w)
	assert.Equal(t, "NOT_FOUND", body["kind"])
	assert.Equal(t, "VARIANT_NOT_FOUND", body["code"])

	w = api.do(http.MethodGet, "/api/v1/variants/abc/stock", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_ID", errorBody(t, w)["code"])

	w = api.do(http.MethodPost, "/api/v1/purchases", map[string]any{"items": []any{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	body = errorBody(t, w)
	assert.Equal(t, "VALIDATION_ERROR", body["kind"])
	assert.NotEmpty(t, body["fields"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/settlements", bytes.NewBufferString("{not json"))
	req.Header.Set("Authorization", "Bearer "+api.token)
	rec := httptest.NewRecorder()
	api.handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "MALFORMED_REQUEST", errorBody(t, rec)["code"])
}

func TestStockEndpoints(t *testing.T) {
	api, db := newAPI(t)
	v := testutil.Variant(t, db, 10)
	base := fmt.Sprintf("/api/v1/variants/%d", v.ID)

	data := api.data(api.do(http.MethodPost, base+"/damage", map[string]any{"quantity": 2, "notes": "crushed"}), http.StatusCreated)
	assert.Equal(t, float64(8), data["stock_after"])

	w := api.do(http.MethodPost, base+"/adjust", map[string]any{"delta": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	api.data(api.do(http.MethodPost, base+"/adjust", map[string]any{"delta": -1, "notes": "cycle count"}), http.StatusCreated)

	data = api.data(api.do(http.MethodGet, base+"/stock", nil), http.StatusOK)
	assert.Equal(t, float64(7), data["current_stock"])

	w = api.do(http.MethodGet, base+"/movements?limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := errorBody(t, w)
	assert.Len(t, body["data"], 2)
	assert.Equal(t, float64(3), body["pagination"].(map[string]any)["total"])

	data = api.data(api.do(http.MethodGet, base+"/reconcile", nil), http.StatusOK)
	assert.Equal(t, true, data["consistent"])

	w = api.do(http.MethodPost, base+"/damage", map[string]any{"quantity": 50})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INSUFFICIENT_STOCK", errorBody(t, w)["kind"])
}

func TestDispatchAndSettleOverHTTP(t *testing.T) {
	api, db := newAPI(t)

	vendor := testutil.Vendor(t, db)
	v := testutil.Variant(t, db, 0)
	r := testutil.Rider(t, db, 0)

	// Receive stock from a supplier
	data := api.data(api.do(http.MethodPost, "/api/v1/purchases", map[string]any{
		"vendor_id": vendor.ID,
		"items":     []map[string]any{{"variant_id": v.ID, "quantity": 5, "unit_cost": "120"}},
	}), http.StatusCreated)
	purchase := data["purchase"].(map[string]any)
	assert.Regexp(t, `^SUP-\d{4}-0001$`, purchase["supply_number"])
	assert.Equal(t, 5, testutil.Stock(t, db, v.ID))

	o := testutil.Order(t, db, order.OrderStatusConfirmed, order.PaymentMethodCOD,
		testutil.Line{Variant: v, Quantity: 2, Price: 650})

	data = api.data(api.do(http.MethodPost, fmt.Sprintf("/api/v1/orders/%d/pack", o.ID), nil), http.StatusOK)
	assert.Equal(t, "packed", data["status"])
	assert.Equal(t, 3, testutil.Stock(t, db, v.ID))

	data = api.data(api.do(http.MethodPost, "/api/v1/manifests", map[string]any{
		"rider_id":  r.ID,
		"order_ids": []uint{o.ID},
		"zone_name": "Gulberg",
	}), http.StatusCreated)
	manifestID := id(data["id"])
	assert.Equal(t, "1300", data["total_cod_expected"])

	api.data(api.do(http.MethodPost, fmt.Sprintf("/api/v1/manifests/%d/dispatch", manifestID), nil), http.StatusOK)

	outcome := fmt.Sprintf("/api/v1/manifests/%d/orders/%d/outcome", manifestID, o.ID)
	data = api.data(api.do(http.MethodPost, outcome, map[string]any{"outcome": "delivered"}), http.StatusOK)
	assert.Equal(t, float64(1), data["delivered_count"])

	w := api.do(http.MethodPost, outcome, map[string]any{"outcome": "delivered"})
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "OUTCOME_ALREADY_RECORDED", errorBody(t, w)["code"])

	data = api.data(api.do(http.MethodGet, fmt.Sprintf("/api/v1/riders/%d", r.ID), nil), http.StatusOK)
	assert.Equal(t, "1300", data["current_cash_balance"])

	w = api.do(http.MethodGet, fmt.Sprintf("/api/v1/manifests/%d/export", manifestID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), ".xlsx")
	assert.NotZero(t, w.Body.Len())

	// Over-settling is refused, then the exact amount settles the run
	w = api.do(http.MethodPost, "/api/v1/settlements", map[string]any{"rider_id": r.ID, "amount": "1400"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", errorBody(t, w)["kind"])

	data = api.data(api.do(http.MethodPost, "/api/v1/settlements", map[string]any{
		"rider_id":    r.ID,
		"amount":      "1300",
		"manifest_id": manifestID,
	}), http.StatusCreated)
	settlementID := id(data["id"])
	assert.Equal(t, "0", data["balance_after"])

	data = api.data(api.do(http.MethodGet, fmt.Sprintf("/api/v1/manifests/%d", manifestID), nil), http.StatusOK)
	assert.Equal(t, "settled", data["status"])

	verify := fmt.Sprintf("/api/v1/settlements/%d/verify", settlementID)
	data = api.data(api.do(http.MethodPost, verify, nil), http.StatusOK)
	assert.Equal(t, "verified", data["status"])

	w = api.do(http.MethodPost, verify, nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "SETTLEMENT_ALREADY_VERIFIED", errorBody(t, w)["code"])

	w = api.do(http.MethodGet, fmt.Sprintf("/api/v1/riders/%d/balance-logs", r.ID), nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, errorBody(t, w)["data"], 2)
}

func TestReturnsOverHTTP(t *testing.T) {
	api, db := newAPI(t)
	v := testutil.Variant(t, db, 4)
	o := testutil.Order(t, db, order.OrderStatusRejected, order.PaymentMethodCOD,
		testutil.Line{Variant: v, Quantity: 2, Price: 100})

	path := fmt.Sprintf("/api/v1/orders/%d/returns", o.ID)
	data := api.data(api.do(http.MethodPost, path, map[string]any{
		"items": []map[string]any{
			{"variant_id": v.ID, "quantity": 1, "condition": "good"},
			{"variant_id": v.ID, "quantity": 1, "condition": "damaged"},
		},
	}), http.StatusCreated)
	assert.Equal(t, float64(1), data["good_units"])
	assert.Equal(t, float64(1), data["damaged_units"])
	assert.Equal(t, 5, testutil.Stock(t, db, v.ID))

	w := api.do(http.MethodGet, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, errorBody(t, w)["data"], 1)
}

func TestBulkPackOverHTTP(t *testing.T) {
	api, db := newAPI(t)
	v := testutil.Variant(t, db, 1)
	ok := testutil.Order(t, db, order.OrderStatusConfirmed, order.PaymentMethodCOD, testutil.Line{Variant: v, Quantity: 1, Price: 100})
	short := testutil.Order(t, db, order.OrderStatusConfirmed, order.PaymentMethodCOD, testutil.Line{Variant: v, Quantity: 1, Price: 100})

	data := api.data(api.do(http.MethodPost, "/api/v1/orders/pack", map[string]any{
		"order_ids": []uint{ok.ID, short.ID},
	}), http.StatusOK)
	assert.Equal(t, float64(1), data["succeeded"])
	assert.Equal(t, float64(1), data["failed"])

	w := api.do(http.MethodPost, "/api/v1/orders/pack", map[string]any{"order_ids": []uint{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
