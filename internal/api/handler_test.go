package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"settlement-service/internal/apperr"
	"settlement-service/internal/gateway"
	"settlement-service/internal/models"
	"settlement-service/internal/service"
	"settlement-service/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubSettler struct {
	err error
}

func (s *stubSettler) ConfirmPayment(ctx context.Context, req *service.ConfirmRequest) (*service.ConfirmResponse, error) {
	return nil, s.err
}

type mockRequestPublisher struct {
	mock.Mock
}

func (m *mockRequestPublisher) PublishSettlementRequested(ctx context.Context, event *models.SettlementRequestedEvent) error {
	return m.Called(ctx, event).Error(0)
}

type failingPinger struct{}

func (failingPinger) Ping(ctx context.Context) error { return errors.New("connection refused") }

func newRouter(h *Handler) *gin.Engine {
	router := gin.New()
	h.SetupRoutes(router)
	return router
}

func newSettlementRouter(t *testing.T) (*gin.Engine, *store.MemoryStore) {
	t.Helper()

	s := store.NewMemoryStore()
	s.SeedStock(10, 3)
	s.SeedOrder(models.Order{OrderNo: "ORD-1", UserID: 7, TotalAmount: decimal.NewFromInt(15000)},
		[]models.OrderItem{{OptionID: 10, Quantity: 1, UnitPrice: decimal.NewFromInt(15000)}})

	saga := service.NewSagaOrchestrator(s, service.NewOrderService(), service.NewStockLedger(nil),
		service.NewSettlementService(), gateway.NewRegistry(gateway.NewKakaoFakeAdapter(true)),
		gateway.NewClient(gateway.RetryPolicy{MaxAttempts: 3}, 0))

	h := NewHandler(saga, service.NewPaymentService(s), nil).WithReadinessCheck("store", s)
	return newRouter(h), s
}

func doJSON(router *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func confirmBody() gin.H {
	return gin.H{
		"order_no":    "ORD-1",
		"provider":    models.ProviderKakao,
		"amount":      "15000",
		"payment_key": "pk_1",
	}
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) map[string]string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestConfirmPaymentEndpoint(t *testing.T) {
	router, s := newSettlementRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/payments/confirm", confirmBody(), map[string]string{headerUserID: "7"})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp service.ConfirmResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.PaymentStatusApproved, resp.Status)
	assert.Equal(t, models.ProviderKakao, resp.Provider)
	assert.NotEmpty(t, resp.GatewayTxID)

	entry, err := s.GetStock(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 2, entry.Quantity)

	w = doJSON(router, http.MethodGet, "/api/v1/orders/ORD-1/payments", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), resp.GatewayTxID)
}

func TestConfirmPaymentEndpointRejections(t *testing.T) {
	router, _ := newSettlementRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/payments/confirm", confirmBody(), nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doJSON(router, http.MethodPost, "/api/v1/payments/confirm", gin.H{"provider": "KAKAO"}, map[string]string{headerUserID: "7"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, codeInvalidRequest, decodeError(t, w)["code"])

	body := confirmBody()
	body["order_no"] = "ORD-404"
	w = doJSON(router, http.MethodPost, "/api/v1/payments/confirm", body, map[string]string{headerUserID: "7"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	errBody := decodeError(t, w)
	assert.Equal(t, string(apperr.CodeOrderNotFound), errBody["code"])
	assert.Equal(t, string(apperr.CategoryRejected), errBody["category"])

	w = doJSON(router, http.MethodPost, "/api/v1/payments/confirm", confirmBody(), map[string]string{headerUserID: "8"})
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestErrorCategoriesStayDistinct(t *testing.T) {
	tests := []struct {
		err      error
		status   int
		category apperr.Category
	}{
		{apperr.New(apperr.CodeInsufficientStock), http.StatusUnprocessableEntity, apperr.CategoryRejected},
		{apperr.New(apperr.CodeSettlementApprovalFailed), http.StatusPaymentRequired, apperr.CategoryDeclined},
		{apperr.New(apperr.CodeSettlementTimeout), http.StatusGatewayTimeout, apperr.CategoryDeclined},
		{apperr.New(apperr.CodeManualCheckRequired), http.StatusConflict, apperr.CategoryManualCheck},
		{apperr.New(apperr.CodeInconsistentState), http.StatusInternalServerError, apperr.CategoryInconsistent},
		{errors.New("pq: connection refused"), http.StatusInternalServerError, apperr.CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(string(apperr.CodeOf(tt.err)), func(t *testing.T) {
			h := NewHandler(&stubSettler{err: tt.err}, service.NewPaymentService(store.NewMemoryStore()), nil)
			w := doJSON(newRouter(h), http.MethodPost, "/api/v1/payments/confirm", confirmBody(), map[string]string{headerUserID: "7"})

			assert.Equal(t, tt.status, w.Code)
			body := decodeError(t, w)
			assert.Equal(t, string(tt.category), body["category"])
			assert.NotContains(t, body["message"], "pq:")
		})
	}
}

func TestConfirmPaymentAsyncEndpoint(t *testing.T) {
	publisher := &mockRequestPublisher{}
	publisher.On("PublishSettlementRequested", mock.Anything, mock.MatchedBy(func(e *models.SettlementRequestedEvent) bool {
		return e.UserID == 7 && e.OrderNo == "ORD-1" && e.IdempotencyKey == "idem-9" &&
			e.EventType == models.EventTypeSettlementRequested
	})).Return(nil)

	h := NewHandler(&stubSettler{}, service.NewPaymentService(store.NewMemoryStore()), publisher)
	w := doJSON(newRouter(h), http.MethodPost, "/api/v1/payments/confirm/async", confirmBody(),
		map[string]string{headerUserID: "7", headerIdempotencyKey: "idem-9"})

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Contains(t, w.Body.String(), "idem-9")
	publisher.AssertExpectations(t)
}

func TestConfirmPaymentAsyncDisabled(t *testing.T) {
	h := NewHandler(&stubSettler{}, service.NewPaymentService(store.NewMemoryStore()), nil)
	w := doJSON(newRouter(h), http.MethodPost, "/api/v1/payments/confirm/async", confirmBody(), map[string]string{headerUserID: "7"})

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestGetPaymentEndpoint(t *testing.T) {
	router, _ := newSettlementRouter(t)

	w := doJSON(router, http.MethodPost, "/api/v1/payments/confirm", confirmBody(), map[string]string{headerUserID: "7"})
	require.Equal(t, http.StatusOK, w.Code)
	var resp service.ConfirmResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	w = doJSON(router, http.MethodGet, "/api/v1/payments/"+jsonInt(resp.PaymentID), nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var detail service.PaymentDetail
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &detail))
	require.Len(t, detail.Logs, 2)
	assert.Equal(t, models.PaymentEventApproved, detail.Logs[1].EventType)

	w = doJSON(router, http.MethodGet, "/api/v1/payments/999", nil, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(router, http.MethodGet, "/api/v1/payments/abc", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestManualChecksEndpoint(t *testing.T) {
	router, _ := newSettlementRouter(t)

	w := doJSON(router, http.MethodGet, "/api/v1/payment-logs/manual-checks?limit=10", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"logs":[]}`, w.Body.String())

	w = doJSON(router, http.MethodGet, "/api/v1/payment-logs/manual-checks?limit=x", nil, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestHealthAndReadiness(t *testing.T) {
	router, _ := newSettlementRouter(t)

	w := doJSON(router, http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(router, http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	h := NewHandler(&stubSettler{}, service.NewPaymentService(store.NewMemoryStore()), nil).
		WithReadinessCheck("redis", failingPinger{})
	w = doJSON(newRouter(h), http.MethodGet, "/ready", nil, nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func jsonInt(v int64) string {
	b, _ := json.Marshal(v)
	return string(b)
}
