package backend

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/shared/config"
	apperrors "github.com/tiffinbox/checkout/internal/shared/errors"
	"github.com/tiffinbox/checkout/internal/shared/metrics"
	"github.com/tiffinbox/checkout/internal/utils/requestctx"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := config.BackendConfig{
		BaseURL:             srv.URL,
		DialTimeout:         time.Second,
		ResponseTimeout:     2 * time.Second,
		KeepAlive:           time.Second,
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     time.Second,
		TLSHandshakeTimeout: time.Second,
		BreakerMaxRequests:  1,
		BreakerInterval:     time.Minute,
		BreakerTimeout:      time.Minute,
		BreakerMinRequests:  100, // keep the breaker closed in tests
		BreakerFailureRatio: 0.9,
	}
	return NewClient(cfg, metrics.NewWith(prometheus.NewRegistry(), "backend_test"), zap.NewNop())
}

func TestClient_CreateOrder(t *testing.T) {
	var gotUserID string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/v1/orders", r.URL.Path)
		gotUserID = r.Header.Get("X-User-ID")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"order_id": "ord_123",
			"gateway_order_id": "order_rzp_9",
			"key_id": "rzp_test_key",
			"amount": 30000,
			"currency": "INR",
			"wallet_reservation_amount": 5000
		}`))
	}))

	ctx := contextWithUser("user-1")
	resp, err := client.CreateOrder(ctx, CreateOrderRequest{
		PlanID:    "plan-weekly",
		AddressID: "addr-1",
		StartDate: "2026-09-01",
	})
	require.NoError(t, err)

	assert.Equal(t, "ord_123", resp.OrderID)
	assert.Equal(t, "order_rzp_9", resp.GatewayOrderID)
	assert.Equal(t, "rzp_test_key", resp.KeyID)
	assert.Equal(t, int64(30000), resp.AmountMinor)
	assert.Equal(t, int64(5000), resp.WalletReservationMinor)
	assert.Equal(t, "user-1", gotUserID)
}

func TestClient_CreateOrderSessionExpired(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))

	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{})
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)
}

func TestClient_CreateOrderInsufficientBalance(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error": {"code": "insufficient_balance", "message": "wallet balance too low"}}`))
	}))

	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{})
	require.Error(t, err)
	assert.Equal(t, apperrors.OutcomeInsufficientBalance, apperrors.OutcomeCode(err))
}

func TestClient_CreateOrderServerRejection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"code": "invalid_plan", "message": "plan does not exist"}}`))
	}))

	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServerRejected)
	assert.Equal(t, http.StatusBadRequest, apperrors.GetStatusCode(err))
}

func TestClient_ServerErrorIsRejection(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))

	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrServerRejected)
}

func TestClient_TransportErrorIsNetworkError(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	// Point at a closed port
	client.baseURL = "http://127.0.0.1:1"

	_, err := client.CreateOrder(context.Background(), CreateOrderRequest{})
	assert.ErrorIs(t, err, apperrors.ErrNetwork)
}

func TestClient_OrderStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/orders/ord_123/status", r.URL.Path)
		w.Write([]byte(`{"status": "paid"}`))
	}))

	resp, err := client.OrderStatus(context.Background(), "ord_123")
	require.NoError(t, err)
	assert.Equal(t, OrderStatusPaid, resp.Status)
}

func TestClient_WalletBalance(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/v1/wallet", r.URL.Path)
		w.Write([]byte(`{"balance": 800, "currency": "INR"}`))
	}))

	balance, err := client.WalletBalance(context.Background(), "user-1")
	require.NoError(t, err)
	require.NotNil(t, balance.AmountMinor)
	assert.Equal(t, int64(800), *balance.AmountMinor)
}

func TestClient_WalletBalanceNull(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"balance": null, "currency": "INR"}`))
	}))

	balance, err := client.WalletBalance(context.Background(), "user-1")
	require.NoError(t, err)
	assert.Nil(t, balance.AmountMinor)
}

func contextWithUser(userID string) context.Context {
	return requestctx.WithUserID(context.Background(), userID)
}
