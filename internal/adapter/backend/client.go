// Package backend is the HTTP client for the commerce backend API. All order,
// wallet and confirmation traffic from the checkout service flows through it,
// behind a circuit breaker.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/module/wallet"
	"github.com/tiffinbox/checkout/internal/shared/config"
	apperrors "github.com/tiffinbox/checkout/internal/shared/errors"
	"github.com/tiffinbox/checkout/internal/shared/metrics"
	"github.com/tiffinbox/checkout/internal/utils/requestctx"
)

// userIDHeader carries the authenticated user to the backend. The backend
// trusts this service; the header is set from the verified session token only.
const userIDHeader = "X-User-ID"

type httpResult struct {
	status int
	body   []byte
}

// Client calls the commerce backend API.
type Client struct {
	http    *http.Client
	baseURL string
	breaker *gobreaker.CircuitBreaker[httpResult]
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewClient creates a backend client from configuration.
func NewClient(cfg config.BackendConfig, m *metrics.Metrics, logger *zap.Logger) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.DialTimeout,
			KeepAlive: cfg.KeepAlive,
		}).DialContext,
		MaxIdleConns:        cfg.MaxIdleConns,
		MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost,
		IdleConnTimeout:     cfg.IdleConnTimeout,
		TLSHandshakeTimeout: cfg.TLSHandshakeTimeout,
		ForceAttemptHTTP2:   true,
	}

	breaker := gobreaker.NewCircuitBreaker[httpResult](gobreaker.Settings{
		Name:        "commerce-backend",
		MaxRequests: cfg.BreakerMaxRequests,
		Interval:    cfg.BreakerInterval,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < cfg.BreakerMinRequests {
				return false
			}
			ratio := float64(counts.TotalFailures) / float64(counts.Requests)
			return ratio >= cfg.BreakerFailureRatio
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			m.RecordBreakerStateChange(from.String(), to.String())
			logger.Warn("backend circuit breaker state change",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})

	return &Client{
		http: &http.Client{
			Transport: transport,
			Timeout:   cfg.ResponseTimeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		breaker: breaker,
		metrics: m,
		logger:  logger,
	}
}

// CreateOrder creates an order, reserving wallet funds when requested.
func (c *Client) CreateOrder(ctx context.Context, req CreateOrderRequest) (*CreateOrderResponse, error) {
	result, err := c.do(ctx, http.MethodPost, "/api/v1/orders", req, "create_order")
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(result); err != nil {
		return nil, err
	}

	var resp CreateOrderResponse
	if err := json.Unmarshal(result.body, &resp); err != nil {
		return nil, apperrors.Internal("decode order response", err)
	}
	return &resp, nil
}

// OrderStatus fetches the payment status of an order.
func (c *Client) OrderStatus(ctx context.Context, orderID string) (*OrderStatusResponse, error) {
	path := fmt.Sprintf("/api/v1/orders/%s/status", orderID)
	result, err := c.do(ctx, http.MethodGet, path, nil, "order_status")
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(result); err != nil {
		return nil, err
	}

	var resp OrderStatusResponse
	if err := json.Unmarshal(result.body, &resp); err != nil {
		return nil, apperrors.Internal("decode order status response", err)
	}
	return &resp, nil
}

// WalletBalance fetches the customer's wallet balance.
func (c *Client) WalletBalance(ctx context.Context, userID string) (*wallet.Balance, error) {
	ctx = requestctx.WithUserID(ctx, userID)
	result, err := c.do(ctx, http.MethodGet, "/api/v1/wallet", nil, "wallet_balance")
	if err != nil {
		return nil, err
	}
	if err := c.checkStatus(result); err != nil {
		return nil, err
	}

	var resp walletBalanceResponse
	if err := json.Unmarshal(result.body, &resp); err != nil {
		return nil, apperrors.Internal("decode wallet balance response", err)
	}
	return &wallet.Balance{AmountMinor: resp.Balance, Currency: resp.Currency}, nil
}

// do executes one backend request through the circuit breaker. Transport
// failures and 5xx responses count against the breaker; 4xx responses do not.
func (c *Client) do(ctx context.Context, method, path string, body any, operation string) (httpResult, error) {
	start := time.Now()
	defer func() {
		c.metrics.RecordBackendRequest(operation, time.Since(start))
	}()

	result, err := c.breaker.Execute(func() (httpResult, error) {
		var reader io.Reader
		if body != nil {
			raw, err := json.Marshal(body)
			if err != nil {
				return httpResult{}, err
			}
			reader = bytes.NewReader(raw)
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return httpResult{}, err
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if userID := requestctx.UserID(ctx); userID != "" {
			req.Header.Set(userIDHeader, userID)
		}
		if requestID := requestctx.RequestID(ctx); requestID != "" {
			req.Header.Set("X-Request-ID", requestID)
		}

		resp, err := c.http.Do(req)
		if err != nil {
			return httpResult{}, err
		}
		defer resp.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return httpResult{}, err
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			return httpResult{}, &serverError{status: resp.StatusCode, body: raw}
		}
		return httpResult{status: resp.StatusCode, body: raw}, nil
	})
	if err == nil {
		return result, nil
	}

	var srvErr *serverError
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		return httpResult{}, apperrors.NetworkError("commerce backend unavailable", err)
	case errors.As(err, &srvErr):
		return httpResult{status: srvErr.status, body: srvErr.body}, nil
	default:
		c.logger.Warn("backend request failed",
			zap.String("operation", operation), zap.Error(err))
		return httpResult{}, apperrors.NetworkError("commerce backend request failed", err)
	}
}

// checkStatus maps non-2xx backend responses to application errors.
func (c *Client) checkStatus(result httpResult) error {
	if result.status >= http.StatusOK && result.status < http.StatusMultipleChoices {
		return nil
	}

	var envelope errorResponse
	_ = json.Unmarshal(result.body, &envelope)
	message := envelope.Error.Message
	if message == "" {
		message = http.StatusText(result.status)
	}

	switch {
	case result.status == http.StatusUnauthorized:
		return apperrors.SessionExpired("")
	case envelope.Error.Code == "insufficient_balance",
		result.status == http.StatusPaymentRequired && strings.Contains(strings.ToLower(message), "balance"):
		return apperrors.InsufficientBalance(message)
	default:
		return apperrors.ServerRejection(message, result.status)
	}
}

type serverError struct {
	status int
	body   []byte
}

func (e *serverError) Error() string {
	return fmt.Sprintf("backend returned %d", e.status)
}
