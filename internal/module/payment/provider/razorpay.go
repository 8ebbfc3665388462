package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	razorpay "github.com/razorpay/razorpay-go"
	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/shared/config"
	apperrors "github.com/tiffinbox/checkout/internal/shared/errors"
	"github.com/tiffinbox/checkout/internal/shared/metrics"
)

// RazorpayName is the registry name of the Razorpay gateway.
const RazorpayName = "razorpay"

// RazorpayGateway is the modal-flow Razorpay adapter. The gateway order is
// created by the commerce backend; this adapter builds the checkout options
// for the web client and authenticates the outcome callbacks.
type RazorpayGateway struct {
	cfg     config.RazorpayConfig
	client  *razorpay.Client
	loader  *ScriptLoader
	metrics *metrics.Metrics
	logger  *zap.Logger

	mu       sync.Mutex
	ready    bool
	inflight chan struct{}
	readyErr error
}

// NewRazorpayGateway creates the Razorpay adapter.
func NewRazorpayGateway(cfg config.RazorpayConfig, httpClient *http.Client, m *metrics.Metrics, logger *zap.Logger) *RazorpayGateway {
	return &RazorpayGateway{
		cfg:     cfg,
		client:  razorpay.NewClient(cfg.KeyID, cfg.KeySecret),
		loader:  NewScriptLoader(cfg.ScriptURL, httpClient),
		metrics: m,
		logger:  logger,
	}
}

// Name returns the gateway name.
func (g *RazorpayGateway) Name() string { return RazorpayName }

// Flow returns the modal flow.
func (g *RazorpayGateway) Flow() Flow { return FlowModal }

// EnsureReady verifies credentials and prefetches the checkout script once.
// Concurrent callers share one attempt; failure clears the memo for retry.
func (g *RazorpayGateway) EnsureReady(ctx context.Context) error {
	g.mu.Lock()
	if g.ready {
		g.mu.Unlock()
		return nil
	}
	if g.inflight != nil {
		done := g.inflight
		g.mu.Unlock()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
		g.mu.Lock()
		defer g.mu.Unlock()
		if g.ready {
			return nil
		}
		return g.readyErr
	}
	done := make(chan struct{})
	g.inflight = done
	g.mu.Unlock()

	err := g.initialize(ctx)

	g.mu.Lock()
	g.inflight = nil
	g.readyErr = err
	g.ready = err == nil
	close(done)
	g.mu.Unlock()

	g.metrics.SetGatewayReady(RazorpayName, err == nil)
	return err
}

func (g *RazorpayGateway) initialize(ctx context.Context) error {
	if g.cfg.KeyID == "" || g.cfg.KeySecret == "" {
		return apperrors.ScriptLoadError(RazorpayName, fmt.Errorf("missing credentials"))
	}

	// Credential preflight against the orders API.
	if _, err := g.client.Order.All(map[string]interface{}{"count": 1}, nil); err != nil {
		g.metrics.RecordScriptFetch(RazorpayName, "error")
		return apperrors.ScriptLoadError(RazorpayName, err)
	}

	if _, err := g.loader.Load(ctx); err != nil {
		g.metrics.RecordScriptFetch(RazorpayName, "error")
		g.logger.Warn("razorpay checkout script prefetch failed", zap.Error(err))
		return apperrors.ScriptLoadError(RazorpayName, err)
	}
	g.metrics.RecordScriptFetch(RazorpayName, "ok")
	return nil
}

// Script returns the cached checkout script, fetching it if needed.
func (g *RazorpayGateway) Script(ctx context.Context) ([]byte, error) {
	script, err := g.loader.Load(ctx)
	if err != nil {
		return nil, apperrors.ScriptLoadError(RazorpayName, err)
	}
	return script, nil
}

// BuildHandoff builds the native checkout options for the Razorpay modal.
func (g *RazorpayGateway) BuildHandoff(_ context.Context, spec HandoffSpec) (*Handoff, error) {
	if spec.GatewayOrderID == "" {
		return nil, apperrors.Internal("handoff requires a gateway order ID", nil)
	}

	keyID := spec.KeyID
	if keyID == "" {
		keyID = g.cfg.KeyID
	}

	options := map[string]any{
		"key":         keyID,
		"amount":      spec.AmountMinor,
		"currency":    spec.Currency,
		"name":        g.cfg.MerchantName,
		"description": spec.Description,
		"order_id":    spec.GatewayOrderID,
		"prefill": map[string]any{
			"name":    spec.CustomerName,
			"email":   spec.CustomerEmail,
			"contact": spec.CustomerContact,
		},
		"theme": map[string]any{
			"color": g.cfg.ThemeColor,
		},
	}

	return &Handoff{
		Provider: RazorpayName,
		Flow:     FlowModal,
		Options:  options,
	}, nil
}

// razorpaySuccessPayload is the handler response Razorpay posts on success.
type razorpaySuccessPayload struct {
	PaymentID string `json:"razorpay_payment_id"`
	OrderID   string `json:"razorpay_order_id"`
	Signature string `json:"razorpay_signature"`
}

// razorpayFailurePayload is the payment.failed payload from the modal.
type razorpayFailurePayload struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
		Source      string `json:"source"`
		Reason      string `json:"reason"`
		Metadata    struct {
			OrderID   string `json:"order_id"`
			PaymentID string `json:"payment_id"`
		} `json:"metadata"`
	} `json:"error"`
}

// ParseSuccess normalizes a success callback and verifies its signature so a
// tampered callback cannot mark the attempt successful.
func (g *RazorpayGateway) ParseSuccess(payload json.RawMessage) (*SuccessResult, error) {
	var p razorpaySuccessPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, apperrors.BadRequest("malformed gateway success payload")
	}
	if p.PaymentID == "" || p.OrderID == "" || p.Signature == "" {
		return nil, apperrors.BadRequest("gateway success payload missing fields")
	}

	if !g.verifySignature(p.OrderID, p.PaymentID, p.Signature) {
		g.logger.Warn("razorpay signature mismatch",
			zap.String("gateway_order_id", p.OrderID),
			zap.String("gateway_payment_id", p.PaymentID))
		return nil, apperrors.BadRequest("gateway signature verification failed")
	}

	return &SuccessResult{
		PaymentID: p.PaymentID,
		OrderID:   p.OrderID,
		Signature: p.Signature,
	}, nil
}

// ParseFailure normalizes a failure callback.
func (g *RazorpayGateway) ParseFailure(payload json.RawMessage) *FailureResult {
	var p razorpayFailurePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return &FailureResult{Description: "payment failed"}
	}

	description := p.Error.Description
	if description == "" {
		description = "payment failed"
	}

	return &FailureResult{
		Code:        p.Error.Code,
		Description: description,
		Source:      p.Error.Source,
		Reason:      p.Error.Reason,
		OrderID:     p.Error.Metadata.OrderID,
		PaymentID:   p.Error.Metadata.PaymentID,
	}
}

// verifySignature checks HMAC-SHA256(order_id|payment_id) with constant-time
// comparison.
func (g *RazorpayGateway) verifySignature(orderID, paymentID, signature string) bool {
	mac := hmac.New(sha256.New, []byte(g.cfg.KeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
