package provider

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/shared/config"
	"github.com/tiffinbox/checkout/internal/shared/metrics"
)

const testKeySecret = "test_secret"

func newTestRazorpay() *RazorpayGateway {
	cfg := config.RazorpayConfig{
		KeyID:        "rzp_test_key",
		KeySecret:    testKeySecret,
		ScriptURL:    "https://checkout.example/checkout.js",
		MerchantName: "TiffinBox",
		ThemeColor:   "#f97316",
	}
	return NewRazorpayGateway(cfg, nil, metrics.NewWith(prometheus.NewRegistry(), "rzp_test"), zap.NewNop())
}

func sign(orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(testKeySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestRazorpay_BuildHandoff(t *testing.T) {
	g := newTestRazorpay()

	handoff, err := g.BuildHandoff(context.Background(), HandoffSpec{
		GatewayOrderID: "order_rzp_9",
		KeyID:          "rzp_test_key",
		AmountMinor:    30000,
		Currency:       "INR",
		Description:    "Weekly Veg Plan",
		CustomerName:   "Asha",
		CustomerEmail:  "asha@example.com",
	})
	require.NoError(t, err)

	assert.Equal(t, RazorpayName, handoff.Provider)
	assert.Equal(t, FlowModal, handoff.Flow)
	assert.Equal(t, "order_rzp_9", handoff.Options["order_id"])
	assert.Equal(t, int64(30000), handoff.Options["amount"])
	assert.Equal(t, "INR", handoff.Options["currency"])

	prefill := handoff.Options["prefill"].(map[string]any)
	assert.Equal(t, "asha@example.com", prefill["email"])
}

func TestRazorpay_BuildHandoffRequiresOrder(t *testing.T) {
	g := newTestRazorpay()
	_, err := g.BuildHandoff(context.Background(), HandoffSpec{})
	assert.Error(t, err)
}

func TestRazorpay_ParseSuccess(t *testing.T) {
	g := newTestRazorpay()

	payload := fmt.Sprintf(`{
		"razorpay_payment_id": "pay_42",
		"razorpay_order_id": "order_rzp_9",
		"razorpay_signature": "%s"
	}`, sign("order_rzp_9", "pay_42"))

	result, err := g.ParseSuccess(json.RawMessage(payload))
	require.NoError(t, err)
	assert.Equal(t, "pay_42", result.PaymentID)
	assert.Equal(t, "order_rzp_9", result.OrderID)
}

func TestRazorpay_ParseSuccessRejectsBadSignature(t *testing.T) {
	g := newTestRazorpay()

	payload := `{
		"razorpay_payment_id": "pay_42",
		"razorpay_order_id": "order_rzp_9",
		"razorpay_signature": "forged"
	}`

	_, err := g.ParseSuccess(json.RawMessage(payload))
	assert.Error(t, err)
}

func TestRazorpay_ParseSuccessRejectsMissingFields(t *testing.T) {
	g := newTestRazorpay()

	_, err := g.ParseSuccess(json.RawMessage(`{"razorpay_payment_id": "pay_42"}`))
	assert.Error(t, err)

	_, err = g.ParseSuccess(json.RawMessage(`not json`))
	assert.Error(t, err)
}

func TestRazorpay_ParseFailure(t *testing.T) {
	g := newTestRazorpay()

	payload := `{
		"error": {
			"code": "BAD_REQUEST_ERROR",
			"description": "Payment failed due to insufficient funds",
			"source": "customer",
			"reason": "payment_failed",
			"metadata": {"order_id": "order_rzp_9", "payment_id": "pay_42"}
		}
	}`

	result := g.ParseFailure(json.RawMessage(payload))
	assert.Equal(t, "BAD_REQUEST_ERROR", result.Code)
	assert.Equal(t, "Payment failed due to insufficient funds", result.Description)
	assert.Equal(t, "order_rzp_9", result.OrderID)
}

func TestRazorpay_ParseFailureMalformed(t *testing.T) {
	g := newTestRazorpay()
	result := g.ParseFailure(json.RawMessage(`garbage`))
	assert.Equal(t, "payment failed", result.Description)
}
