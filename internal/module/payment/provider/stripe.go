package provider

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/shared/config"
	apperrors "github.com/tiffinbox/checkout/internal/shared/errors"
	"github.com/tiffinbox/checkout/internal/shared/metrics"
)

// StripeName is the registry name of the Stripe gateway.
const StripeName = "stripe"

// StripeGateway is the redirect-flow Stripe adapter, used for markets where
// the Razorpay modal is unavailable. Outcomes are resolved exclusively by
// payment reconciliation, never by browser callbacks.
type StripeGateway struct {
	cfg     config.StripeConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	once sync.Once
}

// NewStripeGateway creates the Stripe adapter.
func NewStripeGateway(cfg config.StripeConfig, m *metrics.Metrics, logger *zap.Logger) *StripeGateway {
	return &StripeGateway{cfg: cfg, metrics: m, logger: logger}
}

// Name returns the gateway name.
func (g *StripeGateway) Name() string { return StripeName }

// Flow returns the redirect flow.
func (g *StripeGateway) Flow() Flow { return FlowRedirect }

// EnsureReady installs the API key. Stripe needs no asset prefetch.
func (g *StripeGateway) EnsureReady(_ context.Context) error {
	if g.cfg.SecretKey == "" {
		return apperrors.ScriptLoadError(StripeName, nil)
	}
	g.once.Do(func() {
		stripe.Key = g.cfg.SecretKey
		g.metrics.SetGatewayReady(StripeName, true)
	})
	return nil
}

// BuildHandoff creates a hosted checkout session and returns its URL.
func (g *StripeGateway) BuildHandoff(_ context.Context, spec HandoffSpec) (*Handoff, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		ClientReferenceID: stripe.String(spec.GatewayOrderID),
		SuccessURL:        stripe.String(spec.SuccessURL),
		CancelURL:         stripe.String(spec.CancelURL),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Quantity: stripe.Int64(1),
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(spec.Currency)),
					UnitAmount: stripe.Int64(spec.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String(spec.Description),
					},
				},
			},
		},
	}

	if spec.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(spec.CustomerEmail)
	}

	sess, err := session.New(params)
	if err != nil {
		g.logger.Error("stripe checkout session creation failed", zap.Error(err))
		return nil, apperrors.NetworkError("could not create checkout session", err)
	}

	return &Handoff{
		Provider:    StripeName,
		Flow:        FlowRedirect,
		RedirectURL: sess.URL,
	}, nil
}

// ParseSuccess is unsupported: redirect flows settle through reconciliation.
func (g *StripeGateway) ParseSuccess(_ json.RawMessage) (*SuccessResult, error) {
	return nil, apperrors.BadRequest("stripe outcomes are resolved by reconciliation")
}

// ParseFailure is unsupported: redirect flows settle through reconciliation.
func (g *StripeGateway) ParseFailure(_ json.RawMessage) *FailureResult {
	return &FailureResult{Description: "payment failed"}
}
