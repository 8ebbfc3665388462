package checkout

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/adapter/backend"
	"github.com/tiffinbox/checkout/internal/module/intent"
	"github.com/tiffinbox/checkout/internal/module/order"
	"github.com/tiffinbox/checkout/internal/module/payment"
	"github.com/tiffinbox/checkout/internal/module/payment/provider"
	"github.com/tiffinbox/checkout/internal/module/reconcile"
	"github.com/tiffinbox/checkout/internal/module/session"
	"github.com/tiffinbox/checkout/internal/module/wallet"
	"github.com/tiffinbox/checkout/internal/shared/config"
	apperrors "github.com/tiffinbox/checkout/internal/shared/errors"
	"github.com/tiffinbox/checkout/internal/shared/metrics"
)

// stubBackend plays the commerce backend for the order service, the wallet
// service and the reconciler.
type stubBackend struct {
	createResp  *backend.CreateOrderResponse
	createErr   error
	createCalls int

	statuses    []any // string status or error, per poll
	statusCalls int
}

func (b *stubBackend) CreateOrder(_ context.Context, _ backend.CreateOrderRequest) (*backend.CreateOrderResponse, error) {
	b.createCalls++
	if b.createErr != nil {
		return nil, b.createErr
	}
	if b.createResp != nil {
		return b.createResp, nil
	}
	return &backend.CreateOrderResponse{
		OrderID:                "ord_123",
		GatewayOrderID:         "order_gw_9",
		KeyID:                  "key_test",
		AmountMinor:            30000,
		Currency:               "INR",
		WalletReservationMinor: 5000,
	}, nil
}

func (b *stubBackend) OrderStatus(_ context.Context, _ string) (*backend.OrderStatusResponse, error) {
	defer func() { b.statusCalls++ }()
	if b.statusCalls >= len(b.statuses) {
		return &backend.OrderStatusResponse{Status: "pending"}, nil
	}
	switch v := b.statuses[b.statusCalls].(type) {
	case error:
		return nil, v
	default:
		return &backend.OrderStatusResponse{Status: v.(string)}, nil
	}
}

func (b *stubBackend) WalletBalance(_ context.Context, _ string) (*wallet.Balance, error) {
	amount := int64(50000)
	return &wallet.Balance{AmountMinor: &amount, Currency: "INR"}, nil
}

// fakeGateway is a scriptable modal gateway for tests.
type fakeGateway struct {
	readyErr   error
	handoffErr error
	success    *provider.SuccessResult
	successErr error
	failure    *provider.FailureResult
}

func (g *fakeGateway) Name() string { return "fakepay" }

func (g *fakeGateway) Flow() provider.Flow { return provider.FlowModal }

func (g *fakeGateway) EnsureReady(_ context.Context) error { return g.readyErr }

func (g *fakeGateway) BuildHandoff(_ context.Context, spec provider.HandoffSpec) (*provider.Handoff, error) {
	if g.handoffErr != nil {
		return nil, g.handoffErr
	}
	return &provider.Handoff{
		Provider: "fakepay",
		Flow:     provider.FlowModal,
		Options:  map[string]any{"order_id": spec.GatewayOrderID, "amount": spec.AmountMinor},
	}, nil
}

func (g *fakeGateway) ParseSuccess(_ json.RawMessage) (*provider.SuccessResult, error) {
	if g.successErr != nil {
		return nil, g.successErr
	}
	if g.success != nil {
		return g.success, nil
	}
	return &provider.SuccessResult{PaymentID: "pay_42", OrderID: "order_gw_9", Signature: "sig_abc"}, nil
}

func (g *fakeGateway) ParseFailure(_ json.RawMessage) *provider.FailureResult {
	if g.failure != nil {
		return g.failure
	}
	return &provider.FailureResult{Code: "BAD_CARD", Description: "card declined"}
}

type env struct {
	orch       *Orchestrator
	sessions   session.Store
	lifecycles *payment.Manager
	intents    *intent.Store
	backend    *stubBackend
}

func newEnv(t *testing.T, b *stubBackend, gw provider.Gateway, sessions session.Store) *env {
	t.Helper()
	logger := zap.NewNop()
	m := metrics.NewWith(prometheus.NewRegistry(), "checkout_test")

	if sessions == nil {
		sessions = session.NewMemoryStore(time.Minute)
	}

	lifecycles := payment.NewManager(sessions, logger)
	registry := payment.NewProviderRegistry("fakepay")
	registry.Register(gw)

	intents := intent.NewStore(sessions, logger)
	orch := NewOrchestrator(Deps{
		Lifecycles: lifecycles,
		Gateways:   registry,
		Orders:     order.NewService(b, logger),
		Intents:    intents,
		Wallet:     wallet.NewService(b, nil, m, logger),
		Reconciler: reconcile.New(b, config.ReconcileConfig{MaxAttempts: 5, Interval: time.Millisecond}, m, logger),
		Sessions:   sessions,
		Routes:     NewRoutes(config.StorefrontConfig{}),
		Metrics:    m,
		Logger:     logger,
	}, config.ReconcileConfig{RedirectDelay: 1500 * time.Millisecond})

	return &env{orch: orch, sessions: sessions, lifecycles: lifecycles, intents: intents, backend: b}
}

func validStart() StartRequest {
	return StartRequest{
		PlanID:      "plan_1",
		AddressID:   "addr_1",
		StartDate:   "2030-01-01",
		ApplyWallet: true,
	}
}

func parseRoute(t *testing.T, route string) (string, url.Values) {
	t.Helper()
	u, err := url.Parse(route)
	require.NoError(t, err)
	return u.Path, u.Query()
}

func TestOrchestrator_StartSuccess(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	result, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)

	assert.Equal(t, payment.StatusProcessing, result.State.Status)
	assert.Equal(t, "ord_123", result.State.OrderID)
	assert.Equal(t, int64(5000), result.State.WalletReservationMinor)
	require.NotNil(t, result.Handoff)
	assert.Equal(t, "fakepay", result.Handoff.Provider)
	assert.Equal(t, "order_gw_9", result.Handoff.Options["order_id"])
}

func TestOrchestrator_StartValidationFailsBeforeAnything(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	req := validStart()
	req.StartDate = "yesterday"
	_, err := e.orch.Start(ctx, "sess-1", "user-1", req)

	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrBadRequest)
	assert.Equal(t, 0, e.backend.createCalls)

	state, err := e.orch.State(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusIdle, state.Status, "validation failures never start an attempt")
}

func TestOrchestrator_StartDoubleSubmitRejected(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)

	_, err = e.orch.Start(ctx, "sess-1", "user-1", validStart())
	assert.ErrorIs(t, err, payment.ErrAlreadyProcessing)
}

func TestOrchestrator_StartInsufficientBalance(t *testing.T) {
	b := &stubBackend{createErr: apperrors.InsufficientBalance("")}
	e := newEnv(t, b, &fakeGateway{}, nil)
	ctx := context.Background()

	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.Error(t, err)

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	path, q := parseRoute(t, flowErr.Redirect.Route)
	assert.Equal(t, "/checkout/error", path)
	assert.Equal(t, apperrors.OutcomeInsufficientBalance, q.Get("code"))
	assert.Equal(t, "/account/wallet", q.Get("retry_to"))
	assert.Equal(t, "plan_1", q.Get("plan_id"), "retry context is preserved")

	state, err := e.orch.State(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusFailed, state.Status)
	assert.NotEmpty(t, state.ErrorMessage)
}

func TestOrchestrator_StartScriptLoadFailureSkipsBackend(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{readyErr: apperrors.ScriptLoadError("fakepay", nil)}, nil)
	ctx := context.Background()

	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.Error(t, err)

	var flowErr *FlowError
	require.ErrorAs(t, err, &flowErr)
	_, q := parseRoute(t, flowErr.Redirect.Route)
	assert.Equal(t, apperrors.OutcomeNetworkError, q.Get("code"))
	assert.Equal(t, 0, e.backend.createCalls, "no order without a working gateway")
}

func TestOrchestrator_HandleSuccessAppliesAndClearsIntent(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	require.NoError(t, e.intents.SetPlan(ctx, "sess-1", intent.PlanIntent{
		PlanID: "plan_1",
		Plan:   intent.PlanSnapshot{ID: "plan_1", Name: "Executive Thali", PriceMinor: 30000, Currency: "INR"},
	}))
	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)

	result, err := e.orch.HandleSuccess(ctx, "sess-1", "fakepay", json.RawMessage(`{}`))
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, payment.StatusSuccess, result.State.Status)
	assert.Equal(t, "pay_42", result.State.GatewayPaymentID)
	require.NotNil(t, result.Redirect)
	path, q := parseRoute(t, result.Redirect.Route)
	assert.Equal(t, "/checkout/success", path)
	assert.Equal(t, "Executive Thali", q.Get("plan"))

	it, err := e.intents.Get(ctx, "sess-1")
	require.NoError(t, err)
	assert.Nil(t, it.Plan, "intent is cleared after a successful checkout")
}

func TestOrchestrator_HandleSuccessAfterSettledIsNoOp(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)
	first, err := e.orch.HandleSuccess(ctx, "sess-1", "fakepay", json.RawMessage(`{}`))
	require.NoError(t, err)
	require.True(t, first.Applied)

	second, err := e.orch.HandleSuccess(ctx, "sess-1", "fakepay", json.RawMessage(`{}`))
	require.NoError(t, err)
	assert.False(t, second.Applied)
	assert.Nil(t, second.Redirect)
	assert.Equal(t, payment.StatusSuccess, second.State.Status)
}

func TestOrchestrator_HandleSuccessOrderMismatchRejected(t *testing.T) {
	gw := &fakeGateway{success: &provider.SuccessResult{PaymentID: "pay_42", OrderID: "order_other", Signature: "sig"}}
	e := newEnv(t, &stubBackend{}, gw, nil)
	ctx := context.Background()

	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)

	_, err = e.orch.HandleSuccess(ctx, "sess-1", "fakepay", json.RawMessage(`{}`))
	require.Error(t, err)

	state, err := e.orch.State(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusProcessing, state.Status, "a mismatched callback never settles the attempt")
}

func TestOrchestrator_HandleFailure(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)

	result, err := e.orch.HandleFailure(ctx, "sess-1", "fakepay", json.RawMessage(`{}`))
	require.NoError(t, err)

	assert.True(t, result.Applied)
	assert.Equal(t, payment.StatusFailed, result.State.Status)
	assert.Equal(t, "card declined", result.State.ErrorMessage)
	require.NotNil(t, result.Redirect)
	path, q := parseRoute(t, result.Redirect.Route)
	assert.Equal(t, "/checkout/error", path)
	assert.Equal(t, apperrors.OutcomePaymentFailed, q.Get("code"))
	assert.Equal(t, "plan_1", q.Get("plan_id"))
}

func TestOrchestrator_LateDismissIsNoOp(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)
	_, err = e.orch.HandleSuccess(ctx, "sess-1", "fakepay", json.RawMessage(`{}`))
	require.NoError(t, err)

	// The modal close handler fires after the success callback already won.
	result, err := e.orch.HandleDismiss(ctx, "sess-1", "fakepay")
	require.NoError(t, err)
	assert.False(t, result.Applied)
	assert.Nil(t, result.Redirect)
	assert.Equal(t, payment.StatusSuccess, result.State.Status)
}

func TestOrchestrator_DismissCancelsProcessing(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)

	result, err := e.orch.HandleDismiss(ctx, "sess-1", "fakepay")
	require.NoError(t, err)
	assert.True(t, result.Applied)
	assert.Equal(t, payment.StatusCancelled, result.State.Status)
	require.NotNil(t, result.Redirect)
	_, q := parseRoute(t, result.Redirect.Route)
	assert.Equal(t, apperrors.OutcomePaymentCancelled, q.Get("code"))
}

func TestOrchestrator_ResumeWithoutOrderDoesNothing(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	result, err := e.orch.Resume(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusIdle, result.State.Status)
	assert.Nil(t, result.Redirect)
	assert.Equal(t, 0, e.backend.statusCalls)
}

func TestOrchestrator_ResumeConfirmsPaidOrder(t *testing.T) {
	sessions := session.NewMemoryStore(time.Minute)
	b := &stubBackend{statuses: []any{"pending", "paid"}}

	first := newEnv(t, b, &fakeGateway{}, sessions)
	ctx := context.Background()
	_, err := first.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)

	// A reload drops the in-process lifecycle; the session store remains.
	second := newEnv(t, b, &fakeGateway{}, sessions)
	result, err := second.orch.Resume(ctx, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, payment.StatusSuccess, result.State.Status)
	require.NotNil(t, result.Redirect)
	assert.Equal(t, int64(1500), result.Redirect.DelayMillis)
	path, _ := parseRoute(t, result.Redirect.Route)
	assert.Equal(t, "/checkout/success", path)
	assert.Equal(t, 2, b.statusCalls)
}

func TestOrchestrator_ResumeFailedOrder(t *testing.T) {
	sessions := session.NewMemoryStore(time.Minute)
	b := &stubBackend{statuses: []any{"failed"}}

	first := newEnv(t, b, &fakeGateway{}, sessions)
	ctx := context.Background()
	_, err := first.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)

	second := newEnv(t, b, &fakeGateway{}, sessions)
	result, err := second.orch.Resume(ctx, "sess-1")
	require.NoError(t, err)

	assert.Equal(t, payment.StatusFailed, result.State.Status)
	require.NotNil(t, result.Redirect)
	_, q := parseRoute(t, result.Redirect.Route)
	assert.Equal(t, apperrors.OutcomePaymentFailed, q.Get("code"))
}

func TestOrchestrator_ResumeUnconfirmedExhaustsPolling(t *testing.T) {
	sessions := session.NewMemoryStore(time.Minute)
	b := &stubBackend{}

	first := newEnv(t, b, &fakeGateway{}, sessions)
	ctx := context.Background()
	_, err := first.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)

	second := newEnv(t, b, &fakeGateway{}, sessions)
	result, err := second.orch.Resume(ctx, "sess-1")
	require.NoError(t, err)

	assert.True(t, result.Unconfirmed)
	assert.Nil(t, result.Redirect)
	assert.Contains(t, result.Message, "ord_123", "the order ID is the support reference")
	assert.Equal(t, 5, b.statusCalls)
}

func TestOrchestrator_ResumeAfterSuccessRedirectsAgain(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)
	_, err = e.orch.HandleSuccess(ctx, "sess-1", "fakepay", json.RawMessage(`{}`))
	require.NoError(t, err)

	result, err := e.orch.Resume(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, payment.StatusSuccess, result.State.Status)
	require.NotNil(t, result.Redirect)
	assert.Equal(t, 0, e.backend.statusCalls, "a settled attempt is not reconciled again")
}

func TestOrchestrator_Reset(t *testing.T) {
	e := newEnv(t, &stubBackend{}, &fakeGateway{}, nil)
	ctx := context.Background()

	_, err := e.orch.Start(ctx, "sess-1", "user-1", validStart())
	require.NoError(t, err)
	_, err = e.orch.HandleSuccess(ctx, "sess-1", "fakepay", json.RawMessage(`{}`))
	require.NoError(t, err)

	state, err := e.orch.Reset(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, payment.State{Status: payment.StatusIdle}, state)
}
