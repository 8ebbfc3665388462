// Package checkout orchestrates the payment flow end to end: starting an
// attempt against the commerce backend, handing off to the payment gateway,
// applying the gateway's outcome callbacks, and resuming interrupted attempts
// through reconciliation.
package checkout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

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

// retryContextKey is the session store key holding the last order input, kept
// so the error page can offer a prefilled retry.
const retryContextKey = "checkout:last_input"

// StartRequest is the client's request to start a payment attempt.
type StartRequest struct {
	PlanID          string `json:"plan_id"`
	AddressID       string `json:"address_id"`
	StartDate       string `json:"start_date"`
	ApplyWallet     bool   `json:"apply_wallet"`
	CustomerName    string `json:"customer_name"`
	CustomerEmail   string `json:"customer_email"`
	CustomerContact string `json:"customer_contact"`
}

// StartResult is returned when an attempt reaches the gateway handoff.
type StartResult struct {
	State   payment.State     `json:"state"`
	Handoff *provider.Handoff `json:"handoff"`
}

// Redirect instructs the client to navigate to a storefront route, after
// DelayMillis if non-zero.
type Redirect struct {
	Route       string `json:"route"`
	DelayMillis int64  `json:"delay_millis,omitempty"`
}

// OutcomeResult is the response to a gateway outcome callback. Applied is
// false when the attempt had already settled and the callback was a no-op.
type OutcomeResult struct {
	Applied  bool          `json:"applied"`
	State    payment.State `json:"state"`
	Redirect *Redirect     `json:"redirect,omitempty"`
}

// ResumeResult is the response to a resume after reload. Unconfirmed means
// polling exhausted without a settled status; Message then carries the
// support reference.
type ResumeResult struct {
	State       payment.State `json:"state"`
	Redirect    *Redirect     `json:"redirect,omitempty"`
	Unconfirmed bool          `json:"unconfirmed,omitempty"`
	Message     string        `json:"message,omitempty"`
}

// FlowError is an attempt failure that already settled the lifecycle. It
// carries the outcome route the client should navigate to alongside the
// underlying error.
type FlowError struct {
	Err      error
	Redirect Redirect
}

func (e *FlowError) Error() string { return e.Err.Error() }

func (e *FlowError) Unwrap() error { return e.Err }

// Deps are the orchestrator's collaborators.
type Deps struct {
	Lifecycles *payment.Manager
	Gateways   *payment.ProviderRegistry
	Orders     *order.Service
	Intents    *intent.Store
	Wallet     *wallet.Service
	Reconciler *reconcile.Reconciler
	Sessions   session.Store
	Routes     *Routes
	Metrics    *metrics.Metrics
	Logger     *zap.Logger
}

// Orchestrator drives the checkout payment flow for each session.
type Orchestrator struct {
	lifecycles    *payment.Manager
	gateways      *payment.ProviderRegistry
	orders        *order.Service
	intents       *intent.Store
	wallet        *wallet.Service
	reconciler    *reconcile.Reconciler
	sessions      session.Store
	routes        *Routes
	redirectDelay time.Duration
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewOrchestrator creates a checkout orchestrator.
func NewOrchestrator(d Deps, cfg config.ReconcileConfig) *Orchestrator {
	delay := cfg.RedirectDelay
	if delay <= 0 {
		delay = 1500 * time.Millisecond
	}
	return &Orchestrator{
		lifecycles:    d.Lifecycles,
		gateways:      d.Gateways,
		orders:        d.Orders,
		intents:       d.Intents,
		wallet:        d.Wallet,
		reconciler:    d.Reconciler,
		sessions:      d.Sessions,
		routes:        d.Routes,
		redirectDelay: delay,
		metrics:       d.Metrics,
		logger:        d.Logger,
	}
}

// Start begins a payment attempt. Validation runs before the lifecycle enters
// processing; everything that can fail over the network runs after, so a
// failure settles the attempt and routes the customer to the error page.
func (o *Orchestrator) Start(ctx context.Context, sessionID, userID string, req StartRequest) (*StartResult, error) {
	input := order.CreateInput{
		PlanID:      req.PlanID,
		AddressID:   req.AddressID,
		StartDate:   req.StartDate,
		ApplyWallet: req.ApplyWallet,
	}
	if err := o.orders.Validate(input); err != nil {
		return nil, err
	}

	store, err := o.lifecycles.ForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	gw, err := o.gateways.Default()
	if err != nil {
		return nil, apperrors.Internal("no default payment gateway", err)
	}

	if err := store.Begin(ctx); err != nil {
		return nil, err
	}
	o.metrics.RecordCheckoutAttempt("started")
	o.saveRetryContext(ctx, sessionID, input)

	if err := gw.EnsureReady(ctx); err != nil {
		return nil, o.failAttempt(ctx, store, sessionID, err)
	}

	created, err := o.orders.Create(ctx, input)
	if err != nil {
		return nil, o.failAttempt(ctx, store, sessionID, err)
	}
	if created.WalletReservationMinor > 0 {
		// The reservation changed the balance; drop the cached value.
		o.wallet.Invalidate(ctx, userID)
	}

	if err := store.AttachOrder(ctx, payment.OrderAttachment{
		OrderID:                created.OrderID,
		GatewayOrderID:         created.GatewayOrderID,
		GatewayKeyID:           created.GatewayKeyID,
		AmountMinor:            created.AmountMinor,
		Currency:               created.Currency,
		WalletReservationMinor: created.WalletReservationMinor,
	}); err != nil {
		return nil, o.failAttempt(ctx, store, sessionID, err)
	}

	planName := o.planName(ctx, sessionID)
	handoff, err := gw.BuildHandoff(ctx, provider.HandoffSpec{
		GatewayOrderID:  created.GatewayOrderID,
		KeyID:           created.GatewayKeyID,
		AmountMinor:     created.AmountMinor,
		Currency:        created.Currency,
		Description:     orderDescription(planName),
		CustomerName:    req.CustomerName,
		CustomerEmail:   req.CustomerEmail,
		CustomerContact: req.CustomerContact,
		SuccessURL:      o.routes.Success(planName),
		CancelURL: o.routes.Error(apperrors.OutcomePaymentCancelled, "", RetryContext{
			PlanID:    input.PlanID,
			AddressID: input.AddressID,
			StartDate: input.StartDate,
		}),
	})
	if err != nil {
		return nil, o.failAttempt(ctx, store, sessionID, err)
	}

	o.logger.Info("checkout started",
		zap.String("session_id", sessionID),
		zap.String("order_id", created.OrderID),
		zap.String("provider", gw.Name()),
		zap.Int64("amount_minor", created.AmountMinor),
		zap.Int64("wallet_reservation_minor", created.WalletReservationMinor))

	return &StartResult{State: store.Snapshot(), Handoff: handoff}, nil
}

// HandleSuccess applies a gateway success callback. The payload is
// authenticated by the gateway adapter before the lifecycle settles; a
// callback for an attempt that already settled is reported as not applied.
func (o *Orchestrator) HandleSuccess(ctx context.Context, sessionID, providerName string, payload json.RawMessage) (*OutcomeResult, error) {
	store, gw, err := o.storeAndGateway(ctx, sessionID, providerName)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordGatewayCallback(gw.Name(), "success")

	result, err := gw.ParseSuccess(payload)
	if err != nil {
		return nil, err
	}

	if snap := store.Snapshot(); snap.Status == payment.StatusProcessing &&
		snap.GatewayOrderID != "" && result.OrderID != "" && snap.GatewayOrderID != result.OrderID {
		return nil, apperrors.BadRequest("callback order does not match the active attempt")
	}

	planName := o.planName(ctx, sessionID)
	applied, err := store.Succeed(ctx, result.PaymentID, result.Signature)
	if err != nil {
		return nil, err
	}
	if !applied {
		return &OutcomeResult{State: store.Snapshot()}, nil
	}

	o.metrics.RecordCheckoutAttempt("success")
	o.clearAfterSuccess(ctx, sessionID)

	return &OutcomeResult{
		Applied:  true,
		State:    store.Snapshot(),
		Redirect: &Redirect{Route: o.routes.Success(planName)},
	}, nil
}

// HandleFailure applies a gateway failure callback.
func (o *Orchestrator) HandleFailure(ctx context.Context, sessionID, providerName string, payload json.RawMessage) (*OutcomeResult, error) {
	store, gw, err := o.storeAndGateway(ctx, sessionID, providerName)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordGatewayCallback(gw.Name(), "failure")

	failure := gw.ParseFailure(payload)
	decline := apperrors.GatewayDeclined(failure.Description)

	applied, err := store.Fail(ctx, decline.Message)
	if err != nil {
		return nil, err
	}
	if !applied {
		return &OutcomeResult{State: store.Snapshot()}, nil
	}

	o.metrics.RecordCheckoutAttempt("failed")
	o.logger.Info("payment declined",
		zap.String("session_id", sessionID),
		zap.String("provider", gw.Name()),
		zap.String("decline_code", failure.Code),
		zap.String("source", failure.Source),
		zap.String("reason", failure.Reason))

	return &OutcomeResult{
		Applied: true,
		State:   store.Snapshot(),
		Redirect: &Redirect{
			Route: o.routes.Error(apperrors.OutcomePaymentFailed, decline.Message, o.loadRetryContext(ctx, sessionID)),
		},
	}, nil
}

// HandleDismiss applies a modal dismissal. Gateways fire the dismiss hook
// whenever the modal closes, including after a success or failure callback
// already settled the attempt, so a late dismiss is a no-op.
func (o *Orchestrator) HandleDismiss(ctx context.Context, sessionID, providerName string) (*OutcomeResult, error) {
	store, gw, err := o.storeAndGateway(ctx, sessionID, providerName)
	if err != nil {
		return nil, err
	}
	o.metrics.RecordGatewayCallback(gw.Name(), "dismiss")

	applied, err := store.Cancel(ctx)
	if err != nil {
		return nil, err
	}
	if !applied {
		return &OutcomeResult{State: store.Snapshot()}, nil
	}

	o.metrics.RecordCheckoutAttempt("cancelled")
	return &OutcomeResult{
		Applied: true,
		State:   store.Snapshot(),
		Redirect: &Redirect{
			Route: o.routes.Error(apperrors.OutcomePaymentCancelled, "payment was cancelled", o.loadRetryContext(ctx, sessionID)),
		},
	}, nil
}

// Resume picks up a session after a reload. A rehydrated attempt with an
// order reconciles against the backend: paid schedules exactly one delayed
// redirect to the success page, failed settles the attempt, and exhausted
// polling returns a terminal message with the order as support reference.
func (o *Orchestrator) Resume(ctx context.Context, sessionID string) (*ResumeResult, error) {
	store, err := o.lifecycles.ForSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	state := store.Snapshot()
	switch {
	case state.Status == payment.StatusSuccess:
		return &ResumeResult{
			State:    state,
			Redirect: &Redirect{Route: o.routes.Success(o.planName(ctx, sessionID))},
		}, nil
	case state.Status != payment.StatusIdle:
		return &ResumeResult{State: state}, nil
	case state.OrderID == "":
		return &ResumeResult{State: state}, nil
	}

	if err := store.Resume(ctx); err != nil {
		return nil, err
	}

	outcome, err := o.reconciler.Run(ctx, state.OrderID)
	if err != nil {
		return nil, err
	}

	switch outcome {
	case reconcile.OutcomePaid:
		planName := o.planName(ctx, sessionID)
		applied, err := store.Succeed(ctx, state.GatewayPaymentID, state.GatewaySignature)
		if err != nil {
			return nil, err
		}
		if applied {
			o.metrics.RecordCheckoutAttempt("success")
			o.clearAfterSuccess(ctx, sessionID)
		}
		return &ResumeResult{
			State: store.Snapshot(),
			Redirect: &Redirect{
				Route:       o.routes.Success(planName),
				DelayMillis: o.redirectDelay.Milliseconds(),
			},
		}, nil

	case reconcile.OutcomeFailed:
		if _, err := store.Fail(ctx, "payment failed"); err != nil {
			return nil, err
		}
		o.metrics.RecordCheckoutAttempt("failed")
		return &ResumeResult{
			State: store.Snapshot(),
			Redirect: &Redirect{
				Route: o.routes.Error(apperrors.OutcomePaymentFailed, "payment failed", o.loadRetryContext(ctx, sessionID)),
			},
		}, nil

	default:
		return &ResumeResult{
			State:       store.Snapshot(),
			Unconfirmed: true,
			Message:     fmt.Sprintf("We could not confirm your payment. Quote order %s when contacting support.", state.OrderID),
		}, nil
	}
}

// State returns the session's lifecycle snapshot.
func (o *Orchestrator) State(ctx context.Context, sessionID string) (payment.State, error) {
	store, err := o.lifecycles.ForSession(ctx, sessionID)
	if err != nil {
		return payment.State{}, err
	}
	return store.Snapshot(), nil
}

// Reset returns the session's lifecycle to idle and drops the in-process
// store; the next request rehydrates from the persisted idle snapshot.
func (o *Orchestrator) Reset(ctx context.Context, sessionID string) (payment.State, error) {
	store, err := o.lifecycles.ForSession(ctx, sessionID)
	if err != nil {
		return payment.State{}, err
	}
	store.Reset(ctx)
	state := store.Snapshot()
	o.lifecycles.Evict(sessionID)
	return state, nil
}

// failAttempt settles a running attempt after a post-begin failure and wraps
// the cause with the outcome route for the client.
func (o *Orchestrator) failAttempt(ctx context.Context, store *payment.Store, sessionID string, cause error) error {
	message := "payment could not be started"
	var appErr *apperrors.AppError
	if errors.As(cause, &appErr) {
		message = appErr.Message
	}

	if _, err := store.Fail(ctx, message); err != nil {
		o.logger.Warn("could not record attempt failure",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	o.metrics.RecordCheckoutAttempt("rejected")
	o.logger.Warn("checkout attempt failed",
		zap.String("session_id", sessionID), zap.Error(cause))

	code := apperrors.OutcomeCode(cause)
	return &FlowError{
		Err:      cause,
		Redirect: Redirect{Route: o.routes.Error(code, message, o.loadRetryContext(ctx, sessionID))},
	}
}

func (o *Orchestrator) storeAndGateway(ctx context.Context, sessionID, providerName string) (*payment.Store, provider.Gateway, error) {
	store, err := o.lifecycles.ForSession(ctx, sessionID)
	if err != nil {
		return nil, nil, err
	}

	var gw provider.Gateway
	if providerName == "" {
		gw, err = o.gateways.Default()
	} else {
		gw, err = o.gateways.Get(providerName)
	}
	if err != nil {
		return nil, nil, apperrors.BadRequest("unknown payment gateway")
	}
	return store, gw, nil
}

func (o *Orchestrator) saveRetryContext(ctx context.Context, sessionID string, input order.CreateInput) {
	if err := session.SetJSON(ctx, o.sessions, sessionID, retryContextKey, input); err != nil {
		o.logger.Warn("retry context persistence failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (o *Orchestrator) loadRetryContext(ctx context.Context, sessionID string) RetryContext {
	var input order.CreateInput
	if err := session.GetJSON(ctx, o.sessions, sessionID, retryContextKey, &input); err != nil {
		if !errors.Is(err, session.ErrNotFound) {
			o.logger.Warn("retry context load failed",
				zap.String("session_id", sessionID), zap.Error(err))
		}
		return RetryContext{}
	}
	return RetryContext{
		PlanID:    input.PlanID,
		AddressID: input.AddressID,
		StartDate: input.StartDate,
	}
}

func (o *Orchestrator) planName(ctx context.Context, sessionID string) string {
	it, err := o.intents.Get(ctx, sessionID)
	if err != nil || it.Plan == nil {
		return ""
	}
	return it.Plan.Plan.Name
}

// clearAfterSuccess removes the session's intent and retry context once a
// payment settled successfully.
func (o *Orchestrator) clearAfterSuccess(ctx context.Context, sessionID string) {
	if err := o.intents.Clear(ctx, sessionID); err != nil {
		o.logger.Warn("intent clear after success failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
	if err := o.sessions.Delete(ctx, sessionID, retryContextKey); err != nil && !errors.Is(err, session.ErrNotFound) {
		o.logger.Warn("retry context clear failed",
			zap.String("session_id", sessionID), zap.Error(err))
	}
}

func orderDescription(planName string) string {
	if planName != "" {
		return planName + " meal plan subscription"
	}
	return "Meal plan subscription"
}
