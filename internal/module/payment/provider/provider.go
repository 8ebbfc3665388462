// Package provider contains the payment gateway adapters. Each gateway
// normalizes its native checkout handoff and outcome payloads into the
// contract the checkout orchestrator works with.
package provider

import (
	"context"
	"encoding/json"
)

// Flow is how the customer completes payment with a gateway.
type Flow string

const (
	// FlowModal renders an in-page modal; outcomes arrive as callbacks.
	FlowModal Flow = "modal"
	// FlowRedirect sends the customer to a hosted page; outcomes are
	// resolved by reconciliation only.
	FlowRedirect Flow = "redirect"
)

// HandoffSpec is the provider-neutral input for building a checkout handoff.
type HandoffSpec struct {
	GatewayOrderID  string
	KeyID           string
	AmountMinor     int64
	Currency        string
	Description     string
	CustomerName    string
	CustomerEmail   string
	CustomerContact string
	SuccessURL      string // redirect flows only
	CancelURL       string // redirect flows only
}

// Handoff is what the web client needs to open the gateway checkout.
type Handoff struct {
	Provider    string         `json:"provider"`
	Flow        Flow           `json:"flow"`
	Options     map[string]any `json:"options,omitempty"`      // modal flow
	RedirectURL string         `json:"redirect_url,omitempty"` // redirect flow
}

// SuccessResult is a normalized successful payment callback.
type SuccessResult struct {
	PaymentID string
	OrderID   string
	Signature string
}

// FailureResult is a normalized payment failure callback.
type FailureResult struct {
	Code        string
	Description string
	Source      string
	Reason      string
	OrderID     string
	PaymentID   string
}

// Gateway is a payment gateway adapter.
type Gateway interface {
	// Name returns the gateway name.
	Name() string

	// EnsureReady initializes the gateway once. It is safe for concurrent
	// callers; a failed initialization may be retried.
	EnsureReady(ctx context.Context) error

	// Flow returns how this gateway completes payment.
	Flow() Flow

	// BuildHandoff builds the native checkout payload for the web client.
	BuildHandoff(ctx context.Context, spec HandoffSpec) (*Handoff, error)

	// ParseSuccess normalizes and authenticates a success callback payload.
	ParseSuccess(payload json.RawMessage) (*SuccessResult, error)

	// ParseFailure normalizes a failure callback payload.
	ParseFailure(payload json.RawMessage) *FailureResult
}

// ScriptServer is implemented by gateways whose checkout script this service
// caches and serves to the web client.
type ScriptServer interface {
	Script(ctx context.Context) ([]byte, error)
}
