// Package payment owns the payment lifecycle for a checkout session: the
// status state machine, the per-session lifecycle store, and its persistence
// across page reloads.
package payment

// Status is the payment lifecycle status.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether the status only leaves via Reset.
func (s Status) IsTerminal() bool {
	return s == StatusSuccess || s == StatusCancelled
}

// State is the full payment lifecycle state for one checkout session.
// Amounts are in minor currency units.
type State struct {
	Status                 Status `json:"status"`
	OrderID                string `json:"order_id"`
	GatewayOrderID         string `json:"gateway_order_id"`
	GatewayKeyID           string `json:"gateway_key_id"`
	AmountMinor            int64  `json:"amount_minor"`
	Currency               string `json:"currency"`
	WalletReservationMinor int64  `json:"wallet_reservation_minor"`
	GatewayPaymentID       string `json:"gateway_payment_id"`
	GatewaySignature       string `json:"gateway_signature"`
	ErrorMessage           string `json:"error_message"`
}

// OrderAttachment carries the order fields populated once order creation
// returns from the backend.
type OrderAttachment struct {
	OrderID                string
	GatewayOrderID         string
	GatewayKeyID           string
	AmountMinor            int64
	Currency               string
	WalletReservationMinor int64
}

// persistedState is the reload snapshot. Status is deliberately absent: a
// session never rehydrates into processing or cancelled, it always wakes up
// idle with its identifiers intact.
type persistedState struct {
	OrderID                string `json:"order_id"`
	GatewayOrderID         string `json:"gateway_order_id"`
	GatewayKeyID           string `json:"gateway_key_id"`
	AmountMinor            int64  `json:"amount_minor"`
	Currency               string `json:"currency"`
	WalletReservationMinor int64  `json:"wallet_reservation_minor"`
	GatewayPaymentID       string `json:"gateway_payment_id"`
	GatewaySignature       string `json:"gateway_signature"`
	ErrorMessage           string `json:"error_message"`
}

func snapshotOf(s State) persistedState {
	return persistedState{
		OrderID:                s.OrderID,
		GatewayOrderID:         s.GatewayOrderID,
		GatewayKeyID:           s.GatewayKeyID,
		AmountMinor:            s.AmountMinor,
		Currency:               s.Currency,
		WalletReservationMinor: s.WalletReservationMinor,
		GatewayPaymentID:       s.GatewayPaymentID,
		GatewaySignature:       s.GatewaySignature,
		ErrorMessage:           s.ErrorMessage,
	}
}

func (p persistedState) restore() State {
	return State{
		Status:                 StatusIdle,
		OrderID:                p.OrderID,
		GatewayOrderID:         p.GatewayOrderID,
		GatewayKeyID:           p.GatewayKeyID,
		AmountMinor:            p.AmountMinor,
		Currency:               p.Currency,
		WalletReservationMinor: p.WalletReservationMinor,
		GatewayPaymentID:       p.GatewayPaymentID,
		GatewaySignature:       p.GatewaySignature,
		ErrorMessage:           p.ErrorMessage,
	}
}
