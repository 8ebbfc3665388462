package backend

// CreateOrderRequest is the order creation payload sent to the commerce backend.
type CreateOrderRequest struct {
	PlanID      string `json:"plan_id"`
	AddressID   string `json:"address_id"`
	StartDate   string `json:"start_date"` // YYYY-MM-DD
	ApplyWallet bool   `json:"apply_wallet"`
}

// CreateOrderResponse is the backend's response to order creation. The wallet
// reservation has already been placed by the time this returns.
type CreateOrderResponse struct {
	OrderID                string `json:"order_id"`
	GatewayOrderID         string `json:"gateway_order_id"`
	KeyID                  string `json:"key_id"`
	AmountMinor            int64  `json:"amount"`
	Currency               string `json:"currency"`
	WalletReservationMinor int64  `json:"wallet_reservation_amount"`
}

// OrderStatusResponse is the backend's order payment status.
type OrderStatusResponse struct {
	Status string `json:"status"` // paid, failed, pending, created
}

// Order payment statuses reported by the backend.
const (
	OrderStatusPaid   = "paid"
	OrderStatusFailed = "failed"
)

// walletBalanceResponse is the backend's wallet balance payload. Balance is
// null for customers who have never funded the wallet.
type walletBalanceResponse struct {
	Balance  *int64 `json:"balance"`
	Currency string `json:"currency"`
}

// errorResponse is the backend's error envelope.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}
