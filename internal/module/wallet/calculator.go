// Package wallet computes how an order total splits between the customer's
// wallet balance and the payment gateway. The split here is a preview only;
// the commerce backend performs the authoritative reservation when the order
// is created and settles it on payment confirmation.
package wallet

// Split divides totalMinor between the wallet and the gateway.
//
// balance is nil when the wallet has not been loaded yet; an unknown balance
// reserves nothing. A negative balance is treated as zero. Amounts are in
// minor currency units (paise).
func Split(totalMinor int64, balance *int64, applyWallet bool) (reservedMinor, remainderMinor int64) {
	if !applyWallet || balance == nil {
		return 0, totalMinor
	}

	available := *balance
	if available < 0 {
		available = 0
	}

	if available >= totalMinor {
		return totalMinor, 0
	}
	return available, totalMinor - available
}
