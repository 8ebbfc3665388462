package payment

import "errors"

var (
	// ErrInvalidTransition is returned when a lifecycle transition is not allowed.
	ErrInvalidTransition = errors.New("invalid payment status transition")
	// ErrAlreadyProcessing is returned when Begin is called mid-attempt.
	ErrAlreadyProcessing = errors.New("a payment attempt is already in progress")
	// ErrNotProcessing is returned when an order is attached outside an attempt.
	ErrNotProcessing = errors.New("no payment attempt in progress")
)
