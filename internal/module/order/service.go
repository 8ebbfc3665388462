// Package order creates subscription orders against the commerce backend.
// Creating an order reserves wallet funds server-side; this service validates
// input, performs the call, and reports the result. It never touches the
// payment lifecycle, that is the checkout orchestrator's job.
package order

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/adapter/backend"
	apperrors "github.com/tiffinbox/checkout/internal/shared/errors"
)

const startDateLayout = "2006-01-02"

// CreateInput is the validated input for order creation.
type CreateInput struct {
	PlanID      string `json:"plan_id"`
	AddressID   string `json:"address_id"`
	StartDate   string `json:"start_date"` // YYYY-MM-DD
	ApplyWallet bool   `json:"apply_wallet"`
}

// Created is the result of a successful order creation. Amounts are in minor
// currency units; WalletReservationMinor has already been held by the backend.
type Created struct {
	OrderID                string
	GatewayOrderID         string
	GatewayKeyID           string
	AmountMinor            int64
	Currency               string
	WalletReservationMinor int64
}

// BackendAPI is the slice of the commerce backend this service uses.
type BackendAPI interface {
	CreateOrder(ctx context.Context, req backend.CreateOrderRequest) (*backend.CreateOrderResponse, error)
}

// Service creates orders.
type Service struct {
	backend BackendAPI
	logger  *zap.Logger
	now     func() time.Time
}

// NewService creates an order service.
func NewService(api BackendAPI, logger *zap.Logger) *Service {
	return &Service{backend: api, logger: logger, now: time.Now}
}

// Create validates the input and creates the order. Validation failures
// return before any network call.
func (s *Service) Create(ctx context.Context, input CreateInput) (*Created, error) {
	if err := s.Validate(input); err != nil {
		return nil, err
	}

	resp, err := s.backend.CreateOrder(ctx, backend.CreateOrderRequest{
		PlanID:      input.PlanID,
		AddressID:   input.AddressID,
		StartDate:   input.StartDate,
		ApplyWallet: input.ApplyWallet,
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("order created",
		zap.String("order_id", resp.OrderID),
		zap.String("gateway_order_id", resp.GatewayOrderID),
		zap.Int64("amount_minor", resp.AmountMinor),
		zap.Int64("wallet_reservation_minor", resp.WalletReservationMinor))

	return &Created{
		OrderID:                resp.OrderID,
		GatewayOrderID:         resp.GatewayOrderID,
		GatewayKeyID:           resp.KeyID,
		AmountMinor:            resp.AmountMinor,
		Currency:               resp.Currency,
		WalletReservationMinor: resp.WalletReservationMinor,
	}, nil
}

// Validate checks the input without calling the backend. The orchestrator
// runs it before entering processing so validation failures never start an
// attempt.
func (s *Service) Validate(input CreateInput) error {
	if input.PlanID == "" {
		return apperrors.ValidationError("plan is required")
	}
	if input.AddressID == "" {
		return apperrors.ValidationError("delivery address is required")
	}
	if input.StartDate == "" {
		return apperrors.ValidationError("start date is required")
	}

	start, err := time.Parse(startDateLayout, input.StartDate)
	if err != nil {
		return apperrors.ValidationError("start date must be YYYY-MM-DD")
	}

	// Compare calendar dates in the clock's own zone; truncating the
	// instant would shift "today" across the UTC date line.
	y, mo, d := s.now().Date()
	today := time.Date(y, mo, d, 0, 0, 0, 0, time.UTC)
	if start.Before(today) {
		return apperrors.ValidationError("start date cannot be in the past")
	}

	return nil
}
