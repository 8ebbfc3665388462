// Package reconcile confirms payment outcomes with the commerce backend.
// After the gateway reports success, or after a reload interrupted an
// attempt, the order's authoritative status lives server-side; this package
// polls for it with a bounded number of fixed-interval attempts.
package reconcile

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/adapter/backend"
	"github.com/tiffinbox/checkout/internal/shared/config"
	"github.com/tiffinbox/checkout/internal/shared/metrics"
)

// Outcome is the result of a reconciliation run.
type Outcome string

const (
	// OutcomePaid means the backend confirmed payment.
	OutcomePaid Outcome = "paid"
	// OutcomeFailed means the backend recorded a failed payment.
	OutcomeFailed Outcome = "failed"
	// OutcomeUnconfirmed means polling exhausted without a settled status.
	// The customer gets a terminal "could not confirm" message with the
	// order ID as a support reference; no redirect is scheduled.
	OutcomeUnconfirmed Outcome = "unconfirmed"
)

// StatusFetcher fetches an order's payment status.
type StatusFetcher interface {
	OrderStatus(ctx context.Context, orderID string) (*backend.OrderStatusResponse, error)
}

// Reconciler polls the backend for an order's settled status.
type Reconciler struct {
	backend     StatusFetcher
	maxAttempts int
	interval    time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger

	// sleep is replaceable in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// New creates a reconciler from configuration.
func New(fetcher StatusFetcher, cfg config.ReconcileConfig, m *metrics.Metrics, logger *zap.Logger) *Reconciler {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	return &Reconciler{
		backend:     fetcher,
		maxAttempts: maxAttempts,
		interval:    interval,
		metrics:     m,
		logger:      logger,
		sleep:       sleepCtx,
	}
}

// Run polls until the order settles or attempts are exhausted. Transport
// errors consume an attempt like a pending poll; the backend may simply not
// have processed the gateway webhook yet.
func (r *Reconciler) Run(ctx context.Context, orderID string) (Outcome, error) {
	for attempt := 1; attempt <= r.maxAttempts; attempt++ {
		status, err := r.backend.OrderStatus(ctx, orderID)
		switch {
		case err != nil:
			r.metrics.RecordReconcilePoll("error")
			r.logger.Warn("order status poll failed",
				zap.String("order_id", orderID),
				zap.Int("attempt", attempt),
				zap.Error(err))
		case status.Status == backend.OrderStatusPaid:
			r.metrics.RecordReconcilePoll("paid")
			r.metrics.RecordReconcileOutcome(string(OutcomePaid))
			return OutcomePaid, nil
		case status.Status == backend.OrderStatusFailed:
			r.metrics.RecordReconcilePoll("failed")
			r.metrics.RecordReconcileOutcome(string(OutcomeFailed))
			return OutcomeFailed, nil
		default:
			r.metrics.RecordReconcilePoll("pending")
		}

		if attempt < r.maxAttempts {
			if err := r.sleep(ctx, r.interval); err != nil {
				return OutcomeUnconfirmed, err
			}
		}
	}

	r.logger.Warn("payment unconfirmed after polling",
		zap.String("order_id", orderID),
		zap.Int("attempts", r.maxAttempts))
	r.metrics.RecordReconcileOutcome(string(OutcomeUnconfirmed))
	return OutcomeUnconfirmed, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
