package wallet

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/shared/cache"
	apperrors "github.com/tiffinbox/checkout/internal/shared/errors"
	"github.com/tiffinbox/checkout/internal/shared/metrics"
)

const cacheName = "wallet_balance"

// Balance is the customer's wallet balance as reported by the backend.
// AmountMinor is nil until a load has succeeded.
type Balance struct {
	AmountMinor *int64 `json:"amount_minor"`
	Currency    string `json:"currency"`
}

// SplitPreview is the wallet/gateway split shown on the checkout page.
type SplitPreview struct {
	TotalMinor     int64  `json:"total_minor"`
	ReservedMinor  int64  `json:"reserved_minor"`
	RemainderMinor int64  `json:"remainder_minor"`
	Currency       string `json:"currency"`
	BalanceLoaded  bool   `json:"balance_loaded"`
}

// BalanceFetcher loads the wallet balance from the commerce backend.
type BalanceFetcher interface {
	WalletBalance(ctx context.Context, userID string) (*Balance, error)
}

// Service provides wallet balance reads and split previews.
type Service struct {
	fetcher BalanceFetcher
	cache   *cache.JSONCache
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewService creates a wallet service. cache may be nil to disable caching.
func NewService(fetcher BalanceFetcher, c *cache.JSONCache, m *metrics.Metrics, logger *zap.Logger) *Service {
	return &Service{fetcher: fetcher, cache: c, metrics: m, logger: logger}
}

// Balance returns the wallet balance, served from cache when fresh.
func (s *Service) Balance(ctx context.Context, userID string) (*Balance, error) {
	if s.cache != nil {
		var cached Balance
		err := s.cache.Get(ctx, userID, &cached)
		if err == nil {
			s.metrics.RecordCacheHit(cacheName)
			return &cached, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			s.logger.Warn("wallet balance cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheMiss(cacheName)
	}

	balance, err := s.fetcher.WalletBalance(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, balance); err != nil {
			s.logger.Warn("wallet balance cache write failed", zap.Error(err))
		}
	}
	return balance, nil
}

// Preview computes the wallet split for an order total. A backend outage
// degrades to an unloaded balance rather than blocking checkout, since an
// unloaded balance reserves nothing.
func (s *Service) Preview(ctx context.Context, userID string, totalMinor int64, applyWallet bool) (*SplitPreview, error) {
	if totalMinor < 0 {
		return nil, apperrors.ValidationError("order total cannot be negative")
	}

	currency := "INR"
	var amount *int64
	balance, err := s.Balance(ctx, userID)
	switch {
	case err == nil:
		amount = balance.AmountMinor
		if balance.Currency != "" {
			currency = balance.Currency
		}
	case errors.Is(err, apperrors.ErrNetwork):
		s.logger.Warn("wallet balance unavailable, previewing without reservation",
			zap.String("user_id", userID), zap.Error(err))
	default:
		return nil, err
	}

	reserved, remainder := Split(totalMinor, amount, applyWallet)
	return &SplitPreview{
		TotalMinor:     totalMinor,
		ReservedMinor:  reserved,
		RemainderMinor: remainder,
		Currency:       currency,
		BalanceLoaded:  amount != nil,
	}, nil
}

// Invalidate drops the cached balance, used after an order reserves funds.
func (s *Service) Invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, userID); err != nil {
		s.logger.Warn("wallet balance cache invalidation failed", zap.Error(err))
	}
}
