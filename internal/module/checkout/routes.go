package checkout

import (
	"net/url"

	"github.com/tiffinbox/checkout/internal/shared/config"
	apperrors "github.com/tiffinbox/checkout/internal/shared/errors"
)

// Storefront routes the service sends customers to. The storefront is a
// single-page app; with an empty base URL these are app-relative paths.
const (
	successPath  = "/checkout/success"
	errorPath    = "/checkout/error"
	checkoutPath = "/checkout"
	plansPath    = "/plans"
	walletPath   = "/account/wallet"
	loginPath    = "/login"
)

// RetryContext carries the order form values back to the checkout page so a
// failed attempt can be retried without retyping.
type RetryContext struct {
	PlanID    string
	AddressID string
	StartDate string
}

// Routes builds storefront outcome URLs.
type Routes struct {
	base string
}

// NewRoutes creates a route builder for the configured storefront.
func NewRoutes(cfg config.StorefrontConfig) *Routes {
	return &Routes{base: cfg.BaseURL}
}

// Success builds the success route. The plan name is display-only; the
// success page renders it without refetching the order.
func (r *Routes) Success(planName string) string {
	q := url.Values{}
	if planName != "" {
		q.Set("plan", planName)
	}
	return r.build(successPath, q)
}

// Error builds the outcome error route. Along with the outcome code and a
// customer-facing message it carries the retry context and the destination
// the page's retry action should lead to.
func (r *Routes) Error(code, message string, retry RetryContext) string {
	q := url.Values{}
	q.Set("code", code)
	if message != "" {
		q.Set("message", message)
	}
	if retry.PlanID != "" {
		q.Set("plan_id", retry.PlanID)
	}
	if retry.AddressID != "" {
		q.Set("address_id", retry.AddressID)
	}
	if retry.StartDate != "" {
		q.Set("start_date", retry.StartDate)
	}
	q.Set("retry_to", RetryDestination(code))
	return r.build(errorPath, q)
}

func (r *Routes) build(path string, q url.Values) string {
	u := r.base + path
	if encoded := q.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// RetryDestination returns where the error page's retry action goes for an
// outcome code. An expired session goes back through login; an insufficient
// wallet balance goes to the top-up page.
func RetryDestination(code string) string {
	switch code {
	case apperrors.OutcomePaymentFailed, apperrors.OutcomePaymentCancelled, apperrors.OutcomeNetworkError:
		return checkoutPath
	case apperrors.OutcomeSessionExpired:
		return loginPath
	case apperrors.OutcomeInsufficientBalance:
		return walletPath
	default:
		return plansPath
	}
}
