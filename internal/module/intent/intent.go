// Package intent remembers what the customer was buying across the login
// redirect: the selected plan, where they came from, and the pincode they
// checked for serviceability. Intent is session-scoped and survives reloads;
// it is cleared after a successful checkout, not on signout, so a returning
// customer lands back in their flow.
package intent

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/module/session"
	apperrors "github.com/tiffinbox/checkout/internal/shared/errors"
)

// Session store keys.
const (
	planKey    = "intent:plan"
	routeKey   = "intent:source_route"
	pincodeKey = "intent:checked_pincode"
)

// PlanSnapshot is the plan details captured at selection time, so the
// checkout page can render without refetching the catalog.
type PlanSnapshot struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	PriceMinor int64  `json:"price_minor"`
	Currency   string `json:"currency"`
	PeriodDays int    `json:"period_days"`
}

// PlanIntent couples the selected plan ID with its snapshot. The two are
// always written together; one without the other is rejected.
type PlanIntent struct {
	PlanID string       `json:"plan_id"`
	Plan   PlanSnapshot `json:"plan"`
}

// Intent is the full session intent returned to the client.
type Intent struct {
	Plan           *PlanIntent `json:"plan,omitempty"`
	SourceRoute    string      `json:"source_route,omitempty"`
	CheckedPincode string      `json:"checked_pincode,omitempty"`
}

// Store reads and writes checkout intent for a session.
type Store struct {
	sessions session.Store
	logger   *zap.Logger
}

// NewStore creates an intent store.
func NewStore(sessions session.Store, logger *zap.Logger) *Store {
	return &Store{sessions: sessions, logger: logger}
}

// SetPlan records the selected plan. The plan ID and snapshot must agree and
// both be present.
func (s *Store) SetPlan(ctx context.Context, sessionID string, p PlanIntent) error {
	if p.PlanID == "" || p.Plan.ID == "" {
		return apperrors.ValidationError("plan id and plan snapshot are both required")
	}
	if p.PlanID != p.Plan.ID {
		return apperrors.ValidationError("plan id does not match plan snapshot")
	}
	return session.SetJSON(ctx, s.sessions, sessionID, planKey, p)
}

// SetSourceRoute records where to return the customer after login.
func (s *Store) SetSourceRoute(ctx context.Context, sessionID, route string) error {
	return s.sessions.Set(ctx, sessionID, routeKey, []byte(route))
}

// SetCheckedPincode records the last serviceability-checked pincode.
func (s *Store) SetCheckedPincode(ctx context.Context, sessionID, pincode string) error {
	return s.sessions.Set(ctx, sessionID, pincodeKey, []byte(pincode))
}

// Get returns the session's intent. Absent fields are zero.
func (s *Store) Get(ctx context.Context, sessionID string) (*Intent, error) {
	intent := &Intent{}

	var plan PlanIntent
	err := session.GetJSON(ctx, s.sessions, sessionID, planKey, &plan)
	switch {
	case err == nil:
		intent.Plan = &plan
	case errors.Is(err, session.ErrNotFound):
	default:
		return nil, err
	}

	if route, err := s.sessions.Get(ctx, sessionID, routeKey); err == nil {
		intent.SourceRoute = string(route)
	} else if !errors.Is(err, session.ErrNotFound) {
		return nil, err
	}

	if pincode, err := s.sessions.Get(ctx, sessionID, pincodeKey); err == nil {
		intent.CheckedPincode = string(pincode)
	} else if !errors.Is(err, session.ErrNotFound) {
		return nil, err
	}

	return intent, nil
}

// Clear removes all intent for the session, called after a successful
// checkout.
func (s *Store) Clear(ctx context.Context, sessionID string) error {
	for _, key := range []string{planKey, routeKey, pincodeKey} {
		if err := s.sessions.Delete(ctx, sessionID, key); err != nil {
			s.logger.Warn("intent clear failed",
				zap.String("session_id", sessionID), zap.String("key", key), zap.Error(err))
			return err
		}
	}
	return nil
}
