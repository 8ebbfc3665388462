package payment

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tiffinbox/checkout/internal/module/session"
)

// stateKey is the session store key holding the lifecycle snapshot.
const stateKey = "payment_state"

// Subscriber is notified after every committed lifecycle transition.
type Subscriber func(State)

// Store is the single-writer payment lifecycle store for one checkout
// session. All transitions go through the state machine; every committed
// transition is written through to the session store so a reload can
// rehydrate the attempt's identifiers.
type Store struct {
	mu        sync.Mutex
	sessionID string
	state     State
	sm        *StateMachine
	sessions  session.Store
	subs      []Subscriber
	logger    *zap.Logger
}

// Begin starts a payment attempt: idle or failed moves to processing and all
// outcome fields from a previous attempt are cleared. The transition happens
// before any network work so a double submit hits ErrAlreadyProcessing.
func (s *Store) Begin(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Status == StatusProcessing {
		s.mu.Unlock()
		return ErrAlreadyProcessing
	}
	if err := s.sm.Transition(&s.state, StatusProcessing); err != nil {
		s.mu.Unlock()
		return err
	}

	// Zero placeholder until the order returns from the backend.
	s.state = State{Status: StatusProcessing}
	s.persistLocked(ctx)
	state, subs := s.state, s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return nil
}

// Resume re-enters processing for a rehydrated attempt. Unlike Begin it
// keeps the order and gateway identifiers so the outcome found by
// reconciliation can be applied to them.
func (s *Store) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.state.Status == StatusProcessing {
		s.mu.Unlock()
		return ErrAlreadyProcessing
	}
	if err := s.sm.Transition(&s.state, StatusProcessing); err != nil {
		s.mu.Unlock()
		return err
	}
	s.persistLocked(ctx)
	state, subs := s.state, s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return nil
}

// AttachOrder populates the order and gateway fields for the running attempt.
func (s *Store) AttachOrder(ctx context.Context, att OrderAttachment) error {
	s.mu.Lock()
	if s.state.Status != StatusProcessing {
		s.mu.Unlock()
		return ErrNotProcessing
	}

	s.state.OrderID = att.OrderID
	s.state.GatewayOrderID = att.GatewayOrderID
	s.state.GatewayKeyID = att.GatewayKeyID
	s.state.AmountMinor = att.AmountMinor
	s.state.Currency = att.Currency
	s.state.WalletReservationMinor = att.WalletReservationMinor
	s.persistLocked(ctx)
	state, subs := s.state, s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return nil
}

// Succeed records a successful payment. A duplicate outcome for an attempt
// that already settled is a no-op, reported via applied=false.
func (s *Store) Succeed(ctx context.Context, gatewayPaymentID, gatewaySignature string) (applied bool, err error) {
	return s.settle(ctx, StatusSuccess, func(st *State) {
		st.GatewayPaymentID = gatewayPaymentID
		st.GatewaySignature = gatewaySignature
		st.ErrorMessage = ""
	})
}

// Fail records a failed payment with a customer-facing message.
func (s *Store) Fail(ctx context.Context, message string) (applied bool, err error) {
	return s.settle(ctx, StatusFailed, func(st *State) {
		st.ErrorMessage = message
	})
}

// Cancel records a user-dismissed attempt. Unlike Succeed and Fail, Cancel is
// a no-op from any non-processing state: the gateway fires its dismiss hook
// when the modal closes even after a success handler already ran.
func (s *Store) Cancel(ctx context.Context) (applied bool, err error) {
	s.mu.Lock()
	if s.state.Status != StatusProcessing {
		s.mu.Unlock()
		return false, nil
	}
	if err := s.sm.Transition(&s.state, StatusCancelled); err != nil {
		s.mu.Unlock()
		return false, err
	}
	s.persistLocked(ctx)
	state, subs := s.state, s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return true, nil
}

// Reset returns the lifecycle to idle and clears every field.
func (s *Store) Reset(ctx context.Context) {
	s.mu.Lock()
	s.state = State{Status: StatusIdle}
	s.persistLocked(ctx)
	state, subs := s.state, s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
}

// Snapshot returns a copy of the current state.
func (s *Store) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Subscribe registers a callback invoked after each committed transition.
func (s *Store) Subscribe(sub Subscriber) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.subs = append(s.subs, sub)
}

// settle applies an outcome to a processing attempt. Duplicate outcomes
// after the attempt settled are swallowed so exactly one of success, failure
// and dismissal wins.
func (s *Store) settle(ctx context.Context, to Status, apply func(*State)) (bool, error) {
	s.mu.Lock()
	if s.state.Status != StatusProcessing {
		status := s.state.Status
		s.mu.Unlock()
		if status == StatusSuccess || status == StatusFailed || status == StatusCancelled {
			return false, nil
		}
		return false, fmt.Errorf("%w: cannot settle from %s", ErrInvalidTransition, status)
	}
	if err := s.sm.Transition(&s.state, to); err != nil {
		s.mu.Unlock()
		return false, err
	}
	apply(&s.state)
	s.persistLocked(ctx)
	state, subs := s.state, s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, state)
	return true, nil
}

// persistLocked writes the allow-listed snapshot through to the session
// store. Persistence failures degrade to in-memory state only.
func (s *Store) persistLocked(ctx context.Context) {
	if s.sessions == nil {
		return
	}
	if err := session.SetJSON(ctx, s.sessions, s.sessionID, stateKey, snapshotOf(s.state)); err != nil {
		s.logger.Warn("payment state persistence failed",
			zap.String("session_id", s.sessionID), zap.Error(err))
	}
}

func (s *Store) subscribersLocked() []Subscriber {
	subs := make([]Subscriber, len(s.subs))
	copy(subs, s.subs)
	return subs
}

func notify(subs []Subscriber, state State) {
	for _, sub := range subs {
		sub(state)
	}
}

// Manager hands out the lifecycle store for each checkout session, hydrating
// it from the session store on first access.
type Manager struct {
	mu       sync.Mutex
	stores   map[string]*Store
	sessions session.Store
	sm       *StateMachine
	logger   *zap.Logger
}

// NewManager creates a lifecycle store manager.
func NewManager(sessions session.Store, logger *zap.Logger) *Manager {
	return &Manager{
		stores:   make(map[string]*Store),
		sessions: sessions,
		sm:       NewStateMachine(),
		logger:   logger,
	}
}

// ForSession returns the lifecycle store for a session, creating and
// hydrating it if needed. The same instance is returned for the lifetime of
// the process so concurrent callbacks serialize on one mutex.
func (m *Manager) ForSession(ctx context.Context, sessionID string) (*Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if store, ok := m.stores[sessionID]; ok {
		return store, nil
	}

	store := &Store{
		sessionID: sessionID,
		state:     State{Status: StatusIdle},
		sm:        m.sm,
		sessions:  m.sessions,
		logger:    m.logger,
	}

	var snapshot persistedState
	err := session.GetJSON(ctx, m.sessions, sessionID, stateKey, &snapshot)
	switch {
	case err == nil:
		store.state = snapshot.restore()
	case errors.Is(err, session.ErrNotFound):
		// First visit for this session
	default:
		return nil, fmt.Errorf("hydrate payment state: %w", err)
	}

	m.stores[sessionID] = store
	return store, nil
}

// Evict drops the in-process store for a session, used when the session ends.
func (m *Manager) Evict(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.stores, sessionID)
}
