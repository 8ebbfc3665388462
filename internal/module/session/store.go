// Package session provides the session-scoped key/value store that backs
// checkout state across page reloads and the login redirect. Values live for
// the lifetime of one browser session and expire with it.
package session

import (
	"context"
	"encoding/json"
	"errors"
)

// ErrNotFound is returned when a key is absent for the session.
var ErrNotFound = errors.New("session key not found")

// Store is a per-session key/value store. Writes refresh the session TTL so
// an active checkout never expires mid-flow.
type Store interface {
	Get(ctx context.Context, sessionID, key string) ([]byte, error)
	Set(ctx context.Context, sessionID, key string, value []byte) error
	Delete(ctx context.Context, sessionID, key string) error
}

// GetJSON reads key for the session and unmarshals it into dest.
func GetJSON(ctx context.Context, s Store, sessionID, key string, dest any) error {
	raw, err := s.Get(ctx, sessionID, key)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// SetJSON marshals value and stores it under key for the session.
func SetJSON(ctx context.Context, s Store, sessionID, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Set(ctx, sessionID, key, raw)
}
