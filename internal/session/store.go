// Package session holds the per-checkout Klarna session scratchpad.
// A Session identifies one checkout attempt with Klarna and is owned
// exclusively by the active checkout transaction; it is created on the
// first checkout render, refreshed on cart changes, and destroyed when
// the order is placed or a validation check fails.
package session

import (
	"sync"
)

// PaymentCategory is one payment method category Klarna made available
// for the session (e.g. pay_later, pay_over_time).
type PaymentCategory struct {
	Identifier string `json:"identifier"`
	Name       string `json:"name"`
}

// Session is the provider-side checkout context. SessionID and
// ClientToken are opaque, Klarna-assigned strings; Country fixes which
// currency is legal for the session.
type Session struct {
	SessionID         string            `json:"session_id"`
	ClientToken       string            `json:"client_token"`
	Country           string            `json:"purchase_country"`
	PaymentCategories []PaymentCategory `json:"payment_method_categories"`
}

// Store is the per-checkout key/value scratchpad for session data.
// One Store exists per checkout transaction; implementations must not
// be shared across concurrent customers.
type Store interface {
	// Get returns the current session and whether one is set.
	Get() (Session, bool)
	// Set replaces the stored session.
	Set(s Session)
	// Clear removes any stored session. Clearing an empty store is a no-op.
	Clear()
}

// MemoryStore is an in-memory Store implementation scoped to a single
// checkout transaction.
type MemoryStore struct {
	mu      sync.Mutex
	session Session
	present bool
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Get() (Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session, m.present
}

func (m *MemoryStore) Set(s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = s
	m.present = true
}

func (m *MemoryStore) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.session = Session{}
	m.present = false
}
