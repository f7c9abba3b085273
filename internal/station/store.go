package station

import (
	"sync"

	"binas/internal/register"
)

// BalanceStore is a station's copy of every user's balance.
// It's thread-safe and only moves forward in tag order.
type BalanceStore struct {
	mu   sync.RWMutex
	data map[string]register.BalanceView
}

// NewBalanceStore creates an empty store.
func NewBalanceStore() *BalanceStore {
	return &BalanceStore{
		data: make(map[string]register.BalanceView),
	}
}

// Get returns the stored view and whether one exists. Unknown users read as
// the zero view.
func (s *BalanceStore) Get(user string) (register.BalanceView, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	view, ok := s.data[user]
	return view, ok
}

// Apply stores view only if its tag is strictly greater than the stored one.
// Replays and late writes from older operations are dropped.
func (s *BalanceStore) Apply(user string, view register.BalanceView) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.data[user]; ok && view.Tag <= existing.Tag {
		return false
	}
	s.data[user] = view
	return true
}

// Len returns the number of users with a stored balance.
func (s *BalanceStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data)
}

// Clear drops every balance.
func (s *BalanceStore) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data = make(map[string]register.BalanceView)
}
