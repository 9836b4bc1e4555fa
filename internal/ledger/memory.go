package ledger

import (
	"context"
	"fmt"
	"sync"
)

// MemoryStore is an in-memory BalanceStore with the same atomicity contract
// as the database-backed one. Used in tests and local development.
type MemoryStore struct {
	mu       sync.Mutex
	balances map[string]int
}

// NewMemoryStore creates an empty in-memory balance store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{balances: make(map[string]int)}
}

// SetBalance sets a user's balance directly.
func (s *MemoryStore) SetBalance(userID string, credits int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balances[userID] = credits
}

// Balance returns a user's current balance.
func (s *MemoryStore) Balance(userID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balances[userID]
}

// DebitCredits implements BalanceStore.
func (s *MemoryStore) DebitCredits(ctx context.Context, userID string, amount int) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[userID]
	if !ok {
		return 0, false, fmt.Errorf("user %q: no balance", userID)
	}
	if balance < amount {
		return 0, false, nil
	}
	s.balances[userID] = balance - amount
	return balance - amount, true, nil
}

// CreditCredits implements BalanceStore.
func (s *MemoryStore) CreditCredits(ctx context.Context, userID string, amount int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	balance, ok := s.balances[userID]
	if !ok {
		return 0, fmt.Errorf("user %q: no balance", userID)
	}
	s.balances[userID] = balance + amount
	return balance + amount, nil
}

var _ BalanceStore = (*MemoryStore)(nil)
