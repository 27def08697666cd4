package billing

import (
	"context"
	"fmt"
	"sync"
)

// MemoryLedger is an in-process Ledger for tests and offline use.
type MemoryLedger struct {
	mu       sync.Mutex
	balances map[string]int64
	debits   int

	FailBalance error
	FailDebit   error
}

// NewMemoryLedger returns a ledger holding the given balances.
func NewMemoryLedger(balances map[string]int64) *MemoryLedger {
	m := &MemoryLedger{balances: make(map[string]int64, len(balances))}
	for k, v := range balances {
		m.balances[k] = v
	}
	return m
}

func (m *MemoryLedger) Balance(_ context.Context, currency string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailBalance != nil {
		return 0, m.FailBalance
	}
	return m.balances[currency], nil
}

func (m *MemoryLedger) Debit(_ context.Context, currency string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailDebit != nil {
		return 0, m.FailDebit
	}
	bal := m.balances[currency]
	if bal < amount {
		return bal, fmt.Errorf("%w: balance %d, debit %d", ErrInsufficientFunds, bal, amount)
	}
	m.balances[currency] = bal - amount
	m.debits++
	return bal - amount, nil
}

// Credit adds amount to the balance.
func (m *MemoryLedger) Credit(_ context.Context, currency string, amount int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.balances[currency] += amount
	return m.balances[currency], nil
}

// Debits returns the number of successful debits.
func (m *MemoryLedger) Debits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.debits
}
