package wallet

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type memHold struct {
	userID string
	amount int64
	open   bool
	payout int64
}

// MemoryLedger is a process-local Ledger used when no database is
// configured and in tests.
type MemoryLedger struct {
	mu       sync.Mutex
	initial  int64
	balances map[string]int64
	holds    map[string]*memHold
}

// NewMemoryLedger returns a ledger that opens wallets with initial chips.
func NewMemoryLedger(initial int64) *MemoryLedger {
	return &MemoryLedger{
		initial:  initial,
		balances: make(map[string]int64),
		holds:    make(map[string]*memHold),
	}
}

// SetBalance overwrites a user's available balance.
func (l *MemoryLedger) SetBalance(userID string, amount int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[userID] = amount
}

func (l *MemoryLedger) balance(userID string) int64 {
	b, ok := l.balances[userID]
	if !ok {
		b = l.initial
		l.balances[userID] = b
	}
	return b
}

// Balance implements Ledger.
func (l *MemoryLedger) Balance(_ context.Context, userID string) (int64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balance(userID), nil
}

// Authorize implements Ledger.
func (l *MemoryLedger) Authorize(_ context.Context, userID string, amount int64) (string, error) {
	if amount < 0 {
		return "", ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.balance(userID) < amount {
		return "", ErrInsufficientFunds
	}
	l.balances[userID] -= amount
	id := uuid.NewString()
	l.holds[id] = &memHold{userID: userID, amount: amount, open: true}
	return id, nil
}

// Adjust implements Ledger.
func (l *MemoryLedger) Adjust(_ context.Context, holdID string, amount int64) error {
	if amount < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holds[holdID]
	if !ok {
		return ErrUnknownHold
	}
	if !h.open {
		return ErrHoldClosed
	}
	delta := amount - h.amount
	if delta > l.balance(h.userID) {
		return ErrInsufficientFunds
	}
	l.balances[h.userID] -= delta
	h.amount = amount
	return nil
}

// Settle implements Ledger.
func (l *MemoryLedger) Settle(_ context.Context, holdID string, payout int64) error {
	if payout < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holds[holdID]
	if !ok {
		return ErrUnknownHold
	}
	if !h.open {
		return nil
	}
	h.open = false
	h.payout = payout
	l.balances[h.userID] = l.balance(h.userID) + payout
	return nil
}

// Cancel implements Ledger.
func (l *MemoryLedger) Cancel(_ context.Context, holdID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	h, ok := l.holds[holdID]
	if !ok {
		return ErrUnknownHold
	}
	h.open = false
	return nil
}

// Escrowed returns the chips currently reserved by open holds of userID.
func (l *MemoryLedger) Escrowed(userID string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	var total int64
	for _, h := range l.holds {
		if h.open && h.userID == userID {
			total += h.amount
		}
	}
	return total
}
