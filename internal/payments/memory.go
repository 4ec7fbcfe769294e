package payments

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/holiman/uint256"

	"github.com/asset-exchange/backend/internal/apperr"
)

type MemoryTreasury struct {
	mu       sync.Mutex
	balances map[string]*uint256.Int
	reversed map[uuid.UUID]bool
}

func NewMemoryTreasury() *MemoryTreasury {
	return &MemoryTreasury{
		balances: make(map[string]*uint256.Int),
		reversed: make(map[uuid.UUID]bool),
	}
}

func (m *MemoryTreasury) Credit(_ context.Context, account string, amount *uint256.Int) error {
	if account == "" {
		return apperr.ErrInvalidIdentity
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	sum, overflow := new(uint256.Int).AddOverflow(m.balance(account), amount)
	if overflow {
		return fmt.Errorf("credit %s: balance overflow", account)
	}
	m.balances[account] = sum
	return nil
}

func (m *MemoryTreasury) Balance(_ context.Context, account string) (*uint256.Int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return new(uint256.Int).Set(m.balance(account)), nil
}

func (m *MemoryTreasury) Pay(_ context.Context, transfers ...Transfer) (*Receipt, error) {
	batch := Compact(transfers)
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.apply(batch); err != nil {
		return nil, err
	}
	return &Receipt{ID: uuid.New(), Transfers: batch, CreatedAt: time.Now()}, nil
}

func (m *MemoryTreasury) Reverse(_ context.Context, receipt *Receipt) error {
	if receipt == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.reversed[receipt.ID] {
		return nil
	}
	if err := m.apply(Inverse(receipt)); err != nil {
		return fmt.Errorf("reverse %s: %w", receipt.ID, err)
	}
	m.reversed[receipt.ID] = true
	return nil
}

// apply runs the batch against a scratch copy and swaps it in on success.
// Caller holds mu.
func (m *MemoryTreasury) apply(batch []Transfer) error {
	scratch := make(map[string]*uint256.Int, len(batch)*2)
	get := func(account string) *uint256.Int {
		if b, ok := scratch[account]; ok {
			return b
		}
		b := new(uint256.Int).Set(m.balance(account))
		scratch[account] = b
		return b
	}

	for _, t := range batch {
		if t.From == "" || t.To == "" {
			return apperr.ErrInvalidIdentity
		}
		if t.From == t.To {
			continue
		}
		from := get(t.From)
		if from.Lt(t.Amount) {
			return fmt.Errorf("%s: %w", t.From, apperr.ErrInsufficientFunds)
		}
		to := get(t.To)
		if _, overflow := new(uint256.Int).AddOverflow(to, t.Amount); overflow {
			return fmt.Errorf("%s: balance overflow", t.To)
		}
		from.Sub(from, t.Amount)
		to.Add(to, t.Amount)
	}

	for account, b := range scratch {
		m.balances[account] = b
	}
	return nil
}

func (m *MemoryTreasury) balance(account string) *uint256.Int {
	if b, ok := m.balances[account]; ok {
		return b
	}
	return new(uint256.Int)
}
