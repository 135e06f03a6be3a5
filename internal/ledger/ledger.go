// Package ledger is the custodial currency adapter used by the lottery.
package ledger

import (
	"context"
	"sync"

	"github.com/google/logger"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInvalidAmount     = errors.New("amount must be a positive whole number of units")
)

// Ledger moves currency between holders and the lottery's custody account.
type Ledger interface {
	TransferIn(ctx context.Context, from string, amount decimal.Decimal) error
	TransferOut(ctx context.Context, to string, amount decimal.Decimal) error
	BalanceOf(ctx context.Context, holder string) (decimal.Decimal, error)
}

// Book is an in-memory Ledger. Amounts are whole base units.
type Book struct {
	mu       sync.Mutex
	custody  string
	balances map[string]decimal.Decimal
}

// NewBook creates a Book whose custody account is named custody.
func NewBook(custody string) *Book {
	return &Book{
		custody:  custody,
		balances: make(map[string]decimal.Decimal),
	}
}

// Credit mints amount to holder. Used for genesis balances and funding.
func (b *Book) Credit(holder string, amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(0)) {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.balances[holder] = b.balances[holder].Add(amount)
	return nil
}

// TransferIn moves amount from a holder into custody.
func (b *Book) TransferIn(ctx context.Context, from string, amount decimal.Decimal) error {
	return b.move(from, b.custody, amount)
}

// TransferOut moves amount from custody to a holder.
func (b *Book) TransferOut(ctx context.Context, to string, amount decimal.Decimal) error {
	return b.move(b.custody, to, amount)
}

// BalanceOf returns the balance of holder.
func (b *Book) BalanceOf(ctx context.Context, holder string) (decimal.Decimal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.balances[holder], nil
}

func (b *Book) move(from, to string, amount decimal.Decimal) error {
	if !amount.IsPositive() || !amount.Equal(amount.Truncate(0)) {
		return ErrInvalidAmount
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.balances[from].LessThan(amount) {
		return errors.Wrapf(ErrInsufficientFunds, "%s has %s, needs %s", from, b.balances[from], amount)
	}
	b.balances[from] = b.balances[from].Sub(amount)
	b.balances[to] = b.balances[to].Add(amount)
	logger.Infof("ledger: %s -> %s %s", from, to, amount)
	return nil
}

// Denomination converts between whole tokens and base units.
type Denomination struct {
	Decimals int32
}

// ToUnits converts a token amount to base units, truncating anything
// finer than one unit.
func (d Denomination) ToUnits(tokens decimal.Decimal) decimal.Decimal {
	return tokens.Shift(d.Decimals).Truncate(0)
}

// FromUnits converts base units to tokens.
func (d Denomination) FromUnits(units decimal.Decimal) decimal.Decimal {
	return units.Shift(-d.Decimals)
}
