package betting

import (
	"errors"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when a debit exceeds the balance.
var ErrInsufficientFunds = errors.New("not enough money")

// Wallet is the player's bankroll across races.
type Wallet struct {
	mu      sync.Mutex
	balance decimal.Decimal
}

// NewWallet creates a wallet holding the starting balance.
func NewWallet(balance decimal.Decimal) *Wallet {
	return &Wallet{balance: balance}
}

// Balance returns the current balance.
func (w *Wallet) Balance() decimal.Decimal {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.balance
}

// Debit removes amount from the wallet.
func (w *Wallet) Debit(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	if amount.GreaterThan(w.balance) {
		return fmt.Errorf("%w: balance %s, bet %s", ErrInsufficientFunds, w.balance.StringFixed(2), amount.StringFixed(2))
	}
	w.balance = w.balance.Sub(amount)
	return nil
}

// Credit adds winnings or a refund. Non-positive amounts are ignored.
func (w *Wallet) Credit(amount decimal.Decimal) {
	if !amount.IsPositive() {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	w.balance = w.balance.Add(amount)
}
