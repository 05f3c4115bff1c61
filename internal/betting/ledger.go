// Package betting records wagers on entrants and pays out on the winner.
package betting

import (
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/lox/horserace/internal/race"
)

var (
	ErrInvalidSelection = errors.New("invalid selection")
	ErrInvalidAmount    = errors.New("invalid amount")
)

// Ledger holds the stakes for the current race, keyed by entrant ID. Stakes
// are tracked per entrant, not per bettor.
type Ledger struct {
	mu     sync.Mutex
	stakes map[uuid.UUID]decimal.Decimal
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{stakes: make(map[uuid.UUID]decimal.Decimal)}
}

// PlaceBet adds amount to the stake on an entrant. Repeated bets sum.
func (l *Ledger) PlaceBet(e *race.Entrant, amount decimal.Decimal) error {
	if e == nil {
		return fmt.Errorf("%w: no horse selected", ErrInvalidSelection)
	}
	if !amount.IsPositive() {
		return fmt.Errorf("%w: bet amount must be positive, got %s", ErrInvalidAmount, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.stakes[e.ID()] = l.stakes[e.ID()].Add(amount)
	return nil
}

// Stake returns the amount staked on an entrant this race.
func (l *Ledger) Stake(e *race.Entrant) decimal.Decimal {
	if e == nil {
		return decimal.Zero
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stakes[e.ID()]
}

// Pool returns the sum of all stakes.
func (l *Ledger) Pool() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.poolLocked()
}

func (l *Ledger) poolLocked() decimal.Decimal {
	pool := decimal.Zero
	for _, s := range l.stakes {
		pool = pool.Add(s)
	}
	return pool
}

// Odds returns (pool - stake) / stake for an entrant, and false when nothing
// is staked on it.
func (l *Ledger) Odds(e *race.Entrant) (decimal.Decimal, bool) {
	if e == nil {
		return decimal.Zero, false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	stake, ok := l.stakes[e.ID()]
	if !ok || !stake.IsPositive() {
		return decimal.Zero, false
	}
	return l.poolLocked().Sub(stake).Div(stake), true
}

// Payout computes stake * (1 + odds) for the winner. A nil winner or an
// unbacked winner pays nothing.
func (l *Ledger) Payout(winner *race.Entrant) decimal.Decimal {
	odds, ok := l.Odds(winner)
	if !ok {
		return decimal.Zero
	}
	return l.Stake(winner).Mul(decimal.NewFromInt(1).Add(odds))
}

// Settle pays out on the winner and clears the ledger, win or no win.
func (l *Ledger) Settle(winner *race.Entrant) decimal.Decimal {
	payout := l.Payout(winner)
	l.Clear()
	return payout
}

// Clear drops every stake.
func (l *Ledger) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.stakes)
}

// Len returns the number of entrants with a stake.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.stakes)
}
