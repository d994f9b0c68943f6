package ledger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrInsufficientFunds is returned when a transfer would overdraw an account.
var ErrInsufficientFunds = errors.New("insufficient funds")

// Ledger tracks internal balances for every participant plus the escrow
// accounts the engine itself holds (auction escrow, insurance escrow).
// Amounts are integral base units carried as decimals.
//
// Every transfer is atomic: both sides move under one lock, so total supply
// is conserved no matter how callers interleave.
type Ledger struct {
	mu       sync.Mutex
	balances map[common.Address]decimal.Decimal
	minted   decimal.Decimal
}

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		balances: make(map[common.Address]decimal.Decimal),
	}
}

// Mint credits an account out of thin air. Used for genesis funding and for
// modeling external value entering the system (a bidder's wallet deposit).
func (l *Ledger) Mint(account common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() || amount.IsZero() {
		return fmt.Errorf("mint amount must be positive, got %s", amount.String())
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.balances[account] = l.balances[account].Add(amount)
	l.minted = l.minted.Add(amount)

	log.Debug().
		Str("account", account.Hex()).
		Str("amount", amount.String()).
		Msg("ledger: mint")
	return nil
}

// Transfer moves amount from one account to another. The debit and credit
// happen under a single critical section; a failed transfer leaves both
// balances untouched.
func (l *Ledger) Transfer(from, to common.Address, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("transfer amount must not be negative, got %s", amount.String())
	}
	if amount.IsZero() {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	bal := l.balances[from]
	if bal.LessThan(amount) {
		return fmt.Errorf("%w: account=%s balance=%s need=%s",
			ErrInsufficientFunds, from.Hex(), bal.String(), amount.String())
	}

	l.balances[from] = bal.Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)

	log.Debug().
		Str("from", from.Hex()).
		Str("to", to.Hex()).
		Str("amount", amount.String()).
		Msg("ledger: transfer")
	return nil
}

// Balance returns the current balance of an account (zero if unknown).
func (l *Ledger) Balance(account common.Address) decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[account]
}

// TotalMinted returns the cumulative amount ever minted. Since Transfer
// conserves supply, the sum of all balances always equals this value.
func (l *Ledger) TotalMinted() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.minted
}

// Sum returns the sum of all balances. Exposed for invariant checks.
func (l *Ledger) Sum() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()

	total := decimal.Zero
	for _, b := range l.balances {
		total = total.Add(b)
	}
	return total
}
