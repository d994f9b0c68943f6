package insurance

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sentinel-amm/sentinel/internal/ledger"
)

// Account is the ledger account escrowing all insurance balances.
var Account = common.BytesToAddress([]byte("sentinel/insurance"))

var (
	ErrZeroDeposit      = errors.New("deposit amount must be positive")
	ErrLossBelowMinimum = errors.New("loss below insurable minimum")
	ErrFundEmpty        = errors.New("insurance fund is empty")
	ErrEvidenceEmpty    = errors.New("evidence hash must be nonzero")
	ErrNoCompensation   = errors.New("computed compensation is zero")
)

// Params configure claim admission.
type Params struct {
	MinInsurableLoss   decimal.Decimal `yaml:"min_insurable_loss"`
	MaxCompensationPct int64           `yaml:"max_compensation_pct"`
}

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		MinInsurableLoss:   decimal.NewFromInt(100_000),
		MaxCompensationPct: 50,
	}
}

// Fund is the per-pool insurance escrow. Balances live in the shared ledger
// under Account; the fund keeps the per-pool split and the per-claimant
// audit history. The history is informational only, not an enforced ceiling.
type Fund struct {
	mu     sync.Mutex
	params Params
	ledger *ledger.Ledger

	balances map[common.Address]decimal.Decimal
	claimed  map[common.Address]map[common.Address]decimal.Decimal // pool -> claimant -> total
}

// NewFund creates an empty fund backed by the given ledger.
func NewFund(params Params, l *ledger.Ledger) *Fund {
	return &Fund{
		params:   params,
		ledger:   l,
		balances: make(map[common.Address]decimal.Decimal),
		claimed:  make(map[common.Address]map[common.Address]decimal.Decimal),
	}
}

// SetParams replaces the claim admission parameters.
func (f *Fund) SetParams(p Params) {
	f.mu.Lock()
	f.params = p
	f.mu.Unlock()
}

// Params returns the current parameters.
func (f *Fund) Params() Params {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.params
}

// Deposit credits a pool's fund from the depositor's ledger account and
// returns the new fund total.
func (f *Fund) Deposit(depositor, pool common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsZero() || amount.IsNegative() {
		return decimal.Zero, ErrZeroDeposit
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.ledger.Transfer(depositor, Account, amount); err != nil {
		return decimal.Zero, fmt.Errorf("deposit transfer: %w", err)
	}

	f.balances[pool] = f.balances[pool].Add(amount)
	newTotal := f.balances[pool]

	log.Info().
		Str("pool", pool.Hex()).
		Str("depositor", depositor.Hex()).
		Str("amount", amount.String()).
		Str("new_total", newTotal.String()).
		Msg("insurance deposit")

	return newTotal, nil
}

// CreditProceeds books an auction-proceeds share into a pool's fund. The
// value itself was already moved into Account by the auction engine; this is
// the bookkeeping half and cannot fail.
func (f *Fund) CreditProceeds(pool common.Address, amount decimal.Decimal) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.balances[pool] = f.balances[pool].Add(amount)
	return f.balances[pool]
}

// ClaimResult reports an accepted claim.
type ClaimResult struct {
	Compensation decimal.Decimal
	FundRemains  decimal.Decimal
}

// Claim pays out against submitted loss evidence. The evidence hash is a
// recorded commitment only; it is not verified. Compensation is
// min(floor(loss x maxPct / 100), fund balance) and must be positive.
// The fund balance is debited before the external transfer; on transfer
// failure the whole claim is rolled back.
func (f *Fund) Claim(claimant, pool common.Address, lossAmount decimal.Decimal, evidence common.Hash) (ClaimResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if evidence == (common.Hash{}) {
		return ClaimResult{}, ErrEvidenceEmpty
	}
	if lossAmount.LessThan(f.params.MinInsurableLoss) {
		return ClaimResult{}, fmt.Errorf("%w: loss=%s min=%s",
			ErrLossBelowMinimum, lossAmount.String(), f.params.MinInsurableLoss.String())
	}

	balance := f.balances[pool]
	if balance.IsZero() || balance.IsNegative() {
		return ClaimResult{}, ErrFundEmpty
	}

	compensation := lossAmount.
		Mul(decimal.NewFromInt(f.params.MaxCompensationPct)).
		Div(decimal.NewFromInt(100)).
		Floor()
	if compensation.GreaterThan(balance) {
		compensation = balance
	}
	if compensation.IsZero() || compensation.IsNegative() {
		return ClaimResult{}, ErrNoCompensation
	}

	// Debit state first, transfer last.
	f.balances[pool] = balance.Sub(compensation)
	if f.claimed[pool] == nil {
		f.claimed[pool] = make(map[common.Address]decimal.Decimal)
	}
	f.claimed[pool][claimant] = f.claimed[pool][claimant].Add(compensation)

	if err := f.ledger.Transfer(Account, claimant, compensation); err != nil {
		// All-or-nothing: undo the debit and the history entry.
		f.balances[pool] = balance
		f.claimed[pool][claimant] = f.claimed[pool][claimant].Sub(compensation)
		return ClaimResult{}, fmt.Errorf("compensation transfer: %w", err)
	}

	log.Info().
		Str("pool", pool.Hex()).
		Str("claimant", claimant.Hex()).
		Str("loss", lossAmount.String()).
		Str("compensation", compensation.String()).
		Str("evidence", evidence.Hex()).
		Msg("insurance claim paid")

	return ClaimResult{Compensation: compensation, FundRemains: f.balances[pool]}, nil
}

// EmergencyWithdraw moves up to amount from a pool's fund to an arbitrary
// address. The caller (the guard) is responsible for the owner-and-paused
// gate; the fund only enforces the balance cap.
func (f *Fund) EmergencyWithdraw(pool, to common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	balance := f.balances[pool]
	if amount.GreaterThan(balance) {
		amount = balance
	}
	if amount.IsZero() || amount.IsNegative() {
		return decimal.Zero, ErrFundEmpty
	}

	f.balances[pool] = balance.Sub(amount)
	if err := f.ledger.Transfer(Account, to, amount); err != nil {
		f.balances[pool] = balance
		return decimal.Zero, fmt.Errorf("emergency withdrawal transfer: %w", err)
	}

	log.Warn().
		Str("pool", pool.Hex()).
		Str("to", to.Hex()).
		Str("amount", amount.String()).
		Msg("insurance emergency withdrawal")

	return amount, nil
}

// Balance returns a pool's fund balance.
func (f *Fund) Balance(pool common.Address) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances[pool]
}

// ClaimedTotal returns a claimant's cumulative compensation from a pool.
func (f *Fund) ClaimedTotal(pool, claimant common.Address) decimal.Decimal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.claimed[pool][claimant]
}
