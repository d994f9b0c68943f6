package guard

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/sentinel-amm/sentinel/internal/bus"
	"github.com/sentinel-amm/sentinel/internal/insurance"
)

// Deposit credits a registered pool's insurance fund from the caller's
// balance. Anyone may deposit.
func (g *Guard) Deposit(caller, pool common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.allow(caller); err != nil {
		g.record(caller, "insurance_deposit", pool, err)
		return decimal.Zero, err
	}
	if _, err := g.registry.Require(pool); err != nil {
		g.record(caller, "insurance_deposit", pool, err)
		return decimal.Zero, err
	}

	newTotal, err := g.fund.Deposit(caller, pool, amount)
	g.record(caller, "insurance_deposit", pool, err)
	if err != nil {
		return decimal.Zero, err
	}

	g.metrics.InsuranceDeposits.Inc()
	g.publish(bus.TopicInsurance, pool.Hex(), bus.InsuranceDeposit{
		BaseEvent: g.base(),
		Pool:      pool,
		Depositor: caller,
		Amount:    amount,
		NewTotal:  newTotal,
	})
	return newTotal, nil
}

// Claim pays compensation for a submitted loss out of the pool's fund.
func (g *Guard) Claim(caller, pool common.Address, lossAmount decimal.Decimal, evidence common.Hash) (insurance.ClaimResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.allow(caller); err != nil {
		g.metrics.ClaimsRejected.Inc()
		g.record(caller, "insurance_claim", pool, err)
		return insurance.ClaimResult{}, err
	}
	if _, err := g.registry.Require(pool); err != nil {
		g.metrics.ClaimsRejected.Inc()
		g.record(caller, "insurance_claim", pool, err)
		return insurance.ClaimResult{}, err
	}

	res, err := g.fund.Claim(caller, pool, lossAmount, evidence)
	g.record(caller, "insurance_claim", pool, err)
	if err != nil {
		g.metrics.ClaimsRejected.Inc()
		return insurance.ClaimResult{}, err
	}

	g.metrics.ClaimsPaid.Inc()
	g.publish(bus.TopicInsurance, pool.Hex(), bus.InsuranceClaim{
		BaseEvent:    g.base(),
		Pool:         pool,
		Claimant:     caller,
		LossAmount:   lossAmount,
		Compensation: res.Compensation,
		Evidence:     evidence,
		FundRemains:  res.FundRemains,
	})
	return res, nil
}

// EmergencyWithdraw drains up to amount from a pool's fund to an external
// address. Owner-only, and only while the breaker is engaged.
func (g *Guard) EmergencyWithdraw(caller, pool, to common.Address, amount decimal.Decimal) (decimal.Decimal, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireOwner(caller); err != nil {
		g.record(caller, "emergency_withdraw", pool, err)
		return decimal.Zero, err
	}
	if !g.breaker.Paused() {
		g.record(caller, "emergency_withdraw", pool, ErrNotPaused)
		return decimal.Zero, ErrNotPaused
	}

	withdrawn, err := g.fund.EmergencyWithdraw(pool, to, amount)
	g.record(caller, "emergency_withdraw", pool, err)
	return withdrawn, err
}
