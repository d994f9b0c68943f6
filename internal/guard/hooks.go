package guard

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/sha3"

	"github.com/sentinel-amm/sentinel/internal/bus"
)

// SwapReport is the outcome of an AfterSwap invocation.
type SwapReport struct {
	AmountIn decimal.Decimal
	Score    decimal.Decimal
	Reasons  []string
	Alerted  bool
	Evidence common.Hash
}

// BeforeSwap is the pre-trade hook: it returns the active fee override for
// the pool, if any. A false second return means the venue keeps its
// default fee.
func (g *Guard) BeforeSwap(pool common.Address) (uint32, bool) {
	return g.overrides.Active(pool, g.now())
}

// AfterSwap is the post-trade hook. It derives the input amount from the
// venue's signed deltas, records the swap, scores it, and publishes
// SwapObserved plus, when the score meets the pool threshold, an MEVAlert
// carrying an evidence commitment.
func (g *Guard) AfterSwap(trader, pool common.Address, amount0, amount1 decimal.Decimal) (SwapReport, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.allow(trader); err != nil {
		g.record(trader, "after_swap", pool, err)
		return SwapReport{}, err
	}
	p, err := g.registry.Require(pool)
	if err != nil {
		g.record(trader, "after_swap", pool, err)
		return SwapReport{}, err
	}

	now := g.now()
	amountIn := amountInFromDeltas(amount0, amount1)
	amountOut := amountOutFromDeltas(amount0, amount1)

	// The recency signals must see the *previous* large swap, not the one
	// being scored, so the stamp is sampled before recording.
	prev := g.tracker.Snapshot(pool)
	rec := g.tracker.RecordSwap(pool, amountIn)
	rec.LastLargeSwapAt = prev.LastLargeSwapAt
	rec.LastLargeSwapAmount = prev.LastLargeSwapAmount

	scoreStart := time.Now()
	bd := g.scorer.Score(rec, amountIn, now)
	g.metrics.ScoreLatencyMs.Observe(float64(time.Since(scoreStart).Microseconds()) / 1000.0)

	g.metrics.SwapsObserved.Inc()
	g.publish(bus.TopicSwaps, pool.Hex(), bus.SwapObserved{
		BaseEvent: g.base(),
		Pool:      pool,
		Trader:    trader,
		AmountIn:  amountIn,
		AmountOut: amountOut,
		SwapCount: rec.SwapCount,
		Volume:    rec.Volume,
	})

	report := SwapReport{
		AmountIn: amountIn,
		Score:    bd.Score,
		Reasons:  bd.Reasons,
	}

	if p.AlertThreshold.IsPositive() && bd.Score.GreaterThanOrEqual(p.AlertThreshold) {
		report.Alerted = true
		report.Evidence = evidenceCommitment(pool, trader, amountIn, now)

		g.metrics.AlertsRaised.Inc()
		g.publish(bus.TopicAlerts, pool.Hex(), bus.MEVAlert{
			BaseEvent: g.base(),
			Pool:      pool,
			Trader:    trader,
			AmountIn:  amountIn,
			Score:     bd.Score,
			Threshold: p.AlertThreshold,
			Evidence:  report.Evidence,
		})
	}

	return report, nil
}

// amountInFromDeltas derives the trade's input size from the venue's
// signed balance deltas. The token paid in shows as a positive delta
// toward the venue; if both deltas are non-positive the larger magnitude
// is taken.
func amountInFromDeltas(amount0, amount1 decimal.Decimal) decimal.Decimal {
	switch {
	case amount0.IsPositive() && amount0.GreaterThanOrEqual(amount1):
		return amount0
	case amount1.IsPositive():
		return amount1
	case amount0.Abs().GreaterThan(amount1.Abs()):
		return amount0.Abs()
	default:
		return amount1.Abs()
	}
}

// amountOutFromDeltas is the counterpart: the magnitude of the delta paid
// out of the venue.
func amountOutFromDeltas(amount0, amount1 decimal.Decimal) decimal.Decimal {
	if amount0.IsNegative() {
		return amount0.Abs()
	}
	if amount1.IsNegative() {
		return amount1.Abs()
	}
	return decimal.Zero
}

// evidenceCommitment binds an alert to its swap: keccak-256 over the pool,
// trader, input amount and observation time.
func evidenceCommitment(pool, trader common.Address, amountIn decimal.Decimal, at time.Time) common.Hash {
	h := sha3.NewLegacyKeccak256()
	h.Write(pool.Bytes())
	h.Write(trader.Bytes())
	h.Write([]byte(amountIn.String()))
	h.Write([]byte(fmt.Sprintf("%d", at.UnixNano())))
	return common.BytesToHash(h.Sum(nil))
}
