package tracker

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Window is the rolling counter window. Counters older than this are zeroed
// before a new swap is applied.
const Window = 24 * time.Hour

// Record holds the rolling per-pool counters consumed by the scorer.
// Records are mutated once per observed trade and never deleted.
type Record struct {
	LastLargeSwapAt     time.Time       `json:"last_large_swap_at"`
	LastLargeSwapAmount decimal.Decimal `json:"last_large_swap_amount"`
	SwapCount           int64           `json:"swap_count"`
	Volume              decimal.Decimal `json:"volume"`
	LastResetAt         time.Time       `json:"last_reset_at"`
}

// Tracker maintains rolling swap counters per pool.
type Tracker struct {
	mu      sync.Mutex
	records map[common.Address]*Record

	largeSwapFloor decimal.Decimal
	now            func() time.Time
}

// New creates a tracker with the given large-swap floor.
func New(largeSwapFloor decimal.Decimal) *Tracker {
	return &Tracker{
		records:        make(map[common.Address]*Record),
		largeSwapFloor: largeSwapFloor,
		now:            time.Now,
	}
}

// SetLargeSwapFloor updates the floor above which a swap counts as large.
func (t *Tracker) SetLargeSwapFloor(floor decimal.Decimal) {
	t.mu.Lock()
	t.largeSwapFloor = floor
	t.mu.Unlock()
}

// LargeSwapFloor returns the current floor.
func (t *Tracker) LargeSwapFloor() decimal.Decimal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.largeSwapFloor
}

// RecordSwap applies one observed trade to the pool's counters and returns
// the updated record. If the rolling window elapsed since the last reset the
// counters are zeroed first, then the new swap's contribution is applied.
// Pure bookkeeping: no failure modes.
func (t *Tracker) RecordSwap(pool common.Address, amountIn decimal.Decimal) Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	rec, ok := t.records[pool]
	if !ok {
		rec = &Record{LastResetAt: now, Volume: decimal.Zero, LastLargeSwapAmount: decimal.Zero}
		t.records[pool] = rec
	}

	if now.Sub(rec.LastResetAt) > Window {
		rec.SwapCount = 0
		rec.Volume = decimal.Zero
		rec.LastResetAt = now
	}

	rec.SwapCount++
	rec.Volume = rec.Volume.Add(amountIn)

	if amountIn.GreaterThanOrEqual(t.largeSwapFloor) {
		rec.LastLargeSwapAt = now
		rec.LastLargeSwapAmount = amountIn
	}

	log.Debug().
		Str("pool", pool.Hex()).
		Str("amount_in", amountIn.String()).
		Int64("swap_count", rec.SwapCount).
		Str("volume", rec.Volume.String()).
		Msg("tracker: swap recorded")

	return *rec
}

// Snapshot returns a copy of a pool's record. Unknown pools get a zero record.
func (t *Tracker) Snapshot(pool common.Address) Record {
	t.mu.Lock()
	defer t.mu.Unlock()

	rec, ok := t.records[pool]
	if !ok {
		return Record{Volume: decimal.Zero, LastLargeSwapAmount: decimal.Zero}
	}
	return *rec
}
