package scoring

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/sentinel-amm/sentinel/internal/tracker"
)

// noon is outside the peak-hours windows so tests only get the bonuses they
// construct.
var noon = time.Date(2025, 6, 2, 12, 0, 0, 0, time.UTC)

func testParams() Params {
	return Params{
		LargeSwapFloor:       decimal.NewFromInt(1000),
		RapidSwapWindow:      300 * time.Second,
		ConsecutiveSwapPct:   200,
		VolumeSpikeThreshold: 10,
	}
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func TestScore_BelowFloorIsZero(t *testing.T) {
	s := New(testParams())
	bd := s.Score(tracker.Record{Volume: d(50000), SwapCount: 30}, d(999), noon)
	assert.True(t, bd.Score.IsZero())
	assert.Empty(t, bd.Reasons)
}

func TestScore_BaseIsAmount(t *testing.T) {
	s := New(testParams())
	rec := tracker.Record{Volume: d(1000), SwapCount: 1}
	bd := s.Score(rec, d(1000), noon)
	assert.True(t, bd.Score.Equal(d(1000)), "got %s", bd.Score)
	assert.Empty(t, bd.Reasons)
}

func TestScore_RapidSwapBonus(t *testing.T) {
	s := New(testParams())
	rec := tracker.Record{
		Volume:              d(8000),
		SwapCount:           2,
		LastLargeSwapAt:     noon.Add(-100 * time.Second),
		LastLargeSwapAmount: d(5000),
	}
	// 1000 is not within 50% of 5000: rapid only, no sandwich.
	bd := s.Score(rec, d(1000), noon)
	assert.True(t, bd.Score.Equal(d(2000)), "got %s", bd.Score)
	assert.Equal(t, []string{"RAPID_SWAP"}, bd.Reasons)
}

func TestScore_SandwichPattern(t *testing.T) {
	s := New(testParams())
	rec := tracker.Record{
		Volume:              d(4000),
		SwapCount:           2,
		LastLargeSwapAt:     noon.Add(-30 * time.Second),
		LastLargeSwapAmount: d(2000),
	}
	// 2000 mirrors 2000 exactly: x2.0 then x1.5.
	bd := s.Score(rec, d(2000), noon)
	assert.True(t, bd.Score.Equal(d(6000)), "got %s", bd.Score)
	assert.Contains(t, bd.Reasons, "SANDWICH_PATTERN")
}

func TestScore_SandwichRatioBothDirections(t *testing.T) {
	s := New(testParams())
	base := tracker.Record{
		SwapCount:       1,
		Volume:          d(1000),
		LastLargeSwapAt: noon.Add(-10 * time.Second),
	}

	cases := []struct {
		prior    int64
		amount   int64
		sandwich bool
	}{
		{2000, 1000, true},  // exactly half of prior
		{2000, 4000, true},  // prior exactly half of amount
		{2000, 999, false},  // just under half
		{2000, 4001, false}, // prior just under half
	}
	for _, tc := range cases {
		rec := base
		rec.LastLargeSwapAmount = d(tc.prior)
		bd := s.Score(rec, d(tc.amount), noon)
		if tc.sandwich {
			assert.Contains(t, bd.Reasons, "SANDWICH_PATTERN", "prior=%d amount=%d", tc.prior, tc.amount)
		} else {
			assert.NotContains(t, bd.Reasons, "SANDWICH_PATTERN", "prior=%d amount=%d", tc.prior, tc.amount)
		}
	}
}

func TestScore_RapidSwapWindowEdges(t *testing.T) {
	s := New(testParams())
	rec := tracker.Record{Volume: d(2000), SwapCount: 2, LastLargeSwapAmount: d(1000)}

	// Exactly at the window boundary: still rapid.
	rec.LastLargeSwapAt = noon.Add(-300 * time.Second)
	bd := s.Score(rec, d(1000), noon)
	assert.Contains(t, bd.Reasons, "RAPID_SWAP")

	// Past the window: no bonus.
	rec.LastLargeSwapAt = noon.Add(-301 * time.Second)
	bd = s.Score(rec, d(1000), noon)
	assert.NotContains(t, bd.Reasons, "RAPID_SWAP")

	// Zero elapsed: no bonus (same-instant stamp).
	rec.LastLargeSwapAt = noon
	bd = s.Score(rec, d(1000), noon)
	assert.NotContains(t, bd.Reasons, "RAPID_SWAP")
}

func TestScore_VolumeSpike(t *testing.T) {
	// With the production threshold the spike is unreachable (volume can
	// never exceed 5x itself); a threshold of 1 exercises the branch.
	p := testParams()
	p.VolumeSpikeThreshold = 1
	s := New(p)

	rec := tracker.Record{Volume: d(10000), SwapCount: 3}
	bd := s.Score(rec, d(1000), noon)
	assert.True(t, bd.Score.Equal(d(1200)), "got %s", bd.Score)
	assert.Equal(t, []string{"VOLUME_SPIKE"}, bd.Reasons)
}

func TestScore_FrequencyBonus(t *testing.T) {
	s := New(testParams())

	// 20 swaps: 100% + 5%x10 = 150%.
	rec := tracker.Record{Volume: d(20000), SwapCount: 20}
	bd := s.Score(rec, d(1000), noon)
	assert.True(t, bd.Score.Equal(d(1500)), "got %s", bd.Score)
	assert.Contains(t, bd.Reasons, "HIGH_FREQUENCY")

	// 50 swaps: would be 300%, capped at 200%.
	rec.SwapCount = 50
	bd = s.Score(rec, d(1000), noon)
	assert.True(t, bd.Score.Equal(d(2000)), "got %s", bd.Score)

	// Exactly 10 swaps: no bonus.
	rec.SwapCount = 10
	bd = s.Score(rec, d(1000), noon)
	assert.NotContains(t, bd.Reasons, "HIGH_FREQUENCY")
}

func TestScore_SizeBonus(t *testing.T) {
	s := New(testParams())
	rec := tracker.Record{Volume: d(12000), SwapCount: 1}

	// 12000 / 5000 floors to 2: 120%.
	bd := s.Score(rec, d(12000), noon)
	assert.True(t, bd.Score.Equal(d(14400)), "got %s", bd.Score)
	assert.Contains(t, bd.Reasons, "LARGE_SIZE")

	// Ratio capped at 3 steps: 130%.
	rec.Volume = d(100000)
	bd = s.Score(rec, d(100000), noon)
	assert.True(t, bd.Score.Equal(d(130000)), "got %s", bd.Score)

	// Exactly 5x floor: no bonus (strictly greater required).
	rec.Volume = d(5000)
	bd = s.Score(rec, d(5000), noon)
	assert.NotContains(t, bd.Reasons, "LARGE_SIZE")
}

func TestScore_TimeOfDayBonus(t *testing.T) {
	s := New(testParams())
	rec := tracker.Record{Volume: d(1000), SwapCount: 1}

	for _, hour := range []int{8, 9, 10, 14, 15, 16} {
		at := time.Date(2025, 6, 2, hour, 30, 0, 0, time.UTC)
		bd := s.Score(rec, d(1000), at)
		assert.True(t, bd.Score.Equal(d(1100)), "hour=%d got %s", hour, bd.Score)
		assert.Contains(t, bd.Reasons, "PEAK_HOURS")
	}

	for _, hour := range []int{7, 11, 13, 17, 0, 23} {
		at := time.Date(2025, 6, 2, hour, 30, 0, 0, time.UTC)
		bd := s.Score(rec, d(1000), at)
		assert.True(t, bd.Score.Equal(d(1000)), "hour=%d got %s", hour, bd.Score)
	}
}

func TestScore_FlooringEachStep(t *testing.T) {
	s := New(testParams())
	rec := tracker.Record{Volume: d(1001), SwapCount: 1}

	// 1001 x 110% = 1101.1, floored to 1101.
	at := time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC)
	bd := s.Score(rec, d(1001), at)
	assert.True(t, bd.Score.Equal(d(1101)), "got %s", bd.Score)
}

func TestScore_Deterministic(t *testing.T) {
	s := New(testParams())
	rec := tracker.Record{
		Volume:              d(30000),
		SwapCount:           25,
		LastLargeSwapAt:     noon.Add(-60 * time.Second),
		LastLargeSwapAmount: d(3000),
	}

	first := s.Score(rec, d(3000), noon)
	second := s.Score(rec, d(3000), noon)
	assert.True(t, first.Score.Equal(second.Score))
	assert.Equal(t, first.Reasons, second.Reasons)
}
