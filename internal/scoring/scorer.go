package scoring

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/sentinel-amm/sentinel/internal/tracker"
)

// Params are the global scoring parameters. All percentages are integer
// percent values (100 = x1.0) and every multiplier step floors its result,
// matching the integer arithmetic of the original mechanism.
type Params struct {
	LargeSwapFloor       decimal.Decimal `yaml:"large_swap_floor"`
	RapidSwapWindow      time.Duration   `yaml:"rapid_swap_window"`
	ConsecutiveSwapPct   int64           `yaml:"consecutive_swap_pct"`
	VolumeSpikeThreshold int64           `yaml:"volume_spike_threshold"`
}

// Fixed bonus percentages. These are part of the heuristic shape rather than
// tuning knobs, so they are not configurable.
const (
	sandwichPct    = 150
	volumeSpikePct = 120
	timeOfDayPct   = 110

	frequencyBase    = 10  // swaps/day before the frequency bonus kicks in
	frequencyStepPct = 5   // per swap above the base
	frequencyCapPct  = 200 // hard cap on the frequency multiplier

	sizeStepPct = 10 // per multiple of 5x floor, capped at 3 steps
)

// DefaultParams returns the production defaults.
func DefaultParams() Params {
	return Params{
		LargeSwapFloor:       decimal.NewFromInt(1_000_000),
		RapidSwapWindow:      300 * time.Second,
		ConsecutiveSwapPct:   200,
		VolumeSpikeThreshold: 10,
	}
}

// Breakdown reports which bonuses fired, for alert payloads and debugging.
type Breakdown struct {
	Score   decimal.Decimal `json:"score"`
	Reasons []string        `json:"reasons,omitempty"`
}

// Scorer maps tracker state plus a swap size into an MEV risk score. It is
// stateless given a tracker snapshot; two calls with identical inputs produce
// identical output.
type Scorer struct {
	params Params
}

// New creates a scorer.
func New(params Params) *Scorer {
	return &Scorer{params: params}
}

// Params returns the current parameters.
func (s *Scorer) Params() Params { return s.params }

// SetParams replaces the scoring parameters.
func (s *Scorer) SetParams(p Params) { s.params = p }

// Score computes the MEV risk score for a swap of amountIn against the given
// tracker snapshot at time now. Swaps below the large-swap floor score zero.
func (s *Scorer) Score(rec tracker.Record, amountIn decimal.Decimal, now time.Time) Breakdown {
	bd := Breakdown{Score: decimal.Zero}

	if amountIn.LessThan(s.params.LargeSwapFloor) {
		return bd
	}

	score := amountIn

	// Rapid-swap bonus: a second large swap shortly after the previous one.
	if !rec.LastLargeSwapAt.IsZero() {
		elapsed := now.Sub(rec.LastLargeSwapAt)
		if elapsed > 0 && elapsed <= s.params.RapidSwapWindow {
			score = applyPct(score, s.params.ConsecutiveSwapPct)
			bd.Reasons = append(bd.Reasons, "RAPID_SWAP")

			// Sandwich-pattern heuristic: the new amount mirrors the prior
			// large swap within 50%, in either direction.
			if withinHalf(amountIn, rec.LastLargeSwapAmount) {
				score = applyPct(score, sandwichPct)
				bd.Reasons = append(bd.Reasons, "SANDWICH_PATTERN")
			}
		}
	}

	// Volume-spike bonus. The "average" is estimated as half of today's
	// rolling volume, falling back to 100x the floor on an empty day.
	avg := rec.Volume.Div(decimal.NewFromInt(2)).Floor()
	if rec.Volume.IsZero() {
		avg = s.params.LargeSwapFloor.Mul(decimal.NewFromInt(100))
	}
	if rec.Volume.GreaterThan(avg.Mul(decimal.NewFromInt(s.params.VolumeSpikeThreshold))) {
		score = applyPct(score, volumeSpikePct)
		bd.Reasons = append(bd.Reasons, "VOLUME_SPIKE")
	}

	// Frequency bonus: many swaps within the rolling window.
	if rec.SwapCount > frequencyBase {
		pct := 100 + frequencyStepPct*(rec.SwapCount-frequencyBase)
		if pct > frequencyCapPct {
			pct = frequencyCapPct
		}
		score = applyPct(score, pct)
		bd.Reasons = append(bd.Reasons, "HIGH_FREQUENCY")
	}

	// Size bonus: amount well above the large-swap floor.
	fiveFloor := s.params.LargeSwapFloor.Mul(decimal.NewFromInt(5))
	if amountIn.GreaterThan(fiveFloor) {
		steps := amountIn.Div(fiveFloor).Floor().IntPart()
		if steps > 3 {
			steps = 3
		}
		score = applyPct(score, 100+sizeStepPct*steps)
		bd.Reasons = append(bd.Reasons, "LARGE_SIZE")
	}

	// Time-of-day bonus: historically MEV-heavy UTC hours.
	hour := now.UTC().Hour()
	if (hour >= 8 && hour <= 10) || (hour >= 14 && hour <= 16) {
		score = applyPct(score, timeOfDayPct)
		bd.Reasons = append(bd.Reasons, "PEAK_HOURS")
	}

	bd.Score = score
	return bd
}

// applyPct multiplies by an integer percentage, flooring the result.
func applyPct(v decimal.Decimal, pct int64) decimal.Decimal {
	return v.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Floor()
}

// withinHalf reports whether a and b are within 50% of each other, tested in
// both directions: each must be at least half of the other.
func withinHalf(a, b decimal.Decimal) bool {
	if a.IsZero() || b.IsZero() {
		return false
	}
	two := decimal.NewFromInt(2)
	return a.Mul(two).GreaterThanOrEqual(b) && b.Mul(two).GreaterThanOrEqual(a)
}
