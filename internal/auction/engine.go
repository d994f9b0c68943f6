package auction

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sentinel-amm/sentinel/internal/ledger"
)

// Account is the ledger account escrowing all live bids.
var Account = common.BytesToAddress([]byte("sentinel/auction"))

var (
	ErrNotFound        = errors.New("auction not found")
	ErrZeroDuration    = errors.New("auction duration must be positive")
	ErrEnded           = errors.New("auction has ended")
	ErrNotEnded        = errors.New("auction has not ended")
	ErrAlreadySettled  = errors.New("auction already settled")
	ErrBidBelowMinimum = errors.New("bid below minimum")
	ErrBidNotLeading   = errors.New("effective bid does not exceed current leader")
)

// Proceeds split, in integer percent. The insurance fund takes whatever the
// three fixed cuts leave behind, absorbing rounding dust.
const (
	winnerSharePct   = 45
	treasurySharePct = 35
	protocolSharePct = 10
)

// Status is the lifecycle position of an auction. Transitions only move
// forward: Created -> Active -> Ended -> Settled.
type Status string

const (
	StatusCreated Status = "CREATED"
	StatusActive  Status = "ACTIVE"
	StatusEnded   Status = "ENDED"
	StatusSettled Status = "SETTLED"
)

// Auction is one sealed-leader auction. Start, End, MinBid and FeeBps are
// fixed at creation; the bid fields only move up.
type Auction struct {
	Pool                common.Address  `json:"pool"`
	ID                  uint64          `json:"id"`
	Start               time.Time       `json:"start"`
	End                 time.Time       `json:"end"`
	MinBid              decimal.Decimal `json:"min_bid"`
	FeeBps              uint32          `json:"fee_bps"`
	HighestBid          decimal.Decimal `json:"highest_bid"`
	HighestBidder       common.Address  `json:"highest_bidder"`
	HighestEffectiveBid decimal.Decimal `json:"highest_effective_bid"`
	Settled             bool            `json:"settled"`
}

// StatusAt returns the auction's lifecycle status at the given time.
func (a *Auction) StatusAt(now time.Time) Status {
	switch {
	case a.Settled:
		return StatusSettled
	case now.Before(a.Start):
		return StatusCreated
	case now.Before(a.End):
		return StatusActive
	default:
		return StatusEnded
	}
}

// Policy holds the owner-tunable auction parameters.
type Policy struct {
	OwnerOnlyStart   bool           `yaml:"owner_only_start"`
	DefaultFeeBps    uint32         `yaml:"default_fee_bps"`
	OverrideDuration time.Duration  `yaml:"override_duration"`
	MaxTimeBonusPct  int64          `yaml:"max_time_bonus_pct"`
	Treasury         common.Address `yaml:"-"`
	Protocol         common.Address `yaml:"-"`
	InsuranceAccount common.Address `yaml:"-"`
}

// DefaultPolicy returns the production defaults.
func DefaultPolicy() Policy {
	return Policy{
		DefaultFeeBps:    100, // 1%
		OverrideDuration: 5 * time.Minute,
		MaxTimeBonusPct:  20,
	}
}

// BidResult reports an accepted bid.
type BidResult struct {
	Raw           decimal.Decimal
	Effective     decimal.Decimal
	BonusPct      int64
	PrevBidder    common.Address
	PrevRaw       decimal.Decimal
	HadPrevLeader bool
}

// Settlement reports a finalized auction.
type Settlement struct {
	Winner       common.Address
	WinningBid   decimal.Decimal
	WinnerShare  decimal.Decimal
	TreasuryCut  decimal.Decimal
	ProtocolCut  decimal.Decimal
	InsuranceCut decimal.Decimal
	FeeBps       uint32
	HadWinner    bool
}

// Engine runs the per-pool auctions. Every entry point executes under one
// mutex: the effective-bid comparison, the settled-flag check and the ledger
// movements commit as a single state transition, so concurrent bidders and
// finalizers observe no partial updates.
type Engine struct {
	mu       sync.Mutex
	policy   Policy
	ledger   *ledger.Ledger
	auctions map[common.Address][]*Auction

	now func() time.Time
}

// NewEngine creates an engine backed by the given ledger.
func NewEngine(policy Policy, l *ledger.Ledger) *Engine {
	return &Engine{
		policy:   policy,
		ledger:   l,
		auctions: make(map[common.Address][]*Auction),
		now:      time.Now,
	}
}

// Policy returns the current policy.
func (e *Engine) Policy() Policy {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.policy
}

// SetPolicy replaces the policy. Running auctions keep the fee captured at
// their creation; only future auctions see the new defaults.
func (e *Engine) SetPolicy(p Policy) {
	e.mu.Lock()
	e.policy = p
	e.mu.Unlock()
}

// Start opens a new auction for the pool and returns it. IDs are dense per
// pool, assigned from a pool-scoped counter, never reused.
func (e *Engine) Start(pool common.Address, minBid decimal.Decimal, duration time.Duration) (Auction, error) {
	if duration <= 0 {
		return Auction{}, ErrZeroDuration
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	a := &Auction{
		Pool:                pool,
		ID:                  uint64(len(e.auctions[pool])),
		Start:               now,
		End:                 now.Add(duration),
		MinBid:              minBid,
		FeeBps:              e.policy.DefaultFeeBps,
		HighestBid:          decimal.Zero,
		HighestEffectiveBid: decimal.Zero,
	}
	e.auctions[pool] = append(e.auctions[pool], a)

	log.Info().
		Str("pool", pool.Hex()).
		Uint64("auction_id", a.ID).
		Str("min_bid", minBid.String()).
		Dur("duration", duration).
		Uint32("fee_bps", a.FeeBps).
		Msg("auction started")

	return *a, nil
}

// PlaceBid admits a bid if its time-weighted effective value strictly
// exceeds the current leader's. The new bid is escrowed and the previous
// leader refunded their raw bid before the new leader is recorded; if the
// refund fails the whole bid is unwound.
func (e *Engine) PlaceBid(pool common.Address, id uint64, bidder common.Address, amount decimal.Decimal) (BidResult, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.findLocked(pool, id)
	if err != nil {
		return BidResult{}, err
	}

	now := e.now()
	if !now.Before(a.End) {
		return BidResult{}, fmt.Errorf("%w: auction %d ended at %s", ErrEnded, id, a.End.Format(time.RFC3339))
	}
	if amount.LessThan(a.MinBid) {
		return BidResult{}, fmt.Errorf("%w: amount=%s min=%s", ErrBidBelowMinimum, amount.String(), a.MinBid.String())
	}

	bonusPct := e.timeBonusPctLocked(a, now)
	effective := amount.
		Mul(decimal.NewFromInt(100 + bonusPct)).
		Div(decimal.NewFromInt(100)).
		Floor()

	// Strict comparison: an equal effective bid does not unseat the
	// incumbent. First mover wins ties.
	if !effective.GreaterThan(a.HighestEffectiveBid) {
		return BidResult{}, fmt.Errorf("%w: effective=%s leader=%s",
			ErrBidNotLeading, effective.String(), a.HighestEffectiveBid.String())
	}

	if err := e.ledger.Transfer(bidder, Account, amount); err != nil {
		return BidResult{}, fmt.Errorf("escrow bid: %w", err)
	}

	res := BidResult{
		Raw:       amount,
		Effective: effective,
		BonusPct:  bonusPct,
	}

	if a.HighestBidder != (common.Address{}) && a.HighestBid.IsPositive() {
		// Refund the outgoing leader their raw bid. Failure aborts the
		// whole bid: unwind the new escrow, leave the auction untouched.
		if err := e.ledger.Transfer(Account, a.HighestBidder, a.HighestBid); err != nil {
			_ = e.ledger.Transfer(Account, bidder, amount)
			return BidResult{}, fmt.Errorf("refund previous leader: %w", err)
		}
		res.PrevBidder = a.HighestBidder
		res.PrevRaw = a.HighestBid
		res.HadPrevLeader = true
	}

	a.HighestBid = amount
	a.HighestBidder = bidder
	a.HighestEffectiveBid = effective

	log.Info().
		Str("pool", pool.Hex()).
		Uint64("auction_id", id).
		Str("bidder", bidder.Hex()).
		Str("raw", amount.String()).
		Str("effective", effective.String()).
		Int64("bonus_pct", bonusPct).
		Msg("bid accepted")

	return res, nil
}

// Finalize settles an ended auction: splits the winning bid 45/35/10 with
// the remainder to the insurance account, exactly once per auction.
func (e *Engine) Finalize(pool common.Address, id uint64) (Settlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.findLocked(pool, id)
	if err != nil {
		return Settlement{}, err
	}

	now := e.now()
	if now.Before(a.End) {
		return Settlement{}, fmt.Errorf("%w: auction %d ends at %s", ErrNotEnded, id, a.End.Format(time.RFC3339))
	}
	if a.Settled {
		return Settlement{}, ErrAlreadySettled
	}

	a.Settled = true

	s := Settlement{FeeBps: a.FeeBps}
	if a.HighestBidder == (common.Address{}) || !a.HighestBid.IsPositive() {
		log.Info().
			Str("pool", pool.Hex()).
			Uint64("auction_id", id).
			Msg("auction settled without bids")
		return s, nil
	}

	raw := a.HighestBid
	s.HadWinner = true
	s.Winner = a.HighestBidder
	s.WinningBid = raw
	s.WinnerShare = pctOf(raw, winnerSharePct)
	s.TreasuryCut = pctOf(raw, treasurySharePct)
	s.ProtocolCut = pctOf(raw, protocolSharePct)
	// The remainder absorbs flooring dust so the split always sums to raw.
	s.InsuranceCut = raw.Sub(s.WinnerShare).Sub(s.TreasuryCut).Sub(s.ProtocolCut)

	type leg struct {
		to     common.Address
		amount decimal.Decimal
	}
	legs := []leg{
		{s.Winner, s.WinnerShare},
		{e.policy.Treasury, s.TreasuryCut},
		{e.policy.Protocol, s.ProtocolCut},
		{e.policy.InsuranceAccount, s.InsuranceCut},
	}

	for i, l := range legs {
		if err := e.ledger.Transfer(Account, l.to, l.amount); err != nil {
			// All-or-nothing: unwind completed legs and the settled flag.
			for j := i - 1; j >= 0; j-- {
				_ = e.ledger.Transfer(legs[j].to, Account, legs[j].amount)
			}
			a.Settled = false
			return Settlement{}, fmt.Errorf("settlement payout: %w", err)
		}
	}

	log.Info().
		Str("pool", pool.Hex()).
		Uint64("auction_id", id).
		Str("winner", s.Winner.Hex()).
		Str("winning_bid", raw.String()).
		Str("winner_share", s.WinnerShare.String()).
		Str("treasury_cut", s.TreasuryCut.String()).
		Str("protocol_cut", s.ProtocolCut.String()).
		Str("insurance_cut", s.InsuranceCut.String()).
		Msg("auction settled")

	return s, nil
}

// Get returns a snapshot of an auction.
func (e *Engine) Get(pool common.Address, id uint64) (Auction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	a, err := e.findLocked(pool, id)
	if err != nil {
		return Auction{}, err
	}
	return *a, nil
}

// Count returns how many auctions a pool has hosted.
func (e *Engine) Count(pool common.Address) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.auctions[pool])
}

// timeBonusPctLocked computes the integer time bonus for a bid placed at now.
// Earlier bids earn a larger bonus, decaying linearly to zero at the end.
func (e *Engine) timeBonusPctLocked(a *Auction, now time.Time) int64 {
	duration := int64(a.End.Sub(a.Start) / time.Second)
	if duration <= 0 {
		// Unreachable through Start, which rejects zero durations; the
		// effective bid then equals the raw bid.
		return 0
	}

	remaining := int64(a.End.Sub(now) / time.Second)
	if remaining < 0 {
		remaining = 0
	}
	return remaining * e.policy.MaxTimeBonusPct / duration
}

func (e *Engine) findLocked(pool common.Address, id uint64) (*Auction, error) {
	list := e.auctions[pool]
	if id >= uint64(len(list)) {
		return nil, fmt.Errorf("%w: pool=%s id=%d", ErrNotFound, pool.Hex(), id)
	}
	return list[id], nil
}

// pctOf returns pct percent of v, floored.
func pctOf(v decimal.Decimal, pct int64) decimal.Decimal {
	return v.Mul(decimal.NewFromInt(pct)).Div(decimal.NewFromInt(100)).Floor()
}
