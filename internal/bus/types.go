package bus

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// BaseEvent contains fields common to all notifications.
type BaseEvent struct {
	EventID       string    `json:"event_id"`
	Timestamp     time.Time `json:"ts"`
	SchemaVersion string    `json:"schema_version"`
	Producer      string    `json:"producer"`
	TraceID       string    `json:"trace_id,omitempty"`
	CausationID   string    `json:"causation_id,omitempty"`
}

// NewBaseEvent creates a new BaseEvent with generated IDs.
func NewBaseEvent(producer, schemaVersion string) BaseEvent {
	return BaseEvent{
		EventID:       uuid.New().String(),
		Timestamp:     time.Now(),
		SchemaVersion: schemaVersion,
		Producer:      producer,
		TraceID:       uuid.New().String()[:16],
	}
}

// --- Swap Pipeline Events ---

// SwapObserved is emitted once per trade reported by the venue hooks.
type SwapObserved struct {
	BaseEvent
	Pool      common.Address  `json:"pool"`
	Trader    common.Address  `json:"trader"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	AmountOut decimal.Decimal `json:"amount_out"`
	SwapCount int64           `json:"swap_count"`
	Volume    decimal.Decimal `json:"rolling_volume"`
}

// MEVAlert is emitted when a swap's risk score meets the pool threshold.
type MEVAlert struct {
	BaseEvent
	Pool      common.Address  `json:"pool"`
	Trader    common.Address  `json:"trader"`
	AmountIn  decimal.Decimal `json:"amount_in"`
	Score     decimal.Decimal `json:"score"`
	Threshold decimal.Decimal `json:"threshold"`
	Evidence  common.Hash     `json:"evidence"`
}

// --- Auction Events ---

type AuctionStarted struct {
	BaseEvent
	Pool      common.Address  `json:"pool"`
	AuctionID uint64          `json:"auction_id"`
	MinBid    decimal.Decimal `json:"min_bid"`
	Start     time.Time       `json:"start"`
	End       time.Time       `json:"end"`
	FeeBps    uint32          `json:"fee_bps"`
}

type BidPlaced struct {
	BaseEvent
	Pool      common.Address  `json:"pool"`
	AuctionID uint64          `json:"auction_id"`
	Bidder    common.Address  `json:"bidder"`
	Amount    decimal.Decimal `json:"amount"`
}

// TimeWeightedBid reports how a raw bid was adjusted by the time bonus.
type TimeWeightedBid struct {
	BaseEvent
	Pool         common.Address  `json:"pool"`
	AuctionID    uint64          `json:"auction_id"`
	Bidder       common.Address  `json:"bidder"`
	RawBid       decimal.Decimal `json:"raw_bid"`
	EffectiveBid decimal.Decimal `json:"effective_bid"`
	BonusPct     int64           `json:"bonus_pct"`
}

type AuctionSettled struct {
	BaseEvent
	Pool         common.Address  `json:"pool"`
	AuctionID    uint64          `json:"auction_id"`
	Winner       common.Address  `json:"winner"`
	WinningBid   decimal.Decimal `json:"winning_bid"`
	WinnerShare  decimal.Decimal `json:"winner_share"`
	TreasuryCut  decimal.Decimal `json:"treasury_cut"`
	ProtocolCut  decimal.Decimal `json:"protocol_cut"`
	InsuranceCut decimal.Decimal `json:"insurance_cut"`
	FeeBps       uint32          `json:"fee_bps"`
}

// FeeOverrideInstalled is emitted whenever a temporary fee replaces the
// pool's default, whether by auction settlement or oracle recommendation.
type FeeOverrideInstalled struct {
	BaseEvent
	Pool   common.Address `json:"pool"`
	FeeBps uint32         `json:"fee_bps"`
	Expiry time.Time      `json:"expiry"`
	Source string         `json:"source"` // auction|oracle
}

// --- Insurance Events ---

type InsuranceDeposit struct {
	BaseEvent
	Pool      common.Address  `json:"pool"`
	Depositor common.Address  `json:"depositor"`
	Amount    decimal.Decimal `json:"amount"`
	NewTotal  decimal.Decimal `json:"new_total"`
}

// InsuranceTopUp records the auction-proceeds share credited to a fund.
type InsuranceTopUp struct {
	BaseEvent
	Pool      common.Address  `json:"pool"`
	AuctionID uint64          `json:"auction_id"`
	Amount    decimal.Decimal `json:"amount"`
	NewTotal  decimal.Decimal `json:"new_total"`
}

type InsuranceClaim struct {
	BaseEvent
	Pool         common.Address  `json:"pool"`
	Claimant     common.Address  `json:"claimant"`
	LossAmount   decimal.Decimal `json:"loss_amount"`
	Compensation decimal.Decimal `json:"compensation"`
	Evidence     common.Hash     `json:"evidence"`
	FundRemains  decimal.Decimal `json:"fund_remains"`
}

// --- Emergency Events ---

type EmergencyPaused struct {
	BaseEvent
	Reason string    `json:"reason"`
	Since  time.Time `json:"since"`
}

type EmergencyUnpaused struct {
	BaseEvent
	PausedFor time.Duration `json:"paused_for"`
}

// --- Heartbeat ---

type Heartbeat struct {
	BaseEvent
	Component string             `json:"component"`
	Status    string             `json:"status"` // healthy|degraded|unhealthy
	Uptime    time.Duration      `json:"uptime_seconds"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}
