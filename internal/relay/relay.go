package relay

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sentinel-amm/sentinel/internal/bus"
)

// BidSubmitter places bids on behalf of the relay's configured bidder.
// In-process this is the core guard; in production a transaction signer.
type BidSubmitter interface {
	PlaceBid(ctx context.Context, pool common.Address, auctionID uint64, amount decimal.Decimal) error
}

// AutoBidPolicy bids a fixed budget the moment an auction opens, when the
// early-bid time bonus is at its maximum.
type AutoBidPolicy struct {
	Enabled bool
	Bidder  common.Address
	MaxBid  decimal.Decimal
}

// Notification is the envelope broadcast to websocket subscribers.
type Notification struct {
	Topic      string          `json:"topic"`
	Key        string          `json:"key"`
	ReceivedAt time.Time       `json:"received_at"`
	Data       json.RawMessage `json:"data"`
}

// Relay bridges the notification bus to websocket subscribers and
// optionally auto-bids on new auctions. Everything in its loop is
// best-effort: failures are logged and swallowed, never propagated.
type Relay struct {
	consumer  bus.Consumer
	hub       *Hub
	submitter BidSubmitter
	policy    AutoBidPolicy
}

// New creates a relay. submitter may be nil when auto-bid is disabled.
func New(consumer bus.Consumer, hub *Hub, submitter BidSubmitter, policy AutoBidPolicy) *Relay {
	return &Relay{
		consumer:  consumer,
		hub:       hub,
		submitter: submitter,
		policy:    policy,
	}
}

// Run consumes notifications until the context is cancelled.
func (r *Relay) Run(ctx context.Context) error {
	log.Info().
		Bool("auto_bid", r.policy.Enabled).
		Msg("relay started")
	return r.consumer.Consume(ctx, r.handle)
}

/// handle forwards one bus message. It always returns nil: a relay failure
// must never stall consumption or touch core state.
func (r *Relay) handle(ctx context.Context, msg bus.Message) error {
	payload, err := json.Marshal(Notification{
		Topic:      msg.Topic,
		Key:        msg.Key,
		ReceivedAt: time.Now(),
		Data:       json.RawMessage(msg.Value),
	})
	if err != nil {
		log.Warn().Err(err).Str("topic", msg.Topic).Msg("notification marshal failed")
		return nil
	}
	r.hub.Broadcast(payload)

	if r.policy.Enabled && msg.Topic == bus.TopicAuctions {
		r.maybeAutoBid(ctx, msg)
	}
	return nil
}

// maybeAutoBid bids the configured budget on freshly started auctions.
func (r *Relay) maybeAutoBid(ctx context.Context, msg bus.Message) {
	if r.submitter == nil {
		return
	}

	var started bus.AuctionStarted
	if err := json.Unmarshal(msg.Value, &started); err != nil {
		return
	}
	// The auctions topic carries several event shapes; only AuctionStarted
	// has both a min bid and an end time.
	if started.End.IsZero() || started.MinBid.IsZero() {
		return
	}
	if r.policy.MaxBid.LessThan(started.MinBid) {
		log.Debug().
			Str("pool", started.Pool.Hex()).
			Uint64("auction_id", started.AuctionID).
			Str("min_bid", started.MinBid.String()).
			Msg("auto-bid skipped: budget below minimum")
		return
	}

	if err := r.submitter.PlaceBid(ctx, started.Pool, started.AuctionID, r.policy.MaxBid); err != nil {
		log.Warn().Err(err).
			Str("pool", started.Pool.Hex()).
			Uint64("auction_id", started.AuctionID).
			Msg("auto-bid failed")
		return
	}

	log.Info().
		Str("pool", started.Pool.Hex()).
		Uint64("auction_id", started.AuctionID).
		Str("amount", r.policy.MaxBid.String()).
		Msg("auto-bid placed")
}
