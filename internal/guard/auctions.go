package guard

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/sentinel-amm/sentinel/internal/auction"
	"github.com/sentinel-amm/sentinel/internal/bus"
	"github.com/sentinel-amm/sentinel/internal/override"
)

// StartAuction opens an auction on a registered pool. When the policy's
// owner-only flag is set, only the owner may start one.
func (g *Guard) StartAuction(caller, pool common.Address, minBid decimal.Decimal, duration time.Duration) (auction.Auction, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.allow(caller); err != nil {
		g.record(caller, "start_auction", pool, err)
		return auction.Auction{}, err
	}
	if g.engine.Policy().OwnerOnlyStart {
		if err := g.requireOwner(caller); err != nil {
			g.record(caller, "start_auction", pool, err)
			return auction.Auction{}, err
		}
	}
	if _, err := g.registry.Require(pool); err != nil {
		g.record(caller, "start_auction", pool, err)
		return auction.Auction{}, err
	}

	a, err := g.engine.Start(pool, minBid, duration)
	g.record(caller, "start_auction", pool, err)
	if err != nil {
		return auction.Auction{}, err
	}

	g.metrics.AuctionsStarted.Inc()
	g.publish(bus.TopicAuctions, pool.Hex(), bus.AuctionStarted{
		BaseEvent: g.base(),
		Pool:      pool,
		AuctionID: a.ID,
		MinBid:    a.MinBid,
		Start:     a.Start,
		End:       a.End,
		FeeBps:    a.FeeBps,
	})
	return a, nil
}

// PlaceBid submits a bid on behalf of caller. An accepted bid emits both
// BidPlaced and the TimeWeightedBid breakdown.
func (g *Guard) PlaceBid(caller, pool common.Address, id uint64, amount decimal.Decimal) (auction.BidResult, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.allow(caller); err != nil {
		g.metrics.BidsRejected.Inc()
		g.record(caller, "place_bid", pool, err)
		return auction.BidResult{}, err
	}
	if _, err := g.registry.Require(pool); err != nil {
		g.metrics.BidsRejected.Inc()
		g.record(caller, "place_bid", pool, err)
		return auction.BidResult{}, err
	}

	res, err := g.engine.PlaceBid(pool, id, caller, amount)
	g.record(caller, "place_bid", pool, err)
	if err != nil {
		g.metrics.BidsRejected.Inc()
		return auction.BidResult{}, err
	}

	g.metrics.BidsAccepted.Inc()
	g.publish(bus.TopicAuctions, pool.Hex(), bus.BidPlaced{
		BaseEvent: g.base(),
		Pool:      pool,
		AuctionID: id,
		Bidder:    caller,
		Amount:    res.Raw,
	})
	g.publish(bus.TopicAuctions, pool.Hex(), bus.TimeWeightedBid{
		BaseEvent:    g.base(),
		Pool:         pool,
		AuctionID:    id,
		Bidder:       caller,
		RawBid:       res.Raw,
		EffectiveBid: res.Effective,
		BonusPct:     res.BonusPct,
	})
	return res, nil
}

// FinalizeAuction settles an ended auction: pays out the split, credits
// the pool's insurance fund with the remainder, and unconditionally
// installs the fee override captured at auction start.
func (g *Guard) FinalizeAuction(caller, pool common.Address, id uint64) (auction.Settlement, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.allow(caller); err != nil {
		g.record(caller, "finalize_auction", pool, err)
		return auction.Settlement{}, err
	}

	s, err := g.engine.Finalize(pool, id)
	g.record(caller, "finalize_auction", pool, err)
	if err != nil {
		return auction.Settlement{}, err
	}

	g.metrics.AuctionsSettled.Inc()

	if s.HadWinner {
		newTotal := g.fund.CreditProceeds(pool, s.InsuranceCut)
		g.publish(bus.TopicInsurance, pool.Hex(), bus.InsuranceTopUp{
			BaseEvent: g.base(),
			Pool:      pool,
			AuctionID: id,
			Amount:    s.InsuranceCut,
			NewTotal:  newTotal,
		})
	}

	expiry := g.now().Add(g.engine.Policy().OverrideDuration)
	g.overrides.Install(pool, override.Override{
		FeeBps: s.FeeBps,
		Expiry: expiry,
		Source: override.SourceAuction,
	})
	g.metrics.OverridesActive.Inc()
	g.publish(bus.TopicAuctions, pool.Hex(), bus.AuctionSettled{
		BaseEvent:    g.base(),
		Pool:         pool,
		AuctionID:    id,
		Winner:       s.Winner,
		WinningBid:   s.WinningBid,
		WinnerShare:  s.WinnerShare,
		TreasuryCut:  s.TreasuryCut,
		ProtocolCut:  s.ProtocolCut,
		InsuranceCut: s.InsuranceCut,
		FeeBps:       s.FeeBps,
	})
	g.publish(bus.TopicAuctions, pool.Hex(), bus.FeeOverrideInstalled{
		BaseEvent: g.base(),
		Pool:      pool,
		FeeBps:    s.FeeBps,
		Expiry:    expiry,
		Source:    override.SourceAuction,
	})

	return s, nil
}
