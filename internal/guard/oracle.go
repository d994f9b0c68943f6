package guard

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/sentinel-amm/sentinel/internal/bus"
	"github.com/sentinel-amm/sentinel/internal/oracle"
	"github.com/sentinel-amm/sentinel/internal/override"
)

// ApplyRecommendation verifies a signed fee recommendation and, on
// success, installs it as the pool's fee override until its deadline.
// Anyone may relay a recommendation; authority comes from the signature.
func (g *Guard) ApplyRecommendation(caller common.Address, rec oracle.Recommendation) (common.Address, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.allow(caller); err != nil {
		g.record(caller, "apply_recommendation", rec.Pool, err)
		return common.Address{}, err
	}
	if _, err := g.registry.Require(rec.Pool); err != nil {
		g.record(caller, "apply_recommendation", rec.Pool, err)
		return common.Address{}, err
	}

	signer, err := g.verifier.Verify(rec)
	g.record(caller, "apply_recommendation", rec.Pool, err)
	if err != nil {
		return common.Address{}, err
	}

	g.overrides.Install(rec.Pool, override.Override{
		FeeBps: rec.FeeBps,
		Expiry: rec.Deadline,
		Source: override.SourceOracle,
	})
	g.metrics.OverridesActive.Inc()
	g.publish(bus.TopicAuctions, rec.Pool.Hex(), bus.FeeOverrideInstalled{
		BaseEvent: g.base(),
		Pool:      rec.Pool,
		FeeBps:    rec.FeeBps,
		Expiry:    rec.Deadline,
		Source:    override.SourceOracle,
	})
	return signer, nil
}
