package guard

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/sentinel-amm/sentinel/internal/audit"
	"github.com/sentinel-amm/sentinel/internal/auction"
	"github.com/sentinel-amm/sentinel/internal/breaker"
	"github.com/sentinel-amm/sentinel/internal/bus"
	"github.com/sentinel-amm/sentinel/internal/insurance"
	"github.com/sentinel-amm/sentinel/internal/ledger"
	"github.com/sentinel-amm/sentinel/internal/observability"
	"github.com/sentinel-amm/sentinel/internal/oracle"
	"github.com/sentinel-amm/sentinel/internal/override"
	"github.com/sentinel-amm/sentinel/internal/registry"
	"github.com/sentinel-amm/sentinel/internal/scoring"
	"github.com/sentinel-amm/sentinel/internal/tracker"
)

const (
	producerName  = "sentinel-core"
	schemaVersion = "1"
)

// Config wires a Guard together.
type Config struct {
	Owner           common.Address
	Treasury        common.Address
	Protocol        common.Address
	Producer        bus.Producer
	ScoringParams   scoring.Params
	AuctionPolicy   auction.Policy
	InsuranceParams insurance.Params
	OracleSigners   []common.Address
	AuditCapacity   int
}

// Guard is the single state manager every mutating call flows through. It
// owns the pool registry, swap tracker, scorer, auction engine, insurance
// fund, fee override store, circuit breaker and ledger, enforces the owner
// capability and pause gates, and publishes every notification.
type Guard struct {
	mu sync.Mutex

	owner     common.Address
	ledger    *ledger.Ledger
	registry  *registry.Registry
	tracker   *tracker.Tracker
	scorer    *scoring.Scorer
	engine    *auction.Engine
	fund      *insurance.Fund
	overrides *override.Store
	breaker   *breaker.Breaker
	verifier  *oracle.Verifier
	producer  bus.Producer
	trail     *audit.Trail
	metrics   *observability.Metrics

	now func() time.Time
}

// New builds a Guard and all the components it owns.
func New(cfg Config) *Guard {
	l := ledger.New()

	policy := cfg.AuctionPolicy
	policy.Treasury = cfg.Treasury
	policy.Protocol = cfg.Protocol
	policy.InsuranceAccount = insurance.Account

	g := &Guard{
		owner:     cfg.Owner,
		ledger:    l,
		registry:  registry.New(),
		tracker:   tracker.New(cfg.ScoringParams.LargeSwapFloor),
		scorer:    scoring.New(cfg.ScoringParams),
		engine:    auction.NewEngine(policy, l),
		fund:      insurance.NewFund(cfg.InsuranceParams, l),
		overrides: override.NewStore(),
		breaker:   breaker.New(),
		verifier:  oracle.NewVerifier(cfg.OracleSigners...),
		producer:  cfg.Producer,
		trail:     audit.NewTrail(cfg.AuditCapacity, cfg.Producer),
		metrics:   observability.NewMetrics(),
		now:       time.Now,
	}

	log.Info().
		Str("owner", cfg.Owner.Hex()).
		Str("treasury", cfg.Treasury.Hex()).
		Str("protocol", cfg.Protocol.Hex()).
		Msg("guard initialized")

	return g
}

// Ledger exposes the balance ledger for genesis funding and inspection.
func (g *Guard) Ledger() *ledger.Ledger { return g.ledger }

// Trail exposes the audit trail.
func (g *Guard) Trail() *audit.Trail { return g.trail }

// Metrics exposes the metric set for the exporter.
func (g *Guard) Metrics() *observability.Metrics { return g.metrics }

// Paused reports whether the circuit breaker is engaged.
func (g *Guard) Paused() bool { return g.breaker.Paused() }

// Pools lists the registered pools.
func (g *Guard) Pools() []registry.Pool { return g.registry.Pools() }

// Auction returns a snapshot of one auction.
func (g *Guard) Auction(pool common.Address, id uint64) (auction.Auction, error) {
	return g.engine.Get(pool, id)
}

// FundBalance returns a pool's insurance fund balance.
func (g *Guard) FundBalance(pool common.Address) decimal.Decimal {
	return g.fund.Balance(pool)
}

// --- capability gates ---

func (g *Guard) requireOwner(caller common.Address) error {
	if caller != g.owner {
		return fmt.Errorf("%w: %s", ErrNotOwner, caller.Hex())
	}
	return nil
}

// allow is the circuit-breaker predicate: mutating calls go through unless
// paused, and the owner goes through always.
func (g *Guard) allow(caller common.Address) error {
	if g.breaker.Paused() && caller != g.owner {
		return ErrPaused
	}
	return nil
}

// --- event plumbing ---

func (g *Guard) publish(topic, key string, event interface{}) {
	if g.producer == nil {
		return
	}
	if err := g.producer.PublishJSON(context.Background(), topic, key, event); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("event publish failed")
	}
}

func (g *Guard) base() bus.BaseEvent {
	return bus.NewBaseEvent(producerName, schemaVersion)
}

func (g *Guard) record(actor common.Address, action string, pool common.Address, err error) {
	decision := audit.DecisionAllow
	detail := ""
	if err != nil {
		decision = audit.DecisionDeny
		detail = err.Error()
	}
	g.trail.Record(audit.Entry{
		Actor:    actor,
		Action:   action,
		Pool:     pool,
		Decision: decision,
		Detail:   detail,
	})
}

// --- administrative surface (owner-only, available while paused) ---

// TransferOwnership hands the owner capability to a new address.
func (g *Guard) TransferOwnership(caller, newOwner common.Address) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.owner = newOwner
	log.Info().Str("old", caller.Hex()).Str("new", newOwner.Hex()).Msg("ownership transferred")
	return nil
}

// RegisterPool allow-lists a pool with its alert threshold.
func (g *Guard) RegisterPool(caller, pool common.Address, alertThreshold decimal.Decimal) error {
	if err := g.requireOwner(caller); err != nil {
		g.record(caller, "register_pool", pool, err)
		return err
	}
	g.registry.Register(pool, alertThreshold)
	g.record(caller, "register_pool", pool, nil)
	return nil
}

// DisallowPool removes a pool from the allow-list. Its tracker history and
// insurance balance survive re-registration.
func (g *Guard) DisallowPool(caller, pool common.Address) error {
	if err := g.requireOwner(caller); err != nil {
		g.record(caller, "disallow_pool", pool, err)
		return err
	}
	g.registry.Disallow(pool)
	g.record(caller, "disallow_pool", pool, nil)
	return nil
}

// SetAlertThreshold replaces a registered pool's alert threshold.
func (g *Guard) SetAlertThreshold(caller, pool common.Address, threshold decimal.Decimal) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	return g.registry.SetAlertThreshold(pool, threshold)
}

// SetScoringParams replaces the global scoring parameters. The tracker's
// large-swap floor follows the scoring floor.
func (g *Guard) SetScoringParams(caller common.Address, p scoring.Params) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.scorer.SetParams(p)
	g.tracker.SetLargeSwapFloor(p.LargeSwapFloor)
	log.Info().Str("large_swap_floor", p.LargeSwapFloor.String()).Msg("scoring params updated")
	return nil
}

// SetAuctionPolicy replaces the auction policy. The insurance account is
// pinned; treasury and protocol move with the policy.
func (g *Guard) SetAuctionPolicy(caller common.Address, p auction.Policy) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	p.InsuranceAccount = insurance.Account
	g.engine.SetPolicy(p)
	return nil
}

// SetInsuranceParams replaces the insurance fund parameters.
func (g *Guard) SetInsuranceParams(caller common.Address, p insurance.Params) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.fund.SetParams(p)
	return nil
}

// AllowOracleSigner adds a trusted fee-recommendation signer.
func (g *Guard) AllowOracleSigner(caller, signer common.Address) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.verifier.AllowSigner(signer)
	return nil
}

// RevokeOracleSigner removes a trusted signer.
func (g *Guard) RevokeOracleSigner(caller, signer common.Address) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	g.verifier.RevokeSigner(signer)
	return nil
}

// Pause engages the circuit breaker. Non-owner mutating calls fail with
// ErrPaused until Unpause.
func (g *Guard) Pause(caller common.Address, reason string) error {
	if err := g.requireOwner(caller); err != nil {
		g.record(caller, "pause", common.Address{}, err)
		return err
	}

	state, err := g.breaker.Pause(reason)
	g.record(caller, "pause", common.Address{}, err)
	if err != nil {
		return err
	}

	g.metrics.PausedState.Set(1)
	g.publish(bus.TopicEmergency, "paused", bus.EmergencyPaused{
		BaseEvent: g.base(),
		Reason:    state.Reason,
		Since:     state.Since,
	})
	return nil
}

// Unpause releases the circuit breaker.
func (g *Guard) Unpause(caller common.Address) error {
	if err := g.requireOwner(caller); err != nil {
		g.record(caller, "unpause", common.Address{}, err)
		return err
	}

	pausedFor, err := g.breaker.Unpause()
	g.record(caller, "unpause", common.Address{}, err)
	if err != nil {
		return err
	}

	g.metrics.PausedState.Set(0)
	g.publish(bus.TopicEmergency, "unpaused", bus.EmergencyUnpaused{
		BaseEvent: g.base(),
		PausedFor: pausedFor,
	})
	return nil
}

// WithdrawFees moves accrued treasury funds to an external address.
func (g *Guard) WithdrawFees(caller, to common.Address, amount decimal.Decimal) error {
	if err := g.requireOwner(caller); err != nil {
		return err
	}
	return g.ledger.Transfer(g.engine.Policy().Treasury, to, amount)
}
