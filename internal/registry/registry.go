package registry

import (
	"errors"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// ErrNotRegistered is returned when an operation targets an unknown or
// disallowed pool.
var ErrNotRegistered = errors.New("pool not registered")

// Pool is the registration record for one protected venue instance.
type Pool struct {
	Address        common.Address  `json:"address"`
	Allowed        bool            `json:"allowed"`
	AlertThreshold decimal.Decimal `json:"alert_threshold"`
}

// Registry is the allow-list of pools permitted to report swaps and host
// auctions. All access goes through accessor methods; there is no ambient
// global state.
type Registry struct {
	mu    sync.RWMutex
	pools map[common.Address]*Pool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{pools: make(map[common.Address]*Pool)}
}

// Register allow-lists a pool with the given alert threshold. Registering an
// existing pool re-enables it and replaces its threshold.
func (r *Registry) Register(pool common.Address, alertThreshold decimal.Decimal) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.pools[pool] = &Pool{
		Address:        pool,
		Allowed:        true,
		AlertThreshold: alertThreshold,
	}

	log.Info().
		Str("pool", pool.Hex()).
		Str("alert_threshold", alertThreshold.String()).
		Msg("pool registered")
}

// Disallow flips a pool's allow-flag off without forgetting its threshold.
func (r *Registry) Disallow(pool common.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if p, ok := r.pools[pool]; ok {
		p.Allowed = false
		log.Info().Str("pool", pool.Hex()).Msg("pool disallowed")
	}
}

// SetAlertThreshold updates the per-pool MEV alert threshold.
func (r *Registry) SetAlertThreshold(pool common.Address, threshold decimal.Decimal) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.pools[pool]
	if !ok {
		return ErrNotRegistered
	}
	p.AlertThreshold = threshold
	return nil
}

// Require returns the pool record if it is registered and allowed.
func (r *Registry) Require(pool common.Address) (Pool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.pools[pool]
	if !ok || !p.Allowed {
		return Pool{}, ErrNotRegistered
	}
	return *p, nil
}

// Allowed reports whether a pool is registered and allowed.
func (r *Registry) Allowed(pool common.Address) bool {
	_, err := r.Require(pool)
	return err == nil
}

// Pools returns a snapshot of all registrations, allowed or not.
func (r *Registry) Pools() []Pool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, *p)
	}
	return out
}
