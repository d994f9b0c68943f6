package override

import (
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog/log"
)

// Override sources.
const (
	SourceAuction = "auction"
	SourceOracle  = "oracle"
)

// Override is a temporary per-pool fee replacement. It is overwritten
// wholesale on every install; there is no merging of fields.
type Override struct {
	FeeBps uint32    `json:"fee_bps"`
	Expiry time.Time `json:"expiry"`
	Source string    `json:"source"` // auction|oracle
}

// Store holds the per-pool fee overrides consulted by the pre-trade hook.
type Store struct {
	mu        sync.RWMutex
	overrides map[common.Address]Override
}

// NewStore creates an empty override store.
func NewStore() *Store {
	return &Store{overrides: make(map[common.Address]Override)}
}

// Install replaces the pool's override.
func (s *Store) Install(pool common.Address, o Override) {
	s.mu.Lock()
	s.overrides[pool] = o
	s.mu.Unlock()

	log.Info().
		Str("pool", pool.Hex()).
		Uint32("fee_bps", o.FeeBps).
		Time("expiry", o.Expiry).
		Str("source", o.Source).
		Msg("fee override installed")
}

// Active returns the override fee if one is live at time now. The second
// return is false when no override applies and the venue's default fee
// should be used.
func (s *Store) Active(pool common.Address, now time.Time) (uint32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.overrides[pool]
	if !ok || !now.Before(o.Expiry) {
		return 0, false
	}
	return o.FeeBps, true
}

// Get returns the stored override regardless of expiry, for inspection.
func (s *Store) Get(pool common.Address) (Override, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[pool]
	return o, ok
}
