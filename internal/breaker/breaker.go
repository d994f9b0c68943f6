package breaker

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrAlreadyPaused is returned by Pause when the breaker is tripped.
	ErrAlreadyPaused = errors.New("already paused")
	// ErrNotPaused is returned by Unpause when the breaker is not tripped.
	ErrNotPaused = errors.New("not paused")
)

// State is a snapshot of the circuit breaker.
type State struct {
	Paused bool      `json:"paused"`
	Reason string    `json:"reason,omitempty"`
	Since  time.Time `json:"since,omitempty"`
}

// Breaker is the global emergency pause flag. While tripped, every mutating
// entry point rejects non-owner callers; owner capability checks live with
// the guard, not here.
type Breaker struct {
	mu     sync.RWMutex
	paused bool
	reason string
	since  time.Time

	now func() time.Time
}

// New creates an untripped breaker.
func New() *Breaker {
	return &Breaker{now: time.Now}
}

// Pause trips the breaker with a free-text reason. Double-pause is rejected
// so an operator can't silently overwrite the original reason.
func (b *Breaker) Pause(reason string) (State, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.paused {
		return b.stateLocked(), ErrAlreadyPaused
	}

	b.paused = true
	b.reason = reason
	b.since = b.now()

	log.Warn().Str("reason", reason).Msg("EMERGENCY PAUSE - mutating entry points blocked")
	return b.stateLocked(), nil
}

// Unpause clears the breaker and returns how long it was tripped.
func (b *Breaker) Unpause() (time.Duration, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.paused {
		return 0, ErrNotPaused
	}

	pausedFor := b.now().Sub(b.since)
	b.paused = false
	b.reason = ""
	b.since = time.Time{}

	log.Info().Dur("paused_for", pausedFor).Msg("emergency pause lifted")
	return pausedFor, nil
}

// Paused reports whether the breaker is tripped.
func (b *Breaker) Paused() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.paused
}

// Snapshot returns the current breaker state.
func (b *Breaker) Snapshot() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.stateLocked()
}

func (b *Breaker) stateLocked() State {
	return State{Paused: b.paused, Reason: b.reason, Since: b.since}
}
