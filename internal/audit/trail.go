package audit

import (
	"context"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sentinel-amm/sentinel/internal/bus"
)

// Decision outcomes.
const (
	DecisionAllow = "allow"
	DecisionDeny  = "deny"
)

// Entry is one guarded decision: who tried what against which pool, and
// whether it went through.
type Entry struct {
	ID       string         `json:"id"`
	At       time.Time      `json:"at"`
	Actor    common.Address `json:"actor"`
	Action   string         `json:"action"`
	Pool     common.Address `json:"pool,omitempty"`
	Decision string         `json:"decision"`
	Detail   string         `json:"detail,omitempty"`
	TraceID  string         `json:"trace_id,omitempty"`
}

// Trail keeps a capped in-memory history of decisions and mirrors each
// entry onto the bus. Publish failures are logged and dropped: the trail
// is an observer, never a gate.
type Trail struct {
	mu       sync.Mutex
	entries  []Entry
	capacity int
	producer bus.Producer

	now func() time.Time
}

// NewTrail creates a trail retaining at most capacity entries. producer may
// be nil for a purely in-memory trail.
func NewTrail(capacity int, producer bus.Producer) *Trail {
	if capacity <= 0 {
		capacity = 1024
	}
	return &Trail{
		capacity: capacity,
		producer: producer,
		now:      time.Now,
	}
}

// Record appends an entry, evicting the oldest when full, and publishes it.
func (t *Trail) Record(e Entry) Entry {
	t.mu.Lock()
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.At.IsZero() {
		e.At = t.now()
	}
	t.entries = append(t.entries, e)
	if len(t.entries) > t.capacity {
		t.entries = t.entries[len(t.entries)-t.capacity:]
	}
	producer := t.producer
	t.mu.Unlock()

	if producer != nil {
		if err := producer.PublishJSON(context.Background(), bus.TopicAudit, e.Action, e); err != nil {
			log.Warn().Err(err).Str("action", e.Action).Msg("audit publish failed")
		}
	}
	return e
}

// Recent returns up to n entries, newest first.
func (t *Trail) Recent(n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	if n <= 0 || n > len(t.entries) {
		n = len(t.entries)
	}
	out := make([]Entry, 0, n)
	for i := len(t.entries) - 1; i >= len(t.entries)-n; i-- {
		out = append(out, t.entries[i])
	}
	return out
}

// ByPool returns up to n entries touching the pool, newest first.
func (t *Trail) ByPool(pool common.Address, n int) []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()

	var out []Entry
	for i := len(t.entries) - 1; i >= 0 && (n <= 0 || len(out) < n); i-- {
		if t.entries[i].Pool == pool {
			out = append(out, t.entries[i])
		}
	}
	return out
}

// Len returns the number of retained entries.
func (t *Trail) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}
