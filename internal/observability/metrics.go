package observability

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// MetricType identifies the kind of metric.
type MetricType string

const (
	MetricCounter   MetricType = "counter"
	MetricGauge     MetricType = "gauge"
	MetricHistogram MetricType = "histogram"
)

// MetricEntry represents a single metric value.
type MetricEntry struct {
	Name      string            `json:"name"`
	Type      MetricType        `json:"type"`
	Help      string            `json:"help"`
	Value     float64           `json:"value"`
	Labels    map[string]string `json:"labels,omitempty"`
	Timestamp time.Time         `json:"ts"`
}

// Counter is a monotonically increasing event count, lock-free via atomics.
type Counter struct {
	name   string
	help   string
	labels map[string]string
	value  atomic.Int64
}

// Inc increments the counter by 1.
func (c *Counter) Inc() {
	c.value.Add(1)
}

// Add increments the counter by delta. Negative deltas are ignored.
func (c *Counter) Add(delta int64) {
	if delta < 0 {
		return
	}
	c.value.Add(delta)
}

// Value returns the current counter value.
func (c *Counter) Value() int64 {
	return c.value.Load()
}

// Entry returns a MetricEntry snapshot.
func (c *Counter) Entry() MetricEntry {
	return MetricEntry{
		Name:      c.name,
		Type:      MetricCounter,
		Help:      c.help,
		Value:     float64(c.Value()),
		Labels:    copyLabels(c.labels),
		Timestamp: time.Now(),
	}
}

// Gauge can go up and down.
type Gauge struct {
	name   string
	help   string
	labels map[string]string
	mu     sync.Mutex
	value  float64
}

// Set sets the gauge to the given value.
func (g *Gauge) Set(v float64) {
	g.mu.Lock()
	g.value = v
	g.mu.Unlock()
}

// Inc increments the gauge by 1.
func (g *Gauge) Inc() {
	g.mu.Lock()
	g.value++
	g.mu.Unlock()
}

// Dec decrements the gauge by 1.
func (g *Gauge) Dec() {
	g.mu.Lock()
	g.value--
	g.mu.Unlock()
}

// Value returns the current gauge value.
func (g *Gauge) Value() float64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.value
}

// Entry returns a MetricEntry snapshot.
func (g *Gauge) Entry() MetricEntry {
	return MetricEntry{
		Name:      g.name,
		Type:      MetricGauge,
		Help:      g.help,
		Value:     g.Value(),
		Labels:    copyLabels(g.labels),
		Timestamp: time.Now(),
	}
}

// Histogram tracks value distributions in buckets.
// Buckets are upper-bound inclusive: a value <= bucket[i] increments counts[i].
type Histogram struct {
	name    string
	help    string
	labels  map[string]string
	mu      sync.Mutex
	buckets []float64 // sorted upper bounds
	counts  []int64
	sum     float64
	count   int64
}

// Observe records a value into the histogram.
func (h *Histogram) Observe(v float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sum += v
	h.count++
	for i, b := range h.buckets {
		if v <= b {
			h.counts[i]++
		}
	}
}

// Count returns the total number of observations.
func (h *Histogram) Count() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// Sum returns the sum of all observed values.
func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Entry returns a MetricEntry snapshot (value = count).
func (h *Histogram) Entry() MetricEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return MetricEntry{
		Name:      h.name,
		Type:      MetricHistogram,
		Help:      h.help,
		Value:     float64(h.count),
		Labels:    copyLabels(h.labels),
		Timestamp: time.Now(),
	}
}

// BucketCounts returns a snapshot of (upper-bound, cumulative-count) pairs
// for the Prometheus exporter.
func (h *Histogram) BucketCounts() (buckets []float64, counts []int64, sum float64, count int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	b := make([]float64, len(h.buckets))
	c := make([]int64, len(h.counts))
	copy(b, h.buckets)
	copy(c, h.counts)
	return b, c, h.sum, h.count
}

// Registry manages all metrics. It is safe for concurrent use.
type Registry struct {
	mu         sync.RWMutex
	counters   map[string]*Counter
	gauges     map[string]*Gauge
	histograms map[string]*Histogram
}

// NewRegistry creates an empty metric registry.
func NewRegistry() *Registry {
	return &Registry{
		counters:   make(map[string]*Counter),
		gauges:     make(map[string]*Gauge),
		histograms: make(map[string]*Histogram),
	}
}

// NewCounter registers and returns a counter metric. Registering the same
// name twice returns the existing counter.
func (r *Registry) NewCounter(name, help string, labels map[string]string) *Counter {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.counters[name]; ok {
		return existing
	}
	c := &Counter{name: name, help: help, labels: copyLabels(labels)}
	r.counters[name] = c
	return c
}

// NewGauge registers and returns a gauge metric.
func (r *Registry) NewGauge(name, help string, labels map[string]string) *Gauge {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.gauges[name]; ok {
		return existing
	}
	g := &Gauge{name: name, help: help, labels: copyLabels(labels)}
	r.gauges[name] = g
	return g
}

// NewHistogram registers and returns a histogram metric.
func (r *Registry) NewHistogram(name, help string, labels map[string]string, buckets []float64) *Histogram {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.histograms[name]; ok {
		return existing
	}
	sorted := make([]float64, len(buckets))
	copy(sorted, buckets)
	sort.Float64s(sorted)

	h := &Histogram{
		name:    name,
		help:    help,
		labels:  copyLabels(labels),
		buckets: sorted,
		counts:  make([]int64, len(sorted)),
	}
	r.histograms[name] = h
	return h
}

// GetCounter returns a registered counter or nil.
func (r *Registry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.counters[name]
}

// GetGauge returns a registered gauge or nil.
func (r *Registry) GetGauge(name string) *Gauge {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.gauges[name]
}

// GetHistogram returns a registered histogram or nil.
func (r *Registry) GetHistogram(name string) *Histogram {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.histograms[name]
}

// AllMetrics returns a snapshot of all registered metric entries in
// deterministic (sorted) order.
func (r *Registry) AllMetrics() []MetricEntry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]MetricEntry, 0, len(r.counters)+len(r.gauges)+len(r.histograms))
	for _, name := range sortedKeys(r.counters) {
		entries = append(entries, r.counters[name].Entry())
	}
	for _, name := range sortedKeys(r.gauges) {
		entries = append(entries, r.gauges[name].Entry())
	}
	for _, name := range sortedKeys(r.histograms) {
		entries = append(entries, r.histograms[name].Entry())
	}
	return entries
}

// DefaultLatencyBuckets for latency histograms (in milliseconds).
var DefaultLatencyBuckets = []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2500, 5000, 10000}

// Metrics bundles the standard sentinel instruments so callers don't go
// through the registry by name on hot paths.
type Metrics struct {
	Registry *Registry

	SwapsObserved     *Counter
	AlertsRaised      *Counter
	AuctionsStarted   *Counter
	BidsAccepted      *Counter
	BidsRejected      *Counter
	AuctionsSettled   *Counter
	OverridesActive   *Gauge
	InsuranceDeposits *Counter
	ClaimsPaid        *Counter
	ClaimsRejected    *Counter
	PausedState       *Gauge
	ScoreLatencyMs    *Histogram
}

// NewMetrics creates a registry pre-configured with the sentinel metric set.
func NewMetrics() *Metrics {
	r := NewRegistry()
	return &Metrics{
		Registry: r,

		SwapsObserved: r.NewCounter("sentinel_swaps_observed_total",
			"Total swaps recorded through the venue hooks", nil),
		AlertsRaised: r.NewCounter("sentinel_mev_alerts_total",
			"Total swaps scored at or above the pool alert threshold", nil),
		AuctionsStarted: r.NewCounter("sentinel_auctions_started_total",
			"Total auctions opened", nil),
		BidsAccepted: r.NewCounter("sentinel_bids_accepted_total",
			"Total bids that took the auction lead", nil),
		BidsRejected: r.NewCounter("sentinel_bids_rejected_total",
			"Total bids rejected by validation or the effective-bid rule", nil),
		AuctionsSettled: r.NewCounter("sentinel_auctions_settled_total",
			"Total auctions finalized", nil),
		OverridesActive: r.NewGauge("sentinel_fee_overrides_installed",
			"Fee overrides installed since start", nil),
		InsuranceDeposits: r.NewCounter("sentinel_insurance_deposits_total",
			"Total insurance fund deposits", nil),
		ClaimsPaid: r.NewCounter("sentinel_insurance_claims_paid_total",
			"Total insurance claims paid out", nil),
		ClaimsRejected: r.NewCounter("sentinel_insurance_claims_rejected_total",
			"Total insurance claims rejected", nil),
		PausedState: r.NewGauge("sentinel_paused",
			"1 while the circuit breaker is engaged, 0 otherwise", nil),
		ScoreLatencyMs: r.NewHistogram("sentinel_score_latency_ms",
			"Swap scoring latency in milliseconds", nil, DefaultLatencyBuckets),
	}
}

func copyLabels(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
