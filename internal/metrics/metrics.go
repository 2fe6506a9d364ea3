// Package metrics keeps in-process counters, gauges and histograms and can
// print them in the Prometheus text format.
package metrics

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Labels are constant labels attached to one metric.
type Labels map[string]string

// String renders labels sorted by key, e.g. {a="1",b="2"}. Empty labels
// render as "".
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteByte('{')
	for i, k := range slices.Sorted(maps.Keys(l)) {
		if i > 0 {
			b.WriteByte(',')
		}
		fmt.Fprintf(&b, "%s=%q", k, l[k])
	}
	b.WriteByte('}')
	return b.String()
}

// with adds one more label pair inside the braces.
func (l Labels) with(k, v string) string {
	s := l.String()
	pair := fmt.Sprintf("%s=%q", k, v)
	if s == "" {
		return "{" + pair + "}"
	}
	return s[:len(s)-1] + "," + pair + "}"
}

type desc struct {
	name   string
	help   string
	labels Labels
}

// Name returns the full metric name.
func (d *desc) Name() string { return d.name }

func (d *desc) header(w io.Writer, kind string) {
	fmt.Fprintf(w, "# HELP %s %s\n# TYPE %s %s\n", d.name, d.help, d.name, kind)
}

// collector is what the Registry stores.
type collector interface {
	expose(w io.Writer)
	snapshot(into map[string]any)
	reset()
}

// Counter only goes up.
type Counter struct {
	desc
	v atomic.Uint64
}

func NewCounter(name, help string, labels Labels) *Counter {
	return &Counter{desc: desc{name, help, labels}}
}

func (c *Counter) Inc()          { c.v.Add(1) }
func (c *Counter) Add(n uint64)  { c.v.Add(n) }
func (c *Counter) Value() uint64 { return c.v.Load() }

func (c *Counter) expose(w io.Writer) {
	c.header(w, "counter")
	fmt.Fprintf(w, "%s%s %d\n", c.name, c.labels, c.Value())
}
func (c *Counter) snapshot(m map[string]any) { m[c.name] = c.Value() }
func (c *Counter) reset()                    { c.v.Store(0) }

// Gauge holds a value that can move both ways.
type Gauge struct {
	desc
	v atomic.Int64
}

func NewGauge(name, help string, labels Labels) *Gauge {
	return &Gauge{desc: desc{name, help, labels}}
}

func (g *Gauge) Set(n int64)  { g.v.Store(n) }
func (g *Gauge) Inc()         { g.v.Add(1) }
func (g *Gauge) Dec()         { g.v.Add(-1) }
func (g *Gauge) Value() int64 { return g.v.Load() }

func (g *Gauge) expose(w io.Writer) {
	g.header(w, "gauge")
	fmt.Fprintf(w, "%s%s %d\n", g.name, g.labels, g.Value())
}
func (g *Gauge) snapshot(m map[string]any) { m[g.name] = g.Value() }
func (g *Gauge) reset()                    { g.v.Store(0) }

// DurationBuckets suit latencies in seconds.
var DurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// ScoreBuckets cover the 0..100 complexity score.
var ScoreBuckets = []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100}

// Histogram counts observations into upper-bounded buckets.
type Histogram struct {
	desc
	bounds []float64

	mu    sync.Mutex
	hits  []uint64 // per bucket, plus one for +Inf
	sum   float64
	count uint64
}

// NewHistogram sorts a copy of bounds. Nil bounds mean DurationBuckets.
func NewHistogram(name, help string, labels Labels, bounds []float64) *Histogram {
	if bounds == nil {
		bounds = DurationBuckets
	}
	bounds = slices.Clone(bounds)
	slices.Sort(bounds)
	return &Histogram{
		desc:   desc{name, help, labels},
		bounds: bounds,
		hits:   make([]uint64, len(bounds)+1),
	}
}

// Observe counts v in the first bucket whose bound is >= v.
func (h *Histogram) Observe(v float64) {
	i, _ := slices.BinarySearch(h.bounds, v)
	h.mu.Lock()
	h.hits[i]++
	h.sum += v
	h.count++
	h.mu.Unlock()
}

func (h *Histogram) ObserveDuration(d time.Duration) { h.Observe(d.Seconds()) }

func (h *Histogram) Count() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

func (h *Histogram) Sum() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sum
}

// Mean is 0 for an empty histogram.
func (h *Histogram) Mean() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.count == 0 {
		return 0
	}
	return h.sum / float64(h.count)
}

// Cumulative returns running bucket totals; the last entry is +Inf.
func (h *Histogram) Cumulative() []uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]uint64, len(h.hits))
	var total uint64
	for i, n := range h.hits {
		total += n
		out[i] = total
	}
	return out
}

func (h *Histogram) expose(w io.Writer) {
	h.header(w, "histogram")
	cum := h.Cumulative()
	for i, bound := range h.bounds {
		fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.with("le", fmt.Sprintf("%g", bound)), cum[i])
	}
	fmt.Fprintf(w, "%s_bucket%s %d\n", h.name, h.labels.with("le", "+Inf"), cum[len(cum)-1])
	fmt.Fprintf(w, "%s_sum%s %g\n", h.name, h.labels, h.Sum())
	fmt.Fprintf(w, "%s_count%s %d\n", h.name, h.labels, h.Count())
}

func (h *Histogram) snapshot(m map[string]any) {
	m[h.name+"_sum"] = h.Sum()
	m[h.name+"_count"] = h.Count()
	m[h.name+"_mean"] = h.Mean()
}

func (h *Histogram) reset() {
	h.mu.Lock()
	clear(h.hits)
	h.sum, h.count = 0, 0
	h.mu.Unlock()
}

// Registry owns metrics under a namespace.
type Registry struct {
	namespace string

	mu      sync.RWMutex
	metrics map[string]collector
}

// NewRegistry prefixes every metric name with namespace and "_", unless
// namespace is empty.
func NewRegistry(namespace string) *Registry {
	return &Registry{namespace: namespace, metrics: make(map[string]collector)}
}

func (r *Registry) qualify(name string) string {
	if r.namespace == "" {
		return name
	}
	return r.namespace + "_" + name
}

// register returns the metric already under name if it has type T, and
// otherwise stores a new one.
func register[T collector](r *Registry, name string, create func(full string) T) T {
	full := r.qualify(name)
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.metrics[full].(T); ok {
		return m
	}
	m := create(full)
	r.metrics[full] = m
	return m
}

func (r *Registry) RegisterCounter(name, help string, labels Labels) *Counter {
	return register(r, name, func(full string) *Counter { return NewCounter(full, help, labels) })
}

func (r *Registry) RegisterGauge(name, help string, labels Labels) *Gauge {
	return register(r, name, func(full string) *Gauge { return NewGauge(full, help, labels) })
}

func (r *Registry) RegisterHistogram(name, help string, labels Labels, bounds []float64) *Histogram {
	return register(r, name, func(full string) *Histogram { return NewHistogram(full, help, labels, bounds) })
}

// GetCounter looks a counter up by its short name.
func (r *Registry) GetCounter(name string) *Counter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, _ := r.metrics[r.qualify(name)].(*Counter)
	return c
}

// WritePrometheus writes every metric in name order.
func (r *Registry) WritePrometheus(w io.Writer) error {
	r.mu.RLock()
	var b strings.Builder
	for _, name := range slices.Sorted(maps.Keys(r.metrics)) {
		r.metrics[name].expose(&b)
	}
	r.mu.RUnlock()

	_, err := io.WriteString(w, b.String())
	return err
}

// Snapshot maps full names to values. Histograms contribute _sum, _count
// and _mean entries.
func (r *Registry) Snapshot() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]any, len(r.metrics))
	for _, m := range r.metrics {
		m.snapshot(out)
	}
	return out
}

// Reset zeroes every metric.
func (r *Registry) Reset() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.metrics {
		m.reset()
	}
}
