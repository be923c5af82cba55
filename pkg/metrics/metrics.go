package metrics

import (
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

// ErrLabelCountMismatch is returned when the number of label values doesn't
// match the defined labels.
var ErrLabelCountMismatch = errors.New("label count mismatch")

// ErrNegativeCounterValue is returned when attempting to add a negative value
// to a counter.
var ErrNegativeCounterValue = errors.New("counter cannot be decreased")

// ErrDuplicateMetric is returned when registering a metric with a name that
// is already registered.
var ErrDuplicateMetric = errors.New("duplicate metric name")

// MetricType represents the type of a metric.
type MetricType string

const (
	MetricTypeCounter   MetricType = "counter"
	MetricTypeGauge     MetricType = "gauge"
	MetricTypeHistogram MetricType = "histogram"
)

// Metric is the interface implemented by all metric types.
type Metric interface {
	// Name returns the metric name.
	Name() string
	// Help returns the help text.
	Help() string
	// Type returns the metric type.
	Type() MetricType
	// Collect returns all metric samples for exposition.
	Collect() []Sample
}

// Sample represents a single metric sample with labels.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// atomicFloat64 stores a float64 as uint64 bits for atomic access.
type atomicFloat64 struct {
	bits atomic.Uint64
}

func (a *atomicFloat64) Load() float64 {
	return math.Float64frombits(a.bits.Load())
}

func (a *atomicFloat64) Store(val float64) {
	a.bits.Store(math.Float64bits(val))
}

func (a *atomicFloat64) Add(delta float64) {
	for {
		old := a.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// labeled pairs one label combination with its value cell.
type labeled[V any] struct {
	labels map[string]string
	value  V
}

// series holds every label combination of one metric. All three metric types
// share this store; only the value cell differs.
type series[V any] struct {
	labelNames []string
	mu         sync.RWMutex
	values     map[string]*labeled[V]
}

func newSeries[V any](labelNames []string) *series[V] {
	return &series[V]{
		labelNames: labelNames,
		values:     make(map[string]*labeled[V]),
	}
}

// get returns the cell for the label values, creating it on first use.
func (s *series[V]) get(metric string, mk func() V, values []string) (V, error) {
	var zero V
	if len(values) != len(s.labelNames) {
		return zero, fmt.Errorf("%w: %s expected %d labels, got %d",
			ErrLabelCountMismatch, metric, len(s.labelNames), len(values))
	}

	key := strings.Join(values, "\x00")
	s.mu.RLock()
	cell, ok := s.values[key]
	s.mu.RUnlock()
	if ok {
		return cell.value, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if cell, ok = s.values[key]; ok {
		return cell.value, nil
	}
	labels := make(map[string]string, len(s.labelNames))
	for i, name := range s.labelNames {
		labels[name] = values[i]
	}
	cell = &labeled[V]{labels: labels, value: mk()}
	s.values[key] = cell
	return cell.value, nil
}

// collect calls fn for every label combination, in deterministic key order.
func (s *series[V]) collect(fn func(labels map[string]string, value V)) {
	s.mu.RLock()
	keys := make([]string, 0, len(s.values))
	for k := range s.values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fn(s.values[k].labels, s.values[k].value)
	}
	s.mu.RUnlock()
}

// Counter is a monotonically increasing metric.
type Counter struct {
	name string
	help string
	s    *series[*atomicFloat64]
}

func newCounter(name, help string, labelNames []string) *Counter {
	return &Counter{name: name, help: help, s: newSeries[*atomicFloat64](labelNames)}
}

// Name returns the metric name.
func (c *Counter) Name() string { return c.name }

// Help returns the help text.
func (c *Counter) Help() string { return c.help }

// Type returns the metric type.
func (c *Counter) Type() MetricType { return MetricTypeCounter }

// WithLabels returns a CounterVec for the given label values. The number of
// values must match the number of label names.
func (c *Counter) WithLabels(values ...string) (*CounterVec, error) {
	cell, err := c.s.get(c.name, func() *atomicFloat64 { return &atomicFloat64{} }, values)
	if err != nil {
		return nil, err
	}
	return &CounterVec{name: c.name, cell: cell}, nil
}

// Inc increments the counter by 1 (for counters without labels).
func (c *Counter) Inc() error { return c.Add(1) }

// Add adds the given value to the counter (for counters without labels).
func (c *Counter) Add(delta float64) error {
	vec, err := c.WithLabels()
	if err != nil {
		return err
	}
	return vec.Add(delta)
}

// Collect returns all metric samples.
func (c *Counter) Collect() []Sample {
	var samples []Sample
	c.s.collect(func(labels map[string]string, v *atomicFloat64) {
		samples = append(samples, Sample{Name: c.name, Labels: labels, Value: v.Load()})
	})
	return samples
}

// CounterVec provides methods for a specific label combination.
type CounterVec struct {
	name string
	cell *atomicFloat64
}

// Inc increments the counter by 1.
func (v *CounterVec) Inc() error { return v.Add(1) }

// Add adds the given value to the counter.
func (v *CounterVec) Add(delta float64) error {
	if delta < 0 {
		return fmt.Errorf("%w: %s", ErrNegativeCounterValue, v.name)
	}
	v.cell.Add(delta)
	return nil
}

// Gauge is a metric that can arbitrarily go up and down.
type Gauge struct {
	name string
	help string
	s    *series[*atomicFloat64]
}

func newGauge(name, help string, labelNames []string) *Gauge {
	return &Gauge{name: name, help: help, s: newSeries[*atomicFloat64](labelNames)}
}

// Name returns the metric name.
func (g *Gauge) Name() string { return g.name }

// Help returns the help text.
func (g *Gauge) Help() string { return g.help }

// Type returns the metric type.
func (g *Gauge) Type() MetricType { return MetricTypeGauge }

// WithLabels returns a GaugeVec for the given label values.
func (g *Gauge) WithLabels(values ...string) (*GaugeVec, error) {
	cell, err := g.s.get(g.name, func() *atomicFloat64 { return &atomicFloat64{} }, values)
	if err != nil {
		return nil, err
	}
	return &GaugeVec{cell: cell}, nil
}

// Set sets the gauge to the given value (for gauges without labels).
func (g *Gauge) Set(value float64) error {
	vec, err := g.WithLabels()
	if err != nil {
		return err
	}
	vec.Set(value)
	return nil
}

// Inc increments the gauge by 1 (for gauges without labels).
func (g *Gauge) Inc() error { return g.Add(1) }

// Dec decrements the gauge by 1 (for gauges without labels).
func (g *Gauge) Dec() error { return g.Add(-1) }

// Add adds the given value to the gauge (for gauges without labels).
func (g *Gauge) Add(delta float64) error {
	vec, err := g.WithLabels()
	if err != nil {
		return err
	}
	vec.Add(delta)
	return nil
}

// Collect returns all metric samples.
func (g *Gauge) Collect() []Sample {
	var samples []Sample
	g.s.collect(func(labels map[string]string, v *atomicFloat64) {
		samples = append(samples, Sample{Name: g.name, Labels: labels, Value: v.Load()})
	})
	return samples
}

// GaugeVec provides methods for a specific label combination.
type GaugeVec struct {
	cell *atomicFloat64
}

// Set sets the gauge to the given value.
func (v *GaugeVec) Set(value float64) { v.cell.Store(value) }

// Inc increments the gauge by 1.
func (v *GaugeVec) Inc() { v.cell.Add(1) }

// Dec decrements the gauge by 1.
func (v *GaugeVec) Dec() { v.cell.Add(-1) }

// Add adds the given value to the gauge.
func (v *GaugeVec) Add(delta float64) { v.cell.Add(delta) }

// histogramCell accumulates observations for one label combination.
type histogramCell struct {
	bounds []float64 // sorted upper bounds, last is +Inf
	counts []atomic.Uint64
	sum    atomicFloat64
	count  atomic.Uint64
}

func (hc *histogramCell) observe(value float64) {
	for i, bound := range hc.bounds {
		if value <= bound {
			hc.counts[i].Add(1)
			break
		}
	}
	hc.sum.Add(value)
	hc.count.Add(1)
}

// Histogram tracks the distribution of observed values in cumulative buckets.
type Histogram struct {
	name   string
	help   string
	bounds []float64
	s      *series[*histogramCell]
}

func newHistogram(name, help string, buckets []float64, labelNames []string) *Histogram {
	bounds := make([]float64, len(buckets))
	copy(bounds, buckets)
	sort.Float64s(bounds)
	if len(bounds) == 0 || !math.IsInf(bounds[len(bounds)-1], 1) {
		bounds = append(bounds, math.Inf(1))
	}
	return &Histogram{
		name:   name,
		help:   help,
		bounds: bounds,
		s:      newSeries[*histogramCell](labelNames),
	}
}

// Name returns the metric name.
func (h *Histogram) Name() string { return h.name }

// Help returns the help text.
func (h *Histogram) Help() string { return h.help }

// Type returns the metric type.
func (h *Histogram) Type() MetricType { return MetricTypeHistogram }

// WithLabels returns a HistogramVec for the given label values.
func (h *Histogram) WithLabels(values ...string) (*HistogramVec, error) {
	cell, err := h.s.get(h.name, func() *histogramCell {
		return &histogramCell{bounds: h.bounds, counts: make([]atomic.Uint64, len(h.bounds))}
	}, values)
	if err != nil {
		return nil, err
	}
	return &HistogramVec{cell: cell}, nil
}

// Observe records a value in the histogram (for histograms without labels).
func (h *Histogram) Observe(value float64) error {
	vec, err := h.WithLabels()
	if err != nil {
		return err
	}
	vec.Observe(value)
	return nil
}

// Collect returns bucket, sum and count samples for every label combination.
func (h *Histogram) Collect() []Sample {
	var samples []Sample
	h.s.collect(func(labels map[string]string, hc *histogramCell) {
		cumulative := uint64(0)
		for i, bound := range hc.bounds {
			cumulative += hc.counts[i].Load()
			bucketLabels := make(map[string]string, len(labels)+1)
			for k, v := range labels {
				bucketLabels[k] = v
			}
			if math.IsInf(bound, 1) {
				bucketLabels["le"] = "+Inf"
			} else {
				bucketLabels["le"] = formatFloat(bound)
			}
			samples = append(samples, Sample{
				Name:   h.name + "_bucket",
				Labels: bucketLabels,
				Value:  float64(cumulative),
			})
		}
		samples = append(samples,
			Sample{Name: h.name + "_sum", Labels: labels, Value: hc.sum.Load()},
			Sample{Name: h.name + "_count", Labels: labels, Value: float64(hc.count.Load())},
		)
	})
	return samples
}

// HistogramVec provides methods for a specific label combination.
type HistogramVec struct {
	cell *histogramCell
}

// Observe records a value in the histogram.
func (v *HistogramVec) Observe(value float64) { v.cell.observe(value) }

// Registry holds all registered metrics.
type Registry struct {
	mu      sync.RWMutex
	metrics []Metric
	names   map[string]struct{}
}

// NewRegistry creates a new metric registry.
func NewRegistry() *Registry {
	return &Registry{names: make(map[string]struct{})}
}

// NewCounter creates and registers a new counter.
func (r *Registry) NewCounter(name, help string, labels ...string) *Counter {
	c := newCounter(name, help, labels)
	r.register(c)
	return c
}

// NewGauge creates and registers a new gauge.
func (r *Registry) NewGauge(name, help string, labels ...string) *Gauge {
	g := newGauge(name, help, labels)
	r.register(g)
	return g
}

// NewHistogram creates and registers a new histogram with the given buckets.
func (r *Registry) NewHistogram(name, help string, buckets []float64, labels ...string) *Histogram {
	h := newHistogram(name, help, buckets, labels)
	r.register(h)
	return h
}

// register panics on a duplicate name, since duplicate metric names produce
// invalid Prometheus output.
func (r *Registry) register(m Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.names[m.Name()]; exists {
		panic(fmt.Sprintf("%s: %s", ErrDuplicateMetric, m.Name()))
	}
	r.names[m.Name()] = struct{}{}
	r.metrics = append(r.metrics, m)
}

// WriteText writes every registered metric in Prometheus text format, in
// registration order.
func (r *Registry) WriteText(w io.Writer) {
	r.mu.RLock()
	metrics := make([]Metric, len(r.metrics))
	copy(metrics, r.metrics)
	r.mu.RUnlock()

	for _, m := range metrics {
		samples := m.Collect()
		if len(samples) == 0 {
			continue
		}
		_, _ = fmt.Fprintf(w, "# HELP %s %s\n", m.Name(), escapeHelp(m.Help()))
		_, _ = fmt.Fprintf(w, "# TYPE %s %s\n", m.Name(), m.Type())
		for _, s := range samples {
			if len(s.Labels) == 0 {
				_, _ = fmt.Fprintf(w, "%s %s\n", s.Name, formatFloat(s.Value))
			} else {
				_, _ = fmt.Fprintf(w, "%s{%s} %s\n", s.Name, formatLabels(s.Labels), formatFloat(s.Value))
			}
		}
	}
}

// Handler returns an http.Handler that serves the /metrics endpoint.
func (r *Registry) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		r.WriteText(w)
	})
}

// formatLabels formats labels as key="value",key="value" in sorted key order.
func formatLabels(labels map[string]string) string {
	keys := make([]string, 0, len(labels))
	for k := range labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=\"%s\"", k, escapeLabelValue(labels[k]))
	}
	return strings.Join(parts, ",")
}

// formatFloat formats a float64 for Prometheus output.
func formatFloat(v float64) string {
	switch {
	case math.IsNaN(v):
		return "NaN"
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	s := fmt.Sprintf("%g", v)
	if v == float64(int64(v)) && !strings.Contains(s, ".") && !strings.Contains(s, "e") {
		return fmt.Sprintf("%.0f", v)
	}
	return s
}

func escapeHelp(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

func escapeLabelValue(s string) string {
	s = strings.ReplaceAll(s, "\\", "\\\\")
	s = strings.ReplaceAll(s, "\"", "\\\"")
	s = strings.ReplaceAll(s, "\n", "\\n")
	return s
}

// DefaultBuckets are the default histogram buckets for exchange durations
// (in seconds).
var DefaultBuckets = []float64{
	0.001, // 1ms
	0.005, // 5ms
	0.01,  // 10ms
	0.025, // 25ms
	0.05,  // 50ms
	0.1,   // 100ms
	0.25,  // 250ms
	0.5,   // 500ms
	1,     // 1s
	2.5,   // 2.5s
	5,     // 5s
	10,    // 10s
}
