// Metrics registry with Prometheus text output
//
// Provides the three metric kinds the driver exports:
// - Counter: monotonically increasing values
// - Gauge: values that can go up and down
// - Histogram: distribution of observations in buckets
//
// Copyright (C) 2026  Go Migration Team
//
// This file may be distributed under the terms of the GNU GPLv3 license.

// Package metrics exports driver metrics in Prometheus text format and
// serves them, together with a live status feed, over HTTP.
package metrics

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// Labels are metric labels as key-value pairs
type Labels map[string]string

// key returns a canonical form of the label set
func (l Labels) key() string {
	if len(l) == 0 {
		return ""
	}
	keys := l.sortedKeys()
	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(l[k])
	}
	return sb.String()
}

func (l Labels) sortedKeys() []string {
	keys := make([]string, 0, len(l))
	for k := range l {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// String formats the labels as {k="v",...}
func (l Labels) String() string {
	if len(l) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range l.sortedKeys() {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(k)
		sb.WriteString(`="`)
		sb.WriteString(escapeLabel(l[k]))
		sb.WriteByte('"')
	}
	sb.WriteByte('}')
	return sb.String()
}

func (l Labels) clone() Labels {
	out := make(Labels, len(l)+1)
	for k, v := range l {
		out[k] = v
	}
	return out
}

// with returns a copy of l with k set to v
func (l Labels) with(k, v string) Labels {
	out := l.clone()
	out[k] = v
	return out
}

var labelEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`, "\n", `\n`)

func escapeLabel(s string) string {
	return labelEscaper.Replace(s)
}

func formatFloat(v float64) string {
	switch {
	case math.IsInf(v, 1):
		return "+Inf"
	case math.IsInf(v, -1):
		return "-Inf"
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// Metric is implemented by all metric kinds
type Metric interface {
	Name() string
	Write(sb *strings.Builder)
}

func writeHeader(sb *strings.Builder, name, help, kind string) {
	fmt.Fprintf(sb, "# HELP %s %s\n# TYPE %s %s\n", name, help, name, kind)
}

// series is one labelled time series of a metric
type series[T any] struct {
	mu     sync.Mutex
	byKey  map[string]*T
	labels map[string]Labels
}

func (s *series[T]) get(labels Labels, create func() *T) *T {
	k := labels.key()
	s.mu.Lock()
	defer s.mu.Unlock()
	if v, ok := s.byKey[k]; ok {
		return v
	}
	if create == nil {
		return nil
	}
	if s.byKey == nil {
		s.byKey = make(map[string]*T)
		s.labels = make(map[string]Labels)
	}
	v := create()
	s.byKey[k] = v
	s.labels[k] = labels.clone()
	return v
}

// each calls fn for every series in label order
func (s *series[T]) each(fn func(labels Labels, v *T)) {
	s.mu.Lock()
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	vals := make([]*T, len(keys))
	labels := make([]Labels, len(keys))
	for i, k := range keys {
		vals[i], labels[i] = s.byKey[k], s.labels[k]
	}
	s.mu.Unlock()

	for i := range keys {
		fn(labels[i], vals[i])
	}
}

// Counter is a monotonically increasing metric
type Counter struct {
	name, help string
	values     series[atomic.Uint64]
}

// NewCounter creates a counter
func NewCounter(name, help string) *Counter {
	return &Counter{name: name, help: help}
}

func (c *Counter) Name() string { return c.name }

// Inc increments the counter by 1
func (c *Counter) Inc(labels Labels) { c.Add(labels, 1) }

// Add increments the counter by delta
func (c *Counter) Add(labels Labels, delta uint64) {
	c.values.get(labels, func() *atomic.Uint64 { return new(atomic.Uint64) }).Add(delta)
}

// Get returns the value for labels, 0 if never set
func (c *Counter) Get(labels Labels) uint64 {
	if v := c.values.get(labels, nil); v != nil {
		return v.Load()
	}
	return 0
}

func (c *Counter) Write(sb *strings.Builder) {
	writeHeader(sb, c.name, c.help, "counter")
	c.values.each(func(labels Labels, v *atomic.Uint64) {
		fmt.Fprintf(sb, "%s%s %d\n", c.name, labels, v.Load())
	})
}

// Gauge is a metric that can go up and down
type Gauge struct {
	name, help string
	values     series[atomic.Uint64] // float64 bits
}

// NewGauge creates a gauge
func NewGauge(name, help string) *Gauge {
	return &Gauge{name: name, help: help}
}

func (g *Gauge) Name() string { return g.name }

// Set sets the gauge for labels
func (g *Gauge) Set(labels Labels, value float64) {
	g.values.get(labels, func() *atomic.Uint64 { return new(atomic.Uint64) }).
		Store(math.Float64bits(value))
}

// Get returns the value for labels, 0 if never set
func (g *Gauge) Get(labels Labels) float64 {
	if v := g.values.get(labels, nil); v != nil {
		return math.Float64frombits(v.Load())
	}
	return 0
}

func (g *Gauge) Write(sb *strings.Builder) {
	writeHeader(sb, g.name, g.help, "gauge")
	g.values.each(func(labels Labels, v *atomic.Uint64) {
		fmt.Fprintf(sb, "%s%s %s\n", g.name, labels, formatFloat(math.Float64frombits(v.Load())))
	})
}

// Histogram tracks the distribution of observations
type Histogram struct {
	name, help string
	buckets    []float64
	values     series[histogramValue]
}

type histogramValue struct {
	mu     sync.Mutex
	count  uint64
	sum    float64
	counts []uint64 // per bucket, not cumulative
}

// NewHistogram creates a histogram with the given upper bounds
func NewHistogram(name, help string, buckets []float64) *Histogram {
	sorted := append([]float64(nil), buckets...)
	sort.Float64s(sorted)
	return &Histogram{name: name, help: help, buckets: sorted}
}

// ExponentialBuckets returns count bounds starting at start, each factor
// times the previous one
func ExponentialBuckets(start, factor float64, count int) []float64 {
	out := make([]float64, count)
	for i := range out {
		out[i] = start
		start *= factor
	}
	return out
}

func (h *Histogram) Name() string { return h.name }

// Observe records one value
func (h *Histogram) Observe(labels Labels, value float64) {
	hv := h.values.get(labels, func() *histogramValue {
		return &histogramValue{counts: make([]uint64, len(h.buckets))}
	})
	hv.mu.Lock()
	defer hv.mu.Unlock()
	hv.count++
	hv.sum += value
	if i := sort.SearchFloat64s(h.buckets, value); i < len(h.buckets) {
		hv.counts[i]++
	}
}

// HistogramSnapshot is a point-in-time copy of one histogram series.
// Buckets are cumulative.
type HistogramSnapshot struct {
	Count   uint64
	Sum     float64
	Buckets map[float64]uint64
}

// Snapshot returns the current values for labels
func (h *Histogram) Snapshot(labels Labels) HistogramSnapshot {
	snap := HistogramSnapshot{Buckets: make(map[float64]uint64, len(h.buckets))}
	hv := h.values.get(labels, nil)
	if hv == nil {
		return snap
	}
	hv.mu.Lock()
	defer hv.mu.Unlock()
	snap.Count, snap.Sum = hv.count, hv.sum
	var cumulative uint64
	for i, bound := range h.buckets {
		cumulative += hv.counts[i]
		snap.Buckets[bound] = cumulative
	}
	return snap
}

func (h *Histogram) Write(sb *strings.Builder) {
	writeHeader(sb, h.name, h.help, "histogram")
	h.values.each(func(labels Labels, _ *histogramValue) {
		snap := h.Snapshot(labels)
		for _, bound := range h.buckets {
			fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, labels.with("le", formatFloat(bound)), snap.Buckets[bound])
		}
		fmt.Fprintf(sb, "%s_bucket%s %d\n", h.name, labels.with("le", "+Inf"), snap.Count)
		fmt.Fprintf(sb, "%s_sum%s %s\n", h.name, labels, formatFloat(snap.Sum))
		fmt.Fprintf(sb, "%s_count%s %d\n", h.name, labels, snap.Count)
	})
}

// Registry holds metrics in registration order
type Registry struct {
	mu      sync.RWMutex
	metrics map[string]Metric
	order   []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{metrics: make(map[string]Metric)}
}

// Register adds a metric. Names must be unique.
func (r *Registry) Register(m Metric) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.metrics[m.Name()]; exists {
		return fmt.Errorf("metric %q already registered", m.Name())
	}
	r.metrics[m.Name()] = m
	r.order = append(r.order, m.Name())
	return nil
}

// MustRegister adds a metric and panics on error
func (r *Registry) MustRegister(m Metric) {
	if err := r.Register(m); err != nil {
		panic(err)
	}
}

// Get returns a metric by name
func (r *Registry) Get(name string) Metric {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.metrics[name]
}

// Gather renders all metrics in Prometheus text format
func (r *Registry) Gather() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var sb strings.Builder
	for _, name := range r.order {
		r.metrics[name].Write(&sb)
	}
	return sb.String()
}
