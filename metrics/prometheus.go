package metrics

import (
	"net/http"
	"sort"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusSink exports facade samples through a Prometheus registry.
// Collectors are created lazily on first use, named <group>_<name>, with
// the dimension keys of that first sample as their label set.
type PrometheusSink struct {
	registry *prometheus.Registry

	mu       sync.Mutex
	counters map[string]*prometheus.CounterVec
	gauges   map[string]*prometheus.GaugeVec
}

// NewPrometheusSink creates a sink over its own registry.
func NewPrometheusSink() *PrometheusSink {
	return &PrometheusSink{
		registry: prometheus.NewRegistry(),
		counters: make(map[string]*prometheus.CounterVec),
		gauges:   make(map[string]*prometheus.GaugeVec),
	}
}

// Handler returns the scrape endpoint for this sink's registry.
func (s *PrometheusSink) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for custom collectors.
func (s *PrometheusSink) Registry() *prometheus.Registry {
	return s.registry
}

func labelKeys(dims Dimension) []string {
	keys := make([]string, 0, len(dims))
	for k := range dims {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func (s *PrometheusSink) counter(group, name string, dims Dimension) *prometheus.CounterVec {
	fq := group + "_" + name
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.counters[fq]; ok {
		return c
	}
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: fq}, labelKeys(dims))
	s.registry.MustRegister(c)
	s.counters[fq] = c
	return c
}

func (s *PrometheusSink) gauge(group, name string, dims Dimension) *prometheus.GaugeVec {
	fq := group + "_" + name
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.gauges[fq]; ok {
		return g
	}
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{Name: fq}, labelKeys(dims))
	s.registry.MustRegister(g)
	s.gauges[fq] = g
	return g
}

// IncrCounter implements Sink.
func (s *PrometheusSink) IncrCounter(group, name string, v Value, dims Dimension) {
	c, err := s.counter(group, name, dims).GetMetricWith(prometheus.Labels(dims))
	if err != nil {
		return
	}
	c.Add(float64(v))
}

// UpdateGauge implements Sink.
func (s *PrometheusSink) UpdateGauge(group, name string, v Value, dims Dimension) {
	g, err := s.gauge(group, name, dims).GetMetricWith(prometheus.Labels(dims))
	if err != nil {
		return
	}
	g.Set(float64(v))
}
