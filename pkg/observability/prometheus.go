package observability

import (
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusMetrics implements Metrics on a Prometheus registry. Collectors
// are created on first use with the tag keys of that call; later samples
// with a different set of tag keys are dropped.
type PrometheusMetrics struct {
	registry *prometheus.Registry
	factory  promauto.Factory

	mu         sync.Mutex
	counters   map[string]*prometheus.CounterVec
	gauges     map[string]*prometheus.GaugeVec
	histograms map[string]*prometheus.HistogramVec
}

// NewPrometheusMetrics creates a collector backed by its own registry, with
// the Go runtime and process collectors registered.
func NewPrometheusMetrics() *PrometheusMetrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
	)
	return &PrometheusMetrics{
		registry:   registry,
		factory:    promauto.With(registry),
		counters:   make(map[string]*prometheus.CounterVec),
		gauges:     make(map[string]*prometheus.GaugeVec),
		histograms: make(map[string]*prometheus.HistogramVec),
	}
}

// Registry exposes the underlying registry.
func (m *PrometheusMetrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *PrometheusMetrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Counter adds value to the counter.
func (m *PrometheusMetrics) Counter(name string, value int64, tags ...Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.counters[name]
	if !ok {
		vec = m.factory.NewCounterVec(prometheus.CounterOpts{
			Name: promName(name) + "_total",
			Help: name,
		}, keys)
		m.counters[name] = vec
	}
	m.mu.Unlock()
	if c, err := vec.GetMetricWithLabelValues(values...); err == nil {
		c.Add(float64(value))
	}
}

// Gauge sets the gauge.
func (m *PrometheusMetrics) Gauge(name string, value float64, tags ...Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.gauges[name]
	if !ok {
		vec = m.factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: promName(name),
			Help: name,
		}, keys)
		m.gauges[name] = vec
	}
	m.mu.Unlock()
	if g, err := vec.GetMetricWithLabelValues(values...); err == nil {
		g.Set(value)
	}
}

// Histogram observes value with the default buckets.
func (m *PrometheusMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.observe(promName(name), name, value, tags)
}

// Timing observes the duration in seconds.
func (m *PrometheusMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.observe(promName(name)+"_seconds", name, duration.Seconds(), tags)
}

func (m *PrometheusMetrics) observe(promMetric, name string, value float64, tags []Tag) {
	keys, values := splitTags(tags)
	m.mu.Lock()
	vec, ok := m.histograms[promMetric]
	if !ok {
		vec = m.factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    promMetric,
			Help:    name,
			Buckets: prometheus.DefBuckets,
		}, keys)
		m.histograms[promMetric] = vec
	}
	m.mu.Unlock()
	if o, err := vec.GetMetricWithLabelValues(values...); err == nil {
		o.Observe(value)
	}
}

// promName maps dotted metric names to the Prometheus charset.
func promName(name string) string {
	return strings.NewReplacer(".", "_", "-", "_").Replace(name)
}

// splitTags returns label names and values sorted by name.
func splitTags(tags []Tag) ([]string, []string) {
	sorted := make([]Tag, len(tags))
	copy(sorted, tags)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	keys := make([]string, len(sorted))
	values := make([]string, len(sorted))
	for i, t := range sorted {
		keys[i] = t.Key
		values[i] = t.Value
	}
	return keys, values
}

var _ Metrics = (*PrometheusMetrics)(nil)
