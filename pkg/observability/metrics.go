package observability

import (
	"sort"
	"strings"
	"sync"
	"time"
)

// Metrics records application metrics. Implementations must be safe for
// concurrent use.
type Metrics interface {
	Counter(name string, value int64, tags ...Tag)
	Gauge(name string, value float64, tags ...Tag)
	Histogram(name string, value float64, tags ...Tag)
	Timing(name string, duration time.Duration, tags ...Tag)
}

// Tag is a metric label.
type Tag struct {
	Key   string
	Value string
}

// T creates a new Tag.
func T(key, value string) Tag {
	return Tag{Key: key, Value: value}
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) Counter(string, int64, ...Tag)        {}
func (NoopMetrics) Gauge(string, float64, ...Tag)        {}
func (NoopMetrics) Histogram(string, float64, ...Tag)    {}
func (NoopMetrics) Timing(string, time.Duration, ...Tag) {}

// series is every sample recorded under one name and tag set.
type series struct {
	count   int64
	gauge   float64
	values  []float64
	timings []time.Duration
}

// InMemoryMetrics keeps samples in memory for tests and local mode. A series
// is identified by name and tag set; tag order does not matter.
type InMemoryMetrics struct {
	mu     sync.RWMutex
	series map[string]*series
}

// NewInMemoryMetrics creates an empty collector.
func NewInMemoryMetrics() *InMemoryMetrics {
	return &InMemoryMetrics{series: make(map[string]*series)}
}

func (m *InMemoryMetrics) record(name string, tags []Tag, fn func(s *series)) {
	key := seriesKey(name, tags)
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.series[key]
	if !ok {
		s = &series{}
		m.series[key] = s
	}
	fn(s)
}

func (m *InMemoryMetrics) lookup(name string, tags []Tag) series {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if s, ok := m.series[seriesKey(name, tags)]; ok {
		return *s
	}
	return series{}
}

func (m *InMemoryMetrics) Counter(name string, value int64, tags ...Tag) {
	m.record(name, tags, func(s *series) { s.count += value })
}

func (m *InMemoryMetrics) Gauge(name string, value float64, tags ...Tag) {
	m.record(name, tags, func(s *series) { s.gauge = value })
}

func (m *InMemoryMetrics) Histogram(name string, value float64, tags ...Tag) {
	m.record(name, tags, func(s *series) { s.values = append(s.values, value) })
}

func (m *InMemoryMetrics) Timing(name string, duration time.Duration, tags ...Tag) {
	m.record(name, tags, func(s *series) { s.timings = append(s.timings, duration) })
}

// GetCounter returns the counter total for name and tags.
func (m *InMemoryMetrics) GetCounter(name string, tags ...Tag) int64 {
	return m.lookup(name, tags).count
}

// GetGauge returns the last gauge value.
func (m *InMemoryMetrics) GetGauge(name string, tags ...Tag) float64 {
	return m.lookup(name, tags).gauge
}

// GetHistogram returns the recorded histogram samples.
func (m *InMemoryMetrics) GetHistogram(name string, tags ...Tag) []float64 {
	return m.lookup(name, tags).values
}

// GetTimings returns the recorded durations.
func (m *InMemoryMetrics) GetTimings(name string, tags ...Tag) []time.Duration {
	return m.lookup(name, tags).timings
}

// seriesKey renders name{k1=v1,k2=v2} with keys sorted.
func seriesKey(name string, tags []Tag) string {
	if len(tags) == 0 {
		return name
	}
	sorted := make([]Tag, len(tags))
	copy(sorted, tags)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Key < sorted[j].Key })

	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('{')
	for i, t := range sorted {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(t.Key)
		b.WriteByte('=')
		b.WriteString(t.Value)
	}
	b.WriteByte('}')
	return b.String()
}

// Metric names shared across the service. Tags narrow them further.
const (
	MetricOperationTotal    = "tutorhub.operation.total"
	MetricOperationDuration = "tutorhub.operation.duration"
	MetricOperationErrors   = "tutorhub.operation.errors"

	// MetricTransitions is tagged with outcome (applied, skipped, rejected,
	// failed), new_status and source.
	MetricTransitions        = "tutorhub.billing.transitions"
	MetricTransitionDuration = "tutorhub.billing.transition_duration"

	MetricSweepExpired = "tutorhub.billing.sweep_expired"
	MetricImported     = "tutorhub.billing.imported"

	// MetricMirrorSync is tagged with outcome (synced, failed, invalid).
	MetricMirrorSync = "tutorhub.mirror.sync"

	MetricWebhookDuplicates = "tutorhub.webhook.duplicates"
)
