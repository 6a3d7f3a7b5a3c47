package buildfs

import (
	"fmt"
	"sync"
	"time"
)

// GMetrics is nil unless the embedding program opts in to metrics
// collection.
var GMetrics *Metrics

// Metric accumulates timing stats for one code path.
type Metric struct {
	Name string
	// Number of times we've hit the code path.
	Count int
	// Total time spent on the code path, in nanoseconds.
	Sum int64
}

type Metrics struct {
	mu      sync.Mutex
	metrics []*Metric
	byName  map[string]*Metric
}

func NewMetrics() *Metrics {
	return &Metrics{byName: make(map[string]*Metric)}
}

func (m *Metrics) NewMetric(name string) *Metric {
	m.mu.Lock()
	defer m.mu.Unlock()
	if metric, ok := m.byName[name]; ok {
		return metric
	}
	metric := &Metric{Name: name}
	m.metrics = append(m.metrics, metric)
	m.byName[name] = metric
	return metric
}

func (m *Metrics) record(metric *Metric, dt time.Duration) {
	m.mu.Lock()
	metric.Count++
	metric.Sum += int64(dt)
	m.mu.Unlock()
}

// MetricRecord times one call of the enclosing function:
//
//	defer MetricRecord("node stat")()
//
// It is a no-op while GMetrics is nil.
func MetricRecord(name string) func() {
	g := GMetrics
	if g == nil {
		return func() {}
	}
	metric := g.NewMetric(name)
	start := time.Now()
	return func() { g.record(metric, time.Since(start)) }
}

// Report prints a summary table to stdout.
func (m *Metrics) Report() {
	m.mu.Lock()
	defer m.mu.Unlock()
	width := 0
	for _, metric := range m.metrics {
		if len(metric.Name) > width {
			width = len(metric.Name)
		}
	}
	fmt.Printf("%-*s\t%-6s\t%-9s\t%s\n", width, "metric", "count", "avg (us)", "total (ms)")
	for _, metric := range m.metrics {
		micros := time.Duration(metric.Sum).Microseconds()
		total := float64(micros) / 1000
		var avg float64
		if metric.Count > 0 {
			avg = float64(micros) / float64(metric.Count)
		}
		fmt.Printf("%-*s\t%-6d\t%-8.1f\t%.1f\n", width, metric.Name, metric.Count, avg, total)
	}
}

// Stopwatch reports seconds since the last Restart.
type Stopwatch struct {
	started time.Time
}

func NewStopwatch() *Stopwatch {
	return &Stopwatch{started: time.Now()}
}

func (s *Stopwatch) Restart() { s.started = time.Now() }

func (s *Stopwatch) Elapsed() float64 {
	return time.Since(s.started).Seconds()
}
