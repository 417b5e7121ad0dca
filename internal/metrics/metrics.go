// Package metrics counts pipeline activity for Prometheus. A batch run is a
// short-lived process, so the registry is written to a node-exporter
// textfile instead of being scraped.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	reg *prometheus.Registry

	runs            *prometheus.CounterVec
	candidates      *prometheus.CounterVec
	sourceErrors    *prometheus.CounterVec
	postsPublished  *prometheus.CounterVec
	memoryResets    *prometheus.CounterVec
	persistFailures prometheus.Counter
	runDuration     *prometheus.HistogramVec
	lastSuccess     *prometheus.GaugeVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		runs: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoposter_runs_total",
			Help: "Number of category runs by outcome",
		}, []string{"category", "outcome"}),
		candidates: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoposter_candidates_total",
			Help: "Number of candidates remaining after each pipeline stage",
		}, []string{"category", "stage"}),
		sourceErrors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoposter_source_errors_total",
			Help: "Number of feed sources that could not be fetched",
		}, []string{"category"}),
		postsPublished: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoposter_posts_published_total",
			Help: "Number of posts published",
		}, []string{"category", "account"}),
		memoryResets: f.NewCounterVec(prometheus.CounterOpts{
			Name: "autoposter_memory_resets_total",
			Help: "Number of times an option category exhausted its options",
		}, []string{"category"}),
		persistFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "autoposter_memory_persist_failures_total",
			Help: "Number of memory files that could not be written",
		}),
		runDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "autoposter_run_duration_seconds",
			Help:    "Duration of category runs",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"category"}),
		lastSuccess: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "autoposter_last_success_timestamp_seconds",
			Help: "Unix time of the last run that published",
		}, []string{"category"}),
	}
}

func (m *Metrics) Run(category, outcome string, d time.Duration) {
	m.runs.WithLabelValues(category, outcome).Inc()
	m.runDuration.WithLabelValues(category).Observe(d.Seconds())
	if outcome == "done" {
		m.lastSuccess.WithLabelValues(category).SetToCurrentTime()
	}
}

func (m *Metrics) Candidates(category, stage string, n int) {
	m.candidates.WithLabelValues(category, stage).Add(float64(n))
}

func (m *Metrics) SourceErrors(category string, n int) {
	if n > 0 {
		m.sourceErrors.WithLabelValues(category).Add(float64(n))
	}
}

func (m *Metrics) Published(category, account string, n int) {
	if n > 0 {
		m.postsPublished.WithLabelValues(category, account).Add(float64(n))
	}
}

func (m *Metrics) MemoryReset(category string) {
	m.memoryResets.WithLabelValues(category).Inc()
}

func (m *Metrics) PersistFailure() {
	m.persistFailures.Inc()
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }

// WriteTextfile writes all metrics in the text exposition format to path,
// atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.reg); err != nil {
		return fmt.Errorf("writing metrics to %s: %w", path, err)
	}
	return nil
}
