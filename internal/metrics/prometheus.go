package metrics

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the per-run Prometheus collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal         *prometheus.CounterVec
	StageDuration     *prometheus.HistogramVec
	StageRetries      *prometheus.CounterVec
	RecordingDuration prometheus.Histogram
	CompletionTokens  *prometheus.CounterVec
	CostUSD           prometheus.Counter
	LastRunTimestamp  prometheus.Gauge
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		RunsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whspr_runs_total",
			Help: "Total number of pipeline runs by outcome",
		}, []string{"outcome"}),
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "whspr_stage_duration_seconds",
			Help:    "Duration of pipeline stages",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~1.7 minutes
		}, []string{"stage"}),
		StageRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whspr_stage_retries_total",
			Help: "Total number of failed attempts per retried stage",
		}, []string{"stage"}),
		RecordingDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "whspr_recording_duration_seconds",
			Help:    "Length of captured recordings",
			Buckets: prometheus.ExponentialBuckets(1, 2, 10), // 1s to ~17 minutes
		}),
		CompletionTokens: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "whspr_completion_tokens_total",
			Help: "Completion tokens consumed by direction",
		}, []string{"direction"}),
		CostUSD: factory.NewCounter(prometheus.CounterOpts{
			Name: "whspr_cost_usd_total",
			Help: "Estimated completion cost in USD",
		}),
		LastRunTimestamp: factory.NewGauge(prometheus.GaugeOpts{
			Name: "whspr_last_run_timestamp_seconds",
			Help: "Unix time of the last finished run",
		}),
	}
}

// RecordRun counts a finished run by outcome: delivered, failed or cancelled.
func (m *Metrics) RecordRun(outcome string) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(outcome).Inc()
	m.LastRunTimestamp.SetToCurrentTime()
}

func (m *Metrics) RecordStage(stage string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

func (m *Metrics) RecordRetry(stage string) {
	if m == nil {
		return
	}
	m.StageRetries.WithLabelValues(stage).Inc()
}

func (m *Metrics) RecordRecording(seconds int) {
	if m == nil {
		return
	}
	m.RecordingDuration.Observe(float64(seconds))
}

func (m *Metrics) RecordUsage(inputTokens int, outputTokens int, costUSD float64) {
	if m == nil {
		return
	}
	m.CompletionTokens.WithLabelValues("input").Add(float64(inputTokens))
	m.CompletionTokens.WithLabelValues("output").Add(float64(outputTokens))
	m.CostUSD.Add(costUSD)
}

// Gatherer exposes the private registry.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	return m.registry
}

// WriteTextfile writes all metrics in the node_exporter textfile format.
func (m *Metrics) WriteTextfile(path string) error {
	if m == nil || path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create metrics dir: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
