// Package metrics holds the Prometheus instrumentation for the extraction
// pipeline and the handoff protocol.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all custom Prometheus metrics for the service.
type Metrics struct {
	// Pipeline metrics
	PipelineRuns     *prometheus.CounterVec
	EntriesExtracted prometheus.Counter
	ExtractionTime   prometheus.Histogram

	// Handoff metrics
	TransfersStored     prometheus.Counter
	TransfersDelivered  prometheus.Counter
	HandoffRejections   *prometheus.CounterVec
	ActiveTransfers     prometheus.Gauge
}

// Init registers and returns the service metrics.
func Init() *Metrics {
	return &Metrics{
		PipelineRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "eirbridge_pipeline_runs_total",
			Help: "Total pipeline runs by outcome",
		}, []string{"outcome"}), // "success" or "failure"

		EntriesExtracted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eirbridge_entries_extracted_total",
			Help: "Total journal entries extracted across all runs",
		}),

		ExtractionTime: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "eirbridge_extraction_duration_seconds",
			Help:    "Extraction latency in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300}, // pagination-heavy pages take minutes
		}),

		TransfersStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eirbridge_transfers_stored_total",
			Help: "Total canonical documents stored for handoff",
		}),

		TransfersDelivered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "eirbridge_transfers_delivered_total",
			Help: "Total documents delivered to the viewer",
		}),

		HandoffRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "eirbridge_handoff_rejections_total",
			Help: "Handoff messages ignored by reason",
		}, []string{"reason"}), // "origin", "key", "type"

		ActiveTransfers: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "eirbridge_transfers_awaiting_peer",
			Help: "Transfers currently awaiting the viewer handshake",
		}),
	}
}
