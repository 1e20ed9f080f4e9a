package metrics

import "github.com/prometheus/client_golang/prometheus"

// Ingestion Prometheus metrics.
var (
	IngestRecordsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "grantwatch",
			Name:      "ingest_records_total",
			Help:      "Total ingested records by outcome",
		},
		[]string{"status"}, // "ok" / "skipped"
	)

	IngestBatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "grantwatch",
			Name:      "ingest_batch_duration_seconds",
			Help:      "Ingestion batch duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		},
	)

	IndexEntriesLive = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "grantwatch",
			Name:      "index_entries_live",
			Help:      "Live entries in the vector index",
		},
	)
)

var ingestMetricsRegistered bool

// RegisterIngestMetrics registers Prometheus ingestion metrics. Must be called once from main.
func RegisterIngestMetrics() {
	if ingestMetricsRegistered {
		return
	}
	prometheus.MustRegister(IngestRecordsTotal)
	prometheus.MustRegister(IngestBatchDuration)
	prometheus.MustRegister(IndexEntriesLive)
	ingestMetricsRegistered = true
}
