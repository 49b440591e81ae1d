package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// LoggerMetrics holds all Prometheus metrics for the logging pipeline.
type LoggerMetrics struct {
	ReadingsReceived  *prometheus.CounterVec
	ReadingsAppended  *prometheus.CounterVec
	ReadingsDiscarded *prometheus.CounterVec
	ReadingsSpilled   prometheus.Counter
	SinkWriteErrors   prometheus.Counter
	BufferLiveSize    *prometheus.GaugeVec
	BufferCapacity    *prometheus.GaugeVec
}

// NewLoggerMetrics initializes and registers the Prometheus metrics.
func NewLoggerMetrics() *LoggerMetrics {
	return &LoggerMetrics{
		ReadingsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meter_logger",
			Subsystem: "ingest",
			Name:      "readings_received_total",
			Help:      "Total number of readings pushed into source buffers, by channel.",
		}, []string{"channel"}),
		ReadingsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meter_logger",
			Subsystem: "transfer",
			Name:      "readings_appended_total",
			Help:      "Total number of readings accepted into transfer buffers after filtering, by channel.",
		}, []string{"channel"}),
		ReadingsDiscarded: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meter_logger",
			Subsystem: "transfer",
			Name:      "readings_discarded_total",
			Help:      "Total number of readings acknowledged and discarded after a successful sink write, by channel.",
		}, []string{"channel"}),
		ReadingsSpilled: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "meter_logger",
			Subsystem: "transfer",
			Name:      "readings_spilled_total",
			Help:      "Total number of readings spilled to the WAL while the sink was unavailable.",
		}),
		SinkWriteErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "meter_logger",
			Subsystem: "sink",
			Name:      "write_errors_total",
			Help:      "Total number of failed sink batch writes after retries.",
		}),
		BufferLiveSize: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meter_logger",
			Subsystem: "buffer",
			Name:      "live_size",
			Help:      "Current number of live readings in the transfer buffer, by channel.",
		}, []string{"channel"}),
		BufferCapacity: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meter_logger",
			Subsystem: "buffer",
			Name:      "live_capacity",
			Help:      "Current live capacity of the transfer buffer backing store, by channel.",
		}, []string{"channel"}),
	}
}
