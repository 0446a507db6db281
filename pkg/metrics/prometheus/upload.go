// Package prometheus provides the Prometheus implementations of the
// component metrics interfaces. Importing it registers the constructors
// with pkg/metrics.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/evidentia/custody/pkg/metrics"
	"github.com/evidentia/custody/pkg/upload"
)

func init() {
	metrics.RegisterUploadMetricsConstructor(newUploadMetrics)
}

// uploadMetrics is the Prometheus implementation of upload.Metrics.
type uploadMetrics struct {
	partsUploaded prometheus.Counter
	bytesUploaded prometheus.Counter
	partRetries   prometheus.Counter
	flushDuration *prometheus.HistogramVec
	sessions      *prometheus.CounterVec
}

func newUploadMetrics() upload.Metrics {
	reg := metrics.GetRegistry()

	return &uploadMetrics{
		partsUploaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "custody_upload_parts_total",
			Help: "Total number of confirmed upload parts",
		}),
		bytesUploaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "custody_upload_bytes_total",
			Help: "Total bytes confirmed as uploaded",
		}),
		partRetries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "custody_upload_part_retries_total",
			Help: "Total number of part transfer retries",
		}),
		flushDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "custody_upload_flush_duration_seconds",
			Help:    "Duration of buffer flushes, including the part transfer",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		}, []string{"outcome"}),
		sessions: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "custody_upload_sessions_total",
			Help: "Upload sessions reaching a terminal state, by status",
		}, []string{"status"}),
	}
}

func (m *uploadMetrics) RecordPartUploaded(sizeBytes int64) {
	if m == nil {
		return
	}
	m.partsUploaded.Inc()
	m.bytesUploaded.Add(float64(sizeBytes))
}

func (m *uploadMetrics) RecordPartRetry() {
	if m == nil {
		return
	}
	m.partRetries.Inc()
}

func (m *uploadMetrics) RecordFlush(duration time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.flushDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

func (m *uploadMetrics) RecordSessionCompleted(status upload.Status) {
	if m == nil {
		return
	}
	m.sessions.WithLabelValues(string(status)).Inc()
}
