package metrics

import (
	"github.com/evidentia/custody/pkg/upload"
)

// NewUploadMetrics creates a Prometheus-backed upload.Metrics instance.
//
// Returns nil if metrics are not enabled (InitRegistry not called). A nil
// Metrics disables recording with zero overhead.
func NewUploadMetrics() upload.Metrics {
	if !IsEnabled() {
		return nil
	}
	return newPrometheusUploadMetrics()
}

// newPrometheusUploadMetrics is registered by pkg/metrics/prometheus during
// package initialization. The indirection keeps the Prometheus types out of
// this package's API.
var newPrometheusUploadMetrics func() upload.Metrics

// RegisterUploadMetricsConstructor registers the Prometheus upload metrics
// constructor. Called by pkg/metrics/prometheus.
func RegisterUploadMetricsConstructor(constructor func() upload.Metrics) {
	newPrometheusUploadMetrics = constructor
}
