package monitor

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/power-warden/powa/pkg/metrics"
)

// SamplerMetrics is shared by every sampling task; series are split by the
// domain label.
type SamplerMetrics struct {
	Reads        *prometheus.CounterVec
	ReadErrors   *prometheus.CounterVec
	ReadDuration *prometheus.HistogramVec
	Reading      *prometheus.GaugeVec
	Overwrites   *prometheus.CounterVec
}

// ExporterMetrics belongs to the HTTP exporter.
type ExporterMetrics struct {
	Requests *prometheus.CounterVec
}

// NewSamplerMetrics registers the sampler metrics once per registry.
func NewSamplerMetrics(f *metrics.MetricFactory) *SamplerMetrics {
	return &SamplerMetrics{
		Reads:        f.NewSensorReadsTotal(),
		ReadErrors:   f.NewSensorReadErrorsTotal(),
		ReadDuration: f.NewSensorReadDurationSeconds(),
		Reading:      f.NewReading(),
		Overwrites:   f.NewStoreOverwritesTotal(),
	}
}

// NewExporterMetrics registers the exporter metrics once per registry.
func NewExporterMetrics(f *metrics.MetricFactory) *ExporterMetrics {
	return &ExporterMetrics{
		Requests: f.NewHTTPRequestsTotal(),
	}
}
