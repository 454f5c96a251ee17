package metrics

import "github.com/prometheus/client_golang/prometheus"

const namespace = "powa"

// NewSensorReadsTotal counts successful sensor reads per domain.
func (m *MetricFactory) NewSensorReadsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sensor_reads_total",
		Help:      "Successful sensor reads per power domain",
	}, []string{"domain"})
	m.reg.MustRegister(c)
	return c
}

// NewSensorReadErrorsTotal counts failed sensor reads.
// op is the failing operation: voltage, current, power or timeout.
func (m *MetricFactory) NewSensorReadErrorsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sensor_read_errors_total",
		Help:      "Failed sensor reads per power domain and operation",
	}, []string{"domain", "op"})
	m.reg.MustRegister(c)
	return c
}

// NewSensorReadDurationSeconds observes how long a full voltage/current/power
// read takes. Buckets cover fast I2C transfers up to the read timeout.
func (m *MetricFactory) NewSensorReadDurationSeconds() *prometheus.HistogramVec {
	h := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sensor_read_duration_seconds",
		Help:      "Duration of one sensor read cycle",
		Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
	}, []string{"domain"})
	m.reg.MustRegister(h)
	return h
}

// NewReading holds the last sampled value, quantity is voltage, current or power.
func (m *MetricFactory) NewReading() *prometheus.GaugeVec {
	g := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "reading",
		Help:      "Last sampled electrical value per power domain (V, A, W)",
	}, []string{"domain", "quantity"})
	m.reg.MustRegister(g)
	return g
}

// NewStoreOverwritesTotal counts readings replaced before any client read them.
func (m *MetricFactory) NewStoreOverwritesTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "store_overwrites_total",
		Help:      "Unread readings discarded by a newer reading",
	}, []string{"domain"})
	m.reg.MustRegister(c)
	return c
}
