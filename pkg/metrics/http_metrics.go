package metrics

import "github.com/prometheus/client_golang/prometheus"

// NewHTTPRequestsTotal counts electrical endpoint requests by requested
// domain and response code.
func (m *MetricFactory) NewHTTPRequestsTotal() *prometheus.CounterVec {
	c := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "http_requests_total",
		Help:      "Electrical endpoint requests by domain and status code",
	}, []string{"domain", "code"})
	m.reg.MustRegister(c)
	return c
}
