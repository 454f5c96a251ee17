package metrics

// MetricFactory creates and registers every powa metric.
type MetricFactory struct {
	reg Registers
}

// NewMetricFactory returns a factory registering into reg.
func NewMetricFactory(reg Registers) *MetricFactory {
	return &MetricFactory{reg: reg}
}
