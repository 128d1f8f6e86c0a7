package metrics

type Counter interface {
	Inc()
}

type Gauge interface {
	Set(float64)
}

type Metrics struct {
	Reconnects          Counter
	TransportErrors     Counter
	RequestsRejected    Counter
	MessagesDropped     Counter
	DataModelViolations Counter
	HedgeOrders         Counter
	SnapshotsPersisted  Counter
	ExpiredOptions      Counter

	OptionDelta Gauge
	PerpDelta   Gauge
	Ready       Gauge
}

type noopCounter struct{}

func (noopCounter) Inc() {}

type noopGauge struct{}

func (noopGauge) Set(float64) {}

func NewNoop() *Metrics {
	n := noopCounter{}
	g := noopGauge{}
	return &Metrics{
		Reconnects:          n,
		TransportErrors:     n,
		RequestsRejected:    n,
		MessagesDropped:     n,
		DataModelViolations: n,
		HedgeOrders:         n,
		SnapshotsPersisted:  n,
		ExpiredOptions:      n,
		OptionDelta:         g,
		PerpDelta:           g,
		Ready:               g,
	}
}
