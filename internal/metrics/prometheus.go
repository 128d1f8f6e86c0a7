package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "deribit_hedge_bot"

type Prometheus struct {
	Metrics *Metrics

	registry         *prometheus.Registry
	reconnects       prometheus.Counter
	transportErrors  prometheus.Counter
	requestsRejected prometheus.Counter
	messagesDropped  prometheus.Counter
	dataModel        prometheus.Counter
	hedgeOrders      prometheus.Counter
	snapshots        prometheus.Counter
	expiredOptions   prometheus.Counter
	optionDelta      prometheus.Gauge
	perpDelta        prometheus.Gauge
	ready            prometheus.Gauge
}

func newCounter(name, help string) prometheus.Counter {
	return prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func newGauge(name, help string) prometheus.Gauge {
	return prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: promNamespace,
		Name:      name,
		Help:      help,
	})
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	p := &Prometheus{
		registry:         registry,
		reconnects:       newCounter("reconnects_total", "Total number of websocket reconnect attempts."),
		transportErrors:  newCounter("transport_errors_total", "Total number of websocket transport failures."),
		requestsRejected: newCounter("requests_rejected_total", "Total number of requests rejected by the venue."),
		messagesDropped:  newCounter("messages_dropped_total", "Total number of malformed or unroutable inbound messages."),
		dataModel:        newCounter("data_model_violations_total", "Total number of inbound messages violating the local data model."),
		hedgeOrders:      newCounter("hedge_orders_total", "Total number of rehedge orders submitted."),
		snapshots:        newCounter("snapshots_persisted_total", "Total number of state snapshots persisted."),
		expiredOptions:   newCounter("expired_options_skipped_total", "Total number of held options skipped by hedge evaluation because they expired."),
		optionDelta:      newGauge("option_delta", "Last computed aggregate option delta."),
		perpDelta:        newGauge("perp_delta", "Last computed perpetual delta."),
		ready:            newGauge("connection_ready", "1 when the connection bootstrap completed."),
	}
	registry.MustRegister(
		p.reconnects,
		p.transportErrors,
		p.requestsRejected,
		p.messagesDropped,
		p.dataModel,
		p.hedgeOrders,
		p.snapshots,
		p.expiredOptions,
		p.optionDelta,
		p.perpDelta,
		p.ready,
		collectors.NewGoCollector(),
	)
	p.Metrics = &Metrics{
		Reconnects:          p.reconnects,
		TransportErrors:     p.transportErrors,
		RequestsRejected:    p.requestsRejected,
		MessagesDropped:     p.messagesDropped,
		DataModelViolations: p.dataModel,
		HedgeOrders:         p.hedgeOrders,
		SnapshotsPersisted:  p.snapshots,
		ExpiredOptions:      p.expiredOptions,
		OptionDelta:         p.optionDelta,
		PerpDelta:           p.perpDelta,
		Ready:               p.ready,
	}
	return p
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
