package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.Reconnects.Inc()
	prom.Metrics.TransportErrors.Inc()
	prom.Metrics.RequestsRejected.Inc()
	prom.Metrics.MessagesDropped.Inc()
	prom.Metrics.DataModelViolations.Inc()
	prom.Metrics.HedgeOrders.Inc()
	prom.Metrics.SnapshotsPersisted.Inc()
	prom.Metrics.SnapshotsPersisted.Inc()
	prom.Metrics.ExpiredOptions.Inc()

	assertCounter(t, prom.reconnects, 1)
	assertCounter(t, prom.transportErrors, 1)
	assertCounter(t, prom.requestsRejected, 1)
	assertCounter(t, prom.messagesDropped, 1)
	assertCounter(t, prom.dataModel, 1)
	assertCounter(t, prom.hedgeOrders, 1)
	assertCounter(t, prom.snapshots, 2)
	assertCounter(t, prom.expiredOptions, 1)
}

func TestPrometheusGauges(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OptionDelta.Set(-1250.5)
	prom.Metrics.Ready.Set(1)
	if got := testutil.ToFloat64(prom.optionDelta); got != -1250.5 {
		t.Fatalf("expected -1250.5, got %v", got)
	}
	if got := testutil.ToFloat64(prom.ready); got != 1 {
		t.Fatalf("expected 1, got %v", got)
	}
}

func TestPrometheusHandler(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.HedgeOrders.Inc()
	rec := httptest.NewRecorder()
	prom.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "deribit_hedge_bot_hedge_orders_total 1") {
		t.Fatalf("expected hedge orders counter in exposition, got:\n%s", body)
	}
}

func TestNoopMetrics(t *testing.T) {
	m := NewNoop()
	m.Reconnects.Inc()
	m.OptionDelta.Set(1)
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
