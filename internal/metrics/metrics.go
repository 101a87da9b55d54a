// Package metrics holds the client-side Prometheus instruments. A nil
// *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	Registry *prometheus.Registry

	Requests  *prometheus.CounterVec
	Latency   *prometheus.HistogramVec
	Rollbacks *prometheus.CounterVec
	Refreshes *prometheus.CounterVec
	Logouts   prometheus.Counter
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		Registry: reg,
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grocer",
			Subsystem: "gateway",
			Name:      "requests_total",
			Help:      "Gateway round trips by method, route and status code (0 = no response).",
		}, []string{"method", "route", "code"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "grocer",
			Subsystem: "gateway",
			Name:      "request_duration_seconds",
			Help:      "Gateway round trip latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		Rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grocer",
			Subsystem: "sync",
			Name:      "rollbacks_total",
			Help:      "Optimistic mutations reverted after a failed call, by operation.",
		}, []string{"op"}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "grocer",
			Subsystem: "sync",
			Name:      "refreshes_total",
			Help:      "Collection refreshes by mode (silent|loud) and result (ok|error).",
		}, []string{"mode", "result"}),
		Logouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "grocer",
			Subsystem: "session",
			Name:      "logouts_total",
			Help:      "Transitions into the unauthenticated state.",
		}),
	}
	reg.MustRegister(m.Requests, m.Latency, m.Rollbacks, m.Refreshes, m.Logouts)
	return m
}

func (m *Metrics) ObserveRequest(method, route string, code int, d time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(method, route, strconv.Itoa(code)).Inc()
	m.Latency.WithLabelValues(method, route).Observe(d.Seconds())
}

func (m *Metrics) Rollback(op string) {
	if m == nil {
		return
	}
	m.Rollbacks.WithLabelValues(op).Inc()
}

func (m *Metrics) Refresh(silent bool, err error) {
	if m == nil {
		return
	}
	mode := "loud"
	if silent {
		mode = "silent"
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Refreshes.WithLabelValues(mode, result).Inc()
}

func (m *Metrics) Logout() {
	if m == nil {
		return
	}
	m.Logouts.Inc()
}

// Handler exposes the registry for scraping.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{})
}
