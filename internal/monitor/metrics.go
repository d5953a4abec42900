// Package monitor exposes the bot's prometheus metrics and logs bus alerts.
package monitor

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"consensus-trader/internal/order"
	"consensus-trader/internal/strategy"
	"consensus-trader/pkg/exchanges/common"
)

const namespace = "consensus"

// Metrics implements gateway.Observer and engine.Metrics on top of a
// prometheus registry.
type Metrics struct {
	signals    *prometheus.CounterVec
	evaluation *prometheus.HistogramVec
	orders     *prometheus.CounterVec
	openTrades *prometheus.GaugeVec
	reconnects *prometheus.CounterVec

	requests       *prometheus.CounterVec
	requestLatency *prometheus.HistogramVec
	queueWait      *prometheus.HistogramVec
	admittedWeight *prometheus.CounterVec

	reg prometheus.Registerer
}

// New creates the metrics and registers them on reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		signals: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "signals_total",
				Help:      "Consensus signals evaluated",
			},
			[]string{"symbol", "signal"},
		),
		evaluation: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_seconds",
				Help:      "Time spent computing one symbol's consensus",
				Buckets:   []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25},
			},
			[]string{"symbol"},
		),
		orders: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "orders_total",
				Help:      "Order actions executed, by outcome",
			},
			[]string{"symbol", "action", "result"}, // result: ok|rejected|precision|transient|error
		),
		openTrades: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_trade",
				Help:      "1 while the symbol holds an open trade",
			},
			[]string{"symbol"},
		),
		reconnects: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "stream_reconnects_total",
				Help:      "Websocket stream reconnects",
			},
			[]string{"stream"},
		),
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_requests_total",
				Help:      "Venue requests by operation and outcome",
			},
			[]string{"op", "class", "result"},
		),
		requestLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_request_seconds",
				Help:      "Venue request latency including queue wait",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"op"},
		),
		queueWait: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "gateway_queue_wait_seconds",
				Help:      "Time a request waited for rate-limit admission",
				Buckets:   []float64{.001, .01, .05, .1, .5, 1, 5, 15, 60},
			},
			[]string{"class"},
		),
		admittedWeight: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "gateway_admitted_weight_total",
				Help:      "Request weight admitted by the rate-limit queue",
			},
			[]string{"class"},
		),
		reg: reg,
	}
	reg.MustRegister(
		m.signals, m.evaluation, m.orders, m.openTrades, m.reconnects,
		m.requests, m.requestLatency, m.queueWait, m.admittedWeight,
	)
	return m
}

// ObserveEvaluation records one consensus evaluation.
func (m *Metrics) ObserveEvaluation(symbol string, took time.Duration, sig strategy.Signal) {
	m.signals.WithLabelValues(symbol, string(sig)).Inc()
	m.evaluation.WithLabelValues(symbol).Observe(took.Seconds())
}

// ObserveOrder records the outcome of one order action.
func (m *Metrics) ObserveOrder(symbol string, kind order.ActionKind, err error) {
	m.orders.WithLabelValues(symbol, string(kind), result(err)).Inc()
}

// SetOpenTrade flips the open trade gauge of symbol.
func (m *Metrics) SetOpenTrade(symbol string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	m.openTrades.WithLabelValues(symbol).Set(v)
}

// ObserveRequest records one gateway call.
func (m *Metrics) ObserveRequest(op string, class common.Class, took time.Duration, err error) {
	m.requests.WithLabelValues(op, string(class), result(err)).Inc()
	m.requestLatency.WithLabelValues(op).Observe(took.Seconds())
}

// ObserveAdmission records how long a request queued for its weight.
func (m *Metrics) ObserveAdmission(a common.Admission) {
	m.queueWait.WithLabelValues(string(a.Class)).Observe(a.Admitted.Sub(a.Enqueued).Seconds())
	m.admittedWeight.WithLabelValues(string(a.Class)).Add(float64(a.Weight))
}

// IncReconnect counts a stream reconnect.
func (m *Metrics) IncReconnect(stream string) { m.reconnects.WithLabelValues(stream).Inc() }

// TrackWindows exports the rate-limit window usage reported by usage on
// every scrape.
func (m *Metrics) TrackWindows(usage func() []common.WindowUsage) error {
	return m.reg.Register(&windowCollector{usage: usage})
}

func result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case common.IsPrecision(err):
		return "precision"
	case common.IsRejection(err):
		return "rejected"
	case common.IsTransient(err):
		return "transient"
	case errors.Is(err, common.ErrRateBudgetExceeded):
		return "throttled"
	default:
		return "error"
	}
}

var (
	windowUsedDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "rate_window", "used"),
		"Weight used in the rate-limit window",
		[]string{"window"}, nil,
	)
	windowLimitDesc = prometheus.NewDesc(
		prometheus.BuildFQName(namespace, "rate_window", "limit"),
		"Weight budget of the rate-limit window",
		[]string{"window"}, nil,
	)
)

type windowCollector struct {
	usage func() []common.WindowUsage
}

func (c *windowCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- windowUsedDesc
	ch <- windowLimitDesc
}

func (c *windowCollector) Collect(ch chan<- prometheus.Metric) {
	for _, u := range c.usage() {
		ch <- prometheus.MustNewConstMetric(windowUsedDesc, prometheus.GaugeValue, float64(u.Used), u.Name)
		ch <- prometheus.MustNewConstMetric(windowLimitDesc, prometheus.GaugeValue, float64(u.Limit), u.Name)
	}
}
