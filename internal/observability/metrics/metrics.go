package metrics

import "github.com/prometheus/client_golang/prometheus"

// TurnMetrics exposes counters/histograms for chat turns, matching and orders.
type TurnMetrics struct {
	turnsTotal   *prometheus.CounterVec
	turnLatency  *prometheus.HistogramVec
	matchesTotal *prometheus.CounterVec
	ordersTotal  *prometheus.CounterVec
	reindexTotal *prometheus.CounterVec
	outboxTotal  *prometheus.CounterVec
}

func NewTurnMetrics(reg prometheus.Registerer) *TurnMetrics {
	m := &TurnMetrics{
		turnsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medorder",
			Subsystem: "dialogue",
			Name:      "turns_total",
			Help:      "Total chat turns by mode, intent and outcome",
		}, []string{"mode", "intent", "outcome"}),
		turnLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medorder",
			Subsystem: "dialogue",
			Name:      "turn_latency_seconds",
			Help:      "Latency of a single chat turn",
			Buckets:   prometheus.DefBuckets,
		}, []string{"mode"}),
		matchesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medorder",
			Subsystem: "match",
			Name:      "resolutions_total",
			Help:      "Matcher resolutions by winning strategy and outcome",
		}, []string{"strategy", "outcome"}),
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medorder",
			Subsystem: "orders",
			Name:      "submissions_total",
			Help:      "Order submissions by result",
		}, []string{"status"}),
		reindexTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medorder",
			Subsystem: "match",
			Name:      "reindex_total",
			Help:      "Embedding index builds by result",
		}, []string{"status"}),
		outboxTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medorder",
			Subsystem: "outbox",
			Name:      "deliveries_total",
			Help:      "Outbox delivery attempts by result",
		}, []string{"status"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.turnsTotal, m.turnLatency, m.matchesTotal, m.ordersTotal, m.reindexTotal, m.outboxTotal)
	return m
}

func (m *TurnMetrics) ObserveTurn(mode, intent, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.turnsTotal.WithLabelValues(mode, intent, outcome).Inc()
	m.turnLatency.WithLabelValues(mode).Observe(seconds)
}

func (m *TurnMetrics) ObserveMatch(strategy, outcome string) {
	if m == nil {
		return
	}
	if strategy == "" {
		strategy = "none"
	}
	m.matchesTotal.WithLabelValues(strategy, outcome).Inc()
}

func (m *TurnMetrics) ObserveOrder(status string) {
	if m == nil {
		return
	}
	m.ordersTotal.WithLabelValues(status).Inc()
}

func (m *TurnMetrics) ObserveReindex(success bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !success {
		status = "error"
	}
	m.reindexTotal.WithLabelValues(status).Inc()
}

// ObserveOutbox is shaped to plug into events.Deliverer.WithResultHook.
func (m *TurnMetrics) ObserveOutbox(delivered bool) {
	if m == nil {
		return
	}
	status := "delivered"
	if !delivered {
		status = "failed"
	}
	m.outboxTotal.WithLabelValues(status).Inc()
}
