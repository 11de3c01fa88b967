package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestTurnMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTurnMetrics(reg)
	m.ObserveTurn("chat", "add", "ok", 0.02)
	m.ObserveTurn("chat", "add", "ok", 0.03)
	m.ObserveMatch("", "not_found")
	m.ObserveOrder("created")
	m.ObserveReindex(false)
	m.ObserveOutbox(true)
	m.ObserveOutbox(false)

	var metric dto.Metric
	require.NoError(t, m.turnsTotal.WithLabelValues("chat", "add", "ok").Write(&metric))
	require.Equal(t, 2.0, metric.GetCounter().GetValue())

	metric.Reset()
	require.NoError(t, m.matchesTotal.WithLabelValues("none", "not_found").Write(&metric))
	require.Equal(t, 1.0, metric.GetCounter().GetValue())

	metric.Reset()
	require.NoError(t, m.outboxTotal.WithLabelValues("failed").Write(&metric))
	require.Equal(t, 1.0, metric.GetCounter().GetValue())

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 6)
}

func TestTurnMetricsDefaultRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = reg
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewTurnMetrics(nil)
	m.ObserveOrder("failed")
}

func TestTurnMetricsNilSafe(t *testing.T) {
	var m *TurnMetrics
	m.ObserveTurn("chat", "add", "ok", 0.1)
	m.ObserveMatch("lexical", "resolved")
	m.ObserveOrder("created")
	m.ObserveReindex(true)
	m.ObserveOutbox(false)
}
