package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestPipelineMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewPipelineMetrics(reg)
	m.ObserveRequest("NORMAL")
	m.ObserveBlocked("safety")
	m.ObserveEscalation()
	m.ObserveAuthorization(95)
	m.ObserveSafetyScan(0.2)
	m.ObserveGeneration(120, 40, 0.00018)
	m.ObserveLatency(0.5)
}

func TestPipelineMetricsNilSafe(t *testing.T) {
	var m *PipelineMetrics
	m.ObserveRequest("NORMAL")
	m.ObserveBlocked("policy")
	m.ObserveEscalation()
	m.ObserveAuthorization(0)
	m.ObserveSafetyScan(0)
	m.ObserveGeneration(0, 0, 0)
	m.ObserveLatency(0)
}
