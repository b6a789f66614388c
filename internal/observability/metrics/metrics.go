package metrics

import "github.com/prometheus/client_golang/prometheus"

// PipelineMetrics exposes counters/gauges for the request firewall pipeline.
type PipelineMetrics struct {
	requestsTotal    *prometheus.CounterVec
	blockedTotal     *prometheus.CounterVec
	escalationsTotal prometheus.Counter
	accessLegitimacy prometheus.Gauge
	phiExposureRisk  prometheus.Gauge
	tokensIn         prometheus.Counter
	tokensOut        prometheus.Counter
	costUSD          prometheus.Counter
	pipelineLatency  prometheus.Histogram
}

func NewPipelineMetrics(reg prometheus.Registerer) *PipelineMetrics {
	m := &PipelineMetrics{
		requestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aegisgraph",
			Subsystem: "pipeline",
			Name:      "requests_total",
			Help:      "Total requests processed, labeled by effective security mode",
		}, []string{"mode"}),
		blockedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "aegisgraph",
			Subsystem: "pipeline",
			Name:      "blocked_total",
			Help:      "Total requests denied or blocked, labeled by stage",
		}, []string{"stage"}),
		escalationsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aegisgraph",
			Subsystem: "security",
			Name:      "escalations_total",
			Help:      "Total automatic escalations into strict mode",
		}),
		accessLegitimacy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aegisgraph",
			Subsystem: "security",
			Name:      "access_legitimacy_confidence",
			Help:      "Confidence of the most recent authorization decision (0-100)",
		}),
		phiExposureRisk: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "aegisgraph",
			Subsystem: "security",
			Name:      "phi_exposure_risk",
			Help:      "PHI exposure risk of the most recent safety scan (0-1)",
		}),
		tokensIn: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aegisgraph",
			Subsystem: "llm",
			Name:      "tokens_in_total",
			Help:      "Total input tokens consumed by response generation",
		}),
		tokensOut: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aegisgraph",
			Subsystem: "llm",
			Name:      "tokens_out_total",
			Help:      "Total output tokens produced by response generation",
		}),
		costUSD: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "aegisgraph",
			Subsystem: "llm",
			Name:      "cost_usd_total",
			Help:      "Estimated cumulative LLM spend in USD",
		}),
		pipelineLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "aegisgraph",
			Subsystem: "pipeline",
			Name:      "latency_seconds",
			Help:      "End-to-end pipeline latency",
			Buckets:   prometheus.DefBuckets,
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.requestsTotal, m.blockedTotal, m.escalationsTotal,
		m.accessLegitimacy, m.phiExposureRisk,
		m.tokensIn, m.tokensOut, m.costUSD, m.pipelineLatency,
	)
	return m
}

func (m *PipelineMetrics) ObserveRequest(mode string) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(mode).Inc()
}

func (m *PipelineMetrics) ObserveBlocked(stage string) {
	if m == nil {
		return
	}
	m.blockedTotal.WithLabelValues(stage).Inc()
}

func (m *PipelineMetrics) ObserveEscalation() {
	if m == nil {
		return
	}
	m.escalationsTotal.Inc()
}

func (m *PipelineMetrics) ObserveAuthorization(confidence int) {
	if m == nil {
		return
	}
	m.accessLegitimacy.Set(float64(confidence))
}

func (m *PipelineMetrics) ObserveSafetyScan(phiRisk float64) {
	if m == nil {
		return
	}
	m.phiExposureRisk.Set(phiRisk)
}

func (m *PipelineMetrics) ObserveGeneration(tokensIn, tokensOut int, costUSD float64) {
	if m == nil {
		return
	}
	m.tokensIn.Add(float64(tokensIn))
	m.tokensOut.Add(float64(tokensOut))
	m.costUSD.Add(costUSD)
}

func (m *PipelineMetrics) ObserveLatency(seconds float64) {
	if m == nil {
		return
	}
	m.pipelineLatency.Observe(seconds)
}
