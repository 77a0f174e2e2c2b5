package metrics

import "strconv"

// MetricsWrapper adapts Metrics to the small interfaces the analysis pipeline
// and the LLM client depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) AnalysesInc()                      { w.m.AnalysesTotal.Inc() }
func (w *MetricsWrapper) InputRejectedInc()                 { w.m.InputRejections.Inc() }
func (w *MetricsWrapper) ScoringFailuresInc()               { w.m.ScoringFailures.Inc() }
func (w *MetricsWrapper) OverrideInc(band string)           { w.m.OverridesTotal.WithLabelValues(band).Inc() }
func (w *MetricsWrapper) NarrativeFailureInc(agent string)  { w.m.NarrativeFailures.WithLabelValues(agent).Inc() }
func (w *MetricsWrapper) RiskScoreObserve(v float64)        { w.m.RiskScores.Observe(v) }
func (w *MetricsWrapper) ScoringLatencyObserve(v float64)   { w.m.ScoringLatency.Observe(v) }
func (w *MetricsWrapper) AnalysisDurationObserve(v float64) { w.m.AnalysisDuration.Observe(v) }
func (w *MetricsWrapper) StoreFailuresInc()                 { w.m.StoreFailures.Inc() }

func (w *MetricsWrapper) LLMLatencyObserve(v float64)  { w.m.LLMLatency.Observe(v) }
func (w *MetricsWrapper) LLMFailuresInc()              { w.m.LLMFailures.Inc() }
func (w *MetricsWrapper) LLMBreakerStateSet(v float64) { w.m.LLMBreakerState.Set(v) }

func (w *MetricsWrapper) HTTPRequestObserve(method, route string, status int, seconds float64) {
	w.m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	w.m.HTTPDuration.WithLabelValues(route).Observe(seconds)
}
