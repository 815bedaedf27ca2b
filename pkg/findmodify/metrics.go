package findmodify

import "github.com/prometheus/client_golang/prometheus"

// Metrics counts engine runs. A nil *Metrics records nothing.
type Metrics struct {
	runs        *prometheus.CounterVec
	matched     prometheus.Counter
	modified    prometheus.Counter
	applyErrors prometheus.Counter
}

// NewMetrics creates the engine counters and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rosctl_findmodify_runs_total",
			Help: "Find-and-modify runs by outcome.",
		}, []string{"result"}),
		matched: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosctl_findmodify_matched_records_total",
			Help: "Records matched by find specifications.",
		}),
		modified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosctl_findmodify_modified_records_total",
			Help: "Records written by find-and-modify runs.",
		}),
		applyErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rosctl_findmodify_apply_errors_total",
			Help: "Updates rejected by the device or aborted by cancellation.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.runs, m.matched, m.modified, m.applyErrors)
	}
	return m
}

func (m *Metrics) run(result string) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
}

func (m *Metrics) matchedRecords(n int) {
	if m == nil {
		return
	}
	m.matched.Add(float64(n))
}

func (m *Metrics) modifiedRecord() {
	if m == nil {
		return
	}
	m.modified.Inc()
}

func (m *Metrics) applyError() {
	if m == nil {
		return
	}
	m.applyErrors.Inc()
}
