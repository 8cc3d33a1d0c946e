package scheduler

import "github.com/prometheus/client_golang/prometheus"

const (
	resultSuccess = "success"
	resultError   = "error"
	resultSkipped = "skipped"
)

type metrics struct {
	runs      *prometheus.CounterVec
	processed *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netbill",
			Subsystem: "scheduler",
			Name:      "job_runs_total",
			Help:      "Scheduler job runs by job and result.",
		}, []string{"job", "result"}),
		processed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netbill",
			Subsystem: "scheduler",
			Name:      "job_processed_total",
			Help:      "Records changed by scheduler jobs.",
		}, []string{"job"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.runs, m.processed} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeRun(job, result string) {
	m.runs.WithLabelValues(job, result).Inc()
}
