package service

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	posts *prometheus.CounterVec
}

func newMetrics() *Metrics {
	return &Metrics{
		posts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netbill",
			Subsystem: "ledger",
			Name:      "posts_total",
			Help:      "Stash IO posts by result.",
		}, []string{"result"}),
	}
}

// NewMetrics registers the ledger collectors on reg.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := newMetrics()
	if reg == nil {
		return m, nil
	}
	if err := reg.Register(m.posts); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Metrics) observePost(err error) {
	m.posts.WithLabelValues(postResult(err)).Inc()
}
