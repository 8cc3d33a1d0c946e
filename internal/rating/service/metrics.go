package service

import (
	"errors"

	ledgerdomain "github.com/netprofile/netbill/internal/ledger/domain"
	ratedomain "github.com/netprofile/netbill/internal/rate/domain"
	ratingdomain "github.com/netprofile/netbill/internal/rating/domain"
	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	sessions  *prometheus.CounterVec
	rollovers *prometheus.CounterVec
}

func newMetrics(reg prometheus.Registerer) (*metrics, error) {
	m := &metrics{
		sessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netbill",
			Subsystem: "rating",
			Name:      "sessions_total",
			Help:      "Accounting sessions processed by outcome.",
		}, []string{"result"}),
		rollovers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "netbill",
			Subsystem: "rating",
			Name:      "rollovers_total",
			Help:      "Quota window rollovers by outcome.",
		}, []string{"result"}),
	}
	if reg == nil {
		return m, nil
	}
	for _, c := range []prometheus.Collector{m.sessions, m.rollovers} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *metrics) observeSession(res *ratingdomain.Result, err error) {
	m.sessions.WithLabelValues(sessionResult(res, err)).Inc()
}

func sessionResult(res *ratingdomain.Result, err error) string {
	switch {
	case err == nil && res != nil && res.Duplicate:
		return "duplicate"
	case err == nil && res != nil && res.Flagged():
		return "flagged"
	case err == nil:
		return "rated"
	case errors.Is(err, ledgerdomain.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, ledgerdomain.ErrConcurrencyConflict):
		return "conflict"
	case errors.Is(err, ratedomain.ErrNoMatch):
		return "no_match"
	case errors.Is(err, ratedomain.ErrConfiguration):
		return "configuration"
	default:
		return "error"
	}
}
