package session

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	probes        *prometheus.CounterVec
	refreshes     *prometheus.CounterVec
	coalesced     prometheus.Counter
	authenticated prometheus.Gauge
}

// NewMetrics registers the session collectors on reg. A nil reg keeps the
// collectors unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		probes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_session_probes_total",
			Help: "Identity probes by result.",
		}, []string{"result"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portal_session_refreshes_total",
			Help: "Credential refresh attempts by result.",
		}, []string{"result"}),
		coalesced: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portal_session_cycles_coalesced_total",
			Help: "Revalidation triggers dropped because a cycle was already running.",
		}),
		authenticated: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portal_session_authenticated",
			Help: "1 when the session store holds a user.",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.probes, m.refreshes, m.coalesced, m.authenticated)
	}
	return m
}

func (m *Metrics) probe(result string) {
	if m == nil {
		return
	}
	m.probes.WithLabelValues(result).Inc()
}

func (m *Metrics) refresh(result string) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(result).Inc()
}

func (m *Metrics) coalesce() {
	if m == nil {
		return
	}
	m.coalesced.Inc()
}

func (m *Metrics) setAuthenticated(ok bool) {
	if m == nil {
		return
	}
	if ok {
		m.authenticated.Set(1)
		return
	}
	m.authenticated.Set(0)
}
