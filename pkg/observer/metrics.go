package observer

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics is a Subscriber that feeds every published Event into real
// Prometheus collectors, registered against reg so the caller decides
// which registry (default or custom) backs the /metrics endpoint.
type Metrics struct {
	transitions *prometheus.CounterVec
	lastEventAt *prometheus.GaugeVec
}

// NewMetrics builds and registers the collectors against reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "escrowd",
			Subsystem: "observer",
			Name:      "state_transitions_total",
			Help:      "Count of persisted state transitions by entity type and new state.",
		}, []string{"entity_type", "new_state"}),
		lastEventAt: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "escrowd",
			Subsystem: "observer",
			Name:      "last_event_unixtime",
			Help:      "Unix timestamp of the most recent event seen per entity type.",
		}, []string{"entity_type"}),
	}
	reg.MustRegister(m.transitions, m.lastEventAt)
	return m
}

// Notify implements Subscriber.
func (m *Metrics) Notify(ev Event) {
	m.transitions.WithLabelValues(string(ev.EntityType), ev.NewState).Inc()
	m.lastEventAt.WithLabelValues(string(ev.EntityType)).Set(float64(ev.Timestamp.Unix()))
}
