package analytics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"campkit/core"
)

// BridgeHook fans one event out to several hooks.
type BridgeHook struct{ hooks []Hook }

func NewBridge(hooks ...Hook) *BridgeHook { return &BridgeHook{hooks: hooks} }

func (b *BridgeHook) OnEvent(e core.Event) {
	for _, h := range b.hooks {
		h.OnEvent(e)
	}
}

// Metrics exports domain event counts to Prometheus.
type Metrics struct {
	points      *prometheus.CounterVec
	badges      *prometheus.CounterVec
	levelUps    prometheus.Counter
	enrollments *prometheus.CounterVec
	statuses    *prometheus.CounterVec
	proofs      *prometheus.CounterVec
	events      *prometheus.CounterVec
}

// NewMetrics registers the collectors with reg (the default registerer when nil).
// Collectors already registered under the same name are reused.
func NewMetrics(namespace string, reg prometheus.Registerer) (*Metrics, error) {
	if namespace == "" {
		namespace = "campkit"
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		points: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "points_awarded_total",
			Help:      "Points awarded, by action kind.",
		}, []string{"action"}),
		badges: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "badges_awarded_total",
			Help:      "Badges awarded, by badge id.",
		}, []string{"badge"}),
		levelUps: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "level_ups_total",
			Help:      "Level transitions across all campers.",
		}),
		enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrollment",
			Name:      "created_total",
			Help:      "Committed enrollments, by trip.",
		}, []string{"trip"}),
		statuses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrollment",
			Name:      "status_changes_total",
			Help:      "Enrollment status transitions, by target status.",
		}, []string{"status"}),
		proofs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "enrollment",
			Name:      "proof_uploads_total",
			Help:      "Payment proof upload outcomes.",
		}, []string{"result"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Domain events published on the bus, by type.",
		}, []string{"type"}),
	}
	var err error
	if m.points, err = registerVec(reg, m.points); err != nil {
		return nil, err
	}
	if m.badges, err = registerVec(reg, m.badges); err != nil {
		return nil, err
	}
	if m.enrollments, err = registerVec(reg, m.enrollments); err != nil {
		return nil, err
	}
	if m.statuses, err = registerVec(reg, m.statuses); err != nil {
		return nil, err
	}
	if m.proofs, err = registerVec(reg, m.proofs); err != nil {
		return nil, err
	}
	if m.events, err = registerVec(reg, m.events); err != nil {
		return nil, err
	}
	if err := reg.Register(m.levelUps); err != nil {
		are, ok := err.(prometheus.AlreadyRegisteredError)
		if !ok {
			return nil, fmt.Errorf("register level ups counter: %w", err)
		}
		existing, ok := are.ExistingCollector.(prometheus.Counter)
		if !ok {
			return nil, fmt.Errorf("register level ups counter: %w", err)
		}
		m.levelUps = existing
	}
	return m, nil
}

func registerVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		if are, ok := err.(prometheus.AlreadyRegisteredError); ok {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, fmt.Errorf("register counter: %w", err)
	}
	return c, nil
}

func (m *Metrics) OnEvent(e core.Event) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(string(e.Type)).Inc()
	switch e.Type {
	case core.EventPointsAdded:
		if e.Delta > 0 {
			m.points.WithLabelValues(string(e.Action)).Add(float64(e.Delta))
		}
	case core.EventBadgeAwarded:
		m.badges.WithLabelValues(string(e.Badge)).Inc()
	case core.EventLevelUp:
		m.levelUps.Inc()
	case core.EventEnrollmentCreated:
		m.enrollments.WithLabelValues(e.TripID).Inc()
	case core.EventEnrollmentStatus:
		m.statuses.WithLabelValues(e.Status).Inc()
	case core.EventProofUploaded:
		m.proofs.WithLabelValues("ok").Inc()
	case core.EventProofFailed:
		m.proofs.WithLabelValues("failed").Inc()
	}
}
