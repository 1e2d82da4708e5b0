package httpx

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	domainauth "github.com/dhanmatrix/dhanmatrix/internal/domain/auth"
)

// GuardMetrics counts route guard outcomes.
type GuardMetrics struct {
	decisions *prometheus.CounterVec
}

// GuardMetricsConfig configures GuardMetrics.
type GuardMetricsConfig struct {
	// Registry defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
	// Contexts, when set, is exported as a gauge of live auth contexts.
	Contexts func() int
}

// NewGuardMetrics registers the guard collectors.
func NewGuardMetrics(cfg GuardMetricsConfig) *GuardMetrics {
	reg := cfg.Registry
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	m := &GuardMetrics{
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dhanmatrix",
			Name:      "guard_decisions_total",
			Help:      "Route guard decisions by outcome and view kind.",
		}, []string{"decision", "admin_only"}),
	}
	if cfg.Contexts != nil {
		factory.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "dhanmatrix",
			Name:      "auth_contexts",
			Help:      "Browser sessions with a live auth context.",
		}, func() float64 { return float64(cfg.Contexts()) })
	}
	return m
}

func (m *GuardMetrics) observe(d domainauth.GuardDecision, adminOnly bool) {
	if m == nil {
		return
	}
	m.decisions.WithLabelValues(string(d), strconv.FormatBool(adminOnly)).Inc()
}
