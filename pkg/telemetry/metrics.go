package telemetry

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/boristopalov/spacenav/pkg/core"
)

const (
	metricsNamespace = "spacenav"
	metricsSubsystem = "simulation"
	maneuverAccepted = "accepted"
	maneuverRejected = "rejected"
	maneuverNoOp     = "noop"
)

// Metrics exposes simulator progress as Prometheus collectors. It implements
// core.Observer so it can be attached to any session.
type Metrics struct {
	Iterations           prometheus.Counter
	PolicyPolls          prometheus.Counter
	Maneuvers            *prometheus.CounterVec
	ManeuverDeltaV       prometheus.Histogram
	CollisionProbability prometheus.Gauge
	FuelConsumption      prometheus.Gauge
	Reward               prometheus.Gauge
}

// NewMetrics registers the simulator collectors on reg. Use a dedicated
// registry per process (or per test) to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Iterations: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "iterations_total",
			Help:      "Total simulator iterations (propagation steps)",
		}),
		PolicyPolls: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "policy_polls_total",
			Help:      "Total times the policy was asked for an action",
		}),
		Maneuvers: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "maneuvers_total",
			Help:      "Actions submitted to the environment by outcome",
		}, []string{"outcome"}),
		ManeuverDeltaV: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "maneuver_delta_v",
			Help:      "Delta-v magnitude of accepted maneuvers (m/s)",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 2, 5, 10, 50},
		}),
		CollisionProbability: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "collision_probability",
			Help:      "Last reported total collision probability",
		}),
		FuelConsumption: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "fuel_consumption",
			Help:      "Cumulative fuel consumed in the current session",
		}),
		Reward: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "reward",
			Help:      "Last reported session reward",
		}),
	}
}

// OnIteration implements core.Observer.
func (m *Metrics) OnIteration(event core.IterationEvent) {
	m.Iterations.Inc()
	m.CollisionProbability.Set(event.CollisionProbability)
	m.FuelConsumption.Set(event.FuelConsumption)
	m.Reward.Set(event.Reward)

	if !event.Polled {
		return
	}
	m.PolicyPolls.Inc()
	switch {
	case event.Rejection != "":
		m.Maneuvers.WithLabelValues(maneuverRejected).Inc()
	case event.Action.IsNoOp():
		m.Maneuvers.WithLabelValues(maneuverNoOp).Inc()
	default:
		m.Maneuvers.WithLabelValues(maneuverAccepted).Inc()
		m.ManeuverDeltaV.Observe(event.Action.Magnitude())
	}
}

// WriteTextfile dumps everything gathered by g to path in the Prometheus text
// format, for one-shot runs that do not serve /metrics.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
