package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics groups the Prometheus collectors for the re-authentication core.
type Metrics struct {
	PinVerifications *prometheus.CounterVec
	Lockouts         prometheus.Counter
	TrustResolutions *prometheus.CounterVec
}

// New registers and returns the service metrics using the provided registerer,
// falling back to the default registerer when nil.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	factory := promauto.With(reg)

	m := &Metrics{
		PinVerifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reauth",
			Subsystem: "pin",
			Name:      "verifications_total",
			Help:      "Total PIN verification attempts partitioned by outcome.",
		}, []string{"outcome"}),
		Lockouts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "reauth",
			Subsystem: "pin",
			Name:      "lockouts_total",
			Help:      "Total lockouts triggered by repeated PIN failures.",
		}),
		TrustResolutions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "reauth",
			Subsystem: "trust",
			Name:      "resolutions_total",
			Help:      "Total trust resolutions partitioned by required auth level.",
		}, []string{"level"}),
	}

	return m
}

// ObserveVerification records a PIN verification outcome (success, wrong_pin, locked).
func (m *Metrics) ObserveVerification(outcome string) {
	if m == nil {
		return
	}
	m.PinVerifications.WithLabelValues(outcome).Inc()
}

// ObserveLockout records a tripped lockout.
func (m *Metrics) ObserveLockout() {
	if m == nil {
		return
	}
	m.Lockouts.Inc()
}

// ObserveResolution records the level a trust resolution produced.
func (m *Metrics) ObserveResolution(level string) {
	if m == nil {
		return
	}
	m.TrustResolutions.WithLabelValues(level).Inc()
}
