package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "wanwatch"

// Resolve results.
const (
	ResolveOK      = "ok"
	ResolveError   = "error"
	ResolveInvalid = "invalid"
)

// Remediation signal results.
const (
	SignalSent    = "sent"
	SignalFailed  = "failed"
	SignalTest    = "test_mode"
	SignalLimited = "limit_reached"
)

// Store owns a private Prometheus registry with the monitor's collectors.
type Store struct {
	registry *prometheus.Registry

	resolveAttempts     *prometheus.CounterVec
	addressChanges      *prometheus.CounterVec
	notifications       *prometheus.CounterVec
	remediationSignals  *prometheus.CounterVec
	remediationAttempts prometheus.Gauge
	awayFromPrimary     prometheus.Gauge
	ready               prometheus.Gauge
}

func NewStore() *Store {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Store{
		registry: reg,
		resolveAttempts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "resolve_attempts_total",
			Help:      "WAN address lookups by outcome.",
		}, []string{"result"}),
		addressChanges: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "address_changes_total",
			Help:      "Observed WAN address changes by roster classification.",
		}, []string{"kind"}),
		notifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification deliveries by sink and outcome.",
		}, []string{"sink", "result"}),
		remediationSignals: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remediation_signals_total",
			Help:      "Outlet reset signals by outcome.",
		}, []string{"result"}),
		remediationAttempts: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "remediation_attempts",
			Help:      "Reset attempts spent in the current excursion.",
		}),
		awayFromPrimary: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "away_from_primary",
			Help:      "1 while the WAN address differs from the primary.",
		}),
		ready: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ready",
			Help:      "Whether the monitor considers itself ready (1=ready).",
		}),
	}
}

func (s *Store) Registry() *prometheus.Registry {
	return s.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (s *Store) Handler() http.Handler {
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

func (s *Store) ObserveResolve(result string) {
	s.resolveAttempts.WithLabelValues(result).Inc()
}

func (s *Store) ObserveDelivery(sink string, delivered bool) {
	result := "delivered"
	if !delivered {
		result = "abandoned"
	}
	s.notifications.WithLabelValues(sink, result).Inc()
}

func (s *Store) ObserveChange(kind string) {
	s.addressChanges.WithLabelValues(kind).Inc()
}

func (s *Store) ObserveAway(away bool) {
	s.awayFromPrimary.Set(boolToFloat(away))
}

func (s *Store) ObserveAttempts(attempts int) {
	s.remediationAttempts.Set(float64(attempts))
}

func (s *Store) ObserveSignal(result string) {
	s.remediationSignals.WithLabelValues(result).Inc()
}

func (s *Store) ObserveReadiness(ready bool) {
	s.ready.Set(boolToFloat(ready))
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

var (
	_ ResolveRecorder   = (*Store)(nil)
	_ NotifyRecorder    = (*Store)(nil)
	_ MonitorRecorder   = (*Store)(nil)
	_ ReadinessRecorder = (*Store)(nil)
)
