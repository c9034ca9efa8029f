// internal/metrics/metrics.go
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics bundles the service's Prometheus collectors on a private registry,
// so tests can construct isolated instances without global registration
// conflicts.
type Metrics struct {
	registry *prometheus.Registry

	GamesStarted   *prometheus.CounterVec
	RoundsPlayed   prometheus.Counter
	Submissions    *prometheus.CounterVec
	ActiveGames    prometheus.Gauge
	SolverDuration prometheus.Histogram
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		GamesStarted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "countdown_games_started_total",
			Help: "Games started, labeled by how they were created.",
		}, []string{"mode"}),
		RoundsPlayed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "countdown_rounds_played_total",
			Help: "Rounds that ran to their deadline or were ended early.",
		}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "countdown_submissions_total",
			Help: "Answer submissions, labeled by outcome.",
		}, []string{"outcome"}),
		ActiveGames: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "countdown_active_games",
			Help: "Games currently in progress across all channels.",
		}),
		SolverDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "countdown_solver_duration_seconds",
			Help:    "Time spent searching for the best solution per round.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	m.registry.MustRegister(
		m.GamesStarted,
		m.RoundsPlayed,
		m.Submissions,
		m.ActiveGames,
		m.SolverDuration,
	)
	return m
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
