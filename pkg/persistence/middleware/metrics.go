package middleware

import (
	"context"
	"errors"
	"time"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// RepositoryMetrics holds the collectors of the metrics middleware.
type RepositoryMetrics struct {
	Calls     *prometheus.CounterVec
	Duration  *prometheus.HistogramVec
	Conflicts prometheus.Counter
}

// NewRepositoryMetrics creates the collectors and registers them with reg.
func NewRepositoryMetrics(reg prometheus.Registerer) *RepositoryMetrics {
	factory := promauto.With(reg)
	return &RepositoryMetrics{
		Calls: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "scenaria",
			Subsystem: "repository",
			Name:      "calls_total",
			Help:      "Repository calls, by operation and outcome.",
		}, []string{"op", "outcome"}),
		Duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "scenaria",
			Subsystem: "repository",
			Name:      "call_duration_seconds",
			Help:      "Duration of repository calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"op"}),
		Conflicts: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "scenaria",
			Subsystem: "repository",
			Name:      "version_conflicts_total",
			Help:      "Applies rejected because the stored version moved.",
		}),
	}
}

type metricsMiddleware struct {
	next    ports.ScenarioRepository
	metrics *RepositoryMetrics
}

// NewMetricsMiddleware records call counts and durations into metrics.
func NewMetricsMiddleware(metrics *RepositoryMetrics) Middleware {
	return func(next ports.ScenarioRepository) ports.ScenarioRepository {
		return &metricsMiddleware{next: next, metrics: metrics}
	}
}

func (m *metricsMiddleware) observe(op string, start time.Time, err error) {
	outcome := "ok"
	switch {
	case errors.Is(err, domain.ErrSyncConflict):
		outcome = "conflict"
		m.metrics.Conflicts.Inc()
	case errors.Is(err, domain.ErrScenarioNotFound):
		outcome = "not_found"
	case err != nil:
		outcome = "error"
	}
	m.metrics.Calls.WithLabelValues(op, outcome).Inc()
	m.metrics.Duration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

func (m *metricsMiddleware) Apply(ctx context.Context, scenarioID string, baseVersion int, ops []domain.Operation) (int, error) {
	start := time.Now()
	version, err := m.next.Apply(ctx, scenarioID, baseVersion, ops)
	m.observe("apply", start, err)
	return version, err
}

func (m *metricsMiddleware) Load(ctx context.Context, scenarioID string) (*domain.Document, error) {
	start := time.Now()
	doc, err := m.next.Load(ctx, scenarioID)
	m.observe("load", start, err)
	return doc, err
}

func (m *metricsMiddleware) Delete(ctx context.Context, scenarioID string) error {
	start := time.Now()
	err := m.next.Delete(ctx, scenarioID)
	m.observe("delete", start, err)
	return err
}

func (m *metricsMiddleware) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := m.next.List(ctx)
	m.observe("list", start, err)
	return ids, err
}
