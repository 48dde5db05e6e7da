package observability

import (
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "scenaria"

// Metrics holds the editor collectors.
type Metrics struct {
	Commands       *prometheus.CounterVec
	Changes        prometheus.Counter
	HistorySteps   *prometheus.CounterVec
	Syncs          *prometheus.CounterVec
	SyncDuration   prometheus.Histogram
	SyncOperations prometheus.Histogram
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Commands: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Commands dispatched, by type and outcome.",
		}, []string{"type", "outcome"}),
		Changes: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "entity_changes_total",
			Help:      "Entity changes recorded by executed commands.",
		}),
		HistorySteps: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "history_steps_total",
			Help:      "Undo and redo steps.",
		}, []string{"direction"}),
		Syncs: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "syncs_total",
			Help:      "Save attempts, by outcome.",
		}, []string{"outcome"}),
		SyncDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_duration_seconds",
			Help:      "Duration of repository saves.",
			Buckets:   prometheus.DefBuckets,
		}),
		SyncOperations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sync_operations",
			Help:      "Operations sent per save.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 6),
		}),
	}
}

// Hooks returns editor hooks that record into m.
func (m *Metrics) Hooks() domain.EditorHooks {
	return domain.EditorHooks{
		OnCommandExecuted: func(e *domain.CommandEvent) {
			m.Commands.WithLabelValues(e.CommandType, "executed").Inc()
			m.Changes.Add(float64(e.Changes))
		},
		OnCommandRejected: func(e *domain.CommandEvent) {
			m.Commands.WithLabelValues(e.CommandType, "rejected").Inc()
		},
		OnUndo: func(*domain.HistoryEvent) {
			m.HistorySteps.WithLabelValues("undo").Inc()
		},
		OnRedo: func(*domain.HistoryEvent) {
			m.HistorySteps.WithLabelValues("redo").Inc()
		},
		OnSync: func(e *domain.SyncEvent) {
			outcome := "ok"
			if e.Err != nil {
				outcome = "error"
			}
			m.Syncs.WithLabelValues(outcome).Inc()
			m.SyncDuration.Observe(e.Duration.Seconds())
			m.SyncOperations.Observe(float64(e.Operations))
		},
	}
}
