package observability

import (
	"log/slog"

	"github.com/aretw0/scenaria/pkg/domain"
)

// LoggingHooks logs every editor event. Rejections and failed saves are warnings.
func LoggingHooks(logger *slog.Logger) domain.EditorHooks {
	return domain.EditorHooks{
		OnCommandExecuted: func(e *domain.CommandEvent) {
			logger.Debug("command executed",
				"scenario_id", e.ScenarioID,
				"command", e.CommandType,
				"changes", e.Changes,
				"batch", e.Batch,
			)
		},
		OnCommandRejected: func(e *domain.CommandEvent) {
			logger.Warn("command rejected",
				"scenario_id", e.ScenarioID,
				"command", e.CommandType,
				"err", e.Err,
			)
		},
		OnUndo: func(e *domain.HistoryEvent) {
			logger.Info("undo", "scenario_id", e.ScenarioID, "description", e.Description, "changes", e.Changes)
		},
		OnRedo: func(e *domain.HistoryEvent) {
			logger.Info("redo", "scenario_id", e.ScenarioID, "description", e.Description, "changes", e.Changes)
		},
		OnSync: func(e *domain.SyncEvent) {
			if e.Err != nil {
				logger.Warn("save failed", "scenario_id", e.ScenarioID, "operations", e.Operations, "err", e.Err)
				return
			}
			logger.Info("saved",
				"scenario_id", e.ScenarioID,
				"version", e.Version,
				"operations", e.Operations,
				"duration", e.Duration,
			)
		},
	}
}

// Combine returns hooks that call every non-nil callback of hooks in order.
func Combine(hooks ...domain.EditorHooks) domain.EditorHooks {
	var out domain.EditorHooks
	for _, h := range hooks {
		out.OnCommandExecuted = chain(out.OnCommandExecuted, h.OnCommandExecuted)
		out.OnCommandRejected = chain(out.OnCommandRejected, h.OnCommandRejected)
		out.OnUndo = chain(out.OnUndo, h.OnUndo)
		out.OnRedo = chain(out.OnRedo, h.OnRedo)
		out.OnSync = chain(out.OnSync, h.OnSync)
	}
	return out
}

func chain[E any](first, next func(E)) func(E) {
	switch {
	case first == nil:
		return next
	case next == nil:
		return first
	}
	return func(e E) {
		first(e)
		next(e)
	}
}
