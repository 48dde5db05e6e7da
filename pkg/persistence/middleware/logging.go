package middleware

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

type loggingMiddleware struct {
	next   ports.ScenarioRepository
	logger *slog.Logger
}

// NewLoggingMiddleware logs every repository call with its duration.
// Version conflicts and missing scenarios are logged at warn level, other failures at error level.
func NewLoggingMiddleware(logger *slog.Logger) Middleware {
	return func(next ports.ScenarioRepository) ports.ScenarioRepository {
		return &loggingMiddleware{next: next, logger: logger}
	}
}

func (m *loggingMiddleware) log(op, scenarioID string, start time.Time, err error, attrs ...any) {
	attrs = append([]any{"op", op, "scenario_id", scenarioID, "duration", time.Since(start)}, attrs...)
	switch {
	case err == nil:
		m.logger.Debug("repository call", attrs...)
	case errors.Is(err, domain.ErrSyncConflict), errors.Is(err, domain.ErrScenarioNotFound):
		m.logger.Warn("repository call rejected", append(attrs, "err", err)...)
	default:
		m.logger.Error("repository call failed", append(attrs, "err", err)...)
	}
}

func (m *loggingMiddleware) Apply(ctx context.Context, scenarioID string, baseVersion int, ops []domain.Operation) (int, error) {
	start := time.Now()
	version, err := m.next.Apply(ctx, scenarioID, baseVersion, ops)
	m.log("apply", scenarioID, start, err, "base_version", baseVersion, "operations", len(ops), "version", version)
	return version, err
}

func (m *loggingMiddleware) Load(ctx context.Context, scenarioID string) (*domain.Document, error) {
	start := time.Now()
	doc, err := m.next.Load(ctx, scenarioID)
	if err != nil {
		m.log("load", scenarioID, start, err)
		return nil, err
	}
	m.log("load", scenarioID, start, nil, "version", doc.Version, "records", len(doc.Records))
	return doc, nil
}

func (m *loggingMiddleware) Delete(ctx context.Context, scenarioID string) error {
	start := time.Now()
	err := m.next.Delete(ctx, scenarioID)
	m.log("delete", scenarioID, start, err)
	return err
}

func (m *loggingMiddleware) List(ctx context.Context) ([]string, error) {
	start := time.Now()
	ids, err := m.next.List(ctx)
	m.log("list", "", start, err, "count", len(ids))
	return ids, err
}
