package middleware

import (
	"context"
	"regexp"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

// Mask replaces redacted values.
const Mask = "***"

type redactMiddleware struct {
	next     ports.ScenarioRepository
	patterns []*regexp.Regexp
}

// NewRedactMiddleware masks step params whose key matches one of the patterns
// before they reach the repository. Credentials of activity steps stay in the
// editor's memory but are never persisted.
func NewRedactMiddleware(patternStrings []string) Middleware {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		patterns[i] = regexp.MustCompile(p)
	}
	return func(next ports.ScenarioRepository) ports.ScenarioRepository {
		return &redactMiddleware{next: next, patterns: patterns}
	}
}

func (m *redactMiddleware) Apply(ctx context.Context, scenarioID string, baseVersion int, ops []domain.Operation) (int, error) {
	masked := make([]domain.Operation, len(ops))
	for i, op := range ops {
		masked[i] = op
		if op.EntityType != domain.EntityStep || op.Payload == nil {
			continue
		}
		params, ok := op.Payload["params"].(map[string]any)
		if !ok {
			continue
		}
		// Copy so the caller's snapshot is left untouched.
		payload := make(domain.Snapshot, len(op.Payload))
		for k, v := range op.Payload {
			payload[k] = v
		}
		cloned := deepCopyMap(params)
		maskMap(cloned, m.patterns)
		payload["params"] = cloned
		masked[i].Payload = payload
	}
	return m.next.Apply(ctx, scenarioID, baseVersion, masked)
}

func (m *redactMiddleware) Load(ctx context.Context, scenarioID string) (*domain.Document, error) {
	return m.next.Load(ctx, scenarioID)
}

func (m *redactMiddleware) Delete(ctx context.Context, scenarioID string) error {
	return m.next.Delete(ctx, scenarioID)
}

func (m *redactMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func deepCopyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			out[k] = deepCopyMap(sub)
		} else {
			out[k] = v
		}
	}
	return out
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				break
			}
		}
		if sub, ok := v.(map[string]any); ok {
			maskMap(sub, patterns)
		}
	}
}
