package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

type document struct {
	version int
	records map[domain.EntityKey]domain.Snapshot
}

// Repository implements ports.ScenarioRepository in memory.
// Safe for concurrent use.
type Repository struct {
	docs map[string]*document
	mu   sync.RWMutex
}

// NewRepository creates an empty in-memory repository.
func NewRepository() *Repository {
	return &Repository{
		docs: make(map[string]*document),
	}
}

// Apply persists the operations atomically if baseVersion matches.
func (r *Repository) Apply(ctx context.Context, scenarioID string, baseVersion int, ops []domain.Operation) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	doc, ok := r.docs[scenarioID]
	current := 0
	if ok {
		current = doc.version
	}
	if current != baseVersion {
		return 0, &domain.SyncConflictError{
			ScenarioID: scenarioID,
			Err:        fmt.Errorf("stored version %d, expected %d", current, baseVersion),
		}
	}

	// Build the next document aside so a failure leaves the stored one untouched.
	next := &document{version: current + 1, records: make(map[domain.EntityKey]domain.Snapshot)}
	if ok {
		for k, v := range doc.records {
			next.records[k] = v
		}
	}
	for _, op := range ops {
		switch op.Action {
		case domain.ActionCreate, domain.ActionUpdate:
			next.records[op.Key()] = op.Payload.Clone()
		case domain.ActionDelete:
			delete(next.records, op.Key())
		default:
			return 0, fmt.Errorf("unsupported action %q", op.Action)
		}
	}

	r.docs[scenarioID] = next
	return next.version, nil
}

// Load returns a copy of the stored document.
func (r *Repository) Load(ctx context.Context, scenarioID string) (*domain.Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	doc, ok := r.docs[scenarioID]
	if !ok {
		return nil, domain.ErrScenarioNotFound
	}

	out := &domain.Document{ScenarioID: scenarioID, Version: doc.version}
	for key, snap := range doc.records {
		out.Records = append(out.Records, domain.Record{EntityType: key.Type, EntityID: key.ID, Snapshot: snap.Clone()})
	}
	sort.Slice(out.Records, func(i, j int) bool {
		return out.Records[i].EntityType < out.Records[j].EntityType ||
			(out.Records[i].EntityType == out.Records[j].EntityType && out.Records[i].EntityID < out.Records[j].EntityID)
	})
	return out, nil
}

// Delete removes the scenario.
func (r *Repository) Delete(ctx context.Context, scenarioID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.docs, scenarioID)
	return nil
}

// List returns stored scenario ids.
func (r *Repository) List(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.docs))
	for id := range r.docs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

var _ ports.ScenarioRepository = (*Repository)(nil)
