package ports

import (
	"context"

	"github.com/aretw0/scenaria/pkg/domain"
)

// EntityReader is the read side of the committed entity store.
type EntityReader interface {
	// Get returns a detached copy of the entity snapshot.
	Get(kind domain.EntityType, id string) (domain.Snapshot, bool)

	// List returns detached copies of every snapshot of the given type, ordered by id.
	List(kind domain.EntityType) []domain.Snapshot
}

// EntityStore is the synchronous mutation sink handlers write to.
// Implementations must not block: a command mutates and records in one uninterrupted call.
type EntityStore interface {
	EntityReader

	// Put creates or replaces the entity snapshot.
	Put(kind domain.EntityType, id string, snapshot domain.Snapshot)

	// Remove deletes the entity. Removing an absent entity is a no-op.
	Remove(kind domain.EntityType, id string)
}

// ScenarioRepository is the asynchronous persistence collaborator.
// It consumes the net operation list computed by the history engine.
type ScenarioRepository interface {
	// Apply persists ops for the scenario if its stored version equals baseVersion
	// (0 for a scenario that was never saved) and returns the new version.
	// A version mismatch is reported as a *domain.SyncConflictError.
	// Creates are applied as upserts and deletes of absent entities are ignored.
	Apply(ctx context.Context, scenarioID string, baseVersion int, ops []domain.Operation) (int, error)

	// Load returns the stored document for a scenario.
	// Returns domain.ErrScenarioNotFound if the scenario was never saved.
	Load(ctx context.Context, scenarioID string) (*domain.Document, error)

	// Delete removes every stored entity of the scenario.
	Delete(ctx context.Context, scenarioID string) error

	// List returns the ids of stored scenarios.
	List(ctx context.Context) ([]string, error)
}
