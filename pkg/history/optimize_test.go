package history_test

import (
	"testing"

	"github.com/aretw0/scenaria/pkg/adapters/memory"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snap(id, name string) domain.Snapshot {
	return domain.Snapshot{"id": id, "name": name}
}

func change(action domain.ChangeAction, id string, original, current domain.Snapshot) domain.EntityChange {
	return domain.EntityChange{
		ID:         string(action) + "-" + id,
		EntityType: domain.EntityStep,
		EntityID:   id,
		Action:     action,
		Original:   original,
		Current:    current,
	}
}

func TestOptimize(t *testing.T) {
	tests := []struct {
		name    string
		changes []domain.EntityChange
		want    []domain.EntityChange
	}{
		{
			name: "Create Then Update Collapses To Create",
			changes: []domain.EntityChange{
				change(domain.ActionCreate, "a", nil, snap("a", "v1")),
				change(domain.ActionUpdate, "a", snap("a", "v1"), snap("a", "v2")),
			},
			want: []domain.EntityChange{
				{ID: "update-a", EntityType: domain.EntityStep, EntityID: "a", Action: domain.ActionCreate, Current: snap("a", "v2")},
			},
		},
		{
			name: "Create Then Delete Cancels",
			changes: []domain.EntityChange{
				change(domain.ActionCreate, "a", nil, snap("a", "v1")),
				change(domain.ActionDelete, "a", snap("a", "v1"), nil),
			},
			want: []domain.EntityChange{},
		},
		{
			name: "Update Then Update Spans Earliest To Latest",
			changes: []domain.EntityChange{
				change(domain.ActionUpdate, "a", snap("a", "v1"), snap("a", "v2")),
				change(domain.ActionUpdate, "a", snap("a", "v2"), snap("a", "v3")),
			},
			want: []domain.EntityChange{
				{ID: "update-a", EntityType: domain.EntityStep, EntityID: "a", Action: domain.ActionUpdate, Original: snap("a", "v1"), Current: snap("a", "v3")},
			},
		},
		{
			name: "Update Back To Original Is Dropped",
			changes: []domain.EntityChange{
				change(domain.ActionUpdate, "a", snap("a", "v1"), snap("a", "v2")),
				change(domain.ActionUpdate, "a", snap("a", "v2"), snap("a", "v1")),
			},
			want: []domain.EntityChange{},
		},
		{
			name: "Update Then Delete Keeps Earliest Original",
			changes: []domain.EntityChange{
				change(domain.ActionUpdate, "a", snap("a", "v1"), snap("a", "v2")),
				change(domain.ActionDelete, "a", snap("a", "v2"), nil),
			},
			want: []domain.EntityChange{
				{ID: "delete-a", EntityType: domain.EntityStep, EntityID: "a", Action: domain.ActionDelete, Original: snap("a", "v1")},
			},
		},
		{
			name: "Change After Delete Becomes Create",
			changes: []domain.EntityChange{
				change(domain.ActionDelete, "a", snap("a", "v1"), nil),
				change(domain.ActionCreate, "a", nil, snap("a", "v9")),
			},
			want: []domain.EntityChange{
				{ID: "create-a", EntityType: domain.EntityStep, EntityID: "a", Action: domain.ActionCreate, Original: snap("a", "v1"), Current: snap("a", "v9")},
			},
		},
		{
			name: "Deletes Move After Dependants",
			changes: []domain.EntityChange{
				change(domain.ActionUpdate, "step", snap("step", "v1"), snap("step", "v2")),
				change(domain.ActionDelete, "rel", snap("rel", ""), nil),
				change(domain.ActionDelete, "step", snap("step", "v2"), nil),
			},
			want: []domain.EntityChange{
				{ID: "delete-rel", EntityType: domain.EntityStep, EntityID: "rel", Action: domain.ActionDelete, Original: snap("rel", "")},
				{ID: "delete-step", EntityType: domain.EntityStep, EntityID: "step", Action: domain.ActionDelete, Original: snap("step", "v1")},
			},
		},
		{
			name: "Unrelated Entities Keep Order",
			changes: []domain.EntityChange{
				change(domain.ActionCreate, "b", nil, snap("b", "")),
				change(domain.ActionCreate, "a", nil, snap("a", "")),
			},
			want: []domain.EntityChange{
				change(domain.ActionCreate, "b", nil, snap("b", "")),
				change(domain.ActionCreate, "a", nil, snap("a", "")),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, history.Optimize(tt.changes))
		})
	}
}

func TestBuildOperationsFromHistory(t *testing.T) {
	t.Run("Relation Created Then Deleted Yields Nothing", func(t *testing.T) {
		h := newEngine()
		store := memory.NewStore()
		rel := domain.Relation{ID: "R1", ParentStepID: "P", ChildStepID: "C"}
		create(t, h, store, rel)
		remove(t, h, store, rel)

		ops := history.BuildOperationsFromHistory(h.Past(), h.LastSyncedIndex(), h.Future())
		for _, op := range ops {
			assert.NotEqual(t, "R1", op.EntityID)
		}
		assert.Empty(t, ops)
	})

	t.Run("Undone Changes Are Excluded", func(t *testing.T) {
		h := newEngine()
		store := memory.NewStore()
		create(t, h, store, delay("a", "PT1S"))
		create(t, h, store, delay("b", "PT1S"))
		_, err := h.Undo(store)
		require.NoError(t, err)

		ops := history.BuildOperationsFromHistory(h.Past(), h.LastSyncedIndex(), h.Future())
		require.Len(t, ops, 1)
		assert.Equal(t, "a", ops[0].EntityID)
		assert.Equal(t, domain.ActionCreate, ops[0].Action)
		assert.Equal(t, ops, h.PendingOperations())
	})

	t.Run("Only Entries After Pointer", func(t *testing.T) {
		h := newEngine()
		store := memory.NewStore()
		create(t, h, store, delay("a", "PT1S"))
		update(t, h, store, delay("a", "PT2S"), delay("a", "PT1S"))

		ops := history.BuildOperationsFromHistory(h.Past(), 1, nil)
		require.Len(t, ops, 1)
		assert.Equal(t, domain.ActionUpdate, ops[0].Action)
		assert.Equal(t, "PT2S", ops[0].Payload["params"].(map[string]any)["timeSpan"])

		assert.Empty(t, history.BuildOperationsFromHistory(h.Past(), 10, nil))
	})

	t.Run("Delete Has No Payload", func(t *testing.T) {
		past := []history.Entry{{Changes: []domain.EntityChange{
			change(domain.ActionDelete, "a", snap("a", "v1"), nil),
		}}}
		ops := history.BuildOperationsFromHistory(past, 0, nil)
		require.Len(t, ops, 1)
		assert.Nil(t, ops[0].Payload)
	})
}
