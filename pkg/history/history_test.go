package history_test

import (
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/scenaria/pkg/adapters/memory"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newEngine returns an engine with a deterministic clock and id sequence.
func newEngine() *history.Engine {
	tick := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	n := 0
	return history.New(
		history.WithClock(func() time.Time {
			tick = tick.Add(time.Millisecond)
			return tick
		}),
		history.WithIDGenerator(func() string {
			n++
			return fmt.Sprintf("chg-%d", n)
		}),
	)
}

func delay(id, span string) domain.Step {
	return domain.Step{ID: id, BranchID: "root", Type: domain.StepDelay, Params: map[string]any{"timeSpan": span}}
}

// apply mimics a handler: mutate the store, then record.
func create(t *testing.T, h *history.Engine, store *memory.Store, e domain.Entity) {
	t.Helper()
	snap, err := domain.ToSnapshot(e)
	require.NoError(t, err)
	store.Put(e.EntityType(), e.EntityID(), snap)
	require.NoError(t, h.RecordCreate(e))
}

func update(t *testing.T, h *history.Engine, store *memory.Store, current, original domain.Entity) {
	t.Helper()
	snap, err := domain.ToSnapshot(current)
	require.NoError(t, err)
	store.Put(current.EntityType(), current.EntityID(), snap)
	require.NoError(t, h.RecordUpdate(current, original))
}

func remove(t *testing.T, h *history.Engine, store *memory.Store, e domain.Entity) {
	t.Helper()
	store.Remove(e.EntityType(), e.EntityID())
	require.NoError(t, h.RecordDelete(e))
}

func timeSpan(t *testing.T, store *memory.Store, id string) string {
	t.Helper()
	snap, ok := store.Get(domain.EntityStep, id)
	require.True(t, ok, "step %s should exist", id)
	step, err := domain.FromSnapshot[domain.Step](snap)
	require.NoError(t, err)
	return step.Params["timeSpan"].(string)
}

func TestUndoRedo_DelayTimeSpan(t *testing.T) {
	h := newEngine()
	store := memory.NewStore()

	create(t, h, store, delay("S1", "PT1S"))
	update(t, h, store, delay("S1", "PT5S"), delay("S1", "PT1S"))

	ok, err := h.Undo(store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "PT1S", timeSpan(t, store, "S1"))

	ok, err = h.Redo(store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "PT5S", timeSpan(t, store, "S1"))
}

func TestUndo_AllCommandsRestoresInitialState(t *testing.T) {
	h := newEngine()
	store := memory.NewStore()
	create(t, h, store, domain.Branch{ID: "root"})
	initial := store.Export()

	// Build a fresh engine so the seed is not undoable.
	h = newEngine()
	create(t, h, store, delay("a", "PT1S"))
	create(t, h, store, delay("b", "PT2S"))
	update(t, h, store, delay("a", "PT3S"), delay("a", "PT1S"))
	remove(t, h, store, delay("b", "PT2S"))
	create(t, h, store, domain.Relation{ID: "r", ParentStepID: "a", ChildStepID: "b"})

	for i := 0; i < 5; i++ {
		ok, err := h.Undo(store)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, initial, store.Export())

	ok, err := h.Undo(store)
	assert.NoError(t, err)
	assert.False(t, ok, "undo on an empty stack is a no-op")
}

func TestRedoOfUndoIsIdentity(t *testing.T) {
	h := newEngine()
	store := memory.NewStore()
	create(t, h, store, delay("a", "PT1S"))
	update(t, h, store, delay("a", "PT2S"), delay("a", "PT1S"))
	before := store.Export()

	_, err := h.Undo(store)
	require.NoError(t, err)
	_, err = h.Redo(store)
	require.NoError(t, err)

	assert.Equal(t, before, store.Export())

	ok, err := h.Redo(store)
	assert.NoError(t, err)
	assert.False(t, ok, "redo on an empty stack is a no-op")
}

func TestTopAndLastUndone(t *testing.T) {
	h := newEngine()
	store := memory.NewStore()

	_, ok := h.Top()
	assert.False(t, ok)
	_, ok = h.LastUndone()
	assert.False(t, ok)

	create(t, h, store, delay("a", "PT1S"))
	update(t, h, store, delay("a", "PT2S"), delay("a", "PT1S"))

	top, ok := h.Top()
	require.True(t, ok)
	assert.Equal(t, domain.ActionUpdate, top.Changes[0].Action)

	_, err := h.Undo(store)
	require.NoError(t, err)
	undone, ok := h.LastUndone()
	require.True(t, ok)
	assert.Equal(t, top.Description, undone.Description)

	top, ok = h.Top()
	require.True(t, ok)
	assert.Equal(t, domain.ActionCreate, top.Changes[0].Action)

	top.Changes[0].EntityID = "mutated"
	again, _ := h.Top()
	assert.Equal(t, "a", again.Changes[0].EntityID, "accessors return copies")
}

func TestRecord_ClearsFuture(t *testing.T) {
	h := newEngine()
	store := memory.NewStore()
	create(t, h, store, delay("a", "PT1S"))
	_, _ = h.Undo(store)
	assert.True(t, h.CanRedo())

	create(t, h, store, delay("b", "PT1S"))
	assert.False(t, h.CanRedo())
	assert.Len(t, h.Past(), 1)
}

func TestRecord_DropsNoopUpdate(t *testing.T) {
	h := newEngine()
	require.NoError(t, h.RecordUpdate(delay("a", "PT1S"), delay("a", "PT1S")))
	assert.Empty(t, h.Past())
}

func TestBatch(t *testing.T) {
	t.Run("Nested Start Is Rejected", func(t *testing.T) {
		h := newEngine()
		require.NoError(t, h.StartBatch())
		assert.ErrorIs(t, h.StartBatch(), domain.ErrNestedBatch)
		assert.True(t, h.InBatch())
	})

	t.Run("Commit Produces One Entry", func(t *testing.T) {
		h := newEngine()
		store := memory.NewStore()
		create(t, h, store, domain.Step{ID: "S1", Type: domain.StepDelay})
		create(t, h, store, domain.Branch{ID: "B1", Geometry: domain.Geometry{Width: 50, Height: 50}})
		before := store.Export()

		require.NoError(t, h.StartBatch())
		update(t, h, store,
			domain.Step{ID: "S1", Type: domain.StepDelay, Geometry: domain.Geometry{X: 10, Y: 10}},
			domain.Step{ID: "S1", Type: domain.StepDelay})
		update(t, h, store,
			domain.Branch{ID: "B1", Geometry: domain.Geometry{Width: 200, Height: 100}},
			domain.Branch{ID: "B1", Geometry: domain.Geometry{Width: 50, Height: 50}})
		require.NoError(t, h.CommitBatch("Drag step into branch"))
		after := store.Export()

		past := h.Past()
		require.Len(t, past, 3)
		assert.True(t, past[2].Batch)
		assert.Equal(t, "Drag step into branch", past[2].Description)
		assert.Len(t, past[2].Changes, 2)

		_, err := h.Undo(store)
		require.NoError(t, err)
		assert.Equal(t, before, store.Export())

		_, err = h.Redo(store)
		require.NoError(t, err)
		assert.Equal(t, after, store.Export())
	})

	t.Run("Commit Optimizes Buffer", func(t *testing.T) {
		h := newEngine()
		require.NoError(t, h.StartBatch())
		require.NoError(t, h.RecordCreate(delay("tmp", "PT1S")))
		require.NoError(t, h.RecordDelete(delay("tmp", "PT1S")))
		require.NoError(t, h.CommitBatch("noop"))
		assert.Empty(t, h.Past(), "an empty batch commits nothing")
	})

	t.Run("Cancel Discards Buffer", func(t *testing.T) {
		h := newEngine()
		require.NoError(t, h.StartBatch())
		require.NoError(t, h.RecordCreate(delay("a", "PT1S")))
		require.NoError(t, h.CancelBatch())
		assert.False(t, h.InBatch())
		assert.Empty(t, h.Past())
		assert.ErrorIs(t, h.CancelBatch(), domain.ErrNoBatch)
		assert.ErrorIs(t, h.CommitBatch(""), domain.ErrNoBatch)
	})

	t.Run("Undo And Redo Rejected While Open", func(t *testing.T) {
		h := newEngine()
		store := memory.NewStore()
		create(t, h, store, delay("a", "PT1S"))
		require.NoError(t, h.StartBatch())

		_, err := h.Undo(store)
		assert.ErrorIs(t, err, domain.ErrBatchOpen)
		_, err = h.Redo(store)
		assert.ErrorIs(t, err, domain.ErrBatchOpen)
		assert.ErrorIs(t, h.Clear(), domain.ErrBatchOpen)
	})
}

func TestClear(t *testing.T) {
	h := newEngine()
	store := memory.NewStore()
	create(t, h, store, delay("a", "PT1S"))

	assert.ErrorIs(t, h.Clear(), domain.ErrUnsavedChanges)

	h.ConfirmSync(h.BeginSync())
	require.NoError(t, h.Clear())
	assert.Empty(t, h.Past())
	assert.Equal(t, 0, h.LastSyncedIndex())
}
