package command_test

import (
	"fmt"
	"testing"

	"github.com/aretw0/scenaria/pkg/adapters/memory"
	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/history"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioID = "sc1"

type fixture struct {
	store   *memory.Store
	history *history.Engine
	d       *command.Dispatcher
}

func newRegistry(t *testing.T) *command.Registry {
	t.Helper()
	n := 0
	reg := command.NewRegistry()
	require.NoError(t, command.RegisterDefaults(reg, command.Deps{
		NewID: func() string {
			n++
			return fmt.Sprintf("gen-%d", n)
		},
	}))
	return reg
}

// newFixture seeds a scenario with root branch "root" and returns a dispatcher whose
// history starts empty.
func newFixture(t *testing.T, seed ...command.Command) *fixture {
	t.Helper()
	store := memory.NewStore()
	reg := newRegistry(t)

	seeder := command.NewDispatcher(reg, store, history.New())
	cmds := append([]command.Command{
		command.New(command.ScenarioCreate, scenarioID, map[string]any{"name": "Test", "root_branch_id": "root"}),
	}, seed...)
	for _, cmd := range cmds {
		require.NoError(t, seeder.Execute(cmd))
	}

	h := history.New()
	return &fixture{store: store, history: h, d: command.NewDispatcher(reg, store, h)}
}

func (f *fixture) step(t *testing.T, id string) domain.Step {
	t.Helper()
	snap, ok := f.store.Get(domain.EntityStep, id)
	require.True(t, ok, "step %s should exist", id)
	s, err := domain.FromSnapshot[domain.Step](snap)
	require.NoError(t, err)
	return s
}

func (f *fixture) branch(t *testing.T, id string) domain.Branch {
	t.Helper()
	snap, ok := f.store.Get(domain.EntityBranch, id)
	require.True(t, ok, "branch %s should exist", id)
	b, err := domain.FromSnapshot[domain.Branch](snap)
	require.NoError(t, err)
	return b
}

func createStep(id string, typ domain.StepType, params map[string]any) command.Command {
	return command.New(command.StepCreate, scenarioID, map[string]any{
		"id": id, "type": string(typ), "branch_id": "root", "params": params,
	})
}

func createRelation(id, parent, child string) command.Command {
	return command.New(command.RelationCreate, scenarioID, map[string]any{
		"id": id, "parent_step_id": parent, "child_step_id": child,
	})
}

func TestDispatcher_DelayTimeSpanUndoRedo(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.d.Execute(createStep("S1", domain.StepDelay, map[string]any{"timeSpan": "PT1S"})))
	require.NoError(t, f.d.Execute(command.New(command.StepUpdate, scenarioID, map[string]any{
		"id": "S1", "params": map[string]any{"timeSpan": "PT5S"},
	})))
	assert.Equal(t, "PT5S", f.step(t, "S1").Params["timeSpan"])

	_, err := f.history.Undo(f.store)
	require.NoError(t, err)
	assert.Equal(t, "PT1S", f.step(t, "S1").Params["timeSpan"])

	_, err = f.history.Redo(f.store)
	require.NoError(t, err)
	assert.Equal(t, "PT5S", f.step(t, "S1").Params["timeSpan"])
}

func TestDispatcher_UnknownCommandIsDropped(t *testing.T) {
	f := newFixture(t)
	before := f.store.Export()

	var rejected []*domain.CommandEvent
	d := command.NewDispatcher(newRegistry(t), f.store, f.history, command.WithHooks(domain.EditorHooks{
		OnCommandRejected: func(e *domain.CommandEvent) { rejected = append(rejected, e) },
	}))

	err := d.Execute(command.New("STEP_TELEPORT", scenarioID, nil))
	require.ErrorIs(t, err, domain.ErrUnknownCommand)
	var unknown *domain.UnknownCommandError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "STEP_TELEPORT", unknown.Type)

	assert.Equal(t, before, f.store.Export())
	assert.Empty(t, f.history.Past())
	require.Len(t, rejected, 1)
	assert.Equal(t, "STEP_TELEPORT", rejected[0].CommandType)

	require.NoError(t, d.Execute(createStep("S1", domain.StepDelay, nil)), "the session continues")
}

func TestDispatcher_FailedCommandLeavesStateUntouched(t *testing.T) {
	f := newFixture(t,
		createStep("A", domain.StepDelay, nil),
	)
	before := f.store.Export()

	tests := []struct {
		name string
		cmd  command.Command
		is   error
	}{
		{"Missing Endpoint", createRelation("R1", "A", "ghost"), domain.ErrEntityNotFound},
		{"Self Loop", createRelation("R1", "A", "A"), domain.ErrInvalidConnection},
		{"Unknown Step Type", createStep("X", "teleport", nil), domain.ErrInvalidPayload},
		{"Update Missing Step", command.New(command.StepUpdate, scenarioID, map[string]any{"id": "ghost"}), domain.ErrEntityNotFound},
		{"Delete Without Id", command.New(command.StepDelete, scenarioID, map[string]any{}), domain.ErrInvalidPayload},
		{"Duplicate Id", createStep("A", domain.StepDelay, nil), domain.ErrInvalidPayload},
		{"Delete Root Branch", command.New(command.BranchDelete, scenarioID, map[string]any{"id": "root"}), domain.ErrInvalidPayload},
		{"Zero Resize", command.New(command.BranchResize, scenarioID, map[string]any{"id": "root", "width": 0, "height": 10}), domain.ErrInvalidPayload},
		{"Detach From Root", command.New(command.StepDetach, scenarioID, map[string]any{"id": "A"}), domain.ErrInvalidPayload},
		{"Branch Under Delay", command.New(command.BranchCreate, scenarioID, map[string]any{"id": "B", "parent_step_id": "A"}), domain.ErrInvalidPayload},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := f.d.Execute(tt.cmd)
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.is)
			assert.Equal(t, before, f.store.Export())
			assert.Empty(t, f.history.Past())
		})
	}
}

func TestDispatcher_RelationDuplicatesAndReverse(t *testing.T) {
	f := newFixture(t,
		createStep("A", domain.StepDelay, nil),
		createStep("B", domain.StepSignal, nil),
	)

	require.NoError(t, f.d.Execute(createRelation("R1", "A", "B")))
	assert.ErrorIs(t, f.d.Execute(createRelation("R2", "A", "B")), domain.ErrInvalidConnection)
	require.NoError(t, f.d.Execute(createRelation("R3", "B", "A")))

	ops := f.history.PendingOperations()
	require.Len(t, ops, 2)
	assert.Equal(t, "R1", ops[0].EntityID)
	assert.Equal(t, "R3", ops[1].EntityID)
}

func TestDispatcher_StepTypeChangeRechecksRelations(t *testing.T) {
	seed := []command.Command{
		createStep("A", domain.StepDelay, nil),
		createStep("B", domain.StepDelay, nil),
		createRelation("R1", "A", "B"),
	}

	t.Run("ParentBecomesJump", func(t *testing.T) {
		f := newFixture(t, seed...)
		before := f.store.Export()

		err := f.d.Execute(command.New(command.StepUpdate, scenarioID, map[string]any{"id": "A", "type": "jump"}))
		require.ErrorIs(t, err, domain.ErrInvalidConnection)
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Equal(t, "A", verr.SourceID)
		assert.Equal(t, "B", verr.TargetID)

		assert.Equal(t, before, f.store.Export())
		assert.Empty(t, f.history.Past())
	})

	t.Run("ChildBecomesJump", func(t *testing.T) {
		f := newFixture(t, seed...)

		require.NoError(t, f.d.Execute(command.New(command.StepUpdate, scenarioID, map[string]any{"id": "B", "type": "jump"})))
		assert.Equal(t, domain.StepJump, f.step(t, "B").Type)
	})

	t.Run("UnrelatedStepIsFree", func(t *testing.T) {
		f := newFixture(t, append(seed, createStep("C", domain.StepDelay, nil))...)

		require.NoError(t, f.d.Execute(command.New(command.StepUpdate, scenarioID, map[string]any{"id": "C", "type": "jump"})))
	})
}

func TestDispatcher_RelationUpdateEndpoints(t *testing.T) {
	tests := []struct {
		name    string
		payload map[string]any
		wantErr error
	}{
		{"SelfLoop", map[string]any{"child_step_id": "A"}, domain.ErrInvalidConnection},
		{"OntoExistingPair", map[string]any{"parent_step_id": "B", "child_step_id": "C"}, domain.ErrInvalidConnection},
		{"MissingEndpoint", map[string]any{"child_step_id": "ghost"}, domain.ErrEntityNotFound},
		{"OntoReversePair", map[string]any{"parent_step_id": "B", "child_step_id": "A"}, nil},
		{"SamePairIsNotDuplicate", map[string]any{"parent_step_id": "A", "child_step_id": "B", "priority": 2}, nil},
		{"Repointed", map[string]any{"child_step_id": "C"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t,
				createStep("A", domain.StepDelay, nil),
				createStep("B", domain.StepDelay, nil),
				createStep("C", domain.StepSignal, nil),
				createRelation("R1", "A", "B"),
				createRelation("R2", "B", "C"),
			)
			before := f.store.Export()

			payload := map[string]any{"id": "R1"}
			for k, v := range tt.payload {
				payload[k] = v
			}
			err := f.d.Execute(command.New(command.RelationUpdate, scenarioID, payload))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, before, f.store.Export())
				return
			}
			require.NoError(t, err)

			snap, ok := f.store.Get(domain.EntityRelation, "R1")
			require.True(t, ok)
			rel, err := domain.FromSnapshot[domain.Relation](snap)
			require.NoError(t, err)
			if parent, ok := tt.payload["parent_step_id"]; ok {
				assert.Equal(t, parent, rel.ParentStepID)
			}
			if child, ok := tt.payload["child_step_id"]; ok {
				assert.Equal(t, child, rel.ChildStepID)
			}
		})
	}
}

func TestDispatcher_RelationCreatedThenDeletedHasNoOperations(t *testing.T) {
	f := newFixture(t,
		createStep("P", domain.StepDelay, nil),
		createStep("C", domain.StepDelay, nil),
	)

	require.NoError(t, f.d.Execute(createRelation("R1", "P", "C")))
	require.NoError(t, f.d.Execute(command.New(command.RelationDelete, scenarioID, map[string]any{"id": "R1"})))

	assert.Empty(t, history.BuildOperationsFromHistory(f.history.Past(), f.history.LastSyncedIndex(), f.history.Future()))
}

func TestDispatcher_BatchIsOneUndoUnit(t *testing.T) {
	f := newFixture(t,
		createStep("S1", domain.StepParallel, nil),
		command.New(command.BranchCreate, scenarioID, map[string]any{
			"id": "B1", "parent_step_id": "S1", "geometry": map[string]any{"width": 50, "height": 50},
		}),
	)
	before := f.store.Export()

	batch := command.NewBatch(scenarioID, "Drag step into branch",
		command.New(command.StepMove, "", map[string]any{"id": "S1", "x": 10, "y": 10}),
		command.New(command.BranchResize, "", map[string]any{"id": "B1", "width": 200, "height": 100}),
	)
	require.NoError(t, f.d.Execute(batch))
	after := f.store.Export()

	assert.Equal(t, 10.0, f.step(t, "S1").Geometry.X)
	assert.Equal(t, 200.0, f.branch(t, "B1").Geometry.Width)

	past := f.history.Past()
	require.Len(t, past, 1)
	assert.Equal(t, "Drag step into branch", past[0].Description)
	assert.True(t, past[0].Batch)

	ok, err := f.history.Undo(f.store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, before, f.store.Export())

	ok, err = f.history.Redo(f.store)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, after, f.store.Export())
}

func TestDispatcher_FailingSubCommandAbortsBatch(t *testing.T) {
	f := newFixture(t, createStep("S1", domain.StepDelay, nil))
	before := f.store.Export()

	batch := command.NewBatch(scenarioID, "broken",
		command.New(command.StepMove, "", map[string]any{"id": "S1", "x": 99}),
		createStep("S2", domain.StepDelay, nil),
		command.New(command.StepUpdate, "", map[string]any{"id": "ghost"}),
	)
	err := f.d.Execute(batch)
	require.ErrorIs(t, err, domain.ErrEntityNotFound)

	assert.False(t, f.d.InBatch())
	assert.False(t, f.history.InBatch())
	assert.Equal(t, before, f.store.Export())
	assert.Empty(t, f.history.Past())
}

func TestDispatcher_NestedBatchRejected(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.d.StartBatch())
	assert.ErrorIs(t, f.d.StartBatch(), domain.ErrNestedBatch)
	assert.ErrorIs(t, f.d.Execute(command.NewBatch(scenarioID, "inner")), domain.ErrNestedBatch)
	require.NoError(t, f.d.CancelBatch())

	inner := command.NewBatch(scenarioID, "inner", createStep("S1", domain.StepDelay, nil))
	assert.ErrorIs(t, f.d.Execute(command.NewBatch(scenarioID, "outer", inner)), domain.ErrNestedBatch)
	assert.False(t, f.d.InBatch())
}

func TestDispatcher_CancelBatchRollsBackMutations(t *testing.T) {
	f := newFixture(t)
	before := f.store.Export()

	require.NoError(t, f.d.StartBatch())
	require.NoError(t, f.d.Execute(createStep("S1", domain.StepDelay, nil)))
	require.NoError(t, f.d.Execute(createStep("S2", domain.StepDelay, nil)))

	_, visible := f.d.View().Get(domain.EntityStep, "S1")
	assert.True(t, visible, "batch mutations are visible through the view")
	_, committed := f.store.Get(domain.EntityStep, "S1")
	assert.False(t, committed, "batch mutations reach the store on commit only")

	require.NoError(t, f.d.CancelBatch())
	assert.Equal(t, before, f.store.Export())
	assert.Empty(t, f.history.Past())
	assert.ErrorIs(t, f.d.CancelBatch(), domain.ErrNoBatch)
	assert.ErrorIs(t, f.d.CommitBatch(""), domain.ErrNoBatch)
}

func TestDispatcher_UndoEveryCommandRestoresInitialState(t *testing.T) {
	f := newFixture(t)
	initial := f.store.Export()

	cmds := []command.Command{
		createStep("A", domain.StepCondition, map[string]any{"expression": "x > 1"}),
		createStep("B", domain.StepDelay, map[string]any{"timeSpan": "PT1S"}),
		createRelation("R1", "A", "B"),
		command.New(command.BranchCreate, scenarioID, map[string]any{"id": "BR", "parent_step_id": "A"}),
		command.New(command.StepAttach, scenarioID, map[string]any{"id": "B", "branch_id": "BR"}),
		command.New(command.StepDetach, scenarioID, map[string]any{"id": "B"}),
		command.New(command.RelationUpdate, scenarioID, map[string]any{"id": "R1", "priority": 3}),
		command.New(command.ScenarioUpdate, scenarioID, map[string]any{"name": "Renamed"}),
		command.New(command.StepDelete, scenarioID, map[string]any{"id": "A"}),
	}
	for _, cmd := range cmds {
		require.NoError(t, f.d.Execute(cmd), cmd.Type)
	}
	require.Len(t, f.history.Past(), len(cmds))

	for range cmds {
		ok, err := f.history.Undo(f.store)
		require.NoError(t, err)
		require.True(t, ok)
	}
	assert.Equal(t, initial, f.store.Export())
}

func TestDispatcher_DeleteStepCascades(t *testing.T) {
	f := newFixture(t,
		createStep("P", domain.StepParallel, nil),
		createStep("N", domain.StepDelay, nil),
		createRelation("R1", "P", "N"),
		command.New(command.BranchCreate, scenarioID, map[string]any{"id": "BR", "parent_step_id": "P"}),
		command.New(command.StepCreate, scenarioID, map[string]any{"id": "C", "type": "signal", "branch_id": "BR"}),
	)
	before := f.store.Export()

	require.NoError(t, f.d.Execute(command.New(command.StepDelete, scenarioID, map[string]any{"id": "P"})))

	for _, key := range []domain.EntityKey{
		{Type: domain.EntityStep, ID: "P"},
		{Type: domain.EntityStep, ID: "C"},
		{Type: domain.EntityBranch, ID: "BR"},
		{Type: domain.EntityRelation, ID: "R1"},
	} {
		_, ok := f.store.Get(key.Type, key.ID)
		assert.False(t, ok, "%s should be gone", key)
	}
	_, ok := f.store.Get(domain.EntityStep, "N")
	assert.True(t, ok)

	past := f.history.Past()
	require.Len(t, past, 1)
	assert.Len(t, past[0].Changes, 4)

	_, err := f.history.Undo(f.store)
	require.NoError(t, err)
	assert.Equal(t, before, f.store.Export())
}

func TestDispatcher_AttachAndDetach(t *testing.T) {
	f := newFixture(t,
		createStep("P", domain.StepParallel, nil),
		createStep("S", domain.StepDelay, nil),
		command.New(command.BranchCreate, scenarioID, map[string]any{"id": "BR", "parent_step_id": "P"}),
	)

	require.NoError(t, f.d.Execute(command.New(command.StepAttach, scenarioID, map[string]any{"id": "S", "branch_id": "BR", "x": 5})))
	s := f.step(t, "S")
	assert.Equal(t, "BR", s.BranchID)
	assert.Equal(t, 0, s.Order)
	assert.Equal(t, 5.0, s.Geometry.X)

	err := f.d.Execute(command.New(command.StepAttach, scenarioID, map[string]any{"id": "P", "branch_id": "BR"}))
	assert.ErrorIs(t, err, domain.ErrInvalidPayload, "a step cannot move into its own branch")

	require.NoError(t, f.d.Execute(command.New(command.StepDetach, scenarioID, map[string]any{"id": "S"})))
	s = f.step(t, "S")
	assert.Equal(t, "root", s.BranchID)
	assert.Equal(t, 1, s.Order)
}

func TestDispatcher_Hooks(t *testing.T) {
	f := newFixture(t)
	var executed []*domain.CommandEvent
	d := command.NewDispatcher(newRegistry(t), f.store, f.history, command.WithHooks(domain.EditorHooks{
		OnCommandExecuted: func(e *domain.CommandEvent) { executed = append(executed, e) },
	}))

	require.NoError(t, d.Execute(command.NewBatch(scenarioID, "two",
		createStep("A", domain.StepDelay, nil),
		createStep("B", domain.StepDelay, nil),
	)))
	require.Len(t, executed, 2)
	assert.True(t, executed[0].Batch)
	assert.Equal(t, command.StepCreate, executed[1].CommandType)
	assert.Equal(t, 1, executed[1].Changes)
	assert.Equal(t, scenarioID, executed[1].ScenarioID)
}
