package scenaria_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/scenaria"
	"github.com/aretw0/scenaria/pkg/adapters/memory"
	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/connection"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const scenarioID = "sc1"

func fixedClock() time.Time {
	return time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
}

func sequentialIDs() func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
}

// newEditor returns an editor whose scenario (root branch "root") is already created.
func newEditor(t *testing.T, opts ...scenaria.Option) *scenaria.Editor {
	t.Helper()
	opts = append([]scenaria.Option{
		scenaria.WithClock(fixedClock),
		scenaria.WithIDGenerator(sequentialIDs()),
	}, opts...)
	ed, err := scenaria.New(scenarioID, opts...)
	require.NoError(t, err)
	require.NoError(t, ed.Execute(command.New(command.ScenarioCreate, "", map[string]any{
		"name": "Boiler start-up", "root_branch_id": "root",
	})))
	return ed
}

func createStep(id string, typ domain.StepType, params map[string]any) command.Command {
	return command.New(command.StepCreate, "", map[string]any{
		"id": id, "type": string(typ), "params": params,
	})
}

func createRelation(id, parent, child string) command.Command {
	return command.New(command.RelationCreate, "", map[string]any{
		"id": id, "parent_step_id": parent, "child_step_id": child,
	})
}

func stepOf(t *testing.T, ed *scenaria.Editor, id string) domain.Step {
	t.Helper()
	in := ed.Inspect(domain.EntityStep, id)
	require.True(t, in.Exists, "step %s should exist", id)
	s, err := domain.FromSnapshot[domain.Step](in.Snapshot)
	require.NoError(t, err)
	return s
}

// hookRepository runs a callback while Apply is in flight.
type hookRepository struct {
	*memory.Repository
	during func()
}

func (r *hookRepository) Apply(ctx context.Context, id string, base int, ops []domain.Operation) (int, error) {
	if r.during != nil {
		during := r.during
		r.during = nil
		during()
	}
	return r.Repository.Apply(ctx, id, base, ops)
}

func TestEditor_UndoRedoDelayParams(t *testing.T) {
	var undos, redos int
	ed := newEditor(t, scenaria.WithHooks(domain.EditorHooks{
		OnUndo: func(e *domain.HistoryEvent) {
			undos++
			assert.Equal(t, command.StepUpdate, e.Description)
		},
		OnRedo: func(e *domain.HistoryEvent) { redos++ },
	}))

	require.NoError(t, ed.Execute(createStep("S1", domain.StepDelay, map[string]any{"timeSpan": "PT1S"})))
	require.NoError(t, ed.Execute(command.New(command.StepUpdate, "", map[string]any{
		"id": "S1", "params": map[string]any{"timeSpan": "PT5S"},
	})))

	ok, err := ed.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "PT1S", stepOf(t, ed, "S1").Params["timeSpan"])

	ok, err = ed.Redo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "PT5S", stepOf(t, ed, "S1").Params["timeSpan"])

	assert.Equal(t, 1, undos)
	assert.Equal(t, 1, redos)

	ok, err = ed.Redo()
	require.NoError(t, err)
	assert.False(t, ok, "nothing left to redo")
}

func TestEditor_RejectsCommandForOtherScenario(t *testing.T) {
	ed := newEditor(t)
	err := ed.Execute(command.New(command.StepCreate, "other", map[string]any{"type": "delay"}))
	require.ErrorIs(t, err, domain.ErrInvalidPayload)
	assert.False(t, ed.Inspect(domain.EntityStep, "id-1").Exists)
}

func TestEditor_CreatedThenDeletedRelationHasNoOperations(t *testing.T) {
	ed := newEditor(t)
	require.NoError(t, ed.Execute(createStep("A", domain.StepDelay, nil)))
	require.NoError(t, ed.Execute(createStep("B", domain.StepSignal, nil)))

	baseline := len(ed.PendingOperations())
	require.NoError(t, ed.Execute(createRelation("R1", "A", "B")))
	require.NoError(t, ed.Execute(command.New(command.RelationDelete, "", map[string]any{"id": "R1"})))

	ops := ed.PendingOperations()
	assert.Len(t, ops, baseline)
	for _, op := range ops {
		assert.NotEqual(t, domain.EntityRelation, op.EntityType)
	}
}

func TestEditor_BatchIsOneUndoUnit(t *testing.T) {
	ed := newEditor(t)
	require.NoError(t, ed.StartBatch())
	require.True(t, ed.InBatch())
	require.NoError(t, ed.Execute(createStep("A", domain.StepDelay, nil)))
	require.NoError(t, ed.Execute(createStep("B", domain.StepDelay, nil)))
	require.NoError(t, ed.Execute(createRelation("R1", "A", "B")))

	_, err := ed.Undo()
	require.ErrorIs(t, err, domain.ErrBatchOpen)
	_, err = ed.Save(context.Background())
	require.Error(t, err)

	require.NoError(t, ed.CommitBatch("Insert pair"))
	past, _, _ := ed.History()
	require.Len(t, past, 2)
	assert.Equal(t, "Insert pair", past[1].Description)
	assert.Len(t, past[1].Changes, 3)

	ok, err := ed.Undo()
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, ed.Inspect(domain.EntityStep, "A").Exists)
	assert.False(t, ed.Inspect(domain.EntityRelation, "R1").Exists)
}

func TestEditor_CancelBatch(t *testing.T) {
	ed := newEditor(t)
	before := ed.Export()

	require.NoError(t, ed.StartBatch())
	require.NoError(t, ed.Execute(createStep("A", domain.StepDelay, nil)))
	assert.True(t, ed.Inspect(domain.EntityStep, "A").Exists, "reads see the open batch")
	require.NoError(t, ed.CancelBatch())

	assert.Equal(t, before, ed.Export())
	past, _, _ := ed.History()
	assert.Len(t, past, 1)
}

func TestEditor_AllowMap(t *testing.T) {
	ed := newEditor(t, scenaria.WithAllowMap(connection.AllowMap{
		domain.StepDelay: {domain.StepActivitySystem},
	}))
	require.NoError(t, ed.Execute(createStep("D1", domain.StepDelay, nil)))
	require.NoError(t, ed.Execute(createStep("D2", domain.StepDelay, nil)))
	require.NoError(t, ed.Execute(createStep("AS", domain.StepActivitySystem, nil)))

	assert.False(t, ed.IsValidConnection("D1", "D2"))
	assert.True(t, ed.IsValidConnection("D1", "AS"))
	require.ErrorIs(t, ed.CheckConnection("D1", "D1"), domain.ErrInvalidConnection)

	err := ed.Execute(createRelation("R1", "D1", "D2"))
	require.ErrorIs(t, err, domain.ErrInvalidConnection)
	assert.False(t, ed.Inspect(domain.EntityRelation, "R1").Exists)
}

func TestEditor_StepTypeTagsAreCanonical(t *testing.T) {
	ed := newEditor(t)
	require.NoError(t, ed.Execute(createStep("A", "Delay", map[string]any{"timeSpan": "PT1S"})))
	require.NoError(t, ed.Execute(createStep("B", "SIGNAL", nil)))

	assert.Equal(t, domain.StepDelay, stepOf(t, ed, "A").Type)
	assert.Equal(t, domain.StepSignal, stepOf(t, ed, "B").Type)
	require.NoError(t, ed.CheckConnection("A", "B"))
	require.NoError(t, ed.Execute(createRelation("R1", "A", "B")))

	require.NoError(t, ed.Execute(command.New(command.StepUpdate, "", map[string]any{"id": "B", "type": "Condition"})))
	assert.Equal(t, domain.StepCondition, stepOf(t, ed, "B").Type)

	err := ed.Execute(command.New(command.StepUpdate, "", map[string]any{"id": "A", "type": "Jump"}))
	require.ErrorIs(t, err, domain.ErrInvalidConnection)
	assert.Equal(t, domain.StepDelay, stepOf(t, ed, "A").Type)
}

func TestEditor_Gestures(t *testing.T) {
	ed := newEditor(t)
	require.NoError(t, ed.Execute(createStep("P", domain.StepParallel, nil)))
	require.NoError(t, ed.Execute(command.New(command.BranchCreate, "", map[string]any{
		"id": "B1", "parent_step_id": "P",
	})))
	require.NoError(t, ed.Execute(createStep("S", domain.StepDelay, nil)))

	t.Run("Move Step", func(t *testing.T) {
		require.NoError(t, ed.MoveNode("S", 40, 80))
		s := stepOf(t, ed, "S")
		assert.Equal(t, 40.0, s.Geometry.X)
		assert.Equal(t, 80.0, s.Geometry.Y)
	})

	t.Run("Resize Branch", func(t *testing.T) {
		require.NoError(t, ed.ResizeNode("B1", 300, 120))
		b, err := domain.FromSnapshot[domain.Branch](ed.Inspect(domain.EntityBranch, "B1").Snapshot)
		require.NoError(t, err)
		assert.Equal(t, 300.0, b.Geometry.Width)
	})

	t.Run("Steps Are Not Resizable", func(t *testing.T) {
		require.ErrorIs(t, ed.ResizeNode("S", 10, 10), domain.ErrInvalidPayload)
	})

	t.Run("Attach And Detach", func(t *testing.T) {
		require.NoError(t, ed.AttachNode("S", "B1"))
		assert.Equal(t, "B1", stepOf(t, ed, "S").BranchID)

		require.NoError(t, ed.DetachNode("S"))
		s := stepOf(t, ed, "S")
		assert.Equal(t, "root", s.BranchID)
		assert.Equal(t, 1, s.Order)
	})

	t.Run("Unknown Node", func(t *testing.T) {
		require.ErrorIs(t, ed.MoveNode("ghost", 0, 0), domain.ErrEntityNotFound)
	})
}

func TestEditor_GraphAndNodes(t *testing.T) {
	ed := newEditor(t)
	require.NoError(t, ed.Execute(createStep("A", domain.StepCondition, map[string]any{"expression": "x > 1"})))
	require.NoError(t, ed.Execute(createStep("B", domain.StepDelay, nil)))
	require.NoError(t, ed.Execute(createRelation("R1", "A", "B")))

	g, err := ed.Graph()
	require.NoError(t, err)
	assert.Equal(t, "Boiler start-up", g.Scenario.Name)
	assert.Equal(t, domain.StatusDraft, g.Scenario.Status)
	require.Len(t, g.Steps, 2)
	assert.Equal(t, "A", g.Steps[0].ID)
	require.Len(t, g.Relations, 1)

	nodes, err := ed.GraphNodes()
	require.NoError(t, err)
	require.Len(t, nodes, 3)
	assert.Equal(t, "branch", nodes[0].Type)
	assert.Equal(t, "condition", nodes[1].Type)
	assert.True(t, nodes[1].Container)
}

func TestEditor_Inspect(t *testing.T) {
	ed := newEditor(t)
	require.NoError(t, ed.Execute(createStep("S1", domain.StepDelay, map[string]any{"timeSpan": "PT1S"})))
	require.NoError(t, ed.Execute(command.New(command.StepUpdate, "", map[string]any{"id": "S1", "name": "Wait"})))

	in := ed.Inspect(domain.EntityStep, "S1")
	require.True(t, in.Exists)
	require.Len(t, in.Changes, 2)
	assert.Equal(t, domain.ActionCreate, in.Changes[0].Change.Action)
	assert.Equal(t, []domain.FieldDiff{{Field: "name", OldValue: "", NewValue: "Wait"}}, in.Changes[1].Diffs)

	assert.False(t, ed.Inspect(domain.EntityStep, "ghost").Exists)
}

func TestEditor_SaveAndOpen(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()

	var syncs []*domain.SyncEvent
	ed := newEditor(t,
		scenaria.WithRepository(repo),
		scenaria.WithHooks(domain.EditorHooks{OnSync: func(e *domain.SyncEvent) { syncs = append(syncs, e) }}),
	)
	require.NoError(t, ed.Execute(createStep("A", domain.StepDelay, map[string]any{"timeSpan": "PT2M"})))
	require.NoError(t, ed.Execute(createStep("B", domain.StepSignal, nil)))
	require.NoError(t, ed.Execute(createRelation("R1", "A", "B")))

	version, err := ed.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)
	assert.Empty(t, ed.PendingOperations())
	require.Len(t, syncs, 1)
	assert.Equal(t, 5, syncs[0].Operations)

	version, err = ed.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version, "nothing pending keeps the version")

	opened, err := scenaria.Open(ctx, repo, scenarioID)
	require.NoError(t, err)
	assert.Equal(t, 1, opened.Version())
	assert.Equal(t, ed.Export(), opened.Export())
	assert.False(t, opened.CanUndo())

	before, err := ed.Graph()
	require.NoError(t, err)
	after, err := opened.Graph()
	require.NoError(t, err)
	assert.Equal(t, before, after)

	_, err = scenaria.Open(ctx, repo, "ghost")
	require.ErrorIs(t, err, domain.ErrScenarioNotFound)
}

func TestEditor_SaveConflictKeepsPointer(t *testing.T) {
	ctx := context.Background()
	repo := memory.NewRepository()

	first := newEditor(t, scenaria.WithRepository(repo))
	_, err := first.Save(ctx)
	require.NoError(t, err)

	second := newEditor(t, scenaria.WithRepository(repo))
	require.NoError(t, second.Execute(createStep("A", domain.StepDelay, nil)))
	pending := second.PendingOperations()

	_, err = second.Save(ctx)
	require.ErrorIs(t, err, domain.ErrSyncConflict)

	_, _, synced := second.History()
	assert.Equal(t, 0, synced)
	assert.Equal(t, pending, second.PendingOperations())
	assert.Equal(t, 0, second.Version())
}

func TestEditor_EditsDuringSaveStayPending(t *testing.T) {
	repo := &hookRepository{Repository: memory.NewRepository()}
	ed := newEditor(t, scenaria.WithRepository(repo))
	require.NoError(t, ed.Execute(createStep("A", domain.StepDelay, nil)))

	repo.during = func() {
		require.NoError(t, ed.Execute(command.New(command.StepUpdate, "", map[string]any{"id": "A", "name": "late"})))
	}
	version, err := ed.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, _, synced := ed.History()
	assert.Equal(t, 2, synced)
	ops := ed.PendingOperations()
	require.Len(t, ops, 1)
	assert.Equal(t, domain.ActionUpdate, ops[0].Action)
	assert.Equal(t, "late", ops[0].Payload["name"])
}

func TestEditor_SaveWithoutRepository(t *testing.T) {
	ed := newEditor(t)
	_, err := ed.Save(context.Background())
	assert.Error(t, err)
}

func TestEditor_ClearHistory(t *testing.T) {
	repo := memory.NewRepository()
	ed := newEditor(t, scenaria.WithRepository(repo))

	require.ErrorIs(t, ed.ClearHistory(), domain.ErrUnsavedChanges)
	_, err := ed.Save(context.Background())
	require.NoError(t, err)
	require.NoError(t, ed.ClearHistory())
	assert.False(t, ed.CanUndo())
	assert.True(t, ed.Inspect(domain.EntityScenario, scenarioID).Exists)
}

func TestEditor_CustomHandler(t *testing.T) {
	archive := command.NewHandler("SCENARIO_ARCHIVE", func(cmd command.Command, sink ports.EntityStore, rec command.Recorder) error {
		snap, ok := sink.Get(domain.EntityScenario, cmd.ScenarioID)
		if !ok {
			return &domain.MissingEntityError{Type: domain.EntityScenario, ID: cmd.ScenarioID}
		}
		original, err := domain.FromSnapshot[domain.Scenario](snap)
		if err != nil {
			return err
		}
		current := original
		current.Status = domain.StatusArchived
		next, err := domain.ToSnapshot(current)
		if err != nil {
			return err
		}
		sink.Put(domain.EntityScenario, current.ID, next)
		return rec.RecordUpdate(current, original)
	})
	ed := newEditor(t, scenaria.WithHandlers(archive))

	require.NoError(t, ed.Execute(command.New("SCENARIO_ARCHIVE", "", nil)))
	g, err := ed.Graph()
	require.NoError(t, err)
	assert.Equal(t, domain.StatusArchived, g.Scenario.Status)

	_, err = ed.Undo()
	require.NoError(t, err)
	g, err = ed.Graph()
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDraft, g.Scenario.Status)
}
