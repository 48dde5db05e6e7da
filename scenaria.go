package scenaria

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/aretw0/scenaria/pkg/adapters/memory"
	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/connection"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/history"
	"github.com/aretw0/scenaria/pkg/nodetype"
	"github.com/aretw0/scenaria/pkg/ports"
)

// Editor is the editing session of one scenario.
// It owns the committed entity store, the history engine and the registries, and
// serializes every call. Save releases the lock while the repository call is in
// flight, so edits made meanwhile stay pending for the next save.
type Editor struct {
	mu     sync.Mutex
	saveMu sync.Mutex

	scenarioID string
	version    int

	store       *memory.Store
	history     *history.Engine
	dispatcher  *command.Dispatcher
	commands    *command.Registry
	nodeTypes   *nodetype.Registry
	connections *connection.Validator

	repo     ports.ScenarioRepository
	handlers []command.Handler
	allow    connection.AllowMap
	strict   bool
	hooks    domain.EditorHooks
	logger   *slog.Logger
	clock    func() time.Time
	newID    func() string
}

// Option defines a functional option for configuring the Editor.
type Option func(*Editor)

// WithLogger sets a custom structured logger for the editor.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Editor) {
		e.logger = logger
	}
}

// WithHooks registers observability hooks.
func WithHooks(hooks domain.EditorHooks) Option {
	return func(e *Editor) {
		e.hooks = hooks
	}
}

// WithRepository sets the persistence collaborator used by Save.
func WithRepository(repo ports.ScenarioRepository) Option {
	return func(e *Editor) {
		e.repo = repo
	}
}

// WithNodeTypes replaces the default node-type registry.
func WithNodeTypes(reg *nodetype.Registry) Option {
	return func(e *Editor) {
		e.nodeTypes = reg
	}
}

// WithAllowMap replaces the default connection allow-map.
func WithAllowMap(allow connection.AllowMap) Option {
	return func(e *Editor) {
		e.allow = allow
	}
}

// WithHandlers registers additional command handlers next to the built-in ones.
func WithHandlers(handlers ...command.Handler) Option {
	return func(e *Editor) {
		e.handlers = append(e.handlers, handlers...)
	}
}

// WithStrictGeometry rejects branches that were never laid out.
func WithStrictGeometry(strict bool) Option {
	return func(e *Editor) {
		e.strict = strict
	}
}

// WithClock overrides the time source of history entries and events.
func WithClock(clock func() time.Time) Option {
	return func(e *Editor) {
		e.clock = clock
	}
}

// WithIDGenerator overrides the generator of entity and change ids.
func WithIDGenerator(gen func() string) Option {
	return func(e *Editor) {
		e.newID = gen
	}
}

// New creates an editor for an empty scenario. The scenario itself is created by a
// SCENARIO_CREATE command so that it is part of the history.
func New(scenarioID string, opts ...Option) (*Editor, error) {
	return newEditor(scenarioID, nil, 0, opts...)
}

// Open loads a stored scenario from repo and returns an editor on it.
// The repository is also used by Save.
func Open(ctx context.Context, repo ports.ScenarioRepository, scenarioID string, opts ...Option) (*Editor, error) {
	doc, err := repo.Load(ctx, scenarioID)
	if err != nil {
		return nil, fmt.Errorf("failed to load scenario %q: %w", scenarioID, err)
	}
	return newEditor(scenarioID, doc.Records, doc.Version, append([]Option{WithRepository(repo)}, opts...)...)
}

func newEditor(scenarioID string, records []domain.Record, version int, opts ...Option) (*Editor, error) {
	if scenarioID == "" {
		return nil, fmt.Errorf("scenario id is required")
	}
	e := &Editor{
		scenarioID: scenarioID,
		version:    version,
		store:      memory.NewStore(),
		clock:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.logger == nil {
		e.logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	e.logger = e.logger.With("scenario_id", scenarioID)
	if e.nodeTypes == nil {
		e.nodeTypes = nodetype.NewDefaultRegistry()
	}
	if e.allow == nil {
		e.allow = connection.DefaultAllowMap(e.nodeTypes.StepTypes()...)
	}
	e.connections = connection.NewValidator(e.allow)

	for _, rec := range records {
		snap, err := domain.Canonical(rec.EntityType, rec.Snapshot)
		if err != nil {
			return nil, fmt.Errorf("invalid stored %s %q: %w", rec.EntityType, rec.EntityID, err)
		}
		e.store.Put(rec.EntityType, rec.EntityID, snap)
	}

	historyOpts := []history.Option{history.WithClock(e.clock)}
	if e.newID != nil {
		historyOpts = append(historyOpts, history.WithIDGenerator(e.newID))
	}
	e.history = history.New(historyOpts...)

	e.commands = command.NewRegistry()
	if err := command.RegisterDefaults(e.commands, command.Deps{
		StepTypes:      e.nodeTypes,
		Connections:    e.connections,
		NewID:          e.newID,
		StrictGeometry: e.strict,
	}); err != nil {
		return nil, err
	}
	for _, h := range e.handlers {
		if err := e.commands.Register(h); err != nil {
			return nil, err
		}
	}

	e.dispatcher = command.NewDispatcher(e.commands, e.store, e.history,
		command.WithLogger(e.logger),
		command.WithHooks(e.hooks),
		command.WithClock(e.clock),
	)
	return e, nil
}

// ScenarioID returns the id of the edited scenario.
func (e *Editor) ScenarioID() string {
	return e.scenarioID
}

// Version returns the last version confirmed by the repository.
func (e *Editor) Version() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Execute dispatches one command, or a BATCH of them.
// Commands without a scenario id are addressed to the edited scenario.
func (e *Editor) Execute(cmd command.Command) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.execute(cmd)
}

func (e *Editor) execute(cmd command.Command) error {
	if cmd.ScenarioID == "" {
		cmd.ScenarioID = e.scenarioID
	}
	if cmd.ScenarioID != e.scenarioID {
		return &domain.PayloadError{
			CommandType: cmd.Type,
			Err:         fmt.Errorf("command for scenario %q sent to editor of %q", cmd.ScenarioID, e.scenarioID),
		}
	}
	return e.dispatcher.Execute(cmd)
}

// StartBatch opens a batch: the following commands form one undo unit.
func (e *Editor) StartBatch() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatcher.StartBatch()
}

// CommitBatch applies the open batch as one history entry.
func (e *Editor) CommitBatch(description string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatcher.CommitBatch(description)
}

// CancelBatch drops the open batch and every mutation made inside it.
func (e *Editor) CancelBatch() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatcher.CancelBatch()
}

// InBatch reports whether a batch is open.
func (e *Editor) InBatch() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dispatcher.InBatch()
}

// Undo reverts the most recent history entry. It returns false when there is nothing to undo.
func (e *Editor) Undo() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok, err := e.history.Undo(e.store)
	if err != nil || !ok {
		return ok, err
	}
	if entry, ok := e.history.LastUndone(); ok && e.hooks.OnUndo != nil {
		e.hooks.OnUndo(&domain.HistoryEvent{
			EventBase:   domain.EventBase{Timestamp: e.clock(), Type: domain.EventUndo, ScenarioID: e.scenarioID},
			Changes:     len(entry.Changes),
			Description: entry.Description,
		})
	}
	return true, nil
}

// Redo reapplies the most recently undone entry. It returns false when there is nothing to redo.
func (e *Editor) Redo() (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	ok, err := e.history.Redo(e.store)
	if err != nil || !ok {
		return ok, err
	}
	if entry, ok := e.history.Top(); ok && e.hooks.OnRedo != nil {
		e.hooks.OnRedo(&domain.HistoryEvent{
			EventBase:   domain.EventBase{Timestamp: e.clock(), Type: domain.EventRedo, ScenarioID: e.scenarioID},
			Changes:     len(entry.Changes),
			Description: entry.Description,
		})
	}
	return true, nil
}

// CanUndo reports whether Undo would revert an entry.
func (e *Editor) CanUndo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanUndo()
}

// CanRedo reports whether Redo would reapply an entry.
func (e *Editor) CanRedo() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.CanRedo()
}

// History returns copies of the undo and redo stacks and the sync pointer.
func (e *Editor) History() (past, future []history.Entry, lastSynced int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Past(), e.history.Future(), e.history.LastSyncedIndex()
}

// ClearHistory drops both stacks. It fails while a batch is open or edits are unsaved.
func (e *Editor) ClearHistory() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.Clear()
}

// PendingOperations returns the net operations the next Save would send.
func (e *Editor) PendingOperations() []domain.Operation {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.history.PendingOperations()
}

// Save sends the pending operations to the repository and, on success, advances the
// sync pointer past them. A failed save leaves the pointer where it was; the error
// matches domain.ErrSyncConflict.
func (e *Editor) Save(ctx context.Context) (int, error) {
	if e.repo == nil {
		return 0, fmt.Errorf("no repository configured")
	}
	e.saveMu.Lock()
	defer e.saveMu.Unlock()

	e.mu.Lock()
	if e.dispatcher.InBatch() {
		e.mu.Unlock()
		return 0, domain.ErrBatchOpen
	}
	ticket := e.history.BeginSync()
	base := e.version
	e.mu.Unlock()

	if ticket.Empty() {
		return base, nil
	}

	start := e.clock()
	version, err := e.repo.Apply(ctx, e.scenarioID, base, ticket.Operations)
	elapsed := e.clock().Sub(start)

	e.mu.Lock()
	defer e.mu.Unlock()

	event := &domain.SyncEvent{
		EventBase:  domain.EventBase{Timestamp: e.clock(), Type: domain.EventSync, ScenarioID: e.scenarioID},
		Operations: len(ticket.Operations),
		Duration:   elapsed,
	}
	if err != nil {
		var conflict *domain.SyncConflictError
		if !errors.As(err, &conflict) {
			err = &domain.SyncConflictError{ScenarioID: e.scenarioID, Err: err}
		}
		e.logger.Error("save failed", "operations", len(ticket.Operations), "base_version", base, "error", err)
		event.Err = err
		if e.hooks.OnSync != nil {
			e.hooks.OnSync(event)
		}
		return 0, err
	}

	e.version = version
	e.history.ConfirmSync(ticket)
	e.logger.Info("scenario saved", "operations", len(ticket.Operations), "version", version)

	event.Version = version
	if e.hooks.OnSync != nil {
		e.hooks.OnSync(event)
	}
	return version, nil
}

// Inspection is the current snapshot of one entity with its recorded changes.
type Inspection struct {
	Snapshot domain.Snapshot       `json:"snapshot,omitempty"`
	Exists   bool                  `json:"exists"`
	Changes  []domain.VisualChange `json:"changes"`
}

// Inspect returns an entity's current snapshot and its field-level change log, newest first.
func (e *Editor) Inspect(kind domain.EntityType, id string) Inspection {
	e.mu.Lock()
	defer e.mu.Unlock()

	snap, ok := e.dispatcher.View().Get(kind, id)
	key := domain.EntityKey{Type: kind, ID: id}
	var changes []domain.EntityChange
	for _, c := range e.history.Changes() {
		if c.Key() == key {
			changes = append(changes, c)
		}
	}
	return Inspection{Snapshot: snap, Exists: ok, Changes: domain.ToVisuals(changes)}
}

// Changes returns every change reachable by undo as visual diffs, newest first.
func (e *Editor) Changes() []domain.VisualChange {
	e.mu.Lock()
	defer e.mu.Unlock()
	return domain.ToVisuals(e.history.Changes())
}

// Graph returns a typed copy of the current state.
func (e *Editor) Graph() (domain.Graph, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.graph()
}

func (e *Editor) graph() (domain.Graph, error) {
	view := e.dispatcher.View()
	var g domain.Graph

	if snap, ok := view.Get(domain.EntityScenario, e.scenarioID); ok {
		sc, err := domain.FromSnapshot[domain.Scenario](snap)
		if err != nil {
			return g, err
		}
		g.Scenario = sc
	}
	g.Scenario.Version = e.version

	var err error
	if g.Branches, err = decodeAll[domain.Branch](view, domain.EntityBranch); err != nil {
		return g, err
	}
	if g.Steps, err = decodeAll[domain.Step](view, domain.EntityStep); err != nil {
		return g, err
	}
	if g.Relations, err = decodeAll[domain.Relation](view, domain.EntityRelation); err != nil {
		return g, err
	}

	sort.SliceStable(g.Branches, func(i, j int) bool {
		if g.Branches[i].ParentStepID != g.Branches[j].ParentStepID {
			return g.Branches[i].ParentStepID < g.Branches[j].ParentStepID
		}
		return g.Branches[i].Order < g.Branches[j].Order
	})
	sort.SliceStable(g.Steps, func(i, j int) bool {
		if g.Steps[i].BranchID != g.Steps[j].BranchID {
			return g.Steps[i].BranchID < g.Steps[j].BranchID
		}
		return g.Steps[i].Order < g.Steps[j].Order
	})
	sort.SliceStable(g.Relations, func(i, j int) bool {
		if g.Relations[i].ParentStepID != g.Relations[j].ParentStepID {
			return g.Relations[i].ParentStepID < g.Relations[j].ParentStepID
		}
		return g.Relations[i].Priority < g.Relations[j].Priority
	})
	return g, nil
}

func decodeAll[T any](view ports.EntityReader, kind domain.EntityType) ([]T, error) {
	snaps := view.List(kind)
	out := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		v, err := domain.FromSnapshot[T](snap)
		if err != nil {
			return nil, fmt.Errorf("invalid %s %q: %w", kind, snap.ID(), err)
		}
		out = append(out, v)
	}
	return out, nil
}

// GraphNodes maps branches and steps to renderer nodes through their contracts.
func (e *Editor) GraphNodes() ([]nodetype.GraphNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	g, err := e.graph()
	if err != nil {
		return nil, err
	}
	nodes := make([]nodetype.GraphNode, 0, len(g.Branches)+len(g.Steps))
	for _, b := range g.Branches {
		n, err := e.nodeTypes.FromDTO(nodetype.BranchDTO(b), b.ParentStepID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	for _, s := range g.Steps {
		n, err := e.nodeTypes.FromDTO(nodetype.StepDTO(s), s.BranchID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, n)
	}
	return nodes, nil
}

// node builds the graph node of a step or branch id.
func (e *Editor) node(id string) (nodetype.GraphNode, error) {
	view := e.dispatcher.View()
	if snap, ok := view.Get(domain.EntityStep, id); ok {
		s, err := domain.FromSnapshot[domain.Step](snap)
		if err != nil {
			return nodetype.GraphNode{}, err
		}
		return e.nodeTypes.FromDTO(nodetype.StepDTO(s), s.BranchID)
	}
	if snap, ok := view.Get(domain.EntityBranch, id); ok {
		b, err := domain.FromSnapshot[domain.Branch](snap)
		if err != nil {
			return nodetype.GraphNode{}, err
		}
		return e.nodeTypes.FromDTO(nodetype.BranchDTO(b), b.ParentStepID)
	}
	return nodetype.GraphNode{}, &domain.MissingEntityError{Type: domain.EntityStep, ID: id}
}

// gesture asks the node's contract for a command and executes it.
func (e *Editor) gesture(id, action string, build func(nodetype.GraphNode) (command.Command, bool)) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	n, err := e.node(id)
	if err != nil {
		return err
	}
	cmd, ok := build(n)
	if !ok {
		return &domain.PayloadError{CommandType: action, Err: fmt.Errorf("%s %q does not support %s", n.Type, id, action)}
	}
	return e.execute(cmd)
}

// MoveNode moves a step or branch to (x, y).
func (e *Editor) MoveNode(id string, x, y float64) error {
	return e.gesture(id, "move", func(n nodetype.GraphNode) (command.Command, bool) {
		return e.nodeTypes.MoveCommand(n, x, y)
	})
}

// ResizeNode resizes a node whose contract supports it.
func (e *Editor) ResizeNode(id string, width, height float64) error {
	return e.gesture(id, "resize", func(n nodetype.GraphNode) (command.Command, bool) {
		return e.nodeTypes.ResizeCommand(n, width, height)
	})
}

// AttachNode moves a step into a branch.
func (e *Editor) AttachNode(id, branchID string) error {
	return e.gesture(id, "attach", func(n nodetype.GraphNode) (command.Command, bool) {
		return e.nodeTypes.AttachCommand(n, branchID)
	})
}

// DetachNode moves a step out of its branch into the branch of the owning step.
func (e *Editor) DetachNode(id string) error {
	return e.gesture(id, "detach", func(n nodetype.GraphNode) (command.Command, bool) {
		return e.nodeTypes.DetachCommand(n)
	})
}

// IsValidConnection reports whether a relation from sourceID to targetID may be created.
func (e *Editor) IsValidConnection(sourceID, targetID string) bool {
	return e.CheckConnection(sourceID, targetID) == nil
}

// CheckConnection returns a *domain.ValidationError when the connection is rejected.
func (e *Editor) CheckConnection(sourceID, targetID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	view := e.dispatcher.View()
	return e.connections.Check(sourceID, targetID, command.StepTypeOf(view), command.RelationsOf(view))
}

// NodeTypes returns the node-type registry of the editor.
func (e *Editor) NodeTypes() *nodetype.Registry {
	return e.nodeTypes
}

// StrictGeometry reports whether every branch must carry a positive size.
func (e *Editor) StrictGeometry() bool {
	return e.strict
}

// AllowMap returns a copy of the connection allow-map.
func (e *Editor) AllowMap() connection.AllowMap {
	return e.connections.AllowMap()
}

// Export returns the current entities as records, ordered by type then id.
func (e *Editor) Export() []domain.Record {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.store.Export()
}
