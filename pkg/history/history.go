package history

import (
	"fmt"
	"time"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
	"github.com/google/uuid"
)

// Entry is one undo/redo unit: either a single command's changes or a committed batch.
type Entry struct {
	Seq         uint64                `json:"seq"`
	Description string                `json:"description,omitempty"`
	Batch       bool                  `json:"batch,omitempty"`
	Timestamp   time.Time             `json:"timestamp"`
	Changes     []domain.EntityChange `json:"changes"`
}

func (e Entry) clone() Entry {
	changes := make([]domain.EntityChange, len(e.Changes))
	for i, c := range e.Changes {
		changes[i] = c.Clone()
	}
	e.Changes = changes
	return e
}

// Option configures the Engine.
type Option func(*Engine)

// WithClock overrides the time source used to stamp changes.
func WithClock(clock func() time.Time) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithIDGenerator overrides the generator of change ids.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		e.newID = gen
	}
}

// Engine is the undo/redo state machine of one editing session.
//
// It is either Idle or BatchOpen. In Idle every recorded command becomes its own entry;
// in BatchOpen changes accumulate in a buffer that CommitBatch folds into one entry.
// The sync pointer (LastSyncedIndex) marks how much of past is confirmed persisted.
//
// Engine is not safe for concurrent use; callers serialize access.
type Engine struct {
	past   []Entry
	future []Entry

	lastSynced    int
	compensations []domain.EntityChange

	batchOpen bool
	batch     []domain.EntityChange

	nextSeq uint64
	clock   func() time.Time
	newID   func() string
}

// New creates an empty history engine.
func New(opts ...Option) *Engine {
	e := &Engine{
		clock: time.Now,
		newID: func() string { return uuid.New().String() },
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// NewBuffer returns a change collector that stamps changes like the engine does.
func (e *Engine) NewBuffer() *Buffer {
	return &Buffer{clock: e.clock, newID: e.newID}
}

// RecordCreate records the creation of an entity.
func (e *Engine) RecordCreate(entity domain.Entity) error {
	c, err := newChange(e.clock, e.newID, domain.ActionCreate, nil, entity)
	if err != nil {
		return err
	}
	e.Record("", c)
	return nil
}

// RecordUpdate records an in-place mutation from original to current.
func (e *Engine) RecordUpdate(current, original domain.Entity) error {
	c, err := newChange(e.clock, e.newID, domain.ActionUpdate, original, current)
	if err != nil {
		return err
	}
	e.Record("", c)
	return nil
}

// RecordDelete records the removal of an entity.
func (e *Engine) RecordDelete(entity domain.Entity) error {
	c, err := newChange(e.clock, e.newID, domain.ActionDelete, entity, nil)
	if err != nil {
		return err
	}
	e.Record("", c)
	return nil
}

// Record appends the changes of one command.
// In Idle they become one entry and the redo stack is cleared; in BatchOpen they join the buffer.
// Updates that change nothing are dropped, and an empty record is a no-op.
func (e *Engine) Record(description string, changes ...domain.EntityChange) {
	kept := make([]domain.EntityChange, 0, len(changes))
	for _, c := range changes {
		if isNoop(c) {
			continue
		}
		kept = append(kept, c.Clone())
	}
	if len(kept) == 0 {
		return
	}

	if e.batchOpen {
		e.batch = append(e.batch, kept...)
		return
	}
	e.push(Entry{Description: description, Changes: kept})
}

func (e *Engine) push(entry Entry) {
	e.nextSeq++
	entry.Seq = e.nextSeq
	if entry.Timestamp.IsZero() {
		entry.Timestamp = e.clock()
	}
	e.past = append(e.past, entry)
	e.future = nil
}

// StartBatch moves the engine to BatchOpen.
// Batches are flat: starting one while another is open returns domain.ErrNestedBatch.
func (e *Engine) StartBatch() error {
	if e.batchOpen {
		return domain.ErrNestedBatch
	}
	e.batchOpen = true
	e.batch = []domain.EntityChange{}
	return nil
}

// CommitBatch folds the optimized buffer into one entry and returns to Idle.
// An empty buffer commits nothing.
func (e *Engine) CommitBatch(description string) error {
	if !e.batchOpen {
		return domain.ErrNoBatch
	}
	changes := Optimize(e.batch)
	e.batchOpen = false
	e.batch = nil

	if len(changes) == 0 {
		return nil
	}
	e.push(Entry{Description: description, Batch: true, Changes: changes})
	return nil
}

// CancelBatch drops the buffer and returns to Idle.
func (e *Engine) CancelBatch() error {
	if !e.batchOpen {
		return domain.ErrNoBatch
	}
	e.batchOpen = false
	e.batch = nil
	return nil
}

// InBatch reports whether a batch is open.
func (e *Engine) InBatch() bool {
	return e.batchOpen
}

// Undo reverts the most recent entry on sink, walking its changes in reverse order.
// It returns false when there is nothing to undo.
func (e *Engine) Undo(sink ports.EntityStore) (bool, error) {
	if e.batchOpen {
		return false, domain.ErrBatchOpen
	}
	if len(e.past) == 0 {
		return false, nil
	}

	idx := len(e.past) - 1
	entry := e.past[idx]
	e.past = e.past[:idx]

	for i := len(entry.Changes) - 1; i >= 0; i-- {
		c := entry.Changes[i]
		restore(sink, c.EntityType, c.EntityID, c.Original)
	}

	// The entry was already persisted: queue its inverse and re-base the pointer.
	if idx < e.lastSynced {
		e.compensations = append(e.compensations, inverse(entry)...)
		e.lastSynced = idx
	}

	e.future = append(e.future, entry)
	return true, nil
}

// Redo reapplies the most recently undone entry on sink in forward order.
// It returns false when there is nothing to redo.
func (e *Engine) Redo(sink ports.EntityStore) (bool, error) {
	if e.batchOpen {
		return false, domain.ErrBatchOpen
	}
	if len(e.future) == 0 {
		return false, nil
	}

	idx := len(e.future) - 1
	entry := e.future[idx]
	e.future = e.future[:idx]

	for _, c := range entry.Changes {
		restore(sink, c.EntityType, c.EntityID, c.Current)
	}

	e.past = append(e.past, entry)
	return true, nil
}

func restore(sink ports.EntityStore, kind domain.EntityType, id string, snap domain.Snapshot) {
	if snap == nil {
		sink.Remove(kind, id)
		return
	}
	sink.Put(kind, id, snap)
}

// CanUndo reports whether Undo would revert an entry.
func (e *Engine) CanUndo() bool {
	return !e.batchOpen && len(e.past) > 0
}

// CanRedo reports whether Redo would reapply an entry.
func (e *Engine) CanRedo() bool {
	return !e.batchOpen && len(e.future) > 0
}

// Past returns a copy of the undo stack, oldest first.
func (e *Engine) Past() []Entry {
	return cloneEntries(e.past)
}

// Future returns a copy of the redo stack, oldest undone last.
func (e *Engine) Future() []Entry {
	return cloneEntries(e.future)
}

// Top returns a copy of the entry Undo would revert next.
func (e *Engine) Top() (Entry, bool) {
	if len(e.past) == 0 {
		return Entry{}, false
	}
	return e.past[len(e.past)-1].clone(), true
}

// LastUndone returns a copy of the entry Redo would reapply next.
func (e *Engine) LastUndone() (Entry, bool) {
	if len(e.future) == 0 {
		return Entry{}, false
	}
	return e.future[len(e.future)-1].clone(), true
}

// LastSyncedIndex returns the sync pointer.
func (e *Engine) LastSyncedIndex() int {
	return e.lastSynced
}

// Changes returns every change reachable through the undo stack, in recording order.
func (e *Engine) Changes() []domain.EntityChange {
	var out []domain.EntityChange
	for _, entry := range e.past {
		for _, c := range entry.Changes {
			out = append(out, c.Clone())
		}
	}
	return out
}

// PendingOperations returns the net operations not yet confirmed persisted.
func (e *Engine) PendingOperations() []domain.Operation {
	return toOperations(Optimize(e.pendingChanges()))
}

func (e *Engine) pendingChanges() []domain.EntityChange {
	changes := append([]domain.EntityChange(nil), e.compensations...)
	for _, entry := range e.past[e.lastSynced:] {
		changes = append(changes, entry.Changes...)
	}
	return changes
}

// Clear drops both stacks. It refuses while a batch is open or while
// operations are still pending, so no edit is ever silently lost.
func (e *Engine) Clear() error {
	if e.batchOpen {
		return domain.ErrBatchOpen
	}
	if ops := e.PendingOperations(); len(ops) > 0 {
		return fmt.Errorf("%w: %d pending operations", domain.ErrUnsavedChanges, len(ops))
	}
	e.past = nil
	e.future = nil
	e.lastSynced = 0
	e.compensations = nil
	return nil
}

func inverse(entry Entry) []domain.EntityChange {
	out := make([]domain.EntityChange, 0, len(entry.Changes))
	for i := len(entry.Changes) - 1; i >= 0; i-- {
		out = append(out, entry.Changes[i].Inverse())
	}
	return out
}

func cloneEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	for i, entry := range entries {
		out[i] = entry.clone()
	}
	return out
}
