package command

import (
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/aretw0/scenaria/pkg/adapters/memory"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/history"
	"github.com/aretw0/scenaria/pkg/ports"
)

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithLogger sets the logger used for dropped and failed commands.
func WithLogger(logger *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		d.logger = logger
	}
}

// WithHooks sets the command lifecycle hooks.
func WithHooks(hooks domain.EditorHooks) DispatcherOption {
	return func(d *Dispatcher) {
		d.hooks = hooks
	}
}

// WithClock overrides the time source of emitted events.
func WithClock(clock func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		d.clock = clock
	}
}

// Dispatcher is the single entry point for commands.
//
// Each command runs against its own overlay of the committed store and its own change
// buffer. When the handler succeeds the overlay is flushed and the buffer recorded in
// the same call; when it fails both are dropped and committed state is left untouched.
// While a batch is open, commands flush into a batch overlay that only reaches the
// committed store on CommitBatch.
//
// Dispatcher is not safe for concurrent use; the editor serializes calls.
type Dispatcher struct {
	registry *Registry
	store    ports.EntityStore
	history  *history.Engine

	batch *memory.Tx

	logger *slog.Logger
	hooks  domain.EditorHooks
	clock  func() time.Time
}

// NewDispatcher wires a registry to a committed store and a history engine.
func NewDispatcher(reg *Registry, store ports.EntityStore, h *history.Engine, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		store:    store,
		history:  h,
		logger:   slog.New(slog.NewJSONHandler(io.Discard, nil)),
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// View returns the state commands currently see: the batch overlay while a batch is
// open, the committed store otherwise.
func (d *Dispatcher) View() ports.EntityReader {
	if d.batch != nil {
		return d.batch
	}
	return d.store
}

// Execute dispatches one command. BATCH commands run their sub-commands in order and
// commit them as one history entry; the first failing sub-command cancels the batch.
//
// An unknown command type is logged and dropped and a *domain.UnknownCommandError is
// returned. The session is unaffected.
func (d *Dispatcher) Execute(cmd Command) error {
	if cmd.Type == TypeBatch {
		return d.executeBatch(cmd)
	}
	return d.execute(cmd)
}

func (d *Dispatcher) executeBatch(cmd Command) error {
	payload, err := cmd.Batch()
	if err != nil {
		d.reject(cmd, err)
		return err
	}
	if err := d.StartBatch(); err != nil {
		d.reject(cmd, err)
		return err
	}

	for i, sub := range payload.Commands {
		if sub.Type == TypeBatch {
			err = domain.ErrNestedBatch
		} else {
			err = d.execute(sub)
		}
		if err != nil {
			_ = d.CancelBatch()
			d.logger.Error("batch aborted",
				"scenario_id", cmd.ScenarioID,
				"description", payload.Description,
				"failed_index", i,
				"command_type", sub.Type,
				"error", err)
			return fmt.Errorf("batch %q aborted at command %d (%s): %w", payload.Description, i, sub.Type, err)
		}
	}
	return d.CommitBatch(payload.Description)
}

func (d *Dispatcher) execute(cmd Command) (err error) {
	h, ok := d.registry.Lookup(cmd.Type)
	if !ok || !h.CanHandle(cmd) {
		err := &domain.UnknownCommandError{Type: cmd.Type}
		d.logger.Warn("dropping unknown command",
			"command_type", cmd.Type,
			"scenario_id", cmd.ScenarioID)
		d.emitRejected(cmd, err)
		return err
	}

	var parent ports.EntityStore = d.store
	if d.batch != nil {
		parent = d.batch
	}
	tx := memory.NewTx(parent)
	buf := d.history.NewBuffer()

	defer func() {
		if r := recover(); r != nil {
			tx.Discard()
			err = fmt.Errorf("handler %s panicked: %v", cmd.Type, r)
			d.reject(cmd, err)
		}
	}()

	if err := h.Execute(cmd, tx, buf); err != nil {
		tx.Discard()
		d.reject(cmd, err)
		return err
	}

	tx.Commit()
	d.history.Record(cmd.Description(), buf.Changes()...)

	if d.hooks.OnCommandExecuted != nil {
		d.hooks.OnCommandExecuted(&domain.CommandEvent{
			EventBase:   d.event(domain.EventCommandExecuted, cmd),
			CommandType: cmd.Type,
			Changes:     buf.Len(),
			Batch:       d.batch != nil,
		})
	}
	return nil
}

func (d *Dispatcher) reject(cmd Command, err error) {
	d.logger.Error("command failed",
		"command_type", cmd.Type,
		"scenario_id", cmd.ScenarioID,
		"target_id", cmd.TargetID(),
		"batch", d.batch != nil,
		"error", err)
	d.emitRejected(cmd, err)
}

func (d *Dispatcher) emitRejected(cmd Command, err error) {
	if d.hooks.OnCommandRejected == nil {
		return
	}
	d.hooks.OnCommandRejected(&domain.CommandEvent{
		EventBase:   d.event(domain.EventCommandRejected, cmd),
		CommandType: cmd.Type,
		Batch:       d.batch != nil,
		Err:         err,
	})
}

func (d *Dispatcher) event(typ domain.EventType, cmd Command) domain.EventBase {
	return domain.EventBase{Timestamp: d.clock(), Type: typ, ScenarioID: cmd.ScenarioID}
}

// StartBatch opens a batch. Batches are flat: a second call returns domain.ErrNestedBatch.
func (d *Dispatcher) StartBatch() error {
	if err := d.history.StartBatch(); err != nil {
		return err
	}
	d.batch = memory.NewTx(d.store)
	return nil
}

// CommitBatch applies the batch overlay to the committed store and records one entry.
func (d *Dispatcher) CommitBatch(description string) error {
	if d.batch == nil {
		return domain.ErrNoBatch
	}
	if err := d.history.CommitBatch(description); err != nil {
		return err
	}
	d.batch.Commit()
	d.batch = nil
	return nil
}

// CancelBatch drops the batch overlay and its buffered changes.
// Committed state is exactly what it was before StartBatch.
func (d *Dispatcher) CancelBatch() error {
	if d.batch == nil {
		return domain.ErrNoBatch
	}
	if err := d.history.CancelBatch(); err != nil {
		return err
	}
	d.batch.Discard()
	d.batch = nil
	return nil
}

// InBatch reports whether a batch is open.
func (d *Dispatcher) InBatch() bool {
	return d.batch != nil
}
