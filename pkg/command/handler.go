package command

import (
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

// Recorder receives the changes a handler applied.
// history.Engine and history.Buffer both implement it.
type Recorder interface {
	RecordCreate(entity domain.Entity) error
	RecordUpdate(current, original domain.Entity) error
	RecordDelete(entity domain.Entity) error
}

// Handler applies one command type.
// Execute mutates sink and records every mutation into rec before returning.
// On error the dispatcher discards both, so a handler may bail out midway.
type Handler interface {
	CommandType() string
	CanHandle(cmd Command) bool
	Execute(cmd Command, sink ports.EntityStore, rec Recorder) error
}

// HandlerFunc is the body of a handler.
type HandlerFunc func(cmd Command, sink ports.EntityStore, rec Recorder) error

type funcHandler struct {
	typ string
	fn  HandlerFunc
}

// NewHandler adapts a function into a Handler for the given command type.
func NewHandler(typ string, fn HandlerFunc) Handler {
	return &funcHandler{typ: typ, fn: fn}
}

func (h *funcHandler) CommandType() string { return h.typ }

func (h *funcHandler) CanHandle(cmd Command) bool { return cmd.Type == h.typ }

func (h *funcHandler) Execute(cmd Command, sink ports.EntityStore, rec Recorder) error {
	return h.fn(cmd, sink, rec)
}
