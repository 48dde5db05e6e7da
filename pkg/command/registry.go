package command

import (
	"fmt"
	"sort"
	"sync"

	"github.com/aretw0/scenaria/pkg/domain"
)

// Registry maps command types to their handlers.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]Handler
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[string]Handler),
	}
}

// Register adds a handler to the registry.
// Registering a type twice returns domain.ErrDuplicateHandler and keeps the first handler.
func (r *Registry) Register(h Handler) error {
	typ := h.CommandType()
	if typ == "" || typ == TypeBatch {
		return fmt.Errorf("cannot register handler for command type %q", typ)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.handlers[typ]; ok {
		return fmt.Errorf("%w: %s", domain.ErrDuplicateHandler, typ)
	}
	r.handlers[typ] = h
	return nil
}

// MustRegister is Register for construction-time wiring; it panics on error.
func (r *Registry) MustRegister(handlers ...Handler) {
	for _, h := range handlers {
		if err := r.Register(h); err != nil {
			panic(err)
		}
	}
}

// Lookup returns the handler registered for a command type.
func (r *Registry) Lookup(typ string) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.handlers[typ]
	return h, ok
}

// Types returns the registered command types, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]string, 0, len(r.handlers))
	for typ := range r.handlers {
		out = append(out, typ)
	}
	sort.Strings(out)
	return out
}
