package nodetype

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/domain"
)

// Registry holds the contracts of one editor, addressable by type tag and by code.
type Registry struct {
	mu     sync.RWMutex
	byType map[string]Contract
	byCode map[int]Contract
	order  []string
}

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byType: make(map[string]Contract),
		byCode: make(map[int]Contract),
	}
}

// Register adds a contract. Tags and codes must be unique.
func (r *Registry) Register(c Contract) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	typ := strings.ToLower(c.Type())
	if typ == "" {
		return fmt.Errorf("node type must have a tag")
	}
	if _, ok := r.byType[typ]; ok {
		return fmt.Errorf("node type %q already registered", typ)
	}
	if other, ok := r.byCode[c.Code()]; ok {
		return fmt.Errorf("node code %d already registered by %q", c.Code(), other.Type())
	}
	r.byType[typ] = c
	r.byCode[c.Code()] = c
	r.order = append(r.order, typ)
	return nil
}

// Lookup returns the contract registered for a type tag.
func (r *Registry) Lookup(typ string) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byType[strings.ToLower(typ)]
	return c, ok
}

// Resolve finds a contract from an external discriminator: an integer or float code,
// a json.Number, a numeric string or a textual tag.
func (r *Registry) Resolve(discriminator any) (Contract, bool) {
	switch v := discriminator.(type) {
	case domain.StepType:
		return r.Lookup(string(v))
	case string:
		if code, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return r.byNumber(code)
		}
		return r.Lookup(strings.TrimSpace(v))
	case json.Number:
		if code, err := v.Int64(); err == nil {
			return r.byNumber(int(code))
		}
		return nil, false
	case int:
		return r.byNumber(v)
	case int32:
		return r.byNumber(int(v))
	case int64:
		return r.byNumber(int(v))
	case uint:
		return r.byNumber(int(v))
	case float32:
		return r.byFloat(float64(v))
	case float64:
		return r.byFloat(v)
	}
	return nil, false
}

func (r *Registry) byFloat(f float64) (Contract, bool) {
	if f != math.Trunc(f) {
		return nil, false
	}
	return r.byNumber(int(f))
}

func (r *Registry) byNumber(code int) (Contract, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byCode[code]
	return c, ok
}

// Types returns the registered tags in registration order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// StepTypes returns the registered step tags, excluding the branch contract.
func (r *Registry) StepTypes() []domain.StepType {
	var out []domain.StepType
	for _, typ := range r.Types() {
		if typ != TypeBranch {
			out = append(out, domain.StepType(typ))
		}
	}
	return out
}

// DisplayNames maps each tag to its human-readable name.
func (r *Registry) DisplayNames() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]string, len(r.byType))
	for typ, c := range r.byType {
		out[typ] = c.DisplayName()
	}
	return out
}

// FromDTO resolves the DTO's discriminator and maps it to a graph node.
func (r *Registry) FromDTO(dto DTO, parentID string) (GraphNode, error) {
	c, ok := r.Resolve(dto.Kind)
	if !ok {
		return GraphNode{}, fmt.Errorf("node %q: unknown kind %v", dto.ID, dto.Kind)
	}
	return c.MapFromDTO(dto, parentID)
}

// ToDTO maps a graph node back to its DTO through the node's contract.
func (r *Registry) ToDTO(node GraphNode) (DTO, error) {
	c, ok := r.Lookup(node.Type)
	if !ok {
		return DTO{}, fmt.Errorf("node %q: unknown type %q", node.ID, node.Type)
	}
	return c.MapToDTO(node)
}

// Known reports whether t is a registered step type.
func (r *Registry) Known(t domain.StepType) bool {
	if strings.ToLower(string(t)) == TypeBranch {
		return false
	}
	_, ok := r.Lookup(string(t))
	return ok
}

// Canonical returns the registered tag of t, so "Delay" resolves to "delay".
func (r *Registry) Canonical(t domain.StepType) (domain.StepType, bool) {
	if !r.Known(t) {
		return t, false
	}
	return domain.StepType(strings.ToLower(strings.TrimSpace(string(t)))), true
}

// CanHaveChildBranches reports whether steps of type t may own branches.
func (r *Registry) CanHaveChildBranches(t domain.StepType) bool {
	c, ok := r.Lookup(string(t))
	if !ok {
		return false
	}
	owner, ok := c.(ChildBranchOwner)
	return ok && owner.CanHaveChildBranches()
}

// ValidateParams runs the params validator of type t, if it has one.
func (r *Registry) ValidateParams(t domain.StepType, params map[string]any) error {
	c, ok := r.Lookup(string(t))
	if !ok {
		return fmt.Errorf("unknown step type %q", t)
	}
	if v, ok := c.(ParamsValidator); ok {
		return v.ValidateParams(params)
	}
	return nil
}

// MoveCommand returns the move command of the node's contract, if it has one.
func (r *Registry) MoveCommand(node GraphNode, x, y float64) (command.Command, bool) {
	c, ok := r.Lookup(node.Type)
	if !ok {
		return command.Command{}, false
	}
	f, ok := c.(MoveCommandFactory)
	if !ok {
		return command.Command{}, false
	}
	return f.MoveCommand(node, x, y), true
}

// ResizeCommand returns the resize command of the node's contract, if it has one.
func (r *Registry) ResizeCommand(node GraphNode, width, height float64) (command.Command, bool) {
	c, ok := r.Lookup(node.Type)
	if !ok {
		return command.Command{}, false
	}
	f, ok := c.(ResizeCommandFactory)
	if !ok {
		return command.Command{}, false
	}
	return f.ResizeCommand(node, width, height), true
}

// AttachCommand returns the attach command of the node's contract, if it has one.
func (r *Registry) AttachCommand(node GraphNode, branchID string) (command.Command, bool) {
	c, ok := r.Lookup(node.Type)
	if !ok {
		return command.Command{}, false
	}
	f, ok := c.(AttachCommandFactory)
	if !ok {
		return command.Command{}, false
	}
	return f.AttachCommand(node, branchID), true
}

// DetachCommand returns the detach command of the node's contract, if it has one.
func (r *Registry) DetachCommand(node GraphNode) (command.Command, bool) {
	c, ok := r.Lookup(node.Type)
	if !ok {
		return command.Command{}, false
	}
	f, ok := c.(DetachCommandFactory)
	if !ok {
		return command.Command{}, false
	}
	return f.DetachCommand(node), true
}

var _ command.StepTypes = (*Registry)(nil)
