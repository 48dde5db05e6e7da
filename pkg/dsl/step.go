package dsl

import (
	"fmt"

	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/domain"
)

type edge struct {
	target    string
	condition string
}

// StepBuilder provides a fluent API for configuring a step.
type StepBuilder struct {
	id       string
	typ      domain.StepType
	name     string
	params   map[string]any
	at       *[2]float64
	branch   *BranchBuilder
	branches []*BranchBuilder
	edges    []edge
}

// Delay marks the step as a delay of an ISO-8601 duration such as PT5S.
func (s *StepBuilder) Delay(timeSpan string) *StepBuilder {
	s.typ = domain.StepDelay
	s.params["timeSpan"] = timeSpan
	return s
}

// Signal marks the step as emitting the named signal.
func (s *StepBuilder) Signal(signal string) *StepBuilder {
	s.typ = domain.StepSignal
	s.params["signal"] = signal
	return s
}

// Jump marks the step as a jump to another step.
func (s *StepBuilder) Jump(target string) *StepBuilder {
	s.typ = domain.StepJump
	s.params["targetStepId"] = target
	return s
}

// Parallel marks the step as a fork. Use Branch to add its lanes.
func (s *StepBuilder) Parallel(waitAll bool) *StepBuilder {
	s.typ = domain.StepParallel
	s.params["waitAll"] = waitAll
	return s
}

// Condition marks the step as a decision on the given expression.
func (s *StepBuilder) Condition(expression string) *StepBuilder {
	s.typ = domain.StepCondition
	s.params["expression"] = expression
	return s
}

// System marks the step as a system activity, e.g. System("start", "burner").
func (s *StepBuilder) System(action, target string) *StepBuilder {
	s.typ = domain.StepActivitySystem
	s.params["action"] = action
	s.params["target"] = target
	return s
}

// Modbus marks the step as a register write on a Modbus device.
func (s *StepBuilder) Modbus(address string, unitID, register, value int) *StepBuilder {
	s.typ = domain.StepActivityModbus
	s.params["address"] = address
	s.params["unitId"] = unitID
	s.params["register"] = register
	s.params["value"] = value
	return s
}

// Type sets a step type that has no dedicated helper, such as a registered custom type.
func (s *StepBuilder) Type(typ domain.StepType) *StepBuilder {
	s.typ = typ
	return s
}

// Param sets a single parameter.
func (s *StepBuilder) Param(key string, value any) *StepBuilder {
	s.params[key] = value
	return s
}

// Name sets the display name.
func (s *StepBuilder) Name(name string) *StepBuilder {
	s.name = name
	return s
}

// At places the step on the canvas.
func (s *StepBuilder) At(x, y float64) *StepBuilder {
	s.at = &[2]float64{x, y}
	return s
}

// Go adds an unconditional relation to the target step.
func (s *StepBuilder) Go(target string) *StepBuilder {
	s.edges = append(s.edges, edge{target: target})
	return s
}

// When adds a conditional relation to the target step.
func (s *StepBuilder) When(condition, target string) *StepBuilder {
	s.edges = append(s.edges, edge{target: target, condition: condition})
	return s
}

// Branch adds a child branch owned by this step and returns it.
// If the branch already exists, it returns the existing builder.
func (s *StepBuilder) Branch(id string) *BranchBuilder {
	b := s.branch.builder
	if br, ok := b.branches[id]; ok {
		if br.owner != s.id {
			b.errs = append(b.errs, fmt.Errorf("branch %q already owned by %q", id, br.owner))
		}
		return br
	}
	br := &BranchBuilder{id: id, owner: s.id, builder: b}
	b.branches[id] = br
	s.branches = append(s.branches, br)
	return br
}

func (s *StepBuilder) payload() map[string]any {
	p := map[string]any{
		"id":        s.id,
		"type":      string(s.typ),
		"branch_id": s.branch.id,
	}
	if s.name != "" {
		p["name"] = s.name
	}
	if len(s.params) > 0 {
		params := make(map[string]any, len(s.params))
		for k, v := range s.params {
			params[k] = v
		}
		p["params"] = params
	}
	if s.at != nil {
		p["geometry"] = map[string]any{"x": s.at[0], "y": s.at[1]}
	}
	return p
}

func (s *StepBuilder) relations(scenarioID string) []command.Command {
	out := make([]command.Command, 0, len(s.edges))
	for i, e := range s.edges {
		p := map[string]any{
			"id":             s.id + "->" + e.target,
			"parent_step_id": s.id,
			"child_step_id":  e.target,
			"priority":       i,
		}
		if e.condition != "" {
			p["condition"] = e.condition
		}
		out = append(out, command.New(command.RelationCreate, scenarioID, p))
	}
	return out
}
