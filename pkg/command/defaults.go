package command

import (
	"github.com/aretw0/scenaria/pkg/connection"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/google/uuid"
)

// StepTypes is what the built-in handlers need to know about step variants.
// *nodetype.Registry implements it.
type StepTypes interface {
	Known(t domain.StepType) bool
	// Canonical returns the registered spelling of t.
	Canonical(t domain.StepType) (domain.StepType, bool)
	CanHaveChildBranches(t domain.StepType) bool
	ValidateParams(t domain.StepType, params map[string]any) error
}

// Deps are the collaborators of the built-in handlers.
type Deps struct {
	StepTypes   StepTypes
	Connections *connection.Validator

	// NewID generates ids for entities created without one. Defaults to uuid.
	NewID func() string

	// StrictGeometry rejects branches that were never laid out.
	StrictGeometry bool
}

func (d Deps) withDefaults() Deps {
	if d.StepTypes == nil {
		d.StepTypes = builtinStepTypes{}
	}
	if d.Connections == nil {
		d.Connections = connection.NewValidator(connection.DefaultAllowMap())
	}
	if d.NewID == nil {
		d.NewID = func() string { return uuid.New().String() }
	}
	return d
}

// builtinStepTypes accepts the built-in variants without params validation.
type builtinStepTypes struct{}

func (builtinStepTypes) Known(t domain.StepType) bool {
	switch t {
	case domain.StepDelay, domain.StepSignal, domain.StepJump, domain.StepParallel,
		domain.StepCondition, domain.StepActivitySystem, domain.StepActivityModbus:
		return true
	}
	return false
}

func (b builtinStepTypes) Canonical(t domain.StepType) (domain.StepType, bool) {
	return t, b.Known(t)
}

func (builtinStepTypes) CanHaveChildBranches(t domain.StepType) bool {
	return t == domain.StepParallel || t == domain.StepCondition
}

func (builtinStepTypes) ValidateParams(domain.StepType, map[string]any) error { return nil }

// RegisterDefaults installs the built-in handlers for scenarios, steps, branches and relations.
func RegisterDefaults(reg *Registry, deps Deps) error {
	deps = deps.withDefaults()

	s := &scenarioHandlers{deps: deps}
	st := &stepHandlers{deps: deps}
	b := &branchHandlers{deps: deps}
	r := &relationHandlers{deps: deps}

	handlers := []Handler{
		NewHandler(ScenarioCreate, s.create),
		NewHandler(ScenarioUpdate, s.update),

		NewHandler(StepCreate, st.create),
		NewHandler(StepUpdate, st.update),
		NewHandler(StepDelete, st.delete),
		NewHandler(StepMove, st.move),
		NewHandler(StepAttach, st.attach),
		NewHandler(StepDetach, st.detach),

		NewHandler(BranchCreate, b.create),
		NewHandler(BranchUpdate, b.update),
		NewHandler(BranchResize, b.resize),
		NewHandler(BranchDelete, b.delete),

		NewHandler(RelationCreate, r.create),
		NewHandler(RelationUpdate, r.update),
		NewHandler(RelationDelete, r.delete),
	}
	for _, h := range handlers {
		if err := reg.Register(h); err != nil {
			return err
		}
	}
	return nil
}
