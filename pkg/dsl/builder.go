package dsl

import (
	"errors"
	"fmt"

	"github.com/aretw0/scenaria/pkg/command"
	"github.com/aretw0/scenaria/pkg/domain"
)

// DefaultRootBranchID is used when the builder is not given a root branch id.
const DefaultRootBranchID = "main"

// Builder manages the scenario construction.
type Builder struct {
	scenarioID string
	name       string
	root       *BranchBuilder

	steps    map[string]*StepBuilder
	branches map[string]*BranchBuilder
	errs     []error
}

// New creates a builder for a scenario with a root branch named DefaultRootBranchID.
func New(scenarioID, name string) *Builder {
	b := &Builder{
		scenarioID: scenarioID,
		name:       name,
		steps:      make(map[string]*StepBuilder),
		branches:   make(map[string]*BranchBuilder),
	}
	b.root = &BranchBuilder{id: DefaultRootBranchID, builder: b}
	b.branches[DefaultRootBranchID] = b.root
	return b
}

// RootBranch renames the root branch. It must be called before any step is added.
func (b *Builder) RootBranch(id string) *Builder {
	if len(b.steps) > 0 {
		b.errs = append(b.errs, fmt.Errorf("root branch must be named before adding steps"))
		return b
	}
	delete(b.branches, b.root.id)
	b.root.id = id
	b.branches[id] = b.root
	return b
}

// Root returns the root branch builder.
func (b *Builder) Root() *BranchBuilder {
	return b.root
}

// Step adds a step to the root branch.
// If the step already exists, it returns the existing builder.
func (b *Builder) Step(id string) *StepBuilder {
	return b.root.Step(id)
}

// Build compiles the scenario into a single batch command. Branches are created
// after their owner step and relations after every step, so the batch replays
// in order on an empty editor.
func (b *Builder) Build() (command.Command, error) {
	if err := b.check(); err != nil {
		return command.Command{}, err
	}

	cmds := []command.Command{
		command.New(command.ScenarioCreate, b.scenarioID, map[string]any{
			"id":             b.scenarioID,
			"name":           b.name,
			"root_branch_id": b.root.id,
		}),
	}
	var relations []command.Command
	var walk func(br *BranchBuilder)
	walk = func(br *BranchBuilder) {
		for _, s := range br.steps {
			cmds = append(cmds, command.New(command.StepCreate, b.scenarioID, s.payload()))
			for _, child := range s.branches {
				cmds = append(cmds, command.New(command.BranchCreate, b.scenarioID, child.payload()))
				walk(child)
			}
			relations = append(relations, s.relations(b.scenarioID)...)
		}
	}
	walk(b.root)

	return command.NewBatch(b.scenarioID, fmt.Sprintf("Build scenario %s", b.name), append(cmds, relations...)...), nil
}

func (b *Builder) check() error {
	errs := append([]error(nil), b.errs...)
	for _, s := range b.steps {
		if s.typ == "" {
			errs = append(errs, fmt.Errorf("step %q has no type", s.id))
		}
		for _, e := range s.edges {
			if _, ok := b.steps[e.target]; !ok {
				errs = append(errs, fmt.Errorf("step %q links to unknown step %q", s.id, e.target))
			}
		}
		if target, _ := s.params["targetStepId"].(string); target != "" {
			if _, ok := b.steps[target]; !ok {
				errs = append(errs, fmt.Errorf("jump %q targets unknown step %q", s.id, target))
			}
		}
	}
	return errors.Join(errs...)
}

// BranchBuilder collects the steps of one branch.
type BranchBuilder struct {
	id       string
	owner    string
	geometry *domain.Geometry
	steps    []*StepBuilder
	builder  *Builder
}

// Step adds a step to this branch.
// If a step with that id already exists anywhere in the scenario, it is returned unchanged.
func (br *BranchBuilder) Step(id string) *StepBuilder {
	if s, ok := br.builder.steps[id]; ok {
		if s.branch != br {
			br.builder.errs = append(br.builder.errs, fmt.Errorf("step %q already belongs to branch %q", id, s.branch.id))
		}
		return s
	}
	s := &StepBuilder{id: id, branch: br, params: map[string]any{}}
	br.builder.steps[id] = s
	br.steps = append(br.steps, s)
	return s
}

// Size mounts the branch on the canvas.
func (br *BranchBuilder) Size(x, y, width, height float64) *BranchBuilder {
	br.geometry = &domain.Geometry{X: x, Y: y, Width: width, Height: height}
	return br
}

// ID returns the branch id.
func (br *BranchBuilder) ID() string {
	return br.id
}

func (br *BranchBuilder) payload() map[string]any {
	p := map[string]any{
		"id":             br.id,
		"parent_step_id": br.owner,
	}
	if br.geometry != nil {
		p["geometry"] = map[string]any{
			"x": br.geometry.X, "y": br.geometry.Y,
			"width": br.geometry.Width, "height": br.geometry.Height,
		}
	}
	return p
}
