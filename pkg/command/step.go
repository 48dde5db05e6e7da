package command

import (
	"github.com/aretw0/scenaria/pkg/connection"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

type stepHandlers struct {
	deps Deps
}

func (h *stepHandlers) create(cmd Command, sink ports.EntityStore, rec Recorder) error {
	step, err := Decode[domain.Step](cmd)
	if err != nil {
		return err
	}
	if step.ID == "" {
		step.ID = h.deps.NewID()
	}
	if step.ScenarioID == "" {
		step.ScenarioID = cmd.ScenarioID
	}
	if step.BranchID == "" {
		step.BranchID = rootBranchID(sink)
	}
	if _, err := load[domain.Branch](sink, domain.EntityBranch, step.BranchID); err != nil {
		return err
	}
	if step.Type, err = h.validate(cmd, step); err != nil {
		return err
	}
	if _, ok := cmd.Payload["order"]; !ok {
		step.Order = nextOrder(sink, step.BranchID)
	}

	if err := insert(sink, rec, step); err != nil {
		return invalid(cmd, "%v", err)
	}
	return nil
}

func (h *stepHandlers) update(cmd Command, sink ports.EntityStore, rec Recorder) error {
	original, err := load[domain.Step](sink, domain.EntityStep, cmd.TargetID())
	if err != nil {
		return err
	}
	current, err := patch(cmd, original)
	if err != nil {
		return err
	}
	if current.BranchID != original.BranchID {
		if err := h.checkContainment(cmd, sink, current.ID, current.BranchID); err != nil {
			return err
		}
	}
	if current.Type, err = h.validate(cmd, current); err != nil {
		return err
	}
	if current.Type != original.Type {
		if !h.deps.StepTypes.CanHaveChildBranches(current.Type) {
			if owned := ownedBranches(sink, current.ID); len(owned) > 0 {
				return invalid(cmd, "step type %q cannot own the %d child branches of step %q", current.Type, len(owned), current.ID)
			}
		}
		if err := h.checkRelations(sink, current); err != nil {
			return err
		}
	}
	return replace(sink, rec, current, original)
}

// validate checks the type and params of step and returns its canonical type tag.
func (h *stepHandlers) validate(cmd Command, step domain.Step) (domain.StepType, error) {
	typ, ok := h.deps.StepTypes.Canonical(step.Type)
	if !ok {
		return step.Type, invalid(cmd, "unknown step type %q", step.Type)
	}
	if err := h.deps.StepTypes.ValidateParams(typ, step.Params); err != nil {
		return typ, &domain.PayloadError{CommandType: cmd.Type, Err: err}
	}
	return typ, nil
}

// checkRelations re-checks the type pair of every relation touching step after a
// type change. Duplicates are not re-checked since the pairs themselves are unchanged.
func (h *stepHandlers) checkRelations(sink ports.EntityReader, step domain.Step) error {
	typeOf := StepTypeOf(sink)
	rels, err := list[domain.Relation](sink, domain.EntityRelation)
	if err != nil {
		return err
	}
	for _, r := range rels {
		var from, to domain.StepType
		switch step.ID {
		case r.ParentStepID:
			from = step.Type
			to, _ = typeOf(r.ChildStepID)
		case r.ChildStepID:
			from, _ = typeOf(r.ParentStepID)
			to = step.Type
		default:
			continue
		}
		if !h.deps.Connections.AllowsTypes(from, to) {
			return &domain.ValidationError{SourceID: r.ParentStepID, TargetID: r.ChildStepID, Reason: connection.ReasonNotAllowed}
		}
	}
	return nil
}

type moveArgs struct {
	ID string   `mapstructure:"id"`
	X  *float64 `mapstructure:"x"`
	Y  *float64 `mapstructure:"y"`
}

// move changes the position of a step inside its branch.
func (h *stepHandlers) move(cmd Command, sink ports.EntityStore, rec Recorder) error {
	args, err := Decode[moveArgs](cmd)
	if err != nil {
		return err
	}
	original, err := load[domain.Step](sink, domain.EntityStep, args.ID)
	if err != nil {
		return err
	}
	current := original
	current.Params = cloneParams(original.Params)
	if args.X != nil {
		current.Geometry.X = *args.X
	}
	if args.Y != nil {
		current.Geometry.Y = *args.Y
	}
	return replace(sink, rec, current, original)
}

type attachArgs struct {
	ID       string   `mapstructure:"id"`
	BranchID string   `mapstructure:"branch_id"`
	X        *float64 `mapstructure:"x"`
	Y        *float64 `mapstructure:"y"`
}

// attach moves a step into another branch, appending it to the branch's order.
func (h *stepHandlers) attach(cmd Command, sink ports.EntityStore, rec Recorder) error {
	args, err := Decode[attachArgs](cmd)
	if err != nil {
		return err
	}
	original, err := load[domain.Step](sink, domain.EntityStep, args.ID)
	if err != nil {
		return err
	}
	if args.BranchID == original.BranchID {
		return invalid(cmd, "step %q is already in branch %q", args.ID, args.BranchID)
	}
	if err := h.checkContainment(cmd, sink, original.ID, args.BranchID); err != nil {
		return err
	}

	current := original
	current.Params = cloneParams(original.Params)
	current.BranchID = args.BranchID
	current.Order = nextOrder(sink, args.BranchID)
	if args.X != nil {
		current.Geometry.X = *args.X
	}
	if args.Y != nil {
		current.Geometry.Y = *args.Y
	}
	return replace(sink, rec, current, original)
}

// detach moves a step out of its child branch into the branch of the owning step.
func (h *stepHandlers) detach(cmd Command, sink ports.EntityStore, rec Recorder) error {
	id, err := decodeTarget(cmd)
	if err != nil {
		return err
	}
	original, err := load[domain.Step](sink, domain.EntityStep, id)
	if err != nil {
		return err
	}
	branch, err := load[domain.Branch](sink, domain.EntityBranch, original.BranchID)
	if err != nil {
		return err
	}
	if branch.IsRoot() {
		return invalid(cmd, "step %q is already in the root branch", id)
	}
	owner, err := load[domain.Step](sink, domain.EntityStep, branch.ParentStepID)
	if err != nil {
		return err
	}

	current := original
	current.Params = cloneParams(original.Params)
	current.BranchID = owner.BranchID
	current.Order = nextOrder(sink, owner.BranchID)
	return replace(sink, rec, current, original)
}

// delete removes a step, its relations and every branch it owns.
func (h *stepHandlers) delete(cmd Command, sink ports.EntityStore, rec Recorder) error {
	id, err := decodeTarget(cmd)
	if err != nil {
		return err
	}
	step, err := load[domain.Step](sink, domain.EntityStep, id)
	if err != nil {
		return err
	}
	return deleteStep(sink, rec, step)
}

// checkContainment rejects moving stepID into a branch that does not exist or that the
// step itself (transitively) owns.
func (h *stepHandlers) checkContainment(cmd Command, sink ports.EntityReader, stepID, branchID string) error {
	if branchID == "" {
		return &domain.MissingEntityError{Type: domain.EntityBranch}
	}
	seen := map[string]bool{}
	for id := branchID; id != ""; {
		if seen[id] {
			return invalid(cmd, "branch %q is part of an ownership cycle", id)
		}
		seen[id] = true

		branch, err := load[domain.Branch](sink, domain.EntityBranch, id)
		if err != nil {
			return err
		}
		if branch.ParentStepID == stepID {
			return invalid(cmd, "step %q cannot be placed inside its own branch %q", stepID, branchID)
		}
		if branch.IsRoot() {
			return nil
		}
		owner, err := load[domain.Step](sink, domain.EntityStep, branch.ParentStepID)
		if err != nil {
			return err
		}
		id = owner.BranchID
	}
	return nil
}

func deleteStep(sink ports.EntityStore, rec Recorder, step domain.Step) error {
	rels, err := list[domain.Relation](sink, domain.EntityRelation)
	if err != nil {
		return err
	}
	for _, rel := range rels {
		if rel.ParentStepID == step.ID || rel.ChildStepID == step.ID {
			if err := remove(sink, rec, rel); err != nil {
				return err
			}
		}
	}
	for _, b := range ownedBranches(sink, step.ID) {
		if err := deleteBranch(sink, rec, b); err != nil {
			return err
		}
	}
	return remove(sink, rec, step)
}

func ownedBranches(sink ports.EntityReader, stepID string) []domain.Branch {
	var out []domain.Branch
	for _, snap := range sink.List(domain.EntityBranch) {
		if snap.String("parent_step_id") != stepID {
			continue
		}
		if b, err := domain.FromSnapshot[domain.Branch](snap); err == nil {
			out = append(out, b)
		}
	}
	return out
}

func nextOrder(sink ports.EntityReader, branchID string) int {
	next := 0
	for _, snap := range sink.List(domain.EntityStep) {
		if snap.String("branch_id") != branchID {
			continue
		}
		if s, err := domain.FromSnapshot[domain.Step](snap); err == nil && s.Order >= next {
			next = s.Order + 1
		}
	}
	return next
}

func cloneParams(params map[string]any) map[string]any {
	if params == nil {
		return nil
	}
	snap := domain.Snapshot(params).Clone()
	return map[string]any(snap)
}
