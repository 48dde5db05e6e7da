package command

import (
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

type branchHandlers struct {
	deps Deps
}

func (h *branchHandlers) create(cmd Command, sink ports.EntityStore, rec Recorder) error {
	branch, err := Decode[domain.Branch](cmd)
	if err != nil {
		return err
	}
	if branch.ID == "" {
		branch.ID = h.deps.NewID()
	}
	if branch.ScenarioID == "" {
		branch.ScenarioID = cmd.ScenarioID
	}

	if branch.IsRoot() {
		if root := rootBranchID(sink); root != "" {
			return invalid(cmd, "scenario already has root branch %q", root)
		}
	} else {
		owner, err := load[domain.Step](sink, domain.EntityStep, branch.ParentStepID)
		if err != nil {
			return err
		}
		if !h.deps.StepTypes.CanHaveChildBranches(owner.Type) {
			return invalid(cmd, "step %q of type %q cannot own branches", owner.ID, owner.Type)
		}
		if _, ok := cmd.Payload["order"]; !ok {
			branch.Order = len(ownedBranches(sink, owner.ID))
		}
	}
	if err := checkBranchGeometry(cmd, branch.Geometry, h.deps.StrictGeometry); err != nil {
		return err
	}

	if err := insert(sink, rec, branch); err != nil {
		return invalid(cmd, "%v", err)
	}
	return nil
}

func (h *branchHandlers) update(cmd Command, sink ports.EntityStore, rec Recorder) error {
	original, err := load[domain.Branch](sink, domain.EntityBranch, cmd.TargetID())
	if err != nil {
		return err
	}
	current, err := patch(cmd, original)
	if err != nil {
		return err
	}
	if current.ParentStepID != original.ParentStepID {
		return invalid(cmd, "the owner of branch %q cannot change", current.ID)
	}
	if err := checkBranchGeometry(cmd, current.Geometry, h.deps.StrictGeometry); err != nil {
		return err
	}
	return replace(sink, rec, current, original)
}

type resizeArgs struct {
	ID     string   `mapstructure:"id"`
	Width  float64  `mapstructure:"width"`
	Height float64  `mapstructure:"height"`
	X      *float64 `mapstructure:"x"`
	Y      *float64 `mapstructure:"y"`
}

// resize sets the laid-out size of a branch. Width and height must be positive.
func (h *branchHandlers) resize(cmd Command, sink ports.EntityStore, rec Recorder) error {
	args, err := Decode[resizeArgs](cmd)
	if err != nil {
		return err
	}
	original, err := load[domain.Branch](sink, domain.EntityBranch, args.ID)
	if err != nil {
		return err
	}

	current := original
	current.Geometry.Width = args.Width
	current.Geometry.Height = args.Height
	if args.X != nil {
		current.Geometry.X = *args.X
	}
	if args.Y != nil {
		current.Geometry.Y = *args.Y
	}
	if !current.Geometry.Valid() {
		return invalid(cmd, "branch %q must have a positive size, got %gx%g", args.ID, args.Width, args.Height)
	}
	return replace(sink, rec, current, original)
}

// delete removes a child branch and everything it contains. The root branch cannot be deleted.
func (h *branchHandlers) delete(cmd Command, sink ports.EntityStore, rec Recorder) error {
	id, err := decodeTarget(cmd)
	if err != nil {
		return err
	}
	branch, err := load[domain.Branch](sink, domain.EntityBranch, id)
	if err != nil {
		return err
	}
	if branch.IsRoot() {
		return invalid(cmd, "the root branch %q cannot be deleted", id)
	}
	return deleteBranch(sink, rec, branch)
}

func deleteBranch(sink ports.EntityStore, rec Recorder, branch domain.Branch) error {
	steps, err := list[domain.Step](sink, domain.EntityStep)
	if err != nil {
		return err
	}
	for _, s := range steps {
		if s.BranchID != branch.ID {
			continue
		}
		// An earlier cascade may already have removed it.
		if _, ok := sink.Get(domain.EntityStep, s.ID); !ok {
			continue
		}
		if err := deleteStep(sink, rec, s); err != nil {
			return err
		}
	}
	return remove(sink, rec, branch)
}

func checkBranchGeometry(cmd Command, g domain.Geometry, strict bool) error {
	if !strict && !g.Mounted() {
		return nil
	}
	if !g.Valid() {
		return invalid(cmd, "branch geometry must have a positive size, got %gx%g", g.Width, g.Height)
	}
	return nil
}
