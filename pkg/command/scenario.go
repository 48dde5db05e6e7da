package command

import (
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

type scenarioHandlers struct {
	deps Deps
}

// create adds the scenario together with its root branch.
func (h *scenarioHandlers) create(cmd Command, sink ports.EntityStore, rec Recorder) error {
	sc, err := Decode[domain.Scenario](cmd)
	if err != nil {
		return err
	}
	if sc.ID == "" {
		sc.ID = cmd.ScenarioID
	}
	if sc.ID == "" {
		sc.ID = h.deps.NewID()
	}
	if sc.RootBranchID == "" {
		sc.RootBranchID = h.deps.NewID()
	}
	if sc.Status == "" {
		sc.Status = domain.StatusDraft
	}
	if existing := sink.List(domain.EntityScenario); len(existing) > 0 {
		return invalid(cmd, "store already holds scenario %q", existing[0].ID())
	}

	root := domain.Branch{ID: sc.RootBranchID, ScenarioID: sc.ID}
	if g, ok := cmd.Payload["geometry"]; ok {
		if err := decodeInto(g, &root.Geometry); err != nil {
			return invalid(cmd, "geometry: %v", err)
		}
	}
	if err := checkBranchGeometry(cmd, root.Geometry, h.deps.StrictGeometry); err != nil {
		return err
	}

	if err := insert(sink, rec, sc); err != nil {
		return invalid(cmd, "%v", err)
	}
	if err := insert(sink, rec, root); err != nil {
		return invalid(cmd, "%v", err)
	}
	return nil
}

func (h *scenarioHandlers) update(cmd Command, sink ports.EntityStore, rec Recorder) error {
	id := cmd.TargetID()
	if id == "" {
		id = cmd.ScenarioID
	}
	original, err := load[domain.Scenario](sink, domain.EntityScenario, id)
	if err != nil {
		return err
	}
	current, err := patch(cmd, original)
	if err != nil {
		return err
	}
	if current.RootBranchID != original.RootBranchID {
		return invalid(cmd, "root branch of a scenario cannot change")
	}
	switch current.Status {
	case domain.StatusDraft, domain.StatusPublished, domain.StatusArchived:
	default:
		return invalid(cmd, "unknown status %q", current.Status)
	}
	return replace(sink, rec, current, original)
}

// rootBranchID returns the root branch of the scenario in sink, if any.
func rootBranchID(sink ports.EntityReader) string {
	for _, snap := range sink.List(domain.EntityScenario) {
		if id := snap.String("root_branch_id"); id != "" {
			return id
		}
	}
	return ""
}
