package command

import (
	"github.com/aretw0/scenaria/pkg/connection"
	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

type relationHandlers struct {
	deps Deps
}

func (h *relationHandlers) create(cmd Command, sink ports.EntityStore, rec Recorder) error {
	rel, err := Decode[domain.Relation](cmd)
	if err != nil {
		return err
	}
	if rel.ID == "" {
		rel.ID = h.deps.NewID()
	}
	if rel.ScenarioID == "" {
		rel.ScenarioID = cmd.ScenarioID
	}
	if err := h.checkEndpoints(sink, rel, ""); err != nil {
		return err
	}
	if err := insert(sink, rec, rel); err != nil {
		return invalid(cmd, "%v", err)
	}
	return nil
}

func (h *relationHandlers) update(cmd Command, sink ports.EntityStore, rec Recorder) error {
	original, err := load[domain.Relation](sink, domain.EntityRelation, cmd.TargetID())
	if err != nil {
		return err
	}
	current, err := patch(cmd, original)
	if err != nil {
		return err
	}
	if current.ParentStepID != original.ParentStepID || current.ChildStepID != original.ChildStepID {
		if err := h.checkEndpoints(sink, current, current.ID); err != nil {
			return err
		}
	}
	return replace(sink, rec, current, original)
}

func (h *relationHandlers) delete(cmd Command, sink ports.EntityStore, rec Recorder) error {
	id, err := decodeTarget(cmd)
	if err != nil {
		return err
	}
	rel, err := load[domain.Relation](sink, domain.EntityRelation, id)
	if err != nil {
		return err
	}
	return remove(sink, rec, rel)
}

// checkEndpoints requires both endpoints to exist and the connection to be allowed.
// The relation named by ignore is left out of the duplicate check.
func (h *relationHandlers) checkEndpoints(sink ports.EntityReader, rel domain.Relation, ignore string) error {
	for _, id := range []string{rel.ParentStepID, rel.ChildStepID} {
		if _, ok := sink.Get(domain.EntityStep, id); !ok {
			return &domain.MissingEntityError{Type: domain.EntityStep, ID: id}
		}
	}
	return h.deps.Connections.Check(rel.ParentStepID, rel.ChildStepID, StepTypeOf(sink), func() []domain.Relation {
		rels, _ := list[domain.Relation](sink, domain.EntityRelation)
		out := rels[:0]
		for _, r := range rels {
			if r.ID != ignore {
				out = append(out, r)
			}
		}
		return out
	})
}

// StepTypeOf resolves step types from the steps held by sink.
func StepTypeOf(sink ports.EntityReader) connection.NodeTypeFunc {
	return func(id string) (domain.StepType, bool) {
		snap, ok := sink.Get(domain.EntityStep, id)
		if !ok {
			return "", false
		}
		t := snap.String("type")
		return domain.StepType(t), t != ""
	}
}

// RelationsOf lists the relations held by sink.
func RelationsOf(sink ports.EntityReader) connection.EdgesFunc {
	return func() []domain.Relation {
		rels, _ := list[domain.Relation](sink, domain.EntityRelation)
		return rels
	}
}
