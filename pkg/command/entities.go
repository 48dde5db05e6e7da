package command

import (
	"fmt"
	"maps"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

func load[T domain.Entity](sink ports.EntityReader, kind domain.EntityType, id string) (T, error) {
	var zero T
	if id == "" {
		return zero, &domain.MissingEntityError{Type: kind, ID: id}
	}
	snap, ok := sink.Get(kind, id)
	if !ok {
		return zero, &domain.MissingEntityError{Type: kind, ID: id}
	}
	return domain.FromSnapshot[T](snap)
}

func list[T domain.Entity](sink ports.EntityReader, kind domain.EntityType) ([]T, error) {
	snaps := sink.List(kind)
	out := make([]T, 0, len(snaps))
	for _, snap := range snaps {
		e, err := domain.FromSnapshot[T](snap)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

func put(sink ports.EntityStore, e domain.Entity) error {
	snap, err := domain.ToSnapshot(e)
	if err != nil {
		return err
	}
	sink.Put(e.EntityType(), e.EntityID(), snap)
	return nil
}

func insert(sink ports.EntityStore, rec Recorder, e domain.Entity) error {
	if _, exists := sink.Get(e.EntityType(), e.EntityID()); exists {
		return fmt.Errorf("%s %q already exists", e.EntityType(), e.EntityID())
	}
	if err := put(sink, e); err != nil {
		return err
	}
	return rec.RecordCreate(e)
}

func replace(sink ports.EntityStore, rec Recorder, current, original domain.Entity) error {
	if err := put(sink, current); err != nil {
		return err
	}
	return rec.RecordUpdate(current, original)
}

func remove(sink ports.EntityStore, rec Recorder, e domain.Entity) error {
	sink.Remove(e.EntityType(), e.EntityID())
	return rec.RecordDelete(e)
}

// patch overlays the payload fields of cmd onto original. The id is never patched;
// params and geometry are merged key by key.
func patch[T domain.Entity](cmd Command, original T) (T, error) {
	var zero T
	snap, err := domain.ToSnapshot(original)
	if err != nil {
		return zero, err
	}

	for k, v := range cmd.Fields() {
		incoming, nested := v.(map[string]any)
		if nested && (k == "params" || k == "geometry") {
			merged := map[string]any{}
			if existing, ok := snap[k].(map[string]any); ok {
				maps.Copy(merged, existing)
			}
			maps.Copy(merged, incoming)
			snap[k] = merged
			continue
		}
		snap[k] = v
	}

	out, err := domain.FromSnapshot[T](snap)
	if err != nil {
		return zero, &domain.PayloadError{CommandType: cmd.Type, Err: err}
	}
	return out, nil
}

// target is the payload of commands that address a single entity.
type target struct {
	ID string `mapstructure:"id"`
}

func decodeTarget(cmd Command) (string, error) {
	t, err := Decode[target](cmd)
	if err != nil {
		return "", err
	}
	if t.ID == "" {
		return "", &domain.PayloadError{CommandType: cmd.Type, Err: fmt.Errorf("missing id")}
	}
	return t.ID, nil
}

func invalid(cmd Command, format string, args ...any) error {
	return &domain.PayloadError{CommandType: cmd.Type, Err: fmt.Errorf(format, args...)}
}
