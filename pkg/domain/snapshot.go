package domain

import (
	"fmt"
	"reflect"

	"github.com/mitchellh/mapstructure"
)

// Snapshot is the untyped, field-addressable view of an entity.
// Keys follow the mapstructure tags of the typed entities.
type Snapshot map[string]any

// FieldID is the identifier key of every snapshot. It is never reported as a diff.
const FieldID = "id"

// ToSnapshot encodes a typed entity into a detached snapshot.
func ToSnapshot(e Entity) (Snapshot, error) {
	if e == nil {
		return nil, nil
	}
	out := make(map[string]any)
	if err := mapstructure.Decode(e, &out); err != nil {
		return nil, fmt.Errorf("failed to encode %s %q: %w", e.EntityType(), e.EntityID(), err)
	}
	return Snapshot(out).Clone(), nil
}

// FromSnapshot decodes a snapshot into a typed entity.
// Numeric fields are decoded leniently so snapshots that went through JSON still decode.
func FromSnapshot[T any](s Snapshot) (T, error) {
	var out T
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &out,
		WeaklyTypedInput: true,
		TagName:          "mapstructure",
	})
	if err != nil {
		return out, err
	}
	if err := decoder.Decode(map[string]any(s.Clone())); err != nil {
		return out, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return out, nil
}

// Canonical re-encodes a snapshot of the given entity type through its typed form.
// Snapshots loaded from storage are canonicalized so they compare equal to freshly recorded ones.
func Canonical(kind EntityType, s Snapshot) (Snapshot, error) {
	var (
		e   Entity
		err error
	)
	switch kind {
	case EntityScenario:
		e, err = FromSnapshot[Scenario](s)
	case EntityBranch:
		e, err = FromSnapshot[Branch](s)
	case EntityStep:
		e, err = FromSnapshot[Step](s)
	case EntityRelation:
		e, err = FromSnapshot[Relation](s)
	default:
		return nil, fmt.Errorf("unknown entity type %q", kind)
	}
	if err != nil {
		return nil, err
	}
	return ToSnapshot(e)
}

// ID returns the identifier stored in the snapshot.
func (s Snapshot) ID() string {
	return s.String(FieldID)
}

// String returns a string field, or "" when absent or not string-kinded.
// Named string types such as StepType are accepted.
func (s Snapshot) String(key string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return ""
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.String {
		return ""
	}
	return rv.String()
}

// Clone returns a deep copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	if s == nil {
		return nil
	}
	return cloneMap(s)
}

func cloneMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneValue(v)
	}
	return out
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case Snapshot:
		return Snapshot(cloneMap(t))
	case map[string]any:
		if t == nil {
			return t
		}
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			out[i] = cloneValue(item)
		}
		return out
	case []string:
		return append([]string(nil), t...)
	default:
		return v
	}
}
