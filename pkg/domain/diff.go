package domain

import (
	"reflect"
	"sort"
)

// FieldDiff is one changed field between two snapshots of the same entity.
// A nil OldValue on a creation (or NewValue on a deletion) means the field did not exist.
type FieldDiff struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// VisualChange pairs an EntityChange with its field diffs for audit views.
type VisualChange struct {
	Change EntityChange `json:"change"`
	Diffs  []FieldDiff  `json:"diffs"`
}

// CalculateDiff returns the field-level differences between original and current.
// The identifier field is never reported. Results are sorted by field name.
//
//   - original nil: every field of current is reported as created.
//   - current nil: every field of original is reported as removed.
//   - both set: the union of keys is compared with deep equality. A key holding nil
//     on one side and missing on the other is not a difference.
func CalculateDiff(original, current Snapshot) []FieldDiff {
	var diffs []FieldDiff

	switch {
	case original == nil && current == nil:
		return nil
	case original == nil:
		for k, v := range current {
			if k == FieldID {
				continue
			}
			diffs = append(diffs, FieldDiff{Field: k, NewValue: v})
		}
	case current == nil:
		for k, v := range original {
			if k == FieldID {
				continue
			}
			diffs = append(diffs, FieldDiff{Field: k, OldValue: v})
		}
	default:
		for k, newVal := range current {
			if k == FieldID {
				continue
			}
			oldVal, exists := original[k]
			if !exists && newVal == nil {
				continue
			}
			if !exists || !reflect.DeepEqual(oldVal, newVal) {
				diffs = append(diffs, FieldDiff{Field: k, OldValue: oldVal, NewValue: newVal})
			}
		}
		for k, oldVal := range original {
			if k == FieldID {
				continue
			}
			if _, exists := current[k]; !exists && oldVal != nil {
				diffs = append(diffs, FieldDiff{Field: k, OldValue: oldVal})
			}
		}
	}

	sort.Slice(diffs, func(i, j int) bool { return diffs[i].Field < diffs[j].Field })
	return diffs
}

// SnapshotsEqual reports whether two snapshots differ in nothing but their identifier.
func SnapshotsEqual(a, b Snapshot) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return len(CalculateDiff(a, b)) == 0
}

// ToVisual pairs a change with its diffs.
func ToVisual(change EntityChange) VisualChange {
	return VisualChange{
		Change: change,
		Diffs:  CalculateDiff(change.Original, change.Current),
	}
}

// ToVisuals maps changes to visual changes, newest first.
func ToVisuals(changes []EntityChange) []VisualChange {
	out := make([]VisualChange, 0, len(changes))
	for _, c := range changes {
		out = append(out, ToVisual(c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Change.Timestamp.After(out[j].Change.Timestamp)
	})
	return out
}
