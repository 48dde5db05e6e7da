package history

import (
	"github.com/aretw0/scenaria/pkg/domain"
)

// Optimize merges successive changes of the same entity into one net change.
//
//	create → update   = create with the later snapshot
//	create → delete   = nothing
//	update → update   = update from the earliest original to the latest current
//	update → delete   = delete of the earliest original
//	delete → anything = create (the earliest original is kept for undo)
//
// Changes whose original and current are equal are dropped. The result keeps the
// position of each entity's first change, except deletes, which move to the position
// of the entity's last change so dependants are removed first.
func Optimize(changes []domain.EntityChange) []domain.EntityChange {
	type slot struct {
		change domain.EntityChange
		live   bool
	}

	var slots []*slot
	index := make(map[domain.EntityKey]*slot)

	for _, c := range changes {
		c = c.Clone()
		key := c.Key()

		prev, ok := index[key]
		if !ok {
			s := &slot{change: c, live: true}
			slots = append(slots, s)
			index[key] = s
			continue
		}

		merged, keep := merge(prev.change, c)
		if !keep {
			prev.live = false
			delete(index, key)
			continue
		}
		if merged.Action == domain.ActionDelete {
			prev.live = false
			s := &slot{change: merged, live: true}
			slots = append(slots, s)
			index[key] = s
			continue
		}
		prev.change = merged
	}

	out := make([]domain.EntityChange, 0, len(slots))
	for _, s := range slots {
		if !s.live || isNoop(s.change) {
			continue
		}
		out = append(out, s.change)
	}
	return out
}

// merge folds next into prev. keep is false when the pair cancels out.
func merge(prev, next domain.EntityChange) (domain.EntityChange, bool) {
	merged := next
	switch prev.Action {
	case domain.ActionCreate:
		if next.Action == domain.ActionDelete {
			return domain.EntityChange{}, false
		}
		merged.Action = domain.ActionCreate
		merged.Original = nil
	case domain.ActionUpdate:
		merged.Original = prev.Original
		if next.Action == domain.ActionCreate {
			merged.Action = domain.ActionUpdate
		}
	case domain.ActionDelete:
		merged.Original = prev.Original
		if next.Action != domain.ActionDelete {
			merged.Action = domain.ActionCreate
		}
	}
	return merged, true
}

func isNoop(c domain.EntityChange) bool {
	if c.Original == nil || c.Current == nil {
		return false
	}
	return domain.SnapshotsEqual(c.Original, c.Current)
}

// BuildOperationsFromHistory returns the deduplicated per-entity operations of the entries
// in past at or after lastSyncedIndex. Entries in future are undone state and never
// contribute operations.
func BuildOperationsFromHistory(past []Entry, lastSyncedIndex int, future []Entry) []domain.Operation {
	if lastSyncedIndex < 0 {
		lastSyncedIndex = 0
	}
	if lastSyncedIndex > len(past) {
		lastSyncedIndex = len(past)
	}

	var changes []domain.EntityChange
	for _, entry := range past[lastSyncedIndex:] {
		changes = append(changes, entry.Changes...)
	}
	return toOperations(Optimize(changes))
}

func toOperations(changes []domain.EntityChange) []domain.Operation {
	ops := make([]domain.Operation, 0, len(changes))
	for _, c := range changes {
		op := domain.Operation{
			EntityType: c.EntityType,
			EntityID:   c.EntityID,
			Action:     c.Action,
		}
		if c.Action != domain.ActionDelete {
			op.Payload = c.Current.Clone()
		}
		ops = append(ops, op)
	}
	return ops
}
