package domain

import (
	"fmt"
	"sort"
)

// Next returns the document that results from applying ops, with the version bumped.
// Creates are upserts and deletes of absent entities are ignored. d is left untouched.
func (d Document) Next(ops []Operation) (Document, error) {
	records := make(map[EntityKey]Snapshot, len(d.Records)+len(ops))
	for _, rec := range d.Records {
		records[EntityKey{Type: rec.EntityType, ID: rec.EntityID}] = rec.Snapshot
	}
	for _, op := range ops {
		switch op.Action {
		case ActionCreate, ActionUpdate:
			records[op.Key()] = op.Payload.Clone()
		case ActionDelete:
			delete(records, op.Key())
		default:
			return Document{}, fmt.Errorf("unsupported action %q", op.Action)
		}
	}

	next := Document{ScenarioID: d.ScenarioID, Version: d.Version + 1, Records: make([]Record, 0, len(records))}
	for key, snap := range records {
		next.Records = append(next.Records, Record{EntityType: key.Type, EntityID: key.ID, Snapshot: snap})
	}
	SortRecords(next.Records)
	return next, nil
}

// SortRecords orders records by entity type then id.
func SortRecords(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		if records[i].EntityType != records[j].EntityType {
			return records[i].EntityType < records[j].EntityType
		}
		return records[i].EntityID < records[j].EntityID
	})
}
