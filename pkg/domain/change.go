package domain

import "time"

// ChangeAction is the kind of mutation recorded by an EntityChange.
type ChangeAction string

const (
	ActionCreate ChangeAction = "create"
	ActionUpdate ChangeAction = "update"
	ActionDelete ChangeAction = "delete"
)

// EntityKey addresses one entity across families.
type EntityKey struct {
	Type EntityType `json:"entity_type"`
	ID   string     `json:"entity_id"`
}

func (k EntityKey) String() string {
	return string(k.Type) + ":" + k.ID
}

// EntityChange is the before/after snapshot pair backing one undoable mutation.
// Original is nil for a creation and Current is nil for a deletion.
type EntityChange struct {
	ID         string       `json:"id"`
	EntityType EntityType   `json:"entity_type"`
	EntityID   string       `json:"entity_id"`
	Action     ChangeAction `json:"action"`
	Timestamp  time.Time    `json:"timestamp"`
	Original   Snapshot     `json:"original,omitempty"`
	Current    Snapshot     `json:"current,omitempty"`
}

// Key returns the entity address of the change.
func (c EntityChange) Key() EntityKey {
	return EntityKey{Type: c.EntityType, ID: c.EntityID}
}

// Clone returns a copy whose snapshots do not alias the receiver's.
func (c EntityChange) Clone() EntityChange {
	c.Original = c.Original.Clone()
	c.Current = c.Current.Clone()
	return c
}

// Inverse returns the change that reverts c.
func (c EntityChange) Inverse() EntityChange {
	inv := c.Clone()
	inv.Original, inv.Current = inv.Current, inv.Original
	switch c.Action {
	case ActionCreate:
		inv.Action = ActionDelete
	case ActionDelete:
		inv.Action = ActionCreate
	}
	return inv
}

// Operation is one net, per-entity persistence instruction.
// Payload is the entity's current snapshot, or nil for a delete.
type Operation struct {
	EntityType EntityType   `json:"entity_type"`
	EntityID   string       `json:"entity_id"`
	Action     ChangeAction `json:"action"`
	Payload    Snapshot     `json:"payload,omitempty"`
}

// Key returns the entity address of the operation.
func (o Operation) Key() EntityKey {
	return EntityKey{Type: o.EntityType, ID: o.EntityID}
}

// Record is one stored entity as returned by a repository.
type Record struct {
	EntityType EntityType `json:"entity_type"`
	EntityID   string     `json:"entity_id"`
	Snapshot   Snapshot   `json:"snapshot"`
}

// Document is the persisted form of one scenario.
type Document struct {
	ScenarioID string   `json:"scenario_id"`
	Version    int      `json:"version"`
	Records    []Record `json:"records"`
}
