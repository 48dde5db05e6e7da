package history

import (
	"time"

	"github.com/aretw0/scenaria/pkg/domain"
)

// Buffer collects the changes of one command before they reach the engine.
// The dispatcher hands a Buffer to a handler and only records it once the handler succeeds.
type Buffer struct {
	changes []domain.EntityChange
	clock   func() time.Time
	newID   func() string
}

func (b *Buffer) RecordCreate(entity domain.Entity) error {
	return b.add(domain.ActionCreate, nil, entity)
}

func (b *Buffer) RecordUpdate(current, original domain.Entity) error {
	return b.add(domain.ActionUpdate, original, current)
}

func (b *Buffer) RecordDelete(entity domain.Entity) error {
	return b.add(domain.ActionDelete, entity, nil)
}

func (b *Buffer) add(action domain.ChangeAction, original, current domain.Entity) error {
	c, err := newChange(b.clock, b.newID, action, original, current)
	if err != nil {
		return err
	}
	b.changes = append(b.changes, c)
	return nil
}

// Changes returns the collected changes in recording order.
func (b *Buffer) Changes() []domain.EntityChange {
	return b.changes
}

// Len returns the number of collected changes.
func (b *Buffer) Len() int {
	return len(b.changes)
}

func newChange(clock func() time.Time, newID func() string, action domain.ChangeAction, original, current domain.Entity) (domain.EntityChange, error) {
	ref := current
	if ref == nil {
		ref = original
	}

	c := domain.EntityChange{
		ID:         newID(),
		EntityType: ref.EntityType(),
		EntityID:   ref.EntityID(),
		Action:     action,
		Timestamp:  clock(),
	}

	var err error
	if original != nil {
		if c.Original, err = domain.ToSnapshot(original); err != nil {
			return c, err
		}
	}
	if current != nil {
		if c.Current, err = domain.ToSnapshot(current); err != nil {
			return c, err
		}
	}
	return c, nil
}
