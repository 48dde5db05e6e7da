package history

import (
	"github.com/aretw0/scenaria/pkg/domain"
)

// SyncTicket captures what one save attempt sends to the persistence collaborator.
// Edits made while the save is in flight are not part of the ticket.
type SyncTicket struct {
	Operations []domain.Operation

	entries       []Entry
	seqs          map[uint64]struct{}
	compensations int
	confirmed     bool
}

// Empty reports whether the ticket carries no operation.
func (t *SyncTicket) Empty() bool {
	return len(t.Operations) == 0
}

// BeginSync captures the pending operations. The pointer does not move until ConfirmSync.
// A save that fails is simply never confirmed; the next BeginSync recomputes an
// equal-or-larger operation set from the same pointer.
func (e *Engine) BeginSync() *SyncTicket {
	pending := e.past[e.lastSynced:]
	t := &SyncTicket{
		Operations:    e.PendingOperations(),
		entries:       cloneEntries(pending),
		seqs:          make(map[uint64]struct{}, len(pending)),
		compensations: len(e.compensations),
	}
	for _, entry := range pending {
		t.seqs[entry.Seq] = struct{}{}
	}
	return t
}

// ConfirmSync advances the pointer past the ticket's entries that are still on the undo
// stack. Ticket entries that were undone while the save was in flight are now persisted
// but no longer current, so their inverses are queued ahead of any later compensation.
// Confirming the same ticket twice is a no-op.
func (e *Engine) ConfirmSync(t *SyncTicket) {
	if t == nil || t.confirmed {
		return
	}
	t.confirmed = true

	n := t.compensations
	if n > len(e.compensations) {
		n = len(e.compensations)
	}
	remaining := e.compensations[n:]

	onStack := make(map[uint64]struct{}, len(e.past))
	for _, entry := range e.past {
		onStack[entry.Seq] = struct{}{}
	}
	var undone []domain.EntityChange
	for i := len(t.entries) - 1; i >= 0; i-- {
		if _, ok := onStack[t.entries[i].Seq]; !ok {
			undone = append(undone, inverse(t.entries[i])...)
		}
	}
	e.compensations = append(undone, remaining...)

	k := e.lastSynced
	for k < len(e.past) {
		if _, ok := t.seqs[e.past[k].Seq]; !ok {
			break
		}
		k++
	}
	e.lastSynced = k
}
