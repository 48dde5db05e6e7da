package memory

import (
	"sort"
	"sync"

	"github.com/aretw0/scenaria/pkg/domain"
	"github.com/aretw0/scenaria/pkg/ports"
)

// Store implements ports.EntityStore in memory.
// It is the committed entity state of one editing session. Safe for concurrent use.
type Store struct {
	data map[domain.EntityType]map[string]domain.Snapshot
	mu   sync.RWMutex
}

// NewStore creates a new empty committed store.
func NewStore() *Store {
	return &Store{
		data: make(map[domain.EntityType]map[string]domain.Snapshot),
	}
}

// Get returns a copy of the snapshot so callers can't mutate the store by reference.
func (s *Store) Get(kind domain.EntityType, id string) (domain.Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap, ok := s.data[kind][id]
	if !ok {
		return nil, false
	}
	return snap.Clone(), true
}

// List returns copies of all snapshots of a type, ordered by id.
func (s *Store) List(kind domain.EntityType) []domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	bucket := s.data[kind]
	out := make([]domain.Snapshot, 0, len(bucket))
	for _, id := range sortedKeys(bucket) {
		out = append(out, bucket[id].Clone())
	}
	return out
}

// Put stores a copy of the snapshot.
func (s *Store) Put(kind domain.EntityType, id string, snapshot domain.Snapshot) {
	copied := snapshot.Clone()

	s.mu.Lock()
	defer s.mu.Unlock()
	bucket, ok := s.data[kind]
	if !ok {
		bucket = make(map[string]domain.Snapshot)
		s.data[kind] = bucket
	}
	bucket[id] = copied
}

// Remove deletes the entity if present.
func (s *Store) Remove(kind domain.EntityType, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data[kind], id)
}

// Len returns the number of stored entities across all types.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, bucket := range s.data {
		n += len(bucket)
	}
	return n
}

// Export returns every stored entity as records, ordered by type then id.
func (s *Store) Export() []domain.Record {
	s.mu.RLock()
	defer s.mu.RUnlock()

	kinds := make([]string, 0, len(s.data))
	for kind := range s.data {
		kinds = append(kinds, string(kind))
	}
	sort.Strings(kinds)

	var out []domain.Record
	for _, k := range kinds {
		kind := domain.EntityType(k)
		bucket := s.data[kind]
		for _, id := range sortedKeys(bucket) {
			out = append(out, domain.Record{EntityType: kind, EntityID: id, Snapshot: bucket[id].Clone()})
		}
	}
	return out
}

// Begin opens an overlay on top of the store.
func (s *Store) Begin() *Tx {
	return NewTx(s)
}

var _ ports.EntityStore = (*Store)(nil)

// Tx is an uncommitted write layer over a parent store.
// Reads see the overlay first; Commit flushes the writes to the parent, Discard drops them.
// A Tx may itself be the parent of another Tx. A Tx is not safe for concurrent use.
type Tx struct {
	parent ports.EntityStore
	writes map[domain.EntityKey]domain.Snapshot // nil snapshot marks a removal
	order  []domain.EntityKey
	done   bool
}

// NewTx opens an overlay on top of any entity store.
func NewTx(parent ports.EntityStore) *Tx {
	return &Tx{
		parent: parent,
		writes: make(map[domain.EntityKey]domain.Snapshot),
	}
}

func (t *Tx) Get(kind domain.EntityType, id string) (domain.Snapshot, bool) {
	key := domain.EntityKey{Type: kind, ID: id}
	if snap, ok := t.writes[key]; ok {
		if snap == nil {
			return nil, false
		}
		return snap.Clone(), true
	}
	return t.parent.Get(kind, id)
}

func (t *Tx) List(kind domain.EntityType) []domain.Snapshot {
	merged := make(map[string]domain.Snapshot)
	for _, snap := range t.parent.List(kind) {
		merged[snap.ID()] = snap
	}
	for key, snap := range t.writes {
		if key.Type != kind {
			continue
		}
		if snap == nil {
			delete(merged, key.ID)
			continue
		}
		merged[key.ID] = snap.Clone()
	}

	out := make([]domain.Snapshot, 0, len(merged))
	for _, id := range sortedKeys(merged) {
		out = append(out, merged[id])
	}
	return out
}

func (t *Tx) Put(kind domain.EntityType, id string, snapshot domain.Snapshot) {
	t.record(domain.EntityKey{Type: kind, ID: id}, snapshot.Clone())
}

func (t *Tx) Remove(kind domain.EntityType, id string) {
	t.record(domain.EntityKey{Type: kind, ID: id}, nil)
}

func (t *Tx) record(key domain.EntityKey, snap domain.Snapshot) {
	if _, seen := t.writes[key]; !seen {
		t.order = append(t.order, key)
	}
	t.writes[key] = snap
}

// Pending returns the number of entities touched by the overlay.
func (t *Tx) Pending() int {
	return len(t.writes)
}

// Commit flushes the overlay into the parent in first-write order.
// Committing twice, or after Discard, is a no-op.
func (t *Tx) Commit() {
	if t.done {
		return
	}
	t.done = true
	for _, key := range t.order {
		snap := t.writes[key]
		if snap == nil {
			t.parent.Remove(key.Type, key.ID)
			continue
		}
		t.parent.Put(key.Type, key.ID, snap)
	}
	t.reset()
}

// Discard drops every pending write.
func (t *Tx) Discard() {
	t.done = true
	t.reset()
}

func (t *Tx) reset() {
	t.writes = make(map[domain.EntityKey]domain.Snapshot)
	t.order = nil
}

var _ ports.EntityStore = (*Tx)(nil)

func sortedKeys(m map[string]domain.Snapshot) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
