package engine

import (
	"fmt"
	"slices"

	"github.com/roach88/ruleunit/internal/ir"
)

// StoredFact pairs a fact with its identity.
type StoredFact struct {
	ID   ir.FactID `json:"id"`
	Fact ir.Fact   `json:"fact"`
}

// factListener receives every store mutation after it is applied.
// The matcher implements it so activations stay current without re-scans.
type factListener interface {
	factInserted(id ir.FactID, f ir.Fact)
	factRetracted(id ir.FactID, f ir.Fact)
	factUpdated(id ir.FactID, old, updated ir.Fact)
}

// FactStore holds the facts of one session.
//
// Identities come from an incrementing counter and are never reused, even
// after retraction. Facts are cloned on the way in and on the way out, so
// callers can never alias stored field maps.
//
// INVARIANTS:
//   - byType[t] is sorted ascending and lists exactly the live facts of type t
//   - next is at least the largest id ever stored
//   - retired holds every retracted id; InsertWithID refuses them
type FactStore struct {
	facts    map[ir.FactID]ir.Fact
	byType   map[string][]ir.FactID
	retired  map[ir.FactID]struct{}
	next     ir.FactID
	listener factListener
}

// NewFactStore creates an empty store.
func NewFactStore() *FactStore {
	return &FactStore{
		facts:   make(map[ir.FactID]ir.Fact),
		byType:  make(map[string][]ir.FactID),
		retired: make(map[ir.FactID]struct{}),
	}
}

func (s *FactStore) watch(l factListener) {
	s.listener = l
}

// Insert stores f under a fresh identity. It always succeeds.
func (s *FactStore) Insert(f ir.Fact) ir.FactID {
	s.next++
	s.put(s.next, f)
	return s.next
}

// InsertWithID stores f under a caller-chosen identity.
// It fails with DUPLICATE_IDENTITY if id is live or was retracted earlier,
// since identities are never reused.
func (s *FactStore) InsertWithID(id ir.FactID, f ir.Fact) error {
	if id <= 0 {
		return newInvalidArgumentError("", fmt.Sprintf("fact id must be positive, got %d", id))
	}
	if _, ok := s.facts[id]; ok {
		return newDuplicateIdentityError("", id)
	}
	if _, ok := s.retired[id]; ok {
		return newDuplicateIdentityError("", id)
	}
	if id > s.next {
		s.next = id
	}
	s.put(id, f)
	return nil
}

func (s *FactStore) put(id ir.FactID, f ir.Fact) {
	stored := f.Clone()
	s.facts[id] = stored
	s.byType[f.Type] = insertSorted(s.byType[f.Type], id)
	if s.listener != nil {
		s.listener.factInserted(id, stored)
	}
}

// Retract removes the fact. Unknown ids are a no-op returning false.
func (s *FactStore) Retract(id ir.FactID) bool {
	f, ok := s.facts[id]
	if !ok {
		return false
	}
	delete(s.facts, id)
	s.retired[id] = struct{}{}
	s.byType[f.Type] = removeSorted(s.byType[f.Type], id)
	if len(s.byType[f.Type]) == 0 {
		delete(s.byType, f.Type)
	}
	if s.listener != nil {
		s.listener.factRetracted(id, f)
	}
	return true
}

// Update replaces the fields of a live fact, keeping its identity.
// Unknown ids return false. Changing the fact type is rejected.
func (s *FactStore) Update(id ir.FactID, f ir.Fact) (bool, error) {
	old, ok := s.facts[id]
	if !ok {
		return false, nil
	}
	if f.Type != old.Type {
		return false, newInvalidArgumentError("", fmt.Sprintf("update of %s cannot change type %q to %q", id, old.Type, f.Type))
	}
	updated := f.Clone()
	s.facts[id] = updated
	if s.listener != nil {
		s.listener.factUpdated(id, old, updated)
	}
	return true, nil
}

// Get returns a copy of the fact.
func (s *FactStore) Get(id ir.FactID) (ir.Fact, bool) {
	f, ok := s.facts[id]
	if !ok {
		return ir.Fact{}, false
	}
	return f.Clone(), true
}

// Scan returns copies of all facts of a type in ascending id order.
// An empty type scans every fact.
func (s *FactStore) Scan(typ string) []StoredFact {
	var ids []ir.FactID
	if typ == "" {
		ids = s.allIDs()
	} else {
		ids = s.byType[typ]
	}
	out := make([]StoredFact, 0, len(ids))
	for _, id := range ids {
		out = append(out, StoredFact{ID: id, Fact: s.facts[id].Clone()})
	}
	return out
}

// Len returns the number of live facts.
func (s *FactStore) Len() int {
	return len(s.facts)
}

// Types returns the fact types currently present, sorted.
func (s *FactStore) Types() []string {
	out := make([]string, 0, len(s.byType))
	for t := range s.byType {
		out = append(out, t)
	}
	slices.Sort(out)
	return out
}

func (s *FactStore) allIDs() []ir.FactID {
	ids := make([]ir.FactID, 0, len(s.facts))
	for id := range s.facts {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// fact returns the stored fact without copying. Engine-internal readers
// (matcher, query) never mutate it.
func (s *FactStore) fact(id ir.FactID) (ir.Fact, bool) {
	f, ok := s.facts[id]
	return f, ok
}

// ids returns the sorted id list of a type without copying.
func (s *FactStore) ids(typ string) []ir.FactID {
	return s.byType[typ]
}

func insertSorted(ids []ir.FactID, id ir.FactID) []ir.FactID {
	i, found := slices.BinarySearch(ids, id)
	if found {
		return ids
	}
	return slices.Insert(ids, i, id)
}

func removeSorted(ids []ir.FactID, id ir.FactID) []ir.FactID {
	i, found := slices.BinarySearch(ids, id)
	if !found {
		return ids
	}
	return slices.Delete(ids, i, i+1)
}
