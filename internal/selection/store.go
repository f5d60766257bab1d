// Package selection holds the page-independent set of selected companies.
package selection

import (
	"slices"
	"sync"

	"github.com/mmcdole/rolodex/internal/domain"
)

// State is a point-in-time copy of the selection
type State struct {
	IDs          []domain.CompanyID
	AllSelected  bool
	TotalInScope int
}

// Store tracks which company ids are selected, independent of which page is
// rendered. It performs no I/O: "select all" callers fetch the id list first.
type Store struct {
	mu           sync.RWMutex
	selected     map[domain.CompanyID]struct{}
	allSelected  bool
	totalInScope int

	anchor    domain.CompanyID // last toggled id, for range selection
	hasAnchor bool

	observer domain.SelectionObserver
}

// NewStore creates an empty selection. observer may be nil.
func NewStore(observer domain.SelectionObserver) *Store {
	if observer == nil {
		observer = domain.NoOpObserver{}
	}
	return &Store{
		selected: make(map[domain.CompanyID]struct{}),
		observer: observer,
	}
}

// Toggle flips membership of id. Any change after a select-all drops the
// all-selected claim but keeps the rest of the set ("all except").
func (s *Store) Toggle(id domain.CompanyID) {
	s.mu.Lock()
	if _, ok := s.selected[id]; ok {
		delete(s.selected, id)
	} else {
		s.selected[id] = struct{}{}
		s.growTotalLocked()
	}
	s.allSelected = false
	s.anchor = id
	s.hasAnchor = true
	change := s.changeLocked()
	s.mu.Unlock()

	s.observer.OnSelectionChanged(change)
}

// SelectAll replaces the selection with ids and marks it as "everything in scope"
func (s *Store) SelectAll(ids []domain.CompanyID) {
	s.mu.Lock()
	s.selected = make(map[domain.CompanyID]struct{}, len(ids))
	for _, id := range ids {
		s.selected[id] = struct{}{}
	}
	s.allSelected = true
	s.growTotalLocked()
	change := s.changeLocked()
	s.mu.Unlock()

	s.observer.OnSelectionChanged(change)
}

// SelectRange adds every id between anchor and target (inclusive) in the
// rendered order. Returns false without changes if either id is not visible.
func (s *Store) SelectRange(ordered []domain.CompanyID, anchor, target domain.CompanyID) bool {
	from := slices.Index(ordered, anchor)
	to := slices.Index(ordered, target)
	if from < 0 || to < 0 {
		return false
	}
	if from > to {
		from, to = to, from
	}

	s.mu.Lock()
	added := 0
	for _, id := range ordered[from : to+1] {
		if _, ok := s.selected[id]; !ok {
			s.selected[id] = struct{}{}
			added++
		}
	}
	if added == 0 {
		s.mu.Unlock()
		return true
	}
	s.allSelected = false
	s.growTotalLocked()
	change := s.changeLocked()
	s.mu.Unlock()

	s.observer.OnSelectionChanged(change)
	return true
}

// Clear empties the selection
func (s *Store) Clear() {
	s.mu.Lock()
	s.selected = make(map[domain.CompanyID]struct{})
	s.allSelected = false
	s.hasAnchor = false
	change := s.changeLocked()
	s.mu.Unlock()

	s.observer.OnSelectionChanged(change)
}

// ResetScope is called when the active collection or filter changes:
// the selection is cleared and the new server-reported total recorded.
func (s *Store) ResetScope(total int) {
	s.mu.Lock()
	s.totalInScope = max(total, 0)
	s.mu.Unlock()
	s.Clear()
}

// SetTotalInScope refreshes the server-reported count without clearing
func (s *Store) SetTotalInScope(total int) {
	s.mu.Lock()
	s.totalInScope = max(total, 0)
	s.growTotalLocked()
	s.mu.Unlock()
}

// Count returns the number of selected ids
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.selected)
}

// IDs returns a sorted copy of the selected ids
func (s *Store) IDs() []domain.CompanyID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.idsLocked()
}

// IsSelected checks if id is selected
func (s *Store) IsSelected(id domain.CompanyID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.selected[id]
	return ok
}

// AllSelected reports whether the selection claims the whole scope
func (s *Store) AllSelected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.allSelected
}

// Anchor returns the last toggled id
func (s *Store) Anchor() (domain.CompanyID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.anchor, s.hasAnchor
}

// State returns a snapshot of the whole selection
func (s *Store) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return State{
		IDs:          s.idsLocked(),
		AllSelected:  s.allSelected,
		TotalInScope: s.totalInScope,
	}
}

func (s *Store) idsLocked() []domain.CompanyID {
	ids := make([]domain.CompanyID, 0, len(s.selected))
	for id := range s.selected {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// growTotalLocked keeps len(selected) <= totalInScope when the server count is stale
func (s *Store) growTotalLocked() {
	if n := len(s.selected); n > s.totalInScope {
		s.totalInScope = n
	}
}

func (s *Store) changeLocked() domain.SelectionChange {
	return domain.SelectionChange{
		Count:       len(s.selected),
		AllSelected: s.allSelected,
	}
}
