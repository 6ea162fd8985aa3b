package engine

import (
	"github.com/vaidashi/support-portal/internal/models"
)

// Selection is the set of order ids picked for a bulk action. It is kept
// apart from the active category and is never pruned when the view changes.
type Selection struct {
	ids   map[string]struct{}
	order []string
}

// NewSelection creates a selection holding ids
func NewSelection(ids ...string) *Selection {
	s := &Selection{ids: make(map[string]struct{})}

	for _, id := range ids {
		s.add(id)
	}

	return s
}

func (s *Selection) add(id string) {
	if _, ok := s.ids[id]; ok || id == "" {
		return
	}
	s.ids[id] = struct{}{}
	s.order = append(s.order, id)
}

func (s *Selection) remove(id string) {
	if _, ok := s.ids[id]; !ok {
		return
	}
	delete(s.ids, id)

	for i, v := range s.order {
		if v == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// Toggle adds id when absent and removes it when present
func (s *Selection) Toggle(id string) {
	if s.Contains(id) {
		s.remove(id)
		return
	}
	s.add(id)
}

// Contains reports whether id is selected
func (s *Selection) Contains(id string) bool {
	_, ok := s.ids[id]
	return ok
}

// Len returns the number of selected ids
func (s *Selection) Len() int {
	return len(s.order)
}

// IDs returns the selected ids in selection order
func (s *Selection) IDs() []string {
	return append([]string(nil), s.order...)
}

// Clear empties the selection
func (s *Selection) Clear() {
	s.ids = make(map[string]struct{})
	s.order = nil
}

// ToggleAll selects every visible order, or clears the selection when
// it already holds as many ids as are visible.
func (s *Selection) ToggleAll(visible []*models.Order) {
	if s.Len() == len(visible) {
		s.Clear()
		return
	}

	s.Clear()
	for _, o := range visible {
		s.add(o.ID)
	}
}

// Effective returns the selected ids that are present in visible.
// Stale ids are dropped silently.
func (s *Selection) Effective(visible []*models.Order) []string {
	present := make(map[string]struct{}, len(visible))

	for _, o := range visible {
		present[o.ID] = struct{}{}
	}

	out := make([]string, 0, len(s.order))

	for _, id := range s.order {
		if _, ok := present[id]; ok {
			out = append(out, id)
		}
	}

	return out
}
