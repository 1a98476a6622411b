package interaction

import (
	"github.com/ryanbastic/go-pixelwall/internal/grid"
)

// Selection is the session-local set of cells marked for a pending
// claim. It is never persisted.
type Selection struct {
	cells map[grid.Coord]struct{}
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{cells: make(map[grid.Coord]struct{})}
}

// Has reports whether c is selected.
func (s *Selection) Has(c grid.Coord) bool {
	_, ok := s.cells[c]
	return ok
}

// Len is the number of selected cells.
func (s *Selection) Len() int { return len(s.cells) }

// Toggle flips c and reports whether it is now selected.
func (s *Selection) Toggle(c grid.Coord) bool {
	if s.Has(c) {
		delete(s.cells, c)
		return false
	}
	s.cells[c] = struct{}{}
	return true
}

// Add selects c.
func (s *Selection) Add(c grid.Coord) { s.cells[c] = struct{}{} }

// Remove deselects c.
func (s *Selection) Remove(c grid.Coord) { delete(s.cells, c) }

// Replace swaps the whole selection for cs.
func (s *Selection) Replace(cs []grid.Coord) {
	s.cells = make(map[grid.Coord]struct{}, len(cs))
	for _, c := range cs {
		s.cells[c] = struct{}{}
	}
}

// Clear empties the selection and reports whether it held anything.
func (s *Selection) Clear() bool {
	if len(s.cells) == 0 {
		return false
	}
	s.cells = make(map[grid.Coord]struct{})
	return true
}

// Each calls fn for every selected cell in no particular order.
func (s *Selection) Each(fn func(grid.Coord)) {
	for c := range s.cells {
		fn(c)
	}
}

// Coords returns the selected cells in row-major order.
func (s *Selection) Coords() []grid.Coord {
	out := make([]grid.Coord, 0, len(s.cells))
	for c := range s.cells {
		out = append(out, c)
	}
	grid.SortCoords(out)
	return out
}

// Bounds is the bounding box of the selection.
func (s *Selection) Bounds() grid.Rect {
	return grid.Bounds(s.Coords())
}

// Prune drops every member for which keep returns false and returns the
// dropped cells.
func (s *Selection) Prune(keep func(grid.Coord) bool) []grid.Coord {
	var dropped []grid.Coord
	for c := range s.cells {
		if !keep(c) {
			delete(s.cells, c)
			dropped = append(dropped, c)
		}
	}
	grid.SortCoords(dropped)
	return dropped
}
