package grid

import (
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

// ErrBadKey is returned when a coordinate key is not of the form "x,y".
var ErrBadKey = errors.New("malformed coordinate key")

// Coord addresses one cell of the grid.
type Coord struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Key returns the persisted form of the coordinate, "x,y".
func (c Coord) Key() string {
	return strconv.Itoa(c.X) + "," + strconv.Itoa(c.Y)
}

func (c Coord) String() string {
	return "(" + c.Key() + ")"
}

// In reports whether c lies in [0, size) on both axes.
func (c Coord) In(size int) bool {
	return c.X >= 0 && c.Y >= 0 && c.X < size && c.Y < size
}

// ParseKey parses a "x,y" coordinate key.
func ParseKey(s string) (Coord, error) {
	xs, ys, ok := strings.Cut(s, ",")
	if !ok {
		return Coord{}, fmt.Errorf("%w: %q", ErrBadKey, s)
	}
	x, err := strconv.Atoi(strings.TrimSpace(xs))
	if err != nil {
		return Coord{}, fmt.Errorf("%w: %q", ErrBadKey, s)
	}
	y, err := strconv.Atoi(strings.TrimSpace(ys))
	if err != nil {
		return Coord{}, fmt.Errorf("%w: %q", ErrBadKey, s)
	}
	return Coord{X: x, Y: y}, nil
}

// SortCoords orders coordinates row-major (y, then x).
func SortCoords(cs []Coord) {
	sort.Slice(cs, func(i, j int) bool {
		if cs[i].Y != cs[j].Y {
			return cs[i].Y < cs[j].Y
		}
		return cs[i].X < cs[j].X
	})
}

// Cell is a claimed grid cell. A coordinate without a Cell is available.
type Cell struct {
	Coord
	Color       Color     `json:"color"`
	ClaimedAt   time.Time `json:"claimed_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	ContactInfo string    `json:"contact_info,omitempty"`
}

// Expired reports whether the lock on c has run out at now.
func (c Cell) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Ownership groups the cells claimed together under one transaction.
type Ownership struct {
	TxID          string    `json:"tx_id"`
	Coords        []Coord   `json:"cell_coords"`
	OriginalColor Color     `json:"original_color"`
	ClaimedAt     time.Time `json:"claimed_at"`
	URL           string    `json:"url,omitempty"`
	Username      string    `json:"username"`
}

// Clone returns a deep copy of o.
func (o Ownership) Clone() Ownership {
	o.Coords = append([]Coord(nil), o.Coords...)
	return o
}

// Rect is a grid-space rectangle. Min is inclusive, Max is exclusive.
type Rect struct {
	MinX int `json:"min_x"`
	MinY int `json:"min_y"`
	MaxX int `json:"max_x"`
	MaxY int `json:"max_y"`
}

// Empty reports whether r contains no cells.
func (r Rect) Empty() bool {
	return r.MaxX <= r.MinX || r.MaxY <= r.MinY
}

// Area is the number of cells in r.
func (r Rect) Area() int {
	if r.Empty() {
		return 0
	}
	return (r.MaxX - r.MinX) * (r.MaxY - r.MinY)
}

// Contains reports whether c lies inside r.
func (r Rect) Contains(c Coord) bool {
	return c.X >= r.MinX && c.X < r.MaxX && c.Y >= r.MinY && c.Y < r.MaxY
}

// Span returns the rectangle covering a and b inclusively.
func Span(a, b Coord) Rect {
	return Rect{
		MinX: min(a.X, b.X),
		MinY: min(a.Y, b.Y),
		MaxX: max(a.X, b.X) + 1,
		MaxY: max(a.Y, b.Y) + 1,
	}
}

// Bounds returns the bounding box of cs. The result is empty when cs is.
func Bounds(cs []Coord) Rect {
	if len(cs) == 0 {
		return Rect{}
	}
	r := Rect{MinX: cs[0].X, MinY: cs[0].Y, MaxX: cs[0].X + 1, MaxY: cs[0].Y + 1}
	for _, c := range cs[1:] {
		r.MinX = min(r.MinX, c.X)
		r.MinY = min(r.MinY, c.Y)
		r.MaxX = max(r.MaxX, c.X+1)
		r.MaxY = max(r.MaxY, c.Y+1)
	}
	return r
}

// Clamp restricts r to [0, size) on both axes.
func (r Rect) Clamp(size int) Rect {
	r.MinX = min(max(r.MinX, 0), size)
	r.MinY = min(max(r.MinY, 0), size)
	r.MaxX = min(max(r.MaxX, 0), size)
	r.MaxY = min(max(r.MaxY, 0), size)
	return r
}

// TxSet is a set of transaction ids a caller owns.
type TxSet map[string]struct{}

// NewTxSet builds a set from ids.
func NewTxSet(ids ...string) TxSet {
	s := make(TxSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Owns reports whether id is in the set.
func (s TxSet) Owns(id string) bool {
	_, ok := s[id]
	return ok
}

// OwnerTag is the public stand-in for a transaction id: stable per id,
// useless as a scope.
func OwnerTag(txID string) string {
	if txID == "" {
		return ""
	}
	sum := blake2b.Sum256([]byte(txID))
	return hex.EncodeToString(sum[:8])
}

// Add inserts id.
func (s TxSet) Add(id string) { s[id] = struct{}{} }

// Remove deletes id.
func (s TxSet) Remove(id string) { delete(s, id) }

// IDs returns the sorted members.
func (s TxSet) IDs() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
