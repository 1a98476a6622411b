package trigger

import (
	"github.com/ryanbastic/go-pixelwall/internal/grid"
)

// Kind names an event type on the wire (SSE event names, plugin subscriptions).
type Kind string

const (
	KindCellChanged      Kind = "cell.changed"
	KindCellsChanged     Kind = "cells.changed"
	KindCellRemoved      Kind = "cell.removed"
	KindCellsRemoved     Kind = "cells.removed"
	KindFullRefresh      Kind = "grid.refresh"
	KindOwnershipChanged Kind = "ownership.changed"
)

// AllKinds lists every event kind the ledger emits.
var AllKinds = []Kind{
	KindCellChanged,
	KindCellsChanged,
	KindCellRemoved,
	KindCellsRemoved,
	KindFullRefresh,
	KindOwnershipChanged,
}

// Event is a ledger change notification. Consumers type-switch on the
// concrete type and must treat anything unrecognized as a full refresh.
type Event interface {
	Kind() Kind
}

// CellChanged reports a single cell whose color changed.
type CellChanged struct {
	Cell grid.Cell `json:"cell"`
}

// CellsChanged reports a batch of cells created or changed together.
type CellsChanged struct {
	Cells []grid.Cell `json:"cells"`
}

// CellRemoved reports a single cell entry that is gone.
type CellRemoved struct {
	grid.Coord
}

// CellsRemoved reports a batch removal, e.g. an expiry sweep.
type CellsRemoved struct {
	Coords []grid.Coord `json:"coords"`
}

// FullRefresh tells consumers to re-read everything.
type FullRefresh struct{}

// OwnershipChanged reports metadata changes on ownership records. Only the
// owner tags go on the wire.
type OwnershipChanged struct {
	TxIDs  []string `json:"-"`
	Owners []string `json:"owners"`
}

// NewOwnershipChanged builds the event for txIDs.
func NewOwnershipChanged(txIDs ...string) OwnershipChanged {
	owners := make([]string, len(txIDs))
	for i, id := range txIDs {
		owners[i] = grid.OwnerTag(id)
	}
	return OwnershipChanged{TxIDs: txIDs, Owners: owners}
}

func (CellChanged) Kind() Kind      { return KindCellChanged }
func (CellsChanged) Kind() Kind     { return KindCellsChanged }
func (CellRemoved) Kind() Kind      { return KindCellRemoved }
func (CellsRemoved) Kind() Kind     { return KindCellsRemoved }
func (FullRefresh) Kind() Kind      { return KindFullRefresh }
func (OwnershipChanged) Kind() Kind { return KindOwnershipChanged }

// NeedsFullRefresh reports whether a consumer that only understands the
// known event types should fall back to a full re-read.
func NeedsFullRefresh(e Event) bool {
	switch e.(type) {
	case CellChanged, CellsChanged, CellRemoved, CellsRemoved, OwnershipChanged:
		return false
	default:
		return true
	}
}

// Touched returns the coordinates an event affects; ok is false when the
// event does not name coordinates and everything must be assumed changed.
func Touched(e Event) (coords []grid.Coord, ok bool) {
	switch ev := e.(type) {
	case CellChanged:
		return []grid.Coord{ev.Cell.Coord}, true
	case CellsChanged:
		out := make([]grid.Coord, len(ev.Cells))
		for i, c := range ev.Cells {
			out[i] = c.Coord
		}
		return out, true
	case CellRemoved:
		return []grid.Coord{ev.Coord}, true
	case CellsRemoved:
		return ev.Coords, true
	case OwnershipChanged:
		return nil, true
	default:
		return nil, false
	}
}
