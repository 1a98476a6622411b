package ledger

import (
	"sort"
	"time"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/trigger"
)

// Snapshot is the total persisted state: cells keyed by "x,y" and
// ownership records keyed by transaction id. Timestamps are unix
// milliseconds so every entry is a flat key-value pair.
type Snapshot struct {
	Cells     map[string]SnapshotCell   `json:"cells"`
	Ownership map[string]SnapshotRecord `json:"ownership"`
}

// SnapshotCell is the persisted form of a grid.Cell.
type SnapshotCell struct {
	Color       string `json:"color"`
	ClaimedAt   int64  `json:"claimed_at"`
	ExpiresAt   int64  `json:"expires_at"`
	ContactInfo string `json:"contact_info,omitempty"`
}

// SnapshotRecord is the persisted form of a grid.Ownership.
type SnapshotRecord struct {
	CellCoords    []string `json:"cell_coords"`
	OriginalColor string   `json:"original_color"`
	ClaimedAt     int64    `json:"claimed_at"`
	URL           string   `json:"url,omitempty"`
	Username      string   `json:"username,omitempty"`
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{
		Cells:     make(map[string]SnapshotCell),
		Ownership: make(map[string]SnapshotRecord),
	}
}

// RestoreReport says what Restore kept and what it threw away.
type RestoreReport struct {
	Cells          int `json:"cells"`
	Records        int `json:"records"`
	DroppedCells   int `json:"dropped_cells"`
	DroppedRecords int `json:"dropped_records"`
	DroppedCoords  int `json:"dropped_coords"`
	Expired        int `json:"expired"`
}

// Snapshot exports the full ledger state, expired entries included.
func (l *Ledger) Snapshot() *Snapshot {
	l.mu.Lock()
	defer l.unlock()

	snap := NewSnapshot()
	for c, cell := range l.cells {
		snap.Cells[c.Key()] = SnapshotCell{
			Color:       cell.Color.Hex(),
			ClaimedAt:   cell.ClaimedAt.UnixMilli(),
			ExpiresAt:   cell.ExpiresAt.UnixMilli(),
			ContactInfo: cell.ContactInfo,
		}
	}
	for tx, rec := range l.records {
		keys := make([]string, len(rec.Coords))
		for i, c := range rec.Coords {
			keys[i] = c.Key()
		}
		snap.Ownership[tx] = SnapshotRecord{
			CellCoords:    keys,
			OriginalColor: rec.OriginalColor.Hex(),
			ClaimedAt:     rec.ClaimedAt.UnixMilli(),
			URL:           rec.URL,
			Username:      rec.Username,
		}
	}
	return snap
}

// Restore replaces the ledger state with snap. Malformed entries are
// dropped and logged, expired cells are swept, and the reverse index is
// rebuilt before the new state becomes visible. A nil snapshot resets
// the ledger to empty. Restore never fails.
func (l *Ledger) Restore(snap *Snapshot) RestoreReport {
	var report RestoreReport
	cells := make(map[grid.Coord]*grid.Cell)
	records := make(map[string]*grid.Ownership)

	if snap != nil {
		for key, sc := range snap.Cells {
			cell, ok := l.decodeCell(key, sc)
			if !ok {
				report.DroppedCells++
				l.logger.Warn("dropping malformed snapshot cell", "key", key)
				continue
			}
			cells[cell.Coord] = cell
		}
		for tx, sr := range snap.Ownership {
			rec, dropped, ok := l.decodeRecord(tx, sr)
			report.DroppedCoords += dropped
			if !ok {
				report.DroppedRecords++
				l.logger.Warn("dropping malformed snapshot record", "tx_id", tx)
				continue
			}
			records[tx] = rec
		}
	}

	owners := buildOwners(cells, records)

	l.mu.Lock()
	defer l.unlock()

	l.cells = cells
	l.records = records
	l.owners = owners
	report.Expired = len(l.sweepLocked(l.clock.Now()))
	report.Cells = len(l.cells)
	report.Records = len(l.records)
	l.pending = append(l.pending, trigger.FullRefresh{})

	if report.DroppedCells+report.DroppedRecords+report.DroppedCoords > 0 {
		l.logger.Warn("snapshot restored with dropped entries",
			"dropped_cells", report.DroppedCells,
			"dropped_records", report.DroppedRecords,
			"dropped_coords", report.DroppedCoords,
		)
	}
	l.logger.Info("snapshot restored", "cells", report.Cells, "records", report.Records, "expired", report.Expired)
	return report
}

func (l *Ledger) decodeCell(key string, sc SnapshotCell) (*grid.Cell, bool) {
	c, err := grid.ParseKey(key)
	if err != nil || !c.In(l.size) {
		return nil, false
	}
	color, err := grid.ParseColor(sc.Color)
	if err != nil {
		return nil, false
	}
	if sc.ClaimedAt <= 0 || sc.ExpiresAt <= sc.ClaimedAt {
		return nil, false
	}
	return &grid.Cell{
		Coord:       c,
		Color:       color,
		ClaimedAt:   time.UnixMilli(sc.ClaimedAt),
		ExpiresAt:   time.UnixMilli(sc.ExpiresAt),
		ContactInfo: sc.ContactInfo,
	}, true
}

// decodeRecord keeps the well-formed coordinates of a record; a record
// with none left is dropped.
func (l *Ledger) decodeRecord(tx string, sr SnapshotRecord) (*grid.Ownership, int, bool) {
	if tx == "" {
		return nil, 0, false
	}
	color, err := grid.ParseColor(sr.OriginalColor)
	if err != nil {
		return nil, 0, false
	}
	dropped := 0
	seen := make(map[grid.Coord]struct{}, len(sr.CellCoords))
	coords := make([]grid.Coord, 0, len(sr.CellCoords))
	for _, key := range sr.CellCoords {
		c, err := grid.ParseKey(key)
		if err != nil || !c.In(l.size) {
			dropped++
			continue
		}
		if _, dup := seen[c]; dup {
			continue
		}
		seen[c] = struct{}{}
		coords = append(coords, c)
	}
	if len(coords) == 0 {
		return nil, dropped, false
	}
	username := sr.Username
	if username == "" {
		username = l.anon
	}
	return &grid.Ownership{
		TxID:          tx,
		Coords:        coords,
		OriginalColor: color,
		ClaimedAt:     time.UnixMilli(sr.ClaimedAt),
		URL:           sr.URL,
		Username:      username,
	}, dropped, true
}

// buildOwners maps each cell to the record that claimed it. Historical
// records keep coordinates that were later re-claimed, so the winner is
// the record claimed at the cell's claim instant, falling back to the
// latest record claimed no later than the cell.
func buildOwners(cells map[grid.Coord]*grid.Cell, records map[string]*grid.Ownership) map[grid.Coord]string {
	txs := make([]string, 0, len(records))
	for tx := range records {
		txs = append(txs, tx)
	}
	sort.Slice(txs, func(i, j int) bool {
		a, b := records[txs[i]], records[txs[j]]
		if !a.ClaimedAt.Equal(b.ClaimedAt) {
			return a.ClaimedAt.Before(b.ClaimedAt)
		}
		return txs[i] < txs[j]
	})

	owners := make(map[grid.Coord]string)
	exact := make(map[grid.Coord]bool)
	for _, tx := range txs {
		rec := records[tx]
		for _, c := range rec.Coords {
			cell, ok := cells[c]
			if !ok || exact[c] || rec.ClaimedAt.After(cell.ClaimedAt) {
				continue
			}
			owners[c] = tx
			if rec.ClaimedAt.Equal(cell.ClaimedAt) {
				exact[c] = true
			}
		}
	}
	return owners
}
