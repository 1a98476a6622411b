// Package ledger tracks which grid cells are claimed, by which
// transaction, in what color, and until when.
//
// The Ledger is the single source of truth and the only component that
// mutates cells. Expiry is checked lazily on every availability query
// (a timestamp comparison) and reclaimed in bulk by SweepExpired. A
// coordinate -> transaction reverse index answers ownership questions
// without scanning records.
package ledger

import (
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/trigger"
)

const (
	DefaultGridSize      = 1000
	DefaultLockDuration  = 7 * 24 * time.Hour
	DefaultAnonymousName = "Anonymous"
)

// Clock supplies the current instant.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// Publisher receives change events once the ledger lock is released.
type Publisher interface {
	Publish(e trigger.Event)
}

// Scope answers whether the caller owns a transaction.
type Scope interface {
	Owns(txID string) bool
}

// Paint is one cell of a claim request.
type Paint struct {
	grid.Coord
	Color grid.Color `json:"color"`
}

// ClaimRequest is the input of Claim. TxID is issued by the claim
// authorization collaborator before the ledger is asked.
type ClaimRequest struct {
	TxID        string
	Cells       []Paint
	ContactInfo string
	URL         string
	Username    string
}

// MetadataUpdate edits an ownership record. Nil fields are left alone.
type MetadataUpdate struct {
	URL           *string
	Username      *string
	OriginalColor *grid.Color
}

// ClearMode selects what "clear my squares" removes.
type ClearMode string

const (
	// ClearAll drops every ownership record in the caller's scope.
	ClearAll ClearMode = "all"
	// ClearSelected drops only the named coordinates from their records.
	ClearSelected ClearMode = "selected"
)

// Square is a live cell together with the transaction that owns it. The
// transaction id never leaves the process; Owner is its public tag.
type Square struct {
	grid.Cell
	TxID  string `json:"-"`
	Owner string `json:"owner,omitempty"`
}

func newSquare(cell *grid.Cell, txID string) Square {
	return Square{Cell: *cell, TxID: txID, Owner: grid.OwnerTag(txID)}
}

// Stats is a point-in-time summary of the ledger.
type Stats struct {
	GridSize  int `json:"grid_size"`
	LiveCells int `json:"live_cells"`
	Records   int `json:"records"`
}

// Options configures a Ledger. Zero values fall back to the defaults.
type Options struct {
	GridSize      int
	LockDuration  time.Duration
	AnonymousName string
	Clock         Clock
	Publisher     Publisher
	Logger        *slog.Logger
}

// Ledger is safe for concurrent use.
type Ledger struct {
	mu      sync.Mutex
	pending []trigger.Event

	size   int
	lock   time.Duration
	anon   string
	clock  Clock
	pub    Publisher
	logger *slog.Logger

	cells   map[grid.Coord]*grid.Cell
	records map[string]*grid.Ownership
	owners  map[grid.Coord]string
}

// New creates an empty ledger.
func New(opts Options) *Ledger {
	if opts.GridSize <= 0 {
		opts.GridSize = DefaultGridSize
	}
	if opts.LockDuration <= 0 {
		opts.LockDuration = DefaultLockDuration
	}
	if opts.AnonymousName == "" {
		opts.AnonymousName = DefaultAnonymousName
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.New(slog.DiscardHandler)
	}
	return &Ledger{
		size:    opts.GridSize,
		lock:    opts.LockDuration,
		anon:    opts.AnonymousName,
		clock:   opts.Clock,
		pub:     opts.Publisher,
		logger:  opts.Logger,
		cells:   make(map[grid.Coord]*grid.Cell),
		records: make(map[string]*grid.Ownership),
		owners:  make(map[grid.Coord]string),
	}
}

// GridSize is the side length of the square grid.
func (l *Ledger) GridSize() int { return l.size }

// LockDuration is how long a claim holds its cells.
func (l *Ledger) LockDuration() time.Duration { return l.lock }

// InBounds reports whether c is a grid coordinate.
func (l *Ledger) InBounds(c grid.Coord) bool { return c.In(l.size) }

// unlock releases the mutex and then publishes the events queued while
// it was held, so subscribers may call back into the ledger.
func (l *Ledger) unlock() {
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	if l.pub == nil {
		return
	}
	for _, e := range pending {
		l.pub.Publish(e)
	}
}

// purgeLocked removes the entry at c if its lock has run out.
func (l *Ledger) purgeLocked(c grid.Coord, now time.Time) bool {
	cell, ok := l.cells[c]
	if !ok || !cell.Expired(now) {
		return false
	}
	delete(l.cells, c)
	delete(l.owners, c)
	return true
}

// liveLocked returns the cell at c when it exists and has not expired.
func (l *Ledger) liveLocked(c grid.Coord, now time.Time) (*grid.Cell, bool) {
	cell, ok := l.cells[c]
	if !ok || cell.Expired(now) {
		return nil, false
	}
	return cell, true
}

// IsAvailable reports whether c can be claimed. An expired entry at c is
// purged first. Out-of-bounds coordinates are never available.
func (l *Ledger) IsAvailable(c grid.Coord) bool {
	if !l.InBounds(c) {
		return false
	}
	l.mu.Lock()
	defer l.unlock()

	if l.purgeLocked(c, l.clock.Now()) {
		l.pending = append(l.pending, trigger.CellRemoved{Coord: c})
	}
	_, taken := l.cells[c]
	return !taken
}

// Claim locks every requested cell under one new ownership record. It
// applies all cells or none.
func (l *Ledger) Claim(req ClaimRequest) (string, error) {
	if req.TxID == "" {
		return "", fmt.Errorf("%w: missing transaction id", ErrInvalidInput)
	}
	if len(req.Cells) == 0 {
		return "", fmt.Errorf("%w: no cells", ErrInvalidInput)
	}

	seen := make(map[grid.Coord]struct{}, len(req.Cells))
	for _, p := range req.Cells {
		if !l.InBounds(p.Coord) {
			return "", fmt.Errorf("%w: %s", ErrOutOfBounds, p.Coord.Key())
		}
		if _, dup := seen[p.Coord]; dup {
			return "", fmt.Errorf("%w: duplicate cell %s", ErrInvalidInput, p.Coord.Key())
		}
		seen[p.Coord] = struct{}{}
	}

	l.mu.Lock()
	defer l.unlock()

	if _, used := l.records[req.TxID]; used {
		return "", fmt.Errorf("%w: transaction %s already recorded", ErrInvalidInput, req.TxID)
	}

	now := l.clock.Now()
	var taken []grid.Coord
	var purged []grid.Coord
	for _, p := range req.Cells {
		if l.purgeLocked(p.Coord, now) {
			purged = append(purged, p.Coord)
		}
		if _, ok := l.cells[p.Coord]; ok {
			taken = append(taken, p.Coord)
		}
	}
	if len(purged) > 0 {
		l.pending = append(l.pending, trigger.CellsRemoved{Coords: purged})
	}
	if len(taken) > 0 {
		return "", &TakenError{Coords: taken}
	}

	username := req.Username
	if username == "" {
		username = l.anon
	}
	rec := &grid.Ownership{
		TxID:          req.TxID,
		Coords:        make([]grid.Coord, 0, len(req.Cells)),
		OriginalColor: req.Cells[0].Color,
		ClaimedAt:     now,
		URL:           req.URL,
		Username:      username,
	}
	created := make([]grid.Cell, 0, len(req.Cells))
	for _, p := range req.Cells {
		cell := &grid.Cell{
			Coord:       p.Coord,
			Color:       p.Color,
			ClaimedAt:   now,
			ExpiresAt:   now.Add(l.lock),
			ContactInfo: req.ContactInfo,
		}
		l.cells[p.Coord] = cell
		l.owners[p.Coord] = req.TxID
		rec.Coords = append(rec.Coords, p.Coord)
		created = append(created, *cell)
	}
	l.records[req.TxID] = rec

	l.pending = append(l.pending,
		trigger.CellsChanged{Cells: created},
		trigger.NewOwnershipChanged(req.TxID),
	)
	l.logger.Debug("cells claimed", "tx_id", req.TxID, "cells", len(created))
	return req.TxID, nil
}

// authorizedLocked returns the live cell at c and its record when scope
// owns the transaction currently holding c.
func (l *Ledger) authorizedLocked(c grid.Coord, scope Scope, now time.Time) (*grid.Cell, *grid.Ownership, bool) {
	if scope == nil || !l.InBounds(c) {
		return nil, nil, false
	}
	if l.purgeLocked(c, now) {
		l.pending = append(l.pending, trigger.CellRemoved{Coord: c})
		return nil, nil, false
	}
	cell, ok := l.cells[c]
	if !ok {
		return nil, nil, false
	}
	tx, ok := l.owners[c]
	if !ok || !scope.Owns(tx) {
		return nil, nil, false
	}
	rec, ok := l.records[tx]
	if !ok {
		return nil, nil, false
	}
	return cell, rec, true
}

// Recolor sets the color of c when scope owns it and its lock is live.
// It never extends the lock.
func (l *Ledger) Recolor(c grid.Coord, color grid.Color, scope Scope) bool {
	l.mu.Lock()
	defer l.unlock()

	cell, _, ok := l.authorizedLocked(c, scope, l.clock.Now())
	if !ok {
		return false
	}
	if cell.Color != color {
		cell.Color = color
		l.pending = append(l.pending, trigger.CellChanged{Cell: *cell})
	}
	return true
}

// RestoreOriginal resets c to its record's original color (the erase
// action) under the same authorization rule as Recolor.
func (l *Ledger) RestoreOriginal(c grid.Coord, scope Scope) bool {
	l.mu.Lock()
	defer l.unlock()

	cell, rec, ok := l.authorizedLocked(c, scope, l.clock.Now())
	if !ok {
		return false
	}
	if cell.Color != rec.OriginalColor {
		cell.Color = rec.OriginalColor
		l.pending = append(l.pending, trigger.CellChanged{Cell: *cell})
	}
	return true
}

// SweepExpired removes every cell whose lock has run out and returns
// how many were removed.
func (l *Ledger) SweepExpired() int {
	l.mu.Lock()
	defer l.unlock()

	removed := l.sweepLocked(l.clock.Now())
	if len(removed) > 0 {
		l.pending = append(l.pending, trigger.CellsRemoved{Coords: removed})
		l.logger.Info("expired cells swept", "count", len(removed))
	}
	return len(removed)
}

func (l *Ledger) sweepLocked(now time.Time) []grid.Coord {
	var removed []grid.Coord
	for c, cell := range l.cells {
		if cell.Expired(now) {
			delete(l.cells, c)
			delete(l.owners, c)
			removed = append(removed, c)
		}
	}
	grid.SortCoords(removed)
	return removed
}

// Square returns the live cell at c.
func (l *Ledger) Square(c grid.Coord) (Square, bool) {
	l.mu.Lock()
	defer l.unlock()

	cell, ok := l.liveLocked(c, l.clock.Now())
	if !ok {
		return Square{}, false
	}
	return newSquare(cell, l.owners[c]), true
}

// Squares returns every live cell in row-major order.
func (l *Ledger) Squares() []Square {
	l.mu.Lock()
	defer l.unlock()

	now := l.clock.Now()
	out := make([]Square, 0, len(l.cells))
	for c, cell := range l.cells {
		if cell.Expired(now) {
			continue
		}
		out = append(out, newSquare(cell, l.owners[c]))
	}
	sortSquares(out)
	return out
}

// SquaresIn returns the live cells inside r in row-major order. It walks
// whichever is smaller: the rectangle or the cell map.
func (l *Ledger) SquaresIn(r grid.Rect) []Square {
	r = r.Clamp(l.size)
	if r.Empty() {
		return nil
	}

	l.mu.Lock()
	defer l.unlock()

	now := l.clock.Now()
	var out []Square
	if r.Area() < len(l.cells) {
		for y := r.MinY; y < r.MaxY; y++ {
			for x := r.MinX; x < r.MaxX; x++ {
				c := grid.Coord{X: x, Y: y}
				if cell, ok := l.liveLocked(c, now); ok {
					out = append(out, newSquare(cell, l.owners[c]))
				}
			}
		}
		return out
	}
	for c, cell := range l.cells {
		if !r.Contains(c) || cell.Expired(now) {
			continue
		}
		out = append(out, newSquare(cell, l.owners[c]))
	}
	sortSquares(out)
	return out
}

func sortSquares(s []Square) {
	sort.Slice(s, func(i, j int) bool {
		if s[i].Y != s[j].Y {
			return s[i].Y < s[j].Y
		}
		return s[i].X < s[j].X
	})
}

// OwnerOf returns the transaction holding the live cell at c.
func (l *Ledger) OwnerOf(c grid.Coord) (string, bool) {
	l.mu.Lock()
	defer l.unlock()

	if _, ok := l.liveLocked(c, l.clock.Now()); !ok {
		return "", false
	}
	tx, ok := l.owners[c]
	return tx, ok
}

// IsOwnedBy reports whether scope owns the live cell at c.
func (l *Ledger) IsOwnedBy(c grid.Coord, scope Scope) bool {
	if scope == nil {
		return false
	}
	tx, ok := l.OwnerOf(c)
	return ok && scope.Owns(tx)
}

// OwnedCoords returns the live coordinates held by scope, row-major.
func (l *Ledger) OwnedCoords(scope Scope) []grid.Coord {
	if scope == nil {
		return nil
	}
	l.mu.Lock()
	defer l.unlock()

	now := l.clock.Now()
	var out []grid.Coord
	if set, ok := scope.(grid.TxSet); ok && len(set) < len(l.records) {
		for tx := range set {
			rec, ok := l.records[tx]
			if !ok {
				continue
			}
			for _, c := range rec.Coords {
				if _, live := l.liveLocked(c, now); live && l.owners[c] == tx {
					out = append(out, c)
				}
			}
		}
	} else {
		for c, tx := range l.owners {
			if _, live := l.liveLocked(c, now); live && scope.Owns(tx) {
				out = append(out, c)
			}
		}
	}
	grid.SortCoords(out)
	return out
}

// Record returns a copy of the ownership record for txID.
func (l *Ledger) Record(txID string) (grid.Ownership, bool) {
	l.mu.Lock()
	defer l.unlock()

	rec, ok := l.records[txID]
	if !ok {
		return grid.Ownership{}, false
	}
	return rec.Clone(), true
}

// Records returns copies of all ownership records, oldest first.
func (l *Ledger) Records() []grid.Ownership {
	l.mu.Lock()
	defer l.unlock()

	out := make([]grid.Ownership, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].ClaimedAt.Equal(out[j].ClaimedAt) {
			return out[i].ClaimedAt.Before(out[j].ClaimedAt)
		}
		return out[i].TxID < out[j].TxID
	})
	return out
}

// UpdateMetadata edits the url, username or original color of a record.
func (l *Ledger) UpdateMetadata(txID string, upd MetadataUpdate) error {
	l.mu.Lock()
	defer l.unlock()

	rec, ok := l.records[txID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownTransaction, txID)
	}
	if upd.URL != nil {
		rec.URL = *upd.URL
	}
	if upd.Username != nil {
		rec.Username = *upd.Username
		if rec.Username == "" {
			rec.Username = l.anon
		}
	}
	if upd.OriginalColor != nil {
		rec.OriginalColor = *upd.OriginalColor
	}
	l.pending = append(l.pending, trigger.NewOwnershipChanged(txID))
	return nil
}

// ClearOwnership releases ownership held by scope. With ClearAll every
// record in scope is dropped; with ClearSelected only the given
// coordinates are removed from their records. Cells keep their color and
// lock; they simply stop being editable. It returns the number of
// records dropped (ClearAll) or coordinates released (ClearSelected).
func (l *Ledger) ClearOwnership(scope Scope, coords []grid.Coord, mode ClearMode) int {
	if scope == nil {
		return 0
	}
	l.mu.Lock()
	defer l.unlock()

	var touched []string
	count := 0
	switch mode {
	case ClearSelected:
		changed := make(map[string]bool)
		for _, c := range coords {
			tx, ok := l.owners[c]
			if !ok || !scope.Owns(tx) {
				continue
			}
			delete(l.owners, c)
			count++
			changed[tx] = true
			if rec, ok := l.records[tx]; ok {
				rec.Coords = removeCoord(rec.Coords, c)
				if len(rec.Coords) == 0 {
					delete(l.records, tx)
				}
			}
		}
		for tx := range changed {
			touched = append(touched, tx)
		}
	default:
		for tx, rec := range l.records {
			if !scope.Owns(tx) {
				continue
			}
			for _, c := range rec.Coords {
				if l.owners[c] == tx {
					delete(l.owners, c)
				}
			}
			delete(l.records, tx)
			touched = append(touched, tx)
			count++
		}
	}
	if len(touched) > 0 {
		sort.Strings(touched)
		l.pending = append(l.pending, trigger.NewOwnershipChanged(touched...))
	}
	return count
}

func removeCoord(cs []grid.Coord, c grid.Coord) []grid.Coord {
	out := cs[:0]
	for _, v := range cs {
		if v != c {
			out = append(out, v)
		}
	}
	return out
}

// PurgeStaleRecords drops ownership records none of whose cells are
// still live under that record.
func (l *Ledger) PurgeStaleRecords() int {
	l.mu.Lock()
	defer l.unlock()

	now := l.clock.Now()
	var purged []string
	for tx, rec := range l.records {
		live := false
		for _, c := range rec.Coords {
			if _, ok := l.liveLocked(c, now); ok && l.owners[c] == tx {
				live = true
				break
			}
		}
		if !live {
			delete(l.records, tx)
			purged = append(purged, tx)
		}
	}
	if len(purged) > 0 {
		sort.Strings(purged)
		l.pending = append(l.pending, trigger.NewOwnershipChanged(purged...))
	}
	return len(purged)
}

// AdminClear removes every cell and record.
func (l *Ledger) AdminClear() {
	l.mu.Lock()
	defer l.unlock()

	l.cells = make(map[grid.Coord]*grid.Cell)
	l.records = make(map[string]*grid.Ownership)
	l.owners = make(map[grid.Coord]string)
	l.pending = append(l.pending, trigger.FullRefresh{})
	l.logger.Warn("ledger cleared by admin")
}

// Stats summarizes the ledger.
func (l *Ledger) Stats() Stats {
	l.mu.Lock()
	defer l.unlock()

	now := l.clock.Now()
	live := 0
	for _, cell := range l.cells {
		if !cell.Expired(now) {
			live++
		}
	}
	return Stats{GridSize: l.size, LiveCells: live, Records: len(l.records)}
}
