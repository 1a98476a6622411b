// Package interaction turns pointer events into selection changes,
// camera pans and ledger edits.
package interaction

import (
	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/viewport"
)

// State is the pointer gesture in progress.
type State int

const (
	Idle State = iota
	Selecting
	Panning
	Painting
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Selecting:
		return "selecting"
	case Panning:
		return "panning"
	case Painting:
		return "painting"
	default:
		return "unknown"
	}
}

// Button identifies the pointer button of a press.
type Button int

const (
	Primary Button = iota
	Secondary
)

// Pointer is one pointer sample in screen space.
type Pointer struct {
	X              float64 `json:"x"`
	Y              float64 `json:"y"`
	Button         Button  `json:"button,omitempty"`
	SelectModifier bool    `json:"select_modifier,omitempty"`
}

// Ledger is the part of the ledger the machine reads and edits through.
type Ledger interface {
	GridSize() int
	InBounds(c grid.Coord) bool
	IsAvailable(c grid.Coord) bool
	IsOwnedBy(c grid.Coord, scope ledger.Scope) bool
	SquaresIn(r grid.Rect) []ledger.Square
	Recolor(c grid.Coord, color grid.Color, scope ledger.Scope) bool
	RestoreOriginal(c grid.Coord, scope ledger.Scope) bool
}

// Machine is the pointer state machine of one session. It is not safe
// for concurrent use.
type Machine struct {
	ledger   Ledger
	camera   *viewport.Camera
	scope    grid.TxSet
	sel      *Selection
	onChange func()

	state     State
	paintMode bool
	erase     bool
	brush     grid.Color

	// gesture anchors
	anchor      grid.Coord
	dragging    bool
	lastX       float64
	lastY       float64
	lastPainted grid.Coord

	hover    grid.Coord
	hovering bool
}

// NewMachine wires a machine to its session's camera and scope. onChange
// runs after anything visible changed and may be nil.
func NewMachine(l Ledger, cam *viewport.Camera, scope grid.TxSet, onChange func()) *Machine {
	if scope == nil {
		scope = grid.NewTxSet()
	}
	if onChange == nil {
		onChange = func() {}
	}
	return &Machine{
		ledger:   l,
		camera:   cam,
		scope:    scope,
		sel:      NewSelection(),
		onChange: onChange,
		brush:    grid.Black,
	}
}

func (m *Machine) State() State             { return m.state }
func (m *Machine) PaintMode() bool          { return m.paintMode }
func (m *Machine) Erase() bool              { return m.erase }
func (m *Machine) Brush() grid.Color        { return m.brush }
func (m *Machine) Selection() *Selection    { return m.sel }
func (m *Machine) Scope() grid.TxSet        { return m.scope }
func (m *Machine) Camera() *viewport.Camera { return m.camera }

// Hover returns the cell under the pointer, if any.
func (m *Machine) Hover() (grid.Coord, bool) { return m.hover, m.hovering }

// SetPaintMode switches paint mode. Any switch clears the selection;
// turning paint mode off mid-stroke ends the stroke.
func (m *Machine) SetPaintMode(on bool) {
	if on == m.paintMode {
		return
	}
	m.paintMode = on
	m.sel.Clear()
	if m.state == Painting || m.state == Selecting {
		m.reset()
	}
	m.onChange()
}

// SetErase makes paint strokes restore original colors instead of
// applying the brush. It only matters in paint mode.
func (m *Machine) SetErase(on bool) {
	m.erase = on
}

// SetBrush sets the color applied by paint strokes.
func (m *Machine) SetBrush(c grid.Color) {
	m.brush = c
}

// ClearSelection empties the selection.
func (m *Machine) ClearSelection() {
	if m.sel.Clear() {
		m.onChange()
	}
}

// Revalidate drops selected cells that are no longer available and
// returns them.
func (m *Machine) Revalidate() []grid.Coord {
	dropped := m.sel.Prune(m.ledger.IsAvailable)
	if len(dropped) > 0 {
		m.onChange()
	}
	return dropped
}

func (m *Machine) available(c grid.Coord) bool {
	return m.ledger.InBounds(c) && m.ledger.IsAvailable(c)
}

func (m *Machine) owned(c grid.Coord) bool {
	return m.ledger.InBounds(c) && m.ledger.IsOwnedBy(c, m.scope)
}

// PointerDown starts a gesture. A press while another gesture is active
// ends that gesture first.
func (m *Machine) PointerDown(p Pointer) {
	if m.state != Idle {
		m.reset()
	}
	target := m.camera.ToGrid(p.X, p.Y)
	m.lastX, m.lastY = p.X, p.Y
	m.setHover(target)

	switch {
	case p.Button == Secondary:
		m.state = Panning
	case m.paintMode && m.owned(target):
		m.state = Painting
		m.paint(target)
	case m.paintMode:
		m.state = Panning
	case p.SelectModifier:
		m.state = Selecting
		m.anchor = target
		m.dragging = false
	case m.available(target):
		m.state = Selecting
		m.anchor = target
		m.dragging = false
		m.sel.Toggle(target)
	default:
		m.state = Panning
	}
	m.onChange()
}

// PointerMove continues the active gesture or tracks hover when idle.
func (m *Machine) PointerMove(p Pointer) {
	target := m.camera.ToGrid(p.X, p.Y)
	changed := m.setHover(target)

	switch m.state {
	case Panning:
		dx, dy := p.X-m.lastX, p.Y-m.lastY
		if dx != 0 || dy != 0 {
			m.camera.Pan(dx, dy)
			changed = true
		}
	case Selecting:
		if m.dragging || target != m.anchor {
			m.dragging = true
			m.selectRect(grid.Span(m.anchor, target))
			changed = true
		}
	case Painting:
		if target != m.lastPainted && m.owned(target) {
			m.paint(target)
		}
	}
	m.lastX, m.lastY = p.X, p.Y
	if changed {
		m.onChange()
	}
}

// PointerUp ends the active gesture.
func (m *Machine) PointerUp() {
	if m.state == Idle {
		return
	}
	m.reset()
	m.onChange()
}

// PointerLeave ends the active gesture and drops the hover outline.
func (m *Machine) PointerLeave() {
	wasActive := m.state != Idle
	m.reset()
	if wasActive || m.hovering {
		m.hovering = false
		m.onChange()
	}
}

func (m *Machine) reset() {
	m.state = Idle
	m.dragging = false
	m.anchor = grid.Coord{}
	m.lastPainted = grid.Coord{X: -1, Y: -1}
}

func (m *Machine) setHover(c grid.Coord) bool {
	on := m.ledger.InBounds(c)
	if on == m.hovering && c == m.hover {
		return false
	}
	m.hover, m.hovering = c, on
	return true
}

// selectRect replaces the selection with the available cells inside r.
// Availability is read at drag time so cells claimed or expired since the
// drag started are handled.
func (m *Machine) selectRect(r grid.Rect) {
	taken := make(map[grid.Coord]struct{})
	for _, sq := range m.ledger.SquaresIn(r) {
		taken[sq.Coord] = struct{}{}
	}
	r = r.Clamp(m.ledger.GridSize())
	cs := make([]grid.Coord, 0, r.Area())
	for y := r.MinY; y < r.MaxY; y++ {
		for x := r.MinX; x < r.MaxX; x++ {
			c := grid.Coord{X: x, Y: y}
			if _, ok := taken[c]; ok {
				continue
			}
			cs = append(cs, c)
		}
	}
	m.sel.Replace(cs)
}

func (m *Machine) paint(c grid.Coord) {
	m.lastPainted = c
	if m.erase {
		m.ledger.RestoreOriginal(c, m.scope)
		return
	}
	m.ledger.Recolor(c, m.brush, m.scope)
}
