package render

import (
	"fmt"
	"math"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/viewport"
)

const (
	// minLineCell is the smallest on-screen cell size that gets grid lines.
	minLineCell = 4
	// minBadgeCell is the smallest on-screen cell size that gets an owner badge.
	minBadgeCell = 6
)

// Source is the read side of the ledger a draw pass needs.
type Source interface {
	SquaresIn(r grid.Rect) []ledger.Square
}

// Selected is the set of cells a frame outlines.
type Selected interface {
	Has(c grid.Coord) bool
	Len() int
	Each(fn func(grid.Coord))
}

// Frame is everything a draw pass reads besides the ledger.
type Frame struct {
	Camera    *viewport.Camera
	Scope     grid.TxSet
	Selection Selected // may be nil
	Hover     grid.Coord
	Hovering  bool
	Owned     int
	Overlay   bool
}

// Stats describes one draw pass.
type Stats struct {
	Visible   grid.Rect `json:"visible"`
	Cells     int       `json:"cells"`
	Badges    int       `json:"badges"`
	Outlines  int       `json:"outlines"`
	GridLines bool      `json:"grid_lines"`
}

// Renderer draws frames from a ledger onto canvases.
type Renderer struct {
	src   Source
	theme Theme
}

// NewRenderer returns a renderer reading from src.
func NewRenderer(src Source, theme Theme) *Renderer {
	return &Renderer{src: src, theme: theme}
}

// Draw runs one full pass. Nothing outside the camera's visible range is
// read or drawn.
func (r *Renderer) Draw(cv Canvas, f Frame) Stats {
	w, h := cv.Size()
	cam := f.Camera
	cs := cam.CellScreenSize()

	cv.Clear(r.theme.Background)
	visible := cam.VisibleCellRange(w, h)
	st := Stats{Visible: visible}
	if !visible.Empty() {
		x0, y0 := cam.ToScreen(visible.MinX, visible.MinY)
		cv.FillRect(x0, y0, float64(visible.MaxX-visible.MinX)*cs, float64(visible.MaxY-visible.MinY)*cs, r.theme.Grid)

		if cs >= minLineCell {
			r.drawLines(cv, cam, visible)
			st.GridLines = true
		}

		for _, sq := range r.src.SquaresIn(visible) {
			x, y := cam.ToScreen(sq.X, sq.Y)
			cv.FillRect(x, y, cs, cs, sq.Color)
			st.Cells++
			if cs >= minBadgeCell && sq.TxID != "" && f.Scope.Owns(sq.TxID) {
				b := math.Max(2, cs/3)
				cv.FillRect(x+cs-b, y, b, b, grid.ForOwner(sq.TxID))
				st.Badges++
			}
		}

		if f.Selection != nil && f.Selection.Len() > 0 {
			st.Outlines += r.drawSelection(cv, cam, visible, f.Selection)
		}
		if f.Hovering && visible.Contains(f.Hover) {
			x, y := cam.ToScreen(f.Hover.X, f.Hover.Y)
			cv.StrokeRect(x, y, cs, cs, r.theme.Hover)
			st.Outlines++
		}
	}

	if f.Overlay {
		cv.Text(8, 8, OverlayText(cam.Scale(), selectedLen(f.Selection), f.Owned), r.theme.Overlay)
	}
	return st
}

// drawSelection outlines the selected cells inside v. It walks whichever
// is smaller, the selection or the visible range.
func (r *Renderer) drawSelection(cv Canvas, cam *viewport.Camera, v grid.Rect, sel Selected) int {
	cs := cam.CellScreenSize()
	n := 0
	outline := func(c grid.Coord) {
		x, y := cam.ToScreen(c.X, c.Y)
		cv.StrokeRect(x, y, cs, cs, r.theme.Selection)
		n++
	}
	if sel.Len() <= v.Area() {
		sel.Each(func(c grid.Coord) {
			if v.Contains(c) {
				outline(c)
			}
		})
		return n
	}
	for y := v.MinY; y < v.MaxY; y++ {
		for x := v.MinX; x < v.MaxX; x++ {
			if c := (grid.Coord{X: x, Y: y}); sel.Has(c) {
				outline(c)
			}
		}
	}
	return n
}

func selectedLen(s Selected) int {
	if s == nil {
		return 0
	}
	return s.Len()
}

func (r *Renderer) drawLines(cv Canvas, cam *viewport.Camera, v grid.Rect) {
	x0, y0 := cam.ToScreen(v.MinX, v.MinY)
	x1, y1 := cam.ToScreen(v.MaxX, v.MaxY)
	for x := v.MinX; x <= v.MaxX; x++ {
		sx, _ := cam.ToScreen(x, 0)
		cv.FillRect(sx, y0, 1, y1-y0, r.theme.Lines)
	}
	for y := v.MinY; y <= v.MaxY; y++ {
		_, sy := cam.ToScreen(0, y)
		cv.FillRect(x0, sy, x1-x0, 1, r.theme.Lines)
	}
}

// OverlayText is the info line shown in the corner of every frame.
func OverlayText(scale float64, selected, owned int) string {
	return fmt.Sprintf("zoom %d%% | selected %d | owned %d", int(math.Round(scale*100)), selected, owned)
}
