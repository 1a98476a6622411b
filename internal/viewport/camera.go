// Package viewport maps between screen space and grid space.
//
// Screen coordinates are display units measured from the top-left of the
// viewport. A grid cell (x, y) covers the screen square starting at
// offset + (x, y) * cellSize * scale.
package viewport

import (
	"math"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
)

const (
	DefaultCellSize    = 10
	DefaultMinScale    = 0.05
	DefaultMaxScale    = 20
	DefaultMaxFitScale = 4
	DefaultFitPadding  = 40

	// epsilon absorbs float error when a screen point sits exactly on a
	// cell boundary produced by ToScreen.
	epsilon = 1e-7
)

// Config fixes the camera's constants. Zero fields fall back to the
// defaults; a negative FitPadding means no padding.
type Config struct {
	GridSize    int
	CellSize    float64
	MinScale    float64
	MaxScale    float64
	MaxFitScale float64
	FitPadding  float64
}

func (c Config) withDefaults() Config {
	if c.GridSize <= 0 {
		c.GridSize = 1000
	}
	if c.CellSize <= 0 {
		c.CellSize = DefaultCellSize
	}
	if c.MinScale <= 0 {
		c.MinScale = DefaultMinScale
	}
	if c.MaxScale <= 0 {
		c.MaxScale = DefaultMaxScale
	}
	if c.MaxScale < c.MinScale {
		c.MaxScale = c.MinScale
	}
	if c.MaxFitScale <= 0 {
		c.MaxFitScale = DefaultMaxFitScale
	}
	switch {
	case c.FitPadding == 0:
		c.FitPadding = DefaultFitPadding
	case c.FitPadding < 0:
		c.FitPadding = 0
	}
	return c
}

// State is the mutable part of a camera.
type State struct {
	OffsetX float64 `json:"offset_x"`
	OffsetY float64 `json:"offset_y"`
	Scale   float64 `json:"scale"`
}

// Camera is not safe for concurrent use; a session owns exactly one.
type Camera struct {
	cfg   Config
	state State
}

// New returns a camera at the origin with scale 1 (clamped).
func New(cfg Config) *Camera {
	c := &Camera{cfg: cfg.withDefaults()}
	c.Reset()
	return c
}

// Config returns the camera constants.
func (c *Camera) Config() Config { return c.cfg }

// State returns a copy of the current offset and scale.
func (c *Camera) State() State { return c.state }

// SetState replaces offset and scale. The scale is clamped.
func (c *Camera) SetState(s State) {
	s.Scale = c.clamp(s.Scale)
	c.state = s
}

// Scale is the current zoom factor.
func (c *Camera) Scale() float64 { return c.state.Scale }

// CellScreenSize is the side of one cell in display units.
func (c *Camera) CellScreenSize() float64 { return c.cfg.CellSize * c.state.Scale }

// Reset puts the camera back at the origin with scale 1.
func (c *Camera) Reset() {
	c.state = State{Scale: c.clamp(1)}
}

func (c *Camera) clamp(s float64) float64 {
	if math.IsNaN(s) || s <= 0 {
		s = 1
	}
	return min(max(s, c.cfg.MinScale), c.cfg.MaxScale)
}

// gridPoint is the fractional grid position under a screen point.
func (c *Camera) gridPoint(sx, sy float64) (float64, float64) {
	cs := c.CellScreenSize()
	return (sx - c.state.OffsetX) / cs, (sy - c.state.OffsetY) / cs
}

// ToGrid returns the cell under a screen point. The result may be off
// the grid.
func (c *Camera) ToGrid(sx, sy float64) grid.Coord {
	gx, gy := c.gridPoint(sx, sy)
	return grid.Coord{
		X: int(math.Floor(gx + epsilon)),
		Y: int(math.Floor(gy + epsilon)),
	}
}

// ToScreen returns the top-left screen corner of cell (x, y).
func (c *Camera) ToScreen(x, y int) (float64, float64) {
	cs := c.CellScreenSize()
	return c.state.OffsetX + float64(x)*cs, c.state.OffsetY + float64(y)*cs
}

// ZoomAt multiplies the scale by factor, clamped, keeping the grid point
// under (sx, sy) fixed on screen.
func (c *Camera) ZoomAt(sx, sy, factor float64) {
	if factor <= 0 || math.IsNaN(factor) || math.IsInf(factor, 0) {
		return
	}
	gx, gy := c.gridPoint(sx, sy)
	c.state.Scale = c.clamp(c.state.Scale * factor)
	cs := c.CellScreenSize()
	c.state.OffsetX = sx - gx*cs
	c.state.OffsetY = sy - gy*cs
}

// ZoomBy zooms around the center of a w x h viewport.
func (c *Camera) ZoomBy(factor, w, h float64) {
	c.ZoomAt(w/2, h/2, factor)
}

// Pan moves the camera by a screen delta. There is no bound.
func (c *Camera) Pan(dx, dy float64) {
	c.state.OffsetX += dx
	c.state.OffsetY += dy
}

// VisibleCellRange returns the cells intersecting a w x h viewport,
// clamped to the grid. Max bounds are exclusive.
func (c *Camera) VisibleCellRange(w, h float64) grid.Rect {
	cs := c.CellScreenSize()
	r := grid.Rect{
		MinX: int(math.Floor(-c.state.OffsetX / cs)),
		MinY: int(math.Floor(-c.state.OffsetY / cs)),
		MaxX: int(math.Ceil((w - c.state.OffsetX) / cs)),
		MaxY: int(math.Ceil((h - c.state.OffsetY) / cs)),
	}
	return r.Clamp(c.cfg.GridSize)
}

// Center fits target inside a w x h viewport with FitPadding on every
// side, never zooming in past MaxFitScale, and centers it. It reports
// false and leaves the camera alone when target is empty.
func (c *Camera) Center(target grid.Rect, w, h float64) bool {
	if target.Empty() || w <= 0 || h <= 0 {
		return false
	}
	cells := func(n int) float64 { return float64(n) * c.cfg.CellSize }
	availW := max(w-2*c.cfg.FitPadding, 1)
	availH := max(h-2*c.cfg.FitPadding, 1)
	fit := min(availW/cells(target.MaxX-target.MinX), availH/cells(target.MaxY-target.MinY))
	fit = min(fit, c.cfg.MaxFitScale)
	c.state.Scale = c.clamp(fit)

	cs := c.CellScreenSize()
	cx := float64(target.MinX+target.MaxX) / 2
	cy := float64(target.MinY+target.MaxY) / 2
	c.state.OffsetX = w/2 - cx*cs
	c.state.OffsetY = h/2 - cy*cs
	return true
}
