package viewport

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
)

func testCamera() *Camera {
	return New(Config{GridSize: 1000, CellSize: 10, MinScale: 0.05, MaxScale: 20, MaxFitScale: 4, FitPadding: 40})
}

func cameraStates() []State {
	states := []State{
		{OffsetX: 0, OffsetY: 0, Scale: 1},
		{OffsetX: 13.37, OffsetY: -250.5, Scale: 0.05},
		{OffsetX: -9999.25, OffsetY: 4321.125, Scale: 20},
		{OffsetX: 0.1, OffsetY: 0.2, Scale: 0.3},
		{OffsetX: -1234.5678, OffsetY: -8765.4321, Scale: 3.14159},
	}
	r := rand.New(rand.NewPCG(1, 2))
	for range 20 {
		states = append(states, State{
			OffsetX: (r.Float64() - 0.5) * 20000,
			OffsetY: (r.Float64() - 0.5) * 20000,
			Scale:   0.05 + r.Float64()*19.95,
		})
	}
	return states
}

func TestToGrid_InvertsToScreen(t *testing.T) {
	cam := testCamera()
	for _, st := range cameraStates() {
		cam.SetState(st)
		for _, c := range []grid.Coord{{X: 0, Y: 0}, {X: 1, Y: 0}, {X: 0, Y: 1}, {X: 7, Y: 3}, {X: 499, Y: 500}, {X: 998, Y: 999}, {X: 999, Y: 999}} {

			sx, sy := cam.ToScreen(c.X, c.Y)
			assert.Equal(t, c, cam.ToGrid(sx, sy), "state %+v", st)
		}
	}
}

func TestToGrid_FloorsInsideCell(t *testing.T) {
	cam := testCamera()
	assert.Equal(t, grid.Coord{X: 0, Y: 0}, cam.ToGrid(9.99, 0.01))
	assert.Equal(t, grid.Coord{X: 1, Y: 2}, cam.ToGrid(10, 25))
	assert.Equal(t, grid.Coord{X: -1, Y: -1}, cam.ToGrid(-0.5, -3))
}

func TestZoomAt_PreservesAnchor(t *testing.T) {
	cam := testCamera()
	points := [][2]float64{{0, 0}, {400, 300}, {799.5, 12.25}, {-50, 1000}}
	factors := []float64{0.5, 0.9, 1.1, 2, 10, 0.01, 1000}

	for _, st := range cameraStates() {
		for _, p := range points {
			for _, f := range factors {
				cam.SetState(st)
				before := cam.ToGrid(p[0], p[1])
				cam.ZoomAt(p[0], p[1], f)
				after := cam.ToGrid(p[0], p[1])
				assert.InDelta(t, before.X, after.X, 1, "state %+v point %v factor %v", st, p, f)
				assert.InDelta(t, before.Y, after.Y, 1, "state %+v point %v factor %v", st, p, f)
			}
		}
	}
}

func TestZoomAt_ClampsScale(t *testing.T) {
	cam := testCamera()
	cam.ZoomAt(0, 0, 1e9)
	assert.Equal(t, 20.0, cam.Scale())
	cam.ZoomAt(0, 0, 1e-9)
	assert.Equal(t, 0.05, cam.Scale())

	cam.ZoomAt(0, 0, 0)
	assert.Equal(t, 0.05, cam.Scale(), "non-positive factor is ignored")

	cam.SetState(State{Scale: 500})
	assert.Equal(t, 20.0, cam.Scale())
}

func TestPan_IsUnbounded(t *testing.T) {
	cam := testCamera()
	cam.Pan(1e7, -1e7)
	assert.Equal(t, State{OffsetX: 1e7, OffsetY: -1e7, Scale: 1}, cam.State())
	assert.True(t, cam.VisibleCellRange(800, 600).Empty())
}

func TestVisibleCellRange_StaysOnGrid(t *testing.T) {
	cam := testCamera()
	for _, st := range cameraStates() {
		cam.SetState(st)
		r := cam.VisibleCellRange(800, 600)
		assert.GreaterOrEqual(t, r.MinX, 0)
		assert.GreaterOrEqual(t, r.MinY, 0)
		assert.LessOrEqual(t, r.MaxX, 1000)
		assert.LessOrEqual(t, r.MaxY, 1000)
	}
}

func TestVisibleCellRange_CoversViewport(t *testing.T) {
	cam := testCamera()
	cam.SetState(State{OffsetX: -55, OffsetY: -5, Scale: 1})

	r := cam.VisibleCellRange(100, 50)
	assert.Equal(t, grid.Rect{MinX: 5, MinY: 0, MaxX: 16, MaxY: 6}, r)

	assert.True(t, r.Contains(cam.ToGrid(0, 0)))
	assert.True(t, r.Contains(cam.ToGrid(99.9, 49.9)))
}

func TestCenter_FitsAndCenters(t *testing.T) {
	cam := testCamera()
	target := grid.Rect{MinX: 100, MinY: 100, MaxX: 200, MaxY: 150}

	require.True(t, cam.Center(target, 880, 580))
	// 800/1000 vs 500/500: width limits.
	assert.InDelta(t, 0.8, cam.Scale(), 1e-9)

	sx, sy := cam.ToScreen(150, 125)
	assert.InDelta(t, 440, sx, 1e-6)
	assert.InDelta(t, 290, sy, 1e-6)

	r := cam.VisibleCellRange(880, 580)
	assert.LessOrEqual(t, r.MinX, target.MinX)
	assert.GreaterOrEqual(t, r.MaxX, target.MaxX)
}

func TestCenter_CapsZoomIn(t *testing.T) {
	cam := testCamera()
	require.True(t, cam.Center(grid.Rect{MinX: 5, MinY: 5, MaxX: 6, MaxY: 6}, 800, 600))
	assert.Equal(t, 4.0, cam.Scale())
	assert.Equal(t, grid.Coord{X: 5, Y: 5}, cam.ToGrid(400, 300))
}

func TestCenter_EmptyRectIsNoop(t *testing.T) {
	cam := testCamera()
	cam.Pan(10, 10)
	before := cam.State()
	assert.False(t, cam.Center(grid.Rect{}, 800, 600))
	assert.Equal(t, before, cam.State())
}

func TestReset(t *testing.T) {
	cam := New(Config{MinScale: 2, MaxScale: 5})
	assert.Equal(t, 2.0, cam.Scale())
	cam.Pan(3, 3)
	cam.Reset()
	assert.Equal(t, State{Scale: 2}, cam.State())
}
