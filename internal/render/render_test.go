package render

import (
	"bytes"
	"image/png"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
	"github.com/ryanbastic/go-pixelwall/internal/interaction"
	"github.com/ryanbastic/go-pixelwall/internal/ledger"
	"github.com/ryanbastic/go-pixelwall/internal/viewport"
)

type rect struct {
	x, y, w, h float64
	c          grid.Color
}

type recordingCanvas struct {
	w, h    float64
	fills   []rect
	strokes []rect
	texts   []string
	clears  int
}

func (r *recordingCanvas) Size() (float64, float64) { return r.w, r.h }
func (r *recordingCanvas) Clear(grid.Color)         { r.clears++ }
func (r *recordingCanvas) FillRect(x, y, w, h float64, c grid.Color) {
	r.fills = append(r.fills, rect{x, y, w, h, c})
}
func (r *recordingCanvas) StrokeRect(x, y, w, h float64, c grid.Color) {
	r.strokes = append(r.strokes, rect{x, y, w, h, c})
}
func (r *recordingCanvas) Text(_, _ float64, s string, _ grid.Color) { r.texts = append(r.texts, s) }

type spySource struct {
	squares []ledger.Square
	asked   []grid.Rect
}

func (s *spySource) SquaresIn(r grid.Rect) []ledger.Square {
	s.asked = append(s.asked, r)
	var out []ledger.Square
	for _, sq := range s.squares {
		if r.Contains(sq.Coord) {
			out = append(out, sq)
		}
	}
	return out
}

func square(x, y int, hex, tx string) ledger.Square {
	return ledger.Square{
		Cell: grid.Cell{Coord: grid.Coord{X: x, Y: y}, Color: grid.MustParseColor(hex)},
		TxID: tx,
	}
}

func TestLoop_CoalescesRequests(t *testing.T) {
	draws := 0
	loop := NewLoop(func() { draws++ })

	assert.True(t, loop.Tick(), "first frame is dirty")
	assert.False(t, loop.Tick())

	for range 100 {
		loop.RequestRedraw()
	}
	assert.True(t, loop.Dirty())
	assert.True(t, loop.Tick())
	assert.False(t, loop.Tick())
	assert.Equal(t, 2, draws)
	assert.Equal(t, uint64(2), loop.Frames())
}

func TestLoop_ConcurrentRequests(t *testing.T) {
	var mu sync.Mutex
	draws := 0
	loop := NewLoop(func() {
		mu.Lock()
		draws++
		mu.Unlock()
	})
	loop.Tick()

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				loop.RequestRedraw()
			}
		}()
	}
	wg.Wait()
	loop.Tick()
	loop.Tick()
	assert.Equal(t, 2, draws)
}

func TestDraw_OnlyTouchesVisibleCells(t *testing.T) {
	cam := viewport.New(viewport.Config{GridSize: 1000, CellSize: 10})
	cam.SetState(viewport.State{OffsetX: -500, OffsetY: -300, Scale: 1})
	src := &spySource{squares: []ledger.Square{
		square(0, 0, "#FF0000", "a"),
		square(55, 35, "#00FF00", "b"),
		square(999, 999, "#0000FF", "c"),
	}}
	cv := &recordingCanvas{w: 200, h: 100}

	st := NewRenderer(src, DefaultTheme).Draw(cv, Frame{
		Camera:    cam,
		Selection: selectionOf(grid.Coord{X: 51, Y: 31}, grid.Coord{}),
		Hover:     grid.Coord{X: 900, Y: 900},
		Hovering:  true,
	})

	assert.Equal(t, grid.Rect{MinX: 50, MinY: 30, MaxX: 70, MaxY: 40}, st.Visible)
	require.Len(t, src.asked, 1)
	assert.Equal(t, st.Visible, src.asked[0])
	assert.Equal(t, 1, st.Cells)
	assert.Equal(t, 1, st.Outlines)
	assert.True(t, st.GridLines)

	x0, y0 := cam.ToScreen(st.Visible.MinX, st.Visible.MinY)
	x1, y1 := cam.ToScreen(st.Visible.MaxX, st.Visible.MaxY)
	for _, f := range append(cv.fills, cv.strokes...) {
		assert.GreaterOrEqual(t, f.x, x0)
		assert.GreaterOrEqual(t, f.y, y0)
		assert.LessOrEqual(t, f.x+f.w, x1+1)
		assert.LessOrEqual(t, f.y+f.h, y1+1)
	}
	assert.Equal(t, 1, cv.clears)
}

func TestDraw_BadgesOnlyForOwnScope(t *testing.T) {
	cam := viewport.New(viewport.Config{GridSize: 10, CellSize: 10})
	src := &spySource{squares: []ledger.Square{
		square(0, 0, "#FF0000", "mine"),
		square(1, 0, "#FF0000", "theirs"),
	}}
	cv := &recordingCanvas{w: 100, h: 100}

	st := NewRenderer(src, DefaultTheme).Draw(cv, Frame{Camera: cam, Scope: grid.NewTxSet("mine")})
	assert.Equal(t, 2, st.Cells)
	assert.Equal(t, 1, st.Badges)

	found := false
	for _, f := range cv.fills {
		if f.c == grid.ForOwner("mine") {
			found = true
		}
	}
	assert.True(t, found)
}

func TestDraw_NoGridLinesWhenZoomedOut(t *testing.T) {
	cam := viewport.New(viewport.Config{GridSize: 1000, CellSize: 10, MinScale: 0.05})
	cam.SetState(viewport.State{Scale: 0.1})
	st := NewRenderer(&spySource{}, DefaultTheme).Draw(&recordingCanvas{w: 50, h: 50}, Frame{Camera: cam})
	assert.False(t, st.GridLines)
	assert.Equal(t, grid.Rect{MaxX: 50, MaxY: 50}, st.Visible)
}

func TestDraw_OffGridSkipsCells(t *testing.T) {
	cam := viewport.New(viewport.Config{GridSize: 10, CellSize: 10})
	cam.Pan(5000, 5000)
	src := &spySource{}
	cv := &recordingCanvas{w: 100, h: 100}
	st := NewRenderer(src, DefaultTheme).Draw(cv, Frame{Camera: cam, Overlay: true})
	assert.True(t, st.Visible.Empty())
	assert.Empty(t, src.asked)
	assert.Empty(t, cv.fills)
	assert.Equal(t, []string{"zoom 100% | selected 0 | owned 0"}, cv.texts)
}

func TestOverlayText(t *testing.T) {
	assert.Equal(t, "zoom 250% | selected 3 | owned 12", OverlayText(2.5, 3, 12))
	assert.Equal(t, "zoom 5% | selected 0 | owned 0", OverlayText(0.05, 0, 0))
}

func TestImageCanvas_DrawsRealLedger(t *testing.T) {
	clock := ledger.NewManualClock(time.Now())
	l := ledger.New(ledger.Options{GridSize: 10, Clock: clock})
	_, err := l.Claim(ledger.ClaimRequest{TxID: "T1", Cells: []ledger.Paint{
		{Coord: grid.Coord{X: 5, Y: 5}, Color: grid.MustParseColor("#FF0000")},
	}})
	require.NoError(t, err)

	cam := viewport.New(viewport.Config{GridSize: 10, CellSize: 10})
	cv := NewImageCanvas(100, 100)
	NewRenderer(l, DefaultTheme).Draw(cv, Frame{Camera: cam, Overlay: true})

	px := cv.Image().RGBAAt(55, 55)
	assert.Equal(t, uint8(0xff), px.R)
	assert.Equal(t, uint8(0), px.G)

	var buf bytes.Buffer
	require.NoError(t, cv.EncodePNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 100, img.Bounds().Dx())

	thumb := cv.Thumbnail(50, 50)
	assert.Equal(t, 50, thumb.Bounds().Dx())
	assert.Equal(t, 100, cv.Thumbnail(200, 200).Bounds().Dx())
}

func TestImageCanvas_ClipsOutOfBounds(t *testing.T) {
	cv := NewImageCanvas(10, 10)
	assert.NotPanics(t, func() {
		cv.FillRect(-50, -50, 20, 20, grid.Black)
		cv.FillRect(5, 5, 100, 100, grid.Black)
		cv.StrokeRect(-1, -1, 30, 30, grid.White)
		cv.Text(200, 200, "off screen", grid.White)
	})
}

func TestTextCanvas(t *testing.T) {
	cv := NewTextCanvas(6, 3)
	w, h := cv.Size()
	assert.Equal(t, 6.0, w)
	assert.Equal(t, 6.0, h)

	red := grid.MustParseColor("#FF0000")
	cv.Clear(grid.White)
	cv.FillRect(2, 2, 2, 2, red)
	assert.Equal(t, red, cv.Background(2, 1))
	assert.Equal(t, red, cv.Background(3, 1))
	assert.Equal(t, grid.White, cv.Background(4, 1))
	assert.Equal(t, grid.White, cv.Background(2, 0))

	cv.StrokeRect(0, 0, 1, 1, grid.Black)
	assert.Equal(t, '•', cv.Rune(0, 0))

	cv.Text(0, 4, "hello world", grid.Black)
	assert.Equal(t, 'h', cv.Rune(0, 2))
	assert.Equal(t, ' ', cv.Rune(5, 2))

	out := cv.Render()
	assert.Len(t, strings.Split(out, "\n"), 3)
	assert.Contains(t, out, "hello")
}

func selectionOf(cs ...grid.Coord) *interaction.Selection {
	s := interaction.NewSelection()
	for _, c := range cs {
		s.Add(c)
	}
	return s
}

// everything pretends the whole grid is selected and counts lookups.
type everything struct {
	size int
	has  int
	each int
}

func (e *everything) Has(grid.Coord) bool { e.has++; return true }
func (e *everything) Len() int { return e.size * e.size }
func (e *everything) Each(func(grid.Coord)) {
	e.each++
}

func TestDraw_HugeSelectionCostsVisibleArea(t *testing.T) {
	cam := viewport.New(viewport.Config{GridSize: 1000, CellSize: 10})
	cam.SetState(viewport.State{OffsetX: -500, OffsetY: -300, Scale: 1})
	sel := &everything{size: 1000}
	cv := &recordingCanvas{w: 200, h: 100}

	st := NewRenderer(&spySource{}, DefaultTheme).Draw(cv, Frame{Camera: cam, Selection: sel, Overlay: true})

	assert.Equal(t, st.Visible.Area(), sel.has)
	assert.Zero(t, sel.each)
	assert.Equal(t, st.Visible.Area(), st.Outlines)
}

func TestDraw_SmallSelectionSkipsOffscreen(t *testing.T) {
	cam := viewport.New(viewport.Config{GridSize: 1000, CellSize: 10})
	sel := selectionOf(grid.Coord{X: 1, Y: 1}, grid.Coord{X: 2, Y: 1}, grid.Coord{X: 800, Y: 800})
	cv := &recordingCanvas{w: 200, h: 100}

	st := NewRenderer(&spySource{}, DefaultTheme).Draw(cv, Frame{Camera: cam, Selection: sel})

	assert.Equal(t, 2, st.Outlines)
	assert.Len(t, cv.strokes, 2)
}
