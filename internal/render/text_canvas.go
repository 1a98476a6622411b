package render

import (
	"math"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
)

// RowUnits is how many display units one terminal row spans; terminal
// cells are about twice as tall as they are wide.
const RowUnits = 2

type textCell struct {
	bg grid.Color
	fg grid.Color
	ch rune
}

// TextCanvas draws into a grid of terminal cells. One column is one
// display unit wide and one row is RowUnits tall.
type TextCanvas struct {
	cols, rows int
	cells      []textCell
}

// NewTextCanvas allocates a cols x rows terminal canvas.
func NewTextCanvas(cols, rows int) *TextCanvas {
	cols, rows = max(cols, 1), max(rows, 1)
	return &TextCanvas{cols: cols, rows: rows, cells: make([]textCell, cols*rows)}
}

func (c *TextCanvas) Size() (float64, float64) {
	return float64(c.cols), float64(c.rows * RowUnits)
}

func (c *TextCanvas) Clear(col grid.Color) {
	for i := range c.cells {
		c.cells[i] = textCell{bg: col, fg: col.Contrast(), ch: ' '}
	}
}

// span converts a display-unit rectangle into the terminal cells whose
// centers it covers.
func (c *TextCanvas) span(x, y, w, h float64) (x0, y0, x1, y1 int) {
	x0 = max(int(math.Round(x)), 0)
	x1 = min(int(math.Round(x+w)), c.cols)
	y0 = max(int(math.Round(y/RowUnits)), 0)
	y1 = min(int(math.Round((y+h)/RowUnits)), c.rows)
	return x0, y0, x1, y1
}

func (c *TextCanvas) at(col, row int) *textCell {
	return &c.cells[row*c.cols+col]
}

func (c *TextCanvas) FillRect(x, y, w, h float64, col grid.Color) {
	x0, y0, x1, y1 := c.span(x, y, w, h)
	for row := y0; row < y1; row++ {
		for cx := x0; cx < x1; cx++ {
			cell := c.at(cx, row)
			cell.bg = col
			if cell.ch == ' ' {
				cell.fg = col.Contrast()
			}
		}
	}
}

// StrokeRect marks the border cells of the rectangle with a dot in col.
// A rectangle too small to cover a cell marks the cell nearest its center.
func (c *TextCanvas) StrokeRect(x, y, w, h float64, col grid.Color) {
	x0, y0, x1, y1 := c.span(x, y, w, h)
	if x1 <= x0 || y1 <= y0 {
		cx, cy := int(math.Floor(x+w/2)), int(math.Floor((y+h/2)/RowUnits))
		if cx < 0 || cy < 0 || cx >= c.cols || cy >= c.rows {
			return
		}
		x0, y0, x1, y1 = cx, cy, cx+1, cy+1
	}
	for row := y0; row < y1; row++ {
		for cx := x0; cx < x1; cx++ {
			if row != y0 && row != y1-1 && cx != x0 && cx != x1-1 {
				continue
			}
			cell := c.at(cx, row)
			cell.fg = col
			cell.ch = '•'
		}
	}
}

func (c *TextCanvas) Text(x, y float64, s string, col grid.Color) {
	row := int(math.Floor(y / RowUnits))
	if row < 0 || row >= c.rows {
		return
	}
	cx := int(math.Floor(x))
	for _, r := range s {
		if cx >= c.cols {
			break
		}
		if cx >= 0 {
			cell := c.at(cx, row)
			cell.ch = r
			cell.fg = col
			cell.bg = col.Contrast()
		}
		cx++
	}
}

// Rune returns the character at a terminal cell, for tests and plain
// output.
func (c *TextCanvas) Rune(col, row int) rune {
	return c.at(col, row).ch
}

// Background returns the fill color at a terminal cell.
func (c *TextCanvas) Background(col, row int) grid.Color {
	return c.at(col, row).bg
}

// Render returns the canvas as styled terminal output, one line per row.
// Runs of cells sharing a style are rendered together.
func (c *TextCanvas) Render() string {
	var b strings.Builder
	for row := 0; row < c.rows; row++ {
		if row > 0 {
			b.WriteByte('\n')
		}
		start := 0
		for col := 1; col <= c.cols; col++ {
			if col < c.cols && sameStyle(*c.at(col, row), *c.at(start, row)) {
				continue
			}
			first := c.at(start, row)
			var run strings.Builder
			for i := start; i < col; i++ {
				run.WriteRune(c.at(i, row).ch)
			}
			style := lipgloss.NewStyle().
				Background(lipgloss.Color(first.bg.Hex())).
				Foreground(lipgloss.Color(first.fg.Hex()))
			b.WriteString(style.Render(run.String()))
			start = col
		}
	}
	return b.String()
}

func sameStyle(a, b textCell) bool {
	return a.bg == b.bg && a.fg == b.fg
}
