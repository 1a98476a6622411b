package render

import "github.com/ryanbastic/go-pixelwall/internal/grid"

// Canvas is a drawing surface measured in display units.
type Canvas interface {
	Size() (w, h float64)
	Clear(c grid.Color)
	FillRect(x, y, w, h float64, c grid.Color)
	StrokeRect(x, y, w, h float64, c grid.Color)
	Text(x, y float64, s string, c grid.Color)
}

// Theme holds the colors of a draw pass.
type Theme struct {
	Background grid.Color
	Grid       grid.Color
	Lines      grid.Color
	Selection  grid.Color
	Hover      grid.Color
	Overlay    grid.Color
}

// DefaultTheme is the palette used when none is given.
var DefaultTheme = Theme{
	Background: grid.MustParseColor("#2B2B2B"),
	Grid:       grid.White,
	Lines:      grid.MustParseColor("#E0E0E0"),
	Selection:  grid.MustParseColor("#1E90FF"),
	Hover:      grid.MustParseColor("#FFA500"),
	Overlay:    grid.MustParseColor("#F5F5F5"),
}
