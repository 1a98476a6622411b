package render

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"math"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ryanbastic/go-pixelwall/internal/grid"
)

// ImageCanvas draws into an RGBA image, one display unit per pixel.
type ImageCanvas struct {
	img *image.RGBA
}

// NewImageCanvas allocates a w x h canvas.
func NewImageCanvas(w, h int) *ImageCanvas {
	return &ImageCanvas{img: image.NewRGBA(image.Rect(0, 0, max(w, 1), max(h, 1)))}
}

// Image exposes the backing image.
func (c *ImageCanvas) Image() *image.RGBA { return c.img }

func (c *ImageCanvas) Size() (float64, float64) {
	b := c.img.Bounds()
	return float64(b.Dx()), float64(b.Dy())
}

func (c *ImageCanvas) Clear(col grid.Color) {
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(rgba(col)), image.Point{}, draw.Src)
}

func (c *ImageCanvas) FillRect(x, y, w, h float64, col grid.Color) {
	r := pixelRect(x, y, w, h).Intersect(c.img.Bounds())
	if r.Empty() {
		return
	}
	draw.Draw(c.img, r, image.NewUniform(rgba(col)), image.Point{}, draw.Src)
}

func (c *ImageCanvas) StrokeRect(x, y, w, h float64, col grid.Color) {
	c.FillRect(x, y, w, 1, col)
	c.FillRect(x, y+h-1, w, 1, col)
	c.FillRect(x, y, 1, h, col)
	c.FillRect(x+w-1, y, 1, h, col)
}

// Text draws s with its top-left corner at (x, y) on a contrasting
// backing box so it stays readable over any cell color.
func (c *ImageCanvas) Text(x, y float64, s string, col grid.Color) {
	face := basicfont.Face7x13
	width := font.MeasureString(face, s).Ceil()
	c.FillRect(x-3, y-2, float64(width+6), float64(face.Height+4), col.Contrast())
	d := &font.Drawer{
		Dst:  c.img,
		Src:  image.NewUniform(rgba(col)),
		Face: face,
		Dot:  fixed.P(int(x), int(y)+face.Ascent),
	}
	d.DrawString(s)
}

// EncodePNG writes the canvas as a PNG image.
func (c *ImageCanvas) EncodePNG(w io.Writer) error {
	return EncodePNG(w, c.img)
}

// EncodePNG writes img as a PNG image.
func EncodePNG(w io.Writer, img image.Image) error {
	if err := png.Encode(w, img); err != nil {
		return fmt.Errorf("encoding png: %w", err)
	}
	return nil
}

// Thumbnail returns a copy scaled to fit within maxW x maxH.
func (c *ImageCanvas) Thumbnail(maxW, maxH int) *image.RGBA {
	b := c.img.Bounds()
	scale := math.Min(float64(maxW)/float64(b.Dx()), float64(maxH)/float64(b.Dy()))
	if scale >= 1 {
		out := image.NewRGBA(b)
		draw.Copy(out, image.Point{}, c.img, b, draw.Src, nil)
		return out
	}
	dst := image.NewRGBA(image.Rect(0, 0, max(int(float64(b.Dx())*scale), 1), max(int(float64(b.Dy())*scale), 1)))
	draw.ApproxBiLinear.Scale(dst, dst.Bounds(), c.img, b, draw.Src, nil)
	return dst
}

func pixelRect(x, y, w, h float64) image.Rectangle {
	return image.Rect(
		int(math.Floor(x)), int(math.Floor(y)),
		int(math.Ceil(x+w)), int(math.Ceil(y+h)),
	)
}

func rgba(c grid.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 0xff}
}
