// Package pixel compares RGBA rasters under a per-channel and whole-image tolerance policy.
package pixel

import (
	"errors"
	"image"
	"image/draw"
)

// ErrEmptyGrid is returned when a grid has no pixels or a truncated buffer.
var ErrEmptyGrid = errors.New("pixel: empty grid")

// Grid is a row-major raster of non-premultiplied RGBA bytes.
type Grid struct {
	Width  int
	Height int
	Pix    []uint8 // len == 4*Width*Height
}

// NewGrid allocates a zeroed (transparent black) grid.
func NewGrid(width, height int) *Grid {
	return &Grid{Width: width, Height: height, Pix: make([]uint8, 4*width*height)}
}

// FromImage converts any image to a Grid. NRGBA images with a tight stride are
// shared, not copied.
func FromImage(img image.Image) *Grid {
	b := img.Bounds()
	if n, ok := img.(*image.NRGBA); ok && n.Stride == 4*b.Dx() && b.Min == (image.Point{}) {
		return &Grid{Width: b.Dx(), Height: b.Dy(), Pix: n.Pix}
	}
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), img, b.Min, draw.Src)
	return &Grid{Width: b.Dx(), Height: b.Dy(), Pix: dst.Pix}
}

// Image returns an *image.NRGBA view over the grid's buffer.
func (g *Grid) Image() *image.NRGBA {
	return &image.NRGBA{
		Pix:    g.Pix,
		Stride: 4 * g.Width,
		Rect:   image.Rect(0, 0, g.Width, g.Height),
	}
}

// Size returns the grid dimensions as a point.
func (g *Grid) Size() image.Point {
	return image.Pt(g.Width, g.Height)
}

// SameSize reports whether two grids are comparable.
func (g *Grid) SameSize(o *Grid) bool {
	return g.Width == o.Width && g.Height == o.Height
}

// Set writes one pixel.
func (g *Grid) Set(x, y int, r, gr, b, a uint8) {
	i := 4 * (y*g.Width + x)
	g.Pix[i], g.Pix[i+1], g.Pix[i+2], g.Pix[i+3] = r, gr, b, a
}

// At returns the channels of one pixel.
func (g *Grid) At(x, y int) (r, gr, b, a uint8) {
	i := 4 * (y*g.Width + x)
	return g.Pix[i], g.Pix[i+1], g.Pix[i+2], g.Pix[i+3]
}

// Fill paints the rectangle (clipped to the grid) with one color.
func (g *Grid) Fill(rect image.Rectangle, r, gr, b, a uint8) {
	rect = rect.Intersect(image.Rect(0, 0, g.Width, g.Height))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		row := g.Pix[4*(y*g.Width+rect.Min.X) : 4*(y*g.Width+rect.Max.X)]
		for i := 0; i < len(row); i += 4 {
			row[i], row[i+1], row[i+2], row[i+3] = r, gr, b, a
		}
	}
}

// Clone returns a deep copy.
func (g *Grid) Clone() *Grid {
	pix := make([]uint8, len(g.Pix))
	copy(pix, g.Pix)
	return &Grid{Width: g.Width, Height: g.Height, Pix: pix}
}

func (g *Grid) valid() bool {
	return g != nil && g.Width > 0 && g.Height > 0 && len(g.Pix) >= 4*g.Width*g.Height
}
