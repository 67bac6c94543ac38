package grid

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// BorderColor is the color of the gaps between cells.
var BorderColor = color.NRGBA{R: 255, G: 255, B: 255, A: 255}

// Render expands buf into a bordered raster. The raster is filled with the
// border color first, then each cell is composited as a solid
// cellSize x cellSize block using straight alpha over white.
func Render(buf *Buffer, cellSize, borderSize int) *image.RGBA {
	w, h := OutputSize(buf.Columns, buf.Rows, cellSize, borderSize)
	dst := image.NewRGBA(image.Rect(0, 0, w, h))
	xdraw.Draw(dst, dst.Bounds(), image.NewUniform(BorderColor), image.Point{}, xdraw.Src)

	fill := &image.Uniform{}
	for y := 0; y < buf.Rows; y++ {
		for x := 0; x < buf.Columns; x++ {
			c := buf.At(x, y)
			if c.A == 0 {
				continue
			}
			fill.C = c
			xdraw.Draw(dst, CellRect(x, y, cellSize, borderSize), fill, image.Point{}, xdraw.Over)
		}
	}
	return dst
}
