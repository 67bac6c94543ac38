package export

import (
	"math"
	"strconv"
	"strings"

	"github.com/maauso/pixelframe-api/internal/grid"
)

// BuildSVG emits an SVG document the size of the rendered raster: one white
// background rect plus one rect per cell at the same geometry grid.Render uses.
func BuildSVG(buf *grid.Buffer, cellSize, borderSize int) []byte {
	w, h := grid.OutputSize(buf.Columns, buf.Rows, cellSize, borderSize)
	ws, hs := strconv.Itoa(w), strconv.Itoa(h)

	var b strings.Builder
	b.Grow(96 + buf.Len()*72)
	b.WriteString(`<svg xmlns="http://www.w3.org/2000/svg" width="`)
	b.WriteString(ws)
	b.WriteString(`" height="`)
	b.WriteString(hs)
	b.WriteString(`" viewBox="0 0 `)
	b.WriteString(ws)
	b.WriteByte(' ')
	b.WriteString(hs)
	b.WriteString(`">`)
	b.WriteString(`<rect x="0" y="0" width="`)
	b.WriteString(ws)
	b.WriteString(`" height="`)
	b.WriteString(hs)
	b.WriteString(`" fill="#ffffff"/>`)

	size := strconv.Itoa(cellSize)
	for y := 0; y < buf.Rows; y++ {
		for x := 0; x < buf.Columns; x++ {
			r := grid.CellRect(x, y, cellSize, borderSize)
			c := buf.At(x, y)
			b.WriteString(`<rect x="`)
			b.WriteString(strconv.Itoa(r.Min.X))
			b.WriteString(`" y="`)
			b.WriteString(strconv.Itoa(r.Min.Y))
			b.WriteString(`" width="`)
			b.WriteString(size)
			b.WriteString(`" height="`)
			b.WriteString(size)
			b.WriteString(`" fill="rgba(`)
			b.WriteString(strconv.Itoa(int(c.R)))
			b.WriteByte(',')
			b.WriteString(strconv.Itoa(int(c.G)))
			b.WriteByte(',')
			b.WriteString(strconv.Itoa(int(c.B)))
			b.WriteByte(',')
			b.WriteString(formatAlpha(buf.Alpha(x, y)))
			b.WriteString(`)"/>`)
		}
	}
	b.WriteString(`</svg>`)
	return []byte(b.String())
}

// formatAlpha renders a 0..1 alpha with at most three decimals.
func formatAlpha(a float64) string {
	return strconv.FormatFloat(math.Round(a*1000)/1000, 'f', -1, 64)
}
