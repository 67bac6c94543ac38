// Package grid provides the pixel-art grid model: configuration and geometry,
// the low-resolution pixel buffer sampled from a video frame, and the renderer
// that expands a buffer into a bordered raster.
package grid

import (
	"image"
	"math"
)

// Ranges accepted for each Config field. Values outside these bounds are
// clamped by Config.Clamp before use.
const (
	MinColumns    = 16
	MaxColumns    = 256
	MinCellSize   = 4
	MaxCellSize   = 24
	MinBorderSize = 0
	MaxBorderSize = 6
)

// Config holds the user-tunable grid settings.
type Config struct {
	// Columns is the number of cells across.
	Columns int `json:"columns"`
	// CellSize is the side of one cell in output pixels.
	CellSize int `json:"cell_size"`
	// BorderSize is the width of the white gap between cells and around the grid.
	BorderSize int `json:"border_size"`
}

// DefaultConfig returns the configuration used when nothing else is specified.
func DefaultConfig() Config {
	return Config{Columns: 64, CellSize: 10, BorderSize: 1}
}

// Clamp returns a copy of c with every field forced into its documented range.
func (c Config) Clamp() Config {
	return Config{
		Columns:    clampInt(c.Columns, MinColumns, MaxColumns),
		CellSize:   clampInt(c.CellSize, MinCellSize, MaxCellSize),
		BorderSize: clampInt(c.BorderSize, MinBorderSize, MaxBorderSize),
	}
}

// Valid reports whether every field is already inside its range.
func (c Config) Valid() bool {
	return c == c.Clamp()
}

// Rows derives the number of grid rows from the column count and the source
// aspect ratio: round(columns*srcH/srcW), never less than 1. An unknown source
// size yields a single row.
func Rows(columns, srcW, srcH int) int {
	if columns <= 0 || srcW <= 0 || srcH <= 0 {
		return 1
	}
	rows := int(math.Round(float64(columns) * float64(srcH) / float64(srcW)))
	if rows < 1 {
		return 1
	}
	return rows
}

// OutputSize returns the raster size for a grid of cols x rows cells.
func OutputSize(cols, rows, cellSize, borderSize int) (width, height int) {
	width = cols*cellSize + (cols+1)*borderSize
	height = rows*cellSize + (rows+1)*borderSize
	return width, height
}

// CellRect returns the rectangle covered by cell (x, y) in the output raster.
func CellRect(x, y, cellSize, borderSize int) image.Rectangle {
	x0 := borderSize + x*(cellSize+borderSize)
	y0 := borderSize + y*(cellSize+borderSize)
	return image.Rect(x0, y0, x0+cellSize, y0+cellSize)
}

// Layout is a fully resolved grid geometry for one source clip.
type Layout struct {
	Columns    int `json:"columns"`
	Rows       int `json:"rows"`
	CellSize   int `json:"cell_size"`
	BorderSize int `json:"border_size"`
	Width      int `json:"width"`
	Height     int `json:"height"`
}

// NewLayout resolves cfg against a source of srcW x srcH pixels. cfg is
// clamped first.
func NewLayout(cfg Config, srcW, srcH int) Layout {
	cfg = cfg.Clamp()
	rows := Rows(cfg.Columns, srcW, srcH)
	w, h := OutputSize(cfg.Columns, rows, cfg.CellSize, cfg.BorderSize)
	return Layout{
		Columns:    cfg.Columns,
		Rows:       rows,
		CellSize:   cfg.CellSize,
		BorderSize: cfg.BorderSize,
		Width:      w,
		Height:     h,
	}
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
