package grid

import (
	"errors"
	"fmt"
	"image/color"
)

// ErrBufferSize is returned when a channel slice does not match the buffer dimensions.
var ErrBufferSize = errors.New("grid: channel data does not match buffer dimensions")

// Buffer is a low-resolution grid of RGBA samples, one per cell. Pix is
// row-major (top-to-bottom, left-to-right) with 4 non-premultiplied bytes per
// sample. A Buffer is recomputed on every sampling pass and never mutated
// after it is published.
type Buffer struct {
	Columns int
	Rows    int
	Pix     []uint8
}

// NewBuffer allocates a zeroed buffer of cols x rows samples.
func NewBuffer(cols, rows int) *Buffer {
	return &Buffer{Columns: cols, Rows: rows, Pix: make([]uint8, cols*rows*4)}
}

// BufferFromChannels builds a buffer from a flat R,G,B,A channel slice, the
// shape produced by Channels.
func BufferFromChannels(cols, rows int, channels []int) (*Buffer, error) {
	if cols <= 0 || rows <= 0 || len(channels) != cols*rows*4 {
		return nil, fmt.Errorf("%w: %dx%d with %d channels", ErrBufferSize, cols, rows, len(channels))
	}
	b := NewBuffer(cols, rows)
	for i, v := range channels {
		b.Pix[i] = uint8(clampInt(v, 0, 255))
	}
	return b, nil
}

// Len returns the number of samples.
func (b *Buffer) Len() int {
	return b.Columns * b.Rows
}

// offset returns the index of the first channel of sample (x, y).
func (b *Buffer) offset(x, y int) int {
	return (y*b.Columns + x) * 4
}

// At returns the sample at (x, y).
func (b *Buffer) At(x, y int) color.NRGBA {
	i := b.offset(x, y)
	p := b.Pix[i : i+4 : i+4]
	return color.NRGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// Set stores c at (x, y).
func (b *Buffer) Set(x, y int, c color.NRGBA) {
	i := b.offset(x, y)
	p := b.Pix[i : i+4 : i+4]
	p[0], p[1], p[2], p[3] = c.R, c.G, c.B, c.A
}

// Alpha returns the alpha of sample (x, y) normalized to 0..1.
func (b *Buffer) Alpha(x, y int) float64 {
	return float64(b.Pix[b.offset(x, y)+3]) / 255
}

// Channels returns the flat channel array as ints, in buffer order.
func (b *Buffer) Channels() []int {
	out := make([]int, len(b.Pix))
	for i, v := range b.Pix {
		out[i] = int(v)
	}
	return out
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	pix := make([]uint8, len(b.Pix))
	copy(pix, b.Pix)
	return &Buffer{Columns: b.Columns, Rows: b.Rows, Pix: pix}
}
