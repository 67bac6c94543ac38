package grid

import (
	"image"
	"image/color"

	xdraw "golang.org/x/image/draw"
)

// Sampler downsamples video frames into pixel buffers. It keeps one scratch
// surface sized to the last requested grid and reuses it while the grid
// dimensions stay the same. A Sampler is not safe for concurrent use.
type Sampler struct {
	scratch *image.RGBA
	scaler  xdraw.Scaler
}

// NewSampler creates a Sampler using smoothed bilinear scaling.
func NewSampler() *Sampler {
	return &Sampler{scaler: xdraw.ApproxBiLinear}
}

// Sample draws frame scaled to exactly columns x rows and reads every pixel
// back as RGBA. It returns false, and no buffer, when there is no frame yet or
// the grid dimensions are not positive.
func (s *Sampler) Sample(frame image.Image, columns, rows int) (*Buffer, bool) {
	if frame == nil || columns <= 0 || rows <= 0 {
		return nil, false
	}
	src := frame.Bounds()
	if src.Empty() {
		return nil, false
	}

	s.ensureScratch(columns, rows)
	s.scaler.Scale(s.scratch, s.scratch.Bounds(), frame, src, xdraw.Src, nil)

	buf := NewBuffer(columns, rows)
	for y := 0; y < rows; y++ {
		for x := 0; x < columns; x++ {
			c := color.NRGBAModel.Convert(s.scratch.RGBAAt(x, y)).(color.NRGBA)
			buf.Set(x, y, c)
		}
	}
	return buf, true
}

func (s *Sampler) ensureScratch(columns, rows int) {
	if s.scratch != nil {
		b := s.scratch.Bounds()
		if b.Dx() == columns && b.Dy() == rows {
			return
		}
	}
	s.scratch = image.NewRGBA(image.Rect(0, 0, columns, rows))
}
