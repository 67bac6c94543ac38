// Package mediatest provides in-memory media fakes for tests.
package mediatest

import (
	"context"
	"image"
	"io"
	"sync"
	"time"

	"github.com/maauso/pixelframe-api/internal/media"
)

// Decoder is a media.Decoder that yields Frames solid frames per stream. The
// red channel of frame n is n (mod 256), so tests can tell frames apart.
type Decoder struct {
	// Frames is the number of frames every stream yields before io.EOF.
	Frames int
	// Err, when set, is returned by Decode.
	Err error

	mu     sync.Mutex
	starts []time.Duration
}

var _ media.Decoder = (*Decoder)(nil)

// Decode implements media.Decoder.
func (d *Decoder) Decode(ctx context.Context, _ string, info media.Info, start time.Duration, _ float64) (media.FrameStream, error) {
	d.mu.Lock()
	d.starts = append(d.starts, start)
	d.mu.Unlock()
	if d.Err != nil {
		return nil, d.Err
	}
	w, h := info.Width, info.Height
	if w <= 0 || h <= 0 {
		w, h = 1, 1
	}
	return &stream{ctx: ctx, w: w, h: h, left: d.Frames}, nil
}

// Starts returns the start offsets of every Decode call so far.
func (d *Decoder) Starts() []time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]time.Duration(nil), d.starts...)
}

type stream struct {
	ctx  context.Context
	w, h int
	left int
	n    int
}

func (s *stream) Next() (*image.RGBA, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if s.left == 0 {
		return nil, io.EOF
	}
	s.left--
	img := Solid(s.w, s.h, uint8(s.n))
	s.n++
	return img, nil
}

func (s *stream) Close() error { return nil }

// Solid returns an opaque w x h image whose red channel is r.
func Solid(w, h int, r uint8) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i] = r
		img.Pix[i+3] = 255
	}
	return img
}
