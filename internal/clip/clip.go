// Package clip provides the uploaded source clip handle and a real-time
// player that decodes it frame by frame and reports playback state changes.
package clip

import (
	"sync"

	"github.com/maauso/pixelframe-api/internal/media"
)

// Clip is a decodable video resource uploaded by a client. The underlying file
// is owned by the clip and removed exactly once by Release.
type Clip struct {
	// ID is the unique identifier of the upload.
	ID string
	// Path is the local file backing the clip.
	Path string
	// Info holds the probed stream metadata.
	Info media.Info

	release func() error
	once    sync.Once
	err     error
}

// New creates a Clip. release is called once by Release; it may be nil.
func New(id, path string, info media.Info, release func() error) *Clip {
	return &Clip{ID: id, Path: path, Info: info, release: release}
}

// Width returns the natural frame width.
func (c *Clip) Width() int {
	return c.Info.Width
}

// Height returns the natural frame height.
func (c *Clip) Height() int {
	return c.Info.Height
}

// FrameRate returns the stream frame rate, falling back to media.DefaultFrameRate.
func (c *Clip) FrameRate() float64 {
	if c.Info.FrameRate <= 0 {
		return media.DefaultFrameRate
	}
	return c.Info.FrameRate
}

// Release frees the resources backing the clip. Subsequent calls return the
// result of the first one.
func (c *Clip) Release() error {
	c.once.Do(func() {
		if c.release != nil {
			c.err = c.release()
		}
	})
	return c.err
}
