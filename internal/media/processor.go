// Package media provides video probing, frame decoding and encoding on top of
// the ffmpeg and ffprobe command line tools.
package media

import (
	"context"
	"image"
	"time"
)

// Info describes the video stream of a media file.
type Info struct {
	// Width is the natural frame width in pixels.
	Width int `json:"width"`
	// Height is the natural frame height in pixels.
	Height int `json:"height"`
	// Duration is the total playback length.
	Duration time.Duration `json:"duration"`
	// FrameRate is the stream frame rate in frames per second.
	FrameRate float64 `json:"frame_rate"`
}

// Prober reads stream metadata from a media file.
type Prober interface {
	Probe(ctx context.Context, path string) (Info, error)
}

// FrameStream yields decoded frames in presentation order.
// Next returns io.EOF once the stream reaches its natural end.
type FrameStream interface {
	Next() (*image.RGBA, error)
	Close() error
}

// Decoder opens frame streams over a media file.
type Decoder interface {
	// Decode streams frames of path starting at start, resampled to fps.
	Decode(ctx context.Context, path string, info Info, start time.Duration, fps float64) (FrameStream, error)
}

// RecordSpec describes an encoded video recording.
type RecordSpec struct {
	// Width and Height are the frame size every written frame is fitted to.
	Width, Height int
	// FPS is the constant input frame rate.
	FPS int
	// Codec is the ffmpeg encoder name, e.g. "libvpx-vp9".
	Codec string
	// Container is the ffmpeg muxer name, e.g. "webm" or "mp4".
	Container string
}

// Recording is a running video encode fed one frame at a time.
type Recording interface {
	// WriteFrame appends one frame to the recording.
	WriteFrame(img *image.RGBA) error
	// Stop finishes the encode and returns the encoded output as the chunks
	// it arrived in.
	Stop() ([][]byte, error)
	// Close releases the encoder. It is safe to call after Stop and more than once.
	Close() error
}

// Encoder produces encoded images and videos.
type Encoder interface {
	// SupportsCodec reports whether the named video encoder is available.
	SupportsCodec(ctx context.Context, codec string) (bool, error)
	// Record starts a new video recording.
	Record(ctx context.Context, spec RecordSpec) (Recording, error)
	// EncodeWebP encodes img as a lossy WebP at the given quality (0-100).
	EncodeWebP(ctx context.Context, img image.Image, quality int) ([]byte, error)
}
