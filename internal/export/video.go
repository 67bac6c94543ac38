package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/maauso/pixelframe-api/internal/clip"
	"github.com/maauso/pixelframe-api/internal/media"
	"github.com/maauso/pixelframe-api/internal/session"
)

// DefaultCaptureFPS is the frame rate at which the rendered raster is captured.
const DefaultCaptureFPS = 30

// errPlaybackInterrupted means the clip stopped before reaching its end.
var errPlaybackInterrupted = errors.New("playback stopped before the clip ended")

// Source is the render session a video export captures from.
type Source interface {
	Player() (session.Player, error)
	Snapshot() (session.Frame, error)
	Raster() (*image.RGBA, bool)
}

var _ Source = (*session.Session)(nil)

// VideoExporter re-records a whole clip through the render pipeline.
type VideoExporter struct {
	encoder media.Encoder
	fps     int
	logger  *slog.Logger
}

// VideoOption configures a VideoExporter.
type VideoOption func(*VideoExporter)

// WithCaptureFPS sets the capture frame rate.
func WithCaptureFPS(fps int) VideoOption {
	return func(v *VideoExporter) {
		if fps > 0 {
			v.fps = fps
		}
	}
}

// WithVideoLogger sets the logger.
func WithVideoLogger(l *slog.Logger) VideoOption {
	return func(v *VideoExporter) {
		v.logger = l
	}
}

// NewVideoExporter creates a VideoExporter encoding through enc.
func NewVideoExporter(enc media.Encoder, opts ...VideoOption) *VideoExporter {
	v := &VideoExporter{
		encoder: enc,
		fps:     DefaultCaptureFPS,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Export rewinds the clip behind src, plays it to the end while recording the
// rendered raster at the capture rate, and returns the encoded video.
//
// An unavailable codec fails with ErrUnsupportedFormat before anything is
// started. Any later failure pauses playback and returns ErrExportFailed; the
// cause is logged. Export blocks until the clip ends, ctx is cancelled, or
// playback is paused or closed underneath it.
func (v *VideoExporter) Export(ctx context.Context, src Source, f Format) (art Artifact, err error) {
	if f.Kind != KindVideo {
		return Artifact{}, fmt.Errorf("%w: %q is not a video format", ErrUnsupportedFormat, f.Name)
	}

	ok, err := v.encoder.SupportsCodec(ctx, f.Codec)
	if err != nil {
		v.logger.Error("codec lookup failed", slog.String("codec", f.Codec), slog.String("error", err.Error()))
		return Artifact{}, fmt.Errorf("%w: %s", ErrExportFailed, f.Name)
	}
	if !ok {
		return Artifact{}, fmt.Errorf("%w: %s encoder %s is not available", ErrUnsupportedFormat, f.Name, f.Codec)
	}

	player, err := src.Player()
	if err != nil {
		return Artifact{}, err
	}
	frame, err := src.Snapshot()
	if err != nil {
		return Artifact{}, err
	}
	bounds := frame.Raster.Bounds()

	defer func() {
		if err != nil {
			player.Pause()
			v.logger.Error("video export failed",
				slog.String("format", f.Name),
				slog.String("error", err.Error()),
			)
			err = fmt.Errorf("%w: %s", ErrExportFailed, f.Name)
		}
	}()

	ended := make(chan struct{})
	interrupted := make(chan clip.EventType, 1)
	var endOnce, interruptOnce sync.Once
	unsubscribe := player.OnEvent(func(ev clip.Event) {
		switch ev.Type {
		case clip.EventEnded:
			endOnce.Do(func() { close(ended) })
		case clip.EventPause, clip.EventClosed:
			interruptOnce.Do(func() { interrupted <- ev.Type })
		}
	})
	defer unsubscribe()

	start := time.Now()
	if err := player.Seek(ctx, 0); err != nil {
		return Artifact{}, fmt.Errorf("rewind: %w", err)
	}
	if err := player.Play(); err != nil {
		return Artifact{}, fmt.Errorf("play: %w", err)
	}

	// the recorder outlives the errgroup context, which is cancelled when Wait returns
	rec, err := v.encoder.Record(ctx, media.RecordSpec{
		Width:     bounds.Dx(),
		Height:    bounds.Dy(),
		FPS:       v.fps,
		Codec:     f.Codec,
		Container: f.Container,
	})
	if err != nil {
		return Artifact{}, fmt.Errorf("start recorder: %w", err)
	}
	defer func() { _ = rec.Close() }()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		select {
		case <-ended:
			return nil
		case ev := <-interrupted:
			return fmt.Errorf("%w: %s", errPlaybackInterrupted, ev)
		case <-gctx.Done():
			return gctx.Err()
		}
	})
	g.Go(func() error {
		return v.capture(gctx, src, rec, ended)
	})
	if err := g.Wait(); err != nil {
		return Artifact{}, err
	}

	chunks, err := rec.Stop()
	if err != nil {
		return Artifact{}, fmt.Errorf("stop recorder: %w", err)
	}
	data := bytes.Join(chunks, nil)

	v.logger.Info("video export finished",
		slog.String("format", f.Name),
		slog.Int("chunks", len(chunks)),
		slog.Int("bytes", len(data)),
		slog.Duration("elapsed", time.Since(start)),
	)
	return Artifact{Name: f.FileName(), MIME: f.MIME, Data: data, Chunks: len(chunks)}, nil
}

// capture writes the current raster to rec once per capture tick until the
// clip ends.
func (v *VideoExporter) capture(ctx context.Context, src Source, rec media.Recording, ended <-chan struct{}) error {
	ticker := time.NewTicker(time.Second / time.Duration(v.fps))
	defer ticker.Stop()

	for {
		select {
		case <-ended:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			raster, ok := src.Raster()
			if !ok {
				continue
			}
			if err := rec.WriteFrame(raster); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
		}
	}
}
