package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/maauso/pixelframe-api/internal/clip"
	"github.com/maauso/pixelframe-api/internal/grid"
	"github.com/maauso/pixelframe-api/internal/job/id"
	"github.com/maauso/pixelframe-api/internal/media"
)

// ErrInvalidClip is returned when an upload cannot be read as a video.
var ErrInvalidClip = errors.New("session: upload is not a readable video")

// TempStore holds uploaded clips while their session is open.
type TempStore interface {
	SaveTemp(ctx context.Context, name string, data io.Reader) (string, error)
	CleanupTemp(ctx context.Context, paths []string) error
}

// Opener turns uploaded clips into loaded, registered sessions.
type Opener struct {
	store    TempStore
	prober   media.Prober
	decoder  media.Decoder
	registry *Registry
	logger   *slog.Logger
	opts     []Option
}

// NewOpener creates an Opener. opts are applied to every new session.
func NewOpener(store TempStore, prober media.Prober, decoder media.Decoder, registry *Registry, logger *slog.Logger, opts ...Option) *Opener {
	if logger == nil {
		logger = slog.Default()
	}
	return &Opener{
		store:    store,
		prober:   prober,
		decoder:  decoder,
		registry: registry,
		logger:   logger,
		opts:     append([]Option{WithLogger(logger)}, opts...),
	}
}

// Open stores the upload, probes it and returns a registered session with
// the clip loaded and its first frame rendered. The stored file is removed
// when the clip is released.
func (o *Opener) Open(ctx context.Context, name string, data io.Reader, cfg grid.Config) (*Session, error) {
	path, err := o.store.SaveTemp(ctx, name, data)
	if err != nil {
		return nil, fmt.Errorf("save upload: %w", err)
	}
	release := func() error {
		return o.store.CleanupTemp(context.Background(), []string{path})
	}

	info, err := o.prober.Probe(ctx, path)
	if err != nil {
		_ = release()
		o.logger.Warn("rejected upload",
			slog.String("name", name),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %v", ErrInvalidClip, err)
	}

	c := clip.New(id.New(id.PrefixClip), path, info, release)
	p := clip.NewPlayer(c, o.decoder, o.logger)
	s := New(id.New(id.PrefixSession), cfg, o.opts...)

	if err := s.Load(ctx, p); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("%w: %v", ErrInvalidClip, err)
	}
	o.registry.Add(s)
	return s, nil
}
