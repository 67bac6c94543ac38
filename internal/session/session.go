// Package session keeps one uploaded clip per session and re-renders its
// pixel grid whenever the clip plays or the grid configuration changes.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/maauso/pixelframe-api/internal/clip"
	"github.com/maauso/pixelframe-api/internal/grid"
	"github.com/maauso/pixelframe-api/internal/loop"
)

// Static errors for session operations.
var (
	ErrNotReady = errors.New("session: no rendered frame yet")
	ErrNoClip   = errors.New("session: no clip loaded")
	ErrClosed   = errors.New("session: closed")
)

// DefaultRenderRate is the refresh rate of the render loop while playing.
const DefaultRenderRate = 60.0

// State is the render state of a session.
type State string

const (
	// StateIdle means no clip is loaded.
	StateIdle State = "idle"
	// StateLoaded means a clip is ready and the loop is not running.
	StateLoaded State = "loaded"
	// StatePlaying means the render loop is running.
	StatePlaying State = "playing"
)

// Player is the playback surface a session renders from. *clip.Player
// implements it.
type Player interface {
	Load(ctx context.Context) error
	Play() error
	Pause()
	Seek(ctx context.Context, pos time.Duration) error
	Frame() image.Image
	Position() time.Duration
	State() clip.State
	OnEvent(fn func(clip.Event)) (unsubscribe func())
	Clip() *clip.Clip
	Close() error
}

var _ Player = (*clip.Player)(nil)

// Frame is a snapshot of the last completed render pass. Buffer and Raster
// are shared with the session and must not be modified.
type Frame struct {
	Buffer *grid.Buffer
	Raster *image.RGBA
	Config grid.Config
	Layout grid.Layout
	// SourceWidth and SourceHeight are the natural clip dimensions.
	SourceWidth  int
	SourceHeight int
	Position     time.Duration
}

// Info describes a session for status reporting.
type Info struct {
	ID            string
	State         State
	Ready         bool
	Config        grid.Config
	Layout        grid.Layout
	ClipID        string
	SourceWidth   int
	SourceHeight  int
	FrameRate     float64
	Duration      time.Duration
	Position      time.Duration
	PlaybackState clip.State
	Passes        int64
	CreatedAt     time.Time
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) {
		s.logger = l
	}
}

// WithRenderRate sets the render loop refresh rate in hertz.
func WithRenderRate(hz float64) Option {
	return func(s *Session) {
		if hz > 0 {
			s.interval = loop.Interval(hz)
		}
	}
}

// WithPassHook registers fn to be called after every completed render pass
// with the time the pass took.
func WithPassHook(fn func(time.Duration)) Option {
	return func(s *Session) {
		s.onPass = fn
	}
}

// Session owns one clip and its render state.
type Session struct {
	ID        string
	CreatedAt time.Time

	logger   *slog.Logger
	interval time.Duration
	onPass   func(time.Duration)
	passes   atomic.Int64

	mu          sync.Mutex
	cfg         grid.Config
	layout      grid.Layout
	player      Player
	unsubscribe func()
	ready       bool
	state       State
	task        *loop.Task
	sampler     *grid.Sampler
	buffer      *grid.Buffer
	raster      *image.RGBA
	position    time.Duration
	closed      bool
}

// New creates an idle session with the given initial grid configuration.
func New(id string, cfg grid.Config, opts ...Option) *Session {
	s := &Session{
		ID:        id,
		CreatedAt: time.Now().UTC(),
		logger:    slog.Default(),
		interval:  loop.Interval(DefaultRenderRate),
		cfg:       cfg.Clamp(),
		state:     StateIdle,
		sampler:   grid.NewSampler(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load replaces the session clip with the one behind p. Any previous clip is
// stopped and released first. Once the first frame is available the session
// becomes ready and renders one pass.
func (s *Session) Load(ctx context.Context, p Player) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	old, oldTask, oldUnsub := s.detachLocked()
	s.mu.Unlock()

	s.teardown(old, oldTask, oldUnsub)

	unsubscribe := p.OnEvent(s.handleEvent)
	if err := p.Load(ctx); err != nil {
		unsubscribe()
		_ = p.Close()
		return fmt.Errorf("load clip: %w", err)
	}

	c := p.Clip()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		unsubscribe()
		_ = p.Close()
		return ErrClosed
	}
	s.player = p
	s.unsubscribe = unsubscribe
	s.layout = grid.NewLayout(s.cfg, c.Width(), c.Height())
	s.ready = true
	s.state = StateLoaded
	s.passLocked()

	s.logger.Info("clip loaded",
		slog.String("session_id", s.ID),
		slog.String("clip_id", c.ID),
		slog.Int("width", c.Width()),
		slog.Int("height", c.Height()),
		slog.Int("columns", s.layout.Columns),
		slog.Int("rows", s.layout.Rows),
	)
	return nil
}

// SetConfig stores cfg, clamped into range, and returns the stored value.
// When a clip is ready exactly one render pass runs immediately, whether or
// not the clip is playing.
func (s *Session) SetConfig(cfg grid.Config) grid.Config {
	cfg = cfg.Clamp()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cfg = cfg
	if !s.ready || s.player == nil {
		return cfg
	}
	c := s.player.Clip()
	s.layout = grid.NewLayout(cfg, c.Width(), c.Height())
	s.passLocked()
	return cfg
}

// Config returns the current grid configuration.
func (s *Session) Config() grid.Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Play starts clip playback. The render loop follows the player's events.
func (s *Session) Play() error {
	p, err := s.currentPlayer()
	if err != nil {
		return err
	}
	return p.Play()
}

// Pause pauses clip playback.
func (s *Session) Pause() error {
	p, err := s.currentPlayer()
	if err != nil {
		return err
	}
	p.Pause()
	return nil
}

// Rewind seeks the clip back to its first frame and renders it.
func (s *Session) Rewind(ctx context.Context) error {
	p, err := s.currentPlayer()
	if err != nil {
		return err
	}
	if err := p.Seek(ctx, 0); err != nil {
		return fmt.Errorf("rewind: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == p && s.state != StatePlaying {
		s.passLocked()
	}
	return nil
}

// Player returns the current player, or ErrNoClip.
func (s *Session) Player() (Player, error) {
	return s.currentPlayer()
}

// Snapshot returns the last completed render pass.
func (s *Session) Snapshot() (Frame, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.raster == nil || s.buffer == nil || s.player == nil {
		return Frame{}, ErrNotReady
	}
	c := s.player.Clip()
	return Frame{
		Buffer:       s.buffer,
		Raster:       s.raster,
		Config:       s.cfg,
		Layout:       s.layout,
		SourceWidth:  c.Width(),
		SourceHeight: c.Height(),
		Position:     s.position,
	}, nil
}

// Raster returns the current rendered raster, or false before the first pass.
// The image is never modified after it is published.
func (s *Session) Raster() (*image.RGBA, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.raster, s.raster != nil
}

// Passes returns the number of completed render passes.
func (s *Session) Passes() int64 {
	return s.passes.Load()
}

// State returns the render state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Ready reports whether a clip is loaded and renderable.
func (s *Session) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// Info returns a status summary.
func (s *Session) Info() Info {
	s.mu.Lock()
	defer s.mu.Unlock()
	info := Info{
		ID:        s.ID,
		State:     s.state,
		Ready:     s.ready,
		Config:    s.cfg,
		Layout:    s.layout,
		Passes:    s.passes.Load(),
		CreatedAt: s.CreatedAt,
	}
	if s.player != nil {
		c := s.player.Clip()
		info.ClipID = c.ID
		info.SourceWidth = c.Width()
		info.SourceHeight = c.Height()
		info.FrameRate = c.FrameRate()
		info.Duration = c.Info.Duration
		info.Position = s.player.Position()
		info.PlaybackState = s.player.State()
	}
	return info
}

// Close stops the render loop, closes the player and releases the clip.
// Close is idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	old, task, unsub := s.detachLocked()
	s.mu.Unlock()

	return s.teardown(old, task, unsub)
}

func (s *Session) currentPlayer() (Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrClosed
	}
	if s.player == nil {
		return nil, ErrNoClip
	}
	return s.player, nil
}

// detachLocked clears the clip state and returns what must be torn down
// outside the lock.
func (s *Session) detachLocked() (Player, *loop.Task, func()) {
	p, task, unsub := s.player, s.task, s.unsubscribe
	s.player = nil
	s.task = nil
	s.unsubscribe = nil
	s.ready = false
	s.state = StateIdle
	s.buffer = nil
	s.raster = nil
	s.position = 0
	return p, task, unsub
}

func (s *Session) teardown(p Player, task *loop.Task, unsub func()) error {
	if unsub != nil {
		unsub()
	}
	if task != nil {
		task.Stop()
	}
	if p == nil {
		return nil
	}
	if err := p.Close(); err != nil {
		return fmt.Errorf("close player: %w", err)
	}
	return nil
}

func (s *Session) handleEvent(ev clip.Event) {
	switch ev.Type {
	case clip.EventPlay:
		s.startLoop()
	case clip.EventPause, clip.EventEnded:
		s.stopLoop()
	}
}

func (s *Session) startLoop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || !s.ready || s.task != nil {
		return
	}
	// a late Play notification after a pause must not restart the loop
	if s.player.State() != clip.StatePlaying {
		return
	}
	s.task = loop.Start(context.Background(), s.interval, func(context.Context) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.passLocked()
	})
	s.state = StatePlaying
	s.logger.Debug("render loop started", slog.String("session_id", s.ID))
}

func (s *Session) stopLoop() {
	s.mu.Lock()
	task := s.task
	if task == nil || s.player.State() == clip.StatePlaying {
		s.mu.Unlock()
		return
	}
	s.task = nil
	if s.ready {
		s.state = StateLoaded
	}
	s.mu.Unlock()

	// Stop waits for an in-flight pass, which needs s.mu
	task.Stop()
	s.logger.Debug("render loop stopped", slog.String("session_id", s.ID))
}

// passLocked samples the current frame and renders it. It is skipped when no
// clip is ready or no frame has been decoded yet. s.mu must be held.
func (s *Session) passLocked() bool {
	if !s.ready || s.player == nil {
		s.logger.Debug("render pass skipped: not ready", slog.String("session_id", s.ID))
		return false
	}
	start := time.Now()
	buf, ok := s.sampler.Sample(s.player.Frame(), s.layout.Columns, s.layout.Rows)
	if !ok {
		s.logger.Debug("render pass skipped: no frame", slog.String("session_id", s.ID))
		return false
	}
	s.buffer = buf
	s.raster = grid.Render(buf, s.layout.CellSize, s.layout.BorderSize)
	s.position = s.player.Position()
	s.passes.Add(1)
	if s.onPass != nil {
		s.onPass(time.Since(start))
	}
	return true
}
