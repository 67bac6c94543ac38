package clip

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/maauso/pixelframe-api/internal/media"
)

// ErrPlayerClosed is returned when an operation is attempted on a closed player.
var ErrPlayerClosed = errors.New("clip: player is closed")

// State is the playback state of a Player.
type State string

const (
	// StatePaused means no playback is running; the current frame stays visible.
	StatePaused State = "paused"
	// StatePlaying means frames are being decoded and presented in real time.
	StatePlaying State = "playing"
	// StateEnded means playback reached the natural end of the clip.
	StateEnded State = "ended"
)

// EventType identifies a playback notification.
type EventType string

const (
	// EventLoaded fires once metadata is known and the first frame is available.
	EventLoaded EventType = "loaded"
	// EventPlay fires when playback starts.
	EventPlay EventType = "play"
	// EventPause fires when playback is paused.
	EventPause EventType = "pause"
	// EventEnded fires when playback reaches the end of the clip.
	EventEnded EventType = "ended"
	// EventClosed fires once when the player is closed. No event follows it.
	EventClosed EventType = "closed"
)

// Event is delivered to listeners registered with OnEvent.
type Event struct {
	Type     EventType
	Position time.Duration
}

// playback is one running decode-and-present goroutine.
type playback struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (r *playback) stop() {
	r.cancel()
	<-r.done
}

// Player plays a Clip in real time, exposing the most recently presented frame.
// Listeners are invoked on the goroutine that caused the event and must not
// call back into Pause, Play or Seek synchronously.
type Player struct {
	clip    *Clip
	decoder media.Decoder
	fps     float64
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	frame     *image.RGBA
	position  time.Duration
	run       *playback
	listeners map[int]func(Event)
	nextID    int
	closed    bool
}

// NewPlayer creates a paused Player for c.
func NewPlayer(c *Clip, decoder media.Decoder, logger *slog.Logger) *Player {
	if logger == nil {
		logger = slog.Default()
	}
	return &Player{
		clip:      c,
		decoder:   decoder,
		fps:       c.FrameRate(),
		logger:    logger,
		state:     StatePaused,
		listeners: make(map[int]func(Event)),
	}
}

// Clip returns the clip being played.
func (p *Player) Clip() *Clip {
	return p.clip
}

// OnEvent registers fn for playback events and returns a function that
// removes the registration.
func (p *Player) OnEvent(fn func(Event)) (unsubscribe func()) {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.listeners[id] = fn
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.listeners, id)
	}
}

// Load decodes the first frame and fires EventLoaded.
func (p *Player) Load(ctx context.Context) error {
	frame, err := p.decodeOne(ctx, 0)
	if err != nil {
		return err
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	p.frame = frame
	p.position = 0
	p.mu.Unlock()

	p.emit(Event{Type: EventLoaded})
	return nil
}

// Play starts real-time playback from the current position, or from the
// start if playback had ended. Calling Play while playing is a no-op.
func (p *Player) Play() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	if p.state == StatePlaying {
		p.mu.Unlock()
		return nil
	}
	if p.state == StateEnded {
		p.position = 0
	}
	p.startLocked()
	pos := p.position
	p.mu.Unlock()

	p.emit(Event{Type: EventPlay, Position: pos})
	return nil
}

// Pause stops playback, keeping the last presented frame. It blocks until the
// playback goroutine has exited. Calling Pause while not playing is a no-op.
func (p *Player) Pause() {
	p.mu.Lock()
	r := p.run
	if r == nil || p.state != StatePlaying {
		p.mu.Unlock()
		return
	}
	p.run = nil
	p.state = StatePaused
	p.mu.Unlock()

	r.stop()

	p.emit(Event{Type: EventPause, Position: p.Position()})
}

// Seek moves the playback position. A playing player keeps playing from the
// new position; otherwise the frame at pos is decoded and presented.
func (p *Player) Seek(ctx context.Context, pos time.Duration) error {
	if pos < 0 {
		pos = 0
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrPlayerClosed
	}
	r := p.run
	p.run = nil
	playing := p.state == StatePlaying
	p.mu.Unlock()

	if r != nil {
		r.stop()
	}

	if playing {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.closed {
			return ErrPlayerClosed
		}
		p.position = pos
		p.startLocked()
		return nil
	}

	frame, err := p.decodeOne(ctx, pos)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.frame = frame
	p.position = pos
	if p.state == StateEnded {
		p.state = StatePaused
	}
	return nil
}

// Frame returns the most recently presented frame, or nil before Load.
// The returned image must not be modified.
func (p *Player) Frame() image.Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame == nil {
		return nil
	}
	return p.frame
}

// Position returns the presentation time of the current frame.
func (p *Player) Position() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position
}

// State returns the playback state.
func (p *Player) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Close stops playback, fires EventClosed to the current listeners, drops
// them and releases the clip.
func (p *Player) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	r := p.run
	p.run = nil
	p.state = StatePaused
	pos := p.position
	fns := p.listenersLocked()
	p.listeners = make(map[int]func(Event))
	p.mu.Unlock()

	if r != nil {
		r.stop()
	}
	for _, fn := range fns {
		fn(Event{Type: EventClosed, Position: pos})
	}
	return p.clip.Release()
}

// startLocked spawns the playback goroutine. p.mu must be held.
func (p *Player) startLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	r := &playback{cancel: cancel, done: make(chan struct{})}
	p.run = r
	p.state = StatePlaying
	go p.playFrom(ctx, r, p.position)
}

// playFrom decodes from start and presents one frame per tick until the
// stream ends or ctx is cancelled.
func (p *Player) playFrom(ctx context.Context, r *playback, start time.Duration) {
	defer close(r.done)

	stream, err := p.decoder.Decode(ctx, p.clip.Path, p.clip.Info, start, p.fps)
	if err != nil {
		p.abort(r, err)
		return
	}
	defer func() { _ = stream.Close() }()

	interval := time.Duration(float64(time.Second) / p.fps)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	pos := start
	for {
		frame, err := stream.Next()
		if errors.Is(err, io.EOF) {
			p.finish(r)
			return
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			p.abort(r, err)
			return
		}

		p.mu.Lock()
		if p.run != r {
			p.mu.Unlock()
			return
		}
		p.frame = frame
		p.position = pos
		p.mu.Unlock()
		pos += interval

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// finish marks natural end of playback if r is still the active run.
func (p *Player) finish(r *playback) {
	p.mu.Lock()
	if p.run != r {
		p.mu.Unlock()
		return
	}
	p.run = nil
	p.state = StateEnded
	pos := p.position
	p.mu.Unlock()

	p.emit(Event{Type: EventEnded, Position: pos})
}

// abort stops playback after a decode failure.
func (p *Player) abort(r *playback, err error) {
	p.mu.Lock()
	if p.run != r {
		p.mu.Unlock()
		return
	}
	p.run = nil
	p.state = StatePaused
	pos := p.position
	p.mu.Unlock()

	p.logger.Error("playback failed",
		slog.String("clip_id", p.clip.ID),
		slog.String("error", err.Error()),
	)
	p.emit(Event{Type: EventPause, Position: pos})
}

// decodeOne decodes the single frame presented at pos.
func (p *Player) decodeOne(ctx context.Context, pos time.Duration) (*image.RGBA, error) {
	stream, err := p.decoder.Decode(ctx, p.clip.Path, p.clip.Info, pos, p.fps)
	if err != nil {
		return nil, fmt.Errorf("open decoder: %w", err)
	}
	defer func() { _ = stream.Close() }()

	frame, err := stream.Next()
	if err != nil {
		return nil, fmt.Errorf("decode frame at %s: %w", pos, err)
	}
	return frame, nil
}

func (p *Player) emit(ev Event) {
	p.mu.Lock()
	fns := p.listenersLocked()
	p.mu.Unlock()

	for _, fn := range fns {
		fn(ev)
	}
}

// listenersLocked copies the registered listeners. p.mu must be held.
func (p *Player) listenersLocked() []func(Event) {
	fns := make([]func(Event), 0, len(p.listeners))
	for _, fn := range p.listeners {
		fns = append(fns, fn)
	}
	return fns
}
