package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maauso/pixelframe-api/internal/job/id"
	"github.com/maauso/pixelframe-api/internal/media"
	"github.com/maauso/pixelframe-api/internal/media/mediatest"
)

type mockProber struct {
	mock.Mock
}

func (m *mockProber) Probe(ctx context.Context, path string) (media.Info, error) {
	args := m.Called(ctx, path)
	return args.Get(0).(media.Info), args.Error(1)
}

// memStore keeps uploads in memory and records cleanups.
type memStore struct {
	mu      sync.Mutex
	files   map[string]string
	cleaned []string
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{files: make(map[string]string)}
}

func (s *memStore) SaveTemp(_ context.Context, name string, data io.Reader) (string, error) {
	if s.saveErr != nil {
		return "", s.saveErr
	}
	b, err := io.ReadAll(data)
	if err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	path := "/tmp/" + name
	s.files[path] = string(b)
	return path, nil
}

func (s *memStore) CleanupTemp(_ context.Context, paths []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range paths {
		delete(s.files, p)
		s.cleaned = append(s.cleaned, p)
	}
	return nil
}

func (s *memStore) cleanedPaths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.cleaned...)
}

func TestOpener_Open(t *testing.T) {
	store := newMemStore()
	prober := &mockProber{}
	prober.On("Probe", mock.Anything, "/tmp/clip.mp4").
		Return(media.Info{Width: 160, Height: 90, FrameRate: 25}, nil)
	reg := NewRegistry()
	t.Cleanup(reg.CloseAll)

	o := NewOpener(store, prober, &mediatest.Decoder{Frames: 4}, reg, nil)
	s, err := o.Open(context.Background(), "clip.mp4", strings.NewReader("video"), testConfig)
	require.NoError(t, err)

	assert.True(t, id.Valid(id.PrefixSession, s.ID))
	assert.True(t, s.Ready())
	assert.Equal(t, StateLoaded, s.State())
	assert.Equal(t, 9, s.Info().Layout.Rows)

	got, err := reg.Get(s.ID)
	require.NoError(t, err)
	assert.Same(t, s, got)

	p, err := s.Player()
	require.NoError(t, err)
	assert.True(t, id.Valid(id.PrefixClip, p.Clip().ID))

	require.NoError(t, reg.Delete(s.ID))
	assert.Equal(t, []string{"/tmp/clip.mp4"}, store.cleanedPaths())
	prober.AssertExpectations(t)
}

func TestOpener_ProbeFailureRemovesUpload(t *testing.T) {
	store := newMemStore()
	prober := &mockProber{}
	prober.On("Probe", mock.Anything, "/tmp/notes.txt").
		Return(media.Info{}, media.ErrNoVideoStream)
	reg := NewRegistry()

	o := NewOpener(store, prober, &mediatest.Decoder{Frames: 4}, reg, nil)
	_, err := o.Open(context.Background(), "notes.txt", strings.NewReader("hello"), testConfig)

	require.ErrorIs(t, err, ErrInvalidClip)
	assert.Equal(t, []string{"/tmp/notes.txt"}, store.cleanedPaths())
	assert.Equal(t, 0, reg.Len())
}

func TestOpener_DecodeFailureReleasesClip(t *testing.T) {
	store := newMemStore()
	prober := &mockProber{}
	prober.On("Probe", mock.Anything, mock.Anything).
		Return(media.Info{Width: 160, Height: 90}, nil)
	reg := NewRegistry()

	o := NewOpener(store, prober, &mediatest.Decoder{Err: errors.New("corrupt")}, reg, nil)
	_, err := o.Open(context.Background(), "clip.webm", strings.NewReader("x"), testConfig)

	require.ErrorIs(t, err, ErrInvalidClip)
	assert.Equal(t, []string{"/tmp/clip.webm"}, store.cleanedPaths())
	assert.Equal(t, 0, reg.Len())
}

func TestOpener_SaveFailure(t *testing.T) {
	store := newMemStore()
	store.saveErr = errors.New("disk full")
	prober := &mockProber{}

	o := NewOpener(store, prober, &mediatest.Decoder{}, NewRegistry(), nil)
	_, err := o.Open(context.Background(), "clip.mp4", strings.NewReader("x"), testConfig)

	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrInvalidClip)
	prober.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything)
}
