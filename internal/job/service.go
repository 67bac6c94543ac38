package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"sync"
	"time"

	"github.com/maauso/pixelframe-api/internal/export"
	"github.com/maauso/pixelframe-api/internal/session"
	"github.com/maauso/pixelframe-api/internal/storage"
)

var (
	// ErrJobNotReady is returned when downloading a job that has not completed.
	ErrJobNotReady = errors.New("job: output not ready")
	// ErrExportInProgress is returned when a session already has a running video export.
	ErrExportInProgress = errors.New("job: session already has a video export running")
)

// Export outcomes reported to the observer.
const (
	OutcomeSuccess   = "success"
	OutcomeFailure   = "failure"
	OutcomeCancelled = "cancelled"
)

// VideoExporter records a whole clip through the render pipeline.
type VideoExporter interface {
	Export(ctx context.Context, src export.Source, f export.Format) (export.Artifact, error)
}

var _ VideoExporter = (*export.VideoExporter)(nil)

// Observer receives one call per finished export.
type Observer func(format, outcome string, elapsed time.Duration)

// ExportService runs still exports synchronously and video exports as jobs.
type ExportService struct {
	sessions *session.Registry
	formats  *export.Registry
	video    VideoExporter
	store    storage.Storage
	repo     Repository
	logger   *slog.Logger
	observe  Observer

	mu      sync.Mutex
	active  map[string]*activeJob
	busy    map[string]string
	wg      sync.WaitGroup
	closing bool
}

type activeJob struct {
	job    *Job
	cancel context.CancelFunc
}

// ServiceOption configures an ExportService.
type ServiceOption func(*ExportService)

// WithServiceLogger sets the logger.
func WithServiceLogger(l *slog.Logger) ServiceOption {
	return func(s *ExportService) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithObserver sets the export observer, typically a metrics recorder.
func WithObserver(fn Observer) ServiceOption {
	return func(s *ExportService) {
		s.observe = fn
	}
}

// NewExportService creates an ExportService.
func NewExportService(
	sessions *session.Registry,
	formats *export.Registry,
	video VideoExporter,
	store storage.Storage,
	repo Repository,
	opts ...ServiceOption,
) *ExportService {
	s := &ExportService{
		sessions: sessions,
		formats:  formats,
		video:    video,
		store:    store,
		repo:     repo,
		logger:   slog.Default(),
		observe:  func(string, string, time.Duration) {},
		active:   make(map[string]*activeJob),
		busy:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Format resolves a format name.
func (s *ExportService) Format(name string) (export.Format, error) {
	return s.formats.Lookup(name)
}

// Formats returns every available export format.
func (s *ExportService) Formats() []export.Format {
	return s.formats.Formats()
}

// ExportStill encodes the current render of a session in a single-frame format.
func (s *ExportService) ExportStill(ctx context.Context, sessionID, format string) (export.Artifact, error) {
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return export.Artifact{}, err
	}
	frame, err := sess.Snapshot()
	if err != nil {
		return export.Artifact{}, err
	}

	start := time.Now()
	art, err := s.formats.ExportFrame(ctx, format, frame)
	if err != nil {
		if !errors.Is(err, export.ErrUnsupportedFormat) {
			s.observe(format, OutcomeFailure, time.Since(start))
			s.logger.Error("still export failed",
				slog.String("session_id", sessionID),
				slog.String("format", format),
				slog.String("error", err.Error()),
			)
		}
		return export.Artifact{}, err
	}
	s.observe(format, OutcomeSuccess, time.Since(start))

	s.logger.Info("still exported",
		slog.String("session_id", sessionID),
		slog.String("format", format),
		slog.Int("bytes", len(art.Data)),
	)
	return art, nil
}

// StartVideoExport creates a job and records the session's clip in the
// background. The job outlives ctx; use Cancel to stop it.
func (s *ExportService) StartVideoExport(ctx context.Context, sessionID, format string, push bool) (*Job, error) {
	f, err := s.formats.Lookup(format)
	if err != nil {
		return nil, err
	}
	if f.Kind != export.KindVideo {
		return nil, fmt.Errorf("%w: %q is not a video format", export.ErrUnsupportedFormat, f.Name)
	}
	sess, err := s.sessions.Get(sessionID)
	if err != nil {
		return nil, err
	}
	if _, err := sess.Player(); err != nil {
		return nil, err
	}

	job := New(sessionID, f.Name)
	job.PushToS3 = push

	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		return nil, context.Canceled
	}
	if running, ok := s.busy[sessionID]; ok {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: job %s", ErrExportInProgress, running)
	}
	if err := s.repo.Save(ctx, job); err != nil {
		s.mu.Unlock()
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.active[job.ID] = &activeJob{job: job, cancel: cancel}
	s.busy[sessionID] = job.ID
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("video export queued",
		slog.String("job_id", job.ID),
		slog.String("session_id", sessionID),
		slog.String("format", f.Name),
		slog.Bool("push_to_s3", push),
	)

	go func() {
		defer s.wg.Done()
		defer s.release(job.ID, sessionID)
		s.run(runCtx, job, sess, f)
	}()

	return job.Clone(), nil
}

// run drives one video export job to a terminal state.
func (s *ExportService) run(ctx context.Context, job *Job, src export.Source, f export.Format) {
	log := s.logger.With(slog.String("job_id", job.ID), slog.String("format", f.Name))
	start := time.Now()

	if err := job.Start(); err != nil {
		// cancelled before it started
		s.observe(f.Name, OutcomeCancelled, 0)
		return
	}
	s.save(job)

	art, err := s.video.Export(ctx, src, f)
	if err != nil {
		s.finishWithError(ctx, job, f, err, start)
		return
	}

	out, url, err := s.persist(ctx, job, art)
	if err != nil {
		s.finishWithError(ctx, job, f, err, start)
		return
	}

	if err := job.Complete(out, url); err != nil {
		// lost the race against Cancel
		_ = s.store.CleanupTemp(context.WithoutCancel(ctx), []string{out.Path})
		s.save(job)
		s.observe(f.Name, OutcomeCancelled, time.Since(start))
		return
	}
	s.observe(f.Name, OutcomeSuccess, time.Since(start))
	s.save(job)

	log.Info("video export completed",
		slog.String("path", out.Path),
		slog.Int64("size", out.Size),
		slog.Int("chunks", out.Chunks),
		slog.Duration("elapsed", time.Since(start)),
	)
}

// persist writes the artifact to temp storage and optionally pushes it.
func (s *ExportService) persist(ctx context.Context, job *Job, art export.Artifact) (Output, string, error) {
	p, err := s.store.SaveTemp(ctx, art.Name, bytes.NewReader(art.Data))
	if err != nil {
		return Output{}, "", fmt.Errorf("save artifact: %w", err)
	}
	out := Output{
		Path:     p,
		FileName: art.Name,
		MIME:     art.MIME,
		Size:     int64(len(art.Data)),
		Chunks:   art.Chunks,
	}
	if !job.PushToS3 {
		return out, "", nil
	}

	key := path.Join("exports", job.ID, art.Name)
	url, err := s.store.Upload(ctx, key, art.MIME, bytes.NewReader(art.Data))
	if err != nil {
		_ = s.store.CleanupTemp(context.WithoutCancel(ctx), []string{p})
		return Output{}, "", fmt.Errorf("push artifact: %w", err)
	}
	return out, url, nil
}

func (s *ExportService) finishWithError(ctx context.Context, job *Job, f export.Format, err error, start time.Time) {
	if ctx.Err() != nil || job.GetStatus() == StatusCancelled {
		_ = job.Cancel()
		s.save(job)
		s.observe(f.Name, OutcomeCancelled, time.Since(start))
		s.logger.Info("video export cancelled", slog.String("job_id", job.ID))
		return
	}

	msg := err.Error()
	if errors.Is(err, export.ErrExportFailed) {
		msg = fmt.Sprintf("%s: %s", export.ErrExportFailed, f.Name)
	}
	if ferr := job.Fail(msg); ferr != nil {
		return
	}
	s.observe(f.Name, OutcomeFailure, time.Since(start))
	s.save(job)

	s.logger.Error("video export failed",
		slog.String("job_id", job.ID),
		slog.String("error", err.Error()),
	)
}

// save persists job state from the background runner.
func (s *ExportService) save(job *Job) {
	if err := s.repo.Save(context.Background(), job); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *ExportService) release(jobID, sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a, ok := s.active[jobID]; ok {
		a.cancel()
		delete(s.active, jobID)
	}
	if s.busy[sessionID] == jobID {
		delete(s.busy, sessionID)
	}
}

// GetJob returns a job. A failed or cancelled job is removed once it has been
// reported.
func (s *ExportService) GetJob(ctx context.Context, id string) (*Job, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	switch job.Status {
	case StatusFailed, StatusCancelled:
		if err := s.repo.Delete(ctx, id); err != nil && !errors.Is(err, ErrJobNotFound) {
			s.logger.Warn("failed to remove finished job",
				slog.String("job_id", id),
				slog.String("error", err.Error()),
			)
		}
	}
	return job, nil
}

// Download returns the artifact of a completed job and removes the job and
// its temp file.
func (s *ExportService) Download(ctx context.Context, id string) (Output, []byte, error) {
	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Output{}, nil, err
	}
	if job.Status != StatusCompleted || job.Output.Path == "" {
		return Output{}, nil, ErrJobNotReady
	}

	r, err := s.store.LoadTemp(ctx, job.Output.Path)
	if err != nil {
		return Output{}, nil, fmt.Errorf("open artifact: %w", err)
	}
	data, err := io.ReadAll(r)
	_ = r.Close()
	if err != nil {
		return Output{}, nil, fmt.Errorf("read artifact: %w", err)
	}

	s.discard(ctx, job)
	return job.Output, data, nil
}

// Cancel stops a queued or running job. Cancelling a finished job discards it
// and its artifact.
func (s *ExportService) Cancel(ctx context.Context, id string) (*Job, error) {
	s.mu.Lock()
	a, ok := s.active[id]
	s.mu.Unlock()

	if ok {
		if err := a.job.Cancel(); err == nil {
			a.cancel()
			s.save(a.job)
			s.logger.Info("video export cancel requested", slog.String("job_id", id))
			return a.job.Clone(), nil
		}
	}

	job, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	s.discard(ctx, job)
	return job, nil
}

func (s *ExportService) discard(ctx context.Context, job *Job) {
	if job.Output.Path != "" {
		if err := s.store.CleanupTemp(ctx, []string{job.Output.Path}); err != nil {
			s.logger.Warn("failed to remove artifact",
				slog.String("job_id", job.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if err := s.repo.Delete(ctx, job.ID); err != nil && !errors.Is(err, ErrJobNotFound) {
		s.logger.Warn("failed to remove job",
			slog.String("job_id", job.ID),
			slog.String("error", err.Error()),
		)
	}
}

// Shutdown cancels every running export and waits for the runners to exit.
func (s *ExportService) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, a := range s.active {
		if a.job.Cancel() == nil {
			s.save(a.job)
		}
		a.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
