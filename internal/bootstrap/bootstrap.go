// Package bootstrap provides dependency initialization for the pixelframe API.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/maauso/pixelframe-api/internal/config"
	"github.com/maauso/pixelframe-api/internal/export"
	"github.com/maauso/pixelframe-api/internal/job"
	"github.com/maauso/pixelframe-api/internal/media"
	"github.com/maauso/pixelframe-api/internal/metrics"
	"github.com/maauso/pixelframe-api/internal/session"
	"github.com/maauso/pixelframe-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Sessions *session.Registry
	Opener   *session.Opener
	Exports  *job.ExportService
	// Metrics is nil when metrics are disabled.
	Metrics *metrics.Metrics

	logger  *slog.Logger
	closers []func() error
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	deps := &Dependencies{logger: logger}

	// Initialize storage
	store, err := deps.initStorage(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// Initialize job repository
	repo, err := deps.initRepository(ctx, cfg)
	if err != nil {
		deps.closeAll()
		return nil, err
	}

	// Initialize media tooling. Without ffmpeg only the built-in still
	// formats are offered.
	ffmpeg := media.NewFFmpeg(cfg.FFmpegPath, cfg.FFprobePath)
	var encoder media.Encoder
	if ffmpeg.Available() {
		encoder = ffmpeg
	} else {
		logger.Warn("ffmpeg not found, uploads and webp/video exports are unavailable",
			slog.String("ffmpeg_path", cfg.FFmpegPath),
		)
	}
	formats := export.NewRegistry(encoder)
	if encoder != nil {
		checkVideoCodec(ctx, ffmpeg, formats, cfg.DefaultVideoFormat, logger)
	}

	var (
		sessionOpts = []session.Option{session.WithRenderRate(cfg.RenderFPS)}
		serviceOpts = []job.ServiceOption{job.WithServiceLogger(logger)}
	)
	if cfg.MetricsEnabled {
		deps.Metrics = metrics.New()
		sessionOpts = append(sessionOpts, session.WithPassHook(deps.Metrics.ObservePass))
		serviceOpts = append(serviceOpts, job.WithObserver(deps.Metrics.ObserveExport))
	}

	deps.Sessions = session.NewRegistry()
	deps.Opener = session.NewOpener(store, ffmpeg, ffmpeg, deps.Sessions, logger, sessionOpts...)

	video := export.NewVideoExporter(ffmpeg,
		export.WithCaptureFPS(cfg.ExportFPS),
		export.WithVideoLogger(logger),
	)
	deps.Exports = job.NewExportService(deps.Sessions, formats, video, store, repo, serviceOpts...)

	return deps, nil
}

// Close stops running exports, closes every session and releases storage.
func (d *Dependencies) Close(ctx context.Context) error {
	var errs []error
	if err := d.Exports.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown exports: %w", err))
	}
	d.Sessions.CloseAll()
	if err := d.closeAll(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (d *Dependencies) closeAll() error {
	var errs []error
	for i := len(d.closers) - 1; i >= 0; i-- {
		if err := d.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	d.closers = nil
	return errors.Join(errs...)
}

// initStorage creates the appropriate storage backend based on configuration.
func (d *Dependencies) initStorage(ctx context.Context, cfg *config.Config) (storage.Storage, error) {
	switch {
	case cfg.S3Enabled():
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		d.logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil

	case cfg.GCSEnabled():
		gcsStore, err := storage.NewGCSStorage(ctx, cfg.TempDir, storage.GCSConfig{
			Bucket:          cfg.GCSBucket,
			CredentialsFile: cfg.GCSCredentialsFile,
		})
		if err != nil {
			return nil, fmt.Errorf("create GCS storage: %w", err)
		}
		d.closers = append(d.closers, gcsStore.Close)
		d.logger.Info("GCS storage configured",
			slog.String("bucket", cfg.GCSBucket),
		)
		return gcsStore, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	d.logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}

// initRepository opens the job store and fails jobs a previous process left
// queued or running.
func (d *Dependencies) initRepository(ctx context.Context, cfg *config.Config) (job.Repository, error) {
	if cfg.JobStore != config.JobStorePebble {
		repo := job.NewMemoryRepository()
		d.closers = append(d.closers, repo.Close)
		return repo, nil
	}

	repo, err := job.OpenPebbleRepository(cfg.JobStoreDir, d.logger)
	if err != nil {
		return nil, fmt.Errorf("open job store: %w", err)
	}
	d.closers = append(d.closers, repo.Close)

	failed, err := job.FailInterrupted(ctx, repo, d.logger)
	if err != nil {
		return nil, fmt.Errorf("recover job store: %w", err)
	}
	d.logger.Info("pebble job store configured",
		slog.String("dir", cfg.JobStoreDir),
		slog.Int("interrupted_jobs", failed),
	)
	return repo, nil
}

// checkVideoCodec logs whether the default video format can be encoded.
func checkVideoCodec(ctx context.Context, enc media.Encoder, formats *export.Registry, name string, logger *slog.Logger) {
	f, err := formats.Lookup(name)
	if err != nil {
		logger.Warn("default video format is not registered", slog.String("format", name))
		return
	}
	ok, err := enc.SupportsCodec(ctx, f.Codec)
	switch {
	case err != nil:
		logger.Warn("failed to list ffmpeg encoders", slog.String("error", err.Error()))
	case !ok:
		logger.Warn("default video format encoder is missing",
			slog.String("format", f.Name),
			slog.String("codec", f.Codec),
		)
	default:
		logger.Info("default video format available",
			slog.String("format", f.Name),
			slog.String("codec", f.Codec),
		)
	}
}
