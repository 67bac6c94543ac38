// Package config provides configuration loading from environment variables.
package config

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/sethvargo/go-envconfig"

	"github.com/maauso/pixelframe-api/internal/grid"
)

// Static errors for configuration validation.
var (
	// ErrInvalidPort is returned when PORT is outside 1-65535.
	ErrInvalidPort = errors.New("config: PORT must be between 1 and 65535")
	// ErrInvalidGridDefaults is returned when a DEFAULT_* grid value is out of range.
	ErrInvalidGridDefaults = errors.New("config: default grid settings are out of range")
	// ErrUnknownStillFormat is returned when DEFAULT_STILL_FORMAT is not a single-frame format.
	ErrUnknownStillFormat = errors.New("config: DEFAULT_STILL_FORMAT is not a known single-frame format")
	// ErrUnknownVideoFormat is returned when DEFAULT_VIDEO_FORMAT is not a video format.
	ErrUnknownVideoFormat = errors.New("config: DEFAULT_VIDEO_FORMAT is not a known video format")
	// ErrUnknownJobStore is returned when JOB_STORE is neither memory nor pebble.
	ErrUnknownJobStore = errors.New("config: JOB_STORE must be memory or pebble")
	// ErrInvalidRate is returned when RENDER_FPS or EXPORT_FPS is not positive.
	ErrInvalidRate = errors.New("config: RENDER_FPS and EXPORT_FPS must be positive")
	// ErrInvalidUploadLimit is returned when MAX_UPLOAD_MB is not positive.
	ErrInvalidUploadLimit = errors.New("config: MAX_UPLOAD_MB must be positive")
	// ErrConflictingObjectStores is returned when both S3 and GCS are configured.
	ErrConflictingObjectStores = errors.New("config: S3_BUCKET and GCS_BUCKET are mutually exclusive")
)

// Job stores.
const (
	JobStoreMemory = "memory"
	JobStorePebble = "pebble"
)

var (
	stillFormats = map[string]bool{"png": true, "jpg": true, "jpeg": true, "webp": true, "svg": true, "json": true}
	videoFormats = map[string]bool{"webm": true, "mp4": true}
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	Port        int `env:"PORT, default=8080" json:"port"`
	MaxUploadMB int `env:"MAX_UPLOAD_MB, default=512" json:"max_upload_mb"`

	// Media tooling
	FFmpegPath  string `env:"FFMPEG_PATH, default=ffmpeg" json:"ffmpeg_path"`
	FFprobePath string `env:"FFPROBE_PATH, default=ffprobe" json:"ffprobe_path"`

	// Storage settings
	TempDir string `env:"TEMP_DIR, default=/tmp/pixelframe" json:"temp_dir"`

	// Grid defaults for new sessions
	DefaultColumns    int `env:"DEFAULT_COLUMNS, default=64" json:"default_columns"`
	DefaultCellSize   int `env:"DEFAULT_CELL_SIZE, default=10" json:"default_cell_size"`
	DefaultBorderSize int `env:"DEFAULT_BORDER_SIZE, default=1" json:"default_border_size"`

	// Export settings
	DefaultStillFormat string  `env:"DEFAULT_STILL_FORMAT, default=png" json:"default_still_format"`
	DefaultVideoFormat string  `env:"DEFAULT_VIDEO_FORMAT, default=webm" json:"default_video_format"`
	RenderFPS          float64 `env:"RENDER_FPS, default=60" json:"render_fps"`
	ExportFPS          int     `env:"EXPORT_FPS, default=30" json:"export_fps"`

	// Job persistence
	JobStore    string `env:"JOB_STORE, default=memory" json:"job_store"`
	JobStoreDir string `env:"JOB_STORE_DIR, default=/tmp/pixelframe/jobs" json:"job_store_dir"`

	// Optional S3 settings
	S3Bucket           string `env:"S3_BUCKET" json:"s3_bucket,omitempty"`
	S3Region           string `env:"S3_REGION" json:"s3_region,omitempty"`
	S3Endpoint         string `env:"S3_ENDPOINT" json:"s3_endpoint,omitempty"`
	AWSAccessKeyID     string `env:"AWS_ACCESS_KEY_ID" json:"-"`     // Masked in JSON
	AWSSecretAccessKey string `env:"AWS_SECRET_ACCESS_KEY" json:"-"` // Masked in JSON

	// Optional GCS settings
	GCSBucket          string `env:"GCS_BUCKET" json:"gcs_bucket,omitempty"`
	GCSCredentialsFile string `env:"GCS_CREDENTIALS_FILE" json:"-"`

	// Observability
	MetricsEnabled bool   `env:"METRICS_ENABLED, default=true" json:"metrics_enabled"`
	LogFormat      string `env:"LOG_FORMAT, default=text" json:"log_format"` // "json" or "text"
	LogLevel       string `env:"LOG_LEVEL, default=info" json:"log_level"`   // "debug", "info", "warn", "error"
}

// S3Enabled returns true if S3 configuration is provided.
func (c *Config) S3Enabled() bool {
	return c.S3Bucket != "" && c.S3Region != ""
}

// GCSEnabled returns true if a GCS bucket is configured.
func (c *Config) GCSEnabled() bool {
	return c.GCSBucket != ""
}

// GridDefaults returns the grid configuration new sessions start with.
func (c *Config) GridDefaults() grid.Config {
	return grid.Config{
		Columns:    c.DefaultColumns,
		CellSize:   c.DefaultCellSize,
		BorderSize: c.DefaultBorderSize,
	}
}

// MaxUploadBytes returns the upload limit in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.MaxUploadMB) << 20
}

// Load reads configuration from environment variables using go-envconfig
// and validates it.
func Load() (*Config, error) {
	return LoadFrom(envconfig.OsLookuper())
}

// LoadFrom reads configuration through the given lookuper and validates it.
func LoadFrom(l envconfig.Lookuper) (*Config, error) {
	cfg := &Config{}

	if err := envconfig.ProcessWith(context.Background(), &envconfig.Config{
		Target:   cfg,
		Lookuper: l,
	}); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that every setting is usable.
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return ErrInvalidPort
	}
	if !c.GridDefaults().Valid() {
		return fmt.Errorf("%w: columns %d-%d, cell size %d-%d, border %d-%d",
			ErrInvalidGridDefaults,
			grid.MinColumns, grid.MaxColumns,
			grid.MinCellSize, grid.MaxCellSize,
			grid.MinBorderSize, grid.MaxBorderSize,
		)
	}
	if !stillFormats[strings.ToLower(c.DefaultStillFormat)] {
		return ErrUnknownStillFormat
	}
	if !videoFormats[strings.ToLower(c.DefaultVideoFormat)] {
		return ErrUnknownVideoFormat
	}
	if c.RenderFPS <= 0 || c.ExportFPS <= 0 {
		return ErrInvalidRate
	}
	if c.MaxUploadMB <= 0 {
		return ErrInvalidUploadLimit
	}
	switch c.JobStore {
	case JobStoreMemory, JobStorePebble:
	default:
		return ErrUnknownJobStore
	}
	if c.S3Bucket != "" && c.GCSBucket != "" {
		return ErrConflictingObjectStores
	}
	return nil
}

// NewLogger creates a structured logger based on the configuration.
// When LogFormat is "json", it outputs JSON logs suitable for production.
// Otherwise, it outputs human-readable text logs.
func (c *Config) NewLogger() *slog.Logger {
	level := parseLogLevel(c.LogLevel)

	var handler slog.Handler
	if strings.ToLower(c.LogFormat) == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	}

	return slog.New(handler)
}

// String returns a string representation of the config with sensitive values masked.
func (c *Config) String() string {
	return fmt.Sprintf(
		"Config{Port: %d, TempDir: %s, Grid: %dx%d/%d, Still: %s, Video: %s, RenderFPS: %g, ExportFPS: %d, JobStore: %s, S3Bucket: %s, S3Region: %s, GCSBucket: %s, Metrics: %t, LogFormat: %s, LogLevel: %s}",
		c.Port,
		c.TempDir,
		c.DefaultColumns,
		c.DefaultCellSize,
		c.DefaultBorderSize,
		c.DefaultStillFormat,
		c.DefaultVideoFormat,
		c.RenderFPS,
		c.ExportFPS,
		c.JobStore,
		c.S3Bucket,
		c.S3Region,
		c.GCSBucket,
		c.MetricsEnabled,
		c.LogFormat,
		c.LogLevel,
	)
}

// parseLogLevel converts a string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
