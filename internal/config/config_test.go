package config

import (
	"log/slog"
	"testing"

	"github.com/sethvargo/go-envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maauso/pixelframe-api/internal/grid"
)

func load(t *testing.T, env map[string]string) (*Config, error) {
	t.Helper()
	return LoadFrom(envconfig.MapLookuper(env))
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(t, nil)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/tmp/pixelframe", cfg.TempDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, grid.DefaultConfig(), cfg.GridDefaults())
	assert.Equal(t, "png", cfg.DefaultStillFormat)
	assert.Equal(t, "webm", cfg.DefaultVideoFormat)
	assert.Equal(t, 60.0, cfg.RenderFPS)
	assert.Equal(t, 30, cfg.ExportFPS)
	assert.Equal(t, int64(512)<<20, cfg.MaxUploadBytes())
	assert.Equal(t, JobStoreMemory, cfg.JobStore)
	assert.True(t, cfg.MetricsEnabled)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
	assert.False(t, cfg.GCSEnabled())
}

func TestLoad_CustomValues(t *testing.T) {
	cfg, err := load(t, map[string]string{
		"PORT":                  "3000",
		"TEMP_DIR":              "/custom/temp",
		"DEFAULT_COLUMNS":       "32",
		"DEFAULT_CELL_SIZE":     "8",
		"DEFAULT_BORDER_SIZE":   "0",
		"DEFAULT_STILL_FORMAT":  "svg",
		"DEFAULT_VIDEO_FORMAT":  "mp4",
		"RENDER_FPS":            "30",
		"EXPORT_FPS":            "24",
		"JOB_STORE":             "pebble",
		"JOB_STORE_DIR":         "/data/jobs",
		"S3_BUCKET":             "my-bucket",
		"S3_REGION":             "us-east-1",
		"S3_ENDPOINT":           "http://minio:9000",
		"AWS_ACCESS_KEY_ID":     "access-key",
		"AWS_SECRET_ACCESS_KEY": "secret-key",
		"METRICS_ENABLED":       "false",
		"LOG_FORMAT":            "json",
		"LOG_LEVEL":             "debug",
	})
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/temp", cfg.TempDir)
	assert.Equal(t, grid.Config{Columns: 32, CellSize: 8, BorderSize: 0}, cfg.GridDefaults())
	assert.Equal(t, "svg", cfg.DefaultStillFormat)
	assert.Equal(t, "mp4", cfg.DefaultVideoFormat)
	assert.Equal(t, 30.0, cfg.RenderFPS)
	assert.Equal(t, 24, cfg.ExportFPS)
	assert.Equal(t, JobStorePebble, cfg.JobStore)
	assert.Equal(t, "/data/jobs", cfg.JobStoreDir)
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "http://minio:9000", cfg.S3Endpoint)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.False(t, cfg.MetricsEnabled)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_ParseErrors(t *testing.T) {
	// go-envconfig returns an error when parsing fails
	_, err := load(t, map[string]string{"PORT": "not-a-number"})
	require.Error(t, err)

	_, err = load(t, map[string]string{"METRICS_ENABLED": "maybe"})
	require.Error(t, err)
}

func TestLoad_RunsValidation(t *testing.T) {
	_, err := load(t, map[string]string{"JOB_STORE": "redis"})
	assert.ErrorIs(t, err, ErrUnknownJobStore)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		cfg, err := load(t, nil)
		require.NoError(t, err)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"defaults", func(*Config) {}, nil},
		{"port zero", func(c *Config) { c.Port = 0 }, ErrInvalidPort},
		{"port too high", func(c *Config) { c.Port = 70000 }, ErrInvalidPort},
		{"columns too small", func(c *Config) { c.DefaultColumns = grid.MinColumns - 1 }, ErrInvalidGridDefaults},
		{"cell size too large", func(c *Config) { c.DefaultCellSize = grid.MaxCellSize + 1 }, ErrInvalidGridDefaults},
		{"negative border", func(c *Config) { c.DefaultBorderSize = -1 }, ErrInvalidGridDefaults},
		{"jpeg alias", func(c *Config) { c.DefaultStillFormat = "JPEG" }, nil},
		{"video as still", func(c *Config) { c.DefaultStillFormat = "webm" }, ErrUnknownStillFormat},
		{"still as video", func(c *Config) { c.DefaultVideoFormat = "png" }, ErrUnknownVideoFormat},
		{"zero render rate", func(c *Config) { c.RenderFPS = 0 }, ErrInvalidRate},
		{"zero export rate", func(c *Config) { c.ExportFPS = 0 }, ErrInvalidRate},
		{"zero upload limit", func(c *Config) { c.MaxUploadMB = 0 }, ErrInvalidUploadLimit},
		{"unknown job store", func(c *Config) { c.JobStore = "sqlite" }, ErrUnknownJobStore},
		{"both object stores", func(c *Config) { c.S3Bucket = "a"; c.GCSBucket = "b" }, ErrConflictingObjectStores},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestConfig_S3Enabled(t *testing.T) {
	tests := []struct {
		name     string
		bucket   string
		region   string
		expected bool
	}{
		{"both set", "bucket", "region", true},
		{"only bucket", "bucket", "", false},
		{"only region", "", "region", false},
		{"neither set", "", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				S3Bucket: tt.bucket,
				S3Region: tt.region,
			}
			assert.Equal(t, tt.expected, cfg.S3Enabled())
		})
	}
}

func TestConfig_String(t *testing.T) {
	cfg := &Config{
		Port:               8080,
		TempDir:            "/tmp/test",
		S3Bucket:           "bucket",
		S3Region:           "region",
		AWSAccessKeyID:     "access-key-id",
		AWSSecretAccessKey: "secret-key",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "8080")
	assert.Contains(t, str, "bucket")
	assert.Contains(t, str, "/tmp/test")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "access-key-id")
}

func TestConfig_NewLogger(t *testing.T) {
	jsonLogger := (&Config{LogFormat: "json", LogLevel: "info"}).NewLogger()
	require.NotNil(t, jsonLogger)
	_, isJSON := jsonLogger.Handler().(*slog.JSONHandler)
	assert.True(t, isJSON)

	textLogger := (&Config{LogFormat: "text", LogLevel: "debug"}).NewLogger()
	require.NotNil(t, textLogger)
	_, isText := textLogger.Handler().(*slog.TextHandler)
	assert.True(t, isText)
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"INFO", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"ERROR", slog.LevelError},
		{"unknown", slog.LevelInfo}, // defaults to info
		{"", slog.LevelInfo},        // defaults to info
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseLogLevel(tt.input))
		})
	}
}
