package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var managedVars = []string{
	"PORT", "ALLOWED_ORIGINS", "DATA_DIR", "FFMPEG_PATH", "FFPROBE_PATH", "EXTRACT_TIMEOUT",
	"MAX_UPLOAD_BYTES", "MAX_PAGE_LIMIT", "S3_BUCKET", "S3_REGION", "S3_ENDPOINT", "S3_KEY_PREFIX",
	"AWS_ACCESS_KEY_ID", "AWS_SECRET_ACCESS_KEY", "LOG_FORMAT", "LOG_LEVEL",
}

// clearEnv unsets every variable Config reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range managedVars {
		t.Setenv(k, "")
		require.NoError(t, os.Unsetenv(k))
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, "*", cfg.AllowedOrigins)
	assert.Equal(t, "/tmp/scrollframes", cfg.DataDir)
	assert.Equal(t, "ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, "ffprobe", cfg.FFprobePath)
	assert.Equal(t, 20*time.Minute, cfg.ExtractTimeout)
	assert.Equal(t, int64(500<<20), cfg.MaxUploadBytes)
	assert.Equal(t, 500, cfg.MaxPageLimit)
	assert.Equal(t, "text", cfg.LogFormat)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.S3Enabled())
}

func TestLoad_CustomValues(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "3000")
	t.Setenv("DATA_DIR", "/custom/data")
	t.Setenv("FFMPEG_PATH", "/opt/ffmpeg")
	t.Setenv("EXTRACT_TIMEOUT", "90s")
	t.Setenv("MAX_UPLOAD_BYTES", "1048576")
	t.Setenv("MAX_PAGE_LIMIT", "50")
	t.Setenv("ALLOWED_ORIGINS", "http://localhost:5173, https://example.com")
	t.Setenv("S3_BUCKET", "my-bucket")
	t.Setenv("S3_REGION", "us-east-1")
	t.Setenv("S3_ENDPOINT", "http://localhost:4566")
	t.Setenv("AWS_ACCESS_KEY_ID", "access-key")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "secret-key")
	t.Setenv("LOG_FORMAT", "json")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := LoadFile("")
	require.NoError(t, err)

	assert.Equal(t, 3000, cfg.Port)
	assert.Equal(t, "/custom/data", cfg.DataDir)
	assert.Equal(t, "/opt/ffmpeg", cfg.FFmpegPath)
	assert.Equal(t, 90*time.Second, cfg.ExtractTimeout)
	assert.Equal(t, int64(1048576), cfg.MaxUploadBytes)
	assert.Equal(t, 50, cfg.MaxPageLimit)
	assert.Equal(t, []string{"http://localhost:5173", "https://example.com"}, cfg.Origins())
	assert.True(t, cfg.S3Enabled())
	assert.Equal(t, "http://localhost:4566", cfg.S3Endpoint)
	assert.Equal(t, "access-key", cfg.AWSAccessKeyID)
	assert.Equal(t, "secret-key", cfg.AWSSecretAccessKey)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestLoad_EnvFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "5000")

	envFile := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PORT=4000\nDATA_DIR=/from/envfile\n"), 0o600))

	cfg, err := LoadFile(envFile)
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port, "real environment wins over the env file")
	assert.Equal(t, "/from/envfile", cfg.DataDir)
}

func TestLoad_MissingEnvFile(t *testing.T) {
	clearEnv(t)
	_, err := LoadFile(filepath.Join(t.TempDir(), "absent.env"))
	require.NoError(t, err)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Run("unparsable port", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("PORT", "not-a-number")
		_, err := LoadFile("")
		require.Error(t, err)
	})

	t.Run("unparsable timeout", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("EXTRACT_TIMEOUT", "soon")
		_, err := LoadFile("")
		require.Error(t, err)
	})

	t.Run("zero page limit", func(t *testing.T) {
		clearEnv(t)
		t.Setenv("MAX_PAGE_LIMIT", "0")
		_, err := LoadFile("")
		assert.ErrorIs(t, err, ErrInvalidLimit)
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:           3001,
			DataDir:        "/tmp/x",
			ExtractTimeout: time.Minute,
			MaxUploadBytes: 1,
			MaxPageLimit:   1,
		}
	}

	assert.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
		want   error
	}{
		{"port zero", func(c *Config) { c.Port = 0 }, ErrInvalidPort},
		{"port too large", func(c *Config) { c.Port = 70000 }, ErrInvalidPort},
		{"empty data dir", func(c *Config) { c.DataDir = "" }, ErrDataDirRequired},
		{"negative upload limit", func(c *Config) { c.MaxUploadBytes = -1 }, ErrInvalidLimit},
		{"zero timeout", func(c *Config) { c.ExtractTimeout = 0 }, ErrInvalidTimeout},
		{"bucket without region", func(c *Config) { c.S3Bucket = "b" }, ErrS3RegionRequired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), tt.want)
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
		Port:               3001,
		DataDir:            "/tmp/test",
		AWSAccessKeyID:     "AKIAEXAMPLE",
		AWSSecretAccessKey: "secret-key",
		S3Bucket:           "bucket",
		S3Region:           "region",
		LogFormat:          "json",
		LogLevel:           "info",
	}

	str := cfg.String()

	// Should contain non-sensitive values
	assert.Contains(t, str, "3001")
	assert.Contains(t, str, "/tmp/test")
	assert.Contains(t, str, "bucket")

	// Should NOT contain sensitive values
	assert.NotContains(t, str, "secret-key")
	assert.NotContains(t, str, "AKIAEXAMPLE")
}

func TestConfig_NewLogger(t *testing.T) {
	for _, format := range []string{"json", "text", ""} {
		cfg := &Config{LogFormat: format, LogLevel: "warn"}
		logger := cfg.NewLogger()
		require.NotNil(t, logger)
		assert.False(t, logger.Enabled(t.Context(), slog.LevelInfo))
		assert.True(t, logger.Enabled(t.Context(), slog.LevelWarn))
	}

}

func TestConfig_NewLoggerTo(t *testing.T) {
	var buf bytes.Buffer
	(&Config{LogFormat: "json", LogLevel: "info"}).NewLoggerTo(&buf).Info("test message")
	assert.Contains(t, buf.String(), `"msg":"test message"`)

	buf.Reset()
	logger := (&Config{LogFormat: "text", LogLevel: "error"}).NewLoggerTo(&buf)
	logger.Warn("dropped")
	assert.Empty(t, buf.String())
	logger.Error("kept")
	assert.Contains(t, buf.String(), "msg=kept")
}

func TestParseLogLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
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
