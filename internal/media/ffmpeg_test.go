package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// skipIfNoFFmpeg skips the test if ffmpeg or ffprobe is not available.
func skipIfNoFFmpeg(t *testing.T) {
	t.Helper()
	for _, bin := range []string{"ffmpeg", "ffprobe"} {
		if _, err := exec.LookPath(bin); err != nil {
			t.Skipf("%s not found in PATH, skipping test", bin)
		}
	}
}

// createTestVideo creates a small test video with a known frame rate using ffmpeg.
func createTestVideo(t *testing.T, path string, duration float64, rate int) {
	t.Helper()

	cmd := exec.Command("ffmpeg",
		"-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("testsrc=size=64x64:rate=%d:duration=%.1f", rate, duration),
		"-c:v", "libx264",
		"-preset", "ultrafast",
		"-pix_fmt", "yuv420p",
		path,
	)
	if output, err := cmd.CombinedOutput(); err != nil {
		t.Fatalf("failed to create test video: %v\noutput: %s", err, output)
	}
}

// writeScript writes an executable shell script standing in for ffmpeg.
func writeScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestNewFFmpegExtractor(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		e := NewFFmpegExtractor("", 0)
		assert.Equal(t, "ffmpeg", e.ffmpegPath)
		assert.Equal(t, DefaultExtractTimeout, e.timeout)
	})

	t.Run("custom", func(t *testing.T) {
		e := NewFFmpegExtractor("/usr/local/bin/ffmpeg", time.Minute)
		assert.Equal(t, "/usr/local/bin/ffmpeg", e.ffmpegPath)
		assert.Equal(t, time.Minute, e.timeout)
	})
}

func TestExtractionConfig_Normalize(t *testing.T) {
	tests := []struct {
		name string
		in   ExtractionConfig
		want ExtractionConfig
	}{
		{"zero keeps source", ExtractionConfig{}, ExtractionConfig{Format: FormatJPG}},
		{"negative width ignored", ExtractionConfig{Width: -5}, ExtractionConfig{Format: FormatJPG}},
		{"width clamped low", ExtractionConfig{Width: 100}, ExtractionConfig{Width: 240, Format: FormatJPG}},
		{"width clamped high", ExtractionConfig{Width: 10000}, ExtractionConfig{Width: 4096, Format: FormatJPG}},
		{"width kept", ExtractionConfig{Width: 1280, Format: "webp"}, ExtractionConfig{Width: 1280, Format: FormatWebP}},
		{"unknown format", ExtractionConfig{Format: "gif"}, ExtractionConfig{Format: FormatJPG}},
		{"format case", ExtractionConfig{Format: " PNG "}, ExtractionConfig{Format: FormatPNG}},
		{"playback fps clamped", ExtractionConfig{PlaybackFPS: 240}, ExtractionConfig{PlaybackFPS: 60, Format: FormatJPG}},
		{"rate untouched", ExtractionConfig{Rate: Rational{30000, 1001}}, ExtractionConfig{Rate: Rational{30000, 1001}, Format: FormatJPG}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.in.Normalize())
		})
	}
}

func TestBuildExtractArgs(t *testing.T) {
	t.Run("scaled jpg at source rate", func(t *testing.T) {
		cfg := ExtractionConfig{Width: 1280, Format: FormatJPG, Rate: Rational{30000, 1001}, PlaybackFPS: 12}
		args := buildExtractArgs("/in.mp4", "/out/frame-%06d.jpg", cfg)

		joined := strings.Join(args, " ")
		assert.Contains(t, joined, "-i /in.mp4")
		assert.Contains(t, joined, "-vf scale=1280:-1:flags=lanczos")
		assert.Contains(t, joined, "-r 30000/1001")
		assert.Contains(t, joined, "-q:v 2")
		assert.NotContains(t, joined, "fps=", "playback fps must not reach ffmpeg")
		assert.Equal(t, "/out/frame-%06d.jpg", args[len(args)-1])

		for i, a := range args {
			if a == "-r" {
				assert.Equal(t, "30000/1001", args[i+1])
			}
		}
	})

	t.Run("png without scaling", func(t *testing.T) {
		cfg := ExtractionConfig{Format: FormatPNG, Rate: Rational{25, 1}}
		joined := strings.Join(buildExtractArgs("/in.mp4", "/out/frame-%06d.png", cfg), " ")
		assert.NotContains(t, joined, "-vf")
		assert.Contains(t, joined, "-compression_level 6")
	})

	t.Run("webp quality", func(t *testing.T) {
		cfg := ExtractionConfig{Format: FormatWebP, Rate: Rational{25, 1}}
		joined := strings.Join(buildExtractArgs("/in.mp4", "/out/frame-%06d.webp", cfg), " ")
		assert.Contains(t, joined, "-q:v 90")
	})
}

func TestProgressWriter(t *testing.T) {
	var got []Progress
	w := &progressWriter{fn: func(p Progress) { got = append(got, p) }}

	// ffmpeg flushes progress blocks in arbitrary chunk sizes
	chunks := []string{
		"frame=10\nfps=0.0\nout_time=00:00:00.4",
		"00000\nprogress=continue\nfra",
		"me=25\nprogress=end\n",
	}
	for _, c := range chunks {
		n, err := w.Write([]byte(c))
		require.NoError(t, err)
		assert.Equal(t, len(c), n)
	}

	assert.Equal(t, []Progress{
		{Frames: 10},
		{Frames: 25},
		{Frames: 25, Done: true},
	}, got)
}

func TestExtract_Validation(t *testing.T) {
	e := NewFFmpegExtractor("", time.Second)
	ctx := context.Background()

	for _, pattern := range []string{
		"",
		"/out/frame.jpg",
		"/out/frame-%s.jpg",
		"/out/frame-%06d-%06d.jpg",
		"/out/100%/frame-%06d.jpg",
	} {
		err := e.Extract(ctx, "/in.mp4", pattern, ExtractionConfig{Rate: Rational{25, 1}}, nil)
		assert.ErrorIs(t, err, ErrInvalidOutputPattern, pattern)
	}

	err := e.Extract(ctx, "/in.mp4", "/out/frame-%06d.jpg", ExtractionConfig{}, nil)
	assert.ErrorIs(t, err, ErrInvalidFrameRate)
}

func TestValidOutputPattern(t *testing.T) {
	for _, p := range []string{"frame-%06d.jpg", "/data/frames/x/frame-%d.png", "f%3d.webp"} {
		assert.True(t, validOutputPattern(p), p)
	}
	for _, p := range []string{"frame.jpg", "frame-%%06d.jpg", "frame-%x.jpg", "%d-%d.jpg"} {
		assert.False(t, validOutputPattern(p), p)
	}
}

func TestExtract_Timeout(t *testing.T) {
	script := writeScript(t, "exec sleep 10")
	e := NewFFmpegExtractor(script, 200*time.Millisecond)

	start := time.Now()
	err := e.Extract(context.Background(), "/in.mp4", filepath.Join(t.TempDir(), "frame-%06d.jpg"),
		ExtractionConfig{Rate: Rational{25, 1}}, nil)

	require.ErrorIs(t, err, ErrExtractionTimeout)
	assert.Less(t, time.Since(start), 5*time.Second, "process should be killed, not awaited")
}

func TestExtract_ToolFailure(t *testing.T) {
	script := writeScript(t, "echo 'Invalid data found when processing input' >&2\nexit 1")
	e := NewFFmpegExtractor(script, 5*time.Second)

	err := e.Extract(context.Background(), "/in.mp4", filepath.Join(t.TempDir(), "frame-%06d.jpg"),
		ExtractionConfig{Rate: Rational{25, 1}}, nil)

	var extErr *ExtractionError
	require.True(t, errors.As(err, &extErr), "expected ExtractionError, got %T", err)
	assert.Contains(t, extErr.Stderr, "Invalid data found")
	assert.Contains(t, extErr.Error(), "exit status 1")
}

func TestExtract_Cancelled(t *testing.T) {
	script := writeScript(t, "exec sleep 10")
	e := NewFFmpegExtractor(script, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	err := e.Extract(ctx, "/in.mp4", filepath.Join(t.TempDir(), "frame-%06d.jpg"),
		ExtractionConfig{Rate: Rational{25, 1}}, nil)
	require.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrExtractionTimeout)
}

func TestExtract_AllSourceFrames(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	videoPath := filepath.Join(tmpDir, "src.mp4")
	createTestVideo(t, videoPath, 10.0, 30)

	ctx := context.Background()
	meta, err := NewFFprobeProber("").Probe(ctx, videoPath)
	require.NoError(t, err)

	outDir := filepath.Join(tmpDir, "frames")
	require.NoError(t, os.MkdirAll(outDir, 0o750))

	var mu sync.Mutex
	var last Progress
	cfg := ExtractionConfig{Format: FormatJPG, Rate: meta.FrameRate, PlaybackFPS: 12}
	err = NewFFmpegExtractor("", time.Minute).Extract(ctx, videoPath, filepath.Join(outDir, "frame-%06d.jpg"), cfg,
		func(p Progress) {
			mu.Lock()
			last = p
			mu.Unlock()
		})
	require.NoError(t, err)

	files, err := filepath.Glob(filepath.Join(outDir, "frame-*.jpg"))
	require.NoError(t, err)
	assert.Len(t, files, 300)
	assert.True(t, sort.StringsAreSorted(files))
	assert.Equal(t, filepath.Join(outDir, "frame-000001.jpg"), files[0])
	assert.Equal(t, filepath.Join(outDir, "frame-000300.jpg"), files[len(files)-1])

	mu.Lock()
	defer mu.Unlock()
	assert.True(t, last.Done)
	assert.Equal(t, 300, last.Frames)
}

func TestExtract_ScaledWidth(t *testing.T) {
	skipIfNoFFmpeg(t)

	tmpDir := t.TempDir()
	videoPath := filepath.Join(tmpDir, "src.mp4")
	createTestVideo(t, videoPath, 1.0, 10)

	cfg := ExtractionConfig{Width: 320, Format: FormatPNG, Rate: Rational{10, 1}}
	err := NewFFmpegExtractor("", time.Minute).Extract(context.Background(), videoPath,
		filepath.Join(tmpDir, "frame-%06d.png"), cfg, nil)
	require.NoError(t, err)

	out, err := exec.Command("ffprobe", "-v", "error", "-select_streams", "v:0",
		"-show_entries", "stream=width,height", "-of", "csv=s=x:p=0",
		filepath.Join(tmpDir, "frame-000001.png")).Output()
	require.NoError(t, err)
	assert.Equal(t, "320x320", strings.TrimSpace(string(out)))
}
