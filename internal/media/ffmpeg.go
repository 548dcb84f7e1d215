package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Width bounds applied to ExtractionConfig.Width.
const (
	MinWidth = 240
	MaxWidth = 4096
)

// DefaultExtractTimeout is the wall-clock ceiling for a single extraction.
const DefaultExtractTimeout = 20 * time.Minute

// killGrace bounds how long Wait keeps draining I/O after the process was killed.
const killGrace = 5 * time.Second

// stderrTail is how much of ffmpeg's stderr is kept for error messages.
const stderrTail = 16 << 10

// Static errors for extraction.
var (
	// ErrExtractionTimeout is returned when ffmpeg runs past the time limit.
	ErrExtractionTimeout = errors.New("frame extraction timed out")
	// ErrInvalidOutputPattern is returned when the output pattern does not
	// carry exactly one integer verb such as %06d.
	ErrInvalidOutputPattern = errors.New("output pattern needs exactly one %d-style verb")
)

// sequenceVerb matches the integer verbs ffmpeg's image2 muxer expands.
var sequenceVerb = regexp.MustCompile(`%0?[0-9]*d`)

// validOutputPattern reports whether p has a single sequence verb and no
// other '%' that ffmpeg would try to expand.
func validOutputPattern(p string) bool {
	return strings.Count(p, "%") == 1 && len(sequenceVerb.FindAllStringIndex(p, -1)) == 1
}

// ImageFormat is the still-image format frames are written in.
type ImageFormat string

const (
	FormatJPG  ImageFormat = "jpg"
	FormatJPEG ImageFormat = "jpeg"
	FormatPNG  ImageFormat = "png"
	FormatWebP ImageFormat = "webp"
)

// DefaultFormat is used when a caller asks for an unknown format.
const DefaultFormat = FormatJPG

// ParseImageFormat maps s to a supported format, falling back to DefaultFormat.
func ParseImageFormat(s string) ImageFormat {
	switch f := ImageFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatJPG, FormatJPEG, FormatPNG, FormatWebP:
		return f
	default:
		return DefaultFormat
	}
}

// Ext returns the file extension, without the dot.
func (f ImageFormat) Ext() string {
	return string(f)
}

// outputOptions returns the format-specific quality flags.
func (f ImageFormat) outputOptions() []string {
	switch f {
	case FormatPNG:
		return []string{"-compression_level", "6"}
	case FormatWebP:
		return []string{"-q:v", "90"}
	default:
		return []string{"-q:v", "2"}
	}
}

// ExtractionConfig controls how a video is decoded into frames.
type ExtractionConfig struct {
	// Width is the target frame width; 0 keeps the source size.
	Width int `json:"width,omitempty"`
	// Format is the output image format.
	Format ImageFormat `json:"format"`
	// Rate is the output frame rate. It should be the source's own rate so
	// that every decoded frame is written exactly once.
	Rate Rational `json:"rate"`
	// PlaybackFPS is the caller's preferred playback pacing. It is carried as
	// metadata and never used as the extraction rate.
	PlaybackFPS int `json:"playbackFps,omitempty"`
}

// Normalize clamps Width and PlaybackFPS and resolves Format.
func (c ExtractionConfig) Normalize() ExtractionConfig {
	if c.Width > 0 {
		c.Width = max(MinWidth, min(MaxWidth, c.Width))
	} else {
		c.Width = 0
	}
	if c.PlaybackFPS > 0 {
		c.PlaybackFPS = min(60, c.PlaybackFPS)
	} else {
		c.PlaybackFPS = 0
	}
	c.Format = ParseImageFormat(string(c.Format))
	return c
}

// ExtractionError represents an ffmpeg failure, including its stderr output.
type ExtractionError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("ffmpeg error: %v\nargs: %v\nstderr: %s", e.Err, e.Args, e.Stderr)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// FFmpegExtractor implements Extractor using the ffmpeg CLI.
type FFmpegExtractor struct {
	// ffmpegPath is the path to the ffmpeg binary. Defaults to "ffmpeg".
	ffmpegPath string
	timeout    time.Duration
}

// NewFFmpegExtractor creates a new FFmpegExtractor.
// If ffmpegPath is empty, it defaults to "ffmpeg" (found via PATH).
// A non-positive timeout selects DefaultExtractTimeout.
func NewFFmpegExtractor(ffmpegPath string, timeout time.Duration) *FFmpegExtractor {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if timeout <= 0 {
		timeout = DefaultExtractTimeout
	}
	return &FFmpegExtractor{ffmpegPath: ffmpegPath, timeout: timeout}
}

// Verify interface implementation at compile time.
var _ Extractor = (*FFmpegExtractor)(nil)

// Extract runs ffmpeg and blocks until it exits, the time limit elapses, or
// ctx is cancelled. The process is killed in the latter two cases.
func (e *FFmpegExtractor) Extract(ctx context.Context, videoPath, outputPattern string, cfg ExtractionConfig, onProgress ProgressFunc) error {
	if !validOutputPattern(outputPattern) {
		return fmt.Errorf("%w: %q", ErrInvalidOutputPattern, outputPattern)
	}
	if cfg.Rate.IsZero() {
		return fmt.Errorf("%w: %s", ErrInvalidFrameRate, cfg.Rate)
	}
	cfg = cfg.Normalize()
	args := buildExtractArgs(videoPath, outputPattern, cfg)

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	// #nosec G204 - ffmpegPath is set by the application, not user input
	cmd := exec.CommandContext(ctx, e.ffmpegPath, args...)
	cmd.WaitDelay = killGrace
	stderr := &tailBuffer{limit: stderrTail}
	cmd.Stderr = stderr
	cmd.Stdout = &progressWriter{fn: onProgress}

	if err := cmd.Start(); err != nil {
		return &ExtractionError{Args: args, Err: fmt.Errorf("start ffmpeg: %w", err)}
	}

	err := cmd.Wait()
	if err == nil {
		return nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w after %s", ErrExtractionTimeout, e.timeout)
	}
	if ctx.Err() != nil {
		return fmt.Errorf("ffmpeg cancelled: %w", ctx.Err())
	}
	return &ExtractionError{
		Args:   args,
		Stderr: strings.TrimSpace(stderr.String()),
		Err:    err,
	}
}

// buildExtractArgs assembles the ffmpeg command line for cfg.
func buildExtractArgs(videoPath, outputPattern string, cfg ExtractionConfig) []string {
	args := []string{
		"-hide_banner",
		"-nostdin",
		"-y",            // Overwrite output files without asking
		"-i", videoPath, // Input file
	}
	if cfg.Width > 0 {
		// Lanczos resampling, height follows the aspect ratio
		args = append(args, "-vf", fmt.Sprintf("scale=%d:-1:flags=lanczos", cfg.Width))
	}
	args = append(args, "-r", cfg.Rate.String())
	args = append(args, cfg.Format.outputOptions()...)
	args = append(args,
		"-progress", "pipe:1", // Machine-readable progress on stdout
		"-nostats",
		outputPattern,
	)
	return args
}

// progressWriter parses ffmpeg's -progress key=value stream.
type progressWriter struct {
	fn     ProgressFunc
	buf    []byte
	frames int
}

func (w *progressWriter) Write(p []byte) (int, error) {
	if w.fn == nil {
		return len(p), nil
	}
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
		w.handleLine(line)
	}
	return len(p), nil
}

func (w *progressWriter) handleLine(line string) {
	key, value, ok := strings.Cut(line, "=")
	if !ok {
		return
	}
	switch key {
	case "frame":
		if n, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			w.frames = n
			w.fn(Progress{Frames: n})
		}
	case "progress":
		if value == "end" {
			w.fn(Progress{Frames: w.frames, Done: true})
		}
	}
}

// tailBuffer keeps the last limit bytes written to it.
type tailBuffer struct {
	mu    sync.Mutex
	limit int
	buf   []byte
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if over := len(b.buf) - b.limit; over > 0 {
		b.buf = b.buf[over:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}
