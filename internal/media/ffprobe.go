package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ErrNoVideoStream is returned when a container holds no video stream.
var ErrNoVideoStream = errors.New("no video stream found")

// VideoMetadata describes the first video stream of a file.
type VideoMetadata struct {
	Width     int      `json:"width"`
	Height    int      `json:"height"`
	FrameRate Rational `json:"frameRate"`
	// FPS is FrameRate resolved to a floating value.
	FPS      float64 `json:"fps"`
	Duration float64 `json:"duration"`
	Codec    string  `json:"codec"`
	BitRate  int64   `json:"bitrate"`
	// TotalFrames is floor(FPS × Duration).
	TotalFrames int `json:"totalFrames"`
}

// ProbeError is returned when a file cannot be inspected.
type ProbeError struct {
	Path   string
	Stderr string
	Err    error
}

func (e *ProbeError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("probe %s: %v", e.Path, e.Err)
	}
	return fmt.Sprintf("probe %s: %v\nstderr: %s", e.Path, e.Err, e.Stderr)
}

func (e *ProbeError) Unwrap() error {
	return e.Err
}

// FFprobeProber implements Prober using the ffprobe CLI.
type FFprobeProber struct {
	// ffprobePath is the path to the ffprobe binary. Defaults to "ffprobe".
	ffprobePath string
}

// NewFFprobeProber creates a new FFprobeProber.
// If ffprobePath is empty, it defaults to "ffprobe" (found via PATH).
func NewFFprobeProber(ffprobePath string) *FFprobeProber {
	if ffprobePath == "" {
		ffprobePath = "ffprobe"
	}
	return &FFprobeProber{ffprobePath: ffprobePath}
}

// Verify interface implementation at compile time.
var _ Prober = (*FFprobeProber)(nil)

// Probe runs ffprobe on path and returns the metadata of its first video stream.
func (p *FFprobeProber) Probe(ctx context.Context, path string) (*VideoMetadata, error) {
	// #nosec G204 - ffprobePath is set by the application, not user input
	cmd := exec.CommandContext(ctx, p.ffprobePath,
		"-v", "error",
		"-print_format", "json",
		"-show_format",
		"-show_streams",
		path,
	)

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &ProbeError{Path: path, Err: fmt.Errorf("ffprobe cancelled: %w", ctx.Err())}
		}
		return nil, &ProbeError{Path: path, Stderr: strings.TrimSpace(stderr.String()), Err: err}
	}

	meta, err := parseProbeOutput(stdout.Bytes())
	if err != nil {
		return nil, &ProbeError{Path: path, Err: err}
	}
	return meta, nil
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	CodecType    string `json:"codec_type"`
	CodecName    string `json:"codec_name"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	RFrameRate   string `json:"r_frame_rate"`
	AvgFrameRate string `json:"avg_frame_rate"`
	Duration     string `json:"duration"`
	BitRate      string `json:"bit_rate"`
}

type probeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

// parseProbeOutput turns ffprobe's JSON report into VideoMetadata.
func parseProbeOutput(data []byte) (*VideoMetadata, error) {
	var out probeOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("decode ffprobe output: %w", err)
	}

	var stream *probeStream
	for i := range out.Streams {
		if out.Streams[i].CodecType == "video" {
			stream = &out.Streams[i]
			break
		}
	}
	if stream == nil {
		return nil, ErrNoVideoStream
	}

	rate, err := streamFrameRate(stream)
	if err != nil {
		return nil, err
	}

	// Stream duration wins; some containers (mkv, webm) only report it on the format.
	duration, ok := parseFloat(stream.Duration)
	if !ok {
		duration, ok = parseFloat(out.Format.Duration)
	}
	if !ok {
		return nil, fmt.Errorf("no duration reported for stream or container")
	}

	bitRate, ok := parseInt(out.Format.BitRate)
	if !ok {
		bitRate, _ = parseInt(stream.BitRate)
	}

	fps := rate.Float()
	return &VideoMetadata{
		Width:       stream.Width,
		Height:      stream.Height,
		FrameRate:   rate,
		FPS:         fps,
		Duration:    duration,
		Codec:       stream.CodecName,
		BitRate:     bitRate,
		TotalFrames: EstimateFrames(fps, duration),
	}, nil
}

// streamFrameRate prefers r_frame_rate and falls back to avg_frame_rate when
// the former is missing or 0/0.
func streamFrameRate(s *probeStream) (Rational, error) {
	rate, err := ParseRational(s.RFrameRate)
	if err == nil && !rate.IsZero() {
		return rate, nil
	}
	avg, avgErr := ParseRational(s.AvgFrameRate)
	if avgErr == nil && !avg.IsZero() {
		return avg, nil
	}
	if err != nil {
		return Rational{}, err
	}
	return Rational{}, fmt.Errorf("%w: %q", ErrInvalidFrameRate, s.RFrameRate)
}

func parseFloat(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 {
		return 0, false
	}
	return v, true
}

func parseInt(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" || s == "N/A" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
