// Package media inspects video files and decodes them into numbered still
// images by driving the ffprobe and ffmpeg command-line tools.
package media

import "context"

// Prober inspects a video file and reports its stream metadata.
type Prober interface {
	// Probe returns the metadata of the first video stream in path.
	// Failures are reported as *ProbeError.
	Probe(ctx context.Context, path string) (*VideoMetadata, error)
}

// Extractor decodes a video into a sequence of image files.
type Extractor interface {
	// Extract decodes videoPath into files named by outputPattern, a printf-style
	// path with a single integer verb (e.g. /frames/x/frame-%06d.jpg).
	// onProgress may be nil. A run that exceeds the extractor's time limit
	// fails with ErrExtractionTimeout after the process has been killed.
	Extract(ctx context.Context, videoPath, outputPattern string, cfg ExtractionConfig, onProgress ProgressFunc) error
}

// Progress reports how far an extraction has come.
type Progress struct {
	// Frames is the number of frames written so far.
	Frames int
	// Done is set on the final report emitted by ffmpeg.
	Done bool
}

// ProgressFunc observes extraction progress. It is called from a goroutine
// owned by the extractor and must not block for long.
type ProgressFunc func(Progress)
