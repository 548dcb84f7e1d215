// Package storage owns the on-disk layout of uploaded videos and extracted
// frames. It defines the Storage interface (port) and implementations for
// local disk, optionally backed by S3 for published export bundles.
package storage

import (
	"context"
	"io"
	"regexp"
	"strconv"
)

// Storage defines the file-system contract for jobs.
// Every method that takes a job identifier validates it before building a path.
type Storage interface {
	// CreateJobDirectories ensures the upload area and the job's frame
	// directory exist. It is idempotent.
	CreateJobDirectories(ctx context.Context, jobID string) error

	// SaveUpload stores the source video as <jobID><ext> and returns its path
	// and size in bytes.
	SaveUpload(ctx context.Context, jobID, ext string, data io.Reader) (path string, size int64, err error)

	// ResolveVideoPath returns the stored video for jobID.
	// Returns ErrNotFound if no upload matches.
	ResolveVideoPath(ctx context.Context, jobID string) (string, error)

	// FramesDir returns the directory holding jobID's frames.
	FramesDir(jobID string) (string, error)

	// ResetFrames removes any previous frames and recreates an empty directory.
	ResetFrames(ctx context.Context, jobID string) error

	// FramesExist reports whether jobID has a frame directory.
	FramesExist(ctx context.Context, jobID string) (bool, error)

	// ListFrames returns jobID's frames ordered by sequence number.
	// A missing directory yields an empty list.
	ListFrames(ctx context.Context, jobID string) ([]Frame, error)

	// ReadFrame returns the content of a single frame file.
	ReadFrame(ctx context.Context, jobID, name string) ([]byte, error)

	// DeleteFrames removes jobID's frame directory. Absence is not an error.
	DeleteFrames(ctx context.Context, jobID string) error

	// DeleteJob removes the source video and the frame directory.
	// Deleting something already absent succeeds with the matching flag false.
	DeleteJob(ctx context.Context, jobID string) (DeleteResult, error)

	// UploadToS3 uploads data to S3 and returns the public URL.
	// Returns ErrS3NotConfigured if S3 is not configured.
	UploadToS3(ctx context.Context, key string, data io.Reader) (url string, err error)
}

// DeleteResult reports what DeleteJob actually removed.
type DeleteResult struct {
	DeletedVideo  bool `json:"deletedVideo"`
	DeletedFrames bool `json:"deletedFrames"`
}

// Frame is one extracted image file.
type Frame struct {
	// Name is the file name inside the job's frame directory.
	Name string
	// Seq is the 1-based sequence number parsed from Name.
	Seq int
	// Size is the file size in bytes.
	Size int64
}

// FramePrefix starts every frame file name.
const FramePrefix = "frame-"

var frameNamePattern = regexp.MustCompile(`^frame-([0-9]{6,})\.(jpg|jpeg|png|webp)$`)

// FramePattern returns the printf pattern ffmpeg writes frames with,
// e.g. frame-%06d.jpg. Six digits keep lexicographic and temporal order equal.
func FramePattern(ext string) string {
	return FramePrefix + "%06d." + ext
}

// ParseFrameName extracts the sequence number from a frame file name.
func ParseFrameName(name string) (int, bool) {
	m := frameNamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	seq, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return seq, true
}
