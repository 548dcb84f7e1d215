// Package job provides the Job aggregate for a video's journey from upload
// to extracted frames, the lifecycle service that drives it, and the
// repository port used to track jobs in memory.
package job

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/maauso/scrollframes/internal/media"
)

// Status represents the current state of a Job.
type Status string

const (
	// StatusUploaded indicates the source video is stored and nothing else has happened.
	StatusUploaded Status = "UPLOADED"
	// StatusProbed indicates metadata was read from the source video.
	StatusProbed Status = "PROBED"
	// StatusExtracting indicates ffmpeg is writing frames.
	StatusExtracting Status = "EXTRACTING"
	// StatusExtracted indicates a complete frame set is on disk.
	StatusExtracted Status = "EXTRACTED"
	// StatusFailed indicates extraction failed and partial frames were removed.
	StatusFailed Status = "FAILED"
	// StatusCleaned indicates all artifacts were deleted.
	StatusCleaned Status = "CLEANED"
)

// ErrInvalidTransition is returned when an invalid state transition is attempted.
var ErrInvalidTransition = errors.New("invalid state transition")

// ErrUnknownStatus is returned by ParseStatus for names outside the lifecycle.
var ErrUnknownStatus = errors.New("unknown job status")

// ParseStatus maps a case-insensitive status name onto a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := validTransitions[status]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownStatus, s)
	}
	return status, nil
}

// validTransitions defines which state transitions are allowed.
var validTransitions = map[Status][]Status{
	StatusUploaded:   {StatusProbed, StatusExtracting, StatusCleaned},
	StatusProbed:     {StatusProbed, StatusExtracting, StatusCleaned},
	StatusExtracting: {StatusExtracted, StatusFailed},
	StatusExtracted:  {StatusExtracting, StatusCleaned},
	StatusFailed:     {StatusCleaned},
	StatusCleaned:    {},
}

// canTransition checks if a transition from one status to another is valid.
func canTransition(from, to Status) bool {
	allowed, ok := validTransitions[from]
	if !ok {
		return false
	}
	return slices.Contains(allowed, to)
}

// Job tracks one uploaded video.
type Job struct {
	mu sync.RWMutex

	// ID is the unique identifier, also used to name files on disk.
	ID string
	// Status is the current job state.
	Status Status
	// VideoPath is the stored source video.
	VideoPath string
	// Filename is the client's original file name.
	Filename string
	// SizeBytes is the stored video size.
	SizeBytes int64
	// Metadata is the most recent probe result.
	Metadata *media.VideoMetadata
	// FrameCount is the number of frames in the last completed extraction.
	FrameCount int
	// FrameFormat is the image format of the extracted frames.
	FrameFormat media.ImageFormat
	// Error contains the failure message if extraction failed.
	Error string
	// CreatedAt is when the job was created.
	CreatedAt time.Time
	// UpdatedAt is when the job was last updated.
	UpdatedAt time.Time
	// ExtractedAt is when the last extraction finished.
	ExtractedAt time.Time
}

// NewWithID creates a new Job in UPLOADED status.
func NewWithID(jobID string) *Job {
	now := time.Now()
	return &Job{
		ID:        jobID,
		Status:    StatusUploaded,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// TransitionTo attempts to change the job status to the specified state.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) TransitionTo(status Status) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.transitionLocked(status)
}

func (j *Job) transitionLocked(status Status) error {
	if !canTransition(j.Status, status) {
		return ErrInvalidTransition
	}

	j.Status = status
	j.UpdatedAt = time.Now()

	switch status {
	case StatusExtracting:
		j.Error = ""
	case StatusExtracted:
		j.ExtractedAt = j.UpdatedAt
	}
	return nil
}

// MarkProbed records metadata. The status moves to PROBED only from the
// pre-extraction states; an extracted job keeps its status.
func (j *Job) MarkProbed(meta *media.VideoMetadata) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Metadata = meta
	j.UpdatedAt = time.Now()
	if j.Status == StatusUploaded || j.Status == StatusProbed {
		_ = j.transitionLocked(StatusProbed)
	}
}

// Complete transitions the job to EXTRACTED with the resulting frame set summary.
func (j *Job) Complete(frameCount int, format media.ImageFormat) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusExtracted); err != nil {
		return err
	}
	j.FrameCount = frameCount
	j.FrameFormat = format
	return nil
}

// Fail transitions the job to FAILED state with an error message.
// Returns ErrInvalidTransition if the transition is not allowed.
func (j *Job) Fail(errMsg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.transitionLocked(StatusFailed); err != nil {
		return err
	}
	j.Error = errMsg
	j.FrameCount = 0
	return nil
}

// GetStatus returns the current job status (thread-safe).
func (j *Job) GetStatus() Status {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status
}

// IsTerminal returns true if only cleanup may still happen to the job.
func (j *Job) IsTerminal() bool {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return j.Status == StatusFailed || j.Status == StatusCleaned
}

// Clone creates a deep copy of the job for safe reads.
func (j *Job) Clone() *Job {
	j.mu.RLock()
	defer j.mu.RUnlock()

	var meta *media.VideoMetadata
	if j.Metadata != nil {
		m := *j.Metadata
		meta = &m
	}

	return &Job{
		ID:          j.ID,
		Status:      j.Status,
		VideoPath:   j.VideoPath,
		Filename:    j.Filename,
		SizeBytes:   j.SizeBytes,
		Metadata:    meta,
		FrameCount:  j.FrameCount,
		FrameFormat: j.FrameFormat,
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
		ExtractedAt: j.ExtractedAt,
	}
}
