package job

import (
	"context"
	"errors"
	"fmt"

	"github.com/maauso/scrollframes/internal/encode"
	"github.com/maauso/scrollframes/internal/media"
	"github.com/maauso/scrollframes/internal/storage"
)

// Kind is the stable, caller-visible category of a failure.
type Kind string

const (
	KindValidation        Kind = "VALIDATION_ERROR"
	KindNotFound          Kind = "NOT_FOUND"
	KindProbe             Kind = "PROBE_ERROR"
	KindExtraction        Kind = "EXTRACTION_ERROR"
	KindExtractionTimeout Kind = "EXTRACTION_TIMEOUT"
	KindStorage           Kind = "STORAGE_ERROR"
)

// Request rejections, reported as KindValidation.
var (
	ErrUploadTooLarge    = errors.New("upload exceeds size limit")
	ErrUnsupportedUpload = errors.New("unsupported video type")
	ErrEmptyUpload       = errors.New("no video data provided")
	ErrNotExtracted      = errors.New("frames have not been extracted")
)

// Error is returned by every Service operation.
type Error struct {
	Kind    Kind
	Op      string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of err. Errors that did not come from the
// service are reported as KindStorage; nil has no kind.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStorage
}

func newError(kind Kind, op, msg string, err error) *Error {
	return &Error{Kind: kind, Op: op, Message: msg, Err: err}
}

// classify wraps a lower-level error in an *Error with the matching kind.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	var e *Error
	if errors.As(err, &e) {
		return err
	}

	var probeErr *media.ProbeError
	var extErr *media.ExtractionError
	switch {
	case isFrameError(err):
		return newError(KindStorage, op, "could not encode frames", err)
	case errors.Is(err, storage.ErrInvalidID),
		errors.Is(err, storage.ErrInvalidExtension),
		errors.Is(err, storage.ErrInvalidFrameName),
		errors.Is(err, ErrUploadTooLarge),
		errors.Is(err, ErrUnsupportedUpload),
		errors.Is(err, ErrEmptyUpload),
		errors.Is(err, encode.ErrUnknownBundleFormat),
		errors.Is(err, ErrUnknownStatus),
		errors.Is(err, storage.ErrS3NotConfigured):
		return newError(KindValidation, op, "invalid request", err)
	case errors.Is(err, ErrJobNotFound), errors.Is(err, storage.ErrNotFound):
		return newError(KindNotFound, op, "video not found", err)
	case errors.Is(err, ErrNotExtracted), errors.Is(err, ErrInvalidTransition):
		return newError(KindValidation, op, "operation not allowed in current state", err)
	case errors.Is(err, media.ErrExtractionTimeout):
		return newError(KindExtractionTimeout, op, "extraction timed out", err)
	case errors.As(err, &extErr):
		return newError(KindExtraction, op, "frame extraction failed", err)
	case errors.As(err, &probeErr), errors.Is(err, media.ErrNoVideoStream), errors.Is(err, media.ErrInvalidFrameRate):
		return newError(KindProbe, op, "could not read video metadata", err)
	case errors.Is(err, context.Canceled):
		return newError(KindExtraction, op, "cancelled", err)
	default:
		return newError(KindStorage, op, "storage failure", err)
	}
}

// isFrameError reports whether err came from reading or decoding one frame
// of an existing job.
func isFrameError(err error) bool {
	var fe *encode.FrameError
	return errors.As(err, &fe)
}
