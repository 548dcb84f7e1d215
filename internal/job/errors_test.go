package job

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/maauso/scrollframes/internal/encode"
	"github.com/maauso/scrollframes/internal/job/id"
	"github.com/maauso/scrollframes/internal/media"
	"github.com/maauso/scrollframes/internal/storage"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"invalid id", fmt.Errorf("x: %w", id.ErrInvalid), KindValidation},
		{"too large", fmt.Errorf("write upload: %w", ErrUploadTooLarge), KindValidation},
		{"unsupported", ErrUnsupportedUpload, KindValidation},
		{"not extracted", ErrNotExtracted, KindValidation},
		{"bad transition", ErrInvalidTransition, KindValidation},
		{"bundle format", encode.ErrUnknownBundleFormat, KindValidation},
		{"publish without s3", storage.ErrS3NotConfigured, KindValidation},
		{"job missing", ErrJobNotFound, KindNotFound},
		{"video missing", fmt.Errorf("video: %w", storage.ErrNotFound), KindNotFound},
		{"probe", &media.ProbeError{Path: "v.mp4", Err: errors.New("exit status 1")}, KindProbe},
		{"no stream", media.ErrNoVideoStream, KindProbe},
		{"bad rate", media.ErrInvalidFrameRate, KindProbe},
		{"timeout", fmt.Errorf("ffmpeg: %w", media.ErrExtractionTimeout), KindExtractionTimeout},
		{"extraction", &media.ExtractionError{Err: errors.New("exit status 1")}, KindExtraction},
		{"cancelled", context.Canceled, KindExtraction},
		{"frame vanished", &encode.FrameError{Name: "frame-000001.jpg", Err: storage.ErrNotFound}, KindStorage},
		{"disk", errors.New("no space left on device"), KindStorage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := classify("op", tt.err)
			assert.Equal(t, tt.want, KindOf(err))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestClassify_KeepsExistingKind(t *testing.T) {
	orig := newError(KindNotFound, "probe", "video not found", nil)
	assert.Same(t, orig, classify("other", orig))
	assert.Nil(t, classify("op", nil))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(nil))
	assert.Equal(t, KindStorage, KindOf(errors.New("plain")))
	assert.Equal(t, KindProbe, KindOf(fmt.Errorf("wrapped: %w", newError(KindProbe, "probe", "m", nil))))
}

func TestError_Message(t *testing.T) {
	err := newError(KindNotFound, "encode", "video not found", storage.ErrNotFound)
	assert.Equal(t, "encode: video not found: not found", err.Error())
	assert.Equal(t, "encode: bad", newError(KindValidation, "encode", "bad", nil).Error())
}
