// Package encode turns extracted frames into embeddable data-URI descriptors,
// one bounded page at a time.
package encode

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for image.DecodeConfig
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/maauso/scrollframes/internal/storage"
)

const (
	// DefaultLimit is used when a request asks for a non-positive page size.
	DefaultLimit = 100
	// DefaultMaxLimit caps the page size unless overridden with WithMaxLimit.
	DefaultMaxLimit = 500
)

// ErrUnsupportedImage is returned when a frame is not a decodable jpeg, png or webp.
var ErrUnsupportedImage = errors.New("unsupported image")

// FrameSource reads a single frame's bytes.
type FrameSource interface {
	ReadFrame(ctx context.Context, jobID, name string) ([]byte, error)
}

// ImageDescriptor is the per-frame payload consumed by the scroll player.
type ImageDescriptor struct {
	Index int    `json:"index"`
	ID    string `json:"id"`
	W     int    `json:"w"`
	H     int    `json:"h"`
	U     string `json:"u"`
	P     string `json:"p"`
	E     int    `json:"e"`
}

// Page is one window over a frame set.
type Page struct {
	TotalFrames    int               `json:"totalFrames"`
	ReturnedFrames int               `json:"returnedFrames"`
	Offset         int               `json:"offset"`
	Limit          int               `json:"limit"`
	HasMore        bool              `json:"hasMore"`
	NextOffset     *int              `json:"nextOffset"`
	Images         []ImageDescriptor `json:"images"`
}

// FrameError identifies the frame that aborted a page.
type FrameError struct {
	Name string
	Err  error
}

func (e *FrameError) Error() string {
	return fmt.Sprintf("frame %s: %v", e.Name, e.Err)
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// PageEncoder encodes windows of a frame set as data URIs.
type PageEncoder struct {
	src      FrameSource
	maxLimit int
}

// Option configures a PageEncoder.
type Option func(*PageEncoder)

// WithMaxLimit sets the largest page size honoured by Encode.
func WithMaxLimit(n int) Option {
	return func(e *PageEncoder) {
		if n > 0 {
			e.maxLimit = n
		}
	}
}

// NewPageEncoder creates a PageEncoder reading frames from src.
func NewPageEncoder(src FrameSource, opts ...Option) *PageEncoder {
	e := &PageEncoder{src: src, maxLimit: DefaultMaxLimit}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// MaxLimit returns the effective page size cap.
func (e *PageEncoder) MaxLimit() int {
	return e.maxLimit
}

// Window clamps offset and limit the way Encode does.
func (e *PageEncoder) Window(offset, limit int) (int, int) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > e.maxLimit {
		limit = e.maxLimit
	}
	return offset, limit
}

// Encode reads frames[offset:offset+limit] for jobID and returns them as
// descriptors. Any frame that cannot be read or decoded aborts the page with
// a *FrameError; no partial page is returned.
func (e *PageEncoder) Encode(ctx context.Context, jobID string, frames []storage.Frame, offset, limit int) (*Page, error) {
	offset, limit = e.Window(offset, limit)
	total := len(frames)

	page := &Page{
		TotalFrames: total,
		Offset:      offset,
		Limit:       limit,
		Images:      []ImageDescriptor{},
	}
	if offset >= total {
		return page, nil
	}

	end := min(offset+limit, total)
	page.Images = make([]ImageDescriptor, 0, end-offset)
	for i := offset; i < end; i++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("encode page: %w", err)
		}
		desc, err := e.encodeFrame(ctx, jobID, frames[i], i)
		if err != nil {
			return nil, err
		}
		page.Images = append(page.Images, desc)
	}

	page.ReturnedFrames = len(page.Images)
	if end < total {
		page.HasMore = true
		next := end
		page.NextOffset = &next
	}
	return page, nil
}

func (e *PageEncoder) encodeFrame(ctx context.Context, jobID string, f storage.Frame, index int) (ImageDescriptor, error) {
	data, err := e.src.ReadFrame(ctx, jobID, f.Name)
	if err != nil {
		return ImageDescriptor{}, &FrameError{Name: f.Name, Err: err}
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return ImageDescriptor{}, &FrameError{Name: f.Name, Err: fmt.Errorf("%w: %v", ErrUnsupportedImage, err)}
	}

	return ImageDescriptor{
		Index: index,
		ID:    fmt.Sprintf("image_%d", index),
		W:     cfg.Width,
		H:     cfg.Height,
		U:     "",
		P:     DataURI(format, data),
		E:     1,
	}, nil
}

// DataURI renders data as data:image/<format>;base64,<payload>.
func DataURI(format string, data []byte) string {
	prefix := "data:image/" + format + ";base64,"
	buf := make([]byte, len(prefix)+base64.StdEncoding.EncodedLen(len(data)))
	copy(buf, prefix)
	base64.StdEncoding.Encode(buf[len(prefix):], data)
	return string(buf)
}
