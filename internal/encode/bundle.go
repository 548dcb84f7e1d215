package encode

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/maauso/scrollframes/internal/storage"
)

// BundleFormat selects the export bundle syntax.
type BundleFormat string

const (
	// BundleJS is an ES module: export const images = [...];
	BundleJS BundleFormat = "js"
	// BundleJSON is a bare JSON array of descriptors.
	BundleJSON BundleFormat = "json"
)

// ErrUnknownBundleFormat is returned for formats other than js and json.
var ErrUnknownBundleFormat = errors.New("unknown bundle format")

// ParseBundleFormat parses a format name; empty means js.
func ParseBundleFormat(s string) (BundleFormat, error) {
	switch BundleFormat(strings.ToLower(strings.TrimSpace(s))) {
	case "", BundleJS:
		return BundleJS, nil
	case BundleJSON:
		return BundleJSON, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownBundleFormat, s)
}

// Ext returns the file extension for the format, without the dot.
func (f BundleFormat) Ext() string {
	return string(f)
}

// ContentType returns the HTTP content type for the format.
func (f BundleFormat) ContentType() string {
	if f == BundleJSON {
		return "application/json"
	}
	return "text/javascript; charset=utf-8"
}

// WriteBundle writes every frame of jobID to w as a single bundle, encoding one
// maximum-size page at a time. It returns the number of images written.
func (e *PageEncoder) WriteBundle(ctx context.Context, w io.Writer, format BundleFormat, jobID string, frames []storage.Frame) (int, error) {
	bw := bufio.NewWriter(w)

	open, closing := "[", "]\n"
	if format == BundleJS {
		open, closing = "export const images = [", "];\n"
	} else if format != BundleJSON {
		return 0, fmt.Errorf("%w: %q", ErrUnknownBundleFormat, format)
	}

	if _, err := bw.WriteString(open); err != nil {
		return 0, fmt.Errorf("write bundle: %w", err)
	}

	written := 0
	offset := 0
	for {
		page, err := e.Encode(ctx, jobID, frames, offset, e.maxLimit)
		if err != nil {
			return written, err
		}
		for _, img := range page.Images {
			b, err := json.Marshal(img)
			if err != nil {
				return written, fmt.Errorf("marshal %s: %w", img.ID, err)
			}
			sep := ",\n  "
			if written == 0 {
				sep = "\n  "
			}
			if _, err := bw.WriteString(sep); err != nil {
				return written, fmt.Errorf("write bundle: %w", err)
			}
			if _, err := bw.Write(b); err != nil {
				return written, fmt.Errorf("write bundle: %w", err)
			}
			written++
		}
		if page.NextOffset == nil {
			break
		}
		offset = *page.NextOffset
	}

	if written > 0 {
		closing = "\n" + closing
	}
	if _, err := bw.WriteString(closing); err != nil {
		return written, fmt.Errorf("write bundle: %w", err)
	}
	if err := bw.Flush(); err != nil {
		return written, fmt.Errorf("write bundle: %w", err)
	}
	return written, nil
}
