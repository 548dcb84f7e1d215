// Package id provides generation and validation of job identifiers.
package id

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

// MaxLength is the longest identifier accepted by Validate.
const MaxLength = 128

// ErrInvalid is returned when an identifier cannot be used to build a file-system path.
var ErrInvalid = errors.New("invalid job identifier")

// allowed requires an alphanumeric first byte so "." and dot-files never pass.
var allowed = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Generate creates a new unique job ID.
// Format: video-<unix-millis>-<random>
// Example: video-1701432000123-a1b2c3d4
func Generate() string {
	random := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return fmt.Sprintf("video-%d-%s", time.Now().UnixMilli(), random)
}

// Validate reports whether s is safe to use as a path segment.
// Path separators, parent-directory sequences, a leading '.', '_' or '-',
// and anything outside [A-Za-z0-9._-] are rejected.
func Validate(s string) error {
	switch {
	case s == "":
		return fmt.Errorf("%w: empty", ErrInvalid)
	case len(s) > MaxLength:
		return fmt.Errorf("%w: longer than %d bytes", ErrInvalid, MaxLength)
	case strings.Contains(s, ".."):
		return fmt.Errorf("%w: %q contains '..'", ErrInvalid, s)
	case strings.ContainsAny(s, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalid, s)
	case !allowed.MatchString(s):
		return fmt.Errorf("%w: %q contains unsupported characters", ErrInvalid, s)
	}
	return nil
}
