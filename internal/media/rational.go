package media

import (
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
)

// ErrInvalidFrameRate is returned when a frame-rate expression is not of the form N/D.
var ErrInvalidFrameRate = errors.New("invalid frame rate")

var rationalPattern = regexp.MustCompile(`^([0-9]+)/([0-9]+)$`)

// Rational is a frame rate expressed as an integer ratio, e.g. 30000/1001.
type Rational struct {
	Num int64 `json:"num"`
	Den int64 `json:"den"`
}

// ParseRational parses an "N/D" expression as printed by ffprobe.
// Anything that is not two non-negative integers separated by a slash is
// rejected, as is a zero denominator.
func ParseRational(s string) (Rational, error) {
	m := rationalPattern.FindStringSubmatch(s)
	if m == nil {
		return Rational{}, fmt.Errorf("%w: %q", ErrInvalidFrameRate, s)
	}
	num, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("%w: %q: %w", ErrInvalidFrameRate, s, err)
	}
	den, err := strconv.ParseInt(m[2], 10, 64)
	if err != nil {
		return Rational{}, fmt.Errorf("%w: %q: %w", ErrInvalidFrameRate, s, err)
	}
	if den == 0 {
		return Rational{}, fmt.Errorf("%w: %q has a zero denominator", ErrInvalidFrameRate, s)
	}
	return Rational{Num: num, Den: den}, nil
}

// IsZero reports whether r carries no usable rate.
func (r Rational) IsZero() bool {
	return r.Num == 0 || r.Den == 0
}

// Float returns Num/Den.
func (r Rational) Float() float64 {
	if r.Den == 0 {
		return 0
	}
	return float64(r.Num) / float64(r.Den)
}

// String renders r as "N/D", the form ffmpeg accepts for -r.
func (r Rational) String() string {
	return fmt.Sprintf("%d/%d", r.Num, r.Den)
}

// EstimateFrames returns floor(rate × duration).
func EstimateFrames(rate float64, duration float64) int {
	if rate <= 0 || duration <= 0 {
		return 0
	}
	return int(math.Floor(rate * duration))
}
