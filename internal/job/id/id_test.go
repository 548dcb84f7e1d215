package id

import (
	"errors"
	"strings"
	"testing"
)

func TestGenerate(t *testing.T) {
	id := Generate()

	// Check format
	if !strings.HasPrefix(id, "video-") {
		t.Errorf("expected ID to start with 'video-', got %s", id)
	}
	if err := Validate(id); err != nil {
		t.Errorf("generated ID %q should be valid: %v", id, err)
	}

	// Check uniqueness
	id2 := Generate()
	if id == id2 {
		t.Error("expected different IDs for consecutive calls")
	}
}

func TestGenerate_Uniqueness(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := Generate()
		if seen[id] {
			t.Errorf("duplicate ID generated: %s", id)
		}
		seen[id] = true
	}
}

func TestValidate(t *testing.T) {
	valid := []string{
		"video-1701432000123-a1b2c3d4",
		"abc",
		"job_1.part",
	}
	for _, s := range valid {
		if err := Validate(s); err != nil {
			t.Errorf("Validate(%q) = %v, want nil", s, err)
		}
	}

	invalid := []string{
		"",
		".",
		".hidden",
		"-flag",
		"..",
		"../etc",
		"video..1",
		"a/b",
		`a\b`,
		"/abs",
		"with space",
		"nul\x00byte",
		strings.Repeat("a", MaxLength+1),
	}
	for _, s := range invalid {
		err := Validate(s)
		if !errors.Is(err, ErrInvalid) {
			t.Errorf("Validate(%q) = %v, want ErrInvalid", s, err)
		}
	}
}
