package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"

	"github.com/maauso/scrollframes/internal/job/id"
)

// Static errors for storage operations.
var (
	// ErrS3NotConfigured is returned when S3 operations are attempted
	// without proper configuration.
	ErrS3NotConfigured = errors.New("S3 storage is not configured")
	// ErrNotFound is returned when a job's video or frames do not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidFrameName is returned when a frame name does not follow the naming convention.
	ErrInvalidFrameName = errors.New("invalid frame name")
	// ErrInvalidExtension is returned for upload extensions outside [.a-z0-9].
	ErrInvalidExtension = errors.New("invalid file extension")
	// ErrInvalidID is returned before any path is built from a malformed job identifier.
	ErrInvalidID = id.ErrInvalid
)

const (
	uploadsDirName = "uploads"
	framesDirName  = "frames"
)

var extPattern = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)

// LocalStorage implements the Storage interface using local disk.
// Videos live in <dataDir>/uploads and frames in <dataDir>/frames/<jobID>.
// It does not support S3 operations unless wrapped with S3Storage.
type LocalStorage struct {
	dataDir string
}

// Compile-time check that LocalStorage implements Storage.
var _ Storage = (*LocalStorage)(nil)

// NewLocalStorage creates a new LocalStorage instance rooted at dataDir.
// If dataDir is empty, a "scrollframes" directory under os.TempDir() is used.
// The upload and frame areas are created if they don't exist.
func NewLocalStorage(dataDir string) (*LocalStorage, error) {
	if dataDir == "" {
		dataDir = filepath.Join(os.TempDir(), "scrollframes")
	}
	for _, dir := range []string{filepath.Join(dataDir, uploadsDirName), filepath.Join(dataDir, framesDirName)} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, fmt.Errorf("create data directory: %w", err)
		}
	}
	return &LocalStorage{dataDir: dataDir}, nil
}

// DataDir returns the storage root.
func (s *LocalStorage) DataDir() string {
	return s.dataDir
}

func (s *LocalStorage) uploadsDir() string {
	return filepath.Join(s.dataDir, uploadsDirName)
}

// FramesDir returns the directory holding jobID's frames.
func (s *LocalStorage) FramesDir(jobID string) (string, error) {
	if err := id.Validate(jobID); err != nil {
		return "", err
	}
	root := filepath.Join(s.dataDir, framesDirName)
	dir := filepath.Join(root, jobID)
	if filepath.Dir(dir) != root {
		return "", fmt.Errorf("%w: %q leaves the frames directory", ErrInvalidID, jobID)
	}
	return dir, nil
}

// CreateJobDirectories ensures the upload area and the job's frame directory exist.
func (s *LocalStorage) CreateJobDirectories(ctx context.Context, jobID string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	framesDir, err := s.FramesDir(jobID)
	if err != nil {
		return err
	}
	for _, dir := range []string{s.uploadsDir(), framesDir} {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// SaveUpload writes data to <uploads>/<jobID><ext>.
// The file is written under a temporary name and renamed once complete, so a
// failed write never leaves a resolvable video behind.
func (s *LocalStorage) SaveUpload(ctx context.Context, jobID, ext string, data io.Reader) (string, int64, error) {
	if err := checkContext(ctx); err != nil {
		return "", 0, err
	}
	if err := id.Validate(jobID); err != nil {
		return "", 0, err
	}
	ext = strings.ToLower(ext)
	if !extPattern.MatchString(ext) {
		return "", 0, fmt.Errorf("%w: %q", ErrInvalidExtension, ext)
	}
	if err := os.MkdirAll(s.uploadsDir(), 0750); err != nil {
		return "", 0, fmt.Errorf("create uploads directory: %w", err)
	}

	f, err := os.CreateTemp(s.uploadsDir(), ".upload_*")
	if err != nil {
		return "", 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := f.Name()

	n, err := io.Copy(f, data)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("write upload: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("close upload: %w", err)
	}

	final := filepath.Join(s.uploadsDir(), jobID+ext)
	if err := os.Rename(tmpName, final); err != nil {
		_ = os.Remove(tmpName)
		return "", 0, fmt.Errorf("store upload: %w", err)
	}
	return final, n, nil
}

// ResolveVideoPath returns the first upload, in name order, whose name is
// jobID or starts with jobID followed by an extension.
func (s *LocalStorage) ResolveVideoPath(ctx context.Context, jobID string) (string, error) {
	matches, err := s.videoFiles(ctx, jobID)
	if err != nil {
		return "", err
	}
	if len(matches) == 0 {
		return "", fmt.Errorf("video for %s: %w", jobID, ErrNotFound)
	}
	return matches[0], nil
}

// videoFiles lists every upload belonging to jobID in name order.
func (s *LocalStorage) videoFiles(ctx context.Context, jobID string) ([]string, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	if err := id.Validate(jobID); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.uploadsDir())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read uploads directory: %w", err)
	}

	// os.ReadDir returns entries sorted by name
	var matches []string
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() {
			continue
		}
		if name == jobID || strings.HasPrefix(name, jobID+".") {
			matches = append(matches, filepath.Join(s.uploadsDir(), name))
		}
	}
	return matches, nil
}

// ResetFrames removes any previous frames and recreates an empty directory.
func (s *LocalStorage) ResetFrames(ctx context.Context, jobID string) error {
	if err := s.DeleteFrames(ctx, jobID); err != nil {
		return err
	}
	return s.CreateJobDirectories(ctx, jobID)
}

// FramesExist reports whether jobID has a frame directory.
func (s *LocalStorage) FramesExist(ctx context.Context, jobID string) (bool, error) {
	if err := checkContext(ctx); err != nil {
		return false, err
	}
	dir, err := s.FramesDir(jobID)
	if err != nil {
		return false, err
	}
	info, err := os.Stat(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("stat frames directory: %w", err)
	}
	return info.IsDir(), nil
}

// ListFrames returns jobID's frames ordered by sequence number.
// Files that do not follow the frame naming convention are ignored.
func (s *LocalStorage) ListFrames(ctx context.Context, jobID string) ([]Frame, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	dir, err := s.FramesDir(jobID)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []Frame{}, nil
		}
		return nil, fmt.Errorf("read frames directory: %w", err)
	}

	frames := make([]Frame, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		seq, ok := ParseFrameName(entry.Name())
		if !ok {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return nil, fmt.Errorf("stat frame %s: %w", entry.Name(), err)
		}
		frames = append(frames, Frame{Name: entry.Name(), Seq: seq, Size: info.Size()})
	}

	slices.SortFunc(frames, func(a, b Frame) int {
		if c := cmp.Compare(a.Seq, b.Seq); c != 0 {
			return c
		}
		return strings.Compare(a.Name, b.Name)
	})
	return frames, nil
}

// ReadFrame returns the content of a single frame file.
func (s *LocalStorage) ReadFrame(ctx context.Context, jobID, name string) ([]byte, error) {
	if err := checkContext(ctx); err != nil {
		return nil, err
	}
	dir, err := s.FramesDir(jobID)
	if err != nil {
		return nil, err
	}
	if _, ok := ParseFrameName(name); !ok {
		return nil, fmt.Errorf("%w: %q", ErrInvalidFrameName, name)
	}
	data, err := os.ReadFile(filepath.Join(dir, name)) // #nosec G304 - name matched the frame pattern
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("frame %s: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("read frame %s: %w", name, err)
	}
	return data, nil
}

// DeleteFrames removes jobID's frame directory. Absence is not an error.
func (s *LocalStorage) DeleteFrames(ctx context.Context, jobID string) error {
	if err := checkContext(ctx); err != nil {
		return err
	}
	dir, err := s.FramesDir(jobID)
	if err != nil {
		return err
	}
	if err := os.RemoveAll(dir); err != nil {
		return fmt.Errorf("delete frames directory: %w", err)
	}
	return nil
}

// DeleteJob removes every upload of jobID and its frame directory.
// It continues after a failed video removal so the frames are still
// deleted, returning the first error encountered.
func (s *LocalStorage) DeleteJob(ctx context.Context, jobID string) (DeleteResult, error) {
	var res DeleteResult

	videos, err := s.videoFiles(ctx, jobID)
	if err != nil {
		return res, err
	}

	var firstErr error
	for _, p := range videos {
		if err := os.Remove(p); err != nil {
			if !os.IsNotExist(err) && firstErr == nil {
				firstErr = fmt.Errorf("remove video %s: %w", filepath.Base(p), err)
			}
			continue
		}
		res.DeletedVideo = true
	}

	exists, err := s.FramesExist(ctx, jobID)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		return res, firstErr
	}
	if exists {
		if err := s.DeleteFrames(ctx, jobID); err != nil {
			if firstErr == nil {
				firstErr = err
			}
			return res, firstErr
		}
		res.DeletedFrames = true
	}
	return res, firstErr
}

// UploadToS3 is not supported by LocalStorage and returns ErrS3NotConfigured.
func (s *LocalStorage) UploadToS3(_ context.Context, _ string, _ io.Reader) (string, error) {
	return "", ErrS3NotConfigured
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	default:
		return nil
	}
}
