package job

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"

	"github.com/maauso/scrollframes/internal/encode"
	"github.com/maauso/scrollframes/internal/job/id"
	"github.com/maauso/scrollframes/internal/media"
	"github.com/maauso/scrollframes/internal/metrics"
	"github.com/maauso/scrollframes/internal/storage"
)

// DefaultMaxUploadBytes is the upload ceiling when none is configured.
const DefaultMaxUploadBytes int64 = 500 << 20

// sniffLen is how much of an upload is inspected to detect its content type.
const sniffLen = 3072

// allowedExtensions lists the accepted source video extensions.
var allowedExtensions = map[string]bool{
	".mp4": true, ".mov": true, ".avi": true, ".webm": true, ".mkv": true, ".flv": true,
}

// allowedTypes lists the accepted sniffed content types.
var allowedTypes = map[string]bool{
	"video/mp4":        true,
	"video/quicktime":  true,
	"video/x-msvideo":  true,
	"video/webm":       true,
	"video/x-matroska": true,
	"video/x-flv":      true,
}

// Service drives jobs through upload, probe, extraction, encoding, export
// and cleanup. Operations on the same job are serialized by a per-job
// read/write lock: Extract and Cleanup are exclusive, the rest shared.
type Service struct {
	store          storage.Storage
	prober         media.Prober
	extractor      media.Extractor
	encoder        *encode.PageEncoder
	repo           Repository
	logger         *slog.Logger
	locks          *keyedLocks
	maxUploadBytes int64
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the service logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithRepository replaces the default in-memory repository.
func WithRepository(repo Repository) Option {
	return func(s *Service) {
		if repo != nil {
			s.repo = repo
		}
	}
}

// WithEncoder replaces the default page encoder.
func WithEncoder(enc *encode.PageEncoder) Option {
	return func(s *Service) {
		if enc != nil {
			s.encoder = enc
		}
	}
}

// WithMaxUploadBytes sets the upload size ceiling.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Service) {
		if n > 0 {
			s.maxUploadBytes = n
		}
	}
}

// NewService creates a Service over the given storage and ffmpeg adapters.
func NewService(store storage.Storage, prober media.Prober, extractor media.Extractor, opts ...Option) *Service {
	s := &Service{
		store:          store,
		prober:         prober,
		extractor:      extractor,
		repo:           NewMemoryRepository(),
		logger:         slog.Default(),
		locks:          newKeyedLocks(),
		maxUploadBytes: DefaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.encoder == nil {
		s.encoder = encode.NewPageEncoder(store)
	}
	return s
}

// MaxUploadBytes returns the configured upload ceiling.
func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// UploadInput describes an incoming source video.
type UploadInput struct {
	// Filename is the client's file name; its extension must be allowed.
	Filename string
	// Size is the declared size, or -1 when unknown.
	Size int64
	// Content streams the file.
	Content io.Reader
}

// UploadResult is returned by Upload.
type UploadResult struct {
	JobID          string `json:"jobId"`
	StoredFilename string `json:"storedFilename"`
	SizeBytes      int64  `json:"sizeBytes"`
}

// Upload validates and stores a source video under a fresh job identifier.
func (s *Service) Upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	const op = "upload"

	res, err := s.upload(ctx, in)
	if err != nil {
		metrics.UploadsTotal.WithLabelValues("rejected").Inc()
		s.logger.Warn("upload rejected",
			slog.String("filename", in.Filename),
			slog.String("error", err.Error()),
		)
		return nil, classify(op, err)
	}

	metrics.UploadsTotal.WithLabelValues("accepted").Inc()
	metrics.UploadedBytesTotal.Add(float64(res.SizeBytes))
	s.logger.Info("video uploaded",
		slog.String("job_id", res.JobID),
		slog.String("filename", in.Filename),
		slog.Int64("size_bytes", res.SizeBytes),
	)
	return res, nil
}

func (s *Service) upload(ctx context.Context, in UploadInput) (*UploadResult, error) {
	if in.Content == nil {
		return nil, ErrEmptyUpload
	}
	ext := strings.ToLower(filepath.Ext(in.Filename))
	if !allowedExtensions[ext] {
		return nil, fmt.Errorf("%w: extension %q", ErrUnsupportedUpload, ext)
	}
	if in.Size > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes", ErrUploadTooLarge, in.Size)
	}

	header := make([]byte, sniffLen)
	n, err := io.ReadFull(in.Content, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if n == 0 {
		return nil, ErrEmptyUpload
	}
	header = header[:n]

	if mt := detectVideoType(header); mt == "" {
		return nil, fmt.Errorf("%w: detected %s", ErrUnsupportedUpload, mimetype.Detect(header).String())
	}

	jobID := id.Generate()
	if err := s.store.CreateJobDirectories(ctx, jobID); err != nil {
		return nil, err
	}

	body := &limitedReader{r: io.MultiReader(bytes.NewReader(header), in.Content), remaining: s.maxUploadBytes}
	path, size, err := s.store.SaveUpload(ctx, jobID, ext, body)
	if err != nil {
		_ = s.store.DeleteFrames(context.WithoutCancel(ctx), jobID)
		return nil, err
	}

	j := NewWithID(jobID)
	j.VideoPath = path
	j.Filename = in.Filename
	j.SizeBytes = size
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, err
	}

	return &UploadResult{
		JobID:          jobID,
		StoredFilename: filepath.Base(path),
		SizeBytes:      size,
	}, nil
}

// detectVideoType returns the accepted content type of header, walking up
// the mimetype tree so subtypes such as video/x-m4v match their parent.
func detectVideoType(header []byte) string {
	for mt := mimetype.Detect(header); mt != nil; mt = mt.Parent() {
		if allowedTypes[mt.String()] {
			return mt.String()
		}
	}
	return ""
}

// limitedReader fails with ErrUploadTooLarge once more than remaining bytes were read.
type limitedReader struct {
	r         io.Reader
	remaining int64
}

func (l *limitedReader) Read(p []byte) (int, error) {
	n, err := l.r.Read(p)
	l.remaining -= int64(n)
	if l.remaining < 0 {
		return n, ErrUploadTooLarge
	}
	return n, err
}

// Probe reads fresh metadata from the job's source video.
func (s *Service) Probe(ctx context.Context, jobID string) (*media.VideoMetadata, error) {
	const op = "probe"
	if err := id.Validate(jobID); err != nil {
		return nil, classify(op, err)
	}
	unlock := s.locks.RLock(jobID)
	defer unlock()

	j, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, classify(op, err)
	}
	if j.IsTerminal() {
		return nil, classify(op, fmt.Errorf("%w: job is %s", ErrInvalidTransition, j.GetStatus()))
	}

	meta, err := s.probe(ctx, j)
	if err != nil {
		return nil, classify(op, err)
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, classify(op, err)
	}
	return meta, nil
}

func (s *Service) probe(ctx context.Context, j *Job) (*media.VideoMetadata, error) {
	path, err := s.store.ResolveVideoPath(ctx, j.ID)
	if err != nil {
		return nil, err
	}
	meta, err := s.prober.Probe(ctx, path)
	if err != nil {
		s.logger.Warn("probe failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}
	j.VideoPath = path
	j.MarkProbed(meta)

	s.logger.Debug("video probed",
		slog.String("job_id", j.ID),
		slog.String("frame_rate", meta.FrameRate.String()),
		slog.Float64("duration", meta.Duration),
		slog.Int("total_frames", meta.TotalFrames),
	)
	return meta, nil
}

// ExtractInput holds the caller's extraction preferences.
type ExtractInput struct {
	// Width is the target frame width; 0 keeps the source size.
	Width int
	// Format is the requested image format; unknown values fall back to jpg.
	Format string
	// PlaybackFPS is echoed back as advisory metadata.
	PlaybackFPS int
	// OnProgress, when set, receives ffmpeg's frame counter.
	OnProgress media.ProgressFunc
}

// ExtractResult summarizes a completed extraction.
type ExtractResult struct {
	FrameCount          int                    `json:"frameCount"`
	EstimatedFrameCount int                    `json:"estimatedFrameCount"`
	Matched             bool                   `json:"matched"`
	ElapsedSeconds      float64                `json:"elapsedSeconds"`
	TotalBytes          int64                  `json:"totalBytes"`
	EffectiveConfig     media.ExtractionConfig `json:"effectiveConfig"`
	Metadata            *media.VideoMetadata   `json:"metadata"`
}

// Extract decodes every source frame to disk at the probed native rate.
// Any previous frames are replaced. On failure, including a timeout or a
// panic, the partial frame directory is removed before returning.
func (s *Service) Extract(ctx context.Context, jobID string, in ExtractInput) (_ *ExtractResult, err error) {
	const op = "extract"
	if err := id.Validate(jobID); err != nil {
		return nil, classify(op, err)
	}
	unlock := s.locks.Lock(jobID)
	defer unlock()

	j, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, classify(op, err)
	}
	if j.IsTerminal() {
		return nil, classify(op, fmt.Errorf("%w: job is %s", ErrInvalidTransition, j.GetStatus()))
	}

	meta, err := s.probe(ctx, j)
	if err != nil {
		return nil, classify(op, err)
	}
	videoPath := j.VideoPath

	cfg := media.ExtractionConfig{
		Width:       in.Width,
		Format:      media.ImageFormat(in.Format),
		Rate:        meta.FrameRate,
		PlaybackFPS: in.PlaybackFPS,
	}.Normalize()

	if err := j.TransitionTo(StatusExtracting); err != nil {
		return nil, classify(op, err)
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, classify(op, err)
	}

	metrics.ActiveExtractions.Inc()
	defer metrics.ActiveExtractions.Dec()

	succeeded := false
	defer func() {
		if succeeded {
			return
		}
		msg := "extraction aborted"
		if err != nil {
			msg = err.Error()
		}
		s.discardFrames(context.WithoutCancel(ctx), j, msg)
	}()

	if err := s.store.ResetFrames(ctx, jobID); err != nil {
		return nil, classify(op, err)
	}
	dir, err := s.store.FramesDir(jobID)
	if err != nil {
		return nil, classify(op, err)
	}

	s.logger.Info("extracting frames",
		slog.String("job_id", jobID),
		slog.String("rate", cfg.Rate.String()),
		slog.String("format", string(cfg.Format)),
		slog.Int("width", cfg.Width),
		slog.Int("estimated_frames", meta.TotalFrames),
	)

	start := time.Now()
	onProgress := func(p media.Progress) {
		s.logger.Debug("extraction progress",
			slog.String("job_id", jobID),
			slog.Int("frames", p.Frames),
			slog.Bool("done", p.Done),
		)
		if in.OnProgress != nil {
			in.OnProgress(p)
		}
	}
	pattern := filepath.Join(dir, storage.FramePattern(cfg.Format.Ext()))
	if err := s.extractor.Extract(ctx, videoPath, pattern, cfg, onProgress); err != nil {
		metrics.ExtractionsTotal.WithLabelValues(extractionStatus(err)).Inc()
		return nil, classify(op, err)
	}
	elapsed := time.Since(start)

	frames, err := s.store.ListFrames(ctx, jobID)
	if err != nil {
		metrics.ExtractionsTotal.WithLabelValues("failed").Inc()
		return nil, classify(op, err)
	}
	if len(frames) == 0 {
		metrics.ExtractionsTotal.WithLabelValues("failed").Inc()
		return nil, classify(op, &media.ExtractionError{Err: errors.New("ffmpeg produced no frames")})
	}

	var totalBytes int64
	for _, f := range frames {
		totalBytes += f.Size
	}

	matched := len(frames) == meta.TotalFrames
	if !matched {
		metrics.FrameCountMismatchTotal.Inc()
		s.logger.Warn("extracted frame count differs from estimate",
			slog.String("job_id", jobID),
			slog.Int("frames", len(frames)),
			slog.Int("estimated", meta.TotalFrames),
		)
	}

	if err := j.Complete(len(frames), cfg.Format); err != nil {
		return nil, classify(op, err)
	}
	if err := s.repo.Save(ctx, j); err != nil {
		return nil, classify(op, err)
	}
	succeeded = true

	metrics.ExtractionsTotal.WithLabelValues("completed").Inc()
	metrics.ExtractionDuration.Observe(elapsed.Seconds())
	metrics.FramesExtractedTotal.Add(float64(len(frames)))

	s.logger.Info("frames extracted",
		slog.String("job_id", jobID),
		slog.Int("frames", len(frames)),
		slog.Int64("total_bytes", totalBytes),
		slog.Duration("elapsed", elapsed),
	)

	return &ExtractResult{
		FrameCount:          len(frames),
		EstimatedFrameCount: meta.TotalFrames,
		Matched:             matched,
		ElapsedSeconds:      elapsed.Seconds(),
		TotalBytes:          totalBytes,
		EffectiveConfig:     cfg,
		Metadata:            meta,
	}, nil
}

// discardFrames removes a failed extraction's output and marks the job FAILED.
func (s *Service) discardFrames(ctx context.Context, j *Job, msg string) {
	if err := s.store.DeleteFrames(ctx, j.ID); err != nil {
		s.logger.Error("failed to remove partial frames",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := j.Fail(msg); err != nil {
		s.logger.Error("failed to mark job failed",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
	if err := s.repo.Save(ctx, j); err != nil {
		s.logger.Error("failed to save job",
			slog.String("job_id", j.ID),
			slog.String("error", err.Error()),
		)
	}
	s.logger.Warn("extraction failed",
		slog.String("job_id", j.ID),
		slog.String("error", msg),
	)
}

func extractionStatus(err error) string {
	if errors.Is(err, media.ErrExtractionTimeout) {
		return "timeout"
	}
	return "failed"
}

// EncodePage returns frames [offset, offset+limit) of an extracted job as data URIs.
func (s *Service) EncodePage(ctx context.Context, jobID string, offset, limit int) (*encode.Page, error) {
	const op = "encode"
	if err := id.Validate(jobID); err != nil {
		return nil, classify(op, err)
	}
	unlock := s.locks.RLock(jobID)
	defer unlock()

	frames, err := s.extractedFrames(ctx, jobID)
	if err != nil {
		return nil, classify(op, err)
	}

	page, err := s.encoder.Encode(ctx, jobID, frames, offset, limit)
	if err != nil {
		s.logger.Error("failed to encode page",
			slog.String("job_id", jobID),
			slog.Int("offset", offset),
			slog.String("error", err.Error()),
		)
		return nil, classify(op, err)
	}

	metrics.PagesEncodedTotal.Inc()
	metrics.EncodedImagesTotal.Add(float64(page.ReturnedFrames))
	return page, nil
}

func (s *Service) extractedFrames(ctx context.Context, jobID string) ([]storage.Frame, error) {
	j, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if st := j.GetStatus(); st != StatusExtracted {
		return nil, fmt.Errorf("%w: job is %s", ErrNotExtracted, st)
	}
	return s.store.ListFrames(ctx, jobID)
}

// ExportInput selects the bundle format and destination.
type ExportInput struct {
	Format encode.BundleFormat
	// Publish uploads the bundle to S3 instead of writing it to the caller.
	Publish bool
}

// ExportResult describes a written bundle.
type ExportResult struct {
	Images int    `json:"images"`
	Key    string `json:"key,omitempty"`
	URL    string `json:"url,omitempty"`
}

// Export writes every frame of an extracted job as a single bundle, either
// to w or, when in.Publish is set, to S3.
func (s *Service) Export(ctx context.Context, jobID string, in ExportInput, w io.Writer) (*ExportResult, error) {
	const op = "export"
	if err := id.Validate(jobID); err != nil {
		return nil, classify(op, err)
	}
	format, err := encode.ParseBundleFormat(string(in.Format))
	if err != nil {
		return nil, classify(op, err)
	}
	unlock := s.locks.RLock(jobID)
	defer unlock()

	frames, err := s.extractedFrames(ctx, jobID)
	if err != nil {
		return nil, classify(op, err)
	}

	if !in.Publish {
		n, err := s.encoder.WriteBundle(ctx, w, format, jobID, frames)
		if err != nil {
			return nil, classify(op, err)
		}
		metrics.ExportsTotal.WithLabelValues(string(format), "download").Inc()
		return &ExportResult{Images: n}, nil
	}

	res, err := s.publish(ctx, jobID, format, frames)
	if err != nil {
		s.logger.Error("failed to publish bundle",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return nil, classify(op, err)
	}
	metrics.ExportsTotal.WithLabelValues(string(format), "s3").Inc()
	s.logger.Info("bundle published",
		slog.String("job_id", jobID),
		slog.String("url", res.URL),
		slog.Int("images", res.Images),
	)
	return res, nil
}

// publish spools the bundle to a temporary file so the S3 client gets a
// seekable body, then uploads it.
func (s *Service) publish(ctx context.Context, jobID string, format encode.BundleFormat, frames []storage.Frame) (*ExportResult, error) {
	tmp, err := os.CreateTemp("", "bundle-*."+format.Ext())
	if err != nil {
		return nil, fmt.Errorf("create bundle file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
	}()

	n, err := s.encoder.WriteBundle(ctx, tmp, format, jobID, frames)
	if err != nil {
		return nil, err
	}
	if _, err := tmp.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("rewind bundle file: %w", err)
	}

	key := jobID + "." + format.Ext()
	url, err := s.store.UploadToS3(ctx, key, tmp)
	if err != nil {
		return nil, err
	}
	return &ExportResult{Images: n, Key: key, URL: url}, nil
}

// Cleanup deletes the job's video and frames. It is idempotent: cleaning an
// already-clean or unknown job reports false flags without error.
func (s *Service) Cleanup(ctx context.Context, jobID string) (storage.DeleteResult, error) {
	const op = "cleanup"
	if err := id.Validate(jobID); err != nil {
		return storage.DeleteResult{}, classify(op, err)
	}
	unlock := s.locks.Lock(jobID)
	defer unlock()

	res, err := s.store.DeleteJob(ctx, jobID)
	if err != nil {
		s.logger.Error("cleanup failed",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		return res, classify(op, err)
	}
	metrics.CleanupsTotal.Inc()

	j, err := s.repo.FindByID(ctx, jobID)
	switch {
	case errors.Is(err, ErrJobNotFound):
		if !res.DeletedVideo && !res.DeletedFrames {
			return res, nil
		}
		j = NewWithID(jobID)
	case err != nil:
		return res, classify(op, err)
	}

	if j.GetStatus() != StatusCleaned {
		if err := j.TransitionTo(StatusCleaned); err != nil {
			return res, classify(op, err)
		}
		if err := s.repo.Save(ctx, j); err != nil {
			return res, classify(op, err)
		}
	}

	s.logger.Info("job cleaned up",
		slog.String("job_id", jobID),
		slog.Bool("deleted_video", res.DeletedVideo),
		slog.Bool("deleted_frames", res.DeletedFrames),
	)
	return res, nil
}

// GetJob returns a snapshot of the job.
func (s *Service) GetJob(ctx context.Context, jobID string) (*Job, error) {
	const op = "get"
	if err := id.Validate(jobID); err != nil {
		return nil, classify(op, err)
	}
	j, err := s.loadJob(ctx, jobID)
	if err != nil {
		return nil, classify(op, err)
	}
	return j, nil
}

// ListJobs returns the tracked jobs, oldest first. An empty status selects
// every job that has not been cleaned up.
func (s *Service) ListJobs(ctx context.Context, status string) ([]*Job, error) {
	const op = "list"
	statuses := liveStatuses
	if status != "" {
		st, err := ParseStatus(status)
		if err != nil {
			return nil, classify(op, err)
		}
		statuses = []Status{st}
	}
	jobs, err := s.repo.List(ctx, statuses...)
	if err != nil {
		return nil, classify(op, err)
	}
	return jobs, nil
}

// liveStatuses are the statuses ListJobs reports by default.
var liveStatuses = []Status{StatusUploaded, StatusProbed, StatusExtracting, StatusExtracted, StatusFailed}

// loadJob returns the tracked job, rebuilding it from disk when the
// repository does not know it. Cleaned jobs are reported as not found.
func (s *Service) loadJob(ctx context.Context, jobID string) (*Job, error) {
	j, err := s.repo.FindByID(ctx, jobID)
	if err == nil {
		if j.GetStatus() == StatusCleaned {
			return nil, ErrJobNotFound
		}
		return j, nil
	}
	if !errors.Is(err, ErrJobNotFound) {
		return nil, err
	}
	return s.rehydrate(ctx, jobID)
}

// rehydrate rebuilds a job from its files: UPLOADED, or EXTRACTED when
// frames are present.
func (s *Service) rehydrate(ctx context.Context, jobID string) (*Job, error) {
	path, err := s.store.ResolveVideoPath(ctx, jobID)
	if err != nil {
		return nil, err
	}

	j := NewWithID(jobID)
	j.VideoPath = path
	j.Filename = filepath.Base(path)
	if info, err := os.Stat(path); err == nil {
		j.SizeBytes = info.Size()
	}

	frames, err := s.store.ListFrames(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(frames) > 0 {
		j.Status = StatusExtracted
		j.FrameCount = len(frames)
		j.FrameFormat = media.ParseImageFormat(strings.TrimPrefix(filepath.Ext(frames[0].Name), "."))
	}

	if err := s.repo.Save(ctx, j); err != nil {
		return nil, err
	}
	s.logger.Info("job rehydrated from disk",
		slog.String("job_id", jobID),
		slog.String("status", string(j.Status)),
		slog.Int("frames", j.FrameCount),
	)
	return j, nil
}
