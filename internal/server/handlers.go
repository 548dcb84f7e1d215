package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/maauso/scrollframes/internal/encode"
	"github.com/maauso/scrollframes/internal/job"
)

const (
	// maxJSONBody caps request bodies on the JSON endpoints.
	maxJSONBody = 1 << 20
	// multipartOverhead is allowed on top of the upload ceiling for
	// boundaries and part headers.
	multipartOverhead = 1 << 20
	// uploadField is the multipart field carrying the video.
	uploadField = "video"
)

// Handlers contains the HTTP handlers for the API.
type Handlers struct {
	service   *job.Service
	validator *validator.Validate
	logger    *slog.Logger
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *job.Service, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handlers{
		service:   service,
		validator: validator.New(),
		logger:    logger,
	}
}

// Health handles GET /api/health requests.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:    "ok",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// Upload handles POST /api/upload. The video is streamed from the
// multipart field "video" straight to storage.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.service.MaxUploadBytes()+multipartOverhead)

	mr, err := r.MultipartReader()
	if err != nil {
		writeError(w, http.StatusBadRequest, "expected a multipart/form-data body", string(job.KindValidation))
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			writeError(w, http.StatusBadRequest, "no video provided in field \""+uploadField+"\"", string(job.KindValidation))
			return
		}
		if err != nil {
			h.writeServiceError(w, "upload", "", err)
			return
		}
		if part.FormName() != uploadField || part.FileName() == "" {
			_ = part.Close()
			continue
		}

		res, err := h.service.Upload(r.Context(), job.UploadInput{
			Filename: part.FileName(),
			Size:     -1,
			Content:  part,
		})
		_ = part.Close()
		if err != nil {
			h.writeServiceError(w, "upload", "", err)
			return
		}

		writeJSON(w, http.StatusOK, UploadResponse{
			Success:        true,
			JobID:          res.JobID,
			VideoID:        res.JobID,
			StoredFilename: res.StoredFilename,
			SizeBytes:      res.SizeBytes,
		})
		return
	}
}

// VideoInfo handles POST /api/video-info requests.
func (h *Handlers) VideoInfo(w http.ResponseWriter, r *http.Request) {
	var req VideoRequest
	if !h.decode(w, r, &req) {
		return
	}

	meta, err := h.service.Probe(r.Context(), req.VideoID)
	if err != nil {
		h.writeServiceError(w, "video-info", req.VideoID, err)
		return
	}

	writeJSON(w, http.StatusOK, VideoInfoResponse{
		Success: true,
		VideoID: req.VideoID,
		Info:    meta,
	})
}

// Process handles POST /api/process. It responds once extraction has
// finished, failed, or timed out.
func (h *Handlers) Process(w http.ResponseWriter, r *http.Request) {
	var req ProcessRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.service.Extract(r.Context(), req.VideoID, job.ExtractInput{
		Width:       req.Scale,
		Format:      req.Format,
		PlaybackFPS: req.FPS,
	})
	if err != nil {
		h.writeServiceError(w, "process", req.VideoID, err)
		return
	}

	writeJSON(w, http.StatusOK, ProcessResponse{
		Success:             true,
		VideoID:             req.VideoID,
		FrameCount:          res.FrameCount,
		EstimatedFrameCount: res.EstimatedFrameCount,
		Matched:             res.Matched,
		ElapsedSeconds:      res.ElapsedSeconds,
		TotalBytes:          res.TotalBytes,
		EffectiveConfig:     res.EffectiveConfig,
	})
}

// GenerateBase64 handles POST /api/generate-base64 requests.
func (h *Handlers) GenerateBase64(w http.ResponseWriter, r *http.Request) {
	var req EncodeRequest
	if !h.decode(w, r, &req) {
		return
	}

	page, err := h.service.EncodePage(r.Context(), req.VideoID, req.Offset, req.Limit)
	if err != nil {
		h.writeServiceError(w, "generate-base64", req.VideoID, err)
		return
	}

	writeJSON(w, http.StatusOK, PageResponse{
		Success: true,
		VideoID: req.VideoID,
		Page:    page,
	})
}

// Export handles GET /api/export/{videoId}. Without publish the bundle is
// streamed as the response body; with publish=true it is uploaded to S3 and
// the object URL is returned.
func (h *Handlers) Export(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("videoId")
	query := r.URL.Query()

	format, err := encode.ParseBundleFormat(query.Get("format"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), string(job.KindValidation))
		return
	}
	publish := false
	if v := query.Get("publish"); v != "" {
		if publish, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "publish must be a boolean", string(job.KindValidation))
			return
		}
	}

	if publish {
		res, err := h.service.Export(r.Context(), videoID, job.ExportInput{Format: format, Publish: true}, io.Discard)
		if err != nil {
			h.writeServiceError(w, "export", videoID, err)
			return
		}
		writeJSON(w, http.StatusOK, ExportResponse{
			Success: true,
			VideoID: videoID,
			Images:  res.Images,
			Key:     res.Key,
			URL:     res.URL,
		})
		return
	}

	bw := &bundleWriter{
		w:           w,
		contentType: format.ContentType(),
		filename:    videoID + "." + format.Ext(),
	}
	res, err := h.service.Export(r.Context(), videoID, job.ExportInput{Format: format}, bw)
	if err != nil {
		if bw.started {
			// Headers are gone; all that is left is to cut the body short.
			h.logger.Error("bundle stream aborted",
				slog.String("job_id", videoID),
				slog.String("error", err.Error()),
			)
			return
		}
		h.writeServiceError(w, "export", videoID, err)
		return
	}

	h.logger.Info("bundle downloaded",
		slog.String("job_id", videoID),
		slog.String("format", string(format)),
		slog.Int("images", res.Images),
	)
}

// Cleanup handles DELETE /api/cleanup/{videoId} requests.
func (h *Handlers) Cleanup(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("videoId")

	res, err := h.service.Cleanup(r.Context(), videoID)
	if err != nil {
		h.writeServiceError(w, "cleanup", videoID, err)
		return
	}

	writeJSON(w, http.StatusOK, CleanupResponse{
		Success:       true,
		DeletedVideo:  res.DeletedVideo,
		DeletedFrames: res.DeletedFrames,
	})
}

// GetJob handles GET /api/jobs/{videoId} requests.
func (h *Handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("videoId")

	found, err := h.service.GetJob(r.Context(), videoID)
	if err != nil {
		h.writeServiceError(w, "get-job", videoID, err)
		return
	}

	writeJSON(w, http.StatusOK, toJobResponse(found))
}

// ListJobs handles GET /api/jobs requests. The optional status query
// parameter narrows the list to one lifecycle state.
func (h *Handlers) ListJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := h.service.ListJobs(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		h.writeServiceError(w, "list-jobs", "", err)
		return
	}

	resp := JobListResponse{Jobs: make([]JobResponse, 0, len(jobs))}
	for _, j := range jobs {
		resp.Jobs = append(resp.Jobs, toJobResponse(j))
	}
	writeJSON(w, http.StatusOK, resp)
}

func toJobResponse(j *job.Job) JobResponse {
	return JobResponse{
		ID:          j.ID,
		Status:      string(j.Status),
		Filename:    j.Filename,
		SizeBytes:   j.SizeBytes,
		Metadata:    j.Metadata,
		FrameCount:  j.FrameCount,
		FrameFormat: string(j.FrameFormat),
		Error:       j.Error,
		CreatedAt:   j.CreatedAt,
		UpdatedAt:   j.UpdatedAt,
	}
}

// decode reads and validates a JSON body. It writes the error response and
// returns false when the body is unusable.
func (h *Handlers) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		h.logger.Warn("failed to decode request body",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, "invalid JSON body", "INVALID_JSON")
		return false
	}

	if err := h.validator.Struct(dst); err != nil {
		h.logger.Warn("request validation failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadRequest, err.Error(), string(job.KindValidation))
		return false
	}
	return true
}

// writeServiceError maps a service error onto a status code and writes it.
func (h *Handlers) writeServiceError(w http.ResponseWriter, op, jobID string, err error) {
	status, code := statusFor(err)

	attrs := []any{
		slog.String("op", op),
		slog.String("code", code),
		slog.String("error", err.Error()),
	}
	if jobID != "" {
		attrs = append(attrs, slog.String("job_id", jobID))
	}
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", attrs...)
	} else {
		h.logger.Warn("request rejected", attrs...)
	}

	writeError(w, status, err.Error(), code)
}

// statusFor returns the HTTP status and error code for err.
func statusFor(err error) (int, string) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) || errors.Is(err, job.ErrUploadTooLarge) {
		return http.StatusRequestEntityTooLarge, "UPLOAD_TOO_LARGE"
	}

	kind := job.KindOf(err)
	switch kind {
	case job.KindValidation:
		return http.StatusBadRequest, string(kind)
	case job.KindNotFound:
		return http.StatusNotFound, string(kind)
	case job.KindProbe:
		return http.StatusUnprocessableEntity, string(kind)
	case job.KindExtractionTimeout:
		return http.StatusGatewayTimeout, string(kind)
	case job.KindExtraction:
		return http.StatusInternalServerError, string(kind)
	default:
		return http.StatusInternalServerError, string(job.KindStorage)
	}
}

// bundleWriter sets the download headers on the first write, so a request
// that fails before producing output can still get a JSON error.
type bundleWriter struct {
	w           http.ResponseWriter
	contentType string
	filename    string
	started     bool
}

func (b *bundleWriter) Write(p []byte) (int, error) {
	if !b.started {
		b.started = true
		b.w.Header().Set("Content-Type", b.contentType)
		b.w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", b.filename))
		b.w.WriteHeader(http.StatusOK)
	}
	return b.w.Write(p)
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
	}
}

// writeError writes an error response in the standard format.
func writeError(w http.ResponseWriter, status int, message, code string) {
	writeJSON(w, status, ErrorResponse{
		Error: message,
		Code:  code,
	})
}
