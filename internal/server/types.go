// Package server provides the HTTP API for scrollframes.
// It includes handlers, middleware, routes, and DTOs separated from domain types.
package server

import (
	"time"

	"github.com/maauso/scrollframes/internal/encode"
	"github.com/maauso/scrollframes/internal/media"
)

// VideoRequest is the body of requests that only name a job.
type VideoRequest struct {
	VideoID string `json:"videoId" validate:"required,max=128"`
}

// ProcessRequest is the HTTP request body for frame extraction.
type ProcessRequest struct {
	// VideoID is the job identifier returned by upload.
	VideoID string `json:"videoId" validate:"required,max=128"`
	// Scale is the target frame width in pixels; 0 keeps the source size.
	Scale int `json:"scale" validate:"omitempty,min=1,max=16384"`
	// Format is the frame image format. Unknown values fall back to jpg.
	Format string `json:"format" validate:"omitempty,max=8"`
	// FPS is the advisory playback rate stored with the result.
	FPS int `json:"fps" validate:"omitempty,min=1,max=60"`
}

// EncodeRequest is the HTTP request body for a page of base64 frames.
type EncodeRequest struct {
	VideoID string `json:"videoId" validate:"required,max=128"`
	Offset  int    `json:"offset" validate:"min=0"`
	// Limit defaults to 100 when omitted and is clamped to the page maximum.
	Limit int `json:"limit" validate:"min=0"`
}

// UploadResponse is returned after a video is stored.
type UploadResponse struct {
	Success        bool   `json:"success"`
	JobID          string `json:"jobId"`
	VideoID        string `json:"videoId"`
	StoredFilename string `json:"storedFilename"`
	SizeBytes      int64  `json:"sizeBytes"`
}

// VideoInfoResponse is returned by the probe endpoint.
type VideoInfoResponse struct {
	Success bool                 `json:"success"`
	VideoID string               `json:"videoId"`
	Info    *media.VideoMetadata `json:"info"`
}

// ProcessResponse summarizes a finished extraction.
type ProcessResponse struct {
	Success             bool                   `json:"success"`
	VideoID             string                 `json:"videoId"`
	FrameCount          int                    `json:"frameCount"`
	EstimatedFrameCount int                    `json:"estimatedFrameCount"`
	Matched             bool                   `json:"matched"`
	ElapsedSeconds      float64                `json:"elapsedSeconds"`
	TotalBytes          int64                  `json:"totalBytes"`
	EffectiveConfig     media.ExtractionConfig `json:"effectiveConfig"`
}

// PageResponse wraps one page of encoded frames.
type PageResponse struct {
	Success bool   `json:"success"`
	VideoID string `json:"videoId"`
	*encode.Page
}

// ExportResponse is returned when a bundle is published to S3.
type ExportResponse struct {
	Success bool   `json:"success"`
	VideoID string `json:"videoId"`
	Images  int    `json:"images"`
	Key     string `json:"key"`
	URL     string `json:"url"`
}

// CleanupResponse reports which artifacts were removed.
type CleanupResponse struct {
	Success       bool `json:"success"`
	DeletedVideo  bool `json:"deletedVideo"`
	DeletedFrames bool `json:"deletedFrames"`
}

// JobResponse is the HTTP response for getting job details.
type JobResponse struct {
	ID          string               `json:"id"`
	Status      string               `json:"status"`
	Filename    string               `json:"filename,omitempty"`
	SizeBytes   int64                `json:"sizeBytes"`
	Metadata    *media.VideoMetadata `json:"metadata,omitempty"`
	FrameCount  int                  `json:"frameCount"`
	FrameFormat string               `json:"frameFormat,omitempty"`
	Error       string               `json:"error,omitempty"`
	CreatedAt   time.Time            `json:"createdAt"`
	UpdatedAt   time.Time            `json:"updatedAt"`
}

// JobListResponse is the HTTP response for GET /api/jobs.
type JobListResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

// ErrorResponse is the standard error response format.
type ErrorResponse struct {
	// Error is the human-readable error message.
	Error string `json:"error"`
	// Code is the error code for programmatic handling.
	Code string `json:"code"`
}

// HealthResponse is the HTTP response for the health check endpoint.
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
}
