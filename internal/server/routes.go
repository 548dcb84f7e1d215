package server

import (
	"log/slog"
	"net/http"

	"github.com/maauso/scrollframes/internal/metrics"
)

// Config contains server configuration options.
type Config struct {
	// AllowedOrigins is the list of allowed CORS origins.
	AllowedOrigins []string
	// ExposeMetrics registers GET /metrics.
	ExposeMetrics bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins: []string{"*"},
		ExposeMetrics:  true,
	}
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(h *Handlers, logger *slog.Logger, cfg Config) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", h.Health)
	mux.HandleFunc("POST /api/upload", h.Upload)
	mux.HandleFunc("POST /api/video-info", h.VideoInfo)
	mux.HandleFunc("POST /api/process", h.Process)
	mux.HandleFunc("POST /api/generate-base64", h.GenerateBase64)
	mux.HandleFunc("GET /api/export/{videoId}", h.Export)
	mux.HandleFunc("DELETE /api/cleanup/{videoId}", h.Cleanup)
	mux.HandleFunc("GET /api/jobs", h.ListJobs)
	mux.HandleFunc("GET /api/jobs/{videoId}", h.GetJob)
	if cfg.ExposeMetrics {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	// Apply middleware chain
	chain := ChainMiddleware(
		RecoveryMiddleware(logger),
		LoggingMiddleware(logger),
		CORSMiddleware(cfg.AllowedOrigins),
	)

	return chain(mux)
}
