// Package bootstrap wires configuration into the scrollframes services.
package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/maauso/scrollframes/internal/config"
	"github.com/maauso/scrollframes/internal/encode"
	"github.com/maauso/scrollframes/internal/job"
	"github.com/maauso/scrollframes/internal/media"
	"github.com/maauso/scrollframes/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	Storage storage.Storage
	Encoder *encode.PageEncoder
	Service *job.Service
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	prober := media.NewFFprobeProber(cfg.FFprobePath)
	extractor := media.NewFFmpegExtractor(cfg.FFmpegPath, cfg.ExtractTimeout)
	encoder := encode.NewPageEncoder(store, encode.WithMaxLimit(cfg.MaxPageLimit))
	logger.Info("page encoder configured",
		slog.Int("max_limit", encoder.MaxLimit()),
	)

	svc := job.NewService(
		store,
		prober,
		extractor,
		job.WithLogger(logger),
		job.WithEncoder(encoder),
		job.WithMaxUploadBytes(cfg.MaxUploadBytes),
	)

	return &Dependencies{
		Storage: store,
		Encoder: encoder,
		Service: svc,
	}, nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
			KeyPrefix:       cfg.S3KeyPrefix,
		}
		s3Store, err := storage.NewS3Storage(cfg.DataDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 publishing configured",
			slog.String("data_dir", s3Store.DataDir()),
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("data_dir", localStore.DataDir()),
	)
	return localStore, nil
}
