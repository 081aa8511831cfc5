package app

import (
	"context"
	"fmt"

	"github.com/rpattn/invoiceflow/internal/config"
	"github.com/rpattn/invoiceflow/internal/domain"
	"github.com/rpattn/invoiceflow/internal/storage"
)

// buildStorage selects the primary backend for new uploads. The local store is
// always registered so files written before a backend switch stay readable.
func (a *App) buildStorage(ctx context.Context, cfg config.StorageConfig) (*storage.Registry, error) {
	local, err := storage.NewLocalStore(cfg.Local.Dir)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare local storage: %w", err)
	}

	switch domain.StorageLocation(cfg.Backend) {
	case domain.StorageLocationGCS:
		gcs, err := storage.NewGCSStore(ctx, cfg.GCS.Bucket, cfg.GCS.CredentialsJSON, cfg.GCS.Prefix)
		if err != nil {
			return nil, fmt.Errorf("failed to open gcs bucket: %w", err)
		}
		a.closers = append(a.closers, gcs.Close)
		return storage.NewRegistry(gcs, local), nil
	case domain.StorageLocationS3:
		s3, err := storage.NewS3Store(ctx, storage.S3Options{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
			UsePathStyle:    cfg.S3.UsePathStyle,
			Prefix:          cfg.S3.Prefix,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to open s3 bucket: %w", err)
		}
		return storage.NewRegistry(s3, local), nil
	default:
		return storage.NewRegistry(local), nil
	}
}
