package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/rpattn/invoiceflow/internal/domain"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

// GCSStore keeps uploads in a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
	prefix string
}

// NewGCSStore prefers explicit JSON credentials and falls back to application
// default credentials.
func NewGCSStore(ctx context.Context, bucket, credentialsJSON, prefix string) (*GCSStore, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, fmt.Errorf("gcs bucket is required")
	}

	var opts []option.ClientOption
	if strings.TrimSpace(credentialsJSON) != "" {
		opts = append(opts, option.WithCredentialsJSON([]byte(credentialsJSON)))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket, prefix: prefix}, nil
}

func (s *GCSStore) Location() domain.StorageLocation {
	return domain.StorageLocationGCS
}

func (s *GCSStore) Save(ctx context.Context, filename string, data []byte) (string, error) {
	name := ObjectName(s.prefix, filename)
	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = contentTypeFor(filename)
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("failed to upload %s to gcs: %w", filename, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to finalize gcs upload %s: %w", filename, err)
	}
	return name, nil
}

func (s *GCSStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	r, err := s.client.Bucket(s.bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download %s from gcs: %w", key, err)
	}
	return r, nil
}

// Close releases the underlying client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}
