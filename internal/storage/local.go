package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rpattn/invoiceflow/internal/domain"
)

// LocalStore keeps uploads under a directory on disk.
type LocalStore struct {
	dir string
}

// NewLocalStore creates dir when missing.
func NewLocalStore(dir string) (*LocalStore, error) {
	if strings.TrimSpace(dir) == "" {
		dir = "uploads"
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory %s: %w", dir, err)
	}
	return &LocalStore{dir: filepath.Clean(dir)}, nil
}

func (s *LocalStore) Location() domain.StorageLocation {
	return domain.StorageLocationLocal
}

func (s *LocalStore) Save(_ context.Context, filename string, data []byte) (string, error) {
	target := filepath.Join(s.dir, ObjectName("", filename))
	if err := os.WriteFile(target, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to save file %s: %w", filename, err)
	}
	return target, nil
}

func (s *LocalStore) Open(_ context.Context, key string) (io.ReadCloser, error) {
	clean := filepath.Clean(key)
	if !filepath.IsAbs(clean) && !strings.HasPrefix(clean, s.dir+string(filepath.Separator)) {
		clean = filepath.Join(s.dir, clean)
	}
	f, err := os.Open(clean)
	if err != nil {
		return nil, fmt.Errorf("failed to open stored file %s: %w", key, err)
	}
	return f, nil
}
