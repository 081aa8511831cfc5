package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"

	"github.com/rpattn/invoiceflow/internal/domain"

	"github.com/google/uuid"
)

// Store persists uploaded files and reads them back for extraction.
type Store interface {
	Location() domain.StorageLocation
	Save(ctx context.Context, filename string, data []byte) (string, error)
	Open(ctx context.Context, key string) (io.ReadCloser, error)
}

// Registry resolves the store that owns an upload's storage location. Uploads
// written before a backend switch stay readable.
type Registry struct {
	primary Store
	stores  map[domain.StorageLocation]Store
}

// NewRegistry registers primary for new uploads plus any read-only fallbacks.
func NewRegistry(primary Store, others ...Store) *Registry {
	r := &Registry{
		primary: primary,
		stores:  map[domain.StorageLocation]Store{primary.Location(): primary},
	}
	for _, s := range others {
		if s == nil {
			continue
		}
		if _, exists := r.stores[s.Location()]; !exists {
			r.stores[s.Location()] = s
		}
	}
	return r
}

// Primary is the store new uploads are written to.
func (r *Registry) Primary() Store {
	return r.primary
}

// For returns the store for location.
func (r *Registry) For(location domain.StorageLocation) (Store, error) {
	if location == "" {
		location = domain.StorageLocationLocal
	}
	s, ok := r.stores[location]
	if !ok {
		return nil, fmt.Errorf("no storage backend configured for %q", location)
	}
	return s, nil
}

// ReadAll opens key on the store owning location and returns its bytes.
func (r *Registry) ReadAll(ctx context.Context, location domain.StorageLocation, key string) ([]byte, error) {
	s, err := r.For(location)
	if err != nil {
		return nil, err
	}
	rc, err := s.Open(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s from %s storage: %w", key, location, err)
	}
	return data, nil
}

var unsafeNameChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// ObjectName builds a collision free object name that keeps the original
// filename readable.
func ObjectName(prefix, filename string) string {
	base := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	base = unsafeNameChars.ReplaceAllString(base, "_")
	base = strings.Trim(base, "._")
	if base == "" {
		base = "upload"
	}
	name := uuid.NewString() + "-" + base
	if prefix = strings.Trim(prefix, "/"); prefix != "" {
		return prefix + "/" + name
	}
	return name
}
