// Package blob stores operator-supplied and exported images as flat files
// under the data directory, addressed by id.
package blob

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store is a filesystem-backed blob store. Ids are opaque; the original
// filename's extension is kept so downstream upload steps see a real image
// file.
type Store struct {
	dir string
}

// NewStore creates a blob store rooted at dir.
func NewStore(dir string) *Store {
	return &Store{dir: dir}
}

// DefaultDir returns the blob directory under dataDir.
func DefaultDir(dataDir string) string {
	return filepath.Join(dataDir, "blobs")
}

// Upload writes data and returns the blob id.
func (s *Store) Upload(data []byte, name string) (string, error) {
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return "", err
	}

	ext := filepath.Ext(name)
	id := uuid.NewString() + ext
	if err := os.WriteFile(filepath.Join(s.dir, id), data, 0600); err != nil {
		return "", err
	}
	return id, nil
}

// Path returns the local file path for a blob id.
func (s *Store) Path(id string) (string, error) {
	// Ids are generated here; anything with a separator is not one of ours.
	if strings.ContainsAny(id, `/\`) {
		return "", fmt.Errorf("invalid blob id %q", id)
	}

	path := filepath.Join(s.dir, id)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("blob %s: %w", id, err)
	}
	return path, nil
}

// Download reads a blob's bytes.
func (s *Store) Download(id string) ([]byte, error) {
	path, err := s.Path(id)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
