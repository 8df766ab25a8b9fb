// Package blob provides the template source stores: a local directory tree
// and an S3 bucket. Both report missing keys as docrender.ErrBlobNotFound.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	docrender "github.com/alnah/go-docrender"
	"github.com/alnah/go-docrender/internal/fileutil"
)

// ErrInvalidKey is returned for keys that are empty or leave the store root.
var ErrInvalidKey = errors.New("invalid blob key")

// Compile-time interface checks
var (
	_ docrender.BlobStore = (*FS)(nil)
	_ docrender.BlobStore = (*S3)(nil)
)

// FS stores blobs as files under a root directory. Keys use forward slashes.
type FS struct {
	root string
}

// NewFS creates root if needed.
func NewFS(root string) (*FS, error) {
	if root == "" {
		return nil, fmt.Errorf("%w: empty root", ErrInvalidKey)
	}
	// #nosec G301 -- template sources, not secrets
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating blob root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving blob root: %w", err)
	}
	return &FS{root: abs}, nil
}

// Root returns the absolute store directory.
func (s *FS) Root() string {
	return s.root
}

// path maps a key to a file path inside the root.
func (s *FS) path(key string) (string, error) {
	if key == "" || strings.ContainsRune(key, 0) || strings.Contains(key, `\`) {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	clean := path.Clean("/" + key)
	if clean == "/" || clean != "/"+key {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean[1:])), nil
}

// Get reads the blob stored under key.
func (s *FS) Get(_ context.Context, key string) ([]byte, error) {
	p, err := s.path(key)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) // #nosec G304 -- path confined by s.path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", docrender.ErrBlobNotFound, key)
		}
		return nil, fmt.Errorf("reading blob %s: %w", key, err)
	}
	return data, nil
}

// Put writes data under key, replacing any previous content atomically.
func (s *FS) Put(_ context.Context, key string, data []byte) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	dir := filepath.Dir(p)
	// #nosec G301 -- template sources, not secrets
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating blob directory: %w", err)
	}
	return fileutil.WriteAtomic(dir, filepath.Base(p), func(w io.Writer) error {
		_, err := io.Copy(w, bytes.NewReader(data))
		return err
	})
}

// Delete removes the blob under key. Deleting a missing key succeeds.
func (s *FS) Delete(_ context.Context, key string) error {
	p, err := s.path(key)
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("deleting blob %s: %w", key, err)
	}
	return nil
}
