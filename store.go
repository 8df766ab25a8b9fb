package docrender

import (
	"errors"
	"fmt"
	"image"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/alnah/go-docrender/internal/fileutil"
)

// ArtifactMediaType is the media type of every stored artifact.
const ArtifactMediaType = "image/png"

// staleTempAge is how old an interrupted write must be before GC removes it.
const staleTempAge = time.Hour

// Artifact is one stored page image.
type Artifact struct {
	Name      string
	MediaType string
	Data      []byte
	ModTime   time.Time
}

// ArtifactStore keeps rasterized pages in a single flat directory.
// Resolve is the only way a client-supplied name becomes a path.
type ArtifactStore struct {
	root   string
	now    func() time.Time
	logger *zap.Logger
}

// StoreOption configures an ArtifactStore.
type StoreOption func(*ArtifactStore)

// WithClock replaces time.Now for age computations.
func WithClock(now func() time.Time) StoreOption {
	return func(s *ArtifactStore) {
		if now != nil {
			s.now = now
		}
	}
}

// WithStoreLogger sets the logger.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *ArtifactStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewArtifactStore creates root if needed and canonicalizes it.
func NewArtifactStore(root string, opts ...StoreOption) (*ArtifactStore, error) {
	if root == "" {
		return nil, errors.New("artifact root cannot be empty")
	}
	// #nosec G301 -- artifacts are served over HTTP, not secrets
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("creating artifact root: %w", err)
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolving artifact root: %w", err)
	}
	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return nil, fmt.Errorf("resolving artifact root: %w", err)
	}

	s := &ArtifactStore{
		root:   canonical,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Root returns the canonical store directory.
func (s *ArtifactStore) Root() string {
	return s.root
}

// Put encodes img as PNG under the name derived from token and page.
// The file appears atomically.
func (s *ArtifactStore) Put(token string, page int, img image.Image) (string, error) {
	if err := validateArtifactKey(token, page); err != nil {
		return "", err
	}
	if img == nil {
		return "", errors.New("nil page image")
	}

	name := artifactName(token, page)
	err := fileutil.WriteAtomic(s.root, name, func(w io.Writer) error {
		return imaging.Encode(w, img, imaging.PNG)
	})
	if err != nil {
		return "", fmt.Errorf("storing %s: %w", name, err)
	}
	return name, nil
}

// Resolve turns a client-supplied filename into a path inside the root.
// The name must match the artifact pattern before the filesystem is touched;
// the canonical path must then stay under the root. Every rejection,
// including a missing file, is ErrArtifactNotFound.
func (s *ArtifactStore) Resolve(filename string) (string, error) {
	if !artifactPattern.MatchString(filename) {
		return "", ErrArtifactNotFound
	}

	candidate := filepath.Join(s.root, filename)
	resolved, err := filepath.EvalSymlinks(candidate)
	if err != nil {
		return "", ErrArtifactNotFound
	}
	if !s.contains(resolved) {
		s.logger.Warn("artifact escapes store root",
			zap.String("filename", filename), zap.String("target", resolved))
		return "", ErrArtifactNotFound
	}

	info, err := os.Stat(resolved)
	if err != nil || !info.Mode().IsRegular() {
		return "", ErrArtifactNotFound
	}
	return resolved, nil
}

func (s *ArtifactStore) contains(path string) bool {
	rel, err := filepath.Rel(s.root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)) && !filepath.IsAbs(rel)
}

// Open resolves filename and reads it through a single handle, so a
// concurrent GC unlink cannot truncate the read.
func (s *ArtifactStore) Open(filename string) (*Artifact, error) {
	path, err := s.Resolve(filename)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path) // #nosec G304 -- path validated by Resolve
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrArtifactNotFound
		}
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}

	return &Artifact{
		Name:      filename,
		MediaType: ArtifactMediaType,
		Data:      data,
		ModTime:   info.ModTime(),
	}, nil
}

// Delete removes one artifact. The directory entry is unlinked, never a
// symlink target.
func (s *ArtifactStore) Delete(filename string) error {
	if _, err := s.Resolve(filename); err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(s.root, filename)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ErrArtifactNotFound
		}
		return fmt.Errorf("deleting artifact: %w", err)
	}
	return nil
}

// List returns the names of stored artifacts in lexical order.
func (s *ArtifactStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("listing artifacts: %w", err)
	}
	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() && artifactPattern.MatchString(e.Name()) {
			names = append(names, e.Name())
		}
	}
	return names, nil
}

// GarbageCollect removes artifacts whose age exceeds maxAge; maxAge <= 0
// removes every artifact. Files vanishing mid-sweep are ignored. Leftover
// temp files from interrupted writes are removed once stale.
func (s *ArtifactStore) GarbageCollect(maxAge time.Duration) (int, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return 0, fmt.Errorf("scanning artifacts: %w", err)
	}

	now := s.now()
	removed := 0
	var errs []error

	for _, e := range entries {
		name := e.Name()
		limit := maxAge
		switch {
		case artifactPattern.MatchString(name):
		case isTempArtifact(name):
			limit = max(maxAge, staleTempAge)
		default:
			continue
		}

		info, err := e.Info()
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		if !info.Mode().IsRegular() {
			continue
		}
		if limit > 0 && now.Sub(info.ModTime()) <= limit {
			continue
		}

		if err := os.Remove(filepath.Join(s.root, name)); err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				errs = append(errs, err)
			}
			continue
		}
		removed++
	}

	s.logger.Info("artifact sweep finished",
		zap.Int("removed", removed),
		zap.Duration("max_age", maxAge),
		zap.Int("errors", len(errs)))
	return removed, errors.Join(errs...)
}

func isTempArtifact(name string) bool {
	return strings.HasPrefix(name, ".docrender-") && strings.HasSuffix(name, ".tmp")
}
