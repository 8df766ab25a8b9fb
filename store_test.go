package docrender

// Notes:
// - Symlink tests are skipped on Windows where creating links needs privileges.
// - Resolve never distinguishes "bad name" from "missing": both are
//   ErrArtifactNotFound, so tests only assert that sentinel.

import (
	"bytes"
	"errors"
	"image/color"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/disintegration/imaging"
)

func newTestStore(t *testing.T, opts ...StoreOption) *ArtifactStore {
	t.Helper()
	s, err := NewArtifactStore(t.TempDir(), opts...)
	if err != nil {
		t.Fatalf("NewArtifactStore() error = %v", err)
	}
	return s
}

func putTestPage(t *testing.T, s *ArtifactStore, token string, page int) string {
	t.Helper()
	name, err := s.Put(token, page, imaging.New(4, 3, color.White))
	if err != nil {
		t.Fatalf("Put(%q, %d) error = %v", token, page, err)
	}
	return name
}

// ---------------------------------------------------------------------------
// TestNewArtifactStore - Root creation and canonicalization
// ---------------------------------------------------------------------------

func TestNewArtifactStore(t *testing.T) {
	t.Parallel()

	t.Run("creates missing root", func(t *testing.T) {
		t.Parallel()

		root := filepath.Join(t.TempDir(), "nested", "artifacts")
		s, err := NewArtifactStore(root)
		if err != nil {
			t.Fatalf("NewArtifactStore() error = %v", err)
		}
		if info, err := os.Stat(s.Root()); err != nil || !info.IsDir() {
			t.Fatalf("root %q not created: %v", s.Root(), err)
		}
		if !filepath.IsAbs(s.Root()) {
			t.Errorf("Root() = %q, want absolute path", s.Root())
		}
	})

	t.Run("empty root rejected", func(t *testing.T) {
		t.Parallel()

		if _, err := NewArtifactStore(""); err == nil {
			t.Error("expected error for empty root")
		}
	})
}

// ---------------------------------------------------------------------------
// TestArtifactStore_PutOpen - Round trip through the store
// ---------------------------------------------------------------------------

func TestArtifactStore_PutOpen(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	name := putTestPage(t, s, "0a1b2c3d", 2)

	if name != "0a1b2c3d_page_2.png" {
		t.Fatalf("Put() name = %q, want 0a1b2c3d_page_2.png", name)
	}

	art, err := s.Open(name)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	if art.Name != name || art.MediaType != "image/png" {
		t.Errorf("Open() = {%q, %q}, want {%q, image/png}", art.Name, art.MediaType, name)
	}
	if art.ModTime.IsZero() {
		t.Error("ModTime is zero")
	}

	img, err := imaging.Decode(bytes.NewReader(art.Data))
	if err != nil {
		t.Fatalf("stored artifact is not a decodable image: %v", err)
	}
	if b := img.Bounds(); b.Dx() != 4 || b.Dy() != 3 {
		t.Errorf("image size = %dx%d, want 4x3", b.Dx(), b.Dy())
	}
}

func TestArtifactStore_Put_InvalidKey(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	img := imaging.New(1, 1, color.Black)

	tests := []struct {
		name    string
		token   string
		page    int
		wantErr error
	}{
		{"uppercase token", "0A1B2C3D", 1, ErrInvalidBatchToken},
		{"short token", "abc", 1, ErrInvalidBatchToken},
		{"traversal token", "../../x", 1, ErrInvalidBatchToken},
		{"page zero", "0a1b2c3d", 0, ErrInvalidPageNumber},
		{"negative page", "0a1b2c3d", -2, ErrInvalidPageNumber},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if _, err := s.Put(tt.token, tt.page, img); !errors.Is(err, tt.wantErr) {
				t.Errorf("Put(%q, %d) error = %v, want %v", tt.token, tt.page, err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestArtifactStore_Resolve - Pattern check before filesystem, containment after
// ---------------------------------------------------------------------------

func TestArtifactStore_Resolve(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	valid := putTestPage(t, s, "deadbeef", 1)

	// Out-of-band files that exist on disk but never match the pattern.
	for _, name := range []string{"secret.png", "DEADBEEF_page_1.png", "deadbeef_page_1.PNG"} {
		if err := os.WriteFile(filepath.Join(s.Root(), name), []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile(%q) error = %v", name, err)
		}
	}
	// A directory that matches the pattern.
	if err := os.Mkdir(filepath.Join(s.Root(), "cafebabe_page_1.png"), 0o755); err != nil {
		t.Fatalf("Mkdir() error = %v", err)
	}

	tests := []struct {
		name     string
		filename string
		wantOK   bool
	}{
		{"valid artifact", valid, true},
		{"missing artifact", "deadbeef_page_2.png", false},
		{"out-of-band file", "secret.png", false},
		{"uppercase token on disk", "DEADBEEF_page_1.png", false},
		{"uppercase extension on disk", "deadbeef_page_1.PNG", false},
		{"directory matching pattern", "cafebabe_page_1.png", false},
		{"parent traversal", "../deadbeef_page_1.png", false},
		{"absolute path", filepath.Join(s.Root(), valid), false},
		{"nested separator", "x/deadbeef_page_1.png", false},
		{"backslash separator", `..\deadbeef_page_1.png`, false},
		{"encoded separator", "..%2fdeadbeef_page_1.png", false},
		{"trailing newline", valid + "\n", false},
		{"null byte", "deadbeef_page_1.png\x00", false},
		{"empty", "", false},
		{"nine char token", "deadbeef0_page_1.png", false},
		{"missing page number", "deadbeef_page_.png", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			path, err := s.Resolve(tt.filename)
			if tt.wantOK {
				if err != nil {
					t.Fatalf("Resolve(%q) error = %v", tt.filename, err)
				}
				if filepath.Dir(path) != s.Root() {
					t.Errorf("Resolve(%q) = %q, want a path directly under %q", tt.filename, path, s.Root())
				}
				return
			}
			if !errors.Is(err, ErrArtifactNotFound) {
				t.Errorf("Resolve(%q) = (%q, %v), want ErrArtifactNotFound", tt.filename, path, err)
			}
			if Classify(err) != CategoryNotFound {
				t.Errorf("Classify() = %v, want not_found", Classify(err))
			}
		})
	}
}

func TestArtifactStore_Resolve_SymlinkEscape(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	s := newTestStore(t)
	outside := filepath.Join(t.TempDir(), "outside.png")
	if err := os.WriteFile(outside, []byte("secret"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	link := filepath.Join(s.Root(), "abcdef01_page_1.png")
	if err := os.Symlink(outside, link); err != nil {
		t.Fatalf("Symlink() error = %v", err)
	}

	if _, err := s.Resolve("abcdef01_page_1.png"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Resolve(symlink outside root) = %v, want ErrArtifactNotFound", err)
	}
	if _, err := s.Open("abcdef01_page_1.png"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Open(symlink outside root) = %v, want ErrArtifactNotFound", err)
	}
	if err := s.Delete("abcdef01_page_1.png"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Delete(symlink outside root) = %v, want ErrArtifactNotFound", err)
	}
	if _, err := os.Stat(outside); err != nil {
		t.Errorf("outside file touched: %v", err)
	}
}

// ---------------------------------------------------------------------------
// TestArtifactStore_Delete - Explicit removal
// ---------------------------------------------------------------------------

func TestArtifactStore_Delete(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	name := putTestPage(t, s, "01234567", 1)

	if err := s.Delete(name); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Resolve(name); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Resolve() after Delete = %v, want ErrArtifactNotFound", err)
	}
	if err := s.Delete(name); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("second Delete() = %v, want ErrArtifactNotFound", err)
	}
	if err := s.Delete("../etc/passwd"); !errors.Is(err, ErrArtifactNotFound) {
		t.Errorf("Delete(traversal) = %v, want ErrArtifactNotFound", err)
	}
}

// ---------------------------------------------------------------------------
// TestArtifactStore_List - Enumerates artifacts only
// ---------------------------------------------------------------------------

func TestArtifactStore_List(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	putTestPage(t, s, "bbbbbbbb", 1)
	putTestPage(t, s, "aaaaaaaa", 2)
	putTestPage(t, s, "aaaaaaaa", 1)
	if err := os.WriteFile(filepath.Join(s.Root(), "notes.txt"), []byte("x"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got, err := s.List()
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	want := []string{"aaaaaaaa_page_1.png", "aaaaaaaa_page_2.png", "bbbbbbbb_page_1.png"}
	if len(got) != len(want) {
		t.Fatalf("List() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("List()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}

// ---------------------------------------------------------------------------
// TestArtifactStore_GarbageCollect - Age-based sweep
// ---------------------------------------------------------------------------

func TestArtifactStore_GarbageCollect(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	setup := func(t *testing.T) *ArtifactStore {
		t.Helper()
		s := newTestStore(t, WithClock(func() time.Time { return now }))
		ages := map[string]time.Duration{
			putTestPage(t, s, "11111111", 1): 48 * time.Hour,
			putTestPage(t, s, "11111111", 2): 25 * time.Hour,
			putTestPage(t, s, "22222222", 1): time.Hour,
			putTestPage(t, s, "33333333", 1): 0,
		}
		for name, age := range ages {
			mtime := now.Add(-age)
			if err := os.Chtimes(filepath.Join(s.Root(), name), mtime, mtime); err != nil {
				t.Fatalf("Chtimes() error = %v", err)
			}
		}
		// Unrelated file, ancient, must survive every sweep.
		keep := filepath.Join(s.Root(), "README.txt")
		if err := os.WriteFile(keep, []byte("x"), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
		old := now.Add(-1000 * time.Hour)
		if err := os.Chtimes(keep, old, old); err != nil {
			t.Fatalf("Chtimes() error = %v", err)
		}
		return s
	}

	tests := []struct {
		name        string
		maxAge      time.Duration
		wantRemoved int
		wantLeft    []string
	}{
		{
			name:        "zero removes everything",
			maxAge:      0,
			wantRemoved: 4,
		},
		{
			name:        "negative removes everything",
			maxAge:      -time.Hour,
			wantRemoved: 4,
		},
		{
			name:        "infinite keeps everything",
			maxAge:      time.Duration(math.MaxInt64),
			wantRemoved: 0,
			wantLeft:    []string{"11111111_page_1.png", "11111111_page_2.png", "22222222_page_1.png", "33333333_page_1.png"},
		},
		{
			name:        "24h removes older artifacts only",
			maxAge:      24 * time.Hour,
			wantRemoved: 2,
			wantLeft:    []string{"22222222_page_1.png", "33333333_page_1.png"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := setup(t)
			removed, err := s.GarbageCollect(tt.maxAge)
			if err != nil {
				t.Fatalf("GarbageCollect() error = %v", err)
			}
			if removed != tt.wantRemoved {
				t.Errorf("removed = %d, want %d", removed, tt.wantRemoved)
			}

			left, err := s.List()
			if err != nil {
				t.Fatalf("List() error = %v", err)
			}
			if len(left) != len(tt.wantLeft) {
				t.Fatalf("left = %v, want %v", left, tt.wantLeft)
			}
			for i := range left {
				if left[i] != tt.wantLeft[i] {
					t.Errorf("left[%d] = %q, want %q", i, left[i], tt.wantLeft[i])
				}
			}
			if _, err := os.Stat(filepath.Join(s.Root(), "README.txt")); err != nil {
				t.Errorf("unrelated file removed: %v", err)
			}
		})
	}
}

func TestArtifactStore_GarbageCollect_StaleTempFiles(t *testing.T) {
	t.Parallel()

	now := time.Now()
	s := newTestStore(t, WithClock(func() time.Time { return now }))

	fresh := filepath.Join(s.Root(), ".docrender-fresh.tmp")
	stale := filepath.Join(s.Root(), ".docrender-stale.tmp")
	for _, p := range []string{fresh, stale} {
		if err := os.WriteFile(p, []byte("partial"), 0o600); err != nil {
			t.Fatalf("WriteFile() error = %v", err)
		}
	}
	old := now.Add(-2 * staleTempAge)
	if err := os.Chtimes(stale, old, old); err != nil {
		t.Fatalf("Chtimes() error = %v", err)
	}

	// maxAge 0 must not delete an in-flight write.
	removed, err := s.GarbageCollect(0)
	if err != nil {
		t.Fatalf("GarbageCollect() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if _, err := os.Stat(fresh); err != nil {
		t.Errorf("fresh temp file removed: %v", err)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Errorf("stale temp file kept: %v", err)
	}
}

func TestArtifactStore_OpenSurvivesConcurrentSweep(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	names := make([]string, 20)
	for i := range names {
		names[i] = putTestPage(t, s, "facefeed", i+1)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = s.GarbageCollect(0)
	}()

	for _, name := range names {
		art, err := s.Open(name)
		if err != nil {
			if !errors.Is(err, ErrArtifactNotFound) {
				t.Errorf("Open(%q) error = %v, want nil or ErrArtifactNotFound", name, err)
			}
			continue
		}
		if _, err := imaging.Decode(bytes.NewReader(art.Data)); err != nil {
			t.Errorf("Open(%q) returned a truncated image: %v", name, err)
		}
	}
	<-done
}
