package config

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	docrender "github.com/alnah/go-docrender"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if err := cfg.Validate(); err != nil {
		t.Fatalf("DefaultConfig().Validate() error = %v", err)
	}
	if cfg.Server.Addr != ":8080" {
		t.Errorf("Server.Addr = %q, want :8080", cfg.Server.Addr)
	}
	if cfg.Server.OwnerHeader != "X-Owner-ID" {
		t.Errorf("Server.OwnerHeader = %q, want X-Owner-ID", cfg.Server.OwnerHeader)
	}
	if cfg.Database.DSN != "" {
		t.Errorf("Database.DSN = %q, want empty (in-memory)", cfg.Database.DSN)
	}
	if cfg.Blob.Bucket != "" || cfg.Blob.LocalDir != "local_storage" {
		t.Errorf("Blob = %+v, want local fallback", cfg.Blob)
	}
	if cfg.Render.DPI != docrender.DefaultDPI {
		t.Errorf("Render.DPI = %d, want %d", cfg.Render.DPI, docrender.DefaultDPI)
	}
	if !cfg.GC.Enabled || cfg.GC.MaxAge != 24*time.Hour {
		t.Errorf("GC = %+v, want enabled with 24h max age", cfg.GC)
	}
}

func TestPageConfig_Settings(t *testing.T) {
	p := PageConfig{Size: "A4", Orientation: "Landscape", Margin: 1}
	got := p.Settings()

	if got.Size != docrender.PageSizeA4 {
		t.Errorf("Size = %q, want %q", got.Size, docrender.PageSizeA4)
	}
	if got.Orientation != docrender.OrientationLandscape {
		t.Errorf("Orientation = %q, want %q", got.Orientation, docrender.OrientationLandscape)
	}
	if got.Margin != 1 {
		t.Errorf("Margin = %v, want 1", got.Margin)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Config) {},
		},
		{
			name:    "empty addr",
			mutate:  func(c *Config) { c.Server.Addr = " " },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "relative public url",
			mutate:  func(c *Config) { c.Server.PublicURL = "/api" },
			wantErr: ErrInvalidConfig,
		},
		{
			name:   "absolute public url",
			mutate: func(c *Config) { c.Server.PublicURL = "https://docs.example.com" },
		},
		{
			name:    "empty owner header",
			mutate:  func(c *Config) { c.Server.OwnerHeader = "" },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "empty artifacts dir",
			mutate:  func(c *Config) { c.Artifacts.Dir = "" },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "no blob backend",
			mutate:  func(c *Config) { c.Blob.LocalDir = "" },
			wantErr: ErrInvalidConfig,
		},
		{
			name: "bucket without local dir",
			mutate: func(c *Config) {
				c.Blob.LocalDir = ""
				c.Blob.Bucket = "pdf-templates"
			},
		},
		{
			name:    "too many workers",
			mutate:  func(c *Config) { c.Render.Workers = docrender.MaxPoolSize + 1 },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "negative fetch timeout",
			mutate:  func(c *Config) { c.Render.FetchTimeout = -time.Second },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "dpi out of range",
			mutate:  func(c *Config) { c.Render.DPI = 2000 },
			wantErr: docrender.ErrInvalidDPI,
		},
		{
			name:    "bad page size",
			mutate:  func(c *Config) { c.Render.Page.Size = "tabloid" },
			wantErr: docrender.ErrInvalidPageSize,
		},
		{
			name:    "bad margin",
			mutate:  func(c *Config) { c.Render.Page.Margin = 5 },
			wantErr: docrender.ErrInvalidMargin,
		},
		{
			name:    "bad gc schedule",
			mutate:  func(c *Config) { c.GC.Schedule = "every hour" },
			wantErr: ErrInvalidConfig,
		},
		{
			name: "bad schedule ignored when gc disabled",
			mutate: func(c *Config) {
				c.GC.Enabled = false
				c.GC.Schedule = "nonsense"
			},
		},
		{
			name:   "five field cron schedule",
			mutate: func(c *Config) { c.GC.Schedule = "*/15 * * * *" },
		},
		{
			name:    "negative gc max age",
			mutate:  func(c *Config) { c.GC.MaxAge = -time.Hour },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "verbose" },
			wantErr: ErrInvalidConfig,
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: ErrInvalidConfig,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	t.Run("empty name returns ErrEmptyConfigName", func(t *testing.T) {
		_, err := LoadConfig("")
		if !errors.Is(err, ErrEmptyConfigName) {
			t.Errorf("error = %v, want ErrEmptyConfigName", err)
		}
	})

	t.Run("valid file path loads config over defaults", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "test.yaml")
		content := `server:
  addr: ":9090"
render:
  dpi: 200
  fetchTimeout: 15s
  page:
    size: a4
gc:
  maxAge: 6h
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("setup: %v", err)
		}

		cfg, err := LoadConfig(configPath)
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Server.Addr != ":9090" {
			t.Errorf("Server.Addr = %q, want :9090", cfg.Server.Addr)
		}
		if cfg.Render.DPI != 200 {
			t.Errorf("Render.DPI = %d, want 200", cfg.Render.DPI)
		}
		if cfg.Render.FetchTimeout != 15*time.Second {
			t.Errorf("Render.FetchTimeout = %v, want 15s", cfg.Render.FetchTimeout)
		}
		if cfg.Render.Page.Size != "a4" {
			t.Errorf("Render.Page.Size = %q, want a4", cfg.Render.Page.Size)
		}
		if cfg.Render.Page.Orientation != "portrait" {
			t.Errorf("Render.Page.Orientation = %q, want default portrait", cfg.Render.Page.Orientation)
		}
		if cfg.GC.MaxAge != 6*time.Hour {
			t.Errorf("GC.MaxAge = %v, want 6h", cfg.GC.MaxAge)
		}
		if cfg.Server.OwnerHeader != "X-Owner-ID" {
			t.Errorf("Server.OwnerHeader = %q, want default kept", cfg.Server.OwnerHeader)
		}
	})

	t.Run("nonexistent file path returns ErrConfigNotFound", func(t *testing.T) {
		_, err := LoadConfig("/nonexistent/path/config.yaml")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("invalid YAML returns ErrConfigParse", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "invalid.yaml")
		if err := os.WriteFile(configPath, []byte("server: [unclosed"), 0600); err != nil {
			t.Fatalf("setup: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrConfigParse) {
			t.Errorf("error = %v, want ErrConfigParse", err)
		}
	})

	t.Run("unknown field returns ErrConfigParse in strict mode", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "unknown.yaml")
		content := `server:
  addr: ":8080"
unknownField: "should fail"
`
		if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
			t.Fatalf("setup: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrConfigParse) {
			t.Errorf("error = %v, want ErrConfigParse", err)
		}
	})

	t.Run("invalid value fails validation", func(t *testing.T) {
		dir := t.TempDir()
		configPath := filepath.Join(dir, "bad.yaml")
		if err := os.WriteFile(configPath, []byte("log:\n  level: loud\n"), 0600); err != nil {
			t.Fatalf("setup: %v", err)
		}

		_, err := LoadConfig(configPath)
		if !errors.Is(err, ErrInvalidConfig) {
			t.Errorf("error = %v, want ErrInvalidConfig", err)
		}
	})

	t.Run("unreadable file returns read error not ErrConfigNotFound", func(t *testing.T) {
		if runtime.GOOS == "windows" || os.Geteuid() == 0 {
			t.Skip("permission bits not enforced")
		}
		dir := t.TempDir()
		configPath := filepath.Join(dir, "unreadable.yaml")
		if err := os.WriteFile(configPath, []byte("log:\n  level: info\n"), 0600); err != nil {
			t.Fatalf("setup: %v", err)
		}
		if err := os.Chmod(configPath, 0000); err != nil {
			t.Fatalf("setup chmod: %v", err)
		}
		defer os.Chmod(configPath, 0600)

		_, err := LoadConfig(configPath)
		if err == nil {
			t.Fatal("expected error for unreadable file")
		}
		if errors.Is(err, ErrConfigNotFound) {
			t.Error("error should not be ErrConfigNotFound for permission error")
		}
	})

	t.Run("config name resolves yaml in current directory", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "myconfig.yaml"), []byte("artifacts:\n  dir: fromname\n"), 0600); err != nil {
			t.Fatalf("setup: %v", err)
		}
		t.Chdir(dir)

		cfg, err := LoadConfig("myconfig")
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Artifacts.Dir != "fromname" {
			t.Errorf("Artifacts.Dir = %q, want fromname", cfg.Artifacts.Dir)
		}
	})

	t.Run("config name falls back to yml", func(t *testing.T) {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "other.yml"), []byte("log:\n  format: console\n"), 0600); err != nil {
			t.Fatalf("setup: %v", err)
		}
		t.Chdir(dir)

		cfg, err := LoadConfig("other")
		if err != nil {
			t.Fatalf("LoadConfig() error = %v", err)
		}
		if cfg.Log.Format != "console" {
			t.Errorf("Log.Format = %q, want console", cfg.Log.Format)
		}
	})

	t.Run("unknown config name lists tried paths", func(t *testing.T) {
		t.Chdir(t.TempDir())

		_, err := LoadConfig("doesnotexist")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Fatalf("error = %v, want ErrConfigNotFound", err)
		}
		if !strings.Contains(err.Error(), "doesnotexist.yaml") {
			t.Errorf("error %q should list tried paths", err)
		}
	})
}

func TestIsFilePath(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"docrender", false},
		{"./docrender.yaml", true},
		{"/etc/docrender/config.yaml", true},
		{`C:\docrender\config.yaml`, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := isFilePath(tt.input); got != tt.want {
				t.Errorf("isFilePath(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
