package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	docrender "github.com/alnah/go-docrender"
	"github.com/alnah/go-docrender/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrInvalidConfig   = errors.New("invalid config")
)

// Config holds all configuration for the render service.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Database  DatabaseConfig  `yaml:"database"`
	Blob      BlobConfig      `yaml:"blob"`
	Render    RenderConfig    `yaml:"render"`
	GC        GCConfig        `yaml:"gc"`
	Log       LogConfig       `yaml:"log"`
}

// ServerConfig defines the HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	PublicURL       string        `yaml:"publicURL"`   // Base for image URLs (empty = request host)
	OwnerHeader     string        `yaml:"ownerHeader"` // Set by the upstream gateway
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// ArtifactsConfig defines where rasterized pages are stored.
type ArtifactsConfig struct {
	Dir string `yaml:"dir"`
}

// DatabaseConfig defines the template and render log store.
type DatabaseConfig struct {
	DSN      string `yaml:"dsn"`      // Empty = in-memory stores
	MaxConns int32  `yaml:"maxConns"` // 0 = driver default
	Migrate  bool   `yaml:"migrate"`  // Apply migrations on startup
}

// BlobConfig defines where template sources are stored.
// With an empty bucket, sources go to LocalDir.
type BlobConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // S3-compatible endpoint override
	LocalDir string `yaml:"localDir"`
}

// RenderConfig defines pipeline limits.
type RenderConfig struct {
	Workers        int           `yaml:"workers"` // Browser pool size (0 = auto)
	ComposeTimeout time.Duration `yaml:"composeTimeout"`
	FetchTimeout   time.Duration `yaml:"fetchTimeout"`
	MaxFetchBytes  int64         `yaml:"maxFetchBytes"`
	DPI            int           `yaml:"dpi"`
	Page           PageConfig    `yaml:"page"`
}

// PageConfig defines the default PDF page settings.
type PageConfig struct {
	Size        string  `yaml:"size"`        // "letter", "a4", "legal" (default: "letter")
	Orientation string  `yaml:"orientation"` // "portrait", "landscape" (default: "portrait")
	Margin      float64 `yaml:"margin"`      // inches (default: 0.5)
}

// Settings converts the page config for the renderer.
func (p PageConfig) Settings() *docrender.PageSettings {
	return &docrender.PageSettings{
		Size:        strings.ToLower(p.Size),
		Orientation: strings.ToLower(p.Orientation),
		Margin:      p.Margin,
	}
}

// GCConfig defines the artifact sweep.
type GCConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Schedule string        `yaml:"schedule"` // cron spec or descriptor ("@every 1h")
	MaxAge   time.Duration `yaml:"maxAge"`
}

// LogConfig defines logger construction.
type LogConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json", "console"
}

// Validate reports the first invalid field.
// Called automatically by LoadConfig, but available for consumers
// who construct Config manually.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Server.Addr) == "" {
		return fmt.Errorf("%w: server.addr is required", ErrInvalidConfig)
	}
	if c.Server.PublicURL != "" {
		u, err := url.Parse(c.Server.PublicURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("%w: server.publicURL must be an absolute http(s) URL, got %q", ErrInvalidConfig, c.Server.PublicURL)
		}
	}
	if strings.TrimSpace(c.Server.OwnerHeader) == "" {
		return fmt.Errorf("%w: server.ownerHeader is required", ErrInvalidConfig)
	}
	if c.Server.ShutdownTimeout < 0 {
		return fmt.Errorf("%w: server.shutdownTimeout cannot be negative", ErrInvalidConfig)
	}

	if strings.TrimSpace(c.Artifacts.Dir) == "" {
		return fmt.Errorf("%w: artifacts.dir is required", ErrInvalidConfig)
	}

	if c.Database.MaxConns < 0 {
		return fmt.Errorf("%w: database.maxConns cannot be negative", ErrInvalidConfig)
	}

	if c.Blob.Bucket == "" && strings.TrimSpace(c.Blob.LocalDir) == "" {
		return fmt.Errorf("%w: blob.bucket or blob.localDir is required", ErrInvalidConfig)
	}
	if c.Blob.Endpoint != "" {
		if _, err := url.ParseRequestURI(c.Blob.Endpoint); err != nil {
			return fmt.Errorf("%w: blob.endpoint: %v", ErrInvalidConfig, err)
		}
	}

	if c.Render.Workers < 0 || c.Render.Workers > docrender.MaxPoolSize {
		return fmt.Errorf("%w: render.workers must be between 0 and %d, got %d",
			ErrInvalidConfig, docrender.MaxPoolSize, c.Render.Workers)
	}
	if c.Render.ComposeTimeout < 0 || c.Render.FetchTimeout < 0 {
		return fmt.Errorf("%w: render timeouts cannot be negative", ErrInvalidConfig)
	}
	if c.Render.MaxFetchBytes < 0 {
		return fmt.Errorf("%w: render.maxFetchBytes cannot be negative", ErrInvalidConfig)
	}
	if err := docrender.ValidateDPI(c.Render.DPI); err != nil {
		return fmt.Errorf("render.dpi: %w", err)
	}
	if err := c.Render.Page.Settings().Validate(); err != nil {
		return fmt.Errorf("render.page: %w", err)
	}

	if c.GC.Enabled {
		if _, err := cron.ParseStandard(c.GC.Schedule); err != nil {
			return fmt.Errorf("%w: gc.schedule %q: %v", ErrInvalidConfig, c.GC.Schedule, err)
		}
	}
	if c.GC.MaxAge < 0 {
		return fmt.Errorf("%w: gc.maxAge cannot be negative", ErrInvalidConfig)
	}

	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: log.level %q (must be debug, info, warn, or error)", ErrInvalidConfig, c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "json", "console":
	default:
		return fmt.Errorf("%w: log.format %q (must be json or console)", ErrInvalidConfig, c.Log.Format)
	}

	return nil
}

// DefaultConfig returns a configuration that runs locally without external
// services: in-memory records, filesystem blobs, hourly GC of day-old pages.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":8080",
			OwnerHeader:     "X-Owner-ID",
			ShutdownTimeout: 15 * time.Second,
		},
		Artifacts: ArtifactsConfig{Dir: "artifacts"},
		Blob: BlobConfig{
			Region:   "us-east-1",
			LocalDir: "local_storage",
		},
		Render: RenderConfig{
			ComposeTimeout: 30 * time.Second,
			FetchTimeout:   docrender.DefaultFetchTimeout,
			MaxFetchBytes:  docrender.DefaultMaxDocumentSize,
			DPI:            docrender.DefaultDPI,
			Page: PageConfig{
				Size:        docrender.PageSizeLetter,
				Orientation: docrender.OrientationPortrait,
				Margin:      docrender.DefaultMargin,
			},
		},
		GC: GCConfig{
			Enabled:  true,
			Schedule: "@every 1h",
			MaxAge:   24 * time.Hour,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// LoadConfig loads configuration from a file path or config name on top of
// DefaultConfig. If nameOrPath contains a path separator, it's treated as a
// file path. Otherwise, it's treated as a config name and searched in
// standard locations. Returns error if the file is not found.
func LoadConfig(nameOrPath string) (*Config, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if isFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is operator-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yamlutil.UnmarshalStrict(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// isFilePath returns true if the string looks like a file path.
func isFilePath(s string) bool {
	return strings.ContainsAny(s, "/\\")
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/docrender/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2)

	for _, ext := range extensions {
		localPath := name + ext
		if fileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "docrender", name+ext)
			if fileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}

// fileExists returns true if the path exists and is a regular file.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
