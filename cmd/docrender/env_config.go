package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/alnah/go-docrender/internal/config"
)

// envConfig holds configuration from environment variables.
// Provides container-friendly overrides without requiring YAML files.
type envConfig struct {
	// Tier 1 - Essential
	ConfigPath  string // DOCRENDER_CONFIG: config file path
	Addr        string // DOCRENDER_ADDR: listen address
	DatabaseDSN string // DOCRENDER_DATABASE_DSN: PostgreSQL DSN

	// Tier 2 - Storage
	ArtifactDir string // DOCRENDER_ARTIFACT_DIR: rasterized page directory
	BlobDir     string // DOCRENDER_BLOB_DIR: local template source directory
	S3Bucket    string // DOCRENDER_S3_BUCKET: template source bucket
	S3Region    string // DOCRENDER_S3_REGION: bucket region
	S3Endpoint  string // DOCRENDER_S3_ENDPOINT: S3-compatible endpoint

	// Tier 3 - Tuning
	PublicURL   string        // DOCRENDER_PUBLIC_URL: base of image URLs
	OwnerHeader string        // DOCRENDER_OWNER_HEADER: owner id header
	Workers     int           // DOCRENDER_WORKERS: browser pool size
	GCMaxAge    time.Duration // DOCRENDER_GC_MAX_AGE: artifact lifetime
	LogLevel    string        // DOCRENDER_LOG_LEVEL: debug, info, warn, error
	LogFormat   string        // DOCRENDER_LOG_FORMAT: json, console
}

// knownEnvVars lists valid DOCRENDER_* environment variables.
// Used to detect typos and warn users about unknown variables.
var knownEnvVars = map[string]bool{
	// Tier 1 - Essential
	"DOCRENDER_CONFIG":       true,
	"DOCRENDER_ADDR":         true,
	"DOCRENDER_DATABASE_DSN": true,
	// Tier 2 - Storage
	"DOCRENDER_ARTIFACT_DIR": true,
	"DOCRENDER_BLOB_DIR":     true,
	"DOCRENDER_S3_BUCKET":    true,
	"DOCRENDER_S3_REGION":    true,
	"DOCRENDER_S3_ENDPOINT":  true,
	// Tier 3 - Tuning
	"DOCRENDER_PUBLIC_URL":   true,
	"DOCRENDER_OWNER_HEADER": true,
	"DOCRENDER_WORKERS":      true,
	"DOCRENDER_GC_MAX_AGE":   true,
	"DOCRENDER_LOG_LEVEL":    true,
	"DOCRENDER_LOG_FORMAT":   true,
	// Doctor
	"DOCRENDER_CONTAINER": true,
}

// loadEnvConfig reads configuration from environment variables.
func loadEnvConfig() *envConfig {
	cfg := &envConfig{
		ConfigPath:  os.Getenv("DOCRENDER_CONFIG"),
		Addr:        os.Getenv("DOCRENDER_ADDR"),
		DatabaseDSN: os.Getenv("DOCRENDER_DATABASE_DSN"),
		ArtifactDir: os.Getenv("DOCRENDER_ARTIFACT_DIR"),
		BlobDir:     os.Getenv("DOCRENDER_BLOB_DIR"),
		S3Bucket:    os.Getenv("DOCRENDER_S3_BUCKET"),
		S3Region:    os.Getenv("DOCRENDER_S3_REGION"),
		S3Endpoint:  os.Getenv("DOCRENDER_S3_ENDPOINT"),
		PublicURL:   os.Getenv("DOCRENDER_PUBLIC_URL"),
		OwnerHeader: os.Getenv("DOCRENDER_OWNER_HEADER"),
		LogLevel:    os.Getenv("DOCRENDER_LOG_LEVEL"),
		LogFormat:   os.Getenv("DOCRENDER_LOG_FORMAT"),
	}

	// Invalid numbers are ignored, not errors.
	if workers := os.Getenv("DOCRENDER_WORKERS"); workers != "" {
		if w, err := strconv.Atoi(workers); err == nil && w > 0 {
			cfg.Workers = w
		}
	}
	if maxAge := os.Getenv("DOCRENDER_GC_MAX_AGE"); maxAge != "" {
		if d, err := time.ParseDuration(maxAge); err == nil && d > 0 {
			cfg.GCMaxAge = d
		}
	}

	return cfg
}

// warnUnknownEnvVars logs warnings for unrecognized DOCRENDER_* variables.
// Helps catch typos like DOCRENDER_DATABASE_URL instead of DOCRENDER_DATABASE_DSN.
func warnUnknownEnvVars(w io.Writer) {
	for _, env := range os.Environ() {
		if strings.HasPrefix(env, "DOCRENDER_") {
			name := strings.SplitN(env, "=", 2)[0]
			if !knownEnvVars[name] {
				fmt.Fprintf(w, "warning: unknown environment variable %s (typo?)\n", name)
			}
		}
	}
}

// applyEnvConfig overrides config values with every env var that is set.
// CLI flags are applied afterwards by each command.
func applyEnvConfig(env *envConfig, cfg *config.Config) {
	// Tier 1
	if env.Addr != "" {
		cfg.Server.Addr = env.Addr
	}
	if env.DatabaseDSN != "" {
		cfg.Database.DSN = env.DatabaseDSN
	}

	// Tier 2
	if env.ArtifactDir != "" {
		cfg.Artifacts.Dir = env.ArtifactDir
	}
	if env.BlobDir != "" {
		cfg.Blob.LocalDir = env.BlobDir
	}
	if env.S3Bucket != "" {
		cfg.Blob.Bucket = env.S3Bucket
	}
	if env.S3Region != "" {
		cfg.Blob.Region = env.S3Region
	}
	if env.S3Endpoint != "" {
		cfg.Blob.Endpoint = env.S3Endpoint
	}

	// Tier 3
	if env.PublicURL != "" {
		cfg.Server.PublicURL = env.PublicURL
	}
	if env.OwnerHeader != "" {
		cfg.Server.OwnerHeader = env.OwnerHeader
	}
	if env.Workers > 0 {
		cfg.Render.Workers = env.Workers
	}
	if env.GCMaxAge > 0 {
		cfg.GC.MaxAge = env.GCMaxAge
	}
	if env.LogLevel != "" {
		cfg.Log.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Log.Format = env.LogFormat
	}
}
