package main

import (
	"errors"
	"fmt"
	"io"
	"time"

	flag "github.com/spf13/pflag"

	"github.com/alnah/go-docrender/internal/config"
)

// ErrInvalidFlags is returned when command-line flags cannot be parsed.
var ErrInvalidFlags = errors.New("invalid flags")

// commonFlags holds flags shared across commands.
type commonFlags struct {
	config    string
	logLevel  string
	logFormat string
}

// serveFlags holds flags for the serve command.
type serveFlags struct {
	common    commonFlags
	addr      string
	publicURL string
	workers   int
	migrate   bool
	noGC      bool
}

// gcFlags holds flags for the gc command.
type gcFlags struct {
	common commonFlags
	dir    string
	maxAge time.Duration
}

// addCommonFlags adds common flags to a FlagSet.
func addCommonFlags(fs *flag.FlagSet, f *commonFlags) {
	fs.StringVarP(&f.config, "config", "c", "", "config file name or path")
	fs.StringVar(&f.logLevel, "log-level", "", "log level: debug, info, warn, error")
	fs.StringVar(&f.logFormat, "log-format", "", "log format: json, console")
}

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// parseServeFlags parses serve command flags.
func parseServeFlags(args []string) (*serveFlags, error) {
	f := &serveFlags{}
	fs := newFlagSet("serve")
	addCommonFlags(fs, &f.common)
	fs.StringVarP(&f.addr, "addr", "a", "", "listen address (e.g. :8080)")
	fs.StringVar(&f.publicURL, "public-url", "", "base URL of returned image links")
	fs.IntVarP(&f.workers, "workers", "w", 0, "browser pool size (0 = auto)")
	fs.BoolVar(&f.migrate, "migrate", false, "apply database migrations on startup")
	fs.BoolVar(&f.noGC, "no-gc", false, "disable scheduled artifact sweeps")

	if err := parse(fs, args); err != nil {
		return nil, err
	}
	return f, nil
}

// parseGCFlags parses gc command flags.
func parseGCFlags(args []string) (*gcFlags, error) {
	f := &gcFlags{}
	fs := newFlagSet("gc")
	addCommonFlags(fs, &f.common)
	fs.StringVarP(&f.dir, "dir", "d", "", "artifact directory")
	fs.DurationVar(&f.maxAge, "max-age", -1, "remove artifacts older than this (0 = all)")

	if err := parse(fs, args); err != nil {
		return nil, err
	}
	return f, nil
}

func parse(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrInvalidFlags, err)
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("%w: unexpected arguments %v", ErrInvalidFlags, fs.Args())
	}
	return nil
}

// loadConfig resolves configuration with priority:
// CLI flags > env vars > config file > defaults.
// Command-specific flags are applied by the caller before Validate.
func loadConfig(f commonFlags, env *envConfig) (*config.Config, error) {
	name := f.config
	if name == "" {
		name = env.ConfigPath
	}

	cfg := config.DefaultConfig()
	if name != "" {
		loaded, err := config.LoadConfig(name)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvConfig(env, cfg)

	if f.logLevel != "" {
		cfg.Log.Level = f.logLevel
	}
	if f.logFormat != "" {
		cfg.Log.Format = f.logFormat
	}
	return cfg, nil
}
