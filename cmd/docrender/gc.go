package main

import (
	"fmt"

	docrender "github.com/alnah/go-docrender"
	"github.com/alnah/go-docrender/internal/gc"
	"github.com/alnah/go-docrender/internal/logging"
)

// runGC performs a single artifact sweep and reports the count.
func runGC(args []string, env *Environment) error {
	flags, err := parseGCFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(flags.common, loadEnvConfig())
	if err != nil {
		return err
	}
	if flags.dir != "" {
		cfg.Artifacts.Dir = flags.dir
	}
	if flags.maxAge >= 0 {
		cfg.GC.MaxAge = flags.maxAge
	}
	// The one-shot sweep ignores the schedule.
	cfg.GC.Enabled = false
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	store, err := docrender.NewArtifactStore(cfg.Artifacts.Dir, docrender.WithStoreLogger(logger))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrArtifactDir, err)
	}
	sweeper, err := gc.New(store, "@hourly", cfg.GC.MaxAge, gc.WithLogger(logger))
	if err != nil {
		return err
	}

	removed, err := sweeper.RunOnce()
	fmt.Fprintf(env.Stdout, "removed %d artifact(s) older than %s from %s\n",
		removed, cfg.GC.MaxAge, store.Root())
	return err
}
