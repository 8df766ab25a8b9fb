package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	docrender "github.com/alnah/go-docrender"
	"github.com/alnah/go-docrender/internal/blob"
	"github.com/alnah/go-docrender/internal/config"
	"github.com/alnah/go-docrender/internal/fileutil"
	"github.com/alnah/go-docrender/internal/gc"
	"github.com/alnah/go-docrender/internal/httpapi"
	"github.com/alnah/go-docrender/internal/logging"
	"github.com/alnah/go-docrender/internal/memstore"
	"github.com/alnah/go-docrender/internal/metrics"
	"github.com/alnah/go-docrender/internal/postgres"
)

// Startup errors, mapped to exit codes.
var (
	ErrDatabase    = errors.New("database unavailable")
	ErrBlobStore   = errors.New("blob store unavailable")
	ErrArtifactDir = errors.New("artifact directory unusable")

	errS3 = errors.New("s3")
)

// runServe starts the HTTP service and blocks until ctx is cancelled.
func runServe(ctx context.Context, args []string, env *Environment) error {
	flags, err := parseServeFlags(args)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(flags.common, loadEnvConfig())
	if err != nil {
		return err
	}
	mergeServeFlags(flags, cfg)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
	}
	defer func() { _ = logger.Sync() }()

	app, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer app.close()

	if app.sweeper != nil {
		if err := app.sweeper.Start(); err != nil {
			return err
		}
		defer app.sweeper.Stop()
	}

	logger.Info("docrender starting",
		zap.String("version", Version),
		zap.String("addr", cfg.Server.Addr),
		zap.Int("workers", app.pool.Size()))
	return app.server.Run(ctx, cfg.Server.Addr, cfg.Server.ShutdownTimeout)
}

// mergeServeFlags applies explicitly set serve flags over cfg.
func mergeServeFlags(f *serveFlags, cfg *config.Config) {
	if f.addr != "" {
		cfg.Server.Addr = f.addr
	}
	if f.publicURL != "" {
		cfg.Server.PublicURL = f.publicURL
	}
	if f.workers > 0 {
		cfg.Render.Workers = f.workers
	}
	if f.migrate {
		cfg.Database.Migrate = true
	}
	if f.noGC {
		cfg.GC.Enabled = false
	}
}

// app holds the wired service and what must be released on exit.
type app struct {
	server  *httpapi.Server
	pool    *docrender.CompositorPool
	sweeper *gc.Scheduler
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// buildApp wires configuration into the render pipeline and HTTP server.
func buildApp(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*app, error) {
	a := &app{}
	collector := metrics.New()

	artifacts, err := docrender.NewArtifactStore(cfg.Artifacts.Dir,
		docrender.WithStoreLogger(logger.Named("artifacts")))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrArtifactDir, err)
	}

	blobs, err := openBlobStore(ctx, cfg.Blob, logger)
	if err != nil {
		return nil, err
	}

	var (
		records docrender.TemplateStore
		logs    docrender.LogStore
		checks  []httpapi.Option
	)
	if cfg.Database.DSN != "" {
		db, err := postgres.Open(ctx, cfg.Database.DSN, cfg.Database.MaxConns, logger.Named("postgres"))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
		}
		a.closers = append(a.closers, db.Close)
		if cfg.Database.Migrate {
			if err := db.Migrate(ctx); err != nil {
				a.close()
				return nil, fmt.Errorf("%w: %v", ErrDatabase, err)
			}
		}
		records, logs = db.Templates(), db.Logs()
		checks = append(checks, httpapi.WithHealthCheck("database", db.Ping))
	} else {
		logger.Warn("no database configured, templates and render logs are kept in memory")
		records, logs = memstore.NewTemplateStore(), memstore.NewLogStore()
	}

	templates := docrender.NewTemplateService(blobs, records,
		docrender.WithTemplateLogger(logger.Named("templates")))

	var composeOpts []docrender.CompositorOption
	composeOpts = append(composeOpts, docrender.WithCompositorLogger(logger.Named("compositor")))
	if cfg.Render.ComposeTimeout > 0 {
		composeOpts = append(composeOpts, docrender.WithComposeTimeout(cfg.Render.ComposeTimeout))
	}
	a.pool = docrender.NewCompositorPool(docrender.ResolvePoolSize(cfg.Render.Workers), composeOpts...)
	a.closers = append(a.closers, func() {
		if err := a.pool.Close(); err != nil {
			logger.Warn("closing browser pool", zap.Error(err))
		}
	})

	fetchOpts := []docrender.FetcherOption{docrender.WithFetcherLogger(logger.Named("fetcher"))}
	if cfg.Render.FetchTimeout > 0 {
		fetchOpts = append(fetchOpts, docrender.WithFetchTimeout(cfg.Render.FetchTimeout))
	}
	if cfg.Render.MaxFetchBytes > 0 {
		fetchOpts = append(fetchOpts, docrender.WithMaxDocumentSize(cfg.Render.MaxFetchBytes))
	}

	recorder := docrender.NewRecorder(logs,
		docrender.WithRenderObserver(collector),
		docrender.WithRecorderLogger(logger.Named("audit")))

	renderer := docrender.NewRenderer(
		templates,
		a.pool,
		docrender.NewRasterizer(artifacts, docrender.WithRasterizerLogger(logger.Named("rasterizer"))),
		artifacts,
		recorder,
		docrender.WithFetcher(docrender.NewFetcher(fetchOpts...)),
		docrender.WithDefaultPage(cfg.Render.Page.Settings()),
		docrender.WithRendererLogger(logger.Named("renderer")),
	)

	if cfg.GC.Enabled {
		a.sweeper, err = gc.New(artifacts, cfg.GC.Schedule, cfg.GC.MaxAge,
			gc.WithLogger(logger.Named("gc")),
			gc.WithObserver(collector))
		if err != nil {
			a.close()
			return nil, fmt.Errorf("%w: %v", config.ErrInvalidConfig, err)
		}
	}

	opts := []httpapi.Option{
		httpapi.WithLogger(logger.Named("http")),
		httpapi.WithOwnerHeader(cfg.Server.OwnerHeader),
		httpapi.WithPublicURL(cfg.Server.PublicURL),
		httpapi.WithMetrics(collector, collector.Handler()),
		httpapi.WithHealthCheck("artifacts", func(context.Context) error {
			return fileutil.DirWritable(artifacts.Root())
		}),
	}
	a.server = httpapi.New(renderer, templates, logs, append(opts, checks...)...)
	return a, nil
}

// openBlobStore returns S3 when a bucket is configured, else the local directory.
func openBlobStore(ctx context.Context, cfg config.BlobConfig, logger *zap.Logger) (docrender.BlobStore, error) {
	if cfg.Bucket != "" {
		store, err := blob.NewS3(ctx, blob.S3Config{
			Bucket:   cfg.Bucket,
			Region:   cfg.Region,
			Endpoint: cfg.Endpoint,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: %w: %v", ErrBlobStore, errS3, err)
		}
		logger.Info("template sources in s3", zap.String("bucket", cfg.Bucket))
		return store, nil
	}

	store, err := blob.NewFS(cfg.LocalDir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlobStore, err)
	}
	logger.Info("template sources on local disk", zap.String("dir", store.Root()))
	return store, nil
}
