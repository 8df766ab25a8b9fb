// Package httpapi exposes the render service over HTTP with gin.
//
// Owner identity comes from a trusted header set by the upstream gateway;
// this package performs no authentication of its own.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	docrender "github.com/alnah/go-docrender"
)

// DefaultOwnerHeader carries the owner id when none is configured.
const DefaultOwnerHeader = "X-Owner-ID"

// RenderService is the pipeline surface used by the handlers.
// *docrender.Renderer implements it.
type RenderService interface {
	RenderToDocument(ctx context.Context, templateID uuid.UUID, data *docrender.Map, ownerID string) ([]byte, error)
	RenderToImages(ctx context.Context, req docrender.ImageRequest) (*docrender.ImageBatch, error)
	FetchArtifact(filename string) (*docrender.Artifact, error)
}

// TemplateManager is the template CRUD surface used by the handlers.
// *docrender.TemplateService implements it.
type TemplateManager interface {
	Create(ctx context.Context, ownerID string, in docrender.TemplateInput) (*docrender.Template, error)
	Get(ctx context.Context, ownerID string, id uuid.UUID) (*docrender.Template, error)
	List(ctx context.Context, ownerID string) ([]docrender.Template, error)
	Load(ctx context.Context, ownerID string, id uuid.UUID) (*docrender.Template, string, error)
	Update(ctx context.Context, ownerID string, id uuid.UUID, upd docrender.TemplateUpdate) (*docrender.Template, error)
	Delete(ctx context.Context, ownerID string, id uuid.UUID) error
}

// Compile-time interface checks
var (
	_ RenderService   = (*docrender.Renderer)(nil)
	_ TemplateManager = (*docrender.TemplateService)(nil)
)

// RequestObserver records per-request metrics. *metrics.Collector implements it.
type RequestObserver interface {
	ObserveRequest(method, route string, code int, elapsed time.Duration)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Server routes HTTP requests to the render pipeline.
type Server struct {
	engine      *gin.Engine
	renderer    RenderService
	templates   TemplateManager
	logs        docrender.LogStore
	ownerHeader string
	publicURL   string
	observer    RequestObserver
	metrics     http.Handler
	checks      map[string]HealthCheck
	logger      *zap.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithOwnerHeader sets the header holding the owner id.
func WithOwnerHeader(name string) Option {
	return func(s *Server) {
		if name = strings.TrimSpace(name); name != "" {
			s.ownerHeader = name
		}
	}
}

// WithPublicURL fixes the base of returned image URLs. Without it the
// request's scheme and host are used.
func WithPublicURL(base string) Option {
	return func(s *Server) {
		s.publicURL = strings.TrimRight(base, "/")
	}
}

// WithMetrics records request metrics and serves handler at /metrics.
func WithMetrics(observer RequestObserver, handler http.Handler) Option {
	return func(s *Server) {
		s.observer = observer
		s.metrics = handler
	}
}

// WithHealthCheck adds a named check to /healthz.
func WithHealthCheck(name string, check HealthCheck) Option {
	return func(s *Server) {
		s.checks[name] = check
	}
}

// New builds the router.
func New(renderer RenderService, templates TemplateManager, logs docrender.LogStore, opts ...Option) *Server {
	s := &Server{
		renderer:    renderer,
		templates:   templates,
		logs:        logs,
		ownerHeader: DefaultOwnerHeader,
		checks:      make(map[string]HealthCheck),
		logger:      zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.engine = gin.New()
	s.engine.Use(s.recovery(), s.accessLog())
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.engine
	r.GET("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.GET("/metrics", gin.WrapH(s.metrics))
	}

	api := r.Group("/api")
	api.GET("/images/:filename", s.handleGetImage)
	api.POST("/pdf-to-images", s.handleConvertURL)

	owned := api.Group("", s.requireOwner)
	owned.POST("/templates", s.handleCreateTemplate)
	owned.GET("/templates", s.handleListTemplates)
	owned.GET("/templates/:id", s.handleGetTemplate)
	owned.PUT("/templates/:id", s.handleUpdateTemplate)
	owned.DELETE("/templates/:id", s.handleDeleteTemplate)
	owned.GET("/templates/:id/logs", s.handleTemplateLogs)
	owned.POST("/render/:id", s.handleRender)
	owned.POST("/render/:id/images", s.handleRenderImages)
	owned.GET("/logs", s.handleOwnerLogs)
}

// Handler returns the router for embedding or tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Run serves on addr until ctx is cancelled, then drains in-flight
// requests for at most shutdownTimeout.
func (s *Server) Run(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()
	s.logger.Info("http server listening", zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("http server shutting down", zap.Duration("timeout", shutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	results := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(c.Request.Context()); err != nil {
			status = http.StatusServiceUnavailable
			results[name] = err.Error()
			continue
		}
		results[name] = "ok"
	}

	state := "ok"
	if status != http.StatusOK {
		state = "degraded"
	}
	c.JSON(status, gin.H{"status": state, "checks": results})
}
