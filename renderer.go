package docrender

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Composer renders merged HTML into PDF bytes.
// Both *Compositor and *CompositorPool implement it.
type Composer interface {
	Compose(ctx context.Context, html string, page *PageSettings) ([]byte, error)
}

// documentFetcher downloads a remote PDF.
type documentFetcher interface {
	Fetch(ctx context.Context, rawURL string) ([]byte, error)
}

// Compile-time interface checks
var (
	_ Composer        = (*CompositorPool)(nil)
	_ documentFetcher = (*Fetcher)(nil)
)

// ImageRequest selects the document to rasterize: a registered template
// merged with Data, or a remote PDF at URL. Exactly one must be set.
type ImageRequest struct {
	TemplateID uuid.NullUUID
	URL        string
	Data       *Map
	DPI        int           // 0 means DefaultDPI
	Page       *PageSettings // template flow only; nil uses the renderer default
	OwnerID    string        // required for templates, optional for URLs
}

// ImageBatch is the ordered result of one rasterization.
type ImageBatch struct {
	Token     string
	Filenames []string
}

// Renderer orchestrates the pipeline stages. Any stage failure aborts the
// remaining ones and is returned with its stage-specific type.
type Renderer struct {
	templates  *TemplateService
	merger     *Merger
	composer   Composer
	fetcher    documentFetcher
	rasterizer *Rasterizer
	artifacts  *ArtifactStore
	recorder   *Recorder
	page       *PageSettings
	logger     *zap.Logger
}

// RendererOption configures a Renderer.
type RendererOption func(*Renderer)

// WithFetcher replaces the default remote document fetcher.
func WithFetcher(f *Fetcher) RendererOption {
	return func(r *Renderer) {
		if f != nil {
			r.fetcher = f
		}
	}
}

// WithDefaultPage sets the page settings used when a request carries none.
func WithDefaultPage(p *PageSettings) RendererOption {
	return func(r *Renderer) {
		r.page = p
	}
}

// WithRendererLogger sets the logger.
func WithRendererLogger(l *zap.Logger) RendererOption {
	return func(r *Renderer) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRenderer wires the pipeline stages together.
func NewRenderer(
	templates *TemplateService,
	composer Composer,
	rasterizer *Rasterizer,
	artifacts *ArtifactStore,
	recorder *Recorder,
	opts ...RendererOption,
) *Renderer {
	r := &Renderer{
		templates:  templates,
		merger:     NewMerger(),
		composer:   composer,
		fetcher:    NewFetcher(),
		rasterizer: rasterizer,
		artifacts:  artifacts,
		recorder:   recorder,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RenderToDocument merges a template with data and composes a PDF.
// Every invocation with a valid owner is audited, failures included.
func (r *Renderer) RenderToDocument(ctx context.Context, templateID uuid.UUID, data *Map, ownerID string) ([]byte, error) {
	if err := ValidateOwner(ownerID); err != nil {
		return nil, err
	}

	var pdf []byte
	err := r.recorder.Record(ctx, templateEntry(templateID, ownerID), func(ctx context.Context) error {
		var err error
		pdf, err = r.composeTemplate(ctx, templateID, data, ownerID, r.page)
		return err
	})
	if err != nil {
		r.logFailure("render to document failed", err, zap.String("template_id", templateID.String()))
		return nil, err
	}
	return pdf, nil
}

// RenderToImages rasterizes a template render or a remote PDF into per-page
// PNG artifacts. Template renders are always audited; URL renders are
// audited with no template id when an owner is known.
func (r *Renderer) RenderToImages(ctx context.Context, req ImageRequest) (*ImageBatch, error) {
	hasTemplate := req.TemplateID.Valid
	hasURL := strings.TrimSpace(req.URL) != ""
	if hasTemplate == hasURL {
		return nil, ErrInvalidImageRequest
	}
	if err := ValidateDPI(req.DPI); err != nil {
		return nil, err
	}
	if err := req.Page.Validate(); err != nil {
		return nil, err
	}

	var names []string
	var err error
	if hasTemplate {
		names, err = r.templateImages(ctx, req)
	} else {
		names, err = r.urlImages(ctx, req)
	}
	if err != nil {
		r.logFailure("render to images failed", err,
			zap.Bool("template_flow", hasTemplate), zap.String("url", req.URL))
		return nil, err
	}
	return newImageBatch(names), nil
}

// FetchArtifact returns one stored page image.
func (r *Renderer) FetchArtifact(filename string) (*Artifact, error) {
	return r.artifacts.Open(filename)
}

func (r *Renderer) templateImages(ctx context.Context, req ImageRequest) ([]string, error) {
	if err := ValidateOwner(req.OwnerID); err != nil {
		return nil, err
	}
	page := req.Page
	if page == nil {
		page = r.page
	}

	var names []string
	entry := templateEntry(req.TemplateID.UUID, req.OwnerID)
	err := r.recorder.Record(ctx, entry, func(ctx context.Context) error {
		pdf, err := r.composeTemplate(ctx, req.TemplateID.UUID, req.Data, req.OwnerID, page)
		if err != nil {
			return err
		}
		names, err = r.rasterizer.Rasterize(ctx, pdf, req.DPI)
		return err
	})
	return names, err
}

func (r *Renderer) urlImages(ctx context.Context, req ImageRequest) ([]string, error) {
	run := func(ctx context.Context) ([]string, error) {
		pdf, err := r.fetcher.Fetch(ctx, req.URL)
		if err != nil {
			return nil, err
		}
		return r.rasterizer.Rasterize(ctx, pdf, req.DPI)
	}

	if req.OwnerID == "" {
		return run(ctx)
	}
	if err := ValidateOwner(req.OwnerID); err != nil {
		return nil, err
	}

	var names []string
	entry := AuditEntry{OwnerID: req.OwnerID, Source: SourceURL}
	err := r.recorder.Record(ctx, entry, func(ctx context.Context) error {
		var err error
		names, err = run(ctx)
		return err
	})
	return names, err
}

// composeTemplate runs LoadTemplate, Merge and Compose.
func (r *Renderer) composeTemplate(ctx context.Context, id uuid.UUID, data *Map, ownerID string, page *PageSettings) ([]byte, error) {
	_, src, err := r.templates.Load(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}
	html, err := r.merger.Merge(src, data)
	if err != nil {
		return nil, err
	}
	return r.composer.Compose(ctx, html, page)
}

func (r *Renderer) logFailure(msg string, err error, fields ...zap.Field) {
	fields = append(fields,
		zap.String("category", Classify(err).String()),
		zap.Error(err))
	r.logger.Warn(msg, fields...)
}

func templateEntry(id uuid.UUID, ownerID string) AuditEntry {
	return AuditEntry{
		TemplateID: uuid.NullUUID{UUID: id, Valid: true},
		OwnerID:    ownerID,
		Source:     SourceTemplate,
	}
}

func newImageBatch(names []string) *ImageBatch {
	b := &ImageBatch{Filenames: names}
	if len(names) > 0 {
		b.Token, _, _ = strings.Cut(names[0], "_")
	}
	return b
}
