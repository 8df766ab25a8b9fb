package docrender

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Template is a registered HTML document template. Its source lives in the
// blob store under SourcePath, which embeds the template id and is never reused.
type Template struct {
	ID          uuid.UUID `json:"id"`
	OwnerID     string    `json:"owner_id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	SourcePath  string    `json:"source_path"`
	CreatedAt   time.Time `json:"created_at"`
}

// BlobStore is a byte store keyed by path. Get reports ErrBlobNotFound for
// missing keys.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// TemplateStore persists template records. Find reports ErrTemplateNotFound
// when no template with that id belongs to the owner.
type TemplateStore interface {
	Find(ctx context.Context, id uuid.UUID, ownerID string) (*Template, error)
	FindByOwner(ctx context.Context, ownerID string) ([]Template, error)
	Persist(ctx context.Context, t *Template) error
	Remove(ctx context.Context, t *Template) error
}

// TemplateInput holds the fields of a new template.
type TemplateInput struct {
	Name        string
	Description string
	Source      string
}

// TemplateUpdate holds optional replacements; nil fields are kept.
// An empty Source is ignored.
type TemplateUpdate struct {
	Name        *string
	Description *string
	Source      *string
}

// TemplateService registers and manages templates: blob first, then record.
type TemplateService struct {
	blobs   BlobStore
	records TemplateStore
	merger  *Merger
	now     func() time.Time
	newID   func() uuid.UUID
	logger  *zap.Logger
}

// TemplateOption configures a TemplateService.
type TemplateOption func(*TemplateService)

// WithTemplateClock replaces time.Now for CreatedAt.
func WithTemplateClock(now func() time.Time) TemplateOption {
	return func(s *TemplateService) {
		if now != nil {
			s.now = now
		}
	}
}

// WithTemplateLogger sets the logger.
func WithTemplateLogger(l *zap.Logger) TemplateOption {
	return func(s *TemplateService) {
		if l != nil {
			s.logger = l
		}
	}
}

// withIDGenerator replaces uuid.New (tests).
func withIDGenerator(fn func() uuid.UUID) TemplateOption {
	return func(s *TemplateService) {
		s.newID = fn
	}
}

// NewTemplateService creates a TemplateService.
func NewTemplateService(blobs BlobStore, records TemplateStore, opts ...TemplateOption) *TemplateService {
	s := &TemplateService{
		blobs:   blobs,
		records: records,
		merger:  NewMerger(),
		now:     time.Now,
		newID:   uuid.New,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SourcePath returns the blob key of a template's HTML source.
func SourcePath(ownerID string, id uuid.UUID) string {
	return "templates/" + ownerID + "/" + id.String() + ".html"
}

// ValidateOwner rejects owner ids that are empty or could alter a blob key.
func ValidateOwner(ownerID string) error {
	if strings.TrimSpace(ownerID) == "" {
		return ErrEmptyOwner
	}
	if ownerID == "." || ownerID == ".." || strings.ContainsAny(ownerID, "/\\\x00") {
		return fmt.Errorf("%w: %q", ErrInvalidOwner, ownerID)
	}
	return nil
}

// Create validates the source, uploads it, then persists the record.
// A failed persist removes the uploaded blob on a best-effort basis.
func (s *TemplateService) Create(ctx context.Context, ownerID string, in TemplateInput) (*Template, error) {
	if err := ValidateOwner(ownerID); err != nil {
		return nil, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, ErrEmptyTemplateName
	}
	if strings.TrimSpace(in.Source) == "" {
		return nil, ErrEmptyTemplateSource
	}
	if _, err := s.merger.Parse(in.Source); err != nil {
		return nil, err
	}

	id := s.newID()
	t := &Template{
		ID:          id,
		OwnerID:     ownerID,
		Name:        name,
		Description: in.Description,
		SourcePath:  SourcePath(ownerID, id),
		CreatedAt:   s.now().UTC(),
	}

	if err := s.blobs.Put(ctx, t.SourcePath, []byte(in.Source)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBlobUpload, err)
	}
	if err := s.records.Persist(ctx, t); err != nil {
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), t.SourcePath); delErr != nil {
			s.logger.Warn("orphaned template source",
				zap.String("path", t.SourcePath), zap.Error(delErr))
		}
		return nil, fmt.Errorf("persisting template: %w", err)
	}

	s.logger.Info("template created",
		zap.String("template_id", id.String()), zap.String("owner", ownerID))
	return t, nil
}

// Get returns one template owned by ownerID.
func (s *TemplateService) Get(ctx context.Context, ownerID string, id uuid.UUID) (*Template, error) {
	if err := ValidateOwner(ownerID); err != nil {
		return nil, err
	}
	return s.records.Find(ctx, id, ownerID)
}

// List returns every template owned by ownerID.
func (s *TemplateService) List(ctx context.Context, ownerID string) ([]Template, error) {
	if err := ValidateOwner(ownerID); err != nil {
		return nil, err
	}
	return s.records.FindByOwner(ctx, ownerID)
}

// Load returns a template and its HTML source. A missing blob for an
// existing record is a server fault, not a not-found.
func (s *TemplateService) Load(ctx context.Context, ownerID string, id uuid.UUID) (*Template, string, error) {
	t, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, "", err
	}
	src, err := s.blobs.Get(ctx, t.SourcePath)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %s: %v", ErrBlobDownload, t.SourcePath, err)
	}
	return t, string(src), nil
}

// Update applies the non-nil fields of upd. A new source is validated and
// written in place at the existing path.
func (s *TemplateService) Update(ctx context.Context, ownerID string, id uuid.UUID, upd TemplateUpdate) (*Template, error) {
	t, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return nil, err
	}

	if upd.Name != nil {
		name := strings.TrimSpace(*upd.Name)
		if name == "" {
			return nil, ErrEmptyTemplateName
		}
		t.Name = name
	}
	if upd.Description != nil {
		t.Description = *upd.Description
	}
	if upd.Source != nil && strings.TrimSpace(*upd.Source) != "" {
		if _, err := s.merger.Parse(*upd.Source); err != nil {
			return nil, err
		}
		if err := s.blobs.Put(ctx, t.SourcePath, []byte(*upd.Source)); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrBlobUpload, err)
		}
	}

	if err := s.records.Persist(ctx, t); err != nil {
		return nil, fmt.Errorf("persisting template: %w", err)
	}
	return t, nil
}

// Delete removes the source blob, then the record. A blob failure is logged
// and does not keep the record alive.
func (s *TemplateService) Delete(ctx context.Context, ownerID string, id uuid.UUID) error {
	t, err := s.Get(ctx, ownerID, id)
	if err != nil {
		return err
	}

	if err := s.blobs.Delete(ctx, t.SourcePath); err != nil {
		s.logger.Warn("template source not deleted",
			zap.String("template_id", id.String()),
			zap.String("path", t.SourcePath),
			zap.Error(err))
	}
	if err := s.records.Remove(ctx, t); err != nil {
		return fmt.Errorf("removing template: %w", err)
	}

	s.logger.Info("template deleted",
		zap.String("template_id", id.String()), zap.String("owner", ownerID))
	return nil
}
