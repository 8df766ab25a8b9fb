// Package memstore keeps templates and render logs in process memory.
// Records are lost on exit; use it for local runs and tests.
package memstore

import (
	"context"
	"slices"
	"sync"

	"github.com/google/uuid"

	docrender "github.com/alnah/go-docrender"
)

// Compile-time interface checks
var (
	_ docrender.TemplateStore = (*TemplateStore)(nil)
	_ docrender.LogStore      = (*LogStore)(nil)
)

// TemplateStore is a concurrency-safe docrender.TemplateStore.
type TemplateStore struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]docrender.Template
}

// NewTemplateStore creates an empty store.
func NewTemplateStore() *TemplateStore {
	return &TemplateStore{byID: make(map[uuid.UUID]docrender.Template)}
}

// Find returns the template when it exists and belongs to ownerID.
func (s *TemplateStore) Find(_ context.Context, id uuid.UUID, ownerID string) (*docrender.Template, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.byID[id]
	if !ok || t.OwnerID != ownerID {
		return nil, docrender.ErrTemplateNotFound
	}
	return &t, nil
}

// FindByOwner returns the owner's templates, newest first.
func (s *TemplateStore) FindByOwner(_ context.Context, ownerID string) ([]docrender.Template, error) {
	s.mu.RLock()
	out := make([]docrender.Template, 0)
	for _, t := range s.byID {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b docrender.Template) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return slices.Compare(a.ID[:], b.ID[:])
	})
	return out, nil
}

// Persist inserts or replaces the template.
func (s *TemplateStore) Persist(_ context.Context, t *docrender.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.byID[t.ID]; ok {
		// Identity and creation time never change on update.
		t.OwnerID, t.SourcePath, t.CreatedAt = prev.OwnerID, prev.SourcePath, prev.CreatedAt
	}
	s.byID[t.ID] = *t
	return nil
}

// Remove deletes the template.
func (s *TemplateStore) Remove(_ context.Context, t *docrender.Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, ok := s.byID[t.ID]
	if !ok || prev.OwnerID != t.OwnerID {
		return docrender.ErrTemplateNotFound
	}
	delete(s.byID, t.ID)
	return nil
}

// LogStore is an append-only docrender.LogStore.
type LogStore struct {
	mu   sync.RWMutex
	logs []docrender.RenderLog
}

// NewLogStore creates an empty log store.
func NewLogStore() *LogStore {
	return &LogStore{}
}

// Append adds one render log.
func (s *LogStore) Append(_ context.Context, log *docrender.RenderLog) error {
	s.mu.Lock()
	s.logs = append(s.logs, *log)
	s.mu.Unlock()
	return nil
}

// ListByOwner returns the owner's most recent logs.
func (s *LogStore) ListByOwner(_ context.Context, ownerID string, limit int) ([]docrender.RenderLog, error) {
	return s.list(limit, func(l *docrender.RenderLog) bool {
		return l.OwnerID == ownerID
	}), nil
}

// ListByTemplate returns the most recent logs of one template.
func (s *LogStore) ListByTemplate(_ context.Context, templateID uuid.UUID, ownerID string, limit int) ([]docrender.RenderLog, error) {
	return s.list(limit, func(l *docrender.RenderLog) bool {
		return l.OwnerID == ownerID && l.TemplateID.Valid && l.TemplateID.UUID == templateID
	}), nil
}

// list walks newest to oldest; appends arrive in time order.
func (s *LogStore) list(limit int, match func(*docrender.RenderLog) bool) []docrender.RenderLog {
	if limit <= 0 || limit > docrender.DefaultLogLimit {
		limit = docrender.DefaultLogLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]docrender.RenderLog, 0)
	for i := len(s.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if match(&s.logs[i]) {
			out = append(out, s.logs[i])
		}
	}
	return out
}
