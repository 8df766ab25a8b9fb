package docrender

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/google/uuid"
)

var errInjected = errors.New("injected failure")

// memBlobs implements BlobStore in memory with per-method failure injection.
type memBlobs struct {
	mu      sync.Mutex
	data    map[string][]byte
	getErr  error
	putErr  error
	delErr  error
	deleted []string
}

func newMemBlobs() *memBlobs {
	return &memBlobs{data: make(map[string][]byte)}
}

func (b *memBlobs) Get(_ context.Context, key string) ([]byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	d, ok := b.data[key]
	if !ok {
		return nil, ErrBlobNotFound
	}
	return append([]byte(nil), d...), nil
}

func (b *memBlobs) Put(_ context.Context, key string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.putErr != nil {
		return b.putErr
	}
	b.data[key] = append([]byte(nil), data...)
	return nil
}

func (b *memBlobs) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, key)
	if b.delErr != nil {
		return b.delErr
	}
	delete(b.data, key)
	return nil
}

func (b *memBlobs) has(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.data[key]
	return ok
}

// memTemplates implements TemplateStore in memory.
type memTemplates struct {
	mu         sync.Mutex
	byID       map[uuid.UUID]Template
	persistErr error
	removeErr  error
}

func newMemTemplates() *memTemplates {
	return &memTemplates{byID: make(map[uuid.UUID]Template)}
}

func (s *memTemplates) Find(_ context.Context, id uuid.UUID, ownerID string) (*Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.byID[id]
	if !ok || t.OwnerID != ownerID {
		return nil, ErrTemplateNotFound
	}
	return &t, nil
}

func (s *memTemplates) FindByOwner(_ context.Context, ownerID string) ([]Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Template
	for _, t := range s.byID {
		if t.OwnerID == ownerID {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *memTemplates) Persist(_ context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.persistErr != nil {
		return s.persistErr
	}
	s.byID[t.ID] = *t
	return nil
}

func (s *memTemplates) Remove(_ context.Context, t *Template) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeErr != nil {
		return s.removeErr
	}
	delete(s.byID, t.ID)
	return nil
}

func (s *memTemplates) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byID)
}

// memLogs implements LogStore in memory.
type memLogs struct {
	mu        sync.Mutex
	logs      []RenderLog
	appendErr error
	ctxErrs   []error
}

func (l *memLogs) Append(ctx context.Context, log *RenderLog) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ctxErrs = append(l.ctxErrs, ctx.Err())
	if l.appendErr != nil {
		return l.appendErr
	}
	l.logs = append(l.logs, *log)
	return nil
}

func (l *memLogs) ListByOwner(_ context.Context, ownerID string, limit int) ([]RenderLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []RenderLog
	for i := len(l.logs) - 1; i >= 0 && len(out) < limit; i-- {
		if l.logs[i].OwnerID == ownerID {
			out = append(out, l.logs[i])
		}
	}
	return out, nil
}

func (l *memLogs) ListByTemplate(_ context.Context, templateID uuid.UUID, ownerID string, limit int) ([]RenderLog, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []RenderLog
	for i := len(l.logs) - 1; i >= 0 && len(out) < limit; i-- {
		lg := l.logs[i]
		if lg.OwnerID == ownerID && lg.TemplateID.Valid && lg.TemplateID.UUID == templateID {
			out = append(out, lg)
		}
	}
	return out, nil
}

func (l *memLogs) all() []RenderLog {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]RenderLog(nil), l.logs...)
}

var (
	_ BlobStore     = (*memBlobs)(nil)
	_ TemplateStore = (*memTemplates)(nil)
	_ LogStore      = (*memLogs)(nil)
)
