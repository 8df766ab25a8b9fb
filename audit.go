package docrender

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrAuditAppend is returned when a render succeeded but its log could not be written.
var ErrAuditAppend = errors.New("failed to record render log")

// DefaultLogLimit caps render log listings when no limit is given.
const DefaultLogLimit = 100

// RenderStatus is the outcome of one render invocation.
type RenderStatus string

const (
	StatusSuccess RenderStatus = "success"
	StatusError   RenderStatus = "error"
)

// RenderSource tells which flow produced a render log.
type RenderSource string

const (
	SourceTemplate RenderSource = "template"
	SourceURL      RenderSource = "url"
)

// RenderLog is the audit record of one render invocation.
type RenderLog struct {
	ID         uuid.UUID     `json:"id"`
	TemplateID uuid.NullUUID `json:"template_id"`
	OwnerID    string        `json:"owner_id"`
	DurationMS int64         `json:"duration_ms"`
	Status     RenderStatus  `json:"status"`
	Source     RenderSource  `json:"source"`
	CreatedAt  time.Time     `json:"created_at"`
}

// LogStore persists render logs. Each Append is one atomic write.
type LogStore interface {
	Append(ctx context.Context, log *RenderLog) error
	ListByOwner(ctx context.Context, ownerID string, limit int) ([]RenderLog, error)
	ListByTemplate(ctx context.Context, templateID uuid.UUID, ownerID string, limit int) ([]RenderLog, error)
}

// RenderObserver receives every recorded render, e.g. for metrics.
type RenderObserver interface {
	ObserveRender(source RenderSource, status RenderStatus, elapsed time.Duration)
}

// AuditEntry identifies what a recorded render belongs to.
type AuditEntry struct {
	TemplateID uuid.NullUUID
	OwnerID    string
	Source     RenderSource
}

// Recorder brackets render operations and writes exactly one RenderLog each.
type Recorder struct {
	logs      LogStore
	observers []RenderObserver
	now       func() time.Time
	logger    *zap.Logger
}

// RecorderOption configures a Recorder.
type RecorderOption func(*Recorder)

// WithRecorderClock replaces time.Now for CreatedAt timestamps.
// Durations always come from the monotonic clock.
func WithRecorderClock(now func() time.Time) RecorderOption {
	return func(r *Recorder) {
		if now != nil {
			r.now = now
		}
	}
}

// WithRenderObserver adds an observer notified after each append.
func WithRenderObserver(o RenderObserver) RecorderOption {
	return func(r *Recorder) {
		if o != nil {
			r.observers = append(r.observers, o)
		}
	}
}

// WithRecorderLogger sets the logger.
func WithRecorderLogger(l *zap.Logger) RecorderOption {
	return func(r *Recorder) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRecorder creates a Recorder appending to logs.
func NewRecorder(logs LogStore, opts ...RecorderOption) *Recorder {
	r := &Recorder{
		logs:   logs,
		now:    time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record runs fn and appends one RenderLog whatever the outcome, panics
// included. fn's error is returned unchanged. An append failure is logged and
// only returned when fn succeeded.
func (r *Recorder) Record(ctx context.Context, entry AuditEntry, fn func(context.Context) error) (err error) {
	start := time.Now()

	defer func() {
		p := recover()

		status := StatusSuccess
		if err != nil || p != nil {
			status = StatusError
		}
		elapsed := max(time.Since(start), 0)

		rec := &RenderLog{
			ID:         uuid.New(),
			TemplateID: entry.TemplateID,
			OwnerID:    entry.OwnerID,
			DurationMS: elapsed.Milliseconds(),
			Status:     status,
			Source:     entry.Source,
			CreatedAt:  r.now().UTC(),
		}

		// Appended even when ctx is already cancelled.
		if appendErr := r.logs.Append(context.WithoutCancel(ctx), rec); appendErr != nil {
			r.logger.Error("render log append failed",
				zap.Error(appendErr),
				zap.String("owner", entry.OwnerID),
				zap.String("status", string(status)))
			if err == nil && p == nil {
				err = fmt.Errorf("%w: %v", ErrAuditAppend, appendErr)
			}
		}

		for _, o := range r.observers {
			o.ObserveRender(entry.Source, status, elapsed)
		}

		if p != nil {
			panic(p)
		}
	}()

	return fn(ctx)
}
