package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	docrender "github.com/alnah/go-docrender"
)

var _ docrender.LogStore = (*LogStore)(nil)

const logColumns = `id, template_id, owner_id, duration_ms, status, source, created_at`

// LogStore implements docrender.LogStore.
type LogStore struct {
	q querier
}

// Append inserts one render log.
func (s *LogStore) Append(ctx context.Context, log *docrender.RenderLog) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO render_logs (`+logColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		log.ID, log.TemplateID, log.OwnerID, log.DurationMS,
		string(log.Status), string(log.Source), log.CreatedAt)
	if err != nil {
		return fmt.Errorf("appending render log: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's most recent logs.
func (s *LogStore) ListByOwner(ctx context.Context, ownerID string, limit int) ([]docrender.RenderLog, error) {
	return s.list(ctx,
		`SELECT `+logColumns+` FROM render_logs
		 WHERE owner_id = $1 ORDER BY created_at DESC, id LIMIT $2`,
		ownerID, normalizeLimit(limit))
}

// ListByTemplate returns the most recent logs of one template.
func (s *LogStore) ListByTemplate(ctx context.Context, templateID uuid.UUID, ownerID string, limit int) ([]docrender.RenderLog, error) {
	return s.list(ctx,
		`SELECT `+logColumns+` FROM render_logs
		 WHERE template_id = $1 AND owner_id = $2 ORDER BY created_at DESC, id LIMIT $3`,
		templateID, ownerID, normalizeLimit(limit))
}

func (s *LogStore) list(ctx context.Context, sql string, args ...any) ([]docrender.RenderLog, error) {
	rows, err := s.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("listing render logs: %w", err)
	}
	out, err := pgx.CollectRows(rows, scanLog)
	if err != nil {
		return nil, fmt.Errorf("listing render logs: %w", err)
	}
	return out, nil
}

func scanLog(row pgx.CollectableRow) (docrender.RenderLog, error) {
	var (
		l              docrender.RenderLog
		status, source string
	)
	err := row.Scan(&l.ID, &l.TemplateID, &l.OwnerID, &l.DurationMS, &status, &source, &l.CreatedAt)
	l.Status = docrender.RenderStatus(status)
	l.Source = docrender.RenderSource(source)
	return l, err
}

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > docrender.DefaultLogLimit {
		return docrender.DefaultLogLimit
	}
	return limit
}
