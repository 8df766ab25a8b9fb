package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	docrender "github.com/alnah/go-docrender"
)

var _ docrender.TemplateStore = (*TemplateStore)(nil)

const templateColumns = `id, owner_id, name, description, source_path, created_at`

// TemplateStore implements docrender.TemplateStore.
type TemplateStore struct {
	q querier
}

// Find returns the template with id owned by ownerID.
func (s *TemplateStore) Find(ctx context.Context, id uuid.UUID, ownerID string) (*docrender.Template, error) {
	row := s.q.QueryRow(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE id = $1 AND owner_id = $2`,
		id, ownerID)

	t, err := scanTemplate(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, docrender.ErrTemplateNotFound
		}
		return nil, fmt.Errorf("finding template: %w", err)
	}
	return &t, nil
}

// FindByOwner returns the owner's templates, newest first.
func (s *TemplateStore) FindByOwner(ctx context.Context, ownerID string) ([]docrender.Template, error) {
	rows, err := s.q.Query(ctx,
		`SELECT `+templateColumns+` FROM templates WHERE owner_id = $1 ORDER BY created_at DESC, id`,
		ownerID)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (docrender.Template, error) {
		return scanTemplate(row)
	})
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	return out, nil
}

// Persist inserts t or updates its name and description.
// Owner, path and creation time never change.
func (s *TemplateStore) Persist(ctx context.Context, t *docrender.Template) error {
	_, err := s.q.Exec(ctx,
		`INSERT INTO templates (`+templateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (id) DO UPDATE
		 SET name = EXCLUDED.name, description = EXCLUDED.description`,
		t.ID, t.OwnerID, t.Name, t.Description, t.SourcePath, t.CreatedAt)
	if err != nil {
		return fmt.Errorf("persisting template: %w", err)
	}
	return nil
}

// Remove deletes t.
func (s *TemplateStore) Remove(ctx context.Context, t *docrender.Template) error {
	tag, err := s.q.Exec(ctx,
		`DELETE FROM templates WHERE id = $1 AND owner_id = $2`,
		t.ID, t.OwnerID)
	if err != nil {
		return fmt.Errorf("removing template: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return docrender.ErrTemplateNotFound
	}
	return nil
}

func scanTemplate(row pgx.Row) (docrender.Template, error) {
	var t docrender.Template
	err := row.Scan(&t.ID, &t.OwnerID, &t.Name, &t.Description, &t.SourcePath, &t.CreatedAt)
	return t, err
}
