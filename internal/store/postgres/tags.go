package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

const tagCols = "t.id, t.name, t.created_at, t.created_by, t.updated_at, t.updated_by, t.deleted_at, t.deleted_by"

func scanTag(row pgx.Row) (*models.Tag, error) {
	var t models.Tag
	dest := append([]any{&t.ID, &t.Name}, auditDest(&t.Audit)...)
	if err := row.Scan(dest...); err != nil {
		return nil, mapErr(err)
	}
	return &t, nil
}

func (s *Store) FindOrCreateTag(ctx context.Context, name string, by uuid.UUID) (*models.Tag, error) {
	const q = `INSERT INTO tags (name, created_by, updated_by) VALUES ($1, $2, $2) ON CONFLICT (name) DO NOTHING`
	if _, err := s.db.Exec(ctx, q, name, nullable(by)); err != nil {
		return nil, fmt.Errorf("insert tag: %w", err)
	}
	return s.GetTagByName(ctx, name)
}

func (s *Store) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	const q = `SELECT ` + tagCols + ` FROM tags t WHERE t.name = $1`
	return scanTag(s.db.QueryRow(ctx, q, name))
}

func (s *Store) ListTags(ctx context.Context, rel store.Relation, ownerID uuid.UUID) ([]models.Tag, error) {
	pt := tableOf(rel)
	q := `SELECT ` + tagCols + ` FROM tags t
		JOIN taggables p ON p.tag_id = t.id
		WHERE p.taggable_id = $1 AND p.deleted_at IS NULL` + pt.kindFilter() + `
		ORDER BY t.name`
	rows, err := s.db.Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Tag
	for rows.Next() {
		t, err := scanTag(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *t)
	}
	return list, rows.Err()
}
