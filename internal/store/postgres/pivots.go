package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

// pivotTable maps a Relation onto its association table.
type pivotTable struct {
	name        string
	left, right string
	owner       string // column holding the owner flag, empty when the table has none
	kind        string // taggable_type discriminator for taggables
}

func tableOf(rel store.Relation) pivotTable {
	switch rel {
	case store.Membership:
		return pivotTable{name: "organization_user", left: "organization_id", right: "user_id"}
	case store.Sponsorship:
		return pivotTable{name: "opportunity_organization", left: "opportunity_id", right: "organization_id", owner: "is_opportunity_owner"}
	case store.RoleAssignment:
		return pivotTable{name: "role_user", left: "user_id", right: "role_id"}
	case store.OrganizationTag:
		return pivotTable{name: "taggables", left: "taggable_id", right: "tag_id", kind: string(models.TaggableOrganization)}
	default:
		return pivotTable{name: "taggables", left: "taggable_id", right: "tag_id", kind: string(models.TaggableOpportunity)}
	}
}

// columns returns the select list in scanPivot order, qualified by alias p.
func (t pivotTable) columns() string {
	owner := "FALSE"
	if t.owner != "" {
		owner = "p." + t.owner
	}
	return fmt.Sprintf("p.id, p.%s, p.%s, %s, p.created_at, p.created_by, p.updated_at, p.updated_by, p.deleted_at, p.deleted_by",
		t.left, t.right, owner)
}

// kindFilter narrows taggables to one owner type.
func (t pivotTable) kindFilter() string {
	if t.kind == "" {
		return ""
	}
	return fmt.Sprintf(" AND p.taggable_type = '%s'", t.kind)
}

func (t pivotTable) pair() string {
	return fmt.Sprintf("p.%s = $1 AND p.%s = $2", t.left, t.right) + t.kindFilter()
}

// upsert inserts the pair, or restores it in place when it was revoked.
// An active row yields no result.
func (t pivotTable) upsert(refreshCreation bool) string {
	cols := t.left + ", " + t.right
	vals := "$1, $2"
	conflict := t.left + ", " + t.right
	if t.kind != "" {
		cols += ", taggable_type"
		vals += fmt.Sprintf(", '%s'", t.kind)
		conflict += ", taggable_type"
	}
	if t.owner != "" {
		cols += ", " + t.owner
		vals += ", $4"
	}
	set := "deleted_at = NULL, deleted_by = NULL, updated_at = NOW(), updated_by = EXCLUDED.updated_by"
	if refreshCreation {
		set += ", created_at = NOW(), created_by = EXCLUDED.created_by"
	}
	return fmt.Sprintf(`INSERT INTO %s AS p (%s, created_by, updated_by) VALUES (%s, $3, $3)
		ON CONFLICT (%s) DO UPDATE SET %s WHERE p.deleted_at IS NOT NULL
		RETURNING %s, (p.xmax = 0) AS inserted`, t.name, cols, vals, conflict, set, t.columns())
}

func scanPivot(row pgx.Row, extra ...any) (*models.Pivot, error) {
	var p models.Pivot
	dest := append([]any{&p.ID, &p.LeftID, &p.RightID, &p.IsOwner}, auditDest(&p.Audit)...)
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, mapErr(err)
	}
	return &p, nil
}

func (s *Store) FindPivot(ctx context.Context, rel store.Relation, left, right uuid.UUID) (*models.Pivot, error) {
	t := tableOf(rel)
	q := fmt.Sprintf(`SELECT %s FROM %s p WHERE %s`, t.columns(), t.name, t.pair())
	return scanPivot(s.db.QueryRow(ctx, q, left, right))
}

func (s *Store) ListPivots(ctx context.Context, rel store.Relation, left uuid.UUID, includeRevoked bool) ([]models.Pivot, error) {
	t := tableOf(rel)
	q := fmt.Sprintf(`SELECT %s FROM %s p WHERE p.%s = $1%s`, t.columns(), t.name, t.left, t.kindFilter())
	if !includeRevoked {
		q += ` AND p.deleted_at IS NULL`
	}
	q += ` ORDER BY p.created_at, p.id`
	rows, err := s.db.Query(ctx, q, left)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Pivot
	for rows.Next() {
		p, err := scanPivot(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *p)
	}
	return list, rows.Err()
}

func (s *Store) AttachPivot(ctx context.Context, rel store.Relation, left, right uuid.UUID, opts store.AttachOptions) (*models.Pivot, store.AttachResult, error) {
	t := tableOf(rel)
	params := []any{left, right, nullable(opts.By)}
	if t.owner != "" {
		params = append(params, opts.IsOwner)
	}
	var inserted bool
	p, err := scanPivot(s.db.QueryRow(ctx, t.upsert(rel.RefreshesCreation()), params...), &inserted)
	switch {
	case errors.Is(err, store.ErrNotFound):
		p, err = s.FindPivot(ctx, rel, left, right)
		if err != nil {
			return nil, 0, fmt.Errorf("load active %s: %w", rel, err)
		}
		return p, store.AlreadyActive, nil
	case err != nil:
		return nil, 0, fmt.Errorf("attach %s: %w", rel, err)
	case inserted:
		return p, store.Inserted, nil
	default:
		return p, store.Restored, nil
	}
}

func (s *Store) RevokePivot(ctx context.Context, rel store.Relation, left, right, by uuid.UUID) (bool, error) {
	t := tableOf(rel)
	q := fmt.Sprintf(`UPDATE %s AS p SET deleted_at = NOW(), deleted_by = $3, updated_at = NOW(), updated_by = $3
		WHERE %s AND p.deleted_at IS NULL`, t.name, t.pair())
	tag, err := s.db.Exec(ctx, q, left, right, nullable(by))
	if err != nil {
		return false, fmt.Errorf("revoke %s: %w", rel, err)
	}
	return tag.RowsAffected() > 0, nil
}
