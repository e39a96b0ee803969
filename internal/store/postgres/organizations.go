package postgres

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

const orgCols = "id, name, description, " + auditCols

// liveMembership matches an active membership in the organization aliased g; %s is the user parameter.
const liveMembership = `EXISTS (SELECT 1 FROM organization_user ou
	WHERE ou.organization_id = g.id AND ou.user_id = %s AND ou.deleted_at IS NULL)`

func scanOrganization(row pgx.Row) (*models.Organization, error) {
	var o models.Organization
	dest := append([]any{&o.ID, &o.Name, &o.Description}, auditDest(&o.Audit)...)
	if err := row.Scan(dest...); err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}

func (s *Store) CreateOrganization(ctx context.Context, o *models.Organization) error {
	const q = `INSERT INTO organizations (name, description, created_by, updated_by)
		VALUES ($1, $2, $3, $3)
		RETURNING id, created_at, updated_at, updated_by`
	err := s.db.QueryRow(ctx, q, o.Name, o.Description, o.CreatedBy).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt, &o.UpdatedBy)
	return mapErr(err)
}

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const q = `SELECT ` + orgCols + ` FROM organizations WHERE id = $1 AND deleted_at IS NULL`
	return scanOrganization(s.db.QueryRow(ctx, q, id))
}

func (s *Store) GetOrganizationWithTrashed(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	const q = `SELECT ` + orgCols + ` FROM organizations WHERE id = $1`
	return scanOrganization(s.db.QueryRow(ctx, q, id))
}

func (s *Store) ListOrganizations(ctx context.Context, q store.OrganizationQuery) ([]models.Organization, error) {
	var a args
	sql := `SELECT ` + orgCols + ` FROM organizations g WHERE g.deleted_at IS NULL`
	if q.Search != "" {
		sql += ` AND g.name ILIKE '%' || ` + a.add(q.Search) + ` || '%'`
	}
	if !q.Visibility.All {
		sql += ` AND ` + fmt.Sprintf(liveMembership, a.add(q.Visibility.MemberID))
	}
	sql += ` ORDER BY g.name, g.id`
	if q.Limit > 0 {
		sql += ` LIMIT ` + a.add(q.Limit)
	}
	rows, err := s.db.Query(ctx, sql, a...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.Organization
	for rows.Next() {
		o, err := scanOrganization(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, *o)
	}
	return list, rows.Err()
}

func (s *Store) UpdateOrganization(ctx context.Context, o *models.Organization) error {
	const q = `UPDATE organizations SET name = $2, description = $3, updated_at = NOW(), updated_by = $4
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING created_at, created_by, updated_at`
	err := s.db.QueryRow(ctx, q, o.ID, o.Name, o.Description, o.UpdatedBy).
		Scan(&o.CreatedAt, &o.CreatedBy, &o.UpdatedAt)
	return mapErr(err)
}

func (s *Store) DeleteOrganization(ctx context.Context, id, by uuid.UUID) error {
	const q = `UPDATE organizations SET deleted_at = NOW(), deleted_by = $2, updated_at = NOW(), updated_by = $2
		WHERE id = $1 AND deleted_at IS NULL`
	return s.execOne(ctx, q, id, nullable(by))
}

// RestoreOrganization clears the delete marker; restoring a live row is a no-op.
func (s *Store) RestoreOrganization(ctx context.Context, id, by uuid.UUID) error {
	const q = `UPDATE organizations SET
		updated_at = CASE WHEN deleted_at IS NULL THEN updated_at ELSE NOW() END,
		updated_by = CASE WHEN deleted_at IS NULL THEN updated_by ELSE $2 END,
		deleted_at = NULL, deleted_by = NULL
		WHERE id = $1`
	return s.execOne(ctx, q, id, nullable(by))
}

func (s *Store) MemberOrganizationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT g.id FROM organizations g
		JOIN organization_user ou ON ou.organization_id = g.id
		WHERE ou.user_id = $1 AND ou.deleted_at IS NULL AND g.deleted_at IS NULL
		ORDER BY g.id::text`
	return s.queryIDs(ctx, q, userID)
}

func (s *Store) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	const q = `SELECT u.id, u.first_name, u.last_name, u.email, u.password,
		u.created_at, u.created_by, u.updated_at, u.updated_by, u.deleted_at, u.deleted_by
		FROM users u
		JOIN organization_user ou ON ou.user_id = u.id
		JOIN organizations g ON g.id = ou.organization_id
		WHERE ou.organization_id = $1 AND ou.deleted_at IS NULL
			AND g.deleted_at IS NULL AND u.deleted_at IS NULL
		ORDER BY u.last_name, u.first_name, u.email`
	return s.queryUsers(ctx, q, orgID)
}

func (s *Store) ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]models.OrganizationSummary, error) {
	const q = `SELECT g.id, g.name, FALSE FROM organizations g
		JOIN organization_user ou ON ou.organization_id = g.id
		WHERE ou.user_id = $1 AND ou.deleted_at IS NULL AND g.deleted_at IS NULL
		ORDER BY g.name, g.id`
	return s.querySummaries(ctx, q, userID)
}

func (s *Store) queryIDs(ctx context.Context, q string, args ...any) ([]uuid.UUID, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) querySummaries(ctx context.Context, q string, args ...any) ([]models.OrganizationSummary, error) {
	rows, err := s.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []models.OrganizationSummary
	for rows.Next() {
		var o models.OrganizationSummary
		if err := rows.Scan(&o.ID, &o.Name, &o.IsOwner); err != nil {
			return nil, err
		}
		list = append(list, o)
	}
	return list, rows.Err()
}
