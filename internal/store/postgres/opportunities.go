package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

const oppCols = "o.id, o.name, o.description, o.url, o.start_date, o.end_date, o.start_time, o.end_time, " +
	"o.created_at, o.created_by, o.updated_at, o.updated_by, o.deleted_at, o.deleted_by"

// visibleOpportunity requires a live sponsor of o in which %s holds an active membership.
const visibleOpportunity = `EXISTS (SELECT 1 FROM opportunity_organization oo
	JOIN organizations g ON g.id = oo.organization_id AND g.deleted_at IS NULL
	JOIN organization_user ou ON ou.organization_id = g.id AND ou.deleted_at IS NULL
	WHERE oo.opportunity_id = o.id AND oo.deleted_at IS NULL AND ou.user_id = %s)`

var oppSort = map[string]string{
	"name":        "o.name",
	"description": "o.description",
	"created_at":  "o.created_at",
	"updated_at":  "o.updated_at",
	"start_date":  "o.start_date",
}

var dateOps = map[string]string{"eq": "=", "gt": ">", "gte": ">=", "lt": "<", "lte": "<="}

func scanOpportunity(row pgx.Row) (*models.Opportunity, error) {
	var o models.Opportunity
	dest := append([]any{&o.ID, &o.Name, &o.Description, &o.URL, &o.StartDate, &o.EndDate, &o.StartTime, &o.EndTime},
		auditDest(&o.Audit)...)
	if err := row.Scan(dest...); err != nil {
		return nil, mapErr(err)
	}
	return &o, nil
}

func (s *Store) CreateOpportunity(ctx context.Context, o *models.Opportunity) error {
	const q = `INSERT INTO opportunities (name, description, url, start_date, end_date, start_time, end_time, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $8)
		RETURNING id, created_at, updated_at, updated_by`
	err := s.db.QueryRow(ctx, q, o.Name, o.Description, o.URL, o.StartDate, o.EndDate, o.StartTime, o.EndTime, o.CreatedBy).
		Scan(&o.ID, &o.CreatedAt, &o.UpdatedAt, &o.UpdatedBy)
	return mapErr(err)
}

func (s *Store) GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	const q = `SELECT ` + oppCols + ` FROM opportunities o WHERE o.id = $1 AND o.deleted_at IS NULL`
	return scanOpportunity(s.db.QueryRow(ctx, q, id))
}

func (s *Store) GetOpportunityWithTrashed(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	const q = `SELECT ` + oppCols + ` FROM opportunities o WHERE o.id = $1`
	return scanOpportunity(s.db.QueryRow(ctx, q, id))
}

func (s *Store) ListOpportunities(ctx context.Context, q store.OpportunityQuery) ([]models.Opportunity, int, error) {
	var a args
	conds := []string{"o.deleted_at IS NULL"}
	if !q.Visibility.All {
		conds = append(conds, fmt.Sprintf(visibleOpportunity, a.add(q.Visibility.MemberID)))
	}
	if q.Search != "" {
		p := a.add(q.Search)
		conds = append(conds, fmt.Sprintf("(o.name ILIKE '%%' || %[1]s || '%%' OR o.description ILIKE '%%' || %[1]s || '%%')", p))
	}
	if q.Name != "" {
		conds = append(conds, "o.name ILIKE '%' || "+a.add(q.Name)+" || '%'")
	}
	if q.Description != "" {
		conds = append(conds, "o.description ILIKE '%' || "+a.add(q.Description)+" || '%'")
	}
	col, ok := oppSort[q.Sort]
	if !ok {
		col = "o.created_at"
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	order := fmt.Sprintf("%s %s NULLS LAST, o.id", col, dir)
	return s.pageOpportunities(ctx, strings.Join(conds, " AND "), order, q.Limit, q.Offset, a)
}

// SearchOpportunities runs the public search over every live opportunity.
func (s *Store) SearchOpportunities(ctx context.Context, q store.OpportunitySearch) ([]models.Opportunity, int, error) {
	var a args
	conds := []string{"o.deleted_at IS NULL"}
	if len(q.Text) > 0 {
		var terms []string
		for _, t := range q.Text {
			p := a.add(t)
			terms = append(terms, fmt.Sprintf("o.name ILIKE '%%' || %[1]s || '%%' OR o.description ILIKE '%%' || %[1]s || '%%'", p))
		}
		conds = append(conds, "("+strings.Join(terms, " OR ")+")")
	}
	if len(q.Organizations) > 0 {
		conds = append(conds, `EXISTS (SELECT 1 FROM opportunity_organization oo
			JOIN organizations g ON g.id = oo.organization_id AND g.deleted_at IS NULL
			WHERE oo.opportunity_id = o.id AND oo.deleted_at IS NULL AND g.name = ANY(`+a.add(q.Organizations)+`))`)
	}
	if len(q.Tags) > 0 {
		conds = append(conds, `EXISTS (SELECT 1 FROM taggables tg
			JOIN tags t ON t.id = tg.tag_id
			WHERE tg.taggable_type = 'opportunity' AND tg.taggable_id = o.id AND tg.deleted_at IS NULL
				AND t.name = ANY(`+a.add(q.Tags)+`))`)
	}
	if f := q.StartDate; f != nil {
		op, ok := dateOps[f.Operator]
		if !ok {
			op = "="
		}
		conds = append(conds, fmt.Sprintf("o.start_date %s %s::date", op, a.add(f.Date.Format("2006-01-02"))))
	}
	return s.pageOpportunities(ctx, strings.Join(conds, " AND "), "o.start_date ASC NULLS LAST, o.name", q.Limit, q.Offset, a)
}

func (s *Store) pageOpportunities(ctx context.Context, where, order string, limit, offset int, a args) ([]models.Opportunity, int, error) {
	var total int
	if err := s.db.QueryRow(ctx, `SELECT COUNT(*) FROM opportunities o WHERE `+where, a...).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := `SELECT ` + oppCols + ` FROM opportunities o WHERE ` + where + ` ORDER BY ` + order
	if limit > 0 {
		q += ` LIMIT ` + a.add(limit)
	}
	if offset > 0 {
		q += ` OFFSET ` + a.add(offset)
	}
	rows, err := s.db.Query(ctx, q, a...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var list []models.Opportunity
	for rows.Next() {
		o, err := scanOpportunity(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, *o)
	}
	return list, total, rows.Err()
}

func (s *Store) UpdateOpportunity(ctx context.Context, o *models.Opportunity) error {
	const q = `UPDATE opportunities SET name = $2, description = $3, url = $4, start_date = $5, end_date = $6,
		start_time = $7, end_time = $8, updated_at = NOW(), updated_by = $9
		WHERE id = $1 AND deleted_at IS NULL
		RETURNING created_at, created_by, updated_at`
	err := s.db.QueryRow(ctx, q, o.ID, o.Name, o.Description, o.URL, o.StartDate, o.EndDate, o.StartTime, o.EndTime, o.UpdatedBy).
		Scan(&o.CreatedAt, &o.CreatedBy, &o.UpdatedAt)
	return mapErr(err)
}

func (s *Store) DeleteOpportunity(ctx context.Context, id, by uuid.UUID) error {
	const q = `UPDATE opportunities SET deleted_at = NOW(), deleted_by = $2, updated_at = NOW(), updated_by = $2
		WHERE id = $1 AND deleted_at IS NULL`
	return s.execOne(ctx, q, id, nullable(by))
}

// RestoreOpportunity clears the delete marker; restoring a live row is a no-op.
func (s *Store) RestoreOpportunity(ctx context.Context, id, by uuid.UUID) error {
	const q = `UPDATE opportunities SET
		updated_at = CASE WHEN deleted_at IS NULL THEN updated_at ELSE NOW() END,
		updated_by = CASE WHEN deleted_at IS NULL THEN updated_by ELSE $2 END,
		deleted_at = NULL, deleted_by = NULL
		WHERE id = $1`
	return s.execOne(ctx, q, id, nullable(by))
}

func (s *Store) SponsorOrganizationIDs(ctx context.Context, opportunityID uuid.UUID) ([]uuid.UUID, error) {
	const q = `SELECT g.id FROM organizations g
		JOIN opportunity_organization oo ON oo.organization_id = g.id
		WHERE oo.opportunity_id = $1 AND oo.deleted_at IS NULL AND g.deleted_at IS NULL
		ORDER BY g.id::text`
	return s.queryIDs(ctx, q, opportunityID)
}

func (s *Store) ListSponsors(ctx context.Context, opportunityID uuid.UUID) ([]models.OrganizationSummary, error) {
	const q = `SELECT g.id, g.name, oo.is_opportunity_owner FROM organizations g
		JOIN opportunity_organization oo ON oo.organization_id = g.id
		WHERE oo.opportunity_id = $1 AND oo.deleted_at IS NULL AND g.deleted_at IS NULL
		ORDER BY g.name, g.id`
	return s.querySummaries(ctx, q, opportunityID)
}
