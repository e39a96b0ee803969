package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

func (s *Store) CreateOpportunity(ctx context.Context, o *models.Opportunity) error {
	d, release := s.acquire()
	defer release()
	o.ID = idOrNew(o.ID)
	o.Audit.StampCreate(deref(o.CreatedBy), s.now())
	c := *o
	d.opps[o.ID] = &c
	return nil
}

func (s *Store) GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	o, err := s.GetOpportunityWithTrashed(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Trashed() {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (s *Store) GetOpportunityWithTrashed(ctx context.Context, id uuid.UUID) (*models.Opportunity, error) {
	d, release := s.acquire()
	defer release()
	o, ok := d.opps[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *o
	return &c, nil
}

// visibleTo reports whether a live sponsor of the opportunity has an active membership for userID.
func (d *data) visibleTo(oppID, userID uuid.UUID) bool {
	for _, orgID := range d.sponsors(oppID) {
		if d.isMember(orgID, userID) {
			return true
		}
	}
	return false
}

func (d *data) sponsors(oppID uuid.UUID) []uuid.UUID {
	var ids []uuid.UUID
	for k, p := range d.pivots {
		if k.rel != store.Sponsorship || k.left != oppID || p.State() != models.PivotActive {
			continue
		}
		if o, ok := d.orgs[k.right]; ok && !o.Trashed() {
			ids = append(ids, k.right)
		}
	}
	sortIDs(ids)
	return ids
}

func (s *Store) ListOpportunities(ctx context.Context, q store.OpportunityQuery) ([]models.Opportunity, int, error) {
	d, release := s.acquire()
	defer release()
	search := strings.ToLower(q.Search)
	name := strings.ToLower(q.Name)
	desc := strings.ToLower(q.Description)
	var list []models.Opportunity
	for _, o := range d.opps {
		if o.Trashed() {
			continue
		}
		if !q.Visibility.All && !d.visibleTo(o.ID, q.Visibility.MemberID) {
			continue
		}
		lname, ldesc := strings.ToLower(o.Name), strings.ToLower(o.Description)
		if search != "" && !strings.Contains(lname, search) && !strings.Contains(ldesc, search) {
			continue
		}
		if name != "" && !strings.Contains(lname, name) {
			continue
		}
		if desc != "" && !strings.Contains(ldesc, desc) {
			continue
		}
		list = append(list, *o)
	}
	sortOpportunities(list, q.Sort, q.Desc)
	return paginate(list, q.Limit, q.Offset), len(list), nil
}

func sortOpportunities(list []models.Opportunity, field string, desc bool) {
	less := func(a, b models.Opportunity) int {
		switch field {
		case "name":
			return strings.Compare(a.Name, b.Name)
		case "description":
			return strings.Compare(a.Description, b.Description)
		case "updated_at":
			return a.UpdatedAt.Compare(b.UpdatedAt)
		case "start_date":
			switch {
			case a.StartDate == nil && b.StartDate == nil:
				return 0
			case a.StartDate == nil:
				return 1
			case b.StartDate == nil:
				return -1
			}
			return a.StartDate.Compare(*b.StartDate)
		default:
			return a.CreatedAt.Compare(b.CreatedAt)
		}
	}
	sort.SliceStable(list, func(i, j int) bool {
		c := less(list[i], list[j])
		if c == 0 {
			return list[i].ID.String() < list[j].ID.String()
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
}

func paginate(list []models.Opportunity, limit, offset int) []models.Opportunity {
	if offset >= len(list) {
		return nil
	}
	list = list[offset:]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return list
}

func (s *Store) SearchOpportunities(ctx context.Context, q store.OpportunitySearch) ([]models.Opportunity, int, error) {
	d, release := s.acquire()
	defer release()
	var list []models.Opportunity
	for _, o := range d.opps {
		if o.Trashed() || !d.matchesSearch(o, q) {
			continue
		}
		list = append(list, *o)
	}
	sort.SliceStable(list, func(i, j int) bool {
		a, b := list[i], list[j]
		switch {
		case a.StartDate != nil && b.StartDate != nil && !a.StartDate.Equal(*b.StartDate):
			return a.StartDate.Before(*b.StartDate)
		case a.StartDate == nil && b.StartDate != nil:
			return false
		case a.StartDate != nil && b.StartDate == nil:
			return true
		}
		return a.Name < b.Name
	})
	return paginate(list, q.Limit, q.Offset), len(list), nil
}

func (d *data) matchesSearch(o *models.Opportunity, q store.OpportunitySearch) bool {
	if len(q.Text) > 0 {
		hit := false
		for _, term := range q.Text {
			t := strings.ToLower(term)
			if strings.Contains(strings.ToLower(o.Name), t) || strings.Contains(strings.ToLower(o.Description), t) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if len(q.Organizations) > 0 {
		hit := false
		for _, id := range d.sponsors(o.ID) {
			if contains(q.Organizations, d.orgs[id].Name) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if len(q.Tags) > 0 {
		hit := false
		for _, t := range d.activeTags(store.OpportunityTag, o.ID) {
			if contains(q.Tags, t.Name) {
				hit = true
				break
			}
		}
		if !hit {
			return false
		}
	}
	if f := q.StartDate; f != nil {
		if o.StartDate == nil {
			return false
		}
		c := dateOnly(*o.StartDate).Compare(dateOnly(f.Date))
		switch f.Operator {
		case "gt":
			return c > 0
		case "gte":
			return c >= 0
		case "lt":
			return c < 0
		case "lte":
			return c <= 0
		default:
			return c == 0
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func (s *Store) UpdateOpportunity(ctx context.Context, o *models.Opportunity) error {
	d, release := s.acquire()
	defer release()
	cur, ok := d.opps[o.ID]
	if !ok || cur.Trashed() {
		return store.ErrNotFound
	}
	cur.Name, cur.Description, cur.URL = o.Name, o.Description, o.URL
	cur.StartDate, cur.EndDate, cur.StartTime, cur.EndTime = o.StartDate, o.EndDate, o.StartTime, o.EndTime
	cur.Audit.StampUpdate(deref(o.UpdatedBy), s.now())
	o.Audit = cur.Audit
	return nil
}

func (s *Store) DeleteOpportunity(ctx context.Context, id, by uuid.UUID) error {
	d, release := s.acquire()
	defer release()
	o, ok := d.opps[id]
	if !ok || o.Trashed() {
		return store.ErrNotFound
	}
	o.Audit.StampDelete(by, s.now())
	return nil
}

func (s *Store) RestoreOpportunity(ctx context.Context, id, by uuid.UUID) error {
	d, release := s.acquire()
	defer release()
	o, ok := d.opps[id]
	if !ok {
		return store.ErrNotFound
	}
	if o.Trashed() {
		o.Audit.StampRestore(by, s.now())
	}
	return nil
}

func (s *Store) SponsorOrganizationIDs(ctx context.Context, opportunityID uuid.UUID) ([]uuid.UUID, error) {
	d, release := s.acquire()
	defer release()
	return d.sponsors(opportunityID), nil
}

func (s *Store) ListSponsors(ctx context.Context, opportunityID uuid.UUID) ([]models.OrganizationSummary, error) {
	d, release := s.acquire()
	defer release()
	var list []models.OrganizationSummary
	for _, id := range d.sponsors(opportunityID) {
		p := d.pivots[pivotKey{store.Sponsorship, opportunityID, id}]
		list = append(list, models.OrganizationSummary{ID: id, Name: d.orgs[id].Name, IsOwner: p.IsOwner})
	}
	sortSummaries(list)
	return list, nil
}
