package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

func (s *Store) CreateOrganization(ctx context.Context, o *models.Organization) error {
	d, release := s.acquire()
	defer release()
	o.ID = idOrNew(o.ID)
	o.Audit.StampCreate(deref(o.CreatedBy), s.now())
	c := *o
	d.orgs[o.ID] = &c
	return nil
}

func (s *Store) GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	o, err := s.GetOrganizationWithTrashed(ctx, id)
	if err != nil {
		return nil, err
	}
	if o.Trashed() {
		return nil, store.ErrNotFound
	}
	return o, nil
}

func (s *Store) GetOrganizationWithTrashed(ctx context.Context, id uuid.UUID) (*models.Organization, error) {
	d, release := s.acquire()
	defer release()
	o, ok := d.orgs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *o
	return &c, nil
}

func (s *Store) ListOrganizations(ctx context.Context, q store.OrganizationQuery) ([]models.Organization, error) {
	d, release := s.acquire()
	defer release()
	search := strings.ToLower(q.Search)
	var list []models.Organization
	for _, o := range d.orgs {
		if o.Trashed() {
			continue
		}
		if search != "" && !strings.Contains(strings.ToLower(o.Name), search) {
			continue
		}
		if !q.Visibility.All && !d.isMember(o.ID, q.Visibility.MemberID) {
			continue
		}
		list = append(list, *o)
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID.String() < list[j].ID.String()
	})
	if q.Limit > 0 && len(list) > q.Limit {
		list = list[:q.Limit]
	}
	return list, nil
}

func (s *Store) UpdateOrganization(ctx context.Context, o *models.Organization) error {
	d, release := s.acquire()
	defer release()
	cur, ok := d.orgs[o.ID]
	if !ok || cur.Trashed() {
		return store.ErrNotFound
	}
	cur.Name, cur.Description = o.Name, o.Description
	cur.Audit.StampUpdate(deref(o.UpdatedBy), s.now())
	o.Audit = cur.Audit
	return nil
}

func (s *Store) DeleteOrganization(ctx context.Context, id, by uuid.UUID) error {
	d, release := s.acquire()
	defer release()
	o, ok := d.orgs[id]
	if !ok || o.Trashed() {
		return store.ErrNotFound
	}
	o.Audit.StampDelete(by, s.now())
	return nil
}

func (s *Store) RestoreOrganization(ctx context.Context, id, by uuid.UUID) error {
	d, release := s.acquire()
	defer release()
	o, ok := d.orgs[id]
	if !ok {
		return store.ErrNotFound
	}
	if o.Trashed() {
		o.Audit.StampRestore(by, s.now())
	}
	return nil
}

// isMember reports an active membership in a live organization.
func (d *data) isMember(orgID, userID uuid.UUID) bool {
	o, ok := d.orgs[orgID]
	if !ok || o.Trashed() {
		return false
	}
	p, ok := d.pivots[pivotKey{store.Membership, orgID, userID}]
	return ok && p.State() == models.PivotActive
}

func (s *Store) MemberOrganizationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error) {
	d, release := s.acquire()
	defer release()
	var ids []uuid.UUID
	for k := range d.pivots {
		if k.rel == store.Membership && k.right == userID && d.isMember(k.left, userID) {
			ids = append(ids, k.left)
		}
	}
	sortIDs(ids)
	return ids, nil
}

func (s *Store) ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.User, error) {
	d, release := s.acquire()
	defer release()
	var list []models.User
	for k := range d.pivots {
		if k.rel != store.Membership || k.left != orgID || !d.isMember(orgID, k.right) {
			continue
		}
		if u, ok := d.users[k.right]; ok && !u.Trashed() {
			list = append(list, *u)
		}
	}
	sortUsers(list)
	return list, nil
}

func (s *Store) ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]models.OrganizationSummary, error) {
	d, release := s.acquire()
	defer release()
	var list []models.OrganizationSummary
	for k := range d.pivots {
		if k.rel == store.Membership && k.right == userID && d.isMember(k.left, userID) {
			o := d.orgs[k.left]
			list = append(list, models.OrganizationSummary{ID: o.ID, Name: o.Name})
		}
	}
	sortSummaries(list)
	return list, nil
}

func sortIDs(ids []uuid.UUID) {
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
}

func sortSummaries(list []models.OrganizationSummary) {
	sort.Slice(list, func(i, j int) bool {
		if list[i].Name != list[j].Name {
			return list[i].Name < list[j].Name
		}
		return list[i].ID.String() < list[j].ID.String()
	})
}
