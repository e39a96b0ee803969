package memory

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

func (s *Store) FindPivot(ctx context.Context, rel store.Relation, left, right uuid.UUID) (*models.Pivot, error) {
	d, release := s.acquire()
	defer release()
	p, ok := d.pivots[pivotKey{rel, left, right}]
	if !ok {
		return nil, store.ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *Store) ListPivots(ctx context.Context, rel store.Relation, left uuid.UUID, includeRevoked bool) ([]models.Pivot, error) {
	d, release := s.acquire()
	defer release()
	var list []models.Pivot
	for k, p := range d.pivots {
		if k.rel != rel || k.left != left {
			continue
		}
		if !includeRevoked && p.State() != models.PivotActive {
			continue
		}
		list = append(list, *p)
	}
	sort.Slice(list, func(i, j int) bool {
		if !list[i].CreatedAt.Equal(list[j].CreatedAt) {
			return list[i].CreatedAt.Before(list[j].CreatedAt)
		}
		return list[i].ID.String() < list[j].ID.String()
	})
	return list, nil
}

func (s *Store) AttachPivot(ctx context.Context, rel store.Relation, left, right uuid.UUID, opts store.AttachOptions) (*models.Pivot, store.AttachResult, error) {
	d, release := s.acquire()
	defer release()
	now := s.now()
	key := pivotKey{rel, left, right}
	p, ok := d.pivots[key]
	switch {
	case !ok:
		p = &models.Pivot{ID: uuid.New(), LeftID: left, RightID: right, IsOwner: opts.IsOwner}
		p.Audit.StampCreate(opts.By, now)
		d.pivots[key] = p
		c := *p
		return &c, store.Inserted, nil
	case p.State() == models.PivotRevoked:
		p.Audit.StampRestore(opts.By, now)
		if rel.RefreshesCreation() {
			p.CreatedAt = now
			p.CreatedBy = p.UpdatedBy
		}
		c := *p
		return &c, store.Restored, nil
	default:
		c := *p
		return &c, store.AlreadyActive, nil
	}
}

func (s *Store) RevokePivot(ctx context.Context, rel store.Relation, left, right, by uuid.UUID) (bool, error) {
	d, release := s.acquire()
	defer release()
	p, ok := d.pivots[pivotKey{rel, left, right}]
	if !ok || p.State() != models.PivotActive {
		return false, nil
	}
	p.Audit.StampDelete(by, s.now())
	return true, nil
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
