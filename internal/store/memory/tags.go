package memory

import (
	"context"
	"sort"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

func (s *Store) FindOrCreateTag(ctx context.Context, name string, by uuid.UUID) (*models.Tag, error) {
	d, release := s.acquire()
	defer release()
	for _, t := range d.tags {
		if t.Name == name {
			c := *t
			return &c, nil
		}
	}
	t := &models.Tag{ID: uuid.New(), Name: name}
	t.Audit.StampCreate(by, s.now())
	d.tags[t.ID] = t
	c := *t
	return &c, nil
}

func (s *Store) GetTagByName(ctx context.Context, name string) (*models.Tag, error) {
	d, release := s.acquire()
	defer release()
	for _, t := range d.tags {
		if t.Name == name {
			c := *t
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListTags(ctx context.Context, rel store.Relation, ownerID uuid.UUID) ([]models.Tag, error) {
	d, release := s.acquire()
	defer release()
	return d.activeTags(rel, ownerID), nil
}

func (d *data) activeTags(rel store.Relation, ownerID uuid.UUID) []models.Tag {
	var list []models.Tag
	for k, p := range d.pivots {
		if k.rel != rel || k.left != ownerID || p.State() != models.PivotActive {
			continue
		}
		if t, ok := d.tags[k.right]; ok {
			list = append(list, *t)
		}
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}
