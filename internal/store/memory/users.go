package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	d, release := s.acquire()
	defer release()
	for _, existing := range d.users {
		if strings.EqualFold(existing.Email, u.Email) {
			return store.ErrDuplicate
		}
	}
	u.ID = idOrNew(u.ID)
	u.Audit.StampCreate(deref(u.CreatedBy), s.now())
	c := *u
	d.users[u.ID] = &c
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	d, release := s.acquire()
	defer release()
	u, ok := d.users[id]
	if !ok || u.Trashed() {
		return nil, store.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	d, release := s.acquire()
	defer release()
	for _, u := range d.users {
		if strings.EqualFold(u.Email, email) && !u.Trashed() {
			c := *u
			return &c, nil
		}
	}
	return nil, store.ErrNotFound
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	d, release := s.acquire()
	defer release()
	var list []models.User
	for _, u := range d.users {
		if !u.Trashed() {
			list = append(list, *u)
		}
	}
	sortUsers(list)
	return list, nil
}

func sortUsers(list []models.User) {
	sort.Slice(list, func(i, j int) bool {
		a, b := list[i], list[j]
		if a.LastName != b.LastName {
			return a.LastName < b.LastName
		}
		if a.FirstName != b.FirstName {
			return a.FirstName < b.FirstName
		}
		return a.Email < b.Email
	})
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	d, release := s.acquire()
	defer release()
	cur, ok := d.users[u.ID]
	if !ok || cur.Trashed() {
		return store.ErrNotFound
	}
	for id, other := range d.users {
		if id != u.ID && strings.EqualFold(other.Email, u.Email) {
			return store.ErrDuplicate
		}
	}
	cur.FirstName, cur.LastName, cur.Email = u.FirstName, u.LastName, u.Email
	if u.Password != "" {
		cur.Password = u.Password
	}
	cur.Audit.StampUpdate(deref(u.UpdatedBy), s.now())
	u.Audit = cur.Audit
	return nil
}

func (s *Store) DeleteUser(ctx context.Context, id, by uuid.UUID) error {
	d, release := s.acquire()
	defer release()
	u, ok := d.users[id]
	if !ok || u.Trashed() {
		return store.ErrNotFound
	}
	u.Audit.StampDelete(by, s.now())
	return nil
}

func (s *Store) RoleID(ctx context.Context, role models.Role) (uuid.UUID, error) {
	d, release := s.acquire()
	defer release()
	id, ok := d.roles[role]
	if !ok {
		return uuid.Nil, store.ErrNotFound
	}
	return id, nil
}

func (s *Store) UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error) {
	d, release := s.acquire()
	defer release()
	held := make(map[uuid.UUID]bool)
	for k, p := range d.pivots {
		if k.rel == store.RoleAssignment && k.left == userID && p.State() == models.PivotActive {
			held[k.right] = true
		}
	}
	var roles []models.Role
	for _, r := range models.Roles {
		if held[d.roles[r]] {
			roles = append(roles, r)
		}
	}
	return roles, nil
}
