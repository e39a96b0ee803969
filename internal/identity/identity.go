// Package identity answers role and membership questions about an actor.
// Every answer is read from live relation rows; nothing is cached.
package identity

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

// Actor is the authenticated identity performing an operation.
// A nil *Actor means the request is unauthenticated.
type Actor struct {
	UserID uuid.UUID
	Email  string
}

// ID returns the actor's user id, or uuid.Nil for a nil actor.
func (a *Actor) ID() uuid.UUID {
	if a == nil {
		return uuid.Nil
	}
	return a.UserID
}

// OrgSet is a set of organization ids.
type OrgSet map[uuid.UUID]struct{}

// Has reports membership of id.
func (s OrgSet) Has(id uuid.UUID) bool {
	_, ok := s[id]
	return ok
}

// Intersects reports whether any of ids is in the set.
func (s OrgSet) Intersects(ids []uuid.UUID) bool {
	for _, id := range ids {
		if s.Has(id) {
			return true
		}
	}
	return false
}

// Source is the slice of the store identity needs.
type Source interface {
	UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error)
	MemberOrganizationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
}

// Service resolves roles and memberships.
type Service struct {
	src Source
}

// NewService creates an identity service.
func NewService(src Source) *Service {
	return &Service{src: src}
}

// Roles returns the actor's active roles. An actor with none is treated as a plain user.
func (s *Service) Roles(ctx context.Context, a *Actor) ([]models.Role, error) {
	if a == nil {
		return nil, nil
	}
	roles, err := s.src.UserRoles(ctx, a.UserID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	if len(roles) == 0 {
		roles = []models.Role{models.RoleUser}
	}
	return roles, nil
}

// HasRole reports whether the actor holds role through an active assignment.
func (s *Service) HasRole(ctx context.Context, a *Actor, role models.Role) (bool, error) {
	return s.HasAnyRole(ctx, a, role)
}

// HasAnyRole reports whether the actor holds any of roles.
func (s *Service) HasAnyRole(ctx context.Context, a *Actor, roles ...models.Role) (bool, error) {
	if a == nil {
		return false, nil
	}
	held, err := s.Roles(ctx, a)
	if err != nil {
		return false, err
	}
	for _, h := range held {
		for _, r := range roles {
			if h == r {
				return true, nil
			}
		}
	}
	return false, nil
}

// IsAdmin is HasRole(a, RoleAdmin).
func (s *Service) IsAdmin(ctx context.Context, a *Actor) (bool, error) {
	return s.HasRole(ctx, a, models.RoleAdmin)
}

// ManageableOrganizationIDs returns organizations with an active membership for the actor.
func (s *Service) ManageableOrganizationIDs(ctx context.Context, a *Actor) (OrgSet, error) {
	set := OrgSet{}
	if a == nil {
		return set, nil
	}
	ids, err := s.src.MemberOrganizationIDs(ctx, a.UserID)
	if err != nil {
		return nil, fmt.Errorf("load memberships: %w", err)
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set, nil
}

// IsMember reports an active membership of the actor in orgID.
func (s *Service) IsMember(ctx context.Context, a *Actor, orgID uuid.UUID) (bool, error) {
	set, err := s.ManageableOrganizationIDs(ctx, a)
	if err != nil {
		return false, err
	}
	return set.Has(orgID), nil
}

var _ Source = (store.Store)(nil)
