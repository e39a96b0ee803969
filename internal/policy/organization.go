package policy

import (
	"context"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/identity"
)

// ViewAnyOrganizations allows every authenticated actor; the listing is scoped.
func (e *Engine) ViewAnyOrganizations(ctx context.Context, a *identity.Actor) error {
	return e.decide(ctx, OrganizationViewAny, a, func(ctx context.Context, s subject) error {
		return nil
	})
}

// ViewOrganization allows any current member, plain users included, so a
// listed organization can always be opened.
func (e *Engine) ViewOrganization(ctx context.Context, a *identity.Actor, orgID uuid.UUID) error {
	return e.decide(ctx, OrganizationView, a, func(ctx context.Context, s subject) error {
		return e.member(ctx, s, orgID)
	})
}

func (e *Engine) CreateOrganization(ctx context.Context, a *identity.Actor) error {
	return e.decide(ctx, OrganizationCreate, a, nil)
}

// UpdateOrganization allows managers who belong to the organization. Membership
// changes are a separate check.
func (e *Engine) UpdateOrganization(ctx context.Context, a *identity.Actor, orgID uuid.UUID) error {
	return e.decide(ctx, OrganizationUpdate, a, func(ctx context.Context, s subject) error {
		return e.managesOrganization(ctx, s, orgID)
	})
}

func (e *Engine) DeleteOrganization(ctx context.Context, a *identity.Actor) error {
	return e.decide(ctx, OrganizationDelete, a, nil)
}

func (e *Engine) RestoreOrganization(ctx context.Context, a *identity.Actor) error {
	return e.decide(ctx, OrganizationRestore, a, nil)
}

// ManageMembership is admin-only, including for managers of the organization.
func (e *Engine) ManageMembership(ctx context.Context, a *identity.Actor) error {
	return e.decide(ctx, OrganizationManageMembers, a, nil)
}
