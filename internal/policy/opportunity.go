package policy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/apperr"
	"github.com/evolnow/backend/internal/identity"
)

// ViewAnyOpportunities allows the opportunity index to admins and managers.
func (e *Engine) ViewAnyOpportunities(ctx context.Context, a *identity.Actor) error {
	return e.decide(ctx, OpportunityViewAny, a, func(ctx context.Context, s subject) error {
		return requireManager(s)
	})
}

func (e *Engine) ViewOpportunity(ctx context.Context, a *identity.Actor, opportunityID uuid.UUID) error {
	return e.decide(ctx, OpportunityView, a, func(ctx context.Context, s subject) error {
		return e.managesOpportunity(ctx, s, opportunityID)
	})
}

// CreateOpportunity checks the create permission together with the
// organization assignment rule for the submitted organization ids.
func (e *Engine) CreateOpportunity(ctx context.Context, a *identity.Actor, organizationIDs []uuid.UUID) error {
	return e.decide(ctx, OpportunityCreate, a, func(ctx context.Context, s subject) error {
		if err := requireManager(s); err != nil {
			return err
		}
		return e.assignable(ctx, s, organizationIDs)
	})
}

// AssignOrganizations applies the organization assignment rule on update.
func (e *Engine) AssignOrganizations(ctx context.Context, a *identity.Actor, organizationIDs []uuid.UUID) error {
	return e.decide(ctx, OpportunityAssign, a, func(ctx context.Context, s subject) error {
		if err := requireManager(s); err != nil {
			return err
		}
		return e.assignable(ctx, s, organizationIDs)
	})
}

// assignable: a non-empty list fully inside the actor's memberships.
func (e *Engine) assignable(ctx context.Context, s subject, organizationIDs []uuid.UUID) error {
	if len(organizationIDs) == 0 {
		return apperr.ErrMustSelectOrg
	}
	set, err := e.ids.ManageableOrganizationIDs(ctx, s.actor)
	if err != nil {
		return err
	}
	for _, id := range organizationIDs {
		if !set.Has(id) {
			return deny
		}
	}
	return nil
}

func (e *Engine) UpdateOpportunity(ctx context.Context, a *identity.Actor, opportunityID uuid.UUID) error {
	return e.decide(ctx, OpportunityUpdate, a, func(ctx context.Context, s subject) error {
		return e.managesOpportunity(ctx, s, opportunityID)
	})
}

func (e *Engine) DeleteOpportunity(ctx context.Context, a *identity.Actor, opportunityID uuid.UUID) error {
	return e.decide(ctx, OpportunityDelete, a, func(ctx context.Context, s subject) error {
		return e.managesOpportunity(ctx, s, opportunityID)
	})
}

func (e *Engine) RestoreOpportunity(ctx context.Context, a *identity.Actor, opportunityID uuid.UUID) error {
	return e.decide(ctx, OpportunityRestore, a, func(ctx context.Context, s subject) error {
		return e.managesOpportunity(ctx, s, opportunityID)
	})
}

// AttachOrganization requires membership of the organization being attached
// and either management of the opportunity or an opportunity with no sponsors.
func (e *Engine) AttachOrganization(ctx context.Context, a *identity.Actor, opportunityID, orgID uuid.UUID) error {
	return e.decide(ctx, OpportunityAttachOrganization, a, func(ctx context.Context, s subject) error {
		if err := e.managesOrganization(ctx, s, orgID); err != nil {
			return err
		}
		sponsors, err := e.src.SponsorOrganizationIDs(ctx, opportunityID)
		if err != nil {
			return fmt.Errorf("load sponsors: %w", err)
		}
		if len(sponsors) == 0 {
			e.logger.Info("orphan opportunity claimed",
				zap.String("opportunity_id", opportunityID.String()),
				zap.String("organization_id", orgID.String()),
				zap.String("actor_id", s.actor.UserID.String()),
			)
			return nil
		}
		return e.managesOpportunity(ctx, s, opportunityID)
	})
}

// DetachOrganization has no orphan bypass.
func (e *Engine) DetachOrganization(ctx context.Context, a *identity.Actor, opportunityID, orgID uuid.UUID) error {
	return e.decide(ctx, OpportunityDetachOrganization, a, func(ctx context.Context, s subject) error {
		if err := e.managesOrganization(ctx, s, orgID); err != nil {
			return err
		}
		return e.managesOpportunity(ctx, s, opportunityID)
	})
}
