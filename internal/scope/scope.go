// Package scope narrows listings to what an actor may see. Admins see
// everything; everyone else sees rows reachable through a current membership.
package scope

import (
	"context"

	"github.com/evolnow/backend/internal/identity"
	"github.com/evolnow/backend/internal/policy"
	"github.com/evolnow/backend/internal/store"
)

// Resolver turns an actor into a store.Visibility.
type Resolver struct {
	policy *policy.Engine
}

func NewResolver(p *policy.Engine) *Resolver {
	return &Resolver{policy: p}
}

// Bind returns a resolver reading through p.
func (r *Resolver) Bind(p *policy.Engine) *Resolver {
	return &Resolver{policy: p}
}

// Visibility returns the filter for a. A nil actor sees nothing.
func (r *Resolver) Visibility(ctx context.Context, a *identity.Actor) (store.Visibility, error) {
	if err := r.policy.RequireActor(a); err != nil {
		return store.Visibility{}, err
	}
	admin, err := r.policy.Identity().IsAdmin(ctx, a)
	if err != nil {
		return store.Visibility{}, err
	}
	if admin {
		return store.Visibility{All: true}, nil
	}
	return store.Visibility{MemberID: a.UserID}, nil
}

// Opportunities checks the opportunity index permission and returns its filter.
func (r *Resolver) Opportunities(ctx context.Context, a *identity.Actor) (store.Visibility, error) {
	if err := r.policy.ViewAnyOpportunities(ctx, a); err != nil {
		return store.Visibility{}, err
	}
	return r.Visibility(ctx, a)
}

// Organizations checks the organization index permission and returns its filter.
func (r *Resolver) Organizations(ctx context.Context, a *identity.Actor) (store.Visibility, error) {
	if err := r.policy.ViewAnyOrganizations(ctx, a); err != nil {
		return store.Visibility{}, err
	}
	return r.Visibility(ctx, a)
}
