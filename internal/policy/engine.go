// Package policy decides whether an actor may perform an action on
// opportunities, organizations and users.
//
// Every check runs in the same order: an absent actor is Unauthenticated,
// an Admin is allowed, otherwise the action's rule decides and the default
// is deny. Decisions are never cached.
package policy

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/apperr"
	"github.com/evolnow/backend/internal/identity"
	"github.com/evolnow/backend/internal/metrics"
	"github.com/evolnow/backend/internal/models"
)

// Action names a policy check.
type Action string

const (
	OpportunityViewAny            Action = "opportunity.view_any"
	OpportunityView               Action = "opportunity.view"
	OpportunityCreate             Action = "opportunity.create"
	OpportunityAssign             Action = "opportunity.assign_organizations"
	OpportunityUpdate             Action = "opportunity.update"
	OpportunityDelete             Action = "opportunity.delete"
	OpportunityRestore            Action = "opportunity.restore"
	OpportunityAttachOrganization Action = "opportunity.attach_organization"
	OpportunityDetachOrganization Action = "opportunity.detach_organization"
	OrganizationViewAny           Action = "organization.view_any"
	OrganizationView              Action = "organization.view"
	OrganizationCreate            Action = "organization.create"
	OrganizationUpdate            Action = "organization.update"
	OrganizationDelete            Action = "organization.delete"
	OrganizationRestore           Action = "organization.restore"
	OrganizationManageMembers     Action = "organization.manage_members"
	UserManage                    Action = "user.manage"
	UserView                      Action = "user.view"
)

// Source is the relation state the engine reads.
type Source interface {
	identity.Source
	SponsorOrganizationIDs(ctx context.Context, opportunityID uuid.UUID) ([]uuid.UUID, error)
}

// Engine evaluates policy checks against live relation state.
type Engine struct {
	src     Source
	ids     *identity.Service
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewEngine creates a policy engine. metrics may be nil.
func NewEngine(src Source, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{src: src, ids: identity.NewService(src), metrics: m, logger: logger}
}

// Bind returns an engine reading through src, typically a transaction.
func (e *Engine) Bind(src Source) *Engine {
	return &Engine{src: src, ids: identity.NewService(src), metrics: e.metrics, logger: e.logger}
}

// Identity returns the identity service the engine reads through.
func (e *Engine) Identity() *identity.Service {
	return e.ids
}

// RequireActor fails with Unauthenticated when a is nil.
func (e *Engine) RequireActor(a *identity.Actor) error {
	if a == nil {
		return apperr.Unauthenticated()
	}
	return nil
}

// subject is a non-admin actor with its roles loaded once per decision.
type subject struct {
	actor *identity.Actor
	roles []models.Role
}

func (s subject) has(role models.Role) bool {
	for _, r := range s.roles {
		if r == role {
			return true
		}
	}
	return false
}

// rule returns nil to allow, an apperr Forbidden to deny, or any other error to abort.
type rule func(ctx context.Context, s subject) error

var deny = apperr.Forbidden("")

func (e *Engine) decide(ctx context.Context, action Action, a *identity.Actor, r rule) error {
	if a == nil {
		e.metrics.ObservePolicy(string(action), apperr.KindUnauthenticated.String())
		return apperr.Unauthenticated()
	}
	roles, err := e.ids.Roles(ctx, a)
	if err != nil {
		return fmt.Errorf("%s: %w", action, err)
	}
	s := subject{actor: a, roles: roles}
	if s.has(models.RoleAdmin) {
		e.metrics.ObservePolicy(string(action), "allow")
		return nil
	}
	if r == nil {
		err = deny
	} else {
		err = r(ctx, s)
	}
	if err == nil {
		e.metrics.ObservePolicy(string(action), "allow")
		return nil
	}
	if apperr.KindOf(err) != apperr.KindForbidden {
		return fmt.Errorf("%s: %w", action, err)
	}
	reason := apperr.Message(err)
	e.metrics.ObservePolicy(string(action), apperr.KindForbidden.String())
	e.logger.Debug("policy denied",
		zap.String("action", string(action)),
		zap.String("actor_id", a.UserID.String()),
		zap.String("reason", reason),
	)
	return apperr.Forbidden(reason)
}

// requireManager denies actors without the organization manager role.
func requireManager(s subject) error {
	if !s.has(models.RoleOrganizationManager) {
		return deny
	}
	return nil
}

// managesOpportunity: manager and member of at least one current sponsor.
func (e *Engine) managesOpportunity(ctx context.Context, s subject, opportunityID uuid.UUID) error {
	if err := requireManager(s); err != nil {
		return err
	}
	sponsors, err := e.src.SponsorOrganizationIDs(ctx, opportunityID)
	if err != nil {
		return fmt.Errorf("load sponsors: %w", err)
	}
	set, err := e.ids.ManageableOrganizationIDs(ctx, s.actor)
	if err != nil {
		return err
	}
	if !set.Intersects(sponsors) {
		return deny
	}
	return nil
}

// managesOrganization: manager and member of orgID.
func (e *Engine) managesOrganization(ctx context.Context, s subject, orgID uuid.UUID) error {
	if err := requireManager(s); err != nil {
		return err
	}
	return e.member(ctx, s, orgID)
}

func (e *Engine) member(ctx context.Context, s subject, orgID uuid.UUID) error {
	ok, err := e.ids.IsMember(ctx, s.actor, orgID)
	if err != nil {
		return err
	}
	if !ok {
		return deny
	}
	return nil
}
