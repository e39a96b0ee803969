// Package opportunities manages opportunity listings, their sponsoring
// organizations and tags.
package opportunities

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/apperr"
	"github.com/evolnow/backend/internal/audit"
	"github.com/evolnow/backend/internal/identity"
	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/policy"
	"github.com/evolnow/backend/internal/scope"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/internal/tags"
)

const (
	msgNotFound    = "Opportunity not found."
	msgOrgNotFound = "Organization not found."

	subjectType = "opportunity"
)

// Sortable columns for List.
var sortable = map[string]bool{
	"name":        true,
	"description": true,
	"created_at":  true,
	"updated_at":  true,
	"start_date":  true,
}

// Input is the create/update payload. A nil OrganizationIDs or TagNames
// means the field was omitted; a non-nil empty slice clears it.
type Input struct {
	Name            string
	Description     string
	URL             *string
	StartDate       *time.Time
	EndDate         *time.Time
	StartTime       *string
	EndTime         *string
	OrganizationIDs *[]uuid.UUID
	TagNames        *[]string
}

// ListParams filters the admin index.
type ListParams struct {
	Search      string
	Name        string
	Description string
	Sort        string
	Direction   string
	Page        int
	PerPage     int
}

// Service implements opportunity operations.
type Service struct {
	store  store.Store
	policy *policy.Engine
	scope  *scope.Resolver
	audit  audit.Recorder
	logger *zap.Logger
}

// NewService creates an opportunity service. rec may be nil.
func NewService(st store.Store, p *policy.Engine, rec audit.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, policy: p, scope: scope.NewResolver(p), audit: rec, logger: logger}
}

// atomic runs fn in one transaction with a policy engine bound to it and
// publishes the collected audit events after commit.
func (s *Service) atomic(ctx context.Context, fn func(tx store.Store, p *policy.Engine, b *audit.Batch) error) error {
	var b audit.Batch
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		return fn(tx, s.policy.Bind(tx), &b)
	})
	if err != nil {
		return err
	}
	b.Flush(ctx, s.audit, s.logger)
	return nil
}

// List returns the actor's visible opportunities.
func (s *Service) List(ctx context.Context, a *identity.Actor, params ListParams) (models.Page[models.OpportunityDetail], error) {
	var page models.Page[models.OpportunityDetail]
	vis, err := s.scope.Opportunities(ctx, a)
	if err != nil {
		return page, err
	}
	p, perPage := models.ClampPage(params.Page, params.PerPage, 10, 100)
	sort := params.Sort
	if !sortable[sort] {
		sort = "created_at"
	}
	list, total, err := s.store.ListOpportunities(ctx, store.OpportunityQuery{
		Visibility:  vis,
		Search:      strings.TrimSpace(params.Search),
		Name:        strings.TrimSpace(params.Name),
		Description: strings.TrimSpace(params.Description),
		Sort:        sort,
		Desc:        params.Direction != "asc",
		Limit:       perPage,
		Offset:      (p - 1) * perPage,
	})
	if err != nil {
		return page, fmt.Errorf("list opportunities: %w", err)
	}
	page.Data = make([]models.OpportunityDetail, 0, len(list))
	for i := range list {
		d, err := detail(ctx, s.store, &list[i])
		if err != nil {
			return page, err
		}
		page.Data = append(page.Data, *d)
	}
	page.Meta = models.NewPageMeta(p, perPage, total)
	return page, nil
}

// Get returns one opportunity the actor may view.
func (s *Service) Get(ctx context.Context, a *identity.Actor, id uuid.UUID) (*models.OpportunityDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	o, err := load(ctx, s.store, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.policy.ViewOpportunity(ctx, a, id); err != nil {
		return nil, err
	}
	return detail(ctx, s.store, o)
}

// Create inserts an opportunity with its sponsors and tags.
func (s *Service) Create(ctx context.Context, a *identity.Actor, in Input) (*models.OpportunityDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	var orgIDs []uuid.UUID
	if in.OrganizationIDs != nil {
		orgIDs = dedupe(*in.OrganizationIDs)
	}
	var out *models.OpportunityDetail
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		if err := p.CreateOpportunity(ctx, a, orgIDs); err != nil {
			return err
		}
		if err := requireOrganizations(ctx, tx, orgIDs); err != nil {
			return err
		}
		o := &models.Opportunity{}
		apply(o, in)
		o.CreatedBy = ref(a.UserID)
		if err := tx.CreateOpportunity(ctx, o); err != nil {
			return fmt.Errorf("create opportunity: %w", err)
		}
		b.Add(event("opportunity.create", a, o.ID, "", uuid.Nil, ""))
		for _, orgID := range orgIDs {
			if err := attach(ctx, tx, b, a, o.ID, orgID); err != nil {
				return err
			}
		}
		if in.TagNames != nil {
			if err := syncTags(ctx, tx, b, a, o.ID, *in.TagNames); err != nil {
				return err
			}
		}
		d, err := detail(ctx, tx, o)
		out = d
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("opportunity created", zap.String("opportunity_id", out.ID.String()), zap.String("actor_id", a.UserID.String()))
	return out, nil
}

// Update replaces the opportunity's fields and, when present, re-syncs its
// sponsors and tags in the same transaction.
func (s *Service) Update(ctx context.Context, a *identity.Actor, id uuid.UUID, in Input) (*models.OpportunityDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	var out *models.OpportunityDetail
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		o, err := load(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := p.UpdateOpportunity(ctx, a, id); err != nil {
			return err
		}
		var target, removed []uuid.UUID
		if in.OrganizationIDs != nil {
			target = dedupe(*in.OrganizationIDs)
			if err := p.AssignOrganizations(ctx, a, target); err != nil {
				return err
			}
			if err := requireOrganizations(ctx, tx, target); err != nil {
				return err
			}
			current, err := tx.SponsorOrganizationIDs(ctx, id)
			if err != nil {
				return fmt.Errorf("load sponsors: %w", err)
			}
			removed = difference(current, target)
			for _, orgID := range removed {
				if err := p.DetachOrganization(ctx, a, id, orgID); err != nil {
					return err
				}
			}
		}

		apply(o, in)
		o.UpdatedBy = ref(a.UserID)
		if err := tx.UpdateOpportunity(ctx, o); err != nil {
			return fmt.Errorf("update opportunity: %w", err)
		}
		b.Add(event("opportunity.update", a, id, "", uuid.Nil, ""))

		for _, orgID := range removed {
			if err := detach(ctx, tx, b, a, id, orgID); err != nil {
				return err
			}
		}
		for _, orgID := range target {
			if err := attach(ctx, tx, b, a, id, orgID); err != nil {
				return err
			}
		}
		if in.TagNames != nil {
			if err := syncTags(ctx, tx, b, a, id, *in.TagNames); err != nil {
				return err
			}
		}
		fresh, err := load(ctx, tx, id, false)
		if err != nil {
			return err
		}
		out, err = detail(ctx, tx, fresh)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Delete soft-deletes an opportunity. Its pivots are left in place.
func (s *Service) Delete(ctx context.Context, a *identity.Actor, id uuid.UUID) error {
	if err := s.policy.RequireActor(a); err != nil {
		return err
	}
	return s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		if _, err := load(ctx, tx, id, false); err != nil {
			return err
		}
		if err := p.DeleteOpportunity(ctx, a, id); err != nil {
			return err
		}
		if err := tx.DeleteOpportunity(ctx, id, a.UserID); err != nil {
			return fmt.Errorf("delete opportunity: %w", err)
		}
		b.Add(event("opportunity.delete", a, id, "", uuid.Nil, ""))
		return nil
	})
}

// Restore undoes a soft delete.
func (s *Service) Restore(ctx context.Context, a *identity.Actor, id uuid.UUID) (*models.OpportunityDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	var out *models.OpportunityDetail
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		o, err := load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if err := p.RestoreOpportunity(ctx, a, id); err != nil {
			return err
		}
		if o.Trashed() {
			if err := tx.RestoreOpportunity(ctx, id, a.UserID); err != nil {
				return fmt.Errorf("restore opportunity: %w", err)
			}
			b.Add(event("opportunity.restore", a, id, "", uuid.Nil, ""))
		}
		fresh, err := load(ctx, tx, id, false)
		if err != nil {
			return err
		}
		out, err = detail(ctx, tx, fresh)
		return err
	})
	return out, err
}

// AttachOrganization adds a sponsor, restoring a previously detached one in place.
func (s *Service) AttachOrganization(ctx context.Context, a *identity.Actor, id, orgID uuid.UUID) (*models.OpportunityDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	var out *models.OpportunityDetail
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		o, err := load(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := requireOrganizations(ctx, tx, []uuid.UUID{orgID}); err != nil {
			return err
		}
		if err := p.AttachOrganization(ctx, a, id, orgID); err != nil {
			return err
		}
		if err := attach(ctx, tx, b, a, id, orgID); err != nil {
			return err
		}
		out, err = detail(ctx, tx, o)
		return err
	})
	return out, err
}

// DetachOrganization revokes a sponsor. Detaching an organization that is
// not attached is a no-op.
func (s *Service) DetachOrganization(ctx context.Context, a *identity.Actor, id, orgID uuid.UUID) (*models.OpportunityDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	var out *models.OpportunityDetail
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		o, err := load(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := requireOrganizations(ctx, tx, []uuid.UUID{orgID}); err != nil {
			return err
		}
		if err := p.DetachOrganization(ctx, a, id, orgID); err != nil {
			return err
		}
		if err := detach(ctx, tx, b, a, id, orgID); err != nil {
			return err
		}
		out, err = detail(ctx, tx, o)
		return err
	})
	return out, err
}

// AddTag attaches one tag by name.
func (s *Service) AddTag(ctx context.Context, a *identity.Actor, id uuid.UUID, name string) (*models.OpportunityDetail, error) {
	return s.changeTag(ctx, a, id, name, true)
}

// RemoveTag detaches one tag by name. Unknown names are ignored.
func (s *Service) RemoveTag(ctx context.Context, a *identity.Actor, id uuid.UUID, name string) (*models.OpportunityDetail, error) {
	return s.changeTag(ctx, a, id, name, false)
}

func (s *Service) changeTag(ctx context.Context, a *identity.Actor, id uuid.UUID, name string, add bool) (*models.OpportunityDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	if strings.TrimSpace(name) == "" {
		return nil, apperr.Invalid("The tag name field is required.")
	}
	var out *models.OpportunityDetail
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		o, err := load(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := p.UpdateOpportunity(ctx, a, id); err != nil {
			return err
		}
		owner := tags.Owner{Type: models.TaggableOpportunity, ID: id}
		var changed bool
		action := "opportunity.detach_tag"
		if add {
			action = "opportunity.attach_tag"
			changed, err = tags.Attach(ctx, tx, owner, name, a.UserID)
		} else {
			changed, err = tags.Detach(ctx, tx, owner, name, a.UserID)
		}
		if err != nil {
			return err
		}
		if changed {
			b.Add(event(action, a, id, "tag", uuid.Nil, strings.TrimSpace(name)))
		}
		out, err = detail(ctx, tx, o)
		return err
	})
	return out, err
}

func load(ctx context.Context, st store.Store, id uuid.UUID, withTrashed bool) (*models.Opportunity, error) {
	var (
		o   *models.Opportunity
		err error
	)
	if withTrashed {
		o, err = st.GetOpportunityWithTrashed(ctx, id)
	} else {
		o, err = st.GetOpportunity(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load opportunity: %w", err)
	}
	return o, nil
}

func detail(ctx context.Context, st store.Store, o *models.Opportunity) (*models.OpportunityDetail, error) {
	orgs, err := st.ListSponsors(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("load sponsors: %w", err)
	}
	names, err := tags.Names(ctx, st, tags.Owner{Type: models.TaggableOpportunity, ID: o.ID})
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	if orgs == nil {
		orgs = []models.OrganizationSummary{}
	}
	return &models.OpportunityDetail{Opportunity: *o, Organizations: orgs, Tags: names}, nil
}

// requireOrganizations fails with NotFound unless every id is a live organization.
func requireOrganizations(ctx context.Context, st store.Store, ids []uuid.UUID) error {
	for _, id := range ids {
		_, err := st.GetOrganization(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound(msgOrgNotFound)
		}
		if err != nil {
			return fmt.Errorf("load organization: %w", err)
		}
	}
	return nil
}

func attach(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id, orgID uuid.UUID) error {
	_, res, err := tx.AttachPivot(ctx, store.Sponsorship, id, orgID, store.AttachOptions{IsOwner: true, By: a.UserID})
	if err != nil {
		return fmt.Errorf("attach organization: %w", err)
	}
	if res != store.AlreadyActive {
		b.Add(event("opportunity.attach_organization", a, id, "organization", orgID, res.String()))
	}
	return nil
}

func detach(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id, orgID uuid.UUID) error {
	changed, err := tx.RevokePivot(ctx, store.Sponsorship, id, orgID, a.UserID)
	if err != nil {
		return fmt.Errorf("detach organization: %w", err)
	}
	if changed {
		b.Add(event("opportunity.detach_organization", a, id, "organization", orgID, ""))
	}
	return nil
}

func syncTags(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id uuid.UUID, names []string) error {
	owner := tags.Owner{Type: models.TaggableOpportunity, ID: id}
	if err := tags.Sync(ctx, tx, owner, names, a.UserID); err != nil {
		return err
	}
	b.Add(event("opportunity.sync_tags", a, id, "", uuid.Nil, strings.Join(tags.Normalize(names), ",")))
	return nil
}

func event(action string, a *identity.Actor, id uuid.UUID, relatedType string, relatedID uuid.UUID, detail string) audit.Event {
	return audit.Event{
		Action:      action,
		ActorID:     a.ID(),
		SubjectType: subjectType,
		SubjectID:   id,
		RelatedType: relatedType,
		RelatedID:   relatedID,
		Detail:      detail,
	}
}

func validate(in Input) error {
	if strings.TrimSpace(in.Name) == "" {
		return apperr.Invalid("The name field is required.")
	}
	if len(in.Name) > 255 {
		return apperr.Invalid("The name field must not be greater than 255 characters.")
	}
	start, err := clock(in.StartTime)
	if err != nil {
		return err
	}
	end, err := clock(in.EndTime)
	if err != nil {
		return err
	}
	if in.StartDate != nil && in.EndDate != nil {
		if in.EndDate.Before(*in.StartDate) {
			return apperr.Invalid("The end date must be a date after or equal to start date.")
		}
		if in.EndDate.Equal(*in.StartDate) && start != nil && end != nil && end.Before(*start) {
			return apperr.Invalid("The end time must not be before the start time.")
		}
	}
	return nil
}

func apply(o *models.Opportunity, in Input) {
	o.Name = strings.TrimSpace(in.Name)
	o.Description = in.Description
	o.URL = in.URL
	o.StartDate = in.StartDate
	o.EndDate = in.EndDate
	o.StartTime = hhmm(in.StartTime)
	o.EndTime = hhmm(in.EndTime)
}

// clock parses an optional HH:MM time of day; single-digit hours are accepted.
func clock(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	t, err := time.Parse("15:04", strings.TrimSpace(*s))
	if err != nil {
		return nil, apperr.Invalid("Times must use the HH:MM format.")
	}
	return &t, nil
}

// hhmm stores times zero-padded so they sort as strings. Input is validated.
func hhmm(s *string) *string {
	t, err := clock(s)
	if t == nil || err != nil {
		return s
	}
	v := t.Format("15:04")
	return &v
}

func ref(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// difference returns the ids in a that are not in b.
func difference(a, b []uuid.UUID) []uuid.UUID {
	keep := make(map[uuid.UUID]struct{}, len(b))
	for _, id := range b {
		keep[id] = struct{}{}
	}
	var out []uuid.UUID
	for _, id := range a {
		if _, ok := keep[id]; !ok {
			out = append(out, id)
		}
	}
	return out
}
