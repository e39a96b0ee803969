// Package organizations manages organizations and their memberships.
package organizations

import (
	"context"
	"errors"
	"fmt"
	"strings"

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
	msgNotFound     = "Organization not found."
	msgUserNotFound = "User not found."

	listLimit   = 50
	subjectType = "organization"
)

// Input is the create/update payload. A nil UserIDs or TagNames means the
// field was omitted.
type Input struct {
	Name        string
	Description string
	UserIDs     *[]uuid.UUID
	TagNames    *[]string
}

// Service implements organization operations.
type Service struct {
	store  store.Store
	policy *policy.Engine
	scope  *scope.Resolver
	audit  audit.Recorder
	logger *zap.Logger
}

// NewService creates an organization service. rec may be nil.
func NewService(st store.Store, p *policy.Engine, rec audit.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, policy: p, scope: scope.NewResolver(p), audit: rec, logger: logger}
}

func (s *Service) atomic(ctx context.Context, fn func(tx store.Store, p *policy.Engine, b *audit.Batch) error) error {
	var b audit.Batch
	if err := s.store.WithTx(ctx, func(tx store.Store) error {
		return fn(tx, s.policy.Bind(tx), &b)
	}); err != nil {
		return err
	}
	b.Flush(ctx, s.audit, s.logger)
	return nil
}

// List returns up to 50 organizations visible to the actor, ordered by name.
func (s *Service) List(ctx context.Context, a *identity.Actor, search string) ([]models.OrganizationDetail, error) {
	vis, err := s.scope.Organizations(ctx, a)
	if err != nil {
		return nil, err
	}
	list, err := s.store.ListOrganizations(ctx, store.OrganizationQuery{
		Visibility: vis,
		Search:     strings.TrimSpace(search),
		Limit:      listLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list organizations: %w", err)
	}
	out := make([]models.OrganizationDetail, 0, len(list))
	for i := range list {
		d, err := detail(ctx, s.store, &list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *d)
	}
	return out, nil
}

// Get returns one organization the actor may view.
func (s *Service) Get(ctx context.Context, a *identity.Actor, id uuid.UUID) (*models.OrganizationDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	o, err := load(ctx, s.store, id, false)
	if err != nil {
		return nil, err
	}
	if err := s.policy.ViewOrganization(ctx, a, id); err != nil {
		return nil, err
	}
	return detail(ctx, s.store, o)
}

// Create inserts an organization with its initial members and tags.
func (s *Service) Create(ctx context.Context, a *identity.Actor, in Input) (*models.OrganizationDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	var out *models.OrganizationDetail
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		if err := p.CreateOrganization(ctx, a); err != nil {
			return err
		}
		o := &models.Organization{Name: strings.TrimSpace(in.Name), Description: in.Description}
		o.CreatedBy = ref(a.UserID)
		if err := tx.CreateOrganization(ctx, o); err != nil {
			return fmt.Errorf("create organization: %w", err)
		}
		b.Add(event("organization.create", a, o.ID, "", uuid.Nil, ""))
		if in.UserIDs != nil {
			if err := syncMembers(ctx, tx, b, a, o.ID, *in.UserIDs); err != nil {
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
	s.logger.Info("organization created", zap.String("organization_id", out.ID.String()), zap.String("actor_id", a.UserID.String()))
	return out, nil
}

// Update changes the organization's fields. Membership changes through
// UserIDs are applied for admins only and ignored for managers.
func (s *Service) Update(ctx context.Context, a *identity.Actor, id uuid.UUID, in Input) (*models.OrganizationDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	var out *models.OrganizationDetail
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		o, err := load(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := p.UpdateOrganization(ctx, a, id); err != nil {
			return err
		}
		userIDs := in.UserIDs
		if userIDs != nil {
			if err := p.ManageMembership(ctx, a); err != nil {
				if apperr.KindOf(err) != apperr.KindForbidden {
					return err
				}
				s.logger.Debug("ignoring user_ids from non-admin", zap.String("actor_id", a.UserID.String()))
				userIDs = nil
			}
		}
		o.Name = strings.TrimSpace(in.Name)
		o.Description = in.Description
		o.UpdatedBy = ref(a.UserID)
		if err := tx.UpdateOrganization(ctx, o); err != nil {
			return fmt.Errorf("update organization: %w", err)
		}
		b.Add(event("organization.update", a, id, "", uuid.Nil, ""))
		if userIDs != nil {
			if err := syncMembers(ctx, tx, b, a, id, *userIDs); err != nil {
				return err
			}
		}
		if in.TagNames != nil {
			if err := syncTags(ctx, tx, b, a, id, *in.TagNames); err != nil {
				return err
			}
		}
		out, err = detail(ctx, tx, o)
		return err
	})
	return out, err
}

// Delete soft-deletes an organization. Memberships and sponsorships stay in
// place but stop counting while the organization is deleted.
func (s *Service) Delete(ctx context.Context, a *identity.Actor, id uuid.UUID) error {
	if err := s.policy.RequireActor(a); err != nil {
		return err
	}
	return s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		if err := p.DeleteOrganization(ctx, a); err != nil {
			return err
		}
		if _, err := load(ctx, tx, id, false); err != nil {
			return err
		}
		if err := tx.DeleteOrganization(ctx, id, a.UserID); err != nil {
			return fmt.Errorf("delete organization: %w", err)
		}
		b.Add(event("organization.delete", a, id, "", uuid.Nil, ""))
		return nil
	})
}

// Restore undoes a soft delete.
func (s *Service) Restore(ctx context.Context, a *identity.Actor, id uuid.UUID) (*models.OrganizationDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	var out *models.OrganizationDetail
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		if err := p.RestoreOrganization(ctx, a); err != nil {
			return err
		}
		o, err := load(ctx, tx, id, true)
		if err != nil {
			return err
		}
		if o.Trashed() {
			if err := tx.RestoreOrganization(ctx, id, a.UserID); err != nil {
				return fmt.Errorf("restore organization: %w", err)
			}
			b.Add(event("organization.restore", a, id, "", uuid.Nil, ""))
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

// AttachUser adds a member, restoring a revoked membership in place.
func (s *Service) AttachUser(ctx context.Context, a *identity.Actor, id, userID uuid.UUID) (*models.OrganizationDetail, error) {
	return s.changeMember(ctx, a, id, userID, true)
}

// DetachUser revokes a membership. Revoking a missing membership is a no-op.
func (s *Service) DetachUser(ctx context.Context, a *identity.Actor, id, userID uuid.UUID) (*models.OrganizationDetail, error) {
	return s.changeMember(ctx, a, id, userID, false)
}

func (s *Service) changeMember(ctx context.Context, a *identity.Actor, id, userID uuid.UUID, add bool) (*models.OrganizationDetail, error) {
	if err := s.policy.RequireActor(a); err != nil {
		return nil, err
	}
	var out *models.OrganizationDetail
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		if err := p.ManageMembership(ctx, a); err != nil {
			return err
		}
		o, err := load(ctx, tx, id, false)
		if err != nil {
			return err
		}
		if err := requireUsers(ctx, tx, []uuid.UUID{userID}); err != nil {
			return err
		}
		if add {
			err = attachMember(ctx, tx, b, a, id, userID)
		} else {
			err = detachMember(ctx, tx, b, a, id, userID)
		}
		if err != nil {
			return err
		}
		out, err = detail(ctx, tx, o)
		return err
	})
	return out, err
}

func load(ctx context.Context, st store.Store, id uuid.UUID, withTrashed bool) (*models.Organization, error) {
	var (
		o   *models.Organization
		err error
	)
	if withTrashed {
		o, err = st.GetOrganizationWithTrashed(ctx, id)
	} else {
		o, err = st.GetOrganization(ctx, id)
	}
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load organization: %w", err)
	}
	return o, nil
}

func detail(ctx context.Context, st store.Store, o *models.Organization) (*models.OrganizationDetail, error) {
	members, err := st.ListMembers(ctx, o.ID)
	if err != nil {
		return nil, fmt.Errorf("load members: %w", err)
	}
	names, err := tags.Names(ctx, st, tags.Owner{Type: models.TaggableOrganization, ID: o.ID})
	if err != nil {
		return nil, fmt.Errorf("load tags: %w", err)
	}
	users := make([]models.UserPublic, 0, len(members))
	for i := range members {
		users = append(users, members[i].ToPublic())
	}
	return &models.OrganizationDetail{Organization: *o, Users: users, Tags: names}, nil
}

func requireUsers(ctx context.Context, st store.Store, ids []uuid.UUID) error {
	for _, id := range ids {
		_, err := st.GetUser(ctx, id)
		if errors.Is(err, store.ErrNotFound) {
			return apperr.NotFound(msgUserNotFound)
		}
		if err != nil {
			return fmt.Errorf("load user: %w", err)
		}
	}
	return nil
}

// syncMembers makes the active memberships exactly userIDs.
func syncMembers(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id uuid.UUID, userIDs []uuid.UUID) error {
	if err := requireUsers(ctx, tx, userIDs); err != nil {
		return err
	}
	want := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, u := range userIDs {
		want[u] = struct{}{}
	}
	current, err := tx.ListPivots(ctx, store.Membership, id, false)
	if err != nil {
		return fmt.Errorf("list members: %w", err)
	}
	for _, p := range current {
		if _, keep := want[p.RightID]; !keep {
			if err := detachMember(ctx, tx, b, a, id, p.RightID); err != nil {
				return err
			}
		}
	}
	for _, u := range userIDs {
		if err := attachMember(ctx, tx, b, a, id, u); err != nil {
			return err
		}
	}
	return nil
}

func attachMember(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id, userID uuid.UUID) error {
	_, res, err := tx.AttachPivot(ctx, store.Membership, id, userID, store.AttachOptions{By: a.UserID})
	if err != nil {
		return fmt.Errorf("attach user: %w", err)
	}
	if res != store.AlreadyActive {
		b.Add(event("organization.attach_user", a, id, "user", userID, res.String()))
	}
	return nil
}

func detachMember(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id, userID uuid.UUID) error {
	changed, err := tx.RevokePivot(ctx, store.Membership, id, userID, a.UserID)
	if err != nil {
		return fmt.Errorf("detach user: %w", err)
	}
	if changed {
		b.Add(event("organization.detach_user", a, id, "user", userID, ""))
	}
	return nil
}

func syncTags(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id uuid.UUID, names []string) error {
	if err := tags.Sync(ctx, tx, tags.Owner{Type: models.TaggableOrganization, ID: id}, names, a.UserID); err != nil {
		return err
	}
	b.Add(event("organization.sync_tags", a, id, "", uuid.Nil, strings.Join(tags.Normalize(names), ",")))
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
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return apperr.Invalid("The name field is required.")
	}
	if len(name) > 255 {
		return apperr.Invalid("The name field must not be greater than 255 characters.")
	}
	return nil
}

func ref(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
