// Package users manages platform users, their roles and memberships.
package users

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
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/pkg/utils"
)

const (
	msgNotFound    = "User not found."
	msgOrgNotFound = "Organization not found."
	msgEmailTaken  = "The email has already been taken."

	subjectType = "user"
)

// Input is the create/update payload. A blank Password keeps the current
// one on update and generates a random one on create. Nil OrganizationIDs
// or Roles means the field was omitted.
type Input struct {
	FirstName       string
	LastName        string
	Email           string
	Password        string
	OrganizationIDs *[]uuid.UUID
	Roles           *[]models.Role
}

// Service implements user administration.
type Service struct {
	store  store.Store
	policy *policy.Engine
	audit  audit.Recorder
	logger *zap.Logger
}

// NewService creates a user service. rec may be nil.
func NewService(st store.Store, p *policy.Engine, rec audit.Recorder, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{store: st, policy: p, audit: rec, logger: logger}
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

// Me returns the actor's own profile with roles and organizations.
func (s *Service) Me(ctx context.Context, a *identity.Actor) (*models.UserPublic, error) {
	if err := s.policy.ViewUser(ctx, a, a.ID()); err != nil {
		return nil, err
	}
	u, err := load(ctx, s.store, a.UserID)
	if err != nil {
		return nil, err
	}
	return public(ctx, s.store, u)
}

// List returns every live user.
func (s *Service) List(ctx context.Context, a *identity.Actor) ([]models.UserPublic, error) {
	if err := s.policy.ManageUsers(ctx, a); err != nil {
		return nil, err
	}
	list, err := s.store.ListUsers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	out := make([]models.UserPublic, 0, len(list))
	for i := range list {
		p, err := public(ctx, s.store, &list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, nil
}

// Get returns one user.
func (s *Service) Get(ctx context.Context, a *identity.Actor, id uuid.UUID) (*models.UserPublic, error) {
	if err := s.policy.ViewUser(ctx, a, id); err != nil {
		return nil, err
	}
	u, err := load(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	return public(ctx, s.store, u)
}

// Create inserts a user. Users without explicit roles get the user role.
func (s *Service) Create(ctx context.Context, a *identity.Actor, in Input) (*models.UserPublic, error) {
	if err := s.policy.ManageUsers(ctx, a); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	password := in.Password
	generated := password == ""
	if generated {
		password = utils.RandomPassword()
	}
	hash, err := utils.HashPassword(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	var out *models.UserPublic
	err = s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		u := &models.User{
			FirstName: strings.TrimSpace(in.FirstName),
			LastName:  strings.TrimSpace(in.LastName),
			Email:     strings.TrimSpace(in.Email),
			Password:  hash,
		}
		u.CreatedBy = ref(a.UserID)
		if err := tx.CreateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Invalid(msgEmailTaken)
			}
			return fmt.Errorf("create user: %w", err)
		}
		b.Add(event("user.create", a, u.ID, "", uuid.Nil, ""))
		if in.OrganizationIDs != nil {
			if err := syncOrganizations(ctx, tx, b, a, u.ID, *in.OrganizationIDs); err != nil {
				return err
			}
		}
		roles := []models.Role{models.RoleUser}
		if in.Roles != nil && len(*in.Roles) > 0 {
			roles = *in.Roles
		}
		if err := syncRoles(ctx, tx, b, a, u.ID, roles); err != nil {
			return err
		}
		pub, err := public(ctx, tx, u)
		out = pub
		return err
	})
	if err != nil {
		return nil, err
	}
	if generated {
		// Password reset mail delivery is handled outside this service.
		s.logger.Info("user created with generated password", zap.String("user_id", out.ID.String()))
	}
	return out, nil
}

// Update changes a user's profile and, when present, their organizations and roles.
func (s *Service) Update(ctx context.Context, a *identity.Actor, id uuid.UUID, in Input) (*models.UserPublic, error) {
	if err := s.policy.ManageUsers(ctx, a); err != nil {
		return nil, err
	}
	if err := validate(in); err != nil {
		return nil, err
	}
	var hash string
	if in.Password != "" {
		h, err := utils.HashPassword(in.Password)
		if err != nil {
			return nil, fmt.Errorf("hash password: %w", err)
		}
		hash = h
	}
	var out *models.UserPublic
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		u, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		u.FirstName = strings.TrimSpace(in.FirstName)
		u.LastName = strings.TrimSpace(in.LastName)
		u.Email = strings.TrimSpace(in.Email)
		u.Password = hash
		u.UpdatedBy = ref(a.UserID)
		if err := tx.UpdateUser(ctx, u); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				return apperr.Invalid(msgEmailTaken)
			}
			return fmt.Errorf("update user: %w", err)
		}
		b.Add(event("user.update", a, id, "", uuid.Nil, ""))
		if in.OrganizationIDs != nil {
			if err := syncOrganizations(ctx, tx, b, a, id, *in.OrganizationIDs); err != nil {
				return err
			}
		}
		if in.Roles != nil {
			if err := syncRoles(ctx, tx, b, a, id, *in.Roles); err != nil {
				return err
			}
		}
		out, err = public(ctx, tx, u)
		return err
	})
	return out, err
}

// Delete soft-deletes a user. Their bearer tokens stop resolving.
func (s *Service) Delete(ctx context.Context, a *identity.Actor, id uuid.UUID) error {
	if err := s.policy.ManageUsers(ctx, a); err != nil {
		return err
	}
	return s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		if _, err := load(ctx, tx, id); err != nil {
			return err
		}
		if err := tx.DeleteUser(ctx, id, a.UserID); err != nil {
			return fmt.Errorf("delete user: %w", err)
		}
		b.Add(event("user.delete", a, id, "", uuid.Nil, ""))
		return nil
	})
}

// AttachOrganization adds a membership from the user side.
func (s *Service) AttachOrganization(ctx context.Context, a *identity.Actor, id, orgID uuid.UUID) (*models.UserPublic, error) {
	return s.changeMembership(ctx, a, id, orgID, true)
}

// DetachOrganization revokes a membership from the user side.
func (s *Service) DetachOrganization(ctx context.Context, a *identity.Actor, id, orgID uuid.UUID) (*models.UserPublic, error) {
	return s.changeMembership(ctx, a, id, orgID, false)
}

func (s *Service) changeMembership(ctx context.Context, a *identity.Actor, id, orgID uuid.UUID, add bool) (*models.UserPublic, error) {
	if err := s.policy.ManageUsers(ctx, a); err != nil {
		return nil, err
	}
	var out *models.UserPublic
	err := s.atomic(ctx, func(tx store.Store, p *policy.Engine, b *audit.Batch) error {
		u, err := load(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := requireOrganizations(ctx, tx, []uuid.UUID{orgID}); err != nil {
			return err
		}
		if add {
			err = attachMembership(ctx, tx, b, a, id, orgID)
		} else {
			err = detachMembership(ctx, tx, b, a, id, orgID)
		}
		if err != nil {
			return err
		}
		out, err = public(ctx, tx, u)
		return err
	})
	return out, err
}

func load(ctx context.Context, st store.Store, id uuid.UUID) (*models.User, error) {
	u, err := st.GetUser(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.NotFound(msgNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return u, nil
}

func public(ctx context.Context, st store.Store, u *models.User) (*models.UserPublic, error) {
	orgs, err := st.ListUserOrganizations(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load organizations: %w", err)
	}
	roles, err := st.UserRoles(ctx, u.ID)
	if err != nil {
		return nil, fmt.Errorf("load roles: %w", err)
	}
	p := u.ToPublic()
	if orgs != nil {
		p.Organizations = orgs
	}
	if roles != nil {
		p.Roles = roles
	}
	return &p, nil
}

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

func syncOrganizations(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id uuid.UUID, orgIDs []uuid.UUID) error {
	if err := requireOrganizations(ctx, tx, orgIDs); err != nil {
		return err
	}
	want := make(map[uuid.UUID]struct{}, len(orgIDs))
	for _, o := range orgIDs {
		want[o] = struct{}{}
	}
	current, err := tx.ListUserOrganizations(ctx, id)
	if err != nil {
		return fmt.Errorf("load organizations: %w", err)
	}
	for _, o := range current {
		if _, keep := want[o.ID]; !keep {
			if err := detachMembership(ctx, tx, b, a, id, o.ID); err != nil {
				return err
			}
		}
	}
	for _, o := range orgIDs {
		if err := attachMembership(ctx, tx, b, a, id, o); err != nil {
			return err
		}
	}
	return nil
}

// syncRoles makes the active role assignments exactly roles.
func syncRoles(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id uuid.UUID, roles []models.Role) error {
	want := make(map[uuid.UUID]models.Role, len(roles))
	for _, r := range roles {
		roleID, err := tx.RoleID(ctx, r)
		if err != nil {
			return fmt.Errorf("role %s: %w", r, err)
		}
		want[roleID] = r
	}
	current, err := tx.ListPivots(ctx, store.RoleAssignment, id, false)
	if err != nil {
		return fmt.Errorf("list roles: %w", err)
	}
	for _, p := range current {
		if _, keep := want[p.RightID]; keep {
			continue
		}
		changed, err := tx.RevokePivot(ctx, store.RoleAssignment, id, p.RightID, a.UserID)
		if err != nil {
			return fmt.Errorf("revoke role: %w", err)
		}
		if changed {
			b.Add(event("user.revoke_role", a, id, "role", p.RightID, ""))
		}
	}
	for roleID, r := range want {
		_, res, err := tx.AttachPivot(ctx, store.RoleAssignment, id, roleID, store.AttachOptions{By: a.UserID})
		if err != nil {
			return fmt.Errorf("assign role: %w", err)
		}
		if res != store.AlreadyActive {
			b.Add(event("user.assign_role", a, id, "role", roleID, string(r)))
		}
	}
	return nil
}

func attachMembership(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id, orgID uuid.UUID) error {
	_, res, err := tx.AttachPivot(ctx, store.Membership, orgID, id, store.AttachOptions{By: a.UserID})
	if err != nil {
		return fmt.Errorf("attach organization: %w", err)
	}
	if res != store.AlreadyActive {
		b.Add(event("user.attach_organization", a, id, "organization", orgID, res.String()))
	}
	return nil
}

func detachMembership(ctx context.Context, tx store.Store, b *audit.Batch, a *identity.Actor, id, orgID uuid.UUID) error {
	changed, err := tx.RevokePivot(ctx, store.Membership, orgID, id, a.UserID)
	if err != nil {
		return fmt.Errorf("detach organization: %w", err)
	}
	if changed {
		b.Add(event("user.detach_organization", a, id, "organization", orgID, ""))
	}
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
	switch {
	case strings.TrimSpace(in.FirstName) == "":
		return apperr.Invalid("The first name field is required.")
	case strings.TrimSpace(in.LastName) == "":
		return apperr.Invalid("The last name field is required.")
	case strings.TrimSpace(in.Email) == "":
		return apperr.Invalid("The email field is required.")
	case in.Password != "" && len(in.Password) < utils.MinPasswordLength:
		return apperr.Invalid("The password field must be at least 8 characters.")
	}
	return nil
}

func ref(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}
