// Package store defines the persistence contract for users, organizations,
// opportunities, tags and their soft-deletable associations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/models"
)

// ErrNotFound is returned when a row does not exist or is soft-deleted.
var ErrNotFound = errors.New("not found")

// ErrDuplicate is returned when a unique entity column collides (e.g. user email).
var ErrDuplicate = errors.New("duplicate")

// Relation identifies a many-to-many association table.
type Relation int

const (
	// Membership links organization (left) to user (right).
	Membership Relation = iota
	// Sponsorship links opportunity (left) to organization (right).
	Sponsorship
	// RoleAssignment links user (left) to role (right).
	RoleAssignment
	// OpportunityTag links opportunity (left) to tag (right).
	OpportunityTag
	// OrganizationTag links organization (left) to tag (right).
	OrganizationTag
)

func (r Relation) String() string {
	switch r {
	case Membership:
		return "organization_user"
	case Sponsorship:
		return "opportunity_organization"
	case RoleAssignment:
		return "role_user"
	case OpportunityTag:
		return "taggables:opportunity"
	case OrganizationTag:
		return "taggables:organization"
	}
	return "unknown"
}

// TagRelation returns the tag relation for an owner type.
func TagRelation(t models.TaggableType) Relation {
	if t == models.TaggableOrganization {
		return OrganizationTag
	}
	return OpportunityTag
}

// RefreshesCreation reports whether restoring a revoked row re-stamps its creation attribution.
func (r Relation) RefreshesCreation() bool {
	return r == OpportunityTag || r == OrganizationTag
}

// AttachResult tells what AttachPivot did.
type AttachResult int

const (
	Inserted AttachResult = iota
	Restored
	AlreadyActive
)

func (a AttachResult) String() string {
	switch a {
	case Restored:
		return "restored"
	case AlreadyActive:
		return "already_active"
	}
	return "inserted"
}

// AttachOptions carries pivot attributes and attribution.
type AttachOptions struct {
	IsOwner bool
	By      uuid.UUID
}

// Visibility narrows a listing to what an actor may see.
type Visibility struct {
	All      bool
	MemberID uuid.UUID // current membership required when All is false
}

// OpportunityQuery filters ListOpportunities.
type OpportunityQuery struct {
	Visibility  Visibility
	Search      string
	Name        string
	Description string
	Sort        string // name, description, created_at, updated_at, start_date
	Desc        bool
	Limit       int
	Offset      int
}

// DateFilter compares start_date with an operator: eq, gt, gte, lt, lte.
type DateFilter struct {
	Date     time.Time
	Operator string
}

// OpportunitySearch filters the public database search.
type OpportunitySearch struct {
	Text          []string
	Organizations []string
	Tags          []string
	StartDate     *DateFilter
	Limit         int
	Offset        int
}

// OrganizationQuery filters ListOrganizations.
type OrganizationQuery struct {
	Visibility Visibility
	Search     string
	Limit      int
}

// Users persists users and their roles.
type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	ListUsers(ctx context.Context) ([]models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	DeleteUser(ctx context.Context, id, by uuid.UUID) error
	RoleID(ctx context.Context, role models.Role) (uuid.UUID, error)
	// UserRoles returns roles held through active role_user rows.
	UserRoles(ctx context.Context, userID uuid.UUID) ([]models.Role, error)
}

// Organizations persists organizations.
type Organizations interface {
	CreateOrganization(ctx context.Context, o *models.Organization) error
	GetOrganization(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	GetOrganizationWithTrashed(ctx context.Context, id uuid.UUID) (*models.Organization, error)
	ListOrganizations(ctx context.Context, q OrganizationQuery) ([]models.Organization, error)
	UpdateOrganization(ctx context.Context, o *models.Organization) error
	DeleteOrganization(ctx context.Context, id, by uuid.UUID) error
	RestoreOrganization(ctx context.Context, id, by uuid.UUID) error
	// MemberOrganizationIDs returns live organizations with an active membership for the user.
	MemberOrganizationIDs(ctx context.Context, userID uuid.UUID) ([]uuid.UUID, error)
	ListMembers(ctx context.Context, orgID uuid.UUID) ([]models.User, error)
	ListUserOrganizations(ctx context.Context, userID uuid.UUID) ([]models.OrganizationSummary, error)
}

// Opportunities persists opportunities.
type Opportunities interface {
	CreateOpportunity(ctx context.Context, o *models.Opportunity) error
	GetOpportunity(ctx context.Context, id uuid.UUID) (*models.Opportunity, error)
	GetOpportunityWithTrashed(ctx context.Context, id uuid.UUID) (*models.Opportunity, error)
	ListOpportunities(ctx context.Context, q OpportunityQuery) ([]models.Opportunity, int, error)
	SearchOpportunities(ctx context.Context, q OpportunitySearch) ([]models.Opportunity, int, error)
	UpdateOpportunity(ctx context.Context, o *models.Opportunity) error
	DeleteOpportunity(ctx context.Context, id, by uuid.UUID) error
	RestoreOpportunity(ctx context.Context, id, by uuid.UUID) error
	// SponsorOrganizationIDs returns live organizations with an active sponsorship of the opportunity.
	SponsorOrganizationIDs(ctx context.Context, opportunityID uuid.UUID) ([]uuid.UUID, error)
	ListSponsors(ctx context.Context, opportunityID uuid.UUID) ([]models.OrganizationSummary, error)
}

// Tags persists tag names.
type Tags interface {
	// FindOrCreateTag returns the tag with exactly this name, creating it if needed.
	FindOrCreateTag(ctx context.Context, name string, by uuid.UUID) (*models.Tag, error)
	GetTagByName(ctx context.Context, name string) (*models.Tag, error)
	// ListTags returns tags with an active association to the owner.
	ListTags(ctx context.Context, rel Relation, ownerID uuid.UUID) ([]models.Tag, error)
}

// Pivots manages association rows for every Relation.
type Pivots interface {
	// FindPivot returns the row for a pair, revoked or not.
	FindPivot(ctx context.Context, rel Relation, left, right uuid.UUID) (*models.Pivot, error)
	ListPivots(ctx context.Context, rel Relation, left uuid.UUID, includeRevoked bool) ([]models.Pivot, error)
	// AttachPivot inserts a row, restores a revoked row in place, or leaves an active row untouched.
	AttachPivot(ctx context.Context, rel Relation, left, right uuid.UUID, opts AttachOptions) (*models.Pivot, AttachResult, error)
	// RevokePivot soft-deletes an active row; it reports whether a row changed.
	RevokePivot(ctx context.Context, rel Relation, left, right, by uuid.UUID) (bool, error)
}

// Store is the full persistence contract.
type Store interface {
	Users
	Organizations
	Opportunities
	Tags
	Pivots
	// WithTx runs fn atomically. Calls on a store already inside a transaction join it.
	WithTx(ctx context.Context, fn func(tx Store) error) error
}
