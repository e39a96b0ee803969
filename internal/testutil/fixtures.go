// Package testutil builds users, organizations and opportunities on a store
// for package tests.
package testutil

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/evolnow/backend/internal/identity"
	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

// Fixture wraps a store with helpers that fail the test on error.
type Fixture struct {
	T     *testing.T
	Store store.Store
	Ctx   context.Context
}

func New(t *testing.T, s store.Store) *Fixture {
	return &Fixture{T: t, Store: s, Ctx: context.Background()}
}

// User creates a user holding roles and returns it as an actor.
func (f *Fixture) User(email string, roles ...models.Role) *identity.Actor {
	f.T.Helper()
	u := &models.User{FirstName: "Test", LastName: email, Email: email}
	require.NoError(f.T, f.Store.CreateUser(f.Ctx, u))
	for _, r := range roles {
		f.Grant(u.ID, r)
	}
	return &identity.Actor{UserID: u.ID, Email: u.Email}
}

func (f *Fixture) Admin(email string) *identity.Actor {
	return f.User(email, models.RoleAdmin)
}

func (f *Fixture) Manager(email string, orgs ...uuid.UUID) *identity.Actor {
	f.T.Helper()
	a := f.User(email, models.RoleOrganizationManager)
	for _, o := range orgs {
		f.Join(o, a.UserID)
	}
	return a
}

func (f *Fixture) Grant(userID uuid.UUID, role models.Role) {
	f.T.Helper()
	roleID, err := f.Store.RoleID(f.Ctx, role)
	require.NoError(f.T, err)
	_, _, err = f.Store.AttachPivot(f.Ctx, store.RoleAssignment, userID, roleID, store.AttachOptions{})
	require.NoError(f.T, err)
}

func (f *Fixture) Org(name string) uuid.UUID {
	f.T.Helper()
	o := &models.Organization{Name: name}
	require.NoError(f.T, f.Store.CreateOrganization(f.Ctx, o))
	return o.ID
}

func (f *Fixture) Join(orgID, userID uuid.UUID) {
	f.T.Helper()
	_, _, err := f.Store.AttachPivot(f.Ctx, store.Membership, orgID, userID, store.AttachOptions{})
	require.NoError(f.T, err)
}

func (f *Fixture) Leave(orgID, userID uuid.UUID) {
	f.T.Helper()
	_, err := f.Store.RevokePivot(f.Ctx, store.Membership, orgID, userID, uuid.Nil)
	require.NoError(f.T, err)
}

// Opportunity creates an opportunity sponsored by orgs; the first is the owner.
func (f *Fixture) Opportunity(name string, orgs ...uuid.UUID) uuid.UUID {
	f.T.Helper()
	o := &models.Opportunity{Name: name}
	require.NoError(f.T, f.Store.CreateOpportunity(f.Ctx, o))
	for i, org := range orgs {
		f.Sponsor(o.ID, org, i == 0)
	}
	return o.ID
}

func (f *Fixture) Sponsor(oppID, orgID uuid.UUID, owner bool) {
	f.T.Helper()
	_, _, err := f.Store.AttachPivot(f.Ctx, store.Sponsorship, oppID, orgID, store.AttachOptions{IsOwner: owner})
	require.NoError(f.T, err)
}

// ActiveSponsors returns the opportunity's sponsor ids.
func (f *Fixture) ActiveSponsors(oppID uuid.UUID) []uuid.UUID {
	f.T.Helper()
	ids, err := f.Store.SponsorOrganizationIDs(f.Ctx, oppID)
	require.NoError(f.T, err)
	return ids
}
