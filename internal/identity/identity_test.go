package identity

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/internal/store/memory"
)

func grant(t *testing.T, s store.Store, user uuid.UUID, role models.Role) {
	t.Helper()
	ctx := context.Background()
	roleID, err := s.RoleID(ctx, role)
	require.NoError(t, err)
	_, _, err = s.AttachPivot(ctx, store.RoleAssignment, user, roleID, store.AttachOptions{})
	require.NoError(t, err)
}

func TestRoles(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := NewService(s)
	a := &Actor{UserID: uuid.New()}

	roles, err := svc.Roles(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleUser}, roles)

	grant(t, s, a.UserID, models.RoleAdmin)
	ok, err := svc.IsAdmin(ctx, a)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = svc.HasAnyRole(ctx, a, models.RoleOrganizationManager, models.RoleAdmin)
	require.NoError(t, err)
	assert.True(t, ok)

	// Revoked assignments no longer count.
	roleID, _ := s.RoleID(ctx, models.RoleAdmin)
	_, err = s.RevokePivot(ctx, store.RoleAssignment, a.UserID, roleID, uuid.Nil)
	require.NoError(t, err)
	ok, err = svc.IsAdmin(ctx, a)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNilActor(t *testing.T) {
	ctx := context.Background()
	svc := NewService(memory.New())
	ok, err := svc.HasRole(ctx, nil, models.RoleUser)
	require.NoError(t, err)
	assert.False(t, ok)
	set, err := svc.ManageableOrganizationIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, set)
	var a *Actor
	assert.Equal(t, uuid.Nil, a.ID())
}

func TestManageableOrganizationIDs_TracksPivots(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	svc := NewService(s)
	a := &Actor{UserID: uuid.New()}
	x := &models.Organization{Name: "X"}
	y := &models.Organization{Name: "Y"}
	require.NoError(t, s.CreateOrganization(ctx, x))
	require.NoError(t, s.CreateOrganization(ctx, y))

	_, _, err := s.AttachPivot(ctx, store.Membership, x.ID, a.UserID, store.AttachOptions{})
	require.NoError(t, err)
	set, err := svc.ManageableOrganizationIDs(ctx, a)
	require.NoError(t, err)
	assert.True(t, set.Has(x.ID))
	assert.False(t, set.Has(y.ID))

	_, err = s.RevokePivot(ctx, store.Membership, x.ID, a.UserID, uuid.Nil)
	require.NoError(t, err)
	member, err := svc.IsMember(ctx, a, x.ID)
	require.NoError(t, err)
	assert.False(t, member)
}
