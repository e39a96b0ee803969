package organizations

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/apperr"
	"github.com/evolnow/backend/internal/audit"
	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/policy"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/internal/store/memory"
	"github.com/evolnow/backend/internal/testutil"
)

func setup(t *testing.T) (*Service, *testutil.Fixture, *audit.MemoryRecorder) {
	s := memory.New()
	rec := &audit.MemoryRecorder{}
	return NewService(s, policy.NewEngine(s, nil, zap.NewNop()), rec, zap.NewNop()), testutil.New(t, s), rec
}

func ids(list ...uuid.UUID) *[]uuid.UUID { return &list }

func orgNames(list []models.OrganizationDetail) []string {
	var out []string
	for _, o := range list {
		out = append(out, o.Name)
	}
	return out
}

func memberIDs(d *models.OrganizationDetail) []uuid.UUID {
	var out []uuid.UUID
	for _, u := range d.Users {
		out = append(out, u.ID)
	}
	return out
}

// Admin creates Org1 with U1 and U2; U1 sees it, U3 does not.
func TestCreateWithMembers_ListingScoped(t *testing.T) {
	svc, f, rec := setup(t)
	ctx := context.Background()
	admin := f.Admin("admin@example.org")
	u1, u2, u3 := f.User("u1@example.org"), f.User("u2@example.org"), f.User("u3@example.org")

	d, err := svc.Create(ctx, admin, Input{Name: "Org1", UserIDs: ids(u1.UserID, u2.UserID)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{u1.UserID, u2.UserID}, memberIDs(d))

	list, err := svc.List(ctx, u1, "")
	require.NoError(t, err)
	assert.Equal(t, []string{"Org1"}, orgNames(list))
	_, err = svc.Get(ctx, u1, d.ID)
	assert.NoError(t, err)

	list, err = svc.List(ctx, u3, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	_, err = svc.Get(ctx, u3, d.ID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.List(ctx, nil, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	assert.Equal(t, []string{"organization.create", "organization.attach_user", "organization.attach_user"}, rec.Actions())
}

func TestCreate_AdminOnly(t *testing.T) {
	svc, f, _ := setup(t)
	ctx := context.Background()
	x := f.Org("X")
	m := f.Manager("m@example.org", x)

	_, err := svc.Create(ctx, m, Input{Name: "Mine"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	admin := f.Admin("admin@example.org")
	_, err = svc.Create(ctx, admin, Input{Name: "Ghosts", UserIDs: ids(uuid.New())})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	list, err := svc.List(ctx, admin, "Ghosts")
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestUpdate_ManagerCannotChangeMembership(t *testing.T) {
	svc, f, _ := setup(t)
	ctx := context.Background()
	x, y := f.Org("X"), f.Org("Y")
	m := f.Manager("m@example.org", x)
	other := f.User("other@example.org")

	d, err := svc.Update(ctx, m, x, Input{Name: "X renamed", UserIDs: ids(other.UserID), TagNames: &[]string{"food"}})
	require.NoError(t, err)
	assert.Equal(t, "X renamed", d.Name)
	assert.Equal(t, []uuid.UUID{m.UserID}, memberIDs(d))
	assert.Equal(t, []string{"food"}, d.Tags)

	_, err = svc.Update(ctx, m, y, Input{Name: "Y renamed"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	_, err = svc.AttachUser(ctx, m, x, other.UserID)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestUpdate_AdminSyncsMembership(t *testing.T) {
	svc, f, _ := setup(t)
	ctx := context.Background()
	admin := f.Admin("admin@example.org")
	x := f.Org("X")
	u1, u2 := f.User("u1@example.org"), f.User("u2@example.org")
	f.Join(x, u1.UserID)

	before, err := f.Store.FindPivot(ctx, store.Membership, x, u1.UserID)
	require.NoError(t, err)

	d, err := svc.Update(ctx, admin, x, Input{Name: "X", UserIDs: ids(u2.UserID)})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u2.UserID}, memberIDs(d))

	d, err = svc.Update(ctx, admin, x, Input{Name: "X", UserIDs: ids(u1.UserID, u2.UserID)})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{u1.UserID, u2.UserID}, memberIDs(d))

	after, err := f.Store.FindPivot(ctx, store.Membership, x, u1.UserID)
	require.NoError(t, err)
	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.CreatedAt, after.CreatedAt)
}

func TestAttachDetachUser(t *testing.T) {
	svc, f, rec := setup(t)
	ctx := context.Background()
	admin := f.Admin("admin@example.org")
	x := f.Org("X")
	u := f.User("u@example.org")

	d, err := svc.AttachUser(ctx, admin, x, u.UserID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{u.UserID}, memberIDs(d))
	_, err = svc.AttachUser(ctx, admin, x, u.UserID)
	require.NoError(t, err)

	d, err = svc.DetachUser(ctx, admin, x, u.UserID)
	require.NoError(t, err)
	assert.Empty(t, d.Users)
	_, err = svc.DetachUser(ctx, admin, x, u.UserID)
	require.NoError(t, err)

	_, err = svc.AttachUser(ctx, admin, x, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.AttachUser(ctx, admin, uuid.New(), u.UserID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	assert.Equal(t, []string{"organization.attach_user", "organization.detach_user"}, rec.Actions())
}

func TestDeleteRestore_HidesMemberships(t *testing.T) {
	svc, f, _ := setup(t)
	ctx := context.Background()
	admin := f.Admin("admin@example.org")
	x := f.Org("X")
	m := f.Manager("m@example.org", x)
	opp := f.Opportunity("P", x)

	assert.ErrorIs(t, svc.Delete(ctx, m, x), apperr.ErrForbidden)
	require.NoError(t, svc.Delete(ctx, admin, x))

	list, err := svc.List(ctx, m, "")
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, f.ActiveSponsors(opp))

	// The membership row itself is untouched.
	p, err := f.Store.FindPivot(ctx, store.Membership, x, m.UserID)
	require.NoError(t, err)
	assert.Equal(t, models.PivotActive, p.State())

	_, err = svc.Restore(ctx, m, x)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	d, err := svc.Restore(ctx, admin, x)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{m.UserID}, memberIDs(d))
	assert.Equal(t, []uuid.UUID{x}, f.ActiveSponsors(opp))
}
