package opportunities

import (
	"context"
	"errors"
	"testing"
	"time"

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

type env struct {
	svc *Service
	f   *testutil.Fixture
	rec *audit.MemoryRecorder
	ctx context.Context
}

func newEnv(t *testing.T, wrap func(store.Store) store.Store) *env {
	var s store.Store = memory.New()
	f := testutil.New(t, s)
	if wrap != nil {
		s = wrap(s)
	}
	rec := &audit.MemoryRecorder{}
	svc := NewService(s, policy.NewEngine(s, nil, zap.NewNop()), rec, zap.NewNop())
	return &env{svc: svc, f: f, rec: rec, ctx: context.Background()}
}

func ids(list ...uuid.UUID) *[]uuid.UUID { return &list }

func names(list ...string) *[]string { return &list }

func sponsorIDs(d *models.OpportunityDetail) []uuid.UUID {
	var out []uuid.UUID
	for _, o := range d.Organizations {
		out = append(out, o.ID)
	}
	return out
}

// Manager M belongs to X only.
func TestCreate_ManagerOrganizationAssignment(t *testing.T) {
	e := newEnv(t, nil)
	x, y := e.f.Org("X"), e.f.Org("Y")
	m := e.f.Manager("m@example.org", x)

	_, err := e.svc.Create(e.ctx, m, Input{Name: "Food Drive", OrganizationIDs: ids()})
	require.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Contains(t, apperr.Message(err), "must select at least one organization")

	_, err = e.svc.Create(e.ctx, m, Input{Name: "Food Drive"})
	assert.ErrorIs(t, err, apperr.ErrMustSelectOrg)

	_, err = e.svc.Create(e.ctx, m, Input{Name: "Food Drive", OrganizationIDs: ids(y)})
	require.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Equal(t, apperr.MsgUnauthorized, apperr.Message(err))

	d, err := e.svc.Create(e.ctx, m, Input{Name: "Food Drive", OrganizationIDs: ids(x), TagNames: names("food", " food ", "")})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{x}, sponsorIDs(d))
	assert.True(t, d.Organizations[0].IsOwner)
	assert.Equal(t, []string{"food"}, d.Tags)
	require.NotNil(t, d.CreatedBy)
	assert.Equal(t, m.UserID, *d.CreatedBy)
	assert.Equal(t, []string{"opportunity.create", "opportunity.attach_organization", "opportunity.sync_tags"}, e.rec.Actions())
}

func TestCreate_Admin(t *testing.T) {
	e := newEnv(t, nil)
	admin := e.f.Admin("admin@example.org")

	d, err := e.svc.Create(e.ctx, admin, Input{Name: "Orphan", OrganizationIDs: ids()})
	require.NoError(t, err)
	assert.Empty(t, d.Organizations)

	_, err = e.svc.Create(e.ctx, admin, Input{Name: "Ghost", OrganizationIDs: ids(uuid.New())})
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = e.svc.Create(e.ctx, nil, Input{Name: "Anon"})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	_, err = e.svc.Create(e.ctx, admin, Input{Name: "  "})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	start := time.Date(2025, 7, 2, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -1)
	_, err = e.svc.Create(e.ctx, admin, Input{Name: "Backwards", StartDate: &start, EndDate: &end})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestCreate_SameDayTimes(t *testing.T) {
	e := newEnv(t, nil)
	admin := e.f.Admin("admin@example.org")
	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	at := func(s string) *string { return &s }

	d, err := e.svc.Create(e.ctx, admin, Input{Name: "Morning shift", StartDate: &day, EndDate: &day, StartTime: at("9:05"), EndTime: at("10:00")})
	require.NoError(t, err)
	require.NotNil(t, d.StartTime)
	assert.Equal(t, "09:05", *d.StartTime)
	assert.Equal(t, "10:00", *d.EndTime)

	_, err = e.svc.Create(e.ctx, admin, Input{Name: "Backwards", StartDate: &day, EndDate: &day, StartTime: at("10:00"), EndTime: at("9:05")})
	assert.ErrorIs(t, err, apperr.ErrInvalid)

	_, err = e.svc.Create(e.ctx, admin, Input{Name: "Bad clock", StartTime: at("25:00")})
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestCreate_PlainUserDenied(t *testing.T) {
	e := newEnv(t, nil)
	x := e.f.Org("X")
	u := e.f.User("u@example.org")
	e.f.Join(x, u.UserID)
	_, err := e.svc.Create(e.ctx, u, Input{Name: "Nope", OrganizationIDs: ids(x)})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

// P has no sponsors; M2 belongs to Z only.
func TestAttachOrganization_OrphanClaim(t *testing.T) {
	e := newEnv(t, nil)
	z, w := e.f.Org("Z"), e.f.Org("W")
	m2 := e.f.Manager("m2@example.org", z)
	p := e.f.Opportunity("P")

	d, err := e.svc.AttachOrganization(e.ctx, m2, p, z)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{z}, sponsorIDs(d))

	_, err = e.svc.AttachOrganization(e.ctx, m2, p, w)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.Equal(t, []uuid.UUID{z}, e.f.ActiveSponsors(p))
}

func TestAttachDetach_ReusesPivot(t *testing.T) {
	e := newEnv(t, nil)
	x, y := e.f.Org("X"), e.f.Org("Y")
	m := e.f.Manager("m@example.org", x, y)
	p := e.f.Opportunity("P", x, y)

	first, err := e.f.Store.FindPivot(e.ctx, store.Sponsorship, p, y)
	require.NoError(t, err)

	_, err = e.svc.DetachOrganization(e.ctx, m, p, y)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{x}, e.f.ActiveSponsors(p))

	// Detaching again is a no-op.
	_, err = e.svc.DetachOrganization(e.ctx, m, p, y)
	require.NoError(t, err)

	_, err = e.svc.AttachOrganization(e.ctx, m, p, y)
	require.NoError(t, err)
	again, err := e.f.Store.FindPivot(e.ctx, store.Sponsorship, p, y)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, models.PivotActive, again.State())

	all, err := e.f.Store.ListPivots(e.ctx, store.Sponsorship, p, true)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, []string{"opportunity.detach_organization", "opportunity.attach_organization"}, e.rec.Actions())
}

func TestDetachLastSponsor_FlipsView(t *testing.T) {
	e := newEnv(t, nil)
	x := e.f.Org("X")
	m := e.f.Manager("m@example.org", x)
	p := e.f.Opportunity("P", x)

	_, err := e.svc.Get(e.ctx, m, p)
	require.NoError(t, err)
	_, err = e.svc.DetachOrganization(e.ctx, m, p, x)
	require.NoError(t, err)
	_, err = e.svc.Get(e.ctx, m, p)
	assert.ErrorIs(t, err, apperr.ErrForbidden)

	// Detach has no orphan bypass.
	_, err = e.svc.DetachOrganization(e.ctx, m, p, x)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

// Membership revoked between two requests.
func TestUpdate_AfterMembershipRevoked(t *testing.T) {
	e := newEnv(t, nil)
	x := e.f.Org("X")
	m := e.f.Manager("m@example.org", x)
	p := e.f.Opportunity("P", x)

	_, err := e.svc.Update(e.ctx, m, p, Input{Name: "Renamed"})
	require.NoError(t, err)

	e.f.Leave(x, m.UserID)
	_, err = e.svc.Update(e.ctx, m, p, Input{Name: "Again"})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestUpdate_ResyncsSponsors(t *testing.T) {
	e := newEnv(t, nil)
	x, y, z := e.f.Org("X"), e.f.Org("Y"), e.f.Org("Z")
	m := e.f.Manager("m@example.org", x, y)
	p := e.f.Opportunity("P", x, z)

	// Removing Z requires membership of Z.
	_, err := e.svc.Update(e.ctx, m, p, Input{Name: "P", OrganizationIDs: ids(x, y)})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	assert.ElementsMatch(t, []uuid.UUID{x, z}, e.f.ActiveSponsors(p))

	admin := e.f.Admin("admin@example.org")
	d, err := e.svc.Update(e.ctx, admin, p, Input{Name: "P2", OrganizationIDs: ids(y), TagNames: names("a")})
	require.NoError(t, err)
	assert.Equal(t, "P2", d.Name)
	assert.Equal(t, []uuid.UUID{y}, sponsorIDs(d))
	assert.Equal(t, []string{"a"}, d.Tags)

	// Omitted fields leave relations alone.
	d, err = e.svc.Update(e.ctx, m, p, Input{Name: "P3"})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{y}, sponsorIDs(d))
	assert.Equal(t, []string{"a"}, d.Tags)

	// An explicit empty tag list clears tags.
	d, err = e.svc.Update(e.ctx, m, p, Input{Name: "P3", TagNames: names()})
	require.NoError(t, err)
	assert.Empty(t, d.Tags)

	_, err = e.svc.Update(e.ctx, m, p, Input{Name: "P3", OrganizationIDs: ids()})
	assert.ErrorIs(t, err, apperr.ErrMustSelectOrg)
}

type failingTags struct{ store.Store }

func (f failingTags) AttachPivot(ctx context.Context, rel store.Relation, left, right uuid.UUID, opts store.AttachOptions) (*models.Pivot, store.AttachResult, error) {
	if rel == store.OpportunityTag {
		return nil, 0, errors.New("boom")
	}
	return f.Store.AttachPivot(ctx, rel, left, right, opts)
}

func (f failingTags) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	return f.Store.WithTx(ctx, func(tx store.Store) error { return fn(failingTags{tx}) })
}

func TestUpdate_IsAtomic(t *testing.T) {
	e := newEnv(t, func(s store.Store) store.Store { return failingTags{s} })
	x, y := e.f.Org("X"), e.f.Org("Y")
	admin := e.f.Admin("admin@example.org")
	p := e.f.Opportunity("Original", x)

	_, err := e.svc.Update(e.ctx, admin, p, Input{Name: "Changed", OrganizationIDs: ids(y), TagNames: names("t")})
	require.Error(t, err)
	assert.Equal(t, apperr.KindInternal, apperr.KindOf(err))

	o, err := e.f.Store.GetOpportunity(e.ctx, p)
	require.NoError(t, err)
	assert.Equal(t, "Original", o.Name)
	assert.Equal(t, []uuid.UUID{x}, e.f.ActiveSponsors(p))
	assert.Empty(t, e.rec.Events())
}

func TestDeleteRestore(t *testing.T) {
	e := newEnv(t, nil)
	x, y := e.f.Org("X"), e.f.Org("Y")
	m := e.f.Manager("m@example.org", x)
	mine := e.f.Opportunity("Mine", x)
	theirs := e.f.Opportunity("Theirs", y)

	assert.ErrorIs(t, e.svc.Delete(e.ctx, m, theirs), apperr.ErrForbidden)
	require.NoError(t, e.svc.Delete(e.ctx, m, mine))
	_, err := e.svc.Get(e.ctx, m, mine)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, e.svc.Delete(e.ctx, m, mine), apperr.ErrNotFound)

	d, err := e.svc.Restore(e.ctx, m, mine)
	require.NoError(t, err)
	assert.Nil(t, d.DeletedAt)
	assert.Equal(t, []uuid.UUID{x}, sponsorIDs(d))
}

func TestList_Scoped(t *testing.T) {
	e := newEnv(t, nil)
	x, y := e.f.Org("X"), e.f.Org("Y")
	m := e.f.Manager("m@example.org", x)
	admin := e.f.Admin("admin@example.org")
	e.f.Opportunity("Beach cleanup", x, y)
	e.f.Opportunity("Park cleanup", y)
	e.f.Opportunity("Orphan")

	page, err := e.svc.List(e.ctx, m, ListParams{})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Beach cleanup", page.Data[0].Name)
	for _, d := range page.Data {
		_, err := e.svc.Get(e.ctx, m, d.ID)
		assert.NoError(t, err)
	}

	page, err = e.svc.List(e.ctx, admin, ListParams{Search: "cleanup", Sort: "name", Direction: "asc", PerPage: 1, Page: 2})
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Park cleanup", page.Data[0].Name)
	assert.Equal(t, 2, page.Meta.Total)
	assert.Equal(t, 2, page.Meta.LastPage)

	_, err = e.svc.List(e.ctx, e.f.User("u@example.org"), ListParams{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestChangeTag(t *testing.T) {
	e := newEnv(t, nil)
	x := e.f.Org("X")
	m := e.f.Manager("m@example.org", x)
	p := e.f.Opportunity("P", x)

	d, err := e.svc.AddTag(e.ctx, m, p, " outdoors ")
	require.NoError(t, err)
	assert.Equal(t, []string{"outdoors"}, d.Tags)
	d, err = e.svc.RemoveTag(e.ctx, m, p, "outdoors")
	require.NoError(t, err)
	assert.Empty(t, d.Tags)
	_, err = e.svc.AddTag(e.ctx, m, p, "")
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}

func TestSearch(t *testing.T) {
	e := newEnv(t, nil)
	admin := e.f.Admin("admin@example.org")
	x := e.f.Org("Food Bank")
	june := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	july := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)
	_, err := e.svc.Create(e.ctx, admin, Input{Name: "Sort cans", StartDate: &july, OrganizationIDs: ids(x), TagNames: names("food")})
	require.NoError(t, err)
	_, err = e.svc.Create(e.ctx, admin, Input{Name: "Serve meals", StartDate: &june, OrganizationIDs: ids(x)})
	require.NoError(t, err)
	_, err = e.svc.Create(e.ctx, admin, Input{Name: "Plant trees"})
	require.NoError(t, err)

	page, err := e.svc.Search(e.ctx, []Filter{{Field: "organization", Value: "Food Bank"}}, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Data, 2)
	assert.Equal(t, "Serve meals", page.Data[0].Name)

	page, err = e.svc.Search(e.ctx, []Filter{{Field: "tags", Value: "food, other"}}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Sort cans", page.Data[0].Name)

	page, err = e.svc.Search(e.ctx, []Filter{{Field: "start_date", Value: "2025-06-15", Operator: "gte"}}, 1, 10)
	require.NoError(t, err)
	require.Len(t, page.Data, 1)
	assert.Equal(t, "Sort cans", page.Data[0].Name)

	_, err = e.svc.Search(e.ctx, []Filter{{Field: "start_date", Value: "June"}}, 1, 10)
	assert.ErrorIs(t, err, apperr.ErrInvalid)
}
