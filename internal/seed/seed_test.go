package seed

import (
	"context"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/internal/store/memory"
	"github.com/evolnow/backend/pkg/utils"
)

func newSeeder() (*Seeder, *memory.Store) {
	s := memory.New()
	return New(s, zap.NewNop(), rand.New(rand.NewPCG(1, 2))), s
}

func TestBase_Idempotent(t *testing.T) {
	sd, s := newSeeder()
	ctx := context.Background()
	require.NoError(t, sd.Base(ctx))
	require.NoError(t, sd.Base(ctx))

	u, err := s.GetUserByEmail(ctx, DefaultEmail)
	require.NoError(t, err)
	roles, err := s.UserRoles(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleAdmin}, roles)

	list, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestGenerate_EveryOpportunityAssigned(t *testing.T) {
	sd, s := newSeeder()
	ctx := context.Background()
	sum, err := sd.Generate(ctx, 11, 20)
	require.NoError(t, err)
	require.Len(t, sum.Organizations, 11)
	require.Len(t, sum.Opportunities, 20)

	perOrg := map[uuid.UUID]int{}
	for _, opp := range sum.Opportunities {
		ids, err := s.SponsorOrganizationIDs(ctx, opp)
		require.NoError(t, err)
		require.Len(t, ids, 1)
		perOrg[ids[0]]++
	}
	assert.GreaterOrEqual(t, perOrg[sum.Organizations[0]], 2)
	for _, org := range sum.Organizations {
		assert.GreaterOrEqual(t, perOrg[org], 1)
	}
}

func TestGenerate_NeedsOrganization(t *testing.T) {
	sd, _ := newSeeder()
	_, err := sd.Generate(context.Background(), 0, 3)
	assert.Error(t, err)
}

func TestCreateTestUser(t *testing.T) {
	sd, s := newSeeder()
	ctx := context.Background()

	res, err := sd.CreateTestUser(ctx, "qa@example.org", "", false)
	require.NoError(t, err)
	assert.True(t, res.Created)
	assert.NotEmpty(t, res.Password)

	again, err := sd.CreateTestUser(ctx, "qa@example.org", "password9", false)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.False(t, again.Updated)
	assert.Empty(t, again.Password)

	reset, err := sd.CreateTestUser(ctx, "qa@example.org", "password9", true)
	require.NoError(t, err)
	assert.True(t, reset.Updated)
	u, err := s.GetUserByEmail(ctx, "qa@example.org")
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword("password9", u.Password))
}

const fixtureDoc = `
organizations:
  - name: Harbor Trust
    description: Coastal cleanups
    tags: [Environment, outdoors]
  - name: City Library
users:
  - first_name: Mia
    last_name: Grant
    email: mia@example.org
    password: password1
    roles: [organization_manager]
    organizations: [Harbor Trust]
opportunities:
  - name: Beach cleanup
    start_date: "2025-06-01"
    start_time: "09:00"
    organizations: [Harbor Trust, City Library]
    tags: [environment]
`

func TestLoad(t *testing.T) {
	sd, s := newSeeder()
	ctx := context.Background()
	f, err := Decode(strings.NewReader(fixtureDoc))
	require.NoError(t, err)

	res, err := sd.Load(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, LoadResult{Organizations: 2, Users: 1, Opportunities: 1}, res)

	u, err := s.GetUserByEmail(ctx, "mia@example.org")
	require.NoError(t, err)
	assert.True(t, utils.CheckPassword("password1", u.Password))
	roles, err := s.UserRoles(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.Role{models.RoleOrganizationManager}, roles)
	orgs, err := s.MemberOrganizationIDs(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, orgs, 1)

	page, total, err := s.SearchOpportunities(ctx, store.OpportunitySearch{Tags: []string{"environment"}})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	sponsors, err := s.ListSponsors(ctx, page[0].ID)
	require.NoError(t, err)
	assert.Len(t, sponsors, 2)
}

func TestLoad_RollsBackOnUnknownOrganization(t *testing.T) {
	sd, s := newSeeder()
	ctx := context.Background()
	f := &Fixtures{
		Organizations: []OrganizationFixture{{Name: "A"}},
		Opportunities: []OpportunityFixture{{Name: "Orphan", Organizations: []string{"Missing"}}},
	}
	_, err := sd.Load(ctx, f)
	assert.ErrorContains(t, err, `unknown organization "Missing"`)

	list, err := s.ListOrganizations(ctx, store.OrganizationQuery{Visibility: store.Visibility{All: true}})
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	_, err := Decode(strings.NewReader("organisations:\n  - name: typo\n"))
	assert.Error(t, err)
}
