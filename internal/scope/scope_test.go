package scope

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/apperr"
	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/policy"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/internal/store/memory"
	"github.com/evolnow/backend/internal/testutil"
)

func names(list []models.Organization) []string {
	var out []string
	for _, o := range list {
		out = append(out, o.Name)
	}
	return out
}

func TestOrganizationListingMatchesView(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	f := testutil.New(t, s)
	engine := policy.NewEngine(s, nil, zap.NewNop())
	r := NewResolver(engine)

	x, _, z := f.Org("X"), f.Org("Y"), f.Org("Z")
	u := f.User("u@example.org")
	f.Join(x, u.UserID)
	f.Join(z, u.UserID)
	admin := f.Admin("admin@example.org")

	vis, err := r.Organizations(ctx, u)
	require.NoError(t, err)
	list, err := s.ListOrganizations(ctx, store.OrganizationQuery{Visibility: vis})
	require.NoError(t, err)
	assert.Equal(t, []string{"X", "Z"}, names(list))

	all, err := s.ListOrganizations(ctx, store.OrganizationQuery{Visibility: store.Visibility{All: true}})
	require.NoError(t, err)
	for _, o := range all {
		viewErr := engine.ViewOrganization(ctx, u, o.ID)
		listed := false
		for _, l := range list {
			listed = listed || l.ID == o.ID
		}
		assert.Equal(t, listed, viewErr == nil, o.Name)
	}

	vis, err = r.Organizations(ctx, admin)
	require.NoError(t, err)
	assert.True(t, vis.All)
}

func TestOpportunityListing(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	f := testutil.New(t, s)
	r := NewResolver(policy.NewEngine(s, nil, zap.NewNop()))

	x, y := f.Org("X"), f.Org("Y")
	mgr := f.Manager("m@example.org", x)
	f.Opportunity("O1", x, y)
	f.Opportunity("O2", y)
	f.Opportunity("Orphan")

	vis, err := r.Opportunities(ctx, mgr)
	require.NoError(t, err)
	list, total, err := s.ListOpportunities(ctx, store.OpportunityQuery{Visibility: vis})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "O1", list[0].Name)

	_, err = r.Opportunities(ctx, f.User("u@example.org"))
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = r.Opportunities(ctx, nil)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)
}
