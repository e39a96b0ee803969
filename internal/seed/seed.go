// Package seed fills a store with the default admin, generated sample data
// or YAML fixtures.
package seed

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/pkg/utils"
)

// DefaultEmail is the admin account created by Base.
const DefaultEmail = "test@example.com"

// Seeder writes seed data with system attribution.
type Seeder struct {
	store  store.Store
	logger *zap.Logger
	rng    *rand.Rand
}

// New creates a seeder. rng may be nil for a randomly seeded source.
func New(st store.Store, logger *zap.Logger, rng *rand.Rand) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Seeder{store: st, logger: logger, rng: rng}
}

// Base ensures the default test user exists and holds the admin role.
func (s *Seeder) Base(ctx context.Context) error {
	return s.store.WithTx(ctx, func(tx store.Store) error {
		u, err := tx.GetUserByEmail(ctx, DefaultEmail)
		if errors.Is(err, store.ErrNotFound) {
			hash, herr := utils.HashPassword(utils.RandomPassword())
			if herr != nil {
				return fmt.Errorf("hash password: %w", herr)
			}
			u = &models.User{FirstName: "Test", LastName: "User", Email: DefaultEmail, Password: hash}
			err = tx.CreateUser(ctx, u)
		}
		if err != nil {
			return fmt.Errorf("test user: %w", err)
		}
		if err := grant(ctx, tx, u.ID, models.RoleAdmin); err != nil {
			return err
		}
		s.logger.Info("base seed applied", zap.String("email", DefaultEmail))
		return nil
	})
}

// Summary reports what Generate created.
type Summary struct {
	Organizations []uuid.UUID
	Opportunities []uuid.UUID
}

// Generate creates orgs organizations and opps opportunities and assigns
// every opportunity to at least one organization. The first organization
// gets two opportunities; of the rest, about 90% get one and 10% get two.
// Leftovers go to random organizations.
func (s *Seeder) Generate(ctx context.Context, orgs, opps int) (Summary, error) {
	var sum Summary
	if orgs < 1 && opps > 0 {
		return sum, errors.New("opportunities need at least one organization")
	}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		for i := 1; i <= orgs; i++ {
			o := &models.Organization{Name: fmt.Sprintf("Organization %d", i), Description: "Generated organization."}
			if err := tx.CreateOrganization(ctx, o); err != nil {
				return fmt.Errorf("create organization: %w", err)
			}
			sum.Organizations = append(sum.Organizations, o.ID)
		}
		for i := 1; i <= opps; i++ {
			o := &models.Opportunity{Name: fmt.Sprintf("Opportunity %d", i), Description: "Generated opportunity."}
			if err := tx.CreateOpportunity(ctx, o); err != nil {
				return fmt.Errorf("create opportunity: %w", err)
			}
			sum.Opportunities = append(sum.Opportunities, o.ID)
		}
		for oppID, orgID := range s.assign(sum.Organizations, sum.Opportunities) {
			if _, _, err := tx.AttachPivot(ctx, store.Sponsorship, oppID, orgID, store.AttachOptions{IsOwner: true}); err != nil {
				return fmt.Errorf("assign opportunity: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}
	s.logger.Info("generated seed data", zap.Int("organizations", orgs), zap.Int("opportunities", opps))
	return sum, nil
}

// assign maps each opportunity to its sponsoring organization.
func (s *Seeder) assign(orgs, opps []uuid.UUID) map[uuid.UUID]uuid.UUID {
	out := make(map[uuid.UUID]uuid.UUID, len(opps))
	if len(orgs) == 0 {
		return out
	}
	remaining := opps
	take := func(org uuid.UUID) bool {
		if len(remaining) == 0 {
			return false
		}
		out[remaining[0]] = org
		remaining = remaining[1:]
		return true
	}
	if len(opps) > 1 {
		take(orgs[0])
		take(orgs[0])
	}
	rest := append([]uuid.UUID(nil), orgs[1:]...)
	s.rng.Shuffle(len(rest), func(i, j int) { rest[i], rest[j] = rest[j], rest[i] })
	single := int(float64(len(rest))*0.9 + 0.5)
	for i, org := range rest {
		if !take(org) {
			break
		}
		if i >= single && !take(org) {
			break
		}
	}
	for len(remaining) > 0 {
		take(orgs[s.rng.IntN(len(orgs))])
	}
	return out
}

// TestUser is the outcome of CreateTestUser.
type TestUser struct {
	Email    string
	Password string // empty when an existing user was left untouched
	Created  bool
	Updated  bool
}

// CreateTestUser creates a login for manual testing. An existing user keeps
// their password unless resetExisting is set. A blank password is generated.
func (s *Seeder) CreateTestUser(ctx context.Context, email, password string, resetExisting bool) (TestUser, error) {
	if password == "" {
		password = utils.RandomPassword()
	}
	out := TestUser{Email: email}
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		u, err := tx.GetUserByEmail(ctx, email)
		switch {
		case err == nil && !resetExisting:
			return nil
		case err != nil && !errors.Is(err, store.ErrNotFound):
			return fmt.Errorf("load user: %w", err)
		}
		hash, err := utils.HashPassword(password)
		if err != nil {
			return fmt.Errorf("hash password: %w", err)
		}
		if u == nil {
			u = &models.User{FirstName: "Test", LastName: "User", Email: email, Password: hash}
			if err := tx.CreateUser(ctx, u); err != nil {
				return fmt.Errorf("create user: %w", err)
			}
			out.Created = true
		} else {
			u.Password = hash
			if err := tx.UpdateUser(ctx, u); err != nil {
				return fmt.Errorf("update user: %w", err)
			}
			out.Updated = true
		}
		out.Password = password
		return nil
	})
	return out, err
}

func grant(ctx context.Context, tx store.Store, userID uuid.UUID, role models.Role) error {
	roleID, err := tx.RoleID(ctx, role)
	if err != nil {
		return fmt.Errorf("role %s: %w", role, err)
	}
	if _, _, err := tx.AttachPivot(ctx, store.RoleAssignment, userID, roleID, store.AttachOptions{}); err != nil {
		return fmt.Errorf("grant %s: %w", role, err)
	}
	return nil
}
