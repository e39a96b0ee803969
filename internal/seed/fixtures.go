package seed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
	"github.com/evolnow/backend/internal/tags"
	"github.com/evolnow/backend/pkg/utils"
)

// Fixtures is the YAML document accepted by Load. Users and opportunities
// refer to organizations by name.
type Fixtures struct {
	Organizations []OrganizationFixture `yaml:"organizations"`
	Users         []UserFixture         `yaml:"users"`
	Opportunities []OpportunityFixture  `yaml:"opportunities"`
}

type OrganizationFixture struct {
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Tags        []string `yaml:"tags"`
}

type UserFixture struct {
	FirstName     string   `yaml:"first_name"`
	LastName      string   `yaml:"last_name"`
	Email         string   `yaml:"email"`
	Password      string   `yaml:"password"`
	Roles         []string `yaml:"roles"`
	Organizations []string `yaml:"organizations"`
}

type OpportunityFixture struct {
	Name          string   `yaml:"name"`
	Description   string   `yaml:"description"`
	URL           string   `yaml:"url"`
	StartDate     string   `yaml:"start_date"`
	EndDate       string   `yaml:"end_date"`
	StartTime     string   `yaml:"start_time"`
	EndTime       string   `yaml:"end_time"`
	Organizations []string `yaml:"organizations"`
	Tags          []string `yaml:"tags"`
}

// LoadResult counts the rows Load wrote.
type LoadResult struct {
	Organizations int
	Users         int
	Opportunities int
}

// Decode parses a fixtures document.
func Decode(r io.Reader) (*Fixtures, error) {
	var f Fixtures
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode fixtures: %w", err)
	}
	return &f, nil
}

// Load writes fixtures in one transaction. Existing users, matched by
// email, are reused and keep their password.
func (s *Seeder) Load(ctx context.Context, f *Fixtures) (LoadResult, error) {
	var res LoadResult
	err := s.store.WithTx(ctx, func(tx store.Store) error {
		orgs := make(map[string]uuid.UUID, len(f.Organizations))
		for _, of := range f.Organizations {
			if of.Name == "" {
				return errors.New("organization without name")
			}
			if _, dup := orgs[of.Name]; dup {
				return fmt.Errorf("duplicate organization %q", of.Name)
			}
			o := &models.Organization{Name: of.Name, Description: of.Description}
			if err := tx.CreateOrganization(ctx, o); err != nil {
				return fmt.Errorf("create organization %q: %w", of.Name, err)
			}
			orgs[of.Name] = o.ID
			owner := tags.Owner{Type: models.TaggableOrganization, ID: o.ID}
			if err := tags.Sync(ctx, tx, owner, of.Tags, uuid.Nil); err != nil {
				return err
			}
			res.Organizations++
		}
		for _, uf := range f.Users {
			if err := s.loadUser(ctx, tx, uf, orgs); err != nil {
				return err
			}
			res.Users++
		}
		for _, pf := range f.Opportunities {
			if err := s.loadOpportunity(ctx, tx, pf, orgs); err != nil {
				return err
			}
			res.Opportunities++
		}
		return nil
	})
	if err != nil {
		return LoadResult{}, err
	}
	s.logger.Info("fixtures loaded",
		zap.Int("organizations", res.Organizations),
		zap.Int("users", res.Users),
		zap.Int("opportunities", res.Opportunities),
	)
	return res, nil
}

func (s *Seeder) loadUser(ctx context.Context, tx store.Store, uf UserFixture, orgs map[string]uuid.UUID) error {
	if uf.Email == "" {
		return errors.New("user without email")
	}
	u, err := tx.GetUserByEmail(ctx, uf.Email)
	if errors.Is(err, store.ErrNotFound) {
		password := uf.Password
		if password == "" {
			password = utils.RandomPassword()
		}
		hash, herr := utils.HashPassword(password)
		if herr != nil {
			return fmt.Errorf("hash password: %w", herr)
		}
		u = &models.User{FirstName: uf.FirstName, LastName: uf.LastName, Email: uf.Email, Password: hash}
		err = tx.CreateUser(ctx, u)
	}
	if err != nil {
		return fmt.Errorf("user %q: %w", uf.Email, err)
	}
	roles := uf.Roles
	if len(roles) == 0 {
		roles = []string{string(models.RoleUser)}
	}
	for _, name := range roles {
		role, err := models.ParseRole(name)
		if err != nil {
			return fmt.Errorf("user %q: %w", uf.Email, err)
		}
		if err := grant(ctx, tx, u.ID, role); err != nil {
			return err
		}
	}
	ids, err := resolve(orgs, uf.Organizations)
	if err != nil {
		return fmt.Errorf("user %q: %w", uf.Email, err)
	}
	for _, orgID := range ids {
		if _, _, err := tx.AttachPivot(ctx, store.Membership, orgID, u.ID, store.AttachOptions{}); err != nil {
			return fmt.Errorf("user %q membership: %w", uf.Email, err)
		}
	}
	return nil
}

func (s *Seeder) loadOpportunity(ctx context.Context, tx store.Store, pf OpportunityFixture, orgs map[string]uuid.UUID) error {
	if pf.Name == "" {
		return errors.New("opportunity without name")
	}
	ids, err := resolve(orgs, pf.Organizations)
	if err != nil {
		return fmt.Errorf("opportunity %q: %w", pf.Name, err)
	}
	o := &models.Opportunity{Name: pf.Name, Description: pf.Description, URL: optional(pf.URL), StartTime: optional(pf.StartTime), EndTime: optional(pf.EndTime)}
	if o.StartDate, err = date(pf.StartDate); err != nil {
		return fmt.Errorf("opportunity %q start_date: %w", pf.Name, err)
	}
	if o.EndDate, err = date(pf.EndDate); err != nil {
		return fmt.Errorf("opportunity %q end_date: %w", pf.Name, err)
	}
	if err := tx.CreateOpportunity(ctx, o); err != nil {
		return fmt.Errorf("create opportunity %q: %w", pf.Name, err)
	}
	for _, orgID := range ids {
		if _, _, err := tx.AttachPivot(ctx, store.Sponsorship, o.ID, orgID, store.AttachOptions{IsOwner: true}); err != nil {
			return fmt.Errorf("opportunity %q sponsor: %w", pf.Name, err)
		}
	}
	return tags.Sync(ctx, tx, tags.Owner{Type: models.TaggableOpportunity, ID: o.ID}, pf.Tags, uuid.Nil)
}

func resolve(orgs map[string]uuid.UUID, names []string) ([]uuid.UUID, error) {
	ids := make([]uuid.UUID, 0, len(names))
	for _, n := range names {
		id, ok := orgs[n]
		if !ok {
			return nil, fmt.Errorf("unknown organization %q", n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func date(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
