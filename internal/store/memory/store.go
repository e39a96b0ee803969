// Package memory is an in-process implementation of store.Store used for
// local development (STORE_DRIVER=memory) and as the test backend.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/audit"
	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

type pivotKey struct {
	rel         store.Relation
	left, right uuid.UUID
}

type data struct {
	users  map[uuid.UUID]*models.User
	roles  map[models.Role]uuid.UUID
	orgs   map[uuid.UUID]*models.Organization
	opps   map[uuid.UUID]*models.Opportunity
	tags   map[uuid.UUID]*models.Tag
	pivots map[pivotKey]*models.Pivot
}

func newData() *data {
	d := &data{
		users:  make(map[uuid.UUID]*models.User),
		roles:  make(map[models.Role]uuid.UUID),
		orgs:   make(map[uuid.UUID]*models.Organization),
		opps:   make(map[uuid.UUID]*models.Opportunity),
		tags:   make(map[uuid.UUID]*models.Tag),
		pivots: make(map[pivotKey]*models.Pivot),
	}
	for _, r := range models.Roles {
		d.roles[r] = uuid.New()
	}
	return d
}

func (d *data) clone() *data {
	c := &data{
		users:  make(map[uuid.UUID]*models.User, len(d.users)),
		roles:  make(map[models.Role]uuid.UUID, len(d.roles)),
		orgs:   make(map[uuid.UUID]*models.Organization, len(d.orgs)),
		opps:   make(map[uuid.UUID]*models.Opportunity, len(d.opps)),
		tags:   make(map[uuid.UUID]*models.Tag, len(d.tags)),
		pivots: make(map[pivotKey]*models.Pivot, len(d.pivots)),
	}
	for k, v := range d.users {
		u := *v
		c.users[k] = &u
	}
	for k, v := range d.roles {
		c.roles[k] = v
	}
	for k, v := range d.orgs {
		o := *v
		c.orgs[k] = &o
	}
	for k, v := range d.opps {
		o := *v
		c.opps[k] = &o
	}
	for k, v := range d.tags {
		t := *v
		c.tags[k] = &t
	}
	for k, v := range d.pivots {
		p := *v
		c.pivots[k] = &p
	}
	return c
}

type shared struct {
	mu     sync.Mutex
	d      *data
	now    func() time.Time
	audits []audit.Event
}

// Store keeps all rows in memory. Transactions work on a copy that replaces
// the live data only when the callback succeeds.
type Store struct {
	sh *shared
	tx *data
}

var _ store.Store = (*Store)(nil)

// New returns an empty store with the fixed roles seeded.
func New() *Store {
	return &Store{sh: &shared{d: newData(), now: time.Now}}
}

// SetClock replaces the time source.
func (s *Store) SetClock(now func() time.Time) {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.now = now
}

func (s *Store) acquire() (*data, func()) {
	if s.tx != nil {
		return s.tx, func() {}
	}
	s.sh.mu.Lock()
	return s.sh.d, s.sh.mu.Unlock
}

func (s *Store) now() time.Time {
	return s.sh.now().UTC()
}

// WithTx runs fn against a private copy and publishes it on success.
func (s *Store) WithTx(ctx context.Context, fn func(tx store.Store) error) error {
	if s.tx != nil {
		return fn(s)
	}
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	work := s.sh.d.clone()
	if err := fn(&Store{sh: s.sh, tx: work}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.sh.d = work
	return nil
}

func idOrNew(id uuid.UUID) uuid.UUID {
	if id == uuid.Nil {
		return uuid.New()
	}
	return id
}

func deref(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

// InsertAudits keeps drained audit events for inspection.
func (s *Store) InsertAudits(ctx context.Context, events []audit.Event) error {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	s.sh.audits = append(s.sh.audits, events...)
	return nil
}

// Audits returns every event stored by InsertAudits.
func (s *Store) Audits() []audit.Event {
	s.sh.mu.Lock()
	defer s.sh.mu.Unlock()
	out := make([]audit.Event, len(s.sh.audits))
	copy(out, s.sh.audits)
	return out
}
