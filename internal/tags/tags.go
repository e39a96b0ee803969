// Package tags keeps the tag associations of opportunities and organizations
// in step with a submitted list of names.
package tags

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/evolnow/backend/internal/models"
	"github.com/evolnow/backend/internal/store"
)

// Owner identifies a taggable row.
type Owner struct {
	Type models.TaggableType
	ID   uuid.UUID
}

// Normalize trims names, drops blanks and duplicates and keeps first-seen order.
// Names are case sensitive.
func Normalize(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// Sync makes the owner's active tags exactly names. Tags no longer listed are
// revoked; previously revoked tags are restored in place. An empty list
// clears every tag.
func Sync(ctx context.Context, s store.Store, owner Owner, names []string, by uuid.UUID) error {
	rel := store.TagRelation(owner.Type)
	want := make(map[uuid.UUID]struct{})
	for _, n := range Normalize(names) {
		t, err := s.FindOrCreateTag(ctx, n, by)
		if err != nil {
			return fmt.Errorf("tag %q: %w", n, err)
		}
		want[t.ID] = struct{}{}
	}

	current, err := s.ListPivots(ctx, rel, owner.ID, false)
	if err != nil {
		return fmt.Errorf("list tags: %w", err)
	}
	for _, p := range current {
		if _, keep := want[p.RightID]; keep {
			continue
		}
		if _, err := s.RevokePivot(ctx, rel, owner.ID, p.RightID, by); err != nil {
			return fmt.Errorf("detach tag: %w", err)
		}
	}
	for id := range want {
		if _, _, err := s.AttachPivot(ctx, rel, owner.ID, id, store.AttachOptions{By: by}); err != nil {
			return fmt.Errorf("attach tag: %w", err)
		}
	}
	return nil
}

// Attach adds one tag. It reports false when the tag was already attached.
func Attach(ctx context.Context, s store.Store, owner Owner, name string, by uuid.UUID) (bool, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return false, nil
	}
	t, err := s.FindOrCreateTag(ctx, name, by)
	if err != nil {
		return false, fmt.Errorf("tag %q: %w", name, err)
	}
	_, res, err := s.AttachPivot(ctx, store.TagRelation(owner.Type), owner.ID, t.ID, store.AttachOptions{By: by})
	if err != nil {
		return false, fmt.Errorf("attach tag: %w", err)
	}
	return res != store.AlreadyActive, nil
}

// Detach removes one tag. Unknown or unattached names are a no-op.
func Detach(ctx context.Context, s store.Store, owner Owner, name string, by uuid.UUID) (bool, error) {
	t, err := s.GetTagByName(ctx, strings.TrimSpace(name))
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return s.RevokePivot(ctx, store.TagRelation(owner.Type), owner.ID, t.ID, by)
}

// Names returns the owner's active tag names in name order.
func Names(ctx context.Context, s store.Store, owner Owner) ([]string, error) {
	list, err := s.ListTags(ctx, store.TagRelation(owner.Type), owner.ID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(list))
	for _, t := range list {
		out = append(out, t.Name)
	}
	return out, nil
}
