package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/evolnow/backend/internal/audit"
)

var auditColumns = []string{"id", "action", "actor_id", "subject_type", "subject_id", "related_type", "related_id", "detail", "occurred_at"}

// InsertAudits copies drained audit events into the audits table.
func (s *Store) InsertAudits(ctx context.Context, events []audit.Event) error {
	if len(events) == 0 {
		return nil
	}
	_, err := s.db.CopyFrom(ctx, pgx.Identifier{"audits"}, auditColumns,
		pgx.CopyFromSlice(len(events), func(i int) ([]any, error) {
			e := events[i]
			return []any{e.ID, e.Action, nullable(e.ActorID), e.SubjectType, e.SubjectID,
				text(e.RelatedType), nullable(e.RelatedID), text(e.Detail), e.OccurredAt}, nil
		}))
	return err
}

func text(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
