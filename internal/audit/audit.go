// Package audit records who changed which entity or association.
//
// Services collect events while a transaction runs and hand them to a
// Recorder only after it commits, so rolled-back work leaves no trail.
package audit

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Event is one audited change.
type Event struct {
	ID          uuid.UUID `json:"id"`
	Action      string    `json:"action"`
	ActorID     uuid.UUID `json:"actor_id"`
	SubjectType string    `json:"subject_type"`
	SubjectID   uuid.UUID `json:"subject_id"`
	RelatedType string    `json:"related_type,omitempty"`
	RelatedID   uuid.UUID `json:"related_id,omitempty"`
	Detail      string    `json:"detail,omitempty"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// Recorder accepts committed events.
type Recorder interface {
	Record(ctx context.Context, events ...Event) error
}

// Batch collects events during a transaction.
type Batch struct {
	mu     sync.Mutex
	events []Event
}

// Add appends an event, filling in its id and timestamp.
func (b *Batch) Add(e Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	b.mu.Lock()
	b.events = append(b.events, e)
	b.mu.Unlock()
}

// Events returns the collected events.
func (b *Batch) Events() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Event, len(b.events))
	copy(out, b.events)
	return out
}

// Flush sends the batch to r. Failures are logged, never returned: the
// change itself has already committed.
func (b *Batch) Flush(ctx context.Context, r Recorder, logger *zap.Logger) {
	events := b.Events()
	if r == nil || len(events) == 0 {
		return
	}
	if err := r.Record(ctx, events...); err != nil && logger != nil {
		logger.Error("audit record failed", zap.Int("events", len(events)), zap.Error(err))
	}
}

// LogRecorder writes events to the logger. It is used when Redis is not configured.
type LogRecorder struct {
	logger *zap.Logger
}

func NewLogRecorder(logger *zap.Logger) *LogRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogRecorder{logger: logger}
}

func (r *LogRecorder) Record(ctx context.Context, events ...Event) error {
	for _, e := range events {
		r.logger.Info("audit",
			zap.String("action", e.Action),
			zap.String("actor_id", e.ActorID.String()),
			zap.String("subject_type", e.SubjectType),
			zap.String("subject_id", e.SubjectID.String()),
			zap.String("related_type", e.RelatedType),
			zap.String("related_id", e.RelatedID.String()),
			zap.String("detail", e.Detail),
		)
	}
	return nil
}

// MemoryRecorder keeps events in memory.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *MemoryRecorder) Record(ctx context.Context, events ...Event) error {
	r.mu.Lock()
	r.events = append(r.events, events...)
	r.mu.Unlock()
	return nil
}

func (r *MemoryRecorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Actions returns the recorded action names in order.
func (r *MemoryRecorder) Actions() []string {
	var out []string
	for _, e := range r.Events() {
		out = append(out, e.Action)
	}
	return out
}
