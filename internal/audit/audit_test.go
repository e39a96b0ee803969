package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evolnow/backend/internal/metrics"
	"github.com/evolnow/backend/pkg/queue"
)

type sinkFunc func(ctx context.Context, events []Event) error

func (f sinkFunc) InsertAudits(ctx context.Context, events []Event) error { return f(ctx, events) }

func newQueue(t *testing.T) (*queue.Queue, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return queue.NewQueue(client, queue.QueueAudit, nil), mr
}

func TestBatchFlush(t *testing.T) {
	var b Batch
	b.Add(Event{Action: "organization.create", SubjectID: uuid.New()})
	b.Add(Event{Action: "organization.attach_user"})

	rec := &MemoryRecorder{}
	b.Flush(context.Background(), rec, nil)
	events := rec.Events()
	require.Len(t, events, 2)
	assert.NotEqual(t, uuid.Nil, events[0].ID)
	assert.False(t, events[0].OccurredAt.IsZero())
	assert.Equal(t, []string{"organization.create", "organization.attach_user"}, rec.Actions())
}

func TestPublishAndProcess(t *testing.T) {
	ctx := context.Background()
	q, _ := newQueue(t)
	m := metrics.New()
	pub := NewPublisher(q, m)

	ev := Event{ID: uuid.New(), Action: "opportunity.attach_organization", SubjectType: "opportunity", SubjectID: uuid.New(), OccurredAt: time.Now().UTC()}
	require.NoError(t, pub.Record(ctx, ev))

	var stored []Event
	p := NewProcessor(sinkFunc(func(_ context.Context, events []Event) error {
		stored = append(stored, events...)
		return nil
	}), q, m, nil)
	p.PollTimeout = time.Second

	handled, err := p.RunOnce(ctx)
	require.NoError(t, err)
	assert.True(t, handled)
	require.Len(t, stored, 1)
	assert.Equal(t, ev.ID, stored[0].ID)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditEvents.WithLabelValues("published")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuditEvents.WithLabelValues("stored")))
}

func TestProcessorRetriesThenDeadLetters(t *testing.T) {
	ctx := context.Background()
	q, mr := newQueue(t)
	require.NoError(t, NewPublisher(q, nil).Record(ctx, Event{Action: "x"}))

	p := NewProcessor(sinkFunc(func(context.Context, []Event) error {
		return errors.New("db down")
	}), q, nil, nil)
	p.PollTimeout = time.Second

	for i := 0; i < queue.MaxRetries; i++ {
		handled, err := p.RunOnce(ctx)
		assert.True(t, handled)
		assert.Error(t, err)
	}
	dlq, err := mr.List(q.DLQKey())
	require.NoError(t, err)
	assert.Len(t, dlq, 1)
	assert.False(t, mr.Exists(queue.QueueAudit))
}
