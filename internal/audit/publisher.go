package audit

import (
	"context"

	"github.com/evolnow/backend/internal/metrics"
	"github.com/evolnow/backend/pkg/queue"
)

// Publisher pushes events to the audit queue for the worker to store.
type Publisher struct {
	queue   *queue.Queue
	metrics *metrics.Metrics
}

func NewPublisher(q *queue.Queue, m *metrics.Metrics) *Publisher {
	return &Publisher{queue: q, metrics: m}
}

// Record enqueues all events as one job.
func (p *Publisher) Record(ctx context.Context, events ...Event) error {
	if len(events) == 0 {
		return nil
	}
	if err := p.queue.Enqueue(ctx, queue.JobTypeAudit, events); err != nil {
		p.metrics.ObserveAudit("failed", len(events))
		return err
	}
	p.metrics.ObserveAudit("published", len(events))
	return nil
}
