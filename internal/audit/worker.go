package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/evolnow/backend/internal/metrics"
	"github.com/evolnow/backend/pkg/queue"
)

// Sink persists events.
type Sink interface {
	InsertAudits(ctx context.Context, events []Event) error
}

// Processor drains the audit queue into a Sink.
type Processor struct {
	sink    Sink
	queue   *queue.Queue
	metrics *metrics.Metrics
	logger  *zap.Logger
	// Backoff is the pause after a failed job or dequeue error.
	Backoff time.Duration
	// PollTimeout bounds each blocking dequeue so ctx is checked regularly.
	PollTimeout time.Duration
}

// NewProcessor creates an audit queue processor.
func NewProcessor(sink Sink, q *queue.Queue, m *metrics.Metrics, logger *zap.Logger) *Processor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Processor{
		sink:        sink,
		queue:       q,
		metrics:     m,
		logger:      logger,
		Backoff:     queue.RetryBackoff,
		PollTimeout: 5 * time.Second,
	}
}

// Process stores one audit job.
func (p *Processor) Process(ctx context.Context, job *queue.Job) error {
	if job.Type != queue.JobTypeAudit {
		return fmt.Errorf("unknown job type: %s", job.Type)
	}
	var events []Event
	if err := json.Unmarshal(job.Payload, &events); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := p.sink.InsertAudits(ctx, events); err != nil {
		return fmt.Errorf("insert audits: %w", err)
	}
	p.metrics.ObserveAudit("stored", len(events))
	p.logger.Debug("audit batch stored", zap.String("job_id", job.ID), zap.Int("events", len(events)))
	return nil
}

// RunOnce handles at most one job. It reports whether a job was dequeued.
func (p *Processor) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.queue.Dequeue(ctx, p.PollTimeout)
	if err != nil {
		return false, fmt.Errorf("dequeue: %w", err)
	}
	if job == nil {
		return false, nil
	}
	if err := p.Process(ctx, job); err != nil {
		p.logger.Error("job failed", zap.String("job_id", job.ID), zap.Int("attempt", job.Attempt), zap.Error(err))
		if reErr := p.queue.Retry(ctx, job); reErr != nil {
			p.logger.Error("retry enqueue failed", zap.Error(reErr))
		}
		return true, err
	}
	return true, nil
}

// Run loops until ctx is done.
func (p *Processor) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("audit worker stopping")
			return nil
		default:
		}

		if _, err := p.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				continue
			}
			if p.Backoff > 0 {
				select {
				case <-ctx.Done():
				case <-time.After(p.Backoff):
				}
			}
		}
	}
}
