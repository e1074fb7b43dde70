// Package queue provides the producer side of the durable job queue and
// per-queue throttling for the worker pool.
package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenly/coursegen/job"
)

// Producer hands lightweight job references to the durable queue. The
// payload never travels on the queue; workers rehydrate it from the
// payload store.
type Producer struct {
	store       job.QueueStore
	records     job.RecordStore
	prefix      string
	maxAttempts int
	logger      *slog.Logger
}

// ProducerOption configures a Producer.
type ProducerOption func(*Producer)

// WithQueuePrefix sets the queue name prefix.
func WithQueuePrefix(prefix string) ProducerOption {
	return func(p *Producer) { p.prefix = prefix }
}

// WithMaxAttempts sets the delivery attempt bound for enqueued jobs.
func WithMaxAttempts(n int) ProducerOption {
	return func(p *Producer) { p.maxAttempts = n }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) ProducerOption {
	return func(p *Producer) { p.logger = l }
}

// NewProducer creates a Producer. Enqueued references are recorded back
// on the job record (queue name + queue-job id) for traceability.
func NewProducer(store job.QueueStore, records job.RecordStore, opts ...ProducerOption) *Producer {
	p := &Producer{
		store:       store,
		records:     records,
		maxAttempts: 3,
		logger:      slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Enqueue pushes the job's reference onto its type's queue and stamps
// the queue bookkeeping on the job record. The job ID doubles as the
// queue's dedup key, so enqueueing the same job twice is safe: the
// second push is a no-op returning the existing queue-job id.
func (p *Producer) Enqueue(ctx context.Context, j *job.Job) (string, error) {
	queueName := j.Type.QueueName(p.prefix)
	maxAttempts := j.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = p.maxAttempts
	}

	queueJobID, err := p.store.Push(ctx, &job.QueuedJob{
		Queue:       queueName,
		Ref:         job.Reference{JobID: j.ID, UserID: j.UserID},
		MaxAttempts: maxAttempts,
		RunAt:       time.Now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("queue: enqueue %s: %w", j.ID, err)
	}

	if _, err := p.records.Update(ctx, j.ID, job.Update{
		QueueName:   &queueName,
		QueueJobID:  &queueJobID,
		MaxAttempts: &maxAttempts,
	}); err != nil {
		return "", fmt.Errorf("queue: record queue id for %s: %w", j.ID, err)
	}
	j.QueueName = queueName
	j.QueueJobID = queueJobID
	j.MaxAttempts = maxAttempts

	p.logger.Debug("job enqueued",
		slog.String("job_id", j.ID.String()),
		slog.String("queue", queueName),
		slog.String("queue_job_id", queueJobID),
	)
	return queueJobID, nil
}
