package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/backoff"
	"github.com/lumenly/coursegen/id"
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/middleware"
	"github.com/lumenly/coursegen/queue"
	"github.com/lumenly/coursegen/stream"
)

// Processor is the worker pool: a bounded set of goroutines pulling job
// references from the durable queue and executing them through the
// registered orchestrators. Each job's processing is independent; no
// mutable state is shared between jobs.
type Processor struct {
	records  job.RecordStore
	payloads job.PayloadStore
	queue    job.QueueStore
	registry *Registry
	bus      *stream.Bus
	bo       backoff.Strategy
	limiter  *queue.Limiter
	mw       middleware.Middleware
	logger   *slog.Logger

	concurrency       int
	queues            []string
	pollInterval      time.Duration
	heartbeatInterval time.Duration
	workerID          id.WorkerID

	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	activeMu   sync.Mutex
	activeJobs map[string]context.CancelFunc
}

// Option configures a Processor.
type Option func(*Processor)

// WithConcurrency sets the number of concurrent worker goroutines.
func WithConcurrency(n int) Option {
	return func(p *Processor) { p.concurrency = n }
}

// WithQueues sets the queues the processor polls.
func WithQueues(queues []string) Option {
	return func(p *Processor) { p.queues = queues }
}

// WithPollInterval sets how often idle workers poll for new jobs.
func WithPollInterval(d time.Duration) Option {
	return func(p *Processor) { p.pollInterval = d }
}

// WithHeartbeatInterval sets how often running jobs refresh their
// heartbeat. Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(p *Processor) { p.heartbeatInterval = d }
}

// WithBackoff sets the retry delay strategy.
func WithBackoff(b backoff.Strategy) Option {
	return func(p *Processor) { p.bo = b }
}

// WithLimiter sets per-queue rate/concurrency limits.
func WithLimiter(l *queue.Limiter) Option {
	return func(p *Processor) { p.limiter = l }
}

// WithMiddleware sets the middleware chain wrapped around every handler.
func WithMiddleware(mws ...middleware.Middleware) Option {
	return func(p *Processor) { p.mw = middleware.Chain(mws...) }
}

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Processor) { p.logger = l }
}

// NewProcessor creates a worker pool over the given stores and handler
// registry. Events observed during processing go out on bus.
func NewProcessor(
	records job.RecordStore,
	payloads job.PayloadStore,
	queueStore job.QueueStore,
	registry *Registry,
	bus *stream.Bus,
	opts ...Option,
) *Processor {
	p := &Processor{
		records:           records,
		payloads:          payloads,
		queue:             queueStore,
		registry:          registry,
		bus:               bus,
		bo:                backoff.Default(5 * time.Second),
		mw:                middleware.Chain(),
		logger:            slog.Default(),
		concurrency:       4,
		pollInterval:      time.Second,
		heartbeatInterval: 10 * time.Second,
		workerID:          id.NewWorkerID(),
		stopCh:            make(chan struct{}),
		activeJobs:        make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WorkerID returns the pool's unique worker identifier.
func (p *Processor) WorkerID() id.WorkerID { return p.workerID }

// Start launches the worker goroutines. It returns immediately.
func (p *Processor) Start(_ context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.running {
		return nil
	}
	p.running = true

	p.logger.Info("worker pool starting",
		slog.String("worker_id", p.workerID.String()),
		slog.Int("concurrency", p.concurrency),
		slog.Any("queues", p.queues),
	)

	for range p.concurrency {
		p.wg.Add(1)
		go p.dequeueLoop()
	}

	if p.heartbeatInterval > 0 {
		p.wg.Add(1)
		go p.heartbeatLoop()
	}

	return nil
}

// Stop signals all workers to stop and waits for them to finish. If the
// context has a deadline, active jobs are cancelled when time runs out.
func (p *Processor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return nil
	}
	p.running = false
	p.mu.Unlock()

	p.logger.Info("worker pool stopping", slog.String("worker_id", p.workerID.String()))
	close(p.stopCh)

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("worker pool stopped gracefully")
	case <-ctx.Done():
		p.logger.Warn("worker pool shutdown timed out, cancelling active jobs")
		p.cancelActiveJobs()
		p.wg.Wait()
	}

	return nil
}

// dequeueLoop is run by each worker goroutine.
func (p *Processor) dequeueLoop() {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopCh:
			return
		default:
		}

		entries, err := p.queue.Pull(context.Background(), p.queues, 1)
		if err != nil {
			p.logger.Error("queue pull error", slog.String("error", err.Error()))
			p.sleep()
			continue
		}
		if len(entries) == 0 {
			p.sleep()
			continue
		}

		qj := entries[0]

		if p.limiter != nil && !p.limiter.Acquire(qj.Queue) {
			// Throttled: hand the entry back with a small delay.
			if retryErr := p.queue.Retry(context.Background(), qj.ID, time.Now().Add(p.pollInterval)); retryErr != nil {
				p.logger.Error("failed to return throttled job",
					slog.String("queue_job_id", qj.ID),
					slog.String("error", retryErr.Error()),
				)
			}
			p.sleep()
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		p.trackJob(qj.Ref.JobID.String(), cancel)

		p.process(ctx, qj)

		p.untrackJob(qj.Ref.JobID.String())
		cancel()

		if p.limiter != nil {
			p.limiter.Release(qj.Queue)
		}
	}
}

// process drives one dequeued entry through its lifecycle: stamp the
// record active, hydrate the payload, run the handler, then classify
// the outcome as completed, retryable, or terminal.
func (p *Processor) process(ctx context.Context, qj *job.QueuedJob) {
	ctx = job.WithOwner(ctx, qj.Ref.UserID)
	now := time.Now().UTC()

	// Active: stamp execution bookkeeping on the record.
	processing := job.StatusProcessing
	j, err := p.records.Update(ctx, qj.Ref.JobID, job.Update{
		Status:      &processing,
		Attempts:    &qj.Attempts,
		QueueJobID:  &qj.ID,
		StartedAt:   &now,
		HeartbeatAt: &now,
	})
	if err != nil {
		p.logger.Error("job record not updatable, dropping queue entry",
			slog.String("job_id", qj.Ref.JobID.String()),
			slog.String("error", err.Error()),
		)
		p.ack(ctx, qj)
		return
	}

	// Hydrate. A missing payload means the job cannot be resumed: fail
	// immediately, no retry.
	payload, err := p.payloads.Get(ctx, qj.Ref.JobID)
	if err != nil {
		p.fail(ctx, qj, j, coursegen.Fatal(err))
		return
	}

	handler, ok := p.registry.Get(j.Type)
	if !ok {
		p.fail(ctx, qj, j, coursegen.Fatal(coursegen.ErrNoHandler))
		return
	}

	err = p.mw(ctx, j, func(ctx context.Context) error {
		return handler(ctx, j, payload)
	})
	if err != nil {
		p.fail(ctx, qj, j, err)
		return
	}

	// Completed: the orchestrator already set the terminal status;
	// refresh the bookkeeping and retire the queue entry + payload.
	done := time.Now().UTC()
	if _, err := p.records.Update(ctx, qj.Ref.JobID, job.Update{
		Attempts:    &qj.Attempts,
		HeartbeatAt: &done,
	}); err != nil {
		p.logger.Error("post-completion bookkeeping failed",
			slog.String("job_id", qj.Ref.JobID.String()),
			slog.String("error", err.Error()),
		)
	}
	p.deletePayload(ctx, qj.Ref.JobID)
	p.ack(ctx, qj)
}

// fail classifies a handler error: schedule a retry when attempts
// remain and the error is not structural, otherwise terminally fail the
// job, publish the failure, and delete the payload.
func (p *Processor) fail(ctx context.Context, qj *job.QueuedJob, j *job.Job, handlerErr error) {
	retryable := !coursegen.IsFatal(handlerErr) && qj.Attempts < qj.MaxAttempts

	if retryable {
		delay := p.bo.Delay(qj.Attempts)
		pending := job.StatusPending
		// A fresh attempt replays the pipeline from its first phase;
		// leaving the phase where the failure happened would make the
		// next delivery's phase entry look like a backward transition.
		// Progress stays monotonic, so the replay does not regress it.
		first := job.FirstPhase(j.Type)
		if _, err := p.records.Update(ctx, qj.Ref.JobID, job.Update{Status: &pending, Phase: &first}); err != nil {
			p.logger.Error("failed to mark job retry-eligible",
				slog.String("job_id", qj.Ref.JobID.String()),
				slog.String("error", err.Error()),
			)
		}
		if err := p.queue.Retry(ctx, qj.ID, time.Now().UTC().Add(delay)); err != nil {
			p.logger.Error("failed to schedule retry",
				slog.String("queue_job_id", qj.ID),
				slog.String("error", err.Error()),
			)
		}
		p.logger.Warn("job will retry",
			slog.String("job_id", qj.Ref.JobID.String()),
			slog.Int("attempt", qj.Attempts),
			slog.Int("max_attempts", qj.MaxAttempts),
			slog.Duration("delay", delay),
			slog.String("error", handlerErr.Error()),
		)
		return
	}

	failed := job.StatusFailed
	msg := handlerErr.Error()
	now := time.Now().UTC()
	if _, err := p.records.Update(ctx, qj.Ref.JobID, job.Update{
		Status:      &failed,
		Error:       &msg,
		CompletedAt: &now,
	}); err != nil {
		p.logger.Error("failed to mark job terminally failed",
			slog.String("job_id", qj.Ref.JobID.String()),
			slog.String("error", err.Error()),
		)
	}

	// The orchestrator publishes generation.failed on its own aborts;
	// publishing here covers exhaustion and pre-handler failures. A
	// duplicate terminal event is harmless, a missing one is not.
	p.bus.Publish(ctx, stream.New(stream.EventFailed, qj.Ref.JobID.String(), stream.FailureData{Error: msg}))

	p.deletePayload(ctx, qj.Ref.JobID)
	p.ack(ctx, qj)

	p.logger.Error("job terminally failed",
		slog.String("job_id", qj.Ref.JobID.String()),
		slog.String("job_type", string(j.Type)),
		slog.Int("attempts", qj.Attempts),
		slog.String("error", msg),
	)
}

func (p *Processor) deletePayload(ctx context.Context, jobID id.JobID) {
	if err := p.payloads.Delete(ctx, jobID); err != nil && !errors.Is(err, coursegen.ErrPayloadNotFound) {
		p.logger.Warn("payload delete failed",
			slog.String("job_id", jobID.String()),
			slog.String("error", err.Error()),
		)
	}
}

func (p *Processor) ack(ctx context.Context, qj *job.QueuedJob) {
	if err := p.queue.Ack(ctx, qj.ID); err != nil {
		p.logger.Warn("queue ack failed",
			slog.String("queue_job_id", qj.ID),
			slog.String("error", err.Error()),
		)
	}
}

// heartbeatLoop periodically refreshes the heartbeat of active jobs.
func (p *Processor) heartbeatLoop() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.sendHeartbeats()
		}
	}
}

func (p *Processor) sendHeartbeats() {
	p.activeMu.Lock()
	jobIDs := make([]string, 0, len(p.activeJobs))
	for jobID := range p.activeJobs {
		jobIDs = append(jobIDs, jobID)
	}
	p.activeMu.Unlock()

	now := time.Now().UTC()
	for _, jobIDStr := range jobIDs {
		parsed, err := id.ParseJobID(jobIDStr)
		if err != nil {
			continue
		}
		if _, err := p.records.Update(context.Background(), parsed, job.Update{HeartbeatAt: &now}); err != nil {
			p.logger.Warn("heartbeat failed",
				slog.String("job_id", jobIDStr),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (p *Processor) sleep() {
	select {
	case <-time.After(p.pollInterval):
	case <-p.stopCh:
	}
}

func (p *Processor) trackJob(jobID string, cancel context.CancelFunc) {
	p.activeMu.Lock()
	p.activeJobs[jobID] = cancel
	p.activeMu.Unlock()
}

func (p *Processor) untrackJob(jobID string) {
	p.activeMu.Lock()
	delete(p.activeJobs, jobID)
	p.activeMu.Unlock()
}

func (p *Processor) cancelActiveJobs() {
	p.activeMu.Lock()
	defer p.activeMu.Unlock()
	for jobID, cancel := range p.activeJobs {
		p.logger.Warn("cancelling active job", slog.String("job_id", jobID))
		cancel()
	}
}
