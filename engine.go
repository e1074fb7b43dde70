package coursegen

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/lumenly/coursegen/content"
	"github.com/lumenly/coursegen/id"
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/queue"
	"github.com/lumenly/coursegen/stream"
)

// Engine is the caller-facing surface of the generation system: it
// starts generation jobs, answers job queries, and opens live event
// streams. Workers run elsewhere; the engine only produces.
type Engine struct {
	records  job.RecordStore
	payloads job.PayloadStore
	producer *queue.Producer
	bus      *stream.Bus
	courses  content.CourseRepository
	logger   *slog.Logger
}

// NewEngine creates an Engine. The course repository is needed to
// resolve the "all lessons" assets strategy; everything else is the
// durable machinery the jobs run on.
func NewEngine(
	records job.RecordStore,
	payloads job.PayloadStore,
	producer *queue.Producer,
	bus *stream.Bus,
	courses content.CourseRepository,
	opts ...EngineOption,
) (*Engine, error) {
	if records == nil || payloads == nil || producer == nil || bus == nil {
		return nil, ErrNoStore
	}
	e := &Engine{
		records:  records,
		payloads: payloads,
		producer: producer,
		bus:      bus,
		courses:  courses,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

// StartCourseGeneration creates and enqueues a course generation job.
// The heavy input lives in the payload store; only a reference travels
// on the queue.
func (e *Engine) StartCourseGeneration(ctx context.Context, userID string, in job.CourseInput) (*job.Job, error) {
	j := job.New(userID, job.TypeCourseGeneration)
	p, err := job.NewPayload(j.ID, userID, j.Type, in)
	if err != nil {
		return nil, fmt.Errorf("coursegen: encode payload: %w", err)
	}
	return e.start(ctx, j, p)
}

// StartAssetsGeneration creates and enqueues a batch assets job for a
// course. The lesson target list is resolved from the strategy at start
// time, so the payload carries the exact batch the worker will run.
func (e *Engine) StartAssetsGeneration(ctx context.Context, userID string, in job.AssetsInput) (*job.Job, error) {
	switch in.Strategy {
	case job.StrategyAll:
		ids, err := e.courses.LessonIDs(ctx, in.CourseID)
		if err != nil {
			return nil, fmt.Errorf("coursegen: resolve lessons for %s: %w", in.CourseID, err)
		}
		in.LessonIDs = ids
	case job.StrategySelected:
		// Caller-provided list stands as given.
	case job.StrategyNone:
		in.LessonIDs = nil
	default:
		return nil, fmt.Errorf("coursegen: unknown assets strategy %q", in.Strategy)
	}

	j := job.New(userID, job.TypeAssetsGeneration)
	j.CourseID = in.CourseID
	p, err := job.NewPayload(j.ID, userID, j.Type, in)
	if err != nil {
		return nil, fmt.Errorf("coursegen: encode payload: %w", err)
	}
	return e.start(ctx, j, p)
}

// StartLessonAudio creates and enqueues a narration job for one lesson.
func (e *Engine) StartLessonAudio(ctx context.Context, userID string, in job.LessonAudioInput) (*job.Job, error) {
	j := job.New(userID, job.TypeLessonAudio)
	j.CourseID = in.CourseID
	p, err := job.NewPayload(j.ID, userID, j.Type, in)
	if err != nil {
		return nil, fmt.Errorf("coursegen: encode payload: %w", err)
	}
	return e.start(ctx, j, p)
}

// StartSectionVideo creates and enqueues a video job for one section.
func (e *Engine) StartSectionVideo(ctx context.Context, userID string, in job.SectionVideoInput) (*job.Job, error) {
	j := job.New(userID, job.TypeLessonSectionVideo)
	j.CourseID = in.CourseID
	p, err := job.NewPayload(j.ID, userID, j.Type, in)
	if err != nil {
		return nil, fmt.Errorf("coursegen: encode payload: %w", err)
	}
	return e.start(ctx, j, p)
}

// StartMergeVideo creates and enqueues a merge job combining a lesson's
// section videos into the lesson video.
func (e *Engine) StartMergeVideo(ctx context.Context, userID string, in job.MergeVideoInput) (*job.Job, error) {
	j := job.New(userID, job.TypeLessonMergeVideo)
	j.CourseID = in.CourseID
	p, err := job.NewPayload(j.ID, userID, j.Type, in)
	if err != nil {
		return nil, fmt.Errorf("coursegen: encode payload: %w", err)
	}
	return e.start(ctx, j, p)
}

// start persists the record, then the payload, then enqueues. The
// payload is saved before the push so a dequeued reference always finds
// it; if the push fails, both are rolled back and the job is marked
// failed rather than left pending forever.
func (e *Engine) start(ctx context.Context, j *job.Job, p *job.Payload) (*job.Job, error) {
	ctx = job.WithOwner(ctx, j.UserID)

	if err := e.records.Create(ctx, j); err != nil {
		return nil, fmt.Errorf("coursegen: create job: %w", err)
	}
	if err := e.payloads.Save(ctx, p); err != nil {
		e.markStartFailed(ctx, j, err)
		return nil, fmt.Errorf("coursegen: save payload: %w", err)
	}
	if _, err := e.producer.Enqueue(ctx, j); err != nil {
		if delErr := e.payloads.Delete(ctx, j.ID); delErr != nil {
			e.logger.Error("orphaned payload after enqueue failure",
				slog.String("job_id", j.ID.String()),
				slog.String("error", delErr.Error()),
			)
		}
		e.markStartFailed(ctx, j, err)
		return nil, fmt.Errorf("coursegen: enqueue job: %w", err)
	}

	e.logger.Info("generation job started",
		slog.String("job_id", j.ID.String()),
		slog.String("type", string(j.Type)),
		slog.String("user_id", j.UserID),
	)
	return j, nil
}

func (e *Engine) markStartFailed(ctx context.Context, j *job.Job, cause error) {
	failed := job.StatusFailed
	msg := cause.Error()
	now := time.Now().UTC()
	if _, err := e.records.Update(ctx, j.ID, job.Update{
		Status:      &failed,
		Error:       &msg,
		CompletedAt: &now,
	}); err != nil {
		e.logger.Error("failed to mark job failed",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	j.Status = failed
	j.Error = msg
}

// GetJob returns a job owned by the user. A job that exists but belongs
// to someone else is reported as not found.
func (e *Engine) GetJob(ctx context.Context, userID string, jobID id.JobID) (*job.Job, error) {
	ctx = job.WithOwner(ctx, userID)
	j, err := e.records.Get(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if j.UserID != userID {
		return nil, ErrJobNotFound
	}
	return j, nil
}

// ActiveJobForCourse returns the user's currently pending or processing
// job for a course, or nil if the course is idle.
func (e *Engine) ActiveJobForCourse(ctx context.Context, userID, courseID string) (*job.Job, error) {
	ctx = job.WithOwner(ctx, userID)
	j, err := e.records.ActiveForCourse(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if j != nil && j.UserID != userID {
		return nil, nil
	}
	return j, nil
}

// StaleJobs returns processing jobs whose workers have not heartbeat
// for at least olderThan. The engine only reports them; deciding what
// to do with a wedged job is an operator call.
func (e *Engine) StaleJobs(ctx context.Context, olderThan time.Duration) ([]*job.Job, error) {
	return e.records.ListStale(ctx, olderThan)
}

// StreamJob opens a live event stream for a job the user owns. The
// first event is always a snapshot of the job as stored, so a client
// attaching mid-run or after completion still converges.
func (e *Engine) StreamJob(ctx context.Context, userID string, jobID id.JobID) (*stream.Subscription, error) {
	j, err := e.GetJob(ctx, userID, jobID)
	if err != nil {
		return nil, err
	}
	return e.bus.Subscribe(ctx, stream.Snapshot(j))
}
