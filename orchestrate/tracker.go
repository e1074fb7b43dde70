// Package orchestrate drives generation jobs through their phases. Each
// job type has one orchestrator; all of them persist progress on the
// job record and publish events through the stream bus as they go.
package orchestrate

import (
	"context"
	"log/slog"
	"time"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/stream"
)

// tracker couples job record updates with event publication so every
// phase/progress change is observable the moment it is durable.
type tracker struct {
	records job.RecordStore
	bus     *stream.Bus
	logger  *slog.Logger
}

// enterPhase advances the job to a phase, persists the new progress,
// and publishes generation.phase.started. Phase transitions are
// forward-only; a backward transition is a programming error and aborts
// the job for good.
func (t *tracker) enterPhase(ctx context.Context, j *job.Job, phase job.Phase, progress int) error {
	if !job.CanTransition(j.Type, j.Phase, phase) {
		return coursegen.Fatal(coursegen.ErrInvalidTransition)
	}
	if err := t.persist(ctx, j, job.Update{Phase: &phase, Progress: clamp(j, progress)}); err != nil {
		return err
	}
	t.bus.Publish(ctx, stream.New(stream.EventPhaseStarted, j.ID.String(), stream.PhaseData{
		Phase:    phase,
		Progress: j.Progress,
	}))
	return nil
}

// progress persists a progress value within the current phase and
// publishes generation.phase.progress.
func (t *tracker) progress(ctx context.Context, j *job.Job, progress int) error {
	if err := t.persist(ctx, j, job.Update{Progress: clamp(j, progress)}); err != nil {
		return err
	}
	t.bus.Publish(ctx, stream.New(stream.EventPhaseProgress, j.ID.String(), stream.PhaseData{
		Phase:    j.Phase,
		Progress: j.Progress,
	}))
	return nil
}

// completePhase publishes generation.phase.completed at the given
// progress without leaving the phase.
func (t *tracker) completePhase(ctx context.Context, j *job.Job, progress int) error {
	if err := t.persist(ctx, j, job.Update{Progress: clamp(j, progress)}); err != nil {
		return err
	}
	t.bus.Publish(ctx, stream.New(stream.EventPhaseCompleted, j.ID.String(), stream.PhaseData{
		Phase:    j.Phase,
		Progress: j.Progress,
	}))
	return nil
}

// complete moves the job to its terminal done phase at progress 100,
// persists the final metadata, and publishes generation.completed.
func (t *tracker) complete(ctx context.Context, j *job.Job, meta job.Metadata) error {
	done := job.PhaseDone
	completed := job.StatusCompleted
	hundred := 100
	now := time.Now().UTC()
	if err := t.persist(ctx, j, job.Update{
		Status:      &completed,
		Phase:       &done,
		Progress:    &hundred,
		Metadata:    meta,
		CompletedAt: &now,
	}); err != nil {
		return err
	}
	t.bus.Publish(ctx, stream.New(stream.EventCompleted, j.ID.String(), stream.SnapshotData{
		Status:   j.Status,
		Phase:    j.Phase,
		Progress: j.Progress,
		CourseID: j.CourseID,
		Metadata: j.Metadata,
	}))
	return nil
}

// fail marks the job failed with a human-readable cause and publishes
// generation.failed, then hands the original error back so the queue's
// retry policy can apply. If attempts remain, the worker flips the job
// back to pending.
func (t *tracker) fail(ctx context.Context, j *job.Job, cause error) error {
	failed := job.StatusFailed
	msg := cause.Error()
	if err := t.persist(ctx, j, job.Update{Status: &failed, Error: &msg}); err != nil {
		t.logger.Error("failed to persist job failure",
			slog.String("job_id", j.ID.String()),
			slog.String("error", err.Error()),
		)
	}
	t.bus.Publish(ctx, stream.New(stream.EventFailed, j.ID.String(), stream.FailureData{Error: msg}))
	return cause
}

// persist applies the update and refreshes the in-memory job copy.
func (t *tracker) persist(ctx context.Context, j *job.Job, upd job.Update) error {
	updated, err := t.records.Update(ctx, j.ID, upd)
	if err != nil {
		return err
	}
	*j = *updated
	return nil
}

// clamp keeps progress monotonically non-decreasing within a job.
func clamp(j *job.Job, progress int) *int {
	if progress < j.Progress {
		progress = j.Progress
	}
	if progress > 100 {
		progress = 100
	}
	return &progress
}
