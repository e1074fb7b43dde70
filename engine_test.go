package coursegen_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/content"
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/queue"
	"github.com/lumenly/coursegen/store/memory"
	"github.com/lumenly/coursegen/stream"
)

type stubCourses struct {
	lessonIDs []string
	err       error
}

func (s stubCourses) LessonIDs(_ context.Context, _ string) ([]string, error) {
	return s.lessonIDs, s.err
}

func (s stubCourses) CreateTree(_ context.Context, _ string, _ *content.Course) (string, error) {
	return "", errors.New("not used")
}

func (s stubCourses) Get(_ context.Context, _ string) (*content.Course, error) {
	return nil, errors.New("not used")
}

func newTestEngine(t *testing.T, courses stubCourses) (*coursegen.Engine, *memory.Store) {
	t.Helper()
	s := memory.New()
	bus := stream.NewBus(nil, stream.WithHeartbeatInterval(0))
	producer := queue.NewProducer(s.Queue(), s.Records())
	e, err := coursegen.NewEngine(s.Records(), s.Payloads(), producer, bus, courses)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e, s
}

func TestStartCourseGenerationPersistsAndEnqueues(t *testing.T) {
	e, s := newTestEngine(t, stubCourses{})
	ctx := context.Background()

	j, err := e.StartCourseGeneration(ctx, "user-1", job.CourseInput{Title: "Knots"})
	if err != nil {
		t.Fatalf("StartCourseGeneration: %v", err)
	}
	if j.Status != job.StatusPending {
		t.Errorf("status = %q, want pending", j.Status)
	}
	if j.QueueJobID == "" {
		t.Error("QueueJobID not stamped after enqueue")
	}

	if _, err := s.Payloads().Get(ctx, j.ID); err != nil {
		t.Errorf("payload not saved: %v", err)
	}
	pulled, err := s.Queue().Pull(ctx, []string{j.QueueName}, 10)
	if err != nil {
		t.Fatalf("Pull: %v", err)
	}
	if len(pulled) != 1 || pulled[0].Ref.JobID != j.ID {
		t.Fatalf("queue entries = %+v, want one referencing %s", pulled, j.ID)
	}
}

func TestStartAssetsGenerationResolvesAllStrategy(t *testing.T) {
	e, s := newTestEngine(t, stubCourses{lessonIDs: []string{"les-1", "les-2"}})
	ctx := context.Background()

	j, err := e.StartAssetsGeneration(ctx, "user-1", job.AssetsInput{
		CourseID: "course-1",
		Strategy: job.StrategyAll,
	})
	if err != nil {
		t.Fatalf("StartAssetsGeneration: %v", err)
	}
	if j.CourseID != "course-1" {
		t.Errorf("CourseID = %q, want course-1", j.CourseID)
	}

	p, err := s.Payloads().Get(ctx, j.ID)
	if err != nil {
		t.Fatalf("payload: %v", err)
	}
	in, err := job.Decode[job.AssetsInput](p)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if len(in.LessonIDs) != 2 {
		t.Errorf("LessonIDs = %v, want the course's two lessons", in.LessonIDs)
	}
}

func TestStartAssetsGenerationRejectsUnknownStrategy(t *testing.T) {
	e, _ := newTestEngine(t, stubCourses{})
	_, err := e.StartAssetsGeneration(context.Background(), "user-1", job.AssetsInput{
		CourseID: "course-1",
		Strategy: job.Strategy("sometimes"),
	})
	if err == nil {
		t.Fatal("unknown strategy accepted")
	}
}

// failingQueue records the pushed reference, then fails the push.
type failingQueue struct {
	pushed *job.QueuedJob
}

func (q *failingQueue) Push(_ context.Context, qj *job.QueuedJob) (string, error) {
	q.pushed = qj
	return "", errors.New("redis is down")
}
func (q *failingQueue) Pull(context.Context, []string, int) ([]*job.QueuedJob, error) {
	return nil, nil
}
func (q *failingQueue) Retry(context.Context, string, time.Time) error { return nil }
func (q *failingQueue) Ack(context.Context, string) error              { return nil }

func TestStartRollsBackPayloadOnEnqueueFailure(t *testing.T) {
	s := memory.New()
	bus := stream.NewBus(nil, stream.WithHeartbeatInterval(0))
	fq := &failingQueue{}
	producer := queue.NewProducer(fq, s.Records())
	e, err := coursegen.NewEngine(s.Records(), s.Payloads(), producer, bus, stubCourses{})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	ctx := context.Background()

	_, err = e.StartCourseGeneration(ctx, "user-1", job.CourseInput{Title: "Knots"})
	if err == nil {
		t.Fatal("StartCourseGeneration succeeded with a broken queue")
	}
	if fq.pushed == nil {
		t.Fatal("push never attempted")
	}

	jobID := fq.pushed.Ref.JobID
	got, err := s.Records().Get(ctx, jobID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != job.StatusFailed || got.Error == "" {
		t.Errorf("job = %q/%q, want failed with error text", got.Status, got.Error)
	}
	if _, err := s.Payloads().Get(ctx, jobID); !errors.Is(err, coursegen.ErrPayloadNotFound) {
		t.Errorf("payload err = %v, want ErrPayloadNotFound after rollback", err)
	}
}

func TestGetJobEnforcesOwnership(t *testing.T) {
	e, _ := newTestEngine(t, stubCourses{})
	ctx := context.Background()

	j, err := e.StartCourseGeneration(ctx, "user-1", job.CourseInput{Title: "Knots"})
	if err != nil {
		t.Fatalf("StartCourseGeneration: %v", err)
	}

	if _, err := e.GetJob(ctx, "user-1", j.ID); err != nil {
		t.Errorf("owner GetJob: %v", err)
	}
	if _, err := e.GetJob(ctx, "user-2", j.ID); !errors.Is(err, coursegen.ErrJobNotFound) {
		t.Errorf("foreign GetJob err = %v, want ErrJobNotFound", err)
	}
}

func TestActiveJobForCourseHidesForeignJobs(t *testing.T) {
	e, _ := newTestEngine(t, stubCourses{})
	ctx := context.Background()

	j, err := e.StartAssetsGeneration(ctx, "user-1", job.AssetsInput{
		CourseID: "course-1",
		Strategy: job.StrategyNone,
	})
	if err != nil {
		t.Fatalf("StartAssetsGeneration: %v", err)
	}

	got, err := e.ActiveJobForCourse(ctx, "user-1", "course-1")
	if err != nil || got == nil || got.ID != j.ID {
		t.Fatalf("owner active job = %v (err %v), want %s", got, err, j.ID)
	}
	foreign, err := e.ActiveJobForCourse(ctx, "user-2", "course-1")
	if err != nil || foreign != nil {
		t.Errorf("foreign active job = %v (err %v), want nil", foreign, err)
	}
	idle, err := e.ActiveJobForCourse(ctx, "user-1", "course-2")
	if err != nil || idle != nil {
		t.Errorf("idle course job = %v (err %v), want nil", idle, err)
	}
}

func TestStaleJobsReportsMissedHeartbeats(t *testing.T) {
	e, s := newTestEngine(t, stubCourses{})
	ctx := context.Background()

	j, err := e.StartCourseGeneration(ctx, "user-1", job.CourseInput{Title: "Knots"})
	if err != nil {
		t.Fatalf("StartCourseGeneration: %v", err)
	}
	processing := job.StatusProcessing
	old := time.Now().UTC().Add(-time.Hour)
	if _, err := s.Records().Update(ctx, j.ID, job.Update{
		Status:      &processing,
		HeartbeatAt: &old,
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	stale, err := e.StaleJobs(ctx, 10*time.Minute)
	if err != nil {
		t.Fatalf("StaleJobs: %v", err)
	}
	if len(stale) != 1 || stale[0].ID != j.ID {
		t.Fatalf("stale = %v, want just %s", stale, j.ID)
	}
}

func TestStreamJobStartsWithSnapshot(t *testing.T) {
	e, _ := newTestEngine(t, stubCourses{})
	ctx := context.Background()

	j, err := e.StartCourseGeneration(ctx, "user-1", job.CourseInput{Title: "Knots"})
	if err != nil {
		t.Fatalf("StartCourseGeneration: %v", err)
	}

	sub, err := e.StreamJob(ctx, "user-1", j.ID)
	if err != nil {
		t.Fatalf("StreamJob: %v", err)
	}
	defer sub.Close()

	select {
	case evt := <-sub.C():
		if evt.Type != stream.EventSnapshot {
			t.Errorf("first event = %q, want snapshot", evt.Type)
		}
		if evt.JobID != j.ID.String() {
			t.Errorf("snapshot job id = %q, want %q", evt.JobID, j.ID)
		}
	case <-time.After(time.Second):
		t.Fatal("no snapshot event delivered")
	}

	if _, err := e.StreamJob(ctx, "user-2", j.ID); !errors.Is(err, coursegen.ErrJobNotFound) {
		t.Errorf("foreign StreamJob err = %v, want ErrJobNotFound", err)
	}
}
