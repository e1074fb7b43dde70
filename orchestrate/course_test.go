package orchestrate_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/content"
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/orchestrate"
	"github.com/lumenly/coursegen/store/memory"
	"github.com/lumenly/coursegen/stream"
)

func demoTree() *content.Course {
	return &content.Course{
		Title: "Intro to Gardening",
		Modules: []content.Module{
			{Title: "Basics", Lessons: []content.Lesson{
				{Title: "Soil", Type: content.LessonVideo},
				{Title: "Seeds", Type: content.LessonArticle},
			}},
		},
	}
}

type courseHarness struct {
	store    *memory.Store
	bus      *stream.Bus
	courses  *fakeCourses
	sections *fakeSectionRepo
	samples  *fakeSamples
	lessons  *fakeLessonRepo
	handler  *orchestrate.Course
}

func newCourseHarness(t *testing.T, provider *fakeProvider, renderer fakeRenderer) *courseHarness {
	t.Helper()
	h := &courseHarness{
		store:    memory.New(),
		bus:      stream.NewBus(nil, stream.WithHeartbeatInterval(0)),
		courses:  &fakeCourses{},
		sections: newFakeSectionRepo(),
		samples:  &fakeSamples{},
		lessons:  newFakeLessonRepo(),
	}
	pipeline := newTestPipeline(t, provider, renderer, h.sections, h.lessons)
	handler, err := orchestrate.NewCourse(h.store.Records(), h.bus, newRegistry(provider),
		h.courses, h.sections, h.samples, pipeline, nil)
	if err != nil {
		t.Fatalf("NewCourse: %v", err)
	}
	h.handler = handler
	return h
}

func (h *courseHarness) startJob(t *testing.T, in job.CourseInput) (*job.Job, *job.Payload) {
	t.Helper()
	j := job.New("user-1", job.TypeCourseGeneration)
	if err := h.store.Records().Create(context.Background(), j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	p, err := job.NewPayload(j.ID, j.UserID, j.Type, in)
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	return j, p
}

func TestCourseGenerationHappyPath(t *testing.T) {
	provider := &fakeProvider{course: demoTree(), scriptSections: 2, storyScenes: 2}
	h := newCourseHarness(t, provider, fakeRenderer{})

	j, p := h.startJob(t, job.CourseInput{Title: "Intro to Gardening", FreemiumSample: true})
	sub, err := h.bus.Subscribe(context.Background(), stream.Snapshot(j))
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()

	if err := h.handler.Handle(context.Background(), j, p); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got, err := h.store.Records().Get(context.Background(), j.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want %q (error: %q)", got.Status, job.StatusCompleted, got.Error)
	}
	if got.Phase != job.PhaseDone || got.Progress != 100 {
		t.Errorf("phase/progress = %q/%d, want done/100", got.Phase, got.Progress)
	}
	if got.CourseID != "course-1" {
		t.Errorf("CourseID = %q, want course-1", got.CourseID)
	}
	if status := got.Metadata["demoSectionVideoStatus"]; status != "ready" {
		t.Errorf("demoSectionVideoStatus = %v, want ready", status)
	}
	if h.samples.consumed != 1 {
		t.Errorf("samples consumed = %d, want 1", h.samples.consumed)
	}

	// The demo lesson's sections were persisted and the first one rendered.
	firstLesson := h.courses.course.Modules[0].Lessons[0]
	secs, _ := h.sections.ListByLesson(context.Background(), firstLesson.ID)
	if len(secs) != 2 {
		t.Fatalf("sections = %d, want 2", len(secs))
	}
	if secs[0].VideoStatus != content.AssetReady || secs[0].VideoURL == "" {
		t.Errorf("first section video = %q/%q, want ready with URL", secs[0].VideoStatus, secs[0].VideoURL)
	}

	events := collectEvents(sub)
	redirect := eventIndex(events, stream.EventRedirectReady)
	completed := eventIndex(events, stream.EventCompleted)
	if redirect < 0 || completed < 0 {
		t.Fatalf("missing redirect-ready (%d) or completed (%d) event", redirect, completed)
	}
	if redirect > completed {
		t.Errorf("redirect-ready at %d came after completed at %d", redirect, completed)
	}
	if demo := eventIndex(events, stream.EventDemoReady); demo < 0 || demo > completed {
		t.Errorf("demo-ready at %d, want present and before completed at %d", demo, completed)
	}
}

func TestCourseGenerationFailsWithoutLessons(t *testing.T) {
	provider := &fakeProvider{
		course:      &content.Course{Title: "Empty", Modules: nil},
		storyScenes: 1,
	}
	h := newCourseHarness(t, provider, fakeRenderer{})

	j, p := h.startJob(t, job.CourseInput{Title: "Empty"})
	err := h.handler.Handle(context.Background(), j, p)
	if err == nil {
		t.Fatal("Handle returned nil for a course with no lessons")
	}
	if !errors.Is(err, coursegen.ErrCourseStructureMissing) {
		t.Errorf("err = %v, want ErrCourseStructureMissing", err)
	}
	if !coursegen.IsFatal(err) {
		t.Errorf("err = %v, want fatal", err)
	}

	got, _ := h.store.Records().Get(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	if got.Error == "" {
		t.Error("Error is empty after failure")
	}
}

func TestCourseGenerationDemoRenderFailureIsNotFatal(t *testing.T) {
	provider := &fakeProvider{course: demoTree(), scriptSections: 1, storyScenes: 1}
	h := newCourseHarness(t, provider, fakeRenderer{clipErr: errors.New("ffmpeg exploded")})

	j, p := h.startJob(t, job.CourseInput{Title: "Intro to Gardening"})
	if err := h.handler.Handle(context.Background(), j, p); err != nil {
		t.Fatalf("Handle: %v", err)
	}

	got, _ := h.store.Records().Get(context.Background(), j.ID)
	if got.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want completed despite demo render failure", got.Status)
	}
	if status := got.Metadata["demoSectionVideoStatus"]; status != "failed" {
		t.Errorf("demoSectionVideoStatus = %v, want failed", status)
	}
}

func TestCourseGenerationRejectsMalformedPayload(t *testing.T) {
	provider := &fakeProvider{course: demoTree(), scriptSections: 1, storyScenes: 1}
	h := newCourseHarness(t, provider, fakeRenderer{})

	j, _ := h.startJob(t, job.CourseInput{})
	p := &job.Payload{JobID: j.ID, UserID: j.UserID, Kind: j.Type, Data: []byte("{not json")}

	err := h.handler.Handle(context.Background(), j, p)
	if err == nil || !coursegen.IsFatal(err) {
		t.Fatalf("err = %v, want fatal decode error", err)
	}
	if !strings.Contains(err.Error(), "payload") {
		t.Errorf("err = %v, want payload decode context", err)
	}
}
