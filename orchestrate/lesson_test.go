package orchestrate_test

import (
	"context"
	"errors"
	"testing"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/content"
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/orchestrate"
	"github.com/lumenly/coursegen/store/memory"
	"github.com/lumenly/coursegen/stream"
)

type lessonHarness struct {
	store    *memory.Store
	lessons  *fakeLessonRepo
	sections *fakeSectionRepo
	handler  *orchestrate.Lessons
}

func newLessonHarness(t *testing.T, provider *fakeProvider, renderer fakeRenderer, lessons *fakeLessonRepo) *lessonHarness {
	t.Helper()
	h := &lessonHarness{
		store:    memory.New(),
		lessons:  lessons,
		sections: newFakeSectionRepo(),
	}
	bus := stream.NewBus(nil, stream.WithHeartbeatInterval(0))
	pipeline := newTestPipeline(t, provider, renderer, h.sections, h.lessons)
	handler, err := orchestrate.NewLessons(h.store.Records(), bus, newRegistry(provider),
		h.lessons, h.sections, pipeline, nil)
	if err != nil {
		t.Fatalf("NewLessons: %v", err)
	}
	h.handler = handler
	return h
}

func (h *lessonHarness) newJob(t *testing.T, typ job.Type, body any) (*job.Job, *job.Payload) {
	t.Helper()
	j := job.New("user-1", typ)
	if err := h.store.Records().Create(context.Background(), j); err != nil {
		t.Fatalf("Create: %v", err)
	}
	p, err := job.NewPayload(j.ID, j.UserID, j.Type, body)
	if err != nil {
		t.Fatalf("NewPayload: %v", err)
	}
	return j, p
}

func TestLessonAudioNarratesEverySection(t *testing.T) {
	provider := &fakeProvider{}
	lessons := newFakeLessonRepo(&content.Lesson{ID: "les-1", Type: content.LessonAudio})
	h := newLessonHarness(t, provider, fakeRenderer{}, lessons)
	h.sections.seed(&content.ScriptSection{ID: "sec-1", LessonID: "les-1", Text: "one"})
	h.sections.seed(&content.ScriptSection{ID: "sec-2", LessonID: "les-1", Text: "two"})

	j, p := h.newJob(t, job.TypeLessonAudio, job.LessonAudioInput{CourseID: "course-1", LessonID: "les-1"})
	if err := h.handler.HandleAudio(context.Background(), j, p); err != nil {
		t.Fatalf("HandleAudio: %v", err)
	}

	got, _ := h.store.Records().Get(context.Background(), j.ID)
	if got.Status != job.StatusCompleted || got.Progress != 100 {
		t.Fatalf("status/progress = %q/%d, want completed/100 (error: %q)", got.Status, got.Progress, got.Error)
	}
	if got.Metadata["sectionCount"] != 2 {
		t.Errorf("sectionCount = %v, want 2", got.Metadata["sectionCount"])
	}
	for _, id := range []string{"sec-1", "sec-2"} {
		s, _ := h.sections.Get(context.Background(), id)
		if s.AudioStatus != content.AssetReady || s.AudioURL == "" {
			t.Errorf("section %s audio = %q/%q, want ready with URL", id, s.AudioStatus, s.AudioURL)
		}
	}
}

func TestLessonAudioFailsWithoutSections(t *testing.T) {
	provider := &fakeProvider{}
	lessons := newFakeLessonRepo(&content.Lesson{ID: "les-1", Type: content.LessonAudio})
	h := newLessonHarness(t, provider, fakeRenderer{}, lessons)

	j, p := h.newJob(t, job.TypeLessonAudio, job.LessonAudioInput{CourseID: "course-1", LessonID: "les-1"})
	err := h.handler.HandleAudio(context.Background(), j, p)
	if err == nil || !coursegen.IsFatal(err) {
		t.Fatalf("err = %v, want fatal", err)
	}
	got, _ := h.store.Records().Get(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
}

func TestSectionVideoGeneratesMissingStoryboard(t *testing.T) {
	provider := &fakeProvider{storyScenes: 2}
	lessons := newFakeLessonRepo(&content.Lesson{ID: "les-1", Type: content.LessonVideo})
	h := newLessonHarness(t, provider, fakeRenderer{}, lessons)
	h.sections.seed(&content.ScriptSection{ID: "sec-1", LessonID: "les-1", Text: "plot"})

	j, p := h.newJob(t, job.TypeLessonSectionVideo, job.SectionVideoInput{
		CourseID: "course-1", LessonID: "les-1", SectionID: "sec-1",
	})
	if err := h.handler.HandleSectionVideo(context.Background(), j, p); err != nil {
		t.Fatalf("HandleSectionVideo: %v", err)
	}

	s, _ := h.sections.Get(context.Background(), "sec-1")
	if s.Storyboard == nil || len(s.Storyboard.Scenes) != 2 {
		t.Fatalf("storyboard not generated: %+v", s.Storyboard)
	}
	if s.VideoStatus != content.AssetReady {
		t.Errorf("video status = %q, want ready", s.VideoStatus)
	}
	got, _ := h.store.Records().Get(context.Background(), j.ID)
	if got.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want completed (error: %q)", got.Status, got.Error)
	}
	if got.Metadata["videoUrl"] == "" || got.Metadata["videoUrl"] == nil {
		t.Errorf("videoUrl metadata = %v, want set", got.Metadata["videoUrl"])
	}
}

func TestSectionVideoRenderFailureFailsJob(t *testing.T) {
	provider := &fakeProvider{storyScenes: 1}
	lessons := newFakeLessonRepo(&content.Lesson{ID: "les-1", Type: content.LessonVideo})
	h := newLessonHarness(t, provider, fakeRenderer{clipErr: errors.New("render broke")}, lessons)
	h.sections.seed(&content.ScriptSection{ID: "sec-1", LessonID: "les-1", Text: "plot"})

	j, p := h.newJob(t, job.TypeLessonSectionVideo, job.SectionVideoInput{
		CourseID: "course-1", LessonID: "les-1", SectionID: "sec-1",
	})
	err := h.handler.HandleSectionVideo(context.Background(), j, p)
	if err == nil {
		t.Fatal("HandleSectionVideo returned nil for a failed render")
	}
	if coursegen.IsFatal(err) {
		t.Errorf("render failure marked fatal, want retryable: %v", err)
	}
	got, _ := h.store.Records().Get(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
}

func TestMergeVideoRequiresEverySectionVideo(t *testing.T) {
	provider := &fakeProvider{}
	lessons := newFakeLessonRepo(&content.Lesson{ID: "les-1", Type: content.LessonVideo})
	h := newLessonHarness(t, provider, fakeRenderer{}, lessons)
	h.sections.seed(&content.ScriptSection{ID: "sec-1", LessonID: "les-1", Text: "no video yet"})

	j, p := h.newJob(t, job.TypeLessonMergeVideo, job.MergeVideoInput{CourseID: "course-1", LessonID: "les-1"})
	err := h.handler.HandleMergeVideo(context.Background(), j, p)
	if !errors.Is(err, coursegen.ErrSectionVideoMissing) {
		t.Fatalf("err = %v, want ErrSectionVideoMissing", err)
	}
	got, _ := h.store.Records().Get(context.Background(), j.ID)
	if got.Status != job.StatusFailed {
		t.Errorf("status = %q, want failed", got.Status)
	}
	l, _ := lessons.Get(context.Background(), "les-1")
	if l.VideoURL != "" {
		t.Errorf("lesson video URL = %q, want untouched", l.VideoURL)
	}
}

func TestMergeVideoConcatenatesReadySections(t *testing.T) {
	provider := &fakeProvider{storyScenes: 1}
	lessons := newFakeLessonRepo(&content.Lesson{ID: "les-1", Type: content.LessonVideo})
	h := newLessonHarness(t, provider, fakeRenderer{}, lessons)
	h.sections.seed(&content.ScriptSection{
		ID: "sec-1", LessonID: "les-1", Text: "plot",
		Storyboard: &content.Storyboard{Scenes: []content.Scene{{Narration: "n", VisualConcept: "v"}}},
	})

	// Render the section first so its video exists in blob storage.
	vj, vp := h.newJob(t, job.TypeLessonSectionVideo, job.SectionVideoInput{
		CourseID: "course-1", LessonID: "les-1", SectionID: "sec-1",
	})
	if err := h.handler.HandleSectionVideo(context.Background(), vj, vp); err != nil {
		t.Fatalf("HandleSectionVideo: %v", err)
	}

	j, p := h.newJob(t, job.TypeLessonMergeVideo, job.MergeVideoInput{CourseID: "course-1", LessonID: "les-1"})
	if err := h.handler.HandleMergeVideo(context.Background(), j, p); err != nil {
		t.Fatalf("HandleMergeVideo: %v", err)
	}

	l, _ := lessons.Get(context.Background(), "les-1")
	if l.VideoStatus != content.AssetReady || l.VideoURL == "" {
		t.Fatalf("lesson video = %q/%q, want ready with URL", l.VideoStatus, l.VideoURL)
	}
	got, _ := h.store.Records().Get(context.Background(), j.ID)
	if got.Status != job.StatusCompleted {
		t.Fatalf("status = %q, want completed (error: %q)", got.Status, got.Error)
	}
	if got.Metadata["videoUrl"] != l.VideoURL {
		t.Errorf("videoUrl metadata = %v, want %q", got.Metadata["videoUrl"], l.VideoURL)
	}
}
