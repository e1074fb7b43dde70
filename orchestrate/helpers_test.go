package orchestrate_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/content"
	"github.com/lumenly/coursegen/genai"
	"github.com/lumenly/coursegen/media"
	"github.com/lumenly/coursegen/storage"
	"github.com/lumenly/coursegen/stream"
)

// fakeProvider implements every generator capability with canned
// responses, registered as the registry fallback in tests.
type fakeProvider struct {
	course    *content.Course
	courseErr error

	scriptSections int
	scriptErr      error

	storyScenes int
	storyErr    error

	article    string
	articleErr error

	quiz    []content.QuizQuestion
	quizErr error
}

func (f *fakeProvider) GenerateCourse(_ context.Context, _ genai.CourseRequest) (*content.Course, error) {
	return f.course, f.courseErr
}

func (f *fakeProvider) GenerateScript(_ context.Context, lesson *content.Lesson) ([]*content.ScriptSection, error) {
	if f.scriptErr != nil {
		return nil, f.scriptErr
	}
	sections := make([]*content.ScriptSection, f.scriptSections)
	for i := range sections {
		sections[i] = &content.ScriptSection{
			LessonID: lesson.ID,
			Position: i,
			Text:     fmt.Sprintf("section %d of %s", i, lesson.Title),
		}
	}
	return sections, nil
}

func (f *fakeProvider) GenerateStoryboard(_ context.Context, _ string) (*content.Storyboard, error) {
	if f.storyErr != nil {
		return nil, f.storyErr
	}
	sb := &content.Storyboard{StylePrompt: "flat vector art"}
	for i := range f.storyScenes {
		sb.Scenes = append(sb.Scenes, content.Scene{
			VisualConcept: fmt.Sprintf("concept %d", i),
			Narration:     fmt.Sprintf("narration %d", i),
		})
	}
	return sb, nil
}

func (f *fakeProvider) GenerateArticle(_ context.Context, _, _ string) (string, error) {
	return f.article, f.articleErr
}

func (f *fakeProvider) GenerateQuiz(_ context.Context, _ *content.Lesson) ([]content.QuizQuestion, error) {
	return f.quiz, f.quizErr
}

func (f *fakeProvider) GenerateImage(_ context.Context, _ string) ([]byte, error) {
	return []byte("png"), nil
}

func (f *fakeProvider) Synthesize(_ context.Context, _ string) ([]byte, error) {
	return []byte("mp3"), nil
}

func newRegistry(p *fakeProvider) *genai.Registry {
	reg := genai.NewRegistry("fake")
	reg.Register("fake", p)
	return reg
}

// fakeCourses stores one course tree.
type fakeCourses struct {
	mu     sync.Mutex
	course *content.Course
	nextID int
}

func (f *fakeCourses) CreateTree(_ context.Context, _ string, c *content.Course) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c.ID = "course-1"
	for mi := range c.Modules {
		f.nextID++
		c.Modules[mi].ID = fmt.Sprintf("mod-%d", f.nextID)
		for li := range c.Modules[mi].Lessons {
			f.nextID++
			c.Modules[mi].Lessons[li].ID = fmt.Sprintf("les-%d", f.nextID)
			c.Modules[mi].Lessons[li].ModuleID = c.Modules[mi].ID
		}
	}
	f.course = c
	return c.ID, nil
}

func (f *fakeCourses) Get(_ context.Context, _ string) (*content.Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.course == nil {
		return nil, errors.New("course not found")
	}
	return f.course, nil
}

func (f *fakeCourses) LessonIDs(_ context.Context, _ string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	if f.course == nil {
		return nil, nil
	}
	for _, m := range f.course.Modules {
		for _, l := range m.Lessons {
			ids = append(ids, l.ID)
		}
	}
	return ids, nil
}

// fakeLessonRepo is a map-backed LessonRepository.
type fakeLessonRepo struct {
	mu      sync.Mutex
	lessons map[string]*content.Lesson
	quizzes map[string][]content.QuizQuestion
}

func newFakeLessonRepo(lessons ...*content.Lesson) *fakeLessonRepo {
	f := &fakeLessonRepo{
		lessons: make(map[string]*content.Lesson),
		quizzes: make(map[string][]content.QuizQuestion),
	}
	for _, l := range lessons {
		f.lessons[l.ID] = l
	}
	return f
}

func (f *fakeLessonRepo) Get(_ context.Context, lessonID string) (*content.Lesson, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.lessons[lessonID]
	if !ok {
		return nil, coursegen.ErrLessonNotFound
	}
	cp := *l
	return &cp, nil
}

func (f *fakeLessonRepo) Update(_ context.Context, l *content.Lesson) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *l
	f.lessons[l.ID] = &cp
	return nil
}

func (f *fakeLessonRepo) SetQuiz(_ context.Context, lessonID string, questions []content.QuizQuestion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.quizzes[lessonID] = questions
	return nil
}

// fakeSectionRepo is a map-backed SectionRepository.
type fakeSectionRepo struct {
	mu       sync.Mutex
	byLesson map[string][]*content.ScriptSection
	byID     map[string]*content.ScriptSection
	nextID   int
}

func newFakeSectionRepo() *fakeSectionRepo {
	return &fakeSectionRepo{
		byLesson: make(map[string][]*content.ScriptSection),
		byID:     make(map[string]*content.ScriptSection),
	}
}

func (f *fakeSectionRepo) seed(s *content.ScriptSection) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byLesson[s.LessonID] = append(f.byLesson[s.LessonID], s)
	f.byID[s.ID] = s
}

func (f *fakeSectionRepo) ListByLesson(_ context.Context, lessonID string) ([]*content.ScriptSection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.byLesson[lessonID], nil
}

func (f *fakeSectionRepo) Get(_ context.Context, sectionID string) (*content.ScriptSection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.byID[sectionID]
	if !ok {
		return nil, errors.New("section not found")
	}
	return s, nil
}

func (f *fakeSectionRepo) CreateBatch(_ context.Context, lessonID string, sections []*content.ScriptSection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range sections {
		f.nextID++
		s.ID = fmt.Sprintf("sec-%d", f.nextID)
		s.LessonID = lessonID
		f.byLesson[lessonID] = append(f.byLesson[lessonID], s)
		f.byID[s.ID] = s
	}
	return nil
}

func (f *fakeSectionRepo) Update(_ context.Context, s *content.ScriptSection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.byID[s.ID] = s
	return nil
}

// fakeSamples counts freemium sample consumption.
type fakeSamples struct {
	mu       sync.Mutex
	consumed int
}

func (f *fakeSamples) MarkConsumed(_ context.Context, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.consumed++
	return nil
}

// fakeRenderer writes marker bytes instead of invoking ffmpeg.
type fakeRenderer struct {
	clipErr error
}

func (f fakeRenderer) RenderClip(_ context.Context, _, _, outPath string, _ time.Duration) error {
	if f.clipErr != nil {
		return f.clipErr
	}
	return os.WriteFile(outPath, []byte("clip"), 0o600)
}

func (f fakeRenderer) Concat(_ context.Context, clips []string, outPath string) error {
	var joined []byte
	for _, c := range clips {
		data, err := os.ReadFile(c)
		if err != nil {
			return err
		}
		joined = append(joined, data...)
	}
	return os.WriteFile(outPath, joined, 0o600)
}

func (f fakeRenderer) Duration(_ context.Context, _ string) (time.Duration, error) {
	return 8 * time.Second, nil
}

func newTestPipeline(t *testing.T, provider *fakeProvider, renderer media.Renderer, sections content.SectionRepository, lessons content.LessonRepository) *media.Pipeline {
	t.Helper()
	return media.NewPipeline(provider, provider, renderer, storage.NewMemory(), sections, lessons, nil,
		media.WithScratchRoot(t.TempDir()),
	)
}

// collectEvents drains every event currently buffered on a subscription.
func collectEvents(sub *stream.Subscription) []*stream.Event {
	var events []*stream.Event
	for {
		select {
		case evt, ok := <-sub.C():
			if !ok {
				return events
			}
			events = append(events, evt)
		case <-time.After(100 * time.Millisecond):
			return events
		}
	}
}

func eventIndex(events []*stream.Event, typ stream.EventType) int {
	for i, evt := range events {
		if evt.Type == typ {
			return i
		}
	}
	return -1
}
