// Package content defines the course domain types the orchestrators work
// with, and the contracts of the external collaborators that persist
// them. Relational internals live behind these interfaces.
package content

import "context"

// LessonType classifies a lesson's primary asset.
type LessonType string

const (
	LessonVideo   LessonType = "video"
	LessonAudio   LessonType = "audio"
	LessonArticle LessonType = "article"
	LessonQuiz    LessonType = "quiz"
)

// AssetStatus tracks the generation state of a lesson- or section-level
// media asset.
type AssetStatus string

const (
	AssetMissing    AssetStatus = "missing"
	AssetGenerating AssetStatus = "generating"
	AssetReady      AssetStatus = "ready"
	AssetFailed     AssetStatus = "failed"
)

// Course is the generated course tree.
type Course struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Language    string   `json:"language,omitempty"`
	Modules     []Module `json:"modules"`
}

// Module is one ordered unit of a course.
type Module struct {
	ID       string   `json:"id"`
	Title    string   `json:"title"`
	Position int      `json:"position"`
	Lessons  []Lesson `json:"lessons"`
}

// Lesson is one teachable unit within a module.
type Lesson struct {
	ID          string     `json:"id"`
	ModuleID    string     `json:"module_id"`
	Title       string     `json:"title"`
	Type        LessonType `json:"type"`
	Position    int        `json:"position"`
	Description string     `json:"description,omitempty"`
	Content     string     `json:"content,omitempty"`

	// Aggregate video state, filled by the merge pipeline.
	VideoURL        string      `json:"video_url,omitempty"`
	VideoStatus     AssetStatus `json:"video_status,omitempty"`
	DurationMinutes float64     `json:"duration_minutes,omitempty"`
}

// Scene is one narration + visual unit inside a section's storyboard.
type Scene struct {
	Narration     string `json:"narration"`
	VisualConcept string `json:"visual_concept"`
}

// Storyboard is the ordered scene list a section is rendered from.
type Storyboard struct {
	StylePrompt string  `json:"style_prompt,omitempty"`
	Scenes      []Scene `json:"scenes"`
}

// ScriptSection is one script segment of a lesson, independently rendered
// to video then merged with its siblings.
type ScriptSection struct {
	ID       string `json:"id"`
	LessonID string `json:"lesson_id"`
	Position int    `json:"position"`
	Title    string `json:"title,omitempty"`
	Text     string `json:"text"`

	Storyboard *Storyboard `json:"storyboard,omitempty"`

	VideoPath       string      `json:"video_path,omitempty"`
	VideoURL        string      `json:"video_url,omitempty"`
	VideoDurationMs int64       `json:"video_duration_ms,omitempty"`
	VideoStatus     AssetStatus `json:"video_status,omitempty"`

	AudioURL    string      `json:"audio_url,omitempty"`
	AudioStatus AssetStatus `json:"audio_status,omitempty"`
}

// QuizQuestion is one generated quiz item merged into a quiz lesson.
type QuizQuestion struct {
	Prompt      string   `json:"prompt"`
	Choices     []string `json:"choices"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// FirstLesson returns the course's first module and its first lesson in
// position order, or false when the tree has neither.
func (c *Course) FirstLesson() (*Module, *Lesson, bool) {
	if len(c.Modules) == 0 {
		return nil, nil, false
	}
	m := &c.Modules[0]
	if len(m.Lessons) == 0 {
		return m, nil, false
	}
	return m, &m.Lessons[0], true
}

// CourseRepository persists generated course trees.
type CourseRepository interface {
	// CreateTree persists the whole generated tree for the user and
	// returns the course id, filling the tree's generated ids in place.
	CreateTree(ctx context.Context, userID string, c *Course) (string, error)

	// Get loads a course with its modules and lessons.
	Get(ctx context.Context, courseID string) (*Course, error)

	// LessonIDs returns every lesson id of the course in course order.
	LessonIDs(ctx context.Context, courseID string) ([]string, error)
}

// LessonRepository loads and mutates single lessons.
type LessonRepository interface {
	// Get loads a lesson. Returns coursegen.ErrLessonNotFound if absent.
	Get(ctx context.Context, lessonID string) (*Lesson, error)

	// Update persists lesson mutations.
	Update(ctx context.Context, l *Lesson) error

	// SetQuiz replaces the lesson's quiz questions.
	SetQuiz(ctx context.Context, lessonID string, questions []QuizQuestion) error
}

// SectionRepository loads and mutates lesson script sections.
type SectionRepository interface {
	// ListByLesson returns the lesson's sections in position order.
	ListByLesson(ctx context.Context, lessonID string) ([]*ScriptSection, error)

	// Get loads a single section.
	Get(ctx context.Context, sectionID string) (*ScriptSection, error)

	// CreateBatch persists freshly generated sections for a lesson,
	// filling their generated ids in place.
	CreateBatch(ctx context.Context, lessonID string, sections []*ScriptSection) error

	// Update persists section mutations.
	Update(ctx context.Context, s *ScriptSection) error
}

// SampleTracker marks a user's freemium sample generation as consumed.
type SampleTracker interface {
	MarkConsumed(ctx context.Context, userID string) error
}
