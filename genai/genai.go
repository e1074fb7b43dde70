// Package genai defines the capability contracts of the generative
// providers the orchestrators call, and a registry resolving provider
// names to adapters at construction time. Concrete provider adapters
// live outside this module; the orchestrators only depend on these
// interfaces.
package genai

import (
	"context"

	"github.com/lumenly/coursegen/content"
)

// CourseRequest is the input to course tree generation: the uploaded
// source material plus the course form fields.
type CourseRequest struct {
	Title       string
	Description string
	Audience    string
	Tone        string
	Language    string

	SourceName  string
	SourceBytes []byte
}

// CourseGenerator produces a full course tree from source material.
type CourseGenerator interface {
	GenerateCourse(ctx context.Context, req CourseRequest) (*content.Course, error)
}

// ScriptGenerator produces the script sections for a lesson.
type ScriptGenerator interface {
	GenerateScript(ctx context.Context, lesson *content.Lesson) ([]*content.ScriptSection, error)
}

// StoryboardGenerator turns a section's script text into an ordered
// scene list.
type StoryboardGenerator interface {
	GenerateStoryboard(ctx context.Context, sectionText string) (*content.Storyboard, error)
}

// ArticleGenerator produces article body text for a lesson.
type ArticleGenerator interface {
	GenerateArticle(ctx context.Context, title, description string) (string, error)
}

// QuizGenerator produces quiz questions for a lesson.
type QuizGenerator interface {
	GenerateQuiz(ctx context.Context, lesson *content.Lesson) ([]content.QuizQuestion, error)
}

// ImageGenerator renders a still image for a scene's visual concept.
type ImageGenerator interface {
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// SpeechGenerator synthesizes narration audio for a scene or section.
type SpeechGenerator interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
