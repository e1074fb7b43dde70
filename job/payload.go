package job

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/lumenly/coursegen/id"
)

// Payload is the durable input blob a worker needs to resume a job after
// the process hand-off. It is written once when the job is enqueued, read
// once by the worker that processes it, and deleted when the job reaches
// a terminal state that will not be retried.
type Payload struct {
	JobID     id.JobID        `json:"job_id"`
	UserID    string          `json:"user_id"`
	Kind      Type            `json:"kind"`
	Data      json.RawMessage `json:"data"`
	CreatedAt time.Time       `json:"created_at"`
}

// ProviderSelection names the generative providers a job should use.
// Empty fields fall back to the engine's defaults.
type ProviderSelection struct {
	Text   string `json:"text,omitempty"`
	Image  string `json:"image,omitempty"`
	Speech string `json:"speech,omitempty"`
}

// CourseInput is the payload body for course_generation jobs: the raw
// uploaded source material plus the course form fields.
type CourseInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Audience    string `json:"audience,omitempty"`
	Tone        string `json:"tone,omitempty"`
	Language    string `json:"language,omitempty"`

	SourceName  string `json:"source_name,omitempty"`
	SourceBytes []byte `json:"source_bytes,omitempty"`

	// FreemiumSample marks that this generation consumes the user's
	// free sample allowance.
	FreemiumSample bool `json:"freemium_sample,omitempty"`

	Providers ProviderSelection `json:"providers,omitempty"`
}

// Strategy selects which lessons a batch assets job targets.
type Strategy string

const (
	// StrategyAll targets every lesson of the course.
	StrategyAll Strategy = "all"
	// StrategySelected targets an explicit lesson id list.
	StrategySelected Strategy = "selected"
	// StrategyNone targets nothing; assets are generated on demand later.
	StrategyNone Strategy = "none"
)

// AssetsInput is the payload body for assets_generation jobs. LessonIDs
// is the concrete target list, already resolved from the strategy.
type AssetsInput struct {
	CourseID  string            `json:"course_id"`
	Strategy  Strategy          `json:"strategy"`
	LessonIDs []string          `json:"lesson_ids"`
	Providers ProviderSelection `json:"providers,omitempty"`
}

// LessonAudioInput is the payload body for lesson_audio_generation jobs.
type LessonAudioInput struct {
	CourseID  string            `json:"course_id"`
	LessonID  string            `json:"lesson_id"`
	Providers ProviderSelection `json:"providers,omitempty"`
}

// SectionVideoInput is the payload body for lesson_section_video_generation
// jobs.
type SectionVideoInput struct {
	CourseID    string            `json:"course_id"`
	LessonID    string            `json:"lesson_id"`
	SectionID   string            `json:"section_id"`
	StylePrompt string            `json:"style_prompt,omitempty"`
	Providers   ProviderSelection `json:"providers,omitempty"`
}

// MergeVideoInput is the payload body for lesson_merge_video_generation
// jobs.
type MergeVideoInput struct {
	CourseID string `json:"course_id"`
	LessonID string `json:"lesson_id"`
}

// NewPayload wraps a typed payload body into the stored envelope.
func NewPayload[T any](jobID id.JobID, userID string, kind Type, body T) (*Payload, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("job: marshal %s payload: %w", kind, err)
	}
	return &Payload{
		JobID:     jobID,
		UserID:    userID,
		Kind:      kind,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	}, nil
}

// Decode unmarshals the envelope body into the typed payload T.
func Decode[T any](p *Payload) (T, error) {
	var body T
	if len(p.Data) == 0 {
		return body, fmt.Errorf("job: empty %s payload for %s", p.Kind, p.JobID)
	}
	if err := json.Unmarshal(p.Data, &body); err != nil {
		return body, fmt.Errorf("job: decode %s payload for %s: %w", p.Kind, p.JobID, err)
	}
	return body, nil
}
