// Package job defines the generation job model: the job record with its
// status/phase/progress state machine, the detached payload a worker
// hydrates on resume, and the store contracts the backends implement.
package job

import (
	"time"

	"github.com/lumenly/coursegen/id"
)

// Status is the coarse lifecycle state of a generation job.
type Status string

const (
	// StatusPending means the job is waiting to be picked up (or retried).
	StatusPending Status = "pending"
	// StatusProcessing means a worker is currently executing the job.
	StatusProcessing Status = "processing"
	// StatusCompleted means the job finished successfully.
	StatusCompleted Status = "completed"
	// StatusFailed means the job failed and will not be retried.
	StatusFailed Status = "failed"
)

// Type classifies a generation job. Each type maps 1:1 to a queue name.
type Type string

const (
	TypeCourseGeneration   Type = "course_generation"
	TypeAssetsGeneration   Type = "assets_generation"
	TypeLessonAudio        Type = "lesson_audio_generation"
	TypeLessonSectionVideo Type = "lesson_section_video_generation"
	TypeLessonMergeVideo   Type = "lesson_merge_video_generation"
)

// Types lists all job types, in queue-registration order.
func Types() []Type {
	return []Type{
		TypeCourseGeneration,
		TypeAssetsGeneration,
		TypeLessonAudio,
		TypeLessonSectionVideo,
		TypeLessonMergeVideo,
	}
}

// Valid reports whether t is a known job type.
func (t Type) Valid() bool {
	switch t {
	case TypeCourseGeneration, TypeAssetsGeneration, TypeLessonAudio,
		TypeLessonSectionVideo, TypeLessonMergeVideo:
		return true
	}
	return false
}

// QueueName returns the queue this job type is processed on, under the
// given prefix (e.g. "coursegen:course_generation").
func (t Type) QueueName(prefix string) string {
	if prefix == "" {
		return string(t)
	}
	return prefix + ":" + string(t)
}

// Phase is an ordered sub-stage within a job type's fixed pipeline.
type Phase string

const (
	// Course generation phases.
	PhaseStructure      Phase = "structure"
	PhaseDemoScript     Phase = "demo_script"
	PhaseDemoStoryboard Phase = "demo_storyboard"

	// Assets generation phases.
	PhaseAssetsPrepare    Phase = "assets_prepare"
	PhaseAssetsProcessing Phase = "assets_processing"
	PhaseAssetsFinalize   Phase = "assets_finalize"

	// Single-lesson job phases.
	PhaseAudioProcessing Phase = "audio_processing"
	PhaseVideoProcessing Phase = "video_processing"
	PhaseVideoMerge      Phase = "video_merge"

	// PhaseDone is the shared terminal phase.
	PhaseDone Phase = "done"
)

// phaseOrder fixes the forward-only phase sequence per job type.
var phaseOrder = map[Type][]Phase{
	TypeCourseGeneration:   {PhaseStructure, PhaseDemoScript, PhaseDemoStoryboard, PhaseDone},
	TypeAssetsGeneration:   {PhaseAssetsPrepare, PhaseAssetsProcessing, PhaseAssetsFinalize, PhaseDone},
	TypeLessonAudio:        {PhaseAudioProcessing, PhaseDone},
	TypeLessonSectionVideo: {PhaseVideoProcessing, PhaseDone},
	TypeLessonMergeVideo:   {PhaseVideoMerge, PhaseDone},
}

// FirstPhase returns the initial phase for a job type.
func FirstPhase(t Type) Phase {
	order := phaseOrder[t]
	if len(order) == 0 {
		return ""
	}
	return order[0]
}

// PhaseIndex returns the position of p within t's pipeline, or -1 if p
// is not a phase of t.
func PhaseIndex(t Type, p Phase) int {
	for i, candidate := range phaseOrder[t] {
		if candidate == p {
			return i
		}
	}
	return -1
}

// CanTransition reports whether a job of type t may move from phase
// `from` to phase `to`. Transitions are forward-only, and nothing moves
// out of the terminal done phase.
func CanTransition(t Type, from, to Phase) bool {
	if from == PhaseDone {
		return false
	}
	fi, ti := PhaseIndex(t, from), PhaseIndex(t, to)
	if fi < 0 || ti < 0 {
		return false
	}
	return ti >= fi
}

// Metadata is the open key/value map recording phase-specific facts on a
// job record (ids, counts, per-item results).
type Metadata map[string]any

// Job is the durable record of one unit of asynchronous generation work.
// It is the single source of truth for how the job is doing; heavy input
// lives in the detached Payload.
type Job struct {
	ID     id.JobID `json:"id"`
	UserID string   `json:"user_id"`
	Type   Type     `json:"type"`

	Status   Status   `json:"status"`
	Phase    Phase    `json:"phase"`
	Progress int      `json:"progress"`
	CourseID string   `json:"course_id,omitempty"`
	Metadata Metadata `json:"metadata,omitempty"`
	Error    string   `json:"error,omitempty"`

	// Queue bookkeeping, stamped by the queue runtime.
	QueueName   string `json:"queue_name,omitempty"`
	QueueJobID  string `json:"queue_job_id,omitempty"`
	Attempts    int    `json:"attempts"`
	MaxAttempts int    `json:"max_attempts"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	HeartbeatAt *time.Time `json:"heartbeat_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// New creates a pending job of the given type at progress 0 in the
// type's first phase.
func New(userID string, t Type) *Job {
	now := time.Now().UTC()
	return &Job{
		ID:        id.NewJobID(),
		UserID:    userID,
		Type:      t,
		Status:    StatusPending,
		Phase:     FirstPhase(t),
		Progress:  0,
		Metadata:  Metadata{},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// Terminal reports whether the job has reached a final status.
func (j *Job) Terminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusFailed
}
