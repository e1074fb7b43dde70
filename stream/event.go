// Package stream provides the live-progress event bus: in-process topic
// fan-out plus an optional cross-process relay, so any API instance can
// serve a job's event stream regardless of which worker produced it.
package stream

import (
	"encoding/json"
	"time"

	"github.com/lumenly/coursegen/job"
)

// EventType identifies the kind of generation event. These names are
// wire-visible and stable.
type EventType string

const (
	EventSnapshot       EventType = "generation.snapshot"
	EventPhaseStarted   EventType = "generation.phase.started"
	EventPhaseProgress  EventType = "generation.phase.progress"
	EventPhaseCompleted EventType = "generation.phase.completed"

	EventLessonStarted   EventType = "generation.assets.lesson.started"
	EventLessonProgress  EventType = "generation.assets.lesson.progress"
	EventLessonCompleted EventType = "generation.assets.lesson.completed"
	EventLessonFailed    EventType = "generation.assets.lesson.failed"
	EventAssetsSummary   EventType = "generation.assets.summary"

	EventRedirectReady EventType = "generation.redirect-ready"
	EventDemoReady     EventType = "generation.demo-ready"
	EventCompleted     EventType = "generation.completed"
	EventFailed        EventType = "generation.failed"
	EventHeartbeat     EventType = "generation.heartbeat"
)

// Event is the envelope delivered to subscribers. Events are transport,
// not truth: the job record can reproduce a snapshot at any time.
type Event struct {
	Type      EventType       `json:"type"`
	JobID     string          `json:"job_id"`
	Timestamp time.Time       `json:"ts"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// SnapshotData is the payload of generation.snapshot: the job record as
// observed at subscribe time.
type SnapshotData struct {
	Status   job.Status   `json:"status"`
	Phase    job.Phase    `json:"phase"`
	Progress int          `json:"progress"`
	CourseID string       `json:"course_id,omitempty"`
	Metadata job.Metadata `json:"metadata,omitempty"`
	Error    string       `json:"error,omitempty"`
}

// PhaseData is the payload of the generation.phase.* events.
type PhaseData struct {
	Phase    job.Phase `json:"phase"`
	Progress int       `json:"progress"`
}

// LessonData is the payload of the generation.assets.lesson.* events.
type LessonData struct {
	LessonID   string `json:"lesson_id"`
	LessonType string `json:"lesson_type,omitempty"`
	Progress   int    `json:"progress,omitempty"`
	Error      string `json:"error,omitempty"`
}

// RedirectData is the payload of generation.redirect-ready: the caller's
// UI can navigate to the course before the pipeline finishes.
type RedirectData struct {
	CourseID string `json:"course_id"`
}

// FailureData is the payload of generation.failed.
type FailureData struct {
	Error string `json:"error"`
}

// New builds an event for a job, marshalling data to JSON. It panics if
// data cannot be marshalled, which is a programming error: every event
// payload is a plain struct.
func New(typ EventType, jobID string, data any) *Event {
	evt := &Event{
		Type:      typ,
		JobID:     jobID,
		Timestamp: time.Now().UTC(),
	}
	if data != nil {
		raw, err := json.Marshal(data)
		if err != nil {
			panic("stream: marshal event data: " + err.Error())
		}
		evt.Data = raw
	}
	return evt
}

// Snapshot synthesizes a generation.snapshot event from the current job
// record.
func Snapshot(j *job.Job) *Event {
	return New(EventSnapshot, j.ID.String(), SnapshotData{
		Status:   j.Status,
		Phase:    j.Phase,
		Progress: j.Progress,
		CourseID: j.CourseID,
		Metadata: j.Metadata,
		Error:    j.Error,
	})
}
