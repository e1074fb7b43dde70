package job

import (
	"context"
	"time"

	"github.com/lumenly/coursegen/id"
)

// Update is a partial mutation of a job record. Nil pointer fields are
// left unchanged; a non-nil Metadata replaces the stored map wholesale.
// Every applied update also stamps UpdatedAt.
type Update struct {
	Status      *Status
	Phase       *Phase
	Progress    *int
	CourseID    *string
	Metadata    Metadata
	Error       *string
	QueueName   *string
	QueueJobID  *string
	Attempts    *int
	MaxAttempts *int
	StartedAt   *time.Time
	HeartbeatAt *time.Time
	CompletedAt *time.Time
}

// RecordStore is the durable home of job records. Implementations must
// accept an identity context (see WithOwner) on every call and scope
// reads and writes to it; authorization itself is enforced upstream.
type RecordStore interface {
	// Create persists a new job record.
	Create(ctx context.Context, j *Job) error

	// Get retrieves a job by ID. Returns coursegen.ErrJobNotFound if absent.
	Get(ctx context.Context, jobID id.JobID) (*Job, error)

	// ActiveForCourse returns the most-recently-updated pending or
	// processing job linked to the course, or nil if none.
	ActiveForCourse(ctx context.Context, courseID string) (*Job, error)

	// Update applies a partial mutation and returns the updated record.
	Update(ctx context.Context, jobID id.JobID, upd Update) (*Job, error)

	// ListStale returns processing jobs whose heartbeat is older than
	// threshold. Discovery only; nothing is reaped automatically.
	ListStale(ctx context.Context, threshold time.Duration) ([]*Job, error)
}

// PayloadStore is the durable side-table of job payloads, keyed one-to-one
// with jobs.
type PayloadStore interface {
	// Save upserts the payload. A retried start must not create duplicates.
	Save(ctx context.Context, p *Payload) error

	// Get retrieves the payload for a job.
	// Returns coursegen.ErrPayloadNotFound if absent.
	Get(ctx context.Context, jobID id.JobID) (*Payload, error)

	// Delete removes the payload. Deleting an absent payload is a no-op.
	Delete(ctx context.Context, jobID id.JobID) error
}

// Reference is the lightweight queue message: never the payload, just
// enough to rehydrate it.
type Reference struct {
	JobID  id.JobID `json:"job_id"`
	UserID string   `json:"user_id"`
}

// QueuedJob is one durable queue entry.
type QueuedJob struct {
	// ID is the queue's own opaque identifier for this entry.
	ID    string    `json:"id"`
	Queue string    `json:"queue"`
	Ref   Reference `json:"ref"`

	// Attempts counts deliveries made so far, including the current one.
	Attempts    int       `json:"attempts"`
	MaxAttempts int       `json:"max_attempts"`
	RunAt       time.Time `json:"run_at"`
}

// QueueStore is the durable, retryable queue carrying job references
// between the API process and the workers.
type QueueStore interface {
	// Push enqueues the entry and returns the queue-job id. The job ID
	// is the dedup key: pushing a reference that is already queued is a
	// no-op that returns the existing entry's id.
	Push(ctx context.Context, qj *QueuedJob) (string, error)

	// Pull claims up to limit due entries from the given queues,
	// incrementing their attempt counters.
	Pull(ctx context.Context, queues []string, limit int) ([]*QueuedJob, error)

	// Retry reschedules a claimed entry to run again at runAt.
	Retry(ctx context.Context, queueJobID string, runAt time.Time) error

	// Ack removes a claimed entry permanently.
	Ack(ctx context.Context, queueJobID string) error
}

type ownerKey struct{}

// WithOwner attaches the acting user's identity to the context. Stores
// propagate it with every read and write.
func WithOwner(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, ownerKey{}, userID)
}

// OwnerFrom returns the identity attached by WithOwner, or "".
func OwnerFrom(ctx context.Context) string {
	v, _ := ctx.Value(ownerKey{}).(string)
	return v
}
