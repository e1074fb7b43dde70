package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/id"
	"github.com/lumenly/coursegen/job"
)

const jobColumns = `
	id, user_id, type, status, phase, progress, course_id, metadata,
	error, queue_name, queue_job_id, attempts, max_attempts,
	started_at, heartbeat_at, completed_at, created_at, updated_at`

// Create persists a new job record.
func (s *Store) Create(ctx context.Context, j *job.Job) error {
	meta, err := metadataJSON(j.Metadata)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO coursegen_jobs (`+jobColumns+`
		) VALUES (
			$1, $2, $3, $4, $5, $6, NULLIF($7, ''), $8,
			NULLIF($9, ''), NULLIF($10, ''), NULLIF($11, ''), $12, $13,
			$14, $15, $16, $17, $18
		)`,
		j.ID.String(), j.UserID, string(j.Type), string(j.Status), string(j.Phase),
		j.Progress, j.CourseID, meta,
		j.Error, j.QueueName, j.QueueJobID, j.Attempts, j.MaxAttempts,
		j.StartedAt, j.HeartbeatAt, j.CompletedAt, j.CreatedAt, j.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKey(err) {
			return coursegen.ErrJobAlreadyExists
		}
		return fmt.Errorf("coursegen/postgres: create job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM coursegen_jobs
		WHERE id = $1`,
		jobID.String(),
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, coursegen.ErrJobNotFound
		}
		return nil, fmt.Errorf("coursegen/postgres: get job: %w", err)
	}
	return j, nil
}

// ActiveForCourse returns the most-recently-updated pending or
// processing job linked to the course, or nil if none.
func (s *Store) ActiveForCourse(ctx context.Context, courseID string) (*job.Job, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+`
		FROM coursegen_jobs
		WHERE course_id = $1
		  AND status IN ('pending', 'processing')
		ORDER BY updated_at DESC
		LIMIT 1`,
		courseID,
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("coursegen/postgres: active job for course: %w", err)
	}
	return j, nil
}

// Update applies a partial mutation and returns the updated record. Only
// the set fields of upd reach the SET clause.
func (s *Store) Update(ctx context.Context, jobID id.JobID, upd job.Update) (*job.Job, error) {
	set := []string{"updated_at = NOW()"}
	args := []any{jobID.String()}

	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, column+" = $"+strconv.Itoa(len(args)))
	}
	if upd.Status != nil {
		add("status", string(*upd.Status))
	}
	if upd.Phase != nil {
		add("phase", string(*upd.Phase))
	}
	if upd.Progress != nil {
		add("progress", *upd.Progress)
	}
	if upd.CourseID != nil {
		add("course_id", *upd.CourseID)
	}
	if upd.Metadata != nil {
		meta, err := metadataJSON(upd.Metadata)
		if err != nil {
			return nil, err
		}
		add("metadata", meta)
	}
	if upd.Error != nil {
		add("error", *upd.Error)
	}
	if upd.QueueName != nil {
		add("queue_name", *upd.QueueName)
	}
	if upd.QueueJobID != nil {
		add("queue_job_id", *upd.QueueJobID)
	}
	if upd.Attempts != nil {
		add("attempts", *upd.Attempts)
	}
	if upd.MaxAttempts != nil {
		add("max_attempts", *upd.MaxAttempts)
	}
	if upd.StartedAt != nil {
		add("started_at", *upd.StartedAt)
	}
	if upd.HeartbeatAt != nil {
		add("heartbeat_at", *upd.HeartbeatAt)
	}
	if upd.CompletedAt != nil {
		add("completed_at", *upd.CompletedAt)
	}

	row := s.pool.QueryRow(ctx, `
		UPDATE coursegen_jobs
		SET `+strings.Join(set, ", ")+`
		WHERE id = $1
		RETURNING `+jobColumns,
		args...,
	)
	j, err := scanJob(row)
	if err != nil {
		if isNoRows(err) {
			return nil, coursegen.ErrJobNotFound
		}
		return nil, fmt.Errorf("coursegen/postgres: update job: %w", err)
	}
	return j, nil
}

// ListStale returns processing jobs whose heartbeat is older than
// threshold.
func (s *Store) ListStale(ctx context.Context, threshold time.Duration) ([]*job.Job, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+`
		FROM coursegen_jobs
		WHERE status = 'processing'
		  AND (heartbeat_at IS NULL OR heartbeat_at < NOW() - $1::interval)
		ORDER BY created_at ASC`,
		threshold,
	)
	if err != nil {
		return nil, fmt.Errorf("coursegen/postgres: list stale jobs: %w", err)
	}
	defer rows.Close()

	var stale []*job.Job
	for rows.Next() {
		j, scanErr := scanJob(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("coursegen/postgres: scan stale job: %w", scanErr)
		}
		stale = append(stale, j)
	}
	return stale, rows.Err()
}

func scanJob(row pgx.Row) (*job.Job, error) {
	var (
		j        job.Job
		typ      string
		status   string
		phase    string
		courseID *string
		meta     []byte
		errMsg   *string
		qName    *string
		qJobID   *string
	)
	err := row.Scan(
		&j.ID, &j.UserID, &typ, &status, &phase, &j.Progress, &courseID, &meta,
		&errMsg, &qName, &qJobID, &j.Attempts, &j.MaxAttempts,
		&j.StartedAt, &j.HeartbeatAt, &j.CompletedAt, &j.CreatedAt, &j.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	j.Type = job.Type(typ)
	j.Status = job.Status(status)
	j.Phase = job.Phase(phase)
	if courseID != nil {
		j.CourseID = *courseID
	}
	if errMsg != nil {
		j.Error = *errMsg
	}
	if qName != nil {
		j.QueueName = *qName
	}
	if qJobID != nil {
		j.QueueJobID = *qJobID
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &j.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
	}
	return &j, nil
}

func metadataJSON(m job.Metadata) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("coursegen/postgres: marshal metadata: %w", err)
	}
	return raw, nil
}
