package postgres

import (
	"context"
	"fmt"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/id"
	"github.com/lumenly/coursegen/job"
)

type payloadStore struct{ s *Store }

// Save upserts the payload.
func (p payloadStore) Save(ctx context.Context, pl *job.Payload) error {
	_, err := p.s.pool.Exec(ctx, `
		INSERT INTO coursegen_payloads (job_id, user_id, kind, data, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (job_id) DO UPDATE
		SET user_id = EXCLUDED.user_id,
		    kind = EXCLUDED.kind,
		    data = EXCLUDED.data`,
		pl.JobID.String(), pl.UserID, string(pl.Kind), []byte(pl.Data), pl.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("coursegen/postgres: save payload: %w", err)
	}
	return nil
}

// Get retrieves the payload for a job.
func (p payloadStore) Get(ctx context.Context, jobID id.JobID) (*job.Payload, error) {
	var pl job.Payload
	var kind string
	var data []byte
	err := p.s.pool.QueryRow(ctx, `
		SELECT job_id, user_id, kind, data, created_at
		FROM coursegen_payloads
		WHERE job_id = $1`,
		jobID.String(),
	).Scan(&pl.JobID, &pl.UserID, &kind, &data, &pl.CreatedAt)
	if err != nil {
		if isNoRows(err) {
			return nil, coursegen.ErrPayloadNotFound
		}
		return nil, fmt.Errorf("coursegen/postgres: get payload: %w", err)
	}
	pl.Kind = job.Type(kind)
	pl.Data = data
	return &pl, nil
}

// Delete removes the payload. Absent payloads are a no-op.
func (p payloadStore) Delete(ctx context.Context, jobID id.JobID) error {
	if _, err := p.s.pool.Exec(ctx, `
		DELETE FROM coursegen_payloads WHERE job_id = $1`,
		jobID.String(),
	); err != nil {
		return fmt.Errorf("coursegen/postgres: delete payload: %w", err)
	}
	return nil
}
