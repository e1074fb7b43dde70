package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/id"
	"github.com/lumenly/coursegen/job"
)

// Save upserts the payload as a JSON string keyed by job ID.
func (s *Store) Save(ctx context.Context, p *job.Payload) error {
	raw, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("coursegen/redis: marshal payload: %w", err)
	}
	if err := s.client.Set(ctx, payloadKey(p.JobID.String()), raw, 0).Err(); err != nil {
		return fmt.Errorf("coursegen/redis: save payload: %w", err)
	}
	return nil
}

// Get retrieves the payload for a job.
func (s *Store) Get(ctx context.Context, jobID id.JobID) (*job.Payload, error) {
	raw, err := s.client.Get(ctx, payloadKey(jobID.String())).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, coursegen.ErrPayloadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("coursegen/redis: get payload: %w", err)
	}
	var p job.Payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, fmt.Errorf("coursegen/redis: unmarshal payload: %w", err)
	}
	return &p, nil
}

// Delete removes the payload. Absent payloads are a no-op.
func (s *Store) Delete(ctx context.Context, jobID id.JobID) error {
	if err := s.client.Del(ctx, payloadKey(jobID.String())).Err(); err != nil {
		return fmt.Errorf("coursegen/redis: delete payload: %w", err)
	}
	return nil
}
