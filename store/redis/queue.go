package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/job"
)

// Push enqueues the entry, storing it as a JSON value and scheduling it
// on the queue's Sorted Set scored by run time. The referenced job ID
// doubles as the queue-job id, which makes dedup a single existence
// check.
func (s *Store) Push(ctx context.Context, qj *job.QueuedJob) (string, error) {
	queueJobID := qj.Ref.JobID.String()

	cp := *qj
	cp.ID = queueJobID
	if cp.RunAt.IsZero() {
		cp.RunAt = time.Now().UTC()
	}
	raw, err := json.Marshal(&cp)
	if err != nil {
		return "", fmt.Errorf("coursegen/redis: marshal queue entry: %w", err)
	}

	// SetNX is the dedup gate: a second push for the same job leaves
	// the stored entry untouched.
	created, err := s.client.SetNX(ctx, entryKey(queueJobID), raw, 0).Result()
	if err != nil {
		return "", fmt.Errorf("coursegen/redis: push queue entry: %w", err)
	}
	if !created {
		return queueJobID, nil
	}

	err = s.client.ZAdd(ctx, queueKey(cp.Queue), goredis.Z{
		Score:  float64(cp.RunAt.UnixMilli()),
		Member: queueJobID,
	}).Err()
	if err != nil {
		return "", fmt.Errorf("coursegen/redis: schedule queue entry: %w", err)
	}
	return queueJobID, nil
}

// Pull claims up to limit due entries from the given queues. A ZRem per
// candidate is the claim: whichever puller removes the member owns the
// entry, so concurrent workers never double-claim.
func (s *Store) Pull(ctx context.Context, queues []string, limit int) ([]*job.QueuedJob, error) {
	now := time.Now().UTC()
	var claimed []*job.QueuedJob

	for _, q := range queues {
		if limit > 0 && len(claimed) >= limit {
			break
		}
		remaining := limit - len(claimed)

		ids, err := s.client.ZRangeByScore(ctx, queueKey(q), &goredis.ZRangeBy{
			Min:   "-inf",
			Max:   fmt.Sprintf("%d", now.UnixMilli()),
			Count: int64(remaining),
		}).Result()
		if err != nil {
			return nil, fmt.Errorf("coursegen/redis: pull scan %s: %w", q, err)
		}

		for _, queueJobID := range ids {
			removed, err := s.client.ZRem(ctx, queueKey(q), queueJobID).Result()
			if err != nil {
				return nil, fmt.Errorf("coursegen/redis: pull claim: %w", err)
			}
			if removed == 0 {
				continue // another worker got there first
			}

			qj, err := s.getEntry(ctx, queueJobID)
			if err != nil {
				return nil, err
			}
			qj.Attempts++
			if err := s.putEntry(ctx, qj); err != nil {
				return nil, err
			}
			claimed = append(claimed, qj)
		}
	}
	return claimed, nil
}

// Retry reschedules a claimed entry to run again at runAt.
func (s *Store) Retry(ctx context.Context, queueJobID string, runAt time.Time) error {
	qj, err := s.getEntry(ctx, queueJobID)
	if err != nil {
		return err
	}
	qj.RunAt = runAt.UTC()
	if err := s.putEntry(ctx, qj); err != nil {
		return err
	}
	err = s.client.ZAdd(ctx, queueKey(qj.Queue), goredis.Z{
		Score:  float64(qj.RunAt.UnixMilli()),
		Member: queueJobID,
	}).Err()
	if err != nil {
		return fmt.Errorf("coursegen/redis: retry queue entry: %w", err)
	}
	return nil
}

// Ack removes a claimed entry permanently.
func (s *Store) Ack(ctx context.Context, queueJobID string) error {
	if err := s.client.Del(ctx, entryKey(queueJobID)).Err(); err != nil {
		return fmt.Errorf("coursegen/redis: ack queue entry: %w", err)
	}
	return nil
}

func (s *Store) getEntry(ctx context.Context, queueJobID string) (*job.QueuedJob, error) {
	raw, err := s.client.Get(ctx, entryKey(queueJobID)).Bytes()
	if errors.Is(err, goredis.Nil) {
		return nil, coursegen.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("coursegen/redis: get queue entry: %w", err)
	}
	var qj job.QueuedJob
	if err := json.Unmarshal(raw, &qj); err != nil {
		return nil, fmt.Errorf("coursegen/redis: unmarshal queue entry: %w", err)
	}
	return &qj, nil
}

func (s *Store) putEntry(ctx context.Context, qj *job.QueuedJob) error {
	raw, err := json.Marshal(qj)
	if err != nil {
		return fmt.Errorf("coursegen/redis: marshal queue entry: %w", err)
	}
	if err := s.client.Set(ctx, entryKey(qj.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("coursegen/redis: put queue entry: %w", err)
	}
	return nil
}
