package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/lumenly/coursegen/stream"
)

// Publish broadcasts an event on the job's pub/sub channel.
func (s *Store) Publish(ctx context.Context, jobID string, evt *stream.Event) error {
	raw, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("coursegen/redis: marshal event: %w", err)
	}
	if err := s.client.Publish(ctx, eventChannel(jobID), raw).Err(); err != nil {
		return fmt.Errorf("coursegen/redis: publish event: %w", err)
	}
	return nil
}

// Subscribe opens the job's pub/sub channel and invokes deliver for
// every event received. The receive goroutine exits when the returned
// cancel function closes the subscription.
func (s *Store) Subscribe(ctx context.Context, jobID string, deliver func(*stream.Event)) (func() error, error) {
	// The pub/sub connection outlives the subscribe call; a dedicated
	// background context keeps it off the caller's deadline.
	sub := s.client.Subscribe(context.WithoutCancel(ctx), eventChannel(jobID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("coursegen/redis: subscribe %s: %w", jobID, err)
	}

	go func() {
		for msg := range sub.Channel() {
			var evt stream.Event
			if err := json.Unmarshal([]byte(msg.Payload), &evt); err != nil {
				s.logger.Warn("relay event dropped",
					slog.String("job_id", jobID),
					slog.String("error", err.Error()),
				)
				continue
			}
			deliver(&evt)
		}
	}()

	return sub.Close, nil
}
