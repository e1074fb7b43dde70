package worker

import (
	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/backoff"
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/middleware"
)

// FromConfig translates the engine configuration into processor
// options: pool size, poll and heartbeat cadence, retry backoff, the
// full set of generation queues under the configured prefix, and a job
// execution bound when one is configured. Options passed after these
// override them.
func FromConfig(cfg coursegen.Config) []Option {
	queues := make([]string, 0, len(job.Types()))
	for _, t := range job.Types() {
		queues = append(queues, t.QueueName(cfg.QueuePrefix))
	}

	opts := []Option{
		WithBackoff(backoff.Default(cfg.BackoffBase)),
		WithQueues(queues),
	}
	if cfg.Concurrency > 0 {
		opts = append(opts, WithConcurrency(cfg.Concurrency))
	}
	if cfg.PollInterval > 0 {
		opts = append(opts, WithPollInterval(cfg.PollInterval))
	}
	if cfg.HeartbeatInterval > 0 {
		opts = append(opts, WithHeartbeatInterval(cfg.HeartbeatInterval))
	}
	if cfg.JobTimeout > 0 {
		opts = append(opts, WithMiddleware(middleware.Timeout(cfg.JobTimeout)))
	}
	return opts
}
