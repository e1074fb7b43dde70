package queue

import (
	"sync"

	"golang.org/x/time/rate"
)

// Config defines per-queue throttling. Generation providers rate limit
// upstream, so the worker pool throttles per queue rather than slamming
// one provider with every worker slot.
type Config struct {
	// Name is the queue identifier (the job type's queue name).
	Name string

	// MaxConcurrency limits how many jobs from this queue may run
	// simultaneously in the local pool. Zero means no queue-specific
	// limit (pool-wide concurrency still applies).
	MaxConcurrency int

	// RateLimit is the maximum sustained jobs per second dequeued from
	// this queue. Zero disables rate limiting.
	RateLimit float64

	// RateBurst is the burst size for the token-bucket rate limiter.
	// Defaults to 1 if RateLimit is set but RateBurst is zero.
	RateBurst int
}

type queueState struct {
	config  Config
	limiter *rate.Limiter
	active  int
}

func newQueueState(cfg Config) *queueState {
	qs := &queueState{config: cfg}
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		qs.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return qs
}

// Limiter controls per-queue rate limiting and concurrency for a worker
// pool. It is safe for concurrent use. Queues without a Config have no
// limits.
type Limiter struct {
	mu     sync.Mutex
	queues map[string]*queueState
}

// NewLimiter creates a Limiter with the given queue configurations.
func NewLimiter(configs ...Config) *Limiter {
	l := &Limiter{queues: make(map[string]*queueState, len(configs))}
	for _, cfg := range configs {
		l.queues[cfg.Name] = newQueueState(cfg)
	}
	return l
}

// Acquire checks rate and concurrency limits for the queue. If the job
// may proceed it increments the active counter and returns true. The
// caller MUST call Release when the job completes.
func (l *Limiter) Acquire(queue string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	qs := l.queues[queue]
	if qs == nil {
		return true
	}
	// Concurrency first: a rejected slot must not burn a rate token.
	if qs.config.MaxConcurrency > 0 && qs.active >= qs.config.MaxConcurrency {
		return false
	}
	if qs.limiter != nil && !qs.limiter.Allow() {
		return false
	}
	qs.active++
	return true
}

// Release decrements the active job count for the queue.
func (l *Limiter) Release(queue string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if qs := l.queues[queue]; qs != nil && qs.active > 0 {
		qs.active--
	}
}

// Active returns the current number of active jobs for a queue.
func (l *Limiter) Active(queue string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if qs := l.queues[queue]; qs != nil {
		return qs.active
	}
	return 0
}
