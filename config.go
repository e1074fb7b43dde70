package coursegen

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/lumenly/coursegen/queue"
	"github.com/lumenly/coursegen/stream"
)

// Config holds engine-wide configuration. All values have working
// defaults; FromEnv overrides them from COURSEGEN_* environment
// variables.
type Config struct {
	// QueuePrefix is prepended to every queue name, so several
	// deployments can share one queue backend.
	QueuePrefix string

	// MaxAttempts is the default number of delivery attempts a job
	// gets before it is terminally failed.
	MaxAttempts int

	// BackoffBase is the base delay for exponential retry backoff.
	BackoffBase time.Duration

	// Concurrency is the number of jobs one worker process executes
	// in parallel.
	Concurrency int

	// PollInterval is how often idle workers poll the queue.
	PollInterval time.Duration

	// HeartbeatInterval is how often running jobs refresh their
	// heartbeat on the job record.
	HeartbeatInterval time.Duration

	// StreamHeartbeat is the interval between generation.heartbeat
	// events on a live job stream, keeping the transport alive
	// through proxies.
	StreamHeartbeat time.Duration

	// JobTimeout bounds a single job execution. Zero disables the bound.
	JobTimeout time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful
	// worker shutdown.
	ShutdownTimeout time.Duration

	// ScratchDir is the root for per-invocation media scratch
	// directories. Empty means os.TempDir.
	ScratchDir string

	// SceneConcurrency bounds the per-section fan-out of scene
	// image/audio generation.
	SceneConcurrency int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		QueuePrefix:       "coursegen",
		MaxAttempts:       3,
		BackoffBase:       5 * time.Second,
		Concurrency:       4,
		PollInterval:      time.Second,
		HeartbeatInterval: 10 * time.Second,
		StreamHeartbeat:   15 * time.Second,
		JobTimeout:        30 * time.Minute,
		ShutdownTimeout:   30 * time.Second,
		SceneConcurrency:  4,
	}
}

// ProducerOptions translates the Config into queue producer options.
func (c Config) ProducerOptions() []queue.ProducerOption {
	return []queue.ProducerOption{
		queue.WithQueuePrefix(c.QueuePrefix),
		queue.WithMaxAttempts(c.MaxAttempts),
	}
}

// BusOptions translates the Config into stream bus options.
func (c Config) BusOptions() []stream.BusOption {
	return []stream.BusOption{
		stream.WithHeartbeatInterval(c.StreamHeartbeat),
	}
}

// FromEnv loads configuration from the environment on top of the
// defaults. A .env file, if present, is loaded first (development
// convenience; missing files are ignored).
func FromEnv() Config {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if v := os.Getenv("COURSEGEN_QUEUE_PREFIX"); v != "" {
		cfg.QueuePrefix = v
	}
	cfg.MaxAttempts = envInt("COURSEGEN_MAX_ATTEMPTS", cfg.MaxAttempts)
	cfg.BackoffBase = envDuration("COURSEGEN_BACKOFF_BASE", cfg.BackoffBase)
	cfg.Concurrency = envInt("COURSEGEN_CONCURRENCY", cfg.Concurrency)
	cfg.PollInterval = envDuration("COURSEGEN_POLL_INTERVAL", cfg.PollInterval)
	cfg.HeartbeatInterval = envDuration("COURSEGEN_HEARTBEAT_INTERVAL", cfg.HeartbeatInterval)
	cfg.StreamHeartbeat = envDuration("COURSEGEN_STREAM_HEARTBEAT", cfg.StreamHeartbeat)
	cfg.JobTimeout = envDuration("COURSEGEN_JOB_TIMEOUT", cfg.JobTimeout)
	cfg.ShutdownTimeout = envDuration("COURSEGEN_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if v := os.Getenv("COURSEGEN_SCRATCH_DIR"); v != "" {
		cfg.ScratchDir = v
	}
	cfg.SceneConcurrency = envInt("COURSEGEN_SCENE_CONCURRENCY", cfg.SceneConcurrency)
	return cfg
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
