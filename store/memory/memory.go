// Package memory is a fully in-memory store implementing every storage
// contract of the engine. Safe for concurrent access. Intended for unit
// testing and development; nothing survives a restart.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/lumenly/coursegen"
	"github.com/lumenly/coursegen/id"
	"github.com/lumenly/coursegen/job"
	"github.com/lumenly/coursegen/stream"
)

var (
	_ job.RecordStore  = recordStore{}
	_ job.PayloadStore = payloadStore{}
	_ job.QueueStore   = queueStore{}
	_ stream.Relay     = relay{}
)

// Store holds job records, payloads, the queue, and a process-local
// relay in plain maps behind one mutex. The facet accessors expose each
// storage contract over the shared data.
type Store struct {
	mu sync.RWMutex

	records  map[string]*job.Job
	payloads map[string]*job.Payload

	queue   map[string]*queueEntry // by queue-job id
	byJobID map[string]string      // job id -> queue-job id
	nextSeq int

	relaySubs map[string]map[int]func(*stream.Event) // job id -> sub seq -> deliver
	nextSub   int
}

type queueEntry struct {
	qj      job.QueuedJob
	claimed bool
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		records:   make(map[string]*job.Job),
		payloads:  make(map[string]*job.Payload),
		queue:     make(map[string]*queueEntry),
		byJobID:   make(map[string]string),
		relaySubs: make(map[string]map[int]func(*stream.Event)),
	}
}

// Ping always succeeds for the memory store.
func (m *Store) Ping(_ context.Context) error { return nil }

// Close is a no-op for the memory store.
func (m *Store) Close() error { return nil }

// Records exposes the job record contract.
func (m *Store) Records() job.RecordStore { return recordStore{m} }

// Payloads exposes the payload side-table contract.
func (m *Store) Payloads() job.PayloadStore { return payloadStore{m} }

// Queue exposes the durable queue contract.
func (m *Store) Queue() job.QueueStore { return queueStore{m} }

// Relay exposes a process-local event relay, emulating cross-process
// fan-out inside one process.
func (m *Store) Relay() stream.Relay { return relay{m} }

type recordStore struct{ s *Store }

// Create persists a new job record.
func (r recordStore) Create(_ context.Context, j *job.Job) error {
	m := r.s
	m.mu.Lock()
	defer m.mu.Unlock()

	key := j.ID.String()
	if _, exists := m.records[key]; exists {
		return coursegen.ErrJobAlreadyExists
	}
	cp := *j
	m.records[key] = &cp
	return nil
}

// Get retrieves a job by ID.
func (r recordStore) Get(_ context.Context, jobID id.JobID) (*job.Job, error) {
	m := r.s
	m.mu.RLock()
	defer m.mu.RUnlock()

	j, ok := m.records[jobID.String()]
	if !ok {
		return nil, coursegen.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

// ActiveForCourse returns the most-recently-updated pending or
// processing job linked to the course, or nil if none.
func (r recordStore) ActiveForCourse(_ context.Context, courseID string) (*job.Job, error) {
	m := r.s
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *job.Job
	for _, j := range m.records {
		if j.CourseID != courseID || j.Terminal() {
			continue
		}
		if latest == nil || j.UpdatedAt.After(latest.UpdatedAt) {
			latest = j
		}
	}
	if latest == nil {
		return nil, nil
	}
	cp := *latest
	return &cp, nil
}

// Update applies a partial mutation and returns the updated record.
func (r recordStore) Update(_ context.Context, jobID id.JobID, upd job.Update) (*job.Job, error) {
	m := r.s
	m.mu.Lock()
	defer m.mu.Unlock()

	j, ok := m.records[jobID.String()]
	if !ok {
		return nil, coursegen.ErrJobNotFound
	}
	applyUpdate(j, upd)
	j.UpdatedAt = time.Now().UTC()
	cp := *j
	return &cp, nil
}

// ListStale returns processing jobs whose heartbeat is older than
// threshold.
func (r recordStore) ListStale(_ context.Context, threshold time.Duration) ([]*job.Job, error) {
	m := r.s
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := time.Now().UTC().Add(-threshold)
	var stale []*job.Job
	for _, j := range m.records {
		if j.Status != job.StatusProcessing {
			continue
		}
		if j.HeartbeatAt != nil && j.HeartbeatAt.After(cutoff) {
			continue
		}
		cp := *j
		stale = append(stale, &cp)
	}
	sort.Slice(stale, func(i, k int) bool {
		return stale[i].CreatedAt.Before(stale[k].CreatedAt)
	})
	return stale, nil
}

func applyUpdate(j *job.Job, upd job.Update) {
	if upd.Status != nil {
		j.Status = *upd.Status
	}
	if upd.Phase != nil {
		j.Phase = *upd.Phase
	}
	if upd.Progress != nil {
		j.Progress = *upd.Progress
	}
	if upd.CourseID != nil {
		j.CourseID = *upd.CourseID
	}
	if upd.Metadata != nil {
		j.Metadata = upd.Metadata
	}
	if upd.Error != nil {
		j.Error = *upd.Error
	}
	if upd.QueueName != nil {
		j.QueueName = *upd.QueueName
	}
	if upd.QueueJobID != nil {
		j.QueueJobID = *upd.QueueJobID
	}
	if upd.Attempts != nil {
		j.Attempts = *upd.Attempts
	}
	if upd.MaxAttempts != nil {
		j.MaxAttempts = *upd.MaxAttempts
	}
	if upd.StartedAt != nil {
		j.StartedAt = upd.StartedAt
	}
	if upd.HeartbeatAt != nil {
		j.HeartbeatAt = upd.HeartbeatAt
	}
	if upd.CompletedAt != nil {
		j.CompletedAt = upd.CompletedAt
	}
}

type payloadStore struct{ s *Store }

// Save upserts the payload.
func (p payloadStore) Save(_ context.Context, pl *job.Payload) error {
	m := p.s
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *pl
	m.payloads[pl.JobID.String()] = &cp
	return nil
}

// Get retrieves the payload for a job.
func (p payloadStore) Get(_ context.Context, jobID id.JobID) (*job.Payload, error) {
	m := p.s
	m.mu.RLock()
	defer m.mu.RUnlock()

	pl, ok := m.payloads[jobID.String()]
	if !ok {
		return nil, coursegen.ErrPayloadNotFound
	}
	cp := *pl
	return &cp, nil
}

// Delete removes the payload. Absent payloads are a no-op.
func (p payloadStore) Delete(_ context.Context, jobID id.JobID) error {
	m := p.s
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.payloads, jobID.String())
	return nil
}

type queueStore struct{ s *Store }

// Push enqueues an entry, deduplicating on the referenced job ID.
func (q queueStore) Push(_ context.Context, qj *job.QueuedJob) (string, error) {
	m := q.s
	m.mu.Lock()
	defer m.mu.Unlock()

	jobKey := qj.Ref.JobID.String()
	if existing, ok := m.byJobID[jobKey]; ok {
		return existing, nil
	}

	m.nextSeq++
	queueJobID := "mem-" + strconv.Itoa(m.nextSeq)
	cp := *qj
	cp.ID = queueJobID
	if cp.RunAt.IsZero() {
		cp.RunAt = time.Now().UTC()
	}
	m.queue[queueJobID] = &queueEntry{qj: cp}
	m.byJobID[jobKey] = queueJobID
	return queueJobID, nil
}

// Pull claims up to limit due entries from the given queues,
// incrementing their attempt counters.
func (q queueStore) Pull(_ context.Context, queues []string, limit int) ([]*job.QueuedJob, error) {
	m := q.s
	m.mu.Lock()
	defer m.mu.Unlock()

	queueSet := make(map[string]struct{}, len(queues))
	for _, name := range queues {
		queueSet[name] = struct{}{}
	}
	now := time.Now().UTC()

	candidates := make([]*queueEntry, 0, len(m.queue))
	for _, e := range m.queue {
		if e.claimed || e.qj.RunAt.After(now) {
			continue
		}
		if len(queueSet) > 0 {
			if _, ok := queueSet[e.qj.Queue]; !ok {
				continue
			}
		}
		candidates = append(candidates, e)
	}
	sort.Slice(candidates, func(i, k int) bool {
		return candidates[i].qj.RunAt.Before(candidates[k].qj.RunAt)
	})
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	result := make([]*job.QueuedJob, len(candidates))
	for i, e := range candidates {
		e.claimed = true
		e.qj.Attempts++
		cp := e.qj
		result[i] = &cp
	}
	return result, nil
}

// Retry reschedules a claimed entry to run again at runAt.
func (q queueStore) Retry(_ context.Context, queueJobID string, runAt time.Time) error {
	m := q.s
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.queue[queueJobID]
	if !ok {
		return coursegen.ErrJobNotFound
	}
	e.claimed = false
	e.qj.RunAt = runAt.UTC()
	return nil
}

// Ack removes a claimed entry permanently.
func (q queueStore) Ack(_ context.Context, queueJobID string) error {
	m := q.s
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.queue[queueJobID]
	if !ok {
		return nil
	}
	delete(m.queue, queueJobID)
	delete(m.byJobID, e.qj.Ref.JobID.String())
	return nil
}

type relay struct{ s *Store }

// Publish delivers an event to every relay subscriber of the job.
func (r relay) Publish(_ context.Context, jobID string, evt *stream.Event) error {
	m := r.s
	m.mu.RLock()
	subs := make([]func(*stream.Event), 0, len(m.relaySubs[jobID]))
	for _, deliver := range m.relaySubs[jobID] {
		subs = append(subs, deliver)
	}
	m.mu.RUnlock()

	for _, deliver := range subs {
		deliver(evt)
	}
	return nil
}

// Subscribe registers a relay delivery callback for the job's events.
func (r relay) Subscribe(_ context.Context, jobID string, deliver func(*stream.Event)) (func() error, error) {
	m := r.s
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextSub++
	seq := m.nextSub
	if m.relaySubs[jobID] == nil {
		m.relaySubs[jobID] = make(map[int]func(*stream.Event))
	}
	m.relaySubs[jobID][seq] = deliver

	cancel := func() error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.relaySubs[jobID], seq)
		if len(m.relaySubs[jobID]) == 0 {
			delete(m.relaySubs, jobID)
		}
		return nil
	}
	return cancel, nil
}
