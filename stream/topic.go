package stream

import "sync"

// registry maps job IDs to their current subscriber sets. It is safe
// for concurrent use.
type registry struct {
	mu   sync.RWMutex
	jobs map[string]map[string]*subscriber // jobID → subscriberID → subscriber
}

func newRegistry() *registry {
	return &registry{jobs: make(map[string]map[string]*subscriber)}
}

// add registers the subscriber and reports whether it is the first one
// for its job.
func (r *registry) add(sub *subscriber) (first bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.jobs[sub.jobID]
	if !ok {
		subs = make(map[string]*subscriber)
		r.jobs[sub.jobID] = subs
	}
	subs[sub.id] = sub
	return len(subs) == 1
}

// remove unregisters the subscriber and reports whether it was the last
// one for its job. Empty jobs are cleaned up.
func (r *registry) remove(sub *subscriber) (last bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, ok := r.jobs[sub.jobID]
	if !ok {
		return false
	}
	if _, exists := subs[sub.id]; !exists {
		return false
	}
	delete(subs, sub.id)
	if len(subs) == 0 {
		delete(r.jobs, sub.jobID)
		return true
	}
	return false
}

// publish delivers the event to every subscriber of the job. Returns
// the number of successful deliveries. The lock is released before
// sending so a slow consumer cannot stall registration.
func (r *registry) publish(jobID string, evt *Event) int {
	r.mu.RLock()
	subs := r.jobs[jobID]
	targets := make([]*subscriber, 0, len(subs))
	for _, s := range subs {
		targets = append(targets, s)
	}
	r.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.send(evt) {
			delivered++
		}
	}
	return delivered
}

// count returns the number of subscribers for a job.
func (r *registry) count(jobID string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.jobs[jobID])
}
