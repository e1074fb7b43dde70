package stream

import (
	"sync/atomic"
)

// subscriber is one registered consumer of a job's events. Delivery is
// non-blocking: a subscriber that cannot keep up drops events rather
// than stalling the publisher.
type subscriber struct {
	id    string
	jobID string
	ch    chan *Event

	closed  atomic.Bool
	dropped atomic.Int64
}

func newSubscriber(id, jobID string, bufferSize int) *subscriber {
	return &subscriber{
		id:    id,
		jobID: jobID,
		ch:    make(chan *Event, bufferSize),
	}
}

// send attempts a non-blocking delivery. Returns false if the event was
// dropped (closed subscriber or full buffer).
func (s *subscriber) send(evt *Event) bool {
	if s.closed.Load() {
		return false
	}
	select {
	case s.ch <- evt:
		return true
	default:
		s.dropped.Add(1)
		return false
	}
}

// close marks the subscriber dead. The channel is left open: a
// concurrent send racing the flag must never hit a closed channel, and
// the subscription pump drains via its own done signal, not channel
// closure. Safe to call multiple times.
func (s *subscriber) close() {
	s.closed.Store(true)
}
