package stream

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/lumenly/coursegen/id"
)

// Relay is the cross-process broadcast channel. Events published on any
// process are delivered to every process with an open subscription for
// the same job. Implementations: Redis pub/sub (store/redis); memory
// (store/memory, single process).
type Relay interface {
	// Publish broadcasts an event on the job's channel.
	Publish(ctx context.Context, jobID string, evt *Event) error

	// Subscribe opens the job's channel and invokes deliver for every
	// event received, from a goroutine owned by the relay. The returned
	// cancel function closes the channel subscription.
	Subscribe(ctx context.Context, jobID string, deliver func(*Event)) (cancel func() error, err error)
}

// DefaultBufferSize is the default per-subscriber event buffer.
const DefaultBufferSize = 64

// Bus multicasts generation events to in-process subscribers and, when a
// relay is configured, across processes. Publishing never blocks on
// subscriber presence, and the last subscriber leaving a job's channel
// releases the cross-process subscription for that job.
type Bus struct {
	local  *registry
	relay  Relay
	logger *slog.Logger

	bufferSize int
	heartbeat  time.Duration

	mu        sync.Mutex
	relaySubs map[string]func() error // jobID → relay cancel
}

// BusOption configures a Bus.
type BusOption func(*Bus)

// WithRelay sets the cross-process relay. Without one the bus is
// in-process only.
func WithRelay(r Relay) BusOption {
	return func(b *Bus) { b.relay = r }
}

// WithBufferSize sets the per-subscriber event buffer size.
func WithBufferSize(n int) BusOption {
	return func(b *Bus) { b.bufferSize = n }
}

// WithHeartbeatInterval sets the interval between generation.heartbeat
// events on each subscription. Zero disables heartbeats.
func WithHeartbeatInterval(d time.Duration) BusOption {
	return func(b *Bus) { b.heartbeat = d }
}

// NewBus creates an event bus.
func NewBus(logger *slog.Logger, opts ...BusOption) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	b := &Bus{
		local:      newRegistry(),
		logger:     logger,
		bufferSize: DefaultBufferSize,
		heartbeat:  15 * time.Second,
		relaySubs:  make(map[string]func() error),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Publish multicasts the event to the job's subscribers. With a relay
// configured the event takes the cross-process path only — local
// delivery happens when the relay hands it back, so each subscriber
// sees it exactly once regardless of which process published it.
func (b *Bus) Publish(ctx context.Context, evt *Event) {
	if b.relay != nil {
		err := b.relay.Publish(ctx, evt.JobID, evt)
		if err == nil {
			return
		}
		b.logger.Warn("relay publish failed, delivering locally",
			slog.String("job_id", evt.JobID),
			slog.String("event", string(evt.Type)),
			slog.String("error", err.Error()),
		)
	}
	b.local.publish(evt.JobID, evt)
}

// Subscribe opens a live event stream for the job named by snapshot.
// The snapshot is delivered first, then live events as published, plus
// periodic generation.heartbeat events. Callers must Close the
// subscription when done.
func (b *Bus) Subscribe(ctx context.Context, snapshot *Event) (*Subscription, error) {
	sub := newSubscriber(id.NewSubscriberID().String(), snapshot.JobID, b.bufferSize)

	b.mu.Lock()
	first := b.local.add(sub)
	if first && b.relay != nil {
		cancel, err := b.relay.Subscribe(ctx, sub.jobID, func(evt *Event) {
			b.local.publish(evt.JobID, evt)
		})
		if err != nil {
			b.local.remove(sub)
			b.mu.Unlock()
			return nil, err
		}
		b.relaySubs[sub.jobID] = cancel
	}
	b.mu.Unlock()

	s := &Subscription{
		bus:  b,
		sub:  sub,
		out:  make(chan *Event, b.bufferSize),
		done: make(chan struct{}),
	}
	go s.pump(snapshot, b.heartbeat)
	return s, nil
}

// Subscribers returns the number of live subscribers for a job.
func (b *Bus) Subscribers(jobID string) int {
	return b.local.count(jobID)
}

// release detaches a subscriber, tearing down the job's relay
// subscription when the last one leaves.
func (b *Bus) release(sub *subscriber) {
	b.mu.Lock()
	last := b.local.remove(sub)
	var cancel func() error
	if last {
		cancel = b.relaySubs[sub.jobID]
		delete(b.relaySubs, sub.jobID)
	}
	b.mu.Unlock()

	sub.close()
	if cancel != nil {
		if err := cancel(); err != nil {
			b.logger.Warn("relay unsubscribe failed",
				slog.String("job_id", sub.jobID),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Subscription is one consumer's view of a job's event stream.
type Subscription struct {
	bus  *Bus
	sub  *subscriber
	out  chan *Event
	done chan struct{}
	once sync.Once
}

// C returns the event channel. It is closed after Close.
func (s *Subscription) C() <-chan *Event { return s.out }

// Close detaches the subscription and releases its resources. Safe to
// call multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() {
		close(s.done)
		s.bus.release(s.sub)
	})
}

// pump forwards the snapshot, live events, and heartbeats to the output
// channel until Close.
func (s *Subscription) pump(snapshot *Event, heartbeat time.Duration) {
	defer close(s.out)

	var tick <-chan time.Time
	if heartbeat > 0 {
		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()
		tick = ticker.C
	}

	if !s.forward(snapshot) {
		return
	}

	for {
		select {
		case <-s.done:
			return
		case evt, ok := <-s.sub.ch:
			if !ok {
				return
			}
			if !s.forward(evt) {
				return
			}
		case <-tick:
			if !s.forward(New(EventHeartbeat, s.sub.jobID, nil)) {
				return
			}
		}
	}
}

// forward delivers one event to the output channel, giving up on Close.
func (s *Subscription) forward(evt *Event) bool {
	select {
	case s.out <- evt:
		return true
	case <-s.done:
		return false
	}
}
