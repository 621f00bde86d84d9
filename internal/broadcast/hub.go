package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
)

// defaultSubscriberBuffer is the per-subscriber channel capacity.
const defaultSubscriberBuffer = 256

// Publisher receives every line read from a session stream.
//
// Implementations must not block; the caller is a line reader goroutine.
type Publisher interface {
	Publish(sessionID string, stream Stream, line string)
}

// SinkFunc is a plain callback sink, e.g. a UI event emitter.
type SinkFunc func(Event)

// Compile-time verification that Hub implements Publisher.
var _ Publisher = (*Hub)(nil)

// Hub is a multi-subscriber fan-out for session output.
//
// Subscribers get a bounded channel each and lose events when it is full.
// Sinks get every event, in publish order, on a goroutine of their own; a
// slow sink only delays its own queue, which grows until it catches up.
type Hub struct {
	log        *slog.Logger
	bufferSize int

	mu     sync.RWMutex
	subs   map[uint64]*Subscription
	nextID uint64
	sinks  []*sinkQueue
	closed bool
}

// NewHub creates a hub. A bufferSize <= 0 selects the default.
func NewHub(log *slog.Logger, bufferSize int, sinks ...SinkFunc) *Hub {
	if bufferSize <= 0 {
		bufferSize = defaultSubscriberBuffer
	}

	h := &Hub{
		log:        log.With("component", "broadcast"),
		bufferSize: bufferSize,
		subs:       make(map[uint64]*Subscription, 4),
	}

	for _, sink := range sinks {
		if sink != nil {
			h.sinks = append(h.sinks, h.startSink(sink))
		}
	}

	return h
}

// Publish builds an event for the line and delivers it to every matching
// subscriber and every sink queue. It never blocks.
func (h *Hub) Publish(sessionID string, stream Stream, line string) {
	ev := Event{
		ID:        ulid.Make(),
		SessionID: sessionID,
		Stream:    stream,
		Line:      line,
		Time:      time.Now(),
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}

	for _, sub := range h.subs {
		if !sub.filter.Match(ev) {
			continue
		}

		select {
		case sub.ch <- ev:
		default:
			sub.dropped.Add(1)
			h.log.Debug("Subscriber buffer full, dropping event",
				"subscription", sub.id, "session_id", sessionID, "stream", stream)
		}
	}

	for _, q := range h.sinks {
		q.push(ev)
	}
}

// deliver invokes a sink, containing any panic it raises.
func (h *Hub) deliver(sink SinkFunc, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Warn("Event sink panicked", "session_id", ev.SessionID, "panic", r)
		}
	}()

	sink(ev)
}

// AddSink registers a callback sink for events published from now on.
// Sinks added to a closed hub are ignored.
func (h *Hub) AddSink(sink SinkFunc) {
	if sink == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}

	h.sinks = append(h.sinks, h.startSink(sink))
}

// startSink starts the goroutine feeding sink.
func (h *Hub) startSink(sink SinkFunc) *sinkQueue {
	q := &sinkQueue{
		sink: sink,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}

	go h.runSink(q)

	return q
}

// runSink delivers queued events until the queue is closed and empty.
func (h *Hub) runSink(q *sinkQueue) {
	defer close(q.done)

	for {
		batch, closed := q.take()

		for _, ev := range batch {
			h.deliver(q.sink, ev)
		}

		if len(batch) > 0 {
			continue
		}

		if closed {
			return
		}

		<-q.wake
	}
}

// Subscribe registers a subscriber for events matching filter.
//
// The returned subscription's channel is closed by Subscription.Close or
// Hub.Close. Subscribing to a closed hub yields an already-closed channel.
func (h *Hub) Subscribe(filter Filter) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++

	sub := &Subscription{
		id:     h.nextID,
		hub:    h,
		filter: filter,
		ch:     make(chan Event, h.bufferSize),
	}

	if h.closed {
		sub.closed = true
		close(sub.ch)

		return sub
	}

	h.subs[sub.id] = sub
	h.log.Debug("Subscriber added", "subscription", sub.id,
		"session_id", filter.SessionID, "stream", filter.Stream)

	return sub
}

// unsubscribe removes a subscription and closes its channel.
func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if sub.closed {
		return
	}

	sub.closed = true

	delete(h.subs, sub.id)
	close(sub.ch)
}

// Close closes every subscription and waits until each sink has received
// the events queued for it, or ctx ends. Later publishes are ignored.
// It's safe to call Close multiple times.
func (h *Hub) Close(ctx context.Context) error {
	h.mu.Lock()

	if h.closed {
		h.mu.Unlock()

		return nil
	}

	h.closed = true

	for id, sub := range h.subs {
		sub.closed = true

		close(sub.ch)
		delete(h.subs, id)
	}

	sinks := h.sinks
	h.mu.Unlock()

	for _, q := range sinks {
		q.close()
	}

	for _, q := range sinks {
		select {
		case <-q.done:
		case <-ctx.Done():
			h.log.Warn("Event sinks did not drain before close", "error", ctx.Err())

			return fmt.Errorf("drain event sinks: %w", ctx.Err())
		}
	}

	h.log.Debug("Broadcast hub closed")

	return nil
}

// sinkQueue is the unbounded, ordered backlog of one sink.
type sinkQueue struct {
	sink SinkFunc

	mu      sync.Mutex
	pending []Event
	closed  bool

	// wake holds at most one pending signal for runSink.
	wake chan struct{}
	done chan struct{}
}

func (q *sinkQueue) push(ev Event) {
	q.mu.Lock()
	q.pending = append(q.pending, ev)
	q.mu.Unlock()

	q.signal()
}

func (q *sinkQueue) take() ([]Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	batch := q.pending
	q.pending = nil

	return batch, q.closed
}

func (q *sinkQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()

	q.signal()
}

func (q *sinkQueue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

// Subscription is one subscriber's view of the hub.
type Subscription struct {
	id      uint64
	hub     *Hub
	filter  Filter
	ch      chan Event
	dropped atomic.Uint64

	// closed is guarded by hub.mu.
	closed bool
}

// Events returns the channel of matching events.
func (s *Subscription) Events() <-chan Event {
	return s.ch
}

// Dropped returns how many events were discarded because the buffer was full.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

// Close unsubscribes and closes the events channel.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}
