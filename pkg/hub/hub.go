// Package hub fans out in-process events to per-key subscribers. It backs
// the live streams of the meeting view: one hub carries professional
// locations keyed by professional id, another carries meeting records keyed
// by meeting id, and neither ever blocks a publisher on a slow consumer.
package hub

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Mintenance-LTD/mintenance-sub012/pkg/metrics"
)

// queueSize bounds how many undelivered events a slow subscriber may hold.
// Every published value is a full snapshot, so when the queue is full the
// oldest value is dropped: newer always supersedes older.
const queueSize = 16

// Subscription is a handle on one subscriber's stream. Unsubscribe stops
// delivery and is safe to call multiple times and from multiple goroutines.
// It must not be called from inside the subscriber's own callback.
type Subscription interface {
	Unsubscribe()
}

// Hub routes published values to the callbacks subscribed under the same
// key. Create one with New.
type Hub[T any] struct {
	name string

	mu   sync.RWMutex
	subs map[uuid.UUID]map[*subscription[T]]struct{}
}

func New[T any](name string) *Hub[T] {
	return &Hub[T]{
		name: name,
		subs: make(map[uuid.UUID]map[*subscription[T]]struct{}),
	}
}

// Subscribe registers fn for values published under key. The callback runs
// on its own goroutine, one invocation at a time, in publish order, so a
// slow callback on one subscription never stalls another. Subscribe itself
// cannot fail; once Unsubscribe returns, fn is never called again.
func (h *Hub[T]) Subscribe(key uuid.UUID, fn func(T)) Subscription {
	s := &subscription[T]{
		queue:   make(chan T, queueSize),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	s.detach = func() { h.remove(key, s) }

	h.mu.Lock()
	set, ok := h.subs[key]
	if !ok {
		set = make(map[*subscription[T]]struct{})
		h.subs[key] = set
	}
	set[s] = struct{}{}
	h.mu.Unlock()

	metrics.HubSubscribers.WithLabelValues(h.name).Inc()

	go s.pump(fn)
	return s
}

// Publish delivers v to every current subscriber of key. Subscribers that
// cannot keep up lose their oldest queued value rather than delaying the
// publisher.
func (h *Hub[T]) Publish(key uuid.UUID, v T) {
	h.mu.RLock()
	targets := make([]*subscription[T], 0, len(h.subs[key]))
	for s := range h.subs[key] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	metrics.HubPublished.WithLabelValues(h.name).Inc()

	for _, s := range targets {
		if dropped := s.deliver(v); dropped > 0 {
			metrics.HubDropped.WithLabelValues(h.name).Add(float64(dropped))
		}
	}
}

func (h *Hub[T]) remove(key uuid.UUID, s *subscription[T]) {
	h.mu.Lock()
	if set, ok := h.subs[key]; ok {
		delete(set, s)
		if len(set) == 0 {
			delete(h.subs, key)
		}
	}
	h.mu.Unlock()

	metrics.HubSubscribers.WithLabelValues(h.name).Dec()
}

type subscription[T any] struct {
	queue   chan T
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
	detach  func()
}

// pump feeds queued values to fn until the subscription is done. It owns
// the stopped channel: Unsubscribe waits on it so that no callback can run
// once Unsubscribe has returned.
func (s *subscription[T]) pump(fn func(T)) {
	defer close(s.stopped)
	for {
		select {
		case <-s.done:
			return
		default:
		}
		select {
		case <-s.done:
			return
		case v := <-s.queue:
			fn(v)
		}
	}
}

// deliver enqueues v without ever blocking: if the queue is full it evicts
// the oldest value and retries. Returns the number of values evicted.
func (s *subscription[T]) deliver(v T) int {
	dropped := 0
	for {
		select {
		case <-s.done:
			return dropped
		case s.queue <- v:
			return dropped
		default:
		}
		select {
		case <-s.queue:
			dropped++
		default:
		}
	}
}

func (s *subscription[T]) Unsubscribe() {
	s.once.Do(func() {
		s.detach()
		close(s.done)
	})
	<-s.stopped
}
