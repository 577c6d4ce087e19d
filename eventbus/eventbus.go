// Package eventbus is a small in-process publish/subscribe bus.
//
// Publish never blocks on subscribers. Each subscription has its own queue and
// delivery goroutine, so events reach a subscriber in publish order and a slow
// handler only delays itself.
package eventbus

import (
	"sync"
	"sync/atomic"

	"github.com/redhat-partner-ecosystem/scootershare/internal"
)

type (
	// Filter selects the events a subscription receives. A nil Filter accepts everything.
	Filter[T any] func(T) bool

	// Handler consumes an event. It runs on the subscription's delivery goroutine.
	Handler[T any] func(T)

	Bus[T any] struct {
		// pub serializes publishers, mu guards the subscriptions
		pub    sync.Mutex
		mu     sync.Mutex
		subs   map[uint64]*Subscription[T]
		nextID uint64
		closed bool
	}

	Subscription[T any] struct {
		id      uint64
		bus     *Bus[T]
		filter  Filter[T]
		handler Handler[T]

		mu     sync.Mutex
		queue  []T
		signal chan struct{}
		done   chan struct{}
		active atomic.Bool
		once   sync.Once
	}
)

func New[T any]() *Bus[T] {
	return &Bus[T]{
		subs: make(map[uint64]*Subscription[T]),
	}
}

// Publish hands evt to every currently registered subscription whose filter
// accepts it and returns how many did. Filters run outside the subscription
// lock and may subscribe or unsubscribe, but must not publish on the same bus.
func (b *Bus[T]) Publish(evt T) int {
	b.pub.Lock()
	defer b.pub.Unlock()

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return 0
	}
	subs := make([]*Subscription[T], 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	n := 0
	for _, s := range subs {
		if !s.active.Load() {
			continue
		}
		if s.filter != nil && !s.filter(evt) {
			continue
		}
		s.enqueue(evt)
		n++
	}
	return n
}

// Subscribe registers handler. Events published before the call are not replayed.
func (b *Bus[T]) Subscribe(filter Filter[T], handler Handler[T]) *Subscription[T] {
	s := &Subscription[T]{
		bus:     b,
		filter:  filter,
		handler: handler,
		signal:  make(chan struct{}, 1),
		done:    make(chan struct{}),
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		s.once.Do(func() { close(s.done) })
		return s
	}

	b.nextID++
	s.id = b.nextID
	s.active.Store(true)
	b.subs[s.id] = s

	go s.run()

	return s
}

// Len returns the number of active subscriptions
func (b *Bus[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close unsubscribes everybody. Later publishes are dropped and later
// subscriptions are inactive from the start.
func (b *Bus[T]) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := make([]*Subscription[T], 0, len(b.subs))
	for _, s := range b.subs {
		subs = append(subs, s)
	}
	b.subs = make(map[uint64]*Subscription[T])
	b.mu.Unlock()

	for _, s := range subs {
		s.stop()
	}
}

// Unsubscribe stops deliveries. Safe to call more than once and from inside
// the subscription's own handler; events still queued are discarded.
func (s *Subscription[T]) Unsubscribe() {
	if !s.active.Load() {
		s.stop()
		return
	}

	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()

	s.stop()
}

// Active reports whether the subscription still receives events
func (s *Subscription[T]) Active() bool {
	return s.active.Load()
}

// Done is closed once the subscription stopped
func (s *Subscription[T]) Done() <-chan struct{} {
	return s.done
}

func (s *Subscription[T]) stop() {
	s.active.Store(false)
	s.once.Do(func() { close(s.done) })
}

func (s *Subscription[T]) enqueue(evt T) {
	s.mu.Lock()
	s.queue = append(s.queue, evt)
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
		// a wakeup is already pending
	}
}

func (s *Subscription[T]) run() {
	for {
		select {
		case <-s.done:
			return
		case <-s.signal:
		}

		for {
			s.mu.Lock()
			batch := s.queue
			s.queue = nil
			s.mu.Unlock()

			if len(batch) == 0 {
				break
			}

			for _, evt := range batch {
				if !s.active.Load() {
					return
				}
				s.handler(evt)
				internal.BusDeliveries.Inc()
			}
		}
	}
}
