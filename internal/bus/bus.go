// Package bus is an in-process publish/subscribe channel with typed topics.
package bus

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// DefaultBuffer is the per-subscriber channel buffer size.
const DefaultBuffer = 64

// Bus holds named topics. The zero value is not usable; use New.
type Bus struct {
	mu     sync.Mutex
	topics map[string]any
}

// New creates an empty bus.
func New() *Bus {
	return &Bus{topics: make(map[string]any)}
}

// Topic is a named stream of T values.
type Topic[T any] struct {
	name    string
	mu      sync.RWMutex
	subs    map[uint64]chan T
	nextID  uint64
	dropped atomic.Int64
	closed  bool
}

// Register returns the topic with the given name, creating it on first use.
// It panics if the name is already registered with a different payload type.
func Register[T any](b *Bus, name string) *Topic[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if existing, ok := b.topics[name]; ok {
		t, ok := existing.(*Topic[T])
		if !ok {
			panic(fmt.Sprintf("bus: topic %q registered with payload %T", name, existing))
		}
		return t
	}
	t := &Topic[T]{name: name, subs: make(map[uint64]chan T)}
	b.topics[name] = t
	return t
}

// Close closes every topic on the bus.
func (b *Bus) Close() {
	b.mu.Lock()
	topics := make([]any, 0, len(b.topics))
	for _, t := range b.topics {
		topics = append(topics, t)
	}
	b.mu.Unlock()

	for _, t := range topics {
		if c, ok := t.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

// Name returns the topic name.
func (t *Topic[T]) Name() string { return t.name }

// Subscribe returns a receive channel and a cancel func. The channel is
// closed by cancel or when the topic closes. buffer <= 0 uses DefaultBuffer.
func (t *Topic[T]) Subscribe(buffer int) (<-chan T, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan T, buffer)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := t.nextID
	t.nextID++
	t.subs[id] = ch
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if sub, ok := t.subs[id]; ok {
				delete(t.subs, id)
				close(sub)
			}
		})
	}
}

// Publish delivers v to every subscriber without blocking. Subscribers with
// a full buffer miss the message; the miss is counted in Dropped.
func (t *Topic[T]) Publish(v T) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return
	}
	for _, ch := range t.subs {
		select {
		case ch <- v:
		default:
			t.dropped.Add(1)
		}
	}
}

// Subscribers returns the current subscriber count.
func (t *Topic[T]) Subscribers() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.subs)
}

// Dropped returns how many deliveries were skipped for slow subscribers.
func (t *Topic[T]) Dropped() int64 { return t.dropped.Load() }

// Close closes all subscriber channels. Later publishes are ignored.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return
	}
	t.closed = true
	for id, ch := range t.subs {
		delete(t.subs, id)
		close(ch)
	}
}
