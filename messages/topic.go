package messages

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultBuffer is the subscriber buffer size used by Bus.
const DefaultBuffer = 16

// Topic fans published values out to subscribers. Publishing never blocks: a subscriber whose
// buffer is full loses its oldest value.
type Topic[T any] struct {
	mu      sync.Mutex
	subs    map[string]chan T
	last    T
	hasLast bool
	dropped int
}

// NewTopic returns a topic with no subscribers.
func NewTopic[T any]() *Topic[T] {
	return &Topic[T]{subs: map[string]chan T{}}
}

// Subscribe registers a new subscriber with the given buffer size.
func (t *Topic[T]) Subscribe(buffer int) (string, <-chan T) {
	if buffer < 1 {
		buffer = 1
	}
	id := uuid.NewString()
	ch := make(chan T, buffer)
	t.mu.Lock()
	defer t.mu.Unlock()
	t.subs[id] = ch
	return id, ch
}

// Unsubscribe removes and closes a subscriber.
func (t *Topic[T]) Unsubscribe(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if ch, ok := t.subs[id]; ok {
		close(ch)
		delete(t.subs, id)
	}
}

// Publish delivers v to every subscriber.
func (t *Topic[T]) Publish(v T) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last, t.hasLast = v, true
	for _, ch := range t.subs {
		if !offer(ch, v) {
			t.dropped++
		}
	}
}

// Last returns the most recently published value.
func (t *Topic[T]) Last() (T, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.hasLast
}

// Dropped is the number of values discarded to make room for newer ones.
func (t *Topic[T]) Dropped() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Close unsubscribes everyone.
func (t *Topic[T]) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for id, ch := range t.subs {
		close(ch)
		delete(t.subs, id)
	}
}

// offer sends v, evicting the oldest buffered value when full. It reports false if something
// was evicted. Callers hold the topic lock so only receivers race with it.
func offer[T any](ch chan T, v T) bool {
	evicted := false
	for {
		select {
		case ch <- v:
			return !evicted
		default:
		}
		select {
		case <-ch:
			evicted = true
		default:
		}
	}
}
