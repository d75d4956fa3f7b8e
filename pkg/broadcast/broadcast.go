package broadcast

import (
	"context"
	"sync"
)

// Subscriber receives messages from a Broadcaster.
type Subscriber[T any] interface {
	// Receive returns the message channel. It is closed when the subscriber
	// or its broadcaster is closed.
	Receive() <-chan T

	// Close ends the subscription. It is idempotent.
	Close() error
}

// Broadcaster fans messages out to every active subscriber.
type Broadcaster[T any] interface {
	// Subscribe registers a subscriber for as long as ctx is not done.
	Subscribe(ctx context.Context) Subscriber[T]

	// Broadcast delivers msg without blocking and returns how many
	// subscribers missed it because their buffer was full.
	Broadcast(ctx context.Context, msg T) int

	// Close closes every subscriber. Later subscriptions are born closed.
	Close() error
}

type subscriber[T any] struct {
	ch     chan T
	stop   chan struct{}
	closed bool
	mu     sync.RWMutex
	owner  *MemoryBroadcaster[T]
}

func newSubscriber[T any](bufferSize int, owner *MemoryBroadcaster[T]) *subscriber[T] {
	return &subscriber[T]{
		ch:    make(chan T, bufferSize),
		stop:  make(chan struct{}),
		owner: owner,
	}
}

func (s *subscriber[T]) Receive() <-chan T {
	return s.ch
}

func (s *subscriber[T]) Close() error {
	if s.owner != nil {
		s.owner.unsubscribe(s)
		return nil
	}
	s.shutdown()
	return nil
}

func (s *subscriber[T]) shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
		close(s.stop)
	}
}

func (s *subscriber[T]) send(msg T) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return true
	}
	select {
	case s.ch <- msg:
		return true
	default:
		return false
	}
}
