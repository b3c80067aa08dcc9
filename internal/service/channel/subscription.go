package channel

import (
	"fmt"
	"sync"

	"github.com/sharetube/watchparty/internal/domain"
	"github.com/sharetube/watchparty/internal/repository/channel"
)

// Subscription delivers an initial window followed by live events. C is
// closed when the subscription ends; Err is non-nil when it ended because the
// upstream was lost, in which case the caller resubscribes.
type Subscription[T any] struct {
	ch   chan T
	src  channel.Stream[T]
	done chan struct{}

	mu     sync.Mutex
	err    error
	closed bool
}

// newSubscription emits initial and then every live event for which keep
// returns true. keep is only called from the delivery goroutine.
func newSubscription[T any](initial []T, src channel.Stream[T], keep func(T) bool) *Subscription[T] {
	s := &Subscription[T]{
		ch:   make(chan T),
		src:  src,
		done: make(chan struct{}),
	}

	go s.run(initial, keep)

	return s
}

func (s *Subscription[T]) run(initial []T, keep func(T) bool) {
	defer close(s.ch)

	for _, v := range initial {
		select {
		case s.ch <- v:
		case <-s.done:
			return
		}
	}

	for {
		select {
		case v, ok := <-s.src.C():
			if !ok {
				s.setErr(s.src.Err())
				return
			}

			if !keep(v) {
				continue
			}

			select {
			case s.ch <- v:
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *Subscription[T]) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed || err == nil {
		return
	}

	s.err = fmt.Errorf("%w: %w", domain.ErrTransient, err)
}

func (s *Subscription[T]) C() <-chan T {
	return s.ch
}

func (s *Subscription[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close stops delivery and releases the upstream subscription.
func (s *Subscription[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	return s.src.Close()
}
