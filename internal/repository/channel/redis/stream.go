package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

var errStreamClosed = errors.New("subscription lost")

type pubsubStream[T any] struct {
	ps     *redis.PubSub
	ch     chan T
	cancel context.CancelFunc

	mu     sync.Mutex
	err    error
	closed bool
}

// subscribe opens a pub/sub subscription on topic and waits for the server to
// confirm it, so that anything published after subscribe returns is
// delivered.
func subscribe[T any](ctx context.Context, rc *redis.Client, logger *slog.Logger, topic string) (*pubsubStream[T], error) {
	ps := rc.Subscribe(ctx, topic)
	if _, err := ps.Receive(ctx); err != nil {
		ps.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	s := &pubsubStream[T]{
		ps:     ps,
		ch:     make(chan T, streamBuffer),
		cancel: cancel,
	}

	go s.loop(loopCtx, logger, topic)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-loopCtx.Done():
		}
	}()

	return s, nil
}

func (s *pubsubStream[T]) loop(ctx context.Context, logger *slog.Logger, topic string) {
	defer close(s.ch)
	for {
		msg, err := s.ps.ReceiveMessage(ctx)
		if err != nil {
			s.fail(err)
			return
		}

		var v T
		if err := msgpack.Unmarshal([]byte(msg.Payload), &v); err != nil {
			logger.Warn("dropping undecodable event", "topic", topic, "error", err)
			continue
		}

		select {
		case s.ch <- v:
		case <-ctx.Done():
			return
		}
	}
}

func (s *pubsubStream[T]) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	if errors.Is(err, redis.ErrClosed) {
		err = errStreamClosed
	}
	s.err = err
	s.cancel()
}

func (s *pubsubStream[T]) C() <-chan T {
	return s.ch
}

func (s *pubsubStream[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *pubsubStream[T]) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	return s.ps.Close()
}
