// Package queue provides the single-capacity hand-off used between
// pipeline stages. Staleness is preferred over backlog: only the most
// recent market state is ever actionable, so a producer that finds the
// slot full drains the stale item and inserts the fresh one instead of
// blocking.
package queue

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrClosed is returned by Get after Close.
var ErrClosed = errors.New("queue closed")

// Slot is a capacity-1 queue with replace-stale semantics.
type Slot[T any] struct {
	ch   chan T
	done chan struct{}

	mu     sync.Mutex
	closed bool
}

// NewSlot allocates an empty slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{ch: make(chan T, 1), done: make(chan struct{})}
}

// Put inserts v, discarding a stale occupant if present. It never
// blocks. Put on a closed slot is a no-op.
func (s *Slot[T]) Put(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- v:
			return
		default:
		}
		// Full: drain the stale item and retry. The consumer may race us
		// for it, which is fine either way.
		select {
		case <-s.ch:
		default:
		}
	}
}

// Get waits up to timeout for an item. A timeout is not an error: the
// second return is false and the caller simply loops again on its next
// heartbeat. ErrClosed is reported once the slot is closed and drained;
// a waiting Get returns immediately on Close rather than riding out the
// timeout.
func (s *Slot[T]) Get(ctx context.Context, timeout time.Duration) (T, bool, error) {
	var zero T

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case v := <-s.ch:
		return v, true, nil
	case <-ctx.Done():
		return zero, false, ctx.Err()
	case <-s.done:
		// Drain the last item before reporting the close.
		select {
		case v := <-s.ch:
			return v, true, nil
		default:
			return zero, false, ErrClosed
		}
	case <-timer.C:
		return zero, false, nil
	}
}

// TryGet returns the current item without waiting.
func (s *Slot[T]) TryGet() (T, bool) {
	select {
	case v := <-s.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}

// Close stops the slot from accepting new items and wakes any waiting
// Get. Close is idempotent.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.done)
}
