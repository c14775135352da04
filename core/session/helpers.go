package session

import (
	"context"
	"fmt"
	"sync"
)

func withContextCancelHook(ctx context.Context, onContextDone func()) chan struct{} {
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			onContextDone()
		case <-done:
		}
	}()
	return done
}

type workerRun func(context.Context) error

func panicSafeNamedWorker(name string, run func(context.Context) error) workerRun {
	return func(ctx context.Context) (err error) {
		defer func() {
			if recovered := recover(); recovered != nil {
				err = fmt.Errorf("%s worker panicked: %v", name, recovered)
			}
		}()

		if err = run(ctx); err != nil {
			return fmt.Errorf("%s worker failed: %w", name, err)
		}

		return nil
	}
}

// mailbox is an unbounded FIFO queue. push never blocks, so producers on
// device and network goroutines cannot stall on a busy consumer.
type mailbox[T any] struct {
	mu     sync.Mutex
	items  []T
	ready  chan struct{}
	closed bool
}

func newMailbox[T any]() *mailbox[T] {
	return &mailbox[T]{ready: make(chan struct{}, 1)}
}

func (m *mailbox[T]) push(item T) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}

	m.items = append(m.items, item)
	select {
	case m.ready <- struct{}{}:
	default:
	}
	return true
}

// pop blocks until an item is available. It reports false once the mailbox
// is closed; items still queued at that point are dropped.
func (m *mailbox[T]) pop() (T, bool) {
	var zero T
	for {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return zero, false
		}
		if len(m.items) > 0 {
			item := m.items[0]
			m.items[0] = zero
			m.items = m.items[1:]
			m.mu.Unlock()
			return item, true
		}
		m.mu.Unlock()

		<-m.ready
	}
}

func (m *mailbox[T]) close() {
	_ = m.drain()
}

// drain closes the mailbox and returns the items still queued. Pushes after
// drain are rejected, so every item is either returned here or refused.
func (m *mailbox[T]) drain() []T {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	items := m.items
	m.items = nil
	close(m.ready)
	return items
}

func (m *mailbox[T]) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}
