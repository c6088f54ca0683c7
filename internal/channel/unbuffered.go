// internal/channel/unbuffered.go
package channel

import "sync"

// Unbuffered is an unbuffered channel implementation
type Unbuffered[T any] struct {
	mu     sync.RWMutex
	ch     chan T
	done   chan struct{}
	once   sync.Once
	closed bool
}

// NewUnbuffered creates a new unbuffered channel
func NewUnbuffered[T any]() *Unbuffered[T] {
	return &Unbuffered[T]{ch: make(chan T), done: make(chan struct{})}
}

// Send sends a value to the channel (blocks until received or closed)
func (u *Unbuffered[T]) Send(v T) error {
	u.mu.RLock()
	defer u.mu.RUnlock()
	if u.closed {
		return ErrClosed
	}
	select {
	case u.ch <- v:
		return nil
	case <-u.done:
		return ErrClosed
	}
}

// Receive returns the receive-only channel
func (u *Unbuffered[T]) Receive() <-chan T {
	return u.ch
}

// Len always returns 0 for unbuffered channels
func (u *Unbuffered[T]) Len() int {
	return 0
}

// Close closes the channel, releasing blocked senders first.
func (u *Unbuffered[T]) Close() {
	u.once.Do(func() {
		close(u.done)
		u.mu.Lock()
		defer u.mu.Unlock()
		u.closed = true
		close(u.ch)
	})
}
