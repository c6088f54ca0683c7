// Package channel provides generic channel interfaces for decoupled communication.
package channel

import "errors"

var (
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("channel closed")

	// ErrFull is returned by a buffered Send when no slot is free.
	ErrFull = errors.New("channel full")
)

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel. Send never panics, even after
// Close.
type Sender[T any] interface {
	Send(T) error
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}
