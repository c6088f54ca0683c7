//go:build !debug

package channel

// Synchronous reports whether New hands out unbuffered channels.
const Synchronous = false

// New returns a Buffered channel holding up to size values.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
