//go:build debug

package channel

// Synchronous reports whether New hands out unbuffered channels. Debug
// builds make every Send wait for its receiver so ordering bugs surface.
const Synchronous = true

// New returns an Unbuffered channel; size is ignored.
func New[T any](size int) Channel[T] {
	return NewUnbuffered[T]()
}
