package identity

import (
	"time"
)

// DefaultHeartbeat is how long an unchanged identity/context is left alone
// before it is pushed again.
const DefaultHeartbeat = 5 * time.Second

// RateLimiter decides when a context tuple has to be re-pushed: whenever it
// changes, and at least once per heartbeat otherwise.
type RateLimiter[T comparable] struct {
	heartbeat time.Duration
	last      T
	lastPush  time.Time
}

// NewRateLimiter starts with the zero tuple, pushed at now.
func NewRateLimiter[T comparable](heartbeat time.Duration, now time.Time) *RateLimiter[T] {
	if heartbeat <= 0 {
		heartbeat = DefaultHeartbeat
	}
	return &RateLimiter[T]{heartbeat: heartbeat, lastPush: now}
}

// Allow records t as the current tuple and reports whether it must be
// pushed. A true result resets the heartbeat.
func (r *RateLimiter[T]) Allow(t T, now time.Time) bool {
	push := t != r.last || now.Sub(r.lastPush) > r.heartbeat
	r.last = t
	if push {
		r.lastPush = now
	}
	return push
}

// LastPush returns when Allow last returned true.
func (r *RateLimiter[T]) LastPush() time.Time {
	return r.lastPush
}
