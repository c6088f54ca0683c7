// Package dispatcher routes decoded game messages to per-kind handlers.
//
// Handlers run synchronously on the caller's goroutine so that messages
// from one peer reach the link in the order they were framed.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tm-proximity/linkbridge/pkg/core"
)

var (
	// ErrUnknownCommand is returned by Dispatch when no handler accepts the kind.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrLifecycleKind is returned by Register for connection lifecycle kinds,
	// which are produced by the server itself and never accepted from a peer.
	ErrLifecycleKind = errors.New("lifecycle kinds cannot be routed")
	// ErrDuplicateHandler is returned by Register when the kind is taken.
	ErrDuplicateHandler = errors.New("handler already registered")
)

// Event is one decoded message together with the peer that sent it.
type Event struct {
	Message   core.Event
	Peer      string
	Timestamp time.Time
}

// Kind returns the message kind, or "" for an empty event.
func (e Event) Kind() core.Kind {
	if e.Message == nil {
		return ""
	}
	return e.Message.Kind()
}

// HandlerFunc handles one event.
type HandlerFunc func(Event) error

// Logger is the key/value logger the dispatcher writes to.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

// Option adjusts a single registration.
type Option func(*route)

// Logged traces every event the handler receives and every error it returns.
func Logged() Option {
	return func(r *route) { r.logged = true }
}

type route struct {
	handle HandlerFunc
	logged bool
}

// Dispatcher is safe for concurrent Register and Dispatch calls.
type Dispatcher struct {
	mu     sync.RWMutex
	routes map[core.Kind]route
	logger Logger

	handled  metric.Int64Counter
	failed   metric.Int64Counter
	rejected metric.Int64Counter
	latency  metric.Float64Histogram
}

// New creates an empty dispatcher.
func New(logger Logger) (*Dispatcher, error) {
	d := &Dispatcher{
		routes: make(map[core.Kind]route),
		logger: logger,
	}

	m := meter()
	var err error
	if d.handled, err = m.Int64Counter("dispatcher.events.handled",
		metric.WithDescription("Events accepted by a handler")); err != nil {
		return nil, fmt.Errorf("create handled counter: %w", err)
	}
	if d.failed, err = m.Int64Counter("dispatcher.events.failed",
		metric.WithDescription("Events whose handler returned an error")); err != nil {
		return nil, fmt.Errorf("create failed counter: %w", err)
	}
	if d.rejected, err = m.Int64Counter("dispatcher.events.rejected",
		metric.WithDescription("Events with no handler for their kind")); err != nil {
		return nil, fmt.Errorf("create rejected counter: %w", err)
	}
	if d.latency, err = m.Float64Histogram("dispatcher.handler.duration",
		metric.WithDescription("Handler run time"),
		metric.WithUnit("ms")); err != nil {
		return nil, fmt.Errorf("create latency histogram: %w", err)
	}
	return d, nil
}

// Register binds h to kind.
func (d *Dispatcher) Register(kind core.Kind, h HandlerFunc, opts ...Option) error {
	if kind.IsLifecycle() {
		return fmt.Errorf("%w: %s", ErrLifecycleKind, kind)
	}
	r := route{handle: h}
	for _, opt := range opts {
		opt(&r)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.routes[kind]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateHandler, kind)
	}
	d.routes[kind] = r
	return nil
}

// Dispatch runs the handler for e and returns its error.
func (d *Dispatcher) Dispatch(e Event) error {
	kind := e.Kind()
	attrs := metric.WithAttributes(attribute.String("kind", string(kind)))

	d.mu.RLock()
	r, ok := d.routes[kind]
	d.mu.RUnlock()
	if !ok {
		d.rejected.Add(context.Background(), 1, attrs)
		return fmt.Errorf("%w: %q", ErrUnknownCommand, kind)
	}

	if r.logged {
		d.logger.Debug("dispatching", "kind", kind, "peer", e.Peer)
	}
	start := time.Now()
	err := r.handle(e)
	d.latency.Record(context.Background(), float64(time.Since(start).Microseconds())/1000, attrs)
	if err != nil {
		d.failed.Add(context.Background(), 1, attrs)
		if r.logged {
			d.logger.Error("handler failed", "kind", kind, "peer", e.Peer, "error", err)
		}
		return err
	}
	d.handled.Add(context.Background(), 1, attrs)
	return nil
}

// Kinds lists the routed kinds in lexical order.
func (d *Dispatcher) Kinds() []core.Kind {
	d.mu.RLock()
	defer d.mu.RUnlock()
	kinds := make([]core.Kind, 0, len(d.routes))
	for k := range d.routes {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}
