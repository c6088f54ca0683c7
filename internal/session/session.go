// Package session sequences the bridge: connect the link, wait for the
// ingestion method, then run exactly one pipeline until the end.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/tm-proximity/linkbridge/internal/events"
	"github.com/tm-proximity/linkbridge/internal/link"
)

// Control is a request from the host.
type Control int

const (
	TryConnectLink Control = iota
	UseSharedMemory
	UseSocketServer
	Shutdown
)

func (c Control) String() string {
	switch c {
	case TryConnectLink:
		return "TryConnectLink"
	case UseSharedMemory:
		return "UseSharedMemory"
	case UseSocketServer:
		return "UseSocketServer"
	case Shutdown:
		return "Shutdown"
	}
	return fmt.Sprintf("Control(%d)", int(c))
}

// ParseControl maps a control name, as produced by String, back to its
// value.
func ParseControl(name string) (Control, bool) {
	for c := TryConnectLink; c <= Shutdown; c++ {
		if c.String() == name {
			return c, true
		}
	}
	return 0, false
}

// State is where the coordinator is in its lifecycle. It only moves
// forward.
type State int32

const (
	AwaitingLink State = iota
	AwaitingMethodChoice
	Serving
	Terminated
)

func (s State) String() string {
	switch s {
	case AwaitingLink:
		return "AwaitingLink"
	case AwaitingMethodChoice:
		return "AwaitingMethodChoice"
	case Serving:
		return "Serving"
	case Terminated:
		return "Terminated"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

const DefaultPollInterval = 10 * time.Millisecond

// Link is the part of the link adapter the coordinator drives.
type Link interface {
	Connect(appName, description string) error
	IsConnected() bool
}

// Pipeline is an ingestion pipeline. Run blocks until ctx is done or the
// pipeline stops by itself.
type Pipeline interface {
	Run(ctx context.Context) error
}

// PipelineFunc adapts a function to Pipeline.
type PipelineFunc func(ctx context.Context) error

func (f PipelineFunc) Run(ctx context.Context) error { return f(ctx) }

// Factory builds a pipeline once its method is chosen.
type Factory func() (Pipeline, error)

// Config holds the link registration and the link wait cadence.
type Config struct {
	AppName      string
	Description  string
	PollInterval time.Duration
}

// Dependencies holds everything the coordinator talks to.
type Dependencies struct {
	Link      Link
	Outbox    events.Sender
	Socket    Factory
	Telemetry Factory
	Logger    zerolog.Logger
}

// Coordinator owns the lifecycle. Run may be called once.
type Coordinator struct {
	cfg  Config
	deps Dependencies
	log  zerolog.Logger
	id   string

	state  atomic.Int32
	method atomic.Value
}

// New creates a Coordinator in AwaitingLink.
func New(cfg Config, deps Dependencies) (*Coordinator, error) {
	if deps.Link == nil || deps.Outbox == nil || deps.Socket == nil || deps.Telemetry == nil {
		return nil, errors.New("session: link, outbox and both pipeline factories are required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	id := uuid.NewString()
	c := &Coordinator{
		cfg:  cfg,
		deps: deps,
		id:   id,
		log:  deps.Logger.With().Str("component", "session").Str("session", id).Logger(),
	}
	c.method.Store("")
	return c, nil
}

// ID identifies this run of the bridge.
func (c *Coordinator) ID() string { return c.id }

// State returns the current lifecycle state.
func (c *Coordinator) State() State { return State(c.state.Load()) }

// StateName is State as text, for status readers.
func (c *Coordinator) StateName() string { return c.State().String() }

// Method returns the chosen pipeline, "socket" or "telemetry", or "" before
// the choice.
func (c *Coordinator) Method() string { return c.method.Load().(string) }

func (c *Coordinator) setState(s State) {
	c.state.Store(int32(s))
	c.log.Info().Stringer("state", s).Msg("Session state changed")
}

// Run drives the lifecycle until the pipeline ends, a Shutdown arrives,
// inbox is closed or ctx is done. The returned error is the pipeline's, or
// ErrObserverGone when the outbox went away first.
func (c *Coordinator) Run(ctx context.Context, inbox <-chan Control) error {
	defer c.setState(Terminated)

	factory, err := c.awaitLink(ctx, inbox)
	if err != nil || factory == nil {
		return err
	}
	return c.serve(ctx, inbox, factory)
}

// awaitLink covers AwaitingLink and AwaitingMethodChoice. A nil factory
// with a nil error means terminate quietly.
func (c *Coordinator) awaitLink(ctx context.Context, inbox <-chan Control) (Factory, error) {
	if err := c.tryConnect(); err != nil {
		return nil, err
	}

	ticker := time.NewTicker(c.cfg.PollInterval)
	defer ticker.Stop()

	for c.State() == AwaitingLink {
		select {
		case <-ctx.Done():
			return nil, nil
		case <-ticker.C:
			if c.deps.Link.IsConnected() {
				c.setState(AwaitingMethodChoice)
			}
		case ctl, ok := <-inbox:
			if !ok {
				c.log.Warn().Msg("Control channel closed")
				return nil, nil
			}
			switch ctl {
			case TryConnectLink:
				if err := c.tryConnect(); err != nil {
					return nil, err
				}
			case Shutdown:
				return nil, nil
			default:
				c.log.Debug().Stringer("control", ctl).Msg("Ignored while awaiting link")
			}
		}
	}

	c.log.Info().Msg("Link connected, awaiting method choice")
	for {
		select {
		case <-ctx.Done():
			return nil, nil
		case ctl, ok := <-inbox:
			if !ok {
				c.log.Warn().Msg("Control channel closed")
				return nil, nil
			}
			switch ctl {
			case UseSocketServer:
				c.method.Store("socket")
				return c.deps.Socket, nil
			case UseSharedMemory:
				c.method.Store("telemetry")
				return c.deps.Telemetry, nil
			case Shutdown:
				return nil, nil
			default:
				c.log.Debug().Stringer("control", ctl).Msg("Ignored while awaiting method choice")
			}
		}
	}
}

// tryConnect attempts a link connection and reports the outcome. Only
// observer loss is returned.
func (c *Coordinator) tryConnect() error {
	if c.deps.Link.IsConnected() {
		c.log.Warn().Msg("Link already connected")
		if err := events.Emit(c.deps.Outbox, events.LinkError{Message: link.ErrAlreadyConnected.Error()}); err != nil {
			return err
		}
	}

	connErr := c.deps.Link.Connect(c.cfg.AppName, c.cfg.Description)
	if connErr != nil {
		c.log.Warn().Err(connErr).Msg("Link connection failed")
	}
	if c.deps.Link.IsConnected() && c.State() == AwaitingLink {
		c.setState(AwaitingMethodChoice)
	}

	if err := events.Emit(c.deps.Outbox, events.IsConnected{Connected: c.deps.Link.IsConnected()}); err != nil {
		return err
	}
	if connErr != nil {
		return events.Emit(c.deps.Outbox, events.LinkError{Message: connErr.Error()})
	}
	return nil
}

// serve runs the chosen pipeline. Shutdown, a closed inbox or ctx cancel
// stop it cooperatively.
func (c *Coordinator) serve(ctx context.Context, inbox <-chan Control, factory Factory) error {
	p, err := factory()
	if err != nil {
		return fmt.Errorf("create %s pipeline: %w", c.Method(), err)
	}

	pctx, cancel := context.WithCancel(ctx)
	defer cancel()

	c.setState(Serving)
	c.log.Info().Str("method", c.Method()).Msg("Pipeline starting")
	done := make(chan error, 1)
	go func() { done <- p.Run(pctx) }()

	for {
		select {
		case err := <-done:
			if err != nil {
				c.log.Warn().Err(err).Msg("Pipeline ended")
			} else {
				c.log.Info().Msg("Pipeline ended")
			}
			return err
		case ctl, ok := <-inbox:
			if !ok {
				c.log.Warn().Msg("Control channel closed, stopping pipeline")
				inbox = nil
				cancel()
				continue
			}
			if ctl == Shutdown {
				c.log.Info().Msg("Shutdown requested")
				cancel()
				continue
			}
			c.log.Debug().Stringer("control", ctl).Msg("Ignored while serving")
		}
	}
}
