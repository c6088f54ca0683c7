// Package events defines what the bridge reports to its observer and the
// outbox those reports travel through.
package events

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/tm-proximity/linkbridge/internal/channel"
	"github.com/tm-proximity/linkbridge/internal/telemetry"
	"github.com/tm-proximity/linkbridge/pkg/core"
)

// ErrObserverGone is returned when the outbox refuses an event. Pipelines
// treat it as a shutdown request.
var ErrObserverGone = errors.New("observer gone")

// Event is an outward notification.
type Event interface {
	Type() string
}

// IsConnected reports the link connection state after a connect attempt.
type IsConnected struct {
	Connected bool `json:"connected"`
}

// LinkError carries a link connection failure.
type LinkError struct {
	Message string `json:"message"`
}

// ListeningOn is sent once the socket server is bound.
type ListeningOn struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// ProtocolError reports a frame that could not be decoded or was not
// expected.
type ProtocolError struct {
	Message string `json:"message"`
}

// TelemetryError reports the fatal read error that stopped polling.
type TelemetryError struct {
	Message string `json:"message"`
}

// Game wraps a decoded or synthesized game message.
type Game struct {
	Event core.Event `json:"event"`
}

// Telemetry carries a raw snapshot for display.
type Telemetry struct {
	Snapshot telemetry.Snapshot `json:"snapshot"`
}

func (IsConnected) Type() string    { return "IsConnected" }
func (LinkError) Type() string      { return "LinkError" }
func (ListeningOn) Type() string    { return "ListeningOn" }
func (ProtocolError) Type() string  { return "ProtocolError" }
func (TelemetryError) Type() string { return "TelemetryError" }
func (Game) Type() string           { return "Game" }
func (Telemetry) Type() string      { return "Telemetry" }

// Sender is the write side of the outbox.
type Sender = channel.Sender[Event]

// Outbox is the ordered channel of outward events.
type Outbox = channel.Channel[Event]

// NewOutbox creates an outbox holding up to size undelivered events.
func NewOutbox(size int) Outbox {
	return channel.New[Event](size)
}

// Emit sends ev, mapping any refusal to ErrObserverGone.
func Emit(s Sender, ev Event) error {
	if err := s.Send(ev); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrObserverGone, ev.Type(), err)
	}
	return nil
}

// Visibility gates high-rate forwarding to an observer that may be hidden.
type Visibility interface {
	Visible() bool
}

// Flag is a settable Visibility.
type Flag struct {
	v atomic.Bool
}

// NewFlag returns a Flag set to visible.
func NewFlag(visible bool) *Flag {
	f := &Flag{}
	f.v.Store(visible)
	return f
}

func (f *Flag) Visible() bool { return f.v.Load() }

func (f *Flag) SetVisible(visible bool) { f.v.Store(visible) }
