// Package feed streams outward events to an external observer over a
// WebSocket and relays the observer's visibility and control requests.
package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tm-proximity/linkbridge/internal/codec"
	"github.com/tm-proximity/linkbridge/internal/events"
	"github.com/tm-proximity/linkbridge/internal/session"
)

// Config holds WebSocket feed configuration.
type Config struct {
	URL     string
	Secret  string
	Version string
}

// Dependencies are optional hooks into the rest of the bridge. Visibility
// follows the connection state and inbound visibility messages; Controls
// receives inbound control commands.
type Dependencies struct {
	SessionID  string
	Visibility *events.Flag
	Controls   chan<- session.Control
	Logger     zerolog.Logger
}

// Feed forwards outward events to a WebSocket observer.
type Feed struct {
	cfg  Config
	deps Dependencies
	sock *socket
	log  zerolog.Logger

	sent metric.Int64Counter
}

// New creates a Feed. Nothing is dialled until Init.
func New(cfg Config, deps Dependencies) (*Feed, error) {
	if cfg.URL == "" {
		return nil, errors.New("feed: url is required")
	}
	log := deps.Logger.With().Str("component", "feed").Logger()
	f := &Feed{
		cfg:  cfg,
		deps: deps,
		sock: newSocket(log),
		log:  log,
	}

	hello, err := marshalEnvelope(TypeHello, deps.SessionID, HelloPayload{Version: cfg.Version})
	if err != nil {
		return nil, err
	}
	f.sock.hello = hello
	f.sock.onState = f.onState
	f.sock.onMessage = f.onMessage

	f.sent, err = meter().Int64Counter("feed.messages.sent",
		metric.WithDescription("Events queued for the WebSocket observer"))
	if err != nil {
		return nil, fmt.Errorf("create sent counter: %w", err)
	}
	return f, nil
}

// Init connects to the WebSocket server.
func (f *Feed) Init() error {
	return f.sock.open(f.cfg.URL, f.cfg.Secret)
}

// Close disconnects from the WebSocket server.
func (f *Feed) Close() error {
	return f.sock.close()
}

// Forward queues ev for the observer. Delivery is fire-and-forget.
func (f *Feed) Forward(ev events.Event) error {
	data, err := MarshalEvent(f.deps.SessionID, ev)
	if err != nil {
		return err
	}
	f.sock.enqueue(data)
	f.sent.Add(context.Background(), 1, metric.WithAttributes(attribute.String("type", ev.Type())))
	return nil
}

// Run forwards everything received on rx until it is closed or ctx is
// done.
func (f *Feed) Run(ctx context.Context, rx <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-rx:
			if !ok {
				return
			}
			if err := f.Forward(ev); err != nil {
				f.log.Warn().Err(err).Str("type", ev.Type()).Msg("Failed to encode event")
			}
		}
	}
}

func (f *Feed) onState(connected bool) {
	f.log.Info().Bool("connected", connected).Msg("Observer connection changed")
	if f.deps.Visibility != nil {
		f.deps.Visibility.SetVisible(connected)
	}
}

func (f *Feed) onMessage(msg InboundMessage) {
	switch msg.Type {
	case TypeVisibility:
		if msg.Visible != nil && f.deps.Visibility != nil {
			f.deps.Visibility.SetVisible(*msg.Visible)
		}
	case TypeControl:
		ctl, ok := session.ParseControl(msg.Command)
		if !ok {
			f.log.Warn().Str("command", msg.Command).Msg("Unknown control command")
			return
		}
		if f.deps.Controls == nil {
			return
		}
		select {
		case f.deps.Controls <- ctl:
		default:
			f.log.Warn().Stringer("control", ctl).Msg("Control channel full, dropping")
		}
	default:
		f.log.Debug().Str("type", msg.Type).Msg("Ignoring message")
	}
}

// MarshalEvent encodes ev as a feed envelope. Game messages keep their
// wire envelope as the payload.
func MarshalEvent(sessionID string, ev events.Event) ([]byte, error) {
	switch e := ev.(type) {
	case events.IsConnected:
		return marshalEnvelope(TypeIsConnected, sessionID, e)
	case events.LinkError:
		return marshalEnvelope(TypeLinkError, sessionID, e)
	case events.ListeningOn:
		return marshalEnvelope(TypeListeningOn, sessionID, e)
	case events.ProtocolError:
		return marshalEnvelope(TypeProtocolError, sessionID, e)
	case events.TelemetryError:
		return marshalEnvelope(TypeTelemetryError, sessionID, e)
	case events.Game:
		raw, err := codec.MarshalEvent(e.Event)
		if err != nil {
			return nil, err
		}
		return marshalEnvelope(TypeGame, sessionID, json.RawMessage(raw))
	case events.Telemetry:
		return marshalEnvelope(TypeTelemetry, sessionID, newTelemetryPayload(e.Snapshot))
	}
	return nil, fmt.Errorf("cannot encode event %T", ev)
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType, sessionID string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := Envelope{Type: msgType, Session: sessionID, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}
