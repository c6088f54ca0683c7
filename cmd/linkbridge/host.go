package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/tm-proximity/linkbridge/internal/events"
	"github.com/tm-proximity/linkbridge/internal/session"
)

const hostTick = 50 * time.Millisecond

// parseMethod maps the method setting to the control that selects it.
// Empty means the observer chooses.
func parseMethod(method string) (session.Control, bool, error) {
	switch method {
	case "":
		return 0, false, nil
	case "socket":
		return session.UseSocketServer, true, nil
	case "telemetry":
		return session.UseSharedMemory, true, nil
	}
	return 0, false, fmt.Errorf("unknown method %q, want socket or telemetry", method)
}

type stateSource interface {
	State() session.State
}

// hostLoop plays the part of the status window: it retries the link every
// retry while the coordinator waits for it, then sends the configured
// method once. A zero retry disables retries.
func hostLoop(ctx context.Context, coord stateSource, inbox chan<- session.Control, method session.Control, hasMethod bool, retry time.Duration) {
	ticker := time.NewTicker(hostTick)
	defer ticker.Stop()

	lastRetry := time.Now()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			switch coord.State() {
			case session.AwaitingLink:
				if retry > 0 && now.Sub(lastRetry) >= retry {
					lastRetry = now
					trySend(inbox, session.TryConnectLink)
				}
			case session.AwaitingMethodChoice:
				if hasMethod {
					trySend(inbox, method)
					return
				}
			default:
				return
			}
		}
	}
}

// awaitShutdown keeps a terminated bridge up so the observer and status
// file can still report why the pipeline stopped. It returns on ctx, a
// Shutdown control or a closed inbox; other controls are ignored.
func awaitShutdown(ctx context.Context, log zerolog.Logger, inbox <-chan session.Control) {
	for {
		select {
		case <-ctx.Done():
			return
		case ctl, ok := <-inbox:
			if !ok || ctl == session.Shutdown {
				return
			}
			log.Debug().Stringer("control", ctl).Msg("Ignoring control, pipeline has terminated")
		}
	}
}

func trySend(inbox chan<- session.Control, c session.Control) {
	select {
	case inbox <- c:
	default:
	}
}

// drainToLog is the observer when no feed is configured.
func drainToLog(ctx context.Context, log zerolog.Logger, rx <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-rx:
			if !ok {
				return
			}
			logEvent(log, ev)
		}
	}
}

func logEvent(log zerolog.Logger, ev events.Event) {
	switch e := ev.(type) {
	case events.Game:
		log.Trace().Str("kind", string(e.Event.Kind())).Interface("event", e.Event).Msg("Game event")
	case events.Telemetry:
		log.Trace().Stringer("snapshot", e.Snapshot).Msg("Telemetry")
	case events.LinkError:
		log.Warn().Str("error", e.Message).Msg("Link error")
	case events.ProtocolError:
		log.Warn().Str("error", e.Message).Msg("Protocol error")
	case events.TelemetryError:
		log.Error().Str("error", e.Message).Msg("Telemetry error")
	default:
		log.Info().Str("type", ev.Type()).Interface("event", ev).Msg("Event")
	}
}
