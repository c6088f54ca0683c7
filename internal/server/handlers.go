package server

import (
	"errors"

	"github.com/tm-proximity/linkbridge/internal/codec"
	"github.com/tm-proximity/linkbridge/internal/dispatcher"
	"github.com/tm-proximity/linkbridge/internal/events"
	"github.com/tm-proximity/linkbridge/pkg/core"
)

// registerHandlers wires every game message a peer may send. Lifecycle
// kinds cannot be registered, so the dispatcher rejects them.
func (s *Server) registerHandlers() error {
	return errors.Join(
		s.router.Register(core.KindPositions, s.handlePositions),
		s.router.Register(core.KindPlayerDetails, s.handlePlayerDetails, dispatcher.Logged()),
		s.router.Register(core.KindServerDetails, s.handleServerDetails, dispatcher.Logged()),
		s.router.Register(core.KindLeftServer, s.handleLeftServer, dispatcher.Logged()),
		s.router.Register(core.KindPing, s.handlePing),
	)
}

func (s *Server) handlePositions(e dispatcher.Event) error {
	pos := e.Message.(core.Positions)
	if err := s.deps.Link.Update(pos.P, pos.C); err != nil {
		s.sampled.Error().Err(err).Msg("Failed to update link positions")
	}
	return s.forward(pos)
}

func (s *Server) handlePlayerDetails(e dispatcher.Event) error {
	d := e.Message.(core.PlayerDetails)
	s.deps.Details.SetPlayer(d.Name, d.Login)
	return s.forward(d)
}

func (s *Server) handleServerDetails(e dispatcher.Event) error {
	d := e.Message.(core.ServerDetails)
	s.deps.Details.SetServer(d.Server, d.Team)
	s.push()
	return s.forward(d)
}

func (s *Server) handleLeftServer(e dispatcher.Event) error {
	s.deps.Details.ClearServer()
	s.push()
	return s.forward(e.Message)
}

func (s *Server) handlePing(e dispatcher.Event) error {
	if p := s.lookupPeer(e.Peer); p != nil {
		if err := s.reply(p, codec.PingReply{}); err != nil {
			s.log.Warn().Err(err).Str("peer", p.addr).Msg("Failed to answer ping")
		}
	}
	s.push()
	return s.forward(e.Message)
}

// push re-applies identity and context from the current details. Link
// failures are logged, never fatal.
func (s *Server) push() {
	id, ctx, err := s.policy.Push(s.deps.Link, s.deps.Details.Snapshot())
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to push identity and context")
		return
	}
	s.log.Debug().Str("identity", id).Str("context", ctx).Msg("Pushed identity and context")
}

// forward sends a game message outward while the observer is visible.
func (s *Server) forward(msg core.Event) error {
	if !s.deps.Visibility.Visible() {
		return nil
	}
	return events.Emit(s.deps.Outbox, events.Game{Event: msg})
}
