// Package server accepts game plugin connections over framed TCP and feeds
// their messages into the link.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/tm-proximity/linkbridge/internal/codec"
	"github.com/tm-proximity/linkbridge/internal/dispatcher"
	"github.com/tm-proximity/linkbridge/internal/events"
	"github.com/tm-proximity/linkbridge/internal/identity"
	"github.com/tm-proximity/linkbridge/internal/logging"
	"github.com/tm-proximity/linkbridge/pkg/core"
)

const (
	DefaultHost = "127.0.0.1"
	DefaultPort = 46323

	writeWait = 10 * time.Second
)

// Link is the part of the link adapter the server drives.
type Link interface {
	IsConnected() bool
	Update(player, camera core.Position) error
	identity.Pusher
}

// Config holds listener settings.
type Config struct {
	Host    string
	Port    int
	Version string

	// ObfuscateServer hashes the server id before it enters the context.
	ObfuscateServer bool
}

// Addr returns host:port with defaults applied.
func (c Config) Addr() string {
	host, port := c.Host, c.Port
	if host == "" {
		host = DefaultHost
	}
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}

// Dependencies holds everything the server talks to.
type Dependencies struct {
	Link       Link
	Details    *identity.Context
	Outbox     events.Sender
	Visibility events.Visibility
	Logger     zerolog.Logger
}

type netKind int

const (
	netAccepted netKind = iota
	netMessage
	netDisconnected
)

type netEvent struct {
	kind netKind
	peer *peer
	data []byte
}

type peer struct {
	id   string
	addr string
	conn net.Conn

	writeMu sync.Mutex
}

// Server is the socket ingestion pipeline. Network reads happen on one
// goroutine per connection; every resulting event is handled on the single
// goroutine running Serve.
type Server struct {
	cfg     Config
	deps    Dependencies
	policy  identity.Policy
	log     zerolog.Logger
	sampled zerolog.Logger
	router  *dispatcher.Dispatcher

	netEvents chan netEvent

	mu       sync.Mutex
	listener net.Listener
	peers    map[string]*peer
	last     *peer

	wg       sync.WaitGroup
	done     chan struct{}
	stopOnce sync.Once

	framesDecoded metric.Int64Counter
	frameErrors   metric.Int64Counter
}

// New creates a Server. Nothing is bound until Run or Serve.
func New(cfg Config, deps Dependencies) (*Server, error) {
	if deps.Link == nil || deps.Details == nil || deps.Outbox == nil {
		return nil, errors.New("server: link, details and outbox are required")
	}
	if deps.Visibility == nil {
		deps.Visibility = events.NewFlag(true)
	}

	log := deps.Logger.With().Str("component", "server").Logger()
	s := &Server{
		cfg:       cfg,
		deps:      deps,
		policy:    identity.Policy{ObfuscateServer: cfg.ObfuscateServer},
		log:       log,
		sampled:   logging.Sampled(log),
		netEvents: make(chan netEvent, 64),
		peers:     make(map[string]*peer),
		done:      make(chan struct{}),
	}

	var err error
	s.router, err = dispatcher.New(logging.NewDispatcherLogger(log))
	if err != nil {
		return nil, fmt.Errorf("create dispatcher: %w", err)
	}
	if err := s.registerHandlers(); err != nil {
		return nil, fmt.Errorf("register handlers: %w", err)
	}

	m := meter()
	s.framesDecoded, err = m.Int64Counter("server.frames.decoded",
		metric.WithDescription("Frames decoded from game clients"))
	if err != nil {
		return nil, fmt.Errorf("create frames counter: %w", err)
	}
	s.frameErrors, err = m.Int64Counter("server.frames.errors",
		metric.WithDescription("Frames that failed to decode"))
	if err != nil {
		return nil, fmt.Errorf("create frame errors counter: %w", err)
	}
	return s, nil
}

// Run binds the configured address and serves until ctx is done or the
// server shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.cfg.Addr(), err)
	}
	return s.Serve(ctx, ln)
}

// Serve takes ownership of ln. It returns nil after an orderly shutdown and
// ErrObserverGone when the outbox went away.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	select {
	case <-s.done:
		_ = ln.Close()
		return nil
	default:
	}

	host, portStr, _ := net.SplitHostPort(ln.Addr().String())
	port, _ := strconv.Atoi(portStr)
	s.log.Info().Str("host", host).Int("port", port).Msg("Listening")

	var exitErr error
	if err := events.Emit(s.deps.Outbox, events.ListeningOn{Host: host, Port: port}); err != nil {
		exitErr = err
		s.Shutdown()
	}

	s.wg.Add(1)
	go s.acceptLoop(ln)

	for exitErr == nil {
		select {
		case <-ctx.Done():
			s.Shutdown()
		case <-s.done:
		case ev := <-s.netEvents:
			if err := s.handle(ev); err != nil {
				s.log.Warn().Err(err).Msg("Observer gone, shutting down")
				exitErr = err
				s.Shutdown()
			}
			continue
		}
		break
	}

	s.wg.Wait()
	s.log.Info().Msg("Server terminated")
	return exitErr
}

// Shutdown tells the most recent peer to disconnect, then closes the
// listener and all connections. It is safe to call more than once and from
// any goroutine.
func (s *Server) Shutdown() {
	s.stopOnce.Do(func() {
		close(s.done)

		s.mu.Lock()
		last := s.last
		ln := s.listener
		peers := make([]*peer, 0, len(s.peers))
		for _, p := range s.peers {
			peers = append(peers, p)
		}
		s.mu.Unlock()

		if last != nil {
			if err := s.reply(last, codec.ShutdownNow{}); err != nil {
				s.log.Debug().Err(err).Msg("Failed to send shutdown notice")
			}
		}
		if ln != nil {
			_ = ln.Close()
		}
		for _, p := range peers {
			_ = p.conn.Close()
		}
	})
}

// Done is closed once Shutdown has started.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

// Addr returns the bound address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) acceptLoop(ln net.Listener) {
	defer s.wg.Done()
	for {
		conn, err := ln.Accept()
		if err != nil {
			select {
			case <-s.done:
			default:
				s.log.Error().Err(err).Msg("Accept failed")
				s.Shutdown()
			}
			return
		}

		p := &peer{id: uuid.NewString(), addr: conn.RemoteAddr().String(), conn: conn}
		if !s.register(p) || !s.post(netEvent{kind: netAccepted, peer: p}) {
			_ = conn.Close()
			return
		}
		s.wg.Add(1)
		go s.readLoop(p)
	}
}

func (s *Server) readLoop(p *peer) {
	defer s.wg.Done()
	r := codec.NewFrameReader(p.conn)
	for {
		data, err := r.ReadFrame()
		if err != nil {
			s.log.Debug().Err(err).Str("peer", p.addr).Msg("Connection read ended")
			s.post(netEvent{kind: netDisconnected, peer: p})
			return
		}
		if !s.post(netEvent{kind: netMessage, peer: p, data: data}) {
			return
		}
	}
}

// register tracks p so Shutdown can close it. It reports false once the
// server is shutting down.
func (s *Server) register(p *peer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	select {
	case <-s.done:
		return false
	default:
	}
	s.peers[p.id] = p
	return true
}

// post hands ev to the processing loop. It reports false once the server
// is shutting down.
func (s *Server) post(ev netEvent) bool {
	select {
	case s.netEvents <- ev:
		return true
	case <-s.done:
		return false
	}
}

func (s *Server) reply(p *peer, r codec.Reply) error {
	data, err := codec.EncodeReply(r)
	if err != nil {
		return err
	}
	p.writeMu.Lock()
	defer p.writeMu.Unlock()
	_ = p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return codec.WriteFrame(p.conn, data)
}

func (s *Server) lookupPeer(id string) *peer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peers[id]
}

// handle processes one network event. Only observer loss is returned.
func (s *Server) handle(ev netEvent) error {
	switch ev.kind {
	case netAccepted:
		return s.onAccepted(ev.peer)
	case netDisconnected:
		return s.onDisconnected(ev.peer)
	default:
		return s.onMessage(ev.peer, ev.data)
	}
}

func (s *Server) onAccepted(p *peer) error {
	s.mu.Lock()
	s.last = p
	s.mu.Unlock()

	s.log.Info().Str("peer", p.addr).Str("id", p.id).Msg("Client accepted")
	if err := events.Emit(s.deps.Outbox, events.Game{Event: core.NetAccepted{Addr: p.addr}}); err != nil {
		return err
	}

	if err := s.reply(p, codec.LinkAppInfo{Version: s.cfg.Version}); err != nil {
		s.log.Warn().Err(err).Str("peer", p.addr).Msg("Failed to send app info")
	}
	if err := s.reply(p, codec.ConnectedStatus(s.deps.Link.IsConnected())); err != nil {
		s.log.Warn().Err(err).Str("peer", p.addr).Msg("Failed to send link status")
	}
	return nil
}

func (s *Server) onDisconnected(p *peer) error {
	s.mu.Lock()
	delete(s.peers, p.id)
	s.mu.Unlock()
	_ = p.conn.Close()

	s.log.Info().Str("peer", p.addr).Msg("Client disconnected")
	s.deps.Details.ClearServer()
	s.push()

	if err := events.Emit(s.deps.Outbox, events.Game{Event: core.LeftServer{}}); err != nil {
		return err
	}
	return events.Emit(s.deps.Outbox, events.Game{Event: core.NetDisconnected{Addr: p.addr}})
}

func (s *Server) onMessage(p *peer, data []byte) error {
	s.mu.Lock()
	s.last = p
	s.mu.Unlock()

	if !codec.IsPositionFrame(data) {
		s.log.Info().Str("peer", p.addr).Bytes("raw", data).Int("len", len(data)).Msg("Received")
	}

	msg, err := codec.DecodeFrame(data)
	if err != nil {
		s.frameErrors.Add(context.Background(), 1)
		s.log.Warn().Err(err).Str("peer", p.addr).Msg("Error parsing message")
		return events.Emit(s.deps.Outbox, events.ProtocolError{Message: err.Error()})
	}
	s.framesDecoded.Add(context.Background(), 1, metric.WithAttributes(attribute.String("kind", string(msg.Kind()))))

	err = s.router.Dispatch(dispatcher.Event{Message: msg, Peer: p.id, Timestamp: time.Now()})
	if errors.Is(err, dispatcher.ErrUnknownCommand) {
		s.log.Warn().Str("kind", string(msg.Kind())).Msg("Unexpected message")
		return events.Emit(s.deps.Outbox, events.ProtocolError{Message: fmt.Sprintf("unexpected message: %s", msg.Kind())})
	}
	return err
}
