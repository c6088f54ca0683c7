// pkg/core/events.go
package core

// Kind names a game message variant. The names double as the single
// top-level key of the JSON envelope.
type Kind string

const (
	KindNetConnected    Kind = "NetConnected"
	KindNetAccepted     Kind = "NetAccepted"
	KindNetDisconnected Kind = "NetDisconnected"
	KindPositions       Kind = "Positions"
	KindPlayerDetails   Kind = "PlayerDetails"
	KindServerDetails   Kind = "ServerDetails"
	KindLeftServer      Kind = "LeftServer"
	KindPing            Kind = "Ping"
)

// Event is anything an ingestion pipeline can produce. The set of
// implementations is closed: only the types in this file satisfy it.
type Event interface {
	Kind() Kind
	event()
}

// NetConnected is part of the wire schema only so a peer sending it can be
// rejected; the bridge never produces it.
type NetConnected struct {
	Addr string
	OK   bool
}

// NetAccepted is emitted when a game client connects.
type NetAccepted struct {
	Addr string
}

// NetDisconnected is emitted when a game client goes away.
type NetDisconnected struct {
	Addr string
}

// Positions carries the player and camera transforms of one frame.
type Positions struct {
	P Position `json:"p"`
	C Position `json:"c"`
}

// PlayerDetails identifies the local player.
type PlayerDetails struct {
	Name  string
	Login string
}

// ServerDetails identifies the server (or map) and team the player is in.
type ServerDetails struct {
	Server string
	Team   string
}

// LeftServer means the player is no longer on a server.
type LeftServer struct{}

// Ping is a liveness heartbeat from the game client.
type Ping struct{}

func (NetConnected) Kind() Kind    { return KindNetConnected }
func (NetAccepted) Kind() Kind     { return KindNetAccepted }
func (NetDisconnected) Kind() Kind { return KindNetDisconnected }
func (Positions) Kind() Kind       { return KindPositions }
func (PlayerDetails) Kind() Kind   { return KindPlayerDetails }
func (ServerDetails) Kind() Kind   { return KindServerDetails }
func (LeftServer) Kind() Kind      { return KindLeftServer }
func (Ping) Kind() Kind            { return KindPing }

func (NetConnected) event()    {}
func (NetAccepted) event()     {}
func (NetDisconnected) event() {}
func (Positions) event()       {}
func (PlayerDetails) event()   {}
func (ServerDetails) event()   {}
func (LeftServer) event()      {}
func (Ping) event()            {}

// IsLifecycle reports whether k describes socket lifecycle. Lifecycle
// variants are produced locally and must never arrive from a peer.
func (k Kind) IsLifecycle() bool {
	switch k {
	case KindNetConnected, KindNetAccepted, KindNetDisconnected:
		return true
	}
	return false
}
