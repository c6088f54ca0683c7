package feed

import (
	"encoding/json"

	"github.com/tm-proximity/linkbridge/internal/telemetry"
)

// Outbound message types.
const (
	TypeHello          = "hello"
	TypeIsConnected    = "is_connected"
	TypeLinkError      = "link_error"
	TypeListeningOn    = "listening_on"
	TypeProtocolError  = "protocol_error"
	TypeTelemetryError = "telemetry_error"
	TypeGame           = "game"
	TypeTelemetry      = "telemetry"
)

// Inbound message types.
const (
	TypeVisibility = "visibility"
	TypeControl    = "control"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Session string          `json:"session"`
	Payload json.RawMessage `json:"payload"`
}

// HelloPayload is sent after every (re)connect.
type HelloPayload struct {
	Version string `json:"version"`
}

// InboundMessage is what the observer may send back. Visible is set for
// visibility messages, Command for control messages.
type InboundMessage struct {
	Type    string `json:"type"`
	Visible *bool  `json:"visible,omitempty"`
	Command string `json:"command,omitempty"`
}

// TelemetryPayload is the display subset of a snapshot.
type TelemetryPayload struct {
	UpdateNumber uint32     `json:"updateNumber"`
	GameState    uint32     `json:"gameState"`
	MapID        string     `json:"mapId"`
	MapName      string     `json:"mapName"`
	PlayerName   string     `json:"playerName"`
	IsLocal      bool       `json:"isLocal"`
	RaceState    uint32     `json:"raceState"`
	RaceTime     uint32     `json:"raceTime"`
	Checkpoints  []uint32   `json:"checkpoints"`
	Position     [3]float32 `json:"position"`
	Speed        uint32     `json:"speed"`
	Gear         int32      `json:"gear"`
}

func newTelemetryPayload(s telemetry.Snapshot) TelemetryPayload {
	t := s.Object.Translation
	return TelemetryPayload{
		UpdateNumber: s.UpdateNumber,
		GameState:    s.Game.State,
		MapID:        s.MapID(),
		MapName:      s.MapName(),
		PlayerName:   s.PlayerName(),
		IsLocal:      s.IsLocalPlayer(),
		RaceState:    s.Race.State,
		RaceTime:     s.Race.Time,
		Checkpoints:  s.Checkpoints(),
		Position:     [3]float32{t.X, t.Y, t.Z},
		Speed:        s.Vehicle.SpeedMeter,
		Gear:         s.Vehicle.EngineCurGear,
	}
}
