// Package telemetry decodes the ManiaPlanet_Telemetry shared memory block.
package telemetry

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

const (
	// Magic is the header signature of a valid block.
	Magic = "ManiaPlanet_Telemetry"

	// Version is the only layout version understood here.
	Version = 3

	// Size is the byte size of the block.
	Size = 1696
)

// ErrInvalidHeader is returned by Validate.
var ErrInvalidHeader = errors.New("invalid telemetry header")

// Game states.
const (
	GameStarting uint32 = iota
	GameMenus
	GameRunning
	GamePaused
)

// Race states.
const (
	RaceBeforeStart uint32 = iota
	RaceRunning
	RaceFinished
)

type Vec3 struct {
	X, Y, Z float32
}

type Quat struct {
	W, X, Y, Z float32
}

type Header struct {
	Magic   [32]byte
	Version uint32
	Size    uint32
}

type GameState struct {
	State           uint32
	GameplayVariant [64]byte
	MapID           [64]byte
	MapName         [256]byte
	_               [128]byte
}

type RaceState struct {
	State               uint32
	Time                uint32
	NbRespawns          uint32
	NbCheckpoints       uint32
	CheckpointTimes     [125]uint32
	NbCheckpointsPerLap uint32
	NbLapsPerRace       uint32
	Timestamp           uint32
	StartTimestamp      uint32
	_                   [16]byte
}

// ObjectState is the player's car. Translation axes: +X left, +Y up, +Z
// front.
type ObjectState struct {
	Timestamp                     uint32
	DiscontinuityCount            uint32
	Rotation                      Quat
	Translation                   Vec3
	Velocity                      Vec3
	LatestStableGroundContactTime uint32
	_                             [32]byte
}

type VehicleState struct {
	Timestamp             uint32
	InputSteer            float32
	InputGasPedal         float32
	InputIsBraking        uint32
	InputIsHorn           uint32
	EngineRpm             float32
	EngineCurGear         int32
	EngineTurboRatio      float32
	EngineFreeWheeling    uint32
	WheelsIsGroundContact [4]uint32
	WheelsIsSliping       [4]uint32
	WheelsDamperLen       [4]float32
	WheelsDamperRangeMin  float32
	WheelsDamperRangeMax  float32
	RumbleIntensity       float32
	SpeedMeter            uint32
	IsInWater             uint32
	IsSparkling           uint32
	IsLightTrails         uint32
	IsLightsOn            uint32
	IsFlying              uint32
	IsOnIce               uint32
	Handicap              uint32
	BoostRatio            float32
	_                     [20]byte
}

type DeviceState struct {
	Euler            Vec3
	CenteredYaw      float32
	CenteredAltitude float32
	_                [32]byte
}

type PlayerState struct {
	IsLocalPlayer uint32
	Trigram       [4]byte
	DossardNumber [4]byte
	Hue           float32
	UserName      [256]byte
	_             [28]byte
}

// Snapshot is an owned copy of the block.
type Snapshot struct {
	Header       Header
	UpdateNumber uint32
	Game         GameState
	Race         RaceState
	Object       ObjectState
	Vehicle      VehicleState
	Device       DeviceState
	Player       PlayerState
}

// Decode parses a little-endian block. It does not validate the header.
func Decode(data []byte) (Snapshot, error) {
	var s Snapshot
	if len(data) < Size {
		return s, fmt.Errorf("telemetry block is %d bytes, want %d", len(data), Size)
	}
	if err := binary.Read(bytes.NewReader(data[:Size]), binary.LittleEndian, &s); err != nil {
		return s, fmt.Errorf("decode telemetry: %w", err)
	}
	return s, nil
}

// Encode is the inverse of Decode.
func Encode(s Snapshot) []byte {
	var buf bytes.Buffer
	buf.Grow(Size)
	_ = binary.Write(&buf, binary.LittleEndian, &s)
	return buf.Bytes()
}

// Validate checks magic, version and size before the rest of the snapshot
// is trusted.
func (s Snapshot) Validate() error {
	if magic := CString(s.Header.Magic[:]); magic != Magic {
		return fmt.Errorf("%w: magic %q", ErrInvalidHeader, magic)
	}
	if s.Header.Version != Version {
		return fmt.Errorf("%w: version %d", ErrInvalidHeader, s.Header.Version)
	}
	if s.Header.Size != Size {
		return fmt.Errorf("%w: size %d", ErrInvalidHeader, s.Header.Size)
	}
	return nil
}

// MapID returns the map uid.
func (s Snapshot) MapID() string { return CString(s.Game.MapID[:]) }

// MapName returns the display name of the map.
func (s Snapshot) MapName() string { return CString(s.Game.MapName[:]) }

// PlayerName returns the local player's user name.
func (s Snapshot) PlayerName() string { return CString(s.Player.UserName[:]) }

// IsLocalPlayer reports whether the object is the locally controlled car
// rather than a spectated player or replay.
func (s Snapshot) IsLocalPlayer() bool { return s.Player.IsLocalPlayer != 0 }

// Checkpoints returns the recorded checkpoint times.
func (s Snapshot) Checkpoints() []uint32 {
	n := min(int(s.Race.NbCheckpoints), len(s.Race.CheckpointTimes))
	return s.Race.CheckpointTimes[:n]
}

// String renders a compact human-readable summary.
func (s Snapshot) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "update=%d game=%d map=%q (%s) player=%q local=%t",
		s.UpdateNumber, s.Game.State, s.MapName(), s.MapID(), s.PlayerName(), s.IsLocalPlayer())
	fmt.Fprintf(&b, " race=%d time=%d cps=%v", s.Race.State, s.Race.Time, s.Checkpoints())
	o := s.Object
	fmt.Fprintf(&b, " pos=<%.3f, %.3f, %.3f> rot=<%.3f, %.3f, %.3f, %.3f> ts=%d",
		o.Translation.X, o.Translation.Y, o.Translation.Z,
		o.Rotation.W, o.Rotation.X, o.Rotation.Y, o.Rotation.Z, o.Timestamp)
	fmt.Fprintf(&b, " speed=%d gear=%d rpm=%.0f", s.Vehicle.SpeedMeter, s.Vehicle.EngineCurGear, s.Vehicle.EngineRpm)
	return b.String()
}

// CString reads a NUL-terminated byte array. Invalid UTF-8 is replaced
// rather than rejected.
func CString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.ToValidUTF8(string(b), "�")
}
