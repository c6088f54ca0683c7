package telemetry

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	var s Snapshot
	copy(s.Header.Magic[:], Magic)
	s.Header.Version = Version
	s.Header.Size = Size
	s.UpdateNumber = 42
	s.Game.State = GameRunning
	copy(s.Game.MapID[:], "ZJw8ZFHRmmx2Wd1hW_RRTfeMJu8")
	copy(s.Game.MapName[:], "Spring 2024 - 01")
	s.Race.State = RaceRunning
	s.Race.NbCheckpoints = 2
	s.Race.CheckpointTimes[0] = 1200
	s.Race.CheckpointTimes[1] = 3400
	s.Object.Timestamp = 99
	s.Object.Rotation = Quat{W: 1}
	s.Object.Translation = Vec3{X: 32, Y: 64, Z: 96}
	s.Vehicle.SpeedMeter = 250
	s.Vehicle.EngineCurGear = 4
	s.Player.IsLocalPlayer = 1
	copy(s.Player.UserName[:], "Alice")
	return s
}

func TestEncode_Size(t *testing.T) {
	assert.Len(t, Encode(Snapshot{}), Size)
	assert.Equal(t, 40, binary.Size(Header{}))
	assert.Equal(t, 516, binary.Size(GameState{}))
	assert.Equal(t, 548, binary.Size(RaceState{}))
	assert.Equal(t, 84, binary.Size(ObjectState{}))
	assert.Equal(t, 152, binary.Size(VehicleState{}))
	assert.Equal(t, 52, binary.Size(DeviceState{}))
	assert.Equal(t, 300, binary.Size(PlayerState{}))
}

func TestDecode_RoundTrip(t *testing.T) {
	want := sampleSnapshot()
	data := Encode(want)

	got, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	require.NoError(t, got.Validate())

	assert.Equal(t, "ZJw8ZFHRmmx2Wd1hW_RRTfeMJu8", got.MapID())
	assert.Equal(t, "Spring 2024 - 01", got.MapName())
	assert.Equal(t, "Alice", got.PlayerName())
	assert.True(t, got.IsLocalPlayer())
	assert.Equal(t, []uint32{1200, 3400}, got.Checkpoints())
}

func TestDecode_FieldOffsets(t *testing.T) {
	data := Encode(sampleSnapshot())

	assert.Equal(t, uint32(42), binary.LittleEndian.Uint32(data[40:]))
	// Object starts after header, update number, game and race.
	objOff := 40 + 4 + 516 + 548
	assert.Equal(t, uint32(99), binary.LittleEndian.Uint32(data[objOff:]))
	// Player is the last block.
	assert.Equal(t, uint32(1), binary.LittleEndian.Uint32(data[Size-300:]))
	assert.Equal(t, byte('A'), data[Size-300+16])
}

func TestDecode_Short(t *testing.T) {
	_, err := Decode(make([]byte, Size-1))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
	}{
		{"magic", func(s *Snapshot) { s.Header.Magic = [32]byte{} }},
		{"version", func(s *Snapshot) { s.Header.Version = 2 }},
		{"size", func(s *Snapshot) { s.Header.Size = 100 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleSnapshot()
			tt.mutate(&s)
			assert.ErrorIs(t, s.Validate(), ErrInvalidHeader)
		})
	}
}

func TestBytesReader(t *testing.T) {
	s, err := (&BytesReader{Data: Encode(sampleSnapshot())}).Read()
	require.NoError(t, err)
	assert.Equal(t, uint32(42), s.UpdateNumber)

	_, err = (&BytesReader{Data: Encode(Snapshot{})}).Read()
	var rerr *ReadError
	require.True(t, errors.As(err, &rerr))
	assert.Equal(t, "validate", rerr.Op)
	assert.ErrorIs(t, err, ErrInvalidHeader)
}

func TestRegionReader_Missing(t *testing.T) {
	r := NewRegionReader("linkbridge-test-region-that-does-not-exist")
	_, err := r.Read()
	var rerr *ReadError
	assert.True(t, errors.As(err, &rerr))

	assert.Equal(t, DefaultRegionName, NewRegionReader("").Name)
}

func TestCString(t *testing.T) {
	assert.Equal(t, "abc", CString([]byte{'a', 'b', 'c', 0, 'd'}))
	assert.Equal(t, "abc", CString([]byte("abc")))
	assert.Equal(t, "", CString([]byte{0, 'x'}))
	assert.Equal(t, "a�b", CString([]byte{'a', 0xff, 'b', 0}))
}

func TestSnapshot_String(t *testing.T) {
	out := sampleSnapshot().String()
	assert.Contains(t, out, `map="Spring 2024 - 01"`)
	assert.Contains(t, out, `player="Alice"`)
	assert.Contains(t, out, "cps=[1200 3400]")
	assert.Contains(t, out, "speed=250")
}
