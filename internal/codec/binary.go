package codec

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/tm-proximity/linkbridge/pkg/core"
)

const (
	// TagPosition marks a binary position frame.
	TagPosition byte = 1

	// PositionPayloadSize is the number of bytes following the tag:
	// 18 little-endian float32 values.
	PositionPayloadSize = 18 * 4

	// PositionFrameSize is the full size of a position frame, tag included.
	PositionFrameSize = 1 + PositionPayloadSize
)

// IsPositionFrame reports whether data carries the binary position tag.
func IsPositionFrame(data []byte) bool {
	return len(data) > 0 && data[0] == TagPosition
}

// DecodePositionFrame decodes a tagged binary position frame. Bytes past
// the 72-byte payload are ignored.
func DecodePositionFrame(data []byte) (core.Positions, error) {
	if len(data) < PositionFrameSize {
		return core.Positions{}, fmt.Errorf("%w: position frame has %d bytes, want %d",
			ErrMalformedFrame, len(data), PositionFrameSize)
	}
	b := data[1:PositionFrameSize]
	return core.Positions{
		P: core.Position{Pos: vec3At(b, 0), Dir: vec3At(b, 12), Up: vec3At(b, 24)},
		C: core.Position{Pos: vec3At(b, 36), Dir: vec3At(b, 48), Up: vec3At(b, 60)},
	}, nil
}

// EncodePositionFrame is the inverse of DecodePositionFrame.
func EncodePositionFrame(p, c core.Position) []byte {
	buf := make([]byte, PositionFrameSize)
	buf[0] = TagPosition
	b := buf[1:]
	putVec3(b, 0, p.Pos)
	putVec3(b, 12, p.Dir)
	putVec3(b, 24, p.Up)
	putVec3(b, 36, c.Pos)
	putVec3(b, 48, c.Dir)
	putVec3(b, 60, c.Up)
	return buf
}

func vec3At(b []byte, off int) core.Vec3 {
	return core.Vec3{
		math.Float32frombits(binary.LittleEndian.Uint32(b[off:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[off+4:])),
		math.Float32frombits(binary.LittleEndian.Uint32(b[off+8:])),
	}
}

func putVec3(b []byte, off int, v core.Vec3) {
	binary.LittleEndian.PutUint32(b[off:], math.Float32bits(v[0]))
	binary.LittleEndian.PutUint32(b[off+4:], math.Float32bits(v[1]))
	binary.LittleEndian.PutUint32(b[off+8:], math.Float32bits(v[2]))
}
