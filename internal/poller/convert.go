package poller

import (
	"github.com/go-gl/mathgl/mgl32"

	"github.com/tm-proximity/linkbridge/internal/telemetry"
	"github.com/tm-proximity/linkbridge/pkg/core"
)

// DefaultScale converts game world units to link units.
const DefaultScale float32 = 1.0 / 32

// Convert turns the car's translation and rotation into a link position.
// Telemetry is left-handed, the link is right-handed, so every vector is
// mirrored on Z.
func Convert(obj telemetry.ObjectState, scale float32) core.Position {
	rot := mgl32.Quat{
		W: obj.Rotation.W,
		V: mgl32.Vec3{obj.Rotation.X, obj.Rotation.Y, obj.Rotation.Z},
	}
	pos := mgl32.Vec3{obj.Translation.X, obj.Translation.Y, obj.Translation.Z}.Mul(scale)
	dir := rot.Rotate(mgl32.Vec3{0, 0, 1})
	up := rot.Rotate(mgl32.Vec3{0, 1, 0})

	return core.Position{
		Pos: core.Vec3(pos).FlipZ(),
		Dir: core.Vec3(dir).FlipZ(),
		Up:  core.Vec3(up).FlipZ(),
	}
}
