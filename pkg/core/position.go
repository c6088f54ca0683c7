// pkg/core/position.go
package core

import "math"

// Vec3 is a three-component vector in link coordinates.
type Vec3 [3]float32

// Position is a location plus orientation. Dir points out of the
// character's eyes and Up out of the top of its head; both are expected to
// be unit length and perpendicular but nothing here enforces it.
type Position struct {
	Pos Vec3 `json:"pos"`
	Dir Vec3 `json:"dir"`
	Up  Vec3 `json:"up"`
}

// NearOrigin is pushed for players that are not actively simulated
// (menus, spectating, stale telemetry).
var NearOrigin = Position{
	Pos: Vec3{0.005, 0.005, 0.005},
	Dir: Vec3{0, 0, -1},
	Up:  Vec3{0, 1, 0},
}

// Dot returns the dot product of v and o.
func (v Vec3) Dot(o Vec3) float32 {
	return v[0]*o[0] + v[1]*o[1] + v[2]*o[2]
}

// Len returns the euclidean length of v.
func (v Vec3) Len() float32 {
	return float32(math.Sqrt(float64(v.Dot(v))))
}

// FlipZ mirrors v across the XY plane.
func (v Vec3) FlipZ() Vec3 {
	return Vec3{v[0], v[1], -v[2]}
}

// IsOrthonormal reports whether Dir and Up are unit length and
// perpendicular within eps.
func (p Position) IsOrthonormal(eps float32) bool {
	abs := func(f float32) float32 {
		if f < 0 {
			return -f
		}
		return f
	}
	return abs(p.Dir.Len()-1) <= eps &&
		abs(p.Up.Len()-1) <= eps &&
		abs(p.Dir.Dot(p.Up)) <= eps
}
