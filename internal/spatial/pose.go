// Package spatial holds the shared pose and ray primitives used by the
// placement, anchor and calibration packages.
package spatial

import "github.com/go-gl/mathgl/mgl64"

// Pose is a rigid transform: a world position plus a unit orientation
// quaternion. It follows the XR convention of -Z forward, +X right, +Y up.
type Pose struct {
	Position    mgl64.Vec3
	Orientation mgl64.Quat
}

// IdentityPose returns a pose at the origin with no rotation.
func IdentityPose() Pose {
	return Pose{Orientation: mgl64.QuatIdent()}
}

// Forward returns the pose's view direction (-Z rotated into world space).
func (p Pose) Forward() mgl64.Vec3 {
	return p.Orientation.Rotate(mgl64.Vec3{0, 0, -1})
}

// Right returns the pose's +X axis in world space.
func (p Pose) Right() mgl64.Vec3 {
	return p.Orientation.Rotate(mgl64.Vec3{1, 0, 0})
}

// Up returns the pose's +Y axis in world space.
func (p Pose) Up() mgl64.Vec3 {
	return p.Orientation.Rotate(mgl64.Vec3{0, 1, 0})
}

// Ray is a half-line: origin plus a normalized direction.
type Ray struct {
	Origin    mgl64.Vec3
	Direction mgl64.Vec3
}

// NewRay builds a ray, normalizing the direction. A zero direction is kept
// as-is; such a ray never hits anything.
func NewRay(origin, direction mgl64.Vec3) Ray {
	if l := direction.Len(); l > 0 {
		direction = direction.Mul(1 / l)
	}
	return Ray{Origin: origin, Direction: direction}
}

// At returns the point at parameter t along the ray.
func (r Ray) At(t float64) mgl64.Vec3 {
	return r.Origin.Add(r.Direction.Mul(t))
}
