// Package mesh models the live room reconstruction as a triangle soup and
// answers ray queries against it. The room-mesh collaborator refreshes the
// snapshot once per frame; a snapshot is never mutated while in use.
package mesh

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"

	"dr-shooter/internal/spatial"
)

// Triangle is one face in mesh-local coordinates.
type Triangle struct {
	A, B, C mgl64.Vec3
}

// Instance is one detected mesh with its current world pose. Detection may
// reposition the same mesh between frames, so the pose lives here rather
// than being baked into the vertices.
type Instance struct {
	Triangles []Triangle
	Pose      spatial.Pose
}

// Snapshot is the set of room meshes known this frame.
type Snapshot struct {
	Meshes []Instance
}

// Hit is a resolved ray/room intersection in world space.
type Hit struct {
	Point    mgl64.Vec3
	Normal   mgl64.Vec3
	Distance float64
}

const rayEpsilon = 1e-9

// Resolve intersects the ray against every triangle of every mesh and
// returns the nearest hit strictly in front of the origin. ok is false when
// no mesh exists yet or nothing is struck.
func (s Snapshot) Resolve(ray spatial.Ray) (Hit, bool) {
	best := Hit{Distance: math.Inf(1)}
	found := false

	for _, m := range s.Meshes {
		// Intersect in mesh-local space: rotations preserve distances, so
		// the local t is also the world distance.
		inv := m.Pose.Orientation.Inverse()
		local := spatial.Ray{
			Origin:    inv.Rotate(ray.Origin.Sub(m.Pose.Position)),
			Direction: inv.Rotate(ray.Direction),
		}

		for _, tri := range m.Triangles {
			t, ok := intersectTriangle(local, tri)
			if !ok || t >= best.Distance {
				continue
			}
			n := tri.B.Sub(tri.A).Cross(tri.C.Sub(tri.A))
			if l := n.Len(); l > 0 {
				n = n.Mul(1 / l)
			}
			best = Hit{
				Point: ray.At(t),
				// Local normal carried into world space through the mesh pose.
				Normal:   m.Pose.Orientation.Rotate(n),
				Distance: t,
			}
			found = true
		}
	}

	if !found {
		return Hit{}, false
	}
	return best, true
}

// intersectTriangle runs Möller–Trumbore and returns the ray parameter of
// the hit. Back faces count: the room mesh has no guaranteed winding.
func intersectTriangle(ray spatial.Ray, tri Triangle) (float64, bool) {
	e1 := tri.B.Sub(tri.A)
	e2 := tri.C.Sub(tri.A)

	p := ray.Direction.Cross(e2)
	det := e1.Dot(p)
	if math.Abs(det) < rayEpsilon {
		return 0, false // parallel
	}
	invDet := 1 / det

	tv := ray.Origin.Sub(tri.A)
	u := tv.Dot(p) * invDet
	if u < 0 || u > 1 {
		return 0, false
	}

	q := tv.Cross(e1)
	v := ray.Direction.Dot(q) * invDet
	if v < 0 || u+v > 1 {
		return 0, false
	}

	t := e2.Dot(q) * invDet
	if t <= rayEpsilon {
		return 0, false // behind or on the origin
	}
	return t, true
}
