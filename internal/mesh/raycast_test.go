package mesh

import (
	"math"
	"testing"

	"github.com/go-gl/mathgl/mgl64"

	"dr-shooter/internal/spatial"
)

// quad returns two triangles covering the square [-size,size]² in the XY
// plane at z=0, facing +Z.
func quad(size float64) []Triangle {
	a := mgl64.Vec3{-size, -size, 0}
	b := mgl64.Vec3{size, -size, 0}
	c := mgl64.Vec3{size, size, 0}
	d := mgl64.Vec3{-size, size, 0}
	return []Triangle{{A: a, B: b, C: c}, {A: a, B: c, C: d}}
}

func TestResolveEmptySnapshot(t *testing.T) {
	var s Snapshot
	if _, ok := s.Resolve(spatial.NewRay(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1})); ok {
		t.Fatal("empty snapshot must not hit")
	}
}

func TestResolveWallHit(t *testing.T) {
	s := Snapshot{Meshes: []Instance{{
		Triangles: quad(2),
		Pose:      spatial.Pose{Position: mgl64.Vec3{0, 0, -3}, Orientation: mgl64.QuatIdent()},
	}}}

	ray := spatial.NewRay(mgl64.Vec3{0, 0, 0}, mgl64.Vec3{0, 0, -1})
	hit, ok := s.Resolve(ray)
	if !ok {
		t.Fatal("expected hit")
	}
	if math.Abs(hit.Distance-3) > 1e-9 {
		t.Fatalf("distance = %v, want 3", hit.Distance)
	}
	if math.Abs(hit.Point.Z()+3) > 1e-9 {
		t.Fatalf("point = %v, want z=-3", hit.Point)
	}
	if math.Abs(math.Abs(hit.Normal.Z())-1) > 1e-9 {
		t.Fatalf("normal = %v, want ±Z", hit.Normal)
	}
}

func TestResolveNearestOfTwoWalls(t *testing.T) {
	near := Instance{Triangles: quad(2), Pose: spatial.Pose{Position: mgl64.Vec3{0, 0, -2}, Orientation: mgl64.QuatIdent()}}
	far := Instance{Triangles: quad(2), Pose: spatial.Pose{Position: mgl64.Vec3{0, 0, -5}, Orientation: mgl64.QuatIdent()}}
	s := Snapshot{Meshes: []Instance{far, near}}

	hit, ok := s.Resolve(spatial.NewRay(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1}))
	if !ok || math.Abs(hit.Distance-2) > 1e-9 {
		t.Fatalf("hit = %+v ok=%v, want nearest wall at 2", hit, ok)
	}
}

func TestResolveIgnoresHitsBehindOrigin(t *testing.T) {
	s := Snapshot{Meshes: []Instance{{
		Triangles: quad(2),
		Pose:      spatial.Pose{Position: mgl64.Vec3{0, 0, 3}, Orientation: mgl64.QuatIdent()},
	}}}
	if _, ok := s.Resolve(spatial.NewRay(mgl64.Vec3{}, mgl64.Vec3{0, 0, -1})); ok {
		t.Fatal("wall behind the ray must not hit")
	}
}

func TestResolveMiss(t *testing.T) {
	s := Snapshot{Meshes: []Instance{{
		Triangles: quad(1),
		Pose:      spatial.Pose{Position: mgl64.Vec3{0, 0, -3}, Orientation: mgl64.QuatIdent()},
	}}}
	// Ray aimed well outside the quad.
	if _, ok := s.Resolve(spatial.NewRay(mgl64.Vec3{}, mgl64.Vec3{5, 0, -1})); ok {
		t.Fatal("ray past the quad edge must miss")
	}
}

func TestResolveRepositionedMesh(t *testing.T) {
	// The same wall yawed 90° around Y sits in the YZ plane; a ray along -X
	// should now hit it and the normal should follow the rotation.
	rot := mgl64.QuatRotate(math.Pi/2, mgl64.Vec3{0, 1, 0})
	s := Snapshot{Meshes: []Instance{{
		Triangles: quad(2),
		Pose:      spatial.Pose{Position: mgl64.Vec3{-4, 0, 0}, Orientation: rot},
	}}}

	hit, ok := s.Resolve(spatial.NewRay(mgl64.Vec3{}, mgl64.Vec3{-1, 0, 0}))
	if !ok {
		t.Fatal("expected hit on rotated wall")
	}
	if math.Abs(hit.Distance-4) > 1e-9 {
		t.Fatalf("distance = %v, want 4", hit.Distance)
	}
	if math.Abs(math.Abs(hit.Normal.X())-1) > 1e-9 {
		t.Fatalf("normal = %v, want ±X after rotation", hit.Normal)
	}
}
