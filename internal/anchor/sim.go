package anchor

import (
	"github.com/go-gl/mathgl/mgl64"
	"github.com/google/uuid"

	"dr-shooter/internal/placement"
	"dr-shooter/internal/spatial"
)

// SimPlatform is an in-memory anchor platform used by the offline driver and
// by tests. Anchors report the pose they were created at until drift is
// injected with Shift.
type SimPlatform struct {
	anchors map[string]*SimAnchor
	// FailCreate makes every CreateAnchor call return an error.
	FailCreate error
}

func NewSimPlatform() *SimPlatform {
	return &SimPlatform{anchors: make(map[string]*SimAnchor)}
}

func (p *SimPlatform) CreateAnchor(pose spatial.Pose) (placement.Anchor, error) {
	if p.FailCreate != nil {
		return nil, p.FailCreate
	}
	a := &SimAnchor{ID: uuid.NewString(), pose: pose}
	p.anchors[a.ID] = a
	return a, nil
}

// Live returns the number of anchors created and not yet released.
func (p *SimPlatform) Live() int {
	n := 0
	for _, a := range p.anchors {
		if !a.released {
			n++
		}
	}
	return n
}

// Shift moves every live anchor by the given offset, simulating the
// reference space drifting under the entities.
func (p *SimPlatform) Shift(dx, dy, dz float64) {
	for _, a := range p.anchors {
		if a.released {
			continue
		}
		a.pose.Position = a.pose.Position.Add(mgl64.Vec3{dx, dy, dz})
	}
}

// SimAnchor is one simulated anchor handle.
type SimAnchor struct {
	ID       string
	pose     spatial.Pose
	Lost     bool // when set, Pose reports no pose this frame
	released bool
}

func (a *SimAnchor) Pose() (spatial.Pose, bool) {
	if a.Lost || a.released {
		return spatial.Pose{}, false
	}
	return a.pose, true
}

func (a *SimAnchor) Release() { a.released = true }

// Released reports whether the handle was released.
func (a *SimAnchor) Released() bool { return a.released }
