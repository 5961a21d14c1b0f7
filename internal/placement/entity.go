// Package placement turns segmentation masks into world-space billboard
// entities: it picks a depth for each mask, projects the mask's bounding box
// through the projection model, and emits one entity per mask id.
package placement

import (
	"github.com/go-gl/mathgl/mgl64"

	"dr-shooter/internal/spatial"
)

// DepthMode selects how far from the camera an entity is placed.
type DepthMode string

const (
	DepthNone       DepthMode = "none"       // fixed configured distance
	DepthCenter     DepthMode = "center"     // one ray through the bbox center
	DepthMultiPoint DepthMode = "multiPoint" // averaged rays over bbox samples
)

// CapturedFrame is one passthrough photo plus the camera pose at the instant
// of capture. Immutable for the duration of a round.
type CapturedFrame struct {
	ImageBase64 string
	Width       int
	Height      int
	Camera      spatial.Pose
}

// Anchor is the minimal view of a platform spatial anchor an entity carries.
// Pose reports ok=false on frames where tracking is momentarily lost.
type Anchor interface {
	Pose() (spatial.Pose, bool)
	Release()
}

// Entity is the in-world representation of one mask. Position and
// orientation are written by the anchor tracker once an anchor exists;
// everything else is fixed at placement time.
type Entity struct {
	ID          int
	Position    mgl64.Vec3
	Orientation mgl64.Quat

	// Footprint in meters on the view plane; Scale is the calibration scale
	// applied as the final entity scale, kept out of Width/Height.
	Width  float64
	Height float64
	Scale  float64

	// Depth is the resolved placement distance in meters along the capture
	// camera's forward axis. Calibration recomputes the uncorrected
	// projection from it.
	Depth float64

	Visible bool

	// Degraded marks entities whose depth fell back to the fixed distance
	// (raycast miss or too-close hit), so gameplay can treat the placement
	// as lower confidence.
	Degraded bool

	Anchor Anchor

	// Placement provenance, carried through for effect spawning.
	MaskData    string
	MaskBBox    []float64
	Color       [3]int
	InpaintData string
	InpaintBBox []int
}

// Set is the round's entity collection, keyed by mask id. Adds are
// idempotent; iteration preserves insertion order.
type Set struct {
	order []int
	byID  map[int]*Entity
}

func NewSet() *Set {
	return &Set{byID: make(map[int]*Entity)}
}

// Add inserts the entity unless its id is already present. Reports whether
// the entity was added.
func (s *Set) Add(e *Entity) bool {
	if _, dup := s.byID[e.ID]; dup {
		return false
	}
	s.byID[e.ID] = e
	s.order = append(s.order, e.ID)
	return true
}

func (s *Set) Get(id int) (*Entity, bool) {
	e, ok := s.byID[id]
	return e, ok
}

// All returns the entities in insertion order.
func (s *Set) All() []*Entity {
	out := make([]*Entity, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.byID[id])
	}
	return out
}

func (s *Set) Len() int { return len(s.order) }

// Clear drops every entity. Anchor handles must be released by the tracker
// before this is called.
func (s *Set) Clear() {
	s.order = s.order[:0]
	s.byID = make(map[int]*Entity)
}
