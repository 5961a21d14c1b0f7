// Package anchor pins placed entities to platform spatial anchors and
// re-reads each anchor's pose every frame to correct for tracking drift.
package anchor

import (
	"github.com/sirupsen/logrus"

	"dr-shooter/internal/placement"
	"dr-shooter/internal/spatial"
)

// Platform is the device's anchor-creation capability. It is resolved once
// at session start; a nil Platform means anchors are unsupported and every
// entity keeps its initial placement.
type Platform interface {
	CreateAnchor(pose spatial.Pose) (placement.Anchor, error)
}

// Tracker owns the anchor lifecycle for one round's entities.
type Tracker struct {
	platform  Platform
	log       *logrus.Logger
	attempted map[int]bool
}

func NewTracker(platform Platform, log *logrus.Logger) *Tracker {
	return &Tracker{
		platform:  platform,
		log:       log,
		attempted: make(map[int]bool),
	}
}

// Supported reports whether the platform can create anchors at all.
func (t *Tracker) Supported() bool { return t.platform != nil }

// CreateAnchors creates one anchor per entity that does not have one yet.
// Creation is attempted at most once per entity: repeat calls and entities
// whose creation already failed are no-ops. Must only be called from within
// a valid frame callback.
func (t *Tracker) CreateAnchors(entities []*placement.Entity) {
	if t.platform == nil {
		return
	}
	for _, e := range entities {
		if e.Anchor != nil || t.attempted[e.ID] {
			continue
		}
		t.attempted[e.ID] = true

		a, err := t.platform.CreateAnchor(spatial.Pose{Position: e.Position, Orientation: e.Orientation})
		if err != nil {
			t.log.WithField("entity_id", e.ID).WithError(err).Warn("anchor: create failed, entity stays unanchored")
			continue
		}
		e.Anchor = a
	}
}

// UpdatePoses overwrites each anchored entity's transform with its anchor's
// current pose. Entities whose anchor has no pose this frame are left
// untouched; anchors can recover later. Unanchored entities are never
// mutated.
func (t *Tracker) UpdatePoses(entities []*placement.Entity) {
	for _, e := range entities {
		if e.Anchor == nil {
			continue
		}
		pose, ok := e.Anchor.Pose()
		if !ok {
			continue
		}
		e.Position = pose.Position
		e.Orientation = pose.Orientation
	}
}

// AnchorCount returns how many of the given entities currently hold an
// anchor handle.
func (t *Tracker) AnchorCount(entities []*placement.Entity) int {
	n := 0
	for _, e := range entities {
		if e.Anchor != nil {
			n++
		}
	}
	return n
}

// Dispose releases every anchor handle and clears tracking state. Call this
// before discarding the entities themselves, or the platform handles leak.
func (t *Tracker) Dispose(entities []*placement.Entity) {
	for _, e := range entities {
		if e.Anchor == nil {
			continue
		}
		e.Anchor.Release()
		e.Anchor = nil
	}
	t.attempted = make(map[int]bool)
}
